// Package chunk splits document text into indexable pieces. Two strategies
// exist: simple packs paragraphs and sentences by character count, universal
// dispatches on file extension and packs by token count. The strategy is
// chosen per docType with a configurable map.
package chunk

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
)

// Metadata travels with every chunk into the vector store. The tenant fields
// drive post-search filtering; Entities is filled when entity tagging is
// enabled on ingest.
type Metadata struct {
	DocType    string   `json:"docType,omitempty" mapstructure:"docType"`
	FileGUID   string   `json:"file_guid,omitempty" mapstructure:"file_guid"`
	FileName   string   `json:"file_name,omitempty" mapstructure:"file_name"`
	Department string   `json:"department,omitempty" mapstructure:"department"`
	Team       string   `json:"team,omitempty" mapstructure:"team"`
	User       string   `json:"user,omitempty" mapstructure:"user"`
	Entities   []string `json:"entities,omitempty" mapstructure:"entities"`
}

// Map renders the metadata as the flat map the vector store keeps per item.
// Empty fields are omitted so filters distinguish "unset" from "empty".
func (m Metadata) Map() map[string]interface{} {
	out := map[string]interface{}{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("docType", m.DocType)
	set("file_guid", m.FileGUID)
	set("file_name", m.FileName)
	set("department", m.Department)
	set("team", m.Team)
	set("user", m.User)
	if len(m.Entities) > 0 {
		out["entities"] = m.Entities
	}
	return out
}

// Chunk is one piece of a document with its carried metadata.
type Chunk struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Options narrows one Split call. Zero values fall back to the chunker's
// configured defaults.
type Options struct {
	// Size is the chunk budget: characters for simple, tokens for universal.
	Size    int
	Overlap int
	// Strategy forces "simple" or "universal"; empty consults the docType
	// map, then the default.
	Strategy string
}

// Chunker selects and runs a splitting strategy.
type Chunker struct {
	size       int
	overlap    int
	strategies map[string]string
	tok        Tokenizer
	log        hclog.Logger
}

// New builds a chunker from config. The tokenizer backs the universal
// strategy; pass NewTiktoken() in production.
func New(cfg *config.ChunkConfig, tok Tokenizer, log hclog.Logger) *Chunker {
	return &Chunker{
		size:       cfg.Size,
		overlap:    cfg.Overlap,
		strategies: cfg.Strategies,
		tok:        tok,
		log:        log.Named("chunk"),
	}
}

// Split chunks text with the strategy resolved for the metadata's docType.
// Every produced chunk carries a copy of meta.
func (c *Chunker) Split(text string, meta Metadata, opts Options) ([]Chunk, error) {
	size := opts.Size
	if size <= 0 {
		size = c.size
	}
	overlap := opts.Overlap
	if overlap <= 0 {
		overlap = c.overlap
	}
	if overlap >= size {
		return nil, fmt.Errorf("overlap %d must be smaller than size %d: %w",
			overlap, size, kind.ErrInputInvalid)
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = c.strategies[meta.DocType]
	}

	var pieces []string
	var err error
	switch strategy {
	case "", "simple":
		pieces = splitSimple(text, size, overlap)
	case "universal":
		pieces, err = c.splitUniversal(text, meta.FileName, size, overlap)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown chunk strategy %q: %w", strategy, kind.ErrInputInvalid)
	}

	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, Chunk{Text: p, Metadata: meta})
	}
	return chunks, nil
}

// splitSimple packs paragraphs into chunks of at most size characters.
// Oversized paragraphs fall back to sentence packing; only a single sentence
// longer than the whole budget is hard-split, and only those splits overlap.
func splitSimple(text string, size, overlap int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	add := func(piece, sep string) {
		if cur.Len() > 0 && cur.Len()+len(sep)+len(piece) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}

	for _, para := range splitParagraphs(text) {
		if len(para) <= size {
			add(para, "\n\n")
			continue
		}
		for _, sentence := range splitSentences(para) {
			if len(sentence) <= size {
				add(sentence, " ")
				continue
			}
			// A single sentence over budget: hard character windows with
			// overlap carried between them.
			flush()
			chunks = append(chunks, windowString(sentence, size, overlap)...)
		}
	}
	flush()
	return chunks
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits on '.', '!' or '?' followed by whitespace. The
// terminator stays with its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\t' || text[i+1] == '\n' {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// windowString cuts s into size-character windows, each starting overlap
// characters before the previous window ended.
func windowString(s string, size, overlap int) []string {
	stride := size - overlap
	var out []string
	for start := 0; start < len(s); start += stride {
		end := start + size
		if end >= len(s) {
			out = append(out, s[start:])
			break
		}
		out = append(out, s[start:end])
	}
	return out
}
