package chunk

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/vellum-io/vellum/pkg/kind"
)

// Tokenizer counts and slices text by tokens for the universal strategy.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// tiktokenizer wraps the cl100k_base encoding.
type tiktokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken returns the cl100k_base tokenizer used by the universal
// strategy in production.
func NewTiktoken() (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("loading cl100k_base encoding: %w", err)
	}
	return &tiktokenizer{enc: enc}, nil
}

func (t *tiktokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// codeExtensions route a file to the code sub-chunker.
var codeExtensions = map[string]bool{
	"go": true, "py": true, "js": true, "ts": true, "java": true,
	"c": true, "h": true, "cpp": true, "rs": true, "rb": true,
	"sh": true, "sql": true, "yaml": true, "yml": true, "tf": true,
}

// splitUniversal dispatches by extension: notebooks chunk per cell, code per
// blank-line block, everything else per paragraph. Budgets are token counts.
func (c *Chunker) splitUniversal(text, fileName string, size, overlap int) ([]string, error) {
	if c.tok == nil {
		return nil, fmt.Errorf("universal strategy requires a tokenizer: %w", kind.ErrConfigMissing)
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	switch {
	case ext == "ipynb":
		cells, err := notebookCells(text)
		if err != nil {
			return nil, err
		}
		return c.packTokens(cells, size, overlap), nil
	case codeExtensions[ext]:
		return c.packTokens(splitParagraphs(text), size, overlap), nil
	default:
		return c.packTokens(splitParagraphs(text), size, overlap), nil
	}
}

// packTokens packs units greedily up to size tokens. A unit over budget on
// its own is window-split with overlap tokens carried between windows.
func (c *Chunker) packTokens(units []string, size, overlap int) []string {
	var chunks []string
	var cur []string
	curTokens := 0

	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n\n"))
			cur = nil
			curTokens = 0
		}
	}

	for _, unit := range units {
		n := len(c.tok.Encode(unit))
		if n > size {
			flush()
			chunks = append(chunks, c.windowTokens(unit, size, overlap)...)
			continue
		}
		if curTokens+n > size {
			flush()
		}
		cur = append(cur, unit)
		curTokens += n
	}
	flush()
	return chunks
}

func (c *Chunker) windowTokens(text string, size, overlap int) []string {
	tokens := c.tok.Encode(text)
	stride := size - overlap
	var out []string
	for start := 0; start < len(tokens); start += stride {
		end := start + size
		if end >= len(tokens) {
			out = append(out, c.tok.Decode(tokens[start:]))
			break
		}
		out = append(out, c.tok.Decode(tokens[start:end]))
	}
	return out
}

// notebookCells extracts cell sources from a Jupyter notebook. Code cells
// keep their text verbatim; markdown cells too. Output cells are ignored.
func notebookCells(raw string) ([]string, error) {
	var nb struct {
		Cells []struct {
			CellType string          `json:"cell_type"`
			Source   json.RawMessage `json:"source"`
		} `json:"cells"`
	}
	if err := json.Unmarshal([]byte(raw), &nb); err != nil {
		return nil, fmt.Errorf("parsing notebook: %v: %w", err, kind.ErrParse)
	}

	var cells []string
	for _, cell := range nb.Cells {
		if cell.CellType != "code" && cell.CellType != "markdown" {
			continue
		}
		text := cellSource(cell.Source)
		if strings.TrimSpace(text) == "" {
			continue
		}
		cells = append(cells, text)
	}
	return cells, nil
}

// cellSource handles both notebook source encodings: a single string or a
// list of line strings.
func cellSource(raw json.RawMessage) string {
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
