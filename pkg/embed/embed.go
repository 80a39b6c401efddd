// Package embed turns text into vectors. The model is selected per docType
// through a configurable map; model specs name their backend with a prefix
// ("sbert/nomic-embed-text", "openai/text-embedding-3-small",
// "cohere/cohere.embed-english-v3"), and bare names are detected the way the
// ecosystem names models.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/chunk"
	"github.com/vellum-io/vellum/pkg/kind"
)

// Backend embeds batches of texts against one model family.
type Backend interface {
	Name() string
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Embedder selects a backend per model and batches requests.
type Embedder struct {
	backends     map[string]Backend
	models       map[string]string
	defaultModel string
	batchSize    int
	log          hclog.Logger
}

// New wires the three production backends from config.
func New(ctx context.Context, cfg *config.EmbedConfig, log hclog.Logger) (*Embedder, error) {
	backends := map[string]Backend{
		"sbert":  NewSbertBackend(cfg, log),
		"openai": NewOpenAIBackend(cfg, log),
	}
	cohere, err := NewCohereBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	backends["cohere"] = cohere
	return NewWithBackends(cfg, backends, log), nil
}

// NewWithBackends builds an embedder over explicit backends. Tests inject
// fakes here.
func NewWithBackends(cfg *config.EmbedConfig, backends map[string]Backend, log hclog.Logger) *Embedder {
	return &Embedder{
		backends:     backends,
		models:       cfg.Models,
		defaultModel: cfg.DefaultModel,
		batchSize:    cfg.BatchSize,
		log:          log.Named("embed"),
	}
}

// ModelFor resolves the model spec for a docType, falling back to the
// default model.
func (e *Embedder) ModelFor(docType string) string {
	if m, ok := e.models[docType]; ok && m != "" {
		return m
	}
	return e.defaultModel
}

// Embed embeds texts with the given model spec, splitting the input into
// configured batch sizes. Any backend failure fails the whole call; partial
// embeddings are never returned.
func (e *Embedder) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	backend, name, err := e.backendFor(model)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := backend.Embed(ctx, name, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%s batch [%d:%d]: %v: %w",
				backend.Name(), start, end, err, kind.ErrEmbedFailed)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%s returned %d vectors for %d texts: %w",
				backend.Name(), len(vectors), end-start, kind.ErrEmbedFailed)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds one query string with the model configured for queries.
func (e *Embedder) EmbedQuery(ctx context.Context, model, text string) ([]float32, error) {
	if model == "" {
		model = e.defaultModel
	}
	vectors, err := e.Embed(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedChunks embeds a chunk batch and assembles the parallel metadata list,
// each entry carrying the chunk text for retrieval-time context assembly.
// The model comes from the override, or the docType map via the first chunk.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []chunk.Chunk, modelOverride string) ([][]float32, []map[string]interface{}, error) {
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	model := modelOverride
	if model == "" {
		model = e.ModelFor(chunks[0].Metadata.DocType)
	}

	texts := make([]string, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		m := c.Metadata.Map()
		m["text"] = c.Text
		metadatas[i] = m
	}

	vectors, err := e.Embed(ctx, model, texts)
	if err != nil {
		return nil, nil, err
	}
	return vectors, metadatas, nil
}

// backendFor splits a model spec into backend and model name. Specs without
// an explicit backend prefix are detected from the model name.
func (e *Embedder) backendFor(spec string) (Backend, string, error) {
	name, model := splitModelSpec(spec)
	b, ok := e.backends[name]
	if !ok {
		return nil, "", fmt.Errorf("no %q embedding backend configured: %w", name, kind.ErrConfigMissing)
	}
	return b, model, nil
}

func splitModelSpec(spec string) (backend, model string) {
	if prefix, rest, ok := strings.Cut(spec, "/"); ok {
		switch prefix {
		case "sbert", "openai", "cohere":
			return prefix, rest
		}
	}

	lower := strings.ToLower(spec)
	switch {
	case strings.HasPrefix(lower, "text-embedding"):
		return "openai", spec
	case strings.Contains(lower, "cohere"):
		return "cohere", spec
	default:
		return "sbert", spec
	}
}
