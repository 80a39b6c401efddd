// Package retrieval orchestrates the query path: embed the query, search
// the vector store, optionally rerank, assemble the context, and hand the
// request to the LLM router.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"

	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/llm"
	"github.com/vellum-io/vellum/pkg/vector"
)

// QueryEmbedder computes a query vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, model, text string) ([]float32, error)
}

// Searcher runs a proxy search.
type Searcher interface {
	Search(ctx context.Context, req vector.SearchRequest) ([]vector.Match, error)
}

// Reranker reorders matches by relevance to the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, matches []vector.Match, topK int) []vector.Match
}

// PromptRouter forwards the assembled request to the LLM router.
type PromptRouter interface {
	Route(ctx context.Context, req *llm.RouteRequest) (*llm.RouteResponse, error)
}

// Request is the retrieve payload: the search fields plus the routing
// fields that travel on to the LLM router. Unrecognized keys land in
// Extra and are forwarded untouched.
type Request struct {
	Query          string                 `mapstructure:"query" json:"query,omitempty"`
	Embedding      []float32              `mapstructure:"embedding" json:"embedding,omitempty"`
	CollectionName string                 `mapstructure:"collection_name" json:"collection_name,omitempty"`
	TopK           int                    `mapstructure:"top_k" json:"top_k,omitempty"`
	StorageMode    string                 `mapstructure:"storage_mode" json:"storage_mode,omitempty"`
	EmbedModel     string                 `mapstructure:"embedModel" json:"embedModel,omitempty"`
	Backend        string                 `mapstructure:"backend" json:"backend,omitempty"`
	SystemPrompt   string                 `mapstructure:"system_prompt" json:"system_prompt,omitempty"`
	Model          string                 `mapstructure:"model" json:"model,omitempty"`
	Department     string                 `mapstructure:"department" json:"department,omitempty"`
	Team           string                 `mapstructure:"team" json:"team,omitempty"`
	User           string                 `mapstructure:"user" json:"user,omitempty"`
	Entities       []string               `mapstructure:"entities" json:"entities,omitempty"`
	FileGUID       string                 `mapstructure:"file_guid" json:"file_guid,omitempty"`
	FileName       string                 `mapstructure:"file_name" json:"file_name,omitempty"`
	Extra          map[string]interface{} `mapstructure:",remain" json:"-"`
}

// DecodeRequest builds a Request from a loose payload map.
func DecodeRequest(payload map[string]interface{}) (*Request, error) {
	var req Request
	if err := mapstructure.Decode(payload, &req); err != nil {
		return nil, fmt.Errorf("decoding retrieve request: %w", err)
	}
	return &req, nil
}

func (r *Request) filters() *vector.Filters {
	f := &vector.Filters{
		Department: r.Department,
		Team:       r.Team,
		User:       r.User,
		Entities:   r.Entities,
		FileGUID:   r.FileGUID,
		FileName:   r.FileName,
	}
	if f.Empty() {
		return nil
	}
	return f
}

// Response is the successful retrieval outcome. Result stays empty while
// routing is asynchronous; the invoker delivers the model output.
type Response struct {
	Result  string `json:"result"`
	Context string `json:"context"`
	Status  string `json:"status,omitempty"`
	Backend string `json:"backend,omitempty"`
}

// Orchestrator wires the retrieval steps together. A nil reranker skips
// the rerank step.
type Orchestrator struct {
	embedder   QueryEmbedder
	searcher   Searcher
	reranker   Reranker
	router     PromptRouter
	queryModel string
	log        hclog.Logger
}

func New(embedder QueryEmbedder, searcher Searcher, reranker Reranker, router PromptRouter, queryModel string, log hclog.Logger) *Orchestrator {
	return &Orchestrator{
		embedder:   embedder,
		searcher:   searcher,
		reranker:   reranker,
		router:     router,
		queryModel: queryModel,
		log:        log.Named("retrieval"),
	}
}

// Retrieve runs the full query path. Any failing step aborts the whole
// request; callers render the error with an empty result so no partial
// context ever leaks.
func (o *Orchestrator) Retrieve(ctx context.Context, req *Request) (*Response, error) {
	embedding := req.Embedding
	if len(embedding) == 0 {
		if req.Query == "" {
			return nil, fmt.Errorf("query or embedding required: %w", kind.ErrInputInvalid)
		}
		model := req.EmbedModel
		if model == "" {
			model = o.queryModel
		}
		var err error
		embedding, err = o.embedder.EmbedQuery(ctx, model, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
	}

	matches, err := o.searcher.Search(ctx, vector.SearchRequest{
		Collection:  req.CollectionName,
		Embedding:   embedding,
		TopK:        req.TopK,
		StorageMode: req.StorageMode,
		Filters:     req.filters(),
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", req.CollectionName, err)
	}

	if o.reranker != nil && req.Query != "" {
		matches = o.reranker.Rerank(ctx, req.Query, matches, req.TopK)
	}

	docContext := joinMatchText(matches)

	extra := make(map[string]interface{}, len(req.Extra)+1)
	for k, v := range req.Extra {
		extra[k] = v
	}
	extra["context"] = docContext

	routed, err := o.router.Route(ctx, &llm.RouteRequest{
		Prompt:       req.Query,
		Backend:      req.Backend,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Extra:        extra,
	})
	if err != nil {
		return nil, fmt.Errorf("routing prompt: %w", err)
	}

	o.log.Info("retrieval complete",
		"collection", req.CollectionName,
		"matches", len(matches),
		"context_length", len(docContext),
		"backend", routed.Backend)

	return &Response{
		Context: docContext,
		Status:  routed.Status,
		Backend: routed.Backend,
	}, nil
}

// joinMatchText concatenates the text metadata of the matches with single
// spaces. Matches without text contribute nothing.
func joinMatchText(matches []vector.Match) string {
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if t, ok := m.Metadata["text"].(string); ok && t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, " ")
}
