// Package rerank reorders search matches by relevance to the query. A remote
// provider calls a cross-encoder service; the local provider is a
// deterministic lexical stand-in for deployments without one. Scoring
// failures degrade to the original vector-score order instead of failing the
// request.
package rerank

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/vector"
)

// ScoreKey is the metadata key the reranker attaches to each match.
const ScoreKey = "rerank_score"

// Provider scores query/text pairs. Scores are parallel to texts.
type Provider interface {
	Name() string
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Reranker applies a provider to search matches.
type Reranker struct {
	provider Provider
	log      hclog.Logger
}

// New selects the provider from config.
func New(cfg *config.RerankConfig, log hclog.Logger) (*Reranker, error) {
	switch cfg.Provider {
	case "local":
		return NewWithProvider(NewLocalProvider(), log), nil
	case "remote":
		return NewWithProvider(NewRemoteProvider(cfg, log), log), nil
	default:
		return nil, fmt.Errorf("unknown rerank provider %q", cfg.Provider)
	}
}

// NewWithProvider builds a reranker over an explicit provider.
func NewWithProvider(p Provider, log hclog.Logger) *Reranker {
	return &Reranker{provider: p, log: log.Named("rerank")}
}

// Rerank scores each match's text against the query, attaches the score
// under rerank_score, sorts descending, and truncates to topK. When the
// provider fails every score is zero and the stable sort keeps the incoming
// order.
func (r *Reranker) Rerank(ctx context.Context, query string, matches []vector.Match, topK int) []vector.Match {
	if len(matches) == 0 {
		return matches
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		if s, ok := m.Metadata["text"].(string); ok {
			texts[i] = s
		}
	}

	scores, err := r.provider.Score(ctx, query, texts)
	if err != nil || len(scores) != len(matches) {
		r.log.Warn("rerank scoring failed, keeping original order",
			"provider", r.provider.Name(), "error", err)
		scores = make([]float64, len(matches))
	}

	out := make([]vector.Match, len(matches))
	for i, m := range matches {
		meta := make(map[string]interface{}, len(m.Metadata)+1)
		for k, v := range m.Metadata {
			meta[k] = v
		}
		meta[ScoreKey] = scores[i]
		out[i] = vector.Match{ID: m.ID, Score: m.Score, Metadata: meta}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata[ScoreKey].(float64) > out[j].Metadata[ScoreKey].(float64)
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
