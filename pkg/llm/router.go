package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/queue"
)

// Router validates and sanitizes a prompt, picks a backend through the
// strategy cascade, and enqueues the request on the invocation topic. It
// never calls a model itself.
type Router struct {
	cfg        *config.RouterConfig
	pub        queue.Publisher
	topic      string
	strategies []Strategy
	log        hclog.Logger
}

// NewRouter builds the cascade heuristic, predictive, generative. A nil
// classifier leaves the predictive strategy abstaining so the generative
// fallback still terminates every route.
func NewRouter(cfg *config.RouterConfig, pub queue.Publisher, topic string, classifier Classifier, log hclog.Logger) *Router {
	log = log.Named("router")
	return &Router{
		cfg:   cfg,
		pub:   pub,
		topic: topic,
		strategies: []Strategy{
			NewHeuristic(cfg),
			NewPredictive(classifier, cfg, log),
			NewGenerative(cfg.DefaultBackend),
		},
		log: log,
	}
}

// Route picks a backend for the request and enqueues it. The returned
// response maps to 202 at the HTTP layer.
func (r *Router) Route(ctx context.Context, req *RouteRequest) (*RouteResponse, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required: %w", kind.ErrInputInvalid)
	}
	if n := len([]rune(req.Prompt)); n > r.cfg.MaxPromptLength {
		return nil, fmt.Errorf("prompt length %d exceeds limit %d: %w", n, r.cfg.MaxPromptLength, kind.ErrInputInvalid)
	}

	req.Prompt = SanitizePrompt(req.Prompt, r.cfg.MaxPromptLength)
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is empty after sanitization: %w", kind.ErrInputInvalid)
	}

	backend, err := r.selectBackend(ctx, req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req.Envelope(backend))
	if err != nil {
		return nil, fmt.Errorf("marshaling invocation: %w", err)
	}
	if err := r.pub.Publish(ctx, r.topic, backend, body); err != nil {
		return nil, fmt.Errorf("enqueuing invocation: %v: %w", err, kind.ErrBackendUnavailable)
	}

	r.log.Info("routed prompt", "backend", backend, "prompt_words", promptWords(req.Prompt))
	return &RouteResponse{Status: "queued", Backend: backend}, nil
}

func (r *Router) selectBackend(ctx context.Context, req *RouteRequest) (string, error) {
	if req.Backend != "" {
		if !r.allowed(req.Backend) {
			return "", fmt.Errorf("backend %q is not allowed: %w", req.Backend, kind.ErrInputInvalid)
		}
		return req.Backend, nil
	}

	strategies := r.strategies
	if req.Strategy != "" {
		s := r.strategyByName(req.Strategy)
		if s == nil {
			return "", fmt.Errorf("unknown strategy %q: %w", req.Strategy, kind.ErrInputInvalid)
		}
		// An abstaining or failing named strategy still falls back to the
		// default backend rather than failing the request.
		strategies = []Strategy{s, NewGenerative(r.cfg.DefaultBackend)}
	}

	for _, s := range strategies {
		backend, ok, err := s.Select(ctx, req.Prompt)
		if err != nil {
			r.log.Warn("strategy failed, falling through", "strategy", s.Name(), "error", err)
			continue
		}
		if ok {
			r.log.Debug("strategy selected backend", "strategy", s.Name(), "backend", backend)
			return backend, nil
		}
	}
	return r.cfg.DefaultBackend, nil
}

func (r *Router) strategyByName(name string) Strategy {
	for _, s := range r.strategies {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func (r *Router) allowed(backend string) bool {
	for _, b := range r.cfg.Allowlist {
		if b == backend {
			return true
		}
	}
	return false
}

func promptWords(s string) int { return len(strings.Fields(s)) }
