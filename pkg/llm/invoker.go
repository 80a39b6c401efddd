package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/queue"
)

// Client calls one model backend. Endpoint comes from the health pool;
// SDK-backed clients ignore it.
type Client interface {
	Name() string
	Invoke(ctx context.Context, endpoint string, req *InvokeRequest) (*Result, error)
}

type managedBackend struct {
	cfg    config.BackendConfig
	client Client
	pool   *Pool
}

// Invoker consumes the invocation queue and calls model backends through
// health-checked endpoint rotation.
type Invoker struct {
	backends map[string]*managedBackend
	log      hclog.Logger
}

// NewInvoker wires one client per configured backend.
func NewInvoker(ctx context.Context, cfg *config.InvokerConfig, log hclog.Logger) (*Invoker, error) {
	inv := &Invoker{
		backends: make(map[string]*managedBackend),
		log:      log.Named("invoker"),
	}
	for _, bc := range cfg.Backends {
		timeout := time.Duration(bc.TimeoutSeconds) * time.Second
		var client Client
		switch bc.Name {
		case BackendBedrock:
			c, err := NewBedrockClient(ctx, bc.Region)
			if err != nil {
				return nil, fmt.Errorf("backend %s: %w", bc.Name, err)
			}
			client = c
		case BackendOllama:
			client = NewOllamaClient(timeout)
		case BackendOpenAI:
			client = NewOpenAIClient(bc.APIKey, timeout)
		default:
			return nil, fmt.Errorf("unknown backend %q: %w", bc.Name, kind.ErrConfigMissing)
		}
		inv.Register(bc, client)
	}
	return inv, nil
}

// Register adds a backend with a fresh health pool. Tests register stubs.
func (i *Invoker) Register(cfg config.BackendConfig, client Client) {
	i.backends[cfg.Name] = &managedBackend{
		cfg:    cfg,
		client: client,
		pool:   NewPool(cfg.Endpoints, cfg.FailureThreshold, time.Duration(cfg.CooldownSeconds)*time.Second),
	}
}

// Invoke applies sampling defaults, rotates to a healthy endpoint, and
// calls the backend under its configured deadline. Transient failures
// fail over to the next endpoint with bounded backoff; every failure is
// reported to the pool.
func (i *Invoker) Invoke(ctx context.Context, req *InvokeRequest) (*Result, error) {
	mb, ok := i.backends[req.Backend]
	if !ok {
		return nil, fmt.Errorf("backend %q not configured: %w", req.Backend, kind.ErrConfigMissing)
	}
	applyDefaults(req, mb.cfg)

	var res *Result
	op := func() error {
		endpoint, err := mb.pool.Next()
		if err != nil {
			return backoff.Permanent(err)
		}

		callCtx := ctx
		if mb.cfg.TimeoutSeconds > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(mb.cfg.TimeoutSeconds)*time.Second)
			defer cancel()
		}

		res, err = mb.client.Invoke(callCtx, endpoint, req)
		if err != nil {
			mb.pool.ReportFailure(endpoint)
			i.log.Warn("backend call failed",
				"backend", req.Backend, "endpoint", endpoint, "error", err)
			if kind.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		mb.pool.ReportSuccess(endpoint)
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("invoking %s: %w", req.Backend, err)
	}
	return res, nil
}

// applyDefaults fills sampling parameters the request left unset from the
// backend's configuration.
func applyDefaults(req *InvokeRequest, cfg config.BackendConfig) {
	if req.Model == "" {
		req.Model = cfg.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if req.Temperature == nil {
		req.Temperature = cfg.Temperature
	}
	if req.TopP == nil {
		req.TopP = cfg.TopP
	}
	if req.TopK == nil {
		req.TopK = cfg.TopK
	}
}

// Handler adapts the invoker to a queue consumer. Transient failures leave
// the message uncommitted so the transport redelivers it; malformed or
// permanently failing invocations are logged and dropped.
func (i *Invoker) Handler() queue.Handler {
	return func(ctx context.Context, msg queue.Message) error {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			i.log.Error("dropping unparseable invocation", "error", err)
			return nil
		}
		req, err := DecodeInvokeRequest(payload)
		if err != nil {
			i.log.Error("dropping malformed invocation", "error", err)
			return nil
		}

		res, err := i.Invoke(ctx, req)
		if err != nil {
			if kind.IsRetryable(err) {
				return err
			}
			i.log.Error("dropping failed invocation", "backend", req.Backend, "error", err)
			return nil
		}

		fields := []interface{}{
			"backend", res.Backend, "model", res.Model, "text_length", len(res.Text),
		}
		if res.Usage != nil {
			fields = append(fields, "total_tokens", res.Usage.TotalTokens)
		}
		i.log.Info("invocation complete", fields...)
		return nil
	}
}
