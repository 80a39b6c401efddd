package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
)

// RemoteProvider scores through an external cross-encoder rerank service.
type RemoteProvider struct {
	endpoint string
	client   *http.Client
	log      hclog.Logger
}

func NewRemoteProvider(cfg *config.RerankConfig, log hclog.Logger) *RemoteProvider {
	return &RemoteProvider{
		endpoint: cfg.Endpoint,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		log: log.Named("rerank.remote"),
	}
}

func (r *RemoteProvider) Name() string { return "remote" }

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

func (r *RemoteProvider) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if r.endpoint == "" {
		return nil, fmt.Errorf("rerank endpoint not configured: %w", kind.ErrConfigMissing)
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("error marshaling rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %v: %w", err, kind.ErrRerankFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s: %w",
			resp.StatusCode, msg, kind.ErrRerankFailed)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("error decoding rerank response: %w", err)
	}
	if len(parsed.Scores) != len(texts) {
		return nil, fmt.Errorf("rerank returned %d scores for %d texts: %w",
			len(parsed.Scores), len(texts), kind.ErrRerankFailed)
	}
	return parsed.Scores, nil
}
