package embed

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

// SbertBackend embeds through an Ollama-compatible sentence-transformer
// endpoint. The embeddings API takes one prompt per call, so batches are
// issued sequentially.
type SbertBackend struct {
	baseURL string
	client  *http.Client
	log     hclog.Logger
}

func NewSbertBackend(cfg *config.EmbedConfig, log hclog.Logger) *SbertBackend {
	return &SbertBackend{
		baseURL: cfg.OllamaURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		log: log.Named("embed.sbert"),
	}
}

func (b *SbertBackend) Name() string { return "sbert" }

type sbertRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type sbertResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (b *SbertBackend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := b.embedOne(ctx, model, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (b *SbertBackend) embedOne(ctx context.Context, model, text string) ([]float32, error) {
	body, err := json.Marshal(sbertRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("error marshaling embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %v: %w", err, kind.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, msg)
	}

	var parsed sbertResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("error decoding embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned empty vector for model %q", model)
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
