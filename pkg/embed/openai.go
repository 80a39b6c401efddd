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

// OpenAIBackend embeds through an OpenAI-compatible /v1/embeddings endpoint,
// which accepts the whole batch in one request.
type OpenAIBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     hclog.Logger
}

func NewOpenAIBackend(cfg *config.EmbedConfig, log hclog.Logger) *OpenAIBackend {
	baseURL := cfg.OpenAIBaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIBackend{
		baseURL: baseURL,
		apiKey:  cfg.OpenAIAPIKey,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		log: log.Named("embed.openai"),
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

type openaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (b *OpenAIBackend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openaiEmbedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("error marshaling embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %v: %w", err, kind.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, msg)
	}

	var parsed openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("error decoding embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding endpoint returned %d vectors for %d inputs",
			len(parsed.Data), len(texts))
	}

	// The API documents data as index-ordered, but place by index anyway so
	// a permuted response cannot misalign vectors with texts.
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
