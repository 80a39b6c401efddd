package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vellum-io/vellum/pkg/kind"
)

// OllamaClient posts generation requests to Ollama's /api/generate. The
// system prompt rides in the request's system field.
type OllamaClient struct {
	httpClient *http.Client
}

func NewOllamaClient(timeout time.Duration) *OllamaClient {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{httpClient: &http.Client{Timeout: timeout}}
}

func (b *OllamaClient) Name() string { return BackendOllama }

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (b *OllamaClient) Invoke(ctx context.Context, endpoint string, req *InvokeRequest) (*Result, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("ollama endpoint not configured: %w", kind.ErrConfigMissing)
	}
	if req.Model == "" {
		return nil, fmt.Errorf("ollama model not configured: %w", kind.ErrConfigMissing)
	}

	opts := map[string]interface{}{}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.TopK != nil {
		opts["top_k"] = *req.TopK
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		System:  req.SystemPrompt,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(endpoint, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %v: %w", err, kind.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama status %d: %s: %w", resp.StatusCode, msg, kind.ErrLLMFailed)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding generate response: %v: %w", err, kind.ErrLLMFailed)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama error: %s: %w", out.Error, kind.ErrLLMFailed)
	}
	if out.Response == "" {
		return nil, fmt.Errorf("empty ollama response: %w", kind.ErrLLMFailed)
	}

	res := &Result{
		Text:    out.Response,
		Model:   out.Model,
		Backend: BackendOllama,
	}
	if out.PromptEvalCount > 0 || out.EvalCount > 0 {
		res.Usage = &Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
			TotalTokens:  out.PromptEvalCount + out.EvalCount,
		}
	}
	return res, nil
}
