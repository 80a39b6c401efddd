// Package llm routes prompts to language-model backends and invokes them.
//
// The router classifies each prompt, picks a backend, and enqueues the
// request on the invocation topic; it never calls a model itself. The
// invoker consumes that topic, selects a healthy endpoint per backend,
// and posts the request with per-backend deadlines and sampling defaults.
package llm

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Backend labels. Config allowlists and queue envelopes use these names.
const (
	BackendBedrock = "bedrock-equivalent"
	BackendOllama  = "ollama-equivalent"
)

// RouteRequest is the router's input. Keys the router does not recognize
// land in Extra and are republished untouched so downstream consumers can
// carry correlation ids or tenant fields through the queue.
type RouteRequest struct {
	Prompt       string                 `mapstructure:"prompt" json:"prompt"`
	Backend      string                 `mapstructure:"backend" json:"backend,omitempty"`
	Strategy     string                 `mapstructure:"strategy" json:"strategy,omitempty"`
	SystemPrompt string                 `mapstructure:"system_prompt" json:"system_prompt,omitempty"`
	Model        string                 `mapstructure:"model" json:"model,omitempty"`
	Extra        map[string]interface{} `mapstructure:",remain" json:"-"`
}

// DecodeRouteRequest builds a RouteRequest from a loose payload map,
// catching unknown keys in Extra.
func DecodeRouteRequest(payload map[string]interface{}) (*RouteRequest, error) {
	var req RouteRequest
	if err := mapstructure.Decode(payload, &req); err != nil {
		return nil, fmt.Errorf("decoding route request: %w", err)
	}
	return &req, nil
}

// Envelope flattens the request back into a single map for the queue:
// known fields plus everything from Extra, with the chosen backend set.
func (r *RouteRequest) Envelope(backend string) map[string]interface{} {
	env := make(map[string]interface{}, len(r.Extra)+5)
	for k, v := range r.Extra {
		env[k] = v
	}
	env["prompt"] = r.Prompt
	env["backend"] = backend
	if r.Model != "" {
		env["model"] = r.Model
	}
	if r.SystemPrompt != "" {
		env["system_prompt"] = r.SystemPrompt
	}
	return env
}

// RouteResponse is returned to the caller after a successful enqueue.
type RouteResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// InvokeRequest is one dequeued invocation.
type InvokeRequest struct {
	Backend      string                 `mapstructure:"backend" json:"backend"`
	Prompt       string                 `mapstructure:"prompt" json:"prompt"`
	Model        string                 `mapstructure:"model" json:"model,omitempty"`
	SystemPrompt string                 `mapstructure:"system_prompt" json:"system_prompt,omitempty"`
	MaxTokens    int                    `mapstructure:"max_tokens" json:"max_tokens,omitempty"`
	Temperature  *float64               `mapstructure:"temperature" json:"temperature,omitempty"`
	TopP         *float64               `mapstructure:"top_p" json:"top_p,omitempty"`
	TopK         *int                   `mapstructure:"top_k" json:"top_k,omitempty"`
	Extra        map[string]interface{} `mapstructure:",remain" json:"-"`
}

// DecodeInvokeRequest builds an InvokeRequest from a dequeued payload map.
func DecodeInvokeRequest(payload map[string]interface{}) (*InvokeRequest, error) {
	var req InvokeRequest
	if err := mapstructure.Decode(payload, &req); err != nil {
		return nil, fmt.Errorf("decoding invoke request: %w", err)
	}
	return &req, nil
}

// Usage reports token consumption when the backend provides it.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`
}

// Result is the normalized backend response.
type Result struct {
	Text    string `json:"text"`
	Model   string `json:"model"`
	Backend string `json:"backend"`
	Usage   *Usage `json:"usage,omitempty"`
}
