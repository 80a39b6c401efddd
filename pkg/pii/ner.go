package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/pkg/kind"
)

// NERClient recognizes named entities in text. Implementations pick the
// model per domain.
type NERClient interface {
	Detect(ctx context.Context, text string, domain Domain) ([]Entity, error)
}

// HTTPNERClient speaks the NER service protocol: POST /ner with
// {text, domain} and typed spans back. The service routes Medical and Legal
// to their fine-tuned models and everything else to the general one.
type HTTPNERClient struct {
	endpoint string
	client   *http.Client
	log      hclog.Logger
}

var _ NERClient = (*HTTPNERClient)(nil)

// NewHTTPNERClient builds a client for the given endpoint.
func NewHTTPNERClient(endpoint string, timeout time.Duration, log hclog.Logger) *HTTPNERClient {
	return &HTTPNERClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.Named("ner"),
	}
}

func (c *HTTPNERClient) Detect(ctx context.Context, text string, domain Domain) ([]Entity, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"text":   text,
		"domain": string(domain),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var body []byte
	op := func() error {
		var opErr error
		body, opErr = c.post(ctx, payload)
		return opErr
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}

	var resp struct {
		Entities []Entity `json:"entities"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode ner response: %v: %w", err, kind.ErrParse)
	}
	return resp.Entities, nil
}

// post sends one attempt. Non-2xx responses are permanent; transport errors
// retry.
func (c *HTTPNERClient) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/ner", bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner request failed: %v: %w", err, kind.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, backoff.Permanent(fmt.Errorf("ner service returned status %d: %s",
			resp.StatusCode, string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ner response: %w", err)
	}
	return body, nil
}
