package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/pkg/hocr"
	"github.com/vellum-io/vellum/pkg/kind"
)

// wordBoxEngine speaks the JSON protocol of the easyocr/paddleocr services:
// POST /ocr with a base64 PNG, words with pixel boxes back.
type wordBoxEngine struct {
	name     string
	endpoint string
	client   *http.Client
	log      hclog.Logger
}

func newWordBoxEngine(name, endpoint string, timeout time.Duration, log hclog.Logger) *wordBoxEngine {
	return &wordBoxEngine{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.Named(name),
	}
}

func (e *wordBoxEngine) Name() string { return e.name }

func (e *wordBoxEngine) Recognize(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"image": base64.StdEncoding.EncodeToString(req.ImagePNG),
		"dpi":   req.DPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := postJSON(ctx, e.client, e.endpoint+"/ocr", payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}

	var resp struct {
		Words []struct {
			BBox       [4]int  `json:"bbox"`
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"words"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %v: %w", e.name, err, kind.ErrOCRFailed)
	}

	words := make([]hocr.Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		if w.Text == "" {
			continue
		}
		words = append(words, hocr.Word{BBox: w.BBox, Text: w.Text})
	}
	return &Result{Boxes: boxesFromWords(words)}, nil
}

// plainTextEngine speaks the trocr/docling protocol: base64 PNG in, a text
// field out. No positions.
type plainTextEngine struct {
	name     string
	endpoint string
	client   *http.Client
	log      hclog.Logger
}

func newPlainTextEngine(name, endpoint string, timeout time.Duration, log hclog.Logger) *plainTextEngine {
	return &plainTextEngine{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.Named(name),
	}
}

func (e *plainTextEngine) Name() string { return e.name }

func (e *plainTextEngine) Recognize(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"image": base64.StdEncoding.EncodeToString(req.ImagePNG),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := postJSON(ctx, e.client, e.endpoint+"/recognize", payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %v: %w", e.name, err, kind.ErrOCRFailed)
	}
	return &Result{PlainText: resp.Text}, nil
}

// hocrEngine speaks the ocrmypdf sidecar protocol: the single-page PDF in,
// hOCR HTML out.
type hocrEngine struct {
	endpoint string
	client   *http.Client
	log      hclog.Logger
}

func newHOCREngine(endpoint string, timeout time.Duration, log hclog.Logger) *hocrEngine {
	return &hocrEngine{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.Named("ocrmypdf"),
	}
}

func (e *hocrEngine) Name() string { return "ocrmypdf" }

func (e *hocrEngine) Recognize(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.endpoint+"/hocr", bytes.NewReader(req.PagePDF))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/pdf")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ocrmypdf request failed: %v: %w", err, kind.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ocrmypdf returned status %d: %s: %w", resp.StatusCode, string(body), kind.ErrOCRFailed)
	}

	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read hocr response: %w", err)
	}

	doc, err := hocr.Parse(html)
	if err != nil {
		return nil, fmt.Errorf("ocrmypdf: %w", err)
	}

	var words []hocr.Word
	for _, page := range doc.Pages {
		words = append(words, page.Words...)
	}
	return &Result{
		Boxes: boxesFromWords(words),
		Words: words,
	}, nil
}

// postJSON sends a JSON payload and returns the response body. Transport
// failures are retryable; non-200 responses are not.
func postJSON(ctx context.Context, client *http.Client, url string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v: %w", err, kind.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ocr service returned status %d: %s: %w", resp.StatusCode, string(body), kind.ErrOCRFailed)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
