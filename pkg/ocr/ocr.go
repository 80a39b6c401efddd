// Package ocr dispatches page recognition to remote OCR services. Engines
// differ in what they return: easyocr and paddleocr give positioned word
// boxes, trocr and docling give plain text, ocrmypdf gives hOCR HTML.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/hocr"
	"github.com/vellum-io/vellum/pkg/layout"
)

// Request carries one page to recognize. Word-box and plain-text engines
// consume the rasterized PNG; ocrmypdf consumes the single-page PDF.
type Request struct {
	ImagePNG []byte
	PagePDF  []byte
	DPI      int
}

// Result is the recognized page. Exactly one of Boxes or PlainText carries
// the text; Words is set only by hOCR-producing engines.
type Result struct {
	Boxes     []layout.Box
	PlainText string
	Words     []hocr.Word
}

// Engine recognizes a single page.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, req Request) (*Result, error)
}

// ProducesHOCR reports whether an engine writes per-page hOCR JSON that the
// combine stage must wait for.
func ProducesHOCR(engine string) bool {
	return strings.EqualFold(engine, "ocrmypdf")
}

// New builds the configured engine. Unknown engines fail here, at the point
// of use, not at startup.
func New(cfg *config.OCRConfig, log hclog.Logger) (Engine, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch strings.ToLower(cfg.Engine) {
	case "easyocr":
		return newWordBoxEngine("easyocr", cfg.Endpoint, timeout, log), nil
	case "paddleocr":
		return newWordBoxEngine("paddleocr", cfg.Endpoint, timeout, log), nil
	case "trocr":
		return newPlainTextEngine("trocr", cfg.Endpoint, timeout, log), nil
	case "docling":
		return newPlainTextEngine("docling", cfg.Endpoint, timeout, log), nil
	case "ocrmypdf":
		return newHOCREngine(cfg.Endpoint, timeout, log), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
	}
}

// boxesFromWords converts hOCR pixel boxes into layout boxes.
func boxesFromWords(words []hocr.Word) []layout.Box {
	boxes := make([]layout.Box, 0, len(words))
	for _, w := range words {
		boxes = append(boxes, layout.Box{
			Text: w.Text,
			X:    float64(w.BBox[0]),
			Y:    float64(w.BBox[1]),
			W:    float64(w.BBox[2] - w.BBox[0]),
			H:    float64(w.BBox[3] - w.BBox[1]),
		})
	}
	return boxes
}
