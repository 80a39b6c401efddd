// Package pdfutil wraps the PDF libraries behind narrow interfaces so stages
// can be tested with fakes. Page numbers are 1-based throughout, matching
// the page_NNN object keys.
package pdfutil

import (
	"context"
	"image"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/pkg/layout"
)

// Prober answers page-count and has-embedded-text questions.
type Prober interface {
	PageCount(ctx context.Context, data []byte) (int, error)
	HasText(ctx context.Context, data []byte, page int) (bool, error)
}

// Splitter extracts one page as a standalone PDF.
type Splitter interface {
	ExtractPage(ctx context.Context, data []byte, page int) ([]byte, error)
}

// Rasterizer renders a page to pixels.
type Rasterizer interface {
	RenderPNG(ctx context.Context, data []byte, page, dpi int) ([]byte, error)
	RenderImage(ctx context.Context, data []byte, page, dpi int) (image.Image, error)
}

// BoxReader returns positioned text runs for layout reconstruction.
type BoxReader interface {
	TextBoxes(ctx context.Context, data []byte, page int) ([]layout.Box, error)
}

// Lib implements every interface over go-fitz, pdfcpu, and ledongthuc/pdf.
type Lib struct {
	log hclog.Logger
}

// New returns the library-backed implementation.
func New(log hclog.Logger) *Lib {
	return &Lib{log: log.Named("pdfutil")}
}

var (
	_ Prober     = (*Lib)(nil)
	_ Splitter   = (*Lib)(nil)
	_ Rasterizer = (*Lib)(nil)
	_ BoxReader  = (*Lib)(nil)
)
