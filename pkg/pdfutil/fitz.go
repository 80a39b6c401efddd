package pdfutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/vellum-io/vellum/pkg/kind"
)

// HasText reports whether the page carries embedded text. Scanned pages
// rasterized into a PDF have none.
func (l *Lib) HasText(_ context.Context, data []byte, page int) (bool, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return false, fmt.Errorf("failed to open pdf: %v: %w", err, kind.ErrParse)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return false, fmt.Errorf("page %d out of range (1..%d): %w", page, doc.NumPage(), kind.ErrInputInvalid)
	}

	text, err := doc.Text(page - 1)
	if err != nil {
		return false, fmt.Errorf("failed to read page %d text: %v: %w", page, err, kind.ErrParse)
	}
	return strings.TrimSpace(text) != "", nil
}

// RenderImage rasterizes the page at the given DPI.
func (l *Lib) RenderImage(_ context.Context, data []byte, page, dpi int) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %v: %w", err, kind.ErrParse)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1..%d): %w", page, doc.NumPage(), kind.ErrInputInvalid)
	}

	img, err := doc.ImageDPI(page-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %v: %w", page, err, kind.ErrParse)
	}
	return img, nil
}

// RenderPNG rasterizes the page and encodes it as PNG.
func (l *Lib) RenderPNG(ctx context.Context, data []byte, page, dpi int) ([]byte, error) {
	img, err := l.RenderImage(ctx, data, page, dpi)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode page %d png: %w", page, err)
	}
	return buf.Bytes(), nil
}
