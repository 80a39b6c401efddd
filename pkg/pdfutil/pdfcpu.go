package pdfutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/vellum-io/vellum/pkg/kind"
)

// PageCount returns the number of pages in the document.
func (l *Lib) PageCount(_ context.Context, data []byte) (int, error) {
	tmp, cleanup, err := writeTemp(data)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	pdfCtx, err := api.ReadContextFile(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to read pdf context: %v: %w", err, kind.ErrParse)
	}
	return pdfCtx.PageCount, nil
}

// ExtractPage returns a standalone single-page PDF for the 1-based page.
func (l *Lib) ExtractPage(_ context.Context, data []byte, page int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d out of range: %w", page, kind.ErrInputInvalid)
	}

	tmp, cleanup, err := writeTemp(data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out := filepath.Join(filepath.Dir(tmp), "page.pdf")
	conf := model.NewDefaultConfiguration()
	if err := api.TrimFile(tmp, out, []string{strconv.Itoa(page)}, conf); err != nil {
		return nil, fmt.Errorf("failed to extract page %d: %v: %w", page, err, kind.ErrParse)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted page %d: %w", page, err)
	}
	return b, nil
}

// writeTemp materializes the document for pdfcpu's file-based API. The
// cleanup removes the whole scratch directory.
func writeTemp(data []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "vellum-pdf-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	path := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("failed to write temp pdf: %w", err)
	}
	return path, func() { os.RemoveAll(dir) }, nil
}
