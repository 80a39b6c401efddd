package pdfutil

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/layout"
)

// TextBoxes returns positioned text runs for the 1-based page. PDF device
// space grows upward, so Y is negated to match the layout package's
// screen-ordered coordinates. Malformed content streams surface as parse
// errors rather than panics.
func (l *Lib) TextBoxes(_ context.Context, data []byte, page int) (boxes []layout.Box, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf content walk panicked: %v: %w", r, kind.ErrParse)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %v: %w", err, kind.ErrParse)
	}

	if page < 1 || page > reader.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1..%d): %w", page, reader.NumPage(), kind.ErrInputInvalid)
	}

	p := reader.Page(page)
	if p.V.IsNull() {
		return nil, nil
	}

	content := p.Content()
	boxes = make([]layout.Box, 0, len(content.Text))
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		boxes = append(boxes, layout.Box{
			Text: t.S,
			X:    t.X,
			Y:    -t.Y,
			W:    t.W,
			H:    t.FontSize,
		})
	}
	return boxes, nil
}
