// Package redact turns detected entity spans into painted-over document
// artifacts. Spans are resolved to hOCR word boxes through the offset
// index, deduped per page, and painted as opaque white rectangles over a
// fresh raster of each page. The painted rasters are rebuilt into a PDF.
package redact

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"

	"github.com/go-pdf/fpdf"
	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/pkg/hocr"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/pdfutil"
	"github.com/vellum-io/vellum/pkg/pii"
)

// PageBoxes holds the redaction rectangles per page number. Boxes are hOCR
// pixel coordinates [x1 y1 x2 y2] and are unique within a page.
type PageBoxes map[int][][4]int

// Total counts boxes across all pages.
func (b PageBoxes) Total() int {
	n := 0
	for _, boxes := range b {
		n += len(boxes)
	}
	return n
}

// MapEntities resolves every entity's [start, end) span to word boxes
// through a fresh offset index over the document.
func MapEntities(doc *hocr.Document, entities []pii.Entity) PageBoxes {
	return MapEntitiesIndexed(hocr.NewOffsetIndex(doc), entities)
}

// MapEntitiesIndexed is MapEntities over a prebuilt index. Spans outside
// the index's coverage contribute nothing; a word shared by several
// entities yields one box.
func MapEntitiesIndexed(idx *hocr.OffsetIndex, entities []pii.Entity) PageBoxes {
	boxes := make(PageBoxes)
	seen := make(map[int]map[[4]int]struct{})
	for _, e := range entities {
		for _, ref := range idx.Find(e.Start, e.End) {
			onPage := seen[ref.Page]
			if onPage == nil {
				onPage = make(map[[4]int]struct{})
				seen[ref.Page] = onPage
			}
			if _, dup := onPage[ref.Word.BBox]; dup {
				continue
			}
			onPage[ref.Word.BBox] = struct{}{}
			boxes[ref.Page] = append(boxes[ref.Page], ref.Word.BBox)
		}
	}
	return boxes
}

// Painter rasterizes pages and paints redaction boxes. Box coordinates are
// scaled from hOCR raster space to the painter's render DPI.
type Painter struct {
	lib       *pdfutil.Lib
	renderDPI int
	hocrDPI   int
	log       hclog.Logger
}

// NewPainter builds a painter. hocrDPI is the DPI the OCR raster used; the
// boxes in incoming hOCR are pixels at that resolution.
func NewPainter(lib *pdfutil.Lib, renderDPI, hocrDPI int, log hclog.Logger) *Painter {
	if renderDPI <= 0 {
		renderDPI = 150
	}
	if hocrDPI <= 0 {
		hocrDPI = 300
	}
	return &Painter{
		lib:       lib,
		renderDPI: renderDPI,
		hocrDPI:   hocrDPI,
		log:       log.Named("redact"),
	}
}

// RedactPages renders each single-page PDF, paints its boxes, and rebuilds
// one PDF from the painted rasters. Every page is rendered, boxed or not,
// so the output carries the full document. The text layer does not survive
// rasterization, which is the point.
func (p *Painter) RedactPages(ctx context.Context, pages [][]byte, boxes PageBoxes) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to redact: %w", kind.ErrInputInvalid)
	}

	scale := float64(p.renderDPI) / float64(p.hocrDPI)
	doc := fpdf.New("P", "pt", "A4", "")
	for i, page := range pages {
		img, err := p.lib.RenderImage(ctx, page, 1, p.renderDPI)
		if err != nil {
			return nil, fmt.Errorf("rendering page %d: %w", i+1, err)
		}
		rgba := toRGBA(img)
		paint(rgba, boxes[i+1], scale)

		var buf bytes.Buffer
		if err := png.Encode(&buf, rgba); err != nil {
			return nil, fmt.Errorf("encoding page %d: %w", i+1, err)
		}

		// 72 points per inch keeps the page its original physical size.
		w := float64(rgba.Bounds().Dx()) * 72 / float64(p.renderDPI)
		h := float64(rgba.Bounds().Dy()) * 72 / float64(p.renderDPI)
		name := fmt.Sprintf("page_%03d", i+1)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		doc.RegisterImageOptionsReader(name, opts, &buf)
		doc.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		doc.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
	}

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return nil, fmt.Errorf("building redacted pdf: %v: %w", err, kind.ErrParse)
	}
	p.log.Debug("rebuilt redacted pdf", "pages", len(pages), "boxes", boxes.Total())
	return out.Bytes(), nil
}

// RedactImage paints boxes over a standalone raster and re-encodes it as
// PNG. Coordinates are taken as image pixels; no DPI scaling applies.
func (p *Painter) RedactImage(data []byte, boxes [][4]int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %v: %w", err, kind.ErrParse)
	}
	rgba := toRGBA(img)
	paint(rgba, boxes, 1)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("encoding redacted image: %w", err)
	}
	return buf.Bytes(), nil
}

// paint fills each scaled box with opaque white. Boxes are grown outward to
// the nearest pixel so glyph edges never survive rounding.
func paint(img *image.RGBA, boxes [][4]int, scale float64) {
	for _, b := range boxes {
		r := image.Rect(
			int(math.Floor(float64(b[0])*scale)),
			int(math.Floor(float64(b[1])*scale)),
			int(math.Ceil(float64(b[2])*scale)),
			int(math.Ceil(float64(b[3])*scale)),
		).Intersect(img.Bounds())
		draw.Draw(img, r, image.White, image.Point{}, draw.Src)
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}
