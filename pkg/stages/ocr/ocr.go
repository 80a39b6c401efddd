// Package ocr runs scan pages through the configured recognition engine and
// writes per-page Markdown, plus an hOCR word sidecar for engines that
// produce one.
package ocr

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/docid"
	"github.com/vellum-io/vellum/pkg/hocr"
	"github.com/vellum-io/vellum/pkg/layout"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	ocrengine "github.com/vellum-io/vellum/pkg/ocr"
	"github.com/vellum-io/vellum/pkg/pdfutil"
	"github.com/vellum-io/vellum/pkg/stages"
)

// Stage recognizes text on pages under the scan-pages prefix.
type Stage struct {
	gw       objectstore.Gateway
	raster   pdfutil.Rasterizer
	engine   ocrengine.Engine
	dpi      int
	bucket   string
	prefixes *config.PrefixConfig
	audit    audit.Store
	log      hclog.Logger
}

// New builds the OCR stage.
func New(gw objectstore.Gateway, raster pdfutil.Rasterizer, engine ocrengine.Engine,
	cfg *config.Config, auditStore audit.Store, log hclog.Logger) *Stage {
	return &Stage{
		gw:       gw,
		raster:   raster,
		engine:   engine,
		dpi:      cfg.OCR.DPI,
		bucket:   cfg.ObjectStore.Bucket,
		prefixes: cfg.Prefixes,
		audit:    auditStore,
		log:      log.Named("ocr"),
	}
}

func (s *Stage) Name() string { return "ocr" }

func (s *Stage) Match(bucket, key string) bool {
	return stages.Match(bucket, key, s.bucket, s.prefixes.ScanPages, "pdf")
}

func (s *Stage) Process(ctx context.Context, bucket, key string) error {
	id, page, err := docid.ParsePageKey(key, s.prefixes.ScanPages)
	if err != nil {
		return err
	}

	data, err := s.gw.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}

	req := ocrengine.Request{DPI: s.dpi}
	if ocrengine.ProducesHOCR(s.engine.Name()) {
		req.PagePDF = data
	} else {
		png, err := s.raster.RenderPNG(ctx, data, 1, s.dpi)
		if err != nil {
			return fmt.Errorf("rasterizing %s: %w", key, err)
		}
		req.ImagePNG = png
	}

	res, err := s.engine.Recognize(ctx, req)
	if err != nil {
		return fmt.Errorf("recognizing %s: %w", key, err)
	}

	text := res.PlainText
	if len(res.Boxes) > 0 {
		text = layout.Reconstruct(res.Boxes)
	}

	// The word sidecar goes first: the text-page write is what triggers
	// combine, and combine head-checks the sidecar when the engine produces
	// one.
	if len(res.Words) > 0 {
		sidecar, err := json.Marshal(hocr.PageFile{Words: res.Words})
		if err != nil {
			return fmt.Errorf("encoding hocr sidecar for %s: %w", key, err)
		}
		hocrKey := docid.PageKey(s.prefixes.HOCR, id, page, "json")
		if err := s.gw.Put(ctx, bucket, hocrKey, sidecar, "application/json"); err != nil {
			return fmt.Errorf("writing %s: %w", hocrKey, err)
		}
	}

	md := stages.PageMarkdown(page, text)
	dst := docid.PageKey(s.prefixes.TextPages, id, page, "md")
	if err := s.gw.Put(ctx, bucket, dst, []byte(md), "text/markdown"); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}

	if err := s.audit.Update(ctx, id, models.StatusExtracted,
		audit.WithInfo("engine", s.engine.Name())); err != nil {
		s.log.Warn("audit update failed", "document_id", id, "error", err)
	}
	s.log.Debug("recognized page", "document_id", id, "page", page,
		"engine", s.engine.Name(), "words", len(res.Words))
	return nil
}
