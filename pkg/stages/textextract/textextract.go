// Package textextract turns pages with embedded text into per-page Markdown
// using positioned text runs and layout reconstruction.
package textextract

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/docid"
	"github.com/vellum-io/vellum/pkg/layout"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/pdfutil"
	"github.com/vellum-io/vellum/pkg/stages"
)

// Stage extracts embedded text from pages under the text-pages-raw prefix.
type Stage struct {
	gw       objectstore.Gateway
	boxes    pdfutil.BoxReader
	bucket   string
	prefixes *config.PrefixConfig
	audit    audit.Store
	log      hclog.Logger
}

// New builds the text extractor stage.
func New(gw objectstore.Gateway, boxes pdfutil.BoxReader, cfg *config.Config,
	auditStore audit.Store, log hclog.Logger) *Stage {
	return &Stage{
		gw:       gw,
		boxes:    boxes,
		bucket:   cfg.ObjectStore.Bucket,
		prefixes: cfg.Prefixes,
		audit:    auditStore,
		log:      log.Named("textextract"),
	}
}

func (s *Stage) Name() string { return "textextract" }

func (s *Stage) Match(bucket, key string) bool {
	return stages.Match(bucket, key, s.bucket, s.prefixes.TextPagesRaw, "pdf")
}

func (s *Stage) Process(ctx context.Context, bucket, key string) error {
	id, page, err := docid.ParsePageKey(key, s.prefixes.TextPagesRaw)
	if err != nil {
		return err
	}

	data, err := s.gw.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}

	boxes, err := s.boxes.TextBoxes(ctx, data, 1)
	if err != nil {
		return fmt.Errorf("extracting text runs from %s: %w", key, err)
	}

	md := stages.PageMarkdown(page, layout.Reconstruct(boxes))
	dst := docid.PageKey(s.prefixes.TextPages, id, page, "md")
	if err := s.gw.Put(ctx, bucket, dst, []byte(md), "text/markdown"); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}

	if err := s.audit.Update(ctx, id, models.StatusExtracted); err != nil {
		s.log.Warn("audit update failed", "document_id", id, "error", err)
	}
	s.log.Debug("extracted page text", "document_id", id, "page", page, "boxes", len(boxes))
	return nil
}
