// Package splitter fans a PDF out into single-page objects. The manifest is
// written after the last page so that its presence implies every page object
// exists; the combine stage relies on that ordering.
package splitter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/docid"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/pdfutil"
	"github.com/vellum-io/vellum/pkg/stages"
)

// maxPages matches the three-digit page numbering in object keys.
const maxPages = 999

// Stage splits PDFs arriving under the pdf-raw and office prefixes.
type Stage struct {
	gw       objectstore.Gateway
	prober   pdfutil.Prober
	splitter pdfutil.Splitter
	bucket   string
	prefixes *config.PrefixConfig
	audit    audit.Store
	log      hclog.Logger
}

// New builds the splitter stage.
func New(gw objectstore.Gateway, prober pdfutil.Prober, split pdfutil.Splitter,
	cfg *config.Config, auditStore audit.Store, log hclog.Logger) *Stage {
	return &Stage{
		gw:       gw,
		prober:   prober,
		splitter: split,
		bucket:   cfg.ObjectStore.Bucket,
		prefixes: cfg.Prefixes,
		audit:    auditStore,
		log:      log.Named("splitter"),
	}
}

func (s *Stage) Name() string { return "splitter" }

// Match accepts PDFs under pdf-raw and under the office prefix, where the
// classifier parks text-bearing PDFs.
func (s *Stage) Match(bucket, key string) bool {
	return stages.Match(bucket, key, s.bucket, s.prefixes.PDFRaw, "pdf") ||
		stages.Match(bucket, key, s.bucket, s.prefixes.Office, "pdf")
}

func (s *Stage) Process(ctx context.Context, bucket, key string) error {
	id := docid.FromKey(key)

	data, err := s.gw.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}

	n, err := s.prober.PageCount(ctx, data)
	if err != nil {
		return fmt.Errorf("counting pages of %s: %w", key, err)
	}
	if n < 1 {
		return fmt.Errorf("document %s reports %d pages: %w", id, n, kind.ErrParse)
	}
	if n > maxPages {
		s.auditUpdate(ctx, id, models.StatusFailed,
			audit.WithInfo("error", fmt.Sprintf("%d pages exceeds the %d page limit", n, maxPages)))
		return fmt.Errorf("document %s has %d pages, limit %d: %w", id, n, maxPages, kind.ErrTooManyPages)
	}

	for i := 1; i <= n; i++ {
		page, err := s.splitter.ExtractPage(ctx, data, i)
		if err != nil {
			return fmt.Errorf("extracting page %d of %s: %w", i, key, err)
		}
		pageKey := docid.PageKey(s.prefixes.PDFPages, id, i, "pdf")
		if err := s.gw.Put(ctx, bucket, pageKey, page, "application/pdf"); err != nil {
			return fmt.Errorf("writing %s: %w", pageKey, err)
		}
	}

	manifest, err := json.Marshal(stages.Manifest{DocumentID: id, Pages: n})
	if err != nil {
		return fmt.Errorf("encoding manifest for %s: %w", id, err)
	}
	manifestKey := docid.ManifestKey(s.prefixes.PDFPages, id)
	if err := s.gw.Put(ctx, bucket, manifestKey, manifest, "application/json"); err != nil {
		return fmt.Errorf("writing %s: %w", manifestKey, err)
	}

	s.auditUpdate(ctx, id, models.StatusSplit, audit.WithPageCount(n))
	s.log.Info("split document", "document_id", id, "pages", n)
	return nil
}

func (s *Stage) auditUpdate(ctx context.Context, id string, status models.DocumentStatus, opts ...audit.UpdateOption) {
	if err := s.audit.Update(ctx, id, status, opts...); err != nil {
		s.log.Warn("audit update failed", "document_id", id, "status", status, "error", err)
	}
}
