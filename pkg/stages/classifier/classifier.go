// Package classifier routes intake objects by document type. Text-bearing
// PDFs and office documents go to the office prefix, scan-only PDFs to
// pdf-raw, and anything else is skipped with a log.
package classifier

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/docid"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/stages"
)

// TextProber answers whether a page of a PDF carries embedded text.
type TextProber interface {
	HasText(ctx context.Context, data []byte, page int) (bool, error)
}

// Stage classifies objects written under the raw prefix.
type Stage struct {
	gw       objectstore.Gateway
	prober   TextProber
	bucket   string
	prefixes *config.PrefixConfig
	audit    audit.Store
	now      func() time.Time
	log      hclog.Logger
}

// New builds the classifier stage.
func New(gw objectstore.Gateway, prober TextProber, cfg *config.Config, auditStore audit.Store, log hclog.Logger) *Stage {
	return &Stage{
		gw:       gw,
		prober:   prober,
		bucket:   cfg.ObjectStore.Bucket,
		prefixes: cfg.Prefixes,
		audit:    auditStore,
		now:      time.Now,
		log:      log.Named("classifier"),
	}
}

func (s *Stage) Name() string { return "classifier" }

func (s *Stage) Match(bucket, key string) bool {
	return stages.Match(bucket, key, s.bucket, s.prefixes.Raw)
}

// Process registers the document and copies it to the prefix its type
// belongs to. The copy is what notifies the next stage.
func (s *Stage) Process(ctx context.Context, bucket, key string) error {
	id := docid.FromKey(key)
	if err := s.audit.CreateIfAbsent(ctx, id, models.StatusUploaded); err != nil {
		s.log.Warn("audit create failed", "document_id", id, "error", err)
	}

	base := path.Base(key)
	switch ext := docid.Ext(key); ext {
	case "docx", "pptx", "xlsx":
		return s.route(ctx, bucket, key, s.prefixes.Office+base)
	case "pdf":
		data, err := s.gw.Get(ctx, bucket, key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		hasText, err := s.prober.HasText(ctx, data, 1)
		if err != nil {
			return fmt.Errorf("probing first page of %s: %w", key, err)
		}
		dst := s.prefixes.PDFRaw + base
		if hasText {
			dst = s.prefixes.Office + base
		}
		return s.route(ctx, bucket, key, dst)
	default:
		s.log.Info("skipping unsupported document type", "key", key, "extension", ext)
		return nil
	}
}

// route copies the raw object onward and marks the source for the reaper's
// retention sweep. A failed tag is logged, not fatal: the copy already
// notified the next stage and a lingering raw object is harmless.
func (s *Stage) route(ctx context.Context, bucket, key, dst string) error {
	if err := s.gw.Copy(ctx, bucket, key, bucket, dst); err != nil {
		return fmt.Errorf("routing %s to %s: %w", key, dst, err)
	}
	tags := map[string]string{
		objectstore.TagPendingDelete: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.gw.Tag(ctx, bucket, key, tags); err != nil {
		s.log.Warn("failed to tag source for deletion", "key", key, "error", err)
	}
	s.log.Info("classified document", "key", key, "destination", dst)
	return nil
}
