package redact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/docid"
	"github.com/vellum-io/vellum/pkg/hocr"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	ocrengine "github.com/vellum-io/vellum/pkg/ocr"
	"github.com/vellum-io/vellum/pkg/pii"
	"github.com/vellum-io/vellum/pkg/stages"
)

// EntityDetector finds sensitive spans in text. *pii.Detector satisfies it.
type EntityDetector interface {
	Detect(ctx context.Context, text string, domain pii.Domain) ([]pii.Entity, error)
}

// Stage redacts combined PDF documents, triggered by text-docs writes. The
// combine stage writes the hOCR document after the text document, so the
// stage polls for it before scanning. Detection runs over the offset
// index's canonical text; that is the text the entity offsets refer to.
type Stage struct {
	gw       objectstore.Gateway
	detector EntityDetector
	painter  *Painter
	engine   string
	domain   pii.Domain
	bucket   string
	prefixes *config.PrefixConfig
	wait     time.Duration
	poll     time.Duration
	audit    audit.Store
	log      hclog.Logger
}

// New builds the redact stage.
func New(gw objectstore.Gateway, detector EntityDetector, painter *Painter, cfg *config.Config, auditStore audit.Store, log hclog.Logger) *Stage {
	return &Stage{
		gw:       gw,
		detector: detector,
		painter:  painter,
		engine:   cfg.OCR.Engine,
		domain:   pii.ParseDomain(cfg.PII.Domain),
		bucket:   cfg.ObjectStore.Bucket,
		prefixes: cfg.Prefixes,
		wait:     time.Duration(cfg.Redact.WaitTimeoutSeconds) * time.Second,
		poll:     time.Duration(cfg.Redact.PollIntervalSeconds) * time.Second,
		audit:    auditStore,
		log:      log.Named("redact"),
	}
}

func (s *Stage) Name() string { return "redact" }

func (s *Stage) Match(bucket, key string) bool {
	return stages.Match(bucket, key, s.bucket, s.prefixes.TextDocs, "json")
}

func (s *Stage) Process(ctx context.Context, bucket, key string) error {
	id := docid.FromKey(key)

	doc, err := s.loadDocument(ctx, bucket, key)
	if err != nil {
		return err
	}
	if doc.Type != "pdf" {
		s.log.Debug("document has no raster pages, skipping",
			"document_id", id, "type", doc.Type)
		return nil
	}
	if !ocrengine.ProducesHOCR(s.engine) {
		s.log.Debug("engine writes no hocr, skipping redaction",
			"document_id", id, "engine", s.engine)
		return nil
	}

	hocrDoc, err := s.waitForHOCR(ctx, bucket, id)
	if errors.Is(err, kind.ErrTimeout) {
		s.auditUpdate(ctx, id, models.StatusTimeout, audit.WithInfo("waited", s.wait.String()))
		s.log.Error("hocr never arrived, abandoning redaction",
			"document_id", id, "waited", s.wait)
		return nil
	}
	if err != nil {
		return err
	}

	idx := hocr.NewOffsetIndex(hocrDoc)
	entities, err := s.detector.Detect(ctx, idx.Text(), s.domain)
	if err != nil {
		return fmt.Errorf("detecting entities in %s: %w", id, err)
	}

	s.auditUpdate(ctx, id, models.StatusPIIDetected, audit.WithInfo("entities", len(entities)))
	if len(entities) == 0 {
		s.log.Info("document is clean, nothing to redact", "document_id", id)
		return nil
	}

	s.auditUpdate(ctx, id, models.StatusRedactionStarted)
	if err := s.redact(ctx, bucket, id, doc.PageCount, idx, entities); err != nil {
		s.auditUpdate(ctx, id, models.StatusRedactionError, audit.WithInfo("error", err.Error()))
		return err
	}
	return nil
}

func (s *Stage) redact(ctx context.Context, bucket, id string, pageCount int, idx *hocr.OffsetIndex, entities []pii.Entity) error {
	boxes := MapEntitiesIndexed(idx, entities)

	pages := make([][]byte, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		pageKey := docid.PageKey(s.prefixes.PDFPages, id, i, "pdf")
		body, err := s.gw.Get(ctx, bucket, pageKey)
		if err != nil {
			return fmt.Errorf("reading %s: %w", pageKey, err)
		}
		pages = append(pages, body)
	}

	redacted, err := s.painter.RedactPages(ctx, pages, boxes)
	if err != nil {
		return err
	}

	dst := docid.DocKey(s.prefixes.Redacted, id, "pdf")
	if err := s.gw.Put(ctx, bucket, dst, redacted, "application/pdf"); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	s.log.Info("redacted document",
		"document_id", id, "pages", pageCount, "boxes", boxes.Total(), "key", dst)
	return nil
}

// waitForHOCR polls for the combined hOCR document until it appears or the
// overall wait elapses. Timeout is terminal for the document, not a
// redelivery case.
func (s *Stage) waitForHOCR(ctx context.Context, bucket, id string) (*hocr.Document, error) {
	key := docid.DocKey(s.prefixes.HOCR, id, "json")
	deadline := time.Now().Add(s.wait)
	for {
		raw, err := s.gw.Get(ctx, bucket, key)
		if err == nil {
			var doc hocr.Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, fmt.Errorf("decoding %s: %v: %w", key, err, kind.ErrParse)
			}
			return &doc, nil
		}
		if !errors.Is(err, kind.ErrNotFound) {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("hocr for %s not written within %s: %w", id, s.wait, kind.ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

func (s *Stage) loadDocument(ctx context.Context, bucket, key string) (*stages.DocumentText, error) {
	raw, err := s.gw.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	var doc stages.DocumentText
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %v: %w", key, err, kind.ErrParse)
	}
	return &doc, nil
}

func (s *Stage) auditUpdate(ctx context.Context, id string, status models.DocumentStatus, opts ...audit.UpdateOption) {
	if err := s.audit.Update(ctx, id, status, opts...); err != nil {
		s.log.Warn("audit update failed", "document_id", id, "status", status, "error", err)
	}
}
