// Package combine joins per-page Markdown back into one document. The join
// gate is the splitter's manifest plus a head-check of every page object;
// documents whose pages have not all arrived are left for the next
// text-page notification to retry.
package combine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/docid"
	"github.com/vellum-io/vellum/pkg/hocr"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	ocrengine "github.com/vellum-io/vellum/pkg/ocr"
	"github.com/vellum-io/vellum/pkg/stages"
)

// Stage combines page texts triggered by writes under the text-pages prefix.
type Stage struct {
	gw       objectstore.Gateway
	engine   string
	bucket   string
	prefixes *config.PrefixConfig
	audit    audit.Store
	log      hclog.Logger
}

// New builds the combine stage. The OCR engine name decides whether hOCR
// sidecars join the head-check.
func New(gw objectstore.Gateway, cfg *config.Config, auditStore audit.Store, log hclog.Logger) *Stage {
	return &Stage{
		gw:       gw,
		engine:   cfg.OCR.Engine,
		bucket:   cfg.ObjectStore.Bucket,
		prefixes: cfg.Prefixes,
		audit:    auditStore,
		log:      log.Named("combine"),
	}
}

func (s *Stage) Name() string { return "combine" }

func (s *Stage) Match(bucket, key string) bool {
	return stages.Match(bucket, key, s.bucket, s.prefixes.TextPages, "md")
}

func (s *Stage) Process(ctx context.Context, bucket, key string) error {
	id, _, err := docid.ParsePageKey(key, s.prefixes.TextPages)
	if err != nil {
		return err
	}

	manifest, err := s.loadManifest(ctx, bucket, id)
	if err != nil {
		return err
	}
	if manifest == nil {
		s.log.Debug("manifest not written yet, leaving document for later", "document_id", id)
		return nil
	}

	needHOCR := ocrengine.ProducesHOCR(s.engine)
	complete, err := s.allPagesExist(ctx, bucket, id, manifest.Pages, needHOCR)
	if err != nil {
		return err
	}
	if !complete {
		s.auditUpdate(ctx, id, models.StatusMissingPages)
		s.log.Debug("pages still missing, leaving document for later",
			"document_id", id, "pages", manifest.Pages)
		return nil
	}

	if err := s.writeDocument(ctx, bucket, id, manifest.Pages); err != nil {
		return err
	}
	if needHOCR {
		if err := s.writeHOCRDocument(ctx, bucket, id, manifest.Pages); err != nil {
			return err
		}
	}

	s.auditUpdate(ctx, id, models.StatusCombined, audit.WithPageCount(manifest.Pages))
	s.log.Info("combined document", "document_id", id, "pages", manifest.Pages)
	return nil
}

// loadManifest returns nil without error when the manifest does not exist:
// either the splitter has not finished or the document never went through it.
func (s *Stage) loadManifest(ctx context.Context, bucket, id string) (*stages.Manifest, error) {
	manifestKey := docid.ManifestKey(s.prefixes.PDFPages, id)
	raw, err := s.gw.Get(ctx, bucket, manifestKey)
	if errors.Is(err, kind.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", manifestKey, err)
	}

	var m stages.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %v: %w", manifestKey, err, kind.ErrParse)
	}
	if m.Pages < 1 {
		return nil, fmt.Errorf("manifest %s declares %d pages: %w", manifestKey, m.Pages, kind.ErrParse)
	}
	return &m, nil
}

func (s *Stage) allPagesExist(ctx context.Context, bucket, id string, pages int, needHOCR bool) (bool, error) {
	for i := 1; i <= pages; i++ {
		ok, err := s.exists(ctx, bucket, docid.PageKey(s.prefixes.TextPages, id, i, "md"))
		if err != nil || !ok {
			return false, err
		}
		if needHOCR {
			ok, err = s.exists(ctx, bucket, docid.PageKey(s.prefixes.HOCR, id, i, "json"))
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func (s *Stage) exists(ctx context.Context, bucket, key string) (bool, error) {
	ok, err := s.gw.Exists(ctx, bucket, key)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return ok, nil
}

func (s *Stage) writeDocument(ctx context.Context, bucket, id string, pages int) error {
	doc := stages.DocumentText{
		DocumentID: id,
		Type:       "pdf",
		PageCount:  pages,
		Pages:      make([]string, 0, pages),
	}
	for i := 1; i <= pages; i++ {
		pageKey := docid.PageKey(s.prefixes.TextPages, id, i, "md")
		body, err := s.gw.Get(ctx, bucket, pageKey)
		if err != nil {
			return fmt.Errorf("reading %s: %w", pageKey, err)
		}
		doc.Pages = append(doc.Pages, string(body))
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", id, err)
	}
	dst := docid.DocKey(s.prefixes.TextDocs, id, "json")
	if err := s.gw.Put(ctx, bucket, dst, body, "application/json"); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}

func (s *Stage) writeHOCRDocument(ctx context.Context, bucket, id string, pages int) error {
	doc := hocr.Document{
		DocumentID: id,
		Pages:      make([]hocr.Page, 0, pages),
	}
	for i := 1; i <= pages; i++ {
		pageKey := docid.PageKey(s.prefixes.HOCR, id, i, "json")
		raw, err := s.gw.Get(ctx, bucket, pageKey)
		if err != nil {
			return fmt.Errorf("reading %s: %w", pageKey, err)
		}
		var sidecar hocr.PageFile
		if err := json.Unmarshal(raw, &sidecar); err != nil {
			return fmt.Errorf("decoding %s: %v: %w", pageKey, err, kind.ErrParse)
		}
		doc.Pages = append(doc.Pages, hocr.Page{Number: i, Words: sidecar.Words})
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding hocr document %s: %w", id, err)
	}
	dst := docid.DocKey(s.prefixes.HOCR, id, "json")
	if err := s.gw.Put(ctx, bucket, dst, body, "application/json"); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}

func (s *Stage) auditUpdate(ctx context.Context, id string, status models.DocumentStatus, opts ...audit.UpdateOption) {
	if err := s.audit.Update(ctx, id, status, opts...); err != nil {
		s.log.Warn("audit update failed", "document_id", id, "status", status, "error", err)
	}
}
