// Package office extracts office documents straight to their combined form.
// Office documents have no page objects to join, so the stage writes
// text-docs output directly and the combine stage never sees them.
package office

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/docid"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	officedoc "github.com/vellum-io/vellum/pkg/office"
	"github.com/vellum-io/vellum/pkg/stages"
)

// Stage extracts docx, pptx, and xlsx objects under the office prefix.
type Stage struct {
	gw       objectstore.Gateway
	bucket   string
	prefixes *config.PrefixConfig
	audit    audit.Store
	log      hclog.Logger
}

// New builds the office extractor stage.
func New(gw objectstore.Gateway, cfg *config.Config, auditStore audit.Store, log hclog.Logger) *Stage {
	return &Stage{
		gw:       gw,
		bucket:   cfg.ObjectStore.Bucket,
		prefixes: cfg.Prefixes,
		audit:    auditStore,
		log:      log.Named("office"),
	}
}

func (s *Stage) Name() string { return "office" }

func (s *Stage) Match(bucket, key string) bool {
	return stages.Match(bucket, key, s.bucket, s.prefixes.Office, "docx", "pptx", "xlsx")
}

func (s *Stage) Process(ctx context.Context, bucket, key string) error {
	id := docid.FromKey(key)
	ext := docid.Ext(key)

	data, err := s.gw.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}

	pages, err := officedoc.Extract(data, ext)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", key, err)
	}

	doc := stages.DocumentText{
		DocumentID: id,
		Type:       ext,
		PageCount:  len(pages),
		Pages:      make([]string, len(pages)),
	}
	for i, text := range pages {
		doc.Pages[i] = stages.PageMarkdown(i+1, text)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", id, err)
	}
	dst := docid.DocKey(s.prefixes.TextDocs, id, "json")
	if err := s.gw.Put(ctx, bucket, dst, body, "application/json"); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}

	if err := s.audit.Update(ctx, id, models.StatusCombined,
		audit.WithPageCount(len(pages))); err != nil {
		s.log.Warn("audit update failed", "document_id", id, "error", err)
	}
	s.log.Info("extracted office document", "document_id", id, "type", ext, "pages", len(pages))
	return nil
}
