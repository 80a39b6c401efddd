// Package pageclass routes split pages between the text extractor and OCR.
// Pages with embedded text go to the text-pages-raw prefix; pages without,
// or pages with the force_ocr flag set, go to scan-pages.
package pageclass

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/docid"
	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/resolve"
	"github.com/vellum-io/vellum/pkg/stages"
)

// TextProber answers whether a page of a PDF carries embedded text.
type TextProber interface {
	HasText(ctx context.Context, data []byte, page int) (bool, error)
}

// Stage classifies page objects written by the splitter.
type Stage struct {
	gw       objectstore.Gateway
	prober   TextProber
	resolver *resolve.Resolver
	forceOCR bool
	bucket   string
	prefixes *config.PrefixConfig
	log      hclog.Logger
}

// New builds the page classifier stage.
func New(gw objectstore.Gateway, prober TextProber, resolver *resolve.Resolver,
	cfg *config.Config, log hclog.Logger) *Stage {
	return &Stage{
		gw:       gw,
		prober:   prober,
		resolver: resolver,
		forceOCR: cfg.OCR.ForceOCR,
		bucket:   cfg.ObjectStore.Bucket,
		prefixes: cfg.Prefixes,
		log:      log.Named("pageclass"),
	}
}

func (s *Stage) Name() string { return "pageclass" }

func (s *Stage) Match(bucket, key string) bool {
	return stages.Match(bucket, key, s.bucket, s.prefixes.PDFPages, "pdf")
}

func (s *Stage) Process(ctx context.Context, bucket, key string) error {
	id, page, err := docid.ParsePageKey(key, s.prefixes.PDFPages)
	if err != nil {
		return err
	}

	scan, err := s.needsOCR(ctx, bucket, key)
	if err != nil {
		return err
	}

	dst := docid.PageKey(s.prefixes.TextPagesRaw, id, page, "pdf")
	if scan {
		dst = docid.PageKey(s.prefixes.ScanPages, id, page, "pdf")
	}
	if err := s.gw.Copy(ctx, bucket, key, bucket, dst); err != nil {
		return fmt.Errorf("routing %s to %s: %w", key, dst, err)
	}
	s.log.Debug("routed page", "document_id", id, "page", page, "scan", scan)
	return nil
}

// needsOCR checks the force_ocr flag first so operators can override page
// probing per object, per environment, or globally.
func (s *Stage) needsOCR(ctx context.Context, bucket, key string) (bool, error) {
	force, err := s.resolver.ResolveBool(ctx, "force_ocr",
		resolve.WithObject(bucket, key),
		resolve.WithDefault(strconv.FormatBool(s.forceOCR)))
	if err != nil {
		s.log.Warn("force_ocr resolution failed, using configured default", "error", err)
		force = s.forceOCR
	}
	if force {
		return true, nil
	}

	data, err := s.gw.Get(ctx, bucket, key)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	hasText, err := s.prober.HasText(ctx, data, 1)
	if err != nil {
		return false, fmt.Errorf("probing %s: %w", key, err)
	}
	return !hasText, nil
}
