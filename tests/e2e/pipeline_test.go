// Package e2e runs whole documents through the staged pipeline in one
// process: an in-memory object store bridged onto an in-memory queue, with
// the PDF library and OCR engine replaced by scripted fakes. These tests
// prove the stages compose through object writes alone, with no in-process
// handles between them.
package e2e

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/layout"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/objectstore/aferofs"
	ocrengine "github.com/vellum-io/vellum/pkg/ocr"
	"github.com/vellum-io/vellum/pkg/pdfutil"
	"github.com/vellum-io/vellum/pkg/pii"
	"github.com/vellum-io/vellum/pkg/pipeline"
	"github.com/vellum-io/vellum/pkg/queue"
	"github.com/vellum-io/vellum/pkg/redact"
	"github.com/vellum-io/vellum/pkg/resolve"
	"github.com/vellum-io/vellum/pkg/stages"
	"github.com/vellum-io/vellum/pkg/stages/classifier"
	"github.com/vellum-io/vellum/pkg/stages/combine"
	ocrstage "github.com/vellum-io/vellum/pkg/stages/ocr"
	"github.com/vellum-io/vellum/pkg/stages/office"
	"github.com/vellum-io/vellum/pkg/stages/pageclass"
	"github.com/vellum-io/vellum/pkg/stages/splitter"
	"github.com/vellum-io/vellum/pkg/stages/textextract"
)

// fakePage scripts one page of a document: its text and whether the page is
// a scan without embedded text.
type fakePage struct {
	Text string `json:"text"`
	Scan bool   `json:"scan"`
}

// docBytes encodes scripted pages as the document payload the fake PDF
// library understands.
func docBytes(t *testing.T, pages ...fakePage) []byte {
	t.Helper()
	data, err := json.Marshal(pages)
	require.NoError(t, err)
	return data
}

// fakePDF implements the prober, splitter, rasterizer, and box-reader
// interfaces over scripted page arrays, so documents flow through every
// stage without real PDF bytes.
type fakePDF struct{}

func (fakePDF) decode(data []byte, page int) ([]fakePage, error) {
	var pages []fakePage
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("scripted document: %w", err)
	}
	if page < 1 || page > len(pages) {
		return nil, fmt.Errorf("scripted document has no page %d", page)
	}
	return pages, nil
}

func (f fakePDF) PageCount(_ context.Context, data []byte) (int, error) {
	pages, err := f.decode(data, 1)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

func (f fakePDF) HasText(_ context.Context, data []byte, page int) (bool, error) {
	pages, err := f.decode(data, page)
	if err != nil {
		return false, err
	}
	return !pages[page-1].Scan, nil
}

func (f fakePDF) ExtractPage(_ context.Context, data []byte, page int) ([]byte, error) {
	pages, err := f.decode(data, page)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]fakePage{pages[page-1]})
}

func (f fakePDF) RenderPNG(_ context.Context, data []byte, page, _ int) ([]byte, error) {
	pages, err := f.decode(data, page)
	if err != nil {
		return nil, err
	}
	return []byte("png:" + pages[page-1].Text), nil
}

func (f fakePDF) RenderImage(context.Context, []byte, int, int) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (f fakePDF) TextBoxes(_ context.Context, data []byte, page int) ([]layout.Box, error) {
	pages, err := f.decode(data, page)
	if err != nil {
		return nil, err
	}
	return []layout.Box{{Text: pages[page-1].Text, X: 72, Y: 72, W: 200, H: 12}}, nil
}

// stubEngine recognizes the text the fake rasterizer embedded in its PNG.
type stubEngine struct{}

func (stubEngine) Name() string { return "easyocr" }

func (stubEngine) Recognize(_ context.Context, req ocrengine.Request) (*ocrengine.Result, error) {
	return &ocrengine.Result{PlainText: strings.TrimPrefix(string(req.ImagePNG), "png:")}, nil
}

// harness is one running pipeline: writes through intake re-enter the queue,
// reads through store stay silent.
type harness struct {
	cfg    *config.Config
	bucket string
	intake objectstore.Gateway
	store  *aferofs.Store
	audit  *audit.MemStore
}

// startPipeline assembles every stage over an in-memory store and broker and
// starts a consumer dispatching notifications until the test ends.
func startPipeline(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Resolver.DisableParameterStore = true
	log := hclog.NewNullLogger()

	store := aferofs.NewMem()
	broker := queue.NewMemoryBroker()
	gw := pipeline.NewNotifyingGateway(store, broker, config.DefaultNotificationTopic, log)
	auditStore := audit.NewMemStore()
	pdf := fakePDF{}

	detector, err := pii.NewDetector(nil, log)
	require.NoError(t, err)
	resolver := resolve.New(resolve.Config{Log: log, Objects: gw})
	painter := redact.NewPainter(pdfutil.New(log), cfg.Redact.RenderDPI, cfg.OCR.DPI, log)

	dispatcher := pipeline.NewDispatcher(log, 4,
		classifier.New(gw, pdf, cfg, auditStore, log),
		splitter.New(gw, pdf, pdf, cfg, auditStore, log),
		pageclass.New(gw, pdf, resolver, cfg, log),
		textextract.New(gw, pdf, cfg, auditStore, log),
		ocrstage.New(gw, pdf, stubEngine{}, cfg, auditStore, log),
		office.New(gw, cfg, auditStore, log),
		combine.New(gw, cfg, auditStore, log),
		redact.New(gw, detector, painter, cfg, auditStore, log),
	)

	ctx, cancel := context.WithCancel(context.Background())
	consumer := broker.Consumer(config.DefaultNotificationTopic)
	go func() {
		_ = consumer.Start(ctx, dispatcher.Handler())
	}()
	t.Cleanup(func() {
		consumer.Stop()
		cancel()
		broker.Close()
	})

	return &harness{
		cfg:    cfg,
		bucket: cfg.ObjectStore.Bucket,
		intake: gw,
		store:  store,
		audit:  auditStore,
	}
}

// waitFor blocks until the object exists and returns its body.
func (h *harness) waitFor(t *testing.T, key string) []byte {
	t.Helper()
	var body []byte
	require.Eventually(t, func() bool {
		raw, err := h.store.Get(context.Background(), h.bucket, key)
		if err != nil {
			return false
		}
		body = raw
		return true
	}, 5*time.Second, 10*time.Millisecond, "waiting for %s", key)
	return body
}

// waitStatus blocks until the audit store reports the wanted status.
func (h *harness) waitStatus(t *testing.T, id string, status models.DocumentStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.audit.Status(id) == status
	}, 5*time.Second, 10*time.Millisecond, "waiting for %s to reach %s", id, status)
}

func (h *harness) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := h.store.Exists(context.Background(), h.bucket, key)
	require.NoError(t, err)
	return ok
}

func TestTextPDFFlowsToCombinedDocument(t *testing.T) {
	h := startPipeline(t)
	ctx := context.Background()

	doc := docBytes(t, fakePage{Text: "Hello World"})
	require.NoError(t, h.intake.Put(ctx, h.bucket, "raw/a.pdf", doc, "application/pdf"))

	combined := h.waitFor(t, "text-docs/a.json")
	assert.JSONEq(t,
		`{"documentId":"a","type":"pdf","pageCount":1,"pages":["## Page 1\n\nHello World\n"]}`,
		string(combined))
	h.waitStatus(t, "a", models.StatusCombined)

	// The text-bearing PDF went through the office prefix, one page object
	// and the manifest were fanned out, and the page stayed off the scan
	// route.
	assert.True(t, h.exists(t, "office-docs/a.pdf"))
	assert.True(t, h.exists(t, "pdf-pages/a/manifest.json"))
	assert.True(t, h.exists(t, "text-pages-raw/a/page_001.pdf"))
	assert.False(t, h.exists(t, "scan-pages/a/page_001.pdf"))

	page, err := h.store.Get(ctx, h.bucket, "text-pages/a/page_001.md")
	require.NoError(t, err)
	assert.Equal(t, "## Page 1\n\nHello World\n", string(page))

	n, ok := h.audit.PageCount("a")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	// The classifier marked the intake object for the retention sweep.
	tags, err := h.store.GetTags(ctx, h.bucket, "raw/a.pdf")
	require.NoError(t, err)
	assert.Contains(t, tags, objectstore.TagPendingDelete)

	// Combining again must produce byte-identical output. Running the stage
	// over the bare store keeps the rerun out of the queue.
	again := combine.New(h.store, h.cfg, h.audit, hclog.NewNullLogger())
	require.NoError(t, again.Process(ctx, h.bucket, "text-pages/a/page_001.md"))
	rerun, err := h.store.Get(ctx, h.bucket, "text-docs/a.json")
	require.NoError(t, err)
	assert.Equal(t, combined, rerun)
}

func TestMixedPDFCombinesExtractedAndRecognizedPages(t *testing.T) {
	h := startPipeline(t)
	ctx := context.Background()

	doc := docBytes(t,
		fakePage{Text: "Intro"},
		fakePage{Text: "Body", Scan: true},
	)
	require.NoError(t, h.intake.Put(ctx, h.bucket, "raw/mixed.pdf", doc, "application/pdf"))

	combined := h.waitFor(t, "text-docs/mixed.json")
	var out stages.DocumentText
	require.NoError(t, json.Unmarshal(combined, &out))
	assert.Equal(t, "mixed", out.DocumentID)
	assert.Equal(t, "pdf", out.Type)
	assert.Equal(t, 2, out.PageCount)
	assert.Equal(t, []string{
		"## Page 1\n\nIntro\n",
		"## Page 2\n\nBody\n",
	}, out.Pages)

	// Page 1 took the extraction route, page 2 the OCR route.
	assert.True(t, h.exists(t, "text-pages-raw/mixed/page_001.pdf"))
	assert.False(t, h.exists(t, "scan-pages/mixed/page_001.pdf"))
	assert.True(t, h.exists(t, "scan-pages/mixed/page_002.pdf"))
	assert.False(t, h.exists(t, "text-pages-raw/mixed/page_002.pdf"))

	// easyocr writes no word sidecar.
	assert.False(t, h.exists(t, "hocr/mixed/page_002.json"))

	h.waitStatus(t, "mixed", models.StatusCombined)
}

func TestDocxExtractsStraightToCombinedDocument(t *testing.T) {
	h := startPipeline(t)
	ctx := context.Background()

	require.NoError(t, h.intake.Put(ctx, h.bucket, "raw/x.docx", buildDocx(t, "Greeting"),
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document"))

	combined := h.waitFor(t, "text-docs/x.json")
	var out stages.DocumentText
	require.NoError(t, json.Unmarshal(combined, &out))
	assert.Equal(t, "x", out.DocumentID)
	assert.Equal(t, "docx", out.Type)
	assert.Equal(t, 1, out.PageCount)
	assert.Equal(t, []string{"## Page 1\n\nGreeting\n"}, out.Pages)

	// Office documents skip the page fan-out entirely.
	assert.True(t, h.exists(t, "office-docs/x.docx"))
	keys, err := h.store.List(ctx, h.bucket, "pdf-pages/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	h.waitStatus(t, "x", models.StatusCombined)
}

func TestUnsupportedExtensionLeavesPipelineUntouched(t *testing.T) {
	h := startPipeline(t)
	ctx := context.Background()

	require.NoError(t, h.intake.Put(ctx, h.bucket, "raw/notes.txt", []byte("plain notes"), "text/plain"))

	// The docx behind it is the ordering sentinel: notifications are handled
	// in order, so once its document combines, notes.txt has been through
	// the classifier.
	require.NoError(t, h.intake.Put(ctx, h.bucket, "raw/ok.docx", buildDocx(t, "ok"),
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	h.waitFor(t, "text-docs/ok.json")

	assert.False(t, h.exists(t, "office-docs/notes.txt"))
	assert.False(t, h.exists(t, "pdf-raw/notes.txt"))

	// The document was registered at intake and then left alone.
	assert.Equal(t, models.StatusUploaded, h.audit.Status("notes"))
}

// buildDocx assembles a minimal wordprocessing archive with one paragraph.
func buildDocx(t *testing.T, paragraph string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body><w:p><w:r><w:t>` + paragraph + `</w:t></w:r></w:p></w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}
