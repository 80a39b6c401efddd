package splitter

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore/aferofs"
	"github.com/vellum-io/vellum/pkg/stages"
)

// fakePDF answers page counts and page extraction from a canned count.
type fakePDF struct {
	pages    int
	countErr error
	pageErr  error
}

func (f *fakePDF) PageCount(context.Context, []byte) (int, error) {
	return f.pages, f.countErr
}

func (f *fakePDF) HasText(context.Context, []byte, int) (bool, error) {
	return false, nil
}

func (f *fakePDF) ExtractPage(_ context.Context, _ []byte, page int) ([]byte, error) {
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	return []byte(fmt.Sprintf("page-%d", page)), nil
}

func setup(t *testing.T, pdf *fakePDF) (*Stage, *aferofs.Store, *audit.MemStore, string) {
	t.Helper()
	cfg := config.Default()
	gw := aferofs.NewMem()
	auditStore := audit.NewMemStore()
	stage := New(gw, pdf, pdf, cfg, auditStore, hclog.NewNullLogger())
	return stage, gw, auditStore, cfg.ObjectStore.Bucket
}

func TestMatch(t *testing.T) {
	stage, _, _, bucket := setup(t, &fakePDF{})

	assert.True(t, stage.Match(bucket, "pdf-raw/scan.pdf"))
	assert.True(t, stage.Match(bucket, "office-docs/report.pdf"))
	assert.False(t, stage.Match(bucket, "office-docs/report.docx"))
	assert.False(t, stage.Match(bucket, "raw/scan.pdf"))
	assert.False(t, stage.Match("other", "pdf-raw/scan.pdf"))
}

func TestProcessWritesPagesThenManifest(t *testing.T) {
	stage, gw, auditStore, bucket := setup(t, &fakePDF{pages: 3})
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, bucket, "pdf-raw/doc.pdf", []byte("%PDF"), "application/pdf"))
	require.NoError(t, stage.Process(ctx, bucket, "pdf-raw/doc.pdf"))

	for i := 1; i <= 3; i++ {
		body, err := gw.Get(ctx, bucket, fmt.Sprintf("pdf-pages/doc/page_%03d.pdf", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("page-%d", i), string(body))
	}

	raw, err := gw.Get(ctx, bucket, "pdf-pages/doc/manifest.json")
	require.NoError(t, err)
	var m stages.Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, stages.Manifest{DocumentID: "doc", Pages: 3}, m)

	assert.Equal(t, models.StatusSplit, auditStore.Status("doc"))
	n, ok := auditStore.PageCount("doc")
	require.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestProcessRejectsOversizedDocuments(t *testing.T) {
	stage, gw, auditStore, bucket := setup(t, &fakePDF{pages: 1000})
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, bucket, "pdf-raw/huge.pdf", []byte("%PDF"), "application/pdf"))
	err := stage.Process(ctx, bucket, "pdf-raw/huge.pdf")
	require.ErrorIs(t, err, kind.ErrTooManyPages)

	assert.Equal(t, models.StatusFailed, auditStore.Status("huge"))
	keys, err := gw.List(ctx, bucket, "pdf-pages/")
	require.NoError(t, err)
	assert.Empty(t, keys, "no page objects for a rejected document")
}

func TestProcessPageExtractionFailureLeavesNoManifest(t *testing.T) {
	stage, gw, _, bucket := setup(t, &fakePDF{pages: 2, pageErr: fmt.Errorf("broken xref: %w", kind.ErrParse)})
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, bucket, "pdf-raw/bad.pdf", []byte("%PDF"), "application/pdf"))
	err := stage.Process(ctx, bucket, "pdf-raw/bad.pdf")
	require.ErrorIs(t, err, kind.ErrParse)

	ok, err := gw.Exists(ctx, bucket, "pdf-pages/bad/manifest.json")
	require.NoError(t, err)
	assert.False(t, ok, "manifest must only exist once every page does")
}

func TestProcessZeroPagesIsParseError(t *testing.T) {
	stage, gw, _, bucket := setup(t, &fakePDF{pages: 0})
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, bucket, "pdf-raw/empty.pdf", []byte("%PDF"), "application/pdf"))
	err := stage.Process(ctx, bucket, "pdf-raw/empty.pdf")
	require.ErrorIs(t, err, kind.ErrParse)
}
