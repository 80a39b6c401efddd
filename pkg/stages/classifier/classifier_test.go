package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/objectstore/aferofs"
)

type fakeProber struct {
	textByContent map[string]bool
	err           error
}

func (f *fakeProber) HasText(_ context.Context, data []byte, _ int) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.textByContent[string(data)], nil
}

func setup(t *testing.T, prober *fakeProber) (*Stage, *aferofs.Store, *audit.MemStore, string) {
	t.Helper()
	cfg := config.Default()
	gw := aferofs.NewMem()
	auditStore := audit.NewMemStore()
	stage := New(gw, prober, cfg, auditStore, hclog.NewNullLogger())
	return stage, gw, auditStore, cfg.ObjectStore.Bucket
}

func TestMatch(t *testing.T) {
	stage, _, _, bucket := setup(t, &fakeProber{})

	assert.True(t, stage.Match(bucket, "raw/a.pdf"))
	assert.True(t, stage.Match(bucket, "raw/nested/b.docx"))
	assert.False(t, stage.Match(bucket, "pdf-raw/a.pdf"))
	assert.False(t, stage.Match("other-bucket", "raw/a.pdf"))
}

func TestProcessRoutesOfficeDocuments(t *testing.T) {
	stage, gw, auditStore, bucket := setup(t, &fakeProber{})
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, bucket, "raw/x.docx", []byte("docx-bytes"), ""))
	require.NoError(t, stage.Process(ctx, bucket, "raw/x.docx"))

	ok, err := gw.Exists(ctx, bucket, "office-docs/x.docx")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.StatusUploaded, auditStore.Status("x"))
}

func TestProcessSplitsPDFByEmbeddedText(t *testing.T) {
	prober := &fakeProber{textByContent: map[string]bool{
		"pdf-with-text": true,
		"pdf-scanned":   false,
	}}
	stage, gw, _, bucket := setup(t, prober)
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, bucket, "raw/text.pdf", []byte("pdf-with-text"), ""))
	require.NoError(t, gw.Put(ctx, bucket, "raw/scan.pdf", []byte("pdf-scanned"), ""))

	require.NoError(t, stage.Process(ctx, bucket, "raw/text.pdf"))
	require.NoError(t, stage.Process(ctx, bucket, "raw/scan.pdf"))

	ok, err := gw.Exists(ctx, bucket, "office-docs/text.pdf")
	require.NoError(t, err)
	assert.True(t, ok, "text-bearing pdf belongs under the office prefix")

	ok, err = gw.Exists(ctx, bucket, "pdf-raw/scan.pdf")
	require.NoError(t, err)
	assert.True(t, ok, "scan-only pdf belongs under pdf-raw")
}

func TestProcessTagsSourceForSweep(t *testing.T) {
	stage, gw, _, bucket := setup(t, &fakeProber{})
	taggedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stage.now = func() time.Time { return taggedAt }
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, bucket, "raw/x.docx", []byte("docx-bytes"), ""))
	require.NoError(t, stage.Process(ctx, bucket, "raw/x.docx"))

	tags, err := gw.GetTags(ctx, bucket, "raw/x.docx")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", tags[objectstore.TagPendingDelete])

	// The routed copy carries no deletion mark.
	tags, err = gw.GetTags(ctx, bucket, "office-docs/x.docx")
	require.NoError(t, err)
	assert.Empty(t, tags[objectstore.TagPendingDelete])
}

func TestProcessSkipsUnsupportedTypes(t *testing.T) {
	stage, gw, _, bucket := setup(t, &fakeProber{})
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, bucket, "raw/photo.png", []byte("png"), ""))
	require.NoError(t, stage.Process(ctx, bucket, "raw/photo.png"))

	keys, err := gw.List(ctx, bucket, "office-docs/")
	require.NoError(t, err)
	assert.Empty(t, keys)
	keys, err = gw.List(ctx, bucket, "pdf-raw/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestProcessMissingObjectFails(t *testing.T) {
	stage, _, _, bucket := setup(t, &fakeProber{})

	err := stage.Process(context.Background(), bucket, "raw/gone.pdf")
	require.Error(t, err)
}
