package vector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/objectstore/aferofs"
)

func testReaper(t *testing.T, db *gorm.DB, store *fakeStore, gw objectstore.Gateway) (*Reaper, *config.Config) {
	t.Helper()
	cfg := config.Default()
	r := NewReaper(cfg, db, map[string]Store{"qdrant": store}, gw, hclog.NewNullLogger())
	return r, cfg
}

func TestSweepDropsExpiredCollections(t *testing.T) {
	db := testDB(t)
	store := newFakeStore("qdrant")
	r, _ := testReaper(t, db, store, nil)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	store.collections["kb_old"] = true
	store.collections["kb_young"] = true
	require.NoError(t, models.RegisterCollectionTTL(db, "kb_old", "qdrant", now.Add(-time.Hour)))
	require.NoError(t, models.RegisterCollectionTTL(db, "kb_young", "qdrant", now.Add(time.Hour)))

	require.NoError(t, r.Sweep(context.Background()))

	assert.Equal(t, []string{"kb_old"}, store.dropped)
	assert.False(t, store.collections["kb_old"])
	assert.True(t, store.collections["kb_young"])

	rows, err := models.FindExpiredCollections(db, now.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1, "only the unexpired registration remains")
	assert.Equal(t, "kb_young", rows[0].CollectionName)
}

func TestSweepKeepsRegistrationWhenDropFails(t *testing.T) {
	db := testDB(t)
	store := newFakeStore("qdrant")
	store.dropErr = fmt.Errorf("backend down")
	r, _ := testReaper(t, db, store, nil)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	require.NoError(t, models.RegisterCollectionTTL(db, "kb_old", "qdrant", now.Add(-time.Hour)))

	require.NoError(t, r.Sweep(context.Background()), "a failed drop is logged, not fatal")

	rows, err := models.FindExpiredCollections(db, now)
	require.NoError(t, err)
	require.Len(t, rows, 1, "registration survives for the next tick")

	// Once the backend recovers the retry succeeds and deregisters.
	store.dropErr = nil
	require.NoError(t, r.Sweep(context.Background()))
	rows, err = models.FindExpiredCollections(db, now)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSweepDoubleDropTolerated(t *testing.T) {
	db := testDB(t)
	store := newFakeStore("qdrant")
	r, _ := testReaper(t, db, store, nil)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	// Registration exists but the collection is already gone.
	require.NoError(t, models.RegisterCollectionTTL(db, "kb_ghost", "qdrant", now.Add(-time.Hour)))

	require.NoError(t, r.Sweep(context.Background()))
	rows, err := models.FindExpiredCollections(db, now)
	require.NoError(t, err)
	assert.Empty(t, rows, "drop of a missing collection still deregisters")
}

func TestSweepSourcesDeletesByTagTime(t *testing.T) {
	db := testDB(t)
	gw := aferofs.NewMem()
	r, cfg := testReaper(t, db, newFakeStore("qdrant"), gw)
	bucket := cfg.ObjectStore.Bucket

	now := time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	put := func(key, taggedAt string) {
		require.NoError(t, gw.Put(ctx, bucket, key, []byte("pdf"), ""))
		if taggedAt != "" {
			require.NoError(t, gw.Tag(ctx, bucket, key, map[string]string{
				objectstore.TagPendingDelete: taggedAt,
			}))
		}
	}
	// Retention default is 86400s; the cutoff is now minus one day.
	put("raw/old.pdf", "2026-06-01T08:00:00Z")
	put("raw/fresh.pdf", "2026-06-02T08:00:00Z")
	put("raw/untagged.pdf", "")
	put("raw/badstamp.pdf", "yesterday-ish")

	require.NoError(t, r.SweepSources(ctx))

	exists := func(key string) bool {
		ok, err := gw.Exists(ctx, bucket, key)
		require.NoError(t, err)
		return ok
	}
	assert.False(t, exists("raw/old.pdf"), "tag older than retention is swept")
	assert.True(t, exists("raw/fresh.pdf"), "tag inside the window survives")
	assert.True(t, exists("raw/untagged.pdf"))
	assert.True(t, exists("raw/badstamp.pdf"), "unparseable stamps are skipped, not deleted")
}

func TestSweepSourcesDisabledWithoutGateway(t *testing.T) {
	db := testDB(t)
	r, _ := testReaper(t, db, newFakeStore("qdrant"), nil)
	require.NoError(t, r.SweepSources(context.Background()))
}
