package vector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/models"
)

// fakeStore records calls and serves canned matches.
type fakeStore struct {
	name        string
	collections map[string]bool
	lastTopK    int
	matches     []Match
	dropErr     error
	dropped     []string
}

func newFakeStore(name string) *fakeStore {
	return &fakeStore{name: name, collections: map[string]bool{}}
}

func (f *fakeStore) Name() string { return f.name }

func (f *fakeStore) CreateCollection(_ context.Context, name string, _ int) error {
	f.collections[name] = true
	return nil
}

func (f *fakeStore) DropCollection(_ context.Context, name string) error {
	if f.dropErr != nil {
		return f.dropErr
	}
	delete(f.collections, name)
	f.dropped = append(f.dropped, name)
	return nil
}

func (f *fakeStore) Insert(_ context.Context, _ string, _ []Item, _ bool) error { return nil }
func (f *fakeStore) Update(_ context.Context, _ string, _ []Item) error         { return nil }
func (f *fakeStore) Delete(_ context.Context, _ string, _ []string) error       { return nil }

func (f *fakeStore) Search(_ context.Context, _ string, _ []float32, topK int) ([]Match, error) {
	f.lastTopK = topK
	if len(f.matches) > topK {
		return f.matches[:topK], nil
	}
	return f.matches, nil
}

func (f *fakeStore) HybridSearch(_ context.Context, _ string, _ []float32, _ string, topK int) ([]Match, error) {
	return f.Search(nil, "", nil, topK)
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.CollectionTTL{}))
	return db
}

func testProxy(t *testing.T, primary, secondary *fakeStore, db *gorm.DB) *Proxy {
	t.Helper()
	cfg := &config.VectorConfig{DefaultMode: "qdrant", FetchMultiplier: 4}
	backends := map[string]Store{"qdrant": primary, "bleve": secondary}
	return NewProxy(cfg, backends, db, hclog.NewNullLogger())
}

func TestProxyRoutesByStorageMode(t *testing.T) {
	primary := newFakeStore("qdrant")
	secondary := newFakeStore("bleve")
	p := testProxy(t, primary, secondary, nil)
	ctx := context.Background()

	require.NoError(t, p.CreateCollection(ctx, CreateCollectionRequest{Name: "kb_a", Dim: 4}))
	assert.True(t, primary.collections["kb_a"], "default mode is qdrant")

	require.NoError(t, p.CreateCollection(ctx, CreateCollectionRequest{
		Name: "kb_b", Dim: 4, StorageMode: "bleve",
	}))
	assert.True(t, secondary.collections["kb_b"])

	err := p.CreateCollection(ctx, CreateCollectionRequest{
		Name: "kb_c", Dim: 4, StorageMode: "pinecone",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, kind.ErrInputInvalid)
}

func TestProxyRejectsBadCollectionNames(t *testing.T) {
	p := testProxy(t, newFakeStore("qdrant"), newFakeStore("bleve"), nil)
	ctx := context.Background()

	err := p.CreateCollection(ctx, CreateCollectionRequest{Name: "docs", Dim: 4})
	assert.ErrorIs(t, err, kind.ErrInputInvalid)

	err = p.Insert(ctx, "kb_../x", "", nil, false)
	assert.ErrorIs(t, err, kind.ErrInputInvalid)

	_, err = p.Search(ctx, SearchRequest{Collection: "nope", Embedding: []float32{1}})
	assert.ErrorIs(t, err, kind.ErrInputInvalid)
}

func TestProxyEphemeralRegistersTTL(t *testing.T) {
	db := testDB(t)
	primary := newFakeStore("qdrant")
	p := testProxy(t, primary, newFakeStore("bleve"), db)
	ctx := context.Background()

	require.NoError(t, p.CreateCollection(ctx, CreateCollectionRequest{
		Name:      "kb_scratch",
		Dim:       4,
		Ephemeral: true,
		ExpiresAt: "2026-09-01T00:00:00Z",
	}))
	assert.True(t, primary.collections["kb_scratch"])

	rows, err := models.FindExpiredCollections(db, time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "kb_scratch", rows[0].CollectionName)
	assert.Equal(t, "qdrant", rows[0].StorageMode)
}

func TestProxyEphemeralValidation(t *testing.T) {
	db := testDB(t)
	p := testProxy(t, newFakeStore("qdrant"), newFakeStore("bleve"), db)
	ctx := context.Background()

	err := p.CreateCollection(ctx, CreateCollectionRequest{
		Name: "kb_x", Dim: 4, Ephemeral: true,
	})
	assert.ErrorIs(t, err, kind.ErrInputInvalid, "missing expires_at")

	err = p.CreateCollection(ctx, CreateCollectionRequest{
		Name: "kb_x", Dim: 4, Ephemeral: true, ExpiresAt: "whenever",
	})
	assert.ErrorIs(t, err, kind.ErrInputInvalid, "unparseable expires_at")
}

func TestProxyDropRemovesRegistration(t *testing.T) {
	db := testDB(t)
	primary := newFakeStore("qdrant")
	p := testProxy(t, primary, newFakeStore("bleve"), db)
	ctx := context.Background()

	require.NoError(t, p.CreateCollection(ctx, CreateCollectionRequest{
		Name: "kb_tmp", Dim: 4, Ephemeral: true, ExpiresAt: "2026-09-01T00:00:00Z",
	}))
	require.NoError(t, p.DropCollection(ctx, "kb_tmp", ""))

	rows, err := models.FindExpiredCollections(db, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestProxySearchOverfetchesWithFilters(t *testing.T) {
	primary := newFakeStore("qdrant")
	for i := 0; i < 20; i++ {
		dept := "legal"
		if i%2 == 0 {
			dept = "finance"
		}
		primary.matches = append(primary.matches, Match{
			ID:       fmt.Sprintf("m%d", i),
			Score:    1 - float64(i)/100,
			Metadata: map[string]interface{}{"department": dept},
		})
	}
	p := testProxy(t, primary, newFakeStore("bleve"), nil)
	ctx := context.Background()

	got, err := p.Search(ctx, SearchRequest{
		Collection: "kb_docs",
		Embedding:  []float32{1, 0},
		TopK:       3,
		Filters:    &Filters{Department: "legal"},
	})
	require.NoError(t, err)

	assert.Equal(t, 12, primary.lastTopK, "3 * fetch multiplier 4")
	require.Len(t, got, 3)
	for _, m := range got {
		assert.Equal(t, "legal", m.Metadata["department"])
	}

	// Without filters the backend is asked for exactly top_k.
	_, err = p.Search(ctx, SearchRequest{
		Collection: "kb_docs",
		Embedding:  []float32{1, 0},
		TopK:       5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, primary.lastTopK)
}

func TestProxySearchRequiresEmbedding(t *testing.T) {
	p := testProxy(t, newFakeStore("qdrant"), newFakeStore("bleve"), nil)

	_, err := p.Search(context.Background(), SearchRequest{Collection: "kb_docs"})
	require.Error(t, err)
	assert.ErrorIs(t, err, kind.ErrInputInvalid)
}
