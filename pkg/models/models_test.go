package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTest(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A pooled :memory: handle gives every connection its own database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(ModelsToAutoMigrate()...))
	return db
}

func TestDocumentStatus_Rank(t *testing.T) {
	t.Run("ranks are strictly increasing along the pipeline", func(t *testing.T) {
		ordered := []DocumentStatus{
			StatusUploaded,
			StatusSplit,
			StatusExtracted,
			StatusMissingPages,
			StatusCombined,
			StatusPIIDetected,
			StatusRedactionStarted,
			StatusRedactionError,
			StatusTimeout,
			StatusFailed,
		}
		for i := 1; i < len(ordered); i++ {
			assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank(),
				"%s should outrank %s", ordered[i], ordered[i-1])
		}
	})

	t.Run("unknown status has zero rank", func(t *testing.T) {
		assert.Equal(t, 0, DocumentStatus("BOGUS").Rank())
		assert.False(t, DocumentStatus("BOGUS").Valid())
	})
}

func TestAuditRecord_Create(t *testing.T) {
	db := setupTest(t)

	t.Run("BeforeCreate defaults status and syncs rank", func(t *testing.T) {
		rec := &AuditRecord{DocumentID: "invoice-001"}
		require.NoError(t, db.Create(rec).Error)

		got, err := GetAuditRecord(db, "invoice-001")
		require.NoError(t, err)
		assert.Equal(t, StatusUploaded, got.Status)
		assert.Equal(t, StatusUploaded.Rank(), got.StatusRank)
	})

	t.Run("duplicate document_id is rejected", func(t *testing.T) {
		rec := &AuditRecord{DocumentID: "invoice-dup"}
		require.NoError(t, db.Create(rec).Error)
		dup := &AuditRecord{DocumentID: "invoice-dup"}
		assert.Error(t, db.Create(dup).Error)
	})

	t.Run("info round-trips as JSON", func(t *testing.T) {
		rec := &AuditRecord{
			DocumentID: "invoice-002",
			Status:     StatusSplit,
			Info:       JSON(`{"pages": 3, "source": "upload"}`),
		}
		require.NoError(t, db.Create(rec).Error)

		got, err := GetAuditRecord(db, "invoice-002")
		require.NoError(t, err)
		assert.JSONEq(t, `{"pages": 3, "source": "upload"}`, got.Info.String())
	})
}

func TestGetAuditRecord(t *testing.T) {
	db := setupTest(t)

	t.Run("returns record by document id", func(t *testing.T) {
		pages := 7
		rec := &AuditRecord{
			DocumentID: "contract-001",
			Status:     StatusCombined,
			PageCount:  &pages,
		}
		require.NoError(t, db.Create(rec).Error)

		got, err := GetAuditRecord(db, "contract-001")
		require.NoError(t, err)
		assert.Equal(t, StatusCombined, got.Status)
		require.NotNil(t, got.PageCount)
		assert.Equal(t, 7, *got.PageCount)
	})

	t.Run("returns error when not found", func(t *testing.T) {
		_, err := GetAuditRecord(db, "nonexistent")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestListAuditRecordsByStatus(t *testing.T) {
	db := setupTest(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.Create(&AuditRecord{
			DocumentID: "doc-" + id,
			Status:     StatusMissingPages,
		}).Error)
	}
	require.NoError(t, db.Create(&AuditRecord{
		DocumentID: "doc-done",
		Status:     StatusCombined,
	}).Error)

	recs, err := ListAuditRecordsByStatus(db, StatusMissingPages)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	for _, r := range recs {
		assert.Equal(t, StatusMissingPages, r.Status)
	}
}

func TestCollectionTTL(t *testing.T) {
	db := setupTest(t)

	t.Run("register creates row with expiry", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		require.NoError(t, RegisterCollectionTTL(db, "kb_tmp_abc", "qdrant", exp))

		var ttl CollectionTTL
		require.NoError(t, db.Where("collection_name = ?", "kb_tmp_abc").First(&ttl).Error)
		assert.Equal(t, "qdrant", ttl.StorageMode)
		assert.WithinDuration(t, exp, ttl.ExpiresAt, time.Second)
	})

	t.Run("re-register refreshes expiry instead of duplicating", func(t *testing.T) {
		first := time.Now().Add(time.Minute).UTC()
		later := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
		require.NoError(t, RegisterCollectionTTL(db, "kb_tmp_refresh", "bleve", first))
		require.NoError(t, RegisterCollectionTTL(db, "kb_tmp_refresh", "bleve", later))

		var count int64
		require.NoError(t, db.Model(&CollectionTTL{}).
			Where("collection_name = ?", "kb_tmp_refresh").
			Count(&count).Error)
		assert.Equal(t, int64(1), count)

		var ttl CollectionTTL
		require.NoError(t, db.Where("collection_name = ?", "kb_tmp_refresh").First(&ttl).Error)
		assert.WithinDuration(t, later, ttl.ExpiresAt, time.Second)
	})

	t.Run("find expired returns only past-deadline collections", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, RegisterCollectionTTL(db, "kb_tmp_old", "qdrant", now.Add(-time.Hour)))
		require.NoError(t, RegisterCollectionTTL(db, "kb_tmp_new", "qdrant", now.Add(time.Hour)))

		expired, err := FindExpiredCollections(db, now)
		require.NoError(t, err)

		names := make([]string, 0, len(expired))
		for _, e := range expired {
			names = append(names, e.CollectionName)
		}
		assert.Contains(t, names, "kb_tmp_old")
		assert.NotContains(t, names, "kb_tmp_new")
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, RegisterCollectionTTL(db, "kb_tmp_del", "qdrant", time.Now()))
		require.NoError(t, DeleteCollectionTTL(db, "kb_tmp_del"))
		require.NoError(t, DeleteCollectionTTL(db, "kb_tmp_del"))
	})
}

func TestPromptTemplate(t *testing.T) {
	db := setupTest(t)

	t.Run("version 0 selects latest", func(t *testing.T) {
		require.NoError(t, db.Create(&PromptTemplate{
			PromptID: "summarize",
			Version:  1,
			Template: "Summarize: {text}",
		}).Error)
		require.NoError(t, db.Create(&PromptTemplate{
			PromptID: "summarize",
			Version:  2,
			Template: "Summarize briefly: {text}",
		}).Error)

		tpl, err := GetPromptTemplate(db, "summarize", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, tpl.Version)
		assert.Equal(t, "Summarize briefly: {text}", tpl.Template)
	})

	t.Run("explicit version is honored", func(t *testing.T) {
		tpl, err := GetPromptTemplate(db, "summarize", 1)
		require.NoError(t, err)
		assert.Equal(t, "Summarize: {text}", tpl.Template)
	})

	t.Run("duplicate (prompt_id, version) is rejected", func(t *testing.T) {
		dup := &PromptTemplate{PromptID: "summarize", Version: 1, Template: "x"}
		assert.Error(t, db.Create(dup).Error)
	})

	t.Run("next version counts from latest", func(t *testing.T) {
		next, err := NextPromptVersion(db, "summarize")
		require.NoError(t, err)
		assert.Equal(t, 3, next)

		next, err = NextPromptVersion(db, "brand-new")
		require.NoError(t, err)
		assert.Equal(t, 1, next)
	})

	t.Run("list returns newest first", func(t *testing.T) {
		tpls, err := ListPromptVersions(db, "summarize")
		require.NoError(t, err)
		require.Len(t, tpls, 2)
		assert.Equal(t, 2, tpls[0].Version)
		assert.Equal(t, 1, tpls[1].Version)
	})
}
