package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vellum-io/vellum/pkg/models"
)

// GormStore persists audit records through gorm. It works against both
// PostgreSQL and SQLite.
type GormStore struct {
	db  *gorm.DB
	log hclog.Logger
}

// NewGormStore returns a Store backed by the given database handle.
func NewGormStore(db *gorm.DB, log hclog.Logger) *GormStore {
	return &GormStore{
		db:  db,
		log: log.Named("audit"),
	}
}

// NewStore returns a gorm-backed store, or a no-op store when no database is
// configured.
func NewStore(db *gorm.DB, log hclog.Logger) Store {
	if db == nil {
		log.Named("audit").Debug("no database configured, audit is a no-op")
		return NewNoopStore()
	}
	return NewGormStore(db, log)
}

// CreateIfAbsent inserts the audit row unless one already exists for the
// document.
func (s *GormStore) CreateIfAbsent(ctx context.Context, documentID string, status models.DocumentStatus) error {
	rec := &models.AuditRecord{
		DocumentID: documentID,
		Status:     status,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}},
			DoNothing: true,
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("error creating audit record for %q: %w", documentID, err)
	}
	return nil
}

// Update applies a conditional status write: the row is modified only when
// the stored status rank does not exceed the new one. A rejected write means
// a faster writer already advanced the document, which is not an error.
func (s *GormStore) Update(ctx context.Context, documentID string, status models.DocumentStatus, opts ...UpdateOption) error {
	if !status.Valid() {
		return fmt.Errorf("unknown audit status %q", status)
	}

	var attrs updateAttrs
	for _, opt := range opts {
		opt(&attrs)
	}

	updates := map[string]interface{}{
		"status":      status,
		"status_rank": status.Rank(),
		"updated_at":  time.Now(),
	}
	if attrs.pageCount != nil {
		updates["page_count"] = *attrs.pageCount
	}
	if info, err := attrs.infoJSON(); err != nil {
		return fmt.Errorf("error encoding audit info for %q: %w", documentID, err)
	} else if info != nil {
		updates["info"] = info
	}

	res := s.db.WithContext(ctx).
		Model(&models.AuditRecord{}).
		Where("document_id = ? AND status_rank <= ?", documentID, status.Rank()).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("error updating audit record for %q: %w", documentID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Either the row does not exist yet (stage invoked without intake) or a
	// higher-ranked status is already stored. Only the first case needs work.
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.AuditRecord{}).
		Where("document_id = ?", documentID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("error checking audit record for %q: %w", documentID, err)
	}
	if count > 0 {
		s.log.Debug("audit update superseded by a later status",
			"document_id", documentID, "status", status)
		return nil
	}

	rec := &models.AuditRecord{
		DocumentID: documentID,
		Status:     status,
	}
	if attrs.pageCount != nil {
		rec.PageCount = attrs.pageCount
	}
	if info, _ := attrs.infoJSON(); info != nil {
		rec.Info = info
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}},
			DoNothing: true,
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("error creating audit record for %q: %w", documentID, err)
	}
	return nil
}
