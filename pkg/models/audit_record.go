package models

import (
	"time"

	"gorm.io/gorm"
)

// DocumentStatus is the audit status of a document as it moves through the
// pipeline. Transitions are monotone forward with one exception:
// MISSING_PAGES may repeat while the combine stage waits for pages.
type DocumentStatus string

const (
	StatusUploaded         DocumentStatus = "UPLOADED"
	StatusSplit            DocumentStatus = "SPLIT"
	StatusExtracted        DocumentStatus = "EXTRACTED"
	StatusMissingPages     DocumentStatus = "MISSING_PAGES"
	StatusCombined         DocumentStatus = "COMBINED"
	StatusPIIDetected      DocumentStatus = "PII_DETECTED"
	StatusRedactionStarted DocumentStatus = "REDACTION_STARTED"
	StatusRedactionError   DocumentStatus = "REDACTION_ERROR"
	StatusTimeout          DocumentStatus = "TIMEOUT"
	StatusFailed           DocumentStatus = "FAILED"
)

// statusRanks orders statuses for the conditional update guard. An update is
// applied only when the new rank is >= the stored rank, so racing writers
// converge and late stages can never move a document backward.
var statusRanks = map[DocumentStatus]int{
	StatusUploaded:         10,
	StatusSplit:            20,
	StatusExtracted:        30,
	StatusMissingPages:     40,
	StatusCombined:         50,
	StatusPIIDetected:      60,
	StatusRedactionStarted: 70,
	StatusRedactionError:   80,
	StatusTimeout:          90,
	StatusFailed:           100,
}

// Rank returns the ordering rank of the status. Unknown statuses rank 0 so
// they never overwrite a known one.
func (s DocumentStatus) Rank() int {
	return statusRanks[s]
}

// Valid reports whether the status is one of the known pipeline statuses.
func (s DocumentStatus) Valid() bool {
	_, ok := statusRanks[s]
	return ok
}

// AuditRecord is the per-document pipeline status row. One row per
// documentId; stages advance Status via conditional updates keyed by
// document_id.
type AuditRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// DocumentID is the stable pipeline identifier, unique per document.
	DocumentID string `gorm:"type:varchar(500);not null;uniqueIndex:idx_audit_document_id" json:"documentId"`

	Status DocumentStatus `gorm:"type:varchar(32);not null" json:"status"`
	// StatusRank mirrors Status for the compare-and-set guard.
	StatusRank int `gorm:"not null;default:0" json:"-"`

	// PageCount is set once the splitter or office extractor knows it.
	PageCount *int `gorm:"" json:"pageCount,omitempty"`

	// Info carries free-form stage detail (error text, engine name, ...).
	Info JSON `gorm:"type:json" json:"info,omitempty"`
}

// TableName specifies the table name.
func (AuditRecord) TableName() string {
	return "audit_records"
}

// BeforeCreate keeps StatusRank consistent with Status.
func (a *AuditRecord) BeforeCreate(tx *gorm.DB) error {
	if a.Status == "" {
		a.Status = StatusUploaded
	}
	a.StatusRank = a.Status.Rank()
	return nil
}

// GetAuditRecord retrieves the audit row for a document.
func GetAuditRecord(db *gorm.DB, documentID string) (*AuditRecord, error) {
	var rec AuditRecord
	if err := db.Where("document_id = ?", documentID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAuditRecordsByStatus returns all documents currently in a status.
func ListAuditRecordsByStatus(db *gorm.DB, status DocumentStatus) ([]AuditRecord, error) {
	var recs []AuditRecord
	err := db.Where("status = ?", status).
		Order("updated_at DESC").
		Find(&recs).Error
	return recs, err
}
