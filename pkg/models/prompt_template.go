package models

import (
	"time"

	"gorm.io/gorm"
)

// PromptTemplate is a stored prompt keyed by (prompt_id, version). The body
// uses {variable} placeholders substituted at render time.
type PromptTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	PromptID string `gorm:"type:varchar(255);not null;uniqueIndex:idx_prompt_templates_id_version,priority:1" json:"promptId"`
	Version  int    `gorm:"not null;uniqueIndex:idx_prompt_templates_id_version,priority:2" json:"version"`

	Template string `gorm:"type:text;not null" json:"template"`

	// Description is optional operator-facing documentation.
	Description string `gorm:"type:text" json:"description,omitempty"`
}

// TableName specifies the table name.
func (PromptTemplate) TableName() string {
	return "prompt_templates"
}

// GetPromptTemplate retrieves a template by id and version. Version 0 selects
// the latest version.
func GetPromptTemplate(db *gorm.DB, promptID string, version int) (*PromptTemplate, error) {
	var tpl PromptTemplate
	q := db.Where("prompt_id = ?", promptID)
	if version > 0 {
		q = q.Where("version = ?", version)
	} else {
		q = q.Order("version DESC")
	}
	if err := q.First(&tpl).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListPromptVersions returns every stored version of a prompt, newest first.
func ListPromptVersions(db *gorm.DB, promptID string) ([]PromptTemplate, error) {
	var tpls []PromptTemplate
	err := db.Where("prompt_id = ?", promptID).
		Order("version DESC").
		Find(&tpls).Error
	return tpls, err
}

// NextPromptVersion returns the next free version number for a prompt.
func NextPromptVersion(db *gorm.DB, promptID string) (int, error) {
	var max int
	err := db.Model(&PromptTemplate{}).
		Where("prompt_id = ?", promptID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
