package models

import (
	"time"

	"gorm.io/gorm"
)

// CollectionTTL registers an ephemeral vector collection for the reaper.
// A row exists only while the collection is alive; the reaper drops the
// collection and deletes the row once ExpiresAt has passed.
type CollectionTTL struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	// CollectionName is the vector-store namespace to drop at expiry.
	CollectionName string `gorm:"type:varchar(255);not null;uniqueIndex:idx_collection_ttls_name" json:"collectionName"`

	// StorageMode records which backend holds the collection so the reaper
	// can route the drop.
	StorageMode string `gorm:"type:varchar(32);not null" json:"storageMode"`

	ExpiresAt time.Time `gorm:"not null;index:idx_collection_ttls_expires" json:"expiresAt"`
}

// TableName specifies the table name.
func (CollectionTTL) TableName() string {
	return "collection_ttls"
}

// RegisterCollectionTTL upserts the registration for a collection. Re-creating
// an ephemeral collection refreshes its expiry.
func RegisterCollectionTTL(db *gorm.DB, name, storageMode string, expiresAt time.Time) error {
	var existing CollectionTTL
	err := db.Where("collection_name = ?", name).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return db.Create(&CollectionTTL{
			CollectionName: name,
			StorageMode:    storageMode,
			ExpiresAt:      expiresAt,
		}).Error
	}
	if err != nil {
		return err
	}
	return db.Model(&existing).Updates(map[string]interface{}{
		"storage_mode": storageMode,
		"expires_at":   expiresAt,
	}).Error
}

// FindExpiredCollections returns registrations whose expiry has passed.
func FindExpiredCollections(db *gorm.DB, now time.Time) ([]CollectionTTL, error) {
	var rows []CollectionTTL
	err := db.Where("expires_at < ?", now).
		Order("expires_at ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteCollectionTTL removes a registration after the drop succeeded.
// Deleting an already-removed row is not an error.
func DeleteCollectionTTL(db *gorm.DB, name string) error {
	return db.Where("collection_name = ?", name).Delete(&CollectionTTL{}).Error
}
