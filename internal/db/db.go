// Package db opens the relational store backing audit records, ephemeral
// collection registrations, and prompt templates.
package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/models"
)

// Open connects per the configured driver. The schema is the migrate
// command's job; Open expects a migrated database.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is empty: %w", kind.ErrConfigMissing)
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch cfg.Driver {
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %v: %w", err, kind.ErrBackendUnavailable)
		}
		return db, nil

	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite at %s: %v: %w", cfg.DSN, err, kind.ErrBackendUnavailable)
		}
		// sqlite serializes writers; a single connection avoids
		// SQLITE_BUSY under concurrent stage workers.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q: %w", cfg.Driver, kind.ErrConfigMissing)
	}
}

// AutoMigrate creates the schema directly through gorm. Local sqlite runs
// and tests use it; deployments run the versioned migrations instead.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		return fmt.Errorf("auto-migrating schema: %w", err)
	}
	return nil
}
