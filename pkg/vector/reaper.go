package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/models"
	"github.com/vellum-io/vellum/pkg/objectstore"
)

// Reaper sweeps two kinds of garbage on a cron schedule: ephemeral vector
// collections past their expiry, and raw source objects tagged
// pending-delete longer ago than the retention window. Both sweeps are
// idempotent, so a crash mid-sweep just means the next tick finishes the
// job.
type Reaper struct {
	db       *gorm.DB
	backends map[string]Store

	gw        objectstore.Gateway
	bucket    string
	rawPrefix string

	schedule  string
	retention time.Duration
	now       func() time.Time

	cron *cron.Cron
	log  hclog.Logger
}

// NewReaper wires the reaper. gw may be nil to disable the source sweep.
func NewReaper(cfg *config.Config, db *gorm.DB, backends map[string]Store, gw objectstore.Gateway, log hclog.Logger) *Reaper {
	return &Reaper{
		db:        db,
		backends:  backends,
		gw:        gw,
		bucket:    cfg.ObjectStore.Bucket,
		rawPrefix: cfg.Prefixes.Raw,
		schedule:  cfg.Reaper.Schedule,
		retention: time.Duration(cfg.Reaper.SourceRetentionSeconds) * time.Second,
		now:       time.Now,
		log:       log.Named("reaper"),
	}
}

// Start registers the sweep on the cron schedule and begins ticking. The
// schedule carries a seconds field.
func (r *Reaper) Start() error {
	r.cron = cron.New(cron.WithSeconds())
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := r.Sweep(ctx); err != nil {
			r.log.Error("collection sweep failed", "error", err)
		}
		if err := r.SweepSources(ctx); err != nil {
			r.log.Error("source sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling reaper: %w", err)
	}
	r.cron.Start()
	r.log.Info("reaper started", "schedule", r.schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// Sweep drops every registered collection whose expiry has passed, then
// removes its registration. A failed drop keeps the row so the next tick
// retries; backends tolerate dropping a collection that is already gone.
func (r *Reaper) Sweep(ctx context.Context) error {
	expired, err := models.FindExpiredCollections(r.db, r.now().UTC())
	if err != nil {
		return fmt.Errorf("error finding expired collections: %w", err)
	}

	for _, row := range expired {
		backend, ok := r.backends[row.StorageMode]
		if !ok {
			r.log.Error("no backend for expired collection",
				"collection", row.CollectionName, "mode", row.StorageMode)
			continue
		}
		if err := backend.DropCollection(ctx, row.CollectionName); err != nil {
			r.log.Error("failed to drop expired collection",
				"collection", row.CollectionName, "error", err)
			continue
		}
		if err := models.DeleteCollectionTTL(r.db, row.CollectionName); err != nil {
			r.log.Error("failed to deregister collection",
				"collection", row.CollectionName, "error", err)
			continue
		}
		r.log.Info("dropped expired collection",
			"collection", row.CollectionName, "expired_at", row.ExpiresAt)
	}
	return nil
}

// SweepSources deletes raw objects whose pending-delete tag is older than
// the retention window. The cutoff is measured from the tag time, not the
// object's upload time, so re-classified objects get a fresh window.
func (r *Reaper) SweepSources(ctx context.Context) error {
	if r.gw == nil || r.retention <= 0 {
		return nil
	}

	keys, err := r.gw.List(ctx, r.bucket, r.rawPrefix)
	if err != nil {
		return fmt.Errorf("error listing raw objects: %w", err)
	}

	cutoff := r.now().UTC().Add(-r.retention)
	for _, key := range keys {
		tags, err := r.gw.GetTags(ctx, r.bucket, key)
		if err != nil {
			r.log.Warn("failed to read tags", "key", key, "error", err)
			continue
		}
		stamp, ok := tags[objectstore.TagPendingDelete]
		if !ok {
			continue
		}
		taggedAt, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			r.log.Warn("unparseable pending-delete tag", "key", key, "value", stamp)
			continue
		}
		if taggedAt.After(cutoff) {
			continue
		}
		if err := r.gw.Delete(ctx, r.bucket, key); err != nil {
			r.log.Warn("failed to delete source object", "key", key, "error", err)
			continue
		}
		r.log.Info("deleted routed source object", "key", key, "tagged_at", taggedAt)
	}
	return nil
}
