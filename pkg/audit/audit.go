// Package audit tracks per-document pipeline progress. Every stage reports
// its outcome here; the store is best-effort and must never fail a stage on
// its own.
package audit

import (
	"context"
	"encoding/json"

	"github.com/vellum-io/vellum/pkg/models"
)

// Store records document status transitions. Implementations must tolerate
// concurrent writers for the same document: writes are conditional and racing
// writers converge on the highest-ranked status.
type Store interface {
	// CreateIfAbsent inserts the audit row for a document if none exists.
	// Creating an existing document is not an error.
	CreateIfAbsent(ctx context.Context, documentID string, status models.DocumentStatus) error

	// Update advances the document status. The write is applied only when
	// the new status does not rank below the stored one, so a stale writer
	// can never move a document backward.
	Update(ctx context.Context, documentID string, status models.DocumentStatus, opts ...UpdateOption) error
}

// UpdateOption attaches optional attributes to a status update.
type UpdateOption func(*updateAttrs)

type updateAttrs struct {
	pageCount *int
	info      map[string]interface{}
}

// WithPageCount records the page count alongside the status.
func WithPageCount(n int) UpdateOption {
	return func(a *updateAttrs) {
		a.pageCount = &n
	}
}

// WithInfo attaches free-form detail (error text, engine name, ...) to the
// update. Later calls merge over earlier ones.
func WithInfo(key string, value interface{}) UpdateOption {
	return func(a *updateAttrs) {
		if a.info == nil {
			a.info = map[string]interface{}{}
		}
		a.info[key] = value
	}
}

func (a *updateAttrs) infoJSON() (models.JSON, error) {
	if a.info == nil {
		return nil, nil
	}
	b, err := json.Marshal(a.info)
	if err != nil {
		return nil, err
	}
	return models.JSON(b), nil
}
