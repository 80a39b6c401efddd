package audit

import (
	"context"

	"github.com/vellum-io/vellum/pkg/models"
)

// NoopStore discards all writes. Used when no audit table is configured so
// the pipeline still runs with best-effort auditing.
type NoopStore struct{}

// NewNoopStore returns a store that accepts and discards every write.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (*NoopStore) CreateIfAbsent(context.Context, string, models.DocumentStatus) error {
	return nil
}

func (*NoopStore) Update(context.Context, string, models.DocumentStatus, ...UpdateOption) error {
	return nil
}
