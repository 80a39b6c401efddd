package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/vellum-io/vellum/pkg/models"
)

// MemStore keeps audit state in process memory with the same conditional
// advance semantics as the gorm store. It backs tests and DB-less local
// runs; state does not survive the process.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*memRecord
}

type memRecord struct {
	status    models.DocumentStatus
	pageCount *int
	info      map[string]interface{}
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory audit store.
func NewMemStore() *MemStore {
	return &MemStore{records: map[string]*memRecord{}}
}

func (s *MemStore) CreateIfAbsent(ctx context.Context, documentID string, status models.DocumentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown document status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[documentID]; !ok {
		s.records[documentID] = &memRecord{status: status}
	}
	return nil
}

func (s *MemStore) Update(ctx context.Context, documentID string, status models.DocumentStatus, opts ...UpdateOption) error {
	if !status.Valid() {
		return fmt.Errorf("unknown document status %q", status)
	}
	var attrs updateAttrs
	for _, opt := range opts {
		opt(&attrs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[documentID]
	if !ok {
		rec = &memRecord{status: status}
		s.records[documentID] = rec
	}
	if rec.status.Rank() > status.Rank() {
		return nil
	}
	rec.status = status
	if attrs.pageCount != nil {
		rec.pageCount = attrs.pageCount
	}
	for k, v := range attrs.info {
		if rec.info == nil {
			rec.info = map[string]interface{}{}
		}
		rec.info[k] = v
	}
	return nil
}

// Status returns the recorded status for a document, or "" when the document
// was never seen.
func (s *MemStore) Status(documentID string) models.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[documentID]
	if !ok {
		return ""
	}
	return rec.status
}

// PageCount returns the recorded page count and whether one was set.
func (s *MemStore) PageCount(documentID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[documentID]
	if !ok || rec.pageCount == nil {
		return 0, false
	}
	return *rec.pageCount, true
}

// Info returns one info attribute of a document.
func (s *MemStore) Info(documentID, key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[documentID]
	if !ok || rec.info == nil {
		return nil, false
	}
	v, ok := rec.info[key]
	return v, ok
}
