package memstore

import (
	"context"
	"sync"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

type listedInfoKey struct {
	date string
	code string
}

// ListedInfoStore is an in-memory store.ListedInfoStore for tests.
type ListedInfoStore struct {
	mu      sync.Mutex
	records map[listedInfoKey]model.ListedInfo
}

func NewListedInfoStore() *ListedInfoStore {
	return &ListedInfoStore{records: make(map[listedInfoKey]model.ListedInfo)}
}

func (s *ListedInfoStore) BulkUpsert(_ context.Context, records []model.ListedInfo) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.records[listedInfoKey{date: rec.Date, code: rec.Code}] = rec
	}
	return len(records), nil
}

// All returns every stored record, for test assertions.
func (s *ListedInfoStore) All() []model.ListedInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ListedInfo, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
