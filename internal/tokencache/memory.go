package tokencache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// MemoryStore is an in-process LRU-backed Store, selected by the
// "memory://" token_cache_url scheme.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, model.TokenRecord]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, model.TokenRecord](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*model.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Put(_ context.Context, rec model.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(rec.Key, rec)
	return nil
}
