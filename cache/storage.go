package cache

import (
	"sort"
	"sync"
)

// Storage holds buckets by cache key.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Ownership: buckets passed to Set are never mutated afterwards; Get
//     may return the stored bucket itself and callers must not mutate it.
//   - Eviction: bounded drivers may drop buckets at any time.
type Storage interface {
	Get(cacheKey string) (Bucket, bool)
	Set(cacheKey string, b Bucket)
	Delete(cacheKey string)
	Keys() []string
	Clear()
}

// MemoryStorage is an unbounded map-backed Storage.
type MemoryStorage struct {
	mu      sync.RWMutex
	buckets map[string]Bucket
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{buckets: make(map[string]Bucket)}
}

func (s *MemoryStorage) Get(cacheKey string) (Bucket, bool) {
	s.mu.RLock()
	b, ok := s.buckets[cacheKey]
	s.mu.RUnlock()
	return b, ok
}

func (s *MemoryStorage) Set(cacheKey string, b Bucket) {
	s.mu.Lock()
	s.buckets[cacheKey] = b
	s.mu.Unlock()
}

func (s *MemoryStorage) Delete(cacheKey string) {
	s.mu.Lock()
	delete(s.buckets, cacheKey)
	s.mu.Unlock()
}

func (s *MemoryStorage) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.buckets))
	for k := range s.buckets {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (s *MemoryStorage) Clear() {
	s.mu.Lock()
	s.buckets = make(map[string]Bucket)
	s.mu.Unlock()
}

var _ Storage = (*MemoryStorage)(nil)
