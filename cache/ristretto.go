package cache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// RistrettoStorage bounds the cache by total variant count. The cost of a
// bucket is the number of request keys it holds.
//
// Ristretto cannot enumerate its keys, so the storage tracks written keys
// and prunes the ones ristretto has evicted when Keys is called.
type RistrettoStorage struct {
	cache *ristretto.Cache

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewRistrettoStorage creates a storage admitting up to maxVariants
// request variants across all buckets.
func NewRistrettoStorage(maxVariants int64) (*RistrettoStorage, error) {
	if maxVariants <= 0 {
		return nil, fmt.Errorf("cache: ristretto storage: max variants must be positive, got %d", maxVariants)
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxVariants * 10,
		MaxCost:     maxVariants,
		BufferItems: 64,
		// Cost counts variants only, not ristretto's per-item overhead.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: ristretto storage: %w", err)
	}
	return &RistrettoStorage{cache: c, keys: make(map[string]struct{})}, nil
}

func (s *RistrettoStorage) Get(cacheKey string) (Bucket, bool) {
	v, ok := s.cache.Get(cacheKey)
	if !ok {
		return nil, false
	}
	return v.(Bucket), true
}

// Set waits for the buffered write so a following Get observes it.
// Ristretto may still reject the bucket under pressure.
func (s *RistrettoStorage) Set(cacheKey string, b Bucket) {
	cost := int64(len(b))
	if cost == 0 {
		cost = 1
	}
	s.cache.Set(cacheKey, b, cost)
	s.cache.Wait()

	s.mu.Lock()
	s.keys[cacheKey] = struct{}{}
	s.mu.Unlock()
}

func (s *RistrettoStorage) Delete(cacheKey string) {
	s.cache.Del(cacheKey)
	s.mu.Lock()
	delete(s.keys, cacheKey)
	s.mu.Unlock()
}

func (s *RistrettoStorage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		if _, ok := s.cache.Get(k); !ok {
			delete(s.keys, k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *RistrettoStorage) Clear() {
	s.cache.Clear()
	s.mu.Lock()
	s.keys = make(map[string]struct{})
	s.mu.Unlock()
}

// Close stops ristretto's background goroutines.
func (s *RistrettoStorage) Close() {
	s.cache.Close()
}

var _ Storage = (*RistrettoStorage)(nil)
