package cache

import (
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru"
)

// LRUStorage keeps at most size endpoint buckets, evicting the least
// recently used one.
type LRUStorage struct {
	cache *lru.Cache
}

// NewLRUStorage creates an LRUStorage holding up to size buckets.
func NewLRUStorage(size int) (*LRUStorage, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("cache: lru storage: %w", err)
	}
	return &LRUStorage{cache: c}, nil
}

func (s *LRUStorage) Get(cacheKey string) (Bucket, bool) {
	v, ok := s.cache.Get(cacheKey)
	if !ok {
		return nil, false
	}
	return v.(Bucket), true
}

func (s *LRUStorage) Set(cacheKey string, b Bucket) {
	s.cache.Add(cacheKey, b)
}

func (s *LRUStorage) Delete(cacheKey string) {
	s.cache.Remove(cacheKey)
}

func (s *LRUStorage) Keys() []string {
	raw := s.cache.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(string))
	}
	sort.Strings(keys)
	return keys
}

func (s *LRUStorage) Clear() {
	s.cache.Purge()
}

var _ Storage = (*LRUStorage)(nil)
