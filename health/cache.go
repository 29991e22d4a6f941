package health

import (
	"context"
	"fmt"
)

// Sizer reports a number of stored entries. *cache.Cache satisfies it.
type Sizer interface {
	Len() int
}

// CacheCheckerConfig configures the cache size checker.
type CacheCheckerConfig struct {
	// MaxEntries is the entry count above which the cache is degraded.
	// Zero only reports the size.
	MaxEntries int
}

// CacheChecker reports the response cache size.
type CacheChecker struct {
	cache  Sizer
	config CacheCheckerConfig
}

// NewCacheChecker creates a cache size checker.
func NewCacheChecker(cache Sizer, config CacheCheckerConfig) *CacheChecker {
	return &CacheChecker{cache: cache, config: config}
}

// Name returns "cache".
func (c *CacheChecker) Name() string { return "cache" }

// Check reports the entry count.
func (c *CacheChecker) Check(ctx context.Context) Result {
	if r, done := canceled(ctx); done {
		return r
	}

	n := c.cache.Len()
	details := map[string]any{"entries": n, "max_entries": c.config.MaxEntries}
	if c.config.MaxEntries > 0 && n > c.config.MaxEntries {
		return Degraded(fmt.Sprintf("cache holds %d entries, above %d", n, c.config.MaxEntries)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("cache holds %d entries", n)).WithDetails(details)
}
