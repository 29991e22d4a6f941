package cache

import (
	"context"
	"time"

	"github.com/jonwraymond/fetchops/observe"
)

// Prune removes entries whose garbage collection time has passed at now
// and that nobody subscribes to, by request key or cache key. It returns
// the number of removed entries.
func (c *Cache) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, cacheKey := range c.storage.Keys() {
		bucket, ok := c.storage.Get(cacheKey)
		if !ok || c.HasSubscribers(cacheKey) {
			continue
		}
		for requestKey, e := range bucket {
			if !e.expired(now) || c.HasSubscribers(requestKey) {
				continue
			}
			c.deleteLocked(cacheKey, requestKey)
			removed++
		}
	}
	return removed
}

// StartGC prunes every interval until ctx is done.
func (c *Cache) StartGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Prune(c.now()); n > 0 {
					c.logger.Debug(ctx, "cache entries collected", observe.F("count", n))
				}
			}
		}
	}()
}
