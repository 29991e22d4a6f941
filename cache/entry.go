package cache

import (
	"time"

	"github.com/jonwraymond/fetchops/response"
)

// Entry is one cached result for one resolved request variant.
type Entry struct {
	// Response is the stored payload. It is the last successful response
	// when a refresh or retry failure was isolated.
	Response response.Response
	// RefreshError is set when a background refresh failed.
	RefreshError error
	// RetryError is set while a failed request still has attempts left.
	RetryError error
	Retries    int
	// IsRefreshed marks values written by a refresh.
	IsRefreshed bool
	Timestamp   time.Time
	// GarbageCollection is how long the entry survives without subscribers.
	// Zero disables collection.
	GarbageCollection time.Duration
}

// Data returns the payload data.
func (e Entry) Data() any { return e.Response.Data }

// Error returns the terminal error, if any. Refresh and retry failures
// that kept a previous payload are not terminal.
func (e Entry) Error() error {
	if e.Response.IsFailure() && e.RetryError == nil {
		return e.Response.Err
	}
	return nil
}

// IsStale reports whether the entry is older than cacheTime at now.
// A non-positive cacheTime makes every entry stale.
func (e Entry) IsStale(cacheTime time.Duration, now time.Time) bool {
	if cacheTime <= 0 {
		return true
	}
	return now.Sub(e.Timestamp) >= cacheTime
}

// expired reports whether garbage collection may remove the entry.
func (e Entry) expired(now time.Time) bool {
	return e.GarbageCollection > 0 && now.Sub(e.Timestamp) >= e.GarbageCollection
}

// Bucket maps request keys to entries under one cache key.
type Bucket map[string]Entry

func (b Bucket) clone() Bucket {
	out := make(Bucket, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Snapshot maps cache keys to buckets. It is the seed and export format.
type Snapshot map[string]Bucket
