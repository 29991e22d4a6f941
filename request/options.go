package request

import (
	"context"
	"time"

	"github.com/jonwraymond/fetchops/response"
)

// Options is the static definition a descriptor is created from.
type Options struct {
	Endpoint string
	Method   string
	Headers  map[string]string

	// Auth marks the request for the client's authenticator.
	Auth bool
	// Cancelable requests cancel earlier entries of the same queue key.
	Cancelable bool
	// Retry is the number of extra attempts after a failure.
	Retry     int
	RetryTime time.Duration

	// GarbageCollection is how long an unobserved cache entry is kept.
	// Zero keeps it until deleted.
	GarbageCollection time.Duration
	DisableCache      bool
	// CacheTime is how long a cached entry counts as fresh.
	CacheTime time.Duration

	Queued          bool
	Deduplicate     bool
	DeduplicateTime time.Duration
	// DeepEqual suppresses cache writes of payloads equal to the stored one.
	DeepEqual bool

	AbortKey string
	CacheKey string
	QueueKey string

	Actions []string
}

// Aborter cancels work grouped under an abort key.
type Aborter interface {
	Abort(key string)
}

// Scope binds descriptors to one client.
type Scope struct {
	Base    string
	Aborter Aborter
}

// MockFunc replaces the transport for a descriptor.
type MockFunc func(ctx context.Context, req Request) response.Response

// Override is a partial set of fields applied by Clone. Nil fields keep
// the current value.
type Override struct {
	Data            any
	Params          map[string]any
	Query           map[string]any
	Headers         map[string]string
	Cancelable      *bool
	Retry           *int
	RetryTime       *time.Duration
	CacheTime       *time.Duration
	Queued          *bool
	Deduplicate     *bool
	DeduplicateTime *time.Duration
	AbortKey        *string
	CacheKey        *string
	QueueKey        *string
}
