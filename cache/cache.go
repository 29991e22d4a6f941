package cache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/jonwraymond/fetchops/observe"
	"github.com/jonwraymond/fetchops/response"
)

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
)

// Comparator reports whether two responses carry the same payload.
type Comparator func(a, b response.Response) bool

// DefaultComparator compares outcome, status, error text and data.
// Headers and duration are ignored.
func DefaultComparator(a, b response.Response) bool {
	if a.Outcome != b.Outcome || a.Status != b.Status {
		return false
	}
	if (a.Err == nil) != (b.Err == nil) {
		return false
	}
	if a.Err != nil && a.Err.Error() != b.Err.Error() {
		return false
	}
	return reflect.DeepEqual(a.Data, b.Data)
}

// SetInput describes one cache write.
type SetInput struct {
	CacheKey   string
	RequestKey string
	Response   response.Response
	// Retries is the number of attempts that failed before this one.
	Retries int
	// RetryPending marks a failure that will be retried.
	RetryPending bool
	// DeepEqual skips the write when the payload equals the stored one.
	DeepEqual   bool
	IsRefreshed bool
	// GarbageCollection of zero uses the policy default.
	GarbageCollection time.Duration
	// Timestamp of zero uses the cache clock.
	Timestamp time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithStorage replaces the default MemoryStorage.
func WithStorage(s Storage) Option {
	return func(c *Cache) {
		if s != nil {
			c.storage = s
		}
	}
}

// WithPolicy sets the garbage collection policy.
func WithPolicy(p Policy) Option {
	return func(c *Cache) { c.policy = p }
}

// WithInitialData seeds the store. Keys already present are kept.
func WithInitialData(s Snapshot) Option {
	return func(c *Cache) { c.seed = s }
}

// WithComparator replaces DefaultComparator.
func WithComparator(cmp Comparator) Option {
	return func(c *Cache) {
		if cmp != nil {
			c.equal = cmp
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records cache events.
func WithMetrics(m observe.Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is the two-level response store with per-key subscriptions.
type Cache struct {
	mu      sync.Mutex // serializes read-modify-write of buckets
	storage Storage
	policy  Policy
	equal   Comparator
	logger  observe.Logger
	metrics observe.Metrics
	now     func() time.Time
	seed    Snapshot
	ctx     context.Context
	version uint64 // mutation counter, guarded by mu

	subMu   sync.Mutex
	subs    map[string]map[uint64]Listener
	nextSub uint64
}

// New creates a Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		storage: NewMemoryStorage(),
		policy:  DefaultPolicy(),
		equal:   DefaultComparator,
		logger:  observe.NopLogger(),
		metrics: observe.NopMetrics(),
		now:     time.Now,
		ctx:     context.Background(),
		subs:    make(map[string]map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.applySeed()
	return c
}

func (c *Cache) applySeed() {
	for cacheKey, seeded := range c.seed {
		existing, ok := c.storage.Get(cacheKey)
		merged := existing.clone()
		added := 0
		for requestKey, e := range seeded {
			if _, present := merged[requestKey]; present {
				continue
			}
			merged[requestKey] = e
			added++
		}
		if added > 0 || !ok {
			c.storage.Set(cacheKey, merged)
		}
	}
	c.seed = nil
}

// Set writes a response. Canceled responses are ignored. It returns the
// entry now stored and whether a new entry was written. A deep-equal write
// over an entry without pending errors only bumps the timestamp and
// reports false; an entry carrying a refresh or retry error is always
// replaced so the error does not outlive the response that cleared it.
func (c *Cache) Set(in SetInput) (Entry, bool) {
	if in.CacheKey == "" || in.RequestKey == "" || in.Response.IsCanceled() {
		return Entry{}, false
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}

	c.mu.Lock()
	bucket, _ := c.storage.Get(in.CacheKey)
	prev, had := bucket[in.RequestKey]

	clean := prev.RefreshError == nil && prev.RetryError == nil
	if in.DeepEqual && had && clean && c.equal(prev.Response, in.Response) {
		prev.Timestamp = ts
		next := bucket.clone()
		next[in.RequestKey] = prev
		c.storage.Set(in.CacheKey, next)
		version := c.bumpLocked()
		c.mu.Unlock()

		c.emit(Event{Kind: EventRefreshed, CacheKey: in.CacheKey, RequestKey: in.RequestKey, Version: version},
			in.RequestKey, in.CacheKey)
		return prev, false
	}

	entry := c.route(prev, had, in, ts)
	next := bucket.clone()
	next[in.RequestKey] = entry
	c.storage.Set(in.CacheKey, next)
	version := c.bumpLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventSet, CacheKey: in.CacheKey, RequestKey: in.RequestKey, Entry: &entry, Version: version},
		in.RequestKey, in.CacheKey)
	return entry, true
}

// route builds the replacement entry. Refresh and retry failures keep a
// previous successful payload and its timestamp. A refresh failure with
// no valid payload to protect is stored as a terminal failure.
func (c *Cache) route(prev Entry, had bool, in SetInput, ts time.Time) Entry {
	valid := had && prev.Response.IsSuccess()

	var refreshErr, retryErr error
	if in.Response.IsFailure() {
		if in.IsRefreshed && valid {
			refreshErr = in.Response.Err
		}
		if in.RetryPending {
			retryErr = in.Response.Err
		}
	}

	payload := in.Response
	if (refreshErr != nil || retryErr != nil) && valid {
		payload = prev.Response
		ts = prev.Timestamp
	}

	return Entry{
		Response:          payload,
		RefreshError:      refreshErr,
		RetryError:        retryErr,
		Retries:           in.Retries,
		IsRefreshed:       in.IsRefreshed,
		Timestamp:         ts,
		GarbageCollection: c.policy.EffectiveGarbageCollection(in.GarbageCollection),
	}
}

// Get returns the entry for one variant. It never blocks on writers.
func (c *Cache) Get(cacheKey, requestKey string) (Entry, bool) {
	bucket, ok := c.storage.Get(cacheKey)
	if !ok {
		return Entry{}, false
	}
	e, ok := bucket[requestKey]
	return e, ok
}

// GetResponses returns a copy of every variant stored under cacheKey.
func (c *Cache) GetResponses(cacheKey string) (Bucket, bool) {
	bucket, ok := c.storage.Get(cacheKey)
	if !ok {
		return nil, false
	}
	return bucket.clone(), true
}

// DeleteEndpoint removes every variant under cacheKey and sends one
// revalidate event. Subscribers of the cache key and of any removed
// variant receive it once.
func (c *Cache) DeleteEndpoint(cacheKey string) {
	c.mu.Lock()
	bucket, _ := c.storage.Get(cacheKey)
	c.storage.Delete(cacheKey)
	version := c.bumpLocked()
	c.mu.Unlock()

	targets := make([]string, 0, len(bucket)+1)
	targets = append(targets, cacheKey)
	for requestKey := range bucket {
		targets = append(targets, requestKey)
	}
	c.emit(Event{Kind: EventRevalidate, CacheKey: cacheKey, Version: version}, targets...)
}

// DeleteResponse removes one variant and sends a revalidate event to its
// subscribers and to the endpoint's subscribers.
func (c *Cache) DeleteResponse(cacheKey, requestKey string) {
	c.mu.Lock()
	c.deleteLocked(cacheKey, requestKey)
	version := c.bumpLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventRevalidate, CacheKey: cacheKey, RequestKey: requestKey, Version: version},
		requestKey, cacheKey)
}

// bumpLocked numbers a mutation. Caller holds mu.
func (c *Cache) bumpLocked() uint64 {
	c.version++
	return c.version
}

func (c *Cache) deleteLocked(cacheKey, requestKey string) {
	bucket, ok := c.storage.Get(cacheKey)
	if !ok {
		return
	}
	if _, ok := bucket[requestKey]; !ok {
		return
	}
	next := bucket.clone()
	delete(next, requestKey)
	if len(next) == 0 {
		c.storage.Delete(cacheKey)
		return
	}
	c.storage.Set(cacheKey, next)
}

// Clear wipes the store. Subscriptions are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.storage.Clear()
	c.bumpLocked()
	c.mu.Unlock()
	c.logger.Debug(c.ctx, "cache cleared")
}

// Snapshot returns a copy of the whole store.
func (c *Cache) Snapshot() Snapshot {
	out := make(Snapshot)
	for _, cacheKey := range c.storage.Keys() {
		if bucket, ok := c.storage.Get(cacheKey); ok {
			out[cacheKey] = bucket.clone()
		}
	}
	return out
}

// Len returns the number of stored variants.
func (c *Cache) Len() int {
	n := 0
	for _, cacheKey := range c.storage.Keys() {
		if bucket, ok := c.storage.Get(cacheKey); ok {
			n += len(bucket)
		}
	}
	return n
}
