package request

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/fetchops/keys"
)

// Request is an immutable descriptor of one configured operation.
// The zero value is not usable; create descriptors with New or FromDump.
type Request struct {
	scope    Scope
	endpoint string
	method   string

	headers map[string]string
	params  map[string]any
	query   map[string]any
	data    any

	auth              bool
	cancelable        bool
	retry             int
	retryTime         time.Duration
	garbageCollection time.Duration
	cache             bool
	cacheTime         time.Duration
	queued            bool
	deduplicate       bool
	deduplicateTime   time.Duration
	deepEqual         bool

	abortKey        string
	cacheKey        string
	queueKey        string
	updatedAbortKey bool
	updatedCacheKey bool
	updatedQueueKey bool

	actions []string
	mock    MockFunc
}

// New creates a descriptor from a static definition.
func New(scope Scope, opts Options) Request {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	r := Request{
		scope:             scope,
		endpoint:          opts.Endpoint,
		method:            method,
		headers:           copyStrings(opts.Headers),
		auth:              opts.Auth,
		cancelable:        opts.Cancelable,
		retry:             opts.Retry,
		retryTime:         opts.RetryTime,
		garbageCollection: opts.GarbageCollection,
		cache:             !opts.DisableCache,
		cacheTime:         opts.CacheTime,
		queued:            opts.Queued,
		deduplicate:       opts.Deduplicate,
		deduplicateTime:   opts.DeduplicateTime,
		deepEqual:         opts.DeepEqual,
	}
	if opts.AbortKey != "" {
		r.abortKey, r.updatedAbortKey = opts.AbortKey, true
	}
	if opts.CacheKey != "" {
		r.cacheKey, r.updatedCacheKey = opts.CacheKey, true
	}
	if opts.QueueKey != "" {
		r.queueKey, r.updatedQueueKey = opts.QueueKey, true
	}
	for _, a := range opts.Actions {
		r.actions = appendUnique(r.actions, a)
	}
	return r
}

// Endpoint returns the endpoint template. It never changes across clones.
func (r Request) Endpoint() string { return r.endpoint }

// Method returns the upper-case method.
func (r Request) Method() string { return r.method }

// Base returns the base URL of the owning scope.
func (r Request) Base() string { return r.scope.Base }

// Headers returns a copy of the headers.
func (r Request) Headers() map[string]string { return copyStrings(r.headers) }

// Params returns a copy of the path parameters.
func (r Request) Params() map[string]any { return copyAny(r.params) }

// Query returns a copy of the query parameters.
func (r Request) Query() map[string]any { return copyAny(r.query) }

// Data returns the body payload.
func (r Request) Data() any { return r.data }

func (r Request) Auth() bool                       { return r.auth }
func (r Request) Cancelable() bool                 { return r.cancelable }
func (r Request) Retry() int                       { return r.retry }
func (r Request) RetryTime() time.Duration         { return r.retryTime }
func (r Request) GarbageCollection() time.Duration { return r.garbageCollection }
func (r Request) Cache() bool                      { return r.cache }
func (r Request) CacheTime() time.Duration         { return r.cacheTime }
func (r Request) Queued() bool                     { return r.queued }
func (r Request) Deduplicate() bool                { return r.deduplicate }
func (r Request) DeduplicateTime() time.Duration   { return r.deduplicateTime }
func (r Request) DeepEqual() bool                  { return r.deepEqual }
func (r Request) Mock() MockFunc                   { return r.mock }

// Actions returns the action names in insertion order.
func (r Request) Actions() []string {
	return append([]string(nil), r.actions...)
}

// AbortKey returns the explicit abort key or the derived one.
func (r Request) AbortKey() string {
	if r.updatedAbortKey {
		return r.abortKey
	}
	return keys.Abort(r.method, r.scope.Base, r.endpoint)
}

// CacheKey returns the explicit cache key or the derived one.
func (r Request) CacheKey() string {
	if r.updatedCacheKey {
		return r.cacheKey
	}
	return keys.Cache(r.method, r.scope.Base, r.endpoint)
}

// QueueKey returns the explicit queue key or the derived one.
func (r Request) QueueKey() string {
	if r.updatedQueueKey {
		return r.queueKey
	}
	return keys.Queue(r.method, r.scope.Base, r.endpoint)
}

// RequestKey identifies the fully resolved variant. It is always derived.
func (r Request) RequestKey() string {
	return keys.Request(r.method, r.Path(), r.query)
}

// Validate reports configuration errors that must stop a send.
func (r Request) Validate() error {
	if strings.TrimSpace(r.endpoint) == "" {
		return &ConfigError{Endpoint: r.endpoint, Err: ErrMissingEndpoint}
	}
	if _, err := r.ResolvePath(); err != nil {
		return err
	}
	explicit := []struct {
		set bool
		key string
	}{
		{r.updatedAbortKey, r.abortKey},
		{r.updatedCacheKey, r.cacheKey},
		{r.updatedQueueKey, r.queueKey},
	}
	for _, k := range explicit {
		if !k.set {
			continue
		}
		if err := keys.Validate(k.key); err != nil {
			return &ConfigError{Endpoint: r.endpoint, Err: fmt.Errorf("%w: %w", ErrInvalidKey, err)}
		}
	}
	return nil
}

// Abort cancels work registered under the abort key and returns a fresh
// clone of the descriptor.
func (r Request) Abort() Request {
	if r.scope.Aborter != nil {
		r.scope.Aborter.Abort(r.AbortKey())
	}
	return r.clone()
}

// clone copies every reference field.
func (r Request) clone() Request {
	c := r
	c.headers = copyStrings(r.headers)
	c.params = copyAny(r.params)
	c.query = copyAny(r.query)
	c.actions = append([]string(nil), r.actions...)
	return c
}

func appendUnique(list []string, name string) []string {
	if name == "" {
		return list
	}
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyAny(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = copyAny(nested)
		}
		out[k] = v
	}
	return out
}
