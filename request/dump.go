package request

import "time"

// Dump is a plain snapshot of a descriptor. It carries the sticky-key
// bits so a descriptor recreated with FromDump keeps its overrides.
type Dump struct {
	Endpoint          string            `json:"endpoint"`
	Method            string            `json:"method"`
	Headers           map[string]string `json:"headers,omitempty"`
	Params            map[string]any    `json:"params,omitempty"`
	Query             map[string]any    `json:"queryParams,omitempty"`
	Data              any               `json:"data,omitempty"`
	Auth              bool              `json:"auth,omitempty"`
	Cancelable        bool              `json:"cancelable,omitempty"`
	Retry             int               `json:"retry,omitempty"`
	RetryTime         time.Duration     `json:"retryTime,omitempty"`
	GarbageCollection time.Duration     `json:"garbageCollection,omitempty"`
	Cache             bool              `json:"cache"`
	CacheTime         time.Duration     `json:"cacheTime,omitempty"`
	Queued            bool              `json:"queued,omitempty"`
	Deduplicate       bool              `json:"deduplicate,omitempty"`
	DeduplicateTime   time.Duration     `json:"deduplicateTime,omitempty"`
	DeepEqual         bool              `json:"deepEqual,omitempty"`
	AbortKey          string            `json:"abortKey"`
	CacheKey          string            `json:"cacheKey"`
	QueueKey          string            `json:"queueKey"`
	RequestKey        string            `json:"requestKey"`
	UpdatedAbortKey   bool              `json:"updatedAbortKey,omitempty"`
	UpdatedCacheKey   bool              `json:"updatedCacheKey,omitempty"`
	UpdatedQueueKey   bool              `json:"updatedQueueKey,omitempty"`
	Actions           []string          `json:"actions,omitempty"`
}

// Dump serializes the descriptor. Derived keys are included for reference;
// only the sticky ones are restored by FromDump.
func (r Request) Dump() Dump {
	return Dump{
		Endpoint:          r.endpoint,
		Method:            r.method,
		Headers:           r.Headers(),
		Params:            r.Params(),
		Query:             r.Query(),
		Data:              r.data,
		Auth:              r.auth,
		Cancelable:        r.cancelable,
		Retry:             r.retry,
		RetryTime:         r.retryTime,
		GarbageCollection: r.garbageCollection,
		Cache:             r.cache,
		CacheTime:         r.cacheTime,
		Queued:            r.queued,
		Deduplicate:       r.deduplicate,
		DeduplicateTime:   r.deduplicateTime,
		DeepEqual:         r.deepEqual,
		AbortKey:          r.AbortKey(),
		CacheKey:          r.CacheKey(),
		QueueKey:          r.QueueKey(),
		RequestKey:        r.RequestKey(),
		UpdatedAbortKey:   r.updatedAbortKey,
		UpdatedCacheKey:   r.updatedCacheKey,
		UpdatedQueueKey:   r.updatedQueueKey,
		Actions:           r.Actions(),
	}
}

// FromDump recreates a descriptor from a snapshot.
func FromDump(scope Scope, d Dump) Request {
	r := New(scope, Options{
		Endpoint:          d.Endpoint,
		Method:            d.Method,
		Headers:           d.Headers,
		Auth:              d.Auth,
		Cancelable:        d.Cancelable,
		Retry:             d.Retry,
		RetryTime:         d.RetryTime,
		GarbageCollection: d.GarbageCollection,
		DisableCache:      !d.Cache,
		CacheTime:         d.CacheTime,
		Queued:            d.Queued,
		Deduplicate:       d.Deduplicate,
		DeduplicateTime:   d.DeduplicateTime,
		DeepEqual:         d.DeepEqual,
		Actions:           d.Actions,
	})
	r.params = copyAny(d.Params)
	r.query = copyAny(d.Query)
	r.data = d.Data
	if d.UpdatedAbortKey {
		r.abortKey, r.updatedAbortKey = d.AbortKey, true
	}
	if d.UpdatedCacheKey {
		r.cacheKey, r.updatedCacheKey = d.CacheKey, true
	}
	if d.UpdatedQueueKey {
		r.queueKey, r.updatedQueueKey = d.QueueKey, true
	}
	return r
}
