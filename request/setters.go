package request

import "time"

// with returns a deep copy of r with fn applied.
func (r Request) with(fn func(*Request)) Request {
	c := r.clone()
	fn(&c)
	return c
}

// SetData replaces the body payload.
func (r Request) SetData(data any) Request {
	return r.with(func(c *Request) { c.data = data })
}

// SetParams replaces the path parameters.
func (r Request) SetParams(params map[string]any) Request {
	return r.with(func(c *Request) { c.params = copyAny(params) })
}

// SetQueryParams replaces the query parameters.
func (r Request) SetQueryParams(query map[string]any) Request {
	return r.with(func(c *Request) { c.query = copyAny(query) })
}

// SetHeaders replaces the headers.
func (r Request) SetHeaders(headers map[string]string) Request {
	return r.with(func(c *Request) { c.headers = copyStrings(headers) })
}

// SetHeader sets a single header, keeping the others.
func (r Request) SetHeader(name, value string) Request {
	return r.with(func(c *Request) {
		if c.headers == nil {
			c.headers = make(map[string]string, 1)
		}
		c.headers[name] = value
	})
}

func (r Request) SetAuth(auth bool) Request {
	return r.with(func(c *Request) { c.auth = auth })
}

func (r Request) SetCancelable(cancelable bool) Request {
	return r.with(func(c *Request) { c.cancelable = cancelable })
}

func (r Request) SetRetry(retry int) Request {
	return r.with(func(c *Request) { c.retry = retry })
}

func (r Request) SetRetryTime(d time.Duration) Request {
	return r.with(func(c *Request) { c.retryTime = d })
}

func (r Request) SetCacheTime(d time.Duration) Request {
	return r.with(func(c *Request) { c.cacheTime = d })
}

func (r Request) SetGarbageCollection(d time.Duration) Request {
	return r.with(func(c *Request) { c.garbageCollection = d })
}

func (r Request) SetCache(enabled bool) Request {
	return r.with(func(c *Request) { c.cache = enabled })
}

func (r Request) SetQueued(queued bool) Request {
	return r.with(func(c *Request) { c.queued = queued })
}

func (r Request) SetDeduplicate(dedupe bool) Request {
	return r.with(func(c *Request) { c.deduplicate = dedupe })
}

func (r Request) SetDeduplicateTime(d time.Duration) Request {
	return r.with(func(c *Request) { c.deduplicateTime = d })
}

func (r Request) SetDeepEqual(deepEqual bool) Request {
	return r.with(func(c *Request) { c.deepEqual = deepEqual })
}

// SetAbortKey pins the abort key. It is not derived again.
func (r Request) SetAbortKey(key string) Request {
	return r.with(func(c *Request) { c.abortKey, c.updatedAbortKey = key, true })
}

// SetCacheKey pins the cache key. It is not derived again.
func (r Request) SetCacheKey(key string) Request {
	return r.with(func(c *Request) { c.cacheKey, c.updatedCacheKey = key, true })
}

// SetQueueKey pins the queue key. It is not derived again.
func (r Request) SetQueueKey(key string) Request {
	return r.with(func(c *Request) { c.queueKey, c.updatedQueueKey = key, true })
}

// AddAction appends a named action unless it is already present.
func (r Request) AddAction(name string) Request {
	return r.with(func(c *Request) { c.actions = appendUnique(c.actions, name) })
}

// RemoveAction drops a named action.
func (r Request) RemoveAction(name string) Request {
	return r.with(func(c *Request) {
		kept := c.actions[:0]
		for _, a := range c.actions {
			if a != name {
				kept = append(kept, a)
			}
		}
		c.actions = kept
	})
}

// SetMock makes the dispatcher call fn instead of the transport.
func (r Request) SetMock(fn MockFunc) Request {
	return r.with(func(c *Request) { c.mock = fn })
}

// Clone returns a copy with the non-nil override fields applied.
// Explicit keys in the override become sticky.
func (r Request) Clone(o Override) Request {
	return r.with(func(c *Request) {
		if o.Data != nil {
			c.data = o.Data
		}
		if o.Params != nil {
			c.params = copyAny(o.Params)
		}
		if o.Query != nil {
			c.query = copyAny(o.Query)
		}
		if o.Headers != nil {
			c.headers = copyStrings(o.Headers)
		}
		if o.Cancelable != nil {
			c.cancelable = *o.Cancelable
		}
		if o.Retry != nil {
			c.retry = *o.Retry
		}
		if o.RetryTime != nil {
			c.retryTime = *o.RetryTime
		}
		if o.CacheTime != nil {
			c.cacheTime = *o.CacheTime
		}
		if o.Queued != nil {
			c.queued = *o.Queued
		}
		if o.Deduplicate != nil {
			c.deduplicate = *o.Deduplicate
		}
		if o.DeduplicateTime != nil {
			c.deduplicateTime = *o.DeduplicateTime
		}
		if o.AbortKey != nil {
			c.abortKey, c.updatedAbortKey = *o.AbortKey, true
		}
		if o.CacheKey != nil {
			c.cacheKey, c.updatedCacheKey = *o.CacheKey, true
		}
		if o.QueueKey != nil {
			c.queueKey, c.updatedQueueKey = *o.QueueKey, true
		}
	})
}
