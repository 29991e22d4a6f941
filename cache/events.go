package cache

import "sort"

// EventKind identifies a cache notification.
type EventKind int

const (
	// EventSet carries a newly written entry.
	EventSet EventKind = iota
	// EventRefreshed reports a completed write whose payload equaled the
	// stored one; nothing observable changed.
	EventRefreshed
	// EventRevalidate asks subscribers to fetch again after a deletion.
	EventRevalidate
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventRefreshed:
		return "refreshed"
	case EventRevalidate:
		return "revalidate"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind     EventKind
	CacheKey string
	// RequestKey is empty for endpoint-wide revalidation.
	RequestKey string
	// Entry is set for EventSet.
	Entry *Entry
	// Version numbers the mutation that produced the event. Versions grow
	// in the order mutations were applied to the store.
	Version uint64
}

// Listener receives cache events. It runs on the goroutine that performed
// the mutation, after the store reflects it, and must not block.
//
// Events are delivered outside the cache lock, so writers racing on the
// same slot may reach a listener in a different order than their writes
// were applied. A listener that tracks the latest state should ignore an
// event whose Version is lower than one it has already seen. The event
// with the highest Version describes the last write or deletion of the
// slot; Clear and garbage collection send no events.
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// listenersFor returns the subscribers of keys, each at most once, in
// subscription order. Caller holds subMu.
func (c *Cache) listenersFor(keys ...string) []Listener {
	seen := make(map[uint64]bool)
	var subs []subscription
	for _, k := range keys {
		for id, fn := range c.subs[k] {
			if seen[id] {
				continue
			}
			seen[id] = true
			subs = append(subs, subscription{id: id, fn: fn})
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	out := make([]Listener, len(subs))
	for i, s := range subs {
		out[i] = s.fn
	}
	return out
}

// Subscribe registers fn for events on key, which may be a cache key or a
// request key. It returns a func that removes the subscription.
func (c *Cache) Subscribe(key string, fn Listener) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.subs[key] == nil {
		c.subs[key] = make(map[uint64]Listener)
	}
	c.subs[key][id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs[key], id)
		if len(c.subs[key]) == 0 {
			delete(c.subs, key)
		}
	}
}

// HasSubscribers reports whether anyone listens on key.
func (c *Cache) HasSubscribers(key string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs[key]) > 0
}

func (c *Cache) emit(ev Event, keys ...string) {
	c.subMu.Lock()
	listeners := c.listenersFor(keys...)
	c.subMu.Unlock()

	c.metrics.RecordCacheEvent(c.ctx, ev.Kind.String())
	for _, fn := range listeners {
		fn(ev)
	}
}
