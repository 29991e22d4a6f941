// Package abort maps abort keys to cancellation handles.
//
// A Registry is owned by one client and passed by reference to the
// dispatcher and request descriptors. Aborting a key cancels every
// context derived for it and installs a fresh controller, so work
// submitted afterwards is unaffected.
package abort

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrAborted is the cancellation cause of contexts canceled by Abort.
var ErrAborted = errors.New("abort: request aborted")

// Listener is notified after a key has been aborted.
type Listener func(key string)

type controller struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	refs   int
}

// Registry tracks one controller per abort key.
type Registry struct {
	mu          sync.Mutex
	controllers map[string]*controller
	listeners   map[uint64]Listener
	nextID      uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		controllers: make(map[string]*controller),
		listeners:   make(map[uint64]Listener),
	}
}

// Context derives a context from parent that is canceled when key is
// aborted. The returned release func must be called once the work is
// done; it detaches the context from the key.
func (r *Registry) Context(parent context.Context, key string) (context.Context, context.CancelFunc) {
	r.mu.Lock()
	c, ok := r.controllers[key]
	if !ok {
		ctx, cancel := context.WithCancelCause(context.Background())
		c = &controller{ctx: ctx, cancel: cancel}
		r.controllers[key] = c
	}
	c.refs++
	r.mu.Unlock()

	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(c.ctx, func() {
		cancel(context.Cause(c.ctx))
	})

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			stop()
			cancel(context.Canceled)
			r.release(key, c)
		})
	}
}

func (r *Registry) release(key string, c *controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.refs--
	if c.refs <= 0 && r.controllers[key] == c {
		delete(r.controllers, key)
	}
}

// Abort cancels every context derived for key and notifies listeners.
// Listeners run even when no context is currently attached, so pending
// work that has not yet derived a context can still be dropped.
func (r *Registry) Abort(key string) {
	r.mu.Lock()
	c := r.controllers[key]
	delete(r.controllers, key)
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	if c != nil {
		c.cancel(ErrAborted)
	}
	for _, fn := range listeners {
		fn(key)
	}
}

// AbortAll aborts every key that currently has attached work.
func (r *Registry) AbortAll() {
	for _, key := range r.Keys() {
		r.Abort(key)
	}
}

// Keys returns the abort keys with attached work, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.controllers))
	for k := range r.controllers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OnAbort registers a listener and returns a func that removes it.
func (r *Registry) OnAbort(fn Listener) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Registry) snapshotListeners() []Listener {
	ids := make([]uint64, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.listeners[id])
	}
	return out
}
