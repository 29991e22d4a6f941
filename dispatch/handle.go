package dispatch

import (
	"context"
	"sync"

	"github.com/jonwraymond/fetchops/cache"
	"github.com/jonwraymond/fetchops/response"
)

// Result is the final outcome of one submission.
type Result struct {
	Response response.Response
	// Retries is the number of failed attempts before the final one.
	Retries int
	// Entry is the cache entry written for the final response; nil when
	// caching is disabled for the descriptor or the response was canceled.
	Entry *cache.Entry
	// Shared reports that the result came from another submission's
	// execution.
	Shared bool
}

// Handle tracks one submission.
type Handle struct {
	id     string
	done   chan struct{}
	cancel context.CancelCauseFunc

	once   sync.Once
	result Result
}

func newHandle(id string, cancel context.CancelCauseFunc) *Handle {
	return &Handle{id: id, done: make(chan struct{}), cancel: cancel}
}

// ID returns the submission id.
func (h *Handle) ID() string { return h.id }

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the result is available or ctx ends. The error is
// ctx's error; outcomes of the execution are reported in Result.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the result if the submission has finished.
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// Shared reports whether the finished submission shared another
// execution's result.
func (h *Handle) Shared() bool {
	r, ok := h.Result()
	return ok && r.Shared
}

// Cancel cancels this submission only. Pending submissions are dropped.
func (h *Handle) Cancel() {
	h.cancel(response.ErrCanceled)
}

func (h *Handle) complete(r Result) bool {
	first := false
	h.once.Do(func() {
		h.result = r
		close(h.done)
		first = true
	})
	return first
}
