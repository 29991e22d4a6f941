package dispatch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/fetchops/abort"
	"github.com/jonwraymond/fetchops/cache"
	"github.com/jonwraymond/fetchops/observe"
	"github.com/jonwraymond/fetchops/request"
	"github.com/jonwraymond/fetchops/resilience"
	"github.com/jonwraymond/fetchops/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// fakeAdapter records calls and optionally blocks each one until a token
// is sent on release.
type fakeAdapter struct {
	mu      sync.Mutex
	calls   []string
	started chan string
	release chan struct{}
	respond func(n int, req request.Request) response.Response
}

func (f *fakeAdapter) Execute(ctx context.Context, req request.Request) response.Response {
	f.mu.Lock()
	f.calls = append(f.calls, req.Path())
	n := len(f.calls)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- req.Path()
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return response.Cancel(context.Cause(ctx))
		}
	}
	if f.respond != nil {
		return f.respond(n, req)
	}
	return response.OK(req.Path(), 200)
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newReq(opts request.Options) request.Request {
	return request.New(request.Scope{Base: "https://api.test"}, opts)
}

func item(id string, opts request.Options) request.Request {
	opts.Endpoint = "/items/:id"
	return newReq(opts).SetParams(map[string]any{"id": id})
}

func newDispatcher(t *testing.T, a *fakeAdapter, c *cache.Cache, opts ...Option) *Dispatcher {
	t.Helper()
	d := New(a, c, abort.NewRegistry(), Config{}, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})
	return d
}

func wait(t *testing.T, h *Handle) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := h.Wait(ctx)
	require.NoError(t, err)
	return r
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport call")
		return ""
	}
}

func assertIdle(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case s := <-ch:
		t.Fatalf("unexpected transport call %s", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func submit(t *testing.T, d *Dispatcher, req request.Request, opts ...SubmitOption) *Handle {
	t.Helper()
	h, err := d.Submit(context.Background(), req, opts...)
	require.NoError(t, err)
	require.NotEmpty(t, h.ID())
	return h
}

func TestSubmit_QueuedLaneIsFIFO(t *testing.T) {
	a := &fakeAdapter{started: make(chan string, 3), release: make(chan struct{})}
	d := newDispatcher(t, a, cache.New())

	queued := request.Options{Queued: true}
	hA := submit(t, d, item("A", queued))
	hB := submit(t, d, item("B", queued))
	hC := submit(t, d, item("C", queued))
	lane := item("A", queued).QueueKey()

	assert.Equal(t, "/items/A", recv(t, a.started))
	assertIdle(t, a.started)
	assert.Equal(t, 2, d.Pending(lane))
	assert.Equal(t, 1, d.Running(lane))

	a.release <- struct{}{}
	assert.Equal(t, "/items/A", wait(t, hA).Response.Data)
	assert.Equal(t, "/items/B", recv(t, a.started))
	assertIdle(t, a.started)

	a.release <- struct{}{}
	wait(t, hB)
	assert.Equal(t, "/items/C", recv(t, a.started))
	a.release <- struct{}{}
	wait(t, hC)

	assert.Equal(t, Stats{}, d.Stats())
}

func TestSubmit_NonQueuedRunsConcurrently(t *testing.T) {
	a := &fakeAdapter{started: make(chan string, 2), release: make(chan struct{})}
	d := newDispatcher(t, a, cache.New())

	submit(t, d, item("A", request.Options{}))
	submit(t, d, item("B", request.Options{}))

	got := []string{recv(t, a.started), recv(t, a.started)}
	assert.ElementsMatch(t, []string{"/items/A", "/items/B"}, got)
	assert.Equal(t, 2, d.Running(item("A", request.Options{}).QueueKey()))
	close(a.release)
}

func TestSubmit_ConfigurationErrorIsSynchronous(t *testing.T) {
	a := &fakeAdapter{}
	d := newDispatcher(t, a, cache.New())

	_, err := d.Submit(context.Background(), newReq(request.Options{Endpoint: "/users/:id"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, request.ErrUnresolvedParams)
	assert.Zero(t, a.count())
}

func TestSubmit_DeduplicatesWithinWindow(t *testing.T) {
	a := &fakeAdapter{release: make(chan struct{})}
	now := time.Unix(1_700_000_000, 0)
	d := newDispatcher(t, a, cache.New(), WithClock(func() time.Time { return now }))

	req := newReq(request.Options{Endpoint: "/users/:id", Deduplicate: true, DeduplicateTime: time.Second}).
		SetParams(map[string]any{"id": 1})

	handles := []*Handle{submit(t, d, req), submit(t, d, req), submit(t, d, req)}
	require.Eventually(t, func() bool { return a.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(a.release)

	shared := 0
	for _, h := range handles {
		r := wait(t, h)
		require.True(t, r.Response.IsSuccess())
		assert.Equal(t, "/users/1", r.Response.Data)
		if r.Shared {
			shared++
			assert.True(t, h.Shared())
		}
	}
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 2, shared)
}

func TestSubmit_DeduplicateWindowExpired(t *testing.T) {
	a := &fakeAdapter{release: make(chan struct{})}
	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	d := newDispatcher(t, a, cache.New(), WithClock(clock))

	req := newReq(request.Options{Endpoint: "/users", Deduplicate: true, DeduplicateTime: 10 * time.Millisecond})
	h1 := submit(t, d, req)
	require.Eventually(t, func() bool { return a.count() == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()
	h2 := submit(t, d, req)
	require.Eventually(t, func() bool { return a.count() == 2 }, time.Second, time.Millisecond)

	close(a.release)
	assert.False(t, wait(t, h1).Shared)
	assert.False(t, wait(t, h2).Shared)
}

func TestSubmit_RetryWritesPendingErrors(t *testing.T) {
	c := cache.New()
	req := newReq(request.Options{Endpoint: "/flaky", Retry: 2, RetryTime: time.Millisecond})

	var mu sync.Mutex
	var entries []cache.Entry
	c.Subscribe(req.RequestKey(), func(ev cache.Event) {
		if ev.Kind == cache.EventSet {
			mu.Lock()
			entries = append(entries, *ev.Entry)
			mu.Unlock()
		}
	})

	a := &fakeAdapter{respond: func(n int, _ request.Request) response.Response {
		if n < 3 {
			return response.Fail(errBoom, nil, 503)
		}
		return response.OK("ok", 200)
	}}
	d := newDispatcher(t, a, c)

	r := wait(t, submit(t, d, req))
	require.True(t, r.Response.IsSuccess())
	assert.Equal(t, 2, r.Retries)
	assert.Equal(t, 3, a.count())
	require.NotNil(t, r.Entry)
	assert.Equal(t, "ok", r.Entry.Data())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, entries, 3)
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, entries[i].RetryError, errBoom)
		assert.Equal(t, i, entries[i].Retries)
		assert.NoError(t, entries[i].Error())
	}
	assert.NoError(t, entries[2].RetryError)
	assert.Equal(t, 2, entries[2].Retries)
}

func TestSubmit_RetryExhaustedIsTerminal(t *testing.T) {
	c := cache.New()
	a := &fakeAdapter{respond: func(int, request.Request) response.Response {
		return response.Fail(errBoom, nil, 500)
	}}
	d := newDispatcher(t, a, c)
	req := newReq(request.Options{Endpoint: "/down", Retry: 1})

	r := wait(t, submit(t, d, req))
	require.True(t, r.Response.IsFailure())
	assert.Equal(t, 1, r.Retries)

	e, ok := c.Get(req.CacheKey(), req.RequestKey())
	require.True(t, ok)
	assert.ErrorIs(t, e.Error(), errBoom)
	assert.NoError(t, e.RetryError)
	assert.Equal(t, 1, e.Retries)
}

func TestSubmit_RefreshFailureKeepsPayload(t *testing.T) {
	c := cache.New()
	req := newReq(request.Options{Endpoint: "/profile"})
	c.Set(cache.SetInput{CacheKey: req.CacheKey(), RequestKey: req.RequestKey(), Response: response.OK("cached", 200)})

	a := &fakeAdapter{respond: func(int, request.Request) response.Response {
		return response.Fail(errBoom, nil, 502)
	}}
	d := newDispatcher(t, a, c)

	r := wait(t, submit(t, d, req, WithRefresh()))
	assert.True(t, r.Response.IsFailure())

	e, ok := c.Get(req.CacheKey(), req.RequestKey())
	require.True(t, ok)
	assert.Equal(t, "cached", e.Data())
	assert.ErrorIs(t, e.RefreshError, errBoom)
	assert.True(t, e.IsRefreshed)
}

func TestSubmit_RetrySucceedsWithSamePayload(t *testing.T) {
	c := cache.New()
	req := newReq(request.Options{Endpoint: "/profile", Retry: 1, RetryTime: time.Millisecond, DeepEqual: true})
	c.Set(cache.SetInput{CacheKey: req.CacheKey(), RequestKey: req.RequestKey(), Response: response.OK("P", 200)})

	a := &fakeAdapter{respond: func(n int, _ request.Request) response.Response {
		if n == 1 {
			return response.Fail(errBoom, nil, 503)
		}
		return response.OK("P", 200)
	}}
	d := newDispatcher(t, a, c)

	r := wait(t, submit(t, d, req))
	require.True(t, r.Response.IsSuccess())
	assert.Equal(t, 1, r.Retries)

	e, ok := c.Get(req.CacheKey(), req.RequestKey())
	require.True(t, ok)
	assert.Equal(t, "P", e.Data())
	assert.NoError(t, e.RetryError)
	assert.NoError(t, e.Error())
	assert.Equal(t, 1, e.Retries)
}

func TestSubmit_RefreshSucceedsAfterRefreshError(t *testing.T) {
	c := cache.New()
	req := newReq(request.Options{Endpoint: "/profile", DeepEqual: true})
	c.Set(cache.SetInput{CacheKey: req.CacheKey(), RequestKey: req.RequestKey(), Response: response.OK("P", 200)})

	a := &fakeAdapter{respond: func(n int, _ request.Request) response.Response {
		if n == 1 {
			return response.Fail(errBoom, nil, 502)
		}
		return response.OK("P", 200)
	}}
	d := newDispatcher(t, a, c)

	wait(t, submit(t, d, req, WithRefresh()))
	e, _ := c.Get(req.CacheKey(), req.RequestKey())
	require.ErrorIs(t, e.RefreshError, errBoom)

	r := wait(t, submit(t, d, req, WithRefresh()))
	require.True(t, r.Response.IsSuccess())

	e, ok := c.Get(req.CacheKey(), req.RequestKey())
	require.True(t, ok)
	assert.Equal(t, "P", e.Data())
	assert.NoError(t, e.RefreshError)
	assert.True(t, e.IsRefreshed)
}

func TestSubmit_RefreshFailureWithoutValidPayloadIsTerminal(t *testing.T) {
	c := cache.New()
	req := newReq(request.Options{Endpoint: "/profile"})
	c.Set(cache.SetInput{CacheKey: req.CacheKey(), RequestKey: req.RequestKey(), Response: response.Fail(errors.New("old"), nil, 500)})

	a := &fakeAdapter{respond: func(int, request.Request) response.Response {
		return response.Fail(errBoom, nil, 502)
	}}
	d := newDispatcher(t, a, c)

	wait(t, submit(t, d, req, WithRefresh()))

	e, ok := c.Get(req.CacheKey(), req.RequestKey())
	require.True(t, ok)
	assert.ErrorIs(t, e.Error(), errBoom)
	assert.NoError(t, e.RefreshError)
}

func TestSubmit_CacheDisabled(t *testing.T) {
	c := cache.New()
	d := newDispatcher(t, &fakeAdapter{}, c)

	r := wait(t, submit(t, d, newReq(request.Options{Endpoint: "/nocache", DisableCache: true})))
	assert.True(t, r.Response.IsSuccess())
	assert.Nil(t, r.Entry)
	assert.Zero(t, c.Len())
}

func TestAbort_DropsPendingAndCancelsRunning(t *testing.T) {
	a := &fakeAdapter{started: make(chan string, 3), release: make(chan struct{})}
	d := newDispatcher(t, a, cache.New())

	queued := request.Options{Queued: true}
	hA := submit(t, d, item("A", queued))
	hB := submit(t, d, item("B", queued))
	hC := submit(t, d, item("C", queued))
	recv(t, a.started)

	d.Abort(item("A", queued).AbortKey())

	for _, h := range []*Handle{hA, hB, hC} {
		r := wait(t, h)
		assert.True(t, r.Response.IsCanceled())
		assert.ErrorIs(t, r.Response.Err, abort.ErrAborted)
		assert.Nil(t, r.Entry)
	}
	assert.Equal(t, 1, a.count())
	assert.Equal(t, Stats{}, d.Stats())

	// Work submitted after the abort is unaffected.
	h := submit(t, d, item("D", queued))
	recv(t, a.started)
	a.release <- struct{}{}
	assert.True(t, wait(t, h).Response.IsSuccess())
}

func TestAbortAll(t *testing.T) {
	a := &fakeAdapter{release: make(chan struct{})}
	d := newDispatcher(t, a, cache.New())

	h1 := submit(t, d, newReq(request.Options{Endpoint: "/a"}))
	h2 := submit(t, d, newReq(request.Options{Endpoint: "/b", Queued: true}))
	h3 := submit(t, d, newReq(request.Options{Endpoint: "/b", Queued: true}))
	require.Eventually(t, func() bool { return a.count() == 2 }, time.Second, time.Millisecond)

	d.AbortAll()
	for _, h := range []*Handle{h1, h2, h3} {
		assert.True(t, wait(t, h).Response.IsCanceled())
	}
}

func TestSubmit_CancelableSupersedes(t *testing.T) {
	a := &fakeAdapter{started: make(chan string, 3), release: make(chan struct{})}
	d := newDispatcher(t, a, cache.New())

	queued := request.Options{Queued: true}
	hA := submit(t, d, item("A", queued))
	hB := submit(t, d, item("B", queued))
	recv(t, a.started)

	hC := submit(t, d, item("C", request.Options{Queued: true, Cancelable: true}))

	rA, rB := wait(t, hA), wait(t, hB)
	assert.ErrorIs(t, rA.Response.Err, ErrSuperseded)
	assert.ErrorIs(t, rB.Response.Err, ErrSuperseded)

	assert.Equal(t, "/items/C", recv(t, a.started))
	a.release <- struct{}{}
	assert.True(t, wait(t, hC).Response.IsSuccess())
	assert.Equal(t, 2, a.count())
}

func TestStopStart(t *testing.T) {
	a := &fakeAdapter{started: make(chan string, 1)}
	d := newDispatcher(t, a, cache.New())
	req := item("A", request.Options{Queued: true})

	d.Stop(req.QueueKey())
	h := submit(t, d, req)
	assertIdle(t, a.started)
	assert.Equal(t, 1, d.Pending(req.QueueKey()))
	assert.Equal(t, 1, d.Stats().Stopped)

	d.Start(req.QueueKey())
	recv(t, a.started)
	assert.True(t, wait(t, h).Response.IsSuccess())
}

func TestHandle_CancelPending(t *testing.T) {
	a := &fakeAdapter{started: make(chan string, 2), release: make(chan struct{})}
	d := newDispatcher(t, a, cache.New())

	queued := request.Options{Queued: true}
	submit(t, d, item("A", queued))
	hB := submit(t, d, item("B", queued))
	recv(t, a.started)

	hB.Cancel()
	r := wait(t, hB)
	assert.True(t, r.Response.IsCanceled())
	assert.ErrorIs(t, r.Response.Err, response.ErrCanceled)
	assert.Equal(t, 0, d.Pending(item("B", queued).QueueKey()))
	close(a.release)
}

func TestSubmit_ContextCanceledWhilePending(t *testing.T) {
	a := &fakeAdapter{started: make(chan string, 2), release: make(chan struct{})}
	d := newDispatcher(t, a, cache.New())

	queued := request.Options{Queued: true}
	submit(t, d, item("A", queued))
	recv(t, a.started)

	ctx, cancel := context.WithCancel(context.Background())
	hB, err := d.Submit(ctx, item("B", queued))
	require.NoError(t, err)
	cancel()

	assert.True(t, wait(t, hB).Response.IsCanceled())
	close(a.release)
	assertIdle(t, a.started)
}

func TestSubmit_MockReplacesTransport(t *testing.T) {
	a := &fakeAdapter{}
	d := newDispatcher(t, a, cache.New())

	req := newReq(request.Options{Endpoint: "/mocked"}).SetMock(func(context.Context, request.Request) response.Response {
		return response.OK("from mock", 200)
	})
	r := wait(t, submit(t, d, req))
	assert.Equal(t, "from mock", r.Response.Data)
	assert.Zero(t, a.count())
}

func TestSubmit_NoAdapter(t *testing.T) {
	d := New(nil, nil, nil, Config{})
	defer d.Close(context.Background())

	r := wait(t, submit(t, d, newReq(request.Options{Endpoint: "/x"})))
	assert.ErrorIs(t, r.Response.Err, ErrNoAdapter)
}

func TestSubmit_ActionsAndCallback(t *testing.T) {
	d := newDispatcher(t, &fakeAdapter{}, cache.New())

	var mu sync.Mutex
	var trace []string
	record := func(s string) {
		mu.Lock()
		trace = append(trace, s)
		mu.Unlock()
	}
	require.NoError(t, d.Actions().Register(Action{
		Name:     "track",
		OnStart:  func(context.Context, request.Request) { record("start") },
		OnFinish: func(context.Context, request.Request, Result) { record("finish") },
	}))
	assert.ErrorIs(t, d.Actions().Register(Action{Name: "track"}), ErrDuplicateAction)
	assert.Equal(t, []string{"track"}, d.Actions().Names())

	req := newReq(request.Options{Endpoint: "/x"}).AddAction("track")
	h := submit(t, d, req, WithCallback(func(r Result) { record("callback") }))
	wait(t, h)

	mu.Lock()
	assert.Equal(t, []string{"start", "finish", "callback"}, trace)
	mu.Unlock()

	_, err := d.Submit(context.Background(), req.AddAction("missing"))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestClose(t *testing.T) {
	a := &fakeAdapter{started: make(chan string, 2), release: make(chan struct{})}
	d := New(a, cache.New(), nil, Config{})

	queued := request.Options{Queued: true}
	hA := submit(t, d, item("A", queued))
	hB := submit(t, d, item("B", queued))
	recv(t, a.started)

	require.NoError(t, d.Close(context.Background()))
	assert.ErrorIs(t, wait(t, hA).Response.Err, ErrClosed)
	assert.ErrorIs(t, wait(t, hB).Response.Err, ErrClosed)

	_, err := d.Submit(context.Background(), item("C", queued))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, d.Close(context.Background()))
}

func TestBulkheadRejectsOverflow(t *testing.T) {
	a := &fakeAdapter{started: make(chan string, 1), release: make(chan struct{})}
	d := New(a, cache.New(), nil, Config{MaxConcurrent: 1})
	defer d.Close(context.Background())

	submit(t, d, newReq(request.Options{Endpoint: "/a"}))
	recv(t, a.started)

	r := wait(t, submit(t, d, newReq(request.Options{Endpoint: "/b"})))
	assert.ErrorIs(t, r.Response.Err, resilience.ErrBulkheadFull)
	close(a.release)
}

func TestRetryIsLogged(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := observe.NewLoggerWithWriter("debug", &lockedWriter{mu: &mu, w: &buf})

	a := &fakeAdapter{respond: func(n int, _ request.Request) response.Response {
		if n == 1 {
			return response.Fail(errBoom, nil, 500)
		}
		return response.OK(nil, 204)
	}}
	d := newDispatcher(t, a, cache.New(), WithLogger(logger))

	wait(t, submit(t, d, newReq(request.Options{Endpoint: "/x", Retry: 1})))

	mu.Lock()
	defer mu.Unlock()
	out := buf.String()
	assert.True(t, strings.Contains(out, "request attempt will be retried"), out)
	assert.True(t, strings.Contains(out, "request attempt failed"), out)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
