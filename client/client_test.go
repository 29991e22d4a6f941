package client

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/fetchops/auth"
	"github.com/jonwraymond/fetchops/cache"
	"github.com/jonwraymond/fetchops/config"
	"github.com/jonwraymond/fetchops/health"
	"github.com/jonwraymond/fetchops/observe"
	"github.com/jonwraymond/fetchops/request"
	"github.com/jonwraymond/fetchops/resilience"
	"github.com/jonwraymond/fetchops/response"
	"github.com/jonwraymond/fetchops/transport"
)

var errUpstream = errors.New("upstream down")

type recorder struct {
	calls atomic.Int32
	mu    sync.Mutex
	last  request.Request
	fail  atomic.Bool
}

func (r *recorder) adapter() transport.Adapter {
	return transport.AdapterFunc(func(ctx context.Context, req request.Request) response.Response {
		r.calls.Add(1)
		r.mu.Lock()
		r.last = req
		r.mu.Unlock()
		if r.fail.Load() {
			return response.Fail(errUpstream, nil, 503)
		}
		return response.OK(map[string]any{"path": req.Path()}, 200)
	})
}

func (r *recorder) lastRequest() request.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.BaseURL = "https://api.test"
	cfg.GCInterval = 0
	return cfg
}

func newClient(t *testing.T, cfg config.Config, opts ...Option) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	cl, err := New(cfg, append([]Option{WithAdapter(rec.adapter())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close(context.Background()) })
	return cl, rec
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.CacheDriver = "redis"

	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNew_StorageDrivers(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverLRU, config.DriverRistretto} {
		t.Run(driver, func(t *testing.T) {
			cfg := testConfig()
			cfg.CacheDriver = driver
			cl, _ := newClient(t, cfg)

			res, err := cl.Send(context.Background(), cl.CreateRequest(request.Options{Endpoint: "/ping"}))
			require.NoError(t, err)
			assert.True(t, res.Response.IsSuccess())
			require.NotNil(t, res.Entry)
		})
	}
}

func TestCreateRequest_AppliesDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Retry = 2
	cfg.Headers = map[string]string{"X-Client": "fetchops", "Accept": "application/json"}
	cl, _ := newClient(t, cfg)

	req := cl.CreateRequest(request.Options{
		Endpoint:  "/users/:id",
		CacheTime: time.Second,
		Headers:   map[string]string{"Accept": "text/plain"},
	})

	assert.Equal(t, "https://api.test", req.Base())
	assert.Equal(t, 2, req.Retry())
	assert.Equal(t, cfg.RetryTime, req.RetryTime())
	assert.Equal(t, time.Second, req.CacheTime())
	assert.Equal(t, cfg.GarbageCollection, req.GarbageCollection())
	assert.Equal(t, cfg.DeduplicateTime, req.DeduplicateTime())
	assert.True(t, req.DeepEqual())
	assert.Equal(t, map[string]string{"X-Client": "fetchops", "Accept": "text/plain"}, req.Headers())
}

func TestSend(t *testing.T) {
	cl, rec := newClient(t, testConfig())

	req := cl.CreateRequest(request.Options{Endpoint: "/users/:id"}).SetParams(map[string]any{"id": 7})
	res, err := cl.Send(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"path": "/users/7"}, res.Response.Data)
	assert.EqualValues(t, 1, rec.calls.Load())

	e, ok := cl.Cache().Get(req.CacheKey(), req.RequestKey())
	require.True(t, ok)
	assert.Equal(t, res.Response.Data, e.Data())
}

func TestSend_ConfigurationError(t *testing.T) {
	cl, rec := newClient(t, testConfig())

	_, err := cl.Send(context.Background(), cl.CreateRequest(request.Options{Endpoint: "/users/:id"}))
	var cfgErr *request.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"id"}, cfgErr.Missing)
	assert.Zero(t, rec.calls.Load())
}

func TestSend_Auth(t *testing.T) {
	t.Run("no authenticator", func(t *testing.T) {
		cl, rec := newClient(t, testConfig())
		_, err := cl.Send(context.Background(), cl.CreateRequest(request.Options{Endpoint: "/me", Auth: true}))
		assert.ErrorIs(t, err, ErrNoAuthenticator)
		assert.Zero(t, rec.calls.Load())
	})

	t.Run("header attached", func(t *testing.T) {
		authn := auth.NewAuthenticatorFunc("test", func(_ context.Context, req request.Request) (request.Request, error) {
			return req.SetHeader("Authorization", "Bearer t0k3n"), nil
		})
		cl, rec := newClient(t, testConfig(), WithAuthenticator(authn))

		_, err := cl.Send(context.Background(), cl.CreateRequest(request.Options{Endpoint: "/me", Auth: true}))
		require.NoError(t, err)
		assert.Equal(t, "Bearer t0k3n", rec.lastRequest().Headers()["Authorization"])
	})

	t.Run("authenticator error", func(t *testing.T) {
		authn := auth.NewAuthenticatorFunc("test", func(context.Context, request.Request) (request.Request, error) {
			return request.Request{}, auth.ErrTokenUnavailable
		})
		cl, rec := newClient(t, testConfig(), WithAuthenticator(authn))

		_, err := cl.Send(context.Background(), cl.CreateRequest(request.Options{Endpoint: "/me", Auth: true}))
		assert.ErrorIs(t, err, auth.ErrTokenUnavailable)
		assert.Zero(t, rec.calls.Load())
	})
}

func TestFetch_CacheFirst(t *testing.T) {
	cl, rec := newClient(t, testConfig())
	now := time.Now()
	cl.now = func() time.Time { return now }

	req := cl.CreateRequest(request.Options{Endpoint: "/feed", CacheTime: time.Minute})

	first, err := cl.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := cl.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Response.Data, second.Response.Data)
	assert.EqualValues(t, 1, rec.calls.Load())

	// Stale entry: the refresh fails but the payload survives.
	now = now.Add(2 * time.Minute)
	rec.fail.Store(true)
	third, err := cl.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.True(t, third.Response.IsFailure())
	assert.EqualValues(t, 2, rec.calls.Load())

	e, ok := cl.Cache().Get(req.CacheKey(), req.RequestKey())
	require.True(t, ok)
	assert.Equal(t, first.Response.Data, e.Data())
	assert.ErrorIs(t, e.RefreshError, errUpstream)
}

func TestFetch_CacheDisabled(t *testing.T) {
	cl, rec := newClient(t, testConfig())
	req := cl.CreateRequest(request.Options{Endpoint: "/live", DisableCache: true})

	for i := 0; i < 2; i++ {
		res, err := cl.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.EqualValues(t, 2, rec.calls.Load())
}

func TestSubscribe(t *testing.T) {
	cl, _ := newClient(t, testConfig())
	req := cl.CreateRequest(request.Options{Endpoint: "/items"})

	events := make(chan cache.Event, 1)
	unsubscribe := cl.Subscribe(req.RequestKey(), func(ev cache.Event) { events <- ev })
	defer unsubscribe()

	_, err := cl.Send(context.Background(), req)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, cache.EventSet, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no cache event")
	}
}

func TestAbortThroughDescriptor(t *testing.T) {
	started := make(chan struct{})
	adapter := transport.AdapterFunc(func(ctx context.Context, _ request.Request) response.Response {
		close(started)
		<-ctx.Done()
		return response.Cancel(context.Cause(ctx))
	})
	cl, err := New(testConfig(), WithAdapter(adapter))
	require.NoError(t, err)
	defer cl.Close(context.Background())

	req := cl.CreateRequest(request.Options{Endpoint: "/slow"})
	h, err := cl.Submit(context.Background(), req)
	require.NoError(t, err)
	<-started

	req.Abort()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, res.Response.IsCanceled())
	assert.Zero(t, cl.Cache().Len())
}

func TestClear(t *testing.T) {
	cl, _ := newClient(t, testConfig())
	_, err := cl.Send(context.Background(), cl.CreateRequest(request.Options{Endpoint: "/a"}))
	require.NoError(t, err)
	require.Equal(t, 1, cl.Cache().Len())

	cl.Clear()
	assert.Zero(t, cl.Cache().Len())
}

func TestHealth(t *testing.T) {
	cl, _ := newClient(t, testConfig())

	agg := cl.Health()
	assert.Equal(t, []string{"queue", "cache", "circuit", "runtime"}, agg.CheckerNames())

	report := agg.Report(context.Background())
	assert.Equal(t, health.StatusHealthy, report.Status)
}

func TestOpen_SnapshotRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.SnapshotURL = "file://" + filepath.Join(t.TempDir(), "cache.snap")
	ctx := context.Background()

	rec := &recorder{}
	cl, err := Open(ctx, cfg, WithAdapter(rec.adapter()))
	require.NoError(t, err)

	req := cl.CreateRequest(request.Options{Endpoint: "/profile", CacheTime: time.Hour})
	_, err = cl.Send(ctx, req)
	require.NoError(t, err)
	require.NoError(t, cl.Close(ctx))
	require.NoError(t, cl.Close(ctx))

	reopened, err := Open(ctx, cfg, WithAdapter(rec.adapter()))
	require.NoError(t, err)
	defer reopened.Close(ctx)

	res, err := reopened.Fetch(ctx, reopened.CreateRequest(request.Options{Endpoint: "/profile", CacheTime: time.Hour}))
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.EqualValues(t, 1, rec.calls.Load())
}

func TestWithObserver(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	obs := observe.NewObserverFromProviders(tp, mp, nil)

	cl, _ := newClient(t, testConfig(), WithObserver(obs))
	_, err := cl.Send(context.Background(), cl.CreateRequest(request.Options{Endpoint: "/traced"}))
	require.NoError(t, err)

	assert.Len(t, spans.Ended(), 1)
}

func TestCircuitBreakerFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.CircuitMaxFailures = 1
	cl, rec := newClient(t, cfg)
	rec.fail.Store(true)

	first, err := cl.Send(context.Background(), cl.CreateRequest(request.Options{Endpoint: "/a"}))
	require.NoError(t, err)
	assert.ErrorIs(t, first.Response.Err, errUpstream)

	second, err := cl.Send(context.Background(), cl.CreateRequest(request.Options{Endpoint: "/b"}))
	require.NoError(t, err)
	assert.ErrorIs(t, second.Response.Err, resilience.ErrCircuitOpen)
	assert.EqualValues(t, 1, rec.calls.Load())

	report := cl.Health().Report(context.Background())
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, health.StatusUnhealthy, report.Checks["circuit"].Status)
}
