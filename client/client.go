package client

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/viant/afs"

	"github.com/jonwraymond/fetchops/abort"
	"github.com/jonwraymond/fetchops/auth"
	"github.com/jonwraymond/fetchops/cache"
	"github.com/jonwraymond/fetchops/cache/persist"
	"github.com/jonwraymond/fetchops/config"
	"github.com/jonwraymond/fetchops/dispatch"
	"github.com/jonwraymond/fetchops/health"
	"github.com/jonwraymond/fetchops/observe"
	"github.com/jonwraymond/fetchops/request"
	"github.com/jonwraymond/fetchops/resilience"
	"github.com/jonwraymond/fetchops/secret"
	"github.com/jonwraymond/fetchops/transport/httpx"
)

// Client is the assembled engine.
type Client struct {
	cfg        config.Config
	scope      request.Scope
	cache      *cache.Cache
	dispatcher *dispatch.Dispatcher
	auth       auth.Authenticator
	logger     observe.Logger
	health     *health.Aggregator
	snapshots  *persist.Store
	now        func() time.Time

	observer     observe.Observer
	ownsObserver bool
	ownedStorage cache.Storage
	stopGC       context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// FetchResult is the outcome of Fetch.
type FetchResult struct {
	dispatch.Result
	// Cached is set when the result came from a fresh cache entry without
	// a transport call.
	Cached bool
}

// Open creates a client and performs the I/O New does not: it starts the
// observer selected by cfg when none was supplied, and loads the snapshot
// at cfg.SnapshotURL, which is saved again on Close.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	obsCfg := cfg.Observe()
	if o.observer == nil && (obsCfg.Tracing.Enabled || obsCfg.Metrics.Enabled) {
		obs, err := observe.NewObserver(ctx, obsCfg)
		if err != nil {
			return nil, fmt.Errorf("client: observer: %w", err)
		}
		opts = append(opts, func(o *options) {
			o.observer = obs
			o.ownsObserver = true
		})
	}

	if cfg.SnapshotURL != "" && o.snapshots == nil {
		store := persist.NewStore(afs.New(), cfg.SnapshotURL)
		opts = append(opts, WithSnapshotStore(store))

		if o.initial == nil {
			snap, err := store.Load(ctx)
			switch {
			case errors.Is(err, persist.ErrNotFound):
			case err != nil:
				return nil, fmt.Errorf("client: load snapshot: %w", err)
			default:
				opts = append(opts, WithInitialData(snap))
			}
		}
	}

	return New(cfg, opts...)
}

// New assembles a client without performing I/O.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger, metrics, tracer, err := telemetry(o)
	if err != nil {
		return nil, err
	}

	storage := o.storage
	var owned cache.Storage
	if storage == nil {
		if storage, err = newStorage(cfg); err != nil {
			return nil, err
		}
		owned = storage
	}

	cacheOpts := []cache.Option{
		cache.WithStorage(storage),
		cache.WithPolicy(cache.Policy{DefaultGarbageCollection: cfg.GarbageCollection}),
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
	}
	if o.initial != nil {
		cacheOpts = append(cacheOpts, cache.WithInitialData(o.initial))
	}
	c := cache.New(append(cacheOpts, o.cacheOpts...)...)

	adapter := o.adapter
	if adapter == nil {
		secrets := o.secrets
		if secrets == nil {
			secrets = secret.NewResolver(true, secret.NewEnvProvider())
		}
		adapter = httpx.New(httpx.WithHeaderResolver(secrets))
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
		dispatch.WithTracer(tracer),
	}
	if cfg.RateLimit > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:    cfg.RateLimit,
			Burst:   cfg.RateBurst,
			MaxWait: cfg.RateMaxWait,
		})))
	}
	if cfg.CircuitMaxFailures > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.CircuitMaxFailures,
			ResetTimeout: cfg.CircuitResetTimeout,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn(context.Background(), "circuit breaker state changed",
					observe.F("from", from.String()), observe.F("to", to.String()))
			},
		})))
	}
	dispatchOpts = append(dispatchOpts, o.dispatchOpts...)
	d := dispatch.New(adapter, c, abort.NewRegistry(), dispatch.Config{
		MaxConcurrent:    cfg.MaxConcurrent,
		AcquireTimeout:   cfg.AcquireTimeout,
		AttemptTimeout:   cfg.AttemptTimeout,
		DefaultRetryTime: cfg.RetryTime,
		Backoff:          resilience.ParseBackoff(cfg.Backoff),
	}, dispatchOpts...)

	gcCtx, stopGC := context.WithCancel(context.Background())
	c.StartGC(gcCtx, cfg.GCInterval)

	cl := &Client{
		cfg:          cfg,
		scope:        request.Scope{Base: cfg.BaseURL, Aborter: d},
		cache:        c,
		dispatcher:   d,
		auth:         o.authenticator,
		logger:       logger,
		snapshots:    o.snapshots,
		now:          time.Now,
		observer:     o.observer,
		ownsObserver: o.ownsObserver,
		ownedStorage: owned,
		stopGC:       stopGC,
	}
	cl.health = cl.newHealth()
	return cl, nil
}

func telemetry(o options) (observe.Logger, observe.Metrics, observe.Tracer, error) {
	logger := observe.NopLogger()
	metrics := observe.NopMetrics()
	tracer := observe.NopTracer()

	if o.observer != nil {
		m, err := observe.NewMetrics(o.observer.Meter())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("client: metrics: %w", err)
		}
		metrics = m
		tracer = observe.NewTracer(o.observer.Tracer())
		if l := o.observer.Logger(); l != nil {
			logger = l
		}
	}
	if o.logger != nil {
		logger = o.logger
	}
	return logger, metrics, tracer, nil
}

func newStorage(cfg config.Config) (cache.Storage, error) {
	switch cfg.CacheDriver {
	case config.DriverLRU:
		s, err := cache.NewLRUStorage(cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("client: lru storage: %w", err)
		}
		return s, nil
	case config.DriverRistretto:
		s, err := cache.NewRistrettoStorage(int64(cfg.CacheSize))
		if err != nil {
			return nil, fmt.Errorf("client: ristretto storage: %w", err)
		}
		return s, nil
	default:
		return cache.NewMemoryStorage(), nil
	}
}

func (c *Client) newHealth() *health.Aggregator {
	agg := health.NewAggregator()
	agg.Register("queue", health.NewQueueChecker(c.dispatcher, health.QueueCheckerConfig{
		MaxPending: c.cfg.HealthMaxPending,
	}))

	var maxEntries int
	if c.cfg.CacheDriver != config.DriverMemory {
		maxEntries = c.cfg.CacheSize
	}
	agg.Register("cache", health.NewCacheChecker(c.cache, health.CacheCheckerConfig{MaxEntries: maxEntries}))
	agg.Register("circuit", health.NewCircuitChecker(c.dispatcher.Executor().CircuitBreaker()))
	agg.Register("runtime", health.NewRuntimeChecker(health.RuntimeCheckerConfig{}))
	return agg
}

// Config returns the configuration the client was built with.
func (c *Client) Config() config.Config { return c.cfg }

// Cache returns the response cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Dispatcher returns the dispatcher.
func (c *Client) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// Health returns the aggregator over the client's components.
func (c *Client) Health() *health.Aggregator { return c.health }

// CreateRequest builds a descriptor bound to this client. Zero-valued
// timing and retry options take the client defaults; default headers are
// overridden by headers in opts.
func (c *Client) CreateRequest(opts request.Options) request.Request {
	if opts.Retry == 0 {
		opts.Retry = c.cfg.Retry
	}
	if opts.RetryTime == 0 {
		opts.RetryTime = c.cfg.RetryTime
	}
	if opts.CacheTime == 0 {
		opts.CacheTime = c.cfg.CacheTime
	}
	if opts.GarbageCollection == 0 {
		opts.GarbageCollection = c.cfg.GarbageCollection
	}
	if opts.DeduplicateTime == 0 {
		opts.DeduplicateTime = c.cfg.DeduplicateTime
	}
	if c.cfg.DeepEqual {
		opts.DeepEqual = true
	}
	if len(c.cfg.Headers) > 0 {
		headers := maps.Clone(c.cfg.Headers)
		maps.Copy(headers, opts.Headers)
		opts.Headers = headers
	}
	return request.New(c.scope, opts)
}

// Submit authenticates req when it asks for auth and hands it to the
// dispatcher. Configuration and authentication errors are returned
// before anything is queued.
func (c *Client) Submit(ctx context.Context, req request.Request, opts ...dispatch.SubmitOption) (*dispatch.Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Auth() {
		if c.auth == nil {
			return nil, ErrNoAuthenticator
		}
		authed, err := c.auth.Authenticate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("client: authenticate %s: %w", req.Endpoint(), err)
		}
		req = authed
	}
	return c.dispatcher.Submit(ctx, req, opts...)
}

// Send submits req and waits for its result. If ctx ends first the
// submission is canceled and ctx's error is returned.
func (c *Client) Send(ctx context.Context, req request.Request, opts ...dispatch.SubmitOption) (dispatch.Result, error) {
	h, err := c.Submit(ctx, req, opts...)
	if err != nil {
		return dispatch.Result{}, err
	}
	return h.Wait(ctx)
}

// Fetch answers from the cache when a fresh successful entry exists.
// Otherwise it sends req; when any entry exists the send is a refresh, so
// a failure keeps the cached payload.
func (c *Client) Fetch(ctx context.Context, req request.Request) (FetchResult, error) {
	var opts []dispatch.SubmitOption
	if req.Cache() {
		if e, ok := c.cache.Get(req.CacheKey(), req.RequestKey()); ok {
			if e.Response.IsSuccess() && !e.IsStale(req.CacheTime(), c.now()) {
				return FetchResult{
					Result: dispatch.Result{Response: e.Response, Retries: e.Retries, Entry: &e},
					Cached: true,
				}, nil
			}
			opts = append(opts, dispatch.WithRefresh())
		}
	}

	res, err := c.Send(ctx, req, opts...)
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Result: res}, nil
}

// Subscribe registers fn for events on a cache key or request key.
func (c *Client) Subscribe(key string, fn cache.Listener) func() {
	return c.cache.Subscribe(key, fn)
}

// Abort cancels every running and pending request under key.
func (c *Client) Abort(key string) {
	c.dispatcher.Abort(key)
}

// Clear aborts all work and empties the cache.
func (c *Client) Clear() {
	c.dispatcher.AbortAll()
	c.cache.Clear()
	c.logger.Info(context.Background(), "client cleared")
}

// SaveSnapshot writes the cache to the configured snapshot store. It is
// a no-op without one.
func (c *Client) SaveSnapshot(ctx context.Context) error {
	if c.snapshots == nil {
		return nil
	}
	if err := c.snapshots.Save(ctx, c.cache.Snapshot()); err != nil {
		return fmt.Errorf("client: save snapshot: %w", err)
	}
	c.logger.Debug(ctx, "cache snapshot saved", observe.F("url", c.snapshots.URL()), observe.F("entries", c.cache.Len()))
	return nil
}

// Close drains the dispatcher, saves the snapshot and releases owned
// resources. Later calls return the first result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.stopGC()

		var errs []error
		if err := c.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("client: close dispatcher: %w", err))
		}
		if err := c.SaveSnapshot(ctx); err != nil {
			errs = append(errs, err)
		}
		if closer, ok := c.ownedStorage.(interface{ Close() }); ok {
			closer.Close()
		}
		if c.ownsObserver {
			if err := c.observer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("client: shutdown observer: %w", err))
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
