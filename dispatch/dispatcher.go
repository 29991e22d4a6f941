package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonwraymond/fetchops/abort"
	"github.com/jonwraymond/fetchops/cache"
	"github.com/jonwraymond/fetchops/observe"
	"github.com/jonwraymond/fetchops/request"
	"github.com/jonwraymond/fetchops/resilience"
	"github.com/jonwraymond/fetchops/response"
	"github.com/jonwraymond/fetchops/transport"
	"golang.org/x/sync/singleflight"
)

type state int

const (
	statePending state = iota
	stateRunning
	stateDone
)

type entry struct {
	id       string
	req      request.Request
	handle   *Handle
	ctx      context.Context
	cancel   context.CancelCauseFunc
	stop     func() bool
	actions  []Action
	callback func(Result)
	refresh  bool
	queued   bool
	state    state
}

type lane struct {
	pending []*entry
	running *entry
	stopped bool
}

type flight struct {
	key     string
	started time.Time
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Lanes   int
	Pending int
	Running int
	Stopped int
}

// Dispatcher owns the lanes and executes entries.
//
// Contract:
//   - Concurrency: all methods are safe for concurrent use.
//   - Ordering: entries of one queued lane start in submission order and
//     never overlap.
//   - Ownership: descriptors are values; the dispatcher never mutates them.
type Dispatcher struct {
	adapter transport.Adapter
	cache   *cache.Cache
	aborts  *abort.Registry
	cfg     Config

	logger  observe.Logger
	metrics observe.Metrics
	tracer  observe.Tracer
	breaker *resilience.CircuitBreaker
	limiter *resilience.RateLimiter
	now     func() time.Time

	executor    *resilience.Executor
	mw          *observe.Middleware
	actions     *Actions
	group       singleflight.Group
	unsubscribe func()
	wg          sync.WaitGroup

	mu      sync.Mutex
	lanes   map[string]*lane
	running map[string]*entry
	flights map[string]*flight
	gen     uint64
	closed  bool
}

// New creates a dispatcher. c may be nil to disable cache writes; a nil
// aborts gets a private registry.
func New(adapter transport.Adapter, c *cache.Cache, aborts *abort.Registry, cfg Config, opts ...Option) *Dispatcher {
	if aborts == nil {
		aborts = abort.NewRegistry()
	}
	d := &Dispatcher{
		adapter: adapter,
		cache:   c,
		aborts:  aborts,
		cfg:     cfg,
		logger:  observe.NopLogger(),
		metrics: observe.NopMetrics(),
		tracer:  observe.NopTracer(),
		now:     time.Now,
		actions: newActions(),
		lanes:   make(map[string]*lane),
		running: make(map[string]*entry),
		flights: make(map[string]*flight),
	}
	for _, o := range opts {
		o(d)
	}

	execOpts := []resilience.ExecutorOption{resilience.WithTimeout(cfg.AttemptTimeout)}
	if d.limiter != nil {
		execOpts = append(execOpts, resilience.WithRateLimiter(d.limiter))
	}
	if cfg.MaxConcurrent > 0 {
		execOpts = append(execOpts, resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       cfg.AcquireTimeout,
		})))
	}
	if d.breaker != nil {
		execOpts = append(execOpts, resilience.WithCircuitBreaker(d.breaker))
	}
	d.executor = resilience.NewExecutor(execOpts...)
	d.mw = observe.NewMiddleware(d.tracer, d.metrics, d.logger)
	d.unsubscribe = aborts.OnAbort(d.onAbort)
	return d
}

// Actions returns the action registry.
func (d *Dispatcher) Actions() *Actions { return d.actions }

// Executor returns the per-attempt protection chain.
func (d *Dispatcher) Executor() *resilience.Executor { return d.executor }

// Aborts returns the abort registry.
func (d *Dispatcher) Aborts() *abort.Registry { return d.aborts }

// SubmitOption configures one submission.
type SubmitOption func(*entry)

// WithCallback registers fn to receive the result. It runs once, before
// the next entry of the lane starts.
func WithCallback(fn func(Result)) SubmitOption {
	return func(e *entry) { e.callback = fn }
}

// WithRefresh marks the submission as a background refresh of cached
// data, so failures keep the cached payload.
func WithRefresh() SubmitOption {
	return func(e *entry) { e.refresh = true }
}

// Submit validates req and schedules it. Configuration errors are
// returned synchronously and nothing is scheduled.
//
// Canceling ctx cancels the submission.
func (d *Dispatcher) Submit(ctx context.Context, req request.Request, opts ...SubmitOption) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	actions, err := d.actions.resolve(req.Actions())
	if err != nil {
		return nil, err
	}

	ectx, cancel := context.WithCancelCause(ctx)
	id := uuid.NewString()
	e := &entry{
		id:      id,
		req:     req,
		handle:  newHandle(id, cancel),
		ctx:     ectx,
		cancel:  cancel,
		actions: actions,
		queued:  req.Queued(),
	}
	for _, o := range opts {
		o(e)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cancel(ErrClosed)
		return nil, ErrClosed
	}
	var superseded []*entry
	if req.Cancelable() {
		superseded = d.supersedeLocked(req.QueueKey())
	}
	d.wg.Add(1)

	var start *entry
	if e.queued {
		l := d.laneLocked(req.QueueKey())
		l.pending = append(l.pending, e)
		e.stop = context.AfterFunc(ectx, func() {
			d.dropPending(e, context.Cause(ectx))
		})
		start = d.nextLocked(l)
	} else {
		e.state = stateRunning
		d.running[e.id] = e
		start = e
	}
	d.mu.Unlock()

	for _, s := range superseded {
		d.deliver(s, Result{Response: response.Cancel(ErrSuperseded)})
	}

	meta := observe.MetaFor(req)
	d.logger.WithRequest(meta).Debug(ctx, "request submitted",
		observe.F("id", id),
		observe.F("queued", e.queued),
		observe.F("refresh", e.refresh),
	)

	if start != nil {
		go d.run(start)
	}
	return e.handle, nil
}

// Abort cancels every pending and running entry of key.
func (d *Dispatcher) Abort(key string) {
	d.aborts.Abort(key)
}

// AbortAll aborts every key with pending or running work.
func (d *Dispatcher) AbortAll() {
	seen := make(map[string]bool)
	d.mu.Lock()
	for _, l := range d.lanes {
		for _, e := range l.pending {
			seen[e.req.AbortKey()] = true
		}
	}
	for _, e := range d.running {
		seen[e.req.AbortKey()] = true
	}
	d.mu.Unlock()
	for _, k := range d.aborts.Keys() {
		seen[k] = true
	}
	for k := range seen {
		d.aborts.Abort(k)
	}
}

// Pending returns the number of entries waiting in the lane of queueKey.
func (d *Dispatcher) Pending(queueKey string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.lanes[queueKey]; ok {
		return len(l.pending)
	}
	return 0
}

// Running returns the number of running entries with queueKey, queued or not.
func (d *Dispatcher) Running(queueKey string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.running {
		if e.req.QueueKey() == queueKey {
			n++
		}
	}
	return n
}

// Stats returns counters across all lanes.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{Lanes: len(d.lanes), Running: len(d.running)}
	for _, l := range d.lanes {
		s.Pending += len(l.pending)
		if l.stopped {
			s.Stopped++
		}
	}
	return s
}

// Stop pauses the lane of queueKey. The running entry finishes; pending
// and newly submitted entries wait until Start.
func (d *Dispatcher) Stop(queueKey string) {
	d.mu.Lock()
	d.laneLocked(queueKey).stopped = true
	d.mu.Unlock()
}

// Start resumes a stopped lane.
func (d *Dispatcher) Start(queueKey string) {
	d.mu.Lock()
	l, ok := d.lanes[queueKey]
	if !ok {
		d.mu.Unlock()
		return
	}
	l.stopped = false
	next := d.nextLocked(l)
	d.gcLaneLocked(queueKey, l)
	d.mu.Unlock()

	if next != nil {
		go d.run(next)
	}
}

// Close cancels all work, rejects new submissions and waits for running
// entries to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return d.wait(ctx)
	}
	d.closed = true
	var dropped []*entry
	for key, l := range d.lanes {
		for _, e := range l.pending {
			e.state = stateDone
			dropped = append(dropped, e)
		}
		l.pending = nil
		l.stopped = false
		d.gcLaneLocked(key, l)
	}
	for _, e := range d.running {
		e.cancel(ErrClosed)
	}
	d.mu.Unlock()

	d.unsubscribe()
	for _, e := range dropped {
		e.stop()
		d.deliver(e, Result{Response: response.Cancel(ErrClosed)})
	}
	return d.wait(ctx)
}

func (d *Dispatcher) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) laneLocked(key string) *lane {
	l, ok := d.lanes[key]
	if !ok {
		l = &lane{}
		d.lanes[key] = l
	}
	return l
}

// nextLocked promotes the head of an idle lane to running.
func (d *Dispatcher) nextLocked(l *lane) *entry {
	if l.running != nil || l.stopped || len(l.pending) == 0 {
		return nil
	}
	e := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	e.state = stateRunning
	l.running = e
	d.running[e.id] = e
	return e
}

func (d *Dispatcher) gcLaneLocked(key string, l *lane) {
	if l.running == nil && len(l.pending) == 0 && !l.stopped {
		delete(d.lanes, key)
	}
}

// supersedeLocked removes pending entries of key and cancels running ones.
func (d *Dispatcher) supersedeLocked(key string) []*entry {
	var dropped []*entry
	if l, ok := d.lanes[key]; ok {
		for _, e := range l.pending {
			e.state = stateDone
			e.stop()
			dropped = append(dropped, e)
		}
		l.pending = nil
	}
	for _, e := range d.running {
		if e.req.QueueKey() == key {
			e.cancel(ErrSuperseded)
		}
	}
	return dropped
}

func (d *Dispatcher) dropPending(e *entry, cause error) {
	d.mu.Lock()
	if e.state != statePending {
		d.mu.Unlock()
		return
	}
	key := e.req.QueueKey()
	if l, ok := d.lanes[key]; ok {
		l.pending = remove(l.pending, e)
		d.gcLaneLocked(key, l)
	}
	e.state = stateDone
	d.mu.Unlock()

	d.deliver(e, Result{Response: response.Cancel(cause)})
}

func (d *Dispatcher) onAbort(key string) {
	var dropped []*entry
	d.mu.Lock()
	for qk, l := range d.lanes {
		kept := l.pending[:0]
		for _, e := range l.pending {
			if e.req.AbortKey() == key {
				e.state = stateDone
				dropped = append(dropped, e)
				continue
			}
			kept = append(kept, e)
		}
		for i := len(kept); i < len(l.pending); i++ {
			l.pending[i] = nil
		}
		l.pending = kept
		d.gcLaneLocked(qk, l)
	}
	for _, e := range d.running {
		if e.req.AbortKey() == key {
			e.cancel(abort.ErrAborted)
		}
	}
	d.mu.Unlock()

	for _, e := range dropped {
		e.stop()
		d.deliver(e, Result{Response: response.Cancel(abort.ErrAborted)})
	}
	if len(dropped) > 0 {
		d.logger.Info(context.Background(), "pending requests dropped",
			observe.F("abort_key", key),
			observe.F("count", len(dropped)),
		)
	}
}

func (d *Dispatcher) run(e *entry) {
	if e.stop != nil {
		e.stop()
	}
	ctx, release := d.aborts.Context(e.ctx, e.req.AbortKey())
	for _, a := range e.actions {
		if a.OnStart != nil {
			a.OnStart(ctx, e.req)
		}
	}

	res := d.execute(ctx, e)
	release()

	d.mu.Lock()
	e.state = stateDone
	delete(d.running, e.id)
	var next *entry
	if e.queued {
		key := e.req.QueueKey()
		if l, ok := d.lanes[key]; ok {
			if l.running == e {
				l.running = nil
			}
			next = d.nextLocked(l)
			d.gcLaneLocked(key, l)
		}
	}
	d.mu.Unlock()

	d.deliver(e, res)
	if next != nil {
		go d.run(next)
	}
}

// deliver completes the handle and runs the finish hooks once per entry.
func (d *Dispatcher) deliver(e *entry, res Result) {
	if e.handle.complete(res) {
		hookCtx := context.WithoutCancel(e.ctx)
		for _, a := range e.actions {
			if a.OnFinish != nil {
				a.OnFinish(hookCtx, e.req, res)
			}
		}
		if e.callback != nil {
			e.callback(res)
		}
	}
	e.cancel(context.Canceled)
	d.wg.Done()
}

func (d *Dispatcher) execute(ctx context.Context, e *entry) Result {
	if e.req.Deduplicate() {
		return d.deduplicated(ctx, e)
	}
	return d.attempts(ctx, e)
}

// deduplicated joins an in-flight execution of the same request key that
// started no more than DeduplicateTime ago, or starts a new one.
func (d *Dispatcher) deduplicated(ctx context.Context, e *entry) Result {
	rk := e.req.RequestKey()
	now := d.now()

	d.mu.Lock()
	f, ok := d.flights[rk]
	if !ok || now.Sub(f.started) > e.req.DeduplicateTime() {
		d.gen++
		f = &flight{key: fmt.Sprintf("%s#%d", rk, d.gen), started: now}
		d.flights[rk] = f
	}
	d.mu.Unlock()

	ran := false
	ch := d.group.DoChan(f.key, func() (any, error) {
		ran = true
		res := d.attempts(ctx, e)
		d.mu.Lock()
		if d.flights[rk] == f {
			delete(d.flights, rk)
		}
		d.mu.Unlock()
		return res, nil
	})

	select {
	case <-ctx.Done():
		return Result{Response: response.Cancel(context.Cause(ctx))}
	case v := <-ch:
		res := v.Val.(Result)
		if ran {
			return res
		}
		// The execution we joined was canceled by its owner.
		if res.Response.IsCanceled() && ctx.Err() == nil {
			return d.attempts(ctx, e)
		}
		if res.Entry != nil {
			copied := *res.Entry
			res.Entry = &copied
		}
		res.Shared = true
		d.metrics.RecordShared(ctx, observe.MetaFor(e.req))
		return res
	}
}

// attempts runs the retry loop for one entry and writes the cache.
func (d *Dispatcher) attempts(ctx context.Context, e *entry) Result {
	req := e.req
	meta := observe.MetaFor(req)
	log := d.logger.WithRequest(meta)

	retryTime := req.RetryTime()
	if retryTime <= 0 {
		retryTime = d.cfg.DefaultRetryTime
	}

	call := d.mw.Wrap(func(ctx context.Context, _ observe.RequestMeta) response.Response {
		return d.executor.Execute(ctx, func(ctx context.Context) response.Response {
			return d.send(ctx, req)
		})
	})

	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  req.Retry() + 1,
		InitialDelay: retryTime,
		Strategy:     d.cfg.Backoff,
		OnRetry: func(attempt int, res response.Response, delay time.Duration) {
			d.metrics.RecordRetry(ctx, meta)
			log.Warn(ctx, "request attempt will be retried",
				observe.F("attempt", attempt),
				observe.F("delay_ms", delay.Milliseconds()),
				observe.F("error", res.Err),
			)
			d.write(req, res, attempt-1, true, e.refresh)
		},
	})

	res, attempts := retry.Do(ctx, func(ctx context.Context, attempt int) response.Response {
		m := meta
		m.Attempt = attempt
		return call(ctx, m)
	})

	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	return Result{
		Response: res,
		Retries:  retries,
		Entry:    d.write(req, res, retries, false, e.refresh),
	}
}

func (d *Dispatcher) send(ctx context.Context, req request.Request) response.Response {
	if mock := req.Mock(); mock != nil {
		return mock(ctx, req)
	}
	if d.adapter == nil {
		return response.Fail(ErrNoAdapter, nil, 0)
	}
	return d.adapter.Execute(ctx, req)
}

func (d *Dispatcher) write(req request.Request, res response.Response, retries int, pending, refresh bool) *cache.Entry {
	if d.cache == nil || !req.Cache() || res.IsCanceled() {
		return nil
	}
	entry, _ := d.cache.Set(cache.SetInput{
		CacheKey:          req.CacheKey(),
		RequestKey:        req.RequestKey(),
		Response:          res,
		Retries:           retries,
		RetryPending:      pending,
		DeepEqual:         req.DeepEqual() && !pending,
		IsRefreshed:       refresh,
		GarbageCollection: req.GarbageCollection(),
	})
	return &entry
}

func remove(list []*entry, e *entry) []*entry {
	for i, x := range list {
		if x == e {
			copy(list[i:], list[i+1:])
			list[len(list)-1] = nil
			return list[:len(list)-1]
		}
	}
	return list
}
