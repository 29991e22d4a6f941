package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jonwraymond/fetchops/response"
)

// BulkheadConfig caps the attempts in flight.
type BulkheadConfig struct {
	// MaxConcurrent defaults to 10.
	MaxConcurrent int
	// MaxWait is how long an attempt may wait for a slot. Zero rejects
	// immediately when the bulkhead is full.
	MaxWait time.Duration
}

// Bulkhead bounds concurrent attempts with a weighted semaphore.
type Bulkhead struct {
	size    int
	maxWait time.Duration
	sem     *semaphore.Weighted

	mu    sync.Mutex
	stats BulkheadMetrics
}

// BulkheadMetrics is a snapshot of bulkhead usage.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Waiting       int
	Available     int
	MaxConcurrent int
	Rejected      int64
}

// NewBulkhead creates a Bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	size := config.MaxConcurrent
	if size <= 0 {
		size = 10
	}
	return &Bulkhead{
		size:    size,
		maxWait: config.MaxWait,
		sem:     semaphore.NewWeighted(int64(size)),
	}
}

// Acquire takes a slot. It fails with ErrBulkheadFull once MaxWait passes
// and with the context error when ctx ends first.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		b.update(func(s *BulkheadMetrics) { s.Active++ })
		return nil
	}
	if b.maxWait <= 0 {
		b.update(func(s *BulkheadMetrics) { s.Rejected++ })
		return ErrBulkheadFull
	}

	b.update(func(s *BulkheadMetrics) { s.Waiting++ })
	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	err := b.sem.Acquire(waitCtx, 1)
	cancel()

	switch {
	case err == nil:
		b.update(func(s *BulkheadMetrics) { s.Waiting--; s.Active++ })
		return nil
	case ctx.Err() != nil:
		b.update(func(s *BulkheadMetrics) { s.Waiting-- })
		return ctx.Err()
	default:
		b.update(func(s *BulkheadMetrics) { s.Waiting--; s.Rejected++ })
		return ErrBulkheadFull
	}
}

// Release returns a slot. Releasing without a held slot is a no-op.
func (b *Bulkhead) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stats.Active == 0 {
		return
	}
	b.stats.Active--
	b.sem.Release(1)
}

func (b *Bulkhead) update(fn func(*BulkheadMetrics)) {
	b.mu.Lock()
	fn(&b.stats)
	b.stats.MaxActive = max(b.stats.MaxActive, b.stats.Active)
	b.mu.Unlock()
}

// Execute runs op in a slot. Rejection becomes a failure carrying
// ErrBulkheadFull.
func (b *Bulkhead) Execute(ctx context.Context, op Op) response.Response {
	if err := b.Acquire(ctx); err != nil {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		return response.Fail(err, nil, 0)
	}
	defer b.Release()
	return op(ctx)
}

// Metrics returns a snapshot of the counters.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.stats
	m.MaxConcurrent = b.size
	m.Available = b.size - m.Active
	return m
}
