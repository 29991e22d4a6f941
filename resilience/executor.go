package resilience

import (
	"context"
	"time"

	"github.com/jonwraymond/fetchops/response"
)

// Executor runs one attempt through the shared protection layers, from
// the outside in: rate limiter, bulkhead, circuit breaker, timeout. Retry
// is per request and wraps Execute from outside.
//
// A nil *Executor runs attempts unprotected.
type Executor struct {
	limiter  *RateLimiter
	bulkhead *Bulkhead
	breaker  *CircuitBreaker
	timeout  *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor with the given layers.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRateLimiter sets the outermost layer.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.limiter = rl }
}

// WithBulkhead caps concurrent attempts.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithCircuitBreaker stops calling an upstream that keeps failing.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.breaker = cb }
}

// WithTimeout bounds each attempt. Non-positive durations are ignored.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = NewTimeout(TimeoutConfig{Timeout: d})
		}
	}
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker { return e.breaker }

// Bulkhead returns the configured bulkhead, or nil.
func (e *Executor) Bulkhead() *Bulkhead { return e.bulkhead }

// RateLimiter returns the configured limiter, or nil.
func (e *Executor) RateLimiter() *RateLimiter { return e.limiter }

// Execute runs op through every configured layer.
func (e *Executor) Execute(ctx context.Context, op Op) response.Response {
	if e == nil {
		return op(ctx)
	}
	return e.layer(0, op)(ctx)
}

// layer returns op wrapped by layers i and below.
func (e *Executor) layer(i int, op Op) Op {
	switch i {
	case 0:
		if e.limiter != nil {
			next := e.layer(1, op)
			return func(ctx context.Context) response.Response { return e.limiter.Execute(ctx, next) }
		}
	case 1:
		if e.bulkhead != nil {
			next := e.layer(2, op)
			return func(ctx context.Context) response.Response { return e.bulkhead.Execute(ctx, next) }
		}
	case 2:
		if e.breaker != nil {
			next := e.layer(3, op)
			return func(ctx context.Context) response.Response { return e.breaker.Execute(ctx, next) }
		}
	case 3:
		if e.timeout != nil {
			return func(ctx context.Context) response.Response { return e.timeout.Execute(ctx, op) }
		}
	default:
		return op
	}
	return e.layer(i+1, op)
}
