package dispatch

import (
	"time"

	"github.com/jonwraymond/fetchops/observe"
	"github.com/jonwraymond/fetchops/resilience"
)

// Config holds dispatcher-wide execution limits.
type Config struct {
	// MaxConcurrent caps attempts running at once. Zero means unlimited.
	MaxConcurrent int

	// AcquireTimeout is how long an attempt waits for a concurrency slot.
	// Zero fails immediately when all slots are busy.
	AcquireTimeout time.Duration

	// AttemptTimeout bounds one transport call. Zero disables it.
	AttemptTimeout time.Duration

	// DefaultRetryTime is used for descriptors whose RetryTime is zero.
	DefaultRetryTime time.Duration

	// Backoff shapes delays between attempts. Default: constant.
	Backoff resilience.BackoffStrategy
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m observe.Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t observe.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithCircuitBreaker adds a circuit breaker around attempts.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(d *Dispatcher) { d.breaker = cb }
}

// WithRateLimiter adds a rate limiter in front of attempts.
func WithRateLimiter(rl *resilience.RateLimiter) Option {
	return func(d *Dispatcher) { d.limiter = rl }
}

// WithClock sets the clock used for deduplication windows.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}
