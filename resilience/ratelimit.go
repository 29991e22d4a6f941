package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/fetchops/response"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of attempts allowed per second.
	// Default: 100
	Rate float64

	// Burst is the bucket capacity.
	// Default: 10
	Burst int

	// MaxWait is how long an attempt may wait for its token. Zero rejects
	// immediately when the bucket is empty.
	MaxWait time.Duration

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// RateLimiter is a token bucket shared by every attempt against one
// upstream. A waiting attempt reserves its token up front, so waiters are
// served in arrival order.
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	rejected int64
}

// NewRateLimiter creates a new rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RateLimiter{
		config: config,
		tokens: float64(config.Burst),
		last:   config.Now(),
	}
}

// Allow takes one token if it is available now.
func (rl *RateLimiter) Allow() bool {
	_, ok := rl.reserve(1, 0)
	return ok
}

// Wait takes one token, sleeping up to MaxWait for it.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay, ok := rl.reserve(1, rl.config.MaxWait)
	if !ok {
		return ErrRateLimitExceeded
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		rl.refund(1)
		return ctx.Err()
	}
}

// reserve takes n tokens, letting the balance go negative when the
// deficit refills within maxWait. It returns how long the caller must
// wait before using the tokens.
func (rl *RateLimiter) reserve(n int, maxWait time.Duration) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	need := float64(n)
	if rl.tokens >= need {
		rl.tokens -= need
		return 0, true
	}

	delay := time.Duration((need - rl.tokens) / rl.config.Rate * float64(time.Second))
	if delay > maxWait {
		rl.rejected++
		return 0, false
	}
	rl.tokens -= need
	return delay, true
}

func (rl *RateLimiter) refund(n int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = min(rl.tokens+float64(n), float64(rl.config.Burst))
}

func (rl *RateLimiter) refillLocked() {
	now := rl.config.Now()
	if elapsed := now.Sub(rl.last); elapsed > 0 {
		rl.tokens = min(rl.tokens+elapsed.Seconds()*rl.config.Rate, float64(rl.config.Burst))
	}
	rl.last = now
}

// Execute runs op once a token is available. A rejected attempt is a
// failure carrying ErrRateLimitExceeded.
func (rl *RateLimiter) Execute(ctx context.Context, op Op) response.Response {
	if err := rl.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		return response.Fail(err, nil, 0)
	}
	return op(ctx)
}

// Tokens returns the current balance. It is negative while waiters hold
// reservations.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return rl.tokens
}

// Rejected returns how many attempts were turned away.
func (rl *RateLimiter) Rejected() int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.rejected
}

// Reset refills the bucket.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = float64(rl.config.Burst)
	rl.last = rl.config.Now()
}
