package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/fetchops/response"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffConstant uses the same delay for all retries.
	BackoffConstant BackoffStrategy = iota
	// BackoffLinear increases delay linearly.
	BackoffLinear
	// BackoffExponential multiplies the delay each attempt.
	BackoffExponential
)

// String returns the strategy name.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffConstant:
		return "constant"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ParseBackoff maps a strategy name to a BackoffStrategy.
// Unknown names map to BackoffConstant.
func ParseBackoff(name string) BackoffStrategy {
	switch name {
	case "linear":
		return BackoffLinear
	case "exponential":
		return BackoffExponential
	default:
		return BackoffConstant
	}
}

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 1
	MaxAttempts int

	// InitialDelay is the delay before the first retry. Zero retries
	// immediately.
	InitialDelay time.Duration

	// MaxDelay caps the maximum delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffConstant
	Strategy BackoffStrategy

	// Jitter adds up to 25% randomness to delays.
	Jitter bool

	// RetryIf determines if a response should trigger a retry.
	// Default: failures trigger retry, canceled and successful responses
	// never do.
	RetryIf func(res response.Response) bool

	// OnRetry is called after a failed attempt that will be retried,
	// before waiting. attempt is 1-based.
	OnRetry func(attempt int, res response.Response, delay time.Duration)
}

// Retry implements retry with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = func(res response.Response) bool { return res.IsFailure() }
	}

	return &Retry{config: config}
}

// MaxAttempts returns the configured attempt limit.
func (r *Retry) MaxAttempts() int {
	return r.config.MaxAttempts
}

// Do runs op until it stops failing or attempts are exhausted. It returns
// the last response and the number of attempts made.
//
// A context canceled while waiting between attempts produces a canceled
// response. A canceled attempt is returned as is.
func (r *Retry) Do(ctx context.Context, op func(ctx context.Context, attempt int) response.Response) (response.Response, int) {
	var res response.Response

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return canceled(ctx), attempt - 1
		}

		res = op(ctx, attempt)
		if res.IsCanceled() || !r.config.RetryIf(res) {
			return res, attempt
		}
		if attempt == r.config.MaxAttempts {
			return res, attempt
		}

		delay := r.calculateDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, res, delay)
		}
		if err := wait(ctx, delay); err != nil {
			return canceled(ctx), attempt
		}
	}

	return res, r.config.MaxAttempts
}

func (r *Retry) calculateDelay(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.Strategy {
	case BackoffExponential:
		delay = time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1)))
	case BackoffLinear:
		delay = r.config.InitialDelay * time.Duration(attempt)
	default:
		delay = r.config.InitialDelay
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter && delay > 0 {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.25)
		delay += jitter
	}

	return delay
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
