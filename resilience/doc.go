// Package resilience provides the protection layers the dispatcher puts
// around transport attempts.
//
// Every pattern works on an Op, a function producing a response.Response.
// Outcomes drive the patterns: failures are retried and counted by the
// circuit breaker, canceled outcomes are never retried and never counted,
// and rejections (open circuit, exhausted rate, full bulkhead, timeout)
// are reported as failure responses so the retry policy sees them.
//
// # Patterns
//
//   - Retry: re-runs failed attempts with constant, linear or exponential
//     delay. OnRetry observes every failure that will be retried.
//   - Rate Limiter: token bucket limiting attempt rate.
//   - Bulkhead: limits concurrent attempts.
//   - Circuit Breaker: stops calling a failing backend.
//   - Timeout: bounds one attempt.
//
// # Usage
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 50, Burst: 10})),
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 8, MaxWait: time.Second})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithTimeout(10*time.Second),
//	)
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 500 * time.Millisecond,
//	    Strategy:     resilience.BackoffConstant,
//	})
//	res, attempts := retry.Do(ctx, func(ctx context.Context, attempt int) response.Response {
//	    return exec.Execute(ctx, send)
//	})
package resilience

import (
	"context"

	"github.com/jonwraymond/fetchops/response"
)

// Op performs one attempt.
type Op func(ctx context.Context) response.Response

// canceled converts a done context into a canceled response.
func canceled(ctx context.Context) response.Response {
	return response.Cancel(context.Cause(ctx))
}
