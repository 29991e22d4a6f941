package resilience

import (
	"context"
	"time"

	"github.com/jonwraymond/fetchops/response"
)

const defaultAttemptTimeout = 30 * time.Second

// TimeoutConfig bounds a single attempt. A zero Timeout means 30s.
type TimeoutConfig struct {
	Timeout time.Duration
}

// Timeout gives each attempt its own deadline.
type Timeout struct {
	limit time.Duration
}

// NewTimeout creates a Timeout.
func NewTimeout(config TimeoutConfig) *Timeout {
	limit := config.Timeout
	if limit <= 0 {
		limit = defaultAttemptTimeout
	}
	return &Timeout{limit: limit}
}

// Config reports the effective configuration.
func (t *Timeout) Config() TimeoutConfig {
	return TimeoutConfig{Timeout: t.limit}
}

// Execute runs op under the attempt deadline. An expired deadline becomes
// a failure wrapping ErrTimeout so the dispatcher may retry it; a canceled
// ctx stays a cancellation. op is not waited for once the deadline passes.
func (t *Timeout) Execute(ctx context.Context, op Op) response.Response {
	attemptCtx, cancel := context.WithTimeoutCause(ctx, t.limit, ErrTimeout)
	defer cancel()

	result := make(chan response.Response, 1)
	go func() { result <- op(attemptCtx) }()

	var res response.Response
	select {
	case res = <-result:
		if !res.IsCanceled() {
			return res
		}
	case <-attemptCtx.Done():
	}

	switch {
	case ctx.Err() != nil:
		return canceled(ctx)
	case attemptCtx.Err() != nil:
		return response.Fail(ErrTimeout, nil, 0)
	default:
		return res
	}
}

// ExecuteWithTimeout runs op once under a one-off Timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op Op) response.Response {
	return NewTimeout(TimeoutConfig{Timeout: timeout}).Execute(ctx, op)
}
