package health

import (
	"context"

	"github.com/jonwraymond/fetchops/resilience"
)

// CircuitChecker maps the shared breaker state onto a status: open is
// unhealthy and half-open is degraded.
type CircuitChecker struct {
	breaker *resilience.CircuitBreaker
}

// NewCircuitChecker creates a breaker checker. A nil breaker is always
// healthy.
func NewCircuitChecker(breaker *resilience.CircuitBreaker) *CircuitChecker {
	return &CircuitChecker{breaker: breaker}
}

// Name returns "circuit".
func (c *CircuitChecker) Name() string { return "circuit" }

// Check reports the breaker state.
func (c *CircuitChecker) Check(ctx context.Context) Result {
	if r, done := canceled(ctx); done {
		return r
	}
	if c.breaker == nil {
		return Healthy("no circuit breaker configured")
	}

	state := c.breaker.State()
	details := map[string]any{"state": state.String()}
	switch state {
	case resilience.StateOpen:
		return Unhealthy("circuit open", resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open").WithDetails(details)
	}
	return Healthy("circuit closed").WithDetails(details)
}
