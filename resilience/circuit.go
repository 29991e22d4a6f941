package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/fetchops/response"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed lets every attempt through.
	StateClosed State = iota
	// StateOpen rejects attempts until ResetTimeout has passed since the
	// last failure.
	StateOpen
	// StateHalfOpen lets a limited number of probes through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the number of concurrent probes.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange observes transitions. It runs after the breaker's lock
	// is released, so it may call back into the breaker.
	OnStateChange func(from, to State)

	// IsFailure classifies a response as an upstream failure.
	// Default: DefaultIsFailure
	IsFailure func(res response.Response) bool

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// DefaultIsFailure counts transport errors and 5xx responses. Client
// errors and canceled responses say nothing about upstream health.
func DefaultIsFailure(res response.Response) bool {
	return res.IsFailure() && (res.Status == 0 || res.Status >= 500)
}

// CircuitBreaker stops sending attempts to an upstream that keeps failing.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	rejected    int64
	lastFailure time.Time
	probes      int
}

type transition struct{ from, to State }

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = DefaultIsFailure
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{config: config}
}

// Execute runs op unless the circuit rejects it. A rejected attempt is a
// failure carrying ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Op) response.Response {
	if !cb.admit() {
		return response.Fail(ErrCircuitOpen, nil, 0)
	}
	res := op(ctx)
	cb.record(res)
	return res
}

// State returns the current state, moving an expired open circuit to
// half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	var ts []transition
	state := cb.refreshLocked(&ts)
	cb.mu.Unlock()

	cb.notify(ts)
	return state
}

// Reset closes the circuit and clears the counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var ts []transition
	cb.moveLocked(StateClosed, &ts)
	cb.failures, cb.successes = 0, 0
	cb.mu.Unlock()

	cb.notify(ts)
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	var ts []transition
	ok := true
	switch cb.refreshLocked(&ts) {
	case StateOpen:
		ok = false
	case StateHalfOpen:
		if cb.probes >= cb.config.HalfOpenMaxRequests {
			ok = false
		} else {
			cb.probes++
		}
	}
	if !ok {
		cb.rejected++
	}
	cb.mu.Unlock()

	cb.notify(ts)
	return ok
}

func (cb *CircuitBreaker) record(res response.Response) {
	cb.mu.Lock()
	var ts []transition

	switch {
	case res.IsCanceled():
		// A canceled probe frees its slot without deciding anything.
		if cb.state == StateHalfOpen && cb.probes > 0 {
			cb.probes--
		}
	case cb.config.IsFailure(res):
		cb.lastFailure = cb.config.Now()
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
			cb.moveLocked(StateOpen, &ts)
		}
	default:
		cb.successes++
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.moveLocked(StateClosed, &ts)
			cb.successes = 0
		}
	}
	cb.mu.Unlock()

	cb.notify(ts)
}

func (cb *CircuitBreaker) refreshLocked(ts *[]transition) State {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.moveLocked(StateHalfOpen, ts)
	}
	return cb.state
}

func (cb *CircuitBreaker) moveLocked(to State, ts *[]transition) {
	if cb.state == to {
		return
	}
	*ts = append(*ts, transition{from: cb.state, to: to})
	cb.state = to
	cb.probes = 0
}

func (cb *CircuitBreaker) notify(ts []transition) {
	if cb.config.OnStateChange == nil {
		return
	}
	for _, t := range ts {
		cb.config.OnStateChange(t.from, t.to)
	}
}

// CircuitBreakerMetrics is a snapshot of breaker counters.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	Successes   int
	Rejected    int64
	LastFailure time.Time
}

// Metrics returns the current counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	var ts []transition
	m := CircuitBreakerMetrics{
		State:       cb.refreshLocked(&ts),
		Failures:    cb.failures,
		Successes:   cb.successes,
		Rejected:    cb.rejected,
		LastFailure: cb.lastFailure,
	}
	cb.mu.Unlock()

	cb.notify(ts)
	return m
}
