package health

import (
	"context"
	"time"
)

// Status orders component health from best to worst.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

func worse(a, b Status) Status { return max(a, b) }

// Result is what one checker observed. Details carries the counters the
// check looked at, e.g. pending entries for the queue check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

func newResult(s Status, message string, err error) Result {
	return Result{Status: s, Message: message, Error: err, Timestamp: time.Now()}
}

// Healthy returns a healthy Result.
func Healthy(message string) Result { return newResult(StatusHealthy, message, nil) }

// Degraded returns a degraded Result. The component still serves requests.
func Degraded(message string) Result { return newResult(StatusDegraded, message, nil) }

// Unhealthy returns an unhealthy Result caused by err.
func Unhealthy(message string, err error) Result {
	return newResult(StatusUnhealthy, message, err)
}

func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

func (r Result) WithDuration(d time.Duration) Result {
	r.Duration = d
	return r
}

// Checker inspects one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc is a named check function.
type CheckerFunc struct {
	name  string
	check func(context.Context) Result
}

func NewCheckerFunc(name string, check func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, check: check}
}

func (f *CheckerFunc) Name() string                     { return f.name }
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.check(ctx) }

// canceled returns an unhealthy Result once ctx is done.
func canceled(ctx context.Context) (Result, bool) {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context canceled", err), true
	}
	return Result{}, false
}
