package health

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout bounds one round of checks.
	// Default: 10 seconds
	Timeout time.Duration

	// Sequential runs checks one after another instead of in parallel.
	Sequential bool
}

// Aggregator combines several checkers into one report.
type Aggregator struct {
	config   AggregatorConfig
	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates a new health aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	var cfg AggregatorConfig
	if len(config) > 0 {
		cfg = config[len(config)-1]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Aggregator{config: cfg, checkers: make(map[string]Checker)}
}

// Register adds a checker. Registering an existing name replaces it and
// keeps its position.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = checker
}

// Unregister removes a checker.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.checkers, name)
	a.order = slices.DeleteFunc(a.order, func(n string) bool { return n == name })
}

// CheckerNames returns the registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.order)
}

// Check runs a single named check.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()

	if !ok {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return runCheck(ctx, checker), nil
}

// CheckAll runs every registered check under the aggregator timeout.
// Checks run concurrently unless the aggregator is sequential.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	names := slices.Clone(a.order)
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = a.checkers[name]
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	out := make([]Result, len(checkers))
	if a.config.Sequential {
		for i, c := range checkers {
			out[i] = runCheck(ctx, c)
		}
	} else {
		var g errgroup.Group
		for i, c := range checkers {
			g.Go(func() error {
				out[i] = runCheck(ctx, c)
				return nil
			})
		}
		_ = g.Wait()
	}

	results := make(map[string]Result, len(names))
	for i, name := range names {
		results[name] = out[i]
	}
	return results
}

// OverallStatus returns the most severe status in results. An empty set
// is healthy.
func (a *Aggregator) OverallStatus(results map[string]Result) Status {
	status := StatusHealthy
	for _, result := range results {
		status = worse(status, result.Status)
	}
	return status
}

// Report is the folded outcome of one round of checks.
type Report struct {
	Status    Status
	Timestamp time.Time
	Checks    map[string]Result
}

// Report runs every check and folds the results.
func (a *Aggregator) Report(ctx context.Context) Report {
	results := a.CheckAll(ctx)
	return Report{
		Status:    a.OverallStatus(results),
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// runCheck gives up on a checker that outlives ctx and reports it as
// timed out. The checker goroutine finishes on its own.
func runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)
	go func() { done <- checker.Check(ctx) }()

	var r Result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = Unhealthy("check timed out", ErrCheckTimeout)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = start
	}
	return r.WithDuration(time.Since(start))
}

// Checker exposes the aggregator as a single checker so it can be nested.
func (a *Aggregator) Checker() Checker {
	return NewCheckerFunc("aggregate", func(ctx context.Context) Result {
		report := a.Report(ctx)

		details := make(map[string]any, len(report.Checks))
		for name, result := range report.Checks {
			details[name] = result.Status.String()
		}

		var message string
		switch report.Status {
		case StatusHealthy:
			message = "all checks passed"
		case StatusDegraded:
			message = "some checks degraded"
		default:
			message = "some checks failed"
		}
		return Result{Status: report.Status, Message: message, Details: details, Timestamp: report.Timestamp}
	})
}
