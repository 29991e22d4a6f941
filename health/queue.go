package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/fetchops/dispatch"
)

// StatsSource reports dispatcher counters. *dispatch.Dispatcher satisfies it.
type StatsSource interface {
	Stats() dispatch.Stats
}

// QueueCheckerConfig configures the backlog checker.
type QueueCheckerConfig struct {
	// MaxPending is the backlog above which the dispatcher is degraded.
	// Zero disables the threshold.
	MaxPending int
	// CriticalPending is the backlog above which it is unhealthy.
	// Zero disables the threshold.
	CriticalPending int
}

// QueueChecker reports the dispatcher backlog.
type QueueChecker struct {
	source StatsSource
	config QueueCheckerConfig
}

// NewQueueChecker creates a backlog checker.
func NewQueueChecker(source StatsSource, config QueueCheckerConfig) *QueueChecker {
	return &QueueChecker{source: source, config: config}
}

// Name returns "queue".
func (q *QueueChecker) Name() string { return "queue" }

// Check compares the pending count against the configured thresholds.
func (q *QueueChecker) Check(ctx context.Context) Result {
	if r, done := canceled(ctx); done {
		return r
	}

	stats := q.source.Stats()
	details := map[string]any{
		"lanes":   stats.Lanes,
		"pending": stats.Pending,
		"running": stats.Running,
		"stopped": stats.Stopped,
	}

	switch {
	case q.config.CriticalPending > 0 && stats.Pending > q.config.CriticalPending:
		return Unhealthy(fmt.Sprintf("backlog critical: %d pending", stats.Pending), ErrCheckFailed).WithDetails(details)
	case q.config.MaxPending > 0 && stats.Pending > q.config.MaxPending:
		return Degraded(fmt.Sprintf("backlog high: %d pending", stats.Pending)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d pending, %d running", stats.Pending, stats.Running)).WithDetails(details)
}
