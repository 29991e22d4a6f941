// Package health reports whether a fetchops client is keeping up.
//
// A Checker inspects one component and returns a Result with a Status of
// Healthy, Degraded or Unhealthy. The package ships checkers for the
// dispatcher backlog, the response cache, the shared circuit breaker and
// the Go runtime. An Aggregator runs several checkers under one deadline
// and folds them into a Report.
//
//	agg := health.NewAggregator()
//	agg.Register("queue", health.NewQueueChecker(dispatcher, health.QueueCheckerConfig{MaxPending: 100}))
//	agg.Register("cache", health.NewCacheChecker(c, health.CacheCheckerConfig{MaxEntries: 10_000}))
//
//	report := agg.Report(ctx)
//	if report.Status == health.StatusUnhealthy {
//	    ...
//	}
//
// # HTTP Endpoints
//
// RegisterHandlers mounts /healthz (liveness), /readyz (plain text
// readiness) and /health (JSON report) on a ServeMux.
package health
