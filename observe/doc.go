// Package observe provides logging, tracing and metrics for request
// execution.
//
// An Observer bundles an OpenTelemetry tracer and meter with a zerolog
// backed Logger. The dispatcher wraps every transport attempt with a
// Middleware built from the Observer, producing one span, one set of
// metric points and one log line per attempt.
//
// Metrics:
//
//	request.exec.total        counter, every attempt
//	request.exec.errors       counter, failed attempts
//	request.exec.canceled     counter, canceled attempts
//	request.exec.duration_ms  histogram
//	request.exec.retries      counter, attempts scheduled for retry
//	request.dedup.shared      counter, submissions joined to a running flight
//	request.cache.events      counter, cache notifications by kind
package observe
