// Package dispatch executes request descriptors through a transport and
// writes the results into the response cache.
//
// Every submission becomes an entry with its own Handle. Entries whose
// descriptor is queued join the FIFO lane of their queue key: one entry
// per lane runs at a time, in submission order. Other entries run as soon
// as they are submitted.
//
// Around each entry the dispatcher layers:
//
//   - Deduplication: entries with the same request key that start within
//     DeduplicateTime of an in-flight execution share its result.
//   - Retry: Retry extra attempts spaced by RetryTime. Every failure that
//     will be retried is written to the cache as a pending retry error.
//   - Per-attempt protection: rate limiter, bulkhead, circuit breaker and
//     timeout from package resilience.
//   - Telemetry: a span, metric points and one log line per attempt.
//
// Aborting an abort key drops pending entries of that key without a
// transport call and cancels running ones through their context.
package dispatch
