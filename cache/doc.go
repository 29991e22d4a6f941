// Package cache provides the two-level response cache.
//
// Entries are stored under a cache key (the endpoint shape, e.g.
// "GET https://api/users/:id") and a request key (one resolved variant,
// e.g. "GET /users/1?active=true"). Grouping variants by endpoint lets
// callers invalidate or rewrite every variant of an endpoint at once.
//
// Writes replace the whole slot. A refresh failure or a failure with
// retries remaining never replaces a previously successful payload; it is
// recorded in RefreshError or RetryError alongside the old data.
//
// Subscribers are notified synchronously after the store reflects the
// mutation. A subscriber can listen on a request key (one variant) or a
// cache key (every variant of an endpoint).
//
// Storage is pluggable: MemoryStorage (default), LRUStorage backed by
// hashicorp/golang-lru, and RistrettoStorage backed by dgraph-io/ristretto.
package cache
