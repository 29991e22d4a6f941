// Package request provides the immutable request descriptor.
//
// A Request is built from a static Options definition bound to a Scope
// (the owning client's base URL and abort registry). Every setter returns
// a new Request; the receiver is never modified, and maps are copied so
// two descriptors never alias each other's state.
//
// Identity keys are derived on demand. Abort, cache and queue keys become
// sticky once set explicitly, either in Options or through SetAbortKey,
// SetCacheKey or SetQueueKey, and survive every later mutation.
//
// Missing path parameters never fail construction. They are reported by
// Validate, which the dispatcher calls before any transport work.
//
// Example:
//
//	getUser := request.New(scope, request.Options{
//	    Method:   "GET",
//	    Endpoint: "/users/:id",
//	})
//	req := getUser.SetParams(map[string]any{"id": 1}).
//	    SetQueryParams(map[string]any{"active": true})
//	req.RequestKey() // "GET /users/1?active=true"
package request
