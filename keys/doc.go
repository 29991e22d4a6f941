// Package keys derives the identity strings that group requests.
//
// Four keys exist for every request descriptor:
//
//   - Abort key: method + base + endpoint template. Groups all variants of
//     one logical endpoint for cancellation.
//   - Cache key: same composition as the abort key. Outer bucket of the
//     response cache.
//   - Queue key: same derivation as the cache key. Selects the FIFO lane.
//   - Request key: method + resolved path + encoded query. Identity of one
//     fully resolved variant.
//
// Query serialization is deterministic: semantically identical query maps
// always encode to the same string regardless of map iteration order.
package keys
