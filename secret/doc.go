// Package secret resolves credentials referenced from request headers and
// configuration values.
//
// References use the prefix "secretref:":
//   - Full value:  secretref:env:UPSTREAM_TOKEN
//   - Inline use:  Bearer secretref:env:UPSTREAM_TOKEN
//
// Values are first expanded with ExpandEnvStrict, so "${VAR}" works too.
// Two providers are built in: "env" reads the process environment and
// "static" serves an in-memory map. Both are registered on
// DefaultRegistry.
//
// Resolved values never appear in error messages.
package secret
