package auth

import (
	"context"

	"github.com/jonwraymond/fetchops/request"
)

// Authenticator adds credentials to a request descriptor.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Authenticate should honor cancellation when it fetches tokens.
// - Errors: a returned error aborts the submission; the descriptor is unused.
type Authenticator interface {
	// Name returns a unique identifier for this authenticator.
	Name() string

	// Authenticate returns req with credentials attached.
	Authenticate(ctx context.Context, req request.Request) (request.Request, error)
}

// AuthenticatorFunc is an adapter to allow use of ordinary functions as Authenticators.
type AuthenticatorFunc struct {
	name string
	fn   func(ctx context.Context, req request.Request) (request.Request, error)
}

// NewAuthenticatorFunc creates an AuthenticatorFunc.
func NewAuthenticatorFunc(name string, fn func(ctx context.Context, req request.Request) (request.Request, error)) *AuthenticatorFunc {
	return &AuthenticatorFunc{name: name, fn: fn}
}

// Name returns the authenticator name.
func (f *AuthenticatorFunc) Name() string {
	return f.name
}

// Authenticate calls the wrapped function.
func (f *AuthenticatorFunc) Authenticate(ctx context.Context, req request.Request) (request.Request, error) {
	return f.fn(ctx, req)
}

var _ Authenticator = (*AuthenticatorFunc)(nil)
