package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/fetchops/request"
)

// CompositeAuthenticator applies several authenticators in order. Later
// authenticators see the headers set by earlier ones.
type CompositeAuthenticator struct {
	// Authenticators is the ordered list to apply.
	Authenticators []Authenticator

	// SkipMissing ignores ErrMissingCredentials from individual
	// authenticators instead of failing.
	// Default: false
	SkipMissing bool
}

// NewCompositeAuthenticator creates a composite authenticator.
func NewCompositeAuthenticator(auths ...Authenticator) *CompositeAuthenticator {
	return &CompositeAuthenticator{Authenticators: auths}
}

// Name returns "composite".
func (c *CompositeAuthenticator) Name() string {
	return "composite"
}

// Authenticate applies each authenticator in sequence.
func (c *CompositeAuthenticator) Authenticate(ctx context.Context, req request.Request) (request.Request, error) {
	if len(c.Authenticators) == 0 {
		return req, ErrMissingCredentials
	}

	applied := 0
	out := req
	for _, a := range c.Authenticators {
		next, err := a.Authenticate(ctx, out)
		if err != nil {
			if c.SkipMissing && errors.Is(err, ErrMissingCredentials) {
				continue
			}
			return req, fmt.Errorf("%s: %w", a.Name(), err)
		}
		out = next
		applied++
	}

	if applied == 0 {
		return req, ErrMissingCredentials
	}
	return out, nil
}

var _ Authenticator = (*CompositeAuthenticator)(nil)
