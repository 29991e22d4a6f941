package auth

import (
	"context"
	"fmt"

	"github.com/jonwraymond/fetchops/request"
	"golang.org/x/oauth2"
)

// TokenSourceAuthenticator sets the Authorization header from an OAuth2
// token source. Wrap the source with oauth2.ReuseTokenSource to cache
// tokens across requests.
type TokenSourceAuthenticator struct {
	source oauth2.TokenSource
}

// NewTokenSourceAuthenticator creates a token source authenticator.
func NewTokenSourceAuthenticator(source oauth2.TokenSource) *TokenSourceAuthenticator {
	return &TokenSourceAuthenticator{source: source}
}

// NewStaticTokenAuthenticator sends a fixed bearer token.
func NewStaticTokenAuthenticator(token string) *TokenSourceAuthenticator {
	return NewTokenSourceAuthenticator(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

// Name returns "oauth2".
func (a *TokenSourceAuthenticator) Name() string {
	return "oauth2"
}

// Authenticate fetches a token and sets the Authorization header.
func (a *TokenSourceAuthenticator) Authenticate(ctx context.Context, req request.Request) (request.Request, error) {
	if a.source == nil {
		return req, ErrMissingCredentials
	}
	if err := ctx.Err(); err != nil {
		return req, err
	}
	tok, err := a.source.Token()
	if err != nil {
		return req, fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	if !tok.Valid() {
		return req, ErrTokenUnavailable
	}
	return req.SetHeader("Authorization", tok.Type()+" "+tok.AccessToken), nil
}

var _ Authenticator = (*TokenSourceAuthenticator)(nil)
