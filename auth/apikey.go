package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonwraymond/fetchops/request"
	"github.com/jonwraymond/fetchops/secret"
)

// APIKeyConfig configures the API key authenticator.
type APIKeyConfig struct {
	// HeaderName is the header carrying the key.
	// Default: "X-API-Key"
	HeaderName string

	// Key is the key or a secret reference such as
	// "secretref:env:UPSTREAM_API_KEY".
	Key string

	// Prefix is prepended to the key, e.g. "ApiKey ".
	Prefix string
}

// APIKeyAuthenticator sets a key header on every request.
type APIKeyAuthenticator struct {
	config   APIKeyConfig
	resolver *secret.Resolver
}

// NewAPIKeyAuthenticator creates a new API key authenticator. resolver
// may be nil when Key holds the literal key.
func NewAPIKeyAuthenticator(config APIKeyConfig, resolver *secret.Resolver) *APIKeyAuthenticator {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}

	return &APIKeyAuthenticator{
		config:   config,
		resolver: resolver,
	}
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string {
	return "api_key"
}

// Authenticate resolves the key and sets the header.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, req request.Request) (request.Request, error) {
	if strings.TrimSpace(a.config.Key) == "" {
		return req, ErrMissingCredentials
	}

	key, err := a.resolver.ResolveValue(ctx, a.config.Key)
	if err != nil {
		return req, fmt.Errorf("auth: api key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return req, ErrMissingCredentials
	}

	return req.SetHeader(a.config.HeaderName, a.config.Prefix+key), nil
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)
