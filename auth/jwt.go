package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonwraymond/fetchops/request"
	"golang.org/x/sync/singleflight"
)

// JWTConfig configures the JWT signer.
type JWTConfig struct {
	// Key is the HS256 signing key.
	Key []byte

	// Issuer, Subject and Audience populate the registered claims.
	Issuer   string
	Subject  string
	Audience string

	// TTL is the lifetime of minted tokens.
	// Default: 15 minutes
	TTL time.Duration

	// Refresh mints a new token this long before the cached one expires.
	// Default: 1 minute
	Refresh time.Duration

	// Claims are extra private claims.
	Claims map[string]any

	// HeaderName is the header receiving the token.
	// Default: "Authorization"
	HeaderName string

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// JWTSigner mints HS256 tokens for outgoing requests. A token is reused
// until Refresh before its expiry; concurrent mints are coalesced.
type JWTSigner struct {
	config JWTConfig
	group  singleflight.Group

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewJWTSigner creates a new JWT signer.
func NewJWTSigner(config JWTConfig) *JWTSigner {
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.Refresh <= 0 {
		config.Refresh = time.Minute
	}
	if config.Refresh >= config.TTL {
		config.Refresh = config.TTL / 2
	}
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &JWTSigner{config: config}
}

// Name returns "jwt".
func (s *JWTSigner) Name() string {
	return "jwt"
}

// Authenticate sets the header to a current token.
func (s *JWTSigner) Authenticate(ctx context.Context, req request.Request) (request.Request, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return req, err
	}
	return req.SetHeader(s.config.HeaderName, s.config.TokenPrefix+tok), nil
}

// Token returns the cached token or mints a new one.
func (s *JWTSigner) Token(ctx context.Context) (string, error) {
	if len(s.config.Key) == 0 {
		return "", ErrMissingCredentials
	}

	now := s.config.Now()
	s.mu.Lock()
	if s.token != "" && now.Add(s.config.Refresh).Before(s.expires) {
		tok := s.token
		s.mu.Unlock()
		return tok, nil
	}
	s.mu.Unlock()

	ch := s.group.DoChan("mint", func() (any, error) {
		return s.mint()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token.
func (s *JWTSigner) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expires = time.Time{}
	s.mu.Unlock()
}

func (s *JWTSigner) mint() (string, error) {
	now := s.config.Now()
	expires := now.Add(s.config.TTL)

	claims := jwt.MapClaims{}
	for k, v := range s.config.Claims {
		claims[k] = v
	}
	claims["iat"] = now.Unix()
	claims["nbf"] = now.Unix()
	claims["exp"] = expires.Unix()
	claims["jti"] = uuid.NewString()
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}
	if s.config.Subject != "" {
		claims["sub"] = s.config.Subject
	}
	if s.config.Audience != "" {
		claims["aud"] = s.config.Audience
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	s.mu.Lock()
	s.token = signed
	s.expires = expires
	s.mu.Unlock()

	return signed, nil
}

var _ Authenticator = (*JWTSigner)(nil)
