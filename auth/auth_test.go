package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonwraymond/fetchops/request"
	"github.com/jonwraymond/fetchops/secret"
	"golang.org/x/oauth2"
)

func newReq() request.Request {
	return request.New(request.Scope{Base: "https://api.example.com"}, request.Options{
		Endpoint: "/users",
		Auth:     true,
		Headers:  map[string]string{"Accept": "application/json"},
	})
}

type countingSource struct {
	calls atomic.Int32
	tok   *oauth2.Token
	err   error
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	s.calls.Add(1)
	return s.tok, s.err
}

func TestTokenSourceAuthenticator(t *testing.T) {
	in := newReq()
	a := NewStaticTokenAuthenticator("abc")

	out, err := a.Authenticate(context.Background(), in)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got := out.Headers()["Authorization"]; got != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer abc")
	}
	if out.Headers()["Accept"] != "application/json" {
		t.Error("existing headers lost")
	}
	if _, ok := in.Headers()["Authorization"]; ok {
		t.Error("input descriptor was modified")
	}
}

func TestTokenSourceAuthenticator_Errors(t *testing.T) {
	boom := errors.New("boom")
	src := &countingSource{err: boom}
	a := NewTokenSourceAuthenticator(src)

	_, err := a.Authenticate(context.Background(), newReq())
	if !errors.Is(err, ErrTokenUnavailable) || !errors.Is(err, boom) {
		t.Errorf("error = %v, want ErrTokenUnavailable wrapping boom", err)
	}

	expired := &countingSource{tok: &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(-time.Hour)}}
	if _, err := NewTokenSourceAuthenticator(expired).Authenticate(context.Background(), newReq()); !errors.Is(err, ErrTokenUnavailable) {
		t.Errorf("expired token error = %v", err)
	}

	if _, err := NewTokenSourceAuthenticator(nil).Authenticate(context.Background(), newReq()); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("nil source error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStaticTokenAuthenticator("x").Authenticate(ctx, newReq()); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled ctx error = %v", err)
	}
}

func TestAPIKeyAuthenticator(t *testing.T) {
	resolver := secret.NewResolver(true, secret.NewStaticProvider("static", map[string]string{"key": "k-1"}))

	tests := []struct {
		name   string
		config APIKeyConfig
		header string
		want   string
	}{
		{"literal", APIKeyConfig{Key: "plain"}, "X-API-Key", "plain"},
		{"secretref", APIKeyConfig{Key: "secretref:static:key"}, "X-API-Key", "k-1"},
		{"custom header", APIKeyConfig{HeaderName: "Authorization", Prefix: "ApiKey ", Key: "plain"}, "Authorization", "ApiKey plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewAPIKeyAuthenticator(tt.config, resolver).Authenticate(context.Background(), newReq())
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if got := out.Headers()[tt.header]; got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestAPIKeyAuthenticator_Missing(t *testing.T) {
	if _, err := NewAPIKeyAuthenticator(APIKeyConfig{}, nil).Authenticate(context.Background(), newReq()); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("error = %v, want ErrMissingCredentials", err)
	}

	resolver := secret.NewResolver(true)
	_, err := NewAPIKeyAuthenticator(APIKeyConfig{Key: "secretref:vault:x"}, resolver).Authenticate(context.Background(), newReq())
	if !errors.Is(err, secret.ErrProviderNotRegistered) {
		t.Errorf("error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestJWTSigner_MintsValidToken(t *testing.T) {
	key := []byte("test-signing-key")
	s := NewJWTSigner(JWTConfig{
		Key:      key,
		Issuer:   "fetchops",
		Subject:  "svc",
		Audience: "api",
		Claims:   map[string]any{"tenant": "t1"},
	})

	out, err := s.Authenticate(context.Background(), newReq())
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	header := out.Headers()["Authorization"]
	if !strings.HasPrefix(header, "Bearer ") {
		t.Fatalf("Authorization = %q", header)
	}

	parsed, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithIssuer("fetchops"), jwt.WithAudience("api"))
	if err != nil {
		t.Fatalf("jwt.Parse() error = %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "svc" || claims["tenant"] != "t1" {
		t.Errorf("claims = %v", claims)
	}
}

func TestJWTSigner_CachesUntilRefresh(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := NewJWTSigner(JWTConfig{Key: []byte("k"), TTL: 10 * time.Minute, Refresh: time.Minute, Now: clock})

	first, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	mu.Lock()
	now = now.Add(8 * time.Minute)
	mu.Unlock()
	second, _ := s.Token(context.Background())
	if second != first {
		t.Error("token re-minted before the refresh window")
	}

	mu.Lock()
	now = now.Add(90 * time.Second)
	mu.Unlock()
	third, _ := s.Token(context.Background())
	if third == first {
		t.Error("token not re-minted inside the refresh window")
	}

	s.Invalidate()
	fourth, _ := s.Token(context.Background())
	if fourth == third {
		t.Error("token not re-minted after Invalidate()")
	}
}

func TestJWTSigner_NoKey(t *testing.T) {
	if _, err := NewJWTSigner(JWTConfig{}).Token(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("error = %v, want ErrMissingCredentials", err)
	}
}

func TestCompositeAuthenticator(t *testing.T) {
	c := NewCompositeAuthenticator(
		NewStaticTokenAuthenticator("abc"),
		NewAPIKeyAuthenticator(APIKeyConfig{Key: "k"}, nil),
	)

	out, err := c.Authenticate(context.Background(), newReq())
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	h := out.Headers()
	if h["Authorization"] != "Bearer abc" || h["X-API-Key"] != "k" {
		t.Errorf("headers = %v", h)
	}
}

func TestCompositeAuthenticator_Errors(t *testing.T) {
	if _, err := NewCompositeAuthenticator().Authenticate(context.Background(), newReq()); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("empty composite error = %v", err)
	}

	missing := NewAPIKeyAuthenticator(APIKeyConfig{}, nil)
	strict := NewCompositeAuthenticator(missing, NewStaticTokenAuthenticator("abc"))
	if _, err := strict.Authenticate(context.Background(), newReq()); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("strict composite error = %v", err)
	}

	lenient := NewCompositeAuthenticator(missing, NewStaticTokenAuthenticator("abc"))
	lenient.SkipMissing = true
	out, err := lenient.Authenticate(context.Background(), newReq())
	if err != nil || out.Headers()["Authorization"] != "Bearer abc" {
		t.Errorf("lenient composite = %v, %v", out.Headers(), err)
	}
}

func TestAuthenticatorFunc(t *testing.T) {
	f := NewAuthenticatorFunc("custom", func(_ context.Context, req request.Request) (request.Request, error) {
		return req.SetHeader("X-Custom", "1"), nil
	})
	if f.Name() != "custom" {
		t.Errorf("Name() = %q", f.Name())
	}
	out, _ := f.Authenticate(context.Background(), newReq())
	if out.Headers()["X-Custom"] != "1" {
		t.Errorf("headers = %v", out.Headers())
	}
}
