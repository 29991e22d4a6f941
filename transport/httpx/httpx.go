// Package httpx is the net/http transport adapter.
//
// Request bodies are JSON encoded; response bodies are JSON decoded into
// `any` when the content type says JSON and kept as a string otherwise.
// Status codes of 400 and above produce a Failure response carrying the
// decoded body and a *StatusError.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/fetchops/request"
	"github.com/jonwraymond/fetchops/response"
	"github.com/jonwraymond/fetchops/secret"
	"github.com/jonwraymond/fetchops/transport"
	"golang.org/x/oauth2"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

// StatusError describes a non-2xx/3xx answer.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.Status, http.StatusText(e.Status), e.Body)
}

// Adapter executes descriptors over HTTP.
type Adapter struct {
	client    *http.Client
	tokens    oauth2.TokenSource
	resolver  *secret.Resolver
	baseURL   string
	userAgent string
	maxBody   int64
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

// WithTokenSource adds an Authorization header from ts to every request
// that does not already carry one.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(a *Adapter) { a.tokens = ts }
}

// WithHeaderResolver resolves secretref: values in headers before sending.
func WithHeaderResolver(r *secret.Resolver) Option {
	return func(a *Adapter) { a.resolver = r }
}

// WithBaseURL overrides the descriptor's base URL.
func WithBaseURL(base string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(base, "/") }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(a *Adapter) { a.userAgent = ua }
}

// WithMaxBodyBytes caps response body reads.
func WithMaxBodyBytes(n int64) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// New creates an HTTP adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "fetchops",
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

var _ transport.Adapter = (*Adapter)(nil)

// Execute performs the HTTP call described by req.
func (a *Adapter) Execute(ctx context.Context, req request.Request) response.Response {
	start := time.Now()
	res := a.execute(ctx, req)
	res.Duration = time.Since(start)
	return res
}

func (a *Adapter) execute(ctx context.Context, req request.Request) response.Response {
	httpReq, err := a.build(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return response.Cancel(context.Cause(ctx))
		}
		return response.Fail(err, nil, 0)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return response.Cancel(context.Cause(ctx))
		}
		return response.Fail(err, nil, 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBody))
	if err != nil {
		if ctx.Err() != nil {
			return response.Cancel(context.Cause(ctx))
		}
		return response.Fail(fmt.Errorf("httpx: read body: %w", err), nil, resp.StatusCode)
	}

	data, decodeErr := decode(resp.Header.Get("Content-Type"), raw)
	headers := flatten(resp.Header)

	if resp.StatusCode >= http.StatusBadRequest {
		res := response.Fail(&StatusError{
			Method: httpReq.Method,
			URL:    httpReq.URL.Redacted(),
			Status: resp.StatusCode,
			Body:   snippet(raw),
		}, data, resp.StatusCode)
		res.Headers = headers
		return res
	}
	if decodeErr != nil {
		res := response.Fail(fmt.Errorf("httpx: decode body: %w", decodeErr), string(raw), resp.StatusCode)
		res.Headers = headers
		return res
	}

	res := response.OK(data, resp.StatusCode)
	res.Headers = headers
	return res
}

func (a *Adapter) build(ctx context.Context, req request.Request) (*http.Request, error) {
	u := req.URL()
	if a.baseURL != "" {
		u = a.baseURL + strings.TrimPrefix(u, req.Base())
	}

	var body io.Reader
	if d := req.Data(); d != nil && req.Method() != http.MethodGet && req.Method() != http.MethodHead {
		switch v := d.(type) {
		case []byte:
			body = bytes.NewReader(v)
		case string:
			body = strings.NewReader(v)
		default:
			buf, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("httpx: encode body: %w", err)
			}
			body = bytes.NewReader(buf)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), u, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if a.userAgent != "" {
		httpReq.Header.Set("User-Agent", a.userAgent)
	}

	headers := req.Headers()
	if a.resolver != nil {
		headers, err = a.resolver.ResolveHeaders(ctx, headers)
		if err != nil {
			return nil, err
		}
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	if a.tokens != nil && httpReq.Header.Get("Authorization") == "" {
		tok, err := a.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("httpx: token: %w", err)
		}
		tok.SetAuthHeader(httpReq)
	}

	return httpReq, nil
}

func decode(contentType string, raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt != "application/json" && !strings.HasSuffix(mt, "+json") {
		return string(raw), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func flatten(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func snippet(raw []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

// IsStatus reports whether err is a *StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
