package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Options are the command line flags. Unset flags fall back to the
// FETCHOPS_ environment configuration.
type Options struct {
	Base     string   `short:"b" long:"base" description:"base URL"`
	Method   string   `short:"X" long:"method" description:"HTTP method" default:"GET"`
	Endpoint string   `short:"e" long:"endpoint" description:"endpoint template, e.g. /users/:id" required:"true"`
	Params   []string `short:"p" long:"param" description:"path parameter name=value (repeatable)"`
	Query    []string `short:"q" long:"query" description:"query parameter name=value (repeatable)"`
	Headers  []string `short:"H" long:"header" description:"header name=value (repeatable); values may use ${ENV} and secretref:"`
	Data     string   `short:"d" long:"data" description:"JSON request body"`

	Retry     int           `long:"retry" description:"retries after the first attempt"`
	RetryTime time.Duration `long:"retry-time" description:"delay between attempts"`
	Queued    bool          `long:"queued" description:"run through the FIFO lane of the endpoint"`
	Fetch     bool          `long:"fetch" description:"answer from a fresh cache entry when one exists"`
	CacheTime time.Duration `long:"cache-time" description:"freshness window for --fetch"`

	Bearer string `long:"bearer" description:"bearer token; may use ${ENV} or secretref:env:NAME"`
	APIKey string `long:"api-key" description:"API key sent in X-API-Key; may use ${ENV} or secretref:env:NAME"`

	JWTKey     string `long:"jwt-key" description:"HS256 key for minting a bearer JWT; may use ${ENV} or secretref:"`
	JWTSubject string `long:"jwt-subject" description:"subject claim of minted JWTs"`
	JWTIssuer  string `long:"jwt-issuer" description:"issuer claim of minted JWTs" default:"fetchops"`

	SecretProviders []string `long:"secret-provider" description:"secret provider for secretref: values (repeatable)" default:"env"`

	Snapshot string        `long:"snapshot" description:"cache snapshot URL (file://, mem://, s3://...)"`
	LogLevel string        `long:"log-level" description:"debug|info|warn|error" default:"warn"`
	Timeout  time.Duration `long:"timeout" description:"overall deadline" default:"30s"`
}

func pairs(flag string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--%s %q: want name=value", flag, v)
		}
		out[name] = value
	}
	return out, nil
}

func anyPairs(flag string, values []string) (map[string]any, error) {
	m, err := pairs(flag, values)
	if err != nil || m == nil {
		return nil, err
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func body(data string) (any, error) {
	if data == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("--data: %w", err)
	}
	return v, nil
}
