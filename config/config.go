// Package config loads fetchops client settings from the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jonwraymond/fetchops/observe"
)

// Prefix is prepended to every variable name.
const Prefix = "FETCHOPS_"

// Cache storage drivers.
const (
	DriverMemory    = "memory"
	DriverLRU       = "lru"
	DriverRistretto = "ristretto"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

var (
	validDrivers  = []string{DriverMemory, DriverLRU, DriverRistretto}
	validBackoffs = []string{"constant", "linear", "exponential"}
)

// Config holds client defaults and component settings.
type Config struct {
	// BaseURL is the scope base prepended to every endpoint.
	BaseURL string            `env:"BASE_URL"`
	Headers map[string]string `env:"HEADERS"`

	// Request defaults applied by the client to new descriptors.
	Retry             int           `env:"RETRY" envDefault:"0"`
	RetryTime         time.Duration `env:"RETRY_TIME" envDefault:"500ms"`
	CacheTime         time.Duration `env:"CACHE_TIME" envDefault:"5m"`
	GarbageCollection time.Duration `env:"GARBAGE_COLLECTION" envDefault:"5m"`
	DeduplicateTime   time.Duration `env:"DEDUPLICATE_TIME" envDefault:"10ms"`
	DeepEqual         bool          `env:"DEEP_EQUAL" envDefault:"true"`

	// Dispatcher.
	MaxConcurrent  int           `env:"MAX_CONCURRENT" envDefault:"32"`
	AcquireTimeout time.Duration `env:"ACQUIRE_TIMEOUT" envDefault:"30s"`
	AttemptTimeout time.Duration `env:"ATTEMPT_TIMEOUT" envDefault:"0s"`
	Backoff        string        `env:"BACKOFF" envDefault:"constant"`

	// RateLimit caps attempts per second across the client. Zero disables
	// the limiter.
	RateLimit   float64       `env:"RATE_LIMIT" envDefault:"0"`
	RateBurst   int           `env:"RATE_BURST" envDefault:"10"`
	RateMaxWait time.Duration `env:"RATE_MAX_WAIT" envDefault:"1s"`

	// CircuitMaxFailures opens the shared breaker after that many
	// consecutive upstream failures. Zero disables the breaker.
	CircuitMaxFailures  int           `env:"CIRCUIT_MAX_FAILURES" envDefault:"0"`
	CircuitResetTimeout time.Duration `env:"CIRCUIT_RESET_TIMEOUT" envDefault:"30s"`

	// Cache.
	CacheDriver string        `env:"CACHE_DRIVER" envDefault:"memory"`
	CacheSize   int           `env:"CACHE_SIZE" envDefault:"1024"`
	GCInterval  time.Duration `env:"GC_INTERVAL" envDefault:"1m"`
	SnapshotURL string        `env:"SNAPSHOT_URL"`

	// HealthMaxPending is the dispatcher backlog reported as degraded.
	HealthMaxPending int `env:"HEALTH_MAX_PENDING" envDefault:"256"`

	// Observability.
	ServiceName     string  `env:"SERVICE_NAME" envDefault:"fetchops"`
	LogLevel        string  `env:"LOG_LEVEL" envDefault:"info"`
	TracingExporter string  `env:"TRACING_EXPORTER" envDefault:"none"`
	TraceSamplePct  float64 `env:"TRACE_SAMPLE_PCT" envDefault:"1"`
	MetricsExporter string  `env:"METRICS_EXPORTER" envDefault:"none"`
}

// Load reads the process environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads vars instead of the process environment. Keys carry the
// prefix, as in the real environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

// Default returns the configuration produced by an empty environment.
func Default() Config {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		panic(err)
	}
	return cfg
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(field string, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s %s", ErrInvalid, field, fmt.Sprintf(format, args...)))
	}

	if c.Retry < 0 {
		bad("RETRY", "must not be negative, got %d", c.Retry)
	}
	for name, d := range map[string]time.Duration{
		"RETRY_TIME":            c.RetryTime,
		"CACHE_TIME":            c.CacheTime,
		"GARBAGE_COLLECTION":    c.GarbageCollection,
		"DEDUPLICATE_TIME":      c.DeduplicateTime,
		"ACQUIRE_TIMEOUT":       c.AcquireTimeout,
		"ATTEMPT_TIMEOUT":       c.AttemptTimeout,
		"GC_INTERVAL":           c.GCInterval,
		"RATE_MAX_WAIT":         c.RateMaxWait,
		"CIRCUIT_RESET_TIMEOUT": c.CircuitResetTimeout,
	} {
		if d < 0 {
			bad(name, "must not be negative, got %s", d)
		}
	}
	if c.HealthMaxPending < 0 {
		bad("HEALTH_MAX_PENDING", "must not be negative, got %d", c.HealthMaxPending)
	}
	if c.RateLimit < 0 {
		bad("RATE_LIMIT", "must not be negative, got %g", c.RateLimit)
	}
	if c.CircuitMaxFailures < 0 {
		bad("CIRCUIT_MAX_FAILURES", "must not be negative, got %d", c.CircuitMaxFailures)
	}
	if c.MaxConcurrent < 0 {
		bad("MAX_CONCURRENT", "must not be negative, got %d", c.MaxConcurrent)
	}
	if !slices.Contains(validBackoffs, c.Backoff) {
		bad("BACKOFF", "unknown strategy %q", c.Backoff)
	}
	if !slices.Contains(validDrivers, c.CacheDriver) {
		bad("CACHE_DRIVER", "unknown driver %q", c.CacheDriver)
	}
	if c.CacheDriver != DriverMemory && c.CacheSize <= 0 {
		bad("CACHE_SIZE", "must be positive for %s, got %d", c.CacheDriver, c.CacheSize)
	}
	obs := c.Observe()
	if err := obs.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}

	// Map iteration order is random; keep messages stable.
	slices.SortFunc(errs, func(a, b error) int {
		switch {
		case a.Error() < b.Error():
			return -1
		case a.Error() > b.Error():
			return 1
		}
		return 0
	})
	return errors.Join(errs...)
}

// Observe maps the observability fields onto an observe.Config.
func (c Config) Observe() observe.Config {
	return observe.Config{
		ServiceName: c.ServiceName,
		Tracing: observe.TracingConfig{
			Enabled:   c.TracingExporter != "" && c.TracingExporter != "none",
			Exporter:  c.TracingExporter,
			SamplePct: c.TraceSamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.MetricsExporter != "" && c.MetricsExporter != "none",
			Exporter: c.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.LogLevel,
		},
	}
}
