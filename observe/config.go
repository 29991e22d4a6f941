package observe

import (
	"errors"
	"fmt"
	"io"
	"slices"
)

// Config selects the telemetry backends of an Observer.
type Config struct {
	ServiceName string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// TracingConfig enables span export.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|jaeger|stdout|none
	SamplePct float64 // fraction of traces kept, 0..1
}

// MetricsConfig enables metric export.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none
}

// LoggingConfig enables the zerolog logger. Output defaults to stderr.
type LoggingConfig struct {
	Enabled bool
	Level   string
	Output  io.Writer
}

// Validate reports every invalid setting at once. Settings of disabled
// subsystems are not checked.
func (c *Config) Validate() error {
	var errs []error
	if c.ServiceName == "" {
		errs = append(errs, ErrMissingServiceName)
	}
	if t := c.Tracing; t.Enabled {
		if !slices.Contains(ValidTracingExporters, t.Exporter) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTracingExporter, t.Exporter))
		}
		if t.SamplePct < 0 || t.SamplePct > 1 {
			errs = append(errs, fmt.Errorf("%w: got %g", ErrInvalidSamplePct, t.SamplePct))
		}
	}
	if m := c.Metrics; m.Enabled && !slices.Contains(ValidMetricsExporters, m.Exporter) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, m.Exporter))
	}
	if l := c.Logging; l.Enabled && !slices.Contains(ValidLogLevels, l.Level) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level))
	}
	return errors.Join(errs...)
}
