// Package exporters builds OpenTelemetry exporters by name.
//
// Tracing: stdout, otlp, jaeger (OTLP to a Jaeger collector), none.
// Metrics: stdout, otlp, prometheus, none.
//
// OTLP exporters read their endpoint from the standard OTEL_EXPORTER_*
// environment variables; a missing endpoint is reported as
// ErrEndpointNotConfigured instead of silently dialing localhost.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrUnknownExporter indicates an exporter name outside the supported set.
	ErrUnknownExporter = errors.New("exporters: unknown exporter")
	// ErrEndpointNotConfigured indicates a required endpoint variable is unset.
	ErrEndpointNotConfigured = errors.New("exporters: endpoint not configured")
)

// Stdout is where the stdout exporters write. Tests and the CLI replace it.
var Stdout io.Writer = os.Stdout

// lookupEnv is replaced in tests.
var lookupEnv = os.Getenv

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := lookupEnv(n); v != "" {
			return v
		}
	}
	return ""
}

func requireEnv(names ...string) error {
	if firstEnv(names...) == "" {
		return fmt.Errorf("%w: set one of %v", ErrEndpointNotConfigured, names)
	}
	return nil
}

// NewTracingExporter creates a span exporter for name.
func NewTracingExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(Stdout))
	case "otlp":
		if err := requireEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	case "jaeger":
		if err := requireEnv("OTEL_EXPORTER_JAEGER_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(lookupEnv("OTEL_EXPORTER_JAEGER_ENDPOINT")))
	case "none", "":
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
}

// NewMetricsReader creates a metrics reader for name.
func NewMetricsReader(ctx context.Context, name string) (sdkmetric.Reader, error) {
	var (
		exp sdkmetric.Exporter
		err error
	)
	switch name {
	case "stdout":
		exp, err = stdoutmetric.New(stdoutmetric.WithWriter(Stdout))
	case "otlp":
		if err := requireEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		exp, err = otlpmetricgrpc.New(ctx)
	case "prometheus":
		reader, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		return reader, nil
	case "none", "":
		exp, err = stdoutmetric.New(stdoutmetric.WithWriter(io.Discard))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s metrics exporter: %w", name, err)
	}
	return sdkmetric.NewPeriodicReader(exp), nil
}
