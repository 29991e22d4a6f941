package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/fetchops/observe/exporters"
)

const instrumentationName = "fetchops"

// Observer bundles the tracer, meter and logger a client reports through.
// Implementations are safe for concurrent use. Shutdown flushes exporters
// the Observer created and honors the deadline of ctx.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger
	Shutdown(ctx context.Context) error
}

// Logger is the structured logger used across fetchops. Logging is best
// effort and never panics.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	WithRequest(meta RequestMeta) Logger
}

// Field is one key/value pair of a log line.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

type observer struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger Logger

	// owned providers, nil when supplied by the caller or disabled
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// NewObserver builds SDK providers for the enabled subsystems and installs
// them as the otel globals. Disabled subsystems get no-op implementations.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	o := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:  noop.NewMeterProvider().Meter(instrumentationName),
		logger: NopLogger(),
	}

	if cfg.Tracing.Enabled {
		if o.tp, err = tracerProvider(ctx, cfg.Tracing, res); err != nil {
			return nil, err
		}
		otel.SetTracerProvider(o.tp)
		o.tracer = o.tp.Tracer(cfg.ServiceName)
	}

	if cfg.Metrics.Enabled {
		if o.mp, err = meterProvider(ctx, cfg.Metrics, res); err != nil {
			_ = o.Shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(o.mp)
		o.meter = o.mp.Meter(cfg.ServiceName)
	}

	switch {
	case !cfg.Logging.Enabled:
	case cfg.Logging.Output != nil:
		o.logger = NewLoggerWithWriter(cfg.Logging.Level, cfg.Logging.Output)
	default:
		o.logger = NewLogger(cfg.Logging.Level)
	}
	return o, nil
}

// NewObserverFromProviders builds an Observer over caller-owned providers.
// Shutdown does not stop the providers. A nil logger means no logging.
func NewObserverFromProviders(tp trace.TracerProvider, mp metric.MeterProvider, logger Logger) Observer {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &observer{
		tracer: tp.Tracer(instrumentationName),
		meter:  mp.Meter(instrumentationName),
		logger: logger,
	}
}

func tracerProvider(ctx context.Context, cfg TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := exporters.NewTracingExporter(ctx, cfg.Exporter)
	if err != nil {
		return nil, fmt.Errorf("observe: trace exporter: %w", err)
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplePct)),
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func sampler(pct float64) sdktrace.Sampler {
	switch {
	case pct >= 1:
		return sdktrace.AlwaysSample()
	case pct <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(pct)
	}
}

func meterProvider(ctx context.Context, cfg MetricsConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Exporter)
	if err != nil {
		return nil, fmt.Errorf("observe: metrics reader: %w", err)
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }
func (o *observer) Meter() metric.Meter  { return o.meter }
func (o *observer) Logger() Logger       { return o.logger }

func (o *observer) Shutdown(ctx context.Context) error {
	var errs []error
	if o.tp != nil {
		if err := o.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observe: tracer shutdown: %w", err))
		}
	}
	if o.mp != nil {
		if err := o.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observe: meter shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (nopLogger) Debug(context.Context, string, ...Field) {}
func (l nopLogger) WithRequest(RequestMeta) Logger        { return l }
