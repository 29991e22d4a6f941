package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/fetchops/request"
)

// ErrMissingMethod indicates RequestMeta.Method is empty.
var ErrMissingMethod = errors.New("observe: request method is required")

// RequestMeta identifies one request attempt for telemetry purposes.
type RequestMeta struct {
	Method     string
	Endpoint   string // template, e.g. /users/:id
	RequestKey string
	QueueKey   string
	Attempt    int // 1-based
}

// MetaFor builds RequestMeta from a descriptor.
func MetaFor(req request.Request) RequestMeta {
	return RequestMeta{
		Method:     req.Method(),
		Endpoint:   req.Endpoint(),
		RequestKey: req.RequestKey(),
		QueueKey:   req.QueueKey(),
	}
}

// SpanName returns the span name for this request.
// Format: request.exec.<METHOD> <endpoint template>
func (m RequestMeta) SpanName() string {
	return "request.exec." + m.Method + " " + m.Endpoint
}

// Validate reports whether the metadata is complete enough to record.
func (m RequestMeta) Validate() error {
	if m.Method == "" {
		return ErrMissingMethod
	}
	return nil
}

// Tracer wraps OpenTelemetry tracing with request-specific span management.
type Tracer interface {
	StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span)
	// EndSpan ends the span. canceled marks an aborted attempt, which is
	// not recorded as an error.
	EndSpan(span trace.Span, err error, canceled bool)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", meta.Method),
		attribute.String("request.endpoint", meta.Endpoint),
		attribute.Int("request.attempt", meta.Attempt),
		attribute.Bool("request.error", false),
	}
	if meta.RequestKey != "" {
		attrs = append(attrs, attribute.String("request.key", meta.RequestKey))
	}
	if meta.QueueKey != "" {
		attrs = append(attrs, attribute.String("request.queue_key", meta.QueueKey))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error, canceled bool) {
	switch {
	case canceled:
		span.SetAttributes(attribute.Bool("request.canceled", true))
		span.SetStatus(codes.Unset, "canceled")
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("request.error", true))
		span.RecordError(err)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NopTracer returns a Tracer that records nothing.
func NopTracer() Tracer {
	return &tracerImpl{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}
