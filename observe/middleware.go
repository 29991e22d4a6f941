package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/fetchops/response"
)

// ExecuteFunc performs one request attempt.
type ExecuteFunc func(ctx context.Context, meta RequestMeta) response.Response

// Middleware wraps request attempts with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ExecuteFunc.
//   - Context: the span context is passed to the wrapped function.
//   - Ownership: responses are passed through unchanged, except that
//     Duration is filled when the transport left it zero.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// Metrics returns the metrics sink used by the middleware.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the logger used by the middleware.
func (m *Middleware) Logger() Logger { return m.logger }

// Wrap wraps fn with a span, metric points and one log line per attempt.
func (m *Middleware) Wrap(fn ExecuteFunc) ExecuteFunc {
	return func(ctx context.Context, meta RequestMeta) response.Response {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		res := fn(ctx, meta)

		duration := time.Since(start)
		if res.Duration == 0 {
			res.Duration = duration
		}

		m.tracer.EndSpan(span, res.Err, res.IsCanceled())
		m.metrics.RecordExecution(ctx, meta, duration, res.Outcome)

		log := m.logger.WithRequest(meta)
		fields := []Field{
			F("attempt", meta.Attempt),
			F("status", res.Status),
			F("duration_ms", float64(duration.Milliseconds())),
		}
		switch res.Outcome {
		case response.Failure:
			log.Error(ctx, "request attempt failed", append(fields, F("error", res.Err))...)
		case response.Canceled:
			log.Info(ctx, "request attempt canceled", fields...)
		default:
			log.Debug(ctx, "request attempt completed", fields...)
		}
		return res
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
