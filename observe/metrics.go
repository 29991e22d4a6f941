package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/jonwraymond/fetchops/response"
)

// Metrics records request execution metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	RecordExecution(ctx context.Context, meta RequestMeta, duration time.Duration, outcome response.Outcome)
	RecordRetry(ctx context.Context, meta RequestMeta)
	RecordShared(ctx context.Context, meta RequestMeta)
	RecordCacheEvent(ctx context.Context, kind string)
}

type metricsImpl struct {
	totalCount    metric.Int64Counter
	errorCount    metric.Int64Counter
	canceledCount metric.Int64Counter
	retryCount    metric.Int64Counter
	sharedCount   metric.Int64Counter
	cacheEvents   metric.Int64Counter
	durationHist  metric.Float64Histogram
}

// NewMetrics creates the request instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}
	m := &metricsImpl{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.totalCount, "request.exec.total", "Total number of request attempts", "{call}"},
		{&m.errorCount, "request.exec.errors", "Total number of failed request attempts", "{error}"},
		{&m.canceledCount, "request.exec.canceled", "Total number of canceled request attempts", "{call}"},
		{&m.retryCount, "request.exec.retries", "Total number of scheduled retries", "{retry}"},
		{&m.sharedCount, "request.dedup.shared", "Submissions joined to an in-flight execution", "{call}"},
		{&m.cacheEvents, "request.cache.events", "Cache notifications by kind", "{event}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}

	m.durationHist, err = meter.Float64Histogram(
		"request.exec.duration_ms",
		metric.WithDescription("Request attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func attrs(meta RequestMeta) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("http.request.method", meta.Method),
		attribute.String("request.endpoint", meta.Endpoint),
	)
}

func (m *metricsImpl) RecordExecution(ctx context.Context, meta RequestMeta, duration time.Duration, outcome response.Outcome) {
	opt := attrs(meta)
	m.totalCount.Add(ctx, 1, opt)
	switch outcome {
	case response.Failure:
		m.errorCount.Add(ctx, 1, opt)
	case response.Canceled:
		m.canceledCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordRetry(ctx context.Context, meta RequestMeta) {
	m.retryCount.Add(ctx, 1, attrs(meta))
}

func (m *metricsImpl) RecordShared(ctx context.Context, meta RequestMeta) {
	m.sharedCount.Add(ctx, 1, attrs(meta))
}

func (m *metricsImpl) RecordCacheEvent(ctx context.Context, kind string) {
	m.cacheEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.event", kind)))
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return nopMetrics{} }

type nopMetrics struct{}

func (nopMetrics) RecordExecution(context.Context, RequestMeta, time.Duration, response.Outcome) {}
func (nopMetrics) RecordRetry(context.Context, RequestMeta)                                      {}
func (nopMetrics) RecordShared(context.Context, RequestMeta)                                     {}
func (nopMetrics) RecordCacheEvent(context.Context, string)                                      {}
