package rhttp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// clientMetrics holds the OpenTelemetry instruments the pipeline
// records into, grounded on the teacher's metrics.go but trimmed to
// the observability surface spec §7 actually calls for: request
// duration and errors, cache hit/miss, retry attempts and exhaustion,
// and breaker rejections.
type clientMetrics struct {
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter

	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter

	retryAttempts  metric.Int64Counter
	retryExhausted metric.Int64Counter

	breakerRejections metric.Int64Counter
}

// newClientMetrics registers every instrument against meter, which
// must be non-nil. When the host application configures no otel
// MeterProvider, the global provider's meter records nothing, so every
// recording call below becomes a cheap no-op.
func newClientMetrics(meter metric.Meter) (*clientMetrics, error) {
	m := &clientMetrics{}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"rhttp.client.request.duration",
		metric.WithDescription("Duration of client requests, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.requestErrors, err = meter.Int64Counter(
		"rhttp.client.request.errors",
		metric.WithDescription("Count of requests that ended in an error"),
	)
	if err != nil {
		return nil, err
	}

	m.cacheHits, err = meter.Int64Counter(
		"rhttp.client.cache.hits",
		metric.WithDescription("Count of cache hits"),
	)
	if err != nil {
		return nil, err
	}

	m.cacheMisses, err = meter.Int64Counter(
		"rhttp.client.cache.misses",
		metric.WithDescription("Count of cache misses"),
	)
	if err != nil {
		return nil, err
	}

	m.retryAttempts, err = meter.Int64Counter(
		"rhttp.client.retry.attempts",
		metric.WithDescription("Count of retry attempts issued"),
	)
	if err != nil {
		return nil, err
	}

	m.retryExhausted, err = meter.Int64Counter(
		"rhttp.client.retry.exhausted",
		metric.WithDescription("Count of requests that exhausted all retry attempts"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerRejections, err = meter.Int64Counter(
		"rhttp.client.breaker.rejections",
		metric.WithDescription("Count of calls rejected by an open circuit breaker"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *clientMetrics) recordDuration(ctx context.Context, op string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("success", success),
	))
	if !success {
		m.requestErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

func (m *clientMetrics) recordCacheHit(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Add(ctx, 1)
	} else {
		m.cacheMisses.Add(ctx, 1)
	}
}

func (m *clientMetrics) recordRetry(ctx context.Context, attempt int) {
	if m == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt)))
}

func (m *clientMetrics) recordRetryExhausted(ctx context.Context) {
	if m == nil {
		return
	}
	m.retryExhausted.Add(ctx, 1)
}

func (m *clientMetrics) recordBreakerRejection(ctx context.Context) {
	if m == nil {
		return
	}
	m.breakerRejections.Add(ctx, 1)
}
