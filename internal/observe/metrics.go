// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pipeline metrics.
const meterName = "github.com/aikyo-ai/aikyo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// PipelineDuration tracks per-component processing latency. Use with
	// attributes:
	//   attribute.String("component", ...), attribute.String("operation", ...)
	PipelineDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// EventsProcessed counts handled events. Use with attributes:
	//   attribute.String("tenant", ...), attribute.String("component", ...),
	//   attribute.String("operation", ...)
	EventsProcessed metric.Int64Counter

	// CacheHits counts response cache replays by tenant.
	CacheHits metric.Int64Counter

	// PaidCostUSD accumulates paid provider spend. Use with attributes:
	//   attribute.String("tenant", ...), attribute.String("component", ...)
	PaidCostUSD metric.Float64Counter

	// BudgetDenials counts governor denials by tenant and component.
	BudgetDenials metric.Int64Counter

	// BudgetOverruns counts paid calls whose actual cost exceeded the
	// reservation beyond tolerance.
	BudgetOverruns metric.Int64Counter

	// PushFramesDropped counts realtime frames lost to slow consumers.
	PushFramesDropped metric.Int64Counter

	// --- Gauges ---

	// ActivePushSessions tracks the number of live realtime sessions.
	ActivePushSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// a pipeline with a 2 s end-to-end deadline.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PipelineDuration, err = m.Float64Histogram("aikyo.pipeline.duration",
		metric.WithDescription("Per-component processing latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("aikyo.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.EventsProcessed, err = m.Int64Counter("aikyo.events.processed",
		metric.WithDescription("Handled events by tenant, component, and operation."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("aikyo.cache.hits",
		metric.WithDescription("Response cache replays by tenant."),
	); err != nil {
		return nil, err
	}
	if met.PaidCostUSD, err = m.Float64Counter("aikyo.paid.cost_usd",
		metric.WithDescription("Paid provider spend in USD by tenant and component."),
		metric.WithUnit("{USD}"),
	); err != nil {
		return nil, err
	}
	if met.BudgetDenials, err = m.Int64Counter("aikyo.budget.denials",
		metric.WithDescription("Budget governor denials by tenant and component."),
	); err != nil {
		return nil, err
	}
	if met.BudgetOverruns, err = m.Int64Counter("aikyo.budget.overruns",
		metric.WithDescription("Paid calls whose actual cost exceeded the reservation tolerance."),
	); err != nil {
		return nil, err
	}
	if met.PushFramesDropped, err = m.Int64Counter("aikyo.push.frames_dropped",
		metric.WithDescription("Realtime frames dropped for slow consumers."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActivePushSessions, err = m.Int64UpDownCounter("aikyo.push.active_sessions",
		metric.WithDescription("Number of live realtime sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUsage records one pipeline call: its latency histogram sample, the
// processed-event counter, paid spend if any, and the cache-hit counter. It
// is the natural sink for [costsink.Sink]'s on-record hook.
func (m *Metrics) RecordUsage(ctx context.Context, tenant, component, operation string, latencySeconds, costUSD float64, cacheHit bool) {
	m.PipelineDuration.Record(ctx, latencySeconds,
		metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("operation", operation),
		),
	)
	m.EventsProcessed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tenant", tenant),
			attribute.String("component", component),
			attribute.String("operation", operation),
		),
	)
	if costUSD > 0 {
		m.PaidCostUSD.Add(ctx, costUSD,
			metric.WithAttributes(
				attribute.String("tenant", tenant),
				attribute.String("component", component),
			),
		)
	}
	if cacheHit {
		m.CacheHits.Add(ctx, 1,
			metric.WithAttributes(attribute.String("tenant", tenant)),
		)
	}
}

// RecordBudgetDenial records one governor denial.
func (m *Metrics) RecordBudgetDenial(ctx context.Context, tenant, component string) {
	m.BudgetDenials.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tenant", tenant),
			attribute.String("component", component),
		),
	)
}

// RecordPushDrop records frames dropped for a slow realtime consumer.
func (m *Metrics) RecordPushDrop(ctx context.Context, n int64) {
	m.PushFramesDropped.Add(ctx, n)
}

// RecordPushSessions adjusts the live realtime session gauge by delta
// (+1 on open, -1 on close).
func (m *Metrics) RecordPushSessions(ctx context.Context, delta int64) {
	m.ActivePushSessions.Add(ctx, delta)
}

// RecordBudgetOverrun records one reservation overrun.
func (m *Metrics) RecordBudgetOverrun(ctx context.Context, tenant, component string) {
	m.BudgetOverruns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tenant", tenant),
			attribute.String("component", component),
		),
	)
}
