package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValueWithAttr returns the value of the data point carrying key=value,
// or -1 if no such point exists.
func sumValueWithAttr[N int64 | float64](sum metricdata.Sum[N], key, value string) N {
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestPipelineDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	attrs := metric.WithAttributes(
		attribute.String("component", "dialogue"),
		attribute.String("operation", "generative"),
	)
	m.PipelineDuration.Record(ctx, 0.412, attrs)
	m.PipelineDuration.Record(ctx, 0.087, attrs)

	rm := collect(t, reader)
	met := findMetric(rm, "aikyo.pipeline.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

func TestRecordUsage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUsage(ctx, "t1", "emotion", "classifier", 0.12, 0.0004, false)
	m.RecordUsage(ctx, "t1", "dialogue", "generative", 0.35, 0.0025, false)
	m.RecordUsage(ctx, "t1", "cache", "lookup", 0.002, 0, true)

	rm := collect(t, reader)

	events := findMetric(rm, "aikyo.events.processed")
	if events == nil {
		t.Fatal("events metric not found")
	}
	sum, ok := events.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("events metric is not a sum")
	}
	if got := sumValueWithAttr(sum, "component", "emotion"); got != 1 {
		t.Errorf("emotion events = %d, want 1", got)
	}

	cost := findMetric(rm, "aikyo.paid.cost_usd")
	if cost == nil {
		t.Fatal("cost metric not found")
	}
	costSum, ok := cost.Data.(metricdata.Sum[float64])
	if !ok {
		t.Fatal("cost metric is not a sum")
	}
	// A free cache hit must not produce a cost data point.
	if got := sumValueWithAttr(costSum, "component", "cache"); got != -1 {
		t.Errorf("cache lookup recorded cost %v, want none", got)
	}
	if got := sumValueWithAttr(costSum, "component", "dialogue"); got != 0.0025 {
		t.Errorf("dialogue cost = %v, want 0.0025", got)
	}

	hits := findMetric(rm, "aikyo.cache.hits")
	if hits == nil {
		t.Fatal("cache hits metric not found")
	}
	hitSum, ok := hits.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("cache hits metric is not a sum")
	}
	if got := sumValueWithAttr(hitSum, "tenant", "t1"); got != 1 {
		t.Errorf("cache hits = %d, want 1", got)
	}
}

func TestBudgetCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBudgetDenial(ctx, "t1", "dialogue")
	m.RecordBudgetDenial(ctx, "t1", "dialogue")
	m.RecordBudgetDenial(ctx, "t2", "emotion")
	m.RecordBudgetOverrun(ctx, "t1", "dialogue")

	rm := collect(t, reader)

	denials := findMetric(rm, "aikyo.budget.denials")
	if denials == nil {
		t.Fatal("denials metric not found")
	}
	sum, ok := denials.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("denials metric is not a sum")
	}
	if got := sumValueWithAttr(sum, "tenant", "t2"); got != 1 {
		t.Errorf("t2 denials = %d, want 1", got)
	}

	overruns := findMetric(rm, "aikyo.budget.overruns")
	if overruns == nil {
		t.Fatal("overruns metric not found")
	}
	oSum, ok := overruns.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("overruns metric is not a sum")
	}
	if got := sumValueWithAttr(oSum, "tenant", "t1"); got != 1 {
		t.Errorf("t1 overruns = %d, want 1", got)
	}
}

func TestPushGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPushSessions(ctx, 1)
	m.RecordPushSessions(ctx, 1)
	m.RecordPushSessions(ctx, -1)
	m.RecordPushDrop(ctx, 5)

	rm := collect(t, reader)

	sessions := findMetric(rm, "aikyo.push.active_sessions")
	if sessions == nil {
		t.Fatal("sessions metric not found")
	}
	sSum, ok := sessions.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("sessions metric is not a sum")
	}
	if len(sSum.DataPoints) == 0 || sSum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %+v, want 1", sSum.DataPoints)
	}

	dropped := findMetric(rm, "aikyo.push.frames_dropped")
	if dropped == nil {
		t.Fatal("dropped metric not found")
	}
	dSum, ok := dropped.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("dropped metric is not a sum")
	}
	if len(dSum.DataPoints) == 0 || dSum.DataPoints[0].Value != 5 {
		t.Errorf("dropped frames = %+v, want 5", dSum.DataPoints)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "aikyo.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
