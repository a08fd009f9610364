package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestPipelineObserver_StageDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	obs := NewPipelineObserver(m)
	ctx := context.Background()

	obs.StageDuration(ctx, "transcribe", 2*time.Second)
	obs.StageDuration(ctx, "transcribe", 4*time.Second)
	obs.StageDuration(ctx, "render", 100*time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "katib.stage.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric is not a histogram: %T", met.Data)
	}
	if len(hist.DataPoints) != 2 {
		t.Fatalf("data points = %d, want one per stage attribute", len(hist.DataPoints))
	}

	for _, dp := range hist.DataPoints {
		stage, _ := dp.Attributes.Value(attribute.Key("stage"))
		switch stage.AsString() {
		case "transcribe":
			if dp.Count != 2 {
				t.Errorf("transcribe count = %d, want 2", dp.Count)
			}
			if dp.Sum != 6.0 {
				t.Errorf("transcribe sum = %v, want 6", dp.Sum)
			}
		case "render":
			if dp.Count != 1 {
				t.Errorf("render count = %d, want 1", dp.Count)
			}
		default:
			t.Errorf("unexpected stage attribute %q", stage.AsString())
		}
	}
}

func TestPipelineObserver_Counters(t *testing.T) {
	m, reader := newTestMetrics(t)
	obs := NewPipelineObserver(m)
	ctx := context.Background()

	obs.RetryScheduled(ctx, "transcribe")
	obs.RetryScheduled(ctx, "transcribe")
	obs.ProviderError(ctx, "process")
	obs.DocumentExported(ctx)
	obs.DocumentExported(ctx)
	obs.DocumentExported(ctx)

	rm := collect(t, reader)

	checkSum := func(name string, want int64) {
		t.Helper()
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok {
			t.Fatalf("metric %q is not a sum: %T", name, met.Data)
		}
		var total int64
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
		if total != want {
			t.Errorf("%s total = %d, want %d", name, total, want)
		}
	}

	checkSum("katib.provider.retries", 2)
	checkSum("katib.provider.errors", 1)
	checkSum("katib.documents.exported", 3)
}

func TestPipelineObserver_FailoverCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	obs := NewPipelineObserver(m)

	obs.ProviderFailover("hosted")
	obs.ProviderFailover("hosted")
	obs.BreakerStateChanged("hosted", "closed", "open")

	rm := collect(t, reader)

	met := findMetric(rm, "katib.provider.failovers")
	if met == nil {
		t.Fatal("failover metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric is not a sum: %T", met.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("failovers = %+v, want one data point of 2", sum.DataPoints)
	}
	provider, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("provider"))
	if provider.AsString() != "hosted" {
		t.Errorf("provider attribute = %q, want hosted", provider.AsString())
	}

	met = findMetric(rm, "katib.breaker.transitions")
	if met == nil {
		t.Fatal("transition metric not found")
	}
	sum, ok = met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric is not a sum: %T", met.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Fatalf("transitions = %+v, want one data point of 1", sum.DataPoints)
	}
	state, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("state"))
	if state.AsString() != "open" {
		t.Errorf("state attribute = %q, want open", state.AsString())
	}
}

func TestPipelineObserver_ActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	obs := NewPipelineObserver(m)
	ctx := context.Background()

	obs.SessionsActive(ctx, 1)
	obs.SessionsActive(ctx, 1)
	obs.SessionsActive(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "katib.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric is not a sum: %T", met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("active sessions = %d, want 1", total)
	}
}
