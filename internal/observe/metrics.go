// Package observe provides application-wide observability primitives for
// Katib: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Katib metrics.
const meterName = "github.com/katibhealth/katib"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks pipeline stage latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// ProviderRetries counts retries scheduled against external providers.
	// Use with attribute: attribute.String("stage", ...)
	ProviderRetries metric.Int64Counter

	// ProviderErrors counts provider failures that exhausted their retry
	// budget. Use with attribute: attribute.String("stage", ...)
	ProviderErrors metric.Int64Counter

	// DocumentsExported counts rendered note documents.
	DocumentsExported metric.Int64Counter

	// ActiveSessions tracks sessions created but not yet exported.
	ActiveSessions metric.Int64UpDownCounter

	// ProviderFailovers counts backend failures that moved a fallback group
	// on to the next backend. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderFailovers metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("name", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The upper
// buckets cover whole-recording transcription and LLM round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("katib.stage.duration",
		metric.WithDescription("Latency of pipeline stages by stage name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRetries, err = m.Int64Counter("katib.provider.retries",
		metric.WithDescription("Total retries scheduled against external providers by stage."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("katib.provider.errors",
		metric.WithDescription("Total provider failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.DocumentsExported, err = m.Int64Counter("katib.documents.exported",
		metric.WithDescription("Total exported note documents, counting every version."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("katib.active_sessions",
		metric.WithDescription("Number of sessions created but not yet exported."),
	); err != nil {
		return nil, err
	}
	if met.ProviderFailovers, err = m.Int64Counter("katib.provider.failovers",
		metric.WithDescription("Total backend failures that caused a failover to the next backend."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("katib.breaker.transitions",
		metric.WithDescription("Total circuit breaker state transitions by breaker and new state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("katib.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// PipelineObserver adapts [Metrics] to the session pipeline's telemetry
// hooks.
type PipelineObserver struct {
	m *Metrics
}

// NewPipelineObserver wraps m. When m is nil the default instance is used.
func NewPipelineObserver(m *Metrics) *PipelineObserver {
	if m == nil {
		m = DefaultMetrics()
	}
	return &PipelineObserver{m: m}
}

// StageDuration records one completed stage run.
func (o *PipelineObserver) StageDuration(ctx context.Context, stage string, d time.Duration) {
	o.m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RetryScheduled records a retry against an external provider.
func (o *PipelineObserver) RetryScheduled(ctx context.Context, stage string) {
	o.m.ProviderRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)))
}

// ProviderError records a provider failure that the pipeline surfaced.
func (o *PipelineObserver) ProviderError(ctx context.Context, stage string) {
	o.m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)))
}

// SessionsActive moves the active-session gauge by delta.
func (o *PipelineObserver) SessionsActive(ctx context.Context, delta int) {
	o.m.ActiveSessions.Add(ctx, int64(delta))
}

// DocumentExported counts one exported document version.
func (o *PipelineObserver) DocumentExported(ctx context.Context) {
	o.m.DocumentsExported.Add(ctx, 1)
}

// ProviderFailover records a backend failure that moved a fallback group on
// to the next backend. The resilience layer has no request context, so the
// count is recorded against the background context.
func (o *PipelineObserver) ProviderFailover(provider string) {
	o.m.ProviderFailovers.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("provider", provider)))
}

// BreakerStateChanged records a circuit breaker transition. Only the new
// state is attributed; the sequence of transitions reconstructs the path.
func (o *PipelineObserver) BreakerStateChanged(name, _, to string) {
	o.m.BreakerTransitions.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("state", to)))
}
