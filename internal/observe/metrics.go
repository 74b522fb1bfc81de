// Package observe provides observability primitives for Vetscribe:
// OpenTelemetry metrics, tracing, structured logging helpers, and HTTP
// middleware tying them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// via a Prometheus bridge (see [InitProvider]) so they can be scraped from
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) exists for convenience; tests should use [NewMetrics]
// with their own [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vetscribe metrics.
const meterName = "github.com/fzalvarez/vetscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// AnalysisDuration tracks report-generation latency, including the model
	// call and response parsing. Use with attribute.String("status", ...).
	AnalysisDuration metric.Float64Histogram

	// AssessmentDuration tracks live-assessment pulse latency.
	AssessmentDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ThrottleEvents counts analysis calls rejected by the endpoint for rate
	// limiting.
	ThrottleEvents metric.Int64Counter

	// SegmentsCommitted counts transcript segments committed by the diarizer.
	SegmentsCommitted metric.Int64Counter

	// RecordingsActive tracks whether a recording is currently running
	// (0 or 1 in this single-session client, but kept as an up/down counter).
	RecordingsActive metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Analysis
// calls run against remote model endpoints, so the buckets reach well past
// interactive latencies.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AnalysisDuration, err = m.Float64Histogram("vetscribe.analysis.duration",
		metric.WithDescription("Latency of report generation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AssessmentDuration, err = m.Float64Histogram("vetscribe.assessment.duration",
		metric.WithDescription("Latency of live-assessment pulse calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("vetscribe.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ThrottleEvents, err = m.Int64Counter("vetscribe.analysis.throttled",
		metric.WithDescription("Total analysis calls rejected by endpoint rate limiting."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsCommitted, err = m.Int64Counter("vetscribe.transcript.segments",
		metric.WithDescription("Total transcript segments committed."),
	); err != nil {
		return nil, err
	}
	if met.RecordingsActive, err = m.Int64UpDownCounter("vetscribe.recordings.active",
		metric.WithDescription("Number of recordings currently running."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vetscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// RecordAnalysis records one report-generation attempt with its outcome.
func (m *Metrics) RecordAnalysis(ctx context.Context, d time.Duration, status string) {
	m.AnalysisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordAssessment records one live-assessment pulse.
func (m *Metrics) RecordAssessment(ctx context.Context, d time.Duration) {
	m.AssessmentDuration.Record(ctx, d.Seconds())
}

// RecordThrottle records an endpoint rate-limit rejection.
func (m *Metrics) RecordThrottle(ctx context.Context) {
	m.ThrottleEvents.Add(ctx, 1)
}

// RecordProviderRequest records a provider API call with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// AddSegments records n newly committed transcript segments.
func (m *Metrics) AddSegments(ctx context.Context, n int64) {
	m.SegmentsCommitted.Add(ctx, n)
}

// RecordingStarted marks a recording as running.
func (m *Metrics) RecordingStarted(ctx context.Context) {
	m.RecordingsActive.Add(ctx, 1)
}

// RecordingStopped marks a recording as finished.
func (m *Metrics) RecordingStopped(ctx context.Context) {
	m.RecordingsActive.Add(ctx, -1)
}
