// Package observe provides application-wide observability primitives for
// NeuroBridge: OpenTelemetry metrics, tracing helpers, structured logging,
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all NeuroBridge metrics.
const meterName = "github.com/neurobridge/neurobridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CaptureWindowDuration tracks how long a recording session ran from
	// start to delivery (or silent timeout).
	CaptureWindowDuration metric.Float64Histogram

	// BackendRequestDuration tracks backend API call latency. Use with
	// attribute: attribute.String("operation", ...)
	BackendRequestDuration metric.Float64Histogram

	// SpeechDuration tracks how long a spoken utterance played.
	SpeechDuration metric.Float64Histogram

	// --- Counters ---

	// FramesCaptured counts frames collected by recording sessions.
	FramesCaptured metric.Int64Counter

	// BackendRequests counts backend API calls. Use with attributes:
	//   attribute.String("operation", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// Utterances counts recognized final utterances by routed command.
	// Use with attribute: attribute.String("command", ...)
	Utterances metric.Int64Counter

	// SpeechRequests counts serializer speak calls. Use with attribute:
	//   attribute.String("outcome", ...) — spoken, preempted, dropped, failed
	SpeechRequests metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts recognition engine errors.
	EngineErrors metric.Int64Counter

	// BackendErrors counts backend failures by operation.
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks recording sessions currently collecting frames.
	// Never exceeds 1; exported as a gauge so leaks are visible.
	ActiveRecordings metric.Int64UpDownCounter

	// ListeningSessions tracks live recognition sessions.
	ListeningSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// capture windows and backend round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CaptureWindowDuration, err = m.Float64Histogram("neurobridge.capture.window.duration",
		metric.WithDescription("Duration of a frame recording session from start to delivery."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendRequestDuration, err = m.Float64Histogram("neurobridge.backend.request.duration",
		metric.WithDescription("Latency of backend API calls by operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("neurobridge.speech.duration",
		metric.WithDescription("Playback duration of spoken utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesCaptured, err = m.Int64Counter("neurobridge.capture.frames",
		metric.WithDescription("Total frames collected by recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.BackendRequests, err = m.Int64Counter("neurobridge.backend.requests",
		metric.WithDescription("Total backend API requests by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("neurobridge.voice.utterances",
		metric.WithDescription("Total recognized final utterances by routed command."),
	); err != nil {
		return nil, err
	}
	if met.SpeechRequests, err = m.Int64Counter("neurobridge.speech.requests",
		metric.WithDescription("Total serializer speak calls by outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("neurobridge.voice.engine_errors",
		metric.WithDescription("Total recognition engine errors."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("neurobridge.backend.errors",
		metric.WithDescription("Total backend failures by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("neurobridge.capture.active",
		metric.WithDescription("Number of recording sessions currently collecting frames."),
	); err != nil {
		return nil, err
	}
	if met.ListeningSessions, err = m.Int64UpDownCounter("neurobridge.voice.listening_sessions",
		metric.WithDescription("Number of live recognition sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("neurobridge.http.request.duration",
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

// RecordBackendRequest is a convenience method that records a backend request
// counter increment with the standard attribute set.
func (m *Metrics) RecordBackendRequest(ctx context.Context, operation, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, operation string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

// RecordUtterance is a convenience method that records a routed utterance
// counter increment.
func (m *Metrics) RecordUtterance(ctx context.Context, command string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("command", command)),
	)
}

// RecordSpeechRequest is a convenience method that records a serializer speak
// call with its outcome.
func (m *Metrics) RecordSpeechRequest(ctx context.Context, outcome string) {
	m.SpeechRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
