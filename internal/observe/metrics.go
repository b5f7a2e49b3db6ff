// Package observe provides application-wide observability primitives for
// Breeze ASR: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Breeze metrics.
const meterName = "github.com/mtkresearch/breeze-asr-go"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognitionDuration tracks per-segment backend transcription latency.
	RecognitionDuration metric.Float64Histogram

	// VADDuration tracks per-frame voice-activity classification latency.
	VADDuration metric.Float64Histogram

	// BatchDuration tracks end-to-end batch file transcription latency.
	BatchDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsFinalized counts finalized utterance segments. Use with attribute:
	//   attribute.String("reason", ...): silence-timeout, max-length, stream-end
	SegmentsFinalized metric.Int64Counter

	// AudioSeconds accumulates seconds of audio ingested across all sessions.
	AudioSeconds metric.Float64Counter

	// SilenceNotices counts prolonged-silence notices emitted to clients.
	SilenceNotices metric.Int64Counter

	// --- Error counters ---

	// RecognitionErrors counts failed backend transcriptions. Use with attribute:
	//   attribute.String("backend", ...)
	RecognitionErrors metric.Int64Counter

	// BackpressureRejections counts Feed calls rejected because the session
	// ingestion queue was full.
	BackpressureRejections metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live streaming sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for speech-pipeline latencies.
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
	if met.RecognitionDuration, err = m.Float64Histogram("breeze.recognition.duration",
		metric.WithDescription("Latency of per-segment backend transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VADDuration, err = m.Float64Histogram("breeze.vad.duration",
		metric.WithDescription("Latency of per-frame voice-activity classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("breeze.batch.duration",
		metric.WithDescription("End-to-end batch file transcription latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsFinalized, err = m.Int64Counter("breeze.segments.finalized",
		metric.WithDescription("Total finalized utterance segments by reason."),
	); err != nil {
		return nil, err
	}
	if met.AudioSeconds, err = m.Float64Counter("breeze.audio.ingested",
		metric.WithDescription("Seconds of audio ingested across all sessions."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.SilenceNotices, err = m.Int64Counter("breeze.silence.notices",
		metric.WithDescription("Total prolonged-silence notices emitted."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.RecognitionErrors, err = m.Int64Counter("breeze.recognition.errors",
		metric.WithDescription("Total failed backend transcriptions by backend."),
	); err != nil {
		return nil, err
	}
	if met.BackpressureRejections, err = m.Int64Counter("breeze.backpressure.rejections",
		metric.WithDescription("Total Feed calls rejected due to a full ingestion queue."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("breeze.active_sessions",
		metric.WithDescription("Number of live streaming sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("breeze.http.request.duration",
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

// RecordSegment records a finalized segment together with its audio length.
func (m *Metrics) RecordSegment(ctx context.Context, reason string, audio time.Duration) {
	m.SegmentsFinalized.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
	m.AudioSeconds.Add(ctx, audio.Seconds())
}

// RecordRecognition records one backend transcription attempt: its latency
// and, when err is non-nil, an error counter increment.
func (m *Metrics) RecordRecognition(ctx context.Context, backend string, d time.Duration, err error) {
	m.RecognitionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("backend", backend)),
	)
	if err != nil {
		m.RecognitionErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("backend", backend)),
		)
	}
}
