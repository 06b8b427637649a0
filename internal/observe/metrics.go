// Package observe provides application-wide observability primitives for
// Vaani: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Vaani metrics.
const meterName = "github.com/vaani-ai/vaani"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture path counters ---

	// FramesProcessed counts audio frames delivered to the active
	// segmentation strategy.
	FramesProcessed metric.Int64Counter

	// OverflowDrops counts frames dropped because the capture device
	// reported a buffer overflow.
	OverflowDrops metric.Int64Counter

	// ClassifierFailures counts frames where the speech detector failed and
	// the energy fallback was used instead.
	ClassifierFailures metric.Int64Counter

	// --- Segmentation counters ---

	// Utterances counts completed utterances handed to the dispatcher.
	// Use with attribute.String("mode", "vad"|"window").
	Utterances metric.Int64Counter

	// NoiseBursts counts speech regions discarded for ending before the
	// minimum speech duration.
	NoiseBursts metric.Int64Counter

	// --- Transcription ---

	// TranscriptionDuration tracks transcription latency per utterance.
	TranscriptionDuration metric.Float64Histogram

	// TranscriptionFailures counts utterances whose transcription raised an
	// error or panicked.
	TranscriptionFailures metric.Int64Counter

	// EmptyResults counts successful transcriptions discarded for being
	// shorter than the minimum result text length.
	EmptyResults metric.Int64Counter

	// ActiveTranscriptions tracks the number of in-flight transcription
	// workers. Unbounded by design; watch this gauge under sustained speech.
	ActiveTranscriptions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for transcription latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("vaani.frames.processed",
		metric.WithDescription("Total audio frames delivered to segmentation."),
	); err != nil {
		return nil, err
	}
	if met.OverflowDrops, err = m.Int64Counter("vaani.frames.overflow_drops",
		metric.WithDescription("Total frames dropped due to capture buffer overflow."),
	); err != nil {
		return nil, err
	}
	if met.ClassifierFailures, err = m.Int64Counter("vaani.classifier.failures",
		metric.WithDescription("Total detector failures degraded to the energy heuristic."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("vaani.utterances",
		metric.WithDescription("Total completed utterances handed to transcription."),
	); err != nil {
		return nil, err
	}
	if met.NoiseBursts, err = m.Int64Counter("vaani.noise_bursts",
		metric.WithDescription("Total speech regions discarded as too short."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("vaani.transcription.duration",
		metric.WithDescription("Latency of utterance transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionFailures, err = m.Int64Counter("vaani.transcription.failures",
		metric.WithDescription("Total transcription errors and panics."),
	); err != nil {
		return nil, err
	}
	if met.EmptyResults, err = m.Int64Counter("vaani.transcription.empty_results",
		metric.WithDescription("Total transcripts discarded for being below the minimum text length."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTranscriptions, err = m.Int64UpDownCounter("vaani.transcription.active",
		metric.WithDescription("Number of in-flight transcription workers."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vaani.http.request.duration",
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

// RecordUtterance is a convenience method that records a completed utterance
// with its segmentation mode ("vad" or "window").
func (m *Metrics) RecordUtterance(ctx context.Context, mode string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordTranscription records a finished transcription attempt: its latency
// and, when failed is true, a failure increment.
func (m *Metrics) RecordTranscription(ctx context.Context, latency time.Duration, failed bool) {
	m.TranscriptionDuration.Record(ctx, latency.Seconds())
	if failed {
		m.TranscriptionFailures.Add(ctx, 1)
	}
}
