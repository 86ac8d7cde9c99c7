// Package observe provides the OpenTelemetry metric instruments for the
// capture pipeline, the playback service and the HTTP surface, plus the
// provider setup that exposes them for Prometheus scraping.
//
// Tests should use [NewMetrics] with their own [metric.MeterProvider] to
// avoid sharing instruments across tests.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all echocap metrics.
const meterName = "github.com/yok-tottii/echocap"

// Metrics holds every metric instrument. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// SegmentsFinalized counts utterances persisted to the session.
	SegmentsFinalized metric.Int64Counter

	// SegmentsDiscarded counts segments dropped because trimming left
	// nothing.
	SegmentsDiscarded metric.Int64Counter

	// TranscriptionErrors counts failed transcriptions. Use with attribute:
	//   attribute.String("backend", ...)
	TranscriptionErrors metric.Int64Counter

	// Playbacks counts playback requests. Use with attributes:
	//   attribute.String("list", ...), attribute.String("status", ...)
	Playbacks metric.Int64Counter

	// FrameErrors counts failed frame reads.
	FrameErrors metric.Int64Counter

	// TranscriptionDuration tracks speech-to-text latency.
	TranscriptionDuration metric.Float64Histogram

	// FinalizeDuration tracks the time the capture loop spends finalizing
	// one segment (trim, export, transcribe, persist).
	FinalizeDuration metric.Float64Histogram

	// UtteranceDuration tracks the length of persisted audio.
	UtteranceDuration metric.Float64Histogram

	// HTTPRequestDuration tracks request handling time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates all instruments on mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SegmentsFinalized, err = m.Int64Counter("echocap.segments.finalized",
		metric.WithDescription("Utterances persisted to the session."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDiscarded, err = m.Int64Counter("echocap.segments.discarded",
		metric.WithDescription("Segments discarded because they were silent after trimming."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionErrors, err = m.Int64Counter("echocap.transcription.errors",
		metric.WithDescription("Failed transcriptions by backend."),
	); err != nil {
		return nil, err
	}
	if met.Playbacks, err = m.Int64Counter("echocap.playbacks",
		metric.WithDescription("Playback requests by list and status."),
	); err != nil {
		return nil, err
	}
	if met.FrameErrors, err = m.Int64Counter("echocap.capture.frame_errors",
		metric.WithDescription("Failed capture frame reads."),
	); err != nil {
		return nil, err
	}

	if met.TranscriptionDuration, err = m.Float64Histogram("echocap.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("echocap.finalize.duration",
		metric.WithDescription("Time the capture loop spends finalizing a segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("echocap.utterance.duration",
		metric.WithDescription("Length of persisted utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("echocap.http.request.duration",
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

// DefaultMetrics returns the package-level instance built on
// [otel.GetMeterProvider]. Panics if instrument creation fails.
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

// RecordTranscriptionError increments the error counter for backend
func (m *Metrics) RecordTranscriptionError(ctx context.Context, backend string) {
	m.TranscriptionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// RecordPlayback increments the playback counter
func (m *Metrics) RecordPlayback(ctx context.Context, list, status string) {
	m.Playbacks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("list", list),
			attribute.String("status", status),
		),
	)
}
