// Package observe provides application-wide observability primitives for
// hark: OpenTelemetry metrics with a Prometheus exporter bridge, plus HTTP
// middleware that records request latency.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hark metrics.
const meterName = "github.com/harkd/hark"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscribeDuration tracks transcription gateway latency. Use with
	// attributes: attribute.String("gateway", ...), attribute.String("status", ...)
	TranscribeDuration metric.Float64Histogram

	// ExecutionDuration tracks command execution latency. Use with
	// attribute: attribute.String("status", ...)
	ExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// FramesDropped counts audio frames discarded because the queue was
	// full.
	FramesDropped metric.Int64Counter

	// Activations counts wake-word activations. Use with attribute:
	//   attribute.String("keyword", ...)
	Activations metric.Int64Counter

	// SessionsEnded counts completed sessions. Use with attribute:
	//   attribute.String("cause", ...) — silence, stop_phrase, external, shutdown
	SessionsEnded metric.Int64Counter

	// CommandMatches counts matched trigger phrases.
	CommandMatches metric.Int64Counter

	// CommandDecisions counts authorization outcomes. Use with attributes:
	//   attribute.String("decision", ...), attribute.String("safety", ...)
	CommandDecisions metric.Int64Counter

	// TranscriptChunks counts finalized transcript chunks emitted to sinks.
	TranscriptChunks metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live listening sessions
	// (0 or 1 by design).
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
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
	if met.TranscribeDuration, err = m.Float64Histogram("hark.transcribe.duration",
		metric.WithDescription("Latency of transcription gateway calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExecutionDuration, err = m.Float64Histogram("hark.execution.duration",
		metric.WithDescription("Latency of voice-command execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesDropped, err = m.Int64Counter("hark.audio.frames_dropped",
		metric.WithDescription("Audio frames dropped because the frame queue was full."),
	); err != nil {
		return nil, err
	}
	if met.Activations, err = m.Int64Counter("hark.wake.activations",
		metric.WithDescription("Wake-word activations by keyword."),
	); err != nil {
		return nil, err
	}
	if met.SessionsEnded, err = m.Int64Counter("hark.sessions.ended",
		metric.WithDescription("Completed sessions by end cause."),
	); err != nil {
		return nil, err
	}
	if met.CommandMatches, err = m.Int64Counter("hark.commands.matches",
		metric.WithDescription("Trigger phrases matched in finalized transcripts."),
	); err != nil {
		return nil, err
	}
	if met.CommandDecisions, err = m.Int64Counter("hark.commands.decisions",
		metric.WithDescription("Authorization outcomes by decision and safety class."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptChunks, err = m.Int64Counter("hark.transcripts.chunks",
		metric.WithDescription("Finalized transcript chunks emitted to output sinks."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("hark.active_sessions",
		metric.WithDescription("Number of live listening sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hark.http.request.duration",
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

// RecordTranscription records one gateway call with its latency and status.
func (m *Metrics) RecordTranscription(ctx context.Context, gateway, status string, d time.Duration) {
	m.TranscribeDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("gateway", gateway),
			attribute.String("status", status),
		),
	)
}

// RecordDecision records one authorization outcome.
func (m *Metrics) RecordDecision(ctx context.Context, approved bool, safety string) {
	decision := "denied"
	if approved {
		decision = "approved"
	}
	m.CommandDecisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("decision", decision),
			attribute.String("safety", safety),
		),
	)
}

// RecordActivation records one wake-word activation.
func (m *Metrics) RecordActivation(ctx context.Context, keyword string) {
	m.Activations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("keyword", keyword)),
	)
}

// RecordExecution records one command execution with its latency and status.
func (m *Metrics) RecordExecution(ctx context.Context, status string, d time.Duration) {
	m.ExecutionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSessionEnd records one completed session with its end cause.
func (m *Metrics) RecordSessionEnd(ctx context.Context, cause string) {
	m.SessionsEnded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("cause", cause)),
	)
}
