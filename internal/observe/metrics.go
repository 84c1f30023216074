// Package observe provides application-wide observability primitives for
// Sparkie: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Sparkie metrics.
const meterName = "github.com/MrWong99/sparkie"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks the full utterance → reply latency of a turn.
	TurnDuration metric.Float64Histogram

	// InferenceDuration tracks per-frame model latency. Use with attribute:
	//   attribute.String("model", "vad"|"keyword")
	InferenceDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// FramesProcessed counts frames that went through the front-end.
	FramesProcessed metric.Int64Counter

	// VADEvents counts front-end events. Use with attribute:
	//   attribute.String("type", "speech_start"|"speech_end"|"misfire")
	VADEvents metric.Int64Counter

	// Utterances counts delivered utterances. Use with attribute:
	//   attribute.String("cause", "vad"|"keyword"|"manual"|"pause")
	Utterances metric.Int64Counter

	// KeywordOutcomes counts stop-word debounce verdicts. Use with attribute:
	//   attribute.String("outcome", "armed"|"aborted"|"confirmed"|"expired")
	KeywordOutcomes metric.Int64Counter

	// Turns counts conversation turns. Use with attribute:
	//   attribute.String("status", ...)
	Turns metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// InferenceErrors counts failed per-frame model calls. Use with attribute:
	//   attribute.String("model", "vad"|"keyword")
	InferenceErrors metric.Int64Counter

	// FramesDropped counts frames that never reached the state machines. Use
	// with attribute:
	//   attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// SuppressedTerminations counts utterance endings that lost the race to
	// an earlier ending of the same utterance.
	SuppressedTerminations metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// QueuedFrames tracks frames waiting between capture and processing
	// across all sessions.
	QueuedFrames metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// inferenceBuckets covers per-frame model calls, which must finish well
// within one 96 ms frame.
var inferenceBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("sparkie.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("sparkie.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("sparkie.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("sparkie.turn.duration",
		metric.WithDescription("End-to-end latency from finished utterance to synthesised reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("sparkie.frontend.inference.duration",
		metric.WithDescription("Latency of per-frame VAD and keyword model calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("sparkie.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.FramesProcessed, err = m.Int64Counter("sparkie.frontend.frames",
		metric.WithDescription("Total frames processed by the front-end."),
	); err != nil {
		return nil, err
	}
	if met.VADEvents, err = m.Int64Counter("sparkie.frontend.vad_events",
		metric.WithDescription("Total front-end events by type."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("sparkie.frontend.utterances",
		metric.WithDescription("Total delivered utterances by end cause."),
	); err != nil {
		return nil, err
	}
	if met.KeywordOutcomes, err = m.Int64Counter("sparkie.frontend.keyword_outcomes",
		metric.WithDescription("Total stop-word debounce verdicts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("sparkie.conversation.turns",
		metric.WithDescription("Total conversation turns by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("sparkie.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.InferenceErrors, err = m.Int64Counter("sparkie.frontend.inference_errors",
		metric.WithDescription("Total failed per-frame model calls by model."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("sparkie.frontend.frames_dropped",
		metric.WithDescription("Total frames dropped before processing by reason."),
	); err != nil {
		return nil, err
	}
	if met.SuppressedTerminations, err = m.Int64Counter("sparkie.frontend.suppressed_terminations",
		metric.WithDescription("Total utterance endings suppressed because the utterance had already ended."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("sparkie.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.QueuedFrames, err = m.Int64UpDownCounter("sparkie.frontend.queued_frames",
		metric.WithDescription("Number of frames waiting for processing across all sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sparkie.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordInference records the latency of one per-frame model call and, when
// failed is true, an inference error.
func (m *Metrics) RecordInference(ctx context.Context, model string, seconds float64, failed bool) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.InferenceDuration.Record(ctx, seconds, attrs)
	if failed {
		m.InferenceErrors.Add(ctx, 1, attrs)
	}
}

// RecordFrameDropped records a frame that was discarded before processing.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordVADEvent records one front-end event by type.
func (m *Metrics) RecordVADEvent(ctx context.Context, eventType string) {
	m.VADEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// RecordUtterance records one delivered utterance by end cause.
func (m *Metrics) RecordUtterance(ctx context.Context, cause string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// RecordKeywordOutcome records one stop-word debounce verdict.
func (m *Metrics) RecordKeywordOutcome(ctx context.Context, outcome string) {
	m.KeywordOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTurn records one conversation turn by status.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
