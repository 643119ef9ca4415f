// Package observe provides application-wide observability primitives for
// Agora: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Agora metrics.
const meterName = "github.com/MrWong99/agora"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per gateway ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks text completion latency, measured until the stream
	// is fully drained.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("error_kind", ...)
	ProviderErrors metric.Int64Counter

	// ChatMessages counts persisted chat messages. Use with attribute:
	//   attribute.String("role", ...)
	ChatMessages metric.Int64Counter

	// QuizGenerations counts quiz generation attempts. Use with attributes:
	//   attribute.String("difficulty", ...), attribute.String("status", ...)
	QuizGenerations metric.Int64Counter

	// --- Voice ---

	// ReplyAudioDuration tracks the playback length of synthesised replies.
	ReplyAudioDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks API request processing time by method, route
	// pattern, status and error kind. See [Metrics.RecordHTTPRequest].
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// gateway calls, which range from sub-second transcriptions to long
// streamed completions.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("agora.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("agora.llm.duration",
		metric.WithDescription("Latency of text completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("agora.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReplyAudioDuration, err = m.Float64Histogram("agora.voice.reply_audio.duration",
		metric.WithDescription("Playback length of synthesised voice replies."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("agora.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("agora.provider.errors",
		metric.WithDescription("Total provider errors by provider, kind, and error kind."),
	); err != nil {
		return nil, err
	}
	if met.ChatMessages, err = m.Int64Counter("agora.chat.messages",
		metric.WithDescription("Total persisted chat messages by role."),
	); err != nil {
		return nil, err
	}
	if met.QuizGenerations, err = m.Int64Counter("agora.quiz.generations",
		metric.WithDescription("Total quiz generations by difficulty and status."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("agora.http.request.duration",
		metric.WithDescription("API request latency by method, route, status and error kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind, errorKind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("error_kind", errorKind),
		),
	)
}

// RecordChatMessage records one persisted chat message.
func (m *Metrics) RecordChatMessage(ctx context.Context, role string) {
	m.ChatMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordQuizGeneration records one quiz generation attempt.
func (m *Metrics) RecordQuizGeneration(ctx context.Context, difficulty, status string) {
	m.QuizGenerations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("difficulty", difficulty),
			attribute.String("status", status),
		),
	)
}

// RecordHTTPRequest records one served API request. errorKind is the
// X-Error-Kind value of a failed response; successful requests are recorded
// with error_kind "none".
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, errorKind string, d time.Duration) {
	if errorKind == "" {
		errorKind = "none"
	}
	m.HTTPRequestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("route", route),
			attribute.Int("status", status),
			attribute.String("error_kind", errorKind),
		),
	)
}
