// Package observe provides the observability primitives of voxwriter:
// OpenTelemetry metrics and tracing, trace-aware structured logging, and the
// middleware of the health and metrics server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Init] binds
// them to a Prometheus registry that the server exposes on /metrics. Tests
// use [NewMetrics] with a provider backed by a manual reader instead.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxwriter metrics.
const meterName = "github.com/MrWong99/voxwriter"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
//
// A nil *Metrics is valid: every Record method is a no-op on it.
type Metrics struct {
	// --- Latency histograms ---

	// RecordingDuration tracks the length of finalized recordings.
	RecordingDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// --- Counters ---

	// Sessions counts finished sessions. Use with attribute:
	//   attribute.String("outcome", "ok"|"empty"|"cancelled"|"error"|"aborted")
	Sessions metric.Int64Counter

	// VADFrames counts classified frames. Use with attribute:
	//   attribute.String("class", "speech"|"silence")
	VADFrames metric.Int64Counter

	// CaptureOverruns counts input overflows reported by the capture device.
	CaptureOverruns metric.Int64Counter

	// StopsSuppressed counts stop conditions ignored because the recording
	// was below the minimum duration. Use with attribute:
	//   attribute.String("reason", "silence"|"cancelled")
	StopsSuppressed metric.Int64Counter

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of running recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks request latency of the health and metrics
	// server. Use [Metrics.RecordHTTPRequest].
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// transcription latency.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// recordingBuckets defines histogram bucket boundaries (in seconds) for
// utterance lengths.
var recordingBuckets = []float64{
	1, 2, 3, 5, 8, 13, 21, 34, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecordingDuration, err = m.Float64Histogram("voxwriter.recording.duration",
		metric.WithDescription("Length of finalized recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("voxwriter.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Sessions, err = m.Int64Counter("voxwriter.sessions",
		metric.WithDescription("Total finished sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.VADFrames, err = m.Int64Counter("voxwriter.vad.frames",
		metric.WithDescription("Total classified frames by class."),
	); err != nil {
		return nil, err
	}
	if met.CaptureOverruns, err = m.Int64Counter("voxwriter.capture.overruns",
		metric.WithDescription("Total input overflows reported by the capture device."),
	); err != nil {
		return nil, err
	}
	if met.StopsSuppressed, err = m.Int64Counter("voxwriter.stops.suppressed",
		metric.WithDescription("Stop conditions ignored below the minimum recording duration."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("voxwriter.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voxwriter.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxwriter.active_sessions",
		metric.WithDescription("Number of running recording sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxwriter.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	if m == nil {
		return
	}
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSTT records one transcription latency sample in seconds.
func (m *Metrics) RecordSTT(ctx context.Context, provider string, seconds float64) {
	if m == nil {
		return
	}
	m.STTDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordRecording records the length of a finalized recording in seconds.
func (m *Metrics) RecordRecording(ctx context.Context, reason string, seconds float64) {
	if m == nil {
		return
	}
	m.RecordingDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordSession records a finished session by outcome.
func (m *Metrics) RecordSession(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordVADFrame records one classified frame.
func (m *Metrics) RecordVADFrame(ctx context.Context, speech bool) {
	if m == nil {
		return
	}
	class := "silence"
	if speech {
		class = "speech"
	}
	m.VADFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("class", class)))
}

// RecordOverruns records n newly observed capture overruns.
func (m *Metrics) RecordOverruns(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CaptureOverruns.Add(ctx, int64(n))
}

// RecordSuppressedStop records a stop condition ignored because the
// recording was too short.
func (m *Metrics) RecordSuppressedStop(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.StopsSuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// SessionStarted increments the active session gauge. Call SessionEnded when
// the session finishes.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded decrements the active session gauge.
func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

// RecordHTTPRequest records one served request. route is one of the
// server's routes, never the raw request path.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("route", route),
			attribute.Int("status", status),
		),
	)
}
