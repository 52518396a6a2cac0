// Package session runs one record, transcribe and post-process cycle.
//
// [Session.Run] opens the capture device, feeds an [audio.FrameBuffer],
// records one utterance through the speech gate, hands the samples to the
// transcription dispatcher and applies the post-processing options. Progress
// is published on a [StatusQueue]. Every failure ends the session with an
// error status and a [*Fault]; nothing is retried here.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxwriter/internal/observe"
	"github.com/MrWong99/voxwriter/internal/recorder"
	"github.com/MrWong99/voxwriter/internal/transcribe"
	"github.com/MrWong99/voxwriter/internal/transcript"
	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

// Dispatcher turns a finished recording into text. [*transcribe.Dispatcher]
// implements it. Errors wrapping [transcribe.ErrProvider] are dispatch faults;
// any other error is a filesystem fault.
type Dispatcher interface {
	Dispatch(ctx context.Context, samples []int16, sampleRate int) (string, error)
}

// Config parameterises a session.
type Config struct {
	// SoundDevice selects the input. Empty uses the system default.
	SoundDevice string

	// Recorder holds the frame, silence and minimum-duration settings.
	Recorder recorder.Config

	// SpeechThreshold configures the VAD session. The aggressiveness is
	// always recorder.GateAggressiveness.
	SpeechThreshold float64

	// BufferMs sizes the initial frame buffer capacity.
	BufferMs int

	// PostProcessing is applied to non-empty transcripts.
	PostProcessing transcript.Options

	// Verbose logs progress at info level instead of debug.
	Verbose bool
}

// Outcome is the result of a successful session. Empty Text means no speech
// was recorded or the backend returned no text.
type Outcome struct {
	Text   string
	Reason recorder.Reason

	// Recording describes the captured utterance.
	Recording recorder.Result
}

// Option configures a Session.
type Option func(*Session)

// WithStatus publishes progress on q.
func WithStatus(q *StatusQueue) Option {
	return func(s *Session) { s.status = q }
}

// WithCancelProbe sets the probe that ends the recording early.
func WithCancelProbe(p recorder.CancelProbe) Option {
	return func(s *Session) { s.cancel = p }
}

// WithCompanion sets the companion producer stopped on a silence stop.
func WithCompanion(c recorder.Stopper) Option {
	return func(s *Session) { s.companion = c }
}

// WithMetrics records session, recorder and capture metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session owns the frame buffer and recording of one cycle. Create a new
// Session for every cycle.
type Session struct {
	cfg        Config
	device     audio.Device
	engine     vad.Engine
	dispatcher Dispatcher

	status    *StatusQueue
	cancel    recorder.CancelProbe
	companion recorder.Stopper
	metrics   *observe.Metrics
}

// New returns a Session. All collaborators are required.
func New(cfg Config, device audio.Device, engine vad.Engine, dispatcher Dispatcher, opts ...Option) (*Session, error) {
	if device == nil || engine == nil || dispatcher == nil {
		return nil, errors.New("session: device, vad engine and dispatcher are required")
	}
	s := &Session{cfg: cfg, device: device, engine: engine, dispatcher: dispatcher}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// progress logs a per-session progress line at info level when verbose.
func (s *Session) progress(ctx context.Context, msg string, args ...any) {
	level := slog.LevelDebug
	if s.cfg.Verbose {
		level = slog.LevelInfo
	}
	observe.Logger(ctx).Log(ctx, level, msg, args...)
}

// Run records one utterance and transcribes it. It returns a [*Fault] when the
// session failed and ctx.Err() when ctx ended before the recording finished.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "session.run")
	defer span.End()
	s.metrics.SessionStarted(ctx)
	defer s.metrics.SessionEnded(ctx)

	rc := s.cfg.Recorder
	frameSize := audio.FrameSamples(rc.SampleRate, rc.FrameMs)

	buf, err := audio.NewFrameBuffer(rc.SampleRate, frameSize, audio.FrameSamples(rc.SampleRate, s.cfg.BufferMs))
	if err != nil {
		return Outcome{}, s.fail(ctx, span, FaultCapture, err)
	}

	gate, err := recorder.NewGate(s.engine, vad.Config{
		SampleRate:      rc.SampleRate,
		FrameSizeMs:     rc.FrameMs,
		SpeechThreshold: s.cfg.SpeechThreshold,
	})
	if err != nil {
		return Outcome{}, s.fail(ctx, span, FaultClassification, err)
	}
	defer gate.Close()

	rec, err := recorder.New(rc, buf, gate,
		recorder.WithCancelProbe(s.cancel),
		recorder.WithCompanion(s.companion),
		recorder.WithMetrics(s.metrics),
	)
	if err != nil {
		return Outcome{}, s.fail(ctx, span, FaultClassification, err)
	}

	stream, err := s.device.Open(audio.CaptureConfig{
		Device:     s.cfg.SoundDevice,
		SampleRate: rc.SampleRate,
		Channels:   1,
		BlockSize:  frameSize,
	}, buf.Push)
	if err != nil {
		return Outcome{}, s.fail(ctx, span, FaultCapture, fmt.Errorf("open capture device: %w", err))
	}
	defer stream.Close()

	s.progress(ctx, "recording with sound device", "device", stream.DeviceName())
	s.status.Push(Status{State: StateRecording, Message: "Recording..."})
	if err := stream.Start(); err != nil {
		return Outcome{}, s.fail(ctx, span, FaultCapture, fmt.Errorf("start capture: %w", err))
	}

	res, err := rec.Run(ctx)
	if closeErr := stream.Close(); closeErr != nil {
		observe.Logger(ctx).Warn("close capture stream", "err", closeErr)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			s.status.Push(Status{State: StateIdle})
			s.metrics.RecordSession(ctx, "aborted")
			return Outcome{}, err
		}
		return Outcome{}, s.fail(ctx, span, FaultClassification, err)
	}

	out := Outcome{Reason: res.Reason, Recording: res}
	span.SetAttributes(
		attribute.String("recording.reason", res.Reason.String()),
		attribute.Float64("recording.seconds", res.Duration().Seconds()),
	)
	s.progress(ctx, "recording finished",
		"reason", res.Reason,
		"samples", len(res.Samples),
		"duration", res.Duration(),
		"suppressed_stops", res.SuppressedStops,
	)

	if len(res.Samples) == 0 {
		s.status.Push(Status{State: StateCancel})
		s.metrics.RecordSession(ctx, "cancelled")
		return out, nil
	}

	s.status.Push(Status{State: StateTranscribing, Message: "Transcribing..."})
	s.progress(ctx, "transcribing audio file")
	text, err := s.dispatcher.Dispatch(ctx, res.Samples, res.SampleRate)
	if err != nil {
		kind := FaultFilesystem
		if errors.Is(err, transcribe.ErrProvider) {
			kind = FaultDispatch
		}
		return Outcome{}, s.fail(ctx, span, kind, err)
	}
	s.progress(ctx, "transcription", "text", text)
	s.status.Push(Status{State: StateIdle})

	if text == "" {
		s.metrics.RecordSession(ctx, "empty")
		return out, nil
	}
	out.Text = transcript.Process(text, s.cfg.PostProcessing)
	s.metrics.RecordSession(ctx, "ok")
	return out, nil
}

// fail logs err, publishes the error status and returns it as a Fault.
func (s *Session) fail(ctx context.Context, span trace.Span, kind FaultKind, err error) error {
	f := &Fault{Kind: kind, Err: err}
	observe.Logger(ctx).Error("session failed", "fault", kind.String(), "err", err)
	observe.FailSpan(span, f)
	s.status.Push(Status{State: StateError, Message: "Error"})
	s.metrics.RecordSession(ctx, "error")
	return f
}
