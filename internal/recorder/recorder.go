// Package recorder implements the voice-activity-gated utterance recorder.
//
// A [Recorder] drains fixed-size frames from an [audio.FrameBuffer], labels
// each one through a speech [Classifier], and decides when the utterance is
// over: after a run of non-speech frames following speech, or when the
// caller's cancel probe fires. Recordings shorter than the configured minimum
// are never finalized on a silence stop; whether they are finalized on cancel
// depends on the [CancelPolicy].
//
// The recorder itself is single-threaded. Only the frame buffer is shared
// with the capture callback.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/voxwriter/internal/observe"
	"github.com/MrWong99/voxwriter/pkg/audio"
)

// State is a step of the per-frame cycle.
type State int

const (
	StateWaitingForFrame State = iota
	StateClassifying
	StateSpeechAccumulating
	StateSilenceCounting
	StateFinalizing
	StateCompleted
	StateCancelled
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateWaitingForFrame:
		return "waiting_for_frame"
	case StateClassifying:
		return "classifying"
	case StateSpeechAccumulating:
		return "speech_accumulating"
	case StateSilenceCounting:
		return "silence_counting"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Reason tells why a recording was finalized.
type Reason int

const (
	// ReasonSilence means the silence run reached the threshold.
	ReasonSilence Reason = iota + 1
	// ReasonCancelled means the cancel probe fired. It takes priority over
	// ReasonSilence when both hold on the same frame.
	ReasonCancelled
)

// String returns "silence", "cancelled", or "unknown".
func (r Reason) String() string {
	switch r {
	case ReasonSilence:
		return "silence"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CancelPolicy decides how a cancel request below the minimum duration is
// handled.
type CancelPolicy int

const (
	// CancelDebounce ignores cancel requests until the recording reaches the
	// minimum duration.
	CancelDebounce CancelPolicy = iota
	// CancelImmediate finalizes at the next frame boundary regardless of the
	// recording length.
	CancelImmediate
)

// ParseCancelPolicy maps "debounce" and "immediate" to a CancelPolicy.
func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch s {
	case "", "debounce":
		return CancelDebounce, nil
	case "immediate":
		return CancelImmediate, nil
	default:
		return 0, fmt.Errorf("recorder: unknown cancel policy %q", s)
	}
}

// String returns "debounce" or "immediate".
func (p CancelPolicy) String() string {
	if p == CancelImmediate {
		return "immediate"
	}
	return "debounce"
}

// DefaultMinDuration is the shortest recording that may be finalized.
const DefaultMinDuration = time.Second

// DefaultPollInterval bounds how long Run waits for the capture device before
// checking the cancel probe again.
const DefaultPollInterval = 5 * time.Millisecond

// Config parameterises a Recorder.
type Config struct {
	SampleRate int
	FrameMs    int
	SilenceMs  int
	Policy     CancelPolicy

	// MinDuration is the shortest recording that may be finalized on
	// silence or a debounced cancel. Zero selects DefaultMinDuration.
	MinDuration time.Duration

	// PollInterval bounds each wait for new samples. Zero selects
	// DefaultPollInterval.
	PollInterval time.Duration
}

// SilenceFrames returns the number of consecutive non-speech frames that end
// an utterance: SilenceMs / FrameMs, rounded up, and at least one.
func (c Config) SilenceFrames() int {
	if c.FrameMs <= 0 {
		return 1
	}
	return max(1, (c.SilenceMs+c.FrameMs-1)/c.FrameMs)
}

// MinSamples returns the minimum recording length in samples.
func (c Config) MinSamples() int {
	d := c.MinDuration
	if d == 0 {
		d = DefaultMinDuration
	}
	return int(int64(c.SampleRate) * int64(d) / int64(time.Second))
}

// Validate reports an invalid configuration.
func (c Config) Validate() error {
	var errs []error
	if err := audio.ValidateFrameFormat(c.SampleRate, c.FrameMs); err != nil {
		errs = append(errs, err)
	}
	if c.SilenceMs < c.FrameMs {
		errs = append(errs, fmt.Errorf("silence duration %dms shorter than one frame (%dms)", c.SilenceMs, c.FrameMs))
	}
	if c.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("negative minimum duration %v", c.MinDuration))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("recorder: invalid config: %w", err)
	}
	return nil
}

// CancelProbe reports whether the caller has asked the recording to stop. It
// is polled once per frame cycle and must not block.
type CancelProbe func() bool

// Stopper is a companion producer, such as a hotkey listener, that is told to
// stop when an utterance ends on silence.
type Stopper interface {
	Stop()
}

// Result is a finalized recording.
type Result struct {
	// Samples is the recording. Only speech frames are included.
	Samples []int16

	// SampleRate of Samples in Hz.
	SampleRate int

	// Reason the recording was finalized.
	Reason Reason

	// Frames is the number of frames classified.
	Frames int

	// SpeechFrames is the number of frames classified as speech.
	SpeechFrames int

	// SuppressedStops counts stop conditions ignored because the recording
	// was below the minimum duration.
	SuppressedStops int

	// Overruns is the number of input overflows reported by the capture
	// device during the recording.
	Overruns int
}

// Duration returns the playback length of the recording.
func (r Result) Duration() time.Duration {
	return audio.SamplesDuration(len(r.Samples), r.SampleRate)
}

// Option configures optional Recorder collaborators.
type Option func(*Recorder)

// WithCancelProbe sets the cancel probe. Without one the recording only ends
// on silence.
func WithCancelProbe(p CancelProbe) Option {
	return func(r *Recorder) { r.cancel = p }
}

// WithCompanion sets the companion that is stopped on a silence stop.
func WithCompanion(s Stopper) Option {
	return func(r *Recorder) { r.companion = s }
}

// WithMetrics records frame, overrun, and suppressed-stop counters.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithStateHook is called on every state transition. It runs on the
// recording goroutine and must return quickly.
func WithStateHook(fn func(State)) Option {
	return func(r *Recorder) { r.onState = fn }
}

// Recorder is the utterance state machine. A Recorder records exactly one
// utterance and must not be reused.
type Recorder struct {
	cfg           Config
	silenceFrames int
	minSamples    int

	buf       *audio.FrameBuffer
	gate      Classifier
	cancel    CancelProbe
	companion Stopper
	metrics   *observe.Metrics
	onState   func(State)

	state      State
	recording  []int16
	silenceRun int
	overruns   int
	result     Result
}

// New returns a Recorder that consumes buf through gate.
func New(cfg Config, buf *audio.FrameBuffer, gate Classifier, opts ...Option) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if buf == nil || gate == nil {
		return nil, errors.New("recorder: frame buffer and classifier are required")
	}
	if want := audio.FrameSamples(cfg.SampleRate, cfg.FrameMs); buf.FrameSize() != want {
		return nil, fmt.Errorf("recorder: frame buffer yields %d samples, want %d", buf.FrameSize(), want)
	}
	r := &Recorder{
		cfg:           cfg,
		silenceFrames: cfg.SilenceFrames(),
		minSamples:    cfg.MinSamples(),
		buf:           buf,
		gate:          gate,
		state:         StateWaitingForFrame,
		result:        Result{SampleRate: cfg.SampleRate},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// State returns the current state.
func (r *Recorder) State() State { return r.state }

// SilenceRun returns the current number of consecutive non-speech frames
// since the last speech frame.
func (r *Recorder) SilenceRun() int { return r.silenceRun }

// Result returns the finalized recording. ok is false until the recorder has
// finalized.
func (r *Recorder) Result() (res Result, ok bool) {
	if r.state != StateCompleted && r.state != StateCancelled {
		return Result{}, false
	}
	return r.result, true
}

// Recorded returns the number of samples recorded so far.
func (r *Recorder) Recorded() int { return len(r.recording) }

func (r *Recorder) setState(s State) {
	r.state = s
	if r.onState != nil {
		r.onState(s)
	}
}

// Run consumes frames until the utterance is finalized or ctx is done. While
// fewer than one frame of samples is buffered it waits for the capture
// device, at most PollInterval at a time, and checks the cancel probe
// between waits; there is no overall timeout.
func (r *Recorder) Run(ctx context.Context) (Result, error) {
	if r.state == StateCompleted || r.state == StateCancelled {
		return Result{}, errors.New("recorder: already finalized")
	}
	poll := r.cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		frame, ok := r.buf.TryTakeFrame()
		if !ok {
			if r.state != StateWaitingForFrame {
				r.setState(StateWaitingForFrame)
			}
			if r.cancelWhileIdle(ctx) {
				return r.result, nil
			}
			if err := r.buf.Wait(ctx, poll); err != nil {
				return Result{}, err
			}
			continue
		}

		r.checkOverruns(ctx)
		done, err := r.Step(ctx, frame)
		if err != nil {
			return Result{}, err
		}
		if done {
			return r.result, nil
		}
	}
}

// Step runs one frame cycle and reports whether the recording was finalized.
// It is exported so that callers with their own frame source can drive the
// state machine directly.
func (r *Recorder) Step(ctx context.Context, frame audio.Frame) (bool, error) {
	if r.state == StateCompleted || r.state == StateCancelled {
		return true, nil
	}

	r.setState(StateClassifying)
	speech, err := r.gate.Classify(frame)
	if err != nil {
		return false, err
	}
	r.result.Frames++
	r.metrics.RecordVADFrame(ctx, speech)

	if speech {
		r.recording = append(r.recording, frame.Samples...)
		r.silenceRun = 0
		r.result.SpeechFrames++
		r.setState(StateSpeechAccumulating)
	} else {
		// Leading silence does not count toward the stop threshold.
		if len(r.recording) > 0 {
			r.silenceRun++
		}
		r.setState(StateSilenceCounting)
	}

	cancelled := r.cancel != nil && r.cancel()
	silent := r.silenceRun >= r.silenceFrames
	if !cancelled && !silent {
		return false, nil
	}

	reason := ReasonSilence
	if cancelled {
		reason = ReasonCancelled
	}
	if len(r.recording) < r.minSamples && !(cancelled && r.cfg.Policy == CancelImmediate) {
		r.result.SuppressedStops++
		r.metrics.RecordSuppressedStop(ctx, reason.String())
		return false, nil
	}

	r.finalize(ctx, reason)
	return true, nil
}

// cancelWhileIdle finalizes on a cancel request raised while no frame is
// ready. The minimum duration still applies under CancelDebounce; the
// suppressed stop is counted by Step once frames arrive again.
func (r *Recorder) cancelWhileIdle(ctx context.Context) bool {
	if r.cancel == nil || !r.cancel() {
		return false
	}
	if len(r.recording) < r.minSamples && r.cfg.Policy != CancelImmediate {
		return false
	}
	r.finalize(ctx, ReasonCancelled)
	return true
}

func (r *Recorder) finalize(ctx context.Context, reason Reason) {
	r.setState(StateFinalizing)
	if reason == ReasonSilence && r.companion != nil {
		r.companion.Stop()
	}

	samples := make([]int16, len(r.recording))
	copy(samples, r.recording)
	r.recording = nil

	r.result.Samples = samples
	r.result.Reason = reason
	r.result.Overruns = r.overruns
	r.metrics.RecordRecording(ctx, reason.String(), r.result.Duration().Seconds())

	if reason == ReasonCancelled {
		r.setState(StateCancelled)
	} else {
		r.setState(StateCompleted)
	}
}

func (r *Recorder) checkOverruns(ctx context.Context) {
	n := r.buf.Overruns()
	if n <= r.overruns {
		return
	}
	observe.Logger(ctx).Warn("capture input overflow; samples were lost before this frame",
		slog.Int("new", n-r.overruns),
		slog.Int("total", n),
	)
	r.metrics.RecordOverruns(ctx, n-r.overruns)
	r.overruns = n
}
