// Package app wires voxwriter's capture, speech gate and transcription
// subsystems into a running application.
//
// The App owns the providers, the transcription dispatcher and the trigger.
// Each call to [App.RunOnce] is one session; [App.Run] repeats sessions until
// its context ends. Configuration changes reported by a config.Watcher are
// queued and applied at the next session boundary.
//
// For testing, inject providers via [WithProviders]. When the option is not
// provided, New builds them from the config through the registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxwriter/internal/config"
	"github.com/MrWong99/voxwriter/internal/health"
	"github.com/MrWong99/voxwriter/internal/observe"
	"github.com/MrWong99/voxwriter/internal/recorder"
	"github.com/MrWong99/voxwriter/internal/session"
	"github.com/MrWong99/voxwriter/internal/transcribe"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

// ErrSessionActive is returned by RunOnce while another session is running.
var ErrSessionActive = errors.New("app: a session is already active")

// DefaultFaultDelay is the pause between a failed session and the next one
// in continuous mode.
const DefaultFaultDelay = time.Second

// App owns all subsystem lifetimes and runs the recording loop.
type App struct {
	reg *config.Registry

	mu         sync.Mutex
	cfg        *config.Config
	pending    *config.Config
	providers  *Providers
	dispatcher *transcribe.Dispatcher

	trigger    *Trigger
	status     *session.StatusQueue
	metrics    *observe.Metrics
	level      *slog.LevelVar
	out        io.Writer
	faultDelay time.Duration

	running  atomic.Bool
	sessions atomic.Uint64

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithProviders injects providers instead of building them from config.
func WithProviders(ps *Providers) Option {
	return func(a *App) { a.providers = ps }
}

// WithMetrics records session, recorder and provider metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets configuration reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithOutput writes every non-empty transcript to w, one per line.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithTrigger replaces the default trigger.
func WithTrigger(t *Trigger) Option {
	return func(a *App) { a.trigger = t }
}

// WithFaultDelay sets the pause after a failed session in [App.Run].
func WithFaultDelay(d time.Duration) Option {
	return func(a *App) { a.faultDelay = d }
}

// New creates an App for cfg. reg builds the providers and rebuilds them
// when a configuration change requires it; it may be nil when providers are
// injected with [WithProviders].
func New(cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		reg:        reg,
		cfg:        cfg,
		status:     session.NewStatusQueue(session.DefaultStatusQueueSize),
		faultDelay: DefaultFaultDelay,
	}
	for _, o := range opts {
		o(a)
	}
	if a.trigger == nil {
		a.trigger = NewTrigger()
	}

	if a.providers == nil {
		if reg == nil {
			return nil, errors.New("app: a registry is required when providers are not injected")
		}
		ps, err := BuildProviders(cfg, reg)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.providers = ps
	}
	a.setConfig(cfg)

	d, err := newDispatcher(cfg, a.providers, transcribe.WithMetrics(a.metrics))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.dispatcher = d

	a.closers = append(a.closers, a.closeLocal)
	return a, nil
}

// Trigger returns the trigger that cancels the running session.
func (a *App) Trigger() *Trigger { return a.trigger }

// Status returns the session status updates.
func (a *App) Status() <-chan session.Status { return a.status.C() }

// State returns the state of the most recent status update.
func (a *App) State() session.State { return a.status.Last() }

// Config returns the configuration in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Transcriber returns the name of the backend recordings are sent to.
func (a *App) Transcriber() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dispatcher.Name()
}

// OnConfigChange queues next for the next session boundary. Its signature
// matches the config.Watcher callback.
func (a *App) OnConfigChange(_, next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = next
	slog.Info("configuration change queued for the next session")
}

// RunOnce records, transcribes and post-processes one utterance. It returns
// a [*session.Fault] when the session failed and the context error when ctx
// ended first.
func (a *App) RunOnce(ctx context.Context) (session.Outcome, error) {
	if !a.running.CompareAndSwap(false, true) {
		return session.Outcome{}, ErrSessionActive
	}
	defer a.running.Store(false)

	ctx = observe.WithAttrs(ctx, slog.Uint64("session", a.sessions.Add(1)))
	a.applyPending(ctx)

	a.mu.Lock()
	cfg, ps, disp := a.cfg, a.providers, a.dispatcher
	a.mu.Unlock()

	sess, err := session.New(sessionConfig(cfg), ps.Capture, ps.VAD, disp,
		session.WithStatus(a.status),
		session.WithCancelProbe(a.trigger.Cancelled),
		session.WithCompanion(a.trigger),
		session.WithMetrics(a.metrics),
	)
	if err != nil {
		return session.Outcome{}, fmt.Errorf("app: %w", err)
	}

	a.trigger.Arm()
	out, err := sess.Run(ctx)
	a.trigger.disarm()
	if err != nil {
		return out, err
	}

	if out.Text != "" && a.out != nil {
		if _, err := fmt.Fprintln(a.out, out.Text); err != nil {
			slog.Warn("write transcript", "err", err)
		}
	}
	return out, nil
}

// Run starts a new session after each result until ctx is done. Failed
// sessions are logged by the session and followed by a short pause. Run
// returns ctx.Err() on shutdown and any error that is not a session fault.
func (a *App) Run(ctx context.Context) error {
	slog.Info("recording loop started", "transcriber", a.Transcriber())
	for {
		out, err := a.RunOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			var f *session.Fault
			if !errors.As(err, &f) {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.faultDelay):
			}
			continue
		}
		slog.Debug("session finished", "reason", out.Reason, "chars", len(out.Text))
	}
}

// Checkers returns the readiness checks for the current providers.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		{Name: "vad", Check: func(ctx context.Context) error {
			cfg, ps := a.current()
			return health.VAD(ps.VAD, vadConfig(cfg)).Check(ctx)
		}},
		{Name: "capture", Check: func(ctx context.Context) error {
			_, ps := a.current()
			return health.Capture(ps.Capture).Check(ctx)
		}},
		health.Transcriber(func(ctx context.Context) error {
			_, ps := a.current()
			if ps.Local == nil {
				return nil
			}
			_, err := ps.Local.Get(ctx)
			return err
		}),
	}
}

func (a *App) current() (*config.Config, *Providers) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg, a.providers
}

// applyPending switches to a queued configuration. Providers are rebuilt only
// for the sections that changed, and the local model is kept unless its
// options changed. A configuration whose providers cannot be built is
// rejected and the current one stays in effect.
func (a *App) applyPending(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.pending
	a.pending = nil
	if next == nil {
		return
	}

	log := observe.Logger(ctx)
	d := config.Diff(a.cfg, next)
	if !d.Changed() {
		a.setConfig(next)
		return
	}
	log.Info("applying configuration change", "sections", d.Sections())

	if d.AudioChanged || d.VADChanged || d.TranscriptionChanged {
		ps, err := a.rebuild(next, d)
		if err != nil {
			log.Error("configuration change rejected", "err", err)
			return
		}
		disp, err := newDispatcher(next, ps, transcribe.WithMetrics(a.metrics))
		if err != nil {
			log.Error("configuration change rejected", "err", err)
			return
		}
		if old := a.providers.Local; old != nil && old != ps.Local {
			if err := old.Close(); err != nil {
				log.Warn("close local model", "err", err)
			}
		}
		a.providers = ps
		a.dispatcher = disp
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(LogLevel(d.NewLogLevel))
	}
	if d.ListenAddrChanged {
		log.Warn("listen_addr change takes effect after restart", "listen_addr", next.Server.ListenAddr)
	}
	a.setConfig(next)
}

// setConfig makes cfg current. It must be called with a.mu held.
func (a *App) setConfig(cfg *config.Config) {
	a.cfg = cfg
	if a.providers.Local != nil {
		a.providers.Local.SetVerbose(cfg.Server.PrintToTerminal)
	}
}

// rebuild returns the providers for next. It must be called with a.mu held.
func (a *App) rebuild(next *config.Config, d config.ConfigDiff) (*Providers, error) {
	if a.reg == nil {
		ps := *a.providers
		if !needsLocal(next) {
			ps.Local = nil
		}
		return &ps, nil
	}
	ps, err := BuildProviders(next, a.reg)
	if err != nil {
		return nil, err
	}
	if ps.Local != nil && a.providers.Local != nil && !d.LocalModelChanged {
		ps.Local = a.providers.Local
	}
	return ps, nil
}

func (a *App) closeLocal() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.providers.Local == nil {
		return nil
	}
	return a.providers.Local.Close()
}

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// LogLevel converts a configured level to its slog equivalent.
func LogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// vadConfig is the speech gate's session config for cfg.
func vadConfig(cfg *config.Config) vad.Config {
	return vad.Config{
		SampleRate:      cfg.Audio.SampleRate,
		FrameSizeMs:     cfg.Audio.FrameDurationMs,
		Aggressiveness:  recorder.GateAggressiveness,
		SpeechThreshold: cfg.VAD.EnergyThreshold,
	}
}

// sessionConfig maps cfg onto one session. cfg has been validated, so the
// cancel policy parses.
func sessionConfig(cfg *config.Config) session.Config {
	policy, err := recorder.ParseCancelPolicy(cfg.Audio.CancelPolicy)
	if err != nil {
		slog.Warn("unknown cancel policy, using debounce", "cancel_policy", cfg.Audio.CancelPolicy)
	}
	return session.Config{
		SoundDevice: cfg.Audio.SoundDevice,
		Recorder: recorder.Config{
			SampleRate:   cfg.Audio.SampleRate,
			FrameMs:      cfg.Audio.FrameDurationMs,
			SilenceMs:    cfg.Audio.SilenceDurationMs,
			MinDuration:  cfg.Audio.MinDuration(),
			Policy:       policy,
			PollInterval: cfg.Audio.PollInterval,
		},
		SpeechThreshold: cfg.VAD.EnergyThreshold,
		BufferMs:        cfg.Audio.BufferDurationMs,
		PostProcessing:  cfg.PostProcessing,
		Verbose:         cfg.Server.PrintToTerminal,
	}
}
