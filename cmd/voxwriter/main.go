// Command voxwriter records speech from a microphone, stops at the end of the
// utterance and prints the transcript.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxwriter/internal/app"
	"github.com/MrWong99/voxwriter/internal/config"
	"github.com/MrWong99/voxwriter/internal/health"
	"github.com/MrWong99/voxwriter/internal/observe"
	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/audio/portaudio"
	"github.com/MrWong99/voxwriter/pkg/provider/stt"
	"github.com/MrWong99/voxwriter/pkg/provider/stt/openai"
	"github.com/MrWong99/voxwriter/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
	"github.com/MrWong99/voxwriter/pkg/provider/vad/energy"
	"github.com/MrWong99/voxwriter/pkg/provider/vad/webrtc"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	once := flag.Bool("once", false, "record and transcribe a single utterance, then exit")
	listDevices := flag.Bool("list-devices", false, "print the available capture devices and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxwriter: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxwriter: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.LogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if *listDevices {
		return printDevices(cfg, reg)
	}

	slog.Info("voxwriter starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Init(ctx, observe.ProviderConfig{ServiceName: "voxwriter", Global: true})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := tel.Metrics

	application, err := app.New(cfg, reg,
		app.WithMetrics(metrics),
		app.WithLevelVar(level),
		app.WithOutput(os.Stdout),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, application.OnConfigChange)
	if err != nil {
		slog.Warn("config reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, application.Transcriber(), *once)

	// ── Trigger ───────────────────────────────────────────────────────────────
	trigger := application.Trigger()
	go func() {
		if err := trigger.Listen(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("stdin trigger stopped", "err", err)
		}
	}()
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		trigger.WatchSignals(gctx, usr1)
		return nil
	})
	g.Go(func() error {
		logStatus(gctx, application)
		return nil
	})

	// ── HTTP: health and metrics ──────────────────────────────────────────────
	if addr := cfg.Server.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		health.New(application.Checkers(), health.WithState(func() string {
			return string(application.State())
		})).Register(mux)
		mux.Handle("GET "+observe.RouteMetrics, tel.Handler())
		srv := &http.Server{
			Addr:              addr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── Recording loop ────────────────────────────────────────────────────────
	g.Go(func() error {
		if *once {
			defer cancel()
			_, err := application.RunOnce(gctx)
			return err
		}
		return application.Run(gctx)
	})

	exit := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	slog.Info("goodbye")
	return exit
}

// logStatus logs session status updates until ctx is done.
func logStatus(ctx context.Context, a *app.App) {
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-a.Status():
			slog.Debug("status", "state", st.State, "message", st.Message)
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(cfg *config.Config) (stt.Provider, error) {
		api := cfg.Transcription.APIOptions
		opts := []openai.Option{openai.WithModel(api.Model)}
		if api.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(api.BaseURL))
		}
		if api.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(api.Timeout))
		}
		return openai.New(api.APIKey, opts...)
	})

	reg.RegisterSTT("whisper-native", func(cfg *config.Config) (stt.Provider, error) {
		local := cfg.Transcription.LocalModelOptions
		opts := []whisper.NativeOption{
			whisper.WithDevice(local.Device),
			whisper.WithComputeType(local.ComputeType),
			whisper.WithThreads(uint(local.Threads)),
		}
		if local.VADFilter {
			engine, err := reg.CreateVAD(cfg.VAD)
			if err != nil {
				return nil, fmt.Errorf("vad filter: %w", err)
			}
			opts = append(opts, whisper.WithSpeechFilter(whisper.SpeechFilter{
				Engine:         engine,
				FrameMs:        cfg.Audio.FrameDurationMs,
				Aggressiveness: cfg.VAD.Aggressiveness,
			}))
		}
		return whisper.NewNative(local.Model, opts...)
	})

	reg.RegisterSTT("whisper-server", func(cfg *config.Config) (stt.Provider, error) {
		local := cfg.Transcription.LocalModelOptions
		var opts []whisper.ServerOption
		if local.Model != "" {
			opts = append(opts, whisper.WithServerModel(local.Model))
		}
		return whisper.NewServer(local.ServerURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(config.VADConfig) (vad.Engine, error) {
		return webrtc.New(), nil
	})
	reg.RegisterVAD("energy", func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Capture ───────────────────────────────────────────────────────────────

	reg.RegisterCapture("portaudio", func(config.AudioConfig) (audio.Device, error) {
		return portaudio.New(), nil
	})

	slog.Debug("registered providers", "stt", reg.STTNames())
}

func printDevices(cfg *config.Config, reg *config.Registry) int {
	dev, err := reg.CreateCapture(cfg.Audio)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxwriter: %v\n", err)
		return 1
	}
	l, ok := dev.(audio.Lister)
	if !ok {
		fmt.Fprintf(os.Stderr, "voxwriter: capture backend %q cannot list devices\n", cfg.Audio.Backend)
		return 1
	}
	devices, err := l.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxwriter: %v\n", err)
		return 1
	}
	for _, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %3s  %s (%d ch)\n", marker, d.ID, d.Name, d.MaxInputChannels)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, transcriber string, once bool) {
	mode := "continuous"
	if once {
		mode = "once"
	}
	device := cfg.Audio.SoundDevice
	if device == "" {
		device = "(default)"
	}
	w := os.Stderr
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        voxwriter: startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow("Mode", mode)
	printRow("Sound device", device)
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printRow("VAD", cfg.VAD.Name)
	printRow("Transcriber", transcriber)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
	fmt.Fprintln(w, "Speak to record. Press Enter or send SIGUSR1 to stop early.")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(os.Stderr, "║  %-12s    : %-19s ║\n", label, value)
}
