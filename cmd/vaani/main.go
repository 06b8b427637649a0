// Command vaani is the streaming speech transcription daemon: it segments a
// live audio feed into utterances and dispatches them to a local whisper
// model, publishing transcripts over WebSocket and optionally persisting them
// to PostgreSQL.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/vaani-ai/vaani/internal/bridge"
	"github.com/vaani-ai/vaani/internal/config"
	"github.com/vaani-ai/vaani/internal/health"
	"github.com/vaani-ai/vaani/internal/observe"
	"github.com/vaani-ai/vaani/internal/stream"
	"github.com/vaani-ai/vaani/internal/transcriptlog"
	"github.com/vaani-ai/vaani/pkg/audio"
	"github.com/vaani-ai/vaani/pkg/provider/stt"
	"github.com/vaani-ai/vaani/pkg/provider/stt/whisper"
	"github.com/vaani-ai/vaani/pkg/provider/vad"
	"github.com/vaani-ai/vaani/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "-", "raw s16le PCM input: a file path, or - for stdin")
	inputRate := flag.Int("input-rate", 0, "sample rate of the PCM input (default: audio.sample_rate)")
	inputChannels := flag.Int("input-channels", 1, "channel count of the PCM input (1 or 2)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vaani: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vaani: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("vaani starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "vaani",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	detector, err := buildDetector(cfg, reg)
	if err != nil {
		slog.Error("failed to build speech detector", "err", err)
		return 1
	}
	if detector != nil {
		defer detector.Close()
	}

	transcriber, err := buildTranscriber(cfg, reg)
	if err != nil {
		slog.Error("failed to build transcriber", "err", err)
		return 1
	}
	if c, ok := transcriber.(io.Closer); ok {
		defer c.Close()
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Transcript log (optional) ─────────────────────────────────────────────
	var store *transcriptlog.Store
	if cfg.TranscriptLog.PostgresDSN != "" {
		store, err = transcriptlog.NewStore(ctx, cfg.TranscriptLog.PostgresDSN)
		if err != nil {
			slog.Error("failed to open transcript log", "err", err)
			return 1
		}
		defer store.Close()
		slog.Info("transcript log connected")
	}

	// ── Capture source ────────────────────────────────────────────────────────
	source, closeInput, err := openCaptureSource(cfg, *inputPath, *inputRate, *inputChannels)
	if err != nil {
		slog.Error("failed to open audio input", "err", err)
		return 1
	}
	defer closeInput()

	// ── Event surface: bridge + transcript log ────────────────────────────────
	events := bridge.NewServer()
	mode := "window"
	if detector != nil {
		mode = "vad"
	}
	handlers := stream.Handlers{
		Started:    func() { events.Publish(bridge.LifecycleEvent("started")) },
		Processing: func() { events.Publish(bridge.LifecycleEvent("processing")) },
		Stopped:    func() { events.Publish(bridge.LifecycleEvent("stopped")) },
		Failure:    func(err error) { events.Publish(bridge.FailureEvent(err)) },
		Result: func(text string, latency time.Duration) {
			events.Publish(bridge.ResultEvent(text, latency))
			if store == nil {
				return
			}
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := store.Save(saveCtx, transcriptlog.Entry{
				Text:    text,
				Mode:    mode,
				Latency: latency,
			})
			if err != nil {
				slog.Warn("transcript log write failed", "err", err)
			}
		},
	}

	engine, err := stream.New(cfg, stream.Deps{
		Source:      source,
		Detector:    detector,
		Transcriber: transcriber,
		Handlers:    handlers,
		Metrics:     metrics,
	})
	if err != nil {
		slog.Error("failed to build stream engine", "err", err)
		return 1
	}

	printStartupSummary(cfg, *inputPath)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.ListenAddr != "" {
		srv := newHTTPServer(cfg, metrics, events, engine, store)
		g.Go(func() error {
			slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := engine.Start(gctx); err != nil {
		slog.Error("failed to start stream engine", "err", err)
		return 1
	}

	slog.Info("engine running — press Ctrl+C to shut down")
	<-gctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	if err := engine.Stop(); err != nil {
		slog.Warn("engine stop error", "err", err)
	}
	engine.Drain()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with Vaani
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterVAD("energy", func(_ config.VADConfig) (vad.Engine, error) {
		return &energy.Engine{}, nil
	})

	reg.RegisterSTT("whisper-native", func(entry config.STTConfig) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.New(entry.ModelPath, opts...)
	})
}

// buildDetector instantiates the configured per-frame speech detector, or
// returns nil when no detector is configured so the engine falls back to
// windowed segmentation. An unregistered provider name is tolerated the same
// way — degraded, not fatal.
func buildDetector(cfg *config.Config, reg *config.Registry) (vad.Detector, error) {
	if cfg.VAD.Name == "" {
		return nil, nil
	}
	engine, err := reg.CreateVAD(cfg.VAD)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("vad provider not registered — falling back to windowed segmentation", "name", cfg.VAD.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", cfg.VAD.Name, err)
	}
	detector, err := engine.NewDetector(vad.Config{
		SampleRate:  cfg.Audio.SampleRate,
		ChunkFrames: cfg.Audio.ChunkFrames,
		Threshold:   cfg.VAD.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("create detector for %q: %w", cfg.VAD.Name, err)
	}
	slog.Info("provider created", "kind", "vad", "name", cfg.VAD.Name)
	return detector, nil
}

// buildTranscriber instantiates the configured transcriber, or returns nil
// when none is configured.
func buildTranscriber(cfg *config.Config, reg *config.Registry) (stt.Transcriber, error) {
	if cfg.STT.Name == "" {
		return nil, nil
	}
	tr, err := reg.CreateSTT(cfg.STT)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("stt provider not registered — utterances will not be transcribed", "name", cfg.STT.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.STT.Name, "model", cfg.STT.ModelPath)
	return tr, nil
}

// ── Audio input ───────────────────────────────────────────────────────────────

// openCaptureSource builds a real-time-paced capture source over a raw s16le
// PCM stream from a file or stdin. The stream is decoded (and resampled or
// downmixed when needed) into the pipeline's mono float32 format.
func openCaptureSource(cfg *config.Config, path string, rate, channels int) (audio.CaptureSource, func(), error) {
	var (
		r         io.Reader
		closeFunc = func() {}
	)
	switch path {
	case "-", "":
		r = os.Stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open input %q: %w", path, err)
		}
		r = f
		closeFunc = func() { f.Close() }
	}

	if rate <= 0 {
		rate = cfg.Audio.SampleRate
	}
	decoder := &audio.Decoder{
		Source:     audio.Format{SampleRate: rate, Channels: channels},
		TargetRate: cfg.Audio.SampleRate,
	}
	provider := newPCMProvider(r, decoder)
	return audio.NewTickerSource(cfg.Audio.SampleRate, cfg.Audio.ChunkFrames, provider), closeFunc, nil
}

// newPCMProvider adapts a raw PCM byte stream into the fixed-size sample
// blocks a TickerSource pulls. The final short block is zero-padded; the read
// after that reports the underlying error and ends capture.
func newPCMProvider(r io.Reader, decoder *audio.Decoder) audio.SampleProvider {
	br := bufio.NewReader(r)
	var pending []float32
	chunk := make([]byte, 4096)

	return func(n int) ([]float32, error) {
		for len(pending) < n {
			read, err := br.Read(chunk)
			if read > 0 {
				pending = append(pending, decoder.Decode(chunk[:read])...)
			}
			if err != nil {
				if len(pending) == 0 {
					return nil, err
				}
				out := make([]float32, n)
				copy(out, pending)
				pending = nil
				return out, nil
			}
		}
		out := pending[:n:n]
		pending = pending[n:]
		return out, nil
	}
}

// ── HTTP server ───────────────────────────────────────────────────────────────

func newHTTPServer(cfg *config.Config, metrics *observe.Metrics, events *bridge.Server, engine *stream.Engine, store *transcriptlog.Store) *http.Server {
	checkers := []health.Checker{
		health.ReadyChecker("engine", "stream engine is not running", func() bool {
			return engine.State() == stream.StateRunning
		}),
	}
	if store != nil {
		checkers = append(checkers, health.PingChecker("transcript_log", store))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", events)

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, inputPath string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Vaani — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printSetting("Input", inputPath)
	printSetting("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printSetting("Chunk frames", fmt.Sprintf("%d", cfg.Audio.ChunkFrames))
	printSetting("VAD", orDefault(cfg.VAD.Name, "(windowed fallback)"))
	printSetting("STT", orDefault(cfg.STT.Name, "(not configured)"))
	if cfg.TranscriptLog.PostgresDSN != "" {
		printSetting("Transcript log", "postgres")
	} else {
		printSetting("Transcript log", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printSetting("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printSetting(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
