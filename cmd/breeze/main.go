// Command breeze transcribes speech. It runs in two modes: batch, which
// transcribes WAV files given as arguments and prints the chunks, and serve
// (-serve), which exposes the WebSocket streaming API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtkresearch/breeze-asr-go/internal/config"
	"github.com/mtkresearch/breeze-asr-go/internal/health"
	"github.com/mtkresearch/breeze-asr-go/internal/observe"
	"github.com/mtkresearch/breeze-asr-go/internal/server"
	"github.com/mtkresearch/breeze-asr-go/internal/transcript"
	"github.com/mtkresearch/breeze-asr-go/pkg/recognizer"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serve := flag.Bool("serve", false, "run the streaming server instead of batch transcription")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "breeze: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "breeze: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can adjust it without
	// swapping the handler.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "breeze-asr",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Recognition pipeline ──────────────────────────────────────────────────
	slog.Info("breeze starting",
		"version", version,
		"config", *configPath,
		"backend", cfg.Recognition.Backend,
		"vad", cfg.VAD.Engine,
	)

	rec, err := recognizer.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to build recognizer", "err", err)
		return 1
	}
	defer rec.Close()

	if *serve {
		return runServe(ctx, *configPath, cfg, rec, level)
	}
	return runBatch(ctx, cfg, rec, flag.Args())
}

// ── Batch mode ────────────────────────────────────────────────────────────────

// runBatch transcribes each WAV file argument and prints its chunks.
func runBatch(ctx context.Context, cfg *config.Config, rec *recognizer.Recognizer, files []string) int {
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "breeze: no input files (usage: breeze -config config.yaml file.wav…)")
		return 2
	}

	for _, path := range files {
		chunks, err := rec.InferFile(ctx, path)
		for _, c := range chunks {
			fmt.Printf("[%8s – %8s] %s\n", formatOffset(c.Start), formatOffset(c.End), c.Text)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "breeze: %s: %v\n", path, err)
			return 1
		}
	}
	return 0
}

// formatOffset renders a stream offset as m:ss.mmm.
func formatOffset(d time.Duration) string {
	mins := int(d.Minutes())
	sec := d - time.Duration(mins)*time.Minute
	return fmt.Sprintf("%d:%06.3f", mins, sec.Seconds())
}

// ── Serve mode ────────────────────────────────────────────────────────────────

func runServe(ctx context.Context, configPath string, cfg *config.Config, rec *recognizer.Recognizer, level *slog.LevelVar) int {
	opts := []server.Option{}

	// Transcript persistence is optional; the stream works without it.
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		store, err := transcript.NewPGStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to open transcript store", "err", err)
			return 1
		}
		defer store.Close()
		opts = append(opts,
			server.WithStore(store),
			server.WithCheckers(health.Pinger("store", store)),
		)
		slog.Info("transcript persistence enabled")
	}
	if path := rec.ModelPath(); path != "" {
		opts = append(opts, server.WithCheckers(health.FileExists("model", path)))
	}

	srv, err := server.New(cfg, rec.Backend(), rec.VADEngine(), opts...)
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}

	// Hot-reload the log level on config changes; anything else needs a
	// restart because open sessions bake their settings at open time.
	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(diff.NewLogLevel.Slog())
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	slog.Info("server ready, press Ctrl+C to shut down")

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping…")
	shCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
