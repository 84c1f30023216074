// Command sparkie is the main entry point for the Sparkie voice interviewer.
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

	"github.com/MrWong99/sparkie/internal/app"
	"github.com/MrWong99/sparkie/internal/config"
	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/pkg/audio/portaudio"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mic := flag.Bool("mic", false, "interview from the default microphone instead of serving HTTP")
	micRate := flag.Int("mic-rate", 48000, "microphone sample rate in Hz (with -mic)")
	micBlock := flag.Int("mic-block", 1024, "microphone samples per read (with -mic)")
	outDir := flag.String("out", "", "directory for reply WAVs and the summary (with -mic)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sparkie: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sparkie: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("sparkie starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "sparkie",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, providers)

	application, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(ctx, *configPath, func(_, newCfg *config.Config, diff config.ConfigDiff) {
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
		}
		if diff.FrontendChanged || diff.ConversationChanged {
			application.UpdateConfig(newCfg)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	if *mic {
		err = runMic(ctx, application, *micRate, *micBlock, *outDir)
	} else {
		slog.Info("server ready, press Ctrl+C to shut down")
		err = application.Run(ctx)
	}
	code := 0
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// runMic interviews from the default input device until the interview ends
// or ctx is cancelled.
func runMic(ctx context.Context, application *app.App, rate, block int, outDir string) error {
	capture, err := portaudio.Open(ctx, rate, block)
	if err != nil {
		return err
	}
	defer capture.Close()
	slog.Info("microphone open, start talking", "rate", rate)
	return application.RunLocal(ctx, capture, outDir)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, ps *app.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Sparkie · startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM)
	printProvider("STT", cfg.Providers.STT)
	printProvider("TTS", cfg.Providers.TTS)
	printProvider("VAD", cfg.Providers.VAD)
	printProvider("Keyword", cfg.Providers.Keyword)
	mode := "text only"
	if ps.VoiceReady() {
		mode = "voice + text"
	}
	fmt.Printf("║  Sessions        : %-19s ║\n", mode)
	fmt.Printf("║  Max concurrent  : %-19d ║\n", cfg.Sessions.MaxConcurrent)
	store := "(disabled)"
	if cfg.Memory.PostgresDSN != "" {
		store = "postgres"
	}
	fmt.Printf("║  Transcripts     : %-19s ║\n", store)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind string, entry config.ProviderEntry) {
	value := entry.Name
	if value == "" {
		value = "(not configured)"
	} else if entry.Model != "" {
		value = entry.Name + " / " + entry.Model
	}
	if n := len(entry.Fallbacks); n > 0 {
		value = fmt.Sprintf("%s +%d", value, n)
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
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
