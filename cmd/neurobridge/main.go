// Command neurobridge is the main entry point for the NeuroBridge assistant
// server.
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

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/neurobridge/neurobridge/internal/app"
	"github.com/neurobridge/neurobridge/internal/backend"
	"github.com/neurobridge/neurobridge/internal/config"
	"github.com/neurobridge/neurobridge/internal/observe"
	"github.com/neurobridge/neurobridge/internal/resilience"
	"github.com/neurobridge/neurobridge/pkg/capability/wsbridge"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "neurobridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "neurobridge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("neurobridge starting",
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
		ServiceName:    "neurobridge",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Client bridge ─────────────────────────────────────────────────────────
	var bridgeOpts []wsbridge.Option
	if cfg.Voice.Language != "" {
		bridgeOpts = append(bridgeOpts, wsbridge.WithLanguage(cfg.Voice.Language))
	}
	if s := cfg.Speech; s.Rate != 0 || s.Pitch != 0 || s.Volume != 0 {
		bridgeOpts = append(bridgeOpts, wsbridge.WithSpeechParams(s.Rate, s.Pitch, s.Volume))
	}
	bridge := wsbridge.New(bridgeOpts...)
	defer bridge.Close()

	// ── Analysis backend (optional) ───────────────────────────────────────────
	deps := app.Deps{
		Camera:          bridge,
		Recognizer:      bridge,
		Synth:           bridge,
		BridgeHandler:   bridge.Handler(),
		ClientConnected: bridge.Connected,
		Metrics:         metrics,
	}
	if cfg.Backend.BaseURL != "" {
		backendOpts := []backend.Option{
			backend.WithMetrics(metrics),
			backend.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				Name: "backend",
			})),
		}
		if d := cfg.Backend.Timeout.Std(); d > 0 {
			backendOpts = append(backendOpts, backend.WithTimeout(d))
		}
		client, err := backend.New(cfg.Backend.BaseURL, backendOpts...)
		if err != nil {
			slog.Error("failed to create backend client", "err", err)
			return 1
		}
		deps.Backend = client
		slog.Info("analysis backend configured", "base_url", cfg.Backend.BaseURL)
	} else {
		slog.Warn("no analysis backend configured — gesture and describe flows are disabled")
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, deps)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       NeuroBridge — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Listen addr", orDefault(cfg.Server.ListenAddr, ":8080"))
	printEntry("Metrics addr", orDefault(cfg.Server.MetricsAddr, "(disabled)"))
	printEntry("Backend", orDefault(cfg.Backend.BaseURL, "(not configured)"))
	printEntry("Language", orDefault(cfg.Voice.Language, "en-US"))
	if cfg.Server.TLS != nil {
		printEntry("TLS", "enabled")
	} else {
		printEntry("TLS", "disabled")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(name, value string) {
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
