package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/reclaim/service/config"
	"github.com/brojonat/reclaim/service/metrics"
	"github.com/brojonat/reclaim/service/nats"
	"github.com/brojonat/reclaim/service/redemption"
	"github.com/brojonat/reclaim/service/server"
	"github.com/brojonat/reclaim/service/solana"
	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; real environment variables take precedence.
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.NewMetrics(nil)
	}

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	solanaClient := solana.NewClient(solanaRPC, endpointLabel(cfg.SolanaRPCURL), cfg.SolanaRPCRateLimit, m, logger)
	logger.Info("initialized solana RPC client",
		"endpoint", endpointLabel(cfg.SolanaRPCURL),
		"rate_limit", cfg.SolanaRPCRateLimit,
	)

	svc := redemption.NewService(solanaClient, redemption.Config{
		Operator:            cfg.OperatorWallet,
		FeeBasisPoints:      uint64(cfg.FeeBasisPoints),
		MaxSelectedAccounts: cfg.MaxSelectedAccounts,
		ConfirmTimeout:      cfg.ConfirmTimeout,
		ConfirmPollInterval: cfg.ConfirmPollInterval,
	}, m, logger)

	var publisher nats.Publisher
	if cfg.NATSURL != "" {
		p, err := nats.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		publisher = p
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, svc, publisher, m, logger)

	logger.Info("server initialized, all dependencies ready",
		"operator", cfg.OperatorWallet.String(),
		"fee_bps", cfg.FeeBasisPoints,
		"max_selected_accounts", cfg.MaxSelectedAccounts,
		"confirm_timeout", cfg.ConfirmTimeout,
		"nats_enabled", publisher != nil,
		"metrics_enabled", m != nil,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// In-flight submissions may still be waiting on confirmation.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ConfirmTimeout+15*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// endpointLabel reduces an RPC URL to its host so API keys stay out of logs and metric labels.
func endpointLabel(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
