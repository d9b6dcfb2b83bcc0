package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/reviewflow/internal/application"
	"github.com/JonMunkholm/reviewflow/internal/config"
	"github.com/JonMunkholm/reviewflow/internal/core"
	"github.com/JonMunkholm/reviewflow/internal/logging"
	"github.com/JonMunkholm/reviewflow/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"max_concurrent_runs", cfg.Pipeline.MaxConcurrentRuns,
		"schedule_interval", cfg.Pipeline.ScheduleInterval.String(),
		"rate_limit_rpm", cfg.Security.RequestsPerMinute,
	)

	ctx := context.Background()
	app, err := application.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Migrate(ctx); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	if _, err := app.ImportRulesFile(ctx, cfg.Pipeline.RulesFile); err != nil {
		slog.Error("failed to import title rules", "file", cfg.Pipeline.RulesFile, "error", err)
		os.Exit(1)
	}

	service := app.Service
	server := web.NewServer(service, web.Options{
		Security:       cfg.Security,
		RequestTimeout: cfg.Server.RequestTimeout,
		DB:             app.Pool,
	})

	// Background jobs stop on the first signal
	jobCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go service.StartScheduler(jobCtx, core.SchedulerConfig{
		Interval: cfg.Pipeline.ScheduleInterval,
	})

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-jobCtx.Done()

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for active runs to complete (with timeout)
		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for pipeline runs to complete", "active", status.Active)
			if err := service.Shutdown(shutdownCtx); err != nil {
				slog.Warn("pipeline runs did not complete in time", "error", err)
			} else {
				slog.Info("all pipeline runs completed")
			}
		}
	}()

	if err := server.Start(cfg.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		stop()
	}
	<-shutdownDone
}
