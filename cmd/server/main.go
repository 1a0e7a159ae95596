package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/eleves/internal/config"
	"github.com/JonMunkholm/eleves/internal/core"
	"github.com/JonMunkholm/eleves/internal/database"
	"github.com/JonMunkholm/eleves/internal/logging"
	"github.com/JonMunkholm/eleves/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Overload lets a local .env win over the shell environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"import_max_file_size", cfg.Import.MaxFileSize,
		"require_api_key", cfg.Security.RequireAPIKey,
	)

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("connected to database", "name", database.DatabaseName(cfg.Database.URL))

	store, err := database.NewPGStore(pool)
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}

	service := core.NewService(store, core.ServiceConfig{
		PreviewRows:     cfg.Import.PreviewRows,
		MaxMatriculeSeq: cfg.Import.MaxMatriculeSeq,
		MatriculeYear:   cfg.Import.MatriculeYear,
		Timeout:         cfg.Import.Timeout,
		SessionTTL:      cfg.Import.SessionTTL,
		MaxConcurrent:   cfg.Import.MaxConcurrent,
		MaxWaitTime:     cfg.Import.MaxWaitTime,
		Logger:          slog.Default(),
	})

	server := web.NewServer(service, cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Running imports commit row by row; let them finish before the pool closes.
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
}
