package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	environment "subtracker/internal/env"
)

func main() {
	ctx := context.Background()

	env, err := environment.Setup(ctx)
	if err != nil {
		log.Fatalf("Failed to setup environment: %v", err)
	}

	logger := env.Logger
	logger.Info("Starting subtracker application")

	if env.Servers.HTTP.Observability != nil {
		go serve(logger, "observability", env.Servers.HTTP.Observability)
	}
	go serve(logger, "api", env.Servers.HTTP.API)

	if err := env.Services.Workers.Start(); err != nil {
		logger.Error("Failed to start workers", slog.Any("error", err))
		env.Close()
		return
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Application started. Press Ctrl+C to stop.")
	<-quit

	logger.Info("Shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.Config.ShutdownDuration)
	defer cancel()

	if err := env.Servers.HTTP.API.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", slog.Any("error", err))
	}

	// In-flight workflow runs are handed back to the queue.
	env.Services.Workers.Stop()

	if env.Servers.HTTP.Observability != nil {
		if err := env.Servers.HTTP.Observability.Shutdown(shutdownCtx); err != nil {
			logger.Error("Observability server shutdown error", slog.Any("error", err))
		}
	}

	env.Close()

	logger.Info("Application stopped")
}

func serve(logger *slog.Logger, name string, srv *http.Server) {
	logger.Info("Starting server", slog.String("name", name), slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", slog.String("name", name), slog.Any("error", err))
	}
}
