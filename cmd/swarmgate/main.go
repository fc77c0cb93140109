package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swarmgate/internal/config"
	"swarmgate/internal/logger"
	"swarmgate/internal/server"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	// Load configuration
	cfg, warning, err := config.LoadConfig(configPath())
	if err != nil {
		// Use a temporary logger for startup errors
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	log := logger.New(cfg.Debug)
	log.Info("Logger initialized", "debug_mode", cfg.Debug)
	if warning != "" {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := setupAndRunServer(ctx, cfg, log); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server exiting")
}

func configPath() string {
	if p := os.Getenv("SWARMGATE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// setupAndRunServer wires the gateway and serves until ctx is cancelled.
func setupAndRunServer(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := server.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}
	defer app.Close()

	if err := app.Scheduler.Start(); err != nil {
		return err
	}
	log.Info("Scheduler started")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		app.Scheduler.Stop()
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	// The server has 5 seconds to finish the requests it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.Scheduler.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
