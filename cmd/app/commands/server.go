package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/keyfold/keyfold/internal/app"
	"github.com/keyfold/keyfold/internal/config"
)

// RunServer starts the background worker with graceful shutdown support.
// It runs the Prometheus metrics server (when metrics are enabled) and the
// periodic expiry sweep. Blocks until receiving SIGINT/SIGTERM or
// encountering a fatal error.
func RunServer(ctx context.Context, version string) error {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	// Get secret manager from container (this initializes all dependencies)
	manager, err := container.SecretManager()
	if err != nil {
		return fmt.Errorf("failed to initialize secret manager: %w", err)
	}

	// Get metrics server from container (nil when metrics are disabled)
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				count, err := manager.SweepExpired(gctx, cfg.SweepActor, time.Now().UTC())
				if err != nil {
					// Non-fatal: the next tick retries
					logger.Error("expiry sweep failed", slog.Any("error", err))
					continue
				}
				if count > 0 {
					logger.Info("expiry sweep completed", slog.Int("count", count))
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker error: %w", err)
	}

	logger.Info("worker stopped")
	return nil
}
