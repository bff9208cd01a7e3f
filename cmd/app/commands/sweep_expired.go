package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/keyfold/keyfold/internal/app"
	"github.com/keyfold/keyfold/internal/config"
	secretsUseCase "github.com/keyfold/keyfold/internal/secrets/usecase"
)

// SweepExpired loads configuration, assembles dependencies and runs a single
// expiry sweep against the configured database.
func SweepExpired(ctx context.Context, actor, format string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	if actor == "" {
		actor = cfg.SweepActor
	}

	manager, err := container.SecretManager()
	if err != nil {
		return fmt.Errorf("failed to initialize secret manager: %w", err)
	}

	return RunSweepExpired(ctx, manager, logger, os.Stdout, actor, format)
}

// RunSweepExpired deactivates every active secret version past its expiry
// deadline, recording an expire audit entry for each. The actor is recorded
// on the audit entries.
//
// Requirements: Database must be migrated and accessible.
func RunSweepExpired(
	ctx context.Context,
	manager secretsUseCase.SecretManager,
	logger *slog.Logger,
	writer io.Writer,
	actor string,
	format string,
) error {
	if actor == "" {
		return fmt.Errorf("actor must not be empty")
	}

	logger.Info("sweeping expired secrets", slog.String("actor", actor))

	count, err := manager.SweepExpired(ctx, actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to sweep expired secrets: %w", err)
	}

	// Output result based on format
	if format == "json" {
		outputSweepJSON(writer, count)
	} else {
		outputSweepText(writer, count)
	}

	logger.Info("sweep completed", slog.Int("count", count))
	return nil
}

// outputSweepText outputs the result in human-readable text format.
func outputSweepText(writer io.Writer, count int) {
	_, _ = fmt.Fprintf(writer, "Deactivated %d expired secret version(s)\n", count)
}

// outputSweepJSON outputs the result in JSON format for machine consumption.
func outputSweepJSON(writer io.Writer, count int) {
	result := map[string]interface{}{
		"count": count,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(writer, "failed to marshal JSON: %v\n", err)
		return
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
}
