// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/keyfold/keyfold/cmd/app/commands"
	"github.com/keyfold/keyfold/internal/app"
	"github.com/keyfold/keyfold/internal/config"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "keyfold",
		Usage:   "Per-principal encrypted secret storage with a tamper-evident audit chain",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the metrics server and the periodic expiry sweep worker",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx, version)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := config.Load()
					logger := app.NewContainer(cfg).Logger()
					return commands.RunMigrations(logger, cfg.DBDriver, cfg.DBConnectionString)
				},
			},
			{
				Name:  "verify-audit-chain",
				Usage: "Re-verify the hash chain over the audit log",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "from",
						Value: 0,
						Usage: "First sequence index to verify (inclusive)",
					},
					&cli.IntFlag{
						Name:  "to",
						Value: -1,
						Usage: "Sequence index to stop before (exclusive); omit to verify to the tail",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.VerifyAuditChain(
						ctx,
						int64(cmd.Int("from")),
						int64(cmd.Int("to")),
						cmd.String("format"),
					)
				},
			},
			{
				Name:  "sweep-expired",
				Usage: "Deactivate active secret versions past their expiry deadline",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "actor",
						Aliases: []string{"a"},
						Value:   "",
						Usage:   "Actor recorded on the expire audit entries (defaults to SWEEP_ACTOR)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.SweepExpired(ctx, cmd.String("actor"), cmd.String("format"))
				},
			},
			{
				Name:  "gen-pepper",
				Usage: "Generate a new 32-byte derivation pepper",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "keeper-uri",
						Aliases: []string{"k"},
						Value:   "",
						Usage:   "gocloud.dev secrets keeper URI used to encrypt the pepper (e.g., hashivault://keyfold-pepper)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunGenPepper(ctx, os.Stdout, cmd.String("keeper-uri"))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
