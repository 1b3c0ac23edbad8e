package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tokendao/internal/app/bootstrap"

	"github.com/spf13/cobra"
)

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve HTTP until SIGINT/SIGTERM.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokendao-api",
		Short: "Governance HTTP API",
		Long: `Serves the governor over HTTP: propose, vote, execute and read views.

Configuration comes from the environment (and .env when present), e.g.
  STORAGE_DRIVER=postgres POSTGRES_DSN=postgres://... tokendao-api`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
}

func run(ctx context.Context) (err error) {
	app, err := bootstrap.BuildAPI(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap api: %w", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("api shutdown close: %w", closeErr)
		}
	}()
	return app.Run(ctx)
}
