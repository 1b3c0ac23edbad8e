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

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Run the outbox relay and the execution keeper until SIGINT/SIGTERM.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "tokendao-worker",
		Short:        "Governance outbox relay and execution keeper",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
}

func run(ctx context.Context) (err error) {
	app, err := bootstrap.BuildWorker(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap worker: %w", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("worker shutdown close: %w", closeErr)
		}
	}()
	return app.Run(ctx)
}
