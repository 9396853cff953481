// Command docctl is the operator CLI for the document lifecycle engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docledger/docledger/internal/app"
	"github.com/docledger/docledger/internal/config"
	"github.com/docledger/docledger/pkg/logger"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "docctl",
		Short:         "Operate the docledger document lifecycle engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// stdout carries command output such as minted tokens
			logger.SetOutput(cmd.ErrOrStderr())
			logger.Init(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug|info|warn|error")
	root.AddCommand(
		newSweepCmd(),
		newVerifyAuditCmd(),
		newPoliciesCmd(),
		newTokenCmd(),
		newRevokeCmd(),
	)
	return root
}

// withApp loads configuration, wires the engine and closes it after fn.
func withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a, err := app.New(cmd.Context(), cfg, "docctl")
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
