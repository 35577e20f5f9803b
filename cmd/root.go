package cmd

import (
	"context"
	"fmt"
	"os"

	"chat-keystore/config"
	"chat-keystore/internal/app"
	"chat-keystore/observability"

	"github.com/spf13/cobra"
)

// Version is set at link time
var Version = "dev"

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chat-keystore",
		Short:         "Provider API key store for the chat app",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), "")
		},
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(keysCmd())
	cmd.AddCommand(statusCmd())
	return cmd
}

// Execute runs the CLI and exits non-zero on error
func Execute() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadApp reads configuration (Load validates it), sets up logging and
// metrics and wires the application
func loadApp() (*config.Config, *app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	observability.InitLoggerFromStrings(cfg.Log.Format, cfg.Log.Level)
	observability.GetMetrics()

	application, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, application, nil
}

// requireStore fails commands that only make sense with a token store
func requireStore(a *app.App) error {
	if !a.Store().Available() {
		return fmt.Errorf("no token store configured: set one of %v", config.ConnectionStringKeys)
	}
	return nil
}
