package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/app"
	"github.com/godilite/support-metrics/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "support-metrics",
	Short:         "Weekly helpdesk support metrics: fetch, aggregate, email",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runReport,
}

// ExecuteContext runs the CLI with ctx available to every command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// bootstrap loads and validates the sections a command needs, then builds the
// application. Validation runs before anything touches the network.
func bootstrap(sections ...config.Section) (*app.App, *zap.Logger, error) {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(sections...); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}

	return app.NewApp(cfg, logger), logger, nil
}
