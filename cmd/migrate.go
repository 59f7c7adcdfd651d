package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending snapshot store migrations",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	application, logger, err := bootstrap(config.SectionDatabase)
	if err != nil {
		return err
	}
	defer application.Close()

	version, err := application.Migrate(cmd.Context())
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrate up: ok", zap.Int64("version", version))
	return nil
}
