package cmd

import (
	"github.com/spf13/cobra"

	"github.com/godilite/support-metrics/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve weekly report lookups over gRPC from the stored snapshot",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, _, err := bootstrap(
		config.SectionReport,
		config.SectionDatabase,
		config.SectionRedis,
		config.SectionGRPC,
		config.SectionMetrics,
	)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Serve(cmd.Context())
}
