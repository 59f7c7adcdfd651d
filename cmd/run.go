package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch tickets, build the weekly report and email it",
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	application, logger, err := bootstrap(
		config.SectionZendesk,
		config.SectionEmail,
		config.SectionReport,
		config.SectionDatabase,
		config.SectionMetrics,
	)
	if err != nil {
		return err
	}
	defer application.Close()

	r, err := application.RunReport(cmd.Context())
	if err != nil {
		logger.Error("report run failed", zap.Error(err))
		return err
	}

	logger.Info("report run completed",
		zap.Time("window_start", r.WindowStart),
		zap.Time("window_end", r.WindowEnd),
		zap.Int("agents", len(r.Agents)),
		zap.Int("teams", len(r.Teams)))
	return nil
}
