package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/app"
	"github.com/godilite/support-metrics/internal/config"
)

var replayFlags struct {
	asOf    string
	preview string
	xlsx    string
	send    bool
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild the report from the latest stored snapshot",
	Long: `Rebuild the weekly report from the latest snapshot without calling Zendesk.
The window ends at --as-of (RFC 3339, default now). The result can be written
as an HTML preview or a workbook, and emailed with --send.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFlags.asOf, "as-of", "", "end of the report window, RFC 3339")
	replayCmd.Flags().StringVar(&replayFlags.preview, "preview", "", "write the email HTML to this file")
	replayCmd.Flags().StringVar(&replayFlags.xlsx, "xlsx", "", "write the report workbook to this file")
	replayCmd.Flags().BoolVar(&replayFlags.send, "send", false, "email the rebuilt report")
}

func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: %w", s, err)
	}
	return t, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	asOf, err := parseAsOf(replayFlags.asOf)
	if err != nil {
		return err
	}

	sections := []config.Section{config.SectionReport, config.SectionDatabase}
	if replayFlags.send {
		sections = append(sections, config.SectionEmail)
	}

	application, logger, err := bootstrap(sections...)
	if err != nil {
		return err
	}
	defer application.Close()

	r, err := application.Replay(cmd.Context(), app.ReplayOptions{
		AsOf:        asOf,
		PreviewPath: replayFlags.preview,
		XLSXPath:    replayFlags.xlsx,
		Send:        replayFlags.send,
	})
	if err != nil {
		logger.Error("replay failed", zap.Error(err))
		return err
	}

	logger.Info("replay completed",
		zap.Time("window_start", r.WindowStart),
		zap.Time("window_end", r.WindowEnd),
		zap.Int("records", r.Records),
		zap.Bool("sent", replayFlags.send))
	return nil
}
