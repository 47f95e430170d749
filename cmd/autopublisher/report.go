package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"AutoPublisher/internal/usecase"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the daily run report",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

var (
	reportDate   string
	reportNotify bool
)

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Day YYYY-MM-DD (default: today)")
	reportCmd.Flags().BoolVar(&reportNotify, "notify", false, "Also send the report to Telegram")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	day, err := parseDay(reportDate, application.Location())
	if err != nil {
		return err
	}

	report, err := application.Report(ctx, day, reportNotify)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), usecase.FormatReport(report))
	return nil
}
