package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"AutoPublisher/internal/usecase"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Fill the publishing calendar for a week or month",
	Long:  "Builds rotating calendar entries from each site's plan. upsert keeps published entries and replaces planned ones; regenerate drops every planned entry in the period first.",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

var (
	planPeriod string
	planDate   string
	planMode   string
)

func init() {
	planCmd.Flags().StringVar(&planPeriod, "period", string(usecase.PeriodWeek), "week or month")
	planCmd.Flags().StringVar(&planDate, "date", "", "Any day inside the period, YYYY-MM-DD (default: today)")
	planCmd.Flags().StringVar(&planMode, "mode", string(usecase.PlanUpsert), "upsert or regenerate")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	day, err := parseDay(planDate, application.Location())
	if err != nil {
		return err
	}

	period, n, err := application.Plan(ctx, usecase.PeriodKind(planPeriod), day, usecase.PlanMode(planMode))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "planned %d entries for %s\n", n, period)
	return nil
}
