package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Publish immediately for one site or all sites",
	Args:  cobra.NoArgs,
	RunE:  runNow,
}

var (
	runSites []string
	runAll   bool
	runDate  string
)

func init() {
	runCmd.Flags().StringSliceVarP(&runSites, "site", "s", nil, "Site key (repeatable)")
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run every configured site")
	runCmd.Flags().StringVar(&runDate, "date", "", "Calendar day YYYY-MM-DD (default: today)")
	runCmd.MarkFlagsMutuallyExclusive("site", "all")
	runCmd.MarkFlagsOneRequired("site", "all")

	rootCmd.AddCommand(runCmd)
}

func runNow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	loc := application.Location()
	day, err := parseDay(runDate, loc)
	if err != nil {
		return err
	}
	at := day.In(loc)
	if runDate == "" {
		at = time.Now().In(loc)
	}

	var sites []string
	if !runAll {
		sites = runSites
	}

	outcomes, runErr := application.RunNow(ctx, sites, at)
	out := cmd.OutOrStdout()
	for _, o := range outcomes {
		if o.Site == "" {
			continue
		}
		fmt.Fprintf(out, "%-10s %-18s attempts=%d topic=%q %s\n", o.Site, o.State, o.Attempts, o.Topic, o.URL)
	}
	if runErr != nil {
		return errors.Join(errors.New("some runs failed"), runErr)
	}
	return nil
}
