package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage the fallback topic pool",
}

var poolImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import topics from a YAML file with a top-level topics list",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoolImport,
}

var poolRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run every configured topic source once",
	Args:  cobra.NoArgs,
	RunE:  runPoolRefresh,
}

func init() {
	poolCmd.AddCommand(poolImportCmd, poolRefreshCmd)
	rootCmd.AddCommand(poolCmd)
}

func runPoolImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	n, err := application.ImportTopics(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d new topics\n", n)
	return nil
}

func runPoolRefresh(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	n, err := application.RefreshPool(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d new topics\n", n)
	return nil
}
