// Package main is the autopublisher CLI: the scheduler daemon plus one-shot maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"AutoPublisher/internal/app"
	"AutoPublisher/internal/config"
	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "autopublisher",
	Short:         "Scheduled blog auto-publishing engine",
	Long:          "autopublisher resolves a topic per site and slot from the publishing calendar or the fallback pool, generates a post, and publishes it to WordPress.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $AUTOPUBLISHER_CONFIG)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load(), nil
}

// newApplication loads configuration and builds the application; callers must Close it.
func newApplication(ctx context.Context) (*app.Application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithFormat(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	return app.New(ctx, cfg, logger)
}

// parseDay reads YYYY-MM-DD, defaulting to today in loc.
func parseDay(value string, loc *time.Location) (domain.DayKey, error) {
	if value == "" {
		return domain.DayKeyOf(time.Now(), loc), nil
	}
	day, err := domain.ParseDayKey(value)
	if err != nil {
		return domain.DayKey{}, fmt.Errorf("invalid --date %q: %w", value, err)
	}
	return day, nil
}
