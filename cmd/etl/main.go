// Command etl extracts current weather for the configured cities into the
// staging table and promotes it through the quality-check script.
//
// Usage:
//
//	etl [run]                 one run, exit 1 if extraction failed
//	etl serve                 run every RUN_INTERVAL with health and metrics endpoints
//	etl migrate               apply the embedded schema migrations
//	etl load --snapshot ID    re-run quality checks for a staged snapshot
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-snapshot-etl/internal/config"
	"github.com/couchcryptid/weather-snapshot-etl/internal/observability"
)

// Version is set at build time.
var Version = "dev"

var (
	cfg        *config.Config
	logger     *slog.Logger
	closeLog   = func() error { return nil }
	metrics    *observability.Metrics
	skipConfig = map[string]bool{"help": true, "completion": true}
)

var rootCmd = &cobra.Command{
	Use:   "etl",
	Short: "Weather snapshot ETL",
	Long: `Fetches current weather for a fixed list of cities from OpenWeatherMap,
stages the responses in MySQL under a snapshot ID, then runs the quality-check
SQL script that promotes valid rows to weather_clean and logs rejects in
data_quality_log.

Without a subcommand, a single run is executed.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if skipConfig[cmd.Name()] {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, closeLog = observability.NewLogger(cfg)
		slog.SetDefault(logger)
		metrics = observability.NewMetrics()
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
		}
	},
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(loadCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("etl failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
