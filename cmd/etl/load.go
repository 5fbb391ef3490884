package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-snapshot-etl/internal/adapter/mysql"
	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
)

var loadSnapshot string

var loadCmd = &cobra.Command{
	Use:   "load --snapshot ID",
	Short: "Run the quality checks for an already staged snapshot",
	Long: `Run the quality-check script for a snapshot that is already in
weather_staging, without extracting. Re-running a snapshot adds no rows when
the script guards its inserts.

Example:
  etl load --snapshot 17466442574821`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		snapshot, err := domain.ParseSnapshotID(loadSnapshot)
		if err != nil {
			return err
		}

		res, err := newLoader(mysql.NewProvider(cfg.DB, logger)).RunQualityChecksAndLoad(cmd.Context(), snapshot)
		if err != nil {
			return fmt.Errorf("load snapshot %s: %w", snapshot, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: %d statements, %d clean rows added, %d quality log entries added\n",
			snapshot, res.Statements, res.CleanAdded, res.QualityLogAdded)
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadSnapshot, "snapshot", "", "snapshot ID to load")
	_ = loadCmd.MarkFlagRequired("snapshot")
}
