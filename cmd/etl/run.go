package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one extract and quality-check run",
	Long: `Execute one extract and quality-check run.

Exits 1 when extraction failed and the load stage was skipped. A failed load
is logged but still exits 0, since staged data was committed.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := migrate(ctx); err != nil {
			return err
		}
	}

	p, cleanup := newPipeline()
	defer cleanup()

	run, err := p.RunOnce(ctx)
	if err != nil {
		logger.Error("weather ETL aborted", "run_id", run.ID, "error", err)
		return err
	}
	if run.LoadErr != nil {
		logger.Warn("weather ETL finished with load failure", "run_id", run.ID, "snapshot_id", run.Snapshot.String())
		return nil
	}
	logger.Info("weather ETL finished", "run_id", run.ID, "snapshot_id", run.Snapshot.String())
	return nil
}
