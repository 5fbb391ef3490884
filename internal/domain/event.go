package domain

import "time"

// SnapshotEvent announces that a snapshot has been staged and promoted.
// It is published after the load stage commits.
type SnapshotEvent struct {
	RunID           string     `json:"run_id"`
	SnapshotID      SnapshotID `json:"snapshot_id"`
	StagedRows      int        `json:"staged_rows"`
	FailedCities    int        `json:"failed_cities"`
	CleanRowsAdded  int64      `json:"clean_rows_added"`
	QualityLogAdded int64      `json:"quality_log_rows_added"`
	CompletedAt     time.Time  `json:"completed_at"`
}
