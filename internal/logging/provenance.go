package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table. One row is
// written per round decision, batch refresh and final verdict.
type ProvenanceEntry struct {
	RunID        string
	Round        int
	TriggerType  string // "round" | "refresh" | "optimize" | "final" | "rollback"
	SnapshotJSON string
	ParamsJSON   string
	Decision     string // verdict, "adjust" | "no_op", or "skipped"
	Reason       string
	CreatedAt    time.Time
}
// #endregion provenance-entry

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (run_id, round, trigger_type, snapshot_json, params_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Round,
		entry.TriggerType,
		nullIfEmpty(entry.SnapshotJSON),
		nullIfEmpty(entry.ParamsJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}
// #endregion log-decision

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
