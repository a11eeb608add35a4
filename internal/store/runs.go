package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/evolution"
	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
)

// #region begin-run
// BeginRun implements evolution.Recorder.
func (s *Store) BeginRun(runID string, cfg evolution.Config, params optimize.ParameterSet) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (run_id, started_at, config_json) VALUES (?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339Nano), string(cfgJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	s.logger.Debug("run started", "run_id", runID, "params", params)
	return nil
}
// #endregion begin-run

// #region record-round
// RecordRound implements evolution.Recorder. The round's metrics and the
// parameter version it ran with are written in one transaction; provenance
// rows follow.
func (s *Store) RecordRound(runID string, rec evolution.RoundRecord) error {
	snapJSON, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	paramsJSON, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO round_metrics (run_id, round, snapshot_json, composite, verdict, batch_size, evaluated, refresh, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Round, string(snapJSON), rec.Decision.Composite, string(rec.Decision.Verdict),
		rec.BatchSize, rec.Evaluated, string(rec.Refresh), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert round: %w", err)
	}

	var parent sql.NullString
	err = tx.QueryRow(
		`SELECT version_id FROM param_versions WHERE run_id = ? ORDER BY round DESC LIMIT 1`, runID,
	).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("find parent version: %w", err)
	}
	var parentPtr any
	if parent.Valid {
		parentPtr = parent.String
	}

	_, err = tx.Exec(
		`INSERT INTO param_versions (version_id, parent_id, run_id, round, params_json, composite, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), parentPtr, runID, rec.Round, string(paramsJSON), rec.Decision.Composite,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	entries := []logging.ProvenanceEntry{{
		RunID:        runID,
		Round:        rec.Round,
		TriggerType:  "round",
		SnapshotJSON: string(snapJSON),
		ParamsJSON:   string(paramsJSON),
		Decision:     string(rec.Decision.Verdict),
		Reason:       rec.Decision.Reason,
		CreatedAt:    now,
	}}
	if rec.Refresh != "" && rec.Refresh != evolution.RefreshNone {
		entries = append(entries, logging.ProvenanceEntry{
			RunID:       runID,
			Round:       rec.Round,
			TriggerType: "refresh",
			Decision:    string(rec.Refresh),
			Reason:      fmt.Sprintf("batch size %d", rec.BatchSize),
			CreatedAt:   now,
		})
	}
	if p := rec.Proposal; p != nil {
		next, _ := json.Marshal(p.Params)
		entries = append(entries, logging.ProvenanceEntry{
			RunID:       runID,
			Round:       rec.Round,
			TriggerType: "optimize",
			ParamsJSON:  string(next),
			Decision:    p.Action,
			Reason:      p.Reason,
			CreatedAt:   now,
		})
	}
	for _, e := range entries {
		if err := logging.LogDecision(s.db, e); err != nil {
			return err
		}
	}
	return nil
}
// #endregion record-round

// #region finish-run
// FinishRun implements evolution.Recorder. When the run's best round beats
// the active parameter version, the active pointer moves to it and the
// promotion is pushed onto active_history.
func (s *Store) FinishRun(runID string, report evolution.Report) error {
	var buf bytes.Buffer
	if err := evolution.EncodeReport(&buf, report); err != nil {
		return err
	}
	bestComposite := 0.0

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var bestVersion string
	if report.BestRound > 0 {
		err := tx.QueryRow(
			`SELECT version_id, composite FROM param_versions WHERE run_id = ? AND round = ?`,
			runID, report.BestRound,
		).Scan(&bestVersion, &bestComposite)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find best version: %w", err)
		}
	}

	_, err = tx.Exec(
		`UPDATE runs SET finished_at = ?, verdict = ?, reason = ?, total_rounds = ?, best_round = ?,
		 best_composite = ?, report_json = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), string(report.Verdict), nullIfEmpty(report.Reason),
		report.TotalRounds, report.BestRound, bestComposite, buf.String(), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	promoted := false
	if bestVersion != "" {
		var (
			activeID        sql.NullString
			activeComposite sql.NullFloat64
		)
		err := tx.QueryRow(
			`SELECT a.version_id, p.composite FROM active_params a JOIN param_versions p ON p.version_id = a.version_id WHERE a.id = 1`,
		).Scan(&activeID, &activeComposite)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get active: %w", err)
		}
		if !activeComposite.Valid || bestComposite > activeComposite.Float64 {
			_, err = tx.Exec(
				`INSERT INTO active_params (id, version_id) VALUES (1, ?)
				 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
				bestVersion,
			)
			if err != nil {
				return fmt.Errorf("set active: %w", err)
			}
			_, err = tx.Exec(
				`INSERT INTO active_history (version_id, previous_id, promoted_at) VALUES (?, ?, ?)`,
				bestVersion, nullIfEmpty(activeID.String), time.Now().UTC().Format(time.RFC3339Nano),
			)
			if err != nil {
				return fmt.Errorf("record promotion: %w", err)
			}
			promoted = true
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	reason := report.Reason
	if promoted {
		reason += fmt.Sprintf("; round %d parameters promoted", report.BestRound)
	}
	return logging.LogDecision(s.db, logging.ProvenanceEntry{
		RunID:       runID,
		Round:       report.TotalRounds,
		TriggerType: "final",
		Decision:    string(report.Verdict),
		Reason:      reason,
	})
}
// #endregion finish-run

// #region queries
// GetRun reads one run.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT run_id, started_at, finished_at, config_json, verdict, reason, total_rounds, best_round,
		 best_composite, report_json FROM runs WHERE run_id = ?`, runID,
	)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, started_at, finished_at, config_json, verdict, reason, total_rounds, best_round,
		 best_composite, report_json FROM runs ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Report decodes the stored final report of a finished run.
func (s *Store) Report(runID string) (evolution.Report, error) {
	rec, err := s.GetRun(runID)
	if err != nil {
		return evolution.Report{}, err
	}
	if rec.ReportJSON == "" {
		return evolution.Report{}, fmt.Errorf("run %s has no report", runID)
	}
	var rr evolution.ReportRecord
	if err := json.Unmarshal([]byte(rec.ReportJSON), &rr); err != nil {
		return evolution.Report{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return rr.Report(), nil
}

// RoundHistory returns a run's snapshots in round order.
func (s *Store) RoundHistory(runID string) ([]metrics.Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT snapshot_json FROM round_metrics WHERE run_id = ? ORDER BY round`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("round history: %w", err)
	}
	defer rows.Close()

	var out []metrics.Snapshot
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var snap metrics.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Provenance returns a run's decision log in insertion order.
func (s *Store) Provenance(runID string) ([]logging.ProvenanceEntry, error) {
	rows, err := s.db.Query(
		`SELECT run_id, round, trigger_type, snapshot_json, params_json, decision, reason, created_at
		 FROM provenance_log WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("provenance: %w", err)
	}
	defer rows.Close()

	var out []logging.ProvenanceEntry
	for rows.Next() {
		var (
			e                    logging.ProvenanceEntry
			snap, params, reason sql.NullString
			createdStr           string
		)
		if err := rows.Scan(&e.RunID, &e.Round, &e.TriggerType, &snap, &params, &e.Decision, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.SnapshotJSON = snap.String
		e.ParamsJSON = params.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		rec                            RunRecord
		startedStr                     string
		finished, verdict, reason, rep sql.NullString
	)
	err := sc.Scan(&rec.RunID, &startedStr, &finished, &rec.ConfigJSON, &verdict, &reason,
		&rec.TotalRounds, &rec.BestRound, &rec.BestComposite, &rep)
	if err != nil {
		return RunRecord{}, err
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	if finished.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	rec.Verdict = convergence.Verdict(verdict.String)
	rec.Reason = reason.String
	rec.ReportJSON = rep.String
	return rec, nil
}
// #endregion queries

// LatestReport returns the report of the most recently finished run.
func (s *Store) LatestReport() (evolution.Report, error) {
	var runID string
	err := s.db.QueryRow(
		`SELECT run_id FROM runs WHERE report_json IS NOT NULL ORDER BY rowid DESC LIMIT 1`,
	).Scan(&runID)
	if err != nil {
		return evolution.Report{}, fmt.Errorf("latest report: %w", err)
	}
	return s.Report(runID)
}
