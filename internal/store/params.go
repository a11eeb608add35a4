package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
)

// #region get-version
// GetVersion retrieves a specific parameter version by ID.
func (s *Store) GetVersion(versionID string) (ParamVersion, error) {
	row := s.db.QueryRow(
		`SELECT version_id, parent_id, run_id, round, params_json, composite, created_at
		 FROM param_versions WHERE version_id = ?`, versionID,
	)
	v, err := scanVersion(row)
	if err != nil {
		return ParamVersion{}, fmt.Errorf("get version %s: %w", versionID, err)
	}
	return v, nil
}
// #endregion get-version

// #region get-active
// GetActive returns the currently promoted parameter version.
func (s *Store) GetActive() (ParamVersion, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_params WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return ParamVersion{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}
// #endregion get-active

// #region best-params
// BestParams implements evolution.ParamSeeder. It reports false when no
// version has been promoted yet.
func (s *Store) BestParams() (optimize.ParameterSet, bool, error) {
	v, err := s.GetActive()
	if errors.Is(err, sql.ErrNoRows) {
		return optimize.ParameterSet{}, false, nil
	}
	if err != nil {
		return optimize.ParameterSet{}, false, err
	}
	return v.Params, true, nil
}
// #endregion best-params

// #region rollback
// ErrNoPrevious is returned by Rollback when the active version was not
// promoted over an earlier one.
var ErrNoPrevious = errors.New("no previously active version")

// Rollback undoes the most recent promotion of the active version, restoring
// the version that was active before it. Repeated calls walk back through
// earlier promotions.
func (s *Store) Rollback() (ParamVersion, error) {
	current, err := s.GetActive()
	if err != nil {
		return ParamVersion{}, err
	}

	var (
		historyID  int64
		previousID sql.NullString
	)
	err = s.db.QueryRow(
		`SELECT id, previous_id FROM active_history WHERE version_id = ? ORDER BY id DESC LIMIT 1`,
		current.VersionID,
	).Scan(&historyID, &previousID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !previousID.Valid) {
		return ParamVersion{}, fmt.Errorf("rollback %s: %w", current.VersionID, ErrNoPrevious)
	}
	if err != nil {
		return ParamVersion{}, fmt.Errorf("read promotion history: %w", err)
	}
	previous, err := s.GetVersion(previousID.String)
	if err != nil {
		return ParamVersion{}, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ParamVersion{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE active_params SET version_id = ? WHERE id = 1`, previous.VersionID); err != nil {
		return ParamVersion{}, fmt.Errorf("rollback: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM active_history WHERE id = ?`, historyID); err != nil {
		return ParamVersion{}, fmt.Errorf("pop promotion: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ParamVersion{}, fmt.Errorf("commit: %w", err)
	}

	err = logging.LogDecision(s.db, logging.ProvenanceEntry{
		RunID:       current.RunID,
		Round:       current.Round,
		TriggerType: "rollback",
		ParamsJSON:  mustJSON(previous.Params),
		Decision:    "rollback",
		Reason:      fmt.Sprintf("active %s -> %s (run %s round %d)", current.VersionID, previous.VersionID, previous.RunID, previous.Round),
	})
	if err != nil {
		return ParamVersion{}, err
	}
	s.logger.Info("rolled back parameters", "from", current.VersionID, "to", previous.VersionID)
	return previous, nil
}
// #endregion rollback

// #region list-versions
// ListVersions returns the parameter versions of a run in round order.
func (s *Store) ListVersions(runID string) ([]ParamVersion, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, run_id, round, params_json, composite, created_at
		 FROM param_versions WHERE run_id = ? ORDER BY round`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []ParamVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
// #endregion list-versions

func scanVersion(sc scanner) (ParamVersion, error) {
	var (
		v          ParamVersion
		parent     sql.NullString
		paramsJSON string
		createdStr string
	)
	if err := sc.Scan(&v.VersionID, &parent, &v.RunID, &v.Round, &paramsJSON, &v.Composite, &createdStr); err != nil {
		return ParamVersion{}, err
	}
	if err := json.Unmarshal([]byte(paramsJSON), &v.Params); err != nil {
		return ParamVersion{}, fmt.Errorf("unmarshal params: %w", err)
	}
	v.ParentID = parent.String
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return v, nil
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
