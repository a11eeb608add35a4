package store

import (
	"time"

	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
)

// #region run-record
// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time // zero while running
	ConfigJSON    string
	Verdict       convergence.Verdict
	Reason        string
	TotalRounds   int
	BestRound     int
	BestComposite float64
	ReportJSON    string
}

// Finished reports whether FinishRun was recorded.
func (r RunRecord) Finished() bool { return !r.FinishedAt.IsZero() }
// #endregion run-record

// #region param-version
// ParamVersion is a parameter set as used in one round. Versions of a run
// form a chain through ParentID.
type ParamVersion struct {
	VersionID string
	ParentID  string
	RunID     string
	Round     int
	Params    optimize.ParameterSet
	Composite float64
	CreatedAt time.Time
}
// #endregion param-version
