package evolution

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/feedback"
	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
)

// #region report
// DataEvolution summarizes how the batch changed over the run.
type DataEvolution struct {
	InitialSize       int     `json:"initial_size"`
	FinalSize         int     `json:"final_size"`
	Refreshes         int     `json:"refreshes"`
	SkippedRefreshes  int     `json:"skipped_refreshes"`
	AverageQuality    float64 `json:"avg_quality"`
	InitialAvgQuality float64 `json:"initial_avg_quality"`
}

// Report is the outcome of a run. Best always holds the best snapshot
// observed, even when the run was cut short.
type Report struct {
	RunID        string
	StartedAt    time.Time
	Elapsed      time.Duration
	History      []metrics.Snapshot
	Best         metrics.Snapshot
	BestRound    int
	BestParams   optimize.ParameterSet
	Verdict      convergence.Verdict
	Reason       string
	TotalRounds  int
	Data         DataEvolution
	Satisfaction feedback.Satisfaction
}

// Converged reports whether a converged verdict ended the run.
func (r Report) Converged() bool { return r.Verdict.Converged() }

// Trend classifies the accuracy history.
func (r Report) Trend() metrics.Trend { return metrics.TrendOf(r.History) }
// #endregion report

// #region record
// ReportRecord is the persisted JSON form of a Report. Field names are
// stable.
type ReportRecord struct {
	RunID               string                `json:"run_id"`
	TotalRounds         int                   `json:"total_rounds"`
	BestRound           int                   `json:"best_round"`
	BestMetrics         metrics.Snapshot      `json:"best_metrics"`
	BestParameters      optimize.ParameterSet `json:"best_parameters"`
	ConvergenceAchieved bool                  `json:"convergence_achieved"`
	Verdict             convergence.Verdict   `json:"verdict"`
	Reason              string                `json:"reason,omitempty"`
	Trend               metrics.Trend         `json:"trend"`
	MetricsHistory      []metrics.Snapshot    `json:"metrics_history"`
	DataEvolution       DataEvolution         `json:"data_evolution"`
	Satisfaction        feedback.Satisfaction `json:"satisfaction"`
	ElapsedSeconds      float64               `json:"elapsed_seconds"`
	Timestamp           string                `json:"timestamp"`
}

// Record converts r for persistence.
func (r Report) Record() ReportRecord {
	history := r.History
	if history == nil {
		history = []metrics.Snapshot{}
	}
	return ReportRecord{
		RunID:               r.RunID,
		TotalRounds:         r.TotalRounds,
		BestRound:           r.BestRound,
		BestMetrics:         r.Best,
		BestParameters:      r.BestParams,
		ConvergenceAchieved: r.Converged(),
		Verdict:             r.Verdict,
		Reason:              r.Reason,
		Trend:               r.Trend(),
		MetricsHistory:      history,
		DataEvolution:       r.Data,
		Satisfaction:        r.Satisfaction,
		ElapsedSeconds:      r.Elapsed.Seconds(),
		Timestamp:           r.StartedAt.Add(r.Elapsed).UTC().Format(time.RFC3339),
	}
}

// Report converts a persisted record back. StartedAt is recovered from the
// timestamp and elapsed time.
func (rec ReportRecord) Report() Report {
	elapsed := time.Duration(rec.ElapsedSeconds * float64(time.Second))
	var started time.Time
	if ts, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
		started = ts.Add(-elapsed)
	}
	return Report{
		RunID:        rec.RunID,
		StartedAt:    started,
		Elapsed:      elapsed,
		History:      rec.MetricsHistory,
		Best:         rec.BestMetrics,
		BestRound:    rec.BestRound,
		BestParams:   rec.BestParameters,
		Verdict:      rec.Verdict,
		Reason:       rec.Reason,
		TotalRounds:  rec.TotalRounds,
		Data:         rec.DataEvolution,
		Satisfaction: rec.Satisfaction,
	}
}
// #endregion record

// #region io
// WriteReport writes the report as indented JSON. A path ending in .zst is
// zstd-compressed.
func WriteReport(path string, r Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return writeReport(f, r, strings.HasSuffix(path, ".zst"))
}

// writeReport encodes r to w, inside a zstd frame when compress is set. The
// frame is only complete once the encoder is closed, so its Close error is
// returned.
func writeReport(w io.Writer, r Report, compress bool) (err error) {
	if !compress {
		return EncodeReport(w, r)
	}
	zw, zerr := zstd.NewWriter(w)
	if zerr != nil {
		return fmt.Errorf("open zstd writer: %w", zerr)
	}
	defer func() {
		if cerr := zw.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("flush zstd: %w", cerr)
		}
	}()
	return EncodeReport(zw, r)
}

// EncodeReport writes the JSON record to w.
func EncodeReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.Record()); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return Report{}, fmt.Errorf("open zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	var rec ReportRecord
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return rec.Report(), nil
}
// #endregion io
