package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/store"
)

var inspectFlags struct {
	last    int
	runID   string
	jsonOut bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List recorded runs or show one run in detail",
	RunE:  runInspect,
}

var inspectRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the parameters that were active before the last promotion",
	RunE:  runInspectRollback,
}

func init() {
	f := inspectCmd.Flags()
	f.IntVar(&inspectFlags.last, "last", 10, "number of recent runs to list")
	f.StringVar(&inspectFlags.runID, "run", "", "show detail for this run")
	f.BoolVar(&inspectFlags.jsonOut, "json", false, "print as JSON")
	inspectCmd.AddCommand(inspectRollbackCmd)
}

func runInspect(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("inspect needs storage.db_path")
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if inspectFlags.runID != "" {
		return runDetailMode(out, st, inspectFlags.runID, inspectFlags.jsonOut)
	}
	return runListMode(out, st, inspectFlags.last, inspectFlags.jsonOut)
}

// #region list-mode

type runRow struct {
	RunID         string  `json:"run_id"`
	Verdict       string  `json:"verdict"`
	Rounds        int     `json:"rounds"`
	BestRound     int     `json:"best_round"`
	BestComposite float64 `json:"best_composite"`
	StartedAt     string  `json:"started_at"`
}

func runListMode(out io.Writer, st *store.Store, last int, jsonOut bool) error {
	runs, err := st.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]runRow, len(runs))
	for i, r := range runs {
		verdict := string(r.Verdict)
		if !r.Finished() {
			verdict = "running"
		}
		rows[len(runs)-1-i] = runRow{
			RunID:         r.RunID,
			Verdict:       verdict,
			Rounds:        r.TotalRounds,
			BestRound:     r.BestRound,
			BestComposite: r.BestComposite,
			StartedAt:     r.StartedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(out, rows)
	}

	fmt.Fprintf(out, "%-12s  %-18s  %6s  %4s  %9s  %s\n",
		"Run", "Verdict", "Rounds", "Best", "Composite", "Started")
	fmt.Fprintf(out, "%-12s+-%-18s+-%6s+-%4s+-%9s+-%s\n",
		"------------", "------------------", "------", "----", "---------", "--------------------")
	for _, r := range rows {
		fmt.Fprintf(out, "%-12s  %-18s  %6d  %4d  %9.4f  %s\n",
			shortID(r.RunID), r.Verdict, r.Rounds, r.BestRound, r.BestComposite, r.StartedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type roundRow struct {
	Round        int                    `json:"round"`
	Accuracy     float64                `json:"accuracy"`
	Completeness float64                `json:"completeness"`
	Integrity    float64                `json:"argument_integrity"`
	Composite    float64                `json:"composite"`
	Params       *optimize.ParameterSet `json:"params,omitempty"`
}

type provenanceRow struct {
	Round    int    `json:"round"`
	Trigger  string `json:"trigger"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

type detailOutput struct {
	RunID         string          `json:"run_id"`
	Verdict       string          `json:"verdict"`
	Reason        string          `json:"reason,omitempty"`
	BestRound     int             `json:"best_round"`
	BestComposite float64         `json:"best_composite"`
	Rounds        []roundRow      `json:"rounds"`
	Provenance    []provenanceRow `json:"provenance"`
}

func runDetailMode(out io.Writer, st *store.Store, runID string, jsonOut bool) error {
	run, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	history, err := st.RoundHistory(runID)
	if err != nil {
		return err
	}
	versions, err := st.ListVersions(runID)
	if err != nil {
		return err
	}
	prov, err := st.Provenance(runID)
	if err != nil {
		return err
	}

	byRound := make(map[int]optimize.ParameterSet, len(versions))
	for _, v := range versions {
		byRound[v.Round] = v.Params
	}

	d := detailOutput{
		RunID:         run.RunID,
		Verdict:       string(run.Verdict),
		Reason:        run.Reason,
		BestRound:     run.BestRound,
		BestComposite: run.BestComposite,
	}
	if !run.Finished() {
		d.Verdict = "running"
	}
	for _, s := range history {
		row := roundRow{
			Round:        s.Round,
			Accuracy:     s.Accuracy,
			Completeness: s.Completeness,
			Integrity:    s.ArgumentIntegrity,
			Composite:    convergence.Composite(s, convergence.DefaultWeights()),
		}
		if p, ok := byRound[s.Round]; ok {
			row.Params = &p
		}
		d.Rounds = append(d.Rounds, row)
	}
	for _, p := range prov {
		d.Provenance = append(d.Provenance, provenanceRow{
			Round:    p.Round,
			Trigger:  p.TriggerType,
			Decision: p.Decision,
			Reason:   p.Reason,
		})
	}

	if jsonOut {
		return printJSON(out, d)
	}

	fmt.Fprintf(out, "Run:        %s\n", d.RunID)
	fmt.Fprintf(out, "Verdict:    %s\n", d.Verdict)
	if d.Reason != "" {
		fmt.Fprintf(out, "Reason:     %s\n", d.Reason)
	}
	fmt.Fprintf(out, "Best:       round %d (%.4f)\n", d.BestRound, d.BestComposite)

	fmt.Fprintf(out, "\n%5s  %8s  %8s  %8s  %9s  %s\n",
		"Round", "Accuracy", "Complete", "Integrity", "Composite", "Params")
	for _, r := range d.Rounds {
		params := "—"
		if r.Params != nil {
			params = fmt.Sprintf("temp=%.3f strict=%.3f arg=%.3f sample=%.2f",
				r.Params.Temperature, r.Params.RuleStrictness, r.Params.ArgumentCheck, r.Params.SamplingRatio)
		}
		fmt.Fprintf(out, "%5d  %8.4f  %8.4f  %9.4f  %9.4f  %s\n",
			r.Round, r.Accuracy, r.Completeness, r.Integrity, r.Composite, params)
	}

	if len(d.Provenance) > 0 {
		fmt.Fprintln(out, "\nProvenance:")
		for _, p := range d.Provenance {
			fmt.Fprintf(out, "  [%3d] %-8s  %-18s  %s\n", p.Round, p.Trigger, p.Decision, p.Reason)
		}
	}
	return nil
}

// #endregion detail-mode

func runInspectRollback(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("rollback needs storage.db_path")
	}
	defer st.Close()

	v, err := st.Rollback()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Active parameters now version %s (run %s, round %d)\n",
		shortID(v.VersionID), shortID(v.RunID), v.Round)
	return nil
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
