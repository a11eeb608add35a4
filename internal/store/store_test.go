package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/evolution"
	"github.com/danielpatrickdp/triplet-evolve/internal/feedback"
	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// recordRun writes a run whose rounds have the given composites and finishes
// it with the best one.
func recordRun(t *testing.T, s *Store, runID string, composites ...float64) evolution.Report {
	t.Helper()
	params := optimize.DefaultParameterSet()
	if err := s.BeginRun(runID, evolution.DefaultConfig(), params); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	report := evolution.Report{RunID: runID, Verdict: convergence.VerdictExhausted, Reason: "max rounds"}
	best := -1.0
	for i, c := range composites {
		round := i + 1
		snap := metrics.Snapshot{Round: round, Accuracy: c, Completeness: c, ArgumentIntegrity: c}
		p := params.With(optimize.KnobTemperature, params.Temperature-0.01*float64(i))
		rec := evolution.RoundRecord{
			Round:    round,
			Snapshot: snap,
			Params:   p,
			Decision: convergence.Decision{Verdict: convergence.VerdictContinue, Composite: c},
			Refresh:  evolution.RefreshNone,
		}
		if err := s.RecordRound(runID, rec); err != nil {
			t.Fatalf("RecordRound %d: %v", round, err)
		}
		report.History = append(report.History, snap)
		if c > best {
			best = c
			report.Best = snap
			report.BestRound = round
			report.BestParams = p
		}
	}
	report.TotalRounds = len(composites)
	if err := s.FinishRun(runID, report); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	return report
}

func TestBestParamsEmpty(t *testing.T) {
	s := tempDB(t)
	_, ok, err := s.BestParams()
	if err != nil {
		t.Fatalf("BestParams: %v", err)
	}
	if ok {
		t.Fatal("expected no params on a fresh store")
	}
}

func TestRunLifecycle(t *testing.T) {
	s := tempDB(t)
	report := recordRun(t, s, "run-1", 0.5, 0.7, 0.6)

	rec, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !rec.Finished() {
		t.Fatal("expected finished run")
	}
	if rec.Verdict != convergence.VerdictExhausted || rec.TotalRounds != 3 || rec.BestRound != 2 {
		t.Fatalf("unexpected run record: %+v", rec)
	}
	if rec.BestComposite != 0.7 {
		t.Fatalf("expected best composite 0.7, got %f", rec.BestComposite)
	}

	got, err := s.Report("run-1")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if got.BestRound != report.BestRound || got.BestParams != report.BestParams {
		t.Fatalf("report mismatch: %+v", got)
	}

	history, err := s.RoundHistory("run-1")
	if err != nil {
		t.Fatalf("RoundHistory: %v", err)
	}
	if diff := cmp.Diff(report.History, history); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestVersionChain(t *testing.T) {
	s := tempDB(t)
	recordRun(t, s, "run-1", 0.5, 0.6, 0.7)

	versions, err := s.ListVersions("run-1")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	if versions[0].ParentID != "" {
		t.Fatalf("expected root version, got parent %s", versions[0].ParentID)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i].ParentID != versions[i-1].VersionID {
			t.Fatalf("version %d parent %s, want %s", i, versions[i].ParentID, versions[i-1].VersionID)
		}
	}
}

func TestFinishRunPromotesBest(t *testing.T) {
	s := tempDB(t)
	first := recordRun(t, s, "run-1", 0.5, 0.7)

	p, ok, err := s.BestParams()
	if err != nil || !ok {
		t.Fatalf("BestParams: ok=%v err=%v", ok, err)
	}
	if p != first.BestParams {
		t.Fatalf("expected %+v, got %+v", first.BestParams, p)
	}

	// A worse run leaves the active version alone.
	recordRun(t, s, "run-2", 0.4, 0.6)
	active, err := s.GetActive()
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.RunID != "run-1" {
		t.Fatalf("expected run-1 to stay active, got %s", active.RunID)
	}

	// A better one takes over.
	recordRun(t, s, "run-3", 0.8)
	active, err = s.GetActive()
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.RunID != "run-3" || active.Round != 1 {
		t.Fatalf("expected run-3 round 1 active, got %s round %d", active.RunID, active.Round)
	}
}

func TestRollback(t *testing.T) {
	s := tempDB(t)
	recordRun(t, s, "run-1", 0.5, 0.7)
	recordRun(t, s, "run-2", 0.6)
	recordRun(t, s, "run-3", 0.8)

	active, err := s.GetActive()
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.RunID != "run-3" || active.Round != 1 {
		t.Fatalf("expected run-3 round 1 active, got %s round %d", active.RunID, active.Round)
	}

	restored, err := s.Rollback()
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if restored.RunID != "run-1" || restored.Round != 2 {
		t.Fatalf("expected run-1 round 2 restored, got %s round %d", restored.RunID, restored.Round)
	}
	active, _ = s.GetActive()
	if active.VersionID != restored.VersionID {
		t.Fatalf("active %s, want %s", active.VersionID, restored.VersionID)
	}

	// run-1 was the first promotion; nothing was active before it.
	if _, err := s.Rollback(); !errors.Is(err, ErrNoPrevious) {
		t.Fatalf("expected ErrNoPrevious, got %v", err)
	}
	active, _ = s.GetActive()
	if active.VersionID != restored.VersionID {
		t.Fatal("failed rollback moved the active version")
	}

	prov, err := s.Provenance("run-3")
	if err != nil {
		t.Fatalf("Provenance: %v", err)
	}
	if last := prov[len(prov)-1]; last.TriggerType != "rollback" {
		t.Fatalf("expected rollback provenance row, got %q", last.TriggerType)
	}
}

func TestRollbackAfterRepromotion(t *testing.T) {
	s := tempDB(t)
	recordRun(t, s, "run-1", 0.5)
	recordRun(t, s, "run-2", 0.6)
	if _, err := s.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	// run-1 is active again; run-3 is promoted over it.
	recordRun(t, s, "run-3", 0.55)

	restored, err := s.Rollback()
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if restored.RunID != "run-1" {
		t.Fatalf("expected run-1 restored, got %s", restored.RunID)
	}
	if _, err := s.Rollback(); !errors.Is(err, ErrNoPrevious) {
		t.Fatalf("expected ErrNoPrevious, got %v", err)
	}
}

func TestRollbackNoActive(t *testing.T) {
	s := tempDB(t)
	if _, err := s.Rollback(); err == nil {
		t.Fatal("expected error with no active version")
	}
}

func TestProvenance(t *testing.T) {
	s := tempDB(t)
	if err := s.BeginRun("run-1", evolution.DefaultConfig(), optimize.DefaultParameterSet()); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	next := optimize.DefaultParameterSet().With(optimize.KnobTemperature, 0.2)
	err := s.RecordRound("run-1", evolution.RoundRecord{
		Round:    1,
		Params:   optimize.DefaultParameterSet(),
		Decision: convergence.Decision{Verdict: convergence.VerdictContinue, Reason: "below target", Composite: 0.5},
		Proposal: &optimize.Proposal{Params: next, Action: "adjust", Reason: "accuracy bottleneck"},
		Refresh:  evolution.RefreshApplied,
	})
	if err != nil {
		t.Fatalf("RecordRound: %v", err)
	}
	if err := s.FinishRun("run-1", evolution.Report{Verdict: convergence.VerdictAborted, Reason: "stopped", TotalRounds: 1, BestRound: 1}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	entries, err := s.Provenance("run-1")
	if err != nil {
		t.Fatalf("Provenance: %v", err)
	}
	var triggers []string
	for _, e := range entries {
		triggers = append(triggers, e.TriggerType)
	}
	want := []string{"round", "refresh", "optimize", "final"}
	if diff := cmp.Diff(want, triggers); diff != "" {
		t.Fatalf("triggers (-want +got):\n%s", diff)
	}
	if entries[2].Decision != "adjust" || entries[2].Reason != "accuracy bottleneck" {
		t.Fatalf("unexpected optimize entry: %+v", entries[2])
	}
	if entries[3].Decision != string(convergence.VerdictAborted) {
		t.Fatalf("unexpected final decision %s", entries[3].Decision)
	}
}

func TestRecordRoundUnknownRun(t *testing.T) {
	s := tempDB(t)
	err := s.RecordRound("missing", evolution.RoundRecord{Round: 1, Refresh: evolution.RefreshNone})
	if err == nil {
		t.Fatal("expected foreign key error for unknown run")
	}
}

func TestReportUnfinished(t *testing.T) {
	s := tempDB(t)
	if err := s.BeginRun("run-1", evolution.DefaultConfig(), optimize.DefaultParameterSet()); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if _, err := s.Report("run-1"); err == nil {
		t.Fatal("expected error for unfinished run")
	}
	rec, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Finished() {
		t.Fatal("run should not be finished")
	}
}

func TestListRuns(t *testing.T) {
	s := tempDB(t)
	recordRun(t, s, "run-1", 0.5)
	recordRun(t, s, "run-2", 0.6)

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestFeedbackStore(t *testing.T) {
	s := tempDB(t)
	fs := s.Feedback()

	e := feedback.Entry{
		Sentence: "小明在跑步",
		Triplet:  triplet.Triplet{Subject: "小明", Predicate: "跑步"},
		Rating:   8,
		Comment:  "good",
	}
	if err := fs.Append(e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := fs.Append(feedback.Entry{Sentence: "", Rating: 5}); !errors.Is(err, feedback.ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}

	got := fs.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].ID == "" || got[0].Comment != "good" || got[0].Triplet.Subject != "小明" {
		t.Fatalf("unexpected entry: %+v", got[0])
	}

	// Same ID again is ignored.
	if err := fs.Append(got[0]); err != nil {
		t.Fatalf("re-Append: %v", err)
	}
	if n := len(fs.Snapshot()); n != 1 {
		t.Fatalf("expected 1 entry after duplicate, got %d", n)
	}
}

func TestNewStoreInvalidPath(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestClosedDB(t *testing.T) {
	s := tempDB(t)
	recordRun(t, s, "run-1", 0.5)
	s.Close()

	if err := s.BeginRun("run-2", evolution.DefaultConfig(), optimize.DefaultParameterSet()); err == nil {
		t.Fatal("BeginRun: expected error on closed DB")
	}
	if _, _, err := s.BestParams(); err == nil {
		t.Fatal("BestParams: expected error on closed DB")
	}
	if _, err := s.ListRuns(1); err == nil {
		t.Fatal("ListRuns: expected error on closed DB")
	}
	if _, err := s.Feedback().List(); err == nil {
		t.Fatal("Feedback.List: expected error on closed DB")
	}
	if got := s.Feedback().Snapshot(); len(got) != 0 {
		t.Fatalf("Snapshot on closed DB returned %d entries", len(got))
	}
}

func TestDBAccessor(t *testing.T) {
	s := tempDB(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil DB")
	}
}
