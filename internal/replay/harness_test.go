package replay

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
)

// helper: history with fixed completeness and integrity.
func history(comp float64, accs ...float64) []metrics.Snapshot {
	out := make([]metrics.Snapshot, len(accs))
	for i, a := range accs {
		out[i] = metrics.Snapshot{Round: i + 1, Accuracy: a, Completeness: comp, ArgumentIntegrity: comp}
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// 1. Target path: stops at the first round meeting the target.
func TestReplay_TargetStops(t *testing.T) {
	results := Replay(history(0.8, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95), optimize.DefaultParameterSet(), DefaultReplayConfig())

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	last := results[4]
	if last.Verdict != convergence.VerdictConvergedTarget {
		t.Errorf("expected converged_target, got %s", last.Verdict)
	}
	if last.Proposal != nil {
		t.Error("expected no proposal on the stopping round")
	}
	for _, r := range results[:4] {
		if r.Proposal == nil {
			t.Fatalf("round %d: expected proposal", r.Round)
		}
	}
}

// 2. Params carried forward: each round runs with the previous proposal.
func TestReplay_ParamsCarryForward(t *testing.T) {
	start := optimize.DefaultParameterSet()
	results := Replay(history(0.8, 0.5, 0.6, 0.7), start, DefaultReplayConfig())

	if results[0].Params != start {
		t.Errorf("round 1 should run with start params")
	}
	for i := 1; i < len(results); i++ {
		if results[i].Params != results[i-1].Proposal.Params {
			t.Errorf("round %d params not carried from round %d proposal", results[i].Round, results[i-1].Round)
		}
	}
	// accuracy bottleneck three rounds running: 0.1, 0.05, 0.025 off temperature
	got := Summarize(results).FinalParams.Temperature
	if !approx(got, start.Temperature-0.175) {
		t.Errorf("expected temperature %.4f, got %.4f", start.Temperature-0.175, got)
	}
}

// 3. History runs out before any stop rule.
func TestReplay_NoStop(t *testing.T) {
	results := Replay(history(0.8, 0.3, 0.5, 0.7), optimize.DefaultParameterSet(), DefaultReplayConfig())
	s := Summarize(results)

	if s.StopRound != 0 {
		t.Errorf("expected no stop round, got %d", s.StopRound)
	}
	if s.FinalVerdict != convergence.VerdictContinue {
		t.Errorf("expected continue, got %s", s.FinalVerdict)
	}
	if s.Adjustments != 3 {
		t.Errorf("expected 3 adjustments, got %d", s.Adjustments)
	}
}

// 4. Unchanged snapshot yields a no-op proposal.
func TestReplay_UnchangedSnapshotNoOp(t *testing.T) {
	results := Replay(history(0.8, 0.5, 0.5), optimize.DefaultParameterSet(), DefaultReplayConfig())
	if results[1].Proposal.Action != "no_op" {
		t.Errorf("expected no_op, got %s", results[1].Proposal.Action)
	}
	if s := Summarize(results); s.NoOps != 1 || s.Adjustments != 1 {
		t.Errorf("expected 1 adjust and 1 no_op, got %+v", s)
	}
}

// 5. Exhausted at MaxRounds.
func TestReplay_Exhausted(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.Detector.MaxRounds = 2
	results := Replay(history(0.8, 0.3, 0.5, 0.7), optimize.DefaultParameterSet(), cfg)

	s := Summarize(results)
	if s.FinalVerdict != convergence.VerdictExhausted || s.StopRound != 2 {
		t.Errorf("expected exhausted at 2, got %s at %d", s.FinalVerdict, s.StopRound)
	}
	if s.BestRound != 2 {
		t.Errorf("expected best round 2, got %d", s.BestRound)
	}
}

// 6. Empty history.
func TestReplay_Empty(t *testing.T) {
	results := Replay(nil, optimize.DefaultParameterSet(), DefaultReplayConfig())
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if s := Summarize(results); s.TotalRounds != 0 || s.FinalVerdict != "" {
		t.Errorf("unexpected summary %+v", s)
	}
}
