package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

type stubChecker struct {
	name   string
	issues []triplet.Issue
	err    error
	calls  *[]string
	tuned  *optimize.ParameterSet
}

func (s stubChecker) Name() string { return s.name }

func (s stubChecker) Check(_ context.Context, _ string, _ triplet.Triplet) ([]triplet.Issue, error) {
	if s.calls != nil {
		*s.calls = append(*s.calls, s.name)
	}
	return s.issues, s.err
}

func (s stubChecker) Tune(p optimize.ParameterSet) {
	if s.tuned != nil {
		*s.tuned = p
	}
}

func TestChainRunsInOrderAndMergesIssues(t *testing.T) {
	var calls []string
	c := NewChain(
		stubChecker{name: "a", calls: &calls, issues: []triplet.Issue{{Layer: triplet.LayerStructural, Message: "first"}}},
		stubChecker{name: "b", calls: &calls},
		stubChecker{name: "c", calls: &calls, issues: []triplet.Issue{{Layer: triplet.LayerCompleteness, Message: "second"}}},
	)

	res, err := c.Validate(context.Background(), "s", triplet.Triplet{Predicate: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 3 || calls[0] != "a" || calls[2] != "c" {
		t.Fatalf("call order = %v", calls)
	}
	if res.Valid {
		t.Error("expected invalid")
	}
	if len(res.Issues) != 2 || res.Issues[0].Message != "first" || res.Issues[1].Message != "second" {
		t.Errorf("issues out of order: %v", res.Issues)
	}
	if res.Confidence < 0.59 || res.Confidence > 0.61 {
		t.Errorf("confidence = %v, want 0.6", res.Confidence)
	}
}

func TestChainValidWhenClean(t *testing.T) {
	c := NewChain(stubChecker{name: "a"}, stubChecker{name: "b"})
	res, err := c.Validate(context.Background(), "s", triplet.Triplet{Predicate: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Confidence != 1 {
		t.Errorf("got %+v", res)
	}
}

func TestChainPropagatesCheckerError(t *testing.T) {
	boom := errors.New("boom")
	c := NewChain(stubChecker{name: "deep", err: boom})
	_, err := c.Validate(context.Background(), "s", triplet.Triplet{Predicate: "p"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping boom", err)
	}
}

func TestChainTuneForwards(t *testing.T) {
	var got optimize.ParameterSet
	c := NewChain(stubChecker{name: "a", tuned: &got})
	p := optimize.DefaultParameterSet()
	p.RuleStrictness = 0.42
	c.Tune(p)
	if got.RuleStrictness != 0.42 {
		t.Errorf("tune not forwarded: %+v", got)
	}
}

func TestFaultMatching(t *testing.T) {
	cause := context.DeadlineExceeded
	f := NewFault(ErrTimeout, "validate", cause)
	if !errors.Is(f, ErrTimeout) {
		t.Error("fault should match its kind")
	}
	if !errors.Is(f, context.DeadlineExceeded) {
		t.Error("fault should match its cause")
	}
	if errors.Is(f, ErrExtraction) {
		t.Error("fault matched the wrong kind")
	}
	var target *Fault
	if !errors.As(error(f), &target) || target.Op != "validate" {
		t.Error("errors.As failed")
	}
}
