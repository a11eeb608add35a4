package rules_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/refine"
	"github.com/danielpatrickdp/triplet-evolve/internal/rules"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

const parkRun = "小明每天早上在公园跑步。"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want triplet.Triplet
	}{
		{
			parkRun,
			triplet.Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{
				triplet.ModTime: "每天早上", triplet.ModLocation: "在公园",
			}},
		},
		{
			"小红吃了一个苹果。",
			triplet.Triplet{Subject: "小红", Predicate: "吃", Object: "一个苹果"},
		},
		{
			"老师昨天在教室认真地讲课",
			triplet.Triplet{Subject: "老师", Predicate: "讲课", Modifiers: map[string]string{
				triplet.ModTime: "昨天", triplet.ModLocation: "在教室", triplet.ModManner: "认真地",
			}},
		},
		{
			"John reads a book in the library every day.",
			triplet.Triplet{Subject: "John", Predicate: "reads", Object: "a book", Modifiers: map[string]string{
				triplet.ModTime: "every day", triplet.ModLocation: "in the library",
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, rules.Parse(tt.in)); diff != "" {
				t.Errorf("Parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidatorAcceptsFullParse(t *testing.T) {
	v := rules.NewValidator()
	res, err := v.Validate(context.Background(), parkRun, rules.Parse(parkRun))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, issues: %v", res.Issues)
	}
}

func TestValidatorFlagsMissingTime(t *testing.T) {
	v := rules.NewValidator()
	tr := triplet.Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{triplet.ModLocation: "在公园"}}
	res, err := v.Validate(context.Background(), parkRun, tr)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("expected invalid")
	}
	found := false
	for _, is := range res.Issues {
		if is.Layer == triplet.LayerCompleteness && is.Message == "missing time modifier" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing-time issue not reported: %v", res.Issues)
	}
}

func TestValidatorLayersInOrder(t *testing.T) {
	v := rules.NewValidator()
	res, err := v.Validate(context.Background(), parkRun, triplet.Triplet{})
	if err != nil {
		t.Fatal(err)
	}
	order := map[triplet.Layer]int{
		triplet.LayerStructural:     0,
		triplet.LayerCompleteness:   1,
		triplet.LayerRecoverability: 2,
	}
	last := -1
	for _, is := range res.Issues {
		if order[is.Layer] < last {
			t.Fatalf("issues out of layer order: %v", res.Issues)
		}
		last = order[is.Layer]
	}
	if len(res.Issues) == 0 || res.Issues[0].Message != "missing predicate" {
		t.Errorf("first issue = %v", res.Issues)
	}
}

func TestStrictnessRelaxesModifiers(t *testing.T) {
	v := rules.NewValidator()
	tr := triplet.Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{triplet.ModTime: "每天早上"}}

	res, _ := v.Validate(context.Background(), parkRun, tr)
	if res.Valid {
		t.Fatal("default strictness should require the location modifier")
	}

	p := optimize.DefaultParameterSet()
	p.RuleStrictness = 0.2
	p.ArgumentCheck = 0
	v.Tune(p)
	res, _ = v.Validate(context.Background(), parkRun, tr)
	for _, is := range res.Issues {
		if strings.Contains(is.Message, "location") {
			t.Errorf("relaxed strictness still requires location: %v", res.Issues)
		}
	}
}

func TestQuantifierCheckFollowsArgumentKnob(t *testing.T) {
	sentence := "小红吃了一个苹果。"
	tr := triplet.Triplet{Subject: "小红", Predicate: "吃", Object: "苹果"}
	chk := rules.NewRecoverabilityChecker()

	p := optimize.DefaultParameterSet()
	p.ArgumentCheck = 0.4
	chk.Tune(p)
	issues, _ := chk.Check(context.Background(), sentence, tr)
	for _, is := range issues {
		if strings.Contains(is.Message, "quantifier") {
			t.Fatalf("quantifier check active below threshold: %v", issues)
		}
	}

	p.ArgumentCheck = 0.9
	chk.Tune(p)
	issues, _ = chk.Check(context.Background(), sentence, tr)
	found := false
	for _, is := range issues {
		if strings.Contains(is.Message, "quantifier") && triplet.Classify(is) == triplet.CategoryIncompleteArgument {
			found = true
		}
	}
	if !found {
		t.Errorf("quantifier issue not raised: %v", issues)
	}
}

func TestCoverage(t *testing.T) {
	full := rules.Parse(parkRun)
	if got := rules.Coverage(parkRun, full); got != 1 {
		t.Errorf("full parse coverage = %v, want 1", got)
	}
	if got := rules.Coverage(parkRun, triplet.Triplet{Predicate: "跑步"}); got >= 0.5 {
		t.Errorf("predicate-only coverage = %v, want < 0.5", got)
	}
}

func TestExtractorReviseFillsRequestedSlot(t *testing.T) {
	ex := rules.NewExtractor(rules.WithModifiers(triplet.ModLocation))
	ctx := context.Background()

	first, err := ex.Extract(ctx, parkRun)
	if err != nil {
		t.Fatal(err)
	}
	if first.HasModifier(triplet.ModTime) || !first.HasModifier(triplet.ModLocation) {
		t.Fatalf("first pass modifiers = %v", first.Modifiers)
	}

	next, err := ex.Revise(ctx, parkRun, first, "[semantic_completeness] missing time modifier")
	if err != nil {
		t.Fatal(err)
	}
	if next.Modifiers[triplet.ModTime] != "每天早上" {
		t.Errorf("revised time = %q", next.Modifiers[triplet.ModTime])
	}
	if first.HasModifier(triplet.ModTime) {
		t.Error("revise mutated the previous triplet")
	}
}

func TestExtractorHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rules.NewExtractor().Extract(ctx, parkRun); err == nil {
		t.Error("expected error on cancelled context")
	}
}

// Single pass: the full extractor satisfies the rule validator at once.
func TestControllerSinglePass(t *testing.T) {
	c := refine.NewController(rules.NewExtractor(), rules.NewValidator(), refine.Config{CallTimeout: time.Second})
	res := c.Process(context.Background(), parkRun, 3)

	if res.Status != triplet.StatusSuccess || len(res.Iterations) != 1 {
		t.Fatalf("status=%s iterations=%d issues=%v", res.Status, len(res.Iterations), res.Iterations)
	}
	want := triplet.Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{
		triplet.ModTime: "每天早上", triplet.ModLocation: "在公园",
	}}
	if diff := cmp.Diff(want, res.Final); diff != "" {
		t.Errorf("final triplet (-want +got):\n%s", diff)
	}
}

// Revision: a location-only first pass is repaired after one round of feedback.
func TestControllerRevisesMissingTime(t *testing.T) {
	ex := rules.NewExtractor(rules.WithModifiers(triplet.ModLocation))
	c := refine.NewController(ex, rules.NewValidator(), refine.Config{CallTimeout: time.Second})
	res := c.Process(context.Background(), parkRun, 3)

	if res.Status != triplet.StatusSuccess || len(res.Iterations) != 2 {
		t.Fatalf("status=%s iterations=%d", res.Status, len(res.Iterations))
	}
	if !strings.Contains(res.Iterations[0].Feedback, "missing time modifier") {
		t.Errorf("feedback = %q", res.Iterations[0].Feedback)
	}
}
