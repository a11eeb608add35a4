package metrics

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

var runTriplet = triplet.Triplet{
	Subject:   "小明",
	Predicate: "跑步",
	Modifiers: map[string]string{triplet.ModTime: "每天早上", triplet.ModLocation: "在公园"},
}

func success(sentence string, tr triplet.Triplet, issues ...triplet.Issue) triplet.ProcessResult {
	v := triplet.ValidationResult{Valid: len(issues) == 0, Confidence: 1, Issues: issues}
	st := triplet.StatusSuccess
	if len(issues) > 0 {
		st = triplet.StatusExhausted
	}
	return triplet.ProcessResult{
		Sentence:   sentence,
		Iterations: []triplet.IterationRecord{{Index: 1, Triplet: tr, Validation: v}},
		Final:      tr,
		IsValid:    len(issues) == 0,
		Status:     st,
	}
}

func mixedSamples() []Sample {
	ref := runTriplet
	noTime := triplet.Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{triplet.ModLocation: "在公园"}}
	wrongSubj := runTriplet.WithSubject("小红")
	return []Sample{
		NewSample(success("s1", runTriplet), &ref),
		NewSample(success("s2", noTime, triplet.Issue{Layer: triplet.LayerCompleteness, Message: "missing time modifier"}), &ref),
		NewSample(success("s3", wrongSubj), &ref),
		NewSample(success("s4", runTriplet), nil),
		NewSample(success("s4", noTime), nil),
		NewSample(success("s4", runTriplet), nil),
		{Result: triplet.ProcessResult{Sentence: "s5", Status: triplet.StatusError, Err: "extract: boom"}, Weight: 1},
		{Result: success("s6", runTriplet), Reference: &ref, Weight: 0.5},
	}
}

var snapOpts = cmp.Options{cmpopts.EquateApprox(0, 1e-9)}

func TestAggregatePermutationInvariant(t *testing.T) {
	samples := mixedSamples()
	want := Aggregate(1, samples, DefaultOptions())

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]Sample(nil), samples...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Aggregate(1, shuffled, DefaultOptions())
		if diff := cmp.Diff(want, got, snapOpts); diff != "" {
			t.Fatalf("permutation %d changed snapshot (-want +got):\n%s", i, diff)
		}
	}
}

func TestAggregateSplitMergeInvariant(t *testing.T) {
	samples := mixedSamples()
	agg := New(DefaultOptions())
	want := agg.Aggregate(2, samples)

	for split := 0; split <= len(samples); split++ {
		left := agg.Reduce(samples[:split])
		right := agg.Reduce(samples[split:])
		got := agg.Snapshot(2, left.Merge(right))
		if diff := cmp.Diff(want, got, snapOpts); diff != "" {
			t.Fatalf("split at %d differs (-want +got):\n%s", split, diff)
		}
		swapped := agg.Snapshot(2, right.Merge(left))
		if diff := cmp.Diff(want, swapped, snapOpts); diff != "" {
			t.Fatalf("merge order at %d differs (-want +got):\n%s", split, diff)
		}
	}
}

func TestAggregateParallelMatchesSequential(t *testing.T) {
	var samples []Sample
	for i := 0; i < 10; i++ {
		samples = append(samples, mixedSamples()...)
	}
	agg := New(DefaultOptions())
	want := agg.Aggregate(3, samples)
	got, err := agg.AggregateParallel(context.Background(), 3, samples, 4)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got, snapOpts); diff != "" {
		t.Errorf("parallel differs (-want +got):\n%s", diff)
	}
}

func TestErroredSamplesExcludedFromScores(t *testing.T) {
	ref := runTriplet
	boom := triplet.ProcessResult{
		Sentence: "bad",
		Status:   triplet.StatusError,
		Iterations: []triplet.IterationRecord{{
			Index:      1,
			Validation: triplet.ValidationResult{Issues: []triplet.Issue{{Layer: triplet.LayerStructural, Message: "missing predicate", Category: triplet.CategoryStructural}}},
		}},
	}
	snap := Aggregate(1, []Sample{NewSample(success("ok", runTriplet), &ref), NewSample(boom, &ref)}, DefaultOptions())

	if snap.Accuracy != 1 {
		t.Errorf("accuracy = %v, want 1 (error sample excluded)", snap.Accuracy)
	}
	if snap.Errored != 1 || snap.Scored != 1 {
		t.Errorf("counts = scored %d errored %d", snap.Scored, snap.Errored)
	}
	if snap.ErrorDistribution[triplet.CategoryStructural] != 1 {
		t.Errorf("error issues not counted: %v", snap.ErrorDistribution)
	}
}

func TestReferenceScores(t *testing.T) {
	ref := runTriplet
	noTime := triplet.Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{triplet.ModLocation: "在公园"}}
	snap := Aggregate(1, []Sample{
		NewSample(success("a", runTriplet), &ref),
		NewSample(success("b", noTime), &ref),
	}, DefaultOptions())

	// slots: a -> 4 tp; b -> 3 tp, 1 fn
	if math.Abs(snap.Accuracy-0.5) > 1e-9 {
		t.Errorf("accuracy = %v, want 0.5", snap.Accuracy)
	}
	if snap.Precision != 1 {
		t.Errorf("precision = %v, want 1", snap.Precision)
	}
	if math.Abs(snap.Recall-7.0/8.0) > 1e-9 {
		t.Errorf("recall = %v, want 0.875", snap.Recall)
	}
	if math.Abs(snap.Completeness-0.75) > 1e-9 {
		t.Errorf("completeness = %v, want 0.75", snap.Completeness)
	}
	if snap.ArgumentIntegrity != 1 {
		t.Errorf("argument integrity = %v, want 1", snap.ArgumentIntegrity)
	}
}

func TestConsistencyWithoutReferences(t *testing.T) {
	other := runTriplet.WithObject("步")
	snap := Aggregate(1, []Sample{
		NewSample(success("s", runTriplet), nil),
		NewSample(success("s", runTriplet), nil),
		NewSample(success("s", other), nil),
		NewSample(success("t", runTriplet), nil),
	}, DefaultOptions())

	// s: modal 2 of 3, t: 1 of 1 -> 3/4
	if math.Abs(snap.Consistency-0.75) > 1e-9 {
		t.Errorf("consistency = %v, want 0.75", snap.Consistency)
	}
	if snap.Accuracy != snap.Consistency {
		t.Errorf("auto source without references should use consistency, got %v", snap.Accuracy)
	}
}

func TestAccuracySourceOverride(t *testing.T) {
	ref := runTriplet
	samples := []Sample{NewSample(success("a", runTriplet.WithSubject("小红")), &ref)}

	refSnap := Aggregate(1, samples, Options{Source: SourceReference})
	if refSnap.Accuracy != 0 {
		t.Errorf("reference accuracy = %v, want 0", refSnap.Accuracy)
	}
	consSnap := Aggregate(1, samples, Options{Source: SourceConsistency})
	if consSnap.Accuracy != 1 {
		t.Errorf("consistency accuracy = %v, want 1", consSnap.Accuracy)
	}
}

func TestExactComparator(t *testing.T) {
	ref := runTriplet
	variant := runTriplet.WithModifier(triplet.ModLocation, "在公园。")
	exact := Aggregate(1, []Sample{NewSample(success("a", variant), &ref)}, Options{Comparator: ExactComparator{}})
	norm := Aggregate(1, []Sample{NewSample(success("a", variant), &ref)}, DefaultOptions())
	if exact.Accuracy != 0 || norm.Accuracy != 1 {
		t.Errorf("exact=%v normalized=%v, want 0 and 1", exact.Accuracy, norm.Accuracy)
	}
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		accs []float64
		want Trend
	}{
		{[]float64{0.5}, TrendUnknown},
		{[]float64{0.5, 0.6}, TrendImproving},
		{[]float64{0.6, 0.5}, TrendDeclining},
		{[]float64{0.6, 0.62}, TrendStable},
	}
	for _, tt := range tests {
		var h []Snapshot
		for i, a := range tt.accs {
			h = append(h, Snapshot{Round: i + 1, Accuracy: a})
		}
		if got := TrendOf(h); got != tt.want {
			t.Errorf("TrendOf(%v) = %s, want %s", tt.accs, got, tt.want)
		}
	}
}
