package triplet

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"小明", "小明"},
		{" 小 明。", "小明"},
		{"ＡＢＣ", "abc"},
		{"Park, Central!", "parkcentral"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("公园", "公园。"); got != 1 {
		t.Errorf("punctuation variant: got %v, want 1", got)
	}
	if got := Similarity("", ""); got != 1 {
		t.Errorf("both empty: got %v, want 1", got)
	}
	if got := Similarity("公园", ""); got != 0 {
		t.Errorf("one empty: got %v, want 0", got)
	}
	// {在,公,园} vs {公,园} -> 2/3
	if got := Similarity("在公园", "公园"); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("partial overlap: got %v, want 0.667", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{ModTime: "每天早上"}}
	c := orig.WithModifier(ModLocation, "在公园")
	if orig.HasModifier(ModLocation) {
		t.Fatal("WithModifier mutated the receiver")
	}
	if !c.HasModifier(ModLocation) || !c.HasModifier(ModTime) {
		t.Fatalf("copy lost modifiers: %v", c.Modifiers)
	}
}

func TestKeyIgnoresSurfaceAndOrder(t *testing.T) {
	a := Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{ModTime: "每天早上", ModLocation: "在公园"}}
	b := Triplet{Subject: "小明 ", Predicate: "跑步。", Modifiers: map[string]string{ModLocation: "在公园", ModTime: "每天早上"}}
	if a.Key() != b.Key() {
		t.Errorf("keys differ:\n%s\n%s", a.Key(), b.Key())
	}
	if a.Key() == a.WithObject("操场").Key() {
		t.Error("object change did not change key")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   Issue
		want Category
	}{
		{"explicit wins", Issue{Layer: LayerCompleteness, Message: "missing time", Category: CategoryStructural}, CategoryStructural},
		{"argument keyword", Issue{Layer: LayerRecoverability, Message: "argument cannot be recovered"}, CategoryIncompleteArgument},
		{"missing keyword", Issue{Layer: LayerCompleteness, Message: "missing time modifier"}, CategoryMissingEntity},
		{"wrong keyword", Issue{Layer: LayerDeepCheck, Message: "wrong subject"}, CategoryWrongEntity},
		{"chinese missing", Issue{Layer: LayerStructural, Message: "缺少谓词"}, CategoryMissingEntity},
		{"layer fallback", Issue{Layer: LayerRecoverability, Message: "cannot rebuild sentence"}, CategoryIncompleteArgument},
		{"default structural", Issue{Layer: LayerStructural, Message: "bad shape"}, CategoryStructural},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.in); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFeedbackOrder(t *testing.T) {
	v := ValidationResult{Issues: []Issue{
		{Layer: LayerStructural, Message: "a"},
		{Layer: LayerCompleteness, Message: "b"},
	}}
	want := "[structural] a; [semantic_completeness] b"
	if diff := cmp.Diff(want, v.Feedback()); diff != "" {
		t.Errorf("feedback (-want +got):\n%s", diff)
	}
}

func TestFormat(t *testing.T) {
	tr := Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{ModTime: "每天早上", ModLocation: "在公园"}}
	want := "{location=在公园, time=每天早上} 跑步(小明, -)"
	if got := Format(tr); got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}
