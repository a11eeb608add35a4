package rules

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region knobs
// knobs holds the parameter set a checker was last tuned with.
type knobs struct {
	mu sync.RWMutex
	p  optimize.ParameterSet
}

func newKnobs() *knobs {
	return &knobs{p: optimize.DefaultParameterSet()}
}

func (k *knobs) Tune(p optimize.ParameterSet) {
	k.mu.Lock()
	k.p = p
	k.mu.Unlock()
}

func (k *knobs) get() optimize.ParameterSet {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.p
}
// #endregion knobs

// #region structural
// StructuralChecker verifies the triplet has the required slots.
type StructuralChecker struct {
	*knobs
}

// NewStructuralChecker returns a checker with default strictness.
func NewStructuralChecker() *StructuralChecker {
	return &StructuralChecker{knobs: newKnobs()}
}

func (c *StructuralChecker) Name() string { return string(triplet.LayerStructural) }

func (c *StructuralChecker) Check(_ context.Context, _ string, t triplet.Triplet) ([]triplet.Issue, error) {
	var issues []triplet.Issue
	add := func(msg string, cat triplet.Category) {
		issues = append(issues, triplet.Issue{Layer: triplet.LayerStructural, Message: msg, Category: cat})
	}

	if strings.TrimSpace(t.Predicate) == "" {
		add("missing predicate", triplet.CategoryStructural)
	}
	if strings.TrimSpace(t.Subject) == "" && c.get().RuleStrictness >= 0.5 {
		add("missing subject", triplet.CategoryMissingEntity)
	}
	for _, k := range t.ModifierKeys() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(t.Modifiers[k]) == "" {
			add(fmt.Sprintf("malformed modifier %q", k), triplet.CategoryStructural)
		}
	}
	return issues, nil
}
// #endregion structural

// #region completeness
// CompletenessChecker verifies entities come from the sentence and that
// detected time, location and manner phrases are captured. Lower
// rule_strictness relaxes which modifiers are required.
type CompletenessChecker struct {
	*knobs
}

// NewCompletenessChecker returns a checker with default strictness.
func NewCompletenessChecker() *CompletenessChecker {
	return &CompletenessChecker{knobs: newKnobs()}
}

func (c *CompletenessChecker) Name() string { return string(triplet.LayerCompleteness) }

func (c *CompletenessChecker) Check(_ context.Context, sentence string, t triplet.Triplet) ([]triplet.Issue, error) {
	var issues []triplet.Issue
	add := func(msg string, cat triplet.Category) {
		issues = append(issues, triplet.Issue{Layer: triplet.LayerCompleteness, Message: msg, Category: cat})
	}

	norm := triplet.Normalize(sentence)
	if s := triplet.Normalize(t.Subject); s != "" && !strings.Contains(norm, s) {
		add(fmt.Sprintf("subject %q not found in sentence", t.Subject), triplet.CategoryWrongEntity)
	}
	if o := triplet.Normalize(t.Object); o != "" && !strings.Contains(norm, o) {
		add(fmt.Sprintf("object %q not found in sentence", t.Object), triplet.CategoryWrongEntity)
	}

	strict := c.get().RuleStrictness
	r := trimSentence(sentence)
	ts := timeSpan(r)
	ls := locationSpan(r, ts)
	required := []struct {
		key   string
		found bool
		min   float64
	}{
		{triplet.ModTime, !ts.empty() || hasLatinTime(sentence), 0},
		{triplet.ModLocation, !ls.empty(), 0.3},
		{triplet.ModManner, !mannerSpan(r, ts, ls).empty(), 0.75},
	}
	for _, req := range required {
		if req.found && strict >= req.min && !t.HasModifier(req.key) {
			add(fmt.Sprintf("missing %s modifier", req.key), triplet.CategoryMissingEntity)
		}
	}
	return issues, nil
}

func hasLatinTime(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, w := range timeWordsEN {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
// #endregion completeness

// #region recoverability
// RecoverabilityChecker verifies the sentence can be rebuilt from the
// triplet and that arguments are kept whole. Higher argument_check demands
// more coverage.
type RecoverabilityChecker struct {
	*knobs
}

// NewRecoverabilityChecker returns a checker with default argument strictness.
func NewRecoverabilityChecker() *RecoverabilityChecker {
	return &RecoverabilityChecker{knobs: newKnobs()}
}

func (c *RecoverabilityChecker) Name() string { return string(triplet.LayerRecoverability) }

func (c *RecoverabilityChecker) Check(_ context.Context, sentence string, t triplet.Triplet) ([]triplet.Issue, error) {
	var issues []triplet.Issue
	add := func(msg string) {
		issues = append(issues, triplet.Issue{
			Layer:    triplet.LayerRecoverability,
			Message:  msg,
			Category: triplet.CategoryIncompleteArgument,
		})
	}

	norm := triplet.Normalize(sentence)
	if p := triplet.Normalize(t.Predicate); p != "" && !strings.Contains(norm, p) {
		add(fmt.Sprintf("predicate %q cannot be recovered from sentence", t.Predicate))
	}

	argCheck := c.get().ArgumentCheck
	need := 0.5 + 0.4*argCheck
	if cov := Coverage(sentence, t); cov < need {
		add(fmt.Sprintf("triplet recovers only %.0f%% of the sentence (need %.0f%%)", cov*100, need*100))
	}

	if loc := t.Modifiers[triplet.ModLocation]; loc != "" && argCheck >= 0.3 && len([]rune(loc)) < 2 {
		add(fmt.Sprintf("location modifier %q too short to keep the full place expression", loc))
	}

	if argCheck >= 0.5 && t.Object != "" && hasQuantifier(sentence) && !hasQuantifier(t.Object) {
		add(fmt.Sprintf("object %q drops its quantifier", t.Object))
	}
	return issues, nil
}

// Coverage is the share of the sentence's normalized runes that appear
// somewhere in the triplet.
func Coverage(sentence string, t triplet.Triplet) float64 {
	src := []rune(triplet.Normalize(sentence))
	if len(src) == 0 {
		return 1
	}
	var b strings.Builder
	b.WriteString(t.Subject)
	b.WriteString(t.Predicate)
	b.WriteString(t.Object)
	for _, k := range t.ModifierKeys() {
		b.WriteString(t.Modifiers[k])
	}
	have := make(map[rune]int)
	for _, r := range triplet.Normalize(b.String()) {
		have[r]++
	}
	hit := 0
	for _, r := range src {
		if have[r] > 0 {
			have[r]--
			hit++
		}
	}
	return float64(hit) / float64(len(src))
}

func hasQuantifier(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool { return slices.Contains(quantifiers, r) })
}
// #endregion recoverability
