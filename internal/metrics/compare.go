package metrics

import (
	"strings"

	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// DefaultMatchThreshold is the similarity at which two slot values count as
// the same entity.
const DefaultMatchThreshold = 0.8

// Comparator decides whether a predicted slot value matches a reference value.
type Comparator interface {
	Match(ref, got string) bool
}

// ExactComparator matches trimmed strings exactly.
type ExactComparator struct{}

func (ExactComparator) Match(ref, got string) bool {
	return strings.TrimSpace(ref) == strings.TrimSpace(got)
}

// NormalizedComparator matches when the character-set similarity of the
// normalized values reaches Threshold.
type NormalizedComparator struct {
	Threshold float64
}

func (c NormalizedComparator) Match(ref, got string) bool {
	return triplet.Similarity(ref, got) >= c.Threshold
}

// #region slot-match
type slotCounts struct {
	tp, fp, fn int
}

// compareSlots walks subject, predicate, object and every modifier key. A
// mismatched slot counts as both a false positive and a false negative.
func compareSlots(cmp Comparator, ref, got triplet.Triplet) slotCounts {
	var sc slotCounts
	visit := func(r, g string) {
		rOK := strings.TrimSpace(r) != ""
		gOK := strings.TrimSpace(g) != ""
		switch {
		case rOK && gOK && cmp.Match(r, g):
			sc.tp++
		case rOK && gOK:
			sc.fp++
			sc.fn++
		case gOK:
			sc.fp++
		case rOK:
			sc.fn++
		}
	}
	visit(ref.Subject, got.Subject)
	visit(ref.Predicate, got.Predicate)
	visit(ref.Object, got.Object)

	seen := make(map[string]struct{}, len(ref.Modifiers)+len(got.Modifiers))
	for k, v := range ref.Modifiers {
		seen[k] = struct{}{}
		visit(v, got.Modifiers[k])
	}
	for k, v := range got.Modifiers {
		if _, ok := seen[k]; ok {
			continue
		}
		visit("", v)
	}
	return sc
}

// modifierCoverage is the share of reference modifier keys the prediction
// fills with a matching value. A reference without modifiers is fully covered.
func modifierCoverage(cmp Comparator, ref, got triplet.Triplet) float64 {
	if len(ref.Modifiers) == 0 {
		return 1
	}
	hit := 0
	for k, v := range ref.Modifiers {
		if g, ok := got.Modifiers[k]; ok && strings.TrimSpace(g) != "" && cmp.Match(v, g) {
			hit++
		}
	}
	return float64(hit) / float64(len(ref.Modifiers))
}

// argumentsIntact reports whether every argument slot the reference fills is
// present and matching in the prediction.
func argumentsIntact(cmp Comparator, ref, got triplet.Triplet) bool {
	check := func(r, g string) bool {
		if strings.TrimSpace(r) == "" {
			return true
		}
		return strings.TrimSpace(g) != "" && cmp.Match(r, g)
	}
	return check(ref.Subject, got.Subject) && check(ref.Object, got.Object)
}
// #endregion slot-match
