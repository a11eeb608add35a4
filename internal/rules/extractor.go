package rules

import (
	"context"
	"strings"

	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region extractor
// Extractor is a deterministic keyword-table extractor. It emits only the
// modifier keys it is configured for on the first pass and fills the rest
// in when validation feedback asks for them.
type Extractor struct {
	modifiers map[string]bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModifiers limits first-pass extraction to the given modifier keys.
func WithModifiers(keys ...string) Option {
	return func(e *Extractor) {
		e.modifiers = make(map[string]bool, len(keys))
		for _, k := range keys {
			e.modifiers[k] = true
		}
	}
}

// NewExtractor returns an extractor that emits every detected modifier
// unless limited with WithModifiers.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract implements agent.Extractor.
func (e *Extractor) Extract(ctx context.Context, sentence string) (triplet.Triplet, error) {
	if err := ctx.Err(); err != nil {
		return triplet.Triplet{}, err
	}
	full := Parse(sentence)
	if e.modifiers == nil {
		return full, nil
	}
	out := full.Clone()
	out.Modifiers = nil
	for k, v := range full.Modifiers {
		if e.modifiers[k] {
			out = out.WithModifier(k, v)
		}
	}
	return out, nil
}
// #endregion extractor

// #region revise
// feedbackSlots maps feedback keywords to the slot they ask to repair.
var feedbackSlots = []struct {
	slot  string
	words []string
}{
	{triplet.ModTime, []string{"time", "时间"}},
	{triplet.ModLocation, []string{"location", "地点", "place"}},
	{triplet.ModManner, []string{"manner", "方式"}},
	{"subject", []string{"subject", "主语"}},
	{"object", []string{"object", "宾语", "quantifier"}},
	{"predicate", []string{"predicate", "谓词"}},
}

// Revise repairs the slots named in feedback from a fresh parse. When the
// feedback names no known slot the fresh parse replaces prev entirely.
func (e *Extractor) Revise(ctx context.Context, sentence string, prev triplet.Triplet, feedback string) (triplet.Triplet, error) {
	if err := ctx.Err(); err != nil {
		return triplet.Triplet{}, err
	}
	full := Parse(sentence)
	lower := strings.ToLower(feedback)

	next := prev.Clone()
	touched := false
	for _, fs := range feedbackSlots {
		hit := false
		for _, w := range fs.words {
			if strings.Contains(lower, w) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		touched = true
		switch fs.slot {
		case "subject":
			next.Subject = full.Subject
		case "object":
			next.Object = full.Object
		case "predicate":
			next.Predicate = full.Predicate
		default:
			if v, ok := full.Modifiers[fs.slot]; ok {
				next = next.WithModifier(fs.slot, v)
			}
		}
	}
	if !touched {
		return full, nil
	}
	return next, nil
}
// #endregion revise
