package agent

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region checker
// Checker is one independent validation layer.
type Checker interface {
	Name() string
	Check(ctx context.Context, sentence string, t triplet.Triplet) ([]triplet.Issue, error)
}
// #endregion checker

// #region chain
// confidencePenalty is subtracted per issue; minConfidence floors an invalid verdict.
const (
	confidencePenalty = 0.2
	minConfidence     = 0.1
)

// Chain runs checkers in order and merges their issues into one verdict.
// The triplet is valid only when no checker raised an issue.
type Chain struct {
	checkers []Checker
}

// NewChain builds a Chain. Checkers run in the given order.
func NewChain(checkers ...Checker) *Chain {
	return &Chain{checkers: checkers}
}

// Validate implements Validator.
func (c *Chain) Validate(ctx context.Context, sentence string, t triplet.Triplet) (triplet.ValidationResult, error) {
	var issues []triplet.Issue
	for _, ch := range c.checkers {
		if err := ctx.Err(); err != nil {
			return triplet.ValidationResult{}, err
		}
		found, err := ch.Check(ctx, sentence, t)
		if err != nil {
			return triplet.ValidationResult{}, fmt.Errorf("%s check: %w", ch.Name(), err)
		}
		issues = append(issues, found...)
	}

	if len(issues) == 0 {
		return triplet.ValidationResult{Valid: true, Confidence: 1}, nil
	}
	conf := 1 - confidencePenalty*float64(len(issues))
	if conf < minConfidence {
		conf = minConfidence
	}
	return triplet.ValidationResult{Valid: false, Confidence: conf, Issues: issues}, nil
}

// Tune forwards the parameter set to every tunable checker.
func (c *Chain) Tune(params optimize.ParameterSet) {
	for _, ch := range c.checkers {
		if tc, ok := ch.(Tunable); ok {
			tc.Tune(params)
		}
	}
}

// Names lists the checker names in execution order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.checkers))
	for i, ch := range c.checkers {
		out[i] = ch.Name()
	}
	return out
}
// #endregion chain
