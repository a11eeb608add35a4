package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region contracts
// Extractor proposes and revises triplets for a sentence.
type Extractor interface {
	Extract(ctx context.Context, sentence string) (triplet.Triplet, error)
	Revise(ctx context.Context, sentence string, prev triplet.Triplet, feedback string) (triplet.Triplet, error)
}

// Validator judges a proposed triplet.
type Validator interface {
	Validate(ctx context.Context, sentence string, t triplet.Triplet) (triplet.ValidationResult, error)
}

// Tunable collaborators receive the active parameter set between rounds.
type Tunable interface {
	Tune(params optimize.ParameterSet)
}
// #endregion contracts

// #region faults
var (
	ErrExtraction = errors.New("extraction fault")
	ErrValidation = errors.New("validation fault")
	ErrTimeout    = errors.New("validation timeout")
)

// Fault wraps a collaborator failure with its kind so callers can match it
// with errors.Is against ErrExtraction, ErrValidation or ErrTimeout.
type Fault struct {
	Kind error
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %v", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", f.Op, f.Kind, f.Err)
}

func (f *Fault) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// NewFault builds a Fault for op.
func NewFault(kind error, op string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Err: err}
}
// #endregion faults
