package rules

import "github.com/danielpatrickdp/triplet-evolve/internal/agent"

// NewValidator chains the structural, completeness and recoverability
// checkers, followed by any extra layers such as a model deep check.
func NewValidator(extra ...agent.Checker) *agent.Chain {
	checkers := []agent.Checker{
		NewStructuralChecker(),
		NewCompletenessChecker(),
		NewRecoverabilityChecker(),
	}
	return agent.NewChain(append(checkers, extra...)...)
}
