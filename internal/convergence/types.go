package convergence

// #region verdict
// Verdict is the detector's stop decision.
type Verdict string

const (
	VerdictContinue         Verdict = "continue"
	VerdictConvergedTarget  Verdict = "converged_target"
	VerdictConvergedPlateau Verdict = "converged_plateau"
	VerdictExhausted        Verdict = "exhausted"
	// VerdictAborted marks a run stopped before any stop rule fired.
	VerdictAborted Verdict = "aborted"
)

// Converged reports whether v is one of the converged verdicts.
func (v Verdict) Converged() bool {
	return v == VerdictConvergedTarget || v == VerdictConvergedPlateau
}

// Terminal reports whether the run should stop.
func (v Verdict) Terminal() bool {
	return v != VerdictContinue
}
// #endregion verdict

// #region weights
// Weights define the composite score.
type Weights struct {
	Accuracy     float64 `json:"accuracy" yaml:"accuracy" toml:"accuracy"`
	Completeness float64 `json:"completeness" yaml:"completeness" toml:"completeness"`
	Integrity    float64 `json:"argument_integrity" yaml:"argument_integrity" toml:"argument_integrity"`
}

// DefaultWeights weights accuracy at half and splits the rest evenly.
func DefaultWeights() Weights {
	return Weights{Accuracy: 0.5, Completeness: 0.25, Integrity: 0.25}
}
// #endregion weights

// #region config
// Config holds the stop thresholds.
type Config struct {
	TargetAccuracy       float64
	ConvergenceThreshold float64
	Patience             int
	MaxRounds            int
	CompletenessFloor    float64
	IntegrityFloor       float64
	Weights              Weights
}

// DefaultConfig mirrors the evolution defaults.
func DefaultConfig() Config {
	return Config{
		TargetAccuracy:       0.85,
		ConvergenceThreshold: 0.02,
		Patience:             10,
		MaxRounds:            50,
		CompletenessFloor:    0.6,
		IntegrityFloor:       0.6,
		Weights:              DefaultWeights(),
	}
}
// #endregion config

// #region decision
// Decision is a verdict with the rule that produced it.
type Decision struct {
	Verdict   Verdict
	Reason    string
	Composite float64
}
// #endregion decision
