package convergence

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
)

// #region detector
// Detector decides when the evolution loop should stop.
type Detector struct {
	config Config
}

// NewDetector creates a detector. A zero weight set falls back to defaults.
func NewDetector(config Config) *Detector {
	if config.Weights == (Weights{}) {
		config.Weights = DefaultWeights()
	}
	return &Detector{config: config}
}

// Config returns the detector thresholds.
func (d *Detector) Config() Config {
	return d.config
}

// Evaluate applies the stop rules in priority order: target, plateau,
// exhausted, continue.
func (d *Detector) Evaluate(history []metrics.Snapshot) Decision {
	if len(history) == 0 {
		return Decision{Verdict: VerdictContinue, Reason: "no rounds recorded"}
	}
	latest := history[len(history)-1]
	comp := Composite(latest, d.config.Weights)

	// 1. Target reached with floors met
	if latest.Accuracy >= d.config.TargetAccuracy &&
		latest.Completeness >= d.config.CompletenessFloor &&
		latest.ArgumentIntegrity >= d.config.IntegrityFloor {
		return Decision{
			Verdict:   VerdictConvergedTarget,
			Composite: comp,
			Reason: fmt.Sprintf("accuracy %.4f >= target %.4f (completeness %.4f, integrity %.4f)",
				latest.Accuracy, d.config.TargetAccuracy, latest.Completeness, latest.ArgumentIntegrity),
		}
	}

	// 2. Composite plateau over the patience window
	if ok, maxDelta := d.plateau(history); ok {
		return Decision{
			Verdict:   VerdictConvergedPlateau,
			Composite: comp,
			Reason: fmt.Sprintf("composite moved at most %.4f over %d rounds (threshold %.4f)",
				maxDelta, d.config.Patience, d.config.ConvergenceThreshold),
		}
	}

	// 3. Round budget spent
	if d.config.MaxRounds > 0 && latest.Round >= d.config.MaxRounds {
		return Decision{
			Verdict:   VerdictExhausted,
			Composite: comp,
			Reason:    fmt.Sprintf("round %d reached max rounds %d", latest.Round, d.config.MaxRounds),
		}
	}

	return Decision{Verdict: VerdictContinue, Composite: comp, Reason: "no stop rule matched"}
}

// plateau reports whether each of the last Patience round-over-round
// composite deltas stays below the threshold.
func (d *Detector) plateau(history []metrics.Snapshot) (bool, float64) {
	p := d.config.Patience
	if p < 1 || len(history) < p+1 {
		return false, 0
	}
	window := history[len(history)-p-1:]
	var maxDelta float64
	for i := 1; i < len(window); i++ {
		delta := math.Abs(Composite(window[i], d.config.Weights) - Composite(window[i-1], d.config.Weights))
		if delta >= d.config.ConvergenceThreshold {
			return false, 0
		}
		maxDelta = math.Max(maxDelta, delta)
	}
	return true, maxDelta
}
// #endregion detector

// #region composite
// Composite is the weighted sum of accuracy, completeness and argument
// integrity.
func Composite(s metrics.Snapshot, w Weights) float64 {
	return w.Accuracy*s.Accuracy + w.Completeness*s.Completeness + w.Integrity*s.ArgumentIntegrity
}
// #endregion composite
