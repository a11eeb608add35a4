package optimize

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
)

// #region optimizer
// Optimizer proposes the next parameter set from the snapshot history. It
// keeps no state between calls.
type Optimizer struct {
	cfg Config
}

// NewOptimizer builds an Optimizer. Non-positive fields take their defaults.
func NewOptimizer(cfg Config) *Optimizer {
	def := DefaultConfig()
	if cfg.BaseStep <= 0 {
		cfg.BaseStep = def.BaseStep
	}
	if cfg.Decay <= 0 || cfg.Decay > 1 {
		cfg.Decay = def.Decay
	}
	return &Optimizer{cfg: cfg}
}

// Propose returns the next parameter set.
func (o *Optimizer) Propose(history []metrics.Snapshot, current ParameterSet) ParameterSet {
	return o.ProposeDetailed(history, current).Params
}

// ProposeDetailed is Propose with the bottleneck, streak and step exposed.
func (o *Optimizer) ProposeDetailed(history []metrics.Snapshot, current ParameterSet) Proposal {
	if len(history) == 0 {
		return Proposal{Params: current, Action: "no_op", Reason: "empty history"}
	}
	n := len(history)
	latest := history[n-1]
	if n >= 2 && latest.SameMetrics(history[n-2]) {
		return Proposal{Params: current, Action: "no_op", Reason: "latest snapshot unchanged"}
	}

	b := BottleneckOf(latest)
	streak := 1
	for i := n - 2; i >= 0 && BottleneckOf(history[i]) == b; i-- {
		streak++
	}
	step := o.cfg.BaseStep * math.Pow(o.cfg.Decay, float64(streak-1))

	adj := adjustments[b]
	next := current.With(adj.Knob, current.Get(adj.Knob)+adj.Direction*step)
	next = next.With(KnobSamplingRatio, SamplingRatioFor(latest.Accuracy))

	return Proposal{
		Params:     next,
		Bottleneck: b,
		Streak:     streak,
		Step:       step,
		Action:     "adjust",
		Reason: fmt.Sprintf("bottleneck %s (streak %d): %s %.3f -> %.3f",
			b, streak, adj.Knob, current.Get(adj.Knob), next.Get(adj.Knob)),
	}
}
// #endregion optimizer

// #region helpers
// BottleneckOf returns the weakest of accuracy, completeness and argument
// integrity. Ties resolve in that order.
func BottleneckOf(s metrics.Snapshot) Bottleneck {
	b, v := BottleneckAccuracy, s.Accuracy
	if s.Completeness < v {
		b, v = BottleneckCompleteness, s.Completeness
	}
	if s.ArgumentIntegrity < v {
		b = BottleneckArgument
	}
	return b
}

// SamplingRatioFor widens the evaluation sample while accuracy is low.
func SamplingRatioFor(accuracy float64) float64 {
	switch {
	case accuracy < 0.70:
		return 1.0
	case accuracy < 0.85:
		return 0.7
	default:
		return 0.5
	}
}
// #endregion helpers
