package replay

import (
	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
)

// #region types
// ReplayConfig bundles the detector and optimizer settings for a replay run.
type ReplayConfig struct {
	Detector  convergence.Config
	Optimizer optimize.Config
}

// DefaultReplayConfig returns the evolution defaults for both stages.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Detector:  convergence.DefaultConfig(),
		Optimizer: optimize.DefaultConfig(),
	}
}

// ReplayResult captures the decisions re-derived for one recorded round.
type ReplayResult struct {
	Round     int
	Verdict   convergence.Verdict
	Reason    string
	Composite float64

	// Params are the values the round ran with.
	Params optimize.ParameterSet

	// Proposal is nil when the verdict stopped the loop.
	Proposal *optimize.Proposal
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalRounds   int
	StopRound     int // 0 when the history ran out before a stop rule fired
	FinalVerdict  convergence.Verdict
	BestRound     int
	BestComposite float64
	Adjustments   int
	NoOps         int
	FinalParams   optimize.ParameterSet
}
// #endregion types

// #region replay
// Replay feeds a recorded snapshot history back through the detector and
// optimizer, one round at a time, starting from start. Rounds after the first
// terminal verdict are not replayed.
func Replay(history []metrics.Snapshot, start optimize.ParameterSet, config ReplayConfig) []ReplayResult {
	det := convergence.NewDetector(config.Detector)
	opt := optimize.NewOptimizer(config.Optimizer)
	params := start
	results := make([]ReplayResult, 0, len(history))

	for i := range history {
		prefix := history[:i+1]
		decision := det.Evaluate(prefix)
		res := ReplayResult{
			Round:     prefix[i].Round,
			Verdict:   decision.Verdict,
			Reason:    decision.Reason,
			Composite: decision.Composite,
			Params:    params,
		}
		if decision.Verdict.Terminal() {
			results = append(results, res)
			break
		}
		p := opt.ProposeDetailed(prefix, params)
		res.Proposal = &p
		params = p.Params
		results = append(results, res)
	}
	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalRounds: len(results)}
	for _, r := range results {
		if s.BestRound == 0 || r.Composite > s.BestComposite {
			s.BestRound = r.Round
			s.BestComposite = r.Composite
		}
		s.FinalParams = r.Params
		if r.Proposal != nil {
			s.FinalParams = r.Proposal.Params
			switch r.Proposal.Action {
			case "adjust":
				s.Adjustments++
			default:
				s.NoOps++
			}
		}
	}
	if n := len(results); n > 0 {
		last := results[n-1]
		s.FinalVerdict = last.Verdict
		if last.Verdict.Terminal() {
			s.StopRound = last.Round
		}
	}
	return s
}
// #endregion replay
