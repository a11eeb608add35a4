package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	StartParams     *optimize.ParameterSet  `json:"start_params,omitempty"`
	History         []metrics.Snapshot      `json:"history"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureExpectedResult captures the expected verdict per round.
type FixtureExpectedResult struct {
	Round   int                 `json:"round"`
	Verdict convergence.Verdict `json:"verdict"`
}

// FixtureConfig mirrors the detector and optimizer settings with JSON tags.
// Zero fields fall back to the evolution defaults.
type FixtureConfig struct {
	TargetAccuracy       float64 `json:"target_accuracy"`
	ConvergenceThreshold float64 `json:"convergence_threshold"`
	Patience             int     `json:"patience"`
	MaxRounds            int     `json:"max_rounds"`
	CompletenessFloor    float64 `json:"completeness_floor"`
	IntegrityFloor       float64 `json:"integrity_floor"`
	BaseStep             float64 `json:"base_step"`
	Decay                float64 `json:"decay"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.History) == 0 {
		return nil, fmt.Errorf("fixture %s has no history", path)
	}
	return &f, nil
}

// Start returns the fixture's starting parameters or the defaults.
func (f *Fixture) Start() optimize.ParameterSet {
	if f.StartParams != nil {
		return *f.StartParams
	}
	return optimize.DefaultParameterSet()
}

// ToReplayConfig converts a FixtureConfig to a ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	c := DefaultReplayConfig()
	setF := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	setF(&c.Detector.TargetAccuracy, fc.TargetAccuracy)
	setF(&c.Detector.ConvergenceThreshold, fc.ConvergenceThreshold)
	setF(&c.Detector.CompletenessFloor, fc.CompletenessFloor)
	setF(&c.Detector.IntegrityFloor, fc.IntegrityFloor)
	setF(&c.Optimizer.BaseStep, fc.BaseStep)
	setF(&c.Optimizer.Decay, fc.Decay)
	if fc.Patience != 0 {
		c.Detector.Patience = fc.Patience
	}
	if fc.MaxRounds != 0 {
		c.Detector.MaxRounds = fc.MaxRounds
	}
	return c
}

// #endregion fixture-loader
