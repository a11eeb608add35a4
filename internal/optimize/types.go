package optimize

import "fmt"

// #region knob
// Knob names one tunable parameter.
type Knob string

const (
	KnobTemperature    Knob = "temperature"
	KnobRuleStrictness Knob = "rule_strictness"
	KnobArgumentCheck  Knob = "argument_check"
	KnobSamplingRatio  Knob = "sampling_ratio"
)

// Knobs lists every knob in a stable order.
var Knobs = []Knob{KnobTemperature, KnobRuleStrictness, KnobArgumentCheck, KnobSamplingRatio}

// Range is the inclusive interval a knob is clamped to.
type Range struct {
	Min, Max float64
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Ranges holds the valid interval of every knob.
var Ranges = map[Knob]Range{
	KnobTemperature:    {Min: 0.05, Max: 1.5},
	KnobRuleStrictness: {Min: 0, Max: 1},
	KnobArgumentCheck:  {Min: 0, Max: 1},
	KnobSamplingRatio:  {Min: 0.1, Max: 1},
}
// #endregion knob

// #region parameter-set
// ParameterSet is the value-typed bundle of knobs handed to collaborators.
type ParameterSet struct {
	Temperature    float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	RuleStrictness float64 `json:"rule_strictness" yaml:"rule_strictness" toml:"rule_strictness"`
	ArgumentCheck  float64 `json:"argument_check" yaml:"argument_check" toml:"argument_check"`
	SamplingRatio  float64 `json:"sampling_ratio" yaml:"sampling_ratio" toml:"sampling_ratio"`
}

// DefaultParameterSet returns the starting knob values.
func DefaultParameterSet() ParameterSet {
	return ParameterSet{
		Temperature:    0.3,
		RuleStrictness: 0.7,
		ArgumentCheck:  0.5,
		SamplingRatio:  1.0,
	}
}

// Get returns the value of k.
func (p ParameterSet) Get(k Knob) float64 {
	switch k {
	case KnobTemperature:
		return p.Temperature
	case KnobRuleStrictness:
		return p.RuleStrictness
	case KnobArgumentCheck:
		return p.ArgumentCheck
	case KnobSamplingRatio:
		return p.SamplingRatio
	}
	return 0
}

// With returns a copy with k set to v clamped to its range.
func (p ParameterSet) With(k Knob, v float64) ParameterSet {
	v = Ranges[k].Clamp(v)
	switch k {
	case KnobTemperature:
		p.Temperature = v
	case KnobRuleStrictness:
		p.RuleStrictness = v
	case KnobArgumentCheck:
		p.ArgumentCheck = v
	case KnobSamplingRatio:
		p.SamplingRatio = v
	}
	return p
}

// Clamped returns a copy with every knob inside its range.
func (p ParameterSet) Clamped() ParameterSet {
	for k := range Ranges {
		p = p.With(k, p.Get(k))
	}
	return p
}

// Validate reports the first knob outside its range.
func (p ParameterSet) Validate() error {
	for _, k := range []Knob{KnobTemperature, KnobRuleStrictness, KnobArgumentCheck, KnobSamplingRatio} {
		r := Ranges[k]
		if v := p.Get(k); v < r.Min || v > r.Max {
			return fmt.Errorf("%s=%.3f outside [%.2f, %.2f]", k, v, r.Min, r.Max)
		}
	}
	return nil
}
// #endregion parameter-set

// #region bottleneck
// Bottleneck is the weakest scored dimension of a snapshot.
type Bottleneck string

const (
	BottleneckNone         Bottleneck = ""
	BottleneckAccuracy     Bottleneck = "accuracy"
	BottleneckCompleteness Bottleneck = "completeness"
	BottleneckArgument     Bottleneck = "argument_integrity"
)

// Adjustment moves one knob in a fixed direction.
type Adjustment struct {
	Knob      Knob
	Direction float64 // +1 raises, -1 lowers
}

// adjustments maps each bottleneck to the knob it moves.
var adjustments = map[Bottleneck]Adjustment{
	BottleneckAccuracy:     {Knob: KnobTemperature, Direction: -1},
	BottleneckCompleteness: {Knob: KnobRuleStrictness, Direction: -1},
	BottleneckArgument:     {Knob: KnobArgumentCheck, Direction: +1},
}
// #endregion bottleneck

// #region config
// Config controls step sizes.
type Config struct {
	BaseStep float64 // first adjustment for a new bottleneck (default 0.1)
	Decay    float64 // per-round multiplier while the bottleneck persists (default 0.5)
}

// DefaultConfig returns the default step schedule.
func DefaultConfig() Config {
	return Config{BaseStep: 0.1, Decay: 0.5}
}
// #endregion config

// #region proposal
// Proposal is the optimizer's output with the reasoning behind it.
type Proposal struct {
	Params     ParameterSet
	Bottleneck Bottleneck
	Streak     int
	Step       float64
	Action     string // "adjust" | "no_op"
	Reason     string
}
// #endregion proposal
