package metrics

import (
	"maps"

	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region snapshot
// Snapshot is the scored summary of one round. It is never mutated after
// creation.
type Snapshot struct {
	Round             int                      `json:"round"`
	Accuracy          float64                  `json:"accuracy"`
	Precision         float64                  `json:"precision"`
	Recall            float64                  `json:"recall"`
	F1                float64                  `json:"f1"`
	Completeness      float64                  `json:"completeness"`
	Consistency       float64                  `json:"consistency"`
	ArgumentIntegrity float64                  `json:"argument_integrity"`
	ErrorDistribution map[triplet.Category]int `json:"error_distribution"`

	Samples    int `json:"samples"`
	Scored     int `json:"scored"`
	Errored    int `json:"errored"`
	Referenced int `json:"referenced"`
}

// SameMetrics reports whether two snapshots carry identical scores and error
// counts. Round and bookkeeping counts are ignored.
func (s Snapshot) SameMetrics(o Snapshot) bool {
	return s.Accuracy == o.Accuracy &&
		s.Precision == o.Precision &&
		s.Recall == o.Recall &&
		s.F1 == o.F1 &&
		s.Completeness == o.Completeness &&
		s.Consistency == o.Consistency &&
		s.ArgumentIntegrity == o.ArgumentIntegrity &&
		maps.Equal(s.ErrorDistribution, o.ErrorDistribution)
}

// Clone returns a copy that shares no map with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.ErrorDistribution = maps.Clone(s.ErrorDistribution)
	return out
}
// #endregion snapshot

// #region sample
// Sample is one scored input: a sentence run plus an optional curated
// reference. Weight scales its contribution; zero or negative counts as 1.
type Sample struct {
	Result    triplet.ProcessResult
	Reference *triplet.Triplet
	Weight    float64
}

// NewSample builds a unit-weight sample.
func NewSample(res triplet.ProcessResult, ref *triplet.Triplet) Sample {
	return Sample{Result: res, Reference: ref, Weight: 1}
}
// #endregion sample

// #region options
// AccuracySource selects how accuracy is computed.
type AccuracySource string

const (
	// SourceAuto uses reference accuracy when any scored sample carries a
	// reference and consistency otherwise.
	SourceAuto        AccuracySource = "auto"
	SourceReference   AccuracySource = "reference"
	SourceConsistency AccuracySource = "consistency"
)

// Options configures an Aggregator.
type Options struct {
	Comparator Comparator
	Source     AccuracySource
}

// DefaultOptions uses normalized character-Jaccard matching at 0.8 and the
// auto accuracy source.
func DefaultOptions() Options {
	return Options{
		Comparator: NormalizedComparator{Threshold: DefaultMatchThreshold},
		Source:     SourceAuto,
	}
}
// #endregion options
