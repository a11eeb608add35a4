package evolution

import (
	"context"
	"time"

	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region collaborators
// Processor refines one sentence. *refine.Controller satisfies it.
type Processor interface {
	Process(ctx context.Context, sentence string, maxIterations int) triplet.ProcessResult
}

// DataSource yields fresh sentences at or above a quality threshold.
type DataSource interface {
	FetchBatch(ctx context.Context, qualityThreshold float64) ([]triplet.Sentence, error)
}

// Scorer turns a round's samples into a snapshot.
type Scorer interface {
	Score(ctx context.Context, round int, samples []metrics.Sample) (metrics.Snapshot, error)
}

// Recorder persists run progress. Errors are logged, never fatal.
type Recorder interface {
	BeginRun(runID string, cfg Config, params optimize.ParameterSet) error
	RecordRound(runID string, rec RoundRecord) error
	FinishRun(runID string, report Report) error
}

// Observer receives each round as it completes.
type Observer interface {
	ObserveRound(rec RoundRecord)
}

// ParamSeeder supplies starting parameters from earlier runs.
type ParamSeeder interface {
	BestParams() (optimize.ParameterSet, bool, error)
}
// #endregion collaborators

// #region records
// RoundRecord is everything decided in one round.
type RoundRecord struct {
	Round     int                   `json:"round"`
	Snapshot  metrics.Snapshot      `json:"snapshot"`
	Params    optimize.ParameterSet `json:"params"`
	Decision  convergence.Decision  `json:"decision"`
	Proposal  *optimize.Proposal    `json:"proposal,omitempty"`
	BatchSize int                   `json:"batch_size"`
	Evaluated int                   `json:"evaluated"`
	Feedback  int                   `json:"feedback"`
	Refresh   RefreshOutcome        `json:"refresh"`
	Elapsed   time.Duration         `json:"elapsed"`
}

// RefreshOutcome describes what happened to the batch at the start of a round.
type RefreshOutcome string

const (
	RefreshNone    RefreshOutcome = "none"
	RefreshApplied RefreshOutcome = "applied"
	RefreshSkipped RefreshOutcome = "skipped"
	// RefreshEmpty is a fetch that returned nothing new; the batch is kept.
	RefreshEmpty RefreshOutcome = "empty"
)

// BestSnapshot is the best round observed so far.
type BestSnapshot struct {
	Round     int                   `json:"round"`
	Snapshot  metrics.Snapshot      `json:"snapshot"`
	Params    optimize.ParameterSet `json:"params"`
	Composite float64               `json:"composite"`
}
// #endregion records

// #region batch
// Batch is an immutable sentence set. A refresh builds a new Batch and
// swaps it in whole.
type Batch struct {
	version   int
	sentences []triplet.Sentence
}

func newBatch(version int, sentences []triplet.Sentence) *Batch {
	return &Batch{version: version, sentences: append([]triplet.Sentence(nil), sentences...)}
}

// Len is the number of sentences.
func (b *Batch) Len() int { return len(b.sentences) }

// Version counts refreshes applied so far; the initial batch is 0.
func (b *Batch) Version() int { return b.version }

// Sentences returns a copy.
func (b *Batch) Sentences() []triplet.Sentence {
	return append([]triplet.Sentence(nil), b.sentences...)
}

// EvaluationSet picks the last ceil(len*validationRatio) sentences, then
// the first ceil(n*samplingRatio) of those. At least one sentence is
// returned from a non-empty batch.
func (b *Batch) EvaluationSet(validationRatio, samplingRatio float64) []triplet.Sentence {
	n := len(b.sentences)
	if n == 0 {
		return nil
	}
	v := min(n, max(1, ceil(float64(n)*validationRatio)))
	tail := b.sentences[n-v:]
	k := min(v, max(1, ceil(float64(v)*samplingRatio)))
	return append([]triplet.Sentence(nil), tail[:k]...)
}

// AverageQuality is the mean quality of the batch.
func (b *Batch) AverageQuality() float64 {
	if len(b.sentences) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.sentences {
		sum += s.Quality
	}
	return sum / float64(len(b.sentences))
}

// ceil rounds up, tolerating float noise such as 10*0.7 = 7.000000000000001.
func ceil(x float64) int {
	i := int(x)
	if x-float64(i) > 1e-9 {
		i++
	}
	return i
}
// #endregion batch
