package metrics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region partial
// Partial is the mergeable accumulator behind a Snapshot. Merge is
// commutative and associative, so samples can be reduced in any grouping.
type Partial struct {
	Samples    int
	Scored     int
	Errored    int
	Referenced int

	refWeight  float64
	refCorrect float64
	tp, fp, fn float64

	compWeight, compSum float64
	intWeight, intSum   float64

	// sentence key -> triplet key -> weight
	runs map[string]map[string]float64

	errors map[triplet.Category]int
}

// Merge combines two partials without modifying either.
func (p Partial) Merge(o Partial) Partial {
	out := Partial{}
	out.absorb(p)
	out.absorb(o)
	return out
}

// absorb adds o into p in place. p's maps must not be shared.
func (p *Partial) absorb(o Partial) {
	p.Samples += o.Samples
	p.Scored += o.Scored
	p.Errored += o.Errored
	p.Referenced += o.Referenced
	p.refWeight += o.refWeight
	p.refCorrect += o.refCorrect
	p.tp += o.tp
	p.fp += o.fp
	p.fn += o.fn
	p.compWeight += o.compWeight
	p.compSum += o.compSum
	p.intWeight += o.intWeight
	p.intSum += o.intSum

	if p.runs == nil {
		p.runs = make(map[string]map[string]float64, len(o.runs))
	}
	for s, hist := range o.runs {
		dst := p.runs[s]
		if dst == nil {
			dst = make(map[string]float64, len(hist))
			p.runs[s] = dst
		}
		for k, w := range hist {
			dst[k] += w
		}
	}

	if p.errors == nil {
		p.errors = make(map[triplet.Category]int, len(o.errors))
	}
	for c, n := range o.errors {
		p.errors[c] += n
	}
}

// consistency is the weighted share of runs that agree with the modal triplet
// of their sentence.
func (p Partial) consistency() float64 {
	var total, modal float64
	for _, hist := range p.runs {
		var best float64
		for _, w := range hist {
			total += w
			if w > best {
				best = w
			}
		}
		modal += best
	}
	if total == 0 {
		return 0
	}
	return modal / total
}
// #endregion partial

// #region aggregator
// Aggregator turns sentence runs into snapshots.
type Aggregator struct {
	opts Options
}

// New returns an Aggregator. Missing options fall back to DefaultOptions.
func New(opts Options) *Aggregator {
	def := DefaultOptions()
	if opts.Comparator == nil {
		opts.Comparator = def.Comparator
	}
	if opts.Source == "" {
		opts.Source = def.Source
	}
	return &Aggregator{opts: opts}
}

// Observe scores a single sample.
func (a *Aggregator) Observe(s Sample) Partial {
	p := Partial{Samples: 1, errors: make(map[triplet.Category]int)}
	for _, it := range s.Result.Iterations {
		for _, is := range it.Validation.Issues {
			p.errors[triplet.Classify(is)]++
		}
	}

	if s.Result.Status == triplet.StatusError {
		p.Errored = 1
		return p
	}
	p.Scored = 1

	w := s.Weight
	if w <= 0 {
		w = 1
	}
	final := s.Result.Final
	cmp := a.opts.Comparator

	sentKey := triplet.Normalize(s.Result.Sentence)
	p.runs = map[string]map[string]float64{sentKey: {final.Key(): w}}

	p.compWeight = w
	p.intWeight = w

	if s.Reference != nil {
		ref := *s.Reference
		p.Referenced = 1
		sc := compareSlots(cmp, ref, final)
		p.refWeight = w
		if sc.fp == 0 && sc.fn == 0 {
			p.refCorrect = w
		}
		p.tp = w * float64(sc.tp)
		p.fp = w * float64(sc.fp)
		p.fn = w * float64(sc.fn)
		p.compSum = w * modifierCoverage(cmp, ref, final)
		if argumentsIntact(cmp, ref, final) {
			p.intSum = w
		}
		return p
	}

	// Without a reference the last validation verdict stands in.
	last, ok := s.Result.Last()
	if !ok {
		return p
	}
	if !last.Validation.HasLayer(triplet.LayerCompleteness) {
		p.compSum = w
	}
	if !last.Validation.HasCategory(triplet.CategoryIncompleteArgument) {
		p.intSum = w
	}
	return p
}

// Reduce folds samples into one partial.
func (a *Aggregator) Reduce(samples []Sample) Partial {
	acc := Partial{}
	for _, s := range samples {
		acc.absorb(a.Observe(s))
	}
	return acc
}

// Snapshot finalizes a partial into the scores for round.
func (a *Aggregator) Snapshot(round int, p Partial) Snapshot {
	snap := Snapshot{
		Round:             round,
		Samples:           p.Samples,
		Scored:            p.Scored,
		Errored:           p.Errored,
		Referenced:        p.Referenced,
		ErrorDistribution: make(map[triplet.Category]int, len(triplet.Categories)),
		Consistency:       p.consistency(),
	}
	for _, c := range triplet.Categories {
		snap.ErrorDistribution[c] = p.errors[c]
	}

	if d := p.tp + p.fp; d > 0 {
		snap.Precision = p.tp / d
	}
	if d := p.tp + p.fn; d > 0 {
		snap.Recall = p.tp / d
	}
	if s := snap.Precision + snap.Recall; s > 0 {
		snap.F1 = 2 * snap.Precision * snap.Recall / s
	}
	if p.compWeight > 0 {
		snap.Completeness = p.compSum / p.compWeight
	}
	if p.intWeight > 0 {
		snap.ArgumentIntegrity = p.intSum / p.intWeight
	}

	refAcc := 0.0
	if p.refWeight > 0 {
		refAcc = p.refCorrect / p.refWeight
	}
	switch a.opts.Source {
	case SourceReference:
		snap.Accuracy = refAcc
	case SourceConsistency:
		snap.Accuracy = snap.Consistency
	default:
		if p.refWeight > 0 {
			snap.Accuracy = refAcc
		} else {
			snap.Accuracy = snap.Consistency
		}
	}
	return snap
}

// Aggregate reduces samples sequentially and returns the round snapshot.
func (a *Aggregator) Aggregate(round int, samples []Sample) Snapshot {
	return a.Snapshot(round, a.Reduce(samples))
}

// AggregateParallel splits samples into chunks reduced concurrently by up to
// workers goroutines, then merges the partials.
func (a *Aggregator) AggregateParallel(ctx context.Context, round int, samples []Sample, workers int) (Snapshot, error) {
	if workers < 2 || len(samples) < 2*workers {
		return a.Aggregate(round, samples), nil
	}

	chunk := (len(samples) + workers - 1) / workers
	parts := make([]Partial, (len(samples)+chunk-1)/chunk)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range parts {
		lo := i * chunk
		hi := min(lo+chunk, len(samples))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = a.Reduce(samples[lo:hi])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	acc := Partial{}
	for _, p := range parts {
		acc.absorb(p)
	}
	return a.Snapshot(round, acc), nil
}
// #endregion aggregator

// Aggregate is a convenience wrapper around New(opts).Aggregate.
func Aggregate(round int, samples []Sample, opts Options) Snapshot {
	return New(opts).Aggregate(round, samples)
}
