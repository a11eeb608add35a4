package evolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/triplet-evolve/internal/agent"
	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/feedback"
	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
	"github.com/danielpatrickdp/triplet-evolve/internal/metrics"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// ErrNoSentences is returned when a run has nothing to evaluate.
var ErrNoSentences = errors.New("no sentences to evaluate")

// minFeedbackWeight keeps a zero rating from vanishing from the scores.
const minFeedbackWeight = 0.05

// #region orchestrator
// Orchestrator drives rounds of refine, score, decide and tune until the
// detector stops the run.
type Orchestrator struct {
	cfg       Config
	proc      Processor
	source    DataSource
	feedback  feedback.Store
	scorer    Scorer
	detector  *convergence.Detector
	optimizer *optimize.Optimizer
	recorder  Recorder
	observers []Observer
	seeder    ParamSeeder
	logger    *slog.Logger
	tracer    trace.Tracer

	batch   atomic.Pointer[Batch]
	best    atomic.Pointer[BestSnapshot]
	stopped atomic.Bool
	running atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDataSource sets where refreshed sentences come from.
func WithDataSource(src DataSource) Option { return func(o *Orchestrator) { o.source = src } }

// WithFeedbackStore replaces the in-memory feedback store.
func WithFeedbackStore(s feedback.Store) Option { return func(o *Orchestrator) { o.feedback = s } }

// WithScorer replaces the default metrics aggregation.
func WithScorer(s Scorer) Option { return func(o *Orchestrator) { o.scorer = s } }

// WithRecorder persists every round and the final report.
func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithObserver adds a round observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithParamSeeder starts from the best parameters of earlier runs.
func WithParamSeeder(s ParamSeeder) Option { return func(o *Orchestrator) { o.seeder = s } }

// WithOptimizer overrides the optimizer step schedule.
func WithOptimizer(cfg optimize.Config) Option {
	return func(o *Orchestrator) { o.optimizer = optimize.NewOptimizer(cfg) }
}

// New validates cfg and wires the orchestrator. An invalid cfg yields a
// *ConfigurationError.
func New(proc Processor, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, &ConfigurationError{Field: "processor", Reason: "must not be nil"}
	}
	o := &Orchestrator{
		cfg:       cfg,
		proc:      proc,
		feedback:  feedback.NewMemoryStore(),
		detector:  convergence.NewDetector(cfg.Detector()),
		optimizer: optimize.NewOptimizer(optimize.DefaultConfig()),
		logger:    logging.New("evolution"),
		tracer:    otel.Tracer("github.com/danielpatrickdp/triplet-evolve/evolution"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.scorer == nil {
		o.scorer = NewAggregateScorer(metrics.DefaultOptions(), cfg.Concurrency)
	}
	o.batch.Store(newBatch(0, nil))
	return o, nil
}

// Config returns the validated run settings.
func (o *Orchestrator) Config() Config { return o.cfg }
// #endregion orchestrator

// #region public
// AddUserFeedback records a rating. Safe to call at any time; entries are
// folded in from the next round on.
func (o *Orchestrator) AddUserFeedback(e feedback.Entry) error {
	return o.feedback.Append(e)
}

// Feedback returns a snapshot of stored feedback.
func (o *Orchestrator) Feedback() []feedback.Entry {
	return o.feedback.Snapshot()
}

// BestSoFar returns the best round published so far.
func (o *Orchestrator) BestSoFar() (BestSnapshot, bool) {
	b := o.best.Load()
	if b == nil {
		return BestSnapshot{}, false
	}
	out := *b
	out.Snapshot = b.Snapshot.Clone()
	return out, true
}

// Batch returns the current sentence batch.
func (o *Orchestrator) Batch() *Batch { return o.batch.Load() }

// Stop asks the run to end before the next round starts.
func (o *Orchestrator) Stop() { o.stopped.Store(true) }

// Running reports whether Run is in progress.
func (o *Orchestrator) Running() bool { return o.running.Load() }
// #endregion public

// #region run
// Run evolves over initial until a stop rule fires, Stop is called or ctx
// ends. The returned report always carries the best snapshot seen. When
// initial is empty the data source seeds the batch.
func (o *Orchestrator) Run(ctx context.Context, initial []triplet.Sentence) (Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Report{}, errors.New("run already in progress")
	}
	defer o.running.Store(false)

	runID := uuid.NewString()
	start := time.Now()
	log := o.logger.With("run_id", runID)

	ctx, span := o.tracer.Start(ctx, "evolution.Run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	if len(initial) == 0 && o.source != nil {
		fetched, err := o.source.FetchBatch(ctx, o.cfg.QualityThreshold)
		if err != nil {
			return Report{}, fmt.Errorf("initial batch: %w: %w", ErrDataSourceUnavailable, err)
		}
		initial = fetched
	}
	if len(initial) == 0 {
		return Report{}, ErrNoSentences
	}
	o.batch.Store(newBatch(0, initial))
	o.best.Store(nil)

	params := optimize.DefaultParameterSet()
	if o.seeder != nil {
		if seeded, ok, err := o.seeder.BestParams(); err != nil {
			log.Warn("param seed failed", "error", err)
		} else if ok {
			params = seeded.Clamped()
			log.Info("warm start", "params", params)
		}
	}
	o.tune(params)

	if o.recorder != nil {
		if err := o.recorder.BeginRun(runID, o.cfg, params); err != nil {
			log.Warn("record run start failed", "error", err)
		}
	}

	report := Report{RunID: runID, StartedAt: start.UTC()}
	data := DataEvolution{
		InitialSize:       o.batch.Load().Len(),
		InitialAvgQuality: o.batch.Load().AverageQuality(),
	}
	var (
		history  []metrics.Snapshot
		decision = convergence.Decision{Verdict: convergence.VerdictAborted, Reason: "stopped before the first round"}
	)

	log.Info("evolution started", "batch", data.InitialSize, "max_rounds", o.cfg.MaxRounds)

	for round := 1; ; round++ {
		if o.stopped.Load() || ctx.Err() != nil {
			decision = convergence.Decision{Verdict: convergence.VerdictAborted, Reason: abortReason(ctx)}
			break
		}
		roundStart := time.Now()

		refresh := o.refresh(ctx, round, log)
		switch refresh {
		case RefreshApplied:
			data.Refreshes++
		case RefreshSkipped:
			data.SkippedRefreshes++
		}

		batch := o.batch.Load()
		eval := batch.EvaluationSet(o.cfg.ValidationRatio, params.SamplingRatio)
		samples := o.processAll(ctx, eval)
		if ctx.Err() != nil {
			decision = convergence.Decision{Verdict: convergence.VerdictAborted, Reason: abortReason(ctx)}
			break
		}
		fbCount := 0
		if o.cfg.UseUserFeedback {
			samples, fbCount = o.foldFeedback(samples)
		}

		snap, err := o.scorer.Score(ctx, round, samples)
		if err != nil {
			log.Warn("scoring aborted", "round", round, "error", err)
			decision = convergence.Decision{Verdict: convergence.VerdictAborted, Reason: err.Error()}
			break
		}
		snap.Round = round
		history = append(history, snap)

		o.publishBest(round, snap, params)

		decision = o.detector.Evaluate(history)
		rec := RoundRecord{
			Round:     round,
			Snapshot:  snap,
			Params:    params,
			Decision:  decision,
			BatchSize: batch.Len(),
			Evaluated: len(eval),
			Feedback:  fbCount,
			Refresh:   refresh,
		}
		if !decision.Verdict.Terminal() {
			p := o.optimizer.ProposeDetailed(history, params)
			rec.Proposal = &p
			params = p.Params
			o.tune(params)
		}
		rec.Elapsed = time.Since(roundStart)
		o.emit(runID, rec, log)

		log.Info("round complete",
			"round", round,
			"accuracy", snap.Accuracy,
			"completeness", snap.Completeness,
			"integrity", snap.ArgumentIntegrity,
			"composite", decision.Composite,
			"verdict", decision.Verdict,
		)
		if decision.Verdict.Terminal() {
			break
		}
	}

	final := o.batch.Load()
	data.FinalSize = final.Len()
	data.AverageQuality = final.AverageQuality()

	report.History = history
	report.TotalRounds = len(history)
	report.Verdict = decision.Verdict
	report.Reason = decision.Reason
	report.Data = data
	report.Satisfaction = feedback.Summarize(o.feedback.Snapshot())
	if b := o.best.Load(); b != nil {
		report.Best = b.Snapshot.Clone()
		report.BestRound = b.Round
		report.BestParams = b.Params
	} else {
		report.BestParams = params
	}
	report.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.Int("rounds", report.TotalRounds),
		attribute.String("verdict", string(report.Verdict)),
	)
	if o.recorder != nil {
		if err := o.recorder.FinishRun(runID, report); err != nil {
			log.Warn("record run finish failed", "error", err)
		}
	}
	log.Info("evolution finished",
		"rounds", report.TotalRounds,
		"verdict", report.Verdict,
		"best_round", report.BestRound,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

func abortReason(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		return "context ended: " + err.Error()
	}
	return "stop requested"
}
// #endregion run

// #region round-steps
// refresh fetches new sentences on crawl rounds or when the batch is too
// small. Failures and fetches with nothing new leave the batch untouched.
func (o *Orchestrator) refresh(ctx context.Context, round int, log *slog.Logger) RefreshOutcome {
	cur := o.batch.Load()
	if o.source == nil {
		return RefreshNone
	}
	if round%o.cfg.CrawlFrequency != 0 && cur.Len() >= o.cfg.MinDataSize {
		return RefreshNone
	}

	fetched, err := o.source.FetchBatch(ctx, o.cfg.QualityThreshold)
	if err != nil {
		log.Warn("batch refresh skipped", "round", round, "error", fmt.Errorf("%w: %w", ErrDataSourceUnavailable, err))
		return RefreshSkipped
	}

	seen := make(map[string]bool, cur.Len())
	for _, s := range cur.sentences {
		seen[triplet.Normalize(s.Text)] = true
	}
	var fresh []triplet.Sentence
	for _, s := range fetched {
		key := triplet.Normalize(s.Text)
		if s.Quality < o.cfg.QualityThreshold || key == "" || seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		log.Debug("refresh found no new sentences", "round", round, "fetched", len(fetched))
		return RefreshEmpty
	}

	merged := make([]triplet.Sentence, 0, cur.Len()+len(fresh))
	merged = append(merged, cur.sentences...)
	merged = append(merged, fresh...)
	o.batch.Store(newBatch(cur.Version()+1, merged))
	log.Info("batch refreshed", "round", round, "added", len(fresh), "size", len(merged))
	return RefreshApplied
}

// processAll refines each sentence with at most Concurrency in flight.
func (o *Orchestrator) processAll(ctx context.Context, eval []triplet.Sentence) []metrics.Sample {
	samples := make([]metrics.Sample, len(eval))
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, s := range eval {
		g.Go(func() error {
			res := o.proc.Process(ctx, s.Text, o.cfg.MaxIterationsPerSentence)
			samples[i] = metrics.NewSample(res, s.Reference)
			return nil
		})
	}
	_ = g.Wait()
	return samples
}

// foldFeedback applies user ratings to the round's samples. Approved
// entries become references for matching sentences; the rest are added as
// weighted unreferenced samples marked incomplete.
func (o *Orchestrator) foldFeedback(samples []metrics.Sample) ([]metrics.Sample, int) {
	entries := o.feedback.Snapshot()
	if len(entries) == 0 {
		return samples, 0
	}
	bySentence := make(map[string][]int, len(samples))
	for i, s := range samples {
		key := triplet.Normalize(s.Result.Sentence)
		bySentence[key] = append(bySentence[key], i)
	}

	for _, e := range entries {
		weight := max(e.Rating/feedback.MaxRating, minFeedbackWeight)
		if e.Rating >= o.cfg.ApproveRating {
			ref := e.Triplet.Clone()
			for _, i := range bySentence[triplet.Normalize(e.Sentence)] {
				if samples[i].Reference == nil {
					samples[i].Reference = &ref
				}
			}
			continue
		}
		samples = append(samples, metrics.Sample{
			Result: rejectedResult(e),
			Weight: weight,
		})
	}
	return samples, len(entries)
}

func rejectedResult(e feedback.Entry) triplet.ProcessResult {
	msg := "user rejected triplet"
	if e.Comment != "" {
		msg += ": " + e.Comment
	}
	verdict := triplet.ValidationResult{
		Valid: false,
		Issues: []triplet.Issue{{
			Layer:    triplet.LayerCompleteness,
			Message:  msg,
			Category: triplet.CategoryWrongEntity,
		}},
	}
	return triplet.ProcessResult{
		Sentence:   e.Sentence,
		Iterations: []triplet.IterationRecord{{Index: 1, Triplet: e.Triplet.Clone(), Validation: verdict}},
		Final:      e.Triplet.Clone(),
		Status:     triplet.StatusExhausted,
	}
}

// publishBest swaps in a new best when the composite strictly improves.
func (o *Orchestrator) publishBest(round int, snap metrics.Snapshot, params optimize.ParameterSet) {
	comp := convergence.Composite(snap, o.detector.Config().Weights)
	if cur := o.best.Load(); cur != nil && comp <= cur.Composite {
		return
	}
	o.best.Store(&BestSnapshot{Round: round, Snapshot: snap.Clone(), Params: params, Composite: comp})
}

func (o *Orchestrator) tune(params optimize.ParameterSet) {
	if t, ok := o.proc.(agent.Tunable); ok {
		t.Tune(params)
	}
}

func (o *Orchestrator) emit(runID string, rec RoundRecord, log *slog.Logger) {
	if o.recorder != nil {
		if err := o.recorder.RecordRound(runID, rec); err != nil {
			log.Warn("record round failed", "round", rec.Round, "error", err)
		}
	}
	for _, obs := range o.observers {
		obs.ObserveRound(rec)
	}
}
// #endregion round-steps

// #region scorer
// AggregateScorer is the default Scorer, backed by metrics.Aggregator.
type AggregateScorer struct {
	agg     *metrics.Aggregator
	workers int
}

// NewAggregateScorer reduces samples with up to workers goroutines.
func NewAggregateScorer(opts metrics.Options, workers int) *AggregateScorer {
	return &AggregateScorer{agg: metrics.New(opts), workers: workers}
}

func (s *AggregateScorer) Score(ctx context.Context, round int, samples []metrics.Sample) (metrics.Snapshot, error) {
	return s.agg.AggregateParallel(ctx, round, samples, s.workers)
}
// #endregion scorer
