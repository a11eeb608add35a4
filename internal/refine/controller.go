package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/triplet-evolve/internal/agent"
	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region config
// Config bounds how long collaborator calls may take.
type Config struct {
	CallTimeout     time.Duration // per extract/revise/validate call
	SentenceTimeout time.Duration // whole sentence; 0 disables
}

// DefaultConfig returns conservative timeouts for model-backed agents.
func DefaultConfig() Config {
	return Config{
		CallTimeout:     30 * time.Second,
		SentenceTimeout: 2 * time.Minute,
	}
}
// #endregion config

// #region controller
// Controller runs the bounded extract -> validate -> revise loop for one
// sentence. It holds no per-sentence state and is safe for concurrent use.
type Controller struct {
	extractor agent.Extractor
	validator agent.Validator
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewController wires the two collaborators.
func NewController(ex agent.Extractor, val agent.Validator, cfg Config) *Controller {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	return &Controller{
		extractor: ex,
		validator: val,
		cfg:       cfg,
		logger:    logging.New("refine"),
		tracer:    otel.Tracer("github.com/danielpatrickdp/triplet-evolve/refine"),
	}
}

// Tune forwards params to whichever collaborators accept them.
func (c *Controller) Tune(params optimize.ParameterSet) {
	if t, ok := c.extractor.(agent.Tunable); ok {
		t.Tune(params)
	}
	if t, ok := c.validator.(agent.Tunable); ok {
		t.Tune(params)
	}
}
// #endregion controller

// #region process
// Process refines one sentence. It never makes more than maxIterations
// validate calls or maxIterations-1 revise calls. Faults end the run with
// StatusError; a validate timeout counts as a failed verdict.
func (c *Controller) Process(ctx context.Context, sentence string, maxIterations int) triplet.ProcessResult {
	res := triplet.ProcessResult{Sentence: sentence}

	if strings.TrimSpace(sentence) == "" {
		res.Status = triplet.StatusError
		res.Err = "empty sentence"
		return res
	}
	if maxIterations < 1 {
		res.Status = triplet.StatusError
		res.Err = fmt.Sprintf("max iterations must be >= 1, got %d", maxIterations)
		return res
	}

	ctx, span := c.tracer.Start(ctx, "refine.Process",
		trace.WithAttributes(attribute.Int("max_iterations", maxIterations)))
	defer span.End()

	if c.cfg.SentenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SentenceTimeout)
		defer cancel()
	}

	cur, err := call(ctx, c.cfg.CallTimeout, func(ctx context.Context) (triplet.Triplet, error) {
		return c.extractor.Extract(ctx, sentence)
	})
	if err != nil {
		return c.fail(span, res, agent.NewFault(agent.ErrExtraction, "extract", err))
	}

	for i := 1; i <= maxIterations; i++ {
		verdict, err := c.validate(ctx, sentence, cur)
		if err != nil {
			return c.fail(span, res, err)
		}

		rec := triplet.IterationRecord{Index: i, Triplet: cur.Clone(), Validation: verdict}

		if verdict.Valid {
			res.Iterations = append(res.Iterations, rec)
			res.Final = cur
			res.IsValid = true
			res.Status = triplet.StatusSuccess
			span.SetAttributes(attribute.Int("iterations", i), attribute.String("status", string(res.Status)))
			return res
		}

		if i == maxIterations {
			res.Iterations = append(res.Iterations, rec)
			break
		}

		rec.Feedback = verdict.Feedback()
		res.Iterations = append(res.Iterations, rec)

		prev := cur
		cur, err = call(ctx, c.cfg.CallTimeout, func(ctx context.Context) (triplet.Triplet, error) {
			return c.extractor.Revise(ctx, sentence, prev, rec.Feedback)
		})
		if err != nil {
			res.Final = prev
			return c.fail(span, res, agent.NewFault(agent.ErrExtraction, "revise", err))
		}
	}

	res.Final = cur
	res.IsValid = false
	res.Status = triplet.StatusExhausted
	span.SetAttributes(attribute.Int("iterations", len(res.Iterations)), attribute.String("status", string(res.Status)))
	c.logger.Debug("sentence exhausted", "sentence", sentence, "iterations", len(res.Iterations))
	return res
}

// validate runs one validation call. A call that only exceeded its own
// budget yields a zero-confidence verdict. Running out of the sentence budget
// is an ErrTimeout fault; anything else is an ErrValidation fault.
func (c *Controller) validate(ctx context.Context, sentence string, t triplet.Triplet) (triplet.ValidationResult, error) {
	v, err := call(ctx, c.cfg.CallTimeout, func(ctx context.Context) (triplet.ValidationResult, error) {
		return c.validator.Validate(ctx, sentence, t)
	})
	if err == nil {
		return v, nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		c.logger.Warn("validation timed out", "sentence", sentence, "timeout", c.cfg.CallTimeout)
		return TimeoutVerdict(), nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return triplet.ValidationResult{}, agent.NewFault(agent.ErrTimeout, "validate", fmt.Errorf("sentence deadline: %w", ctx.Err()))
	}
	if ctx.Err() != nil {
		return triplet.ValidationResult{}, fmt.Errorf("sentence cancelled: %w", ctx.Err())
	}
	return triplet.ValidationResult{}, agent.NewFault(agent.ErrValidation, "validate", err)
}

func (c *Controller) fail(span trace.Span, res triplet.ProcessResult, err error) triplet.ProcessResult {
	res.Status = triplet.StatusError
	res.IsValid = false
	res.Err = err.Error()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn("sentence failed", "sentence", res.Sentence, "iterations", len(res.Iterations), "error", err)
	return res
}
// #endregion process

// #region helpers
// TimeoutVerdict is the lowest-confidence negative verdict recorded when a
// validation call runs out of time.
func TimeoutVerdict() triplet.ValidationResult {
	return triplet.ValidationResult{
		Valid:      false,
		Confidence: 0,
		Issues: []triplet.Issue{{
			Layer:    triplet.LayerStructural,
			Message:  "validation timed out",
			Category: triplet.CategoryStructural,
		}},
	}
}

type outcome[T any] struct {
	val T
	err error
}

// call runs fn under a per-call deadline and returns as soon as the deadline
// passes, even if fn ignores its context.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(cctx)
		done <- outcome[T]{v, err}
	}()

	select {
	case o := <-done:
		if o.err == nil && cctx.Err() != nil && ctx.Err() == nil {
			// finished, but only after the budget ran out
			var zero T
			return zero, cctx.Err()
		}
		return o.val, o.err
	case <-cctx.Done():
		var zero T
		return zero, cctx.Err()
	}
}
// #endregion helpers
