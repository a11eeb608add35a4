// Package telemetry exposes round outcomes as Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/triplet-evolve/internal/evolution"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

const namespace = "triplet_evolve"

// #region collector
// Collector holds the evolution metrics on its own registry so several
// collectors can coexist in one process (tests, embedded runs).
type Collector struct {
	registry *prometheus.Registry

	rounds        *prometheus.CounterVec
	scores        *prometheus.GaugeVec
	composite     prometheus.Gauge
	bestComposite prometheus.Gauge
	params        *prometheus.GaugeVec
	errors        *prometheus.GaugeVec
	roundDuration prometheus.Histogram
	batchSize     prometheus.Gauge
	evaluated     prometheus.Gauge
	refreshes     *prometheus.CounterVec
	adjustments   *prometheus.CounterVec
	feedback      *prometheus.CounterVec
	feedbackScore prometheus.Histogram

	best float64
}

// NewCollector registers every metric on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		rounds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "rounds_total",
			Help:      "Completed evolution rounds by verdict",
		}, []string{"verdict"}),
		scores: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "score",
			Help:      "Latest round score by dimension",
		}, []string{"dimension"}),
		composite: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "composite",
			Help:      "Composite score of the latest round",
		}),
		bestComposite: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "best_composite",
			Help:      "Best composite score observed in this process",
		}),
		params: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "parameter",
			Help:      "Parameter values used in the latest round",
		}, []string{"knob"}),
		errors: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "errors",
			Help:      "Error distribution of the latest round",
		}, []string{"category"}),
		roundDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "round_duration_seconds",
			Help:      "Wall time per round",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		batchSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "batch_size",
			Help:      "Sentences in the current batch",
		}),
		evaluated: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "evaluated",
			Help:      "Sentences evaluated in the latest round",
		}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "refreshes_total",
			Help:      "Batch refresh attempts by outcome",
		}, []string{"outcome"}),
		adjustments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "proposals_total",
			Help:      "Optimizer proposals by action and bottleneck",
		}, []string{"action", "bottleneck"}),
		feedback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "entries_total",
			Help:      "User feedback entries by outcome",
		}, []string{"outcome"}),
		feedbackScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "rating",
			Help:      "Distribution of user ratings",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}
// #endregion collector

// #region observe
// ObserveRound implements evolution.Observer. Called from the orchestrator
// goroutine only.
func (c *Collector) ObserveRound(rec evolution.RoundRecord) {
	snap := rec.Snapshot
	c.rounds.WithLabelValues(string(rec.Decision.Verdict)).Inc()
	c.scores.WithLabelValues("accuracy").Set(snap.Accuracy)
	c.scores.WithLabelValues("precision").Set(snap.Precision)
	c.scores.WithLabelValues("recall").Set(snap.Recall)
	c.scores.WithLabelValues("f1").Set(snap.F1)
	c.scores.WithLabelValues("completeness").Set(snap.Completeness)
	c.scores.WithLabelValues("consistency").Set(snap.Consistency)
	c.scores.WithLabelValues("argument_integrity").Set(snap.ArgumentIntegrity)
	c.composite.Set(rec.Decision.Composite)
	if rec.Decision.Composite > c.best {
		c.best = rec.Decision.Composite
		c.bestComposite.Set(c.best)
	}

	for _, k := range optimize.Knobs {
		c.params.WithLabelValues(string(k)).Set(rec.Params.Get(k))
	}

	c.errors.Reset()
	for cat, n := range snap.ErrorDistribution {
		if cat == triplet.CategoryNone {
			continue
		}
		c.errors.WithLabelValues(string(cat)).Set(float64(n))
	}

	c.roundDuration.Observe(rec.Elapsed.Seconds())
	c.batchSize.Set(float64(rec.BatchSize))
	c.evaluated.Set(float64(rec.Evaluated))
	if rec.Refresh != "" && rec.Refresh != evolution.RefreshNone {
		c.refreshes.WithLabelValues(string(rec.Refresh)).Inc()
	}
	if p := rec.Proposal; p != nil {
		c.adjustments.WithLabelValues(p.Action, string(p.Bottleneck)).Inc()
	}
}

// ObserveFeedback counts one feedback submission.
func (c *Collector) ObserveFeedback(rating float64, accepted bool) {
	if !accepted {
		c.feedback.WithLabelValues("rejected").Inc()
		return
	}
	c.feedback.WithLabelValues("accepted").Inc()
	c.feedbackScore.Observe(rating)
}
// #endregion observe

// #region exposition
// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
// #endregion exposition

var _ evolution.Observer = (*Collector)(nil)
