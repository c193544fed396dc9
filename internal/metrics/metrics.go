// Package metrics exposes Prometheus instrumentation for sampling runs.
// Every method is safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

const namespace = "sampleforge"

// Metrics holds the collectors registered by New.
type Metrics struct {
	runs          *prometheus.CounterVec
	strategies    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	scores        *prometheus.HistogramVec
	tieBreaks     *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	cacheErrors   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by artifact kind and outcome.",
		}, []string{"kind", "outcome"}),
		strategies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_results_total",
			Help:      "Strategy invocations by outcome.",
		}, []string{"kind", "strategy", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_score",
			Help:      "Composite scores of scored candidates.",
			Buckets:   prometheus.LinearBuckets(10, 10, 9),
		}, []string{"kind"}),
		tieBreaks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tie_breaks_total",
			Help:      "Applied tie-breaks by the policy that decided them.",
		}, []string{"kind", "policy"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "constraint_fallbacks_total",
			Help:      "Selections where constraints eliminated every candidate.",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"kind", "result"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Result cache backend errors by operation.",
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{
		m.runs, m.strategies, m.stageDuration, m.scores,
		m.tieBreaks, m.fallbacks, m.cacheLookups, m.cacheErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// PipelineRun counts a finished run. Outcome is "ok", "cached" or "error".
func (m *Metrics) PipelineRun(kind artifact.Kind, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(kind), outcome).Inc()
}

// StrategyResult counts one strategy invocation.
func (m *Metrics) StrategyResult(kind artifact.Kind, strategy string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.strategies.WithLabelValues(string(kind), strategy, outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveScore records a candidate's composite score.
func (m *Metrics) ObserveScore(kind artifact.Kind, total int) {
	if m == nil {
		return
	}
	m.scores.WithLabelValues(string(kind)).Observe(float64(total))
}

// TieBreak counts an applied tie-break.
func (m *Metrics) TieBreak(kind artifact.Kind, policy string) {
	if m == nil {
		return
	}
	m.tieBreaks.WithLabelValues(string(kind), policy).Inc()
}

// ConstraintFallback counts a selection that ignored its constraints.
func (m *Metrics) ConstraintFallback(kind artifact.Kind) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) CacheHit(kind artifact.Kind) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(string(kind), "hit").Inc()
}

func (m *Metrics) CacheMiss(kind artifact.Kind) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(string(kind), "miss").Inc()
}

func (m *Metrics) CacheError(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}
