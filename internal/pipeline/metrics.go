package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors of one pipeline. All methods are
// safe on a nil receiver.
type Metrics struct {
	runs           *prometheus.CounterVec
	stageSeconds   *prometheus.HistogramVec
	searchFailures *prometheus.CounterVec
	fetchResults   *prometheus.CounterVec
	synthFallbacks *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchrag",
			Name:      "pipeline_runs_total",
			Help:      "Query pipeline runs by outcome.",
		}, []string{"outcome"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "searchrag",
			Name:      "pipeline_stage_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		searchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchrag",
			Name:      "search_failures_total",
			Help:      "Search provider failures absorbed as empty results.",
		}, []string{"provider"}),
		fetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchrag",
			Name:      "fetch_results_total",
			Help:      "Page fetch tasks by outcome.",
		}, []string{"outcome"}),
		synthFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchrag",
			Name:      "synth_fallbacks_total",
			Help:      "Fallback answers returned instead of a completion.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.stageSeconds, m.searchFailures, m.fetchResults, m.synthFallbacks)
	}
	return m
}

func (m *Metrics) Run(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Stage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// SearchFailure matches the search client's failure hook.
func (m *Metrics) SearchFailure(provider string, _ error) {
	if m == nil {
		return
	}
	m.searchFailures.WithLabelValues(provider).Inc()
}

func (m *Metrics) FetchResult(outcome string) {
	if m == nil {
		return
	}
	m.fetchResults.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SynthFallback(reason string) {
	if m == nil {
		return
	}
	m.synthFallbacks.WithLabelValues(reason).Inc()
}
