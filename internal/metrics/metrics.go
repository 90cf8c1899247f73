// Package metrics exposes pipeline counters in Prometheus format. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "draftdrop"

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Watcher decision reasons.
const (
	DecisionIneligible = "ineligible"
	DecisionDisabled   = "disabled"
	DecisionDuplicate  = "duplicate"
	DecisionSubmitted  = "submitted"
)

// Recorder owns a private registry so tests can create as many as they like.
type Recorder struct {
	registry         *prometheus.Registry
	runs             *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	watcherDecisions *prometheus.CounterVec
	archiveFailures  prometheus.Counter
	inFlight         prometheus.Gauge
}

// New registers the draftdrop collectors plus the Go runtime and process
// collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final outcome.",
		}, []string{"outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Stage failures by stage and error kind.",
		}, []string{"stage", "kind"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		watcherDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_decisions_total",
			Help:      "Watcher evaluations of stable files by decision.",
		}, []string{"reason"}),
		archiveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_failures_total",
			Help:      "Completed items whose source file could not be archived.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Pipeline runs currently executing.",
		}),
	}
	r.registry.MustRegister(
		r.runs,
		r.stageFailures,
		r.stageDuration,
		r.watcherDecisions,
		r.archiveFailures,
		r.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) RunStarted() {
	if r != nil {
		r.inFlight.Inc()
	}
}

func (r *Recorder) RunFinished(outcome string) {
	if r != nil {
		r.inFlight.Dec()
		r.runs.WithLabelValues(outcome).Inc()
	}
}

func (r *Recorder) StageObserved(stage string, elapsed time.Duration) {
	if r != nil {
		r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
}

func (r *Recorder) StageFailed(stage, kind string) {
	if r != nil {
		r.stageFailures.WithLabelValues(stage, kind).Inc()
	}
}

func (r *Recorder) WatcherDecision(reason string) {
	if r != nil {
		r.watcherDecisions.WithLabelValues(reason).Inc()
	}
}

func (r *Recorder) ArchiveFailed() {
	if r != nil {
		r.archiveFailures.Inc()
	}
}
