package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	BusyRejections    prometheus.Counter
	CapacityRejection prometheus.Counter

	// Thread metrics
	ThreadsTracked  prometheus.Gauge
	ThreadsEvicted  prometheus.Counter
	WorktreesActive prometheus.Gauge

	// Sweep metrics
	SweepsTotal           prometheus.Counter
	WorktreesRemovedTotal *prometheus.CounterVec
	SweepRemoveFailures   prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_runs_total",
				Help: "Total number of agent runs",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_run_duration_seconds",
				Help:    "Duration of agent runs in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),
		BusyRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "events_rejected_busy_total",
				Help: "Events rejected because the thread was already executing",
			},
		),
		CapacityRejection: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "events_rejected_capacity_total",
				Help: "Events rejected because no admission slot was available",
			},
		),

		ThreadsTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "threads_tracked",
				Help: "Number of threads currently tracked in the registry",
			},
		),
		ThreadsEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "threads_evicted_total",
				Help: "Threads evicted under admission pressure",
			},
		),
		WorktreesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "worktrees_active",
				Help: "Number of worktrees known to the repository",
			},
		),

		SweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sweeps_total",
				Help: "Total number of reclamation sweeps",
			},
		),
		WorktreesRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worktrees_removed_total",
				Help: "Worktrees removed, by reason",
			},
			[]string{"reason"}, // stale, orphan, evicted, startup
		),
		SweepRemoveFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sweep_remove_failures_total",
				Help: "Worktree removals that failed during a sweep",
			},
		),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.BusyRejections,
		m.CapacityRejection,
		m.ThreadsTracked,
		m.ThreadsEvicted,
		m.WorktreesActive,
		m.SweepsTotal,
		m.WorktreesRemovedTotal,
		m.SweepRemoveFailures,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
