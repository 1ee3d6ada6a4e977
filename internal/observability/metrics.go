// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"breakout-lab/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Validation metrics
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	StagesTotal   *prometheus.CounterVec
	GridEvaluated prometheus.Counter

	// Simulation metrics
	TradesSimulated *prometheus.CounterVec
	BarsLoaded      *prometheus.CounterVec

	// Batch metrics
	BatchRunsTotal *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses a fresh registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "breakout_lab"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "runs_total",
			Help:      "Total number of validation runs by verdict and failed stage",
		}, []string{"verdict", "failed_stage"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "run_duration_seconds",
			Help:      "Validation run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		StagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "stages_total",
			Help:      "Total number of stage outcomes by stage and status",
		}, []string{"stage", "status"}),
		GridEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "grid_combinations_evaluated_total",
			Help:      "Total number of parameter grid combinations evaluated",
		}),

		TradesSimulated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "trades_total",
			Help:      "Total number of simulated trades by outcome",
		}, []string{"outcome"}),
		BarsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "bars_loaded_total",
			Help:      "Total number of price bars loaded by instrument",
		}, []string{"instrument"}),

		BatchRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Total number of orchestrated runs by status",
		}, []string{"status"}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_promotable_run_timestamp",
			Help:      "Unix timestamp of the last promotable validation run",
		}),

		gatherer: reg,
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordRun records a completed validation run.
func (m *Metrics) RecordRun(run *domain.ValidationRun) {
	if m == nil || run == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(run.Verdict), string(run.FailedStage)).Inc()
	if !run.CompletedAt.IsZero() && !run.StartedAt.IsZero() {
		m.RunDuration.Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())
	}
	for _, st := range run.Stages {
		m.StagesTotal.WithLabelValues(string(st.Stage), string(st.Status)).Inc()
	}
	if run.Promotable() {
		m.LastSuccessfulRun.Set(float64(run.CompletedAt.Unix()))
	}
}

// RecordGrid records evaluated grid combinations.
func (m *Metrics) RecordGrid(n int) {
	if m == nil {
		return
	}
	m.GridEvaluated.Add(float64(n))
}

// RecordTrades records simulated trades for one outcome class.
func (m *Metrics) RecordTrades(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.TradesSimulated.WithLabelValues(outcome).Add(float64(n))
}

// RecordBars records bars loaded for an instrument.
func (m *Metrics) RecordBars(instrument string, n int) {
	if m == nil {
		return
	}
	m.BarsLoaded.WithLabelValues(instrument).Add(float64(n))
}

// RecordBatchRun records one orchestrated run.
func (m *Metrics) RecordBatchRun(status string) {
	if m == nil {
		return
	}
	m.BatchRunsTotal.WithLabelValues(status).Inc()
}
