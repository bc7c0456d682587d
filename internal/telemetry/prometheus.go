package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adlifecycle/internal/scheduler"
)

var _ scheduler.SweepMetrics = (*PrometheusSweepMetrics)(nil)

// PrometheusSweepMetrics tracks sweeps for scraping.
//
// Metrics:
//   - adlifecycle_sweep_runs_total
//   - adlifecycle_sweep_duration_seconds
//   - adlifecycle_sweep_transitions_total{stage, outcome}
//   - adlifecycle_sweep_errors_total
//   - adlifecycle_sweep_last_run_timestamp_seconds
//   - adlifecycle_notification_failures_total{sink}
type PrometheusSweepMetrics struct {
	registry *prometheus.Registry

	runs          prometheus.Counter
	duration      prometheus.Histogram
	transitions   *prometheus.CounterVec
	errors        prometheus.Counter
	lastRun       prometheus.Gauge
	notifyFailure *prometheus.CounterVec
}

// NewPrometheusSweepMetrics creates and registers the metrics. A nil
// registry gets a fresh one.
func NewPrometheusSweepMetrics(namespace string, registry *prometheus.Registry) *PrometheusSweepMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "adlifecycle"
	}

	m := &PrometheusSweepMetrics{
		registry: registry,
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Total number of expiration sweeps executed",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of expiration sweeps in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "transitions_total",
			Help:      "Ads handled per stage by outcome",
		}, []string{"stage", "outcome"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "errors_total",
			Help:      "Per-item and per-stage sweep errors",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed sweep",
		}),
		notifyFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Failed notification deliveries per sink",
		}, []string{"sink"}),
	}

	registry.MustRegister(
		m.runs,
		m.duration,
		m.transitions,
		m.errors,
		m.lastRun,
		m.notifyFailure,
	)
	return m
}

// RecordSweep updates the sweep metrics from result.
func (m *PrometheusSweepMetrics) RecordSweep(_ context.Context, result scheduler.SweepResult, duration time.Duration) {
	m.runs.Inc()
	m.duration.Observe(duration.Seconds())
	m.errors.Add(float64(len(result.Errors)))
	for _, s := range result.Stages {
		m.transitions.WithLabelValues(s.Stage, "processed").Add(float64(s.Processed))
		m.transitions.WithLabelValues(s.Stage, "skipped").Add(float64(s.Skipped))
		m.transitions.WithLabelValues(s.Stage, "failed").Add(float64(s.Failed))
	}
	m.lastRun.SetToCurrentTime()
}

// RecordNotificationFailure increments the failure counter for sink.
func (m *PrometheusSweepMetrics) RecordNotificationFailure(_ context.Context, sink string) {
	m.notifyFailure.WithLabelValues(sink).Inc()
}

// Registry returns the registry holding the metrics.
func (m *PrometheusSweepMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusSweepMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
