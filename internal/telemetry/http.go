package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusHTTPMetrics implements core.MetricsCollector.
type PrometheusHTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPrometheusHTTPMetrics registers the API request metrics on registry.
func NewPrometheusHTTPMetrics(namespace string, registry *prometheus.Registry) *PrometheusHTTPMetrics {
	if namespace == "" {
		namespace = "adlifecycle"
	}
	m := &PrometheusHTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by method, route and status",
		}, []string{"method", "endpoint", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
	registry.MustRegister(m.requests, m.latency)
	return m
}

// RecordRequest records one completed request.
func (m *PrometheusHTTPMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.requests.WithLabelValues(method, endpoint, status).Inc()
	m.latency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
