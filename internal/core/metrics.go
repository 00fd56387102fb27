package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements MetricsCollector backed by Prometheus.
// Construction takes an explicit Registerer so tests can use a private
// registry instead of panicking on duplicate registration against the global
// one.
type PrometheusCollector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	webhookEvents   *prometheus.CounterVec
	trackerOps      *prometheus.CounterVec
}

// NewPrometheusCollector creates and registers the collector's metrics with
// the given registerer. Pass prometheus.DefaultRegisterer in production so
// promhttp.Handler() exposes them on /metrics.
func NewPrometheusCollector(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "webhook_events_total",
				Help:      "Billing webhook events by type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		trackerOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "trackers",
				Name:      "operations_total",
				Help:      "Tracker lifecycle operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
}

// RecordRequest records latency and count for one completed HTTP request.
func (c *PrometheusCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, endpoint, status).Inc()
	c.requestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordWebhookEvent counts one processed billing webhook event. Outcome is
// "processed", "duplicate", "ignored", or "error".
func (c *PrometheusCollector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordTrackerOperation counts one tracker lifecycle operation. Operation is
// "create", "update", or "delete"; outcome is "ok", "limit_exceeded", or
// "error".
func (c *PrometheusCollector) RecordTrackerOperation(operation, outcome string) {
	c.trackerOps.WithLabelValues(operation, outcome).Inc()
}
