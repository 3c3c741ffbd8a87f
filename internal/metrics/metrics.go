package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// TripCreations counts trip creation attempts by outcome
	TripCreations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trip_creations_total", Help: "Trip creation attempts by outcome."},
		[]string{"outcome"},
	)
	// TripTransitions counts lifecycle transitions by target status and outcome
	TripTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trip_transitions_total", Help: "Trip status transitions by target status and outcome."},
		[]string{"status", "outcome"},
	)
	// SafetyCheckFailures counts blocked safety checks by check name
	SafetyCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "safety_check_failures_total", Help: "Failed safety checks by check."},
		[]string{"check"},
	)
	// AlertsEmitted counts alerts by type and severity
	AlertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_emitted_total", Help: "Alerts emitted by type and severity."},
		[]string{"type", "severity"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(TripCreations)
		Registry.MustRegister(TripTransitions)
		Registry.MustRegister(SafetyCheckFailures)
		Registry.MustRegister(AlertsEmitted)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
