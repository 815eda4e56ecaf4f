package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediasync_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Webhook Metrics
	WebhooksReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_webhooks_received_total",
			Help: "Total number of provider webhooks received",
		},
		[]string{"event_type"},
	)

	WebhooksRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_webhooks_rejected_total",
			Help: "Total number of webhooks rejected at the boundary",
		},
		[]string{"reason"},
	)

	WebhookOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_webhook_outcomes_total",
			Help: "Webhook handler outcomes by event type",
		},
		[]string{"event_type", "outcome"},
	)

	WebhookProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediasync_webhook_processing_duration_seconds",
			Help:    "Webhook processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// Broadcast Metrics
	SSEConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediasync_sse_connections",
			Help: "Number of currently registered SSE connections",
		},
	)

	SSEConnectionsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediasync_sse_connections_dropped_total",
			Help: "Connections dropped for stalled or failed writes",
		},
	)

	EventsBroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_events_broadcast_total",
			Help: "Events delivered to connected clients",
		},
		[]string{"event_name"},
	)

	// Asset Metrics
	AssetStatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_asset_status_transitions_total",
			Help: "Asset status transitions applied by the webhook handler",
		},
		[]string{"status"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_cache_hits_total",
			Help: "Asset cache hits by lookup field",
		},
		[]string{"field"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_cache_misses_total",
			Help: "Asset cache misses by lookup field",
		},
		[]string{"field"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordWebhookReceived records an accepted webhook
func RecordWebhookReceived(eventType string) {
	WebhooksReceivedTotal.WithLabelValues(eventType).Inc()
}

// RecordWebhookRejected records a webhook rejected at the boundary
func RecordWebhookRejected(reason string) {
	WebhooksRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordWebhookOutcome records a handler outcome with its processing time
func RecordWebhookOutcome(eventType, outcome string, duration float64) {
	WebhookOutcomesTotal.WithLabelValues(eventType, outcome).Inc()
	WebhookProcessingDuration.WithLabelValues(eventType).Observe(duration)
}

// RecordStatusTransition records an asset status change
func RecordStatusTransition(status string) {
	AssetStatusTransitions.WithLabelValues(status).Inc()
}

// RecordCacheAccess records a cache hit or miss for a lookup field
func RecordCacheAccess(field string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(field).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(field).Inc()
	}
}
