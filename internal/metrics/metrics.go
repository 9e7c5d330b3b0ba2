package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbochat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turbochat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	MessagesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbochat_messages_created_total",
			Help: "Total messages committed",
		},
		[]string{"room_type"}, // "public" or "private"
	)

	NotificationsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turbochat_notifications_delivered_total",
			Help: "Total notifications delivered",
		},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turbochat_notification_failures_total",
			Help: "Notifications abandoned after exhausted retries",
		},
	)

	BroadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbochat_broadcast_events_total",
			Help: "Events published to room topics",
		},
		[]string{"type"},
	)

	BroadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turbochat_broadcast_failures_total",
			Help: "Publish attempts the transport rejected",
		},
	)

	// Attachment metrics
	AttachmentsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbochat_attachments_stored_total",
			Help: "Attachments bound to messages",
		},
		[]string{"kind"},
	)

	VariantCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turbochat_variant_cache_hits_total",
			Help: "Variant requests served from cache",
		},
	)

	VariantCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turbochat_variant_cache_misses_total",
			Help: "Variant requests that triggered a render",
		},
	)

	PurgeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turbochat_purge_failures_total",
			Help: "Blob purges that failed",
		},
	)

	// Post-commit sequencer metrics
	SequencerDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "turbochat_sequencer_queue_depth",
			Help: "Post-commit effects waiting across all room queues",
		},
	)
)
