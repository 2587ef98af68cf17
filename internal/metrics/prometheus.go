package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery worker metrics
var (
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_messages_processed_total",
			Help: "Total number of outbound messages processed by outcome",
		},
		[]string{"outcome"}, // sent, requeued, failed
	)

	ClaimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_claim_conflicts_total",
			Help: "Number of claim attempts lost to another worker",
		},
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_send_duration_seconds",
			Help:    "Duration of gateway send calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	VendorsDisabledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_vendors_disabled_total",
			Help: "Number of vendor integrations disabled after auth failures",
		},
	)

	StuckMessagesReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_stuck_reclaimed_total",
			Help: "Number of stale processing claims swept back to queued",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_queue_depth",
			Help: "Number of queued messages eligible for delivery",
		},
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	MessagesEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_messages_enqueued_total",
			Help: "Total number of outbound messages enqueued via the API",
		},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_webhook_events_total",
			Help: "Total number of provider webhook status events by status",
		},
		[]string{"status"},
	)
)
