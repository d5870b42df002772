// Package metrics declares the Prometheus collectors of the backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReactionsToggled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactions_toggled_total",
			Help: "Reaction toggles by kind and resulting state",
		},
		[]string{"kind", "state"}, // state: "added", "removed"
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification events by kind and aggregation outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "created", "merged", "suppressed"
	)

	FollowsToggled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "follows_toggled_total",
			Help: "Follow toggles by resulting state",
		},
		[]string{"state"}, // "followed", "unfollowed"
	)

	LivePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_push_total",
			Help: "Live session deliveries by outcome",
		},
		[]string{"outcome"}, // "delivered", "dropped"
	)

	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_sessions",
			Help: "Currently registered live sessions",
		},
	)

	FeedPageSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_page_size",
			Help:    "Number of threads returned per feed page",
			Buckets: []float64{0, 1, 5, 10, 20, 50},
		},
	)

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_requests_total",
			Help: "Embedding provider calls by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "rejected"
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
