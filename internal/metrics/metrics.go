// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration is observed by the request middleware
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairspace_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// QuizSubmissions counts quiz submissions by outcome
	QuizSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairspace_quiz_submissions_total",
			Help: "Quiz submissions by outcome (success, incorrect, locked)",
		},
		[]string{"outcome"},
	)

	// SpaceMutations counts successful personal space changes
	SpaceMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairspace_space_mutations_total",
			Help: "Personal space mutations by item kind and action",
		},
		[]string{"kind", "action"},
	)

	// VersionConflicts counts optimistic concurrency retries
	VersionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairspace_version_conflicts_total",
			Help: "Conditional writes that lost a race and were retried",
		},
		[]string{"document"},
	)

	// EventsDelivered counts realtime events per sink
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairspace_events_delivered_total",
			Help: "Events delivered per sink (websocket, redis, apns) and result",
		},
		[]string{"sink", "result"},
	)

	// WebSocketConnections tracks open WebSocket connections
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairspace_websocket_connections",
			Help: "Open WebSocket connections",
		},
	)
)
