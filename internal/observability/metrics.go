package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "events_processed_total", Help: "Change events dispatched to a handler"},
		[]string{"resource", "kind"},
	)
	EventFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "event_failures_total", Help: "Handler invocations that returned an error"},
		[]string{"resource", "kind"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "notifications_sent_total", Help: "Notifications delivered per channel"},
		[]string{"channel"},
	)
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "notification_failures_total", Help: "Notification delivery failures per channel"},
		[]string{"channel"},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "sweep_runs_total", Help: "Sweep job executions"},
		[]string{"job"},
	)
	SweepEntities = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "sweep_entities_total", Help: "Entities touched per sweep job"},
		[]string{"job"},
	)
	SweepSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "sweep_skipped_total", Help: "Sweep runs skipped because the job lease was held"},
		[]string{"job"},
	)

	BatchChunksCommitted = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "batch_chunks_committed_total", Help: "Batch mutation chunks committed"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "campuspool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
