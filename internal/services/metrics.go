package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "last_signal_ai_requests_total",
			Help: "Total number of text-generation requests by model, operation and status.",
		},
		[]string{"model", "operation", "status"},
	)

	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "last_signal_ai_request_duration_seconds",
			Help:    "Latency of text-generation requests.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"model", "operation"},
	)

	aiTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "last_signal_ai_tokens",
			Help:    "Tokens used per text-generation request.",
			Buckets: prometheus.ExponentialBuckets(8, 2, 10),
		},
		[]string{"model", "kind"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "last_signal_ai_fallbacks_total",
			Help: "Total number of responses served from offline fallback lines.",
		},
		[]string{"operation"},
	)

	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "last_signal_sessions_created_total",
		Help: "Total number of game sessions created.",
	})

	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "last_signal_turns_total",
			Help: "Total number of handled turns by resulting session mode.",
		},
		[]string{"mode"},
	)

	queuedTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "last_signal_queued_turns_total",
			Help: "Total number of asynchronous turns by stage (enqueued, completed, failed, requeued).",
		},
		[]string{"status"},
	)
)

// RecordFallback counts a response served without the model.
func RecordFallback(operation string) {
	fallbacksTotal.WithLabelValues(operation).Inc()
}

// RecordSessionCreated counts a new game session.
func RecordSessionCreated() {
	sessionsTotal.Inc()
}

// RecordTurn counts a handled turn.
func RecordTurn(mode string) {
	turnsTotal.WithLabelValues(mode).Inc()
}

// RecordQueuedTurn counts an asynchronous turn by stage.
func RecordQueuedTurn(status string) {
	queuedTurnsTotal.WithLabelValues(status).Inc()
}
