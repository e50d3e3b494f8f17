// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emoji_api_generation_duration_seconds",
			Help:    "Total time taken for emoji generations in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 15, 20, 25, 30, 40, 50, 75, 100, 150, 200, 300},
		},
		[]string{"status"},
	)

	PollAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emoji_api_prediction_poll_attempts",
			Help:    "Number of status polls until a prediction reached a terminal state",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 120, 300},
		},
		[]string{"status"},
	)

	GenerationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emoji_api_generation_count_total",
			Help: "Total number of generation requests processed",
		},
		[]string{"status"},
	)

	CreditOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emoji_api_credit_operations_total",
			Help: "Credit ledger operations by result",
		},
		[]string{"operation", "result"},
	)

	ArtifactBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emoji_api_artifact_bytes_total",
			Help: "Total bytes of generated images written to storage",
		},
	)

	Likes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emoji_api_likes_total",
			Help: "Total likes recorded",
		},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emoji_api_error_count",
			Help: "Error count",
		},
		[]string{"from"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emoji_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
