package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts scan attempts by action, subject type and outcome.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatelog_scans_total",
			Help: "Total number of QR scans processed",
		},
		[]string{"action", "subject_type", "result"},
	)

	// ForecastDuration observes how long forecast computations take.
	ForecastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatelog_forecast_duration_seconds",
			Help:    "Forecast computation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// QueuePublishFailures counts scan events that could not be enqueued.
	QueuePublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatelog_queue_publish_failures_total",
			Help: "Scan events that failed to publish to the queue",
		},
	)
)
