// Package metrics declares the service's Prometheus collectors. They are
// registered on the default registry and served by promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tapntrack_taps_total",
		Help: "RFID taps handled, by outcome (in, out, duplicate, rejected)",
	}, []string{"outcome"})

	BulkItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tapntrack_bulk_items_total",
		Help: "Items processed by bulk mutations, by action and outcome",
	}, []string{"action", "outcome"})

	RateRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tapntrack_attendance_rate_refresh_total",
		Help: "Attendance rate write-backs, by result",
	}, []string{"result"})

	ViewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tapntrack_view_duration_seconds",
		Help:    "Time spent loading and deriving a list view",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"view"})

	QueueMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tapntrack_queue_messages_total",
		Help: "Queue messages published, dropped or consumed",
	}, []string{"direction", "type"})
)
