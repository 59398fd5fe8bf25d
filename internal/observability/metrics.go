// Package observability exposes the platform's Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReservationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtflow_reservations_created_total",
			Help: "Total holds successfully created",
		},
	)

	ReservationConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtflow_reservation_conflicts_total",
			Help: "Total reservation attempts rejected because the interval was booked or held",
		},
	)

	HoldsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtflow_holds_swept_total",
			Help: "Total expired holds removed by the sweep job",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtflow_events_published_total",
			Help: "Total events published on the room bus",
		},
		[]string{"type"},
	)

	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courtflow_realtime_connections",
			Help: "Currently open realtime connections",
		},
	)

	TxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "courtflow_store_tx_seconds",
			Help:    "Duration of store transactions",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
