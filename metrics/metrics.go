// Package metrics exposes Prometheus counters/gauges for the HTTP surface,
// the websocket hub, the paper matcher, and the feed ingestors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketrouter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketrouter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketrouter_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	WSActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketrouter_ws_active_connections",
			Help: "Number of active authenticated websocket connections",
		},
	)

	WSReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketrouter_feed_reconnects_total",
			Help: "Total number of feed ingestor reconnects",
		},
		[]string{"venue"},
	)

	OrdersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketrouter_orders_placed_total",
			Help: "Total number of order placement attempts",
		},
		[]string{"symbol", "side", "status"}, // status: "accepted", "rejected"
	)

	OrdersFilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketrouter_orders_filled_total",
			Help: "Total number of orders filled by the paper matcher",
		},
		[]string{"symbol", "side"},
	)

	CandlesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketrouter_candles_published_total",
			Help: "Total number of candle frames published",
		},
		[]string{"interval"},
	)
)
