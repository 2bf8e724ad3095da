package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lob",
			Subsystem: "engine",
			Name:      "orders_submitted_total",
			Help:      "Orders submitted, by instrument and outcome",
		},
		[]string{"symbol", "result"},
	)

	ordersCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lob",
			Subsystem: "engine",
			Name:      "cancel_requests_total",
			Help:      "Cancel requests, by instrument and whether an order was removed",
		},
		[]string{"symbol", "result"},
	)

	tradesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lob",
			Subsystem: "engine",
			Name:      "trades_total",
			Help:      "Trades executed",
		},
		[]string{"symbol"},
	)

	matchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lob",
			Subsystem: "engine",
			Name:      "submit_duration_seconds",
			Help:      "Time spent inside the instrument lock per accepted order",
			Buckets:   prometheus.ExponentialBuckets(0.000005, 4, 10),
		},
		[]string{"symbol"},
	)

	restingOrders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lob",
			Subsystem: "engine",
			Name:      "resting_orders",
			Help:      "Active resting orders per instrument and side",
		},
		[]string{"symbol", "side"},
	)

	sinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lob",
			Subsystem: "engine",
			Name:      "sink_errors_total",
			Help:      "Event sink failures",
		},
		[]string{"symbol"},
	)
)
