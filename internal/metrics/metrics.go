// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swaparb"

var (
	LoopIterations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loop_iterations_total",
		Help:      "Control loop iterations.",
	})

	Entries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_total",
		Help:      "Swap entries dispatched per symbol.",
	}, []string{"symbol"})

	Unwinds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unwinds_total",
		Help:      "Swap unwinds dispatched per symbol.",
	}, []string{"symbol"})

	OrdersDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_dispatched_total",
		Help:      "Orders dispatched by venue and outcome.",
	}, []string{"venue", "outcome"})

	OrderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "order_latency_seconds",
		Help:      "Time from dispatch to venue acknowledgement.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"venue"})

	UnhedgedLegs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unhedged_legs_total",
		Help:      "Order groups where exactly one leg was accepted.",
	})

	SpreadBp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "spread_bp",
		Help:      "Latest cross-venue spread in basis points.",
	}, []string{"symbol"})

	SwapPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "swap_positions",
		Help:      "Open swap positions.",
	})

	TradingEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trading_enabled",
		Help:      "1 while the is_trading flag is set.",
	})

	FeedReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_reconnects_total",
		Help:      "Market data WebSocket reconnects per venue.",
	}, []string{"venue"})

	SinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_errors_total",
		Help:      "Failed state publishes by destination.",
	}, []string{"destination"})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		LoopIterations,
		Entries,
		Unwinds,
		OrdersDispatched,
		OrderLatency,
		UnhedgedLegs,
		SpreadBp,
		SwapPositions,
		TradingEnabled,
		FeedReconnects,
		SinkErrors,
	)
}
