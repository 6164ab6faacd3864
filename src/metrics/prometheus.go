package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter: orders accepted by the settlement engine, by final status
	OrdersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_orders_placed_total",
			Help: "Total number of orders committed by the settlement engine",
		},
		[]string{"side", "position", "status"},
	)

	// Counter: orders rejected before or during the transaction
	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_orders_rejected_total",
			Help: "Total number of orders rejected, by error kind",
		},
		[]string{"reason"},
	)

	TradesExecutedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "market_trades_executed_total",
			Help: "Total number of trades committed",
		},
	)

	TradedCentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "market_traded_cents_total",
			Help: "Total traded value in cents",
		},
	)

	// Counter: makers passed over during a walk, by reason
	MakersSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_makers_skipped_total",
			Help: "Total number of resting makers skipped while matching",
		},
		[]string{"reason"},
	)

	RemaindersDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_remainders_dropped_total",
			Help: "Total number of unmatched remainders that could not rest",
		},
		[]string{"side"},
	)

	// Histogram: PlaceOrder latency including transaction retries
	PlaceOrderLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "market_place_order_latency_seconds",
			Help:    "Time taken to commit an order, including retries",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3.2s
		},
	)

	TransientFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_transient_failures_total",
			Help: "Operations that exhausted their conflict retries",
		},
		[]string{"operation"},
	)

	MarketsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_resolutions_total",
			Help: "Total number of markets resolved, by outcome",
		},
		[]string{"outcome"},
	)

	PayoutCentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "market_payout_cents_total",
			Help: "Total cents credited by resolution payouts",
		},
	)

	PositionsSettledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "market_positions_settled_total",
			Help: "Total number of position entries marked settled",
		},
	)
)
