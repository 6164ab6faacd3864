package handlers

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"market-engine/src/config"
	"market-engine/src/engine"
	"market-engine/src/fixedpoint"
	"market-engine/src/models"
	"market-engine/src/settlement"
)

type OrderHandler struct {
	Service         *settlement.Service
	StartTime       time.Time
	OrdersReceived  int64
	OrdersFilled    int64
	OrdersRested    int64
	OrdersRejected  int64
	OrdersCancelled int64
	TradesExecuted  int64
	MarketsResolved int64

	defaultDepth int
	maxDepth     int

	latencies    []time.Duration
	latenciesMu  sync.RWMutex
	maxLatencies int
}

func NewOrderHandler(svc *settlement.Service, book config.OrderbookConfig, metrics config.MetricsConfig) *OrderHandler {
	maxLatencies := metrics.MaxLatencies
	if maxLatencies <= 0 {
		maxLatencies = config.DefaultMaxLatencies
	}
	defaultDepth := book.DefaultDepth
	if defaultDepth <= 0 {
		defaultDepth = config.DefaultOrderbookDepth
	}
	maxDepth := book.MaxDepth
	if maxDepth <= 0 {
		maxDepth = config.DefaultOrderbookMaxDepth
	}

	return &OrderHandler{
		Service:      svc,
		StartTime:    time.Now(),
		defaultDepth: defaultDepth,
		maxDepth:     maxDepth,
		latencies:    make([]time.Duration, 0, maxLatencies),
		maxLatencies: maxLatencies,
	}
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.PlaceOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return badRequest(c, "Invalid request: malformed JSON")
	}

	side := req.Side
	if side == "" {
		side = req.Type
	}

	atomic.AddInt64(&h.OrdersReceived, 1)
	startTime := time.Now()

	result, err := h.Service.PlaceOrder(c.UserContext(), settlement.PlaceOrderRequest{
		MarketID:      c.Params("marketId"),
		UserID:        req.UserID,
		Side:          side,
		Position:      req.Position,
		AmountDollars: req.Amount,
	})

	h.recordLatency(time.Since(startTime))

	if err != nil {
		atomic.AddInt64(&h.OrdersRejected, 1)
		return respondError(c, err)
	}

	trades := make([]models.TradeInfo, 0, len(result.Trades))
	for _, trade := range result.Trades {
		trades = append(trades, tradeInfo(trade))
	}

	response := models.PlaceOrderResponse{
		Status:         string(result.Status),
		RequestedCents: result.RequestedCents,
		FilledCents:    result.FilledCents,
		Trades:         trades,
		DroppedCents:   result.DroppedCents,
	}
	if result.Resting != nil {
		response.RestingOrder = restingOrderInfo(result.Resting)
	}
	if result.DropReason != nil {
		response.DropReason = result.DropReason.Error()
	}
	if len(result.Skipped) > 0 {
		response.Skipped = make(map[string]int, len(result.Skipped))
		for reason, n := range result.Skipped {
			response.Skipped[string(reason)] = n
		}
	}

	switch result.Status {
	case engine.StatusFilled:
		atomic.AddInt64(&h.OrdersFilled, 1)
	case engine.StatusResting, engine.StatusPartialFill:
		atomic.AddInt64(&h.OrdersRested, 1)
	}
	atomic.AddInt64(&h.TradesExecuted, int64(len(trades)))

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	marketID := c.Params("marketId")
	orderID := c.Params("orderId")

	order, err := h.Service.CancelOrder(c.UserContext(), marketID, orderID, c.Query("userId"))
	if err != nil {
		return respondError(c, err)
	}

	atomic.AddInt64(&h.OrdersCancelled, 1)

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		OrderID:       order.ID,
		Status:        string(engine.StatusCancelled),
		ReleasedCents: order.ReservedCents,
	})
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	depth, err := strconv.Atoi(c.Query("depth", strconv.Itoa(h.defaultDepth)))
	if err != nil || depth <= 0 {
		depth = h.defaultDepth
	}

	// edge case: enforce maximum depth limit
	if depth > h.maxDepth {
		depth = h.maxDepth
	}

	view, err := h.Service.OrderBook(c.UserContext(), c.Params("marketId"), depth)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderBookResponse{
		MarketID:  view.MarketID,
		Timestamp: time.Now().UnixMilli(),
		Yes:       models.PositionBook{Bids: priceLevels(view.YesBids), Asks: priceLevels(view.YesAsks)},
		No:        models.PositionBook{Bids: priceLevels(view.NoBids), Asks: priceLevels(view.NoAsks)},
	})
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	uptime := time.Since(h.StartTime).Seconds()

	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:          "healthy",
		UptimeSeconds:   int64(uptime),
		OrdersProcessed: atomic.LoadInt64(&h.OrdersReceived),
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	p50, p99, p999 := h.calculateLatencyPercentiles()
	throughput := h.calculateThroughput()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersReceived:         atomic.LoadInt64(&h.OrdersReceived),
		OrdersFilled:           atomic.LoadInt64(&h.OrdersFilled),
		OrdersRested:           atomic.LoadInt64(&h.OrdersRested),
		OrdersRejected:         atomic.LoadInt64(&h.OrdersRejected),
		OrdersCancelled:        atomic.LoadInt64(&h.OrdersCancelled),
		TradesExecuted:         atomic.LoadInt64(&h.TradesExecuted),
		MarketsResolved:        atomic.LoadInt64(&h.MarketsResolved),
		LatencyP50Ms:           p50,
		LatencyP99Ms:           p99,
		LatencyP999Ms:          p999,
		ThroughputOrdersPerSec: throughput,
	})
}

func tradeInfo(trade engine.Trade) models.TradeInfo {
	return models.TradeInfo{
		TradeID:      trade.ID,
		MakerOrderID: trade.MakerOrderID,
		BuyerID:      trade.BuyerID,
		SellerID:     trade.SellerID,
		Position:     string(trade.Position),
		PriceCents:   trade.PriceCents,
		MicroShares:  trade.MicroShares,
		Shares:       fixedpoint.ToShares(trade.MicroShares),
		TotalCents:   trade.TotalCents,
		Timestamp:    trade.Timestamp,
	}
}

func restingOrderInfo(order *engine.Order) *models.RestingOrderInfo {
	return &models.RestingOrderInfo{
		OrderID:       order.ID,
		Side:          string(order.Side),
		Position:      string(order.Position),
		PriceCents:    order.PriceCents,
		MicroShares:   order.MicroShares,
		Shares:        fixedpoint.ToShares(order.MicroShares),
		ReservedCents: order.ReservedCents,
		CreatedAt:     order.CreatedAt,
	}
}

func priceLevels(levels []engine.OrderBookSnapshot) []models.PriceLevelInfo {
	out := make([]models.PriceLevelInfo, 0, len(levels))
	for _, level := range levels {
		out = append(out, models.PriceLevelInfo{
			PriceCents:  level.Price,
			MicroShares: level.MicroShares,
			Shares:      fixedpoint.ToShares(level.MicroShares),
			Orders:      level.Orders,
		})
	}
	return out
}

func (h *OrderHandler) recordLatency(latency time.Duration) {
	h.latenciesMu.Lock()
	defer h.latenciesMu.Unlock()

	h.latencies = append(h.latencies, latency)

	// edge case: maintain rolling window by removing oldest measurements
	if len(h.latencies) > h.maxLatencies {
		removeCount := len(h.latencies) - h.maxLatencies
		h.latencies = h.latencies[removeCount:]
	}
}

func (h *OrderHandler) calculateLatencyPercentiles() (p50, p99, p999 float64) {
	h.latenciesMu.RLock()
	sorted := make([]time.Duration, len(h.latencies))
	copy(sorted, h.latencies)
	h.latenciesMu.RUnlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	return percentileMs(sorted, 0.50), percentileMs(sorted, 0.99), percentileMs(sorted, 0.999)
}

func percentileMs(sorted []time.Duration, q float64) float64 {
	idx := int(float64(len(sorted)) * q)
	// edge case: ensure index is within bounds
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx].Nanoseconds()) / 1e6
}

func (h *OrderHandler) calculateThroughput() float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}

	ordersReceived := atomic.LoadInt64(&h.OrdersReceived)
	return float64(ordersReceived) / uptime
}
