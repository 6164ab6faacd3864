package models

// PlaceOrderRequest accepts the order side as either "side" or the older
// "type" field; side wins when both are sent.
type PlaceOrderRequest struct {
	UserID   string  `json:"userId"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Position string  `json:"position"`
	Amount   float64 `json:"amount"` // dollars
}

type PlaceOrderResponse struct {
	Status         string            `json:"status"`
	RequestedCents int64             `json:"requestedCents"`
	FilledCents    int64             `json:"filledCents"`
	Trades         []TradeInfo       `json:"trades"`
	RestingOrder   *RestingOrderInfo `json:"restingOrder,omitempty"`
	DroppedCents   int64             `json:"droppedCents"`
	DropReason     string            `json:"dropReason,omitempty"`
	Skipped        map[string]int    `json:"skipped,omitempty"`
}

type TradeInfo struct {
	TradeID      string  `json:"tradeId"`
	MakerOrderID string  `json:"makerOrderId"`
	BuyerID      string  `json:"buyerId"`
	SellerID     string  `json:"sellerId"`
	Position     string  `json:"position"`
	PriceCents   int64   `json:"priceCents"`
	MicroShares  int64   `json:"microShares"`
	Shares       float64 `json:"shares"`
	TotalCents   int64   `json:"totalCents"`
	Timestamp    int64   `json:"timestamp"` // unix timestamp in milliseconds
}

type RestingOrderInfo struct {
	OrderID       string  `json:"orderId"`
	Side          string  `json:"side"`
	Position      string  `json:"position"`
	PriceCents    int64   `json:"priceCents"`
	MicroShares   int64   `json:"microShares"`
	Shares        float64 `json:"shares"`
	ReservedCents int64   `json:"reservedCents"`
	CreatedAt     int64   `json:"createdAt"`
}

type CancelOrderResponse struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	ReleasedCents int64  `json:"releasedCents"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// OrderBookResponse lists both positions of a market. Bids are resting buys
// sorted highest first, asks are resting sells sorted lowest first.
type OrderBookResponse struct {
	MarketID  string       `json:"marketId"`
	Timestamp int64        `json:"timestamp"` // unix timestamp in milliseconds
	Yes       PositionBook `json:"yes"`
	No        PositionBook `json:"no"`
}

type PositionBook struct {
	Bids []PriceLevelInfo `json:"bids"`
	Asks []PriceLevelInfo `json:"asks"`
}

type PriceLevelInfo struct {
	PriceCents  int64   `json:"priceCents"`
	MicroShares int64   `json:"microShares"` // aggregated at this price
	Shares      float64 `json:"shares"`
	Orders      int     `json:"orders"`
}

type ResolveRequest struct {
	Outcome string `json:"outcome"`
}

type SettlementResponse struct {
	MarketID       string `json:"marketId"`
	Outcome        string `json:"outcome"`
	UsersSettled   int    `json:"usersSettled"`
	EntriesSettled int    `json:"entriesSettled"`
	PayoutCents    int64  `json:"payoutCents"`
	OrdersReleased int    `json:"ordersReleased"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	OrdersProcessed int64  `json:"orders_processed"`
}

type MetricsResponse struct {
	OrdersReceived         int64   `json:"orders_received"`
	OrdersFilled           int64   `json:"orders_filled"`
	OrdersRested           int64   `json:"orders_rested"`
	OrdersRejected         int64   `json:"orders_rejected"`
	OrdersCancelled        int64   `json:"orders_cancelled"`
	TradesExecuted         int64   `json:"trades_executed"`
	MarketsResolved        int64   `json:"markets_resolved"`
	LatencyP50Ms           float64 `json:"latency_p50_ms"`
	LatencyP99Ms           float64 `json:"latency_p99_ms"`
	LatencyP999Ms          float64 `json:"latency_p999_ms"`
	ThroughputOrdersPerSec float64 `json:"throughput_orders_per_sec"`
}
