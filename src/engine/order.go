package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"market-engine/src/fixedpoint"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func ParseSide(s string) (OrderSide, error) {
	switch OrderSide(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid side %q: must be buy or sell", s)
}

func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type Position string

const (
	PositionYes Position = "yes"
	PositionNo  Position = "no"
)

func ParsePosition(s string) (Position, error) {
	switch Position(strings.ToLower(strings.TrimSpace(s))) {
	case PositionYes:
		return PositionYes, nil
	case PositionNo:
		return PositionNo, nil
	}
	return "", fmt.Errorf("invalid position %q: must be yes or no", s)
}

type OrderStatus string

const (
	StatusFilled           OrderStatus = "FILLED"
	StatusPartialFill      OrderStatus = "PARTIAL_FILL"
	StatusResting          OrderStatus = "RESTING"
	StatusRemainderDropped OrderStatus = "REMAINDER_DROPPED"
	StatusCancelled        OrderStatus = "CANCELLED"
)

// edge case: 0 and 100 are degenerate prices for a binary contract
const (
	MinPriceCents int64 = 1
	MaxPriceCents int64 = 99
)

// Order is a resting maker order. Prices are integer cents per share and
// quantities are micro-shares so no float ever touches the book.
type Order struct {
	ID          string
	MarketID    string
	UserID      string
	Side        OrderSide
	Position    Position
	PriceCents  int64
	MicroShares int64
	// ReservedCents is cash held back from the owner's balance for a resting
	// buy order. Always zero for sells.
	ReservedCents int64
	// AggregateMicroShares is the share aggregate move still attributable to
	// the unfilled quantity: positive for buys, negative for sells, smaller
	// than MicroShares when the aggregate floor clamped the move.
	AggregateMicroShares int64
	CreatedAt            int64 // unix milliseconds
}

func NewOrder(marketID, userID string, side OrderSide, position Position, priceCents, microShares int64) *Order {
	return &Order{
		ID:          uuid.New().String(),
		MarketID:    marketID,
		UserID:      userID,
		Side:        side,
		Position:    position,
		PriceCents:  priceCents,
		MicroShares: microShares,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

func (o *Order) Valid() bool {
	return o.PriceCents >= MinPriceCents && o.PriceCents <= MaxPriceCents && o.MicroShares >= 1
}

// ShrinkTo cuts the order down to microShares and returns the part of
// AggregateMicroShares that no longer belongs to it.
func (o *Order) ShrinkTo(microShares int64) int64 {
	if microShares < 0 {
		microShares = 0
	}
	kept := fixedpoint.Prorate(o.AggregateMicroShares, microShares, o.MicroShares)
	released := o.AggregateMicroShares - kept
	o.AggregateMicroShares = kept
	o.MicroShares = microShares
	return released
}

func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// Trade is the immutable record of one execution.
type Trade struct {
	ID           string
	MarketID     string
	MakerOrderID string
	BuyerID      string
	SellerID     string
	Position     Position
	MicroShares  int64
	PriceCents   int64
	TotalCents   int64
	Timestamp    int64 // unix milliseconds
}
