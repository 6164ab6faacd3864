package engine

import (
	"math"

	"market-engine/src/fixedpoint"
)

// MinAggregateMicroShares keeps both share aggregates strictly positive so the
// implied price never reaches 0 or 1.
const MinAggregateMicroShares = fixedpoint.ShareScale

type PricePoint struct {
	Timestamp int64 // unix milliseconds
	YesPrice  float64
	NoPrice   float64
}

// Market is the aggregate for one binary question. The share aggregates only
// drive the implied price; they are not a ledger of anyone's holdings.
type Market struct {
	ID             string
	Question       string
	YesMicroShares int64
	NoMicroShares  int64
	VolumeCents    int64
	Resolved       bool
	Outcome        Position // empty until resolved
	ClosingDate    int64    // unix milliseconds, 0 when open-ended
	PriceHistory   []PricePoint
}

func (m *Market) Clone() *Market {
	c := *m
	c.PriceHistory = append([]PricePoint(nil), m.PriceHistory...)
	return &c
}

// YesPrice is yesShares / (yesShares + noShares), or 0.5 for an empty market.
func (m *Market) YesPrice() float64 {
	total := m.YesMicroShares + m.NoMicroShares
	if total <= 0 {
		return 0.5
	}
	return float64(m.YesMicroShares) / float64(total)
}

func (m *Market) PriceOf(position Position) float64 {
	if position == PositionYes {
		return m.YesPrice()
	}
	return 1 - m.YesPrice()
}

// ImpliedPriceCents is the resting price for position, clamped into the
// valid order price range.
func (m *Market) ImpliedPriceCents(position Position) int64 {
	cents := int64(math.Round(m.PriceOf(position) * 100))
	if cents < MinPriceCents {
		return MinPriceCents
	}
	if cents > MaxPriceCents {
		return MaxPriceCents
	}
	return cents
}

// AdjustShares moves the aggregate for position by delta micro-shares and
// appends a price snapshot. Reductions stop at MinAggregateMicroShares, so the
// move actually applied is returned.
func (m *Market) AdjustShares(position Position, delta int64, now int64) int64 {
	target := &m.YesMicroShares
	if position == PositionNo {
		target = &m.NoMicroShares
	}
	next := *target + delta
	// edge case: a sell can never push the aggregate to zero or below
	if next < MinAggregateMicroShares {
		next = MinAggregateMicroShares
	}
	if next == *target {
		return 0
	}
	applied := next - *target
	*target = next

	yes := m.YesPrice()
	m.PriceHistory = append(m.PriceHistory, PricePoint{
		Timestamp: now,
		YesPrice:  yes,
		NoPrice:   1 - yes,
	})
	return applied
}

func (m *Market) Closed(now int64) bool {
	return m.ClosingDate > 0 && now > m.ClosingDate
}
