package engine

import "market-engine/src/fixedpoint"

// Taker is the incoming order being matched.
type Taker struct {
	UserID      string
	Side        OrderSide
	Position    Position
	MicroShares int64
}

// Execution is one proposed trade between the taker and a resting maker.
type Execution struct {
	MakerOrderID string
	MakerUserID  string
	TakerUserID  string
	MicroShares  int64
	PriceCents   int64
	TotalCents   int64
}

type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipInvalidMaker SkipReason = "invalid_maker"
	SkipNoQuantity   SkipReason = "no_quantity"
	SkipZeroValue    SkipReason = "zero_value"
)

// Fill sizes a single execution of up to want micro-shares against maker at
// the maker's price. It is the only place trade quantity and value are
// derived, for both the pure matcher and the transactional settlement walk.
func Fill(takerUserID string, maker *Order, want int64) (Execution, SkipReason) {
	if maker.PriceCents <= 0 || maker.MicroShares <= 0 {
		return Execution{}, SkipInvalidMaker
	}
	qty := min(want, maker.MicroShares)
	if qty <= 0 {
		return Execution{}, SkipNoQuantity
	}
	total := fixedpoint.TotalCents(qty, maker.PriceCents)
	// edge case: never emit a trade whose value floors to zero cents
	if total <= 0 {
		return Execution{}, SkipZeroValue
	}
	return Execution{
		MakerOrderID: maker.ID,
		MakerUserID:  maker.UserID,
		TakerUserID:  takerUserID,
		MicroShares:  qty,
		PriceCents:   maker.PriceCents,
		TotalCents:   total,
	}, SkipNone
}

type MatchResult struct {
	Executions           []Execution
	RemainingMicroShares int64
}

// MatchTakerAgainstBook greedily walks makers in the given order, which must
// already be price-time sorted. Makers that cannot trade are skipped, never
// reordered. Whatever the book cannot absorb is returned as the remainder.
func MatchTakerAgainstBook(taker Taker, makers []Order) MatchResult {
	result := MatchResult{
		Executions:           make([]Execution, 0),
		RemainingMicroShares: max(taker.MicroShares, 0),
	}

	for i := range makers {
		if result.RemainingMicroShares <= 0 {
			break
		}
		exec, skip := Fill(taker.UserID, &makers[i], result.RemainingMicroShares)
		if skip != SkipNone {
			continue
		}
		result.Executions = append(result.Executions, exec)
		result.RemainingMicroShares -= exec.MicroShares
	}

	return result
}
