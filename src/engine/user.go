package engine

// PositionEntry is one line of a user's trade history. MicroShares is signed:
// positive for shares bought, negative for shares sold.
type PositionEntry struct {
	MarketID    string
	Position    Position
	MicroShares int64
	AmountCents int64
	PriceCents  int64
	Timestamp   int64 // unix milliseconds
	Settled     bool
	PayoutCents *int64
}

// User is the cash ledger of one participant. ReservedCents is cash committed
// to resting buy orders and is not spendable from BalanceCents.
type User struct {
	ID            string
	BalanceCents  int64
	ReservedCents int64
	IsAdmin       bool
	Positions     []PositionEntry
}

func (u *User) Clone() *User {
	c := *u
	c.Positions = make([]PositionEntry, len(u.Positions))
	for i, p := range u.Positions {
		if p.PayoutCents != nil {
			payout := *p.PayoutCents
			p.PayoutCents = &payout
		}
		c.Positions[i] = p
	}
	return &c
}

// NetHolding sums the unsettled micro-shares the user holds in one position of
// one market.
func (u *User) NetHolding(marketID string, position Position) int64 {
	var net int64
	for _, p := range u.Positions {
		if p.MarketID == marketID && p.Position == position && !p.Settled {
			net += p.MicroShares
		}
	}
	return net
}

func (u *User) HasOpenPositions(marketID string) bool {
	for _, p := range u.Positions {
		if p.MarketID == marketID && !p.Settled {
			return true
		}
	}
	return false
}
