package config

import (
	"market-engine/src/engine"
	"market-engine/src/fixedpoint"
)

// Build converts the seed section into engine documents. Aggregates below one
// share are raised to the minimum so every seeded market has a valid price.
func (s *SeedConfig) Build(now int64) ([]*engine.Market, []*engine.User) {
	markets := make([]*engine.Market, 0, len(s.Markets))
	for _, m := range s.Markets {
		market := &engine.Market{
			ID:             m.ID,
			Question:       m.Question,
			YesMicroShares: max(fixedpoint.ToMicroShares(m.YesShares), engine.MinAggregateMicroShares),
			NoMicroShares:  max(fixedpoint.ToMicroShares(m.NoShares), engine.MinAggregateMicroShares),
		}
		if !m.ClosingDate.IsZero() {
			market.ClosingDate = m.ClosingDate.UnixMilli()
		}
		yes := market.YesPrice()
		market.PriceHistory = []engine.PricePoint{{Timestamp: now, YesPrice: yes, NoPrice: 1 - yes}}
		markets = append(markets, market)
	}

	users := make([]*engine.User, 0, len(s.Users))
	for _, u := range s.Users {
		user := &engine.User{
			ID:           u.ID,
			BalanceCents: fixedpoint.ToCents(u.Balance),
			IsAdmin:      u.IsAdmin,
		}
		for _, h := range u.Holdings {
			position, _ := engine.ParsePosition(h.Position)
			user.Positions = append(user.Positions, engine.PositionEntry{
				MarketID:    h.Market,
				Position:    position,
				MicroShares: fixedpoint.ToMicroShares(h.Shares),
				Timestamp:   now,
			})
		}
		users = append(users, user)
	}
	return markets, users
}
