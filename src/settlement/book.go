package settlement

import (
	"context"
	"errors"
	"strings"

	"market-engine/src/engine"
	"market-engine/src/store"
)

// BookView is the aggregated resting book of one market. Bids are buys, best
// (highest) price first; asks are sells, best (lowest) price first.
type BookView struct {
	MarketID string
	YesBids  []engine.OrderBookSnapshot
	YesAsks  []engine.OrderBookSnapshot
	NoBids   []engine.OrderBookSnapshot
	NoAsks   []engine.OrderBookSnapshot
}

// OrderBook reads depth levels of every side and position of a market. The
// levels are an advisory snapshot and may lag concurrent orders.
func (s *Service) OrderBook(ctx context.Context, marketID string, depth int) (*BookView, error) {
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, &ValidationError{Message: "marketId is required"}
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetMarket(ctx, marketID)
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "market", ID: marketID}
		}
		return err
	})
	if err = translate(err); err != nil {
		return nil, err
	}

	view := &BookView{MarketID: marketID}
	targets := []struct {
		side     engine.OrderSide
		position engine.Position
		out      *[]engine.OrderBookSnapshot
	}{
		{engine.SideBuy, engine.PositionYes, &view.YesBids},
		{engine.SideSell, engine.PositionYes, &view.YesAsks},
		{engine.SideBuy, engine.PositionNo, &view.NoBids},
		{engine.SideSell, engine.PositionNo, &view.NoAsks},
	}
	for _, t := range targets {
		levels, err := s.store.Depth(ctx, marketID, t.side, t.position, depth)
		if err != nil {
			return nil, err
		}
		*t.out = levels
	}
	return view, nil
}
