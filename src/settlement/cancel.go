package settlement

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"market-engine/src/engine"
	"market-engine/src/store"
)

// CancelOrder removes a resting order owned by userID and returns any cash it
// reserved. The aggregate move made when the order rested is undone for the
// quantity still resting, unless the market has since resolved. Only the move
// actually applied is undone, so a sell that hit the aggregate floor does not
// lift the price on cancel.
func (s *Service) CancelOrder(ctx context.Context, marketID, orderID, userID string) (*engine.Order, error) {
	marketID = strings.TrimSpace(marketID)
	orderID = strings.TrimSpace(orderID)
	userID = strings.TrimSpace(userID)
	if marketID == "" || orderID == "" {
		return nil, &ValidationError{Message: "marketId and orderId are required"}
	}
	if userID == "" {
		return nil, &ValidationError{Message: "userId is required"}
	}

	var cancelled *engine.Order
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		cancelled = nil

		order, err := tx.GetOrder(ctx, marketID, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "order", ID: orderID}
		}
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return &NotAuthorizedError{Action: "cancel order " + orderID}
		}

		if order.ReservedCents > 0 {
			owner, err := tx.GetUser(ctx, userID)
			if errors.Is(err, store.ErrNotFound) {
				return &NotFoundError{Kind: "user", ID: userID}
			}
			if err != nil {
				return err
			}
			owner.ReservedCents -= order.ReservedCents
			owner.BalanceCents += order.ReservedCents
			if err := tx.SetUser(ctx, owner); err != nil {
				return err
			}
		}

		market, err := tx.GetMarket(ctx, marketID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if market != nil && !market.Resolved && order.AggregateMicroShares != 0 {
			market.AdjustShares(order.Position, -order.AggregateMicroShares, s.now())
			if err := tx.SetMarket(ctx, market); err != nil {
				return err
			}
		}

		if err := tx.DeleteOrder(ctx, marketID, orderID); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err = translate(err); err != nil {
		log.Warn().
			Err(err).
			Str("market_id", marketID).
			Str("order_id", orderID).
			Str("user_id", userID).
			Msg("Cancel rejected")
		return nil, err
	}

	log.Info().
		Str("market_id", marketID).
		Str("order_id", orderID).
		Str("user_id", userID).
		Int64("released_cents", cancelled.ReservedCents).
		Msg("Order cancelled")

	return cancelled, nil
}
