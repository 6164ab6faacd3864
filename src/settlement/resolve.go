package settlement

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"market-engine/src/engine"
	"market-engine/src/fixedpoint"
	"market-engine/src/metrics"
	"market-engine/src/store"
)

// releaseBatch is how many resting orders one sweep query pulls at a time.
const releaseBatch = 100

// SettlementReport summarises one sweep. A sweep that finds nothing left to
// do reports zeros.
type SettlementReport struct {
	MarketID       string
	Outcome        engine.Position
	UsersSettled   int
	EntriesSettled int
	PayoutCents    int64
	OrdersReleased int
}

// ResolveMarket fixes the outcome of a market exactly once and then pays it
// out. A second call fails with AlreadyResolvedError and changes nothing; use
// SettleMarket to finish a sweep that was interrupted.
func (s *Service) ResolveMarket(ctx context.Context, marketID, outcome string, isAdmin bool) (*SettlementReport, error) {
	if !isAdmin {
		return nil, &NotAuthorizedError{Action: "resolve market " + marketID}
	}
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, &ValidationError{Message: "marketId is required"}
	}
	position, err := engine.ParsePosition(outcome)
	if err != nil {
		return nil, &ValidationError{Message: "outcome must be 'yes' or 'no'"}
	}

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		market, err := tx.GetMarket(ctx, marketID)
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "market", ID: marketID}
		}
		if err != nil {
			return err
		}
		if market.Resolved {
			return &AlreadyResolvedError{MarketID: marketID, Outcome: market.Outcome}
		}
		market.Resolved = true
		market.Outcome = position
		return tx.SetMarket(ctx, market)
	})
	if err = translate(err); err != nil {
		log.Warn().Err(err).Str("market_id", marketID).Str("outcome", outcome).Msg("Resolution rejected")
		return nil, err
	}

	metrics.MarketsResolvedTotal.WithLabelValues(string(position)).Inc()
	log.Info().Str("market_id", marketID).Str("outcome", string(position)).Msg("Market resolved")

	return s.settle(ctx, marketID)
}

// SettleMarket runs the payout sweep for an already resolved market. Settled
// entries are never touched again, so it is safe to run any number of times.
func (s *Service) SettleMarket(ctx context.Context, marketID string, isAdmin bool) (*SettlementReport, error) {
	if !isAdmin {
		return nil, &NotAuthorizedError{Action: "settle market " + marketID}
	}
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, &ValidationError{Message: "marketId is required"}
	}
	return s.settle(ctx, marketID)
}

func (s *Service) settle(ctx context.Context, marketID string) (*SettlementReport, error) {
	start := time.Now()

	var outcome engine.Position
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		market, err := tx.GetMarket(ctx, marketID)
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "market", ID: marketID}
		}
		if err != nil {
			return err
		}
		if !market.Resolved {
			return &ValidationError{Message: "market " + marketID + " is not resolved"}
		}
		outcome = market.Outcome
		return nil
	})
	if err = translate(err); err != nil {
		return nil, err
	}

	report := &SettlementReport{MarketID: marketID, Outcome: outcome}

	released, err := s.releaseRestingOrders(ctx, marketID)
	report.OrdersReleased = released
	if err != nil {
		return report, translate(err)
	}

	userIDs, err := s.store.UsersWithOpenPositions(ctx, marketID)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SettleConcurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			entries, payout, err := s.settleUser(gctx, marketID, userID, outcome)
			if err != nil {
				return err
			}
			if entries == 0 {
				return nil
			}
			mu.Lock()
			report.UsersSettled++
			report.EntriesSettled += entries
			report.PayoutCents += payout
			mu.Unlock()
			return nil
		})
	}
	err = translate(g.Wait())

	metrics.PositionsSettledTotal.Add(float64(report.EntriesSettled))
	metrics.PayoutCentsTotal.Add(float64(report.PayoutCents))

	if err != nil {
		var transient *TransientFailure
		if errors.As(err, &transient) {
			metrics.TransientFailuresTotal.WithLabelValues("settle").Inc()
		}
		log.Error().
			Err(err).
			Str("market_id", marketID).
			Int("users_settled", report.UsersSettled).
			Msg("Settlement sweep interrupted, re-run to complete")
		return report, err
	}

	log.Info().
		Str("market_id", marketID).
		Str("outcome", string(outcome)).
		Int("users_settled", report.UsersSettled).
		Int("entries_settled", report.EntriesSettled).
		Int64("payout_cents", report.PayoutCents).
		Int("orders_released", report.OrdersReleased).
		Dur("duration", time.Since(start)).
		Msg("Settlement sweep complete")

	return report, nil
}

// settleUser settles every open entry one user holds in the market, sells
// included. Paying only the positive (bought) winning entries would also pay
// out shares the user later sold on, so the negative winning entries are
// settled too and the user is credited for the net winning holding, floored
// at zero. Each winning entry records its signed share count as payout.
func (s *Service) settleUser(ctx context.Context, marketID, userID string, outcome engine.Position) (int, int64, error) {
	var entries int
	var credit int64
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		entries, credit = 0, 0

		user, err := tx.GetUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// already swept by an earlier run
		if !user.HasOpenPositions(marketID) {
			return nil
		}

		var net int64
		for i := range user.Positions {
			entry := &user.Positions[i]
			if entry.MarketID != marketID || entry.Settled {
				continue
			}
			var payout int64
			if entry.Position == outcome {
				net += entry.MicroShares
				if entry.MicroShares >= 0 {
					payout = fixedpoint.PayoutCents(entry.MicroShares)
				} else {
					payout = -fixedpoint.PayoutCents(-entry.MicroShares)
				}
			}
			entry.Settled = true
			entry.PayoutCents = &payout
			entries++
		}
		if entries == 0 {
			return nil
		}

		credit = fixedpoint.PayoutCents(max(net, 0))
		user.BalanceCents += credit
		return tx.SetUser(ctx, user)
	})
	return entries, credit, err
}

// releaseRestingOrders deletes every order still resting in the market and
// returns reserved cash to its owner.
func (s *Service) releaseRestingOrders(ctx context.Context, marketID string) (int, error) {
	released := 0
	for _, side := range []engine.OrderSide{engine.SideBuy, engine.SideSell} {
		for _, position := range []engine.Position{engine.PositionYes, engine.PositionNo} {
			for {
				batch, err := s.store.QueryOrders(ctx, engine.BookQuery{
					MarketID: marketID,
					Side:     side,
					Position: position,
					Limit:    releaseBatch,
				})
				if err != nil {
					return released, err
				}
				if len(batch) == 0 {
					break
				}
				for _, order := range batch {
					if err := s.releaseOrder(ctx, marketID, order.ID); err != nil {
						return released, err
					}
					released++
				}
			}
		}
	}
	return released, nil
}

func (s *Service) releaseOrder(ctx context.Context, marketID, orderID string) error {
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.GetOrder(ctx, marketID, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if order.ReservedCents > 0 {
			owner, err := tx.GetUser(ctx, order.UserID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if owner != nil {
				owner.ReservedCents -= order.ReservedCents
				owner.BalanceCents += order.ReservedCents
				if err := tx.SetUser(ctx, owner); err != nil {
					return err
				}
			}
		}
		return tx.DeleteOrder(ctx, marketID, orderID)
	})
}
