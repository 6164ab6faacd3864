package settlement

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"market-engine/src/engine"
	"market-engine/src/fixedpoint"
	"market-engine/src/metrics"
	"market-engine/src/store"
)

type PlaceOrderRequest struct {
	MarketID      string
	UserID        string
	Side          string
	Position      string
	AmountDollars float64
}

// PlaceOrderResult reports what one committed order did. Exactly one of
// Resting and DroppedCents describes any unmatched remainder.
type PlaceOrderResult struct {
	Status         engine.OrderStatus
	Trades         []engine.Trade
	RequestedCents int64
	FilledCents    int64
	Resting        *engine.Order
	DroppedCents   int64
	// DropReason is an *InsufficientFundsError or *InsufficientSharesError,
	// or nil when the remainder was too small to price.
	DropReason error
	// Skipped counts makers passed over by reason.
	Skipped map[engine.SkipReason]int
}

const (
	skipStale        engine.SkipReason = "stale"
	skipSelfTrade    engine.SkipReason = "self_trade"
	skipBuyerFunds   engine.SkipReason = "buyer_funds"
	skipSellerShares engine.SkipReason = "seller_shares"
)

type parsedOrder struct {
	marketID string
	userID   string
	side     engine.OrderSide
	position engine.Position
	cents    int64
}

func validatePlaceOrder(req PlaceOrderRequest) (parsedOrder, error) {
	var p parsedOrder
	p.marketID = strings.TrimSpace(req.MarketID)
	p.userID = strings.TrimSpace(req.UserID)
	if p.marketID == "" {
		return p, &ValidationError{Message: "marketId is required"}
	}
	if p.userID == "" {
		return p, &ValidationError{Message: "userId is required"}
	}

	side, err := engine.ParseSide(req.Side)
	if err != nil {
		return p, &ValidationError{Message: err.Error()}
	}
	position, err := engine.ParsePosition(req.Position)
	if err != nil {
		return p, &ValidationError{Message: err.Error()}
	}
	p.side = side
	p.position = position

	if math.IsNaN(req.AmountDollars) || math.IsInf(req.AmountDollars, 0) || req.AmountDollars <= 0 {
		return p, &ValidationError{Message: "amount must be a positive number of dollars"}
	}
	p.cents = fixedpoint.ToCents(req.AmountDollars)
	// edge case: amounts below half a cent round to nothing
	if p.cents <= 0 {
		return p, &ValidationError{Message: "amount must be at least $0.01"}
	}
	return p, nil
}

// PlaceOrder matches a taker against the resting book and rests or drops the
// remainder, all in one transaction. The candidate query runs once, outside
// the transaction; every candidate is re-read inside it on each attempt.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	start := time.Now()

	p, err := validatePlaceOrder(req)
	if err != nil {
		metrics.OrdersRejectedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	candidates, err := s.store.QueryOrders(ctx, engine.CandidateQuery(p.marketID, p.side, p.position, s.cfg.CandidateLimit))
	if err != nil {
		return nil, err
	}
	// ties broken by id whichever store answered
	engine.SortByPriority(candidates)

	var result *PlaceOrderResult
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		// per attempt state only; a retry starts from nothing
		w := &walk{
			tx:    tx,
			p:     p,
			now:   s.now(),
			users: make(map[string]*engine.User),
			dirty: make(map[string]bool),
			result: &PlaceOrderResult{
				RequestedCents: p.cents,
				Trades:         make([]engine.Trade, 0),
				Skipped:        make(map[engine.SkipReason]int),
			},
		}
		if err := w.run(ctx, candidates); err != nil {
			return err
		}
		result = w.result
		return nil
	})
	err = translate(err)
	if err != nil {
		recordRejection(err)
		log.Warn().
			Err(err).
			Str("market_id", p.marketID).
			Str("user_id", p.userID).
			Str("side", string(p.side)).
			Str("position", string(p.position)).
			Int64("amount_cents", p.cents).
			Msg("Order rejected")
		return nil, err
	}

	recordPlaced(p, result)
	metrics.PlaceOrderLatencySeconds.Observe(time.Since(start).Seconds())

	if result.Status == engine.StatusRemainderDropped {
		log.Warn().
			Err(result.DropReason).
			Str("market_id", p.marketID).
			Str("user_id", p.userID).
			Str("side", string(p.side)).
			Int64("dropped_cents", result.DroppedCents).
			Msg("Remainder dropped")
	}

	log.Info().
		Str("market_id", p.marketID).
		Str("user_id", p.userID).
		Str("side", string(p.side)).
		Str("position", string(p.position)).
		Str("status", string(result.Status)).
		Int("trades", len(result.Trades)).
		Int64("filled_cents", result.FilledCents).
		Int64("dropped_cents", result.DroppedCents).
		Msg("Order placed")

	return result, nil
}

type walk struct {
	tx     store.Tx
	p      parsedOrder
	now    int64
	market *engine.Market
	users  map[string]*engine.User
	dirty  map[string]bool

	marketDirty bool
	remaining   int64
	result      *PlaceOrderResult
}

func (w *walk) user(ctx context.Context, userID string) (*engine.User, error) {
	if u, ok := w.users[userID]; ok {
		return u, nil
	}
	u, err := w.tx.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	w.users[userID] = u
	return u, nil
}

func (w *walk) run(ctx context.Context, candidates []engine.Order) error {
	market, err := w.tx.GetMarket(ctx, w.p.marketID)
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Kind: "market", ID: w.p.marketID}
	}
	if err != nil {
		return err
	}
	if market.Resolved {
		return &AlreadyResolvedError{MarketID: market.ID, Outcome: market.Outcome}
	}
	if market.Closed(w.now) {
		return &ValidationError{Message: "market " + market.ID + " is closed for trading"}
	}
	w.market = market

	if _, err := w.user(ctx, w.p.userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "user", ID: w.p.userID}
		}
		return err
	}

	w.remaining = w.p.cents
	for i := range candidates {
		if w.remaining <= 0 {
			break
		}
		if err := w.consume(ctx, &candidates[i]); err != nil {
			return err
		}
	}

	if w.remaining > 0 {
		if err := w.rest(ctx); err != nil {
			return err
		}
	}
	w.result.Status = w.status()

	if w.marketDirty {
		if err := w.tx.SetMarket(ctx, w.market); err != nil {
			return err
		}
	}
	for id := range w.dirty {
		if err := w.tx.SetUser(ctx, w.users[id]); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) skip(reason engine.SkipReason, makerOrderID string) {
	w.result.Skipped[reason]++
	log.Debug().
		Str("market_id", w.p.marketID).
		Str("maker_order_id", makerOrderID).
		Str("reason", string(reason)).
		Int64("remaining_cents", w.remaining).
		Msg("Maker skipped")
}

// consume trades against one candidate. Every reason not to trade is a skip,
// never an error; only store failures abort the walk.
func (w *walk) consume(ctx context.Context, candidate *engine.Order) error {
	maker, err := w.tx.GetOrder(ctx, w.p.marketID, candidate.ID)
	if errors.Is(err, store.ErrNotFound) {
		w.skip(skipStale, candidate.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if maker.Side != w.p.side.Opposite() || maker.Position != w.p.position {
		w.skip(skipStale, candidate.ID)
		return nil
	}
	if maker.UserID == w.p.userID {
		w.skip(skipSelfTrade, candidate.ID)
		return nil
	}

	makerUser, err := w.user(ctx, maker.UserID)
	if errors.Is(err, store.ErrNotFound) {
		w.skip(skipStale, candidate.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if maker.Side == engine.SideSell {
		held := makerUser.NetHolding(w.p.marketID, w.p.position)
		if held < maker.MicroShares {
			live, err := w.prune(ctx, maker, held)
			if err != nil || !live {
				return err
			}
		}
	}

	want := fixedpoint.AffordableMicroShares(w.remaining, maker.PriceCents)
	exec, reason := engine.Fill(w.p.userID, maker, want)
	if reason != engine.SkipNone {
		w.skip(reason, candidate.ID)
		return nil
	}
	taker := w.users[w.p.userID]

	buyer, seller := taker, makerUser
	if w.p.side == engine.SideSell {
		buyer, seller = makerUser, taker
	}

	// a taker buyer pays from balance; a maker buyer pays from the cash its
	// resting order reserved
	if w.p.side == engine.SideBuy {
		if buyer.BalanceCents < exec.TotalCents {
			w.skip(skipBuyerFunds, candidate.ID)
			return nil
		}
	} else if maker.ReservedCents < exec.TotalCents || buyer.ReservedCents < exec.TotalCents {
		w.skip(skipBuyerFunds, candidate.ID)
		return nil
	}
	if seller.NetHolding(w.p.marketID, w.p.position) < exec.MicroShares {
		w.skip(skipSellerShares, candidate.ID)
		return nil
	}

	if w.p.side == engine.SideBuy {
		buyer.BalanceCents -= exec.TotalCents
	} else {
		buyer.ReservedCents -= exec.TotalCents
		maker.ReservedCents -= exec.TotalCents
	}
	seller.BalanceCents += exec.TotalCents

	// the traded part of the aggregate move stays with the market
	maker.ShrinkTo(maker.MicroShares - exec.MicroShares)
	// edge case: a remainder worth less than a cent can never trade again
	if !tradable(maker) {
		if maker.ReservedCents > 0 {
			makerUser.ReservedCents -= maker.ReservedCents
			makerUser.BalanceCents += maker.ReservedCents
		}
		if err := w.tx.DeleteOrder(ctx, maker.MarketID, maker.ID); err != nil {
			return err
		}
	} else if err := w.tx.SetOrder(ctx, maker); err != nil {
		return err
	}

	trade := engine.Trade{
		ID:           uuid.New().String(),
		MarketID:     w.p.marketID,
		MakerOrderID: maker.ID,
		BuyerID:      buyer.ID,
		SellerID:     seller.ID,
		Position:     w.p.position,
		MicroShares:  exec.MicroShares,
		PriceCents:   exec.PriceCents,
		TotalCents:   exec.TotalCents,
		Timestamp:    w.now,
	}
	if err := w.tx.AddTrade(ctx, &trade); err != nil {
		return err
	}

	buyer.Positions = append(buyer.Positions, engine.PositionEntry{
		MarketID:    w.p.marketID,
		Position:    w.p.position,
		MicroShares: exec.MicroShares,
		AmountCents: exec.TotalCents,
		PriceCents:  exec.PriceCents,
		Timestamp:   w.now,
	})
	seller.Positions = append(seller.Positions, engine.PositionEntry{
		MarketID:    w.p.marketID,
		Position:    w.p.position,
		MicroShares: -exec.MicroShares,
		AmountCents: exec.TotalCents,
		PriceCents:  exec.PriceCents,
		Timestamp:   w.now,
	})
	w.dirty[buyer.ID] = true
	w.dirty[seller.ID] = true

	w.market.VolumeCents += exec.TotalCents
	w.marketDirty = true

	w.remaining -= exec.TotalCents
	w.result.FilledCents += exec.TotalCents
	w.result.Trades = append(w.result.Trades, trade)
	return nil
}

func tradable(o *engine.Order) bool {
	return o.MicroShares > 0 && fixedpoint.TotalCents(o.MicroShares, o.PriceCents) > 0
}

// prune cuts a resting sell down to what its seller still holds, deleting it
// when nothing tradable is left, and undoes the aggregate move of the cut
// quantity. It reports whether the order is still live.
func (w *walk) prune(ctx context.Context, maker *engine.Order, held int64) (bool, error) {
	released := maker.ShrinkTo(max(held, 0))
	if released != 0 {
		w.market.AdjustShares(maker.Position, -released, w.now)
		w.marketDirty = true
	}

	if !tradable(maker) {
		w.skip(skipSellerShares, maker.ID)
		if maker.AggregateMicroShares != 0 {
			w.market.AdjustShares(maker.Position, -maker.AggregateMicroShares, w.now)
			w.marketDirty = true
		}
		return false, w.tx.DeleteOrder(ctx, maker.MarketID, maker.ID)
	}

	log.Debug().
		Str("market_id", w.p.marketID).
		Str("maker_order_id", maker.ID).
		Int64("micro_shares", maker.MicroShares).
		Msg("Uncovered sell cut to holding")
	return true, w.tx.SetOrder(ctx, maker)
}

// rest places the unmatched remainder at the market's implied price, or drops
// it when the placer cannot back it.
func (w *walk) rest(ctx context.Context) error {
	price := w.market.ImpliedPriceCents(w.p.position)
	micro := fixedpoint.AffordableMicroShares(w.remaining, price)
	cost := fixedpoint.TotalCents(micro, price)
	if micro <= 0 || cost <= 0 {
		w.drop(nil)
		return nil
	}

	placer := w.users[w.p.userID]
	order := engine.NewOrder(w.p.marketID, w.p.userID, w.p.side, w.p.position, price, micro)
	order.CreatedAt = w.now
	if !order.Valid() {
		w.drop(nil)
		return nil
	}

	if w.p.side == engine.SideBuy {
		if placer.BalanceCents < cost {
			w.drop(&InsufficientFundsError{RequiredCents: cost, AvailableCents: placer.BalanceCents})
			return nil
		}
		placer.BalanceCents -= cost
		placer.ReservedCents += cost
		order.ReservedCents = cost
		w.dirty[placer.ID] = true
		order.AggregateMicroShares = w.market.AdjustShares(w.p.position, micro, w.now)
	} else {
		held := placer.NetHolding(w.p.marketID, w.p.position)
		if held < micro {
			w.drop(&InsufficientSharesError{Position: w.p.position, RequiredMicroShares: micro, HeldMicroShares: held})
			return nil
		}
		order.AggregateMicroShares = w.market.AdjustShares(w.p.position, -micro, w.now)
	}
	w.marketDirty = true

	if err := w.tx.SetOrder(ctx, order); err != nil {
		return err
	}
	w.result.Resting = order
	w.remaining -= cost
	return nil
}

func (w *walk) drop(reason error) {
	w.result.DroppedCents = w.remaining
	w.result.DropReason = reason
}

func (w *walk) status() engine.OrderStatus {
	switch {
	case w.result.Resting != nil && len(w.result.Trades) > 0:
		return engine.StatusPartialFill
	case w.result.Resting != nil:
		return engine.StatusResting
	case w.result.DroppedCents > 0:
		return engine.StatusRemainderDropped
	default:
		return engine.StatusFilled
	}
}

func recordPlaced(p parsedOrder, result *PlaceOrderResult) {
	metrics.OrdersPlacedTotal.WithLabelValues(string(p.side), string(p.position), string(result.Status)).Inc()
	metrics.TradesExecutedTotal.Add(float64(len(result.Trades)))
	metrics.TradedCentsTotal.Add(float64(result.FilledCents))
	for reason, n := range result.Skipped {
		metrics.MakersSkippedTotal.WithLabelValues(string(reason)).Add(float64(n))
	}
	if result.Status == engine.StatusRemainderDropped {
		metrics.RemaindersDroppedTotal.WithLabelValues(string(p.side)).Inc()
	}
}

func recordRejection(err error) {
	metrics.OrdersRejectedTotal.WithLabelValues(ErrorKind(err)).Inc()
	var transient *TransientFailure
	if errors.As(err, &transient) {
		metrics.TransientFailuresTotal.WithLabelValues("place_order").Inc()
	}
}
