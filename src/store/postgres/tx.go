package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"market-engine/src/engine"
	"market-engine/src/fixedpoint"
)

// tx adapts a serializable pgx transaction to store.Tx. Money columns are
// NUMERIC dollars and cross the boundary as text, converted through decimal.
type tx struct {
	tx pgx.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

func centsFromText(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return fixedpoint.CentsFromDecimal(d), nil
}

func textFromCents(cents int64) string {
	return fixedpoint.DecimalFromCents(cents).StringFixed(2)
}

func (t *tx) GetMarket(ctx context.Context, marketID string) (*engine.Market, error) {
	var (
		m       engine.Market
		outcome string
		volume  string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, question, yes_micro_shares, no_micro_shares, volume::text, resolved, outcome, closing_date, price_history
		FROM markets
		WHERE id = $1`, marketID,
	).Scan(&m.ID, &m.Question, &m.YesMicroShares, &m.NoMicroShares, &volume, &m.Resolved, &outcome, &m.ClosingDate, &m.PriceHistory)
	if err != nil {
		return nil, classify(err)
	}
	m.Outcome = engine.Position(outcome)
	if m.VolumeCents, err = centsFromText(volume); err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *tx) GetUser(ctx context.Context, userID string) (*engine.User, error) {
	var (
		u                 engine.User
		balance, reserved string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, balance::text, reserved::text, is_admin, positions
		FROM users
		WHERE id = $1`, userID,
	).Scan(&u.ID, &balance, &reserved, &u.IsAdmin, &u.Positions)
	if err != nil {
		return nil, classify(err)
	}
	if u.BalanceCents, err = centsFromText(balance); err != nil {
		return nil, err
	}
	if u.ReservedCents, err = centsFromText(reserved); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanOrder(row scanner) (*engine.Order, error) {
	var (
		o              engine.Order
		side, position string
	)
	if err := row.Scan(&o.ID, &o.MarketID, &o.UserID, &side, &position, &o.PriceCents, &o.MicroShares, &o.ReservedCents, &o.AggregateMicroShares, &o.CreatedAt); err != nil {
		return nil, classify(err)
	}
	o.Side = engine.OrderSide(side)
	o.Position = engine.Position(position)
	if !o.Valid() {
		return nil, fmt.Errorf("order %s in market %s is not valid", o.ID, o.MarketID)
	}
	return &o, nil
}

func (t *tx) GetOrder(ctx context.Context, marketID, orderID string) (*engine.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `
		SELECT id, market_id, user_id, side, position, price_cents, micro_shares, reserved_cents, aggregate_micro_shares, created_at
		FROM orders
		WHERE market_id = $1 AND id = $2`, marketID, orderID))
}

func (t *tx) SetMarket(ctx context.Context, m *engine.Market) error {
	history := m.PriceHistory
	if history == nil {
		history = []engine.PricePoint{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO markets (id, question, yes_micro_shares, no_micro_shares, volume, resolved, outcome, closing_date, price_history)
		VALUES ($1, $2, $3, $4, CAST($5::text AS NUMERIC), $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			question = EXCLUDED.question,
			yes_micro_shares = EXCLUDED.yes_micro_shares,
			no_micro_shares = EXCLUDED.no_micro_shares,
			volume = EXCLUDED.volume,
			resolved = EXCLUDED.resolved,
			outcome = EXCLUDED.outcome,
			closing_date = EXCLUDED.closing_date,
			price_history = EXCLUDED.price_history`,
		m.ID, m.Question, m.YesMicroShares, m.NoMicroShares, textFromCents(m.VolumeCents),
		m.Resolved, string(m.Outcome), m.ClosingDate, history,
	)
	return classify(err)
}

func (t *tx) SetUser(ctx context.Context, u *engine.User) error {
	positions := u.Positions
	if positions == nil {
		positions = []engine.PositionEntry{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO users (id, balance, reserved, is_admin, positions)
		VALUES ($1, CAST($2::text AS NUMERIC), CAST($3::text AS NUMERIC), $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			balance = EXCLUDED.balance,
			reserved = EXCLUDED.reserved,
			is_admin = EXCLUDED.is_admin,
			positions = EXCLUDED.positions`,
		u.ID, textFromCents(u.BalanceCents), textFromCents(u.ReservedCents), u.IsAdmin, positions,
	)
	return classify(err)
}

func (t *tx) SetOrder(ctx context.Context, o *engine.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (market_id, id, user_id, side, position, price_cents, micro_shares, reserved_cents, aggregate_micro_shares, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (market_id, id) DO UPDATE SET
			micro_shares = EXCLUDED.micro_shares,
			reserved_cents = EXCLUDED.reserved_cents,
			aggregate_micro_shares = EXCLUDED.aggregate_micro_shares`,
		o.MarketID, o.ID, o.UserID, string(o.Side), string(o.Position), o.PriceCents, o.MicroShares, o.ReservedCents, o.AggregateMicroShares, o.CreatedAt,
	)
	return classify(err)
}

func (t *tx) DeleteOrder(ctx context.Context, marketID, orderID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE market_id = $1 AND id = $2`, marketID, orderID)
	return classify(err)
}

func (t *tx) AddTrade(ctx context.Context, trade *engine.Trade) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trades (id, market_id, maker_order_id, buyer_id, seller_id, position, micro_shares, price_cents, total_cents, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		trade.ID, trade.MarketID, trade.MakerOrderID, trade.BuyerID, trade.SellerID, string(trade.Position),
		trade.MicroShares, trade.PriceCents, trade.TotalCents, trade.Timestamp,
	)
	return classify(err)
}
