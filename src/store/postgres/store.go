// Package postgres is a Store on PostgreSQL. Transactions run at SERIALIZABLE
// isolation, so the database performs the read-set validation and reports a
// lost race as a serialization failure, which is mapped to store.ErrConflict.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"market-engine/src/engine"
	"market-engine/src/store"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type Store struct {
	pool   *pgxpool.Pool
	policy store.RetryPolicy
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, policy store.RetryPolicy) *Store {
	return &Store{pool: pool, policy: policy}
}

// classify maps retryable PostgreSQL failures onto store.ErrConflict and
// missing rows onto store.ErrNotFound.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w", pgErr.Message, store.ErrConflict)
		}
	}
	return err
}

func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	return store.Retry(ctx, s.policy, func() error {
		return s.runOnce(ctx, fn)
	})
}

func (s *Store) runOnce(ctx context.Context, fn store.TxFunc) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Debug().Err(rbErr).Msg("Rollback failed")
			}
		}
	}()

	if err := fn(ctx, &tx{tx: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return classify(err)
	}
	committed = true
	return nil
}

// orderDirection is the SQL sort direction for a book query's price column.
func orderDirection(q engine.BookQuery) string {
	if q.PriceAscending() {
		return "ASC"
	}
	return "DESC"
}

func (s *Store) QueryOrders(ctx context.Context, q engine.BookQuery) ([]engine.Order, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = engine.DefaultCandidateLimit
	}
	sql := `
		SELECT id, market_id, user_id, side, position, price_cents, micro_shares, reserved_cents, aggregate_micro_shares, created_at
		FROM orders
		WHERE market_id = $1 AND side = $2 AND position = $3
		ORDER BY price_cents ` + orderDirection(q) + `, created_at ASC, id ASC
		LIMIT $4`

	rows, err := s.pool.Query(ctx, sql, q.MarketID, string(q.Side), string(q.Position), limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]engine.Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func (s *Store) Depth(ctx context.Context, marketID string, side engine.OrderSide, position engine.Position, depth int) ([]engine.OrderBookSnapshot, error) {
	if depth <= 0 {
		return nil, nil
	}
	q := engine.BookQuery{MarketID: marketID, Side: side, Position: position, Limit: depth}
	sql := `
		SELECT price_cents, SUM(micro_shares)::bigint, COUNT(*)::int
		FROM orders
		WHERE market_id = $1 AND side = $2 AND position = $3
		GROUP BY price_cents
		ORDER BY price_cents ` + orderDirection(q) + `
		LIMIT $4`

	rows, err := s.pool.Query(ctx, sql, marketID, string(side), string(position), depth)
	if err != nil {
		return nil, fmt.Errorf("query depth: %w", err)
	}
	defer rows.Close()

	levels := make([]engine.OrderBookSnapshot, 0, depth)
	for rows.Next() {
		var level engine.OrderBookSnapshot
		if err := rows.Scan(&level.Price, &level.MicroShares, &level.Orders); err != nil {
			return nil, fmt.Errorf("scan depth: %w", err)
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate depth: %w", err)
	}
	return levels, nil
}

// UsersWithOpenPositions uses JSONB containment on the positions column, so
// the GIN index answers it without scanning every user.
func (s *Store) UsersWithOpenPositions(ctx context.Context, marketID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM users
		WHERE positions @> jsonb_build_array(jsonb_build_object('MarketID', $1::text, 'Settled', false))
		ORDER BY id`, marketID)
	if err != nil {
		return nil, fmt.Errorf("query holders: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect holders: %w", err)
	}
	return ids, nil
}

func (s *Store) Close() {
	s.pool.Close()
}
