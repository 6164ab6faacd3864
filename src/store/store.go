// Package store is the transactional document boundary the settlement engine
// runs on. Implementations give optimistic transactions: reads inside a
// transaction are validated at commit and a concurrent write to anything read
// fails the commit with ErrConflict, which RunTransaction retries from the top.
package store

import (
	"context"
	"errors"

	"market-engine/src/engine"
)

var (
	ErrConflict = errors.New("transaction conflict")
	ErrNotFound = errors.New("document not found")
)

// Tx is valid only inside the function passed to RunTransaction. Reads see
// the transaction's own writes; writes become visible to others only when the
// whole transaction commits.
type Tx interface {
	GetMarket(ctx context.Context, marketID string) (*engine.Market, error)
	GetUser(ctx context.Context, userID string) (*engine.User, error)
	GetOrder(ctx context.Context, marketID, orderID string) (*engine.Order, error)

	SetMarket(ctx context.Context, market *engine.Market) error
	SetUser(ctx context.Context, user *engine.User) error
	SetOrder(ctx context.Context, order *engine.Order) error
	DeleteOrder(ctx context.Context, marketID, orderID string) error
	AddTrade(ctx context.Context, trade *engine.Trade) error
}

// TxFunc must be free of side effects other than calls on tx, since it runs
// again from scratch after every conflict.
type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	// RunTransaction commits fn atomically, retrying on ErrConflict until the
	// retry policy is exhausted, then fails with *RetryExhaustedError.
	RunTransaction(ctx context.Context, fn TxFunc) error

	// QueryOrders is a non-transactional, advisory read of resting makers in
	// price-time priority. Results must be re-read inside a transaction.
	QueryOrders(ctx context.Context, q engine.BookQuery) ([]engine.Order, error)

	// Depth aggregates the resting book of one side and position.
	Depth(ctx context.Context, marketID string, side engine.OrderSide, position engine.Position, depth int) ([]engine.OrderBookSnapshot, error)

	// UsersWithOpenPositions is an advisory index of users holding unsettled
	// entries in a market.
	UsersWithOpenPositions(ctx context.Context, marketID string) ([]string, error)

	Close()
}
