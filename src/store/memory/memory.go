// Package memory is an in-process Store. Every document carries a version;
// a transaction remembers the version of everything it read and buffers its
// writes, and commit applies them only if none of those versions moved.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"market-engine/src/engine"
	"market-engine/src/store"
)

type Store struct {
	mu       sync.RWMutex
	seq      uint64
	versions map[string]uint64
	docs     map[string]any
	books    map[string]*engine.OrderBook
	trades   map[string][]engine.Trade
	holders  map[string]map[string]struct{}
	policy   store.RetryPolicy
}

var _ store.Store = (*Store)(nil)

func New(policy store.RetryPolicy) *Store {
	return &Store{
		versions: make(map[string]uint64),
		docs:     make(map[string]any),
		books:    make(map[string]*engine.OrderBook),
		trades:   make(map[string][]engine.Trade),
		holders:  make(map[string]map[string]struct{}),
		policy:   policy,
	}
}

func marketKey(marketID string) string { return "markets/" + marketID }

func userKey(userID string) string { return "users/" + userID }

func orderKey(marketID, orderID string) string {
	return "markets/" + marketID + "/orders/" + orderID
}

func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	return store.Retry(ctx, s.policy, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := newTx(s)
		if err := fn(ctx, t); err != nil {
			return err
		}
		return s.commit(t)
	})
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, seen := range t.reads {
		if s.versions[key] != seen {
			return fmt.Errorf("%s changed since read: %w", key, store.ErrConflict)
		}
	}

	for _, key := range t.order {
		w := t.writes[key]
		s.seq++
		s.versions[key] = s.seq
		prev := s.docs[key]
		if w.deleted {
			delete(s.docs, key)
		} else {
			s.docs[key] = w.value
		}
		s.index(prev, w)
	}

	for _, trade := range t.trades {
		s.trades[trade.MarketID] = append(s.trades[trade.MarketID], trade)
	}
	return nil
}

// index keeps the order books and the position holder sets in step with a
// committed write.
func (s *Store) index(prev any, w write) {
	switch v := w.value.(type) {
	case *engine.Order:
		book := s.bookLocked(v.MarketID)
		if w.deleted {
			book.RemoveOrder(v.ID)
		} else {
			book.AddOrder(v)
		}
	case *engine.User:
		before := openMarkets(prev)
		after := openMarkets(v)
		for marketID := range before {
			if _, still := after[marketID]; !still {
				delete(s.holders[marketID], v.ID)
			}
		}
		for marketID := range after {
			set, ok := s.holders[marketID]
			if !ok {
				set = make(map[string]struct{})
				s.holders[marketID] = set
			}
			set[v.ID] = struct{}{}
		}
	}
}

func openMarkets(doc any) map[string]struct{} {
	out := make(map[string]struct{})
	u, ok := doc.(*engine.User)
	if !ok || u == nil {
		return out
	}
	for _, p := range u.Positions {
		if !p.Settled {
			out[p.MarketID] = struct{}{}
		}
	}
	return out
}

func (s *Store) bookLocked(marketID string) *engine.OrderBook {
	book, ok := s.books[marketID]
	if !ok {
		book = engine.NewOrderBook(marketID)
		s.books[marketID] = book
	}
	return book
}

func (s *Store) QueryOrders(ctx context.Context, q engine.BookQuery) ([]engine.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[q.MarketID]
	if !ok {
		return []engine.Order{}, nil
	}
	return book.Candidates(q), nil
}

func (s *Store) Depth(ctx context.Context, marketID string, side engine.OrderSide, position engine.Position, depth int) ([]engine.OrderBookSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[marketID]
	if !ok {
		return []engine.OrderBookSnapshot{}, nil
	}
	return book.Depth(side, position, depth), nil
}

func (s *Store) UsersWithOpenPositions(ctx context.Context, marketID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.holders[marketID]))
	for id := range s.holders[marketID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Trades returns a copy of the trade log of a market.
func (s *Store) Trades(marketID string) []engine.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]engine.Trade(nil), s.trades[marketID]...)
}

// Seed writes markets and users in a single transaction. It stands in for
// the market and account management that lives outside this service.
func (s *Store) Seed(ctx context.Context, markets []*engine.Market, users []*engine.User) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, m := range markets {
			if err := tx.SetMarket(ctx, m); err != nil {
				return err
			}
		}
		for _, u := range users {
			if err := tx.SetUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Close() {}
