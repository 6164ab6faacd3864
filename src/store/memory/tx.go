package memory

import (
	"context"
	"fmt"

	"market-engine/src/engine"
	"market-engine/src/store"
)

type write struct {
	value   any
	deleted bool
}

type tx struct {
	s      *Store
	reads  map[string]uint64
	writes map[string]write
	order  []string
	trades []engine.Trade
}

func newTx(s *Store) *tx {
	return &tx{
		s:      s,
		reads:  make(map[string]uint64),
		writes: make(map[string]write),
	}
}

// get returns the transaction's view of key: its own pending write if any,
// otherwise the committed document, recording the version that was seen.
func (t *tx) get(key string) (any, error) {
	if w, ok := t.writes[key]; ok {
		if w.deleted {
			return nil, store.ErrNotFound
		}
		return w.value, nil
	}

	t.s.mu.RLock()
	version := t.s.versions[key]
	doc, exists := t.s.docs[key]
	t.s.mu.RUnlock()

	if seen, ok := t.reads[key]; ok && seen != version {
		// edge case: the document moved between two reads in this transaction
		return nil, fmt.Errorf("%s changed during transaction: %w", key, store.ErrConflict)
	}
	t.reads[key] = version

	if !exists {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

func (t *tx) put(key string, w write) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
}

func (t *tx) GetMarket(ctx context.Context, marketID string) (*engine.Market, error) {
	doc, err := t.get(marketKey(marketID))
	if err != nil {
		return nil, err
	}
	return doc.(*engine.Market).Clone(), nil
}

func (t *tx) GetUser(ctx context.Context, userID string) (*engine.User, error) {
	doc, err := t.get(userKey(userID))
	if err != nil {
		return nil, err
	}
	return doc.(*engine.User).Clone(), nil
}

func (t *tx) GetOrder(ctx context.Context, marketID, orderID string) (*engine.Order, error) {
	doc, err := t.get(orderKey(marketID, orderID))
	if err != nil {
		return nil, err
	}
	return doc.(*engine.Order).Clone(), nil
}

func (t *tx) SetMarket(ctx context.Context, market *engine.Market) error {
	t.put(marketKey(market.ID), write{value: market.Clone()})
	return nil
}

func (t *tx) SetUser(ctx context.Context, user *engine.User) error {
	t.put(userKey(user.ID), write{value: user.Clone()})
	return nil
}

func (t *tx) SetOrder(ctx context.Context, order *engine.Order) error {
	t.put(orderKey(order.MarketID, order.ID), write{value: order.Clone()})
	return nil
}

func (t *tx) DeleteOrder(ctx context.Context, marketID, orderID string) error {
	t.put(orderKey(marketID, orderID), write{
		value:   &engine.Order{ID: orderID, MarketID: marketID},
		deleted: true,
	})
	return nil
}

func (t *tx) AddTrade(ctx context.Context, trade *engine.Trade) error {
	t.trades = append(t.trades, *trade)
	return nil
}
