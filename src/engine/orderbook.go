package engine

import (
	"sort"
	"sync"

	"github.com/google/btree"
)

// DefaultCandidateLimit bounds how many makers one settlement transaction
// re-reads. A better maker beyond the bound is not seen; the taker rests
// instead of filling against it.
const DefaultCandidateLimit = 20

// BookQuery selects resting makers of one side and position for a market.
type BookQuery struct {
	MarketID string
	Side     OrderSide // side of the makers, opposite of the taker
	Position Position
	Limit    int
}

// CandidateQuery builds the maker query for a taker on takerSide.
func CandidateQuery(marketID string, takerSide OrderSide, position Position, limit int) BookQuery {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	return BookQuery{
		MarketID: marketID,
		Side:     takerSide.Opposite(),
		Position: position,
		Limit:    limit,
	}
}

// PriceAscending reports whether makers are ranked cheapest first (sellers)
// rather than highest bid first (buyers).
func (q BookQuery) PriceAscending() bool {
	return q.Side == SideSell
}

// PriorityLess orders two makers of the same side: better price first, then
// oldest first, then by id so the order is total.
func PriorityLess(a, b *Order) bool {
	if a.PriceCents != b.PriceCents {
		if a.Side == SideSell {
			return a.PriceCents < b.PriceCents
		}
		return a.PriceCents > b.PriceCents
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}

// SortByPriority sorts makers of one side into price-time priority.
func SortByPriority(makers []Order) {
	sort.SliceStable(makers, func(i, j int) bool {
		return PriorityLess(&makers[i], &makers[j])
	})
}

type PriceLevel struct {
	Price  int64
	Orders []*Order // fifo ordering for time priority
}

type PriceLevelItem struct {
	PriceLevel *PriceLevel
}

func (p *PriceLevelItem) Less(than btree.Item) bool {
	other := than.(*PriceLevelItem)
	return p.PriceLevel.Price > other.PriceLevel.Price
}

type PriceLevelItemAscending struct {
	PriceLevel *PriceLevel
}

func (p *PriceLevelItemAscending) Less(than btree.Item) bool {
	other := than.(*PriceLevelItemAscending)
	return p.PriceLevel.Price < other.PriceLevel.Price
}

type bookKey struct {
	side     OrderSide
	position Position
}

// OrderBook indexes the resting orders of one market by (side, position).
// Buy levels are kept highest first and sell levels cheapest first, so an
// in-order walk of either tree is already price priority.
type OrderBook struct {
	MarketID string
	levels   map[bookKey]*btree.BTree
	Orders   map[string]*Order
	mu       sync.RWMutex
}

func NewOrderBook(marketID string) *OrderBook {
	ob := &OrderBook{
		MarketID: marketID,
		levels:   make(map[bookKey]*btree.BTree, 4),
		Orders:   make(map[string]*Order),
	}
	for _, side := range []OrderSide{SideBuy, SideSell} {
		for _, pos := range []Position{PositionYes, PositionNo} {
			ob.levels[bookKey{side, pos}] = btree.New(32)
		}
	}
	return ob
}

func levelKey(side OrderSide, price int64) btree.Item {
	if side == SideBuy {
		return &PriceLevelItem{PriceLevel: &PriceLevel{Price: price}}
	}
	return &PriceLevelItemAscending{PriceLevel: &PriceLevel{Price: price}}
}

func levelOf(item btree.Item) *PriceLevel {
	switch it := item.(type) {
	case *PriceLevelItem:
		return it.PriceLevel
	case *PriceLevelItemAscending:
		return it.PriceLevel
	}
	return nil
}

// AddOrder inserts or replaces an order. Replacing keeps the order's place in
// its level because levels are ordered by creation time, not insertion time.
func (ob *OrderBook) AddOrder(order *Order) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, exists := ob.Orders[order.ID]; exists {
		ob.removeLocked(order.ID)
	}
	ob.Orders[order.ID] = order

	tree := ob.levels[bookKey{order.Side, order.Position}]
	key := levelKey(order.Side, order.PriceCents)

	var priceLevel *PriceLevel
	if existing := tree.Get(key); existing != nil {
		priceLevel = levelOf(existing)
	} else {
		priceLevel = &PriceLevel{Price: order.PriceCents, Orders: make([]*Order, 0, 1)}
		if order.Side == SideBuy {
			tree.ReplaceOrInsert(&PriceLevelItem{PriceLevel: priceLevel})
		} else {
			tree.ReplaceOrInsert(&PriceLevelItemAscending{PriceLevel: priceLevel})
		}
	}

	i := sort.Search(len(priceLevel.Orders), func(i int) bool {
		return PriorityLess(order, priceLevel.Orders[i])
	})
	priceLevel.Orders = append(priceLevel.Orders, nil)
	copy(priceLevel.Orders[i+1:], priceLevel.Orders[i:])
	priceLevel.Orders[i] = order
}

func (ob *OrderBook) RemoveOrder(orderID string) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.removeLocked(orderID)
}

func (ob *OrderBook) removeLocked(orderID string) bool {
	order, exists := ob.Orders[orderID]
	if !exists {
		return false
	}
	delete(ob.Orders, orderID)

	tree := ob.levels[bookKey{order.Side, order.Position}]
	key := levelKey(order.Side, order.PriceCents)
	existing := tree.Get(key)
	if existing == nil {
		return false
	}

	priceLevel := levelOf(existing)
	for i, o := range priceLevel.Orders {
		if o.ID == orderID {
			priceLevel.Orders = append(priceLevel.Orders[:i], priceLevel.Orders[i+1:]...)
			break
		}
	}

	// edge case: remove empty price level
	if len(priceLevel.Orders) == 0 {
		tree.Delete(key)
	}
	return true
}

func (ob *OrderBook) GetOrder(orderID string) (*Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	order, exists := ob.Orders[orderID]
	return order, exists
}

func (ob *OrderBook) Len() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.Orders)
}

// Candidates returns copies of up to q.Limit makers in price-time priority.
func (ob *OrderBook) Candidates(q BookQuery) []Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	out := make([]Order, 0, limit)

	tree := ob.levels[bookKey{q.Side, q.Position}]
	tree.Ascend(func(item btree.Item) bool {
		for _, o := range levelOf(item).Orders {
			if len(out) >= limit {
				return false
			}
			out = append(out, *o)
		}
		return len(out) < limit
	})
	return out
}

type OrderBookSnapshot struct {
	Price       int64
	MicroShares int64
	Orders      int
}

// Depth aggregates the best depth levels of one side and position.
func (ob *OrderBook) Depth(side OrderSide, position Position, depth int) []OrderBookSnapshot {
	if depth <= 0 {
		return nil
	}

	ob.mu.RLock()
	defer ob.mu.RUnlock()

	levels := make([]OrderBookSnapshot, 0, depth)
	ob.levels[bookKey{side, position}].Ascend(func(item btree.Item) bool {
		if len(levels) >= depth {
			return false
		}
		priceLevel := levelOf(item)
		var total int64
		for _, o := range priceLevel.Orders {
			total += o.MicroShares
		}
		levels = append(levels, OrderBookSnapshot{
			Price:       priceLevel.Price,
			MicroShares: total,
			Orders:      len(priceLevel.Orders),
		})
		return true
	})
	return levels
}
