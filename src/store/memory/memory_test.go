package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-engine/src/engine"
	"market-engine/src/store"
)

func testPolicy() store.RetryPolicy {
	return store.RetryPolicy{MaxRetries: 100, InitialInterval: time.Microsecond, MaxInterval: time.Millisecond}
}

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New(testPolicy())
	err := s.Seed(context.Background(),
		[]*engine.Market{{ID: "m1", YesMicroShares: 1_000_000, NoMicroShares: 1_000_000}},
		[]*engine.User{{ID: "alice", BalanceCents: 10_000}, {ID: "bob", BalanceCents: 500}},
	)
	require.NoError(t, err)
	return s
}

func TestGetMissingDocument(t *testing.T) {
	s := seeded(t)

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetUser(ctx, "nobody")
		return err
	})

	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestTransactionReadsOwnWrites checks that a write is visible to later reads
// in the same transaction and that returned documents are copies.
func TestTransactionReadsOwnWrites(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, "alice")
		if err != nil {
			return err
		}
		u.BalanceCents = 1
		require.NoError(t, tx.SetUser(ctx, u))
		u.BalanceCents = 2 // must not leak into the pending write

		again, err := tx.GetUser(ctx, "alice")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), again.BalanceCents)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1), u.BalanceCents)
		return nil
	}))
}

// TestCommitDetectsConflict interleaves two transactions by hand: the one
// that commits second must fail because its read is stale.
func TestCommitDetectsConflict(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	first := newTx(s)
	second := newTx(s)

	u1, err := first.GetUser(ctx, "bob")
	require.NoError(t, err)
	u2, err := second.GetUser(ctx, "bob")
	require.NoError(t, err)

	u1.BalanceCents += 100
	require.NoError(t, first.SetUser(ctx, u1))
	u2.BalanceCents += 200
	require.NoError(t, second.SetUser(ctx, u2))

	require.NoError(t, s.commit(first))
	assert.ErrorIs(t, s.commit(second), store.ErrConflict)
}

// TestConcurrentIncrementsAreSerialised hammers one balance from many
// goroutines; retries must make every increment land exactly once.
func TestConcurrentIncrementsAreSerialised(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	const workers = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
				u, err := tx.GetUser(ctx, "bob")
				if err != nil {
					return err
				}
				u.BalanceCents++
				return tx.SetUser(ctx, u)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(500+workers), u.BalanceCents)
		return nil
	}))
}

func TestOrdersAreIndexedOnCommit(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	cheap := &engine.Order{ID: "o1", MarketID: "m1", UserID: "alice", Side: engine.SideSell, Position: engine.PositionYes, PriceCents: 40, MicroShares: 10, CreatedAt: 2}
	dear := &engine.Order{ID: "o2", MarketID: "m1", UserID: "alice", Side: engine.SideSell, Position: engine.PositionYes, PriceCents: 45, MicroShares: 10, CreatedAt: 1}
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.SetOrder(ctx, dear))
		return tx.SetOrder(ctx, cheap)
	}))

	got, err := s.QueryOrders(ctx, engine.CandidateQuery("m1", engine.SideBuy, engine.PositionYes, 20))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "o1", got[0].ID)

	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteOrder(ctx, "m1", "o1")
	}))

	got, err = s.QueryOrders(ctx, engine.CandidateQuery("m1", engine.SideBuy, engine.PositionYes, 20))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "o2", got[0].ID)

	depth, err := s.Depth(ctx, "m1", engine.SideSell, engine.PositionYes, 5)
	require.NoError(t, err)
	require.Len(t, depth, 1)
	assert.Equal(t, int64(45), depth[0].Price)
}

func TestHoldersIndexFollowsSettlement(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	setPositions := func(settled bool) {
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			u, err := tx.GetUser(ctx, "alice")
			if err != nil {
				return err
			}
			u.Positions = []engine.PositionEntry{{MarketID: "m1", Position: engine.PositionYes, MicroShares: 5, Settled: settled}}
			return tx.SetUser(ctx, u)
		}))
	}

	setPositions(false)
	ids, err := s.UsersWithOpenPositions(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ids)

	setPositions(true)
	ids, err = s.UsersWithOpenPositions(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTradesAppendOnlyOnCommit(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.AddTrade(ctx, &engine.Trade{ID: "t1", MarketID: "m1"}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, s.Trades("m1"))

	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AddTrade(ctx, &engine.Trade{ID: "t2", MarketID: "m1"})
	}))
	require.Len(t, s.Trades("m1"), 1)
}
