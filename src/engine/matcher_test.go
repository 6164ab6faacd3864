package engine

import (
	"testing"

	"pgregory.net/rapid"

	"market-engine/src/fixedpoint"
)

func maker(id string, priceCents, microShares int64) Order {
	return Order{
		ID:          id,
		UserID:      "maker-" + id,
		Side:        SideSell,
		Position:    PositionYes,
		PriceCents:  priceCents,
		MicroShares: microShares,
	}
}

// TestMatchWalksBookInOrder buys one full share against two sellers.
// The first maker is consumed entirely at 50¢ and the second supplies the
// other half share at 60¢.
func TestMatchWalksBookInOrder(t *testing.T) {
	taker := Taker{UserID: "u1", Side: SideBuy, Position: PositionYes, MicroShares: 1_000_000}
	makers := []Order{
		maker("m1", 50, 500_000),
		maker("m2", 60, 800_000),
	}

	result := MatchTakerAgainstBook(taker, makers)

	if len(result.Executions) != 2 {
		t.Fatalf("Expected 2 executions, got: %d", len(result.Executions))
	}

	first := result.Executions[0]
	if first.MakerOrderID != "m1" || first.MicroShares != 500_000 || first.PriceCents != 50 {
		t.Errorf("Unexpected first execution: %+v", first)
	}
	if first.TotalCents != fixedpoint.TotalCents(500_000, 50) {
		t.Errorf("Expected first total %d, got: %d", fixedpoint.TotalCents(500_000, 50), first.TotalCents)
	}

	second := result.Executions[1]
	if second.MakerOrderID != "m2" || second.MicroShares != 500_000 || second.PriceCents != 60 {
		t.Errorf("Unexpected second execution: %+v", second)
	}
	if second.TotalCents != 30 {
		t.Errorf("Expected second total 30, got: %d", second.TotalCents)
	}

	if result.RemainingMicroShares != 0 {
		t.Errorf("Expected no remainder, got: %d", result.RemainingMicroShares)
	}
	if second.TakerUserID != "u1" || second.MakerUserID != "maker-m2" {
		t.Errorf("Unexpected parties on second execution: %+v", second)
	}
}

func TestMatchZeroQuantityTaker(t *testing.T) {
	result := MatchTakerAgainstBook(Taker{UserID: "u1", Side: SideBuy, Position: PositionYes}, []Order{maker("m1", 50, 10)})

	if len(result.Executions) != 0 {
		t.Errorf("Expected no executions, got: %d", len(result.Executions))
	}
	if result.RemainingMicroShares != 0 {
		t.Errorf("Expected remainder 0, got: %d", result.RemainingMicroShares)
	}
}

// TestMatchSkipsUnusableMakers checks that makers with no price, no quantity,
// or a trade value that floors to zero cents are passed over.
func TestMatchSkipsUnusableMakers(t *testing.T) {
	taker := Taker{UserID: "u1", Side: SideBuy, Position: PositionYes, MicroShares: 2_000_000}
	makers := []Order{
		maker("no-price", 0, 1_000_000),
		maker("empty", 40, 0),
		maker("dust", 99, 5), // 5 micro-shares at 99¢ is worth 0¢
		maker("good", 45, 1_000_000),
	}

	result := MatchTakerAgainstBook(taker, makers)

	if len(result.Executions) != 1 {
		t.Fatalf("Expected 1 execution, got: %d", len(result.Executions))
	}
	if result.Executions[0].MakerOrderID != "good" {
		t.Errorf("Expected execution against good, got: %s", result.Executions[0].MakerOrderID)
	}
	if result.RemainingMicroShares != 1_000_000 {
		t.Errorf("Expected remainder 1000000, got: %d", result.RemainingMicroShares)
	}
}

func TestMatchExhaustedBookReturnsRemainder(t *testing.T) {
	taker := Taker{UserID: "u1", Side: SideSell, Position: PositionNo, MicroShares: 3_000_000}
	makers := []Order{maker("m1", 70, 1_000_000)}

	result := MatchTakerAgainstBook(taker, makers)

	if filled := filledMicroShares(result); filled != 1_000_000 {
		t.Errorf("Expected 1000000 filled, got: %d", filled)
	}
	if result.RemainingMicroShares != 2_000_000 {
		t.Errorf("Expected remainder 2000000, got: %d", result.RemainingMicroShares)
	}
}

func TestFillCapsAtMakerQuantity(t *testing.T) {
	m := maker("m1", 25, 400_000)

	exec, skip := Fill("u1", &m, 10_000_000)

	if skip != SkipNone {
		t.Fatalf("Expected no skip, got: %s", skip)
	}
	if exec.MicroShares != 400_000 || exec.TotalCents != 10 {
		t.Errorf("Unexpected execution: %+v", exec)
	}
}

// TestMatchConservesQuantity checks that executions never exceed the taker's
// request, the remainder is exactly what is left, and no execution is empty.
func TestMatchConservesQuantity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		want := rapid.Int64Range(0, 50_000_000).Draw(t, "want")
		n := rapid.IntRange(0, 15).Draw(t, "makers")
		makers := make([]Order, n)
		for i := range makers {
			makers[i] = maker(
				rapid.StringMatching(`[a-z]{6}`).Draw(t, "id"),
				rapid.Int64Range(-1, 99).Draw(t, "price"),
				rapid.Int64Range(-1, 10_000_000).Draw(t, "micro"),
			)
		}

		result := MatchTakerAgainstBook(Taker{UserID: "u", Side: SideBuy, Position: PositionYes, MicroShares: want}, makers)

		filled := filledMicroShares(result)
		if filled > want {
			t.Fatalf("filled %d exceeds requested %d", filled, want)
		}
		if result.RemainingMicroShares != want-filled {
			t.Fatalf("remainder %d, want %d", result.RemainingMicroShares, want-filled)
		}
		for _, e := range result.Executions {
			if e.MicroShares <= 0 || e.TotalCents <= 0 {
				t.Fatalf("empty execution %+v", e)
			}
		}
	})
}

func filledMicroShares(r MatchResult) int64 {
	var filled int64
	for _, e := range r.Executions {
		filled += e.MicroShares
	}
	return filled
}
