// Package fixedpoint converts between decimal dollars/shares and the integer
// cents and micro-shares every engine computation runs on.
//
// Cent totals are always floored: a buyer never pays the fraction of a cent
// that (microShares * priceCents) / ShareScale leaves behind. That residue is
// lost on every trade and is never carried forward or rounded up.
package fixedpoint

import (
	"math"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ShareScale is the number of micro-shares in one share.
const ShareScale int64 = 1_000_000

// CentsPerDollar is the payout of one winning share in cents.
const CentsPerDollar int64 = 100

var shareScale = uint256.NewInt(uint64(ShareScale))

// TotalCents returns floor(microShares * priceCents / ShareScale). The product
// is formed in 256-bit arithmetic so it cannot overflow before the division.
// Non-positive inputs cost nothing.
func TotalCents(microShares, priceCents int64) int64 {
	if microShares <= 0 || priceCents <= 0 {
		return 0
	}
	product := new(uint256.Int).Mul(uint256.NewInt(uint64(microShares)), uint256.NewInt(uint64(priceCents)))
	return clampInt64(product.Div(product, shareScale))
}

// AffordableMicroShares returns floor(cents * ShareScale / priceCents), the
// largest micro-share quantity that cents can buy at priceCents.
func AffordableMicroShares(cents, priceCents int64) int64 {
	if cents <= 0 || priceCents <= 0 {
		return 0
	}
	product := new(uint256.Int).Mul(uint256.NewInt(uint64(cents)), shareScale)
	return clampInt64(product.Div(product, uint256.NewInt(uint64(priceCents))))
}

// PayoutCents is the value of microShares winning shares at $1.00 each.
func PayoutCents(microShares int64) int64 {
	return TotalCents(microShares, CentsPerDollar)
}

// Prorate returns floor(v * part / whole) with the sign of v, for scaling an
// amount down to a part of the quantity it was computed for. part is capped
// at whole and a non-positive whole yields zero.
func Prorate(v, part, whole int64) int64 {
	if whole <= 0 || part <= 0 || v == 0 {
		return 0
	}
	if part >= whole {
		return v
	}
	neg := v < 0
	abs := uint64(v)
	if neg {
		abs = uint64(-v)
	}
	product := new(uint256.Int).Mul(uint256.NewInt(abs), uint256.NewInt(uint64(part)))
	out := clampInt64(product.Div(product, uint256.NewInt(uint64(whole))))
	if neg {
		return -out
	}
	return out
}

func clampInt64(v *uint256.Int) int64 {
	if !v.IsUint64() || v.Uint64() > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v.Uint64())
}

// ToCents converts a dollar amount to cents, rounding half away from zero.
func ToCents(dollars float64) int64 {
	return decimal.NewFromFloat(dollars).Shift(2).Round(0).IntPart()
}

// FormatDollars renders cents as a dollar string with two decimals.
func FormatDollars(cents int64) string {
	return DecimalFromCents(cents).StringFixed(2)
}

// DecimalFromCents is the exact decimal dollar value of cents.
func DecimalFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// CentsFromDecimal rounds a decimal dollar value to whole cents.
func CentsFromDecimal(dollars decimal.Decimal) int64 {
	return dollars.Shift(2).Round(0).IntPart()
}

// ToShares converts micro-shares to a share float for serialization only.
func ToShares(microShares int64) float64 {
	return decimal.New(microShares, -6).InexactFloat64()
}

// ToMicroShares converts a share float to micro-shares, rounding to the
// nearest micro-share.
func ToMicroShares(shares float64) int64 {
	return decimal.NewFromFloat(shares).Shift(6).Round(0).IntPart()
}
