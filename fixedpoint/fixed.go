// Package fixedpoint implements the integer fixed-point arithmetic the pool
// protocol is built on (spec.md C1): explicit-scalar mul/div with the
// rounding direction always a choice the caller makes, never an implicit
// default. Values are represented as github.com/holiman/uint256.Int, which
// gives 256 bits of headroom so that the 10^12-scaled rate index times a
// realistic reserve balance never approaches overflow before the final
// division narrows it back down.
package fixedpoint

import "github.com/holiman/uint256"

// Scalar7 and Scalar12 are the two fixed-point scalars spec.md §3 defines:
// SCALAR_7 for asset amounts and basis-point-style ratios, SCALAR_12 for
// b_rate/d_rate indices. ScalarEPS is the emissions-per-second scalar.
var (
	Scalar7   = uint256.NewInt(10_000_000)
	Scalar12  = uint256.NewInt(1_000_000_000_000)
	ScalarEPS = uint256.NewInt(100_000_000_000_000)
	BPSDenom  = uint256.NewInt(10_000)
)

// FromUint64 is a convenience constructor used throughout the pool package
// for literal amounts.
func FromUint64(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Zero returns a fresh zero-valued Int; uint256.Int is a value type but the
// pool package always works through pointers so storage round-trips and
// mutation-in-place are uniform.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// MulFloor computes floor(x * mul / div). div must be non-zero; callers are
// expected to have guarded against a zero denominator at the call site
// (spec.md §9: "division by zero is only possible when a reserve has zero
// total supply — guard at the utilization call site, not inside the div
// helper").
func MulFloor(x, mul, div *uint256.Int) *uint256.Int {
	product := new(uint256.Int).Mul(x, mul)
	return new(uint256.Int).Div(product, div)
}

// MulCeil computes ceil(x * mul / div).
func MulCeil(x, mul, div *uint256.Int) *uint256.Int {
	product := new(uint256.Int).Mul(x, mul)
	q := new(uint256.Int).Div(product, div)
	r := new(uint256.Int).Mod(product, div)
	if !r.IsZero() {
		q = new(uint256.Int).AddUint64(q, 1)
	}
	return q
}

// DivFloor computes floor(x / y).
func DivFloor(x, y *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(x, y)
}

// DivCeil computes ceil(x / y).
func DivCeil(x, y *uint256.Int) *uint256.Int {
	q := new(uint256.Int).Div(x, y)
	r := new(uint256.Int).Mod(x, y)
	if !r.IsZero() {
		q = new(uint256.Int).AddUint64(q, 1)
	}
	return q
}

// MulBpsFloor applies a basis-point fraction (0-10000) to x, rounding down.
// Used for liquidation bonuses, fee splits, and collateral-routing shares.
func MulBpsFloor(x *uint256.Int, bps uint64) *uint256.Int {
	return MulFloor(x, uint256.NewInt(bps), BPSDenom)
}

// Min returns the smaller of two values without mutating either argument.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// Max returns the larger of two values without mutating either argument.
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// SaturatingSub returns a-b, clamped to zero instead of wrapping when b>a.
// Used wherever spec.md's invariants guarantee non-negativity but floating
// accrual timing could otherwise produce a transient negative.
func SaturatingSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}
