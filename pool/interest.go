package pool

import (
	"github.com/holiman/uint256"

	"poolcore/fixedpoint"
)

// Utilization breakpoints fixed by spec.md §4.1 step 3, expressed as
// SCALAR_7 values.
var (
	kinkTwo    = uint256.NewInt(9_500_000) // 0.95
	kinkTwoGap = uint256.NewInt(500_000)   // 1 - 0.95
)

// irModMin and irModMax are the clamp bounds from spec.md §4.1 step 2,
// scaled by SCALAR_7 ([0.1, 10]).
var (
	irModMin = uint256.NewInt(1_000_000)
	irModMax = uint256.NewInt(100_000_000)
)

// ratio computes a/b scaled by SCALAR_7, i.e. the SCALAR_7-fixed-point
// fraction a/b.
func ratio(a, b *uint256.Int) *uint256.Int {
	if b.IsZero() {
		return new(uint256.Int)
	}
	return fixedpoint.MulFloor(a, fixedpoint.Scalar7, b)
}

// BorrowRate implements the kinked three-slope curve of spec.md §4.1 step 3,
// returning the pre-ir_mod borrow rate scaled by SCALAR_7.
func BorrowRate(cfg ReserveConfig, u *uint256.Int) *uint256.Int {
	util := cfg.Util
	if u.Lte(util) {
		term := fixedpoint.MulFloor(ratio(u, util), cfg.ROne, fixedpoint.Scalar7)
		return new(uint256.Int).Add(term, cfg.RBase)
	}
	if u.Lte(kinkTwo) {
		span := new(uint256.Int).Sub(kinkTwo, util)
		excess := new(uint256.Int).Sub(u, util)
		term := fixedpoint.MulFloor(ratio(excess, span), cfg.RTwo, fixedpoint.Scalar7)
		out := new(uint256.Int).Add(term, cfg.ROne)
		return out.Add(out, cfg.RBase)
	}
	excess := new(uint256.Int).Sub(u, kinkTwo)
	term := fixedpoint.MulFloor(ratio(excess, kinkTwoGap), cfg.RThree, fixedpoint.Scalar7)
	out := new(uint256.Int).Add(term, cfg.RTwo)
	out = out.Add(out, cfg.ROne)
	return out.Add(out, cfg.RBase)
}

// EffectiveBorrowRate multiplies the curve rate by the reactive ir_mod
// modifier (spec.md §4.1 step 3's final "multiply by ir_mod").
func EffectiveBorrowRate(cfg ReserveConfig, u, irMod *uint256.Int) *uint256.Int {
	base := BorrowRate(cfg, u)
	return fixedpoint.MulFloor(base, irMod, fixedpoint.Scalar7)
}

// NextIRMod applies the reactive modifier update of spec.md §4.1 step 2:
//
//	ir_mod <- ir_mod * (1 + reactivity*(cur_util-target_util)*deltaT)
//
// clamped to [0.1, 10]. Because ir_mod and reactivity are both unsigned
// SCALAR_7 values, the signed (cur-target) term is split into an
// increase/decrease branch so the whole computation stays in unsigned
// 256-bit arithmetic.
func NextIRMod(irMod, reactivity, curUtil, targetUtil *uint256.Int, deltaT uint64) *uint256.Int {
	if deltaT == 0 {
		return clampIRMod(irMod)
	}
	var diff *uint256.Int
	increasing := curUtil.Gte(targetUtil)
	if increasing {
		diff = new(uint256.Int).Sub(curUtil, targetUtil)
	} else {
		diff = new(uint256.Int).Sub(targetUtil, curUtil)
	}
	// delta = reactivity * diff * deltaT / SCALAR_7, scalar7.
	delta := fixedpoint.MulFloor(reactivity, diff, fixedpoint.Scalar7)
	delta = new(uint256.Int).Mul(delta, uint256.NewInt(deltaT))

	var next *uint256.Int
	if increasing {
		factor := new(uint256.Int).Add(fixedpoint.Scalar7, delta)
		next = fixedpoint.MulFloor(irMod, factor, fixedpoint.Scalar7)
	} else if delta.Gte(fixedpoint.Scalar7) {
		next = new(uint256.Int) // factor <= 0, clamps to irModMin below
	} else {
		factor := new(uint256.Int).Sub(fixedpoint.Scalar7, delta)
		next = fixedpoint.MulFloor(irMod, factor, fixedpoint.Scalar7)
	}
	return clampIRMod(next)
}

func clampIRMod(v *uint256.Int) *uint256.Int {
	if v.Lt(irModMin) {
		return new(uint256.Int).Set(irModMin)
	}
	if v.Gt(irModMax) {
		return new(uint256.Int).Set(irModMax)
	}
	return new(uint256.Int).Set(v)
}
