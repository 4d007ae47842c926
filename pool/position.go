package pool

import (
	"github.com/holiman/uint256"
)

// AddSupply credits the user with b-tokens for an asset supply, updating the
// reserve's b_supply in lockstep (spec.md §4.2). shares must already be
// computed by the caller via ToBTokenDown.
func AddSupply(r *Reserve, p *Positions, shares *uint256.Int) {
	cur := nonZero(p.Supply, r.Index)
	setOrDelete(p.Supply, r.Index, new(uint256.Int).Add(cur, shares))
	r.BSupply = new(uint256.Int).Add(r.BSupply, shares)
}

// RemoveSupply burns a user's b-tokens and the reserve's matching b_supply.
// Removing more shares than the user holds is a caller bug, not a recoverable
// error (spec.md §4.2: "callers must clamp to the user's balance first");
// this panics rather than silently underflowing the share ledger.
func RemoveSupply(r *Reserve, p *Positions, shares *uint256.Int) {
	cur := nonZero(p.Supply, r.Index)
	if cur.Lt(shares) {
		panic(ErrArithmeticUnderflow)
	}
	setOrDelete(p.Supply, r.Index, new(uint256.Int).Sub(cur, shares))
	if r.BSupply.Lt(shares) {
		panic(ErrArithmeticUnderflow)
	}
	r.BSupply = new(uint256.Int).Sub(r.BSupply, shares)
}

// AddCollateral credits the user with collateral b-tokens and the reserve's
// b_supply (spec.md §4.2: collateral and free supply share the same
// b_rate/b_supply accounting, only the position-ledger map differs).
func AddCollateral(r *Reserve, p *Positions, shares *uint256.Int) {
	cur := nonZero(p.Collateral, r.Index)
	setOrDelete(p.Collateral, r.Index, new(uint256.Int).Add(cur, shares))
	r.BSupply = new(uint256.Int).Add(r.BSupply, shares)
}

// RemoveCollateral burns a user's collateral b-tokens. See RemoveSupply for
// the underflow-is-a-bug rationale.
func RemoveCollateral(r *Reserve, p *Positions, shares *uint256.Int) {
	cur := nonZero(p.Collateral, r.Index)
	if cur.Lt(shares) {
		panic(ErrArithmeticUnderflow)
	}
	setOrDelete(p.Collateral, r.Index, new(uint256.Int).Sub(cur, shares))
	if r.BSupply.Lt(shares) {
		panic(ErrArithmeticUnderflow)
	}
	r.BSupply = new(uint256.Int).Sub(r.BSupply, shares)
}

// AddLiabilities credits the user with d-tokens owed and the reserve's
// d_supply (spec.md §4.2, the Borrow path).
func AddLiabilities(r *Reserve, p *Positions, shares *uint256.Int) {
	cur := nonZero(p.Liabilities, r.Index)
	setOrDelete(p.Liabilities, r.Index, new(uint256.Int).Add(cur, shares))
	r.DSupply = new(uint256.Int).Add(r.DSupply, shares)
}

// RemoveLiabilities burns a user's d-tokens owed and the reserve's d_supply
// (spec.md §4.2, the Repay path). Unlike supply/collateral removal, a caller
// repaying more than is owed is a request-validation bug upstream (the
// amount should have been clamped to the liability balance), so this also
// panics on underflow rather than returning an error.
func RemoveLiabilities(r *Reserve, p *Positions, shares *uint256.Int) {
	cur := nonZero(p.Liabilities, r.Index)
	if cur.Lt(shares) {
		panic(ErrArithmeticUnderflow)
	}
	setOrDelete(p.Liabilities, r.Index, new(uint256.Int).Sub(cur, shares))
	if r.DSupply.Lt(shares) {
		panic(ErrArithmeticUnderflow)
	}
	r.DSupply = new(uint256.Int).Sub(r.DSupply, shares)
}

// MoveCollateralToSupply reclassifies shares from collateral to free supply
// without touching the reserve's b_supply total, taking them out of the
// health check's collateral set while leaving them in the position. The
// WithdrawCollateral handler does not use it; it calls RemoveCollateral.
func MoveCollateralToSupply(p *Positions, idx uint32, shares *uint256.Int) {
	cur := nonZero(p.Collateral, idx)
	if cur.Lt(shares) {
		panic(ErrArithmeticUnderflow)
	}
	setOrDelete(p.Collateral, idx, new(uint256.Int).Sub(cur, shares))
	curSupply := nonZero(p.Supply, idx)
	setOrDelete(p.Supply, idx, new(uint256.Int).Add(curSupply, shares))
}

// RequireMaxPositions enforces spec.md §3's position-count ceiling after a
// mutation that can only grow the effective count (SupplyCollateral, Borrow).
func RequireMaxPositions(p *Positions, maxPositions uint32) error {
	if uint32(p.EffectiveCount()) <= maxPositions {
		return nil
	}
	return coded(CodeMaxPositionsExceeded, ErrMaxPositionsExceeded)
}
