package pool

import (
	"github.com/holiman/uint256"

	"poolcore/fixedpoint"
)

// ToBTokenDown mints supply shares for `amount` asset units, rounding down
// (spec.md §4.1: "minting rounds shares down ... so total-supply
// conservation never leaks value to the user").
func ToBTokenDown(amount, bRate *uint256.Int) *uint256.Int {
	return fixedpoint.MulFloor(amount, fixedpoint.Scalar12, bRate)
}

// ToBTokenUp burns supply shares for `amount` asset units, rounding up.
func ToBTokenUp(amount, bRate *uint256.Int) *uint256.Int {
	return fixedpoint.MulCeil(amount, fixedpoint.Scalar12, bRate)
}

// ToAssetFromBToken converts supply shares to asset units, rounding down.
func ToAssetFromBToken(shares, bRate *uint256.Int) *uint256.Int {
	return fixedpoint.MulFloor(shares, bRate, fixedpoint.Scalar12)
}

// ToAssetFromBTokenUp converts supply shares to asset units, rounding up.
// Used when the shares represent a liability the user must cover in full
// (e.g. sizing a withdrawal against a debt ceiling).
func ToAssetFromBTokenUp(shares, bRate *uint256.Int) *uint256.Int {
	return fixedpoint.MulCeil(shares, bRate, fixedpoint.Scalar12)
}

// ToDTokenDown converts `amount` asset units to debt shares, rounding down.
// It sizes the debt shares burned on Repay (favors the protocol: the
// borrower has slightly less debt cancelled than the literal amount/d_rate
// would give).
func ToDTokenDown(amount, dRate *uint256.Int) *uint256.Int {
	return fixedpoint.MulFloor(amount, fixedpoint.Scalar12, dRate)
}

// ToDTokenUp mints debt shares for `amount` asset units borrowed, rounding
// up -- used for Borrow per spec.md §4.4 ("mint d_tokens =
// to_d_token_up(amount)"), so the borrower always owes at least amount.
func ToDTokenUp(amount, dRate *uint256.Int) *uint256.Int {
	return fixedpoint.MulCeil(amount, fixedpoint.Scalar12, dRate)
}

// ToDTokenDownRepay is ToDTokenDown, named for its Repay call site (spec.md
// §4.4: "burn exactly to_d_token_down(amount)").
func ToDTokenDownRepay(amount, dRate *uint256.Int) *uint256.Int {
	return ToDTokenDown(amount, dRate)
}

// ToAssetFromDToken converts debt shares to asset units owed, rounding up
// (burning a liability must never under-state what is owed).
func ToAssetFromDToken(shares, dRate *uint256.Int) *uint256.Int {
	return fixedpoint.MulCeil(shares, dRate, fixedpoint.Scalar12)
}
