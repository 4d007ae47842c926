package pool

import (
	"github.com/holiman/uint256"

	"poolcore/fixedpoint"
)

// PositionData is the health calculator's output for one user (spec.md
// §4.3): the SCALAR_7 base-currency value of their collateral and of their
// liabilities, after c_factor/l_factor risk weighting.
type PositionData struct {
	CollateralBase *uint256.Int
	LiabilityBase  *uint256.Int
}

// LoadPositionData prices every reserve a user touches exactly once (via
// prices, a per-batch PriceCache) and sums risk-weighted base values.
// reserves must contain every index referenced by positions.Collateral and
// positions.Liabilities.
func LoadPositionData(positions *Positions, reserves map[uint32]*Reserve, prices *PriceCache) (*PositionData, error) {
	data := &PositionData{CollateralBase: new(uint256.Int), LiabilityBase: new(uint256.Int)}

	for idx, shares := range positions.Collateral {
		if shares.IsZero() {
			continue
		}
		r, ok := reserves[idx]
		if !ok {
			return nil, coded(CodeInvalidHF, ErrNoSuchReserve)
		}
		price, err := prices.Price(r.Asset)
		if err != nil {
			return nil, err
		}
		assetAmount := ToAssetFromBToken(shares, r.BRate)
		value := fixedpoint.MulFloor(assetAmount, price, decimalsScale(r.Config.Decimals))
		weighted := fixedpoint.MulFloor(value, r.Config.CFactor, fixedpoint.Scalar7)
		data.CollateralBase = new(uint256.Int).Add(data.CollateralBase, weighted)
	}

	for idx, shares := range positions.Liabilities {
		if shares.IsZero() {
			continue
		}
		r, ok := reserves[idx]
		if !ok {
			return nil, coded(CodeInvalidHF, ErrNoSuchReserve)
		}
		price, err := prices.Price(r.Asset)
		if err != nil {
			return nil, err
		}
		assetAmount := ToAssetFromDToken(shares, r.DRate)
		value := fixedpoint.MulCeil(assetAmount, price, decimalsScale(r.Config.Decimals))
		weighted := fixedpoint.MulCeil(value, fixedpoint.Scalar7, r.Config.LFactor)
		data.LiabilityBase = new(uint256.Int).Add(data.LiabilityBase, weighted)
	}

	return data, nil
}

func decimalsScale(decimals uint8) *uint256.Int {
	scale := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < decimals; i++ {
		scale.Mul(scale, ten)
	}
	return scale
}

// HealthFactor returns collateral_base/liability_base scaled by SCALAR_7.
// Callers with zero liabilities should use IsHFOver/IsHFUnder directly
// instead, since a zero-liability user has no well-defined ratio.
func (d *PositionData) HealthFactor() *uint256.Int {
	if d.LiabilityBase.IsZero() {
		return nil
	}
	return fixedpoint.MulFloor(d.CollateralBase, fixedpoint.Scalar7, d.LiabilityBase)
}

// IsHFOver reports whether the position's health factor is at or above
// threshold (SCALAR_7-scaled). A user with zero liabilities is always over
// any threshold. Ties count as over (spec.md §4.3: "a health factor of
// exactly the threshold passes the check").
func (d *PositionData) IsHFOver(threshold *uint256.Int) bool {
	if d.LiabilityBase.IsZero() {
		return true
	}
	lhs := new(uint256.Int).Mul(d.CollateralBase, fixedpoint.Scalar7)
	rhs := new(uint256.Int).Mul(d.LiabilityBase, threshold)
	return lhs.Gte(rhs)
}

// IsHFUnder is the strict complement of IsHFOver.
func (d *PositionData) IsHFUnder(threshold *uint256.Int) bool {
	return !d.IsHFOver(threshold)
}

// MinHealthFactorThreshold is spec.md §4.4 step 4 / §8 invariant 4's
// end-of-batch health gate: a user with any liability must hold a health
// factor strictly above 1.0000100 (SCALAR_7-scaled), not merely at it.
var MinHealthFactorThreshold = uint256.NewInt(10_000_100)

// RequireHealthy enforces spec.md §4.4 step 4 / §8 invariant 4's end-of-batch
// check: a user with any liability must have HF > 1.0000100 (SCALAR_7) *and*
// collateral_base >= pool.min_collateral, once every request in the batch
// has applied. Users with no liability are exempt from both legs.
func RequireHealthy(d *PositionData, minCollateral *uint256.Int) error {
	if d.LiabilityBase.IsZero() {
		return nil
	}
	lhs := new(uint256.Int).Mul(d.CollateralBase, fixedpoint.Scalar7)
	rhs := new(uint256.Int).Mul(d.LiabilityBase, MinHealthFactorThreshold)
	if !lhs.Gt(rhs) {
		return coded(CodeInvalidHF, ErrInvalidHF)
	}
	if d.CollateralBase.Lt(minCollateral) {
		return coded(CodeMinCollateralNotMet, ErrMinCollateralNotMet)
	}
	return nil
}
