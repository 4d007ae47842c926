package pool

import (
	"github.com/holiman/uint256"

	"poolcore/crypto"
	"poolcore/fixedpoint"
)

// PriceCache memoizes oracle reads for the lifetime of one submit() batch
// (spec.md §4.3/§9: "the health calculator must not re-query the oracle
// mid-batch, or a single request could move the price an earlier request in
// the same batch was checked against"). Prices are normalized to
// fixedpoint.Scalar7 regardless of the oracle's native decimals.
type PriceCache struct {
	oracle OracleClient
	prices map[crypto.Address]*uint256.Int
}

// NewPriceCache wraps oracle with an empty per-batch cache.
func NewPriceCache(oracle OracleClient) *PriceCache {
	return &PriceCache{oracle: oracle, prices: map[crypto.Address]*uint256.Int{}}
}

// Price returns asset's SCALAR_7-normalized price, querying the oracle at
// most once per asset for the life of this cache.
func (c *PriceCache) Price(asset crypto.Address) (*uint256.Int, error) {
	if cached, ok := c.prices[asset]; ok {
		return cached, nil
	}
	raw, decimals, err := c.oracle.GetPrice(asset)
	if err != nil {
		return nil, err
	}
	normalized := normalizePrice(raw, decimals)
	c.prices[asset] = normalized
	return normalized, nil
}

// normalizePrice rescales a price quoted with `decimals` fractional digits to
// fixedpoint.Scalar7 (10^7).
func normalizePrice(price *uint256.Int, decimals uint8) *uint256.Int {
	switch {
	case decimals == 7:
		return cloneInt(price)
	case decimals < 7:
		scale := uint256.NewInt(1)
		for i := uint8(0); i < 7-decimals; i++ {
			scale.Mul(scale, uint256.NewInt(10))
		}
		return new(uint256.Int).Mul(price, scale)
	default:
		scale := uint256.NewInt(1)
		for i := uint8(0); i < decimals-7; i++ {
			scale.Mul(scale, uint256.NewInt(10))
		}
		return fixedpoint.DivFloor(price, scale)
	}
}
