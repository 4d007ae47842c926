package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolcore/crypto"
	"poolcore/fixedpoint"
)

type fakeOracle struct {
	prices map[crypto.Address]*uint256.Int
}

func (f *fakeOracle) GetPrice(asset crypto.Address) (*uint256.Int, uint8, error) {
	p, ok := f.prices[asset]
	if !ok {
		p = fixedpoint.Scalar7 // default $1.00
	}
	return p, 7, nil
}

func TestHealthFactorHealthyPosition(t *testing.T) {
	collateralAsset := testAddr(1)
	debtAsset := testAddr(2)

	cfg := testReserveConfig()
	collateral := NewReserve(collateralAsset, 0, cfg)
	debt := NewReserve(debtAsset, 1, cfg)
	reserves := map[uint32]*Reserve{0: collateral, 1: debt}

	pos := NewPositions(testAddr(3))
	AddCollateral(collateral, pos, uint256.NewInt(1_000_000_000)) // 100 units (7 decimals) at b_rate 1e12 scale
	AddLiabilities(debt, pos, uint256.NewInt(500_000_000))

	oracle := &fakeOracle{prices: map[crypto.Address]*uint256.Int{}}
	data, err := LoadPositionData(pos, reserves, NewPriceCache(oracle))
	require.NoError(t, err)
	require.True(t, data.IsHFOver(fixedpoint.Scalar7))
	require.NoError(t, RequireHealthy(data, new(uint256.Int)))
}

func TestHealthFactorUnhealthyPosition(t *testing.T) {
	collateralAsset := testAddr(1)
	debtAsset := testAddr(2)

	cfg := testReserveConfig()
	collateral := NewReserve(collateralAsset, 0, cfg)
	debt := NewReserve(debtAsset, 1, cfg)
	reserves := map[uint32]*Reserve{0: collateral, 1: debt}

	pos := NewPositions(testAddr(3))
	AddCollateral(collateral, pos, uint256.NewInt(100_000_000))
	AddLiabilities(debt, pos, uint256.NewInt(500_000_000))

	oracle := &fakeOracle{prices: map[crypto.Address]*uint256.Int{}}
	data, err := LoadPositionData(pos, reserves, NewPriceCache(oracle))
	require.NoError(t, err)
	require.True(t, data.IsHFUnder(fixedpoint.Scalar7))
	require.Error(t, RequireHealthy(data, new(uint256.Int)))
}

func TestRequireHealthyRejectsBelowMinCollateralEvenWhenHFPasses(t *testing.T) {
	collateralAsset := testAddr(1)
	debtAsset := testAddr(2)

	cfg := testReserveConfig()
	collateral := NewReserve(collateralAsset, 0, cfg)
	debt := NewReserve(debtAsset, 1, cfg)
	reserves := map[uint32]*Reserve{0: collateral, 1: debt}

	pos := NewPositions(testAddr(3))
	AddCollateral(collateral, pos, uint256.NewInt(1_000_000_000))
	AddLiabilities(debt, pos, uint256.NewInt(500_000_000))

	oracle := &fakeOracle{prices: map[crypto.Address]*uint256.Int{}}
	data, err := LoadPositionData(pos, reserves, NewPriceCache(oracle))
	require.NoError(t, err)
	require.True(t, data.IsHFOver(fixedpoint.Scalar7))

	tooHigh := new(uint256.Int).Add(data.CollateralBase, uint256.NewInt(1))
	err = RequireHealthy(data, tooHigh)
	require.Error(t, err)
	require.Equal(t, CodeMinCollateralNotMet, CodeOf(err))
}

func TestZeroLiabilitiesAlwaysHealthy(t *testing.T) {
	data := &PositionData{CollateralBase: new(uint256.Int), LiabilityBase: new(uint256.Int)}
	require.True(t, data.IsHFOver(fixedpoint.Scalar7))
	require.Nil(t, data.HealthFactor())
}
