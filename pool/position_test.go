package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestAddRemoveSupplyKeepsReserveInSync(t *testing.T) {
	r := NewReserve(testAddr(1), 0, testReserveConfig())
	p := NewPositions(testAddr(2))

	AddSupply(r, p, uint256.NewInt(1000))
	require.Equal(t, uint256.NewInt(1000), r.BSupply)
	require.Equal(t, uint256.NewInt(1000), p.Supply[0])

	RemoveSupply(r, p, uint256.NewInt(400))
	require.Equal(t, uint256.NewInt(600), r.BSupply)
	require.Equal(t, uint256.NewInt(600), p.Supply[0])

	RemoveSupply(r, p, uint256.NewInt(600))
	_, ok := p.Supply[0]
	require.False(t, ok, "a fully withdrawn position should be removed from the map")
}

func TestRemoveSupplyPanicsOnUnderflow(t *testing.T) {
	r := NewReserve(testAddr(1), 0, testReserveConfig())
	p := NewPositions(testAddr(2))
	AddSupply(r, p, uint256.NewInt(100))
	require.Panics(t, func() {
		RemoveSupply(r, p, uint256.NewInt(101))
	})
}

func TestEffectiveCountCountsSupplyOnlyWhenNotCollateral(t *testing.T) {
	p := NewPositions(testAddr(1))
	p.Collateral[0] = uint256.NewInt(1)
	p.Supply[0] = uint256.NewInt(1) // same reserve as collateral, should not double count
	p.Supply[1] = uint256.NewInt(1) // distinct reserve, counts separately
	p.Liabilities[2] = uint256.NewInt(1)

	require.Equal(t, 3, p.EffectiveCount())
}

func TestRequireMaxPositions(t *testing.T) {
	p := NewPositions(testAddr(1))
	p.Collateral[0] = uint256.NewInt(1)
	p.Liabilities[1] = uint256.NewInt(1)
	require.NoError(t, RequireMaxPositions(p, 2))
	require.Error(t, RequireMaxPositions(p, 1))
}
