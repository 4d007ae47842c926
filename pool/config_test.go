package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolcore/crypto"
)

func newConfigTestPool(t *testing.T) *Pool {
	t.Helper()
	cfg := PoolConfig{
		Oracle:        testAddr(8),
		BstopRate:     uint256.NewInt(1_000_000),
		MaxPositions:  4,
		MinCollateral: new(uint256.Int),
		Status:        PoolStatusActive,
	}
	store := NewMemStore(cfg)
	require.NoError(t, store.PutReserve(NewReserve(testAddr(1), 0, testReserveConfig())))
	return NewPool(testAddr(9), store, &fakeOracle{prices: map[crypto.Address]*uint256.Int{}}, newFakeToken(), fakeBackstop{}, nil)
}

func TestQueueSetReserveLocksForOneWeek(t *testing.T) {
	p := newConfigTestPool(t)
	newCfg := testReserveConfig()
	newCfg.MaxUtil = uint256.NewInt(9_900_000)

	require.NoError(t, p.QueueSetReserve(1000, 0, newCfg))
	require.Error(t, p.SetReserve(1000, 0))
	require.NoError(t, p.SetReserve(1000+ReserveConfigTimelock, 0))

	r, err := p.Store.GetReserve(0)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(9_900_000), r.Config.MaxUtil)
}

func TestQueueSetReserveUnlocksImmediatelyDuringSetup(t *testing.T) {
	p := newConfigTestPool(t)
	cfg, err := p.Store.GetPoolConfig()
	require.NoError(t, err)
	cfg.Status = PoolStatusSetup
	require.NoError(t, p.Store.PutPoolConfig(cfg))

	newCfg := testReserveConfig()
	require.NoError(t, p.QueueSetReserve(1000, 0, newCfg))
	require.NoError(t, p.SetReserve(1000, 0))
}

func TestCancelQueuedSetReserve(t *testing.T) {
	p := newConfigTestPool(t)
	newCfg := testReserveConfig()
	require.NoError(t, p.QueueSetReserve(1000, 0, newCfg))
	require.NoError(t, p.CancelQueuedSetReserve(0))
	require.Error(t, p.SetReserve(1000+ReserveConfigTimelock, 0))
}

func TestValidateReserveConfigRejectsOutOfRangeFactors(t *testing.T) {
	p := newConfigTestPool(t)
	bad := testReserveConfig()
	bad.CFactor = uint256.NewInt(11_000_000)
	require.Error(t, p.QueueSetReserve(1000, 0, bad))
}
