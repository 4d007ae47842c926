package emissions

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolcore/crypto"
	"poolcore/fixedpoint"
)

func testAddr(b byte) crypto.Address {
	var raw [20]byte
	raw[19] = b
	addr, err := crypto.NewAddress(raw[:])
	if err != nil {
		panic(err)
	}
	return addr
}

type fakeBackstop struct {
	tokens map[crypto.Address]*uint256.Int
	q4w    map[crypto.Address]*uint256.Int
}

func newFakeBackstop() *fakeBackstop {
	return &fakeBackstop{tokens: map[crypto.Address]*uint256.Int{}, q4w: map[crypto.Address]*uint256.Int{}}
}

func (f *fakeBackstop) PoolData(pool crypto.Address) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	t, ok := f.tokens[pool]
	if !ok {
		t = new(uint256.Int)
	}
	q, ok := f.q4w[pool]
	if !ok {
		q = new(uint256.Int)
	}
	return t, new(uint256.Int).Set(fixedpoint.Scalar7), q, nil
}

type fakeApprover struct {
	approvals map[crypto.Address]*uint256.Int
}

func newFakeApprover() *fakeApprover {
	return &fakeApprover{approvals: map[crypto.Address]*uint256.Int{}}
}

func (f *fakeApprover) Approve(asset crypto.Address, owner, spender crypto.Address, amount *uint256.Int, expiration uint64) error {
	cur, ok := f.approvals[spender]
	if !ok {
		cur = new(uint256.Int)
	}
	f.approvals[spender] = new(uint256.Int).Add(cur, amount)
	return nil
}

func newTestManager() (*Manager, *fakeBackstop, *fakeApprover) {
	bs := newFakeBackstop()
	token := newFakeApprover()
	m := NewManager(testAddr(1), testAddr(2), NewMemStore(), bs, token)
	return m, bs, token
}

func TestAddToRewardZoneRejectsPoolBelowThreshold(t *testing.T) {
	m, bs, _ := newTestManager()
	pool := testAddr(3)
	bs.tokens[pool] = uint256.NewInt(1)

	err := m.AddToRewardZone(1000, pool, nil)
	require.Error(t, err)
	require.Equal(t, CodeInvalidRewardZoneEntry, CodeOf(err))
}

func TestAddToRewardZoneSucceedsAboveThreshold(t *testing.T) {
	m, bs, _ := newTestManager()
	pool := testAddr(3)
	bs.tokens[pool] = new(uint256.Int).Mul(uint256.NewInt(100_000), fixedpoint.Scalar7)

	require.NoError(t, m.AddToRewardZone(1000, pool, nil))
	zone, err := m.Store.ListRewardZone()
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{pool}, zone)
}

func TestAddToRewardZoneSwapsOutSmallerPoolWhenFull(t *testing.T) {
	m, bs, _ := newTestManager()
	big := new(uint256.Int).Mul(uint256.NewInt(100_000), fixedpoint.Scalar7)

	zone := make([]crypto.Address, 0, MaxRewardZoneSize)
	for i := 0; i < MaxRewardZoneSize; i++ {
		p := testAddr(byte(10 + i))
		bs.tokens[p] = big
		zone = append(zone, p)
	}
	require.NoError(t, m.Store.PutRewardZone(zone))

	weak := zone[0]
	bs.tokens[weak] = uint256.NewInt(1) // falls below threshold, becomes the natural evictee

	newcomer := testAddr(200)
	bs.tokens[newcomer] = new(uint256.Int).Mul(uint256.NewInt(200_000), fixedpoint.Scalar7)

	require.NoError(t, m.AddToRewardZone(1000, newcomer, &weak))

	updated, err := m.Store.ListRewardZone()
	require.NoError(t, err)
	require.Len(t, updated, MaxRewardZoneSize)
	require.Equal(t, newcomer, updated[0])
	require.NotContains(t, updated, weak)
}

func TestDistributeFirstCallOnlyRecordsTimestamp(t *testing.T) {
	m, _, _ := newTestManager()
	accrued, err := m.Distribute(1000, func() (uint64, error) { return 1000, nil })
	require.NoError(t, err)
	require.True(t, accrued.IsZero())

	state, err := m.Store.GetEmitterState()
	require.NoError(t, err)
	require.Equal(t, ModeNormal, state.Mode)
	require.Equal(t, uint64(1000), state.LastDist)
}

func TestDistributeNormalPathAccruesPerSecondDrip(t *testing.T) {
	m, bs, _ := newTestManager()
	pool := testAddr(3)
	bs.tokens[pool] = new(uint256.Int).Mul(uint256.NewInt(100_000), fixedpoint.Scalar7)
	require.NoError(t, m.AddToRewardZone(1000, pool, nil))

	_, err := m.Distribute(1000, func() (uint64, error) { return 1000, nil })
	require.NoError(t, err)

	accrued, err := m.Distribute(1100, func() (uint64, error) { return 1100, nil })
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Mul(uint256.NewInt(100), fixedpoint.Scalar7), accrued)

	data, err := m.Store.GetPoolEmissionData(pool)
	require.NoError(t, err)
	require.Equal(t, accrued, data.Accrued, "the sole reward-zone pool gets the entire distribution")
}

func TestDistributeBackfillCapsAtMaxBackfilledEmissions(t *testing.T) {
	m, bs, _ := newTestManager()
	pool := testAddr(3)
	bs.tokens[pool] = new(uint256.Int).Mul(uint256.NewInt(100_000), fixedpoint.Scalar7)
	require.NoError(t, m.AddToRewardZone(1000, pool, nil))

	failingEmitter := func() (uint64, error) { return 0, require.AnError }
	_, err := m.Distribute(1000, failingEmitter)
	require.NoError(t, err)

	almostFull := fixedpoint.SaturatingSub(MaxBackfilledEmissions, new(uint256.Int).Mul(uint256.NewInt(86400), fixedpoint.Scalar7))
	state, err := m.Store.GetEmitterState()
	require.NoError(t, err)
	state.BackfilledEmissions = almostFull
	require.NoError(t, m.Store.PutEmitterState(state))

	accrued, err := m.Distribute(1000+108000, failingEmitter)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Mul(uint256.NewInt(86400), fixedpoint.Scalar7), accrued, "accrual must clamp to exactly the remaining backfill headroom")

	state, err = m.Store.GetEmitterState()
	require.NoError(t, err)
	require.Equal(t, MaxBackfilledEmissions, state.BackfilledEmissions)

	_, err = m.Distribute(1000+108000+100, failingEmitter)
	require.Error(t, err)
	require.Equal(t, CodeMaxBackfillEmissions, CodeOf(err))
}

func TestGulpEmissionsSplitsSeventyThirty(t *testing.T) {
	m, bs, approver := newTestManager()
	pool := testAddr(3)
	bs.tokens[pool] = new(uint256.Int).Mul(uint256.NewInt(100_000), fixedpoint.Scalar7)
	require.NoError(t, m.AddToRewardZone(1000, pool, nil))

	_, err := m.Distribute(1000, func() (uint64, error) { return 1000, nil })
	require.NoError(t, err)
	_, err = m.Distribute(1000+GulpInterval, func() (uint64, error) { return 1000 + GulpInterval, nil })
	require.NoError(t, err)

	require.NoError(t, m.GulpEmissions(1000+GulpInterval, pool))

	bed, err := m.Store.GetBackstopEmissionData(pool)
	require.NoError(t, err)
	require.False(t, bed.EPS.IsZero())
	require.Equal(t, uint64(1000+GulpInterval)+BackstopEmissionWindow, bed.ExpiryTime)
	require.False(t, approver.approvals[pool].IsZero())
}

func TestGulpEmissionsRejectsBeforeIntervalElapses(t *testing.T) {
	m, bs, _ := newTestManager()
	pool := testAddr(3)
	bs.tokens[pool] = new(uint256.Int).Mul(uint256.NewInt(100_000), fixedpoint.Scalar7)
	require.NoError(t, m.AddToRewardZone(1000, pool, nil))
	require.NoError(t, m.GulpEmissions(1000, pool))

	err := m.GulpEmissions(1000+GulpInterval-1, pool)
	require.Error(t, err)
}
