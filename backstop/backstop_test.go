package backstop

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolcore/crypto"
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

type fakeToken struct {
	balances map[crypto.Address]map[crypto.Address]*uint256.Int
}

func newFakeToken() *fakeToken {
	return &fakeToken{balances: map[crypto.Address]map[crypto.Address]*uint256.Int{}}
}

func (f *fakeToken) bal(asset, holder crypto.Address) *uint256.Int {
	m, ok := f.balances[asset]
	if !ok {
		return new(uint256.Int)
	}
	v, ok := m[holder]
	if !ok {
		return new(uint256.Int)
	}
	return v
}

func (f *fakeToken) setBal(asset, holder crypto.Address, v *uint256.Int) {
	if _, ok := f.balances[asset]; !ok {
		f.balances[asset] = map[crypto.Address]*uint256.Int{}
	}
	f.balances[asset][holder] = v
}

func (f *fakeToken) Transfer(asset, from, to crypto.Address, amount *uint256.Int) error {
	f.setBal(asset, from, new(uint256.Int).Sub(f.bal(asset, from), amount))
	f.setBal(asset, to, new(uint256.Int).Add(f.bal(asset, to), amount))
	return nil
}

func (f *fakeToken) TransferFrom(asset, spender, from, to crypto.Address, amount *uint256.Int) error {
	return f.Transfer(asset, from, to, amount)
}

func newTestBackstop(t *testing.T) (*Backstop, *fakeToken, crypto.Address, crypto.Address) {
	t.Helper()
	self := testAddr(1)
	lpToken := testAddr(2)
	pool := testAddr(3)
	token := newFakeToken()
	b := New(self, lpToken, NewMemStore(), token)
	return b, token, lpToken, pool
}

func TestDepositMintsSharesAtOneToOneWhenEmpty(t *testing.T) {
	b, token, lpToken, pool := newTestBackstop(t)
	depositor := testAddr(4)
	token.setBal(lpToken, depositor, uint256.NewInt(1_000))

	shares, err := b.Deposit(pool, depositor, uint256.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_000), shares)

	bal, err := b.Store.GetPoolBalance(pool)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_000), bal.Tokens)
	require.Equal(t, uint256.NewInt(1_000), bal.Shares)
}

func TestDepositMintsFewerSharesOncePoolHasAppreciated(t *testing.T) {
	b, token, lpToken, pool := newTestBackstop(t)
	first := testAddr(4)
	second := testAddr(5)
	token.setBal(lpToken, first, uint256.NewInt(1_000))
	token.setBal(lpToken, second, uint256.NewInt(1_000))

	_, err := b.Deposit(pool, first, uint256.NewInt(1_000))
	require.NoError(t, err)

	bal, err := b.Store.GetPoolBalance(pool)
	require.NoError(t, err)
	bal.Tokens = uint256.NewInt(2_000) // interest donated without minting shares
	require.NoError(t, b.Store.PutPoolBalance(bal))

	shares, err := b.Deposit(pool, second, uint256.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(500), shares, "depositing into an appreciated pool mints proportionally fewer shares")
}

func TestQueueAndWithdrawRequiresUnlockDelay(t *testing.T) {
	b, token, lpToken, pool := newTestBackstop(t)
	depositor := testAddr(4)
	token.setBal(lpToken, depositor, uint256.NewInt(1_000))

	_, err := b.Deposit(pool, depositor, uint256.NewInt(1_000))
	require.NoError(t, err)
	require.NoError(t, b.QueueWithdrawal(1000, pool, depositor, uint256.NewInt(1_000)))

	err = b.Withdraw(1000+Q4WDelay-1, pool, depositor, uint256.NewInt(1_000))
	require.Error(t, err, "withdrawal before the Q4W delay elapses must fail")

	require.NoError(t, b.Withdraw(1000+Q4WDelay, pool, depositor, uint256.NewInt(1_000)))
	require.Equal(t, uint256.NewInt(1_000), token.bal(lpToken, depositor))
}

func TestQueueWithdrawalRejectsMoreThanOwned(t *testing.T) {
	b, token, lpToken, pool := newTestBackstop(t)
	depositor := testAddr(4)
	token.setBal(lpToken, depositor, uint256.NewInt(1_000))

	_, err := b.Deposit(pool, depositor, uint256.NewInt(1_000))
	require.NoError(t, err)

	err = b.QueueWithdrawal(1000, pool, depositor, uint256.NewInt(1_001))
	require.Error(t, err)
}

func TestDequeueWithdrawalFreesSharesWithoutWaiting(t *testing.T) {
	b, token, lpToken, pool := newTestBackstop(t)
	depositor := testAddr(4)
	token.setBal(lpToken, depositor, uint256.NewInt(1_000))

	_, err := b.Deposit(pool, depositor, uint256.NewInt(1_000))
	require.NoError(t, err)
	require.NoError(t, b.QueueWithdrawal(1000, pool, depositor, uint256.NewInt(1_000)))
	require.NoError(t, b.DequeueWithdrawal(pool, depositor, uint256.NewInt(1_000)))

	bal, err := b.Store.GetPoolBalance(pool)
	require.NoError(t, err)
	require.True(t, bal.QueuedShares.IsZero())
}

func TestDonateGrowsSharePriceWithoutMintingShares(t *testing.T) {
	b, token, lpToken, pool := newTestBackstop(t)
	depositor := testAddr(4)
	donor := testAddr(5)
	token.setBal(lpToken, depositor, uint256.NewInt(1_000))
	token.setBal(lpToken, donor, uint256.NewInt(500))

	_, err := b.Deposit(pool, depositor, uint256.NewInt(1_000))
	require.NoError(t, err)
	require.NoError(t, b.Donate(donor, pool, uint256.NewInt(500)))

	_, spot, _, err := b.PoolData(pool)
	require.NoError(t, err)
	require.True(t, spot.Gt(uint256.MustFromDecimal("10000000")), "donated tokens must raise the per-share price above 1.0")
}

func TestDrawLPTokenReducesPoolTokensWithoutTouchingShares(t *testing.T) {
	b, token, lpToken, pool := newTestBackstop(t)
	depositor := testAddr(4)
	filler := testAddr(6)
	token.setBal(lpToken, depositor, uint256.NewInt(1_000))

	_, err := b.Deposit(pool, depositor, uint256.NewInt(1_000))
	require.NoError(t, err)
	require.NoError(t, b.DrawLPToken(pool, uint256.NewInt(400), filler))

	bal, err := b.Store.GetPoolBalance(pool)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(600), bal.Tokens)
	require.Equal(t, uint256.NewInt(1_000), bal.Shares, "drawing must not change share count")
	require.Equal(t, uint256.NewInt(400), token.bal(lpToken, filler))
}

func TestTransferBadDebtAccumulatesPerAsset(t *testing.T) {
	b, _, _, pool := newTestBackstop(t)
	asset := testAddr(9)

	require.NoError(t, b.TransferBadDebt(pool, asset, uint256.NewInt(100)))
	require.NoError(t, b.TransferBadDebt(pool, asset, uint256.NewInt(50)))

	bal, err := b.Store.GetPoolBalance(pool)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(150), bal.BadDebt[asset])
}
