package backstop

import (
	"errors"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"poolcore/crypto"
	"poolcore/fixedpoint"
)

var (
	ErrInsufficientShares = errors.New("backstop: insufficient shares")
	ErrNothingQueued      = errors.New("backstop: no queued withdrawal covers this amount")
	ErrNotYetUnlocked     = errors.New("backstop: queued withdrawal not yet unlocked")
	ErrZeroAmount         = errors.New("backstop: amount must be positive")
)

// TokenTransferer is the narrow token-movement surface the backstop needs
// from the host chain's token standard, mirroring pool.TokenClient but kept
// separate so the backstop package never imports pool.
type TokenTransferer interface {
	Transfer(asset, from, to crypto.Address, amount *uint256.Int) error
	TransferFrom(asset, spender, from, to crypto.Address, amount *uint256.Int) error
}

// Backstop implements the shared first-loss capital pool. It satisfies
// pool.BackstopView by duck typing, so pool never imports this package.
type Backstop struct {
	LPToken crypto.Address
	Self    crypto.Address // this backstop contract's own address, the transfer counterparty
	Store   Store
	Token   TokenTransferer
}

// New wires a Backstop's collaborators.
func New(self, lpToken crypto.Address, store Store, token TokenTransferer) *Backstop {
	return &Backstop{LPToken: lpToken, Self: self, Store: store, Token: token}
}

// BackstopToken returns the shared LP token address.
func (b *Backstop) BackstopToken() crypto.Address { return b.LPToken }

// sharePrice returns tokens-per-share scaled by SCALAR_7, or exactly 1.0
// when the pool has no shares yet.
func sharePrice(bal *PoolBalance) *uint256.Int {
	if bal.Shares.IsZero() {
		return new(uint256.Int).Set(fixedpoint.Scalar7)
	}
	return fixedpoint.MulFloor(bal.Tokens, fixedpoint.Scalar7, bal.Shares)
}

// PoolData returns the backing token total, the per-share spot price, and
// the fraction of shares currently queued for withdrawal (spec.md §4.6,
// consumed by the pool's BadDebt/Interest auction sizing).
func (b *Backstop) PoolData(pool crypto.Address) (tokens, spotPrice, q4wPercent *uint256.Int, err error) {
	bal, err := b.Store.GetPoolBalance(pool)
	if err != nil {
		return nil, nil, nil, err
	}
	price := sharePrice(bal)
	pct := new(uint256.Int)
	if !bal.Shares.IsZero() {
		pct = fixedpoint.MulFloor(bal.QueuedShares, fixedpoint.Scalar7, bal.Shares)
	}
	return new(uint256.Int).Set(bal.Tokens), price, pct, nil
}

// Deposit mints backstop shares for `amount` LP tokens pulled from `from`
// (spec.md §4.6's deposit operation).
func (b *Backstop) Deposit(pool, from crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}
	bal, err := b.Store.GetPoolBalance(pool)
	if err != nil {
		return nil, err
	}
	price := sharePrice(bal)
	shares := fixedpoint.MulFloor(amount, fixedpoint.Scalar7, price)

	user, err := b.userBalance(pool, from)
	if err != nil {
		return nil, err
	}

	if err := b.Token.TransferFrom(b.LPToken, b.Self, from, b.Self, amount); err != nil {
		return nil, err
	}

	bal.Tokens = new(uint256.Int).Add(bal.Tokens, amount)
	bal.Shares = new(uint256.Int).Add(bal.Shares, shares)
	user.Shares = new(uint256.Int).Add(user.Shares, shares)

	if err := b.Store.PutPoolBalance(bal); err != nil {
		return nil, err
	}
	return shares, b.Store.PutUserBalance(user)
}

// QueueWithdrawal starts the Q4WDelay unlock clock on `shares` of a
// depositor's stake. Shares stay at risk (and keep earning) while queued;
// only the right to redeem them is reserved.
func (b *Backstop) QueueWithdrawal(now uint64, pool, owner crypto.Address, shares *uint256.Int) error {
	if shares.IsZero() {
		return ErrZeroAmount
	}
	user, err := b.userBalance(pool, owner)
	if err != nil {
		return err
	}
	alreadyQueued := user.QueuedShareTotal()
	if new(uint256.Int).Add(alreadyQueued, shares).Gt(user.Shares) {
		return ErrInsufficientShares
	}
	user.Q4W = append(user.Q4W, QueuedWithdrawal{Ticket: uuid.New(), Shares: new(uint256.Int).Set(shares), ExpirationTime: now + Q4WDelay})

	bal, err := b.Store.GetPoolBalance(pool)
	if err != nil {
		return err
	}
	bal.QueuedShares = new(uint256.Int).Add(bal.QueuedShares, shares)

	if err := b.Store.PutPoolBalance(bal); err != nil {
		return err
	}
	return b.Store.PutUserBalance(user)
}

// DequeueWithdrawal cancels a queued withdrawal, freeing the shares to earn
// normally again without requiring the unlock delay to elapse.
func (b *Backstop) DequeueWithdrawal(pool, owner crypto.Address, shares *uint256.Int) error {
	user, err := b.userBalance(pool, owner)
	if err != nil {
		return err
	}
	if !popQueued(user, shares) {
		return ErrNothingQueued
	}
	bal, err := b.Store.GetPoolBalance(pool)
	if err != nil {
		return err
	}
	bal.QueuedShares = fixedpoint.SaturatingSub(bal.QueuedShares, shares)
	if err := b.Store.PutPoolBalance(bal); err != nil {
		return err
	}
	return b.Store.PutUserBalance(user)
}

// Withdraw redeems `shares` of an unlocked queued withdrawal for the
// underlying LP token, paid to `owner`.
func (b *Backstop) Withdraw(now uint64, pool, owner crypto.Address, shares *uint256.Int) error {
	user, err := b.userBalance(pool, owner)
	if err != nil {
		return err
	}
	if !popUnlockedQueued(user, shares, now) {
		return ErrNotYetUnlocked
	}
	if user.Shares.Lt(shares) {
		return ErrInsufficientShares
	}
	bal, err := b.Store.GetPoolBalance(pool)
	if err != nil {
		return err
	}
	price := sharePrice(bal)
	amount := fixedpoint.MulFloor(shares, price, fixedpoint.Scalar7)

	user.Shares = new(uint256.Int).Sub(user.Shares, shares)
	bal.Shares = fixedpoint.SaturatingSub(bal.Shares, shares)
	bal.QueuedShares = fixedpoint.SaturatingSub(bal.QueuedShares, shares)
	bal.Tokens = fixedpoint.SaturatingSub(bal.Tokens, amount)

	if err := b.Token.Transfer(b.LPToken, b.Self, owner, amount); err != nil {
		return err
	}
	if err := b.Store.PutPoolBalance(bal); err != nil {
		return err
	}
	return b.Store.PutUserBalance(user)
}

// Draw pays `amount` LP tokens directly out of a pool's backstop balance,
// diluting remaining depositors instead of minting or burning shares. Used
// when a pool needs to cover a shortfall with backstop capital directly.
func (b *Backstop) Draw(pool crypto.Address, amount *uint256.Int, to crypto.Address) error {
	bal, err := b.Store.GetPoolBalance(pool)
	if err != nil {
		return err
	}
	if bal.Tokens.Lt(amount) {
		return ErrInsufficientShares
	}
	bal.Tokens = new(uint256.Int).Sub(bal.Tokens, amount)
	if err := b.Token.Transfer(b.LPToken, b.Self, to, amount); err != nil {
		return err
	}
	return b.Store.PutPoolBalance(bal)
}

// DrawLPToken is Draw under the name pool.BackstopView expects: it is the
// BadDebt auction's lot leg, paying a filler in backstop shares' worth of
// LP tokens without going through the deposit/withdraw share machinery.
func (b *Backstop) DrawLPToken(pool crypto.Address, amount *uint256.Int, to crypto.Address) error {
	return b.Draw(pool, amount, to)
}

// Donate adds `amount` LP tokens to a pool's backstop balance without
// minting shares, so every existing depositor's share appreciates. Used by
// the Interest auction's bid leg.
func (b *Backstop) Donate(from, pool crypto.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	bal, err := b.Store.GetPoolBalance(pool)
	if err != nil {
		return err
	}
	if err := b.Token.TransferFrom(b.LPToken, b.Self, from, b.Self, amount); err != nil {
		return err
	}
	bal.Tokens = new(uint256.Int).Add(bal.Tokens, amount)
	return b.Store.PutPoolBalance(bal)
}

// TransferBadDebt records that a pool's liquidation process has handed
// `amount` of `asset` in unrecoverable liabilities to the backstop (spec.md
// §4.5 BadDebtAuction). The liability itself lives in the pool's own
// position ledger keyed at the backstop's address; this call only updates
// the backstop's own reporting of cumulative losses absorbed per pool.
func (b *Backstop) TransferBadDebt(pool crypto.Address, asset crypto.Address, amount *uint256.Int) error {
	bal, err := b.Store.GetPoolBalance(pool)
	if err != nil {
		return err
	}
	cur, ok := bal.BadDebt[asset]
	if !ok {
		cur = new(uint256.Int)
	}
	bal.BadDebt[asset] = new(uint256.Int).Add(cur, amount)
	return b.Store.PutPoolBalance(bal)
}

func (b *Backstop) userBalance(pool, owner crypto.Address) (*UserBalance, error) {
	u, err := b.Store.GetUserBalance(pool, owner)
	if err != nil {
		return nil, err
	}
	if u == nil {
		u = NewUserBalance(pool, owner)
	}
	return u, nil
}

// popQueued removes up to `shares` worth of queued entries regardless of
// unlock time, oldest first, returning false if the total queued is short.
func popQueued(u *UserBalance, shares *uint256.Int) bool {
	if u.QueuedShareTotal().Lt(shares) {
		return false
	}
	remaining := new(uint256.Int).Set(shares)
	kept := u.Q4W[:0]
	for _, q := range u.Q4W {
		if remaining.IsZero() {
			kept = append(kept, q)
			continue
		}
		if q.Shares.Lte(remaining) {
			remaining = new(uint256.Int).Sub(remaining, q.Shares)
			continue
		}
		kept = append(kept, QueuedWithdrawal{Ticket: q.Ticket, Shares: new(uint256.Int).Sub(q.Shares, remaining), ExpirationTime: q.ExpirationTime})
		remaining = new(uint256.Int)
	}
	u.Q4W = kept
	return true
}

// popUnlockedQueued is popQueued restricted to entries whose unlock time has
// already passed.
func popUnlockedQueued(u *UserBalance, shares *uint256.Int, now uint64) bool {
	var unlockedTotal uint256.Int
	for _, q := range u.Q4W {
		if q.ExpirationTime <= now {
			unlockedTotal = *new(uint256.Int).Add(&unlockedTotal, q.Shares)
		}
	}
	if unlockedTotal.Lt(shares) {
		return false
	}
	remaining := new(uint256.Int).Set(shares)
	kept := u.Q4W[:0]
	for _, q := range u.Q4W {
		if q.ExpirationTime > now || remaining.IsZero() {
			kept = append(kept, q)
			continue
		}
		if q.Shares.Lte(remaining) {
			remaining = new(uint256.Int).Sub(remaining, q.Shares)
			continue
		}
		kept = append(kept, QueuedWithdrawal{Ticket: q.Ticket, Shares: new(uint256.Int).Sub(q.Shares, remaining), ExpirationTime: q.ExpirationTime})
		remaining = new(uint256.Int)
	}
	u.Q4W = kept
	return true
}
