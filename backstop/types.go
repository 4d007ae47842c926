// Package backstop implements the pool protocol's shared first-loss capital
// pool (spec.md §4.6, C7): depositors pool one LP token across every lending
// pool that opts in, queue-gated withdrawals absorb the friction of exiting,
// and bad debt a pool cannot recover is charged against the pooled capital
// rather than against individual suppliers.
package backstop

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"poolcore/crypto"
)

// Q4WDelay is the queue-for-withdrawal unlock period (spec.md §4.6): a
// depositor must wait this long after queuing before their shares can be
// redeemed for the underlying LP token.
const Q4WDelay = 17 * 24 * 60 * 60 // seconds, 17 days

// PoolBalance is one lending pool's allocation within the shared backstop.
type PoolBalance struct {
	Pool        crypto.Address
	Shares      *uint256.Int // total backstop shares issued against this pool
	Tokens      *uint256.Int // total underlying LP tokens backing those shares
	QueuedShares *uint256.Int // shares currently queued for withdrawal, any unlock time
	BadDebt     map[crypto.Address]*uint256.Int // cumulative bad debt absorbed, by asset, for reporting
}

// NewPoolBalance returns an empty allocation for pool.
func NewPoolBalance(pool crypto.Address) *PoolBalance {
	return &PoolBalance{
		Pool:         pool,
		Shares:       new(uint256.Int),
		Tokens:       new(uint256.Int),
		QueuedShares: new(uint256.Int),
		BadDebt:      map[crypto.Address]*uint256.Int{},
	}
}

// Clone deep-copies a PoolBalance.
func (b *PoolBalance) Clone() *PoolBalance {
	if b == nil {
		return nil
	}
	clone := &PoolBalance{
		Pool:         b.Pool,
		Shares:       new(uint256.Int).Set(b.Shares),
		Tokens:       new(uint256.Int).Set(b.Tokens),
		QueuedShares: new(uint256.Int).Set(b.QueuedShares),
		BadDebt:      make(map[crypto.Address]*uint256.Int, len(b.BadDebt)),
	}
	for k, v := range b.BadDebt {
		clone.BadDebt[k] = new(uint256.Int).Set(v)
	}
	return clone
}

// QueuedWithdrawal is one depositor's pending share redemption. Ticket
// carries no protocol meaning; it exists so an operator dashboard or support
// flow can name a specific queued entry in logs without reconstructing it
// from (pool, owner, index).
type QueuedWithdrawal struct {
	Ticket         uuid.UUID
	Shares         *uint256.Int
	ExpirationTime uint64
}

// UserBalance is one depositor's stake in one pool's backstop allocation.
type UserBalance struct {
	Pool   crypto.Address
	Owner  crypto.Address
	Shares *uint256.Int
	Q4W    []QueuedWithdrawal
}

// NewUserBalance returns an empty stake.
func NewUserBalance(pool, owner crypto.Address) *UserBalance {
	return &UserBalance{Pool: pool, Owner: owner, Shares: new(uint256.Int)}
}

// Clone deep-copies a UserBalance.
func (u *UserBalance) Clone() *UserBalance {
	if u == nil {
		return nil
	}
	clone := &UserBalance{Pool: u.Pool, Owner: u.Owner, Shares: new(uint256.Int).Set(u.Shares)}
	clone.Q4W = make([]QueuedWithdrawal, len(u.Q4W))
	for i, q := range u.Q4W {
		clone.Q4W[i] = QueuedWithdrawal{Ticket: q.Ticket, Shares: new(uint256.Int).Set(q.Shares), ExpirationTime: q.ExpirationTime}
	}
	return clone
}

// QueuedShareTotal sums every queued entry regardless of unlock time.
func (u *UserBalance) QueuedShareTotal() *uint256.Int {
	total := new(uint256.Int)
	for _, q := range u.Q4W {
		total = new(uint256.Int).Add(total, q.Shares)
	}
	return total
}
