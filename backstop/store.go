package backstop

import "poolcore/crypto"

// Store is the persistence boundary for the backstop module, grounded on
// the same narrow-interface pattern as pool.PoolStore.
type Store interface {
	GetPoolBalance(pool crypto.Address) (*PoolBalance, error)
	PutPoolBalance(b *PoolBalance) error

	// GetUserBalance returns (nil, nil) for a depositor with no stake.
	GetUserBalance(pool, owner crypto.Address) (*UserBalance, error)
	PutUserBalance(u *UserBalance) error

	// ListRewardZone returns the pools currently eligible for backstop
	// emissions (spec.md §4.6/§4.7's reward zone membership list).
	ListRewardZone() ([]crypto.Address, error)
	PutRewardZone(pools []crypto.Address) error
}
