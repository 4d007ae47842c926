package emissions

import "poolcore/crypto"

// Store is the persistence boundary for the emissions module.
type Store interface {
	GetEmitterState() (*EmitterState, error)
	PutEmitterState(*EmitterState) error

	ListRewardZone() ([]crypto.Address, error)
	PutRewardZone(pools []crypto.Address) error

	// GetPoolEmissionData returns a fresh zero balance if pool has never
	// accrued anything.
	GetPoolEmissionData(pool crypto.Address) (*PoolEmissionData, error)
	PutPoolEmissionData(*PoolEmissionData) error

	// GetBackstopEmissionData returns a fresh zero, expired rate if pool has
	// never been gulped.
	GetBackstopEmissionData(pool crypto.Address) (*BackstopEmissionData, error)
	PutBackstopEmissionData(*BackstopEmissionData) error
}
