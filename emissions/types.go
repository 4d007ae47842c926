// Package emissions implements the backstop's per-second token drip to the
// reward zone and the per-pool gulp that splits accrued tokens between
// backstop depositors and the pool's own interest reserve (spec.md §4.7).
package emissions

import (
	"github.com/holiman/uint256"

	"poolcore/crypto"
)

const (
	// MaxRewardZoneSize bounds the reward zone (spec.md §6 MAX_RZ_SIZE).
	MaxRewardZoneSize = 30

	// MinDistributeInterval is the minimum gap between distribute() calls
	// once the reward zone is non-empty (spec.md §4.7).
	MinDistributeInterval = 5

	// RewardZoneFreshness bounds how stale the last distribute() call may be
	// before a reward-zone add/remove is rejected (spec.md §4.7).
	RewardZoneFreshness = 3600

	// GulpInterval is the minimum gap between gulp_emissions() calls for a
	// given pool (spec.md §4.7).
	GulpInterval = 86400

	// BackstopEmissionWindow is the expiry horizon for the EPS a gulp
	// produces for backstop depositors (spec.md §4.7, "7-day expiry").
	BackstopEmissionWindow = 7 * 24 * 60 * 60

	// PoolAllowanceTTL is the "long TTL" the pool portion of a gulp bumps
	// the contract's token allowance to the pool by (spec.md §4.7, "~120
	// days"). Chosen to comfortably outlast the 86400s gulp cadence so the
	// pool never finds its allowance expired between gulps.
	PoolAllowanceTTL = 120 * 24 * 60 * 60

	// BackstopDepositorShareBps and PoolInterestShareBps are the 70/30
	// gulp split (spec.md §4.7), expressed in basis points.
	BackstopDepositorShareBps = 7_000
	PoolInterestShareBps      = 3_000
)

// MaxBackfilledEmissions caps the lifetime sum of emissions ever minted by
// the backfill path (spec.md §6, "≈ 5 × 10⁶ · 10⁷").
var MaxBackfilledEmissions = new(uint256.Int).Mul(uint256.NewInt(5_000_000), uint256.NewInt(10_000_000))

// DistributeMode tracks whether the last successful distribute() call read
// a live timestamp from the emitter (Normal) or fell back to wall-clock
// backfill accrual (Backfill). The zero value, ModeUnset, marks a state
// that has never seen a distribute() call.
type DistributeMode uint8

const (
	ModeUnset DistributeMode = iota
	ModeNormal
	ModeBackfill
)

// EmitterState is the emissions manager's own persisted state: the single
// distribute() clock shared across the whole reward zone, not per pool.
type EmitterState struct {
	LastDist            uint64
	Mode                DistributeMode
	BackfilledEmissions *uint256.Int
}

// NewEmitterState returns a never-distributed state.
func NewEmitterState() *EmitterState {
	return &EmitterState{BackfilledEmissions: new(uint256.Int)}
}

// Clone deep-copies an EmitterState.
func (s *EmitterState) Clone() *EmitterState {
	if s == nil {
		return nil
	}
	return &EmitterState{LastDist: s.LastDist, Mode: s.Mode, BackfilledEmissions: new(uint256.Int).Set(s.BackfilledEmissions)}
}

// PoolEmissionData is one pool's raw, not-yet-gulped emissions balance,
// E(pool) in spec.md §4.7.
type PoolEmissionData struct {
	Pool     crypto.Address
	Accrued  *uint256.Int
	LastGulp uint64
}

// NewPoolEmissionData returns an empty balance for pool.
func NewPoolEmissionData(pool crypto.Address) *PoolEmissionData {
	return &PoolEmissionData{Pool: pool, Accrued: new(uint256.Int)}
}

// Clone deep-copies a PoolEmissionData.
func (d *PoolEmissionData) Clone() *PoolEmissionData {
	if d == nil {
		return nil
	}
	return &PoolEmissionData{Pool: d.Pool, Accrued: new(uint256.Int).Set(d.Accrued), LastGulp: d.LastGulp}
}

// BackstopEmissionData, BED(pool) in spec.md §4.7, is the per-second
// emission rate a gulp produces for the pool's backstop depositors, scaled
// by fixedpoint.ScalarEPS, valid until ExpiryTime.
type BackstopEmissionData struct {
	Pool       crypto.Address
	EPS        *uint256.Int
	ExpiryTime uint64
}

// NewBackstopEmissionData returns a zero, already-expired rate for pool.
func NewBackstopEmissionData(pool crypto.Address) *BackstopEmissionData {
	return &BackstopEmissionData{Pool: pool, EPS: new(uint256.Int)}
}

// Clone deep-copies a BackstopEmissionData.
func (d *BackstopEmissionData) Clone() *BackstopEmissionData {
	if d == nil {
		return nil
	}
	return &BackstopEmissionData{Pool: d.Pool, EPS: new(uint256.Int).Set(d.EPS), ExpiryTime: d.ExpiryTime}
}
