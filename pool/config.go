package pool

import (
	"poolcore/crypto"
	"poolcore/fixedpoint"
)

// ReserveConfigTimelock is the one-week delay spec.md §4.8 imposes on a
// queued reserve config change, except while the pool is still in Setup
// status (6), when changes unlock immediately.
const ReserveConfigTimelock = 7 * 24 * 60 * 60

// validateReserveConfig enforces the invariants spec.md §4.8 requires of any
// proposed ReserveConfig before it can be queued.
func validateReserveConfig(cfg ReserveConfig) error {
	if cfg.CFactor.Gt(fixedpoint.Scalar7) || cfg.LFactor.Gt(fixedpoint.Scalar7) {
		return coded(CodeInvalidReserveMeta, ErrInvalidReserveMeta)
	}
	if cfg.Util.IsZero() || cfg.Util.GtUint64(9_000_000) {
		return coded(CodeInvalidReserveMeta, ErrInvalidReserveMeta)
	}
	if cfg.MaxUtil.IsZero() || cfg.MaxUtil.Gt(fixedpoint.Scalar7) {
		return coded(CodeInvalidReserveMeta, ErrInvalidReserveMeta)
	}
	if !cfg.MaxUtil.Gt(cfg.Util) {
		return coded(CodeInvalidReserveMeta, ErrInvalidReserveMeta)
	}
	if cfg.RBase.LtUint64(1_000) || !cfg.RBase.Lt(fixedpoint.Scalar7) {
		return coded(CodeInvalidReserveMeta, ErrInvalidReserveMeta)
	}
	if cfg.ROne.Gt(cfg.RTwo) || cfg.RTwo.Gt(cfg.RThree) {
		return coded(CodeInvalidReserveMeta, ErrInvalidReserveMeta)
	}
	if cfg.Reactivity.GtUint64(1_000) {
		return coded(CodeInvalidReserveMeta, ErrInvalidReserveMeta)
	}
	return nil
}

// QueueSetReserve stages a reserve config change, unlocking after one week
// (or immediately if the pool is still in Setup status). Re-queuing an
// index that already has a pending change overwrites it and restarts the
// timer, matching the teacher's config.go pattern of last-writer-wins for
// queued governance changes.
func (p *Pool) QueueSetReserve(now uint64, idx uint32, newConfig ReserveConfig) error {
	if err := validateReserveConfig(newConfig); err != nil {
		return err
	}
	if _, err := p.Store.GetReserve(idx); err != nil {
		return err
	}
	cfg, err := p.Store.GetPoolConfig()
	if err != nil {
		return err
	}
	unlock := now + ReserveConfigTimelock
	if cfg.Status == PoolStatusSetup {
		unlock = now
	}
	return p.Store.PutQueuedReserveConfig(&QueuedReserveConfig{
		ReserveIndex: idx,
		NewConfig:    newConfig,
		UnlockTime:   unlock,
	})
}

// CancelQueuedSetReserve discards a pending reserve config change before it
// unlocks. Canceling a non-existent queue entry is a no-op, matching the
// teacher's idempotent-cancel convention (native/lending/config.go).
func (p *Pool) CancelQueuedSetReserve(idx uint32) error {
	return p.Store.DeleteQueuedReserveConfig(idx)
}

// SetReserve commits a queued reserve config change once it has unlocked.
func (p *Pool) SetReserve(now uint64, idx uint32) error {
	q, err := p.Store.GetQueuedReserveConfig(idx)
	if err != nil {
		return err
	}
	if q == nil {
		return coded(CodeInvalidReserveMeta, ErrInvalidReserveMeta)
	}
	if now < q.UnlockTime {
		return coded(CodeInitNotUnlocked, ErrInitNotUnlocked)
	}
	r, err := p.Store.GetReserve(idx)
	if err != nil {
		return err
	}
	r.Config = q.NewConfig
	if err := p.Store.PutReserve(r); err != nil {
		return err
	}
	return p.Store.DeleteQueuedReserveConfig(idx)
}

// InitReserve registers a brand new reserve, skipping the timelock entirely
// (spec.md §4.8: initial reserve registration is immediate, only later
// edits are timelocked).
func (p *Pool) InitReserve(asset crypto.Address, idx uint32, cfg ReserveConfig) error {
	if err := validateReserveConfig(cfg); err != nil {
		return err
	}
	if _, err := p.Store.GetReserve(idx); err == nil {
		return coded(CodeInvalidReserveMeta, ErrInvalidReserveMeta)
	}
	return p.Store.PutReserve(NewReserve(asset, idx, cfg))
}

// UpdatePoolConfig applies a governance change to pool-wide parameters
// (spec.md §4.8's update_pool). Unlike reserve configs, pool-wide
// parameters are not timelocked.
func (p *Pool) UpdatePoolConfig(newConfig PoolConfig) error {
	if newConfig.BstopRate.Gte(fixedpoint.Scalar7) {
		return coded(CodeInvalidPoolConfig, ErrInvalidPoolConfig)
	}
	return p.Store.PutPoolConfig(newConfig)
}
