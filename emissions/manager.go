package emissions

import (
	"github.com/holiman/uint256"

	"poolcore/crypto"
	"poolcore/fixedpoint"
)

// BackstopPoolData is the narrow slice of the backstop's interface the
// emissions manager depends on: each reward-zone pool's token balance and
// spot price, used to weight distribution and to gate reward-zone entry.
type BackstopPoolData interface {
	PoolData(pool crypto.Address) (tokens, spotPrice, q4wPercent *uint256.Int, err error)
}

// TokenApprover is the narrow token surface gulp_emissions needs to push the
// pool-interest share of a gulp to the pool as a spendable allowance.
type TokenApprover interface {
	Approve(asset crypto.Address, owner, spender crypto.Address, amount *uint256.Int, expiration uint64) error
}

// MinRewardZoneValue is the dollar-denominated (SCALAR_7) minimum backstop
// size a pool must carry to join the reward zone. spec.md leaves the exact
// threshold function of "(BLND·USDC) LP composition" unspecified beyond
// "pool.tokens >= f(spot_price)"; this manager converts a fixed USD floor
// into a token-count threshold via the LP's own spot price, recorded as an
// Open Question decision in DESIGN.md.
var MinRewardZoneValue = new(uint256.Int).Mul(uint256.NewInt(50_000), fixedpoint.Scalar7)

func thresholdTokens(spotPrice *uint256.Int) *uint256.Int {
	if spotPrice.IsZero() {
		return new(uint256.Int)
	}
	return fixedpoint.DivFloor(new(uint256.Int).Mul(MinRewardZoneValue, fixedpoint.Scalar7), spotPrice)
}

// Manager runs the emissions machinery (spec.md §4.7) against a Store and a
// backstop collaborator. It never imports the backstop package: callers wire
// a concrete *backstop.Backstop in through the BackstopPoolData interface.
type Manager struct {
	Store     Store
	Backstop  BackstopPoolData
	Token     TokenApprover
	Self      crypto.Address // this manager's own address, the allowance owner
	EmitToken crypto.Address
}

// NewManager wires a Manager's collaborators.
func NewManager(self, emitToken crypto.Address, store Store, backstop BackstopPoolData, token TokenApprover) *Manager {
	return &Manager{Store: store, Backstop: backstop, Token: token, Self: self, EmitToken: emitToken}
}

func containsAddr(zone []crypto.Address, addr crypto.Address) bool {
	for _, a := range zone {
		if a == addr {
			return true
		}
	}
	return false
}

func removeAddr(zone []crypto.Address, addr crypto.Address) []crypto.Address {
	out := make([]crypto.Address, 0, len(zone))
	for _, a := range zone {
		if a != addr {
			out = append(out, a)
		}
	}
	return out
}

// meetsThreshold reports whether pool currently carries enough backstop
// value to be reward-zone eligible.
func (m *Manager) meetsThreshold(pool crypto.Address) (bool, *uint256.Int, error) {
	tokens, spot, _, err := m.Backstop.PoolData(pool)
	if err != nil {
		return false, nil, err
	}
	return tokens.Gte(thresholdTokens(spot)), tokens, nil
}

func (m *Manager) requireFreshDistribution(now uint64, zone []crypto.Address) error {
	if len(zone) == 0 {
		return nil
	}
	state, err := m.Store.GetEmitterState()
	if err != nil {
		return err
	}
	if now < state.LastDist || now-state.LastDist > RewardZoneFreshness {
		return coded(CodeBadRequest, ErrNotStale)
	}
	return nil
}

// AddToRewardZone implements spec.md §4.7's add(to_add, to_remove?). When the
// zone is full, toRemove names the pool to evict and must hold strictly less
// backstop value than toAdd.
func (m *Manager) AddToRewardZone(now uint64, toAdd crypto.Address, toRemove *crypto.Address) error {
	zone, err := m.Store.ListRewardZone()
	if err != nil {
		return err
	}
	if containsAddr(zone, toAdd) {
		return coded(CodeInvalidRewardZoneEntry, ErrInvalidRewardZoneEntry)
	}
	ok, addTokens, err := m.meetsThreshold(toAdd)
	if err != nil {
		return err
	}
	if !ok {
		return coded(CodeInvalidRewardZoneEntry, ErrInvalidRewardZoneEntry)
	}
	if err := m.requireFreshDistribution(now, zone); err != nil {
		return err
	}

	if len(zone) >= MaxRewardZoneSize {
		if toRemove == nil {
			return coded(CodeRewardZoneFull, ErrRewardZoneFull)
		}
		if !containsAddr(zone, *toRemove) {
			return coded(CodeBadRequest, ErrBadRequest)
		}
		_, removeTokens, err := m.meetsThreshold(*toRemove)
		if err != nil {
			return err
		}
		if !removeTokens.Lt(addTokens) {
			return coded(CodeRewardZoneFull, ErrRewardZoneFull)
		}
		zone = removeAddr(zone, *toRemove)
	}

	zone = append([]crypto.Address{toAdd}, zone...)
	return m.Store.PutRewardZone(zone)
}

// RemoveFromRewardZone implements spec.md §4.7's remove(to_remove): only
// pools that have fallen below threshold may be evicted this way.
func (m *Manager) RemoveFromRewardZone(now uint64, toRemove crypto.Address) error {
	zone, err := m.Store.ListRewardZone()
	if err != nil {
		return err
	}
	if !containsAddr(zone, toRemove) {
		return coded(CodeBadRequest, ErrBadRequest)
	}
	ok, _, err := m.meetsThreshold(toRemove)
	if err != nil {
		return err
	}
	if ok {
		return coded(CodeInvalidRewardZoneEntry, ErrInvalidRewardZoneEntry)
	}
	if err := m.requireFreshDistribution(now, zone); err != nil {
		return err
	}
	return m.Store.PutRewardZone(removeAddr(zone, toRemove))
}

// Distribute implements spec.md §4.7's distribute(): it reads the emitter's
// last-distribution timestamp and either accrues a normal per-second drip or
// falls back to a capped wall-clock backfill, then splits the new emissions
// across the reward zone by each pool's non-queued backstop token share.
// getLastDistro models the `emitter.get_last_distro(pool_backstop)` call;
// its error return models the emitter being unreachable.
func (m *Manager) Distribute(now uint64, getLastDistro func() (uint64, error)) (*uint256.Int, error) {
	state, err := m.Store.GetEmitterState()
	if err != nil {
		return nil, err
	}

	if state.Mode == ModeUnset {
		te, err := getLastDistro()
		if err == nil {
			state.LastDist = te
			state.Mode = ModeNormal
		} else {
			state.LastDist = now
			state.Mode = ModeBackfill
		}
		return new(uint256.Int), m.Store.PutEmitterState(state)
	}

	zone, err := m.Store.ListRewardZone()
	if err != nil {
		return nil, err
	}
	if len(zone) == 0 {
		return nil, coded(CodeBadRequest, ErrBadRequest)
	}
	if now < state.LastDist || now-state.LastDist < MinDistributeInterval {
		return nil, coded(CodeBadRequest, ErrNotStale)
	}

	var accrued *uint256.Int
	te, emitterErr := getLastDistro()
	switch {
	case emitterErr == nil && state.Mode == ModeBackfill:
		// Switching out of backfill: the interval between last_dist and T_e
		// was never tracked by the emitter, so it cannot be recovered.
		state.LastDist = te
		state.Mode = ModeNormal
		accrued = new(uint256.Int)

	case emitterErr == nil:
		delta := te - state.LastDist
		accrued = new(uint256.Int).Mul(uint256.NewInt(delta), fixedpoint.Scalar7)
		state.LastDist = te

	default:
		if state.Mode == ModeNormal {
			panic("emissions: emitter reported failure after previously succeeding")
		}
		remaining := fixedpoint.SaturatingSub(MaxBackfilledEmissions, state.BackfilledEmissions)
		if remaining.IsZero() {
			return nil, coded(CodeMaxBackfillEmissions, ErrMaxBackfillEmissions)
		}
		delta := now - state.LastDist
		raw := new(uint256.Int).Mul(uint256.NewInt(delta), fixedpoint.Scalar7)
		accrued = fixedpoint.Min(raw, remaining)
		state.BackfilledEmissions = new(uint256.Int).Add(state.BackfilledEmissions, accrued)
		state.LastDist = now
		state.Mode = ModeBackfill
	}

	if err := m.Store.PutEmitterState(state); err != nil {
		return nil, err
	}
	if accrued.IsZero() {
		return accrued, nil
	}
	if err := m.distributeToZone(zone, accrued); err != nil {
		return nil, err
	}
	return accrued, nil
}

func (m *Manager) distributeToZone(zone []crypto.Address, accrued *uint256.Int) error {
	type weighted struct {
		pool   crypto.Address
		tokens *uint256.Int
	}
	entries := make([]weighted, 0, len(zone))
	total := new(uint256.Int)
	for _, pool := range zone {
		tokens, _, q4wPct, err := m.Backstop.PoolData(pool)
		if err != nil {
			return err
		}
		queued := fixedpoint.MulFloor(tokens, q4wPct, fixedpoint.Scalar7)
		nonQueued := fixedpoint.SaturatingSub(tokens, queued)
		entries = append(entries, weighted{pool: pool, tokens: nonQueued})
		total = new(uint256.Int).Add(total, nonQueued)
	}
	if total.IsZero() {
		return nil
	}
	for _, e := range entries {
		share := fixedpoint.MulFloor(accrued, e.tokens, total)
		if share.IsZero() {
			continue
		}
		data, err := m.Store.GetPoolEmissionData(e.pool)
		if err != nil {
			return err
		}
		data.Accrued = new(uint256.Int).Add(data.Accrued, share)
		if err := m.Store.PutPoolEmissionData(data); err != nil {
			return err
		}
	}
	return nil
}

// GulpEmissions implements spec.md §4.7's gulp_emissions(pool): splits a
// pool's accrued, not-yet-distributed emissions 70/30 between backstop
// depositors (as a renewed 7-day EPS) and the pool's own interest reserve
// (as a token allowance).
func (m *Manager) GulpEmissions(now uint64, pool crypto.Address) error {
	data, err := m.Store.GetPoolEmissionData(pool)
	if err != nil {
		return err
	}
	if data.LastGulp != 0 && (now < data.LastGulp || now-data.LastGulp < GulpInterval) {
		return coded(CodeBadRequest, ErrNotStale)
	}
	accrued := data.Accrued
	data.Accrued = new(uint256.Int)
	data.LastGulp = now
	if err := m.Store.PutPoolEmissionData(data); err != nil {
		return err
	}
	if accrued.IsZero() {
		return nil
	}

	backstopPortion := fixedpoint.MulBpsFloor(accrued, BackstopDepositorShareBps)
	poolPortion := fixedpoint.SaturatingSub(accrued, backstopPortion)

	bed, err := m.Store.GetBackstopEmissionData(pool)
	if err != nil {
		return err
	}
	priorTokens := new(uint256.Int)
	if now < bed.ExpiryTime {
		remainingSeconds := bed.ExpiryTime - now
		priorTokens = fixedpoint.MulFloor(bed.EPS, uint256.NewInt(remainingSeconds), fixedpoint.ScalarEPS)
	}
	newTotal := new(uint256.Int).Add(priorTokens, backstopPortion)
	bed.EPS = fixedpoint.MulFloor(newTotal, fixedpoint.ScalarEPS, uint256.NewInt(BackstopEmissionWindow))
	bed.ExpiryTime = now + BackstopEmissionWindow
	if err := m.Store.PutBackstopEmissionData(bed); err != nil {
		return err
	}

	// spec.md requires the pool's new allowance to be additive with its
	// current one; TokenApprover implementations own that accumulation the
	// same way a host ERC20-style approve would, this call only supplies the
	// incremental amount and the refreshed expiry.
	return m.Token.Approve(m.EmitToken, m.Self, pool, poolPortion, now+PoolAllowanceTTL)
}
