// Package pool implements the isolated lending pool core: per-reserve
// interest accrual (C2), the user position ledger (C3), the health
// calculator (C4), the batched request pipeline (C5), the Dutch auction
// engine (C6), and the two-phase reserve config surface (C9) from spec.md.
//
// It is the direct descendant of the teacher's native/lending package,
// generalized from one hardcoded NHB/ZNHB market to N reserves per pool,
// and from a single-shot bonus liquidation to a 400-block Dutch auction with
// partial fills and bad-debt handoff.
package pool

import (
	"github.com/holiman/uint256"

	"poolcore/crypto"
	"poolcore/fixedpoint"
)

// RequestType enumerates the ten primitive actions a caller may batch into
// one submit() call, per spec.md §4.4.
type RequestType uint8

const (
	RequestSupply RequestType = iota
	RequestWithdraw
	RequestSupplyCollateral
	RequestWithdrawCollateral
	RequestBorrow
	RequestRepay
	RequestFillUserLiquidation
	RequestFillBadDebt
	RequestFillInterest
	RequestDeleteLiquidationAuction
)

// Request is one entry in a submit() batch. Amount is an asset amount for
// Supply/Withdraw/Borrow/Repay requests and a fill percentage in [1,100]
// for the three Fill* auction requests.
type Request struct {
	Type    RequestType
	Address crypto.Address
	Amount  *uint256.Int
}

// AuctionKind distinguishes the three auction flavors of C6. Only
// UserLiquidation auctions are keyed by an arbitrary liquidatee; BadDebt and
// Interest auctions are always keyed by the backstop address.
type AuctionKind uint8

const (
	AuctionUserLiquidation AuctionKind = iota
	AuctionBadDebt
	AuctionInterest
)

// AuctionDurationBlocks is the 400-ledger window over which an auction's
// bid/lot price curve moves (spec.md §4.5).
const AuctionDurationBlocks = 400

// ReserveConfig holds the governance-controlled, two-phase-timelocked
// parameters for one reserve (spec.md §3). Ratio fields are scaled by
// fixedpoint.Scalar7 (e.g. a 75% collateral factor is stored as 7_500_000).
type ReserveConfig struct {
	Decimals        uint8
	CFactor         *uint256.Int
	LFactor         *uint256.Int
	Util            *uint256.Int
	MaxUtil         *uint256.Int
	RBase           *uint256.Int
	ROne            *uint256.Int
	RTwo            *uint256.Int
	RThree          *uint256.Int
	Reactivity      *uint256.Int
	SupplyCap       *uint256.Int
	Enabled         bool
}

// Clone deep-copies a ReserveConfig so callers never alias queued/committed
// config across the two-phase timelock boundary.
func (c ReserveConfig) Clone() ReserveConfig {
	clone := c
	clone.CFactor = cloneInt(c.CFactor)
	clone.LFactor = cloneInt(c.LFactor)
	clone.Util = cloneInt(c.Util)
	clone.MaxUtil = cloneInt(c.MaxUtil)
	clone.RBase = cloneInt(c.RBase)
	clone.ROne = cloneInt(c.ROne)
	clone.RTwo = cloneInt(c.RTwo)
	clone.RThree = cloneInt(c.RThree)
	clone.Reactivity = cloneInt(c.Reactivity)
	clone.SupplyCap = cloneInt(c.SupplyCap)
	return clone
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// Reserve is one asset slot inside a pool (spec.md §3 "Reserve R").
type Reserve struct {
	Asset  crypto.Address
	Index  uint32
	Config ReserveConfig

	BRate          *uint256.Int // scalar12, supply share -> asset
	DRate          *uint256.Int // scalar12, debt share -> asset
	IRMod          *uint256.Int // scalar7, clamped to [0.1, 10]
	BSupply        *uint256.Int // outstanding b-token shares
	DSupply        *uint256.Int // outstanding d-token shares
	LastTime       uint64       // unix seconds of last accrual
	BackstopCredit *uint256.Int // asset units accrued, unclaimed by backstop
}

// NewReserve initializes a freshly registered reserve per spec.md §3:
// "A freshly initialized reserve has b_rate = d_rate = 10^12, ir_mod = 10^7".
func NewReserve(asset crypto.Address, index uint32, cfg ReserveConfig) *Reserve {
	return &Reserve{
		Asset:          asset,
		Index:          index,
		Config:         cfg,
		BRate:          cloneInt(fixedpoint.Scalar12),
		DRate:          cloneInt(fixedpoint.Scalar12),
		IRMod:          cloneInt(fixedpoint.Scalar7),
		BSupply:        new(uint256.Int),
		DSupply:        new(uint256.Int),
		BackstopCredit: new(uint256.Int),
	}
}

// TotalSupply returns b_supply*b_rate/SCALAR_12 + backstop_credit.
func (r *Reserve) TotalSupply() *uint256.Int {
	supplied := fixedpoint.MulFloor(r.BSupply, r.BRate, fixedpoint.Scalar12)
	return new(uint256.Int).Add(supplied, r.BackstopCredit)
}

// TotalLiabilities returns d_supply*d_rate/SCALAR_12.
func (r *Reserve) TotalLiabilities() *uint256.Int {
	return fixedpoint.MulFloor(r.DSupply, r.DRate, fixedpoint.Scalar12)
}

// Utilization returns total_liabilities / total_supply, scaled by SCALAR_7.
// Returns zero when total supply is zero (spec.md §9: the zero-supply case
// is guarded by the caller, not by this helper -- callers needing the
// division-by-zero distinction should check TotalSupply().IsZero() first).
func (r *Reserve) Utilization() *uint256.Int {
	total := r.TotalSupply()
	if total.IsZero() {
		return new(uint256.Int)
	}
	return fixedpoint.MulFloor(r.TotalLiabilities(), fixedpoint.Scalar7, total)
}

// Clone deep-copies a Reserve for per-batch caching (spec.md §4.4: "Reserves
// are committed to storage once at the end; intermediate reads use a
// per-batch cache").
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Config = r.Config.Clone()
	clone.BRate = cloneInt(r.BRate)
	clone.DRate = cloneInt(r.DRate)
	clone.IRMod = cloneInt(r.IRMod)
	clone.BSupply = cloneInt(r.BSupply)
	clone.DSupply = cloneInt(r.DSupply)
	clone.BackstopCredit = cloneInt(r.BackstopCredit)
	return &clone
}

// Positions is a user's per-reserve share ledger (spec.md §3 "Positions
// P(user)"): b-tokens pledged as collateral, b-tokens free to withdraw
// without a health check, and d-tokens owed.
type Positions struct {
	Owner       crypto.Address
	Collateral  map[uint32]*uint256.Int
	Supply      map[uint32]*uint256.Int
	Liabilities map[uint32]*uint256.Int
}

// NewPositions returns an empty position ledger for owner.
func NewPositions(owner crypto.Address) *Positions {
	return &Positions{
		Owner:       owner,
		Collateral:  map[uint32]*uint256.Int{},
		Supply:      map[uint32]*uint256.Int{},
		Liabilities: map[uint32]*uint256.Int{},
	}
}

// Clone deep-copies a Positions ledger.
func (p *Positions) Clone() *Positions {
	if p == nil {
		return nil
	}
	clone := &Positions{
		Owner:       p.Owner,
		Collateral:  make(map[uint32]*uint256.Int, len(p.Collateral)),
		Supply:      make(map[uint32]*uint256.Int, len(p.Supply)),
		Liabilities: make(map[uint32]*uint256.Int, len(p.Liabilities)),
	}
	for k, v := range p.Collateral {
		clone.Collateral[k] = cloneInt(v)
	}
	for k, v := range p.Supply {
		clone.Supply[k] = cloneInt(v)
	}
	for k, v := range p.Liabilities {
		clone.Liabilities[k] = cloneInt(v)
	}
	return clone
}

// EffectiveCount implements spec.md §3's position-count invariant:
// |collateral| + |liabilities| + |supply distinct from collateral|.
func (p *Positions) EffectiveCount() int {
	count := len(p.Collateral) + len(p.Liabilities)
	for idx, shares := range p.Supply {
		if shares.IsZero() {
			continue
		}
		if _, isCollateral := p.Collateral[idx]; !isCollateral {
			count++
		}
	}
	return count
}

func nonZero(m map[uint32]*uint256.Int, idx uint32) *uint256.Int {
	if v, ok := m[idx]; ok {
		return v
	}
	return new(uint256.Int)
}

func setOrDelete(m map[uint32]*uint256.Int, idx uint32, v *uint256.Int) {
	if v == nil || v.IsZero() {
		delete(m, idx)
		return
	}
	m[idx] = v
}

// PoolStatus mirrors the small set of lifecycle states the two-phase
// reserve-config timelock (spec.md §4.8) keys off of.
type PoolStatus uint8

const (
	PoolStatusActive PoolStatus = iota
	PoolStatusFrozen
	PoolStatusOnIce
	PoolStatusAdminFrozen
	_ // reserved
	_ // reserved
	PoolStatusSetup // 6: unlock_time = now instead of now + one week
)

// PoolConfig holds the pool-wide governance parameters of spec.md §4.8.
type PoolConfig struct {
	Oracle          crypto.Address
	BackstopAddress crypto.Address // position-ledger key for inherited bad debt (spec.md §4.6)
	BstopRate       *uint256.Int   // scalar7, < 1
	MaxPositions    uint32
	MinCollateral   *uint256.Int // base-value units
	Status          PoolStatus
}

// QueuedReserveConfig is the pending half of a two-phase config change
// (spec.md §4.8).
type QueuedReserveConfig struct {
	ReserveIndex uint32
	NewConfig    ReserveConfig
	UnlockTime   uint64
}

// Auction is a Dutch auction in progress, keyed by (Kind, Subject). Bid and
// Lot are keyed by reserve index for pool-asset legs; LPToken carries the
// backstop LP token leg that BadDebt (lot) and Interest (bid) auctions use,
// since the LP token is not itself a pool reserve.
type Auction struct {
	Kind    AuctionKind
	Subject crypto.Address
	Bid     map[uint32]*uint256.Int
	Lot     map[uint32]*uint256.Int
	LPToken *uint256.Int
	Block   uint64
}

func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := &Auction{Kind: a.Kind, Subject: a.Subject, Block: a.Block}
	clone.Bid = make(map[uint32]*uint256.Int, len(a.Bid))
	for k, v := range a.Bid {
		clone.Bid[k] = cloneInt(v)
	}
	clone.Lot = make(map[uint32]*uint256.Int, len(a.Lot))
	for k, v := range a.Lot {
		clone.Lot[k] = cloneInt(v)
	}
	if a.LPToken != nil {
		clone.LPToken = cloneInt(a.LPToken)
	}
	return clone
}

// AuctionKey identifies an auction slot.
type AuctionKey struct {
	Kind    AuctionKind
	Subject crypto.Address
}
