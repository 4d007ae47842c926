package pool

import (
	"github.com/holiman/uint256"

	"poolcore/crypto"
)

// Pool is the arena owning one isolated lending pool's live state and its
// external collaborators. It follows the teacher's Engine+engineState shape
// (native/lending/engine.go): a thin struct holding interfaces, with all
// real mutation logic living in free functions and methods on Reserve/
// Positions/Auction that take explicit pointers rather than hiding state
// behind closures.
type Pool struct {
	Address crypto.Address
	Store   PoolStore
	Oracle  OracleClient
	Token   TokenClient
	Backstop BackstopView
	Events  EventSink
}

// NewPool wires a Pool's collaborators. A nil EventSink is replaced with
// NoopEventSink so callers never need a nil check before Emit.
func NewPool(addr crypto.Address, store PoolStore, oracle OracleClient, token TokenClient, backstop BackstopView, events EventSink) *Pool {
	if events == nil {
		events = NoopEventSink
	}
	return &Pool{Address: addr, Store: store, Oracle: oracle, Token: token, Backstop: backstop, Events: events}
}

// loadReserve fetches and accrues a reserve in one step, the "load(asset,
// write_back)" primitive of spec.md §4.1. Accrual always happens on read;
// write_back is the caller's responsibility once the whole batch validates.
func (p *Pool) loadReserve(idx uint32, now uint64, bstopRate *uint256.Int) (*Reserve, error) {
	r, err := p.Store.GetReserve(idx)
	if err != nil {
		return nil, err
	}
	r.Accrue(now, bstopRate)
	return r, nil
}

// loadPositions fetches a user's position ledger, initializing an empty one
// if the user has never interacted with this pool before.
func (p *Pool) loadPositions(owner crypto.Address) (*Positions, error) {
	pos, err := p.Store.GetPositions(owner)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = NewPositions(owner)
	}
	return pos, nil
}
