package pool

import (
	"github.com/holiman/uint256"

	"poolcore/crypto"
)

// OracleClient is the narrow interface spec.md §1 carves out as an external
// collaborator: a price feed the pool consumes but never implements.
type OracleClient interface {
	// GetPrice returns the asset's price and the oracle's decimal scale.
	// Prices are whole numbers scaled by 10^Decimals.
	GetPrice(asset crypto.Address) (price *uint256.Int, decimals uint8, err error)
}

// TokenClient is the narrow interface over the host chain's token standard
// (spec.md §1: out of scope, consumed through an interface). transfer/
// transferFrom/approve are the only primitives the pipeline needs.
type TokenClient interface {
	Transfer(asset, from, to crypto.Address, amount *uint256.Int) error
	TransferFrom(asset, spender, from, to crypto.Address, amount *uint256.Int) error
	Approve(asset crypto.Address, owner, spender crypto.Address, amount *uint256.Int, expiration uint64) error
}

// BackstopView is the slice of the backstop's interface (spec.md §4.6) that
// the pool core depends on. backstop.Backstop satisfies this by duck typing
// so the pool package never imports the backstop package.
type BackstopView interface {
	PoolData(pool crypto.Address) (tokens, tokenSpotPrice, q4wPercent *uint256.Int, err error)
	Draw(pool crypto.Address, amount *uint256.Int, to crypto.Address) error
	Donate(from, pool crypto.Address, amount *uint256.Int) error
	BackstopToken() crypto.Address
	// TransferBadDebt records liabilities handed from a liquidated user to
	// the backstop's own position (spec.md §4.5 BadDebtAuction).
	TransferBadDebt(pool crypto.Address, asset crypto.Address, amount *uint256.Int) error
	// DrawLPToken pays amount of the backstop's LP tokens to `to`. Used
	// exclusively as the BadDebtAuction lot leg: fillers take on the pool's
	// bad debt and are paid in backstop LP tokens rather than the underlying
	// asset, since the backstop itself absorbed the loss.
	DrawLPToken(pool crypto.Address, amount *uint256.Int, to crypto.Address) error
}

// EventSink is the narrow interface over event emission plumbing (spec.md
// §1: out of scope). The daemon wires a slog-backed implementation; tests
// use a no-op.
type EventSink interface {
	Emit(kind string, attrs map[string]string)
}

type noopEventSink struct{}

func (noopEventSink) Emit(string, map[string]string) {}

// NoopEventSink is a shared no-op EventSink for tests and callers that do
// not care about telemetry.
var NoopEventSink EventSink = noopEventSink{}
