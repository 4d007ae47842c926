package pool

import "poolcore/crypto"

// PoolStore is the persistence boundary for one pool's state, grounded on
// the teacher's narrow engineState interface (native/lending/engine.go)
// rather than the host chain's whole-trie state manager. A pool never reads
// another pool's storage, so implementations are free to namespace however
// they like.
type PoolStore interface {
	GetPoolConfig() (PoolConfig, error)
	PutPoolConfig(PoolConfig) error

	// GetReserve returns ErrNoSuchReserve if idx was never registered.
	GetReserve(idx uint32) (*Reserve, error)
	PutReserve(r *Reserve) error
	ListReserves() ([]*Reserve, error)
	// GetReserveIndexByAsset resolves a reserve's asset address to its
	// index, returning ok=false if the asset has no reserve in this pool.
	GetReserveIndexByAsset(asset crypto.Address) (idx uint32, ok bool, err error)

	// GetPositions returns (nil, nil) for a user with no open positions;
	// absence is the normal state for most addresses, not an error.
	GetPositions(owner crypto.Address) (*Positions, error)
	PutPositions(p *Positions) error

	// GetQueuedReserveConfig returns (nil, nil) when no change is queued.
	GetQueuedReserveConfig(idx uint32) (*QueuedReserveConfig, error)
	PutQueuedReserveConfig(q *QueuedReserveConfig) error
	DeleteQueuedReserveConfig(idx uint32) error

	// GetAuction returns (nil, nil) when no auction is open for key.
	GetAuction(key AuctionKey) (*Auction, error)
	PutAuction(a *Auction) error
	DeleteAuction(key AuctionKey) error
	ListAuctionsByKind(kind AuctionKind) ([]*Auction, error)
}
