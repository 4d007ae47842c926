package pool

import (
	"sync"

	"poolcore/crypto"
)

// MemStore is an in-memory PoolStore, the direct descendant of the
// teacher's mockEngineState test fixture (native/lending/engine_accrual_test.go)
// promoted to a real, concurrency-safe backend. Used by tests and by
// single-process deployments that do not need durability.
type MemStore struct {
	mu sync.Mutex

	config  PoolConfig
	reserve map[uint32]*Reserve
	queued  map[uint32]*QueuedReserveConfig
	pos     map[crypto.Address]*Positions
	auction map[AuctionKey]*Auction
}

// NewMemStore returns an empty MemStore seeded with cfg.
func NewMemStore(cfg PoolConfig) *MemStore {
	return &MemStore{
		config:  cfg,
		reserve: map[uint32]*Reserve{},
		queued:  map[uint32]*QueuedReserveConfig{},
		pos:     map[crypto.Address]*Positions{},
		auction: map[AuctionKey]*Auction{},
	}
}

func (s *MemStore) GetPoolConfig() (PoolConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, nil
}

func (s *MemStore) PutPoolConfig(cfg PoolConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	return nil
}

func (s *MemStore) GetReserve(idx uint32) (*Reserve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reserve[idx]
	if !ok {
		return nil, coded(CodeInvalidReserveMeta, ErrNoSuchReserve)
	}
	return r.Clone(), nil
}

func (s *MemStore) PutReserve(r *Reserve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserve[r.Index] = r.Clone()
	return nil
}

func (s *MemStore) ListReserves() ([]*Reserve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Reserve, 0, len(s.reserve))
	for _, r := range s.reserve {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *MemStore) GetReserveIndexByAsset(asset crypto.Address) (uint32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx, r := range s.reserve {
		if r.Asset == asset {
			return idx, true, nil
		}
	}
	return 0, false, nil
}

func (s *MemStore) GetPositions(owner crypto.Address) (*Positions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pos[owner]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (s *MemStore) PutPositions(p *Positions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos[p.Owner] = p.Clone()
	return nil
}

func (s *MemStore) GetQueuedReserveConfig(idx uint32) (*QueuedReserveConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queued[idx]
	if !ok {
		return nil, nil
	}
	clone := *q
	clone.NewConfig = q.NewConfig.Clone()
	return &clone, nil
}

func (s *MemStore) PutQueuedReserveConfig(q *QueuedReserveConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *q
	clone.NewConfig = q.NewConfig.Clone()
	s.queued[q.ReserveIndex] = &clone
	return nil
}

func (s *MemStore) DeleteQueuedReserveConfig(idx uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queued, idx)
	return nil
}

func (s *MemStore) GetAuction(key AuctionKey) (*Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auction[key]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (s *MemStore) PutAuction(a *Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auction[AuctionKey{Kind: a.Kind, Subject: a.Subject}] = a.Clone()
	return nil
}

func (s *MemStore) DeleteAuction(key AuctionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.auction, key)
	return nil
}

func (s *MemStore) ListAuctionsByKind(kind AuctionKind) ([]*Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Auction
	for k, a := range s.auction {
		if k.Kind == kind {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}
