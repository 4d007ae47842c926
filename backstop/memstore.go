package backstop

import (
	"sync"

	"poolcore/crypto"
)

// MemStore is an in-memory Store, the backstop analogue of pool.MemStore.
type MemStore struct {
	mu        sync.Mutex
	pools     map[crypto.Address]*PoolBalance
	users     map[crypto.Address]map[crypto.Address]*UserBalance
	rewardZone []crypto.Address
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		pools: map[crypto.Address]*PoolBalance{},
		users: map[crypto.Address]map[crypto.Address]*UserBalance{},
	}
}

func (s *MemStore) GetPoolBalance(pool crypto.Address) (*PoolBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.pools[pool]
	if !ok {
		return NewPoolBalance(pool), nil
	}
	return b.Clone(), nil
}

func (s *MemStore) PutPoolBalance(b *PoolBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[b.Pool] = b.Clone()
	return nil
}

func (s *MemStore) GetUserBalance(pool, owner crypto.Address) (*UserBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byOwner, ok := s.users[pool]
	if !ok {
		return nil, nil
	}
	u, ok := byOwner[owner]
	if !ok {
		return nil, nil
	}
	return u.Clone(), nil
}

func (s *MemStore) PutUserBalance(u *UserBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Pool]; !ok {
		s.users[u.Pool] = map[crypto.Address]*UserBalance{}
	}
	s.users[u.Pool][u.Owner] = u.Clone()
	return nil
}

func (s *MemStore) ListRewardZone() ([]crypto.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crypto.Address, len(s.rewardZone))
	copy(out, s.rewardZone)
	return out, nil
}

func (s *MemStore) PutRewardZone(pools []crypto.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewardZone = append([]crypto.Address{}, pools...)
	return nil
}
