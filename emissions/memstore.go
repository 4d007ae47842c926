package emissions

import (
	"sync"

	"poolcore/crypto"
)

// MemStore is an in-memory Store, the emissions analogue of pool.MemStore.
type MemStore struct {
	mu         sync.Mutex
	emitter    *EmitterState
	rewardZone []crypto.Address
	poolData   map[crypto.Address]*PoolEmissionData
	backstop   map[crypto.Address]*BackstopEmissionData
}

// NewMemStore returns a never-distributed, empty-reward-zone MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		emitter:  NewEmitterState(),
		poolData: map[crypto.Address]*PoolEmissionData{},
		backstop: map[crypto.Address]*BackstopEmissionData{},
	}
}

func (s *MemStore) GetEmitterState() (*EmitterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitter.Clone(), nil
}

func (s *MemStore) PutEmitterState(state *EmitterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitter = state.Clone()
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

func (s *MemStore) GetPoolEmissionData(pool crypto.Address) (*PoolEmissionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.poolData[pool]
	if !ok {
		return NewPoolEmissionData(pool), nil
	}
	return d.Clone(), nil
}

func (s *MemStore) PutPoolEmissionData(d *PoolEmissionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolData[d.Pool] = d.Clone()
	return nil
}

func (s *MemStore) GetBackstopEmissionData(pool crypto.Address) (*BackstopEmissionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.backstop[pool]
	if !ok {
		return NewBackstopEmissionData(pool), nil
	}
	return d.Clone(), nil
}

func (s *MemStore) PutBackstopEmissionData(d *BackstopEmissionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backstop[d.Pool] = d.Clone()
	return nil
}
