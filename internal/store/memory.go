package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	markets   map[string]model.MarketSnapshot
	positions map[string]model.PositionSnapshot
	ledger    []model.ActionRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[string]model.MarketSnapshot),
		positions: make(map[string]model.PositionSnapshot),
	}
}

func (s *MemoryStore) SaveMarket(_ context.Context, snap *model.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, existing := range s.markets {
		if existing.Name == snap.Name && token != snap.MarketToken {
			return fmt.Errorf("market %s already exists with token %s", snap.Name, token)
		}
	}
	s.markets[snap.MarketToken] = *snap
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, marketToken string) (*model.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[marketToken]
	if !ok {
		return nil, fmt.Errorf("%w: market %s", ErrNotFound, marketToken)
	}
	return &m, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.MarketSnapshot, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Name < markets[j].Name })
	return markets, nil
}

func (s *MemoryStore) SavePosition(_ context.Context, snap *model.PositionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[snap.Key()] = *snap
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.positions, key)
	return nil
}

func (s *MemoryStore) GetPositionsByOwner(_ context.Context, owner string) ([]model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PositionSnapshot
	for _, p := range s.positions {
		if p.Owner == owner {
			result = append(result, p)
		}
	}
	sortPositions(result)
	return result, nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.PositionSnapshot, 0, len(s.positions))
	for _, p := range s.positions {
		result = append(result, p)
	}
	sortPositions(result)
	return result, nil
}

func (s *MemoryStore) InsertActionRecord(_ context.Context, rec *model.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *rec)
	return nil
}

func (s *MemoryStore) GetActionRecordsByMarket(_ context.Context, market string) ([]model.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ActionRecord
	for _, r := range s.ledger {
		if r.Market == market {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetActionRecordsByOwner(_ context.Context, owner string) ([]model.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ActionRecord
	for _, r := range s.ledger {
		if r.Owner == owner {
			result = append(result, r)
		}
	}
	return result, nil
}

func sortPositions(ps []model.PositionSnapshot) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Key() < ps[j].Key() })
}
