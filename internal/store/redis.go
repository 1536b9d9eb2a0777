package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh or invalidate cache) ---

func (s *CachedStore) SaveMarket(ctx context.Context, m *model.MarketSnapshot) error {
	if err := s.primary.SaveMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) SavePosition(ctx context.Context, p *model.PositionSnapshot) error {
	if err := s.primary.SavePosition(ctx, p); err != nil {
		return err
	}
	// Invalidate position cache for this owner.
	s.rdb.Del(ctx, positionsKey(p.Owner))
	return nil
}

func (s *CachedStore) DeletePosition(ctx context.Context, key string) error {
	if err := s.primary.DeletePosition(ctx, key); err != nil {
		return err
	}
	if owner, ok := ownerOf(key); ok {
		s.rdb.Del(ctx, positionsKey(owner))
	}
	return nil
}

func (s *CachedStore) InsertActionRecord(ctx context.Context, rec *model.ActionRecord) error {
	return s.primary.InsertActionRecord(ctx, rec)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, marketToken string) (*model.MarketSnapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(marketToken)).Bytes()
	if err == nil {
		var m model.MarketSnapshot
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, marketToken)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetPositionsByOwner(ctx context.Context, owner string) ([]model.PositionSnapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, positionsKey(owner)).Bytes()
	if err == nil {
		var positions []model.PositionSnapshot
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	// Cache miss.
	positions, err := s.primary.GetPositionsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(owner), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.MarketSnapshot, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) ListPositions(ctx context.Context) ([]model.PositionSnapshot, error) {
	return s.primary.ListPositions(ctx)
}

func (s *CachedStore) GetActionRecordsByMarket(ctx context.Context, market string) ([]model.ActionRecord, error) {
	return s.primary.GetActionRecordsByMarket(ctx, market)
}

func (s *CachedStore) GetActionRecordsByOwner(ctx context.Context, owner string) ([]model.ActionRecord, error) {
	return s.primary.GetActionRecordsByOwner(ctx, owner)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.MarketSnapshot) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.MarketToken), data, s.ttl)
	}
}

// ownerOf extracts the owner from a position key.
func ownerOf(key string) (string, bool) {
	owner, _, ok := strings.Cut(key, "/")
	return owner, ok
}

func marketKey(token string) string { return fmt.Sprintf("market:%s", token) }
func positionsKey(owner string) string { return fmt.Sprintf("positions:%s", owner) }
