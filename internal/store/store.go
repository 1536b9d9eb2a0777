// Package store defines the persistence interface for the engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/position"
)

// ErrNotFound is returned when a market or record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Market snapshots ---

	// SaveMarket inserts or replaces the snapshot of a market, keyed by
	// market token.
	SaveMarket(ctx context.Context, snap *model.MarketSnapshot) error

	// GetMarket retrieves a snapshot by market token.
	GetMarket(ctx context.Context, marketToken string) (*model.MarketSnapshot, error)

	// ListMarkets returns all snapshots ordered by name.
	ListMarkets(ctx context.Context) ([]model.MarketSnapshot, error)

	// --- Position snapshots ---

	// SavePosition inserts or replaces a position snapshot.
	SavePosition(ctx context.Context, snap *model.PositionSnapshot) error

	// DeletePosition removes a closed position. Missing keys are ignored.
	DeletePosition(ctx context.Context, key string) error

	// GetPositionsByOwner returns an owner's open positions.
	GetPositionsByOwner(ctx context.Context, owner string) ([]model.PositionSnapshot, error)

	// ListPositions returns every open position.
	ListPositions(ctx context.Context) ([]model.PositionSnapshot, error)

	// --- Immutable ledger ---

	// InsertActionRecord appends an immutable action record.
	InsertActionRecord(ctx context.Context, rec *model.ActionRecord) error

	// GetActionRecordsByMarket returns all records for a market name.
	GetActionRecordsByMarket(ctx context.Context, market string) ([]model.ActionRecord, error)

	// GetActionRecordsByOwner returns all records for an owner.
	GetActionRecordsByOwner(ctx context.Context, owner string) ([]model.ActionRecord, error)
}

// MarketSnapshot encodes m for persistence.
func MarketSnapshot(m *market.Market, at time.Time) (*model.MarketSnapshot, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return &model.MarketSnapshot{
		Name:        m.Name,
		MarketToken: m.Meta.MarketToken,
		IndexToken:  m.Meta.IndexToken,
		LongToken:   m.Meta.LongToken,
		ShortToken:  m.Meta.ShortToken,
		Data:        data,
		UpdatedAt:   at,
	}, nil
}

// RestoreMarket decodes a snapshot back into a market.
func RestoreMarket(snap *model.MarketSnapshot) (*market.Market, error) {
	var m market.Market
	if err := json.Unmarshal(snap.Data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PositionSnapshot encodes p for persistence.
func PositionSnapshot(p *position.Position, at time.Time) (*model.PositionSnapshot, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &model.PositionSnapshot{
		Owner:           p.Owner,
		Market:          p.Market,
		CollateralToken: p.CollateralToken,
		IsLong:          p.IsLong,
		Data:            data,
		UpdatedAt:       at,
	}, nil
}

// RestorePosition decodes a snapshot back into a position.
func RestorePosition(snap *model.PositionSnapshot) (*position.Position, error) {
	var p position.Position
	if err := json.Unmarshal(snap.Data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
