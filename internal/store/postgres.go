package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
)

// Schema is the DDL applied by Migrate. Snapshots are stored as JSONB so
// fixed-point values keep their exact decimal strings.
const Schema = `
CREATE TABLE IF NOT EXISTS markets (
	market_token TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	index_token  TEXT NOT NULL,
	long_token   TEXT NOT NULL,
	short_token  TEXT NOT NULL,
	data         JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	key              TEXT PRIMARY KEY,
	owner            TEXT NOT NULL,
	market           TEXT NOT NULL,
	collateral_token TEXT NOT NULL,
	is_long          BOOLEAN NOT NULL,
	data             JSONB NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS positions_owner_idx ON positions (owner);

CREATE TABLE IF NOT EXISTS action_records (
	id        UUID PRIMARY KEY,
	kind      TEXT NOT NULL,
	market    TEXT NOT NULL,
	owner     TEXT NOT NULL DEFAULT '',
	executed  BOOLEAN NOT NULL,
	reason    TEXT NOT NULL DEFAULT '',
	report    JSONB,
	timestamp TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS action_records_market_idx ON action_records (market, timestamp);
CREATE INDEX IF NOT EXISTS action_records_owner_idx ON action_records (owner, timestamp);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) SaveMarket(ctx context.Context, m *model.MarketSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (market_token, name, index_token, long_token, short_token, data, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::JSONB, $7)
		 ON CONFLICT (market_token) DO UPDATE
		 SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		m.MarketToken, m.Name, m.IndexToken, m.LongToken, m.ShortToken,
		string(m.Data), m.UpdatedAt,
	)
	return err
}

const marketColumns = `market_token, name, index_token, long_token, short_token, data::TEXT, updated_at`

func (s *PostgresStore) GetMarket(ctx context.Context, marketToken string) (*model.MarketSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE market_token = $1`, marketToken)
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: market %s", ErrNotFound, marketToken)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", marketToken, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.MarketSnapshot
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) SavePosition(ctx context.Context, p *model.PositionSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (key, owner, market, collateral_token, is_long, data, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::JSONB, $7)
		 ON CONFLICT (key) DO UPDATE
		 SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		p.Key(), p.Owner, p.Market, p.CollateralToken, p.IsLong,
		string(p.Data), p.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) DeletePosition(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE key = $1`, key)
	return err
}

const positionColumns = `owner, market, collateral_token, is_long, data::TEXT, updated_at`

func (s *PostgresStore) GetPositionsByOwner(ctx context.Context, owner string) ([]model.PositionSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE owner = $1 ORDER BY key`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.PositionSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) InsertActionRecord(ctx context.Context, r *model.ActionRecord) error {
	var report any
	if len(r.Report) > 0 {
		report = string(r.Report)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO action_records (id, kind, market, owner, executed, reason, report, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::JSONB, $8)`,
		r.ID, string(r.Kind), r.Market, r.Owner, r.Executed, r.Reason, report, r.Timestamp,
	)
	return err
}

const recordColumns = `id::TEXT, kind, market, owner, executed, reason, COALESCE(report::TEXT, ''), timestamp`

func (s *PostgresStore) GetActionRecordsByMarket(ctx context.Context, market string) ([]model.ActionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM action_records WHERE market = $1 ORDER BY timestamp`, market)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActionRecords(rows)
}

func (s *PostgresStore) GetActionRecordsByOwner(ctx context.Context, owner string) ([]model.ActionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM action_records WHERE owner = $1 ORDER BY timestamp`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActionRecords(rows)
}

// pgxRows is the subset of pgx.Rows the scanners read.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanMarket(row pgx.Row) (*model.MarketSnapshot, error) {
	var m model.MarketSnapshot
	var data string
	if err := row.Scan(&m.MarketToken, &m.Name, &m.IndexToken, &m.LongToken, &m.ShortToken,
		&data, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Data = []byte(data)
	return &m, nil
}

func scanPositions(rows pgxRows) ([]model.PositionSnapshot, error) {
	var positions []model.PositionSnapshot
	for rows.Next() {
		var p model.PositionSnapshot
		var data string
		if err := rows.Scan(&p.Owner, &p.Market, &p.CollateralToken, &p.IsLong,
			&data, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Data = []byte(data)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func scanActionRecords(rows pgxRows) ([]model.ActionRecord, error) {
	var records []model.ActionRecord
	for rows.Next() {
		var r model.ActionRecord
		var kind, report string
		if err := rows.Scan(&r.ID, &kind, &r.Market, &r.Owner, &r.Executed, &r.Reason,
			&report, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Kind = model.ActionKind(kind)
		if report != "" {
			r.Report = []byte(report)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
