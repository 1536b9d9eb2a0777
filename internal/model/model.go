// Package model defines the vocabulary shared across the engine and the
// service around it: error kinds, price snapshots and the records the store
// persists. All amounts are fixed-point num values, never float64.
package model

import (
	"encoding/json"
	"time"
)

// ActionKind names an executed engine action.
type ActionKind string

const (
	ActionDeposit          ActionKind = "deposit"
	ActionWithdrawal       ActionKind = "withdrawal"
	ActionShift            ActionKind = "shift"
	ActionSwap             ActionKind = "swap"
	ActionIncreasePosition ActionKind = "increase_position"
	ActionDecreasePosition ActionKind = "decrease_position"
	ActionLiquidate        ActionKind = "liquidate"
	ActionAutoDeleverage   ActionKind = "auto_deleverage"
)

// ActionRecord is an immutable ledger entry for one action request.
// Once created, records are never modified or deleted.
type ActionRecord struct {
	ID        string          `json:"id" db:"id"`
	Kind      ActionKind      `json:"kind" db:"kind"`
	Market    string          `json:"market" db:"market"`
	Owner     string          `json:"owner,omitempty" db:"owner"`
	Executed  bool            `json:"executed" db:"executed"`
	Reason    string          `json:"reason,omitempty" db:"reason"` // why the action was not executed
	Report    json.RawMessage `json:"report,omitempty" db:"report"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// MarketSnapshot is the persisted state of one market. Data holds the
// JSON-encoded market aggregate.
type MarketSnapshot struct {
	Name        string          `json:"name" db:"name"`
	MarketToken string          `json:"market_token" db:"market_token"`
	IndexToken  string          `json:"index_token" db:"index_token"`
	LongToken   string          `json:"long_token" db:"long_token"`
	ShortToken  string          `json:"short_token" db:"short_token"`
	Data        json.RawMessage `json:"data" db:"data"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// PositionSnapshot is the persisted state of one position.
type PositionSnapshot struct {
	Owner           string          `json:"owner" db:"owner"`
	Market          string          `json:"market" db:"market"`
	CollateralToken string          `json:"collateral_token" db:"collateral_token"`
	IsLong          bool            `json:"is_long" db:"is_long"`
	Data            json.RawMessage `json:"data" db:"data"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Key identifies a position: one per owner, market, collateral and side.
func (p PositionSnapshot) Key() string {
	return PositionKey(p.Owner, p.Market, p.CollateralToken, p.IsLong)
}

// PositionKey builds the position identity string.
func PositionKey(owner, market, collateral string, isLong bool) string {
	side := "short"
	if isLong {
		side = "long"
	}
	return owner + "/" + market + "/" + collateral + "/" + side
}
