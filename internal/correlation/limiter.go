// Package correlation implements position limits that account for
// correlation between markets sharing an index token.
//
// Two markets quoting the same index token (BTC/USD[WBTC-USDC] and
// BTC/USD[BTC]) carry the same price risk, so an owner holding large
// positions in both is exposed as if it were one market. The limiter
// enforces a per-market bound and an aggregate bound per index token.
package correlation

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/position"
)

var (
	// ErrPerMarketLimitExceeded is returned when a trade would push a single
	// market's net position beyond the per-market maximum.
	ErrPerMarketLimitExceeded = errors.New("correlation: per-market position limit exceeded")

	// ErrCorrelatedLimitExceeded is returned when a trade would push the
	// aggregate exposure across markets of one index token beyond the
	// correlated maximum.
	ErrCorrelatedLimitExceeded = errors.New("correlation: correlated exposure limit exceeded")
)

// Exposure is an owner's net USD position in one market, long positive.
type Exposure struct {
	Market     string          `json:"market"`
	IndexToken string          `json:"index_token"`
	Net        decimal.Decimal `json:"net"`
}

// PositionLimiter enforces position limits with correlation awareness.
// Limits are in USD. A zero limit disables the check.
type PositionLimiter struct {
	// MaxPerMarket is the maximum absolute net position in any single market.
	MaxPerMarket decimal.Decimal

	// MaxCorrelated is the maximum aggregate absolute exposure across all
	// markets sharing the index token.
	MaxCorrelated decimal.Decimal
}

// NewPositionLimiter creates a limiter with the given per-market and
// correlated exposure limits.
func NewPositionLimiter(maxPerMarket, maxCorrelated decimal.Decimal) *PositionLimiter {
	return &PositionLimiter{
		MaxPerMarket:  maxPerMarket,
		MaxCorrelated: maxCorrelated,
	}
}

// CheckLimit validates whether a trade respects position limits.
//
// Parameters:
//   - target: market token and index token of the market being traded
//   - delta: signed change in USD exposure (+long / -short)
//   - existing: the owner's current exposures
//
// Returns nil if the trade is within limits, or an error describing the violation.
func (l *PositionLimiter) CheckLimit(target Exposure, delta decimal.Decimal, existing []Exposure) error {
	// 1. Per-market limit.
	current := decimal.Zero
	for _, e := range existing {
		if e.Market == target.Market {
			current = current.Add(e.Net)
		}
	}
	newPosition := current.Add(delta)

	if l.MaxPerMarket.IsPositive() && newPosition.Abs().GreaterThan(l.MaxPerMarket) {
		return ErrPerMarketLimitExceeded
	}

	// 2. Correlated exposure: sum |exposure| across markets sharing the index.
	total := newPosition.Abs()
	for _, e := range existing {
		if e.Market == target.Market {
			continue // already counted via newPosition above
		}
		if e.IndexToken == target.IndexToken {
			total = total.Add(e.Net.Abs())
		}
	}

	if l.MaxCorrelated.IsPositive() && total.GreaterThan(l.MaxCorrelated) {
		return ErrCorrelatedLimitExceeded
	}

	return nil
}

// NetExposures folds positions into one net exposure per market, sorted by
// market token. Positions of unknown markets are skipped.
func NetExposures(positions []*position.Position, markets []*market.Market) []Exposure {
	byToken := make(map[string]*market.Market, len(markets))
	for _, m := range markets {
		byToken[m.Meta.MarketToken] = m
	}
	net := make(map[string]*Exposure)
	for _, p := range positions {
		m, ok := byToken[p.Market]
		if !ok {
			continue
		}
		e, ok := net[p.Market]
		if !ok {
			e = &Exposure{Market: p.Market, IndexToken: m.Meta.IndexToken}
			net[p.Market] = e
		}
		size := p.SizeInUSD.Scaled(m.Decimals)
		if p.IsLong {
			e.Net = e.Net.Add(size)
		} else {
			e.Net = e.Net.Sub(size)
		}
	}
	out := make([]Exposure, 0, len(net))
	for _, e := range net {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out
}
