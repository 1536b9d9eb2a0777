// Package glv values baskets of liquidity tokens held across markets that
// share the same long and short tokens.
package glv

import (
	"fmt"
	"sort"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// MarketValue is the value of a liquidity token balance of one market.
type MarketValue struct {
	Value     num.Uint `json:"value"`
	PoolValue num.Int  `json:"pool_value"`
	Supply    uint64   `json:"supply"`
}

// ValueForMarket values balance liquidity tokens of m using the pool value
// bounded by the after-deposit pnl factor. A zero balance is worth zero
// whatever the pool value; otherwise a negative pool value is rejected.
func ValueForMarket(prices model.Prices, m *market.Market, balance num.Uint, maximize bool) (MarketValue, error) {
	poolValue, err := m.PoolValue(prices, market.MaxAfterDeposit, maximize)
	if err != nil {
		return MarketValue{}, err
	}
	out := MarketValue{PoolValue: poolValue, Supply: m.Supply}
	if balance.IsZero() {
		return out, nil
	}
	if poolValue.IsNegative() {
		return MarketValue{}, fmt.Errorf("%w: negative pool value %s for %s", model.ErrInvalidPoolValue, poolValue, m.Name)
	}
	if m.Supply == 0 {
		return MarketValue{}, fmt.Errorf("%w: %s has no supply", model.ErrInvalidPoolValue, m.Name)
	}
	if out.Value, err = balance.MulDiv(poolValue.Abs(), num.NewUint(m.Supply)); err != nil {
		return MarketValue{}, err
	}
	return out, nil
}

// MarketTokenAmountForValue converts a basket value into liquidity tokens
// of m using the pool value bounded by the after-withdrawal pnl factor.
// divisor applies when the market has no supply yet.
func MarketTokenAmountForValue(prices model.Prices, m *market.Market, value num.Uint, maximize bool, divisor num.Uint) (num.Uint, error) {
	poolValue, err := m.PoolValue(prices, market.MaxAfterWithdrawal, maximize)
	if err != nil {
		return num.Zero, err
	}
	if poolValue.IsNegative() {
		return num.Zero, fmt.Errorf("%w: negative pool value %s for %s", model.ErrInvalidPoolValue, poolValue, m.Name)
	}
	pv := poolValue.Abs()
	switch {
	case m.Supply == 0 && pv.IsZero():
		return value.Div(divisor)
	case m.Supply == 0:
		total, err := pv.Add(value)
		if err != nil {
			return num.Zero, err
		}
		return total.Div(divisor)
	case pv.IsZero():
		return num.Zero, fmt.Errorf("%w: zero pool value with supply %d", model.ErrInvalidPoolValue, m.Supply)
	default:
		return value.MulDiv(num.NewUint(m.Supply), pv)
	}
}

// Glv is a basket of liquidity tokens. Every market in the basket must
// hold the same long and short tokens.
type Glv struct {
	Name       string              `json:"name"`
	LongToken  string              `json:"long_token"`
	ShortToken string              `json:"short_token"`
	Supply     num.Uint            `json:"supply"`
	Balances   map[string]num.Uint `json:"balances"` // keyed by market name
}

// New returns an empty basket for a token pair.
func New(name, longToken, shortToken string) *Glv {
	return &Glv{Name: name, LongToken: longToken, ShortToken: shortToken, Balances: make(map[string]num.Uint)}
}

// Accepts reports whether m can be part of the basket.
func (g *Glv) Accepts(m *market.Market) bool {
	return m.Meta.LongToken == g.LongToken && m.Meta.ShortToken == g.ShortToken
}

// Add credits amount liquidity tokens of m.
func (g *Glv) Add(m *market.Market, amount num.Uint) error {
	if !g.Accepts(m) {
		return fmt.Errorf("%w: market %s does not hold %s/%s", model.ErrInvalidArgument, m.Name, g.LongToken, g.ShortToken)
	}
	next, err := g.Balances[m.Name].Add(amount)
	if err != nil {
		return err
	}
	g.Balances[m.Name] = next
	return nil
}

// Value sums the value of every balance. markets and prices must cover
// every market with a balance.
func (g *Glv) Value(markets map[string]*market.Market, prices map[string]model.Prices, maximize bool) (num.Uint, error) {
	names := make([]string, 0, len(g.Balances))
	for name := range g.Balances {
		names = append(names, name)
	}
	sort.Strings(names)

	total := num.Zero
	for _, name := range names {
		m, ok := markets[name]
		if !ok {
			return num.Zero, fmt.Errorf("%w: unknown market %s in %s", model.ErrInvalidArgument, name, g.Name)
		}
		p, ok := prices[name]
		if !ok {
			return num.Zero, fmt.Errorf("%w: no prices for %s", model.ErrInvalidPrice, name)
		}
		v, err := ValueForMarket(p, m, g.Balances[name], maximize)
		if err != nil {
			return num.Zero, err
		}
		if total, err = total.Add(v.Value); err != nil {
			return num.Zero, err
		}
	}
	return total, nil
}
