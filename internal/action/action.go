// Package action implements the state transitions of the engine: deposit,
// withdrawal, shift, swap, position increase and decrease, liquidation and
// auto-deleveraging.
//
// Every action runs against staged clones of the markets (and positions
// and virtual inventories) it touches. The clones are committed back only
// when every step and every post-mutation check succeeds, so a failed
// action leaves the caller's state exactly as it was.
package action

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

// stage holds the clones of one action. Markets are cloned once each, in
// the order they are first named.
type stage struct {
	order    []*market.Market
	staged   map[*market.Market]*market.Market
	vis      market.VirtualInventories
	original market.VirtualInventories
}

func newStage(vis market.VirtualInventories, markets ...*market.Market) (*stage, error) {
	s := &stage{
		staged:   make(map[*market.Market]*market.Market, len(markets)),
		vis:      vis.Clone(),
		original: vis,
	}
	for _, m := range markets {
		if m == nil {
			return nil, fmt.Errorf("%w: nil market", model.ErrInvalidArgument)
		}
		if err := m.CheckEnabled(); err != nil {
			return nil, err
		}
		if _, ok := s.staged[m]; ok {
			continue
		}
		s.order = append(s.order, m)
		s.staged[m] = m.Clone()
	}
	return s, nil
}

// market returns the staged clone of m.
func (s *stage) market(m *market.Market) *market.Market { return s.staged[m] }

// run executes fn with virtual inventories attached to every staged market
// and commits the clones when fn succeeds.
func (s *stage) run(fn func() error) error {
	if err := s.attach(0, fn); err != nil {
		return err
	}
	for _, m := range s.order {
		m.CommitFrom(s.staged[m])
	}
	if s.original != nil {
		s.vis.CommitTo(s.original)
	}
	return nil
}

func (s *stage) attach(i int, fn func() error) error {
	if i == len(s.order) {
		return fn()
	}
	return s.staged[s.order[i]].WithVirtualInventories(s.vis, func() error {
		return s.attach(i+1, fn)
	})
}

// usdToMarketTokenAmount converts a value into liquidity tokens at the
// current pool value per token.
func usdToMarketTokenAmount(m *market.Market, value, poolValue num.Uint) (uint64, error) {
	var amount num.Uint
	var err error
	switch {
	case m.Supply == 0 && poolValue.IsZero():
		amount, err = value.Div(m.UsdToAmountDivisor())
	case m.Supply == 0:
		var total num.Uint
		if total, err = poolValue.Add(value); err == nil {
			amount, err = total.Div(m.UsdToAmountDivisor())
		}
	default:
		if poolValue.IsZero() {
			return 0, fmt.Errorf("%w: zero pool value with supply %d", model.ErrInvalidPoolValue, m.Supply)
		}
		amount, err = value.MulDiv(num.NewUint(m.Supply), poolValue)
	}
	if err != nil {
		return 0, err
	}
	return amount.Uint64()
}

// marketTokenAmountToUSD returns the value of amount liquidity tokens.
func marketTokenAmountToUSD(m *market.Market, amount uint64, poolValue num.Uint) (num.Uint, error) {
	if m.Supply == 0 {
		return num.Zero, fmt.Errorf("%w: %s has no supply", model.ErrInvalidPoolValue, m.Name)
	}
	return num.NewUint(amount).MulDiv(poolValue, num.NewUint(m.Supply))
}

// applySwapImpact settles a swap price impact in tokens of one side. A
// positive impact is paid out of the swap impact pool, capped by what the
// pool holds; a negative impact is collected into it, rounded up. The
// returned amount is signed like the impact.
func applySwapImpact(m *market.Market, prices model.Prices, isLong bool, impact num.Int) (num.Int, error) {
	price := prices.CollateralTokenPrice(isLong)
	if impact.IsZero() {
		return num.Int{}, nil
	}
	if impact.IsPositive() {
		amount, err := impact.Abs().Div(price.Max)
		if err != nil {
			return num.Int{}, err
		}
		amount = num.Min(amount, m.Pools.SwapImpact.Amount(isLong))
		if err := m.SubtractAmount(pool.SwapImpact, isLong, amount); err != nil {
			return num.Int{}, err
		}
		return num.ToSigned(amount)
	}
	amount, err := impact.Abs().DivCeil(price.Min)
	if err != nil {
		return num.Int{}, err
	}
	if err := m.ApplyDeltaAmount(pool.SwapImpact, isLong, amount); err != nil {
		return num.Int{}, err
	}
	return num.NegativeOf(amount)
}

// valueAtMid returns amount * mid price.
func valueAtMid(amount num.Uint, price model.Price) (num.Uint, error) {
	mid, err := price.Mid()
	if err != nil {
		return num.Zero, err
	}
	return amount.Mul(mid)
}

// addLiquidity adds amount to one side of the primary pool.
func addLiquidity(m *market.Market, isLong bool, amount num.Uint) error {
	d, err := num.ToSigned(amount)
	if err != nil {
		return err
	}
	return m.ApplyLiquidityDelta(isLong, d)
}

// removeLiquidity takes amount out of one side of the primary pool.
func removeLiquidity(m *market.Market, isLong bool, amount num.Uint) error {
	d, err := num.NegativeOf(amount)
	if err != nil {
		return err
	}
	return m.ApplyLiquidityDelta(isLong, d)
}
