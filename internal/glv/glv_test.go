package glv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

func u(v uint64) num.Uint { return num.NewUint(v) }

// funded returns a market worth 120e9 with a supply of 60e9 tokens, so
// each token is worth 2.
func funded(t *testing.T) *market.Market {
	t.Helper()
	m := market.NewForTest(clock.NewManual(time.Unix(1_700_000_000, 0)))
	require.NoError(t, m.ApplyDeltaAmount(pool.Primary, true, u(1_000_000_000)))
	require.NoError(t, m.Mint(60_000_000_000))
	return m
}

func TestValueForMarket(t *testing.T) {
	m := funded(t)
	prices := model.NewPricesForTest(120, 120, 1)

	v, err := ValueForMarket(prices, m, u(1_000), true)
	require.NoError(t, err)
	require.Equal(t, "2000", v.Value.String())
	require.Equal(t, "120000000000", v.PoolValue.String())
	require.EqualValues(t, 60_000_000_000, v.Supply)

	zero, err := ValueForMarket(prices, m, num.Zero, true)
	require.NoError(t, err)
	require.True(t, zero.Value.IsZero())
}

func TestValueForMarket_NegativePoolValue(t *testing.T) {
	m := funded(t)
	require.NoError(t, m.ApplyDeltaAmount(pool.PositionImpact, true, u(2_000_000_000)))
	prices := model.NewPricesForTest(120, 120, 1)

	// A zero balance is still worth zero.
	v, err := ValueForMarket(prices, m, num.Zero, false)
	require.NoError(t, err)
	require.True(t, v.PoolValue.IsNegative())

	_, err = ValueForMarket(prices, m, u(1), false)
	require.ErrorIs(t, err, model.ErrInvalidPoolValue)

	_, err = MarketTokenAmountForValue(prices, m, u(1), false, m.UsdToAmountDivisor())
	require.ErrorIs(t, err, model.ErrInvalidPoolValue)
}

func TestMarketTokenAmountForValue(t *testing.T) {
	m := funded(t)
	prices := model.NewPricesForTest(120, 120, 1)

	amount, err := MarketTokenAmountForValue(prices, m, u(2_000), false, m.UsdToAmountDivisor())
	require.NoError(t, err)
	require.Equal(t, "1000", amount.String())

	empty := market.NewForTest(clock.NewManual(time.Unix(1_700_000_000, 0)))
	amount, err = MarketTokenAmountForValue(prices, empty, u(5_000), false, u(1))
	require.NoError(t, err)
	require.Equal(t, "5000", amount.String())
}

func TestGlv_Value(t *testing.T) {
	a := funded(t)
	b := funded(t)
	b.Name = "IDX2/USD[LONG-SHORT]"
	prices := model.NewPricesForTest(120, 120, 1)

	g := New("GLV", "LONG", "SHORT")
	require.NoError(t, g.Add(a, u(1_000)))
	require.NoError(t, g.Add(b, u(500)))
	require.NoError(t, g.Add(a, u(1_000)))

	markets := map[string]*market.Market{a.Name: a, b.Name: b}
	total, err := g.Value(markets, map[string]model.Prices{a.Name: prices, b.Name: prices}, true)
	require.NoError(t, err)
	require.Equal(t, "5000", total.String())

	_, err = g.Value(markets, map[string]model.Prices{a.Name: prices}, true)
	require.ErrorIs(t, err, model.ErrInvalidPrice)

	other := market.NewForTest(clock.NewManual(time.Unix(1_700_000_000, 0)))
	other.Meta.ShortToken = "USDC"
	require.ErrorIs(t, g.Add(other, u(1)), model.ErrInvalidArgument)
}
