package action

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

var t0 = time.Unix(1_700_000_000, 0)

func u(v uint64) num.Uint { return num.NewUint(v) }

func newMarket(t *testing.T) *market.Market {
	t.Helper()
	return market.NewForTest(clock.NewManual(t0))
}

func newMarketWith(t *testing.T, name string, meta market.Meta) *market.Market {
	t.Helper()
	m, err := market.New(name, meta, 9, market.DefaultConfig(9), t0)
	require.NoError(t, err)
	m.SetClockSource(clock.NewManual(t0))
	return m
}

func mustDeposit(t *testing.T, m *market.Market, long, short uint64, prices model.Prices) *DepositReport {
	t.Helper()
	d, err := NewDeposit(m, DepositParams{LongTokenAmount: u(long), ShortTokenAmount: u(short), Prices: prices})
	require.NoError(t, err)
	r, err := d.Execute()
	require.NoError(t, err)
	return r
}

// requireConserved checks that every token the market holds is accounted
// for by a pool.
func requireConserved(t *testing.T, m *market.Market) {
	t.Helper()
	p := m.Pools
	for _, isLong := range []bool{true, false} {
		sum := num.Zero
		for _, v := range []num.Uint{
			p.Primary.Amount(isLong),
			p.SwapImpact.Amount(isLong),
			p.ClaimableFee.Amount(isLong),
			p.CollateralSumForLong.Amount(isLong),
			p.CollateralSumForShort.Amount(isLong),
		} {
			var err error
			sum, err = sum.Add(v)
			require.NoError(t, err)
		}
		balance := m.Balances.Short
		if isLong {
			balance = m.Balances.Long
		}
		require.Equal(t, balance.String(), sum.String(), "is_long=%v", isLong)
	}
}

func TestDepositWithdraw_Scenario(t *testing.T) {
	m := newMarket(t)
	prices := model.NewPricesForTest(120, 120, 1)

	first := mustDeposit(t, m, 1_000_000_000, 0, prices)
	require.True(t, first.PriceImpact.IsNegative())
	fee, err := first.LongTokenFees.Total()
	require.NoError(t, err)
	require.Equal(t, "700000", fee.String())
	require.Equal(t, "259000", first.LongTokenFees.FeeAmountForReceiver.String())
	require.Equal(t, "-24000", first.LongTokenImpactAmount.String())
	require.EqualValues(t, 119_913_120_000, first.MintAmount)
	require.Equal(t, "999717000", m.Pools.Primary.LongAmount().String())
	require.Equal(t, "24000", m.Pools.SwapImpact.LongAmount().String())
	requireConserved(t, m)

	second := mustDeposit(t, m, 1_000_000_000, 0, prices)
	require.Less(t, second.MintAmount, first.MintAmount)
	require.True(t, second.PriceImpact.IsNegative())

	third := mustDeposit(t, m, 0, 1_000_000_000, prices)
	require.True(t, third.PriceImpact.IsPositive())
	// Nothing in the short impact pool to pay a rebate from.
	require.True(t, third.ShortTokenImpactAmount.IsZero())
	require.Equal(t, first.MintAmount+second.MintAmount+third.MintAmount, m.Supply)
	requireConserved(t, m)

	w, err := NewWithdrawal(m, WithdrawalParams{MarketTokenAmount: 1_000_000_000, Prices: prices})
	require.NoError(t, err)
	wr, err := w.Execute()
	require.NoError(t, err)
	require.False(t, wr.LongTokenOutput.IsZero())
	require.False(t, wr.ShortTokenOutput.IsZero())
	require.Equal(t, first.MintAmount+second.MintAmount+third.MintAmount-1_000_000_000, m.Supply)
	requireConserved(t, m)
}

func TestDeposit_Rejects(t *testing.T) {
	m := newMarket(t)
	prices := model.NewPricesForTest(120, 120, 1)

	_, err := NewDeposit(m, DepositParams{Prices: prices})
	require.ErrorIs(t, err, model.ErrEmptyAction)

	_, err = NewDeposit(m, DepositParams{LongTokenAmount: u(1), Prices: model.NewPricesForTest(0, 120, 1)})
	require.ErrorIs(t, err, model.ErrInvalidPrice)

	mustDeposit(t, m, 1_000_000_000, 1_000_000_000, prices)
	before := *m

	d, err := NewDeposit(m, DepositParams{LongTokenAmount: u(1_000), MinMarketTokenAmount: 1 << 62, Prices: prices})
	require.NoError(t, err)
	_, err = d.Execute()
	require.ErrorIs(t, err, model.ErrInsufficientOutput)
	require.Equal(t, before, *m)

	m.Flags.Enabled = false
	d, err = NewDeposit(m, DepositParams{LongTokenAmount: u(1_000), Prices: prices})
	require.NoError(t, err)
	_, err = d.Execute()
	require.ErrorIs(t, err, model.ErrMarketDisabled)
}

func TestDeposit_CapsLeaveStateUntouched(t *testing.T) {
	m := newMarket(t)
	prices := model.NewPricesForTest(120, 120, 1)
	m.Config.MaxPoolAmountForLongToken = u(500_000_000)
	before := *m

	d, err := NewDeposit(m, DepositParams{LongTokenAmount: u(1_000_000_000), Prices: prices})
	require.NoError(t, err)
	_, err = d.Execute()
	require.ErrorIs(t, err, model.ErrMaxPoolAmountExceeded)
	require.Equal(t, before, *m)
}

func TestWithdrawal_Rejects(t *testing.T) {
	m := newMarket(t)
	prices := model.NewPricesForTest(120, 120, 1)

	_, err := NewWithdrawal(m, WithdrawalParams{Prices: prices})
	require.ErrorIs(t, err, model.ErrEmptyAction)

	w, err := NewWithdrawal(m, WithdrawalParams{MarketTokenAmount: 1, Prices: prices})
	require.NoError(t, err)
	_, err = w.Execute()
	require.ErrorIs(t, err, model.ErrInvalidPoolValue)

	r := mustDeposit(t, m, 1_000_000_000, 1_000_000_000, prices)
	before := *m

	w, err = NewWithdrawal(m, WithdrawalParams{MarketTokenAmount: r.MintAmount + 1, Prices: prices})
	require.NoError(t, err)
	_, err = w.Execute()
	require.Error(t, err)
	require.Equal(t, before, *m)

	w, err = NewWithdrawal(m, WithdrawalParams{MarketTokenAmount: 1_000, MinShortTokenAmount: u(1 << 40), Prices: prices})
	require.NoError(t, err)
	_, err = w.Execute()
	require.ErrorIs(t, err, model.ErrInsufficientOutput)
	require.Equal(t, before, *m)
}

func TestWithdrawal_PoolConservation(t *testing.T) {
	prices := model.NewPricesForTest(120, 120, 1)

	tests := []struct {
		name     string
		deposits [][2]uint64
		amount   uint64
		wantErr  bool
	}{
		{"one market token", [][2]uint64{{1_000_000_000, 0}, {1_000_000_000, 0}, {0, 1_000_000_000}}, 1, false},
		{"large amount", [][2]uint64{{1_000_000_000, 0}, {1_000_000_000, 0}, {0, 1_000_000_000}}, 1_000_000_000, false},
		{"more than a small pool holds", [][2]uint64{{1_000_000, 0}, {0, 1_000_000}}, 1_000_000_000, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMarket(t)
			for _, d := range tc.deposits {
				mustDeposit(t, m, d[0], d[1], prices)
			}
			before := *m
			supply := m.Supply
			longBefore := m.Pools.Primary.LongAmount()
			shortBefore := m.Pools.Primary.ShortAmount()

			w, err := NewWithdrawal(m, WithdrawalParams{MarketTokenAmount: tc.amount, Prices: prices})
			require.NoError(t, err)
			r, err := w.Execute()
			if tc.wantErr {
				require.Error(t, err)
				require.Equal(t, before, *m)
				return
			}
			require.NoError(t, err)

			require.Equal(t, supply, m.Supply+r.Params.MarketTokenAmount)
			for _, side := range []struct {
				before, after, fee, output num.Uint
			}{
				{longBefore, m.Pools.Primary.LongAmount(), r.LongTokenFees.FeeAmountForReceiver, r.LongTokenOutput},
				{shortBefore, m.Pools.Primary.ShortAmount(), r.ShortTokenFees.FeeAmountForReceiver, r.ShortTokenOutput},
			} {
				got, err := side.after.Add(side.fee)
				require.NoError(t, err)
				got, err = got.Add(side.output)
				require.NoError(t, err)
				require.Equal(t, side.before.String(), got.String())
			}
			requireConserved(t, m)
		})
	}
}

func TestDeposit_UpdatesSharedVirtualInventory(t *testing.T) {
	a := newMarket(t)
	b := newMarketWith(t, "IDX2/USD[LONG-SHORT]", market.Meta{MarketToken: "GM2", IndexToken: "IDX2", LongToken: "LONG", ShortToken: "SHORT"})
	a.VirtualInventoryForSwaps = "vi"
	b.VirtualInventoryForSwaps = "vi"
	vi := market.NewVirtualInventory("vi")
	vis := market.VirtualInventories{"vi": vi}
	prices := model.NewPricesForTest(120, 120, 1)

	d, err := NewDeposit(a, DepositParams{LongTokenAmount: u(1_000_000_000), Prices: prices})
	require.NoError(t, err)
	_, err = d.Execute()
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = d.WithVirtualInventories(vis).Execute()
	require.NoError(t, err)
	require.Equal(t, a.Pools.Primary.LongAmount().String(), vi.Pool.LongAmount().String())

	d, err = NewDeposit(b, DepositParams{LongTokenAmount: u(1_000_000_000), Prices: prices})
	require.NoError(t, err)
	r, err := d.WithVirtualInventories(vis).Execute()
	require.NoError(t, err)
	// The inventory already leans long, so b is charged like a second deposit.
	require.True(t, r.PriceImpact.IsNegative())
	sum, err := a.Pools.Primary.LongAmount().Add(b.Pools.Primary.LongAmount())
	require.NoError(t, err)
	require.Equal(t, sum.String(), vi.Pool.LongAmount().String())
	require.False(t, a.HasVirtualInventoriesAttached())
}

func TestShift(t *testing.T) {
	from := newMarket(t)
	to := newMarketWith(t, "IDX2/USD[LONG-SHORT]", market.Meta{MarketToken: "GM2", IndexToken: "IDX2", LongToken: "LONG", ShortToken: "SHORT"})
	prices := model.NewPricesForTest(120, 120, 1)
	toPrices := model.NewPricesForTest(7, 120, 1)
	r := mustDeposit(t, from, 1_000_000_000, 100_000_000_000, prices)

	s, err := NewShift(from, to, ShiftParams{FromMarketTokenAmount: r.MintAmount / 2, FromPrices: prices, ToPrices: toPrices})
	require.NoError(t, err)
	sr, err := s.Execute()
	require.NoError(t, err)

	total, err := sr.Withdrawal.LongTokenFees.Total()
	require.NoError(t, err)
	require.True(t, total.IsZero())
	// First deposit into an empty market: the negative impact is kept aside.
	received, err := to.Pools.Primary.LongAmount().Add(to.Pools.SwapImpact.LongAmount())
	require.NoError(t, err)
	require.Equal(t, sr.Withdrawal.LongTokenOutput.String(), received.String())
	require.Equal(t, r.MintAmount-r.MintAmount/2, from.Supply)
	require.Equal(t, sr.Deposit.MintAmount, to.Supply)
	requireConserved(t, from)
	requireConserved(t, to)

	other := newMarketWith(t, "IDX/USD[LONG-OTHER]", market.Meta{MarketToken: "GM3", IndexToken: "IDX", LongToken: "LONG", ShortToken: "OTHER"})
	_, err = NewShift(from, other, ShiftParams{FromMarketTokenAmount: 1, FromPrices: prices, ToPrices: prices})
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = NewShift(from, to, ShiftParams{FromPrices: prices, ToPrices: prices})
	require.ErrorIs(t, err, model.ErrEmptyAction)
}

func swapMarkets(t *testing.T) (a, b *market.Market, pa, pb model.Prices) {
	t.Helper()
	a = newMarket(t)
	b = newMarketWith(t, "X/USD[X-SHORT]", market.Meta{MarketToken: "GMX", IndexToken: "X", LongToken: "X", ShortToken: "SHORT"})
	pa = model.NewPricesForTest(120, 120, 1)
	pb = model.NewPricesForTest(2, 2, 1)
	mustDeposit(t, a, 100_000_000_000, 12_000_000_000_000, pa)
	mustDeposit(t, b, 6_000_000_000_000, 12_000_000_000_000, pb)
	return a, b, pa, pb
}

func TestSwap_MultiHop(t *testing.T) {
	a, b, pa, pb := swapMarkets(t)

	s, err := NewSwap([]*market.Market{a, b}, SwapParams{
		TokenIn:  "LONG",
		TokenOut: "X",
		AmountIn: u(100_000_000),
		Prices:   []model.Prices{pa, pb},
	})
	require.NoError(t, err)
	r, err := s.Execute()
	require.NoError(t, err)

	require.Len(t, r.Hops, 2)
	require.Equal(t, "SHORT", r.Hops[0].TokenOut)
	require.Equal(t, r.Hops[0].AmountOut.String(), r.Hops[1].AmountIn.String())
	require.Equal(t, "X", r.TokenOut)
	// 0.1 LONG is worth 12 USD, or 6 X before fees.
	require.True(t, r.AmountOut.LT(u(6_000_000_000)))
	require.True(t, r.AmountOut.GT(u(5_900_000_000)))
	requireConserved(t, a)
	requireConserved(t, b)
}

func TestSwap_FailureLeavesEveryMarketUntouched(t *testing.T) {
	a, b, pa, pb := swapMarkets(t)
	beforeA, beforeB := *a, *b

	s, err := NewSwap([]*market.Market{a, b}, SwapParams{
		TokenIn:         "LONG",
		AmountIn:        u(100_000_000),
		MinOutputAmount: u(6_000_000_000),
		Prices:          []model.Prices{pa, pb},
	})
	require.NoError(t, err)
	_, err = s.Execute()
	require.ErrorIs(t, err, model.ErrInsufficientOutput)
	require.Equal(t, beforeA, *a)
	require.Equal(t, beforeB, *b)
}

func TestValidateSwapPath(t *testing.T) {
	a, b, _, _ := swapMarkets(t)
	pure := newMarketWith(t, "X/USD[X]", market.Meta{MarketToken: "GMP", IndexToken: "X", LongToken: "X", ShortToken: "X"})

	require.NoError(t, ValidateSwapPath([]*market.Market{a, b}, "LONG", "X"))
	require.NoError(t, ValidateSwapPath([]*market.Market{a}, "SHORT", ""))

	for name, tc := range map[string]struct {
		path    []*market.Market
		in, out string
	}{
		"empty":        {nil, "LONG", "X"},
		"repeated":     {[]*market.Market{a, a}, "LONG", "LONG"},
		"broken chain": {[]*market.Market{b, a}, "LONG", ""},
		"wrong end":    {[]*market.Market{a}, "LONG", "X"},
		"pure":         {[]*market.Market{pure}, "X", ""},
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, ValidateSwapPath(tc.path, tc.in, tc.out), model.ErrInvalidArgument)
		})
	}

	_, err := NewSwap([]*market.Market{a}, SwapParams{TokenIn: "LONG", AmountIn: u(1), Prices: nil})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	_, err = NewSwap([]*market.Market{a}, SwapParams{TokenIn: "LONG"})
	require.ErrorIs(t, err, model.ErrEmptyAction)
}
