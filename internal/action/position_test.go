package action

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/position"
)

// openLong funds a market and opens a 5000 USD long backed by 1000 SHORT.
func openLong(t *testing.T, m *market.Market, prices model.Prices) (*position.Position, *IncreaseReport) {
	t.Helper()
	p, err := position.New("trader", m, "SHORT", true)
	require.NoError(t, err)
	inc, err := NewIncreasePosition(m, p, IncreaseParams{
		CollateralIncrementAmount: u(1_000_000_000_000),
		SizeDeltaUSD:              u(5_000_000_000_000),
		AcceptablePrice:           u(121),
		Prices:                    prices,
	})
	require.NoError(t, err)
	r, err := inc.Execute()
	require.NoError(t, err)
	return p, r
}

func fundedMarket(t *testing.T, prices model.Prices) *market.Market {
	t.Helper()
	m := newMarket(t)
	mustDeposit(t, m, 1_000_000_000_000, 100_000_000_000_000, prices)
	return m
}

func TestIncreaseDecrease_RoundTrip(t *testing.T) {
	prices := model.NewPricesForTest(120, 120, 1)
	m := fundedMarket(t, prices)

	p, inc := openLong(t, m, prices)
	require.True(t, inc.PriceImpactValue.IsNegative())
	order, err := inc.Fees.Order.Total()
	require.NoError(t, err)
	require.Equal(t, "3500000000", order.String())
	require.Equal(t, "1295000000", inc.Fees.Order.FeeAmountForReceiver.String())
	require.Equal(t, "41624999999", inc.SizeDeltaInTokens.String())
	require.Equal(t, "120", inc.ExecutionPrice.String())
	require.Equal(t, "5000000000000", p.SizeInUSD.String())
	require.Equal(t, "996500000000", p.CollateralAmount.String())
	require.Equal(t, "996500000000", m.Pools.CollateralSumForLong.ShortAmount().String())
	oi, err := m.OpenInterest(true)
	require.NoError(t, err)
	require.Equal(t, "5000000000000", oi.String())
	requireConserved(t, m)

	dec, err := NewDecreasePosition(m, p, DecreaseParams{SizeDeltaUSD: p.SizeInUSD, Prices: prices})
	require.NoError(t, err)
	r, err := dec.Execute()
	require.NoError(t, err)
	require.True(t, r.IsFullClose)
	require.True(t, r.PriceImpactValue.IsPositive())
	require.Equal(t, "-5000000120", r.Pnl.Realized.String())
	require.Equal(t, "988999999880", r.OutputAmount.String())
	require.Equal(t, "20833333", r.SecondaryOutputAmount.String())
	require.True(t, r.Shortfall.IsZero())

	require.True(t, p.IsEmpty())
	require.True(t, p.SizeInTokens.IsZero())
	require.True(t, p.CollateralAmount.IsZero())
	oi, err = m.OpenInterest(true)
	require.NoError(t, err)
	require.True(t, oi.IsZero())
	require.True(t, m.Pools.TotalBorrowing.LongAmount().IsZero())
	requireConserved(t, m)
}

func TestIncrease_Rejects(t *testing.T) {
	prices := model.NewPricesForTest(120, 120, 1)
	m := fundedMarket(t, prices)
	p, err := position.New("trader", m, "SHORT", true)
	require.NoError(t, err)
	before, beforePos := *m, *p

	_, err = NewIncreasePosition(m, p, IncreaseParams{Prices: prices})
	require.ErrorIs(t, err, model.ErrEmptyAction)

	other := newMarketWith(t, "IDX2/USD[LONG-SHORT]", market.Meta{MarketToken: "GM2", IndexToken: "IDX2", LongToken: "LONG", ShortToken: "SHORT"})
	_, err = NewIncreasePosition(other, p, IncreaseParams{SizeDeltaUSD: u(1), Prices: prices})
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	for name, tc := range map[string]struct {
		params IncreaseParams
		want   error
	}{
		"acceptable price": {
			IncreaseParams{CollateralIncrementAmount: u(1_000_000_000_000), SizeDeltaUSD: u(5_000_000_000_000), AcceptablePrice: u(119), Prices: prices},
			model.ErrAcceptablePrice,
		},
		"fees above collateral": {
			IncreaseParams{CollateralIncrementAmount: u(1_000_000_000), SizeDeltaUSD: u(5_000_000_000_000), Prices: prices},
			model.ErrInsufficientCollateral,
		},
		"leverage": {
			IncreaseParams{CollateralIncrementAmount: u(20_000_000_000), SizeDeltaUSD: u(5_000_000_000_000), Prices: prices},
			model.ErrLiquidatable,
		},
		"min size": {
			IncreaseParams{CollateralIncrementAmount: u(1_000_000_000_000), SizeDeltaUSD: u(500_000_000), Prices: prices},
			model.ErrInvalidArgument,
		},
		"swap path without swap": {
			IncreaseParams{InitialCollateralToken: "LONG", CollateralIncrementAmount: u(1), SizeDeltaUSD: u(5_000_000_000_000), Prices: prices},
			model.ErrInvalidArgument,
		},
	} {
		t.Run(name, func(t *testing.T) {
			inc, err := NewIncreasePosition(m, p, tc.params)
			require.NoError(t, err)
			_, err = inc.Execute()
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, before, *m)
			require.Equal(t, beforePos, *p)
		})
	}
}

func TestIncrease_ShortPositionCapsOpenInterest(t *testing.T) {
	prices := model.NewPricesForTest(120, 120, 1)
	m := fundedMarket(t, prices)
	m.Config.MaxOpenInterestForShort = u(1_000_000_000_000)
	p, err := position.New("trader", m, "SHORT", false)
	require.NoError(t, err)

	inc, err := NewIncreasePosition(m, p, IncreaseParams{
		CollateralIncrementAmount: u(1_000_000_000_000),
		SizeDeltaUSD:              u(2_000_000_000_000),
		Prices:                    prices,
	})
	require.NoError(t, err)
	_, err = inc.Execute()
	require.ErrorIs(t, err, model.ErrMaxOpenInterestExceeded)
	require.True(t, p.IsEmpty())

	inc, err = NewIncreasePosition(m, p, IncreaseParams{
		CollateralIncrementAmount: u(1_000_000_000_000),
		SizeDeltaUSD:              u(1_000_000_000_000),
		AcceptablePrice:           u(119),
		Prices:                    prices,
	})
	require.NoError(t, err)
	r, err := inc.Execute()
	require.NoError(t, err)
	// A short is charged for its size at the min price, rounded up.
	require.True(t, r.ExecutionPrice.GTE(u(119)))
	require.Equal(t, "1000000000000", p.SizeInUSD.String())
	requireConserved(t, m)
}

func TestIncrease_SwapsInitialCollateral(t *testing.T) {
	prices := model.NewPricesForTest(120, 120, 1)
	m := fundedMarket(t, prices)
	p, err := position.New("trader", m, "SHORT", true)
	require.NoError(t, err)

	inc, err := NewIncreasePosition(m, p, IncreaseParams{
		InitialCollateralToken:    "LONG",
		CollateralIncrementAmount: u(10_000_000_000),
		SizeDeltaUSD:              u(5_000_000_000_000),
		Prices:                    prices,
		SwapPrices:                []model.Prices{prices},
	})
	require.NoError(t, err)
	r, err := inc.WithSwapPath([]*market.Market{m}).Execute()
	require.NoError(t, err)
	require.Len(t, r.Swap, 1)
	require.Equal(t, "SHORT", r.Swap[0].TokenOut)
	require.Equal(t, r.Swap[0].AmountOut.String(), r.CollateralInAmount.String())
	requireConserved(t, m)
}

func TestDecrease_PartialWithWithdrawal(t *testing.T) {
	prices := model.NewPricesForTest(120, 120, 1)
	m := fundedMarket(t, prices)
	p, _ := openLong(t, m, prices)
	tokens := p.SizeInTokens

	dec, err := NewDecreasePosition(m, p, DecreaseParams{
		SizeDeltaUSD:               u(2_500_000_000_000),
		CollateralWithdrawalAmount: u(100_000_000_000),
		AcceptablePrice:            u(119),
		Prices:                     prices,
	})
	require.NoError(t, err)
	r, err := dec.Execute()
	require.NoError(t, err)
	require.False(t, r.IsFullClose)
	require.Equal(t, "2500000000000", p.SizeInUSD.String())
	// Longs close the rounded-up share of their tokens.
	half, err := tokens.DivCeil(u(2))
	require.NoError(t, err)
	require.Equal(t, half.String(), r.Pnl.SizeDeltaInTokens.String())
	require.Equal(t, tokens.SatSub(half).String(), p.SizeInTokens.String())
	require.True(t, r.OutputAmount.GTE(u(100_000_000_000)))
	require.NoError(t, p.CheckSizeInvariant())
	requireConserved(t, m)
}

func TestDecrease_Rejects(t *testing.T) {
	prices := model.NewPricesForTest(120, 120, 1)
	m := fundedMarket(t, prices)
	p, _ := openLong(t, m, prices)
	before, beforePos := *m, *p

	_, err := NewDecreasePosition(m, p, DecreaseParams{Prices: prices})
	require.ErrorIs(t, err, model.ErrEmptyAction)

	_, err = NewDecreasePosition(m, p, DecreaseParams{SizeDeltaUSD: u(5_000_000_000_001), Prices: prices})
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	dec, err := NewDecreasePosition(m, p, DecreaseParams{CollateralWithdrawalAmount: u(2_000_000_000_000), Prices: prices})
	require.NoError(t, err)
	_, err = dec.Execute()
	require.ErrorIs(t, err, model.ErrInsufficientCollateral)
	require.Equal(t, before, *m)
	require.Equal(t, beforePos, *p)

	dec, err = NewDecreasePosition(m, p, DecreaseParams{SizeDeltaUSD: u(1_000_000_000_000), AcceptablePrice: u(121), Prices: prices})
	require.NoError(t, err)
	_, err = dec.Execute()
	require.ErrorIs(t, err, model.ErrAcceptablePrice)

	// Withdrawing most of the collateral breaks the leverage bound.
	dec, err = NewDecreasePosition(m, p, DecreaseParams{CollateralWithdrawalAmount: u(990_000_000_000), Prices: prices})
	require.NoError(t, err)
	_, err = dec.Execute()
	require.ErrorIs(t, err, model.ErrLiquidatable)
	require.Equal(t, before, *m)
	require.Equal(t, beforePos, *p)
}

func TestLiquidate(t *testing.T) {
	prices := model.NewPricesForTest(120, 120, 1)
	m := fundedMarket(t, prices)
	p, _ := openLong(t, m, prices)
	before, beforePos := *m, *p

	liq, err := NewLiquidate(m, p, prices)
	require.NoError(t, err)
	_, err = liq.Execute()
	require.ErrorIs(t, err, model.ErrNotLiquidatable)
	require.Equal(t, before, *m)
	require.Equal(t, beforePos, *p)

	crashed := model.NewPricesForTest(96, 120, 1)
	liq, err = NewLiquidate(m, p, crashed)
	require.NoError(t, err)
	r, err := liq.Execute()
	require.NoError(t, err)
	require.Equal(t, DecreaseLiquidation, r.Kind)
	require.NotNil(t, r.Collateral)
	require.True(t, r.Collateral.Insufficient)
	require.True(t, r.IsFullClose)
	// The loss exceeds the collateral: the rest is recorded, not charged.
	require.False(t, r.Shortfall.IsZero())
	require.True(t, r.OutputAmount.IsZero())
	require.True(t, p.IsEmpty())
	require.True(t, m.Pools.CollateralSumForLong.ShortAmount().IsZero())
	requireConserved(t, m)

	_, err = NewLiquidate(m, p, crashed)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestSeizeSecondary_CoversShortfall(t *testing.T) {
	idx, usd := model.NewPrice(u(120)), model.NewPrice(u(1))

	tests := []struct {
		name                    string
		secondary, owed         uint64
		rest, seized, stillOwed uint64
	}{
		{"covers everything", 10, 600, 5, 5, 0},
		{"rounds the seizure up", 10, 601, 4, 6, 0},
		{"partial cover", 2, 600, 0, 2, 360},
		{"nothing to seize", 0, 600, 0, 0, 600},
		{"nothing owed", 7, 0, 7, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rest, seized, stillOwed, err := seizeSecondary(idx, usd, u(tc.secondary), u(tc.owed))
			require.NoError(t, err)
			require.Equal(t, u(tc.rest).String(), rest.String())
			require.Equal(t, u(tc.seized).String(), seized.String())
			require.Equal(t, u(tc.stillOwed).String(), stillOwed.String())
		})
	}
}

func TestAutoDeleverage(t *testing.T) {
	prices := model.NewPricesForTest(120, 120, 1)
	m := newMarket(t)
	ten := u(10_000_000_000)
	m.Config.ReserveFactor, m.Config.OpenInterestReserveFactor = ten, ten
	m.Config.MinPnlFactorAfterLongAdl = num.Zero
	mustDeposit(t, m, 5_000_000_000, 10_000_000_000_000, prices)
	p, _ := openLong(t, m, prices)
	pumped := model.NewPricesForTest(130, 120, 1)

	adl, err := NewAutoDeleverage(m, p, u(2_500_000_000_000), pumped)
	require.NoError(t, err)
	_, err = adl.Execute()
	require.ErrorIs(t, err, model.ErrAdlNotEnabled)

	m.Flags.AutoDeleveragingEnabledForLong = true
	adl, err = NewAutoDeleverage(m, p, u(2_500_000_000_000), prices)
	require.NoError(t, err)
	_, err = adl.Execute()
	require.ErrorIs(t, err, model.ErrAdlNotRequired)

	adl, err = NewAutoDeleverage(m, p, u(2_500_000_000_000), pumped)
	require.NoError(t, err)
	r, err := adl.Execute()
	require.NoError(t, err)
	require.Equal(t, DecreaseAutoDeleverage, r.Kind)
	require.True(t, r.Pnl.Realized.IsPositive())
	require.True(t, r.PnlFactorAfter.Cmp(r.PnlFactorBefore) < 0)
	require.Equal(t, "2500000000000", p.SizeInUSD.String())
	require.False(t, r.SecondaryOutputAmount.IsZero())
	requireConserved(t, m)

	_, err = NewAutoDeleverage(m, p, num.Zero, pumped)
	require.ErrorIs(t, err, model.ErrEmptyAction)
}
