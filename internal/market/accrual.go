package market

import (
	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/fees"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

// FundingAmountPerSizeAdjustment is the scale of the funding per size
// pools: a per-size value v means v / adjustment tokens per USD unit of size.
func (m *Market) FundingAmountPerSizeAdjustment() num.Uint { return m.Unit() }

// DistributePositionImpact releases position impact pool tokens for the
// time elapsed since the last distribution and resets the clock.
func (m *Market) DistributePositionImpact() (num.Uint, error) {
	seconds, err := m.Clocks.JustPassedInSeconds(clock.PriceImpactDistribution, m.Now())
	if err != nil {
		return num.Zero, err
	}
	amount, err := m.Config.DistributionParams().DistributionAmount(m.Pools.PositionImpact.Amount(true), seconds, m.Unit())
	if err != nil {
		return num.Zero, err
	}
	if amount.IsZero() {
		return amount, nil
	}
	return amount, m.SubtractAmount(pool.PositionImpact, true, amount)
}

// UsageFor returns the borrowing usage inputs of a side.
func (m *Market) UsageFor(prices model.Prices, isLong bool) (fees.Usage, error) {
	reserved, err := m.ReservedValue(prices.IndexTokenPrice, isLong)
	if err != nil {
		return fees.Usage{}, err
	}
	poolValue, err := m.PoolValueForSide(prices, isLong, false)
	if err != nil {
		return fees.Usage{}, err
	}
	oi, err := m.OpenInterest(isLong)
	if err != nil {
		return fees.Usage{}, err
	}
	opposing, err := m.OpenInterest(!isLong)
	if err != nil {
		return fees.Usage{}, err
	}
	return fees.Usage{
		ReservedValue:        reserved,
		PoolValue:            poolValue,
		ReserveFactor:        m.Config.ReserveFactor,
		OpenInterest:         oi,
		OpposingOpenInterest: opposing,
		MaxOpenInterest:      m.Config.MaxOpenInterest(isLong),
		IgnoreOpenInterest:   m.Config.IgnoreOpenInterestForUsageFactor,
	}, nil
}

// BorrowingFactorPerSecond returns the current borrowing rate of a side.
func (m *Market) BorrowingFactorPerSecond(prices model.Prices, isLong bool) (num.Uint, error) {
	usage, err := m.UsageFor(prices, isLong)
	if err != nil {
		return num.Zero, err
	}
	closed := m.ClosedParamsActive()
	return fees.BorrowingFactorPerSecond(m.Config.BorrowingFeeParams(closed), m.Config.KinkParams(closed), isLong, usage, m.Unit())
}

// UpdateTotalBorrowing replaces one position's contribution, size times
// its borrowing factor snapshot, in the side's total borrowing.
func (m *Market) UpdateTotalBorrowing(isLong bool, prevSize, prevFactor, nextSize, nextFactor num.Uint) error {
	unit := m.Unit()
	prev, err := num.ApplyFactor(prevSize, prevFactor, unit)
	if err != nil {
		return err
	}
	next, err := num.ApplyFactor(nextSize, nextFactor, unit)
	if err != nil {
		return err
	}
	total := m.Pools.TotalBorrowing.Amount(isLong)
	updated, err := total.SatSub(prev).Add(next)
	if err != nil {
		return err
	}
	if updated.GTE(total) {
		return m.ApplyDeltaAmount(pool.TotalBorrowing, isLong, updated.SatSub(total))
	}
	return m.SubtractAmount(pool.TotalBorrowing, isLong, total.SatSub(updated))
}

// BorrowingAccrual is the borrowing factor increment of one update.
type BorrowingAccrual struct {
	Seconds          uint64   `json:"seconds"`
	DeltaFactorLong  num.Uint `json:"delta_factor_long"`
	DeltaFactorShort num.Uint `json:"delta_factor_short"`
}

// UpdateBorrowing accrues the cumulative borrowing factor of both sides.
func (m *Market) UpdateBorrowing(prices model.Prices) (BorrowingAccrual, error) {
	// Rates are read before the clock moves so that both sides see the
	// same state.
	longRate, err := m.BorrowingFactorPerSecond(prices, true)
	if err != nil {
		return BorrowingAccrual{}, err
	}
	shortRate, err := m.BorrowingFactorPerSecond(prices, false)
	if err != nil {
		return BorrowingAccrual{}, err
	}
	seconds, err := m.Clocks.JustPassedInSeconds(clock.Borrowing, m.Now())
	if err != nil {
		return BorrowingAccrual{}, err
	}
	acc := BorrowingAccrual{Seconds: seconds}
	if acc.DeltaFactorLong, err = fees.Accrue(longRate, seconds); err != nil {
		return BorrowingAccrual{}, err
	}
	if acc.DeltaFactorShort, err = fees.Accrue(shortRate, seconds); err != nil {
		return BorrowingAccrual{}, err
	}
	if err := m.ApplyDeltaAmount(pool.BorrowingFactor, true, acc.DeltaFactorLong); err != nil {
		return BorrowingAccrual{}, err
	}
	if err := m.ApplyDeltaAmount(pool.BorrowingFactor, false, acc.DeltaFactorShort); err != nil {
		return BorrowingAccrual{}, err
	}
	return acc, nil
}

// FundingAccrual reports one funding update.
type FundingAccrual struct {
	Seconds         uint64   `json:"seconds"`
	FactorPerSecond num.Uint `json:"factor_per_second"`
	LongsPayShorts  bool     `json:"longs_pay_shorts"`
	PaidValue       num.Uint `json:"paid_value"`
}

// NextFundingRate computes the funding rate for the time elapsed since the
// last update without changing the market.
func (m *Market) NextFundingRate() (fees.FundingRate, uint64, error) {
	seconds, err := m.Clocks.PassedInSeconds(clock.Funding, m.Now())
	if err != nil {
		return fees.FundingRate{}, 0, err
	}
	longOI, err := m.OpenInterest(true)
	if err != nil {
		return fees.FundingRate{}, 0, err
	}
	shortOI, err := m.OpenInterest(false)
	if err != nil {
		return fees.FundingRate{}, 0, err
	}
	rate, err := m.Config.FundingFeeParams().NextFactorPerSecond(longOI, shortOI, m.FundingFactorPerSecond, seconds, m.Unit())
	return rate, seconds, err
}

// UpdateFunding settles funding for the elapsed time: the paying side's
// funding per size grows per collateral token, and the receiving side's
// claimable funding per size grows by the same amounts.
func (m *Market) UpdateFunding(prices model.Prices) (FundingAccrual, error) {
	rate, seconds, err := m.NextFundingRate()
	if err != nil {
		return FundingAccrual{}, err
	}
	if _, err := m.Clocks.JustPassedInSeconds(clock.Funding, m.Now()); err != nil {
		return FundingAccrual{}, err
	}
	m.FundingFactorPerSecond = rate.NextSaved

	acc := FundingAccrual{Seconds: seconds, FactorPerSecond: rate.FactorPerSecond, LongsPayShorts: rate.LongsPayShorts}
	payer := rate.LongsPayShorts
	payerOI, err := m.OpenInterest(payer)
	if err != nil {
		return FundingAccrual{}, err
	}
	receiverOI, err := m.OpenInterest(!payer)
	if err != nil {
		return FundingAccrual{}, err
	}
	if seconds == 0 || rate.FactorPerSecond.IsZero() || payerOI.IsZero() || receiverOI.IsZero() {
		return acc, nil
	}

	unit := m.Unit()
	adjustment := m.FundingAmountPerSizeAdjustment()
	if acc.PaidValue, err = fees.FundingValue(payerOI, rate.FactorPerSecond, seconds, unit); err != nil {
		return FundingAccrual{}, err
	}
	payerPool, err := m.Pools.Get(pool.OpenInterest(payer))
	if err != nil {
		return FundingAccrual{}, err
	}
	for _, collateralIsLong := range []bool{true, false} {
		payerOIForCollateral := payerPool.Amount(collateralIsLong)
		if payerOIForCollateral.IsZero() {
			continue
		}
		value, err := acc.PaidValue.MulDiv(payerOIForCollateral, payerOI)
		if err != nil {
			return FundingAccrual{}, err
		}
		amount, err := value.Div(prices.CollateralTokenPrice(collateralIsLong).Max)
		if err != nil {
			return FundingAccrual{}, err
		}
		if amount.IsZero() {
			continue
		}
		paid, err := amount.MulDivCeil(adjustment, payerOIForCollateral)
		if err != nil {
			return FundingAccrual{}, err
		}
		claimable, err := amount.MulDiv(adjustment, receiverOI)
		if err != nil {
			return FundingAccrual{}, err
		}
		if err := m.ApplyDeltaAmount(pool.FundingAmountPerSize(payer), collateralIsLong, paid); err != nil {
			return FundingAccrual{}, err
		}
		if err := m.ApplyDeltaAmount(pool.ClaimableFundingAmountPerSize(!payer), collateralIsLong, claimable); err != nil {
			return FundingAccrual{}, err
		}
	}
	return acc, nil
}

// Accrual bundles the state updates performed before an action.
type Accrual struct {
	DistributedImpact num.Uint         `json:"distributed_impact"`
	Borrowing         BorrowingAccrual `json:"borrowing"`
	Funding           FundingAccrual   `json:"funding"`
}

// Accrue distributes the position impact pool and updates borrowing and
// funding state, in that order.
func (m *Market) Accrue(prices model.Prices) (Accrual, error) {
	var acc Accrual
	var err error
	if acc.DistributedImpact, err = m.DistributePositionImpact(); err != nil {
		return Accrual{}, err
	}
	if acc.Borrowing, err = m.UpdateBorrowing(prices); err != nil {
		return Accrual{}, err
	}
	if acc.Funding, err = m.UpdateFunding(prices); err != nil {
		return Accrual{}, err
	}
	return acc, nil
}
