package market

import (
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

const secondsPerHour = 3600

// SideStatus is the read-only state of one side of a market.
type SideStatus struct {
	FundingFactorPerHour               num.Uint `json:"funding_factor_per_hour"`
	BorrowingFactorPerHour             num.Uint `json:"borrowing_factor_per_hour"`
	OpenInterest                       num.Uint `json:"open_interest"`
	OpenInterestInTokens               num.Uint `json:"open_interest_in_tokens"`
	PendingPnlMin                      num.Int  `json:"pending_pnl_min"`
	PendingPnlMax                      num.Int  `json:"pending_pnl_max"`
	ReservedValue                      num.Uint `json:"reserved_value"`
	PoolValueWithoutPnl                num.Uint `json:"pool_value_without_pnl"`
	MaxReserveValue                    num.Uint `json:"max_reserve_value"`
	AvailableLiquidity                 num.Uint `json:"available_liquidity"`
	MinCollateralFactorForOpenInterest num.Uint `json:"min_collateral_factor_for_open_interest"`
}

// Status is the read-only summary of a market under a price snapshot.
type Status struct {
	Name           string     `json:"name"`
	Supply         uint64     `json:"supply"`
	PoolValueMax   num.Int    `json:"pool_value_max"`
	PoolValueMin   num.Int    `json:"pool_value_min"`
	LongsPayShorts bool       `json:"longs_pay_shorts"`
	Long           SideStatus `json:"long"`
	Short          SideStatus `json:"short"`
}

// Status computes the market summary. It does not mutate the market.
func (m *Market) Status(prices model.Prices) (Status, error) {
	if err := prices.Validate(); err != nil {
		return Status{}, err
	}
	st := Status{Name: m.Name, Supply: m.Supply}
	var err error
	if st.PoolValueMax, err = m.PoolValue(prices, MaxAfterDeposit, true); err != nil {
		return Status{}, err
	}
	if st.PoolValueMin, err = m.PoolValue(prices, MaxAfterWithdrawal, false); err != nil {
		return Status{}, err
	}

	rate, _, err := m.NextFundingRate()
	if err != nil {
		return Status{}, err
	}
	st.LongsPayShorts = rate.LongsPayShorts
	fundingPerHour, err := rate.FactorPerSecond.Mul(num.NewUint(secondsPerHour))
	if err != nil {
		return Status{}, err
	}

	for _, isLong := range []bool{true, false} {
		s, err := m.sideStatus(prices, isLong)
		if err != nil {
			return Status{}, err
		}
		if isLong == rate.LongsPayShorts {
			s.FundingFactorPerHour = fundingPerHour
		}
		if isLong {
			st.Long = s
		} else {
			st.Short = s
		}
	}
	return st, nil
}

func (m *Market) sideStatus(prices model.Prices, isLong bool) (SideStatus, error) {
	var s SideStatus
	borrowing, err := m.BorrowingFactorPerSecond(prices, isLong)
	if err != nil {
		return s, err
	}
	if s.BorrowingFactorPerHour, err = borrowing.Mul(num.NewUint(secondsPerHour)); err != nil {
		return s, err
	}
	if s.OpenInterest, err = m.OpenInterest(isLong); err != nil {
		return s, err
	}
	if s.OpenInterestInTokens, err = m.OpenInterestInTokens(isLong); err != nil {
		return s, err
	}
	if s.PendingPnlMin, err = m.Pnl(prices.IndexTokenPrice, isLong, false); err != nil {
		return s, err
	}
	if s.PendingPnlMax, err = m.Pnl(prices.IndexTokenPrice, isLong, true); err != nil {
		return s, err
	}
	if s.ReservedValue, err = m.ReservedValue(prices.IndexTokenPrice, isLong); err != nil {
		return s, err
	}
	if s.PoolValueWithoutPnl, err = m.PoolValueForSide(prices, isLong, false); err != nil {
		return s, err
	}
	if s.MaxReserveValue, err = m.MaxReserveValue(prices, isLong, m.Config.ReserveFactor); err != nil {
		return s, err
	}
	s.AvailableLiquidity = s.MaxReserveValue.SatSub(s.ReservedValue)
	if s.MinCollateralFactorForOpenInterest, err = m.MinCollateralFactorForOpenInterest(isLong, num.Int{}); err != nil {
		return s, err
	}
	return s, nil
}

// MinCollateralFactorForOpenInterest returns the collateral factor implied
// by the side's open interest after applying delta.
func (m *Market) MinCollateralFactorForOpenInterest(isLong bool, delta num.Int) (num.Uint, error) {
	oi, err := m.OpenInterest(isLong)
	if err != nil {
		return num.Zero, err
	}
	next, err := num.ToSigned(oi)
	if err != nil {
		return num.Zero, err
	}
	if next, err = next.Add(delta); err != nil {
		return num.Zero, err
	}
	return num.ApplyFactor(next.PositivePart(), m.Config.MinCollateralFactorForOpenInterestMultiplier(isLong), m.Unit())
}
