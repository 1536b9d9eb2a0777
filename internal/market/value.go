package market

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/fees"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

// PnlFactorKind selects which pnl-to-pool bound applies.
type PnlFactorKind uint8

const (
	MaxAfterDeposit PnlFactorKind = iota
	MaxAfterWithdrawal
	MaxForTrader
	ForAdl
	MinAfterAdl
)

func (k PnlFactorKind) String() string {
	switch k {
	case MaxAfterDeposit:
		return "max_after_deposit"
	case MaxAfterWithdrawal:
		return "max_after_withdrawal"
	case MaxForTrader:
		return "max_for_trader"
	case ForAdl:
		return "for_adl"
	case MinAfterAdl:
		return "min_after_adl"
	default:
		return fmt.Sprintf("pnl_factor(%d)", uint8(k))
	}
}

// PoolValueForSide returns the USD value of one side of the primary pool.
func (m *Market) PoolValueForSide(prices model.Prices, isLong, maximize bool) (num.Uint, error) {
	amount := m.Pools.Primary.Amount(isLong)
	return amount.Mul(prices.CollateralTokenPrice(isLong).Pick(maximize))
}

// OpenInterest returns the open interest of a side in USD.
func (m *Market) OpenInterest(isLong bool) (num.Uint, error) {
	p, err := m.Pools.Get(pool.OpenInterest(isLong))
	if err != nil {
		return num.Zero, err
	}
	return p.Total()
}

// OpenInterestInTokens returns the open interest of a side in index tokens.
func (m *Market) OpenInterestInTokens(isLong bool) (num.Uint, error) {
	p, err := m.Pools.Get(pool.OpenInterestInTokens(isLong))
	if err != nil {
		return num.Zero, err
	}
	return p.Total()
}

// Pnl returns the aggregate pnl of all positions on a side. Maximize picks
// the index price that makes the pnl larger.
func (m *Market) Pnl(indexPrice model.Price, isLong, maximize bool) (num.Int, error) {
	oi, err := m.OpenInterest(isLong)
	if err != nil {
		return num.Int{}, err
	}
	tokens, err := m.OpenInterestInTokens(isLong)
	if err != nil {
		return num.Int{}, err
	}
	price := indexPrice.Pick(maximize)
	if !isLong {
		price = indexPrice.Pick(!maximize)
	}
	value, err := tokens.Mul(price)
	if err != nil {
		return num.Int{}, err
	}
	return signedDiff(value, oi, isLong)
}

// signedDiff returns a - b for longs and b - a for shorts.
func signedDiff(a, b num.Uint, isLong bool) (num.Int, error) {
	if !isLong {
		a, b = b, a
	}
	if a.GTE(b) {
		return num.ToSigned(a.SatSub(b))
	}
	return num.NegativeOf(b.SatSub(a))
}

// CappedPnl caps positive pnl at max_pnl_factor(kind) of the side's pool value.
func (m *Market) CappedPnl(prices model.Prices, isLong bool, kind PnlFactorKind, maximize bool) (num.Int, error) {
	pnl, err := m.Pnl(prices.IndexTokenPrice, isLong, maximize)
	if err != nil || !pnl.IsPositive() {
		return pnl, err
	}
	poolValue, err := m.PoolValueForSide(prices, isLong, maximize)
	if err != nil {
		return num.Int{}, err
	}
	factor, err := m.Config.MaxPnlFactor(kind, isLong)
	if err != nil {
		return num.Int{}, err
	}
	maxPnl, err := num.ApplyFactor(poolValue, factor, m.Unit())
	if err != nil {
		return num.Int{}, err
	}
	if pnl.Abs().GT(maxPnl) {
		return num.ToSigned(maxPnl)
	}
	return pnl, nil
}

// PendingBorrowingValue returns borrowing fees owed by open positions of a
// side and not yet settled.
func (m *Market) PendingBorrowingValue(isLong bool) (num.Uint, error) {
	oi, err := m.OpenInterest(isLong)
	if err != nil {
		return num.Zero, err
	}
	owed, err := num.ApplyFactor(oi, m.Pools.BorrowingFactor.Amount(isLong), m.Unit())
	if err != nil {
		return num.Zero, err
	}
	return owed.SatSub(m.Pools.TotalBorrowing.Amount(isLong)), nil
}

// PoolValue returns the market value backing the liquidity token: side
// values plus pending borrowing (net of the receiver share) minus the
// position impact pool and the capped pnl of both sides.
func (m *Market) PoolValue(prices model.Prices, kind PnlFactorKind, maximize bool) (num.Int, error) {
	unit := m.Unit()
	total := num.Int{}
	for _, isLong := range []bool{true, false} {
		v, err := m.PoolValueForSide(prices, isLong, maximize)
		if err != nil {
			return num.Int{}, err
		}
		if total, err = total.AddUint(v); err != nil {
			return num.Int{}, err
		}
		pending, err := m.PendingBorrowingValue(isLong)
		if err != nil {
			return num.Int{}, err
		}
		netPending, err := pending.MulDiv(unit.SatSub(m.Config.BorrowingFeeReceiverFactor), unit)
		if err != nil {
			return num.Int{}, err
		}
		if total, err = total.AddUint(netPending); err != nil {
			return num.Int{}, err
		}
	}

	impact, err := m.Pools.PositionImpact.Amount(true).Mul(prices.IndexTokenPrice.Pick(!maximize))
	if err != nil {
		return num.Int{}, err
	}
	if total, err = total.SubUint(impact); err != nil {
		return num.Int{}, err
	}

	for _, isLong := range []bool{true, false} {
		pnl, err := m.CappedPnl(prices, isLong, kind, !maximize)
		if err != nil {
			return num.Int{}, err
		}
		if total, err = total.Sub(pnl); err != nil {
			return num.Int{}, err
		}
	}
	return total, nil
}

// ReservedValue returns the value reserved for paying out a side: longs
// reserve their tokens at the max index price, shorts their USD size.
func (m *Market) ReservedValue(indexPrice model.Price, isLong bool) (num.Uint, error) {
	if isLong {
		tokens, err := m.OpenInterestInTokens(true)
		if err != nil {
			return num.Zero, err
		}
		return tokens.Mul(indexPrice.Max)
	}
	return m.OpenInterest(false)
}

// MaxReserveValue returns the side's pool value scaled by the factor.
func (m *Market) MaxReserveValue(prices model.Prices, isLong bool, factor num.Uint) (num.Uint, error) {
	poolValue, err := m.PoolValueForSide(prices, isLong, false)
	if err != nil {
		return num.Zero, err
	}
	return num.ApplyFactor(poolValue, factor, m.Unit())
}

func (m *Market) validateReserveWith(prices model.Prices, isLong bool, factor num.Uint) error {
	reserved, err := m.ReservedValue(prices.IndexTokenPrice, isLong)
	if err != nil {
		return err
	}
	maxReserve, err := m.MaxReserveValue(prices, isLong, factor)
	if err != nil {
		return err
	}
	if reserved.GT(maxReserve) {
		return fmt.Errorf("%w: %s side reserved %s > max %s", model.ErrReserveExceeded, side(isLong), reserved, maxReserve)
	}
	return nil
}

// ValidateReserve checks the reserve factor of a side.
func (m *Market) ValidateReserve(prices model.Prices, isLong bool) error {
	return m.validateReserveWith(prices, isLong, m.Config.ReserveFactor)
}

// ValidateOpenInterestReserve checks the open interest reserve factor.
func (m *Market) ValidateOpenInterestReserve(prices model.Prices, isLong bool) error {
	return m.validateReserveWith(prices, isLong, m.Config.OpenInterestReserveFactor)
}

// PnlFactor returns pnl / pool value of a side, zero for an empty pool.
func (m *Market) PnlFactor(prices model.Prices, isLong, maximize bool) (num.Int, error) {
	poolValue, err := m.PoolValueForSide(prices, isLong, !maximize)
	if err != nil {
		return num.Int{}, err
	}
	if poolValue.IsZero() {
		return num.Int{}, nil
	}
	pnl, err := m.Pnl(prices.IndexTokenPrice, isLong, maximize)
	if err != nil {
		return num.Int{}, err
	}
	return pnl.MulDiv(m.Unit(), poolValue)
}

// PnlFactorExceeded reports whether the maximized pnl factor of a side is
// above the bound of kind. The factor is returned for reporting.
func (m *Market) PnlFactorExceeded(prices model.Prices, kind PnlFactorKind, isLong bool) (bool, num.Int, error) {
	factor, err := m.PnlFactor(prices, isLong, true)
	if err != nil {
		return false, num.Int{}, err
	}
	bound, err := m.Config.MaxPnlFactor(kind, isLong)
	if err != nil {
		return false, num.Int{}, err
	}
	return factor.IsPositive() && factor.Abs().GT(bound), factor, nil
}

// ValidateMaxPnl checks the pnl factor bound of kind for a side.
func (m *Market) ValidateMaxPnl(prices model.Prices, kind PnlFactorKind, isLong bool) error {
	exceeded, factor, err := m.PnlFactorExceeded(prices, kind, isLong)
	if err != nil {
		return err
	}
	if exceeded {
		return fmt.Errorf("%w: %s side factor %s over %s bound", model.ErrPnlFactorExceeded, side(isLong), factor, kind)
	}
	return nil
}

// ValidatePoolAmount checks the side token amount against its cap.
func (m *Market) ValidatePoolAmount(isLong bool) error {
	amount := m.Pools.Primary.Amount(isLong)
	if amount.GT(m.Config.MaxPoolAmount(isLong)) {
		return fmt.Errorf("%w: %s side amount %s", model.ErrMaxPoolAmountExceeded, side(isLong), amount)
	}
	return nil
}

// ValidatePoolValueForDeposit checks the side value against its deposit cap.
func (m *Market) ValidatePoolValueForDeposit(prices model.Prices, isLong bool) error {
	value, err := m.PoolValueForSide(prices, isLong, true)
	if err != nil {
		return err
	}
	if value.GT(m.Config.MaxPoolValueForDeposit(isLong)) {
		return fmt.Errorf("%w: %s side value %s", model.ErrMaxPoolValueExceeded, side(isLong), value)
	}
	return nil
}

// ValidateOpenInterest checks the open interest cap of a side.
func (m *Market) ValidateOpenInterest(isLong bool) error {
	oi, err := m.OpenInterest(isLong)
	if err != nil {
		return err
	}
	if oi.GT(m.Config.MaxOpenInterest(isLong)) {
		return fmt.Errorf("%w: %s side open interest %s", model.ErrMaxOpenInterestExceeded, side(isLong), oi)
	}
	return nil
}

// SwapImpactValue returns the swap price impact of changing the side pool
// values by the given signed USD deltas. With a swap virtual inventory
// attached the worse of the market and inventory impacts applies.
func (m *Market) SwapImpactValue(prices model.Prices, longDelta, shortDelta num.Int) (num.Int, error) {
	longMid, err := prices.LongTokenPrice.Mid()
	if err != nil {
		return num.Int{}, err
	}
	shortMid, err := prices.ShortTokenPrice.Mid()
	if err != nil {
		return num.Int{}, err
	}
	params := m.Config.SwapImpactParams()

	impactFor := func(p pool.Pool) (num.Int, error) {
		l, err := p.LongAmount().Mul(longMid)
		if err != nil {
			return num.Int{}, err
		}
		s, err := p.ShortAmount().Mul(shortMid)
		if err != nil {
			return num.Int{}, err
		}
		before := fees.Balance{Long: l, Short: s}
		after, err := before.ApplyDelta(longDelta, shortDelta)
		if err != nil {
			return num.Int{}, err
		}
		return params.Impact(before, after, m.Unit())
	}

	impact, err := impactFor(m.Pools.Primary)
	if err != nil {
		return num.Int{}, err
	}
	vi, err := m.VirtualInventoryForSwapsModel()
	if err != nil {
		return num.Int{}, err
	}
	if vi != nil {
		viImpact, err := impactFor(vi.Pool)
		if err != nil {
			return num.Int{}, err
		}
		impact = fees.MinImpact(impact, viImpact)
	}
	return impact, nil
}

// PositionImpactValue returns the price impact of changing the open
// interest of a side by sizeDelta.
func (m *Market) PositionImpactValue(isLong bool, sizeDelta num.Int) (num.Int, error) {
	params := m.Config.PositionImpactParams()
	longDelta, shortDelta := sizeDelta, num.Int{}
	if !isLong {
		longDelta, shortDelta = num.Int{}, sizeDelta
	}

	impactFor := func(long, short num.Uint) (num.Int, error) {
		before := fees.Balance{Long: long, Short: short}
		after, err := before.ApplyDelta(longDelta, shortDelta)
		if err != nil {
			return num.Int{}, err
		}
		return params.Impact(before, after, m.Unit())
	}

	longOI, err := m.OpenInterest(true)
	if err != nil {
		return num.Int{}, err
	}
	shortOI, err := m.OpenInterest(false)
	if err != nil {
		return num.Int{}, err
	}
	impact, err := impactFor(longOI, shortOI)
	if err != nil {
		return num.Int{}, err
	}
	vi, err := m.VirtualInventoryForPositionsModel()
	if err != nil {
		return num.Int{}, err
	}
	if vi != nil {
		viImpact, err := impactFor(vi.Pool.LongAmount(), vi.Pool.ShortAmount())
		if err != nil {
			return num.Int{}, err
		}
		impact = fees.MinImpact(impact, viImpact)
	}
	return impact, nil
}

func side(isLong bool) string {
	if isLong {
		return "long"
	}
	return "short"
}
