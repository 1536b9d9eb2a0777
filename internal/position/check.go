package position

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// Collateral check failure reasons.
const (
	ReasonMinCollateral            = "min collateral"
	ReasonNonPositiveCollateral    = "collateral <= 0"
	ReasonMinCollateralForLeverage = "min collateral for leverage"
)

// CollateralState is the outcome of a collateral sufficiency check on the
// whole position.
type CollateralState struct {
	Insufficient             bool     `json:"insufficient"`
	Reason                   string   `json:"reason,omitempty"`
	RemainingCollateralValue num.Int  `json:"remaining_collateral_value"`
	MinCollateralValue       num.Uint `json:"min_collateral_value"`
}

// checkCollateral closes the whole position on paper and compares the
// remaining collateral value with factor * size.
func (p *Position) checkCollateral(m *market.Market, prices model.Prices, factor num.Uint, isLiquidation, validateMinCollateral bool) (CollateralState, error) {
	collateralValue, err := p.CollateralValue(m, prices)
	if err != nil {
		return CollateralState{}, err
	}
	pnl, err := p.PnlValue(m, prices, p.SizeInUSD)
	if err != nil {
		return CollateralState{}, err
	}
	impact, err := p.CloseImpactValue(m, p.SizeInUSD, true)
	if err != nil {
		return CollateralState{}, err
	}
	pending, err := p.PendingFees(m, prices, p.SizeInUSD, false, isLiquidation)
	if err != nil {
		return CollateralState{}, err
	}
	costAmount, err := pending.TotalCostAmount()
	if err != nil {
		return CollateralState{}, err
	}
	costValue, err := costAmount.Mul(p.CollateralPrice(m, prices).Min)
	if err != nil {
		return CollateralState{}, err
	}

	remaining, err := num.ToSigned(collateralValue)
	if err != nil {
		return CollateralState{}, err
	}
	if remaining, err = remaining.Add(pnl.Realized); err != nil {
		return CollateralState{}, err
	}
	if remaining, err = remaining.Add(impact); err != nil {
		return CollateralState{}, err
	}
	if remaining, err = remaining.SubUint(costValue); err != nil {
		return CollateralState{}, err
	}

	minForLeverage, err := num.ApplyFactor(p.SizeInUSD, factor, m.Unit())
	if err != nil {
		return CollateralState{}, err
	}
	st := CollateralState{RemainingCollateralValue: remaining, MinCollateralValue: minForLeverage}
	switch {
	case validateMinCollateral && remaining.Cmp(mustSigned(m.Config.MinCollateralValue)) < 0:
		st.Insufficient, st.Reason = true, ReasonMinCollateral
	case !remaining.IsPositive():
		st.Insufficient, st.Reason = true, ReasonNonPositiveCollateral
	case remaining.Abs().LT(minForLeverage):
		st.Insufficient, st.Reason = true, ReasonMinCollateralForLeverage
	}
	return st, nil
}

func mustSigned(u num.Uint) num.Int {
	v, err := num.ToSigned(u)
	if err != nil {
		return num.Int{}
	}
	return v
}

// CheckLiquidation reports whether the position can be liquidated: the
// collateral left after closing it at the current prices, fees included,
// is below the liquidation collateral factor times its size.
func (p *Position) CheckLiquidation(m *market.Market, prices model.Prices, validateMinCollateral bool) (CollateralState, error) {
	if p.IsEmpty() {
		return CollateralState{}, nil
	}
	factor := m.Config.LiquidationCollateralFactor(m.ClosedParamsActive())
	return p.checkCollateral(m, prices, factor, true, validateMinCollateral)
}

// LeverageCollateralFactor returns the collateral factor a position must
// keep after a change: the larger of the configured minimum and the factor
// implied by the side's open interest.
func (p *Position) LeverageCollateralFactor(m *market.Market) (num.Uint, error) {
	forOI, err := m.MinCollateralFactorForOpenInterest(p.IsLong, num.Int{})
	if err != nil {
		return num.Zero, err
	}
	return num.Max(m.Config.MinCollateralFactor, forOI), nil
}

// Validate checks a position after it has been changed. Empty positions
// are always valid.
func (p *Position) Validate(m *market.Market, prices model.Prices, validateMinSize, validateMinCollateral bool) error {
	if err := p.CheckSizeInvariant(); err != nil {
		return err
	}
	if p.IsEmpty() {
		return nil
	}
	if validateMinSize && p.SizeInUSD.LT(m.Config.MinPositionSizeUSD) {
		return fmt.Errorf("%w: size %s below min position size %s", model.ErrInvalidArgument, p.SizeInUSD, m.Config.MinPositionSizeUSD)
	}
	factor, err := p.LeverageCollateralFactor(m)
	if err != nil {
		return err
	}
	st, err := p.checkCollateral(m, prices, factor, false, validateMinCollateral)
	if err != nil {
		return err
	}
	if st.Insufficient {
		return fmt.Errorf("%w: %s (remaining %s, required %s)", model.ErrLiquidatable, st.Reason, st.RemainingCollateralValue, st.MinCollateralValue)
	}
	return nil
}
