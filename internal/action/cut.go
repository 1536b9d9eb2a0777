package action

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/position"
)

// CutReport describes a liquidation or an auto-deleveraging.
type CutReport struct {
	DecreaseReport
	// Collateral is the liquidation check that allowed a liquidation.
	Collateral *position.CollateralState `json:"collateral,omitempty"`
	// PnlFactorBefore and PnlFactorAfter bracket an auto-deleveraging.
	PnlFactorBefore num.Int `json:"pnl_factor_before"`
	PnlFactorAfter  num.Int `json:"pnl_factor_after"`
}

// Liquidate closes a position whose collateral no longer covers the
// liquidation threshold.
type Liquidate struct {
	market   *market.Market
	position *position.Position
	vis      market.VirtualInventories
	prices   model.Prices
}

// NewLiquidate validates a liquidation request. Whether the position is
// liquidatable is only known after accrual, in Execute.
func NewLiquidate(m *market.Market, p *position.Position, prices model.Prices) (*Liquidate, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil position", model.ErrInvalidArgument)
	}
	if err := checkDecrease(m, p, DecreaseParams{SizeDeltaUSD: p.SizeInUSD, Prices: prices}); err != nil {
		return nil, err
	}
	return &Liquidate{market: m, position: p, prices: prices}, nil
}

// WithVirtualInventories supplies the inventories the market references.
func (a *Liquidate) WithVirtualInventories(vis market.VirtualInventories) *Liquidate {
	a.vis = vis
	return a
}

// Execute closes the whole position without price bounds. It fails with
// ErrNotLiquidatable when the position is still sufficiently collateralized.
func (a *Liquidate) Execute() (*CutReport, error) {
	st, err := newStage(a.vis, a.market)
	if err != nil {
		return nil, err
	}
	staged := a.position.Clone()
	params := DecreaseParams{SizeDeltaUSD: staged.SizeInUSD, Prices: a.prices}
	report := CutReport{DecreaseReport: DecreaseReport{Params: params}}
	err = st.run(func() error {
		m := st.market(a.market)
		if report.Accrual, err = m.Accrue(a.prices); err != nil {
			return err
		}
		state, err := staged.CheckLiquidation(m, a.prices, true)
		if err != nil {
			return err
		}
		if !state.Insufficient {
			return fmt.Errorf("%w: remaining collateral %s, threshold %s", model.ErrNotLiquidatable,
				state.RemainingCollateralValue, state.MinCollateralValue)
		}
		report.Collateral = &state
		return decrease(m, staged, params, DecreaseLiquidation, &report.DecreaseReport)
	})
	if err != nil {
		return nil, err
	}
	*a.position = *staged
	report.Position = *staged
	return &report, nil
}

// AutoDeleverage reduces a profitable position while the pnl of its side
// is above the auto-deleveraging bound.
type AutoDeleverage struct {
	market   *market.Market
	position *position.Position
	vis      market.VirtualInventories
	params   DecreaseParams
}

// NewAutoDeleverage validates an auto-deleveraging request. A size delta
// above the position size closes the position.
func NewAutoDeleverage(m *market.Market, p *position.Position, sizeDeltaUSD num.Uint, prices model.Prices) (*AutoDeleverage, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil position", model.ErrInvalidArgument)
	}
	if sizeDeltaUSD.IsZero() {
		return nil, fmt.Errorf("%w: auto-deleveraging of zero size", model.ErrEmptyAction)
	}
	params := DecreaseParams{SizeDeltaUSD: num.Min(sizeDeltaUSD, p.SizeInUSD), Prices: prices}
	if err := checkDecrease(m, p, params); err != nil {
		return nil, err
	}
	return &AutoDeleverage{market: m, position: p, params: params}, nil
}

// WithVirtualInventories supplies the inventories the market references.
func (a *AutoDeleverage) WithVirtualInventories(vis market.VirtualInventories) *AutoDeleverage {
	a.vis = vis
	return a
}

// Execute decreases the position. The side's pnl factor must be above the
// ADL bound before, must go down, and must not fall below the min-after-ADL
// bound.
func (a *AutoDeleverage) Execute() (*CutReport, error) {
	isLong := a.position.IsLong
	if !a.market.Flags.AutoDeleveragingEnabled(isLong) {
		return nil, fmt.Errorf("%w: %s side of %s", model.ErrAdlNotEnabled, sideName(isLong), a.market.Name)
	}
	st, err := newStage(a.vis, a.market)
	if err != nil {
		return nil, err
	}
	staged := a.position.Clone()
	prices := a.params.Prices
	report := CutReport{DecreaseReport: DecreaseReport{Params: a.params}}
	err = st.run(func() error {
		m := st.market(a.market)
		if report.Accrual, err = m.Accrue(prices); err != nil {
			return err
		}
		exceeded, before, err := m.PnlFactorExceeded(prices, market.ForAdl, isLong)
		if err != nil {
			return err
		}
		if !exceeded {
			return fmt.Errorf("%w: %s side pnl factor %s", model.ErrAdlNotRequired, sideName(isLong), before)
		}
		report.PnlFactorBefore = before
		if err := decrease(m, staged, a.params, DecreaseAutoDeleverage, &report.DecreaseReport); err != nil {
			return err
		}

		if report.PnlFactorAfter, err = m.PnlFactor(prices, isLong, true); err != nil {
			return err
		}
		if report.PnlFactorAfter.Cmp(before) >= 0 {
			return fmt.Errorf("%w: pnl factor did not decrease (%s -> %s)", model.ErrPnlFactorExceeded, before, report.PnlFactorAfter)
		}
		minAfter, err := m.Config.MaxPnlFactor(market.MinAfterAdl, isLong)
		if err != nil {
			return err
		}
		bound, err := num.ToSigned(minAfter)
		if err != nil {
			return err
		}
		if report.PnlFactorAfter.Cmp(bound) < 0 {
			return fmt.Errorf("%w: pnl factor %s overcorrected below %s", model.ErrPnlFactorExceeded, report.PnlFactorAfter, minAfter)
		}
		_, err = m.Clocks.JustPassedInSeconds(clock.Adl, m.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	*a.position = *staged
	report.Position = *staged
	return &report, nil
}

func sideName(isLong bool) string {
	if isLong {
		return "long"
	}
	return "short"
}
