package position

import (
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// Status is a read-only view of a position under a price snapshot. Values
// are in market units.
type Status struct {
	Key                   string    `json:"key"`
	EntryPrice            *num.Uint `json:"entry_price,omitempty"`
	CollateralValue       num.Uint  `json:"collateral_value"`
	PendingPnl            num.Int   `json:"pending_pnl"`
	PendingBorrowingValue num.Uint  `json:"pending_borrowing_fee_value"`
	PendingFundingValue   num.Uint  `json:"pending_funding_fee_value"`
	PendingClaimableValue num.Uint  `json:"pending_claimable_funding_value"`
	ClosePriceImpactValue num.Int   `json:"close_price_impact_value"`
	CloseOrderFeeValue    num.Uint  `json:"close_order_fee_value"`
	NetValue              num.Uint  `json:"net_value"`
	Leverage              *num.Uint `json:"leverage,omitempty"`
	LiquidationPrice      *num.Uint `json:"liquidation_price,omitempty"`
}

// Status computes the position summary. Leverage is a factor in market
// units and is absent when the net value is zero. The liquidation price is
// absent for an empty position or when no positive price would liquidate
// it.
func (p *Position) Status(m *market.Market, prices model.Prices) (Status, error) {
	st := Status{Key: p.Key()}
	if err := prices.Validate(); err != nil {
		return st, err
	}
	unit := m.Unit()
	collateralPrice := p.CollateralPrice(m, prices).Min

	var err error
	if !p.SizeInTokens.IsZero() {
		entry, err := p.SizeInUSD.Div(p.SizeInTokens)
		if err != nil {
			return st, err
		}
		st.EntryPrice = &entry
	}
	if st.CollateralValue, err = p.CollateralValue(m, prices); err != nil {
		return st, err
	}
	pnl, err := p.PnlValue(m, prices, p.SizeInUSD)
	if err != nil {
		return st, err
	}
	st.PendingPnl = pnl.Realized

	pending, err := p.PendingFees(m, prices, p.SizeInUSD, false, false)
	if err != nil {
		return st, err
	}
	if st.PendingBorrowingValue, err = pending.Borrowing.Amount.Mul(collateralPrice); err != nil {
		return st, err
	}
	if st.PendingFundingValue, err = pending.Funding.Amount.Mul(collateralPrice); err != nil {
		return st, err
	}
	claimLong, err := pending.Funding.ClaimableLongAmount.Mul(prices.LongTokenPrice.Min)
	if err != nil {
		return st, err
	}
	claimShort, err := pending.Funding.ClaimableShortAmount.Mul(prices.ShortTokenPrice.Min)
	if err != nil {
		return st, err
	}
	if st.PendingClaimableValue, err = claimLong.Add(claimShort); err != nil {
		return st, err
	}
	if st.ClosePriceImpactValue, err = p.CloseImpactValue(m, p.SizeInUSD, false); err != nil {
		return st, err
	}
	orderFee, err := pending.Order.Total()
	if err != nil {
		return st, err
	}
	if st.CloseOrderFeeValue, err = orderFee.Mul(collateralPrice); err != nil {
		return st, err
	}

	costs, err := st.PendingBorrowingValue.Add(st.PendingFundingValue)
	if err != nil {
		return st, err
	}
	if costs, err = costs.Add(st.CloseOrderFeeValue); err != nil {
		return st, err
	}

	net, err := num.ToSigned(st.CollateralValue)
	if err != nil {
		return st, err
	}
	if net, err = net.Add(st.PendingPnl); err != nil {
		return st, err
	}
	if net, err = net.SubUint(costs); err != nil {
		return st, err
	}
	st.NetValue = net.PositivePart()
	if !st.NetValue.IsZero() {
		leverage, err := num.DivToFactor(p.SizeInUSD, st.NetValue, unit, false)
		if err != nil {
			return st, err
		}
		st.Leverage = &leverage
	}

	if p.SizeInTokens.IsZero() {
		return st, nil
	}
	remaining, err := num.ToSigned(st.CollateralValue)
	if err != nil {
		return st, err
	}
	if remaining, err = remaining.Add(st.ClosePriceImpactValue); err != nil {
		return st, err
	}
	if remaining, err = remaining.SubUint(costs); err != nil {
		return st, err
	}
	if st.LiquidationPrice, err = p.liquidationPrice(m, remaining); err != nil {
		return st, err
	}
	return st, nil
}

// liquidationPrice solves remaining + pnl(price) = liquidation collateral
// for the index price.
func (p *Position) liquidationPrice(m *market.Market, remaining num.Int) (*num.Uint, error) {
	factor := m.Config.LiquidationCollateralFactor(m.ClosedParamsActive())
	byFactor, err := num.ApplyFactor(p.SizeInUSD, factor, m.Unit())
	if err != nil {
		return nil, err
	}
	liq, err := num.ToSigned(num.Max(byFactor, m.Config.MinCollateralValue))
	if err != nil {
		return nil, err
	}
	size, err := num.ToSigned(p.SizeInUSD)
	if err != nil {
		return nil, err
	}

	var target num.Int
	if p.IsLong {
		// tokens * price - size = liq - remaining
		if target, err = liq.Sub(remaining); err != nil {
			return nil, err
		}
	} else {
		// size - tokens * price = liq - remaining
		if target, err = remaining.Sub(liq); err != nil {
			return nil, err
		}
	}
	if target, err = target.Add(size); err != nil {
		return nil, err
	}
	if !target.IsPositive() {
		return nil, nil
	}
	price, err := target.Abs().Div(p.SizeInTokens)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, nil
	}
	return &price, nil
}
