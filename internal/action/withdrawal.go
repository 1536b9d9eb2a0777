package action

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/fees"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

// WithdrawalParams requests burning liquidity tokens for side tokens.
type WithdrawalParams struct {
	MarketTokenAmount   uint64       `json:"market_token_amount" toml:"market_token_amount"`
	MinLongTokenAmount  num.Uint     `json:"min_long_token_amount" toml:"min_long_token_amount"`
	MinShortTokenAmount num.Uint     `json:"min_short_token_amount" toml:"min_short_token_amount"`
	Prices              model.Prices `json:"prices" toml:"prices"`
}

// WithdrawalReport describes an executed withdrawal.
type WithdrawalReport struct {
	Params           WithdrawalParams `json:"params"`
	Accrual          market.Accrual   `json:"accrual"`
	PoolValue        num.Int          `json:"pool_value"`
	LongTokenFees    fees.Fees        `json:"long_token_fees"`
	ShortTokenFees   fees.Fees        `json:"short_token_fees"`
	LongTokenOutput  num.Uint         `json:"long_token_output"`
	ShortTokenOutput num.Uint         `json:"short_token_output"`
}

// Withdrawal burns liquidity tokens and pays out side tokens in proportion
// to the primary pool.
type Withdrawal struct {
	market *market.Market
	vis    market.VirtualInventories
	params WithdrawalParams
}

// NewWithdrawal validates a withdrawal request. A zero amount fails with
// ErrEmptyAction before anything else is looked at.
func NewWithdrawal(m *market.Market, params WithdrawalParams) (*Withdrawal, error) {
	if params.MarketTokenAmount == 0 {
		return nil, fmt.Errorf("%w: withdrawal of zero market tokens", model.ErrEmptyAction)
	}
	if err := params.Prices.Validate(); err != nil {
		return nil, err
	}
	return &Withdrawal{market: m, params: params}, nil
}

// WithVirtualInventories supplies the inventories the market references.
func (w *Withdrawal) WithVirtualInventories(vis market.VirtualInventories) *Withdrawal {
	w.vis = vis
	return w
}

// Execute runs the withdrawal. On error the market is unchanged.
func (w *Withdrawal) Execute() (*WithdrawalReport, error) {
	s, err := newStage(w.vis, w.market)
	if err != nil {
		return nil, err
	}
	var report WithdrawalReport
	err = s.run(func() error {
		m := s.market(w.market)
		acc, err := m.Accrue(w.params.Prices)
		if err != nil {
			return err
		}
		return m.WithSwapPricing(market.PricingWithdrawal, func() error {
			report, err = withdraw(m, w.params)
			report.Accrual = acc
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// withdrawalOutputs splits the value of the burned tokens between the two
// sides by their share of the primary pool, not of the pnl-adjusted pool
// value.
func withdrawalOutputs(m *market.Market, params WithdrawalParams, poolValue num.Uint) (long, short num.Uint, err error) {
	prices := params.Prices
	longPrice := prices.LongTokenPrice.Pick(true)
	shortPrice := prices.ShortTokenPrice.Pick(true)

	longValue, err := m.Pools.Primary.LongAmount().Mul(longPrice)
	if err != nil {
		return num.Zero, num.Zero, err
	}
	shortValue, err := m.Pools.Primary.ShortAmount().Mul(shortPrice)
	if err != nil {
		return num.Zero, num.Zero, err
	}
	total, err := longValue.Add(shortValue)
	if err != nil {
		return num.Zero, num.Zero, err
	}
	if total.IsZero() {
		return num.Zero, num.Zero, fmt.Errorf("%w: withdrawal: liquidity pool is empty", model.ErrInvalidPoolValue)
	}

	value, err := marketTokenAmountToUSD(m, params.MarketTokenAmount, poolValue)
	if err != nil {
		return num.Zero, num.Zero, err
	}
	if long, err = value.MulDiv(longValue, total); err != nil {
		return num.Zero, num.Zero, err
	}
	if long, err = long.Div(longPrice); err != nil {
		return num.Zero, num.Zero, err
	}
	if short, err = value.MulDiv(shortValue, total); err != nil {
		return num.Zero, num.Zero, err
	}
	if short, err = short.Div(shortPrice); err != nil {
		return num.Zero, num.Zero, err
	}
	return long, short, nil
}

// withdraw burns liquidity tokens of a staged market under the active swap
// pricing. Fees are always charged at the negative impact rate.
func withdraw(m *market.Market, params WithdrawalParams) (WithdrawalReport, error) {
	r := WithdrawalReport{Params: params}
	prices := params.Prices
	unit := m.Unit()

	var err error
	if r.PoolValue, err = m.PoolValue(prices, market.MaxAfterWithdrawal, false); err != nil {
		return r, err
	}
	if r.PoolValue.IsNegative() {
		return r, fmt.Errorf("%w: withdrawal: pool value %s is negative", model.ErrInvalidPoolValue, r.PoolValue)
	}
	if r.PoolValue.IsZero() {
		return r, fmt.Errorf("%w: withdrawal: pool value is zero", model.ErrInvalidPoolValue)
	}

	long, short, err := withdrawalOutputs(m, params, r.PoolValue.Abs())
	if err != nil {
		return r, err
	}

	feeParams := m.SwapFeeParamsForPricing()
	if r.LongTokenFees, r.LongTokenOutput, err = feeParams.ApplyToAmount(long, false, unit); err != nil {
		return r, err
	}
	if r.ShortTokenFees, r.ShortTokenOutput, err = feeParams.ApplyToAmount(short, false, unit); err != nil {
		return r, err
	}
	if r.LongTokenOutput.LT(params.MinLongTokenAmount) || r.ShortTokenOutput.LT(params.MinShortTokenAmount) {
		return r, fmt.Errorf("%w: outputs %s/%s below min %s/%s", model.ErrInsufficientOutput,
			r.LongTokenOutput, r.ShortTokenOutput, params.MinLongTokenAmount, params.MinShortTokenAmount)
	}

	for _, leg := range []struct {
		isLong bool
		fees   fees.Fees
		output num.Uint
	}{
		{true, r.LongTokenFees, r.LongTokenOutput},
		{false, r.ShortTokenFees, r.ShortTokenOutput},
	} {
		if err := m.ApplyDeltaAmount(pool.ClaimableFee, leg.isLong, leg.fees.FeeAmountForReceiver); err != nil {
			return r, err
		}
		// Everything leaving the pool: the output plus the receiver's cut.
		out, err := leg.output.Add(leg.fees.FeeAmountForReceiver)
		if err != nil {
			return r, err
		}
		if err := removeLiquidity(m, leg.isLong, out); err != nil {
			return r, err
		}
		if err := m.RecordTransferredOut(leg.isLong, leg.output); err != nil {
			return r, err
		}
	}

	for _, isLong := range []bool{true, false} {
		if err := m.ValidateReserve(prices, isLong); err != nil {
			return r, err
		}
		if err := m.ValidateMaxPnl(prices, market.MaxAfterWithdrawal, isLong); err != nil {
			return r, err
		}
	}
	if err := m.Burn(params.MarketTokenAmount); err != nil {
		return r, err
	}
	return r, nil
}
