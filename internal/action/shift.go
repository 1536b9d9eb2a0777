package action

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
)

// ShiftParams requests moving liquidity between two markets that share
// their side tokens. Each market is priced with its own snapshot since
// their index tokens may differ.
type ShiftParams struct {
	FromMarketTokenAmount  uint64       `json:"from_market_token_amount" toml:"from_market_token_amount"`
	MinToMarketTokenAmount uint64       `json:"min_to_market_token_amount" toml:"min_to_market_token_amount"`
	FromPrices             model.Prices `json:"from_prices" toml:"from_prices"`
	ToPrices               model.Prices `json:"to_prices" toml:"to_prices"`
}

// ShiftReport describes an executed shift.
type ShiftReport struct {
	Params     ShiftParams      `json:"params"`
	Withdrawal WithdrawalReport `json:"withdrawal"`
	Deposit    DepositReport    `json:"deposit"`
}

// Shift withdraws liquidity from one market and deposits the side tokens
// into another, without swap fees.
type Shift struct {
	from, to *market.Market
	vis    market.VirtualInventories
	params ShiftParams
}

// NewShift validates a shift request.
func NewShift(from, to *market.Market, params ShiftParams) (*Shift, error) {
	if params.FromMarketTokenAmount == 0 {
		return nil, fmt.Errorf("%w: shift of zero market tokens", model.ErrEmptyAction)
	}
	if from == nil || to == nil {
		return nil, fmt.Errorf("%w: shift needs two markets", model.ErrInvalidArgument)
	}
	if !from.Meta.Shiftable(to.Meta) {
		return nil, fmt.Errorf("%w: %s is not shiftable to %s", model.ErrInvalidArgument, from.Name, to.Name)
	}
	if err := params.FromPrices.Validate(); err != nil {
		return nil, fmt.Errorf("from market: %w", err)
	}
	if err := params.ToPrices.Validate(); err != nil {
		return nil, fmt.Errorf("to market: %w", err)
	}
	return &Shift{from: from, to: to, params: params}, nil
}

// WithVirtualInventories supplies the inventories either market references.
func (s *Shift) WithVirtualInventories(vis market.VirtualInventories) *Shift {
	s.vis = vis
	return s
}

// Execute runs the shift. The source market is processed first. On error
// neither market is changed.
func (s *Shift) Execute() (*ShiftReport, error) {
	st, err := newStage(s.vis, s.from, s.to)
	if err != nil {
		return nil, err
	}
	report := ShiftReport{Params: s.params}
	err = st.run(func() error {
		from, to := st.market(s.from), st.market(s.to)
		fromAcc, err := from.Accrue(s.params.FromPrices)
		if err != nil {
			return err
		}
		toAcc, err := to.Accrue(s.params.ToPrices)
		if err != nil {
			return err
		}

		err = from.WithSwapPricing(market.PricingShift, func() error {
			report.Withdrawal, err = withdraw(from, WithdrawalParams{
				MarketTokenAmount: s.params.FromMarketTokenAmount,
				Prices:            s.params.FromPrices,
			})
			return err
		})
		if err != nil {
			return err
		}
		report.Withdrawal.Accrual = fromAcc

		return to.WithSwapPricing(market.PricingShift, func() error {
			report.Deposit, err = deposit(to, DepositParams{
				LongTokenAmount:      report.Withdrawal.LongTokenOutput,
				ShortTokenAmount:     report.Withdrawal.ShortTokenOutput,
				MinMarketTokenAmount: s.params.MinToMarketTokenAmount,
				Prices:               s.params.ToPrices,
			})
			report.Deposit.Accrual = toAcc
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}
