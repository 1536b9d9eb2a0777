package action

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/fees"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

// DepositParams requests adding side tokens to a market for liquidity
// tokens.
type DepositParams struct {
	LongTokenAmount      num.Uint     `json:"long_token_amount" toml:"long_token_amount"`
	ShortTokenAmount     num.Uint     `json:"short_token_amount" toml:"short_token_amount"`
	MinMarketTokenAmount uint64       `json:"min_market_token_amount" toml:"min_market_token_amount"`
	Prices               model.Prices `json:"prices" toml:"prices"`
}

// DepositReport describes an executed deposit.
type DepositReport struct {
	Params                 DepositParams  `json:"params"`
	Accrual                market.Accrual `json:"accrual"`
	PoolValue              num.Int        `json:"pool_value"`
	PriceImpact            num.Int        `json:"price_impact"`
	LongTokenFees          fees.Fees      `json:"long_token_fees"`
	ShortTokenFees         fees.Fees      `json:"short_token_fees"`
	LongTokenImpactAmount  num.Int        `json:"long_token_impact_amount"`
	ShortTokenImpactAmount num.Int        `json:"short_token_impact_amount"`
	MintAmount             uint64         `json:"mint_amount"`
}

// Deposit mints liquidity tokens for side tokens added to the primary pool.
type Deposit struct {
	market *market.Market
	vis    market.VirtualInventories
	params DepositParams
}

// NewDeposit validates a deposit request.
func NewDeposit(m *market.Market, params DepositParams) (*Deposit, error) {
	if params.LongTokenAmount.IsZero() && params.ShortTokenAmount.IsZero() {
		return nil, fmt.Errorf("%w: deposit of zero amounts", model.ErrEmptyAction)
	}
	if err := params.Prices.Validate(); err != nil {
		return nil, err
	}
	return &Deposit{market: m, params: params}, nil
}

// WithVirtualInventories supplies the inventories the market references.
func (d *Deposit) WithVirtualInventories(vis market.VirtualInventories) *Deposit {
	d.vis = vis
	return d
}

// Execute runs the deposit. On error the market is unchanged.
func (d *Deposit) Execute() (*DepositReport, error) {
	s, err := newStage(d.vis, d.market)
	if err != nil {
		return nil, err
	}
	var report DepositReport
	err = s.run(func() error {
		m := s.market(d.market)
		acc, err := m.Accrue(d.params.Prices)
		if err != nil {
			return err
		}
		return m.WithSwapPricing(market.PricingDeposit, func() error {
			report, err = deposit(m, d.params)
			report.Accrual = acc
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

type depositLeg struct {
	isLong       bool
	amount       num.Uint
	value        num.Uint
	fees         *fees.Fees
	impactAmount *num.Int
}

// deposit adds both legs to a staged market under the active swap pricing
// and mints the liquidity tokens.
func deposit(m *market.Market, params DepositParams) (DepositReport, error) {
	r := DepositReport{Params: params}
	prices := params.Prices
	unit := m.Unit()

	var err error
	if r.PoolValue, err = m.PoolValue(prices, market.MaxAfterDeposit, true); err != nil {
		return r, err
	}
	if r.PoolValue.IsNegative() {
		return r, fmt.Errorf("%w: deposit: pool value %s is negative", model.ErrInvalidPoolValue, r.PoolValue)
	}

	longValue, err := valueAtMid(params.LongTokenAmount, prices.LongTokenPrice)
	if err != nil {
		return r, err
	}
	shortValue, err := valueAtMid(params.ShortTokenAmount, prices.ShortTokenPrice)
	if err != nil {
		return r, err
	}
	longDelta, err := num.ToSigned(longValue)
	if err != nil {
		return r, err
	}
	shortDelta, err := num.ToSigned(shortValue)
	if err != nil {
		return r, err
	}
	if r.PriceImpact, err = m.SwapImpactValue(prices, longDelta, shortDelta); err != nil {
		return r, err
	}
	totalValue, err := longValue.Add(shortValue)
	if err != nil {
		return r, err
	}

	feeParams := m.SwapFeeParamsForPricing()
	isPositive := r.PriceImpact.IsPositive()
	mintValue := num.Zero
	legs := []depositLeg{
		{isLong: true, amount: params.LongTokenAmount, value: longValue, fees: &r.LongTokenFees, impactAmount: &r.LongTokenImpactAmount},
		{isLong: false, amount: params.ShortTokenAmount, value: shortValue, fees: &r.ShortTokenFees, impactAmount: &r.ShortTokenImpactAmount},
	}
	for _, leg := range legs {
		if leg.amount.IsZero() {
			continue
		}
		legImpact, err := r.PriceImpact.MulDiv(leg.value, totalValue)
		if err != nil {
			return r, err
		}
		f, after, err := feeParams.ApplyToAmount(leg.amount, isPositive, unit)
		if err != nil {
			return r, err
		}
		*leg.fees = f
		if err := m.ApplyDeltaAmount(pool.ClaimableFee, leg.isLong, f.FeeAmountForReceiver); err != nil {
			return r, err
		}

		impactAmount, err := applySwapImpact(m, prices, leg.isLong, legImpact)
		if err != nil {
			return r, err
		}
		*leg.impactAmount = impactAmount
		credited, err := creditImpact(after, impactAmount)
		if err != nil {
			return r, err
		}

		poolDelta, err := credited.Add(f.FeeAmountForPool)
		if err != nil {
			return r, err
		}
		if err := addLiquidity(m, leg.isLong, poolDelta); err != nil {
			return r, err
		}
		if err := m.RecordTransferredIn(leg.isLong, leg.amount); err != nil {
			return r, err
		}
		value, err := credited.Mul(prices.CollateralTokenPrice(leg.isLong).Min)
		if err != nil {
			return r, err
		}
		if mintValue, err = mintValue.Add(value); err != nil {
			return r, err
		}
	}

	if r.MintAmount, err = usdToMarketTokenAmount(m, mintValue, r.PoolValue.Abs()); err != nil {
		return r, err
	}
	if r.MintAmount == 0 || r.MintAmount < params.MinMarketTokenAmount {
		return r, fmt.Errorf("%w: minted %d, min %d", model.ErrInsufficientOutput, r.MintAmount, params.MinMarketTokenAmount)
	}
	if err := m.Mint(r.MintAmount); err != nil {
		return r, err
	}

	for _, isLong := range []bool{true, false} {
		if err := m.ValidatePoolAmount(isLong); err != nil {
			return r, err
		}
		if err := m.ValidatePoolValueForDeposit(prices, isLong); err != nil {
			return r, err
		}
		if err := m.ValidateMaxPnl(prices, market.MaxAfterDeposit, isLong); err != nil {
			return r, err
		}
	}
	return r, nil
}

// creditImpact adds a signed impact amount to an amount, failing when a
// negative impact exceeds it.
func creditImpact(amount num.Uint, impact num.Int) (num.Uint, error) {
	if impact.IsNegative() {
		if impact.Abs().GT(amount) {
			return num.Zero, fmt.Errorf("%w: price impact %s exceeds amount %s", model.ErrInsufficientOutput, impact, amount)
		}
		return amount.SatSub(impact.Abs()), nil
	}
	return amount.Add(impact.Abs())
}
