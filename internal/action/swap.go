package action

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/fees"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

// SwapParams requests swapping TokenIn into TokenOut along a path of
// markets. Prices holds one snapshot per hop, in path order.
type SwapParams struct {
	TokenIn         string         `json:"token_in" toml:"token_in"`
	TokenOut        string         `json:"token_out" toml:"token_out"`
	AmountIn        num.Uint       `json:"amount_in" toml:"amount_in"`
	MinOutputAmount num.Uint       `json:"min_output_amount" toml:"min_output_amount"`
	Prices          []model.Prices `json:"prices" toml:"prices"`
}

// HopReport describes the swap executed on one market of a path.
type HopReport struct {
	Market       string    `json:"market"`
	TokenIn      string    `json:"token_in"`
	TokenOut     string    `json:"token_out"`
	AmountIn     num.Uint  `json:"amount_in"`
	PriceImpact  num.Int   `json:"price_impact"`
	Fees         fees.Fees `json:"fees"`
	ImpactAmount num.Int   `json:"impact_amount"`
	AmountOut    num.Uint  `json:"amount_out"`
}

// SwapReport describes an executed swap.
type SwapReport struct {
	Params    SwapParams       `json:"params"`
	Accruals  []market.Accrual `json:"accruals"`
	Hops      []HopReport      `json:"hops"`
	TokenOut  string           `json:"token_out"`
	AmountOut num.Uint         `json:"amount_out"`
}

// Swap routes an amount through one or more markets, each hop feeding its
// output to the next.
type Swap struct {
	path   []*market.Market
	vis    market.VirtualInventories
	params SwapParams
}

// NewSwap validates a swap request against its path.
func NewSwap(path []*market.Market, params SwapParams) (*Swap, error) {
	if params.AmountIn.IsZero() {
		return nil, fmt.Errorf("%w: swap of zero amount", model.ErrEmptyAction)
	}
	if err := ValidateSwapPath(path, params.TokenIn, params.TokenOut); err != nil {
		return nil, err
	}
	if len(params.Prices) != len(path) {
		return nil, fmt.Errorf("%w: %d price snapshots for %d hops", model.ErrInvalidArgument, len(params.Prices), len(path))
	}
	for i, p := range params.Prices {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return &Swap{path: path, params: params}, nil
}

// ValidateSwapPath checks that every market is swappable and appears once,
// that each hop accepts the token produced by the previous one, and that
// the path ends at tokenOut. An empty tokenOut accepts any final token.
func ValidateSwapPath(path []*market.Market, tokenIn, tokenOut string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty swap path", model.ErrInvalidArgument)
	}
	seen := make(map[string]bool, len(path))
	token := tokenIn
	for i, m := range path {
		if m == nil {
			return fmt.Errorf("%w: nil market at hop %d", model.ErrInvalidArgument, i)
		}
		if seen[m.Meta.MarketToken] {
			return fmt.Errorf("%w: market %s repeated in swap path", model.ErrInvalidArgument, m.Name)
		}
		seen[m.Meta.MarketToken] = true
		if !m.Meta.Swappable() {
			return fmt.Errorf("%w: market %s is not swappable", model.ErrInvalidArgument, m.Name)
		}
		next, err := m.Meta.Opposite(token)
		if err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
		token = next
	}
	if tokenOut != "" && token != tokenOut {
		return fmt.Errorf("%w: swap path ends at %s, expected %s", model.ErrInvalidArgument, token, tokenOut)
	}
	return nil
}

// WithVirtualInventories supplies the inventories the path references.
func (s *Swap) WithVirtualInventories(vis market.VirtualInventories) *Swap {
	s.vis = vis
	return s
}

// Execute runs the swap hop by hop. On error no market is changed.
func (s *Swap) Execute() (*SwapReport, error) {
	st, err := newStage(s.vis, s.path...)
	if err != nil {
		return nil, err
	}
	report := SwapReport{Params: s.params}
	err = st.run(func() error {
		staged := make([]*market.Market, len(s.path))
		for i, m := range s.path {
			staged[i] = st.market(m)
			acc, err := staged[i].Accrue(s.params.Prices[i])
			if err != nil {
				return err
			}
			report.Accruals = append(report.Accruals, acc)
		}
		hops, out, err := swapAlongPath(staged, s.params.Prices, s.params.TokenIn, s.params.AmountIn)
		if err != nil {
			return err
		}
		report.Hops = hops
		report.TokenOut = hops[len(hops)-1].TokenOut
		report.AmountOut = out
		if out.LT(s.params.MinOutputAmount) {
			return fmt.Errorf("%w: output %s below min %s", model.ErrInsufficientOutput, out, s.params.MinOutputAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// swapAlongPath runs the hops of a validated path on staged markets.
func swapAlongPath(path []*market.Market, prices []model.Prices, tokenIn string, amountIn num.Uint) ([]HopReport, num.Uint, error) {
	hops := make([]HopReport, 0, len(path))
	token, amount := tokenIn, amountIn
	for i, m := range path {
		var hop HopReport
		err := m.WithSwapPricing(market.PricingSwap, func() error {
			var err error
			hop, err = swap(m, prices[i], token, amount)
			return err
		})
		if err != nil {
			return nil, num.Zero, fmt.Errorf("hop %d (%s): %w", i, m.Name, err)
		}
		hops = append(hops, hop)
		token, amount = hop.TokenOut, hop.AmountOut
	}
	return hops, amount, nil
}

// swap exchanges amountIn of tokenIn for the other side token of a staged
// market. A negative impact is collected from the input side; a positive
// one is paid from the output side's impact pool.
func swap(m *market.Market, prices model.Prices, tokenIn string, amountIn num.Uint) (HopReport, error) {
	r := HopReport{Market: m.Name, TokenIn: tokenIn, AmountIn: amountIn}
	if !m.Meta.Swappable() {
		return r, fmt.Errorf("%w: market %s is not swappable", model.ErrInvalidArgument, m.Name)
	}
	if amountIn.IsZero() {
		return r, fmt.Errorf("%w: swap of zero amount", model.ErrEmptyAction)
	}
	isLongIn, err := m.Meta.TokenSide(tokenIn)
	if err != nil {
		return r, err
	}
	if r.TokenOut, err = m.Meta.Opposite(tokenIn); err != nil {
		return r, err
	}
	priceIn := prices.CollateralTokenPrice(isLongIn)
	priceOut := prices.CollateralTokenPrice(!isLongIn)
	unit := m.Unit()

	value, err := valueAtMid(amountIn, priceIn)
	if err != nil {
		return r, err
	}
	in, err := num.ToSigned(value)
	if err != nil {
		return r, err
	}
	out, err := num.NegativeOf(value)
	if err != nil {
		return r, err
	}
	longDelta, shortDelta := in, out
	if !isLongIn {
		longDelta, shortDelta = out, in
	}
	if r.PriceImpact, err = m.SwapImpactValue(prices, longDelta, shortDelta); err != nil {
		return r, err
	}

	f, after, err := m.SwapFeeParamsForPricing().ApplyToAmount(amountIn, r.PriceImpact.IsPositive(), unit)
	if err != nil {
		return r, err
	}
	r.Fees = f
	if err := m.ApplyDeltaAmount(pool.ClaimableFee, isLongIn, f.FeeAmountForReceiver); err != nil {
		return r, err
	}

	if r.PriceImpact.IsNegative() {
		if r.ImpactAmount, err = applySwapImpact(m, prices, isLongIn, r.PriceImpact); err != nil {
			return r, err
		}
		if after, err = creditImpact(after, r.ImpactAmount); err != nil {
			return r, err
		}
	}
	poolOut, err := after.MulDiv(priceIn.Min, priceOut.Max)
	if err != nil {
		return r, err
	}
	r.AmountOut = poolOut
	if r.PriceImpact.IsPositive() {
		if r.ImpactAmount, err = applySwapImpact(m, prices, !isLongIn, r.PriceImpact); err != nil {
			return r, err
		}
		if r.AmountOut, err = creditImpact(poolOut, r.ImpactAmount); err != nil {
			return r, err
		}
	}

	poolIn, err := after.Add(f.FeeAmountForPool)
	if err != nil {
		return r, err
	}
	if err := addLiquidity(m, isLongIn, poolIn); err != nil {
		return r, err
	}
	if err := removeLiquidity(m, !isLongIn, poolOut); err != nil {
		return r, fmt.Errorf("%w: not enough %s liquidity", err, r.TokenOut)
	}
	if err := m.RecordTransferredIn(isLongIn, amountIn); err != nil {
		return r, err
	}
	if err := m.RecordTransferredOut(!isLongIn, r.AmountOut); err != nil {
		return r, err
	}

	if err := m.ValidatePoolAmount(isLongIn); err != nil {
		return r, err
	}
	if err := m.ValidateReserve(prices, !isLongIn); err != nil {
		return r, err
	}
	for _, isLong := range []bool{true, false} {
		if err := m.ValidateMaxPnl(prices, market.MaxAfterWithdrawal, isLong); err != nil {
			return r, err
		}
	}
	return r, nil
}
