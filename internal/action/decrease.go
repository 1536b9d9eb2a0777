package action

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/fees"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/position"
)

// DecreaseKind tells a trader decrease apart from the forced cuts.
type DecreaseKind uint8

const (
	DecreaseNormal DecreaseKind = iota
	DecreaseLiquidation
	DecreaseAutoDeleverage
)

func (k DecreaseKind) String() string {
	switch k {
	case DecreaseNormal:
		return "decrease"
	case DecreaseLiquidation:
		return "liquidation"
	case DecreaseAutoDeleverage:
		return "auto_deleverage"
	default:
		return fmt.Sprintf("decrease_kind(%d)", uint8(k))
	}
}

// MarshalText encodes the kind by name.
func (k DecreaseKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// DecreaseParams requests removing size or collateral from a position.
//
// When FinalOutputToken is set and differs from the collateral token, the
// collateral output is swapped along the path given to WithSwapPath,
// priced by SwapPrices.
type DecreaseParams struct {
	SizeDeltaUSD               num.Uint       `json:"size_delta_usd" toml:"size_delta_usd"`
	CollateralWithdrawalAmount num.Uint       `json:"collateral_withdrawal_amount" toml:"collateral_withdrawal_amount"`
	AcceptablePrice            num.Uint       `json:"acceptable_price" toml:"acceptable_price"`
	Prices                     model.Prices   `json:"prices" toml:"prices"`
	FinalOutputToken           string         `json:"final_output_token,omitempty" toml:"final_output_token"`
	MinOutputAmount            num.Uint       `json:"min_output_amount" toml:"min_output_amount"`
	SwapPrices                 []model.Prices `json:"swap_prices,omitempty" toml:"swap_prices"`
}

// DecreaseReport describes an executed decrease, liquidation or
// auto-deleveraging.
type DecreaseReport struct {
	Params            DecreaseParams    `json:"params"`
	Kind              DecreaseKind      `json:"kind"`
	Accrual           market.Accrual    `json:"accrual"`
	IsFullClose       bool              `json:"is_full_close"`
	Fees              fees.PositionFees `json:"fees"`
	Pnl               position.Pnl      `json:"pnl"`
	PriceImpactValue  num.Int           `json:"price_impact_value"`
	PriceImpactAmount num.Int           `json:"price_impact_amount"`
	// PriceImpactDiff is negative impact above the cap, not charged.
	PriceImpactDiff num.Uint `json:"price_impact_diff"`
	ExecutionPrice  num.Uint `json:"execution_price"`
	// OutputAmount is paid in the collateral token.
	OutputAmount num.Uint `json:"output_amount"`
	// SecondaryOutputAmount is profit paid in the position side token when
	// it differs from the collateral token.
	SecondaryOutputAmount num.Uint `json:"secondary_output_amount"`
	// Shortfall is the part of losses and fees a forced cut could not
	// collect from the position.
	Shortfall         num.Uint          `json:"shortfall"`
	Swap              []HopReport       `json:"swap,omitempty"`
	FinalOutputToken  string            `json:"final_output_token,omitempty"`
	FinalOutputAmount num.Uint          `json:"final_output_amount"`
	Position          position.Position `json:"position"`
}

// DecreasePosition shrinks or closes a position at the trader's request.
type DecreasePosition struct {
	market   *market.Market
	position *position.Position
	swapPath []*market.Market
	vis      market.VirtualInventories
	params   DecreaseParams
}

// NewDecreasePosition validates a decrease request.
func NewDecreasePosition(m *market.Market, p *position.Position, params DecreaseParams) (*DecreasePosition, error) {
	if err := checkDecrease(m, p, params); err != nil {
		return nil, err
	}
	if params.SizeDeltaUSD.IsZero() && params.CollateralWithdrawalAmount.IsZero() {
		return nil, fmt.Errorf("%w: decrease with zero size and collateral", model.ErrEmptyAction)
	}
	return &DecreasePosition{market: m, position: p, params: params}, nil
}

func checkDecrease(m *market.Market, p *position.Position, params DecreaseParams) error {
	if p == nil {
		return fmt.Errorf("%w: nil position", model.ErrInvalidArgument)
	}
	if err := p.CheckMarket(m); err != nil {
		return err
	}
	if p.IsEmpty() {
		return fmt.Errorf("%w: position %s is empty", model.ErrInvalidArgument, p.Key())
	}
	if params.SizeDeltaUSD.GT(p.SizeInUSD) {
		return fmt.Errorf("%w: size delta %s exceeds size %s", model.ErrInvalidArgument, params.SizeDeltaUSD, p.SizeInUSD)
	}
	return params.Prices.Validate()
}

// WithSwapPath sets the markets the collateral output is swapped through.
func (a *DecreasePosition) WithSwapPath(path []*market.Market) *DecreasePosition {
	a.swapPath = path
	return a
}

// WithVirtualInventories supplies the inventories the markets reference.
func (a *DecreasePosition) WithVirtualInventories(vis market.VirtualInventories) *DecreasePosition {
	a.vis = vis
	return a
}

// Execute runs the decrease. On error neither markets nor the position
// change.
func (a *DecreasePosition) Execute() (*DecreaseReport, error) {
	if err := validateOutputSwap(a.swapPath, a.position.CollateralToken, a.params); err != nil {
		return nil, err
	}
	st, err := newStage(a.vis, append([]*market.Market{a.market}, a.swapPath...)...)
	if err != nil {
		return nil, err
	}
	staged := a.position.Clone()
	report := DecreaseReport{Params: a.params, Kind: DecreaseNormal}
	err = st.run(func() error {
		m := st.market(a.market)
		if report.Accrual, err = m.Accrue(a.params.Prices); err != nil {
			return err
		}
		if err := decrease(m, staged, a.params, DecreaseNormal, &report); err != nil {
			return err
		}
		return swapOutput(st, a.swapPath, a.params, &report)
	})
	if err != nil {
		return nil, err
	}
	*a.position = *staged
	report.Position = *staged
	return &report, nil
}

func validateOutputSwap(path []*market.Market, collateral string, params DecreaseParams) error {
	if params.FinalOutputToken == "" || params.FinalOutputToken == collateral {
		if len(path) > 0 {
			return fmt.Errorf("%w: swap path given without a final output token", model.ErrInvalidArgument)
		}
		return nil
	}
	return validateCollateralSwap(path, collateral, params.FinalOutputToken, params.SwapPrices)
}

// swapOutput swaps the collateral output along the staged path, if any,
// and checks the final amount.
func swapOutput(st *stage, path []*market.Market, params DecreaseParams, r *DecreaseReport) error {
	r.FinalOutputToken, r.FinalOutputAmount = r.Position.CollateralToken, r.OutputAmount
	if len(path) > 0 && !r.OutputAmount.IsZero() {
		staged := make([]*market.Market, len(path))
		for i, m := range path {
			staged[i] = st.market(m)
			if _, err := staged[i].Accrue(params.SwapPrices[i]); err != nil {
				return err
			}
		}
		hops, out, err := swapAlongPath(staged, params.SwapPrices, r.FinalOutputToken, r.OutputAmount)
		if err != nil {
			return err
		}
		r.Swap, r.FinalOutputToken, r.FinalOutputAmount = hops, params.FinalOutputToken, out
	}
	if r.FinalOutputAmount.LT(params.MinOutputAmount) {
		return fmt.Errorf("%w: output %s below min %s", model.ErrInsufficientOutput, r.FinalOutputAmount, params.MinOutputAmount)
	}
	return nil
}

// decreaseExecutionPrice spreads the impact over the closed tokens at the
// position's average price: price + (size / tokens) * impact / delta, with
// the impact sign flipped for shorts.
func decreaseExecutionPrice(prices model.Prices, p *position.Position, sizeDelta num.Uint, impact num.Int) (num.Uint, error) {
	price := prices.IndexTokenPrice.Pick(!p.IsLong)
	if sizeDelta.IsZero() || p.SizeInTokens.IsZero() {
		return price, nil
	}
	adjusted := impact
	if !p.IsLong {
		var err error
		if adjusted, err = impact.Neg(); err != nil {
			return num.Zero, err
		}
	}
	adjustment, err := adjusted.MulDiv(p.SizeInUSD, p.SizeInTokens)
	if err != nil {
		return num.Zero, err
	}
	if adjustment, err = adjustment.MulDiv(num.NewUint(1), sizeDelta); err != nil {
		return num.Zero, err
	}
	execution, err := adjustment.AddUint(price)
	if err != nil {
		return num.Zero, err
	}
	if !execution.IsPositive() {
		return num.Zero, fmt.Errorf("%w: execution price %s", model.ErrComputation, execution)
	}
	return execution.Abs(), nil
}

// decreaseImpact returns the impact of closing sizeDelta with a positive
// impact capped by the impact pool and a negative one capped by the max
// negative factor. The uncharged excess is returned separately.
func decreaseImpact(m *market.Market, prices model.Prices, p *position.Position, sizeDelta num.Uint, isLiquidation bool) (num.Int, num.Uint, error) {
	delta, err := num.NegativeOf(sizeDelta)
	if err != nil {
		return num.Int{}, num.Zero, err
	}
	impact, err := m.PositionImpactValue(p.IsLong, delta)
	if err != nil {
		return num.Int{}, num.Zero, err
	}
	if impact.IsPositive() {
		capped, err := cappedPositionImpact(m, prices, impact, sizeDelta)
		return capped, num.Zero, err
	}
	factor := m.Config.MaxPositionImpactFactorForNegative
	if isLiquidation {
		factor = m.Config.MaxPositionImpactFactorForLiquidations
	}
	maxNegative, err := num.ApplyFactor(sizeDelta, factor, m.Unit())
	if err != nil {
		return num.Int{}, num.Zero, err
	}
	if impact.Abs().LTE(maxNegative) {
		return impact, num.Zero, nil
	}
	capped, err := num.NegativeOf(maxNegative)
	return capped, impact.Abs().SatSub(maxNegative), err
}

// seizeSecondary takes as much of the secondary output as covers owed
// collateral tokens, valuing both at their min price. It returns the
// remaining secondary output, the seized amount and what is still owed.
func seizeSecondary(secondaryPrice, collateralPrice model.Price, secondary, owed num.Uint) (rest, seized, stillOwed num.Uint, err error) {
	if secondary.IsZero() || owed.IsZero() {
		return secondary, num.Zero, owed, nil
	}
	owedValue, err := owed.Mul(collateralPrice.Min)
	if err != nil {
		return num.Zero, num.Zero, num.Zero, err
	}
	needed, err := owedValue.DivCeil(secondaryPrice.Min)
	if err != nil {
		return num.Zero, num.Zero, num.Zero, err
	}
	if needed.LTE(secondary) {
		return secondary.SatSub(needed), needed, num.Zero, nil
	}
	seizedValue, err := secondary.Mul(secondaryPrice.Min)
	if err != nil {
		return num.Zero, num.Zero, num.Zero, err
	}
	covered, err := seizedValue.Div(collateralPrice.Min)
	if err != nil {
		return num.Zero, num.Zero, num.Zero, err
	}
	return num.Zero, secondary, owed.SatSub(covered), nil
}

// decrease applies a decrease to a staged market and position. Profit and
// positive impact are paid from the pool in the position side token. Losses,
// negative impact and fees are taken from that profit first when it is paid
// in the collateral token, then from collateral. A forced cut that cannot
// cover them also takes profit paid in the other token, then records the
// shortfall instead of failing.
func decrease(m *market.Market, p *position.Position, params DecreaseParams, kind DecreaseKind, r *DecreaseReport) error {
	prices := params.Prices
	sizeDelta := params.SizeDeltaUSD
	isCut := kind != DecreaseNormal
	isLiquidation := kind == DecreaseLiquidation
	collateralIsLong := p.CollateralIsLong(m)
	collateralPrice := p.CollateralPrice(m, prices)
	r.Kind = kind
	r.IsFullClose = !sizeDelta.IsZero() && sizeDelta.EQ(p.SizeInUSD)

	var err error
	if !sizeDelta.IsZero() {
		if r.PriceImpactValue, r.PriceImpactDiff, err = decreaseImpact(m, prices, p, sizeDelta, isLiquidation); err != nil {
			return err
		}
		if r.Pnl, err = p.PnlValue(m, prices, sizeDelta); err != nil {
			return err
		}
		if r.ExecutionPrice, err = decreaseExecutionPrice(prices, p, sizeDelta, r.PriceImpactValue); err != nil {
			return err
		}
		if !isCut {
			if err := checkAcceptablePrice(r.ExecutionPrice, params.AcceptablePrice, !p.IsLong); err != nil {
				return err
			}
		}
		if r.PriceImpactAmount, err = settlePositionImpact(m, prices, r.PriceImpactValue); err != nil {
			return err
		}
	}
	if r.Fees, err = p.PendingFees(m, prices, sizeDelta, r.PriceImpactValue.IsPositive(), isLiquidation); err != nil {
		return err
	}
	cost, err := r.Fees.TotalCostAmount()
	if err != nil {
		return err
	}

	// Split pnl and impact into what the pool pays and what the position owes.
	gainValue, lossValue := num.Zero, num.Zero
	for _, v := range []num.Int{r.Pnl.Realized, r.PriceImpactValue} {
		if v.IsNegative() {
			lossValue, err = lossValue.Add(v.Abs())
		} else {
			gainValue, err = gainValue.Add(v.Abs())
		}
		if err != nil {
			return err
		}
	}
	lossAmount, err := lossValue.DivCeil(collateralPrice.Min)
	if err != nil {
		return err
	}
	pnlIsLong := p.IsLong
	if m.IsPure() {
		pnlIsLong = collateralIsLong
	}
	gainAmount, err := gainValue.Div(prices.CollateralTokenPrice(pnlIsLong).Max)
	if err != nil {
		return err
	}
	if err := removeLiquidity(m, pnlIsLong, gainAmount); err != nil {
		return fmt.Errorf("%w: cannot pay profit of %s", err, gainAmount)
	}

	output, secondary := num.Zero, num.Zero
	if pnlIsLong == collateralIsLong {
		output = gainAmount
	} else {
		secondary = gainAmount
	}
	owed, err := lossAmount.Add(cost)
	if err != nil {
		return err
	}
	fromOutput := num.Min(owed, output)
	output, owed = output.SatSub(fromOutput), owed.SatSub(fromOutput)
	collateral := p.CollateralAmount
	fromCollateral := num.Min(owed, collateral)
	collateral, owed = collateral.SatSub(fromCollateral), owed.SatSub(fromCollateral)

	if owed.IsZero() {
		if err := addLiquidity(m, collateralIsLong, lossAmount); err != nil {
			return err
		}
		if err := payPositionFees(m, collateralIsLong, r.Fees); err != nil {
			return err
		}
	} else {
		if !isCut {
			return fmt.Errorf("%w: short by %s to cover losses and fees", model.ErrInsufficientCollateral, owed)
		}
		// Whatever could be collected stays with the pool, including profit
		// that would have been paid in the other token.
		collected, err := fromOutput.Add(fromCollateral)
		if err != nil {
			return err
		}
		if err := addLiquidity(m, collateralIsLong, collected); err != nil {
			return err
		}
		var seized num.Uint
		if secondary, seized, owed, err = seizeSecondary(prices.CollateralTokenPrice(pnlIsLong), collateralPrice, secondary, owed); err != nil {
			return err
		}
		if err := addLiquidity(m, pnlIsLong, seized); err != nil {
			return err
		}
		r.Shortfall = owed
	}

	switch {
	case r.IsFullClose:
		if output, err = output.Add(collateral); err != nil {
			return err
		}
		collateral = num.Zero
	case !params.CollateralWithdrawalAmount.IsZero():
		if params.CollateralWithdrawalAmount.GT(collateral) {
			return fmt.Errorf("%w: withdrawal %s exceeds collateral %s", model.ErrInsufficientCollateral, params.CollateralWithdrawalAmount, collateral)
		}
		collateral = collateral.SatSub(params.CollateralWithdrawalAmount)
		if output, err = output.Add(params.CollateralWithdrawalAmount); err != nil {
			return err
		}
	}
	r.OutputAmount, r.SecondaryOutputAmount = output, secondary

	prevSize, prevFactor := p.SizeInUSD, p.BorrowingFactor
	if !sizeDelta.IsZero() {
		delta, err := num.NegativeOf(sizeDelta)
		if err != nil {
			return err
		}
		if err := m.ApplyOpenInterestDelta(p.IsLong, collateralIsLong, delta); err != nil {
			return err
		}
		if err := m.SubtractAmount(pool.OpenInterestInTokens(p.IsLong), collateralIsLong, r.Pnl.SizeDeltaInTokens); err != nil {
			return err
		}
	}
	collateralDelta, err := signedDelta(p.CollateralAmount, collateral)
	if err != nil {
		return err
	}
	if err := m.ApplyDelta(pool.CollateralSum(p.IsLong), collateralIsLong, collateralDelta); err != nil {
		return err
	}

	p.SizeInUSD = p.SizeInUSD.SatSub(sizeDelta)
	if p.SizeInTokens, err = p.SizeInTokens.Sub(r.Pnl.SizeDeltaInTokens); err != nil {
		return err
	}
	p.CollateralAmount = collateral
	if err := p.UpdateSnapshots(m); err != nil {
		return err
	}
	if err := m.UpdateTotalBorrowing(p.IsLong, prevSize, prevFactor, p.SizeInUSD, p.BorrowingFactor); err != nil {
		return err
	}

	if err := m.RecordTransferredOut(collateralIsLong, output); err != nil {
		return err
	}
	if err := m.RecordTransferredOut(pnlIsLong, secondary); err != nil {
		return err
	}
	r.Position = *p
	return p.Validate(m, prices, !isCut, !isCut)
}
