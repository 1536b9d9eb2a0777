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

// IncreaseParams requests adding collateral and size to a position.
//
// When InitialCollateralToken differs from the position's collateral
// token, the collateral is first swapped along the swap path given to
// WithSwapPath, priced by SwapPrices.
type IncreaseParams struct {
	InitialCollateralToken    string         `json:"initial_collateral_token,omitempty" toml:"initial_collateral_token"`
	CollateralIncrementAmount num.Uint       `json:"collateral_increment_amount" toml:"collateral_increment_amount"`
	SizeDeltaUSD              num.Uint       `json:"size_delta_usd" toml:"size_delta_usd"`
	AcceptablePrice           num.Uint       `json:"acceptable_price" toml:"acceptable_price"`
	Prices                    model.Prices   `json:"prices" toml:"prices"`
	SwapPrices                []model.Prices `json:"swap_prices,omitempty" toml:"swap_prices"`
}

// IncreaseReport describes an executed increase.
type IncreaseReport struct {
	Params                IncreaseParams    `json:"params"`
	Accrual               market.Accrual    `json:"accrual"`
	Swap                  []HopReport       `json:"swap,omitempty"`
	CollateralInAmount    num.Uint          `json:"collateral_in_amount"`
	Fees                  fees.PositionFees `json:"fees"`
	PriceImpactValue      num.Int           `json:"price_impact_value"`
	PriceImpactAmount     num.Int           `json:"price_impact_amount"`
	SizeDeltaInTokens     num.Uint          `json:"size_delta_in_tokens"`
	ExecutionPrice        num.Uint          `json:"execution_price"`
	CollateralDeltaAmount num.Int           `json:"collateral_delta_amount"`
	Position              position.Position `json:"position"`
}

// IncreasePosition opens or grows a position.
type IncreasePosition struct {
	market   *market.Market
	position *position.Position
	swapPath []*market.Market
	vis      market.VirtualInventories
	params   IncreaseParams
}

// NewIncreasePosition validates an increase request.
func NewIncreasePosition(m *market.Market, p *position.Position, params IncreaseParams) (*IncreasePosition, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil position", model.ErrInvalidArgument)
	}
	if err := p.CheckMarket(m); err != nil {
		return nil, err
	}
	if params.CollateralIncrementAmount.IsZero() && params.SizeDeltaUSD.IsZero() {
		return nil, fmt.Errorf("%w: increase with zero collateral and size", model.ErrEmptyAction)
	}
	if err := params.Prices.Validate(); err != nil {
		return nil, err
	}
	return &IncreasePosition{market: m, position: p, params: params}, nil
}

// WithSwapPath sets the markets the initial collateral is swapped through.
func (a *IncreasePosition) WithSwapPath(path []*market.Market) *IncreasePosition {
	a.swapPath = path
	return a
}

// WithVirtualInventories supplies the inventories the markets reference.
func (a *IncreasePosition) WithVirtualInventories(vis market.VirtualInventories) *IncreasePosition {
	a.vis = vis
	return a
}

// Execute runs the increase. The swap path is processed before the
// position market. On error neither markets nor the position change.
func (a *IncreasePosition) Execute() (*IncreaseReport, error) {
	if err := validateCollateralSwap(a.swapPath, a.params.InitialCollateralToken, a.position.CollateralToken, a.params.SwapPrices); err != nil {
		return nil, err
	}
	st, err := newStage(a.vis, append(append([]*market.Market{}, a.swapPath...), a.market)...)
	if err != nil {
		return nil, err
	}
	staged := a.position.Clone()
	report := IncreaseReport{Params: a.params}
	err = st.run(func() error {
		collateralIn := a.params.CollateralIncrementAmount
		if len(a.swapPath) > 0 && !collateralIn.IsZero() {
			path := make([]*market.Market, len(a.swapPath))
			for i, m := range a.swapPath {
				path[i] = st.market(m)
				if _, err := path[i].Accrue(a.params.SwapPrices[i]); err != nil {
					return err
				}
			}
			hops, out, err := swapAlongPath(path, a.params.SwapPrices, a.params.InitialCollateralToken, collateralIn)
			if err != nil {
				return err
			}
			report.Swap, collateralIn = hops, out
		}

		m := st.market(a.market)
		if report.Accrual, err = m.Accrue(a.params.Prices); err != nil {
			return err
		}
		return increase(m, staged, a.params, collateralIn, &report)
	})
	if err != nil {
		return nil, err
	}
	*a.position = *staged
	report.Position = *staged
	return &report, nil
}

// validateCollateralSwap checks an optional swap from the initial token to
// the collateral token.
func validateCollateralSwap(path []*market.Market, initial, collateral string, prices []model.Prices) error {
	if len(path) == 0 {
		if initial != "" && initial != collateral {
			return fmt.Errorf("%w: %s needs a swap path to %s", model.ErrInvalidArgument, initial, collateral)
		}
		return nil
	}
	if err := ValidateSwapPath(path, initial, collateral); err != nil {
		return err
	}
	if len(prices) != len(path) {
		return fmt.Errorf("%w: %d price snapshots for %d hops", model.ErrInvalidArgument, len(prices), len(path))
	}
	for i, p := range prices {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return nil
}

// cappedPositionImpact bounds a positive impact by the value of the
// position impact pool and by the max positive impact factor.
func cappedPositionImpact(m *market.Market, prices model.Prices, impact num.Int, sizeDeltaUSD num.Uint) (num.Int, error) {
	if !impact.IsPositive() {
		return impact, nil
	}
	poolValue, err := m.Pools.PositionImpact.Amount(true).Mul(prices.IndexTokenPrice.Min)
	if err != nil {
		return num.Int{}, err
	}
	maxByFactor, err := num.ApplyFactor(sizeDeltaUSD, m.Config.MaxPositionImpactFactorForPositive, m.Unit())
	if err != nil {
		return num.Int{}, err
	}
	return num.ToSigned(num.Min(impact.Abs(), num.Min(poolValue, maxByFactor)))
}

// settlePositionImpact moves index tokens in or out of the position impact
// pool for an impact value and returns the signed token amount.
func settlePositionImpact(m *market.Market, prices model.Prices, impact num.Int) (num.Int, error) {
	switch {
	case impact.IsPositive():
		amount, err := impact.Abs().DivCeil(prices.IndexTokenPrice.Min)
		if err != nil {
			return num.Int{}, err
		}
		amount = num.Min(amount, m.Pools.PositionImpact.Amount(true))
		if err := m.SubtractAmount(pool.PositionImpact, true, amount); err != nil {
			return num.Int{}, err
		}
		return num.ToSigned(amount)
	case impact.IsNegative():
		amount, err := impact.Abs().Div(prices.IndexTokenPrice.Max)
		if err != nil {
			return num.Int{}, err
		}
		if err := m.ApplyDeltaAmount(pool.PositionImpact, true, amount); err != nil {
			return num.Int{}, err
		}
		return num.NegativeOf(amount)
	}
	return num.Int{}, nil
}

// increaseSizeInTokens converts a size delta into index tokens at the
// price that is worse for the trader, adjusted by the impact value.
func increaseSizeInTokens(prices model.Prices, isLong bool, sizeDeltaUSD num.Uint, impact num.Int) (num.Uint, error) {
	price := prices.IndexTokenPrice
	var base num.Uint
	var err error
	if isLong {
		base, err = sizeDeltaUSD.Div(price.Max)
	} else {
		base, err = sizeDeltaUSD.DivCeil(price.Min)
	}
	if err != nil {
		return num.Zero, err
	}
	var impactTokens num.Uint
	if impact.IsPositive() {
		impactTokens, err = impact.Abs().Div(price.Max)
	} else {
		impactTokens, err = impact.Abs().DivCeil(price.Min)
	}
	if err != nil {
		return num.Zero, err
	}
	// Longs gain tokens from a positive impact, shorts from a negative one.
	if impact.IsPositive() == isLong {
		return base.Add(impactTokens)
	}
	if impactTokens.GTE(base) {
		return num.Zero, fmt.Errorf("%w: price impact %s consumes the whole size", model.ErrComputation, impact)
	}
	return base.SatSub(impactTokens), nil
}

// checkAcceptablePrice rejects an execution price on the wrong side of the
// acceptable price. A zero acceptable price imposes no bound when the
// requirement is an upper bound.
func checkAcceptablePrice(execution, acceptable num.Uint, upperBound bool) error {
	if upperBound {
		if !acceptable.IsZero() && execution.GT(acceptable) {
			return fmt.Errorf("%w: %s > %s", model.ErrAcceptablePrice, execution, acceptable)
		}
		return nil
	}
	if execution.LT(acceptable) {
		return fmt.Errorf("%w: %s < %s", model.ErrAcceptablePrice, execution, acceptable)
	}
	return nil
}

func increase(m *market.Market, p *position.Position, params IncreaseParams, collateralIn num.Uint, r *IncreaseReport) error {
	prices := params.Prices
	sizeDelta := params.SizeDeltaUSD
	collateralIsLong := p.CollateralIsLong(m)
	r.CollateralInAmount = collateralIn
	if err := m.RecordTransferredIn(collateralIsLong, collateralIn); err != nil {
		return err
	}

	delta, err := num.ToSigned(sizeDelta)
	if err != nil {
		return err
	}
	if !sizeDelta.IsZero() {
		impact, err := m.PositionImpactValue(p.IsLong, delta)
		if err != nil {
			return err
		}
		if r.PriceImpactValue, err = cappedPositionImpact(m, prices, impact, sizeDelta); err != nil {
			return err
		}
		if r.SizeDeltaInTokens, err = increaseSizeInTokens(prices, p.IsLong, sizeDelta, r.PriceImpactValue); err != nil {
			return err
		}
		if r.ExecutionPrice, err = sizeDelta.Div(r.SizeDeltaInTokens); err != nil {
			return err
		}
		if err := checkAcceptablePrice(r.ExecutionPrice, params.AcceptablePrice, p.IsLong); err != nil {
			return err
		}
		if r.PriceImpactAmount, err = settlePositionImpact(m, prices, r.PriceImpactValue); err != nil {
			return err
		}
	}

	if r.Fees, err = p.PendingFees(m, prices, sizeDelta, r.PriceImpactValue.IsPositive(), false); err != nil {
		return err
	}
	cost, err := r.Fees.TotalCostAmount()
	if err != nil {
		return err
	}
	available, err := p.CollateralAmount.Add(collateralIn)
	if err != nil {
		return err
	}
	if available.LT(cost) {
		return fmt.Errorf("%w: collateral %s cannot cover fees %s", model.ErrInsufficientCollateral, available, cost)
	}
	nextCollateral := available.SatSub(cost)
	if err := payPositionFees(m, collateralIsLong, r.Fees); err != nil {
		return err
	}

	prevSize, prevFactor := p.SizeInUSD, p.BorrowingFactor
	if !sizeDelta.IsZero() {
		if err := m.ApplyOpenInterestDelta(p.IsLong, collateralIsLong, delta); err != nil {
			return err
		}
		if err := m.ApplyDeltaAmount(pool.OpenInterestInTokens(p.IsLong), collateralIsLong, r.SizeDeltaInTokens); err != nil {
			return err
		}
	}
	if r.CollateralDeltaAmount, err = signedDelta(p.CollateralAmount, nextCollateral); err != nil {
		return err
	}
	if err := m.ApplyDelta(pool.CollateralSum(p.IsLong), collateralIsLong, r.CollateralDeltaAmount); err != nil {
		return err
	}

	if p.SizeInUSD, err = p.SizeInUSD.Add(sizeDelta); err != nil {
		return err
	}
	if p.SizeInTokens, err = p.SizeInTokens.Add(r.SizeDeltaInTokens); err != nil {
		return err
	}
	p.CollateralAmount = nextCollateral
	if err := p.UpdateSnapshots(m); err != nil {
		return err
	}
	if err := m.UpdateTotalBorrowing(p.IsLong, prevSize, prevFactor, p.SizeInUSD, p.BorrowingFactor); err != nil {
		return err
	}

	if !sizeDelta.IsZero() {
		if err := m.ValidateOpenInterest(p.IsLong); err != nil {
			return err
		}
		if err := m.ValidateReserve(prices, p.IsLong); err != nil {
			return err
		}
		if err := m.ValidateOpenInterestReserve(prices, p.IsLong); err != nil {
			return err
		}
	}
	return p.Validate(m, prices, true, true)
}

// payPositionFees credits the receiver share to the claimable fee pool and
// the pool share to the primary pool. Funding stays in the vault for the
// receiving side to claim.
func payPositionFees(m *market.Market, collateralIsLong bool, f fees.PositionFees) error {
	receiver, err := f.ForReceiver()
	if err != nil {
		return err
	}
	if err := m.ApplyDeltaAmount(pool.ClaimableFee, collateralIsLong, receiver); err != nil {
		return err
	}
	forPool, err := f.ForPool()
	if err != nil {
		return err
	}
	return addLiquidity(m, collateralIsLong, forPool)
}

// signedDelta returns next - prev.
func signedDelta(prev, next num.Uint) (num.Int, error) {
	if next.GTE(prev) {
		return num.ToSigned(next.SatSub(prev))
	}
	return num.NegativeOf(prev.SatSub(next))
}
