// Package position implements a trader's leveraged exposure against one
// market and the read-only computations on it: pending fees, pnl,
// liquidation checks and status.
package position

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/fees"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

// Position is one owner's exposure for a market, collateral token and side.
type Position struct {
	Owner           string `json:"owner"`
	Market          string `json:"market"`
	CollateralToken string `json:"collateral_token"`
	IsLong          bool   `json:"is_long"`

	SizeInUSD        num.Uint `json:"size_in_usd"`
	SizeInTokens     num.Uint `json:"size_in_tokens"`
	CollateralAmount num.Uint `json:"collateral_amount"`

	BorrowingFactor                    num.Uint `json:"borrowing_factor"`
	FundingFeeAmountPerSize            num.Uint `json:"funding_fee_amount_per_size"`
	ClaimableFundingAmountPerSizeLong  num.Uint `json:"claimable_funding_amount_per_size_long"`
	ClaimableFundingAmountPerSizeShort num.Uint `json:"claimable_funding_amount_per_size_short"`
}

// New returns an empty position. The collateral token must be one of the
// market's side tokens.
func New(owner string, m *market.Market, collateralToken string, isLong bool) (*Position, error) {
	if !m.Meta.IsCollateralToken(collateralToken) {
		return nil, fmt.Errorf("%w: collateral token %q is not in market %s", model.ErrInvalidArgument, collateralToken, m.Name)
	}
	return &Position{
		Owner:           owner,
		Market:          m.Meta.MarketToken,
		CollateralToken: collateralToken,
		IsLong:          isLong,
	}, nil
}

// Key returns the position identity.
func (p *Position) Key() string {
	return model.PositionKey(p.Owner, p.Market, p.CollateralToken, p.IsLong)
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}

// IsEmpty reports whether the position holds no size.
func (p *Position) IsEmpty() bool { return p.SizeInUSD.IsZero() }

// CheckMarket verifies that the position belongs to m and uses one of its
// collateral tokens.
func (p *Position) CheckMarket(m *market.Market) error {
	if p.Market != m.Meta.MarketToken {
		return fmt.Errorf("%w: position market %q is not %q", model.ErrInvalidArgument, p.Market, m.Meta.MarketToken)
	}
	if !m.Meta.IsCollateralToken(p.CollateralToken) {
		return fmt.Errorf("%w: collateral token %q is not in market %s", model.ErrInvalidArgument, p.CollateralToken, m.Name)
	}
	return nil
}

// CheckSizeInvariant verifies that size in tokens is zero exactly when size
// in USD is zero.
func (p *Position) CheckSizeInvariant() error {
	if p.SizeInUSD.IsZero() != p.SizeInTokens.IsZero() {
		return fmt.Errorf("%w: size in usd %s and size in tokens %s disagree", model.ErrComputation, p.SizeInUSD, p.SizeInTokens)
	}
	return nil
}

// CollateralIsLong reports whether the collateral is the long side token.
func (p *Position) CollateralIsLong(m *market.Market) bool {
	isLong, err := m.Meta.TokenSide(p.CollateralToken)
	return err == nil && isLong
}

// CollateralPrice returns the collateral token price from a snapshot.
func (p *Position) CollateralPrice(m *market.Market, prices model.Prices) model.Price {
	return prices.CollateralTokenPrice(p.CollateralIsLong(m))
}

// CollateralValue returns collateral amount at the min collateral price.
func (p *Position) CollateralValue(m *market.Market, prices model.Prices) (num.Uint, error) {
	return p.CollateralAmount.Mul(p.CollateralPrice(m, prices).Min)
}

// PendingBorrowingFee returns the borrowing fee accrued since the position
// last snapshotted the cumulative factor.
func (p *Position) PendingBorrowingFee(m *market.Market, prices model.Prices) (fees.BorrowingFee, error) {
	current := m.Pools.BorrowingFactor.Amount(p.IsLong)
	delta := current.SatSub(p.BorrowingFactor)
	value, err := num.ApplyFactor(p.SizeInUSD, delta, m.Unit())
	if err != nil {
		return fees.BorrowingFee{}, err
	}
	amount, err := value.DivCeil(p.CollateralPrice(m, prices).Min)
	if err != nil {
		return fees.BorrowingFee{}, err
	}
	receiver, err := num.ApplyFactor(amount, m.Config.BorrowingFeeReceiverFactor, m.Unit())
	if err != nil {
		return fees.BorrowingFee{}, err
	}
	return fees.BorrowingFee{Amount: amount, AmountForReceiver: receiver}, nil
}

// PendingFundingFee returns the funding owed in collateral tokens and the
// funding claimable in each side token since the last snapshot.
func (p *Position) PendingFundingFee(m *market.Market) (fees.FundingFee, error) {
	adjustment := m.FundingAmountPerSizeAdjustment()
	collateralIsLong := p.CollateralIsLong(m)

	paying, err := m.Pool(pool.FundingAmountPerSize(p.IsLong))
	if err != nil {
		return fees.FundingFee{}, err
	}
	claimable, err := m.Pool(pool.ClaimableFundingAmountPerSize(p.IsLong))
	if err != nil {
		return fees.FundingFee{}, err
	}

	var f fees.FundingFee
	delta := paying.Amount(collateralIsLong).SatSub(p.FundingFeeAmountPerSize)
	if f.Amount, err = p.SizeInUSD.MulDivCeil(delta, adjustment); err != nil {
		return fees.FundingFee{}, err
	}
	deltaLong := claimable.Amount(true).SatSub(p.ClaimableFundingAmountPerSizeLong)
	if f.ClaimableLongAmount, err = p.SizeInUSD.MulDiv(deltaLong, adjustment); err != nil {
		return fees.FundingFee{}, err
	}
	deltaShort := claimable.Amount(false).SatSub(p.ClaimableFundingAmountPerSizeShort)
	if f.ClaimableShortAmount, err = p.SizeInUSD.MulDiv(deltaShort, adjustment); err != nil {
		return fees.FundingFee{}, err
	}
	return f, nil
}

// UpdateSnapshots records the market's current cumulative factors so that
// pending fees restart from zero.
func (p *Position) UpdateSnapshots(m *market.Market) error {
	paying, err := m.Pool(pool.FundingAmountPerSize(p.IsLong))
	if err != nil {
		return err
	}
	claimable, err := m.Pool(pool.ClaimableFundingAmountPerSize(p.IsLong))
	if err != nil {
		return err
	}
	p.BorrowingFactor = m.Pools.BorrowingFactor.Amount(p.IsLong)
	p.FundingFeeAmountPerSize = paying.Amount(p.CollateralIsLong(m))
	p.ClaimableFundingAmountPerSizeLong = claimable.Amount(true)
	p.ClaimableFundingAmountPerSizeShort = claimable.Amount(false)
	return nil
}

// PendingFees returns every fee the position would pay for a size delta:
// order fee on the delta, pending borrowing and funding, and the
// liquidation fee when isLiquidation is set.
func (p *Position) PendingFees(m *market.Market, prices model.Prices, sizeDeltaUSD num.Uint, isPositiveImpact, isLiquidation bool) (fees.PositionFees, error) {
	var out fees.PositionFees
	var err error
	collateralPrice := p.CollateralPrice(m, prices).Min
	if out.Order, err = m.Config.OrderFeeParams().OrderFee(sizeDeltaUSD, collateralPrice, isPositiveImpact, m.Unit()); err != nil {
		return out, err
	}
	if out.Borrowing, err = p.PendingBorrowingFee(m, prices); err != nil {
		return out, err
	}
	if out.Funding, err = p.PendingFundingFee(m); err != nil {
		return out, err
	}
	if isLiquidation {
		if out.Liquidation, err = m.Config.LiquidationFeeParams().Fee(sizeDeltaUSD, collateralPrice, m.Unit()); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Pnl is the pnl of closing part of a position.
type Pnl struct {
	// Realized is the pnl attributed to the size delta, after the trader
	// cap.
	Realized num.Int `json:"realized"`
	// Uncapped is the same pnl before the cap.
	Uncapped num.Int `json:"uncapped"`
	// SizeDeltaInTokens is the share of size in tokens being closed.
	SizeDeltaInTokens num.Uint `json:"size_delta_in_tokens"`
}

// PnlValue computes the pnl of closing sizeDeltaUSD of the position at the
// given index price. Positive pnl is scaled down when the market's pnl
// factor for the side exceeds the trader bound.
func (p *Position) PnlValue(m *market.Market, prices model.Prices, sizeDeltaUSD num.Uint) (Pnl, error) {
	if p.SizeInUSD.IsZero() || p.SizeInTokens.IsZero() {
		return Pnl{}, nil
	}
	// Use the price that is worse for the trader.
	price := prices.IndexTokenPrice.Pick(!p.IsLong)
	value, err := p.SizeInTokens.Mul(price)
	if err != nil {
		return Pnl{}, err
	}
	total, err := diff(value, p.SizeInUSD, p.IsLong)
	if err != nil {
		return Pnl{}, err
	}
	uncappedTotal := total

	if total.IsPositive() {
		marketPnl, err := m.Pnl(prices.IndexTokenPrice, p.IsLong, true)
		if err != nil {
			return Pnl{}, err
		}
		poolValue, err := m.PoolValueForSide(prices, p.IsLong, false)
		if err != nil {
			return Pnl{}, err
		}
		factor, err := m.Config.MaxPnlFactor(market.MaxForTrader, p.IsLong)
		if err != nil {
			return Pnl{}, err
		}
		maxPnl, err := num.ApplyFactor(poolValue, factor, m.Unit())
		if err != nil {
			return Pnl{}, err
		}
		if marketPnl.IsPositive() && marketPnl.Abs().GT(maxPnl) {
			if total, err = total.MulDiv(maxPnl, marketPnl.Abs()); err != nil {
				return Pnl{}, err
			}
		}
	}

	var tokens num.Uint
	if sizeDeltaUSD.EQ(p.SizeInUSD) {
		tokens = p.SizeInTokens
	} else if p.IsLong {
		tokens, err = p.SizeInTokens.MulDivCeil(sizeDeltaUSD, p.SizeInUSD)
	} else {
		tokens, err = p.SizeInTokens.MulDiv(sizeDeltaUSD, p.SizeInUSD)
	}
	if err != nil {
		return Pnl{}, err
	}

	realized, err := total.MulDiv(tokens, p.SizeInTokens)
	if err != nil {
		return Pnl{}, err
	}
	uncapped, err := uncappedTotal.MulDiv(tokens, p.SizeInTokens)
	if err != nil {
		return Pnl{}, err
	}
	return Pnl{Realized: realized, Uncapped: uncapped, SizeDeltaInTokens: tokens}, nil
}

// diff returns value - size for longs and size - value for shorts.
func diff(value, size num.Uint, isLong bool) (num.Int, error) {
	a, b := value, size
	if !isLong {
		a, b = size, value
	}
	if a.GTE(b) {
		return num.ToSigned(a.SatSub(b))
	}
	return num.NegativeOf(b.SatSub(a))
}

// CloseImpactValue returns the negative price impact of closing sizeDelta,
// capped by the max negative impact factor. A positive impact counts as
// zero.
func (p *Position) CloseImpactValue(m *market.Market, sizeDeltaUSD num.Uint, isLiquidation bool) (num.Int, error) {
	delta, err := num.NegativeOf(sizeDeltaUSD)
	if err != nil {
		return num.Int{}, err
	}
	impact, err := m.PositionImpactValue(p.IsLong, delta)
	if err != nil {
		return num.Int{}, err
	}
	if !impact.IsNegative() {
		return num.Int{}, nil
	}
	factor := m.Config.MaxPositionImpactFactorForNegative
	if isLiquidation {
		factor = m.Config.MaxPositionImpactFactorForLiquidations
	}
	maxNegative, err := num.ApplyFactor(sizeDeltaUSD, factor, m.Unit())
	if err != nil {
		return num.Int{}, err
	}
	if impact.Abs().GT(maxNegative) {
		return num.NegativeOf(maxNegative)
	}
	return impact, nil
}
