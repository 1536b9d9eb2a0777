package fees

import (
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// FeeParams are the swap-style fee factors. The factor charged depends on
// whether the trade improves the pool balance.
type FeeParams struct {
	PositiveImpactFeeFactor num.Uint
	NegativeImpactFeeFactor num.Uint
	FeeReceiverFactor       num.Uint
}

// Factor returns the fee factor for the sign of the price impact.
func (p FeeParams) Factor(isPositiveImpact bool) num.Uint {
	if isPositiveImpact {
		return p.PositiveImpactFeeFactor
	}
	return p.NegativeImpactFeeFactor
}

// Fees is a fee amount split between the fee receiver and the pool.
type Fees struct {
	FeeAmountForReceiver num.Uint `json:"fee_amount_for_receiver"`
	FeeAmountForPool     num.Uint `json:"fee_amount_for_pool"`
}

// Total returns receiver + pool.
func (f Fees) Total() (num.Uint, error) {
	return f.FeeAmountForReceiver.Add(f.FeeAmountForPool)
}

// Split divides a fee amount between the receiver and the pool.
func (p FeeParams) Split(fee, unit num.Uint) (Fees, error) {
	receiver, err := num.ApplyFactor(fee, p.FeeReceiverFactor, unit)
	if err != nil {
		return Fees{}, err
	}
	return Fees{FeeAmountForReceiver: receiver, FeeAmountForPool: fee.SatSub(receiver)}, nil
}

// ApplyToAmount charges the fee on a token amount and returns the fees
// together with the amount left after fees.
func (p FeeParams) ApplyToAmount(amount num.Uint, isPositiveImpact bool, unit num.Uint) (Fees, num.Uint, error) {
	fee, err := num.ApplyFactor(amount, p.Factor(isPositiveImpact), unit)
	if err != nil {
		return Fees{}, num.Zero, err
	}
	fees, err := p.Split(fee, unit)
	if err != nil {
		return Fees{}, num.Zero, err
	}
	after, err := amount.Sub(fee)
	if err != nil {
		return Fees{}, num.Zero, err
	}
	return fees, after, nil
}

// OrderFee charges the fee on a USD size and converts it to collateral
// tokens at the given collateral price, rounding the amount up.
func (p FeeParams) OrderFee(sizeDeltaUSD, collateralPrice num.Uint, isPositiveImpact bool, unit num.Uint) (Fees, error) {
	value, err := num.ApplyFactor(sizeDeltaUSD, p.Factor(isPositiveImpact), unit)
	if err != nil {
		return Fees{}, err
	}
	amount, err := value.DivCeil(collateralPrice)
	if err != nil {
		return Fees{}, err
	}
	return p.Split(amount, unit)
}

// LiquidationFeeParams configures the extra fee charged on liquidation.
type LiquidationFeeParams struct {
	Factor         num.Uint
	ReceiverFactor num.Uint
}

// LiquidationFee is the liquidation fee amount in collateral tokens.
type LiquidationFee struct {
	Amount            num.Uint `json:"amount"`
	AmountForReceiver num.Uint `json:"amount_for_receiver"`
}

// Fee computes the liquidation fee for a size delta.
func (p LiquidationFeeParams) Fee(sizeDeltaUSD, collateralPrice, unit num.Uint) (LiquidationFee, error) {
	if p.Factor.IsZero() {
		return LiquidationFee{}, nil
	}
	value, err := num.ApplyFactor(sizeDeltaUSD, p.Factor, unit)
	if err != nil {
		return LiquidationFee{}, err
	}
	amount, err := value.DivCeil(collateralPrice)
	if err != nil {
		return LiquidationFee{}, err
	}
	receiver, err := num.ApplyFactor(amount, p.ReceiverFactor, unit)
	if err != nil {
		return LiquidationFee{}, err
	}
	return LiquidationFee{Amount: amount, AmountForReceiver: receiver}, nil
}

// BorrowingFee is the borrowing fee owed by a position, in collateral tokens.
type BorrowingFee struct {
	Amount            num.Uint `json:"amount"`
	AmountForReceiver num.Uint `json:"amount_for_receiver"`
}

// FundingFee is the funding fee owed by a position plus the funding it may
// claim, all in token amounts.
type FundingFee struct {
	Amount               num.Uint `json:"amount"`
	ClaimableLongAmount  num.Uint `json:"claimable_long_token_amount"`
	ClaimableShortAmount num.Uint `json:"claimable_short_token_amount"`
}

// PositionFees collects every fee charged to a position update, denominated
// in the position's collateral token.
type PositionFees struct {
	Order       Fees           `json:"order"`
	Borrowing   BorrowingFee   `json:"borrowing"`
	Funding     FundingFee     `json:"funding"`
	Liquidation LiquidationFee `json:"liquidation"`
}

// TotalCostAmount returns everything deducted from collateral: order,
// borrowing, funding and liquidation fees.
func (f PositionFees) TotalCostAmount() (num.Uint, error) {
	total, err := f.Order.Total()
	if err != nil {
		return num.Zero, err
	}
	for _, v := range []num.Uint{f.Borrowing.Amount, f.Funding.Amount, f.Liquidation.Amount} {
		if total, err = total.Add(v); err != nil {
			return num.Zero, err
		}
	}
	return total, nil
}

// ForReceiver returns the part of the fees credited to the fee receiver.
func (f PositionFees) ForReceiver() (num.Uint, error) {
	total, err := f.Order.FeeAmountForReceiver.Add(f.Borrowing.AmountForReceiver)
	if err != nil {
		return num.Zero, err
	}
	return total.Add(f.Liquidation.AmountForReceiver)
}

// ForPool returns the part of the fees that stays in the primary pool.
// Funding fees are excluded: they are owed to the other side.
func (f PositionFees) ForPool() (num.Uint, error) {
	borrowing := f.Borrowing.Amount.SatSub(f.Borrowing.AmountForReceiver)
	liquidation := f.Liquidation.Amount.SatSub(f.Liquidation.AmountForReceiver)
	total, err := f.Order.FeeAmountForPool.Add(borrowing)
	if err != nil {
		return num.Zero, err
	}
	return total.Add(liquidation)
}
