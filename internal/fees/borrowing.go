package fees

import (
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// BorrowingFeeParams configures the exponent borrowing model and the
// receiver share of borrowing fees.
type BorrowingFeeParams struct {
	ReceiverFactor                 num.Uint
	FactorForLong                  num.Uint
	FactorForShort                 num.Uint
	ExponentForLong                num.Uint
	ExponentForShort               num.Uint
	SkipBorrowingFeeForSmallerSide bool
}

// KinkParams configures the piecewise-linear borrowing curve. A zero optimal
// usage factor disables the kink model for that side.
type KinkParams struct {
	OptimalUsageFactorForLong                num.Uint
	OptimalUsageFactorForShort               num.Uint
	BaseBorrowingFactorForLong               num.Uint
	BaseBorrowingFactorForShort              num.Uint
	AboveOptimalUsageBorrowingFactorForLong  num.Uint
	AboveOptimalUsageBorrowingFactorForShort num.Uint
}

func (k KinkParams) side(isLong bool) (optimal, base, above num.Uint) {
	if isLong {
		return k.OptimalUsageFactorForLong, k.BaseBorrowingFactorForLong, k.AboveOptimalUsageBorrowingFactorForLong
	}
	return k.OptimalUsageFactorForShort, k.BaseBorrowingFactorForShort, k.AboveOptimalUsageBorrowingFactorForShort
}

// Enabled reports whether the kink model applies to the side.
func (k KinkParams) Enabled(isLong bool) bool {
	optimal, _, _ := k.side(isLong)
	return !optimal.IsZero()
}

// FactorPerSecond returns the kink rate for a usage factor.
func (k KinkParams) FactorPerSecond(isLong bool, usage, unit num.Uint) (num.Uint, error) {
	optimal, base, above := k.side(isLong)
	if usage.LTE(optimal) {
		return base, nil
	}
	extra, err := num.ApplyFactor(above, usage.SatSub(optimal), unit)
	if err != nil {
		return num.Zero, err
	}
	return base.Add(extra)
}

// Usage is the per-side state the borrowing model reads.
type Usage struct {
	ReservedValue        num.Uint
	PoolValue            num.Uint
	ReserveFactor        num.Uint
	OpenInterest         num.Uint
	OpposingOpenInterest num.Uint
	MaxOpenInterest      num.Uint
	IgnoreOpenInterest   bool
}

// Factor returns max(reserved / max_reserve, oi / max_oi) as a factor.
func (u Usage) Factor(unit num.Uint) (num.Uint, error) {
	maxReserve, err := num.ApplyFactor(u.PoolValue, u.ReserveFactor, unit)
	if err != nil {
		return num.Zero, err
	}
	reserveUsage, err := usageTerm(u.ReservedValue, maxReserve, unit)
	if err != nil {
		return num.Zero, err
	}
	if u.IgnoreOpenInterest {
		return reserveUsage, nil
	}
	oiUsage, err := usageTerm(u.OpenInterest, u.MaxOpenInterest, unit)
	if err != nil {
		return num.Zero, err
	}
	return num.Max(reserveUsage, oiUsage), nil
}

// usageTerm treats a zero capacity as fully used unless nothing is used.
func usageTerm(used, capacity, unit num.Uint) (num.Uint, error) {
	if used.IsZero() {
		return num.Zero, nil
	}
	if capacity.IsZero() {
		return unit, nil
	}
	return num.DivToFactor(used, capacity, unit, false)
}

// BorrowingFactorPerSecond returns the borrowing rate for one side.
func BorrowingFactorPerSecond(params BorrowingFeeParams, kink KinkParams, isLong bool, usage Usage, unit num.Uint) (num.Uint, error) {
	if params.SkipBorrowingFeeForSmallerSide && usage.OpenInterest.LT(usage.OpposingOpenInterest) {
		return num.Zero, nil
	}
	if kink.Enabled(isLong) {
		factor, err := usage.Factor(unit)
		if err != nil {
			return num.Zero, err
		}
		return kink.FactorPerSecond(isLong, factor, unit)
	}
	if usage.PoolValue.IsZero() {
		return num.Zero, nil
	}
	factor, exponent := params.FactorForShort, params.ExponentForShort
	if isLong {
		factor, exponent = params.FactorForLong, params.ExponentForLong
	}
	reserved, err := num.PowFactor(usage.ReservedValue, exponent, unit)
	if err != nil {
		return num.Zero, err
	}
	return reserved.MulDiv(factor, usage.PoolValue)
}

// Accrue returns rate * seconds, the borrowing factor increment.
func Accrue(ratePerSecond num.Uint, seconds uint64) (num.Uint, error) {
	return ratePerSecond.Mul(num.NewUint(seconds))
}
