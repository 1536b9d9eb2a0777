package fees

import (
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// FundingFeeParams configures the funding rate. With a zero increase factor
// the rate is a direct function of the open interest imbalance; otherwise it
// is adaptive and moves inside a hysteresis band.
type FundingFeeParams struct {
	Exponent                    num.Uint
	FundingFactor               num.Uint
	MaxFactorPerSecond          num.Uint
	MinFactorPerSecond          num.Uint
	IncreaseFactorPerSecond     num.Uint
	DecreaseFactorPerSecond     num.Uint
	ThresholdForStableFunding   num.Uint
	ThresholdForDecreaseFunding num.Uint
}

// FundingRate is the outcome of one funding update.
type FundingRate struct {
	// NextSaved is the signed factor to persist; positive means longs pay.
	NextSaved       num.Int
	FactorPerSecond num.Uint
	LongsPayShorts  bool
}

// Adaptive reports whether the rate moves over time.
func (p FundingFeeParams) Adaptive() bool {
	return !p.IncreaseFactorPerSecond.IsZero()
}

// Imbalance returns |long - short| / (long + short) as a factor.
func Imbalance(longOI, shortOI, unit num.Uint) (num.Uint, error) {
	total, err := longOI.Add(shortOI)
	if err != nil {
		return num.Zero, err
	}
	if total.IsZero() {
		return num.Zero, nil
	}
	diff := longOI.SatSub(shortOI)
	if shortOI.GT(longOI) {
		diff = shortOI.SatSub(longOI)
	}
	return num.DivToFactor(diff, total, unit, false)
}

// NextFactorPerSecond computes the funding rate after seconds have passed
// since the saved factor was stored.
func (p FundingFeeParams) NextFactorPerSecond(longOI, shortOI num.Uint, saved num.Int, seconds uint64, unit num.Uint) (FundingRate, error) {
	if longOI.EQ(shortOI) {
		return FundingRate{LongsPayShorts: true}, nil
	}
	imbalance, err := Imbalance(longOI, shortOI, unit)
	if err != nil {
		return FundingRate{}, err
	}
	longHeavy := longOI.GT(shortOI)

	if !p.Adaptive() {
		powered, err := num.PowFactor(imbalance, p.Exponent, unit)
		if err != nil {
			return FundingRate{}, err
		}
		rate, err := num.ApplyFactor(powered, p.FundingFactor, unit)
		if err != nil {
			return FundingRate{}, err
		}
		rate = num.Min(rate, p.MaxFactorPerSecond)
		next, err := num.FromSignMagnitude(!longHeavy, rate)
		if err != nil {
			return FundingRate{}, err
		}
		return FundingRate{NextSaved: next, FactorPerSecond: rate, LongsPayShorts: longHeavy}, nil
	}

	next, err := p.adapt(saved, imbalance, longHeavy, seconds)
	if err != nil {
		return FundingRate{}, err
	}

	// Bound the stored magnitude, then derive the effective rate.
	if next.Abs().GT(p.MaxFactorPerSecond) {
		if next, err = num.FromSignMagnitude(next.IsNegative(), p.MaxFactorPerSecond); err != nil {
			return FundingRate{}, err
		}
	}
	rate := num.Min(num.Max(next.Abs(), p.MinFactorPerSecond), p.MaxFactorPerSecond)
	return FundingRate{
		NextSaved:       next,
		FactorPerSecond: rate,
		LongsPayShorts:  !next.IsNegative(),
	}, nil
}

func (p FundingFeeParams) adapt(saved num.Int, imbalance num.Uint, longHeavy bool, seconds uint64) (num.Int, error) {
	sameDirection := saved.IsZero() || saved.IsPositive() == longHeavy
	increase := !sameDirection || imbalance.GT(p.ThresholdForStableFunding)

	if increase {
		step, err := p.IncreaseFactorPerSecond.Mul(num.NewUint(seconds))
		if err != nil {
			return num.Int{}, err
		}
		if longHeavy {
			return saved.AddUint(step)
		}
		return saved.SubUint(step)
	}

	if imbalance.LT(p.ThresholdForDecreaseFunding) {
		step, err := p.DecreaseFactorPerSecond.Mul(num.NewUint(seconds))
		if err != nil {
			return num.Int{}, err
		}
		if saved.Abs().LTE(step) {
			return num.Int{}, nil
		}
		return num.FromSignMagnitude(saved.IsNegative(), saved.Abs().SatSub(step))
	}
	return saved, nil
}

// FundingValue returns the value paid by the payer side for the interval:
// payerOI * rate * seconds / unit.
func FundingValue(payerOI, ratePerSecond num.Uint, seconds uint64, unit num.Uint) (num.Uint, error) {
	factor, err := ratePerSecond.Mul(num.NewUint(seconds))
	if err != nil {
		return num.Zero, err
	}
	return num.ApplyFactor(payerOI, factor, unit)
}
