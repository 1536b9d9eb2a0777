// Package fees holds the pure fee and price impact models. Every function
// takes its parameters by value and returns new values; nothing here reads
// or mutates market state.
package fees

import (
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// PriceImpactParams configures the exponential price impact curve shared by
// swaps and positions.
type PriceImpactParams struct {
	Exponent       num.Uint
	PositiveFactor num.Uint
	NegativeFactor num.Uint
}

// Balance is a pair of side values used as the input of the impact curve,
// e.g. pool USD values for swaps or open interest for positions.
type Balance struct {
	Long  num.Uint
	Short num.Uint
}

func (b Balance) diff() num.Uint {
	if b.Long.GT(b.Short) {
		return b.Long.SatSub(b.Short)
	}
	return b.Short.SatSub(b.Long)
}

func (b Balance) longHeavy() bool { return b.Long.GT(b.Short) }

// ApplyDelta returns the balance after adding the signed deltas.
func (b Balance) ApplyDelta(longDelta, shortDelta num.Int) (Balance, error) {
	l, err := addSigned(b.Long, longDelta)
	if err != nil {
		return Balance{}, err
	}
	s, err := addSigned(b.Short, shortDelta)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Long: l, Short: s}, nil
}

func addSigned(v num.Uint, d num.Int) (num.Uint, error) {
	if d.IsNegative() {
		return v.Sub(d.Abs())
	}
	return v.Add(d.Abs())
}

func (p PriceImpactParams) curve(diff, factor, unit num.Uint) (num.Uint, error) {
	powered, err := num.PowFactor(diff, p.Exponent, unit)
	if err != nil {
		return num.Zero, err
	}
	return num.ApplyFactor(powered, factor, unit)
}

// Impact returns the signed price impact value of moving the balance from
// before to after. Positive values are rebates to the trader.
func (p PriceImpactParams) Impact(before, after Balance, unit num.Uint) (num.Int, error) {
	d := before.diff()
	next := after.diff()

	sameSide := before.longHeavy() == after.longHeavy() || d.IsZero() || next.IsZero()
	if sameSide {
		if next.LT(d) {
			a, err := p.curve(d, p.PositiveFactor, unit)
			if err != nil {
				return num.Int{}, err
			}
			b, err := p.curve(next, p.PositiveFactor, unit)
			if err != nil {
				return num.Int{}, err
			}
			return num.ToSigned(a.SatSub(b))
		}
		a, err := p.curve(next, p.NegativeFactor, unit)
		if err != nil {
			return num.Int{}, err
		}
		b, err := p.curve(d, p.NegativeFactor, unit)
		if err != nil {
			return num.Int{}, err
		}
		return num.NegativeOf(a.SatSub(b))
	}

	// The trade crosses the balance point: the old imbalance is repaid at
	// the positive factor and the new one charged at the negative factor.
	positive, err := p.curve(d, p.PositiveFactor, unit)
	if err != nil {
		return num.Int{}, err
	}
	negative, err := p.curve(next, p.NegativeFactor, unit)
	if err != nil {
		return num.Int{}, err
	}
	pos, err := num.ToSigned(positive)
	if err != nil {
		return num.Int{}, err
	}
	return pos.SubUint(negative)
}

// MinImpact combines the impact computed against a market with the impact
// computed against a virtual inventory: the worse of the two applies.
func MinImpact(market, virtual num.Int) num.Int {
	return num.MinInt(market, virtual)
}

// PositionImpactDistributionParams controls how the position impact pool is
// paid out over time.
type PositionImpactDistributionParams struct {
	DistributeFactor            num.Uint
	MinPositionImpactPoolAmount num.Uint
}

// DistributionAmount returns how many index tokens leave the position impact
// pool after the given number of seconds. The pool never drops below the
// configured floor.
func (p PositionImpactDistributionParams) DistributionAmount(poolAmount num.Uint, seconds uint64, unit num.Uint) (num.Uint, error) {
	if seconds == 0 || poolAmount.LTE(p.MinPositionImpactPoolAmount) {
		return num.Zero, nil
	}
	amount, err := num.ApplyFactor(num.NewUint(seconds), p.DistributeFactor, unit)
	if err != nil {
		return num.Zero, err
	}
	return num.Min(amount, poolAmount.SatSub(p.MinPositionImpactPoolAmount)), nil
}
