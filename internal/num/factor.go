package num

import (
	"github.com/shopspring/decimal"
)

// powPrecision is the number of fractional digits kept while evaluating a
// fractional power.
const powPrecision = 48

// ApplyFactor returns value * factor / unit, rounded down.
func ApplyFactor(value, factor, unit Uint) (Uint, error) {
	return value.MulDiv(factor, unit)
}

// ApplyFactorCeil returns value * factor / unit, rounded up.
func ApplyFactorCeil(value, factor, unit Uint) (Uint, error) {
	return value.MulDivCeil(factor, unit)
}

// DivToFactor returns value * unit / divisor.
func DivToFactor(value, divisor, unit Uint, roundUp bool) (Uint, error) {
	if divisor.IsZero() {
		return Zero, ErrComputation
	}
	if roundUp {
		return value.MulDivCeil(unit, divisor)
	}
	return value.MulDiv(unit, divisor)
}

// ApplyFactorSigned returns value * factor / unit with the sign of value,
// truncated toward zero.
func ApplyFactorSigned(value Int, factor, unit Uint) (Int, error) {
	return value.MulDiv(factor, unit)
}

// PowFactor returns unit * (value/unit)^(exponent/unit), truncated.
//
// An exponent equal to unit returns value unchanged. A zero value yields
// zero for any positive exponent.
func PowFactor(value, exponent, unit Uint) (Uint, error) {
	if exponent.EQ(unit) {
		return value, nil
	}
	if value.IsZero() {
		if exponent.IsZero() {
			return unit, nil
		}
		return Zero, nil
	}
	if unit.IsZero() {
		return Zero, ErrComputation
	}
	u := unit.Decimal()
	base := value.Decimal().DivRound(u, powPrecision)
	exp := exponent.Decimal().DivRound(u, powPrecision)
	r, err := base.PowWithPrecision(exp, powPrecision)
	if err != nil {
		return Zero, ErrComputation
	}
	if r.IsNegative() {
		return Zero, ErrComputation
	}
	out, err := UintFromDecimal(r.Mul(u).Truncate(0))
	if err != nil {
		return Zero, ErrComputation
	}
	return out, nil
}

// Ln returns the natural logarithm of value/unit as a decimal. It is used
// for ranking exchange rates and never feeds back into balances.
func Ln(value, unit Uint) (decimal.Decimal, error) {
	if value.IsZero() || unit.IsZero() {
		return decimal.Zero, ErrComputation
	}
	r := value.Decimal().DivRound(unit.Decimal(), powPrecision)
	ln, err := r.Ln(powPrecision)
	if err != nil {
		return decimal.Zero, ErrComputation
	}
	return ln, nil
}
