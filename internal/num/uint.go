// Package num implements the fixed-point integers used by the engine.
//
// Uint is an unsigned 128-bit integer backed by holiman/uint256. Every
// arithmetic operation is checked: intermediate products are computed with
// 256 bits, and any result that does not fit into 128 bits is reported as
// ErrComputation instead of wrapping. Values are plain structs, so copying a
// Uint (or a struct holding one) copies the number.
package num

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	// ErrComputation is returned on checked arithmetic overflow, underflow
	// or division by zero.
	ErrComputation = errors.New("num: computation error")

	// ErrOverflow is returned when a value does not fit a narrower type.
	ErrOverflow = errors.New("num: overflow")

	// ErrConvert is returned when a value cannot be converted between the
	// signed and unsigned representations or parsed from text.
	ErrConvert = errors.New("num: conversion error")
)

// Uint is an unsigned 128-bit fixed-point integer.
type Uint struct {
	u uint256.Int
}

var (
	// Zero is the zero Uint.
	Zero = Uint{}

	// MaxUint is 2^128 - 1.
	MaxUint = func() Uint {
		var u uint256.Int
		u.Lsh(uint256.NewInt(1), 128)
		u.SubUint64(&u, 1)
		return Uint{u: u}
	}()
)

// NewUint returns a Uint holding v.
func NewUint(v uint64) Uint {
	return Uint{u: *uint256.NewInt(v)}
}

// Pow10 returns 10^n. It panics when the result exceeds 128 bits.
func Pow10(n uint8) Uint {
	var u uint256.Int
	u.Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
	r, err := bounded(&u)
	if err != nil {
		panic(fmt.Sprintf("num: 10^%d does not fit into 128 bits", n))
	}
	return r
}

// UintFromString parses a base-10 string.
func UintFromString(s string) (Uint, error) {
	u, err := uint256.FromDecimal(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrConvert, s, err)
	}
	r, err := bounded(u)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q exceeds 128 bits", ErrConvert, s)
	}
	return r, nil
}

// MustUint parses s and panics on failure. Intended for constants and tests.
func MustUint(s string) Uint {
	u, err := UintFromString(s)
	if err != nil {
		panic(err)
	}
	return u
}

// UintFromBig converts a big.Int.
func UintFromBig(b *big.Int) (Uint, error) {
	if b.Sign() < 0 {
		return Zero, fmt.Errorf("%w: negative value %s", ErrConvert, b)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return Zero, fmt.Errorf("%w: %s exceeds 256 bits", ErrConvert, b)
	}
	r, err := bounded(u)
	if err != nil {
		return Zero, fmt.Errorf("%w: %s exceeds 128 bits", ErrConvert, b)
	}
	return r, nil
}

// UintFromDecimal converts an integral, non-negative decimal.
func UintFromDecimal(d decimal.Decimal) (Uint, error) {
	if !d.IsInteger() {
		return Zero, fmt.Errorf("%w: %s is not an integer", ErrConvert, d)
	}
	return UintFromBig(d.BigInt())
}

// UintFromScaled converts a human-readable decimal into a fixed-point
// integer with the given number of decimals, truncating extra digits.
func UintFromScaled(d decimal.Decimal, decimals uint8) (Uint, error) {
	return UintFromDecimal(d.Shift(int32(decimals)).Truncate(0))
}

func bounded(u *uint256.Int) (Uint, error) {
	if u.BitLen() > 128 {
		return Zero, ErrComputation
	}
	return Uint{u: *u}, nil
}

// IsZero reports whether x == 0.
func (x Uint) IsZero() bool { return x.u.IsZero() }

// IsOdd reports whether the lowest bit of x is set.
func (x Uint) IsOdd() bool { return x.u[0]&1 == 1 }

// Cmp returns -1, 0 or +1.
func (x Uint) Cmp(y Uint) int { return x.u.Cmp(&y.u) }

// LT reports whether x < y.
func (x Uint) LT(y Uint) bool { return x.u.Lt(&y.u) }

// LTE reports whether x <= y.
func (x Uint) LTE(y Uint) bool { return !x.u.Gt(&y.u) }

// GT reports whether x > y.
func (x Uint) GT(y Uint) bool { return x.u.Gt(&y.u) }

// GTE reports whether x >= y.
func (x Uint) GTE(y Uint) bool { return !x.u.Lt(&y.u) }

// EQ reports whether x == y.
func (x Uint) EQ(y Uint) bool { return x.u.Eq(&y.u) }

// Add returns x + y.
func (x Uint) Add(y Uint) (Uint, error) {
	var z uint256.Int
	z.Add(&x.u, &y.u)
	return bounded(&z)
}

// Sub returns x - y, failing when y > x.
func (x Uint) Sub(y Uint) (Uint, error) {
	if x.LT(y) {
		return Zero, ErrComputation
	}
	var z uint256.Int
	z.Sub(&x.u, &y.u)
	return Uint{u: z}, nil
}

// SatSub returns max(x - y, 0).
func (x Uint) SatSub(y Uint) Uint {
	if x.LTE(y) {
		return Zero
	}
	var z uint256.Int
	z.Sub(&x.u, &y.u)
	return Uint{u: z}
}

// Mul returns x * y.
func (x Uint) Mul(y Uint) (Uint, error) {
	var z uint256.Int
	z.Mul(&x.u, &y.u)
	return bounded(&z)
}

// Div returns floor(x / y).
func (x Uint) Div(y Uint) (Uint, error) {
	if y.IsZero() {
		return Zero, ErrComputation
	}
	var z uint256.Int
	z.Div(&x.u, &y.u)
	return Uint{u: z}, nil
}

// DivCeil returns ceil(x / y).
func (x Uint) DivCeil(y Uint) (Uint, error) {
	if y.IsZero() {
		return Zero, ErrComputation
	}
	var q, r uint256.Int
	q.DivMod(&x.u, &y.u, &r)
	if !r.IsZero() {
		q.AddUint64(&q, 1)
	}
	return bounded(&q)
}

// MulDiv returns floor(x * y / z) using a 512-bit intermediate.
func (x Uint) MulDiv(y, z Uint) (Uint, error) {
	if z.IsZero() {
		return Zero, ErrComputation
	}
	var r uint256.Int
	if _, overflow := r.MulDivOverflow(&x.u, &y.u, &z.u); overflow {
		return Zero, ErrComputation
	}
	return bounded(&r)
}

// MulDivCeil returns ceil(x * y / z).
func (x Uint) MulDivCeil(y, z Uint) (Uint, error) {
	q, err := x.MulDiv(y, z)
	if err != nil {
		return Zero, err
	}
	// Round up when x*y is not a multiple of z.
	var prod, back uint256.Int
	if _, overflow := prod.MulOverflow(&x.u, &y.u); overflow {
		// The product needs more than 256 bits; fall back to big.Int.
		p := new(big.Int).Mul(x.u.ToBig(), y.u.ToBig())
		if new(big.Int).Mod(p, z.u.ToBig()).Sign() != 0 {
			return q.Add(NewUint(1))
		}
		return q, nil
	}
	back.Mul(&q.u, &z.u)
	if !back.Eq(&prod) {
		return q.Add(NewUint(1))
	}
	return q, nil
}

// Min returns the smaller of a and b.
func Min(a, b Uint) Uint {
	if a.LT(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Uint) Uint {
	if a.GT(b) {
		return a
	}
	return b
}

// Uint64 narrows x to uint64.
func (x Uint) Uint64() (uint64, error) {
	if !x.u.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit into u64", ErrOverflow, x)
	}
	return x.u.Uint64(), nil
}

// BigInt returns x as a big.Int.
func (x Uint) BigInt() *big.Int { return x.u.ToBig() }

// String returns the base-10 representation.
func (x Uint) String() string { return x.u.Dec() }

// Decimal returns x as an integral decimal.
func (x Uint) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(x.u.ToBig(), 0)
}

// Scaled returns x / 10^decimals as a decimal, for display.
func (x Uint) Scaled(decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(x.u.ToBig(), -int32(decimals))
}

// MarshalText encodes x as a base-10 string. JSON and TOML both use it.
func (x Uint) MarshalText() ([]byte, error) {
	return []byte(x.u.Dec()), nil
}

// UnmarshalText parses a base-10 string.
func (x *Uint) UnmarshalText(b []byte) error {
	u, err := UintFromString(string(b))
	if err != nil {
		return err
	}
	*x = u
	return nil
}
