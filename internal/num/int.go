package num

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Int is a signed 128-bit integer stored as sign and magnitude.
// The zero value is 0 and zero is never negative.
type Int struct {
	neg bool
	abs Uint
}

var (
	// maxIntAbs is 2^127 - 1, minIntAbs is 2^127 (magnitude of i128::MIN).
	maxIntAbs = MustUint("170141183460469231731687303715884105727")
	minIntAbs = MustUint("170141183460469231731687303715884105728")
)

// NewInt returns an Int holding v.
func NewInt(v int64) Int {
	if v < 0 {
		return Int{neg: true, abs: NewUint(uint64(-(v + 1)) + 1)}
	}
	return Int{abs: NewUint(uint64(v))}
}

func makeInt(neg bool, abs Uint) (Int, error) {
	if abs.IsZero() {
		return Int{}, nil
	}
	if (!neg && abs.GT(maxIntAbs)) || (neg && abs.GT(minIntAbs)) {
		return Int{}, ErrComputation
	}
	return Int{neg: neg, abs: abs}, nil
}

// FromSignMagnitude builds an Int from a sign and a magnitude.
func FromSignMagnitude(negative bool, abs Uint) (Int, error) {
	v, err := makeInt(negative, abs)
	if err != nil {
		return Int{}, fmt.Errorf("%w: %s does not fit into i128", ErrConvert, abs)
	}
	return v, nil
}

// ToSigned converts u into an Int.
func ToSigned(u Uint) (Int, error) {
	if u.GT(maxIntAbs) {
		return Int{}, fmt.Errorf("%w: %s does not fit into i128", ErrConvert, u)
	}
	return Int{abs: u}, nil
}

// NegativeOf converts u into -u.
func NegativeOf(u Uint) (Int, error) {
	if u.GT(minIntAbs) {
		return Int{}, fmt.Errorf("%w: -%s does not fit into i128", ErrConvert, u)
	}
	return makeInt(true, u)
}

// IntFromString parses an optionally signed base-10 string.
func IntFromString(s string) (Int, error) {
	neg := strings.HasPrefix(s, "-")
	u, err := UintFromString(strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+"))
	if err != nil {
		return Int{}, err
	}
	if neg {
		return NegativeOf(u)
	}
	return ToSigned(u)
}

// Abs returns |x|.
func (x Int) Abs() Uint { return x.abs }

// Sign returns -1, 0 or +1.
func (x Int) Sign() int {
	switch {
	case x.abs.IsZero():
		return 0
	case x.neg:
		return -1
	default:
		return 1
	}
}

// IsZero reports whether x == 0.
func (x Int) IsZero() bool { return x.abs.IsZero() }

// IsNegative reports whether x < 0.
func (x Int) IsNegative() bool { return x.neg }

// IsPositive reports whether x > 0.
func (x Int) IsPositive() bool { return !x.neg && !x.abs.IsZero() }

// Neg returns -x. Negating i128::MIN fails.
func (x Int) Neg() (Int, error) {
	return makeInt(!x.neg, x.abs)
}

// Cmp returns -1, 0 or +1.
func (x Int) Cmp(y Int) int {
	switch {
	case x.Sign() < y.Sign():
		return -1
	case x.Sign() > y.Sign():
		return 1
	case x.neg:
		return y.abs.Cmp(x.abs)
	default:
		return x.abs.Cmp(y.abs)
	}
}

// Add returns x + y.
func (x Int) Add(y Int) (Int, error) {
	if x.neg == y.neg {
		sum, err := x.abs.Add(y.abs)
		if err != nil {
			return Int{}, err
		}
		return makeInt(x.neg, sum)
	}
	if x.abs.GTE(y.abs) {
		return makeInt(x.neg, x.abs.SatSub(y.abs))
	}
	return makeInt(y.neg, y.abs.SatSub(x.abs))
}

// Sub returns x - y.
func (x Int) Sub(y Int) (Int, error) {
	return x.Add(Int{neg: !y.neg && !y.abs.IsZero(), abs: y.abs})
}

// AddUint returns x + u.
func (x Int) AddUint(u Uint) (Int, error) {
	return x.Add(Int{abs: u})
}

// SubUint returns x - u.
func (x Int) SubUint(u Uint) (Int, error) {
	return x.Add(Int{neg: !u.IsZero(), abs: u})
}

// MulDiv returns x * y / z, truncating the magnitude toward zero.
func (x Int) MulDiv(y, z Uint) (Int, error) {
	abs, err := x.abs.MulDiv(y, z)
	if err != nil {
		return Int{}, err
	}
	return makeInt(x.neg, abs)
}

// MulDivAwayFromZero returns x * y / z, rounding the magnitude up.
func (x Int) MulDivAwayFromZero(y, z Uint) (Int, error) {
	abs, err := x.abs.MulDivCeil(y, z)
	if err != nil {
		return Int{}, err
	}
	return makeInt(x.neg, abs)
}

// ToUint converts a non-negative x into a Uint.
func (x Int) ToUint() (Uint, error) {
	if x.neg {
		return Zero, fmt.Errorf("%w: negative value %s", ErrConvert, x)
	}
	return x.abs, nil
}

// PositivePart returns max(x, 0) as a Uint.
func (x Int) PositivePart() Uint {
	if x.neg {
		return Zero
	}
	return x.abs
}

// BigInt returns x as a big.Int.
func (x Int) BigInt() *big.Int {
	b := x.abs.BigInt()
	if x.neg {
		b.Neg(b)
	}
	return b
}

// String returns the base-10 representation.
func (x Int) String() string {
	if x.neg {
		return "-" + x.abs.String()
	}
	return x.abs.String()
}

// Decimal returns x as an integral decimal.
func (x Int) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(x.BigInt(), 0)
}

// Scaled returns x / 10^decimals as a decimal, for display.
func (x Int) Scaled(decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(x.BigInt(), -int32(decimals))
}

// MarshalText encodes x as a signed base-10 string.
func (x Int) MarshalText() ([]byte, error) {
	return []byte(x.String()), nil
}

// UnmarshalText parses a signed base-10 string.
func (x *Int) UnmarshalText(b []byte) error {
	v, err := IntFromString(string(b))
	if err != nil {
		return err
	}
	*x = v
	return nil
}

// MinInt returns the smaller of a and b.
func MinInt(a, b Int) Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}

// MaxInt returns the larger of a and b.
func MaxInt(a, b Int) Int {
	if a.Cmp(b) > 0 {
		return a
	}
	return b
}
