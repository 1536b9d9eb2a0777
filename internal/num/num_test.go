package num

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestUint_CheckedArithmetic(t *testing.T) {
	a := NewUint(10)
	b := NewUint(3)

	sum, err := a.Add(b)
	require.NoError(t, err)
	require.Equal(t, "13", sum.String())

	_, err = b.Sub(a)
	require.ErrorIs(t, err, ErrComputation)

	q, err := a.Div(b)
	require.NoError(t, err)
	require.Equal(t, "3", q.String())

	c, err := a.DivCeil(b)
	require.NoError(t, err)
	require.Equal(t, "4", c.String())

	_, err = a.Div(Zero)
	require.ErrorIs(t, err, ErrComputation)
}

func TestUint_128BitBound(t *testing.T) {
	_, err := MaxUint.Add(NewUint(1))
	require.ErrorIs(t, err, ErrComputation)

	_, err = MaxUint.Mul(NewUint(2))
	require.ErrorIs(t, err, ErrComputation)

	_, err = UintFromString("340282366920938463463374607431768211456")
	require.ErrorIs(t, err, ErrConvert)
}

func TestUint_MulDivUsesWideIntermediate(t *testing.T) {
	// The product needs 256 bits; the quotient fits back into 128.
	r, err := MaxUint.MulDiv(MaxUint, MaxUint)
	require.NoError(t, err)
	require.True(t, r.EQ(MaxUint))

	r, err = NewUint(7).MulDivCeil(NewUint(3), NewUint(2))
	require.NoError(t, err)
	require.Equal(t, "11", r.String())

	r, err = NewUint(8).MulDivCeil(NewUint(3), NewUint(2))
	require.NoError(t, err)
	require.Equal(t, "12", r.String())
}

func TestUint_NarrowToU64(t *testing.T) {
	v, err := NewUint(42).Uint64()
	require.NoError(t, err)
	require.EqualValues(t, 42, v)

	tooBig := MustUint("18446744073709551616")
	_, err = tooBig.Uint64()
	require.ErrorIs(t, err, ErrOverflow)
}

func TestUint_JSONRoundTripAsString(t *testing.T) {
	v := MustUint("120000000000000000000")
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, `"120000000000000000000"`, string(b))

	var back Uint
	require.NoError(t, json.Unmarshal(b, &back))
	require.True(t, back.EQ(v))
}

func TestInt_SignedArithmetic(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		sum  string
		diff string
	}{
		{"both positive", 5, 3, "8", "2"},
		{"mixed signs", 5, -8, "-3", "13"},
		{"both negative", -5, -3, "-8", "-2"},
		{"cancel to zero", 7, -7, "0", "14"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewInt(tt.a).Add(NewInt(tt.b))
			require.NoError(t, err)
			require.Equal(t, tt.sum, s.String())

			d, err := NewInt(tt.a).Sub(NewInt(tt.b))
			require.NoError(t, err)
			require.Equal(t, tt.diff, d.String())
		})
	}
}

func TestInt_ZeroIsNeverNegative(t *testing.T) {
	z, err := NewInt(-4).Add(NewInt(4))
	require.NoError(t, err)
	require.False(t, z.IsNegative())
	require.Equal(t, 0, z.Sign())
}

func TestInt_I128Bounds(t *testing.T) {
	_, err := ToSigned(MaxUint)
	require.ErrorIs(t, err, ErrConvert)

	lowest, err := NegativeOf(minIntAbs)
	require.NoError(t, err)
	_, err = lowest.Neg()
	require.ErrorIs(t, err, ErrComputation)

	_, err = NewInt(-1).ToUint()
	require.ErrorIs(t, err, ErrConvert)
}

func TestApplyFactor(t *testing.T) {
	unit := Pow10(9)
	half := MustUint("500000000")

	v, err := ApplyFactor(NewUint(1001), half, unit)
	require.NoError(t, err)
	require.Equal(t, "500", v.String())

	v, err = ApplyFactorCeil(NewUint(1001), half, unit)
	require.NoError(t, err)
	require.Equal(t, "501", v.String())

	f, err := DivToFactor(NewUint(1), NewUint(4), unit, false)
	require.NoError(t, err)
	require.Equal(t, "250000000", f.String())
}

func TestPowFactor(t *testing.T) {
	unit := Pow10(9)

	// Exponent 1 is the identity.
	v, err := PowFactor(NewUint(123456), unit, unit)
	require.NoError(t, err)
	require.Equal(t, "123456", v.String())

	// (4.0)^2 = 16.0
	four := MustUint("4000000000")
	two := MustUint("2000000000")
	v, err = PowFactor(four, two, unit)
	require.NoError(t, err)
	require.Equal(t, "16000000000", v.String())

	// (4.0)^0.5 = 2.0, allowing one unit of truncation.
	v, err = PowFactor(four, MustUint("500000000"), unit)
	require.NoError(t, err)
	require.True(t, v.GTE(MustUint("1999999999")) && v.LTE(MustUint("2000000000")), "got %s", v)

	v, err = PowFactor(Zero, two, unit)
	require.NoError(t, err)
	require.True(t, v.IsZero())
}

func TestScaledDisplay(t *testing.T) {
	v := MustUint("1234500000")
	require.True(t, v.Scaled(9).Equal(decimal.RequireFromString("1.2345")))

	n, err := NegativeOf(v)
	require.NoError(t, err)
	require.True(t, n.Scaled(9).Equal(decimal.RequireFromString("-1.2345")))

	back, err := UintFromScaled(decimal.RequireFromString("1.2345"), 9)
	require.NoError(t, err)
	require.True(t, back.EQ(v))
}
