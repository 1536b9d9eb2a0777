package pool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

func u(v uint64) num.Uint { return num.NewUint(v) }

func mustApply(t *testing.T, p *Pool, isLong bool, delta int64) {
	t.Helper()
	require.NoError(t, p.ApplyDelta(isLong, num.NewInt(delta)))
}

func TestApplyDelta_NeverNegative(t *testing.T) {
	p := New(false)
	mustApply(t, &p, true, 100)
	mustApply(t, &p, false, 40)

	err := p.ApplyDelta(false, num.NewInt(-41))
	require.ErrorIs(t, err, model.ErrComputation)
	// Failed delta leaves the pool untouched.
	require.True(t, p.ShortAmount().EQ(u(40)))

	mustApply(t, &p, true, -100)
	require.True(t, p.LongAmount().IsZero())
}

func TestPurePool_SplitInvariant(t *testing.T) {
	for _, total := range []int64{0, 1, 2, 3, 1001, 4001, 999999999} {
		p := New(true)
		mustApply(t, &p, true, total)
		sum, err := p.LongAmount().Add(p.ShortAmount())
		require.NoError(t, err)
		require.True(t, sum.EQ(u(uint64(total))), "total=%d", total)
		require.True(t, p.LongAmount().GTE(p.ShortAmount()))
	}
}

func TestPurePool_ShortDeltaGoesToSingleBalance(t *testing.T) {
	p := New(true)
	mustApply(t, &p, true, 1001)
	mustApply(t, &p, false, 3000)

	require.True(t, p.LongTokenAmount.EQ(u(4001)))
	require.True(t, p.ShortTokenAmount.IsZero())
	require.True(t, p.LongAmount().EQ(u(2001)))
	require.True(t, p.ShortAmount().EQ(u(2000)))
}

func TestCancelAmounts(t *testing.T) {
	tests := []struct {
		name                string
		long, short         int64
		wantLong, wantShort uint64
	}{
		{"short larger", 1000, 3000, 0, 2000},
		{"long larger", 3005, 3000, 5, 0},
		{"equal", 3000, 3000, 0, 0},
		{"empty", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(false)
			mustApply(t, &p, true, tt.long)
			mustApply(t, &p, false, tt.short)

			once := p.CancelAmounts()
			require.True(t, once.LongAmount().EQ(u(tt.wantLong)))
			require.True(t, once.ShortAmount().EQ(u(tt.wantShort)))

			twice := once.CancelAmounts()
			require.Equal(t, once, twice)
		})
	}
}

func TestCancelAmounts_Pure(t *testing.T) {
	p := New(true)
	mustApply(t, &p, true, 1001)
	mustApply(t, &p, false, 3000)

	c := p.CancelAmounts()
	require.True(t, c.LongTokenAmount.EQ(u(1)))
	require.Equal(t, c, c.CancelAmounts())

	p = New(true)
	mustApply(t, &p, true, 4000)
	require.True(t, p.CancelAmounts().LongTokenAmount.IsZero())
}

func TestPools_KindsAndPurity(t *testing.T) {
	pools := NewPools(true)
	for _, k := range Kinds() {
		p, err := pools.Get(k)
		require.NoError(t, err, k.String())
		switch k {
		case PositionImpact, BorrowingFactor, TotalBorrowing:
			require.False(t, p.IsPure, k.String())
		default:
			require.True(t, p.IsPure, k.String())
		}
	}

	_, err := pools.Get(Kind(200))
	require.ErrorIs(t, err, model.ErrMissingPoolKind)
	require.Len(t, Kinds(), 16)
}

func TestPools_GetReturnsLiveReference(t *testing.T) {
	pools := NewPools(false)
	p, err := pools.Get(ClaimableFee)
	require.NoError(t, err)
	require.NoError(t, p.ApplyDeltaAmount(true, u(7)))
	require.True(t, pools.ClaimableFee.LongAmount().EQ(u(7)))
}
