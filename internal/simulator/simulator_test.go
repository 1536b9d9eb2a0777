package simulator

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/glv"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

var t0 = time.Unix(1_700_000_000, 0)

func u(v uint64) num.Uint { return num.NewUint(v) }

func newSim(t *testing.T, opts Options) (*Simulator, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	opts.Clock = clk
	s := New(opts, nil)
	require.NoError(t, s.AddMarket(market.NewForTest(clk)))
	setPrice(t, s, "IDX", 120)
	setPrice(t, s, "LONG", 120)
	setPrice(t, s, "SHORT", 1)
	return s, clk
}

func setPrice(t *testing.T, s *Simulator, token string, v uint64) {
	t.Helper()
	require.NoError(t, s.SetPrice(token, model.NewPrice(u(v)), s.Now()))
}

func fund(t *testing.T, s *Simulator) {
	t.Helper()
	o, err := s.SimulateDeposit(context.Background(), DepositRequest{
		Market:           "GM",
		Owner:            "lp",
		LongTokenAmount:  u(1_000_000_000_000),
		ShortTokenAmount: u(100_000_000_000_000),
	})
	require.NoError(t, err)
	require.True(t, o.Executed, o.Reason)
}

func openLong(t *testing.T, s *Simulator) *Outcome {
	t.Helper()
	o, err := s.SimulateOrder(context.Background(), OrderRequest{
		Kind:            MarketIncrease,
		Owner:           "trader",
		Market:          "GM",
		IsLong:          true,
		CollateralToken: "SHORT",
		Amount:          u(1_000_000_000_000),
		SizeDeltaUSD:    u(5_000_000_000_000),
		AcceptablePrice: u(121),
	})
	require.NoError(t, err)
	return o
}

var longKey = model.PositionKey("trader", "GM", "SHORT", true)

func TestSimulateDeposit_Commits(t *testing.T) {
	s, _ := newSim(t, Options{})
	o, err := s.SimulateDeposit(context.Background(), DepositRequest{Market: "IDX/USD[LONG-SHORT]", Owner: "lp", LongTokenAmount: u(1_000_000_000)})
	require.NoError(t, err)
	require.True(t, o.Executed)
	require.NotEmpty(t, o.ID)
	require.Equal(t, model.ActionDeposit, o.Kind)

	m, err := s.Market("GM")
	require.NoError(t, err)
	require.EqualValues(t, 119_913_120_000, m.Supply)

	rec, err := o.Record()
	require.NoError(t, err)
	require.True(t, rec.Executed)
	require.Contains(t, string(rec.Report), `"mint_amount":119913120000`)
}

func TestSimulate_SoftFailureLeavesBookUntouched(t *testing.T) {
	s, _ := newSim(t, Options{})
	req := DepositRequest{Market: "GM", LongTokenAmount: u(1_000_000_000), MinMarketTokenAmount: math.MaxUint64}

	o, err := s.SimulateDeposit(context.Background(), req)
	require.NoError(t, err)
	require.False(t, o.Executed)
	require.Contains(t, o.Reason, "insufficient output")
	m, err := s.Market("GM")
	require.NoError(t, err)
	require.Zero(t, m.Supply)
	require.True(t, m.Pools.Primary.LongAmount().IsZero())

	strict, _ := newSim(t, Options{ThrowOnExecutionError: true})
	_, err = strict.SimulateDeposit(context.Background(), req)
	require.ErrorIs(t, err, model.ErrInsufficientOutput)
}

func TestSimulate_ExpiredPrices(t *testing.T) {
	s, clk := newSim(t, Options{MaxPriceAge: time.Minute})
	clk.Advance(2 * time.Minute)

	o, err := s.SimulateDeposit(context.Background(), DepositRequest{Market: "GM", LongTokenAmount: u(1_000_000_000)})
	require.NoError(t, err)
	require.False(t, o.Executed)
	require.Equal(t, ReasonPriceExpired, o.Reason)

	// Refreshing one token is not enough: the snapshot is as old as its
	// oldest price.
	setPrice(t, s, "LONG", 120)
	o, err = s.SimulateDeposit(context.Background(), DepositRequest{Market: "GM", LongTokenAmount: u(1_000_000_000)})
	require.NoError(t, err)
	require.False(t, o.Executed)

	setPrice(t, s, "IDX", 120)
	setPrice(t, s, "SHORT", 1)
	o, err = s.SimulateDeposit(context.Background(), DepositRequest{Market: "GM", LongTokenAmount: u(1_000_000_000)})
	require.NoError(t, err)
	require.True(t, o.Executed)
}

func TestSimulate_RequestErrors(t *testing.T) {
	s, _ := newSim(t, Options{})
	ctx := context.Background()

	_, err := s.SimulateDeposit(ctx, DepositRequest{Market: "GM"})
	require.ErrorIs(t, err, model.ErrEmptyAction)

	_, err = s.SimulateDeposit(ctx, DepositRequest{Market: "NOPE", LongTokenAmount: u(1)})
	require.ErrorIs(t, err, ErrMarketNotFound)

	s2 := New(Options{Clock: clock.NewManual(t0)}, nil)
	require.NoError(t, s2.AddMarket(market.NewForTest(clock.NewManual(t0))))
	_, err = s2.SimulateDeposit(ctx, DepositRequest{Market: "GM", LongTokenAmount: u(1)})
	require.ErrorIs(t, err, ErrPriceNotReady)

	require.ErrorIs(t, s.AddMarket(market.NewForTest(clock.NewManual(t0))), model.ErrInvalidArgument)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.SimulateDeposit(cancelled, DepositRequest{Market: "GM", LongTokenAmount: u(1)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCheckTrigger(t *testing.T) {
	index := model.Price{Min: u(99), Max: u(101)}
	for name, tc := range map[string]struct {
		kind    OrderKind
		isLong  bool
		trigger uint64
		ok      bool
	}{
		"market always passes":         {MarketIncrease, true, 1, true},
		"limit increase long reached":  {LimitIncrease, true, 101, true},
		"limit increase long pending":  {LimitIncrease, true, 100, false},
		"limit increase short reached": {LimitIncrease, false, 99, true},
		"limit increase short pending": {LimitIncrease, false, 100, false},
		"limit decrease long reached":  {LimitDecrease, true, 99, true},
		"limit decrease long pending":  {LimitDecrease, true, 100, false},
		"limit decrease short reached": {LimitDecrease, false, 101, true},
		"limit decrease short pending": {LimitDecrease, false, 100, false},
		"stop loss long reached":       {StopLossDecrease, true, 99, true},
		"stop loss long pending":       {StopLossDecrease, true, 98, false},
		"stop loss short reached":      {StopLossDecrease, false, 101, true},
		"stop loss short pending":      {StopLossDecrease, false, 102, false},
	} {
		t.Run(name, func(t *testing.T) {
			err := CheckTrigger(tc.kind, tc.isLong, index, u(tc.trigger))
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrTriggerNotReached)
			}
		})
	}
}

func TestSimulateOrder_PositionLifecycle(t *testing.T) {
	s, _ := newSim(t, Options{})
	fund(t, s)
	ctx := context.Background()

	o := openLong(t, s)
	require.True(t, o.Executed, o.Reason)
	require.Len(t, s.Positions("trader"), 1)
	p, ok := s.Position(longKey)
	require.True(t, ok)
	require.Equal(t, "5000000000000", p.SizeInUSD.String())

	// The index is at 120, above the stop.
	stop := OrderRequest{
		Kind:            StopLossDecrease,
		Owner:           "trader",
		Market:          "GM",
		IsLong:          true,
		CollateralToken: "SHORT",
		SizeDeltaUSD:    u(5_000_000_000_000),
		TriggerPrice:    u(110),
	}
	o, err := s.SimulateOrder(ctx, stop)
	require.NoError(t, err)
	require.False(t, o.Executed)
	require.Contains(t, o.Reason, "trigger price not reached")
	require.Len(t, s.Positions("trader"), 1)

	st, err := s.PositionStatus(longKey)
	require.NoError(t, err)
	require.NotNil(t, st.LiquidationPrice)

	setPrice(t, s, "IDX", 100)
	o, err = s.SimulateOrder(ctx, stop)
	require.NoError(t, err)
	require.True(t, o.Executed, o.Reason)
	require.Empty(t, s.Positions("trader"))

	_, err = s.SimulateOrder(ctx, stop)
	require.ErrorIs(t, err, ErrPositionNotFound)

	stop.TriggerPrice = num.Zero
	_, err = s.SimulateOrder(ctx, stop)
	require.ErrorIs(t, err, ErrTriggerPriceRequired)
}

func TestSimulateOrder_LimitIncreaseWaitsForTrigger(t *testing.T) {
	s, _ := newSim(t, Options{})
	fund(t, s)
	req := OrderRequest{
		Kind:            LimitIncrease,
		Owner:           "trader",
		Market:          "GM",
		IsLong:          true,
		CollateralToken: "SHORT",
		Amount:          u(1_000_000_000_000),
		SizeDeltaUSD:    u(5_000_000_000_000),
		TriggerPrice:    u(115),
	}
	o, err := s.SimulateOrder(context.Background(), req)
	require.NoError(t, err)
	require.False(t, o.Executed)
	require.Empty(t, s.Positions("trader"))

	require.NoError(t, s.ApplyTriggerPrice(req))
	price, err := s.Price("IDX")
	require.NoError(t, err)
	require.Equal(t, "115", price.Max.String())

	o, err = s.SimulateOrder(context.Background(), req)
	require.NoError(t, err)
	require.True(t, o.Executed, o.Reason)
	require.Len(t, s.Positions("trader"), 1)
}

func TestSimulateOrder_LimitSwap(t *testing.T) {
	s, _ := newSim(t, Options{})
	fund(t, s)
	ctx := context.Background()
	req := OrderRequest{
		Kind:            LimitSwap,
		Owner:           "trader",
		InitialToken:    "LONG",
		CollateralToken: "SHORT",
		SwapPath:        []string{"GM"},
		Amount:          u(1_000_000),
		MinOutputAmount: u(1_000_000_000),
	}
	o, err := s.SimulateOrder(ctx, req)
	require.NoError(t, err)
	require.False(t, o.Executed)

	req.MinOutputAmount = u(100_000_000)
	o, err = s.SimulateOrder(ctx, req)
	require.NoError(t, err)
	require.True(t, o.Executed, o.Reason)

	req.MinOutputAmount = num.Zero
	_, err = s.SimulateOrder(ctx, req)
	require.ErrorIs(t, err, ErrTriggerPriceRequired)
}

func TestSwapAlongPath(t *testing.T) {
	s, _ := newSim(t, Options{})
	fund(t, s)

	_, err := s.SwapAlongPath([]string{"GM"}, "IDX", u(1))
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	_, err = s.SwapAlongPath([]string{"GM", "GM"}, "LONG", u(1))
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	r, err := s.SwapAlongPath([]string{"GM"}, "LONG", u(1_000_000))
	require.NoError(t, err)
	require.Equal(t, "SHORT", r.TokenOut)
	require.False(t, r.AmountOut.IsZero())
}

func TestEstimateSwap_DoesNotCommit(t *testing.T) {
	s, _ := newSim(t, Options{})
	fund(t, s)
	before, err := s.Market("GM")
	require.NoError(t, err)

	token, out, err := s.EstimateSwap("GM", "SHORT", u(120_000_000))
	require.NoError(t, err)
	require.Equal(t, "LONG", token)
	require.False(t, out.IsZero())

	after, err := s.Market("GM")
	require.NoError(t, err)
	require.Equal(t, before.Pools, after.Pools)
}

func TestLiquidate(t *testing.T) {
	s, _ := newSim(t, Options{})
	fund(t, s)
	require.True(t, openLong(t, s).Executed)
	ctx := context.Background()

	o, err := s.Liquidate(ctx, longKey)
	require.NoError(t, err)
	require.False(t, o.Executed)
	require.Contains(t, o.Reason, "not liquidatable")

	setPrice(t, s, "IDX", 96)
	o, err = s.Liquidate(ctx, longKey)
	require.NoError(t, err)
	require.True(t, o.Executed, o.Reason)
	require.Empty(t, s.Positions("trader"))

	_, err = s.Liquidate(ctx, longKey)
	require.ErrorIs(t, err, ErrPositionNotFound)
}

func TestGlvValue(t *testing.T) {
	s, _ := newSim(t, Options{})
	fund(t, s)
	m, err := s.Market("GM")
	require.NoError(t, err)

	g := glv.New("GLV", "LONG", "SHORT")
	require.NoError(t, g.Add(m, u(m.Supply)))
	require.NoError(t, s.AddGlv(g))

	min, max, err := s.GlvValue("GLV")
	require.NoError(t, err)
	require.False(t, min.IsZero())
	require.True(t, min.LTE(max))

	_, _, err = s.GlvValue("NOPE")
	require.ErrorIs(t, err, ErrGlvNotFound)
}
