package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/simulator"
)

var t0 = time.Unix(1_700_000_000, 0)

// rate is an exchange rate num/den.
type rate struct{ num, den uint64 }

type fakeEstimator struct {
	markets []*market.Market
	rates   map[string]rate // "<market token>:<token in>"
	calls   atomic.Int32
}

func (f *fakeEstimator) Markets() []*market.Market { return f.markets }

func (f *fakeEstimator) Price(string) (model.Price, error) {
	return model.NewPrice(num.NewUint(1)), nil
}

func (f *fakeEstimator) EstimateSwap(id, tokenIn string, amount num.Uint) (string, num.Uint, error) {
	f.calls.Add(1)
	for _, m := range f.markets {
		if m.Meta.MarketToken != id {
			continue
		}
		r, ok := f.rates[id+":"+tokenIn]
		if !ok {
			return "", num.Zero, errors.New("no liquidity")
		}
		out, err := amount.MulDiv(num.NewUint(r.num), num.NewUint(r.den))
		if err != nil {
			return "", num.Zero, err
		}
		tokenOut, err := m.Meta.Opposite(tokenIn)
		return tokenOut, out, err
	}
	return "", num.Zero, errors.New("unknown market")
}

func pairMarket(t *testing.T, token, long, short string) *market.Market {
	t.Helper()
	m, err := market.New(long+"-"+short, market.Meta{MarketToken: token, IndexToken: long, LongToken: long, ShortToken: short}, 9, market.DefaultConfig(9), t0)
	require.NoError(t, err)
	return m
}

func triangle(t *testing.T) *fakeEstimator {
	return &fakeEstimator{
		markets: []*market.Market{
			pairMarket(t, "GM1", "A", "B"),
			pairMarket(t, "GM2", "B", "C"),
			pairMarket(t, "GM3", "A", "C"),
		},
		rates: map[string]rate{
			"GM1:A": {2, 1},
			"GM1:B": {49, 100},
			"GM2:B": {3, 1},
			"GM2:C": {33, 100},
			"GM3:A": {5, 1},
			"GM3:C": {15, 100},
		},
	}
}

func newRouter(t *testing.T, est Estimator) *Router {
	t.Helper()
	r, err := NewRouter(est, Options{EstimationValue: num.NewUint(1_000_000_000), Decimals: 9}, nil)
	require.NoError(t, err)
	return r
}

func TestBestRoute_PrefersCompoundRate(t *testing.T) {
	r := newRouter(t, triangle(t))

	route, err := r.BestRoute(context.Background(), "A", "C")
	require.NoError(t, err)
	require.Equal(t, []string{"GM1", "GM2"}, route.Markets)
	require.Equal(t, []string{"A", "B", "C"}, route.Tokens)
	require.InDelta(t, 6.0, route.Rate.InexactFloat64(), 1e-6)

	route, err = r.BestRoute(context.Background(), "C", "A")
	require.NoError(t, err)
	require.Equal(t, []string{"GM2", "GM1"}, route.Markets)
}

func TestBestRoute_CachesUntilInvalidated(t *testing.T) {
	est := triangle(t)
	r := newRouter(t, est)
	ctx := context.Background()

	_, err := r.BestRoute(ctx, "A", "C")
	require.NoError(t, err)
	calls := est.calls.Load()
	require.EqualValues(t, 6, calls)

	_, err = r.BestRoute(ctx, "A", "C")
	require.NoError(t, err)
	_, err = r.BestRoute(ctx, "B", "A")
	require.NoError(t, err)
	require.Equal(t, calls, est.calls.Load())

	r.Invalidate()
	_, err = r.BestRoute(ctx, "A", "C")
	require.NoError(t, err)
	require.Equal(t, 2*calls, est.calls.Load())
}

func TestBestRoute_DropsRouteFromInvalidatedEdges(t *testing.T) {
	est := triangle(t)
	r := newRouter(t, est)
	ctx := context.Background()

	edges, gen, err := r.estimate(ctx)
	require.NoError(t, err)
	route, err := shortest(edges, "A", "C")
	require.NoError(t, err)

	r.Invalidate()
	require.False(t, r.remember("A->C", route, gen))
	_, ok := r.cache.Get("A->C")
	require.False(t, ok)

	calls := est.calls.Load()
	_, err = r.BestRoute(ctx, "A", "C")
	require.NoError(t, err)
	require.Greater(t, est.calls.Load(), calls, "edges should be estimated again")
	_, ok = r.cache.Get("A->C")
	require.True(t, ok)
}

func TestBestRoute_SkipsFailedEstimates(t *testing.T) {
	est := triangle(t)
	delete(est.rates, "GM1:A")
	r := newRouter(t, est)

	route, err := r.BestRoute(context.Background(), "A", "C")
	require.NoError(t, err)
	require.Equal(t, []string{"GM3"}, route.Markets)
}

func TestBestRoute_Errors(t *testing.T) {
	r := newRouter(t, triangle(t))
	ctx := context.Background()

	_, err := r.BestRoute(ctx, "A", "D")
	require.ErrorIs(t, err, ErrNoRoute)
	_, err = r.BestRoute(ctx, "A", "A")
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	arb := triangle(t)
	arb.rates["GM3:C"] = rate{1, 4}
	_, err = newRouter(t, arb).BestRoute(ctx, "A", "C")
	require.ErrorIs(t, err, ErrArbitrage)

	_, err = NewRouter(arb, Options{}, nil)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestBestRoute_OverSimulator(t *testing.T) {
	clk := clock.NewManual(t0)
	s := simulator.New(simulator.Options{Clock: clk}, nil)
	require.NoError(t, s.AddMarket(market.NewForTest(clk)))
	for token, v := range map[string]uint64{"IDX": 120, "LONG": 120, "SHORT": 1} {
		require.NoError(t, s.SetPrice(token, model.NewPrice(num.NewUint(v)), t0))
	}
	o, err := s.SimulateDeposit(context.Background(), simulator.DepositRequest{
		Market:           "GM",
		LongTokenAmount:  num.NewUint(1_000_000_000_000),
		ShortTokenAmount: num.NewUint(120_000_000_000_000),
	})
	require.NoError(t, err)
	require.True(t, o.Executed, o.Reason)

	r, err := NewRouter(s, Options{EstimationValue: num.NewUint(1_000_000_000_000), Decimals: 9}, nil)
	require.NoError(t, err)
	route, err := r.BestRoute(context.Background(), "LONG", "SHORT")
	require.NoError(t, err)
	require.Equal(t, []string{"GM"}, route.Markets)
	require.InDelta(t, 120.0, route.Rate.InexactFloat64(), 1.0)
}
