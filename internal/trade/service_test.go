package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/correlation"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/events"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/graph"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/simulator"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/store"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/trade"
)

var t0 = time.Unix(1_700_000_000, 0)

func u(v uint64) num.Uint { return num.NewUint(v) }

type testEnv struct {
	sim    *simulator.Simulator
	store  *store.MemoryStore
	events *events.Recorder
	router chi.Router
}

// newTestEnv creates a test Service over the test market with an in-memory
// store, a recording publisher and a chi router.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewManual(t0)
	sim := simulator.New(simulator.Options{Clock: clk}, nil)
	require.NoError(t, sim.AddMarket(market.NewForTest(clk)))
	for token, v := range map[string]uint64{"IDX": 120, "LONG": 120, "SHORT": 1} {
		require.NoError(t, sim.SetPrice(token, model.NewPrice(u(v)), t0))
	}
	rt, err := graph.NewRouter(sim, graph.Options{EstimationValue: u(1_000_000_000_000), Decimals: 9}, nil)
	require.NoError(t, err)
	ms := store.NewMemoryStore()
	rec := events.NewRecorder(events.DefaultPrefix)
	limiter := correlation.NewPositionLimiter(decimal.NewFromInt(10_000), decimal.NewFromInt(20_000))
	svc := trade.NewService(sim, rt, ms, limiter, rec, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return &testEnv{sim: sim, store: ms, events: rec, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeOutcome(t *testing.T, w *httptest.ResponseRecorder) simulator.Outcome {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var o simulator.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	return o
}

func (e *testEnv) fund(t *testing.T) {
	t.Helper()
	o := decodeOutcome(t, e.do(t, "POST", "/api/v1/deposit", simulator.DepositRequest{
		Market:           "GM",
		Owner:            "lp",
		LongTokenAmount:  u(1_000_000_000_000),
		ShortTokenAmount: u(100_000_000_000_000),
	}))
	require.True(t, o.Executed, o.Reason)
}

func openLong(size uint64) simulator.OrderRequest {
	return simulator.OrderRequest{
		Kind:            simulator.MarketIncrease,
		Owner:           "trader",
		Market:          "GM",
		IsLong:          true,
		CollateralToken: "SHORT",
		Amount:          u(1_000_000_000_000),
		SizeDeltaUSD:    u(size),
		AcceptablePrice: u(121),
	}
}

// --- Liquidity tests ---

func TestDeposit_RecordsAndPublishes(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t)

	records := env.events.Records()
	require.Len(t, records, 1)
	require.Equal(t, model.ActionDeposit, records[0].Kind)
	require.True(t, records[0].Executed)
	require.Equal(t, "engine.actions.deposit", env.events.Subjects()[0])

	snap, err := env.store.GetMarket(context.Background(), "GM")
	require.NoError(t, err, "market snapshot not saved")
	m, err := store.RestoreMarket(snap)
	require.NoError(t, err)
	require.NotZero(t, m.Supply, "snapshot should carry minted supply")

	w := env.do(t, "GET", "/api/v1/markets/GM/history", nil)
	var history []model.ActionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.Equal(t, "IDX/USD[LONG-SHORT]", history[0].Market)
}

func TestDeposit_SoftFailure(t *testing.T) {
	env := newTestEnv(t)

	o := decodeOutcome(t, env.do(t, "POST", "/api/v1/deposit", simulator.DepositRequest{
		Market:               "GM",
		LongTokenAmount:      u(1_000_000_000),
		MinMarketTokenAmount: 1 << 62,
	}))
	require.False(t, o.Executed)
	require.NotEmpty(t, o.Reason)

	_, err := env.store.GetMarket(context.Background(), "GM")
	require.Error(t, err, "failed action must not save a market snapshot")
	records, err := env.store.GetActionRecordsByMarket(context.Background(), "IDX/USD[LONG-SHORT]")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.False(t, records[0].Executed)
}

func TestDeposit_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"empty", simulator.DepositRequest{Market: "GM"}, http.StatusBadRequest},
		{"unknown market", simulator.DepositRequest{Market: "NOPE", LongTokenAmount: u(1)}, http.StatusNotFound},
		{"malformed", "not an object", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/deposit", tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

// --- Order tests ---

func TestCreateOrder_OpensPosition(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t)

	o := decodeOutcome(t, env.do(t, "POST", "/api/v1/orders", openLong(5_000_000_000_000)))
	require.True(t, o.Executed, o.Reason)

	w := env.do(t, "GET", "/api/v1/positions/trader", nil)
	var views []trade.PositionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1, w.Body.String())
	require.NotNil(t, views[0].Status)

	saved, err := env.store.GetPositionsByOwner(context.Background(), "trader")
	require.NoError(t, err)
	require.Len(t, saved, 1)
}

func TestCreateOrder_PositionLimit(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t)

	decodeOutcome(t, env.do(t, "POST", "/api/v1/orders", openLong(5_000_000_000_000)))

	// $5,000 open plus $6,000 exceeds the $10,000 per-market limit.
	w := env.do(t, "POST", "/api/v1/orders", openLong(6_000_000_000_000))
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Len(t, env.sim.Positions("trader"), 1, "rejected order must not change positions")
}

func TestCreateOrder_TriggerRequired(t *testing.T) {
	env := newTestEnv(t)
	req := openLong(5_000_000_000_000)
	req.Kind = simulator.LimitIncrease

	w := env.do(t, "POST", "/api/v1/orders", req)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestLiquidate(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t)
	decodeOutcome(t, env.do(t, "POST", "/api/v1/orders", openLong(5_000_000_000_000)))
	key := model.PositionKey("trader", "GM", "SHORT", true)

	o := decodeOutcome(t, env.do(t, "POST", "/api/v1/positions/liquidate", trade.PositionRequest{Key: key}))
	require.False(t, o.Executed, "healthy position should not be liquidated")

	w := env.do(t, "PUT", "/api/v1/prices/IDX", map[string]string{"price": "96"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	o = decodeOutcome(t, env.do(t, "POST", "/api/v1/positions/liquidate", trade.PositionRequest{Key: key}))
	require.True(t, o.Executed, o.Reason)

	saved, err := env.store.GetPositionsByOwner(context.Background(), "trader")
	require.NoError(t, err)
	require.Empty(t, saved, "liquidated position should be removed from the store")

	w = env.do(t, "POST", "/api/v1/positions/liquidate", trade.PositionRequest{Key: key})
	require.Equal(t, http.StatusNotFound, w.Code)
}

// --- Market and price tests ---

func TestCreateMarket(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/markets", map[string]any{
		"name":         "BTC/USD[WBTC-USDC]",
		"market_token": "GM_BTC",
		"config":       map[string]any{"swap_impact_exponent": "2", "reserve_factor": 900_000_000},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	m, err := env.sim.Market("BTC/USD[WBTC-USDC]")
	require.NoError(t, err, "market not added")
	require.Equal(t, "2000000000", m.Config.SwapImpactExponent.String())
	require.Equal(t, "900000000", m.Config.ReserveFactor.String())

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad name", map[string]any{"name": "BTC-USD", "market_token": "GM_X"}},
		{"duplicate", map[string]any{"name": "BTC/USD[WBTC-USDC]", "market_token": "GM_Y"}},
		{"unknown config key", map[string]any{"name": "ETH/USD[ETH-USDC]", "market_token": "GM_ETH", "config": map[string]any{"nope": "1"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/markets", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestGetMarket_NotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/v1/markets/NOPE", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["error"])
}

func TestSetPrice_Invalid(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "PUT", "/api/v1/prices/IDX", map[string]string{"min": "10", "max": "5"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestGetRoute(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t)

	w := env.do(t, "GET", "/api/v1/route?from=LONG&to=SHORT", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var route graph.Route
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &route))
	require.Equal(t, []string{"GM"}, route.Markets)

	w = env.do(t, "GET", "/api/v1/route?from=LONG", nil)
	require.Equal(t, http.StatusBadRequest, w.Code, "missing to")
	w = env.do(t, "GET", "/api/v1/route?from=LONG&to=DOGE", nil)
	require.Equal(t, http.StatusNotFound, w.Code, "unknown token")
}
