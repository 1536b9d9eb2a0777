// Package trade provides the HTTP handlers around the simulator: market
// management, price updates, liquidity and swap actions, orders, position
// queries and swap routing.
//
// Every amount crosses the wire as a base-10 string of a fixed-point
// integer, never float64.
package trade

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/config"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/correlation"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/events"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/graph"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/metrics"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/position"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/simulator"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/store"
)

// Service handles engine operations. The simulator serializes actions;
// the service mutex keeps persistence of consecutive actions in order.
type Service struct {
	sim     *simulator.Simulator
	router  *graph.Router
	store   store.Store
	limiter *correlation.PositionLimiter
	events  events.Publisher // optional
	wsHub   *WSHub           // optional WebSocket hub for real-time broadcasts
	mu      sync.Mutex
}

// NewService creates a new trade service.
// Pass nil for pub or hub if publication or broadcasting is not needed.
func NewService(sim *simulator.Simulator, router *graph.Router, st store.Store,
	limiter *correlation.PositionLimiter, pub events.Publisher, hub *WSHub) *Service {
	return &Service{
		sim:     sim,
		router:  router,
		store:   st,
		limiter: limiter,
		events:  pub,
		wsHub:   hub,
	}
}

// Routes registers the engine endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/markets", s.ListMarkets)
	r.Post("/markets", s.CreateMarket)
	r.Get("/markets/{marketID}", s.GetMarket)
	r.Get("/markets/{marketID}/status", s.GetMarketStatus)
	r.Get("/markets/{marketID}/history", s.GetMarketHistory)

	r.Put("/prices/{token}", s.SetPrice)

	r.Post("/deposit", s.Deposit)
	r.Post("/withdrawal", s.Withdrawal)
	r.Post("/shift", s.Shift)
	r.Post("/swap", s.Swap)
	r.Post("/orders", s.CreateOrder)

	r.Post("/positions/liquidate", s.Liquidate)
	r.Post("/positions/adl", s.AutoDeleverage)
	r.Get("/positions/{owner}", s.GetPositions)

	r.Get("/route", s.GetRoute)
	r.Get("/glvs/{name}/value", s.GetGlvValue)
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation. Config
// overrides follow the market preset rules: strings are human-readable
// decimals, integers raw units.
type CreateMarketRequest struct {
	Name        string         `json:"name"` // INDEX/USD[LONG-SHORT]
	MarketToken string         `json:"market_token"`
	Decimals    uint8          `json:"decimals"`
	Pure        bool           `json:"pure"`
	Config      map[string]any `json:"config"`
}

// PriceRequest is the JSON body for PUT /prices/{token}. Either Price or
// both Min and Max must be set.
type PriceRequest struct {
	Price num.Uint `json:"price"`
	Min   num.Uint `json:"min"`
	Max   num.Uint `json:"max"`
}

// PositionRequest is the JSON body for liquidation and auto-deleveraging.
type PositionRequest struct {
	Key          string   `json:"key"`
	SizeDeltaUSD num.Uint `json:"size_delta_usd"` // auto-deleveraging only
}

// PositionView is an open position with its status at book prices.
type PositionView struct {
	Position *position.Position `json:"position"`
	Status   *position.Status   `json:"status,omitempty"`
	Error    string             `json:"status_error,omitempty"`
}

// GlvValueResponse is the JSON body returned from GET /glvs/{name}/value.
type GlvValueResponse struct {
	Name string   `json:"name"`
	Min  num.Uint `json:"min"`
	Max  num.Uint `json:"max"`
}

// --- Market handlers ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	preset := config.MarketPreset{
		Name:        req.Name,
		MarketToken: req.MarketToken,
		Decimals:    req.Decimals,
		Pure:        req.Pure,
		Config:      req.Config,
	}
	m, err := preset.Build(s.sim.Now())
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.sim.AddMarket(m); err != nil {
		writeErr(w, err)
		return
	}

	ctx := r.Context()
	s.mu.Lock()
	s.persistMarkets(ctx, m.Meta.MarketToken)
	s.mu.Unlock()
	s.router.Invalidate()
	metrics.ActiveMarkets.Inc()

	slog.Info("market created",
		"name", m.Name,
		"market_token", m.Meta.MarketToken,
		"decimals", m.Decimals,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: MessageMarketAdded, Market: m.Name})
	}

	created, err := s.sim.Market(m.Meta.MarketToken)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListMarkets handles GET /api/v1/markets
// Returns all markets, optionally filtered by ?index_token=<symbol>.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.sim.Markets()
	if index := r.URL.Query().Get("index_token"); index != "" {
		filtered := make([]*market.Market, 0, len(markets))
		for _, m := range markets {
			if m.Meta.IndexToken == index {
				filtered = append(filtered, m)
			}
		}
		markets = filtered
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.sim.Market(chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetMarketStatus handles GET /api/v1/markets/{marketID}/status
func (s *Service) GetMarketStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.sim.MarketStatus(chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetMarketHistory handles GET /api/v1/markets/{marketID}/history
// Returns the action records of the market in execution order.
func (s *Service) GetMarketHistory(w http.ResponseWriter, r *http.Request) {
	m, err := s.sim.Market(chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	records, err := s.store.GetActionRecordsByMarket(r.Context(), m.Name)
	if err != nil {
		writeError(w, "failed to get market history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.ActionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// SetPrice handles PUT /api/v1/prices/{token}
func (s *Service) SetPrice(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	price := model.Price{Min: req.Min, Max: req.Max}
	if !req.Price.IsZero() {
		price = model.NewPrice(req.Price)
	}
	if err := s.sim.SetPrice(token, price, s.sim.Now()); err != nil {
		writeErr(w, err)
		return
	}
	s.router.Invalidate()
	s.refreshGauges()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: MessagePriceUpdated, Token: token, Price: &price})
	}
	writeJSON(w, http.StatusOK, price)
}

// --- Action handlers ---

// Deposit handles POST /api/v1/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	var req simulator.DepositRequest
	if !decode(w, r, &req) {
		return
	}
	s.run(w, r, nil, []string{req.Market}, func(ctx context.Context) (*simulator.Outcome, error) {
		return s.sim.SimulateDeposit(ctx, req)
	})
}

// Withdrawal handles POST /api/v1/withdrawal
func (s *Service) Withdrawal(w http.ResponseWriter, r *http.Request) {
	var req simulator.WithdrawalRequest
	if !decode(w, r, &req) {
		return
	}
	s.run(w, r, nil, []string{req.Market}, func(ctx context.Context) (*simulator.Outcome, error) {
		return s.sim.SimulateWithdrawal(ctx, req)
	})
}

// Shift handles POST /api/v1/shift
func (s *Service) Shift(w http.ResponseWriter, r *http.Request) {
	var req simulator.ShiftRequest
	if !decode(w, r, &req) {
		return
	}
	s.run(w, r, nil, []string{req.From, req.To}, func(ctx context.Context) (*simulator.Outcome, error) {
		return s.sim.SimulateShift(ctx, req)
	})
}

// Swap handles POST /api/v1/swap
func (s *Service) Swap(w http.ResponseWriter, r *http.Request) {
	var req simulator.SwapRequest
	if !decode(w, r, &req) {
		return
	}
	s.run(w, r, nil, req.Path, func(ctx context.Context) (*simulator.Outcome, error) {
		return s.sim.SimulateSwap(ctx, req)
	})
}

// CreateOrder handles POST /api/v1/orders
// Increase orders are checked against the exposure limits first.
func (s *Service) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req simulator.OrderRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Owner == "" && !req.Kind.IsSwap() {
		writeError(w, "owner is required", http.StatusBadRequest)
		return
	}

	var keys []string
	touched := append([]string{}, req.SwapPath...)
	if !req.Kind.IsSwap() {
		m, err := s.sim.Market(req.Market)
		if err != nil {
			writeErr(w, err)
			return
		}
		if req.Kind.IsIncrease() {
			if err := s.checkLimit(m, req); err != nil {
				metrics.PositionLimitRejections.Inc()
				writeErr(w, err)
				return
			}
		}
		keys = []string{req.PositionKey(m)}
		touched = append(touched, m.Meta.MarketToken)
	}

	s.run(w, r, keys, touched, func(ctx context.Context) (*simulator.Outcome, error) {
		return s.sim.SimulateOrder(ctx, req)
	})
}

// Liquidate handles POST /api/v1/positions/liquidate
func (s *Service) Liquidate(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !decode(w, r, &req) {
		return
	}
	p, ok := s.sim.Position(req.Key)
	if !ok {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}
	s.run(w, r, []string{req.Key}, []string{p.Market}, func(ctx context.Context) (*simulator.Outcome, error) {
		return s.sim.Liquidate(ctx, req.Key)
	})
}

// AutoDeleverage handles POST /api/v1/positions/adl
func (s *Service) AutoDeleverage(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !decode(w, r, &req) {
		return
	}
	p, ok := s.sim.Position(req.Key)
	if !ok {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}
	s.run(w, r, []string{req.Key}, []string{p.Market}, func(ctx context.Context) (*simulator.Outcome, error) {
		return s.sim.AutoDeleverage(ctx, req.Key, req.SizeDeltaUSD)
	})
}

// --- Query handlers ---

// GetPositions handles GET /api/v1/positions/{owner}
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := s.sim.Positions(chi.URLParam(r, "owner"))
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		v := PositionView{Position: p}
		st, err := s.sim.PositionStatus(p.Key())
		if err != nil {
			v.Error = err.Error()
		} else {
			v.Status = &st
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// GetRoute handles GET /api/v1/route?from=<token>&to=<token>
func (s *Service) GetRoute(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, "from and to are required", http.StatusBadRequest)
		return
	}
	route, err := s.router.BestRoute(r.Context(), from, to)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// GetGlvValue handles GET /api/v1/glvs/{name}/value
func (s *Service) GetGlvValue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	lo, hi, err := s.sim.GlvValue(name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GlvValueResponse{Name: name, Min: lo, Max: hi})
}

// --- Execution pipeline ---

// run executes fn and records its outcome: the ledger entry, snapshots of
// the touched markets and positions, publication, metrics and broadcast.
func (s *Service) run(w http.ResponseWriter, r *http.Request, positionKeys, marketIDs []string,
	fn func(ctx context.Context) (*simulator.Outcome, error)) {
	ctx := r.Context()
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := fn(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	metrics.ObserveAction(string(o.Kind), o.Executed, time.Since(start))

	rec, err := o.Record()
	if err != nil {
		writeError(w, "failed to encode action report", http.StatusInternalServerError)
		return
	}
	if err := s.store.InsertActionRecord(ctx, &rec); err != nil {
		slog.Error("failed to record action", "id", rec.ID, "kind", rec.Kind, "err", err)
		writeError(w, "failed to record action", http.StatusInternalServerError)
		return
	}

	if o.Executed {
		s.persistMarkets(ctx, marketIDs...)
		s.persistPositions(ctx, positionKeys...)
		s.router.Invalidate()
		s.refreshGauges()
	}

	if s.events != nil {
		if err := s.events.Publish(ctx, rec); err != nil {
			metrics.PublishFailures.Inc()
			slog.Warn("failed to publish action", "id", rec.ID, "kind", rec.Kind, "err", err)
		}
	}

	slog.Info("action processed",
		"id", rec.ID,
		"kind", rec.Kind,
		"market", rec.Market,
		"owner", rec.Owner,
		"executed", rec.Executed,
		"reason", rec.Reason,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: MessageAction, Market: rec.Market, Record: &rec})
	}

	writeJSON(w, http.StatusOK, o)
}

func (s *Service) persistMarkets(ctx context.Context, ids ...string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		m, err := s.sim.Market(id)
		if err != nil || seen[m.Meta.MarketToken] {
			continue
		}
		seen[m.Meta.MarketToken] = true
		snap, err := store.MarketSnapshot(m, s.sim.Now())
		if err == nil {
			err = s.store.SaveMarket(ctx, snap)
		}
		if err != nil {
			slog.Error("failed to save market snapshot", "market", m.Name, "err", err)
		}
	}
}

func (s *Service) persistPositions(ctx context.Context, keys ...string) {
	for _, key := range keys {
		p, ok := s.sim.Position(key)
		var err error
		if !ok {
			err = s.store.DeletePosition(ctx, key)
		} else {
			var snap *model.PositionSnapshot
			if snap, err = store.PositionSnapshot(p, s.sim.Now()); err == nil {
				err = s.store.SavePosition(ctx, snap)
			}
		}
		if err != nil {
			slog.Error("failed to save position snapshot", "key", key, "err", err)
		}
	}
}

// refreshGauges updates pool value and open interest gauges. Markets
// without prices are skipped.
func (s *Service) refreshGauges() {
	markets := s.sim.Markets()
	metrics.ActiveMarkets.Set(float64(len(markets)))
	for _, m := range markets {
		for _, isLong := range []bool{true, false} {
			if oi, err := m.OpenInterest(isLong); err == nil {
				metrics.OpenInterest.WithLabelValues(m.Name, sideLabel(isLong)).Set(oi.Scaled(m.Decimals).InexactFloat64())
			}
		}
		st, err := s.sim.MarketStatus(m.Meta.MarketToken)
		if err != nil {
			continue
		}
		metrics.PoolValue.WithLabelValues(m.Name).Set(st.PoolValueMax.Scaled(m.Decimals).InexactFloat64())
	}
}

// checkLimit applies the exposure limits to an increase order.
func (s *Service) checkLimit(m *market.Market, req simulator.OrderRequest) error {
	if s.limiter == nil {
		return nil
	}
	delta := req.SizeDeltaUSD.Scaled(m.Decimals)
	if !req.IsLong {
		delta = delta.Neg()
	}
	existing := correlation.NetExposures(s.sim.Positions(req.Owner), s.sim.Markets())
	target := correlation.Exposure{Market: m.Meta.MarketToken, IndexToken: m.Meta.IndexToken}
	return s.limiter.CheckLimit(target, delta, existing)
}

func sideLabel(isLong bool) string {
	if isLong {
		return "long"
	}
	return "short"
}

// --- Encoding helpers ---

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
