// Package simulator keeps a book of markets, token prices and positions
// and runs engine actions against it. Actions commit into the book only
// when they succeed; failed executions can be reported as outcomes instead
// of errors.
package simulator

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/action"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/glv"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/position"
)

var (
	// ErrMarketNotFound is returned for unknown market names or tokens.
	ErrMarketNotFound = errors.New("simulator: market not found")
	// ErrPriceNotReady is returned when a token has no price in the book.
	ErrPriceNotReady = errors.New("simulator: price not ready")
	// ErrPositionNotFound is returned when a decrease targets no position.
	ErrPositionNotFound = errors.New("simulator: position not found")
	// ErrTriggerPriceRequired is returned for limit and stop-loss orders
	// without a trigger price.
	ErrTriggerPriceRequired = errors.New("simulator: trigger price is required")
	// ErrTriggerNotReached is returned when the index price has not crossed
	// the trigger price of an order.
	ErrTriggerNotReached = errors.New("simulator: trigger price not reached")
	// ErrGlvNotFound is returned for unknown baskets.
	ErrGlvNotFound = errors.New("simulator: glv not found")
)

// Options configure a Simulator.
type Options struct {
	// MaxPriceAge bounds how old a price snapshot may be. Zero disables
	// the check.
	MaxPriceAge time.Duration
	// ThrowOnExecutionError returns execution failures as errors. When
	// unset they are reported as outcomes that were not executed.
	ThrowOnExecutionError bool
	// Clock drives accrual and price expiry. Defaults to the wall clock.
	Clock clock.Source
}

type tokenState struct {
	price     model.Price
	updatedAt time.Time
}

// Simulator is safe for concurrent use. Every action runs under one lock.
type Simulator struct {
	mu        sync.Mutex
	opts      Options
	log       *slog.Logger
	tokens    map[string]tokenState
	markets   map[string]*market.Market // keyed by market token
	names     map[string]string         // market name -> market token
	vis       market.VirtualInventories
	positions map[string]*position.Position
	glvs      map[string]*glv.Glv
}

// New returns an empty simulator.
func New(opts Options, logger *slog.Logger) *Simulator {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		opts:      opts,
		log:       logger,
		tokens:    make(map[string]tokenState),
		markets:   make(map[string]*market.Market),
		names:     make(map[string]string),
		vis:       make(market.VirtualInventories),
		positions: make(map[string]*position.Position),
		glvs:      make(map[string]*glv.Glv),
	}
}

// Now returns the simulator clock time.
func (s *Simulator) Now() time.Time { return s.opts.Clock.Now() }

// AddMarket inserts m into the book. The simulator takes ownership of m
// and drives its clock.
func (s *Simulator) AddMarket(m *market.Market) error {
	if m == nil {
		return fmt.Errorf("%w: nil market", model.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.Meta.MarketToken]; ok {
		return fmt.Errorf("%w: market token %s already exists", model.ErrInvalidArgument, m.Meta.MarketToken)
	}
	if _, ok := s.names[m.Name]; ok {
		return fmt.Errorf("%w: market %s already exists", model.ErrInvalidArgument, m.Name)
	}
	m.SetClockSource(s.opts.Clock)
	s.markets[m.Meta.MarketToken] = m
	s.names[m.Name] = m.Meta.MarketToken
	return nil
}

// AddVirtualInventory registers an inventory markets may reference.
func (s *Simulator) AddVirtualInventory(vi *market.VirtualInventory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vis[vi.Address] = vi
}

// AddGlv registers a basket. Every market with a balance must be in the
// book already.
func (s *Simulator) AddGlv(g *glv.Glv) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range g.Balances {
		m, err := s.lookup(name)
		if err != nil {
			return err
		}
		if !g.Accepts(m) {
			return fmt.Errorf("%w: market %s does not fit %s", model.ErrInvalidArgument, m.Name, g.Name)
		}
	}
	s.glvs[g.Name] = g
	return nil
}

// AddPosition inserts a restored position. Its market must be in the book
// and no position with the same key may exist.
func (s *Simulator) AddPosition(p *position.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(p.Market)
	if err != nil {
		return err
	}
	if !m.Meta.IsCollateralToken(p.CollateralToken) {
		return fmt.Errorf("%w: collateral token %q is not in market %s", model.ErrInvalidArgument, p.CollateralToken, m.Name)
	}
	key := p.Key()
	if _, ok := s.positions[key]; ok {
		return fmt.Errorf("%w: position %s already exists", model.ErrInvalidArgument, key)
	}
	s.positions[key] = p.Clone()
	return nil
}

// SetPrice records the price of token observed at at.
func (s *Simulator) SetPrice(token string, price model.Price, at time.Time) error {
	if err := price.Validate(); err != nil {
		return fmt.Errorf("%s: %w", token, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = tokenState{price: price, updatedAt: at}
	return nil
}

// Price returns the recorded price of token.
func (s *Simulator) Price(token string) (model.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tokens[token]
	if !ok {
		return model.Price{}, fmt.Errorf("%w: %s", ErrPriceNotReady, token)
	}
	return st.price, nil
}

// Market returns a copy of the market with the given name or market token.
func (s *Simulator) Market(id string) (*market.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// Markets returns copies of every market, ordered by name.
func (s *Simulator) Markets() []*market.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*market.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Prices returns the price snapshot of a market.
func (s *Simulator) Prices(id string) (model.Prices, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(id)
	if err != nil {
		return model.Prices{}, err
	}
	return s.pricesFor(m)
}

// Position returns a copy of the position with the given key.
func (s *Simulator) Position(key string) (*position.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[key]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Positions returns copies of every open position of owner, ordered by key.
func (s *Simulator) Positions(owner string) []*position.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*position.Position
	for _, p := range s.positions {
		if p.Owner == owner {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// MarketStatus returns the read-only status of a market at book prices.
func (s *Simulator) MarketStatus(id string) (market.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(id)
	if err != nil {
		return market.Status{}, err
	}
	prices, err := s.pricesFor(m)
	if err != nil {
		return market.Status{}, err
	}
	return m.Status(prices)
}

// PositionStatus returns the read-only status of a position at book prices.
func (s *Simulator) PositionStatus(key string) (position.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[key]
	if !ok {
		return position.Status{}, fmt.Errorf("%w: %s", ErrPositionNotFound, key)
	}
	m, err := s.lookup(p.Market)
	if err != nil {
		return position.Status{}, err
	}
	prices, err := s.pricesFor(m)
	if err != nil {
		return position.Status{}, err
	}
	return p.Status(m, prices)
}

// GlvValue returns the min and max value of a basket at book prices.
func (s *Simulator) GlvValue(name string) (min, max num.Uint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.glvs[name]
	if !ok {
		return num.Zero, num.Zero, fmt.Errorf("%w: %s", ErrGlvNotFound, name)
	}
	markets := make(map[string]*market.Market, len(g.Balances))
	prices := make(map[string]model.Prices, len(g.Balances))
	for id := range g.Balances {
		m, err := s.lookup(id)
		if err != nil {
			return num.Zero, num.Zero, err
		}
		if prices[id], err = s.pricesFor(m); err != nil {
			return num.Zero, num.Zero, err
		}
		markets[id] = m
	}
	if min, err = g.Value(markets, prices, false); err != nil {
		return num.Zero, num.Zero, err
	}
	if max, err = g.Value(markets, prices, true); err != nil {
		return num.Zero, num.Zero, err
	}
	return min, max, nil
}

// EstimateSwap returns the output of swapping amount of tokenIn on one
// market without changing the book.
func (s *Simulator) EstimateSwap(id, tokenIn string, amount num.Uint) (string, num.Uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(id)
	if err != nil {
		return "", num.Zero, err
	}
	prices, err := s.pricesFor(m)
	if err != nil {
		return "", num.Zero, err
	}
	scratch := m.Clone()
	sw, err := action.NewSwap([]*market.Market{scratch}, action.SwapParams{
		TokenIn:  tokenIn,
		AmountIn: amount,
		Prices:   []model.Prices{prices},
	})
	if err != nil {
		return "", num.Zero, err
	}
	report, err := sw.WithVirtualInventories(s.vis.Clone()).Execute()
	if err != nil {
		return "", num.Zero, err
	}
	return report.TokenOut, report.AmountOut, nil
}

// lookup resolves a market token or a market name. Callers hold s.mu.
func (s *Simulator) lookup(id string) (*market.Market, error) {
	if m, ok := s.markets[id]; ok {
		return m, nil
	}
	if token, ok := s.names[id]; ok {
		return s.markets[token], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
}

func (s *Simulator) lookupPath(ids []string) ([]*market.Market, error) {
	path := make([]*market.Market, len(ids))
	for i, id := range ids {
		m, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		path[i] = m
	}
	return path, nil
}

// pricesFor builds the snapshot of a market. Its time is that of the
// oldest of the three token prices. A market without an index token is
// indexed by its long token.
func (s *Simulator) pricesFor(m *market.Market) (model.Prices, error) {
	var out model.Prices
	index := m.Meta.IndexToken
	if index == "" {
		index = m.Meta.LongToken
	}
	tokens := []struct {
		token string
		dst   *model.Price
	}{
		{index, &out.IndexTokenPrice},
		{m.Meta.LongToken, &out.LongTokenPrice},
		{m.Meta.ShortToken, &out.ShortTokenPrice},
	}
	for _, t := range tokens {
		st, ok := s.tokens[t.token]
		if !ok {
			return model.Prices{}, fmt.Errorf("%w: %s for market %s", ErrPriceNotReady, t.token, m.Name)
		}
		*t.dst = st.price
		if out.UpdatedAt.IsZero() || st.updatedAt.Before(out.UpdatedAt) {
			out.UpdatedAt = st.updatedAt
		}
	}
	return out, nil
}

func (s *Simulator) pricesForPath(path []*market.Market) ([]model.Prices, error) {
	out := make([]model.Prices, len(path))
	for i, m := range path {
		p, err := s.pricesFor(m)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
