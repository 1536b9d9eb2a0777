package simulator

import (
	"context"
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/action"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/position"
)

// OrderKind selects how an order executes.
type OrderKind string

const (
	MarketIncrease   OrderKind = "market_increase"
	LimitIncrease    OrderKind = "limit_increase"
	MarketDecrease   OrderKind = "market_decrease"
	LimitDecrease    OrderKind = "limit_decrease"
	StopLossDecrease OrderKind = "stop_loss_decrease"
	MarketSwap       OrderKind = "market_swap"
	LimitSwap        OrderKind = "limit_swap"
)

// IsIncrease reports whether the kind opens or grows a position.
func (k OrderKind) IsIncrease() bool { return k == MarketIncrease || k == LimitIncrease }

// IsDecrease reports whether the kind shrinks or closes a position.
func (k OrderKind) IsDecrease() bool {
	return k == MarketDecrease || k == LimitDecrease || k == StopLossDecrease
}

// IsSwap reports whether the kind is a plain swap.
func (k OrderKind) IsSwap() bool { return k == MarketSwap || k == LimitSwap }

func (k OrderKind) needsTrigger() bool {
	return k == LimitIncrease || k == LimitDecrease || k == StopLossDecrease
}

// OrderRequest is a position or swap order.
//
// For position orders CollateralToken is the position collateral; the
// initial token is swapped into it along SwapPath before an increase, and
// the collateral output is swapped into ReceiveToken after a decrease.
// For swap orders CollateralToken is the token received.
type OrderRequest struct {
	Kind            OrderKind `json:"kind" toml:"kind"`
	Owner           string    `json:"owner" toml:"owner"`
	Market          string    `json:"market,omitempty" toml:"market"`
	IsLong          bool      `json:"is_long" toml:"is_long"`
	CollateralToken string    `json:"collateral_token" toml:"collateral_token"`
	InitialToken    string    `json:"initial_token,omitempty" toml:"initial_token"`
	ReceiveToken    string    `json:"receive_token,omitempty" toml:"receive_token"`
	SwapPath        []string  `json:"swap_path,omitempty" toml:"swap_path"`
	// Amount is the collateral added on increase, the collateral withdrawn
	// on decrease, and the amount in for swaps.
	Amount          num.Uint `json:"amount" toml:"amount"`
	SizeDeltaUSD    num.Uint `json:"size_delta_usd" toml:"size_delta_usd"`
	AcceptablePrice num.Uint `json:"acceptable_price" toml:"acceptable_price"`
	TriggerPrice    num.Uint `json:"trigger_price" toml:"trigger_price"`
	MinOutputAmount num.Uint `json:"min_output_amount" toml:"min_output_amount"`
}

// PositionKey returns the key of the position the order targets.
func (r OrderRequest) PositionKey(m *market.Market) string {
	return model.PositionKey(r.Owner, m.Meta.MarketToken, r.CollateralToken, r.IsLong)
}

// CheckTrigger tests the index price against the trigger price of a limit
// or stop-loss order. Market orders always pass.
func CheckTrigger(kind OrderKind, isLong bool, index model.Price, trigger num.Uint) error {
	var price num.Uint
	var ok bool
	switch kind {
	case LimitIncrease:
		if isLong {
			price, ok = index.Max, index.Max.LTE(trigger)
		} else {
			price, ok = index.Min, index.Min.GTE(trigger)
		}
	case LimitDecrease:
		if isLong {
			price, ok = index.Min, index.Min.GTE(trigger)
		} else {
			price, ok = index.Max, index.Max.LTE(trigger)
		}
	case StopLossDecrease:
		if isLong {
			price, ok = index.Min, index.Min.LTE(trigger)
		} else {
			price, ok = index.Max, index.Max.GTE(trigger)
		}
	default:
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s %s at index price %s, trigger %s", ErrTriggerNotReached, sideName(isLong), kind, price, trigger)
	}
	return nil
}

// SimulateOrder executes an order against book prices. Limit and
// stop-loss orders execute only once the index price crosses their
// trigger; a limit swap only when its output reaches the min output.
func (s *Simulator) SimulateOrder(ctx context.Context, req OrderRequest) (*Outcome, error) {
	if req.Kind.needsTrigger() && req.TriggerPrice.IsZero() {
		return nil, fmt.Errorf("%w: %s order", ErrTriggerPriceRequired, req.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case req.Kind.IsIncrease():
		return s.increase(ctx, req)
	case req.Kind.IsDecrease():
		return s.decrease(ctx, req)
	case req.Kind.IsSwap():
		return s.swapOrder(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unknown order kind %q", model.ErrInvalidArgument, req.Kind)
	}
}

// ApplyTriggerPrice sets the index token price of the order's market to
// its trigger price so a limit or stop-loss order can execute.
func (s *Simulator) ApplyTriggerPrice(req OrderRequest) error {
	if !req.Kind.needsTrigger() {
		return nil
	}
	if req.TriggerPrice.IsZero() {
		return fmt.Errorf("%w: %s order", ErrTriggerPriceRequired, req.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(req.Market)
	if err != nil {
		return err
	}
	s.tokens[m.Meta.IndexToken] = tokenState{price: model.NewPrice(req.TriggerPrice), updatedAt: s.Now()}
	return nil
}

func (s *Simulator) orderMarket(req OrderRequest) (*market.Market, model.Prices, []*market.Market, []model.Prices, error) {
	m, err := s.lookup(req.Market)
	if err != nil {
		return nil, model.Prices{}, nil, nil, err
	}
	prices, err := s.pricesFor(m)
	if err != nil {
		return nil, model.Prices{}, nil, nil, err
	}
	path, err := s.lookupPath(req.SwapPath)
	if err != nil {
		return nil, model.Prices{}, nil, nil, err
	}
	swapPrices, err := s.pricesForPath(path)
	if err != nil {
		return nil, model.Prices{}, nil, nil, err
	}
	return m, prices, path, swapPrices, nil
}

func (s *Simulator) increase(ctx context.Context, req OrderRequest) (*Outcome, error) {
	m, prices, path, swapPrices, err := s.orderMarket(req)
	if err != nil {
		return nil, err
	}
	key := req.PositionKey(m)
	p, existing := s.positions[key]
	if !existing {
		if p, err = position.New(req.Owner, m, req.CollateralToken, req.IsLong); err != nil {
			return nil, err
		}
	}
	initial := req.InitialToken
	if initial == req.CollateralToken {
		initial = ""
	}
	a, err := action.NewIncreasePosition(m, p, action.IncreaseParams{
		InitialCollateralToken:    initial,
		CollateralIncrementAmount: req.Amount,
		SizeDeltaUSD:              req.SizeDeltaUSD,
		AcceptablePrice:           req.AcceptablePrice,
		Prices:                    prices,
		SwapPrices:                swapPrices,
	})
	if err != nil {
		return nil, err
	}
	o := &Outcome{Kind: model.ActionIncreasePosition, Market: m.Name, Owner: req.Owner}
	return s.execute(ctx, o, append([]model.Prices{prices}, swapPrices...), func() (any, error) {
		if err := CheckTrigger(req.Kind, req.IsLong, prices.IndexTokenPrice, req.TriggerPrice); err != nil {
			return nil, err
		}
		report, err := a.WithSwapPath(path).WithVirtualInventories(s.vis).Execute()
		if err != nil {
			return nil, err
		}
		if !existing {
			s.positions[key] = p
		}
		return report, nil
	})
}

func (s *Simulator) decrease(ctx context.Context, req OrderRequest) (*Outcome, error) {
	m, prices, path, swapPrices, err := s.orderMarket(req)
	if err != nil {
		return nil, err
	}
	key := req.PositionKey(m)
	p, ok := s.positions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, key)
	}
	a, err := action.NewDecreasePosition(m, p, action.DecreaseParams{
		SizeDeltaUSD:               req.SizeDeltaUSD,
		CollateralWithdrawalAmount: req.Amount,
		AcceptablePrice:            req.AcceptablePrice,
		Prices:                     prices,
		FinalOutputToken:           req.ReceiveToken,
		MinOutputAmount:            req.MinOutputAmount,
		SwapPrices:                 swapPrices,
	})
	if err != nil {
		return nil, err
	}
	o := &Outcome{Kind: model.ActionDecreasePosition, Market: m.Name, Owner: req.Owner}
	return s.execute(ctx, o, append([]model.Prices{prices}, swapPrices...), func() (any, error) {
		if err := CheckTrigger(req.Kind, req.IsLong, prices.IndexTokenPrice, req.TriggerPrice); err != nil {
			return nil, err
		}
		report, err := a.WithSwapPath(path).WithVirtualInventories(s.vis).Execute()
		if err != nil {
			return nil, err
		}
		if p.IsEmpty() {
			delete(s.positions, key)
		}
		return report, nil
	})
}

func (s *Simulator) swapOrder(ctx context.Context, req OrderRequest) (*Outcome, error) {
	tokenIn := req.InitialToken
	if tokenIn == "" {
		return nil, fmt.Errorf("%w: swap order without an initial token", model.ErrInvalidArgument)
	}
	if req.Kind == LimitSwap && req.MinOutputAmount.IsZero() {
		return nil, fmt.Errorf("%w: limit swap without a min output amount", ErrTriggerPriceRequired)
	}
	sw, prices, err := s.newSwap(req.SwapPath, tokenIn, req.CollateralToken, req.Amount, req.MinOutputAmount)
	if err != nil {
		return nil, err
	}
	o := &Outcome{Kind: model.ActionSwap, Market: req.SwapPath[0], Owner: req.Owner}
	return s.execute(ctx, o, prices, func() (any, error) {
		return sw.Execute()
	})
}

// Liquidate closes a position that fell below its liquidation threshold.
func (s *Simulator) Liquidate(ctx context.Context, key string) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, m, prices, err := s.positionWithPrices(key)
	if err != nil {
		return nil, err
	}
	a, err := action.NewLiquidate(m, p, prices)
	if err != nil {
		return nil, err
	}
	o := &Outcome{Kind: model.ActionLiquidate, Market: m.Name, Owner: p.Owner}
	return s.execute(ctx, o, []model.Prices{prices}, func() (any, error) {
		report, err := a.WithVirtualInventories(s.vis).Execute()
		if err != nil {
			return nil, err
		}
		delete(s.positions, key)
		return report, nil
	})
}

// AutoDeleverage decreases a profitable position by sizeDeltaUSD while its
// side's pnl factor is above the auto-deleveraging bound.
func (s *Simulator) AutoDeleverage(ctx context.Context, key string, sizeDeltaUSD num.Uint) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, m, prices, err := s.positionWithPrices(key)
	if err != nil {
		return nil, err
	}
	a, err := action.NewAutoDeleverage(m, p, sizeDeltaUSD, prices)
	if err != nil {
		return nil, err
	}
	o := &Outcome{Kind: model.ActionAutoDeleverage, Market: m.Name, Owner: p.Owner}
	return s.execute(ctx, o, []model.Prices{prices}, func() (any, error) {
		report, err := a.WithVirtualInventories(s.vis).Execute()
		if err != nil {
			return nil, err
		}
		if p.IsEmpty() {
			delete(s.positions, key)
		}
		return report, nil
	})
}

func (s *Simulator) positionWithPrices(key string) (*position.Position, *market.Market, model.Prices, error) {
	p, ok := s.positions[key]
	if !ok {
		return nil, nil, model.Prices{}, fmt.Errorf("%w: %s", ErrPositionNotFound, key)
	}
	m, err := s.lookup(p.Market)
	if err != nil {
		return nil, nil, model.Prices{}, err
	}
	prices, err := s.pricesFor(m)
	if err != nil {
		return nil, nil, model.Prices{}, err
	}
	return p, m, prices, nil
}

func sideName(isLong bool) string {
	if isLong {
		return "long"
	}
	return "short"
}
