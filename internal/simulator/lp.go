package simulator

import (
	"context"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/action"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// DepositRequest adds side tokens to a market.
type DepositRequest struct {
	Market               string   `json:"market" toml:"market"`
	Owner                string   `json:"owner" toml:"owner"`
	LongTokenAmount      num.Uint `json:"long_token_amount" toml:"long_token_amount"`
	ShortTokenAmount     num.Uint `json:"short_token_amount" toml:"short_token_amount"`
	MinMarketTokenAmount uint64   `json:"min_market_token_amount" toml:"min_market_token_amount"`
}

// WithdrawalRequest burns liquidity tokens of a market.
type WithdrawalRequest struct {
	Market              string   `json:"market" toml:"market"`
	Owner               string   `json:"owner" toml:"owner"`
	MarketTokenAmount   uint64   `json:"market_token_amount" toml:"market_token_amount"`
	MinLongTokenAmount  num.Uint `json:"min_long_token_amount" toml:"min_long_token_amount"`
	MinShortTokenAmount num.Uint `json:"min_short_token_amount" toml:"min_short_token_amount"`
}

// ShiftRequest moves liquidity between two markets.
type ShiftRequest struct {
	From                   string `json:"from" toml:"from"`
	To                     string `json:"to" toml:"to"`
	Owner                  string `json:"owner" toml:"owner"`
	FromMarketTokenAmount  uint64 `json:"from_market_token_amount" toml:"from_market_token_amount"`
	MinToMarketTokenAmount uint64 `json:"min_to_market_token_amount" toml:"min_to_market_token_amount"`
}

// SwapRequest swaps along a path of markets.
type SwapRequest struct {
	Owner           string   `json:"owner" toml:"owner"`
	Path            []string `json:"path" toml:"path"`
	TokenIn         string   `json:"token_in" toml:"token_in"`
	TokenOut        string   `json:"token_out" toml:"token_out"`
	AmountIn        num.Uint `json:"amount_in" toml:"amount_in"`
	MinOutputAmount num.Uint `json:"min_output_amount" toml:"min_output_amount"`
}

// SimulateDeposit runs a deposit against book prices.
func (s *Simulator) SimulateDeposit(ctx context.Context, req DepositRequest) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(req.Market)
	if err != nil {
		return nil, err
	}
	prices, err := s.pricesFor(m)
	if err != nil {
		return nil, err
	}
	d, err := action.NewDeposit(m, action.DepositParams{
		LongTokenAmount:      req.LongTokenAmount,
		ShortTokenAmount:     req.ShortTokenAmount,
		MinMarketTokenAmount: req.MinMarketTokenAmount,
		Prices:               prices,
	})
	if err != nil {
		return nil, err
	}
	o := &Outcome{Kind: model.ActionDeposit, Market: m.Name, Owner: req.Owner}
	return s.execute(ctx, o, []model.Prices{prices}, func() (any, error) {
		return d.WithVirtualInventories(s.vis).Execute()
	})
}

// SimulateWithdrawal runs a withdrawal against book prices.
func (s *Simulator) SimulateWithdrawal(ctx context.Context, req WithdrawalRequest) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(req.Market)
	if err != nil {
		return nil, err
	}
	prices, err := s.pricesFor(m)
	if err != nil {
		return nil, err
	}
	w, err := action.NewWithdrawal(m, action.WithdrawalParams{
		MarketTokenAmount:   req.MarketTokenAmount,
		MinLongTokenAmount:  req.MinLongTokenAmount,
		MinShortTokenAmount: req.MinShortTokenAmount,
		Prices:              prices,
	})
	if err != nil {
		return nil, err
	}
	o := &Outcome{Kind: model.ActionWithdrawal, Market: m.Name, Owner: req.Owner}
	return s.execute(ctx, o, []model.Prices{prices}, func() (any, error) {
		return w.WithVirtualInventories(s.vis).Execute()
	})
}

// SimulateShift runs a shift against book prices.
func (s *Simulator) SimulateShift(ctx context.Context, req ShiftRequest) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, err := s.lookup(req.From)
	if err != nil {
		return nil, err
	}
	to, err := s.lookup(req.To)
	if err != nil {
		return nil, err
	}
	fromPrices, err := s.pricesFor(from)
	if err != nil {
		return nil, err
	}
	toPrices, err := s.pricesFor(to)
	if err != nil {
		return nil, err
	}
	sh, err := action.NewShift(from, to, action.ShiftParams{
		FromMarketTokenAmount:  req.FromMarketTokenAmount,
		MinToMarketTokenAmount: req.MinToMarketTokenAmount,
		FromPrices:             fromPrices,
		ToPrices:               toPrices,
	})
	if err != nil {
		return nil, err
	}
	o := &Outcome{Kind: model.ActionShift, Market: from.Name, Owner: req.Owner}
	return s.execute(ctx, o, []model.Prices{fromPrices, toPrices}, func() (any, error) {
		return sh.WithVirtualInventories(s.vis).Execute()
	})
}

// SimulateSwap runs a swap along a path against book prices.
func (s *Simulator) SimulateSwap(ctx context.Context, req SwapRequest) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw, prices, err := s.newSwap(req.Path, req.TokenIn, req.TokenOut, req.AmountIn, req.MinOutputAmount)
	if err != nil {
		return nil, err
	}
	o := &Outcome{Kind: model.ActionSwap, Market: req.Path[0], Owner: req.Owner}
	return s.execute(ctx, o, prices, func() (any, error) {
		return sw.Execute()
	})
}

// SwapAlongPath swaps amount of tokenIn through the markets of path, each
// hop feeding the next. Unlike SimulateSwap it fails on any error.
func (s *Simulator) SwapAlongPath(path []string, tokenIn string, amount num.Uint) (*action.SwapReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw, _, err := s.newSwap(path, tokenIn, "", amount, num.Zero)
	if err != nil {
		return nil, err
	}
	return sw.Execute()
}

func (s *Simulator) newSwap(ids []string, tokenIn, tokenOut string, amount, minOut num.Uint) (*action.Swap, []model.Prices, error) {
	path, err := s.lookupPath(ids)
	if err != nil {
		return nil, nil, err
	}
	prices, err := s.pricesForPath(path)
	if err != nil {
		return nil, nil, err
	}
	sw, err := action.NewSwap(path, action.SwapParams{
		TokenIn:         tokenIn,
		TokenOut:        tokenOut,
		AmountIn:        amount,
		MinOutputAmount: minOut,
		Prices:          prices,
	})
	if err != nil {
		return nil, nil, err
	}
	return sw.WithVirtualInventories(s.vis), prices, nil
}
