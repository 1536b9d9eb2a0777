package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/config"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/simulator"
)

// Step actions.
const (
	StepPrices     = "prices"
	StepAdvance    = "advance"
	StepDeposit    = "deposit"
	StepWithdrawal = "withdrawal"
	StepShift      = "shift"
	StepSwap       = "swap"
	StepOrder      = "order"
	StepLiquidate  = "liquidate"
	StepADL        = "adl"
)

var errStepFailed = errors.New("step not executed")

// PriceEntry sets a token price. Price sets both bounds.
type PriceEntry struct {
	Price num.Uint `toml:"price"`
	Min   num.Uint `toml:"min"`
	Max   num.Uint `toml:"max"`
}

func (p PriceEntry) price() model.Price {
	if !p.Price.IsZero() {
		return model.NewPrice(p.Price)
	}
	return model.Price{Min: p.Min, Max: p.Max}
}

// Step is one scenario action. Only the request matching Action is read.
type Step struct {
	Action string `toml:"action"`

	Prices  map[string]PriceEntry `toml:"prices"`
	Advance string                `toml:"advance"` // duration, e.g. "1h"

	Deposit    *simulator.DepositRequest    `toml:"deposit"`
	Withdrawal *simulator.WithdrawalRequest `toml:"withdrawal"`
	Shift      *simulator.ShiftRequest      `toml:"shift"`
	Swap       *simulator.SwapRequest       `toml:"swap"`
	Order      *simulator.OrderRequest      `toml:"order"`

	// Liquidation and auto-deleveraging.
	Key          string   `toml:"key"`
	SizeDeltaUSD num.Uint `toml:"size_delta_usd"`
}

// Scenario is a market setup followed by a list of steps run in order.
type Scenario struct {
	Start                 time.Time             `toml:"start"`
	MaxPriceAge           string                `toml:"max_price_age"`
	ThrowOnExecutionError bool                  `toml:"throw_on_execution_error"`
	Markets               []config.MarketPreset `toml:"markets"`
	Glvs                  []config.GlvPreset    `toml:"glvs"`
	Prices                map[string]PriceEntry `toml:"prices"`
	Steps                 []Step                `toml:"steps"`
}

// LoadScenario decodes a scenario file. Unknown keys are rejected.
func LoadScenario(path string) (*Scenario, error) {
	var sc Scenario
	md, err := toml.DecodeFile(path, &sc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &sc, checkUndecoded(md)
}

// ParseScenario decodes a scenario from TOML text.
func ParseScenario(data string) (*Scenario, error) {
	var sc Scenario
	md, err := toml.Decode(data, &sc)
	if err != nil {
		return nil, err
	}
	return &sc, checkUndecoded(md)
}

func checkUndecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return fmt.Errorf("%w: unknown keys %v", config.ErrInvalidConfig, names)
}

// Runner owns the simulator a scenario executes against.
type Runner struct {
	sim   *simulator.Simulator
	clock *clock.Manual
}

// NewRunner builds the markets, inventories and baskets of sc and sets
// its initial prices.
func NewRunner(sc *Scenario, logger *slog.Logger) (*Runner, error) {
	start := sc.Start
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	var maxAge time.Duration
	if sc.MaxPriceAge != "" {
		d, err := time.ParseDuration(sc.MaxPriceAge)
		if err != nil {
			return nil, fmt.Errorf("%w: max_price_age: %v", config.ErrInvalidConfig, err)
		}
		maxAge = d
	}
	clk := clock.NewManual(start)
	sim := simulator.New(simulator.Options{
		MaxPriceAge:           maxAge,
		ThrowOnExecutionError: sc.ThrowOnExecutionError,
		Clock:                 clk,
	}, logger)

	cfg := config.Config{Markets: sc.Markets, Glvs: sc.Glvs}
	for _, vi := range cfg.VirtualInventories() {
		sim.AddVirtualInventory(vi)
	}
	markets, err := cfg.BuildMarkets(start)
	if err != nil {
		return nil, err
	}
	for _, m := range markets {
		if err := sim.AddMarket(m); err != nil {
			return nil, err
		}
	}
	glvs, err := cfg.BuildGlvs(markets)
	if err != nil {
		return nil, err
	}
	for _, g := range glvs {
		if err := sim.AddGlv(g); err != nil {
			return nil, err
		}
	}
	r := &Runner{sim: sim, clock: clk}
	if err := r.setPrices(sc.Prices); err != nil {
		return nil, err
	}
	return r, nil
}

// Simulator returns the simulator the runner drives.
func (r *Runner) Simulator() *simulator.Simulator { return r.sim }

func (r *Runner) setPrices(prices map[string]PriceEntry) error {
	tokens := make([]string, 0, len(prices))
	for token := range prices {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		if err := r.sim.SetPrice(token, prices[token].price(), r.clock.Now()); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the steps in order and calls emit for each outcome. With
// strict set, a step that is not executed stops the run.
func (r *Runner) Run(ctx context.Context, steps []Step, strict bool, emit func(int, *simulator.Outcome) error) error {
	for i, step := range steps {
		o, err := r.step(ctx, step)
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		if o == nil {
			continue
		}
		if err := emit(i, o); err != nil {
			return err
		}
		if strict && !o.Executed {
			return fmt.Errorf("step %d (%s): %w: %s", i, step.Action, errStepFailed, o.Reason)
		}
	}
	return nil
}

func (r *Runner) step(ctx context.Context, s Step) (*simulator.Outcome, error) {
	switch s.Action {
	case StepPrices:
		return nil, r.setPrices(s.Prices)
	case StepAdvance:
		d, err := time.ParseDuration(s.Advance)
		if err != nil {
			return nil, fmt.Errorf("%w: advance: %v", model.ErrInvalidArgument, err)
		}
		r.clock.Advance(d)
		return nil, nil
	case StepDeposit:
		if s.Deposit == nil {
			return nil, missing(s.Action)
		}
		return r.sim.SimulateDeposit(ctx, *s.Deposit)
	case StepWithdrawal:
		if s.Withdrawal == nil {
			return nil, missing(s.Action)
		}
		return r.sim.SimulateWithdrawal(ctx, *s.Withdrawal)
	case StepShift:
		if s.Shift == nil {
			return nil, missing(s.Action)
		}
		return r.sim.SimulateShift(ctx, *s.Shift)
	case StepSwap:
		if s.Swap == nil {
			return nil, missing(s.Action)
		}
		return r.sim.SimulateSwap(ctx, *s.Swap)
	case StepOrder:
		if s.Order == nil {
			return nil, missing(s.Action)
		}
		return r.sim.SimulateOrder(ctx, *s.Order)
	case StepLiquidate:
		return r.sim.Liquidate(ctx, s.Key)
	case StepADL:
		return r.sim.AutoDeleverage(ctx, s.Key, s.SizeDeltaUSD)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", model.ErrInvalidArgument, s.Action)
	}
}

func missing(action string) error {
	return fmt.Errorf("%w: %s step without a [steps.%s] table", model.ErrInvalidArgument, action, action)
}

// FeeSummary is the claimable fee balance of one market valued at book
// prices.
type FeeSummary struct {
	Market      string   `json:"market"`
	LongAmount  num.Uint `json:"long_amount"`
	ShortAmount num.Uint `json:"short_amount"`
	Value       num.Uint `json:"value"`
}

// Fees values the claimable fee pool of every market. Every collateral
// token needs a price in the book.
func (r *Runner) Fees() ([]FeeSummary, error) {
	var out []FeeSummary
	for _, m := range r.sim.Markets() {
		prices, err := r.sim.Prices(m.Meta.MarketToken)
		if err != nil {
			return nil, err
		}
		fees := m.Pools.ClaimableFee
		s := FeeSummary{Market: m.Name, LongAmount: fees.LongAmount(), ShortAmount: fees.ShortAmount()}
		long, err := s.LongAmount.Mul(prices.LongTokenPrice.Min)
		if err != nil {
			return nil, err
		}
		short, err := s.ShortAmount.Mul(prices.ShortTokenPrice.Min)
		if err != nil {
			return nil, err
		}
		if s.Value, err = long.Add(short); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
