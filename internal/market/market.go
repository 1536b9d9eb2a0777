// Package market implements the market aggregate the actions operate on:
// its pools, clocks, configuration, liquidity token supply and the
// virtual inventories it may share with other markets.
package market

import (
	"fmt"
	"time"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/fees"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

// Market is one perp/liquidity market. A Market is a plain value: Clone
// returns an independent copy that can be mutated and discarded.
type Market struct {
	Name          string       `json:"name"`
	Meta          Meta         `json:"meta"`
	Decimals      uint8        `json:"decimals"`
	TokenDecimals uint8        `json:"token_decimals"`
	Flags         Flags        `json:"flags"`
	Config        Config       `json:"config"`
	Pools         pool.Pools   `json:"pools"`
	Clocks        clock.Clocks `json:"clocks"`
	Supply        uint64       `json:"supply"`
	Balances      Balances     `json:"balances"`

	// FundingFactorPerSecond is the saved adaptive funding factor.
	FundingFactorPerSecond num.Int `json:"funding_factor_per_second"`

	VirtualInventoryForSwaps     string `json:"virtual_inventory_for_swaps,omitempty"`
	VirtualInventoryForPositions string `json:"virtual_inventory_for_positions,omitempty"`

	source      clock.Source
	pricing     SwapPricingKind
	viSwaps     *VirtualInventory
	viPositions *VirtualInventory
	viDisabled  bool
}

// New creates an enabled market with zeroed pools and clocks set to now.
func New(name string, meta Meta, decimals uint8, cfg Config, now time.Time) (*Market, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if decimals > 30 {
		return nil, fmt.Errorf("%w: %d decimals", model.ErrInvalidArgument, decimals)
	}
	if err := cfg.Validate(num.Pow10(decimals)); err != nil {
		return nil, err
	}
	return &Market{
		Name:          name,
		Meta:          meta,
		Decimals:      decimals,
		TokenDecimals: decimals,
		Flags:         Flags{Enabled: true},
		Config:        cfg,
		Pools:         pool.NewPools(meta.IsPure()),
		Clocks:        clock.New(now),
	}, nil
}

// NewForTest returns a market with 9 decimals and the default config. The
// token names are IDX, LONG and SHORT.
func NewForTest(src clock.Source) *Market {
	meta := Meta{MarketToken: "GM", IndexToken: "IDX", LongToken: "LONG", ShortToken: "SHORT"}
	m, err := New("IDX/USD[LONG-SHORT]", meta, 9, DefaultConfig(9), src.Now())
	if err != nil {
		panic(err)
	}
	m.SetClockSource(src)
	return m
}

// Unit returns 10^Decimals.
func (m *Market) Unit() num.Uint { return num.Pow10(m.Decimals) }

// UsdToAmountDivisor converts a value into market token amount when the
// supply is zero.
func (m *Market) UsdToAmountDivisor() num.Uint {
	if m.TokenDecimals >= m.Decimals {
		return num.NewUint(1)
	}
	return num.Pow10(m.Decimals - m.TokenDecimals)
}

// IsPure reports whether the market has a single collateral token.
func (m *Market) IsPure() bool { return m.Meta.IsPure() }

// SetClockSource replaces the time source used by accrual.
func (m *Market) SetClockSource(src clock.Source) { m.source = src }

// Now returns the current time of the market's clock source.
func (m *Market) Now() time.Time {
	if m.source == nil {
		return time.Now()
	}
	return m.source.Now()
}

// ClosedParamsActive reports whether closed-market parameters apply.
func (m *Market) ClosedParamsActive() bool {
	return m.Flags.Closed && m.Config.EnableMarketClosedParams
}

// CheckEnabled fails with ErrMarketDisabled for disabled markets.
func (m *Market) CheckEnabled() error {
	if !m.Flags.Enabled {
		return fmt.Errorf("%w: %s", model.ErrMarketDisabled, m.Name)
	}
	return nil
}

// Clone returns an independent copy. Attached virtual inventories are not
// carried over.
func (m *Market) Clone() *Market {
	c := *m
	c.viSwaps, c.viPositions = nil, nil
	return &c
}

// CommitFrom replaces the persistent state of m with the state of staged,
// keeping m's transient attachments.
func (m *Market) CommitFrom(staged *Market) {
	source, pricing, vs, vp, vd := m.source, m.pricing, m.viSwaps, m.viPositions, m.viDisabled
	*m = *staged
	m.source, m.pricing, m.viSwaps, m.viPositions, m.viDisabled = source, pricing, vs, vp, vd
}

// Pool returns the pool of the given kind.
func (m *Market) Pool(k pool.Kind) (*pool.Pool, error) { return m.Pools.Get(k) }

// ApplyDelta adds a signed delta to one side of a pool.
func (m *Market) ApplyDelta(k pool.Kind, isLong bool, delta num.Int) error {
	p, err := m.Pools.Get(k)
	if err != nil {
		return err
	}
	if err := p.ApplyDelta(isLong, delta); err != nil {
		return fmt.Errorf("%s %s: %w", m.Name, k, err)
	}
	return nil
}

// ApplyDeltaAmount adds an unsigned amount to one side of a pool.
func (m *Market) ApplyDeltaAmount(k pool.Kind, isLong bool, amount num.Uint) error {
	d, err := num.ToSigned(amount)
	if err != nil {
		return err
	}
	return m.ApplyDelta(k, isLong, d)
}

// SubtractAmount removes an unsigned amount from one side of a pool.
func (m *Market) SubtractAmount(k pool.Kind, isLong bool, amount num.Uint) error {
	d, err := num.NegativeOf(amount)
	if err != nil {
		return err
	}
	return m.ApplyDelta(k, isLong, d)
}

// Mint increases the liquidity token supply.
func (m *Market) Mint(amount uint64) error {
	if m.Supply+amount < m.Supply {
		return fmt.Errorf("%w: minting %d over supply %d", model.ErrOverflow, amount, m.Supply)
	}
	m.Supply += amount
	return nil
}

// Burn decreases the liquidity token supply.
func (m *Market) Burn(amount uint64) error {
	if amount > m.Supply {
		return fmt.Errorf("%w: burning %d from supply %d", model.ErrComputation, amount, m.Supply)
	}
	m.Supply -= amount
	return nil
}

// Balances tracks tokens held by the market vault. Pure markets book
// everything on the long side.
type Balances struct {
	Long  num.Uint `json:"long"`
	Short num.Uint `json:"short"`
}

func (m *Market) balanceSide(isLong bool) *num.Uint {
	if isLong || m.IsPure() {
		return &m.Balances.Long
	}
	return &m.Balances.Short
}

// RecordTransferredIn books tokens received by the vault.
func (m *Market) RecordTransferredIn(isLong bool, amount num.Uint) error {
	b := m.balanceSide(isLong)
	v, err := b.Add(amount)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// RecordTransferredOut books tokens leaving the vault.
func (m *Market) RecordTransferredOut(isLong bool, amount num.Uint) error {
	b := m.balanceSide(isLong)
	v, err := b.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: vault balance %s below %s", model.ErrComputation, *b, amount)
	}
	*b = v
	return nil
}

// SwapPricingKind selects the fee schedule used for swap-style pricing.
type SwapPricingKind uint8

const (
	PricingSwap SwapPricingKind = iota
	PricingDeposit
	PricingWithdrawal
	PricingShift
)

func (k SwapPricingKind) String() string {
	switch k {
	case PricingSwap:
		return "swap"
	case PricingDeposit:
		return "deposit"
	case PricingWithdrawal:
		return "withdrawal"
	case PricingShift:
		return "shift"
	default:
		return fmt.Sprintf("pricing(%d)", uint8(k))
	}
}

// SwapPricing returns the active pricing kind.
func (m *Market) SwapPricing() SwapPricingKind { return m.pricing }

// WithSwapPricing runs fn with the given pricing kind and restores the
// previous kind afterwards.
func (m *Market) WithSwapPricing(kind SwapPricingKind, fn func() error) error {
	prev := m.pricing
	m.pricing = kind
	defer func() { m.pricing = prev }()
	return fn()
}

// SwapFeeParamsForPricing returns fee params for the active pricing kind.
func (m *Market) SwapFeeParamsForPricing() fees.FeeParams {
	return m.Config.SwapFeeParams(m.pricing)
}
