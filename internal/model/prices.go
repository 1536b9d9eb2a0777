package model

import (
	"fmt"
	"time"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// Price is a min/max price pair in market units per smallest token unit.
type Price struct {
	Min num.Uint `json:"min" toml:"min"`
	Max num.Uint `json:"max" toml:"max"`
}

// NewPrice returns a price with both bounds set to v.
func NewPrice(v num.Uint) Price {
	return Price{Min: v, Max: v}
}

// Pick returns Max when maximize is set and Min otherwise.
func (p Price) Pick(maximize bool) num.Uint {
	if maximize {
		return p.Max
	}
	return p.Min
}

// Mid returns (Min + Max) / 2.
func (p Price) Mid() (num.Uint, error) {
	sum, err := p.Min.Add(p.Max)
	if err != nil {
		return num.Zero, err
	}
	return sum.Div(num.NewUint(2))
}

// Validate rejects zero components and inverted bounds.
func (p Price) Validate() error {
	if p.Min.IsZero() || p.Max.IsZero() {
		return fmt.Errorf("%w: zero price component", ErrInvalidPrice)
	}
	if p.Min.GT(p.Max) {
		return fmt.Errorf("%w: min %s > max %s", ErrInvalidPrice, p.Min, p.Max)
	}
	return nil
}

// Prices is the price snapshot an action executes against.
type Prices struct {
	IndexTokenPrice Price `json:"index_token_price" toml:"index"`
	LongTokenPrice  Price `json:"long_token_price" toml:"long"`
	ShortTokenPrice Price `json:"short_token_price" toml:"short"`

	// UpdatedAt is when the snapshot was taken. A zero value disables the
	// freshness check.
	UpdatedAt time.Time `json:"updated_at,omitempty" toml:"updated_at,omitempty"`
}

// Validate checks every component.
func (p Prices) Validate() error {
	if err := p.IndexTokenPrice.Validate(); err != nil {
		return fmt.Errorf("index token: %w", err)
	}
	if err := p.LongTokenPrice.Validate(); err != nil {
		return fmt.Errorf("long token: %w", err)
	}
	if err := p.ShortTokenPrice.Validate(); err != nil {
		return fmt.Errorf("short token: %w", err)
	}
	return nil
}

// CollateralTokenPrice returns the long or short token price.
func (p Prices) CollateralTokenPrice(isLong bool) Price {
	if isLong {
		return p.LongTokenPrice
	}
	return p.ShortTokenPrice
}

// Expired reports whether the snapshot is older than maxAge at now.
func (p Prices) Expired(now time.Time, maxAge time.Duration) bool {
	if p.UpdatedAt.IsZero() || maxAge <= 0 {
		return false
	}
	return now.Sub(p.UpdatedAt) > maxAge
}

// NewPricesForTest builds a snapshot with min == max for each token.
func NewPricesForTest(index, long, short uint64) Prices {
	return Prices{
		IndexTokenPrice: NewPrice(num.NewUint(index)),
		LongTokenPrice:  NewPrice(num.NewUint(long)),
		ShortTokenPrice: NewPrice(num.NewUint(short)),
	}
}
