package market

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
)

// Meta is the token set of a market.
type Meta struct {
	MarketToken string `json:"market_token" toml:"market_token"`
	IndexToken  string `json:"index_token" toml:"index_token"`
	LongToken   string `json:"long_token" toml:"long_token"`
	ShortToken  string `json:"short_token" toml:"short_token"`
}

// IsPure reports whether both sides share one token.
func (m Meta) IsPure() bool { return m.LongToken == m.ShortToken }

// TokenSide returns whether token is the long side token. In a pure market
// the token is always reported as the long side.
func (m Meta) TokenSide(token string) (bool, error) {
	switch token {
	case m.LongToken:
		return true, nil
	case m.ShortToken:
		return false, nil
	default:
		return false, fmt.Errorf("%w: token %q is not a collateral token of market %s", model.ErrInvalidArgument, token, m.MarketToken)
	}
}

// IsCollateralToken reports whether token is one of the side tokens.
func (m Meta) IsCollateralToken(token string) bool {
	return token == m.LongToken || token == m.ShortToken
}

// Opposite returns the other side token for a collateral token.
func (m Meta) Opposite(token string) (string, error) {
	isLong, err := m.TokenSide(token)
	if err != nil {
		return "", err
	}
	if isLong {
		return m.ShortToken, nil
	}
	return m.LongToken, nil
}

// Shiftable reports whether liquidity can be shifted between two markets:
// they must hold the same pair of side tokens.
func (m Meta) Shiftable(to Meta) bool {
	return m.MarketToken != to.MarketToken && m.LongToken == to.LongToken && m.ShortToken == to.ShortToken
}

// Swappable reports whether the market can swap between its side tokens.
// A pure market holds a single token and cannot.
func (m Meta) Swappable() bool { return !m.IsPure() }

// Validate checks that every token is named.
func (m Meta) Validate() error {
	if m.MarketToken == "" || m.LongToken == "" || m.ShortToken == "" {
		return fmt.Errorf("%w: market token, long token and short token are required", model.ErrInvalidArgument)
	}
	return nil
}

// Flags are the boolean switches of a market.
type Flags struct {
	Enabled                         bool `json:"enabled" toml:"enabled"`
	AutoDeleveragingEnabledForLong  bool `json:"adl_enabled_for_long" toml:"adl_enabled_for_long"`
	AutoDeleveragingEnabledForShort bool `json:"adl_enabled_for_short" toml:"adl_enabled_for_short"`
	GTEnabled                       bool `json:"gt_enabled" toml:"gt_enabled"`
	Closed                          bool `json:"closed" toml:"closed"`
}

// AutoDeleveragingEnabled returns the ADL flag for a side.
func (f Flags) AutoDeleveragingEnabled(isLong bool) bool {
	if isLong {
		return f.AutoDeleveragingEnabledForLong
	}
	return f.AutoDeleveragingEnabledForShort
}
