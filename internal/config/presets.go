package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/glv"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/meta"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// DefaultDecimals is used when a preset leaves decimals unset.
const DefaultDecimals = 9

// MarketPreset declares a market. Tokens missing from the preset are taken
// from the name, which must have the form INDEX/USD[LONG-SHORT].
//
// Config overrides are keyed by the market config field names. String
// values are human-readable decimals scaled by 10^decimals ("0.0005",
// "2"); integer values are raw fixed-point units. JSON bodies must be
// decoded with UseNumber for integers to be accepted.
type MarketPreset struct {
	Name        string `toml:"name"`
	MarketToken string `toml:"market_token"`
	IndexToken  string `toml:"index_token"`
	LongToken   string `toml:"long_token"`
	ShortToken  string `toml:"short_token"`
	Decimals    uint8  `toml:"decimals"`
	Pure        bool   `toml:"pure"`
	Disabled    bool   `toml:"disabled"`

	VirtualInventoryForSwaps     string `toml:"virtual_inventory_for_swaps"`
	VirtualInventoryForPositions string `toml:"virtual_inventory_for_positions"`

	Config map[string]any `toml:"config"`
}

// GlvPreset declares a basket and its liquidity token balances, keyed by
// market name or token. Balances are raw units.
type GlvPreset struct {
	Name       string            `toml:"name"`
	LongToken  string            `toml:"long_token"`
	ShortToken string            `toml:"short_token"`
	Balances   map[string]uint64 `toml:"balances"`
}

func (p MarketPreset) decimals() uint8 {
	if p.Decimals == 0 {
		return DefaultDecimals
	}
	return p.Decimals
}

// Meta resolves the token set of the preset.
func (p MarketPreset) Meta() (market.Meta, error) {
	n, err := meta.ParseName(p.Name)
	if err != nil {
		return market.Meta{}, err
	}
	m := n.Meta(p.MarketToken)
	if p.IndexToken != "" {
		m.IndexToken = p.IndexToken
	}
	if p.LongToken != "" {
		m.LongToken = p.LongToken
	}
	if p.ShortToken != "" {
		m.ShortToken = p.ShortToken
	}
	if m.MarketToken == "" {
		return market.Meta{}, fmt.Errorf("%w: market %q has no market token", ErrInvalidConfig, p.Name)
	}
	if p.Pure != m.IsPure() {
		return market.Meta{}, fmt.Errorf("%w: market %q pure=%t but tokens are %s-%s",
			ErrInvalidConfig, p.Name, p.Pure, m.LongToken, m.ShortToken)
	}
	for _, sym := range []string{m.MarketToken, m.IndexToken, m.LongToken, m.ShortToken} {
		if err := meta.ValidateSymbol(sym); err != nil {
			return market.Meta{}, err
		}
	}
	return m, nil
}

// Build creates the market described by the preset.
func (p MarketPreset) Build(now time.Time) (*market.Market, error) {
	mm, err := p.Meta()
	if err != nil {
		return nil, err
	}
	decimals := p.decimals()
	cfg := market.DefaultConfig(decimals)
	if err := applyOverrides(&cfg, p.Config, decimals); err != nil {
		return nil, fmt.Errorf("market %q: %w", p.Name, err)
	}
	m, err := market.New(p.Name, mm, decimals, cfg, now)
	if err != nil {
		return nil, err
	}
	m.Flags.Enabled = !p.Disabled
	m.VirtualInventoryForSwaps = p.VirtualInventoryForSwaps
	m.VirtualInventoryForPositions = p.VirtualInventoryForPositions
	return m, nil
}

// applyOverrides rewrites fields of cfg through its JSON form so every key
// is checked against the field names.
func applyOverrides(cfg *market.Config, overrides map[string]any, decimals uint8) error {
	if len(overrides) == 0 {
		return nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cur, ok := fields[k]
		if !ok {
			return fmt.Errorf("%w: unknown config key %q", ErrInvalidConfig, k)
		}
		switch v := overrides[k].(type) {
		case bool:
			if _, isBool := cur.(bool); !isBool {
				return fmt.Errorf("%w: %s expects a number", ErrInvalidConfig, k)
			}
			fields[k] = v
		case json.Number:
			n, err := v.Int64()
			if err != nil || n < 0 {
				return fmt.Errorf("%w: %s must be a non-negative integer or a decimal string", ErrInvalidConfig, k)
			}
			fields[k] = strconv.FormatInt(n, 10)
		case int64:
			if v < 0 {
				return fmt.Errorf("%w: %s is negative", ErrInvalidConfig, k)
			}
			fields[k] = strconv.FormatInt(v, 10)
		case string:
			d, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, k, err)
			}
			u, err := num.UintFromScaled(d, decimals)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, k, err)
			}
			fields[k] = u.String()
		default:
			return fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidConfig, k, v)
		}
	}

	raw, err = json.Marshal(fields)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var next market.Config
	if err := dec.Decode(&next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	*cfg = next
	return nil
}

// BuildMarkets builds every preset in order.
func (c *Config) BuildMarkets(now time.Time) ([]*market.Market, error) {
	out := make([]*market.Market, 0, len(c.Markets))
	for _, p := range c.Markets {
		m, err := p.Build(now)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// VirtualInventories returns one empty inventory per address referenced by
// the presets, sorted by address.
func (c *Config) VirtualInventories() []*market.VirtualInventory {
	seen := make(map[string]bool)
	var addrs []string
	for _, p := range c.Markets {
		for _, a := range []string{p.VirtualInventoryForSwaps, p.VirtualInventoryForPositions} {
			if a != "" && !seen[a] {
				seen[a] = true
				addrs = append(addrs, a)
			}
		}
	}
	sort.Strings(addrs)
	out := make([]*market.VirtualInventory, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, market.NewVirtualInventory(a))
	}
	return out
}

// BuildGlvs builds the baskets against already built markets.
func (c *Config) BuildGlvs(markets []*market.Market) ([]*glv.Glv, error) {
	byID := make(map[string]*market.Market, 2*len(markets))
	for _, m := range markets {
		byID[m.Name] = m
		byID[m.Meta.MarketToken] = m
	}
	out := make([]*glv.Glv, 0, len(c.Glvs))
	for _, p := range c.Glvs {
		g := glv.New(p.Name, p.LongToken, p.ShortToken)
		for id, amount := range p.Balances {
			m, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: glv %q references unknown market %q", ErrInvalidConfig, p.Name, id)
			}
			if err := g.Add(m, num.NewUint(amount)); err != nil {
				return nil, err
			}
		}
		out = append(out, g)
	}
	return out, nil
}
