// Package meta handles market name parsing and token symbol validation.
package meta

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
)

// nameRegex matches: {INDEX}/USD[{LONG}-{SHORT}] or {INDEX}/USD[{TOKEN}]
// Example: BTC/USD[WBTC-USDC]
var nameRegex = regexp.MustCompile(
	`^([A-Za-z0-9._]+)/USD\[([A-Za-z0-9._]+)(?:-([A-Za-z0-9._]+))?\]$`,
)

var symbolRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._]*$`)

// MaxSymbolLen bounds the length of a token symbol.
const MaxSymbolLen = 16

var (
	ErrInvalidName   = errors.New("meta: invalid market name")
	ErrInvalidSymbol = errors.New("meta: invalid token symbol")
)

// Name is a parsed market name.
type Name struct {
	Index string `json:"index_token"`
	Long  string `json:"long_token"`
	Short string `json:"short_token"`
}

// ParseName parses and validates a market name.
// Format: {INDEX}/USD[{LONG}-{SHORT}], or {INDEX}/USD[{TOKEN}] for a pure market.
func ParseName(name string) (Name, error) {
	matches := nameRegex.FindStringSubmatch(name)
	if matches == nil {
		return Name{}, fmt.Errorf("%w: %q (expected {INDEX}/USD[{LONG}-{SHORT}])", ErrInvalidName, name)
	}
	n := Name{Index: matches[1], Long: matches[2], Short: matches[3]}
	if n.Short == "" {
		n.Short = n.Long
	}
	for _, sym := range []string{n.Index, n.Long, n.Short} {
		if err := ValidateSymbol(sym); err != nil {
			return Name{}, fmt.Errorf("%w: %s", ErrInvalidName, err)
		}
	}
	return n, nil
}

// ValidateSymbol checks a token symbol.
func ValidateSymbol(sym string) error {
	if len(sym) > MaxSymbolLen {
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidSymbol, sym, MaxSymbolLen)
	}
	if !symbolRegex.MatchString(sym) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, sym)
	}
	return nil
}

// IsPure reports whether both sides share one token.
func (n Name) IsPure() bool { return n.Long == n.Short }

// String formats the name. Pure markets use the single-token form.
func (n Name) String() string {
	if n.IsPure() {
		return fmt.Sprintf("%s/USD[%s]", n.Index, n.Long)
	}
	return fmt.Sprintf("%s/USD[%s-%s]", n.Index, n.Long, n.Short)
}

// Meta returns the token set of a market with this name.
func (n Name) Meta(marketToken string) market.Meta {
	return market.Meta{
		MarketToken: marketToken,
		IndexToken:  n.Index,
		LongToken:   n.Long,
		ShortToken:  n.Short,
	}
}

// CheckMeta reports whether the tokens of m agree with name.
func CheckMeta(name string, m market.Meta) error {
	n, err := ParseName(name)
	if err != nil {
		return err
	}
	if n.Index != m.IndexToken || n.Long != m.LongToken || n.Short != m.ShortToken {
		return fmt.Errorf("%w: %q does not match tokens %s/%s/%s",
			ErrInvalidName, name, m.IndexToken, m.LongToken, m.ShortToken)
	}
	return nil
}
