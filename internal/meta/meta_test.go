package meta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseName_Valid(t *testing.T) {
	n, err := ParseName("BTC/USD[WBTC-USDC]")
	require.NoError(t, err)
	require.Equal(t, "BTC", n.Index)
	require.Equal(t, "WBTC", n.Long)
	require.Equal(t, "USDC", n.Short)
	require.False(t, n.IsPure())
	require.Equal(t, "BTC/USD[WBTC-USDC]", n.String())
}

func TestParseName_Pure(t *testing.T) {
	for _, name := range []string{"SOL/USD[WSOL]", "SOL/USD[WSOL-WSOL]"} {
		n, err := ParseName(name)
		require.NoError(t, err, name)
		require.True(t, n.IsPure(), name)
		require.Equal(t, "SOL/USD[WSOL]", n.String())
	}
}

func TestParseName_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"BTC",
		"BTC/USD",
		"BTC/USD[]",
		"BTC/EUR[WBTC-USDC]",
		"BTC/USD[WBTC-USDC",
		"BTC/USD[WBTC-USDC-ETH]",
		"BTC/USD[-USDC]",
		"BTC/USD[WBTC-" + strings.Repeat("X", MaxSymbolLen+1) + "]",
	}
	for _, name := range tests {
		_, err := ParseName(name)
		require.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestValidateSymbol(t *testing.T) {
	for _, sym := range []string{"USDC", "WETH.e", "wsol", "A1_B"} {
		require.NoError(t, ValidateSymbol(sym), sym)
	}
	for _, sym := range []string{"", ".ETH", "US DC", "USD/C"} {
		require.ErrorIs(t, ValidateSymbol(sym), ErrInvalidSymbol, sym)
	}
}

func TestCheckMeta(t *testing.T) {
	n, err := ParseName("IDX/USD[LONG-SHORT]")
	require.NoError(t, err)
	m := n.Meta("GM")
	require.Equal(t, "GM", m.MarketToken)
	require.Equal(t, "IDX", m.IndexToken)
	require.NoError(t, CheckMeta("IDX/USD[LONG-SHORT]", m))

	m.ShortToken = "USDC"
	require.ErrorIs(t, CheckMeta("IDX/USD[LONG-SHORT]", m), ErrInvalidName)
}
