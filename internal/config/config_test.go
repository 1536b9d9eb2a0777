package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

const sample = `
log_level = "debug"

[server]
port = "9090"
read_timeout = "3s"

[engine]
max_price_age = "30s"
route_estimation_value = "250.5"

[limits]
max_per_market = "10000"

[[markets]]
name = "BTC/USD[WBTC-USDC]"
market_token = "GM_BTC"
virtual_inventory_for_swaps = "VI_BTC"

[markets.config]
swap_impact_exponent = "2.5"
reserve_factor = 800000000
skip_borrowing_fee_for_smaller_side = true

[[markets]]
name = "SOL/USD[WSOL]"
market_token = "GM_SOL"
pure = true
decimals = 6

[[glvs]]
name = "GLV_BTC"
long_token = "WBTC"
short_token = "USDC"

[glvs.balances]
"BTC/USD[WBTC-USDC]" = 1000
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "CACHE_TTL", "NATS_URL", "LOG_LEVEL", "ENGINE_CONFIG"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, 30*time.Second, cfg.Redis.CacheTTL.Duration)
	require.Equal(t, "engine.actions", cfg.NATS.SubjectPrefix)
	require.Empty(t, cfg.Markets)
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7070")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "7070", cfg.Server.Port)
	require.Equal(t, 3*time.Second, cfg.Server.ReadTimeout.Duration)
	require.Equal(t, 10*time.Second, cfg.Server.WriteTimeout.Duration)
	require.Equal(t, time.Minute, cfg.Redis.CacheTTL.Duration)
	require.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	require.Equal(t, 30*time.Second, cfg.Engine.MaxPriceAge.Duration)
	require.True(t, cfg.Engine.RouteEstimationValue.Equal(decimal.RequireFromString("250.5")))
	require.True(t, cfg.Limits.MaxPerMarket.Equal(decimal.NewFromInt(10000)))
	require.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Markets, 2)
}

func TestLoad_EngineConfigEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_CONFIG", writeFile(t, sample))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfg.Markets, 2)
}

func TestLoad_UnknownKey(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeFile(t, "[server]\nprot = \"1\"\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildMarkets(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	markets, err := cfg.BuildMarkets(time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	require.Len(t, markets, 2)

	btc := markets[0]
	require.Equal(t, market.Meta{MarketToken: "GM_BTC", IndexToken: "BTC", LongToken: "WBTC", ShortToken: "USDC"}, btc.Meta)
	require.True(t, btc.Flags.Enabled)
	require.Equal(t, "VI_BTC", btc.VirtualInventoryForSwaps)
	require.Equal(t, num.NewUint(2_500_000_000), btc.Config.SwapImpactExponent)
	require.Equal(t, num.NewUint(800_000_000), btc.Config.ReserveFactor)
	require.True(t, btc.Config.SkipBorrowingFeeForSmallerSide)
	require.Equal(t, market.DefaultConfig(9).SwapImpactPositiveFactor, btc.Config.SwapImpactPositiveFactor)

	sol := markets[1]
	require.True(t, sol.IsPure())
	require.EqualValues(t, 6, sol.Decimals)
	require.Equal(t, "WSOL", sol.Meta.LongToken)

	vis := cfg.VirtualInventories()
	require.Len(t, vis, 1)
	require.Equal(t, "VI_BTC", vis[0].Address)

	glvs, err := cfg.BuildGlvs(markets)
	require.NoError(t, err)
	require.Len(t, glvs, 1)
	require.Equal(t, num.NewUint(1000), glvs[0].Balances["BTC/USD[WBTC-USDC]"])
}

func TestMarketPreset_Errors(t *testing.T) {
	tests := []struct {
		name   string
		preset MarketPreset
	}{
		{"bad name", MarketPreset{Name: "BTC-USD", MarketToken: "GM"}},
		{"no market token", MarketPreset{Name: "BTC/USD[WBTC-USDC]"}},
		{"pure mismatch", MarketPreset{Name: "BTC/USD[WBTC-USDC]", MarketToken: "GM", Pure: true}},
		{"unknown key", MarketPreset{Name: "BTC/USD[WBTC-USDC]", MarketToken: "GM", Config: map[string]any{"nope": "1"}}},
		{"bad factor", MarketPreset{Name: "BTC/USD[WBTC-USDC]", MarketToken: "GM", Config: map[string]any{"reserve_factor": "abc"}}},
		{"negative", MarketPreset{Name: "BTC/USD[WBTC-USDC]", MarketToken: "GM", Config: map[string]any{"reserve_factor": int64(-1)}}},
		{"bool for factor", MarketPreset{Name: "BTC/USD[WBTC-USDC]", MarketToken: "GM", Config: map[string]any{"reserve_factor": true}}},
		{"float", MarketPreset{Name: "BTC/USD[WBTC-USDC]", MarketToken: "GM", Config: map[string]any{"reserve_factor": 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.preset.Build(time.Now())
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Markets = []MarketPreset{
		{Name: "BTC/USD[WBTC-USDC]", MarketToken: "GM"},
		{Name: "BTC/USD[WBTC-USDC]", MarketToken: "GM"},
	}
	cfg.Glvs = []GlvPreset{{Name: "G", Balances: map[string]uint64{"missing": 1}}}

	err := cfg.Validate()
	require.True(t, errors.Is(err, ErrInvalidConfig))
	require.Contains(t, err.Error(), "unknown log level")
	require.Contains(t, err.Error(), "duplicate name")
	require.Contains(t, err.Error(), "duplicate market token")
	require.Contains(t, err.Error(), `unknown market "missing"`)
}
