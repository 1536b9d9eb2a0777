package correlation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/clock"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/market"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/position"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func btc(marketToken string) Exposure {
	return Exposure{Market: marketToken, IndexToken: "BTC"}
}

func exposure(marketToken, index string, net float64) Exposure {
	return Exposure{Market: marketToken, IndexToken: index, Net: d(net)}
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(5000))

	require.NoError(t, limiter.CheckLimit(btc("GM1"), d(100), nil))
}

func TestCheckLimit_PerMarketExceeded(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(5000))

	// Existing position of 950 + new 100 = 1050 > 1000.
	existing := []Exposure{exposure("GM1", "BTC", 950)}

	err := limiter.CheckLimit(btc("GM1"), d(100), existing)
	require.ErrorIs(t, err, ErrPerMarketLimitExceeded)
}

func TestCheckLimit_ShortSideExceeded(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(5000))

	existing := []Exposure{exposure("GM1", "BTC", -950)}

	err := limiter.CheckLimit(btc("GM1"), d(-100), existing)
	require.ErrorIs(t, err, ErrPerMarketLimitExceeded)
}

func TestCheckLimit_CorrelatedExceeded(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(2000))

	existing := []Exposure{
		exposure("GM1", "BTC", 800),
		exposure("GM2", "BTC", -800),
		exposure("GM3", "BTC", 300),
	}

	// New trade of 200 in another BTC market:
	// total = 200 + 800 + 800 + 300 = 2100 > 2000
	err := limiter.CheckLimit(btc("GM4"), d(200), existing)
	require.ErrorIs(t, err, ErrCorrelatedLimitExceeded)
}

func TestCheckLimit_OtherIndexIgnored(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(2000))

	existing := []Exposure{
		exposure("GM1", "BTC", 800),
		exposure("GM5", "ETH", 900),
	}

	// Correlated total = 500 + 800 = 1300 < 2000 (ETH market excluded).
	require.NoError(t, limiter.CheckLimit(btc("GM2"), d(500), existing))
}

func TestCheckLimit_DecreaseReducesExposure(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(5000))

	existing := []Exposure{exposure("GM1", "BTC", 800)}

	// 800 - 200 = 600 < 1000.
	require.NoError(t, limiter.CheckLimit(btc("GM1"), d(-200), existing))
}

func TestCheckLimit_ZeroLimitsDisabled(t *testing.T) {
	limiter := NewPositionLimiter(decimal.Zero, decimal.Zero)

	err := limiter.CheckLimit(btc("GM1"), d(1e12), []Exposure{exposure("GM2", "BTC", 1e12)})
	require.NoError(t, err)
}

func TestNetExposures(t *testing.T) {
	m := market.NewForTest(clock.System{})
	usd := func(v uint64) num.Uint { return num.NewUint(v * 1_000_000_000) }

	long, err := position.New("alice", m, "LONG", true)
	require.NoError(t, err)
	long.SizeInUSD = usd(1500)
	short, err := position.New("alice", m, "SHORT", false)
	require.NoError(t, err)
	short.SizeInUSD = usd(400)
	orphan := &position.Position{Owner: "alice", Market: "GM9", IsLong: true, SizeInUSD: usd(7)}

	got := NetExposures([]*position.Position{long, short, orphan}, []*market.Market{m})
	require.Len(t, got, 1)
	require.Equal(t, "GM", got[0].Market)
	require.Equal(t, "IDX", got[0].IndexToken)
	require.True(t, got[0].Net.Equal(d(1100)), "net=%s", got[0].Net)
}
