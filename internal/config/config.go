// Package config loads the server configuration and the market presets
// that seed the simulator at start-up.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidConfig is returned by Validate and by preset builders.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root configuration.
type Config struct {
	LogLevel string         `toml:"log_level"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	NATS     NATSConfig     `toml:"nats"`
	Engine   EngineConfig   `toml:"engine"`
	Limits   LimitsConfig   `toml:"limits"`
	Markets  []MarketPreset `toml:"markets"`
	Glvs     []GlvPreset    `toml:"glvs"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            string   `toml:"port"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	IdleTimeout     duration `toml:"idle_timeout"`
	RequestTimeout  duration `toml:"request_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// DatabaseConfig selects the Postgres store. An empty URL keeps state in
// memory.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// RedisConfig enables the read-through snapshot cache.
type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// NATSConfig enables action publication.
type NATSConfig struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// EngineConfig tunes the simulator and the swap router.
type EngineConfig struct {
	MaxPriceAge           duration `toml:"max_price_age"`
	ThrowOnExecutionError bool     `toml:"throw_on_execution_error"`
	// RouteEstimationValue is the USD value swapped to estimate each edge,
	// in human units.
	RouteEstimationValue decimal.Decimal `toml:"route_estimation_value"`
	RouteCacheSize       int             `toml:"route_cache_size"`
	RouteConcurrency     int             `toml:"route_concurrency"`
}

// LimitsConfig bounds per-owner exposure, in USD. Zero disables a bound.
type LimitsConfig struct {
	MaxPerMarket  decimal.Decimal `toml:"max_per_market"`
	MaxCorrelated decimal.Decimal `toml:"max_correlated"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{10 * time.Second},
			IdleTimeout:     duration{60 * time.Second},
			RequestTimeout:  duration{30 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
		},
		Redis: RedisConfig{
			CacheTTL: duration{30 * time.Second},
		},
		NATS: NATSConfig{
			SubjectPrefix: "engine.actions",
		},
		Engine: EngineConfig{
			MaxPriceAge:          duration{time.Minute},
			RouteEstimationValue: decimal.NewFromInt(1000),
			RouteCacheSize:       256,
			RouteConcurrency:     8,
		},
		Limits: LimitsConfig{
			MaxPerMarket:  decimal.NewFromInt(1_000_000),
			MaxCorrelated: decimal.NewFromInt(5_000_000),
		},
	}
}

var validLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	if l, ok := validLevels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return slog.LevelInfo
}

// Validate checks the configuration, including every market preset.
func (c *Config) Validate() error {
	var errs []string

	if _, ok := validLevels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Sprintf("unknown log level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Server.Port == "" {
		errs = append(errs, "server.port is required")
	}
	if !c.Engine.RouteEstimationValue.IsPositive() {
		errs = append(errs, "engine.route_estimation_value must be positive")
	}
	if c.Limits.MaxPerMarket.IsNegative() || c.Limits.MaxCorrelated.IsNegative() {
		errs = append(errs, "limits must not be negative")
	}

	names := make(map[string]bool)
	tokens := make(map[string]bool)
	for i, p := range c.Markets {
		if names[p.Name] {
			errs = append(errs, fmt.Sprintf("markets[%d]: duplicate name %q", i, p.Name))
		}
		if tokens[p.MarketToken] {
			errs = append(errs, fmt.Sprintf("markets[%d]: duplicate market token %q", i, p.MarketToken))
		}
		names[p.Name] = true
		tokens[p.MarketToken] = true
		if _, err := p.Build(time.Time{}); err != nil {
			errs = append(errs, fmt.Sprintf("markets[%d]: %v", i, err))
		}
	}
	for i, g := range c.Glvs {
		for name := range g.Balances {
			if !names[name] && !tokens[name] {
				errs = append(errs, fmt.Sprintf("glvs[%d]: unknown market %q", i, name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
