package model

import (
	"errors"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// Error kinds surfaced by the engine. Callers match them with errors.Is;
// the wrapped message carries the detail.
var (
	// ErrEmptyAction is returned for zero-amount deposits, withdrawals,
	// shifts and swaps.
	ErrEmptyAction = errors.New("model: empty action")

	// ErrInvalidPoolValue is returned when a positive pool value is
	// required but the computed value is zero or negative.
	ErrInvalidPoolValue = errors.New("model: invalid pool value")

	// ErrInvalidArgument covers tokens outside the market, collateral
	// mismatches, virtual inventory mismatches and invalid swap paths.
	ErrInvalidArgument = errors.New("model: invalid argument")

	// ErrMissingPoolKind is returned when a market does not carry the
	// requested pool.
	ErrMissingPoolKind = errors.New("model: missing pool kind")

	// ErrReserveExceeded is returned when reserved value exceeds the
	// configured reserve after a mutation.
	ErrReserveExceeded = errors.New("model: reserve exceeded")

	// ErrPnlFactorExceeded is returned when the pnl-to-pool factor leaves
	// its configured bound.
	ErrPnlFactorExceeded = errors.New("model: pnl factor exceeded")

	ErrInvalidPrice            = errors.New("model: invalid price")
	ErrInsufficientCollateral  = errors.New("model: insufficient collateral")
	ErrLiquidatable            = errors.New("model: position is liquidatable")
	ErrNotLiquidatable         = errors.New("model: position is not liquidatable")
	ErrAcceptablePrice         = errors.New("model: execution price not acceptable")
	ErrMaxPoolAmountExceeded   = errors.New("model: max pool amount exceeded")
	ErrMaxPoolValueExceeded    = errors.New("model: max pool value for deposit exceeded")
	ErrMaxOpenInterestExceeded = errors.New("model: max open interest exceeded")
	ErrInsufficientOutput      = errors.New("model: insufficient output amount")
	ErrAdlNotEnabled           = errors.New("model: auto-deleveraging is not enabled")
	ErrAdlNotRequired          = errors.New("model: auto-deleveraging is not required")
	ErrMarketDisabled          = errors.New("model: market is disabled")
)

// Arithmetic kinds are defined by package num and re-exported here so that
// every engine error can be matched against this package.
var (
	ErrComputation = num.ErrComputation
	ErrOverflow    = num.ErrOverflow
	ErrConvert     = num.ErrConvert
)
