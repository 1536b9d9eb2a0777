package trade

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/config"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/correlation"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/graph"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/meta"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/simulator"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/store"
)

var notFound = []error{
	simulator.ErrMarketNotFound,
	simulator.ErrPositionNotFound,
	simulator.ErrGlvNotFound,
	store.ErrNotFound,
	graph.ErrNoRoute,
}

var badRequest = []error{
	model.ErrInvalidArgument,
	model.ErrEmptyAction,
	model.ErrInvalidPrice,
	simulator.ErrPriceNotReady,
	simulator.ErrTriggerPriceRequired,
	meta.ErrInvalidName,
	meta.ErrInvalidSymbol,
	config.ErrInvalidConfig,
}

var conflict = []error{
	correlation.ErrPerMarketLimitExceeded,
	correlation.ErrCorrelatedLimitExceeded,
	simulator.ErrTriggerNotReached,
	graph.ErrArbitrage,
	model.ErrInvalidPoolValue,
	model.ErrMissingPoolKind,
	model.ErrReserveExceeded,
	model.ErrPnlFactorExceeded,
	model.ErrInsufficientCollateral,
	model.ErrLiquidatable,
	model.ErrNotLiquidatable,
	model.ErrAcceptablePrice,
	model.ErrMaxPoolAmountExceeded,
	model.ErrMaxPoolValueExceeded,
	model.ErrMaxOpenInterestExceeded,
	model.ErrInsufficientOutput,
	model.ErrAdlNotEnabled,
	model.ErrAdlNotRequired,
	model.ErrMarketDisabled,
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case matches(err, notFound):
		return http.StatusNotFound
	case matches(err, badRequest):
		return http.StatusBadRequest
	case matches(err, conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func matches(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeErr writes err with its mapped status. Internal errors are logged
// and not echoed to the client.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}
