package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
)

// ReasonPriceExpired is the outcome reason for a stale price snapshot.
const ReasonPriceExpired = "price window expired"

// Outcome is the result of one simulated action. An outcome that was not
// executed left the book untouched and carries the reason.
type Outcome struct {
	ID       string           `json:"id"`
	Kind     model.ActionKind `json:"kind"`
	Market   string           `json:"market"`
	Owner    string           `json:"owner,omitempty"`
	Executed bool             `json:"executed"`
	Reason   string           `json:"reason,omitempty"`
	Report   any              `json:"report,omitempty"`
	At       time.Time        `json:"at"`
}

// Record converts the outcome into a ledger entry.
func (o *Outcome) Record() (model.ActionRecord, error) {
	rec := model.ActionRecord{
		ID:        o.ID,
		Kind:      o.Kind,
		Market:    o.Market,
		Owner:     o.Owner,
		Executed:  o.Executed,
		Reason:    o.Reason,
		Timestamp: o.At,
	}
	if o.Report != nil {
		data, err := json.Marshal(o.Report)
		if err != nil {
			return model.ActionRecord{}, fmt.Errorf("encode %s report: %w", o.Kind, err)
		}
		rec.Report = data
	}
	return rec, nil
}

// execute runs fn unless a price snapshot is stale. With
// ThrowOnExecutionError unset, a failure of fn becomes an outcome that was
// not executed. Callers hold s.mu.
func (s *Simulator) execute(ctx context.Context, o *Outcome, prices []model.Prices, fn func() (any, error)) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.Now()
	o.ID = uuid.NewString()
	o.At = now.UTC()

	for _, p := range prices {
		if p.Expired(now, s.opts.MaxPriceAge) {
			o.Reason = ReasonPriceExpired
			s.log.Warn("action not executed",
				"id", o.ID,
				"kind", o.Kind,
				"market", o.Market,
				"reason", o.Reason,
				"prices_updated_at", p.UpdatedAt,
			)
			return o, nil
		}
	}

	report, err := fn()
	if err != nil {
		if s.opts.ThrowOnExecutionError {
			return nil, err
		}
		o.Reason = err.Error()
		s.log.Warn("action not executed",
			"id", o.ID,
			"kind", o.Kind,
			"market", o.Market,
			"err", err,
		)
		return o, nil
	}
	o.Executed = true
	o.Report = report
	return o, nil
}
