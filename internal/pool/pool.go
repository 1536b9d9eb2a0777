// Package pool implements the two-sided balances a market is made of.
//
// A pool tracks a long-side and a short-side amount. A pure pool (a market
// whose long and short tokens are the same) keeps a single physical balance
// and derives the two logical sides by splitting it: the long side takes the
// ceiling half so that long + short always equals the stored total.
package pool

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// Pool is a two-sided balance. It is a value type; copying it copies the
// balances.
type Pool struct {
	IsPure           bool     `json:"is_pure"`
	LongTokenAmount  num.Uint `json:"long_token_amount"`
	ShortTokenAmount num.Uint `json:"short_token_amount"`
}

// New returns an empty pool.
func New(isPure bool) Pool {
	return Pool{IsPure: isPure}
}

// LongAmount returns the logical long-side amount.
func (p Pool) LongAmount() num.Uint {
	if p.IsPure {
		r, _ := p.LongTokenAmount.DivCeil(num.NewUint(2))
		return r
	}
	return p.LongTokenAmount
}

// ShortAmount returns the logical short-side amount.
func (p Pool) ShortAmount() num.Uint {
	if p.IsPure {
		r, _ := p.LongTokenAmount.Div(num.NewUint(2))
		return r
	}
	return p.ShortTokenAmount
}

// Amount returns the logical amount of one side.
func (p Pool) Amount(isLong bool) num.Uint {
	if isLong {
		return p.LongAmount()
	}
	return p.ShortAmount()
}

// Total returns long + short.
func (p Pool) Total() (num.Uint, error) {
	if p.IsPure {
		return p.LongTokenAmount, nil
	}
	return p.LongTokenAmount.Add(p.ShortTokenAmount)
}

// ApplyDelta adds a signed delta to one side. The pool is left unchanged
// when the result would be negative or exceed 128 bits.
func (p *Pool) ApplyDelta(isLong bool, delta num.Int) error {
	target := &p.ShortTokenAmount
	if isLong || p.IsPure {
		target = &p.LongTokenAmount
	}
	next, err := applySigned(*target, delta)
	if err != nil {
		side := "short"
		if isLong {
			side = "long"
		}
		return fmt.Errorf("%w: apply delta %s to %s amount %s", model.ErrComputation, delta, side, *target)
	}
	*target = next
	return nil
}

// ApplyDeltaAmount adds an unsigned amount to one side.
func (p *Pool) ApplyDeltaAmount(isLong bool, amount num.Uint) error {
	delta, err := num.ToSigned(amount)
	if err != nil {
		return err
	}
	return p.ApplyDelta(isLong, delta)
}

// CheckedApplyDelta returns a copy with both deltas applied.
func (p Pool) CheckedApplyDelta(longDelta, shortDelta num.Int) (Pool, error) {
	next := p
	if err := next.ApplyDelta(true, longDelta); err != nil {
		return p, err
	}
	if err := next.ApplyDelta(false, shortDelta); err != nil {
		return p, err
	}
	return next, nil
}

// CancelAmounts nets the two sides. The larger side keeps the difference,
// the smaller becomes zero and a tie leaves both at zero. For a pure pool
// only the odd remainder of the single balance is kept.
func (p Pool) CancelAmounts() Pool {
	next := p
	if p.IsPure {
		if p.LongTokenAmount.IsOdd() {
			next.LongTokenAmount = num.NewUint(1)
		} else {
			next.LongTokenAmount = num.Zero
		}
		return next
	}
	if p.LongTokenAmount.GTE(p.ShortTokenAmount) {
		next.LongTokenAmount = p.LongTokenAmount.SatSub(p.ShortTokenAmount)
		next.ShortTokenAmount = num.Zero
	} else {
		next.LongTokenAmount = num.Zero
		next.ShortTokenAmount = p.ShortTokenAmount.SatSub(p.LongTokenAmount)
	}
	return next
}

func applySigned(amount num.Uint, delta num.Int) (num.Uint, error) {
	if delta.IsNegative() {
		return amount.Sub(delta.Abs())
	}
	return amount.Add(delta.Abs())
}
