// Package clock tracks the per-market accrual timers.
//
// Each clock remembers the last time its accrual ran. Actions ask how many
// seconds have passed since then and, when they apply the accrual, reset
// the clock in the same staged mutation.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Kind names one accrual timer.
type Kind uint8

const (
	Borrowing Kind = iota
	Funding
	PriceImpactDistribution
	Adl
)

func (k Kind) String() string {
	switch k {
	case Borrowing:
		return "borrowing"
	case Funding:
		return "funding"
	case PriceImpactDistribution:
		return "price_impact_distribution"
	case Adl:
		return "adl"
	default:
		return fmt.Sprintf("clock(%d)", uint8(k))
	}
}

// Clocks holds the last update timestamp (unix seconds) of every timer.
type Clocks struct {
	Borrowing               int64 `json:"borrowing"`
	Funding                 int64 `json:"funding"`
	PriceImpactDistribution int64 `json:"price_impact_distribution"`
	Adl                     int64 `json:"adl"`
}

// New returns clocks that all start at now.
func New(now time.Time) Clocks {
	ts := now.Unix()
	return Clocks{Borrowing: ts, Funding: ts, PriceImpactDistribution: ts, Adl: ts}
}

func (c *Clocks) get(k Kind) (*int64, error) {
	switch k {
	case Borrowing:
		return &c.Borrowing, nil
	case Funding:
		return &c.Funding, nil
	case PriceImpactDistribution:
		return &c.PriceImpactDistribution, nil
	case Adl:
		return &c.Adl, nil
	default:
		return nil, fmt.Errorf("clock: unknown kind %s", k)
	}
}

// PassedInSeconds returns the seconds elapsed since the clock was last
// reset, without resetting it. A clock in the future yields zero.
func (c Clocks) PassedInSeconds(k Kind, now time.Time) (uint64, error) {
	last, err := c.get(k)
	if err != nil {
		return 0, err
	}
	diff := now.Unix() - *last
	if diff < 0 {
		return 0, nil
	}
	return uint64(diff), nil
}

// JustPassedInSeconds returns the elapsed seconds and resets the clock to now.
func (c *Clocks) JustPassedInSeconds(k Kind, now time.Time) (uint64, error) {
	passed, err := c.PassedInSeconds(k, now)
	if err != nil {
		return 0, err
	}
	last, _ := c.get(k)
	if ts := now.Unix(); ts > *last {
		*last = ts
	}
	return passed, nil
}

// Source supplies the current time to the engine.
type Source interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Manual is a settable time source for tests and simulations.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a manual source starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the manual time forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set replaces the manual time.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
