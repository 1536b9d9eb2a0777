package market

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/pool"
)

// VirtualInventory is a pool shared by every market that references its
// address. For swaps it tracks side token amounts; for positions it tracks
// open interest in USD per side.
type VirtualInventory struct {
	Address string    `json:"address"`
	Pool    pool.Pool `json:"pool"`
}

// NewVirtualInventory returns an empty inventory.
func NewVirtualInventory(address string) *VirtualInventory {
	return &VirtualInventory{Address: address, Pool: pool.New(false)}
}

// VirtualInventories maps addresses to shared inventories.
type VirtualInventories map[string]*VirtualInventory

// Clone returns a deep copy of the map and its inventories.
func (vs VirtualInventories) Clone() VirtualInventories {
	out := make(VirtualInventories, len(vs))
	for addr, v := range vs {
		c := *v
		out[addr] = &c
	}
	return out
}

// CommitTo copies staged inventory values back into dst.
func (vs VirtualInventories) CommitTo(dst VirtualInventories) {
	for addr, v := range vs {
		if d, ok := dst[addr]; ok {
			*d = *v
		} else {
			c := *v
			dst[addr] = &c
		}
	}
}

func missingVI(aspect, addr string) error {
	return fmt.Errorf("%w: virtual inventory for %s %q should be present but is missing", model.ErrInvalidArgument, aspect, addr)
}

func unexpectedVI(aspect string) error {
	return fmt.Errorf("%w: virtual inventory for %s should not be present but is provided", model.ErrInvalidArgument, aspect)
}

func checkVI(aspect, declared string, vi *VirtualInventory) error {
	switch {
	case declared == "" && vi != nil:
		return unexpectedVI(aspect)
	case declared != "" && vi == nil:
		return missingVI(aspect, declared)
	case vi != nil && vi.Address != declared:
		return fmt.Errorf("%w: virtual inventory for %s is %q, expected %q", model.ErrInvalidArgument, aspect, vi.Address, declared)
	}
	return nil
}

// AttachVirtualInventories attaches explicit inventories. Each must match
// the address the market declares for that aspect: an inventory for an
// aspect without a declared address is rejected, and so is a missing one.
func (m *Market) AttachVirtualInventories(forSwaps, forPositions *VirtualInventory) error {
	if err := checkVI("swaps", m.VirtualInventoryForSwaps, forSwaps); err != nil {
		return err
	}
	if err := checkVI("positions", m.VirtualInventoryForPositions, forPositions); err != nil {
		return err
	}
	m.viSwaps, m.viPositions = forSwaps, forPositions
	return nil
}

// DetachVirtualInventories drops any attached inventories.
func (m *Market) DetachVirtualInventories() {
	m.viSwaps, m.viPositions = nil, nil
}

// WithVirtualInventories attaches the inventories the market declares,
// taken from vis, runs fn, and restores the previous attachment on every
// exit path. Inventories already attached are kept.
func (m *Market) WithVirtualInventories(vis VirtualInventories, fn func() error) error {
	prevSwaps, prevPositions := m.viSwaps, m.viPositions
	defer func() { m.viSwaps, m.viPositions = prevSwaps, prevPositions }()

	swaps, positions := prevSwaps, prevPositions
	if swaps == nil && m.VirtualInventoryForSwaps != "" {
		swaps = vis[m.VirtualInventoryForSwaps]
	}
	if positions == nil && m.VirtualInventoryForPositions != "" {
		positions = vis[m.VirtualInventoryForPositions]
	}
	if err := m.AttachVirtualInventories(swaps, positions); err != nil {
		return err
	}
	return fn()
}

// WithVirtualInventoriesDisabled runs fn with inventory use switched off.
func (m *Market) WithVirtualInventoriesDisabled(fn func() error) error {
	prev := m.viDisabled
	m.viDisabled = true
	defer func() { m.viDisabled = prev }()
	return fn()
}

// HasVirtualInventoriesAttached reports whether any inventory is attached.
func (m *Market) HasVirtualInventoriesAttached() bool {
	return m.viSwaps != nil || m.viPositions != nil
}

// VirtualInventoryForSwapsModel returns the attached swap inventory, nil
// when the market declares none or inventories are disabled.
func (m *Market) VirtualInventoryForSwapsModel() (*VirtualInventory, error) {
	if m.viDisabled || m.VirtualInventoryForSwaps == "" {
		return nil, nil
	}
	if m.viSwaps == nil {
		return nil, missingVI("swaps", m.VirtualInventoryForSwaps)
	}
	return m.viSwaps, nil
}

// VirtualInventoryForPositionsModel returns the attached position inventory.
func (m *Market) VirtualInventoryForPositionsModel() (*VirtualInventory, error) {
	if m.viDisabled || m.VirtualInventoryForPositions == "" {
		return nil, nil
	}
	if m.viPositions == nil {
		return nil, missingVI("positions", m.VirtualInventoryForPositions)
	}
	return m.viPositions, nil
}

// ApplyLiquidityDelta changes the primary pool and, when attached, the swap
// virtual inventory by the same token delta.
func (m *Market) ApplyLiquidityDelta(isLong bool, delta num.Int) error {
	vi, err := m.VirtualInventoryForSwapsModel()
	if err != nil {
		return err
	}
	if err := m.ApplyDelta(pool.Primary, isLong, delta); err != nil {
		return err
	}
	if vi != nil {
		if err := vi.Pool.ApplyDelta(isLong, delta); err != nil {
			return fmt.Errorf("virtual inventory %s: %w", vi.Address, err)
		}
	}
	return nil
}

// ApplyOpenInterestDelta changes the open interest of a side for one
// collateral token and, when attached, the position virtual inventory.
func (m *Market) ApplyOpenInterestDelta(isLong, collateralIsLong bool, delta num.Int) error {
	vi, err := m.VirtualInventoryForPositionsModel()
	if err != nil {
		return err
	}
	if err := m.ApplyDelta(pool.OpenInterest(isLong), collateralIsLong, delta); err != nil {
		return err
	}
	if vi != nil {
		if err := vi.Pool.ApplyDelta(isLong, delta); err != nil {
			return fmt.Errorf("virtual inventory %s: %w", vi.Address, err)
		}
	}
	return nil
}
