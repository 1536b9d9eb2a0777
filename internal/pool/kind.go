package pool

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
)

// Kind names one of the pools a market carries.
type Kind uint8

const (
	// Primary holds the liquidity deposited by LPs.
	Primary Kind = iota
	// SwapImpact holds tokens collected from negative swap impact.
	SwapImpact
	// ClaimableFee holds fees owed to the fee receiver.
	ClaimableFee
	// OpenInterestForLong is long open interest in USD, split by collateral token.
	OpenInterestForLong
	OpenInterestForShort
	// OpenInterestInTokensForLong is long open interest in index tokens.
	OpenInterestInTokensForLong
	OpenInterestInTokensForShort
	// PositionImpact holds index tokens collected from negative position impact.
	PositionImpact
	// BorrowingFactor holds the cumulative borrowing factor per side.
	BorrowingFactor
	FundingAmountPerSizeForLong
	FundingAmountPerSizeForShort
	ClaimableFundingAmountPerSizeForLong
	ClaimableFundingAmountPerSizeForShort
	CollateralSumForLong
	CollateralSumForShort
	// TotalBorrowing holds Σ size_in_usd · borrowing_factor per side.
	TotalBorrowing

	numKinds
)

var kindNames = [numKinds]string{
	Primary:                               "primary",
	SwapImpact:                            "swap_impact",
	ClaimableFee:                          "claimable_fee",
	OpenInterestForLong:                   "open_interest_for_long",
	OpenInterestForShort:                  "open_interest_for_short",
	OpenInterestInTokensForLong:           "open_interest_in_tokens_for_long",
	OpenInterestInTokensForShort:          "open_interest_in_tokens_for_short",
	PositionImpact:                        "position_impact",
	BorrowingFactor:                       "borrowing_factor",
	FundingAmountPerSizeForLong:           "funding_amount_per_size_for_long",
	FundingAmountPerSizeForShort:          "funding_amount_per_size_for_short",
	ClaimableFundingAmountPerSizeForLong:  "claimable_funding_amount_per_size_for_long",
	ClaimableFundingAmountPerSizeForShort: "claimable_funding_amount_per_size_for_short",
	CollateralSumForLong:                  "collateral_sum_for_long",
	CollateralSumForShort:                 "collateral_sum_for_short",
	TotalBorrowing:                        "total_borrowing",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds returns every pool kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

// Pools is the fixed set of pools owned by one market.
type Pools struct {
	Primary                               Pool `json:"primary"`
	SwapImpact                            Pool `json:"swap_impact"`
	ClaimableFee                          Pool `json:"claimable_fee"`
	OpenInterestForLong                   Pool `json:"open_interest_for_long"`
	OpenInterestForShort                  Pool `json:"open_interest_for_short"`
	OpenInterestInTokensForLong           Pool `json:"open_interest_in_tokens_for_long"`
	OpenInterestInTokensForShort          Pool `json:"open_interest_in_tokens_for_short"`
	PositionImpact                        Pool `json:"position_impact"`
	BorrowingFactor                       Pool `json:"borrowing_factor"`
	FundingAmountPerSizeForLong           Pool `json:"funding_amount_per_size_for_long"`
	FundingAmountPerSizeForShort          Pool `json:"funding_amount_per_size_for_short"`
	ClaimableFundingAmountPerSizeForLong  Pool `json:"claimable_funding_amount_per_size_for_long"`
	ClaimableFundingAmountPerSizeForShort Pool `json:"claimable_funding_amount_per_size_for_short"`
	CollateralSumForLong                  Pool `json:"collateral_sum_for_long"`
	CollateralSumForShort                 Pool `json:"collateral_sum_for_short"`
	TotalBorrowing                        Pool `json:"total_borrowing"`
}

// NewPools returns zeroed pools. Position impact, borrowing factor and total
// borrowing are never pure: their sides do not hold the two collateral
// tokens. Every other pool follows the market.
func NewPools(isPure bool) Pools {
	var p Pools
	for _, k := range Kinds() {
		pool, _ := p.Get(k)
		pool.IsPure = isPure && !alwaysImpure(k)
	}
	return p
}

func alwaysImpure(k Kind) bool {
	switch k {
	case PositionImpact, BorrowingFactor, TotalBorrowing:
		return true
	default:
		return false
	}
}

// Get returns a pointer to the pool of kind k.
func (p *Pools) Get(k Kind) (*Pool, error) {
	switch k {
	case Primary:
		return &p.Primary, nil
	case SwapImpact:
		return &p.SwapImpact, nil
	case ClaimableFee:
		return &p.ClaimableFee, nil
	case OpenInterestForLong:
		return &p.OpenInterestForLong, nil
	case OpenInterestForShort:
		return &p.OpenInterestForShort, nil
	case OpenInterestInTokensForLong:
		return &p.OpenInterestInTokensForLong, nil
	case OpenInterestInTokensForShort:
		return &p.OpenInterestInTokensForShort, nil
	case PositionImpact:
		return &p.PositionImpact, nil
	case BorrowingFactor:
		return &p.BorrowingFactor, nil
	case FundingAmountPerSizeForLong:
		return &p.FundingAmountPerSizeForLong, nil
	case FundingAmountPerSizeForShort:
		return &p.FundingAmountPerSizeForShort, nil
	case ClaimableFundingAmountPerSizeForLong:
		return &p.ClaimableFundingAmountPerSizeForLong, nil
	case ClaimableFundingAmountPerSizeForShort:
		return &p.ClaimableFundingAmountPerSizeForShort, nil
	case CollateralSumForLong:
		return &p.CollateralSumForLong, nil
	case CollateralSumForShort:
		return &p.CollateralSumForShort, nil
	case TotalBorrowing:
		return &p.TotalBorrowing, nil
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrMissingPoolKind, k)
	}
}

// OpenInterest returns the open interest kind for a side.
func OpenInterest(isLong bool) Kind {
	if isLong {
		return OpenInterestForLong
	}
	return OpenInterestForShort
}

// OpenInterestInTokens returns the open interest in tokens kind for a side.
func OpenInterestInTokens(isLong bool) Kind {
	if isLong {
		return OpenInterestInTokensForLong
	}
	return OpenInterestInTokensForShort
}

// FundingAmountPerSize returns the funding per size kind for a side.
func FundingAmountPerSize(isLong bool) Kind {
	if isLong {
		return FundingAmountPerSizeForLong
	}
	return FundingAmountPerSizeForShort
}

// ClaimableFundingAmountPerSize returns the claimable funding per size kind for a side.
func ClaimableFundingAmountPerSize(isLong bool) Kind {
	if isLong {
		return ClaimableFundingAmountPerSizeForLong
	}
	return ClaimableFundingAmountPerSizeForShort
}

// CollateralSum returns the collateral sum kind for a side.
func CollateralSum(isLong bool) Kind {
	if isLong {
		return CollateralSumForLong
	}
	return CollateralSumForShort
}
