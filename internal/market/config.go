package market

import (
	"fmt"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/fees"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
)

// Config is the flat parameter table of a market. Factors and USD values
// use the market unit; amounts use token units.
type Config struct {
	SwapImpactExponent       num.Uint `json:"swap_impact_exponent" toml:"swap_impact_exponent"`
	SwapImpactPositiveFactor num.Uint `json:"swap_impact_positive_factor" toml:"swap_impact_positive_factor"`
	SwapImpactNegativeFactor num.Uint `json:"swap_impact_negative_factor" toml:"swap_impact_negative_factor"`

	SwapFeeReceiverFactor                num.Uint `json:"swap_fee_receiver_factor" toml:"swap_fee_receiver_factor"`
	SwapFeeFactorForPositiveImpact       num.Uint `json:"swap_fee_factor_for_positive_impact" toml:"swap_fee_factor_for_positive_impact"`
	SwapFeeFactorForNegativeImpact       num.Uint `json:"swap_fee_factor_for_negative_impact" toml:"swap_fee_factor_for_negative_impact"`
	DepositFeeFactorForPositiveImpact    num.Uint `json:"deposit_fee_factor_for_positive_impact" toml:"deposit_fee_factor_for_positive_impact"`
	DepositFeeFactorForNegativeImpact    num.Uint `json:"deposit_fee_factor_for_negative_impact" toml:"deposit_fee_factor_for_negative_impact"`
	WithdrawalFeeFactorForPositiveImpact num.Uint `json:"withdrawal_fee_factor_for_positive_impact" toml:"withdrawal_fee_factor_for_positive_impact"`
	WithdrawalFeeFactorForNegativeImpact num.Uint `json:"withdrawal_fee_factor_for_negative_impact" toml:"withdrawal_fee_factor_for_negative_impact"`

	PositionImpactExponent                 num.Uint `json:"position_impact_exponent" toml:"position_impact_exponent"`
	PositionImpactPositiveFactor           num.Uint `json:"position_impact_positive_factor" toml:"position_impact_positive_factor"`
	PositionImpactNegativeFactor           num.Uint `json:"position_impact_negative_factor" toml:"position_impact_negative_factor"`
	MaxPositionImpactFactorForPositive     num.Uint `json:"max_position_impact_factor_for_positive" toml:"max_position_impact_factor_for_positive"`
	MaxPositionImpactFactorForNegative     num.Uint `json:"max_position_impact_factor_for_negative" toml:"max_position_impact_factor_for_negative"`
	MaxPositionImpactFactorForLiquidations num.Uint `json:"max_position_impact_factor_for_liquidations" toml:"max_position_impact_factor_for_liquidations"`

	OrderFeeReceiverFactor          num.Uint `json:"order_fee_receiver_factor" toml:"order_fee_receiver_factor"`
	OrderFeeFactorForPositiveImpact num.Uint `json:"order_fee_factor_for_positive_impact" toml:"order_fee_factor_for_positive_impact"`
	OrderFeeFactorForNegativeImpact num.Uint `json:"order_fee_factor_for_negative_impact" toml:"order_fee_factor_for_negative_impact"`
	LiquidationFeeFactor            num.Uint `json:"liquidation_fee_factor" toml:"liquidation_fee_factor"`
	LiquidationFeeReceiverFactor    num.Uint `json:"liquidation_fee_receiver_factor" toml:"liquidation_fee_receiver_factor"`

	BorrowingFeeReceiverFactor    num.Uint `json:"borrowing_fee_receiver_factor" toml:"borrowing_fee_receiver_factor"`
	BorrowingFeeFactorForLong     num.Uint `json:"borrowing_fee_factor_for_long" toml:"borrowing_fee_factor_for_long"`
	BorrowingFeeFactorForShort    num.Uint `json:"borrowing_fee_factor_for_short" toml:"borrowing_fee_factor_for_short"`
	BorrowingFeeExponentForLong   num.Uint `json:"borrowing_fee_exponent_for_long" toml:"borrowing_fee_exponent_for_long"`
	BorrowingFeeExponentForShort  num.Uint `json:"borrowing_fee_exponent_for_short" toml:"borrowing_fee_exponent_for_short"`
	OptimalUsageFactorForLong     num.Uint `json:"optimal_usage_factor_for_long" toml:"optimal_usage_factor_for_long"`
	OptimalUsageFactorForShort    num.Uint `json:"optimal_usage_factor_for_short" toml:"optimal_usage_factor_for_short"`
	BaseBorrowingFactorForLong    num.Uint `json:"base_borrowing_factor_for_long" toml:"base_borrowing_factor_for_long"`
	BaseBorrowingFactorForShort   num.Uint `json:"base_borrowing_factor_for_short" toml:"base_borrowing_factor_for_short"`
	AboveOptimalFactorForLong     num.Uint `json:"above_optimal_usage_borrowing_factor_for_long" toml:"above_optimal_usage_borrowing_factor_for_long"`
	AboveOptimalFactorForShort    num.Uint `json:"above_optimal_usage_borrowing_factor_for_short" toml:"above_optimal_usage_borrowing_factor_for_short"`
	ClosedBaseBorrowingFactor     num.Uint `json:"market_closed_base_borrowing_factor" toml:"market_closed_base_borrowing_factor"`
	ClosedAboveOptimalUsageFactor num.Uint `json:"market_closed_above_optimal_usage_borrowing_factor" toml:"market_closed_above_optimal_usage_borrowing_factor"`

	FundingFeeExponent                    num.Uint `json:"funding_fee_exponent" toml:"funding_fee_exponent"`
	FundingFeeFactor                      num.Uint `json:"funding_fee_factor" toml:"funding_fee_factor"`
	FundingFeeMaxFactorPerSecond          num.Uint `json:"funding_fee_max_factor_per_second" toml:"funding_fee_max_factor_per_second"`
	FundingFeeMinFactorPerSecond          num.Uint `json:"funding_fee_min_factor_per_second" toml:"funding_fee_min_factor_per_second"`
	FundingFeeIncreaseFactorPerSecond     num.Uint `json:"funding_fee_increase_factor_per_second" toml:"funding_fee_increase_factor_per_second"`
	FundingFeeDecreaseFactorPerSecond     num.Uint `json:"funding_fee_decrease_factor_per_second" toml:"funding_fee_decrease_factor_per_second"`
	FundingFeeThresholdForStableFunding   num.Uint `json:"funding_fee_threshold_for_stable_funding" toml:"funding_fee_threshold_for_stable_funding"`
	FundingFeeThresholdForDecreaseFunding num.Uint `json:"funding_fee_threshold_for_decrease_funding" toml:"funding_fee_threshold_for_decrease_funding"`

	PositionImpactDistributeFactor num.Uint `json:"position_impact_distribute_factor" toml:"position_impact_distribute_factor"`
	MinPositionImpactPoolAmount    num.Uint `json:"min_position_impact_pool_amount" toml:"min_position_impact_pool_amount"`

	ReserveFactor             num.Uint `json:"reserve_factor" toml:"reserve_factor"`
	OpenInterestReserveFactor num.Uint `json:"open_interest_reserve_factor" toml:"open_interest_reserve_factor"`

	MaxPnlFactorForLongDeposit     num.Uint `json:"max_pnl_factor_for_long_deposit" toml:"max_pnl_factor_for_long_deposit"`
	MaxPnlFactorForShortDeposit    num.Uint `json:"max_pnl_factor_for_short_deposit" toml:"max_pnl_factor_for_short_deposit"`
	MaxPnlFactorForLongWithdrawal  num.Uint `json:"max_pnl_factor_for_long_withdrawal" toml:"max_pnl_factor_for_long_withdrawal"`
	MaxPnlFactorForShortWithdrawal num.Uint `json:"max_pnl_factor_for_short_withdrawal" toml:"max_pnl_factor_for_short_withdrawal"`
	MaxPnlFactorForLongTrader      num.Uint `json:"max_pnl_factor_for_long_trader" toml:"max_pnl_factor_for_long_trader"`
	MaxPnlFactorForShortTrader     num.Uint `json:"max_pnl_factor_for_short_trader" toml:"max_pnl_factor_for_short_trader"`
	MaxPnlFactorForLongAdl         num.Uint `json:"max_pnl_factor_for_long_adl" toml:"max_pnl_factor_for_long_adl"`
	MaxPnlFactorForShortAdl        num.Uint `json:"max_pnl_factor_for_short_adl" toml:"max_pnl_factor_for_short_adl"`
	MinPnlFactorAfterLongAdl       num.Uint `json:"min_pnl_factor_after_long_adl" toml:"min_pnl_factor_after_long_adl"`
	MinPnlFactorAfterShortAdl      num.Uint `json:"min_pnl_factor_after_short_adl" toml:"min_pnl_factor_after_short_adl"`

	MaxPoolAmountForLongToken           num.Uint `json:"max_pool_amount_for_long_token" toml:"max_pool_amount_for_long_token"`
	MaxPoolAmountForShortToken          num.Uint `json:"max_pool_amount_for_short_token" toml:"max_pool_amount_for_short_token"`
	MaxPoolValueForDepositForLongToken  num.Uint `json:"max_pool_value_for_deposit_for_long_token" toml:"max_pool_value_for_deposit_for_long_token"`
	MaxPoolValueForDepositForShortToken num.Uint `json:"max_pool_value_for_deposit_for_short_token" toml:"max_pool_value_for_deposit_for_short_token"`
	MaxOpenInterestForLong              num.Uint `json:"max_open_interest_for_long" toml:"max_open_interest_for_long"`
	MaxOpenInterestForShort             num.Uint `json:"max_open_interest_for_short" toml:"max_open_interest_for_short"`

	MinPositionSizeUSD                                num.Uint `json:"min_position_size_usd" toml:"min_position_size_usd"`
	MinCollateralValue                                num.Uint `json:"min_collateral_value" toml:"min_collateral_value"`
	MinCollateralFactor                               num.Uint `json:"min_collateral_factor" toml:"min_collateral_factor"`
	MinCollateralFactorForOpenInterestMultiplierLong  num.Uint `json:"min_collateral_factor_for_open_interest_multiplier_for_long" toml:"min_collateral_factor_for_open_interest_multiplier_for_long"`
	MinCollateralFactorForOpenInterestMultiplierShort num.Uint `json:"min_collateral_factor_for_open_interest_multiplier_for_short" toml:"min_collateral_factor_for_open_interest_multiplier_for_short"`
	MinCollateralFactorForLiquidation                 num.Uint `json:"min_collateral_factor_for_liquidation" toml:"min_collateral_factor_for_liquidation"`
	ClosedMinCollateralFactorForLiquidation           num.Uint `json:"market_closed_min_collateral_factor_for_liquidation" toml:"market_closed_min_collateral_factor_for_liquidation"`

	SkipBorrowingFeeForSmallerSide             bool `json:"skip_borrowing_fee_for_smaller_side" toml:"skip_borrowing_fee_for_smaller_side"`
	IgnoreOpenInterestForUsageFactor           bool `json:"ignore_open_interest_for_usage_factor" toml:"ignore_open_interest_for_usage_factor"`
	EnableMarketClosedParams                   bool `json:"enable_market_closed_params" toml:"enable_market_closed_params"`
	MarketClosedSkipBorrowingFeeForSmallerSide bool `json:"market_closed_skip_borrowing_fee_for_smaller_side" toml:"market_closed_skip_borrowing_fee_for_smaller_side"`
}

// ratio returns unit * n / d.
func ratio(unit num.Uint, n, d uint64) num.Uint {
	v, err := unit.MulDiv(num.NewUint(n), num.NewUint(d))
	if err != nil {
		panic(fmt.Sprintf("market: ratio %d/%d: %v", n, d, err))
	}
	return v
}

// DefaultConfig returns a conservative configuration for a market with the
// given number of decimals. Limits are effectively unbounded.
func DefaultConfig(decimals uint8) Config {
	unit := num.Pow10(decimals)
	f := func(n, d uint64) num.Uint { return ratio(unit, n, d) }
	return Config{
		SwapImpactExponent:       f(2, 1),
		SwapImpactPositiveFactor: f(1, 10_000_000),
		SwapImpactNegativeFactor: f(2, 10_000_000),

		SwapFeeReceiverFactor:                f(37, 100),
		SwapFeeFactorForPositiveImpact:       f(5, 10_000),
		SwapFeeFactorForNegativeImpact:       f(7, 10_000),
		DepositFeeFactorForPositiveImpact:    f(5, 10_000),
		DepositFeeFactorForNegativeImpact:    f(7, 10_000),
		WithdrawalFeeFactorForPositiveImpact: f(5, 10_000),
		WithdrawalFeeFactorForNegativeImpact: f(7, 10_000),

		PositionImpactExponent:                 f(2, 1),
		PositionImpactPositiveFactor:           f(1, 10_000_000),
		PositionImpactNegativeFactor:           f(2, 10_000_000),
		MaxPositionImpactFactorForPositive:     f(5, 1_000),
		MaxPositionImpactFactorForNegative:     f(5, 1_000),
		MaxPositionImpactFactorForLiquidations: num.Zero,

		OrderFeeReceiverFactor:          f(37, 100),
		OrderFeeFactorForPositiveImpact: f(5, 10_000),
		OrderFeeFactorForNegativeImpact: f(7, 10_000),
		LiquidationFeeFactor:            f(2, 1_000),
		LiquidationFeeReceiverFactor:    f(37, 100),

		BorrowingFeeReceiverFactor:   f(37, 100),
		BorrowingFeeFactorForLong:    f(1, 100_000_000),
		BorrowingFeeFactorForShort:   f(1, 100_000_000),
		BorrowingFeeExponentForLong:  unit,
		BorrowingFeeExponentForShort: unit,

		FundingFeeExponent:           unit,
		FundingFeeFactor:             f(2, 100_000_000),
		FundingFeeMaxFactorPerSecond: f(1, 1_000_000),

		ReserveFactor:             unit,
		OpenInterestReserveFactor: unit,

		MaxPnlFactorForLongDeposit:     f(6, 10),
		MaxPnlFactorForShortDeposit:    f(6, 10),
		MaxPnlFactorForLongWithdrawal:  f(3, 10),
		MaxPnlFactorForShortWithdrawal: f(3, 10),
		MaxPnlFactorForLongTrader:      f(5, 10),
		MaxPnlFactorForShortTrader:     f(5, 10),
		MaxPnlFactorForLongAdl:         f(45, 100),
		MaxPnlFactorForShortAdl:        f(45, 100),
		MinPnlFactorAfterLongAdl:       f(4, 10),
		MinPnlFactorAfterShortAdl:      f(4, 10),

		MaxPoolAmountForLongToken:           num.MaxUint,
		MaxPoolAmountForShortToken:          num.MaxUint,
		MaxPoolValueForDepositForLongToken:  num.MaxUint,
		MaxPoolValueForDepositForShortToken: num.MaxUint,
		MaxOpenInterestForLong:              num.MaxUint,
		MaxOpenInterestForShort:             num.MaxUint,

		MinPositionSizeUSD:                unit,
		MinCollateralValue:                unit,
		MinCollateralFactor:               f(1, 100),
		MinCollateralFactorForLiquidation: f(5, 1_000),
	}
}

// Validate checks the factors that must not exceed one.
func (c Config) Validate(unit num.Uint) error {
	bounded := map[string]num.Uint{
		"swap_fee_receiver_factor":        c.SwapFeeReceiverFactor,
		"order_fee_receiver_factor":       c.OrderFeeReceiverFactor,
		"borrowing_fee_receiver_factor":   c.BorrowingFeeReceiverFactor,
		"liquidation_fee_receiver_factor": c.LiquidationFeeReceiverFactor,
		"swap_fee_factor_for_negative":    c.SwapFeeFactorForNegativeImpact,
		"order_fee_factor_for_negative":   c.OrderFeeFactorForNegativeImpact,
		"min_collateral_factor":           c.MinCollateralFactor,
	}
	for name, v := range bounded {
		if v.GT(unit) {
			return fmt.Errorf("%w: %s %s exceeds one", model.ErrInvalidArgument, name, v)
		}
	}
	if c.MinPnlFactorAfterLongAdl.GT(c.MaxPnlFactorForLongAdl) || c.MinPnlFactorAfterShortAdl.GT(c.MaxPnlFactorForShortAdl) {
		return fmt.Errorf("%w: min pnl factor after adl exceeds the adl threshold", model.ErrInvalidArgument)
	}
	return nil
}

// SwapImpactParams returns the swap price impact curve.
func (c Config) SwapImpactParams() fees.PriceImpactParams {
	return fees.PriceImpactParams{
		Exponent:       c.SwapImpactExponent,
		PositiveFactor: c.SwapImpactPositiveFactor,
		NegativeFactor: c.SwapImpactNegativeFactor,
	}
}

// SwapFeeParams returns the swap fee factors for a pricing kind. Shifts are
// free but keep the receiver factor.
func (c Config) SwapFeeParams(kind SwapPricingKind) fees.FeeParams {
	p := fees.FeeParams{FeeReceiverFactor: c.SwapFeeReceiverFactor}
	switch kind {
	case PricingDeposit:
		p.PositiveImpactFeeFactor = c.DepositFeeFactorForPositiveImpact
		p.NegativeImpactFeeFactor = c.DepositFeeFactorForNegativeImpact
	case PricingWithdrawal:
		p.PositiveImpactFeeFactor = c.WithdrawalFeeFactorForPositiveImpact
		p.NegativeImpactFeeFactor = c.WithdrawalFeeFactorForNegativeImpact
	case PricingShift:
	default:
		p.PositiveImpactFeeFactor = c.SwapFeeFactorForPositiveImpact
		p.NegativeImpactFeeFactor = c.SwapFeeFactorForNegativeImpact
	}
	return p
}

// PositionImpactParams returns the position price impact curve.
func (c Config) PositionImpactParams() fees.PriceImpactParams {
	return fees.PriceImpactParams{
		Exponent:       c.PositionImpactExponent,
		PositiveFactor: c.PositionImpactPositiveFactor,
		NegativeFactor: c.PositionImpactNegativeFactor,
	}
}

// OrderFeeParams returns the position order fee factors.
func (c Config) OrderFeeParams() fees.FeeParams {
	return fees.FeeParams{
		PositiveImpactFeeFactor: c.OrderFeeFactorForPositiveImpact,
		NegativeImpactFeeFactor: c.OrderFeeFactorForNegativeImpact,
		FeeReceiverFactor:       c.OrderFeeReceiverFactor,
	}
}

// LiquidationFeeParams returns the liquidation fee factors.
func (c Config) LiquidationFeeParams() fees.LiquidationFeeParams {
	return fees.LiquidationFeeParams{Factor: c.LiquidationFeeFactor, ReceiverFactor: c.LiquidationFeeReceiverFactor}
}

// BorrowingFeeParams returns the borrowing parameters. When closed, the
// closed-market skip flag replaces the regular one.
func (c Config) BorrowingFeeParams(closed bool) fees.BorrowingFeeParams {
	skip := c.SkipBorrowingFeeForSmallerSide
	if closed {
		skip = c.MarketClosedSkipBorrowingFeeForSmallerSide
	}
	return fees.BorrowingFeeParams{
		ReceiverFactor:                 c.BorrowingFeeReceiverFactor,
		FactorForLong:                  c.BorrowingFeeFactorForLong,
		FactorForShort:                 c.BorrowingFeeFactorForShort,
		ExponentForLong:                c.BorrowingFeeExponentForLong,
		ExponentForShort:               c.BorrowingFeeExponentForShort,
		SkipBorrowingFeeForSmallerSide: skip,
	}
}

// KinkParams returns the kink borrowing curve. When closed, the closed base
// and above-optimal factors replace the regular ones on both sides.
func (c Config) KinkParams(closed bool) fees.KinkParams {
	k := fees.KinkParams{
		OptimalUsageFactorForLong:                c.OptimalUsageFactorForLong,
		OptimalUsageFactorForShort:               c.OptimalUsageFactorForShort,
		BaseBorrowingFactorForLong:               c.BaseBorrowingFactorForLong,
		BaseBorrowingFactorForShort:              c.BaseBorrowingFactorForShort,
		AboveOptimalUsageBorrowingFactorForLong:  c.AboveOptimalFactorForLong,
		AboveOptimalUsageBorrowingFactorForShort: c.AboveOptimalFactorForShort,
	}
	if closed {
		k.BaseBorrowingFactorForLong = c.ClosedBaseBorrowingFactor
		k.BaseBorrowingFactorForShort = c.ClosedBaseBorrowingFactor
		k.AboveOptimalUsageBorrowingFactorForLong = c.ClosedAboveOptimalUsageFactor
		k.AboveOptimalUsageBorrowingFactorForShort = c.ClosedAboveOptimalUsageFactor
	}
	return k
}

// FundingFeeParams returns the funding model parameters.
func (c Config) FundingFeeParams() fees.FundingFeeParams {
	return fees.FundingFeeParams{
		Exponent:                    c.FundingFeeExponent,
		FundingFactor:               c.FundingFeeFactor,
		MaxFactorPerSecond:          c.FundingFeeMaxFactorPerSecond,
		MinFactorPerSecond:          c.FundingFeeMinFactorPerSecond,
		IncreaseFactorPerSecond:     c.FundingFeeIncreaseFactorPerSecond,
		DecreaseFactorPerSecond:     c.FundingFeeDecreaseFactorPerSecond,
		ThresholdForStableFunding:   c.FundingFeeThresholdForStableFunding,
		ThresholdForDecreaseFunding: c.FundingFeeThresholdForDecreaseFunding,
	}
}

// DistributionParams returns the position impact distribution parameters.
func (c Config) DistributionParams() fees.PositionImpactDistributionParams {
	return fees.PositionImpactDistributionParams{
		DistributeFactor:            c.PositionImpactDistributeFactor,
		MinPositionImpactPoolAmount: c.MinPositionImpactPoolAmount,
	}
}

// MaxPnlFactor returns the pnl factor bound of a kind for a side.
func (c Config) MaxPnlFactor(kind PnlFactorKind, isLong bool) (num.Uint, error) {
	pick := func(long, short num.Uint) num.Uint {
		if isLong {
			return long
		}
		return short
	}
	switch kind {
	case MaxAfterDeposit:
		return pick(c.MaxPnlFactorForLongDeposit, c.MaxPnlFactorForShortDeposit), nil
	case MaxAfterWithdrawal:
		return pick(c.MaxPnlFactorForLongWithdrawal, c.MaxPnlFactorForShortWithdrawal), nil
	case MaxForTrader:
		return pick(c.MaxPnlFactorForLongTrader, c.MaxPnlFactorForShortTrader), nil
	case ForAdl:
		return pick(c.MaxPnlFactorForLongAdl, c.MaxPnlFactorForShortAdl), nil
	case MinAfterAdl:
		return pick(c.MinPnlFactorAfterLongAdl, c.MinPnlFactorAfterShortAdl), nil
	default:
		return num.Zero, fmt.Errorf("%w: unknown pnl factor kind %d", model.ErrInvalidArgument, kind)
	}
}

// MaxPoolAmount returns the pool amount cap for a side token.
func (c Config) MaxPoolAmount(isLong bool) num.Uint {
	if isLong {
		return c.MaxPoolAmountForLongToken
	}
	return c.MaxPoolAmountForShortToken
}

// MaxPoolValueForDeposit returns the pool value cap checked on deposit.
func (c Config) MaxPoolValueForDeposit(isLong bool) num.Uint {
	if isLong {
		return c.MaxPoolValueForDepositForLongToken
	}
	return c.MaxPoolValueForDepositForShortToken
}

// MaxOpenInterest returns the open interest cap for a side.
func (c Config) MaxOpenInterest(isLong bool) num.Uint {
	if isLong {
		return c.MaxOpenInterestForLong
	}
	return c.MaxOpenInterestForShort
}

// MinCollateralFactorForOpenInterestMultiplier returns the multiplier for a side.
func (c Config) MinCollateralFactorForOpenInterestMultiplier(isLong bool) num.Uint {
	if isLong {
		return c.MinCollateralFactorForOpenInterestMultiplierLong
	}
	return c.MinCollateralFactorForOpenInterestMultiplierShort
}

// LiquidationCollateralFactor returns the liquidation threshold. A closed
// market uses its own threshold when one is configured.
func (c Config) LiquidationCollateralFactor(closed bool) num.Uint {
	if closed && !c.ClosedMinCollateralFactorForLiquidation.IsZero() {
		return c.ClosedMinCollateralFactorForLiquidation
	}
	return c.MinCollateralFactorForLiquidation
}
