package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// ValidateMarginRatios checks a tier triple. Each value must lie in
// [MinimumMarginRatio, MaximumMarginRatio] and initial >= partial >= maintenance.
func ValidateMarginRatios(initial, partial, maintenance uint64) error {
	if !marginRatioInRange(initial) {
		return errorsmod.Wrapf(ErrInvalidMarginRatio, "initial %d out of range", initial)
	}
	if initial < partial {
		return errorsmod.Wrapf(ErrInvalidMarginRatio, "initial %d < partial %d", initial, partial)
	}
	if !marginRatioInRange(partial) {
		return errorsmod.Wrapf(ErrInvalidMarginRatio, "partial %d out of range", partial)
	}
	if partial < maintenance {
		return errorsmod.Wrapf(ErrInvalidMarginRatio, "partial %d < maintenance %d", partial, maintenance)
	}
	if !marginRatioInRange(maintenance) {
		return errorsmod.Wrapf(ErrInvalidMarginRatio, "maintenance %d out of range", maintenance)
	}
	return nil
}

func marginRatioInRange(r uint64) bool {
	return r >= chmath.MinimumMarginRatio && r <= chmath.MaximumMarginRatio
}

// MarginStatus classifies account health against the market tiers. Below
// initial an account may reduce risk but not add it.
type MarginStatus int

const (
	MarginStatusHealthy MarginStatus = iota
	MarginStatusBelowInitial
	MarginStatusPartiallyLiquidatable
	MarginStatusFullyLiquidatable
)

func (s MarginStatus) String() string {
	switch s {
	case MarginStatusHealthy:
		return "Healthy"
	case MarginStatusBelowInitial:
		return "BelowInitial"
	case MarginStatusPartiallyLiquidatable:
		return "PartiallyLiquidatable"
	case MarginStatusFullyLiquidatable:
		return "FullyLiquidatable"
	default:
		return "Unknown"
	}
}

// MarginSummary values every open position at its AMM close-out price.
type MarginSummary struct {
	Collateral      chmath.Uint128
	UnrealizedPnL   chmath.Int128
	TotalCollateral chmath.Uint128 // collateral + unrealized pnl, floored at zero
	BaseAssetValue  chmath.Uint128 // sum of position values

	// Requirements are sum(value_i * ratio_i) / MarginPrecision over markets.
	InitialRequirement     chmath.Uint128
	PartialRequirement     chmath.Uint128
	MaintenanceRequirement chmath.Uint128

	// MarginRatio is TotalCollateral * MarginPrecision / BaseAssetValue,
	// MaxUint128 when there is no exposure.
	MarginRatio chmath.Uint128
}

// PositionValue is the close-out value and unrealized pnl of one slot.
func PositionValue(market *Market, position *MarketPosition) (chmath.Uint128, chmath.Int128, error) {
	amm := &market.AMM
	value, err := chmath.CalculateBaseAssetValue(
		position.BaseAssetAmount,
		amm.BaseAssetReserve,
		amm.QuoteAssetReserve,
		amm.SqrtK,
		amm.PegMultiplier,
	)
	if err != nil {
		return chmath.Uint128{}, chmath.Int128{}, err
	}
	pnl, err := chmath.CalculatePnL(value, position.QuoteAssetAmount, position.IsLong())
	if err != nil {
		return chmath.Uint128{}, chmath.Int128{}, err
	}
	return value, pnl, nil
}

// CalculateMarginSummary sums value, pnl and tier requirements over the user's
// open positions.
func CalculateMarginSummary(user *User, positions *UserPositions, markets *Markets) (MarginSummary, error) {
	s := MarginSummary{Collateral: user.Collateral}

	for i := range positions.Positions {
		pos := &positions.Positions[i]
		if !pos.IsOpenPosition() {
			continue
		}
		market, err := markets.GetInitialized(pos.MarketIndex)
		if err != nil {
			return MarginSummary{}, err
		}
		value, pnl, err := PositionValue(market, pos)
		if err != nil {
			return MarginSummary{}, err
		}

		if s.BaseAssetValue, err = s.BaseAssetValue.Add(value); err != nil {
			return MarginSummary{}, err
		}
		if s.UnrealizedPnL, err = s.UnrealizedPnL.Add(pnl); err != nil {
			return MarginSummary{}, err
		}
		if s.InitialRequirement, err = addRequirement(s.InitialRequirement, value, market.MarginRatioInitial); err != nil {
			return MarginSummary{}, err
		}
		if s.PartialRequirement, err = addRequirement(s.PartialRequirement, value, market.MarginRatioPartial); err != nil {
			return MarginSummary{}, err
		}
		if s.MaintenanceRequirement, err = addRequirement(s.MaintenanceRequirement, value, market.MarginRatioMaintenance); err != nil {
			return MarginSummary{}, err
		}
	}

	total, err := chmath.CalculateUpdatedCollateral(s.Collateral, s.UnrealizedPnL)
	if err != nil {
		return MarginSummary{}, err
	}
	s.TotalCollateral = total

	if s.BaseAssetValue.IsZero() {
		s.MarginRatio = chmath.MaxUint128
		return s, nil
	}
	if s.MarginRatio, err = chmath.MulDiv(total, chmath.U64(chmath.MarginPrecision), s.BaseAssetValue); err != nil {
		return MarginSummary{}, err
	}
	return s, nil
}

func addRequirement(acc, value chmath.Uint128, ratio uint64) (chmath.Uint128, error) {
	req, err := chmath.MulDiv(value, chmath.U64(ratio), chmath.U64(chmath.MarginPrecision))
	if err != nil {
		return chmath.Uint128{}, err
	}
	return acc.Add(req)
}

// Status classifies the summary. Falling below a tier means strictly less
// collateral than the tier requires.
func (s MarginSummary) Status() MarginStatus {
	switch {
	case s.TotalCollateral.Lt(s.MaintenanceRequirement):
		return MarginStatusFullyLiquidatable
	case s.TotalCollateral.Lt(s.PartialRequirement):
		return MarginStatusPartiallyLiquidatable
	case s.TotalCollateral.Lt(s.InitialRequirement):
		return MarginStatusBelowInitial
	}
	return MarginStatusHealthy
}

// MeetsInitialMargin reports whether new risk may be taken on.
func (s MarginSummary) MeetsInitialMargin() bool {
	return !s.TotalCollateral.Lt(s.InitialRequirement)
}
