package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

type LiquidationType uint8

const (
	LiquidationTypeNone LiquidationType = iota
	LiquidationTypePartial
	LiquidationTypeFull
)

func (t LiquidationType) String() string {
	switch t {
	case LiquidationTypePartial:
		return "partial"
	case LiquidationTypeFull:
		return "full"
	default:
		return "none"
	}
}

// DetermineLiquidationType picks the tier: below maintenance is a full
// liquidation, below partial a partial one.
func DetermineLiquidationType(s MarginSummary) LiquidationType {
	switch s.Status() {
	case MarginStatusFullyLiquidatable:
		return LiquidationTypeFull
	case MarginStatusPartiallyLiquidatable:
		return LiquidationTypePartial
	}
	return LiquidationTypeNone
}

// LiquidationParameters are the close fraction, penalty and liquidator share
// applied for one liquidation tier.
type LiquidationParameters struct {
	CloseNumerator             uint64
	CloseDenominator           uint64
	PenaltyNumerator           uint64
	PenaltyDenominator         uint64
	LiquidatorShareDenominator uint64
}

// LiquidationParameters returns the configured parameters for t. Full
// liquidations close the whole position.
func (gc *GlobalConfig) LiquidationParameters(t LiquidationType) LiquidationParameters {
	if t == LiquidationTypeFull {
		return LiquidationParameters{
			CloseNumerator:             1,
			CloseDenominator:           1,
			PenaltyNumerator:           gc.FullLiquidationPenaltyPercentageNumerator,
			PenaltyDenominator:         gc.FullLiquidationPenaltyPercentageDenominator,
			LiquidatorShareDenominator: gc.FullLiquidationLiquidatorShareDenominator,
		}
	}
	return LiquidationParameters{
		CloseNumerator:             gc.PartialLiquidationClosePercentageNumerator,
		CloseDenominator:           gc.PartialLiquidationClosePercentageDenominator,
		PenaltyNumerator:           gc.PartialLiquidationPenaltyPercentageNumerator,
		PenaltyDenominator:         gc.PartialLiquidationPenaltyPercentageDenominator,
		LiquidatorShareDenominator: gc.PartialLiquidationLiquidatorShareDenominator,
	}
}

// Validate rejects zero denominators and fractions above one.
func (p LiquidationParameters) Validate() error {
	if p.CloseDenominator == 0 || p.CloseNumerator == 0 || p.CloseNumerator > p.CloseDenominator {
		return errorsmod.Wrapf(ErrInvalidAmount, "close %d/%d", p.CloseNumerator, p.CloseDenominator)
	}
	if p.PenaltyDenominator == 0 || p.PenaltyNumerator > p.PenaltyDenominator {
		return errorsmod.Wrapf(ErrInvalidAmount, "penalty %d/%d", p.PenaltyNumerator, p.PenaltyDenominator)
	}
	if p.LiquidatorShareDenominator == 0 {
		return errorsmod.Wrap(ErrInvalidAmount, "liquidator share denominator is zero")
	}
	return nil
}

// LiquidationFee is the penalty charged and how it is split.
type LiquidationFee struct {
	Fee             chmath.Uint128
	FeeToLiquidator chmath.Uint128
	FeeToInsurance  chmath.Uint128
}

// CalculateLiquidationFee charges penalty of totalCollateral and gives the
// liquidator 1/LiquidatorShareDenominator of it; the rest goes to insurance.
func CalculateLiquidationFee(totalCollateral chmath.Uint128, p LiquidationParameters) (LiquidationFee, error) {
	fee, err := chmath.ApplyRatio(totalCollateral, p.PenaltyNumerator, p.PenaltyDenominator)
	if err != nil {
		return LiquidationFee{}, err
	}
	toLiquidator, err := fee.Div(chmath.U64(p.LiquidatorShareDenominator))
	if err != nil {
		return LiquidationFee{}, err
	}
	toInsurance, err := fee.Sub(toLiquidator)
	if err != nil {
		return LiquidationFee{}, err
	}
	return LiquidationFee{Fee: fee, FeeToLiquidator: toLiquidator, FeeToInsurance: toInsurance}, nil
}

// CloseAmount is the base amount a liquidation closes out of a position.
func (p LiquidationParameters) CloseAmount(baseAssetAmount chmath.Int128) (chmath.Uint128, error) {
	return chmath.ApplyRatio(baseAssetAmount.UnsignedAbs(), p.CloseNumerator, p.CloseDenominator)
}
