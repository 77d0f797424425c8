// internal/math/funding.go
package math

import (
	errorsmod "cosmossdk.io/errors"
)

// CalculateFundingPayment returns what a position owes for the change in the
// cumulative funding rate since it last settled:
//
//	payment = (cumulativeRate - lastCumulativeRate) * baseAssetAmount / FundingPrecision
//
// Positive = holder pays, negative = holder receives. Longs pay when the rate rises.
func CalculateFundingPayment(cumulativeRate, lastCumulativeRate, baseAssetAmount Int128) (Int128, error) {
	delta, err := cumulativeRate.Sub(lastCumulativeRate)
	if err != nil {
		return Int128{}, err
	}
	if delta.IsZero() || baseAssetAmount.IsZero() {
		return Int128{}, nil
	}

	mag, err := MulDiv(delta.UnsignedAbs(), baseAssetAmount.UnsignedAbs(), FundingPrecision)
	if err != nil {
		return Int128{}, err
	}
	return applySign(mag, delta.IsNegative() != baseAssetAmount.IsNegative())
}

// CalculateFundingRate converts the mark/oracle TWAP spread into a rate for one
// funding period, scaled by FundingRatePrecision:
//
//	rate = (markTWAP - oracleTWAP) * FundingPaymentPrecision / (24h / max(1h, period))
func CalculateFundingRate(markTWAP Uint128, oracleTWAP Int128, fundingPeriod int64) (Int128, error) {
	if fundingPeriod <= 0 {
		return Int128{}, errorsmod.Wrapf(ErrDivideByZero, "funding period %d", fundingPeriod)
	}
	period := fundingPeriod
	if period < OneHour {
		period = OneHour
	}
	periodAdjustment := OneDay / period
	if periodAdjustment == 0 {
		// Periods longer than a day settle the full spread.
		periodAdjustment = 1
	}

	mark, err := CastToInt128(markTWAP)
	if err != nil {
		return Int128{}, err
	}
	spread, err := mark.Sub(oracleTWAP)
	if err != nil {
		return Int128{}, err
	}
	return MulDivSigned(spread, U64(FundingPaymentPrecision), U64(uint64(periodAdjustment)))
}

// CalculateUpdatedCollateral applies a signed pnl to collateral. Losses beyond
// the available collateral leave it at zero; the shortfall is not carried.
func CalculateUpdatedCollateral(collateral Uint128, pnl Int128) (Uint128, error) {
	if !pnl.IsNegative() {
		return collateral.Add(pnl.UnsignedAbs())
	}
	loss := pnl.UnsignedAbs()
	if loss.Gt(collateral) {
		return Uint128{}, nil
	}
	return collateral.Sub(loss)
}

// CalculatePnL returns exitValue - entryValue for a long and the reverse for a short.
func CalculatePnL(exitValue, entryValue Uint128, long bool) (Int128, error) {
	exit, err := CastToInt128(exitValue)
	if err != nil {
		return Int128{}, err
	}
	entry, err := CastToInt128(entryValue)
	if err != nil {
		return Int128{}, err
	}
	if long {
		return exit.Sub(entry)
	}
	return entry.Sub(exit)
}
