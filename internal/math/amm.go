package math

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

// SwapDirection says whether the input asset is added to or removed from its reserve.
type SwapDirection uint8

const (
	SwapAdd SwapDirection = iota
	SwapRemove
)

// CalculatePrice returns quote * peg * MarkPricePrecision / (PegPrecision * base).
// Equal reserves with peg == PegPrecision price at exactly MarkPricePrecision.
func CalculatePrice(quoteReserve, baseReserve, pegMultiplier Uint128) (Uint128, error) {
	num, err := WideProduct(quoteReserve, pegMultiplier, U64(MarkPricePrecision))
	if err != nil {
		return Uint128{}, err
	}
	den, err := WideProduct(baseReserve, U64(PegPrecision))
	if err != nil {
		return Uint128{}, err
	}
	return WideQuotient(num, den, RoundDown)
}

// CalculateSwapOutput moves swapAmount of the input asset into (SwapAdd) or out of
// (SwapRemove) its reserve and returns both new reserves, holding sqrtK^2 constant.
func CalculateSwapOutput(
	swapAmount Uint128,
	inputReserve Uint128,
	direction SwapDirection,
	sqrtK Uint128,
) (newInputReserve, newOutputReserve Uint128, err error) {
	switch direction {
	case SwapAdd:
		newInputReserve, err = inputReserve.Add(swapAmount)
	case SwapRemove:
		newInputReserve, err = inputReserve.Sub(swapAmount)
	}
	if err != nil {
		return Uint128{}, Uint128{}, err
	}
	if newInputReserve.IsZero() {
		return Uint128{}, Uint128{}, errorsmod.Wrap(ErrMathError, "swap drains reserve")
	}

	invariant, err := WideProduct(sqrtK, sqrtK)
	if err != nil {
		return Uint128{}, Uint128{}, err
	}
	newOutputReserve, err = WideQuotient(invariant, newInputReserve.u256(), RoundDown)
	if err != nil {
		return Uint128{}, Uint128{}, err
	}
	return newInputReserve, newOutputReserve, nil
}

// ReserveToQuote converts a quote-reserve delta into quote precision at the given peg.
func ReserveToQuote(reserveDelta, pegMultiplier Uint128) (Uint128, error) {
	return MulDiv(reserveDelta, pegMultiplier, U64(AMMTimesPegToQuotePrecisionRatio))
}

// QuoteToReserve converts a quote amount into a quote-reserve delta at the given peg.
func QuoteToReserve(quoteAmount, pegMultiplier Uint128) (Uint128, error) {
	return MulDiv(quoteAmount, U64(AMMTimesPegToQuotePrecisionRatio), pegMultiplier)
}

// CalculateBaseAssetValue returns the quote value of closing baseAssetAmount against
// the given reserves, without mutating anything.
func CalculateBaseAssetValue(baseAssetAmount Int128, baseReserve, quoteReserve, sqrtK, peg Uint128) (Uint128, error) {
	if baseAssetAmount.IsZero() {
		return Uint128{}, nil
	}

	// Closing a long sells base into the pool; closing a short buys it back.
	direction := SwapAdd
	if baseAssetAmount.IsNegative() {
		direction = SwapRemove
	}
	_, newQuoteReserve, err := CalculateSwapOutput(baseAssetAmount.UnsignedAbs(), baseReserve, direction, sqrtK)
	if err != nil {
		return Uint128{}, err
	}

	var delta Uint128
	if direction == SwapAdd {
		delta, err = quoteReserve.Sub(newQuoteReserve)
	} else {
		delta, err = newQuoteReserve.Sub(quoteReserve)
	}
	if err != nil {
		return Uint128{}, err
	}
	return ReserveToQuote(delta, peg)
}

// CalculateBaseReserveAtPrice returns the base reserve at which the curve's
// price equals targetPrice: base^2 = k * peg * MarkPricePrecision / (PegPrecision * price).
func CalculateBaseReserveAtPrice(sqrtK, peg, targetPrice Uint128) (Uint128, error) {
	num, err := WideProduct(sqrtK, sqrtK, peg, U64(MarkPricePrecision))
	if err != nil {
		return Uint128{}, err
	}
	den, err := WideProduct(targetPrice, U64(PegPrecision))
	if err != nil {
		return Uint128{}, err
	}
	if den.IsZero() {
		return Uint128{}, errorsmod.Wrap(ErrDivideByZero, "target price is zero")
	}
	squared := new(uint256.Int).Div(num, den)
	return WideSqrt(squared)
}

// CalculateNewTWAP blends price into lastTWAP, weighting by the time elapsed
// since lastTS over a window of period seconds.
func CalculateNewTWAP(price, lastTWAP Uint128, now, lastTS, period int64) (Uint128, error) {
	sinceLast := now - lastTS
	if sinceLast < 1 {
		sinceLast = 1
	}
	sinceStart := period - sinceLast
	if sinceStart < 0 {
		sinceStart = 0
	}

	weightNew, err := price.Mul(U64(uint64(sinceLast)))
	if err != nil {
		return Uint128{}, err
	}
	weightOld, err := lastTWAP.Mul(U64(uint64(sinceStart)))
	if err != nil {
		return Uint128{}, err
	}
	num, err := weightNew.Add(weightOld)
	if err != nil {
		return Uint128{}, err
	}
	return num.Div(U64(uint64(sinceLast + sinceStart)))
}

// CalculateNewSignedTWAP is CalculateNewTWAP for oracle prices, which are signed.
func CalculateNewSignedTWAP(price, lastTWAP Int128, now, lastTS, period int64) (Int128, error) {
	sinceLast := now - lastTS
	if sinceLast < 1 {
		sinceLast = 1
	}
	sinceStart := period - sinceLast
	if sinceStart < 0 {
		sinceStart = 0
	}

	weightNew, err := price.Mul(I64(sinceLast))
	if err != nil {
		return Int128{}, err
	}
	weightOld, err := lastTWAP.Mul(I64(sinceStart))
	if err != nil {
		return Int128{}, err
	}
	num, err := weightNew.Add(weightOld)
	if err != nil {
		return Int128{}, err
	}
	return num.Div(I64(sinceLast + sinceStart))
}
