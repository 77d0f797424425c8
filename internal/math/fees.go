package math

// ApplyRatio returns amount * numerator / denominator, truncated.
func ApplyRatio(amount Uint128, numerator, denominator uint64) (Uint128, error) {
	return MulDiv(amount, U64(numerator), U64(denominator))
}

// CalculateFillerReward pays the filler a share of the fee. Orders that rested
// for at least one second are eligible for the time-based floor.
func CalculateFillerReward(
	fee Uint128,
	rewardNumerator, rewardDenominator uint64,
	timeBasedRewardLowerBound Uint128,
	orderTS, now int64,
) (Uint128, error) {
	sizeReward, err := ApplyRatio(fee, rewardNumerator, rewardDenominator)
	if err != nil {
		return Uint128{}, err
	}
	if now > orderTS {
		return sizeReward.Max(timeBasedRewardLowerBound), nil
	}
	return sizeReward, nil
}

// CalculateQuoteNotional converts base amount times price into quote precision.
func CalculateQuoteNotional(baseAssetAmount, price Uint128) (Uint128, error) {
	return MulDiv(baseAssetAmount, price, U64(BaseTimesPriceToQuotePrecisionRatio))
}
