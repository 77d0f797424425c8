package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// ResolveDiscountTier picks the highest tier whose minimum balance the
// discount token meets. No token, or no configured mint, means no discount.
func ResolveDiscountTier(fs FeeStructure, discountMint, authority Handle, token *TokenAccount) (OrderDiscountTier, error) {
	if token == nil || discountMint.IsZero() {
		return OrderDiscountTierNone, nil
	}
	if token.Mint != discountMint || token.Owner != authority {
		return OrderDiscountTierNone, errorsmod.Wrapf(ErrInvalidDiscountToken, "mint %s owner %s", token.Mint, token.Owner)
	}

	tiers := fs.DiscountTokenTiers
	switch {
	case token.Amount >= tiers.FirstTier.MinimumBalance:
		return OrderDiscountTierFirst, nil
	case token.Amount >= tiers.SecondTier.MinimumBalance:
		return OrderDiscountTierSecond, nil
	case token.Amount >= tiers.ThirdTier.MinimumBalance:
		return OrderDiscountTierThird, nil
	case token.Amount >= tiers.FourthTier.MinimumBalance:
		return OrderDiscountTierFourth, nil
	}
	return OrderDiscountTierNone, nil
}

func (fs FeeStructure) tier(t OrderDiscountTier) (DiscountTokenTier, bool) {
	switch t {
	case OrderDiscountTierFirst:
		return fs.DiscountTokenTiers.FirstTier, true
	case OrderDiscountTierSecond:
		return fs.DiscountTokenTiers.SecondTier, true
	case OrderDiscountTierThird:
		return fs.DiscountTokenTiers.ThirdTier, true
	case OrderDiscountTierFourth:
		return fs.DiscountTokenTiers.FourthTier, true
	}
	return DiscountTokenTier{}, false
}

// FeeBreakdown splits the fee on one fill.
type FeeBreakdown struct {
	UserFee         chmath.Uint128 // charged to the trader, booked to the AMM
	TokenDiscount   chmath.Uint128
	RefereeDiscount chmath.Uint128
	ReferrerReward  chmath.Uint128
	FillerReward    chmath.Uint128
}

// CalculateFee computes the fee on quoteAssetAmount:
//
//	fee      = quote * fee_numerator / fee_denominator
//	user_fee = fee - token_discount - referee_discount
//
// The referrer reward and filler reward are paid out of the AMM's fee pool.
func CalculateFee(
	quoteAssetAmount chmath.Uint128,
	fs FeeStructure,
	tier OrderDiscountTier,
	hasReferrer bool,
	fillerReward *OrderFillerRewardStructure,
	orderTS, now int64,
) (FeeBreakdown, error) {
	var b FeeBreakdown

	fee, err := chmath.ApplyRatio(quoteAssetAmount, fs.FeeNumerator, fs.FeeDenominator)
	if err != nil {
		return b, err
	}

	if t, ok := fs.tier(tier); ok {
		if b.TokenDiscount, err = chmath.ApplyRatio(fee, t.DiscountNumerator, t.DiscountDenominator); err != nil {
			return b, err
		}
	}

	if hasReferrer {
		rd := fs.ReferralDiscount
		if b.ReferrerReward, err = chmath.ApplyRatio(fee, rd.ReferrerRewardNumerator, rd.ReferrerRewardDenominator); err != nil {
			return b, err
		}
		if b.RefereeDiscount, err = chmath.ApplyRatio(fee, rd.RefereeDiscountNumerator, rd.RefereeDiscountDenominator); err != nil {
			return b, err
		}
	}

	userFee, err := fee.Sub(b.TokenDiscount)
	if err != nil {
		return b, err
	}
	if userFee, err = userFee.Sub(b.RefereeDiscount); err != nil {
		return b, err
	}
	b.UserFee = userFee

	if fillerReward != nil {
		b.FillerReward, err = chmath.CalculateFillerReward(
			userFee,
			fillerReward.RewardNumerator,
			fillerReward.RewardDenominator,
			fillerReward.TimeBasedRewardLowerBound,
			orderTS, now,
		)
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// Distributions is what leaves the fee pool on a fill.
func (b FeeBreakdown) Distributions() (chmath.Uint128, error) {
	return b.ReferrerReward.Add(b.FillerReward)
}
