package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// FundingSettlement describes one slot's settled funding. Payment is what the
// user was credited: negative when the position paid.
type FundingSettlement struct {
	MarketIndex               uint64
	BaseAssetAmount           chmath.Int128
	Payment                   chmath.Int128
	UserLastCumulativeFunding chmath.Int128
	UserLastFundingRateTS     int64
	AMMCumulativeFundingLong  chmath.Int128
	AMMCumulativeFundingShort chmath.Int128
}

// SettlePositionFunding settles one slot against its market's cumulative rate
// and advances the slot's checkpoint. Returns ok=false when nothing was owed
// in either direction, which makes repeated settlement a no-op.
func SettlePositionFunding(market *Market, position *MarketPosition) (FundingSettlement, bool, error) {
	if !position.IsOpenPosition() {
		return FundingSettlement{}, false, nil
	}
	rate := market.AMM.CumulativeFundingRate(position.IsLong())
	if rate == position.LastCumulativeFundingRate {
		return FundingSettlement{}, false, nil
	}

	payment, err := chmath.CalculateFundingPayment(rate, position.LastCumulativeFundingRate, position.BaseAssetAmount)
	if err != nil {
		return FundingSettlement{}, false, err
	}
	credited, err := payment.Neg()
	if err != nil {
		return FundingSettlement{}, false, err
	}

	s := FundingSettlement{
		MarketIndex:               position.MarketIndex,
		BaseAssetAmount:           position.BaseAssetAmount,
		Payment:                   credited,
		UserLastCumulativeFunding: position.LastCumulativeFundingRate,
		UserLastFundingRateTS:     position.LastFundingRateTS,
		AMMCumulativeFundingLong:  market.AMM.CumulativeFundingRateLong,
		AMMCumulativeFundingShort: market.AMM.CumulativeFundingRateShort,
	}
	position.LastCumulativeFundingRate = rate
	position.LastFundingRateTS = market.AMM.LastFundingRateTS
	return s, true, nil
}

// SettleFundingPayments settles every open slot of a user and applies the net
// payment to collateral.
func SettleFundingPayments(user *User, positions *UserPositions, markets *Markets) ([]FundingSettlement, error) {
	var (
		settlements []FundingSettlement
		total       chmath.Int128
	)
	for i := range positions.Positions {
		pos := &positions.Positions[i]
		if !pos.IsOpenPosition() {
			continue
		}
		market, err := markets.GetInitialized(pos.MarketIndex)
		if err != nil {
			return nil, err
		}
		s, ok, err := SettlePositionFunding(market, pos)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if total, err = total.Add(s.Payment); err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	if len(settlements) == 0 {
		return nil, nil
	}

	collateral, err := chmath.CalculateUpdatedCollateral(user.Collateral, total)
	if err != nil {
		return nil, err
	}
	user.Collateral = collateral
	return settlements, nil
}

// FundingRateUpdate is the result of one funding period rolling over.
type FundingRateUpdate struct {
	FundingRate                chmath.Int128
	CumulativeFundingRateLong  chmath.Int128
	CumulativeFundingRateShort chmath.Int128
	MarkPriceTWAP              chmath.Uint128
	OraclePriceTWAP            chmath.Int128
}

// UpdateFundingRate folds the oracle price into the TWAPs and, once a full
// funding period has elapsed, adds the period's rate to both cumulative rates.
func (a *AMM) UpdateFundingRate(oraclePrice chmath.Int128, now int64) (FundingRateUpdate, error) {
	elapsed := now - a.LastFundingRateTS
	if elapsed < a.FundingPeriod {
		return FundingRateUpdate{}, errorsmod.Wrapf(ErrFundingWasNotUpdated,
			"%ds since last update, period %ds", elapsed, a.FundingPeriod)
	}

	if err := a.UpdateMarkTWAP(now); err != nil {
		return FundingRateUpdate{}, err
	}
	if err := a.UpdateOracleTWAP(oraclePrice, now); err != nil {
		return FundingRateUpdate{}, err
	}

	rate, err := chmath.CalculateFundingRate(a.LastMarkPriceTWAP, a.LastOraclePriceTWAP, a.FundingPeriod)
	if err != nil {
		return FundingRateUpdate{}, err
	}
	long, err := a.CumulativeFundingRateLong.Add(rate)
	if err != nil {
		return FundingRateUpdate{}, err
	}
	short, err := a.CumulativeFundingRateShort.Add(rate)
	if err != nil {
		return FundingRateUpdate{}, err
	}

	a.CumulativeFundingRateLong = long
	a.CumulativeFundingRateShort = short
	a.LastFundingRate = rate
	a.LastFundingRateTS = now

	return FundingRateUpdate{
		FundingRate:                rate,
		CumulativeFundingRateLong:  long,
		CumulativeFundingRateShort: short,
		MarkPriceTWAP:              a.LastMarkPriceTWAP,
		OraclePriceTWAP:            a.LastOraclePriceTWAP,
	}, nil
}
