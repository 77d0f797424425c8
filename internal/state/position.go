// internal/state/position.go
package state

import (
	chmath "PerpClearing/internal/math"
)

// TradeResult is the outcome of one swap against a market's AMM.
type TradeResult struct {
	Direction        PositionDirection
	BaseAssetAmount  chmath.Uint128
	QuoteAssetAmount chmath.Uint128
	RealizedPnL      chmath.Int128
	RiskIncreasing   bool
	MarkPriceBefore  chmath.Uint128
	MarkPriceAfter   chmath.Uint128
}

// ApplyTrade swaps baseAmount in direction against the market's AMM and
// updates the position and market totals. Pending funding must already be
// settled. Both records are mutated in place; callers pass working copies.
func ApplyTrade(market *Market, position *MarketPosition, direction PositionDirection, baseAmount chmath.Uint128, now int64) (TradeResult, error) {
	res := TradeResult{Direction: direction, BaseAssetAmount: baseAmount}

	markBefore, err := market.AMM.MarkPrice()
	if err != nil {
		return TradeResult{}, err
	}
	res.MarkPriceBefore = markBefore

	cur := position.BaseAssetAmount
	sameSide := cur.IsZero() || cur.IsNegative() == (direction == PositionDirectionShort)

	switch {
	case sameSide:
		// Case 1: flat or same side -> open or increase
		if res.QuoteAssetAmount, err = increasePosition(market, position, direction, baseAmount, now); err != nil {
			return TradeResult{}, err
		}
		res.RiskIncreasing = true

	case !baseAmount.Gt(cur.UnsignedAbs()):
		// Case 2: opposite side, not larger than the position -> reduce or close
		if res.QuoteAssetAmount, res.RealizedPnL, err = reducePosition(market, position, direction, baseAmount); err != nil {
			return TradeResult{}, err
		}

	default:
		// Case 3: opposite side, larger than the position -> close and flip
		closing := cur.UnsignedAbs()
		closeQuote, pnl, err := reducePosition(market, position, direction, closing)
		if err != nil {
			return TradeResult{}, err
		}
		remaining, err := baseAmount.Sub(closing)
		if err != nil {
			return TradeResult{}, err
		}
		openQuote, err := increasePosition(market, position, direction, remaining, now)
		if err != nil {
			return TradeResult{}, err
		}
		if res.QuoteAssetAmount, err = closeQuote.Add(openQuote); err != nil {
			return TradeResult{}, err
		}
		res.RealizedPnL = pnl
		res.RiskIncreasing = true
	}

	if res.MarkPriceAfter, err = market.AMM.MarkPrice(); err != nil {
		return TradeResult{}, err
	}
	return res, nil
}

func signedBase(amount chmath.Uint128, direction PositionDirection) (chmath.Int128, error) {
	v, err := chmath.CastToInt128(amount)
	if err != nil {
		return chmath.Int128{}, err
	}
	if direction == PositionDirectionShort {
		return v.Neg()
	}
	return v, nil
}

func increasePosition(market *Market, position *MarketPosition, direction PositionDirection, baseAmount chmath.Uint128, now int64) (chmath.Uint128, error) {
	quote, err := market.AMM.SwapBaseAsset(baseAmount, direction)
	if err != nil {
		return chmath.Uint128{}, err
	}
	delta, err := signedBase(baseAmount, direction)
	if err != nil {
		return chmath.Uint128{}, err
	}
	newBase, err := position.BaseAssetAmount.Add(delta)
	if err != nil {
		return chmath.Uint128{}, err
	}
	newQuote, err := position.QuoteAssetAmount.Add(quote)
	if err != nil {
		return chmath.Uint128{}, err
	}
	if err := market.UpdateForPosition(position.BaseAssetAmount, newBase); err != nil {
		return chmath.Uint128{}, err
	}

	if position.BaseAssetAmount.IsZero() {
		long := direction == PositionDirectionLong
		position.LastCumulativeFundingRate = market.AMM.CumulativeFundingRate(long)
		position.LastFundingRateTS = now
		if long {
			position.LastCumulativeRepegRebate = market.AMM.CumulativeRepegRebateLong
		} else {
			position.LastCumulativeRepegRebate = market.AMM.CumulativeRepegRebateShort
		}
	}
	position.BaseAssetAmount = newBase
	position.QuoteAssetAmount = newQuote
	return quote, nil
}

// reducePosition closes baseAmount (<= |position|) and realizes pnl against
// the proportional share of the entry notional.
func reducePosition(market *Market, position *MarketPosition, direction PositionDirection, baseAmount chmath.Uint128) (chmath.Uint128, chmath.Int128, error) {
	wasLong := position.IsLong()
	size := position.BaseAssetAmount.UnsignedAbs()

	quote, err := market.AMM.SwapBaseAsset(baseAmount, direction)
	if err != nil {
		return chmath.Uint128{}, chmath.Int128{}, err
	}
	entry, err := chmath.MulDiv(position.QuoteAssetAmount, baseAmount, size)
	if err != nil {
		return chmath.Uint128{}, chmath.Int128{}, err
	}
	pnl, err := chmath.CalculatePnL(quote, entry, wasLong)
	if err != nil {
		return chmath.Uint128{}, chmath.Int128{}, err
	}

	delta, err := signedBase(baseAmount, direction)
	if err != nil {
		return chmath.Uint128{}, chmath.Int128{}, err
	}
	newBase, err := position.BaseAssetAmount.Add(delta)
	if err != nil {
		return chmath.Uint128{}, chmath.Int128{}, err
	}
	newQuote, err := position.QuoteAssetAmount.Sub(entry)
	if err != nil {
		return chmath.Uint128{}, chmath.Int128{}, err
	}
	if err := market.UpdateForPosition(position.BaseAssetAmount, newBase); err != nil {
		return chmath.Uint128{}, chmath.Int128{}, err
	}

	position.BaseAssetAmount = newBase
	position.QuoteAssetAmount = newQuote
	return quote, pnl, nil
}
