package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// OracleSource identifies the feed format behind an oracle handle.
type OracleSource uint8

const (
	OracleSourcePyth OracleSource = iota
	OracleSourceSwitchboard
)

func (s OracleSource) Valid() bool {
	return s == OracleSourcePyth || s == OracleSourceSwitchboard
}

func (s OracleSource) String() string {
	switch s {
	case OracleSourcePyth:
		return "Pyth"
	case OracleSourceSwitchboard:
		return "Switchboard"
	default:
		return "Unknown"
	}
}

// AMM is a constant-product curve over base/quote reserves with a peg
// multiplier. Reserves are in AMMReservePrecision, peg in PegPrecision.
type AMM struct {
	Oracle       Handle       `json:"oracle"`
	OracleSource OracleSource `json:"oracle_source"`

	BaseAssetReserve  chmath.Uint128 `json:"base_asset_reserve"`
	QuoteAssetReserve chmath.Uint128 `json:"quote_asset_reserve"`
	SqrtK             chmath.Uint128 `json:"sqrt_k"`
	PegMultiplier     chmath.Uint128 `json:"peg_multiplier"`

	CumulativeRepegRebateLong  chmath.Uint128 `json:"cumulative_repeg_rebate_long"`
	CumulativeRepegRebateShort chmath.Uint128 `json:"cumulative_repeg_rebate_short"`
	CumulativeFundingRateLong  chmath.Int128  `json:"cumulative_funding_rate_long"`
	CumulativeFundingRateShort chmath.Int128  `json:"cumulative_funding_rate_short"`
	LastFundingRate            chmath.Int128  `json:"last_funding_rate"`
	LastFundingRateTS          int64          `json:"last_funding_rate_ts"`
	FundingPeriod              int64          `json:"funding_period"`

	LastOraclePrice       chmath.Int128  `json:"last_oracle_price"`
	LastOraclePriceTWAP   chmath.Int128  `json:"last_oracle_price_twap"`
	LastOraclePriceTWAPTS int64          `json:"last_oracle_price_twap_ts"`
	LastMarkPriceTWAP     chmath.Uint128 `json:"last_mark_price_twap"`
	LastMarkPriceTWAPTS   int64          `json:"last_mark_price_twap_ts"`

	TotalFee                   chmath.Uint128 `json:"total_fee"`
	TotalFeeMinusDistributions chmath.Int128  `json:"total_fee_minus_distributions"`
	TotalFeeWithdrawn          chmath.Uint128 `json:"total_fee_withdrawn"`

	MinimumQuoteAssetTradeSize chmath.Uint128 `json:"minimum_quote_asset_trade_size"`
	MinimumBaseAssetTradeSize  chmath.Uint128 `json:"minimum_base_asset_trade_size"`
	BaseSpread                 uint16         `json:"base_spread"`
}

// MarkPrice prices the curve at its current reserves and peg.
func (a *AMM) MarkPrice() (chmath.Uint128, error) {
	return chmath.CalculatePrice(a.QuoteAssetReserve, a.BaseAssetReserve, a.PegMultiplier)
}

// CumulativeFundingRate returns the rate a position of the given sign tracks.
func (a *AMM) CumulativeFundingRate(long bool) chmath.Int128 {
	if long {
		return a.CumulativeFundingRateLong
	}
	return a.CumulativeFundingRateShort
}

// SwapBaseAsset moves baseAmount of base through the curve and returns the
// quote exchanged, in QuotePrecision. A long removes base from the pool.
func (a *AMM) SwapBaseAsset(baseAmount chmath.Uint128, direction PositionDirection) (chmath.Uint128, error) {
	swapDirection := chmath.SwapAdd
	if direction == PositionDirectionLong {
		swapDirection = chmath.SwapRemove
	}
	if swapDirection == chmath.SwapRemove && !baseAmount.Lt(a.BaseAssetReserve) {
		return chmath.Uint128{}, errorsmod.Wrapf(ErrTradeSizeTooLarge, "base %s >= reserve %s", baseAmount, a.BaseAssetReserve)
	}

	newBase, newQuote, err := chmath.CalculateSwapOutput(baseAmount, a.BaseAssetReserve, swapDirection, a.SqrtK)
	if err != nil {
		return chmath.Uint128{}, err
	}

	var delta chmath.Uint128
	if newQuote.Gt(a.QuoteAssetReserve) {
		delta, err = newQuote.Sub(a.QuoteAssetReserve)
	} else {
		delta, err = a.QuoteAssetReserve.Sub(newQuote)
	}
	if err != nil {
		return chmath.Uint128{}, err
	}
	quoteAmount, err := chmath.ReserveToQuote(delta, a.PegMultiplier)
	if err != nil {
		return chmath.Uint128{}, err
	}

	a.BaseAssetReserve = newBase
	a.QuoteAssetReserve = newQuote
	return quoteAmount, nil
}

// BaseAmountForQuote returns how much base a quote-denominated trade in the
// given direction would move, without touching the reserves.
func (a *AMM) BaseAmountForQuote(quoteAmount chmath.Uint128, direction PositionDirection) (chmath.Uint128, error) {
	reserveDelta, err := chmath.QuoteToReserve(quoteAmount, a.PegMultiplier)
	if err != nil {
		return chmath.Uint128{}, err
	}

	swapDirection := chmath.SwapAdd
	if direction == PositionDirectionShort {
		swapDirection = chmath.SwapRemove
		if !reserveDelta.Lt(a.QuoteAssetReserve) {
			return chmath.Uint128{}, errorsmod.Wrapf(ErrTradeSizeTooLarge, "quote %s", quoteAmount)
		}
	}

	_, newBase, err := chmath.CalculateSwapOutput(reserveDelta, a.QuoteAssetReserve, swapDirection, a.SqrtK)
	if err != nil {
		return chmath.Uint128{}, err
	}
	if newBase.Gt(a.BaseAssetReserve) {
		return newBase.Sub(a.BaseAssetReserve)
	}
	return a.BaseAssetReserve.Sub(newBase)
}

// UpdateMarkTWAP folds the current mark price into the mark TWAP.
func (a *AMM) UpdateMarkTWAP(now int64) error {
	price, err := a.MarkPrice()
	if err != nil {
		return err
	}
	twap, err := chmath.CalculateNewTWAP(price, a.LastMarkPriceTWAP, now, a.LastMarkPriceTWAPTS, a.FundingPeriod)
	if err != nil {
		return err
	}
	a.LastMarkPriceTWAP = twap
	a.LastMarkPriceTWAPTS = now
	return nil
}

// UpdateOracleTWAP folds an oracle reading into the oracle TWAP.
func (a *AMM) UpdateOracleTWAP(price chmath.Int128, now int64) error {
	twap, err := chmath.CalculateNewSignedTWAP(price, a.LastOraclePriceTWAP, now, a.LastOraclePriceTWAPTS, a.FundingPeriod)
	if err != nil {
		return err
	}
	a.LastOraclePrice = price
	a.LastOraclePriceTWAP = twap
	a.LastOraclePriceTWAPTS = now
	return nil
}

// AddFee books a collected fee and what remains of it after distributions.
func (a *AMM) AddFee(fee chmath.Uint128, distributions chmath.Uint128) error {
	total, err := a.TotalFee.Add(fee)
	if err != nil {
		return err
	}
	feeSigned, err := chmath.CastToInt128(fee)
	if err != nil {
		return err
	}
	distSigned, err := chmath.CastToInt128(distributions)
	if err != nil {
		return err
	}
	net, err := feeSigned.Sub(distSigned)
	if err != nil {
		return err
	}
	remaining, err := a.TotalFeeMinusDistributions.Add(net)
	if err != nil {
		return err
	}
	a.TotalFee = total
	a.TotalFeeMinusDistributions = remaining
	return nil
}

// Repeg moves the peg multiplier and returns the cost to the AMM of doing so
// given the market's net user position. A positive cost is paid out of
// TotalFeeMinusDistributions; a negative cost is a gain.
func (a *AMM) Repeg(newPeg chmath.Uint128, netBaseAssetAmount chmath.Int128) (chmath.Int128, error) {
	if newPeg.IsZero() || newPeg == a.PegMultiplier {
		return chmath.Int128{}, errorsmod.Wrapf(ErrInvalidRepegAmount, "peg %s", newPeg)
	}

	before, err := chmath.CalculateBaseAssetValue(netBaseAssetAmount, a.BaseAssetReserve, a.QuoteAssetReserve, a.SqrtK, a.PegMultiplier)
	if err != nil {
		return chmath.Int128{}, err
	}
	after, err := chmath.CalculateBaseAssetValue(netBaseAssetAmount, a.BaseAssetReserve, a.QuoteAssetReserve, a.SqrtK, newPeg)
	if err != nil {
		return chmath.Int128{}, err
	}

	// Users gain what the AMM loses: value change on the net long side.
	cost, err := chmath.CalculatePnL(after, before, !netBaseAssetAmount.IsNegative())
	if err != nil {
		return chmath.Int128{}, err
	}
	if cost.Sign() > 0 && cost.Cmp(a.TotalFeeMinusDistributions) > 0 {
		return chmath.Int128{}, errorsmod.Wrapf(ErrInsufficientFeePool, "cost %s, pool %s", cost, a.TotalFeeMinusDistributions)
	}

	remaining, err := a.TotalFeeMinusDistributions.Sub(cost)
	if err != nil {
		return chmath.Int128{}, err
	}
	a.PegMultiplier = newPeg
	a.TotalFeeMinusDistributions = remaining
	return cost, nil
}

// BaseAmountToPrice returns the base amount a trade in direction can take
// before the mark price crosses limitPrice. Zero when the mark is already
// past the limit.
func (a *AMM) BaseAmountToPrice(limitPrice chmath.Uint128, direction PositionDirection) (chmath.Uint128, error) {
	target, err := chmath.CalculateBaseReserveAtPrice(a.SqrtK, a.PegMultiplier, limitPrice)
	if err != nil {
		return chmath.Uint128{}, err
	}
	if direction == PositionDirectionLong {
		if !target.Lt(a.BaseAssetReserve) {
			return chmath.Uint128{}, nil
		}
		return a.BaseAssetReserve.Sub(target)
	}
	if !target.Gt(a.BaseAssetReserve) {
		return chmath.Uint128{}, nil
	}
	return target.Sub(a.BaseAssetReserve)
}
