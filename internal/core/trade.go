package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

type tradeParams struct {
	marketIndex  uint64
	direction    state.PositionDirection
	base         chmath.Uint128
	oracle       state.OraclePriceData
	discountTier state.OrderDiscountTier
	referrer     state.Handle
	filler       *state.OrderFillerRewardStructure
	orderTS      int64
	liquidation  bool
}

type tradeOutcome struct {
	result   state.TradeResult
	fee      state.FeeBreakdown
	recordID uint64
}

// executeTrade swaps against a market's AMM for acct and books pnl, fees and
// the trade record. Funding must already be settled. Liquidation trades pay
// no fee and skip the size, margin and divergence checks.
func (t *txn) executeTrade(cfg *state.GlobalConfig, acct *Account, p tradeParams) (tradeOutcome, error) {
	market, err := t.markets.GetInitialized(p.marketIndex)
	if err != nil {
		return tradeOutcome{}, err
	}
	rails := cfg.OracleGuardRails

	// Step 1: Oracle state before the trade
	oracleValid := state.ValidateOraclePrice(rails.Validity, p.oracle) == nil
	var divergentBefore bool
	if oracleValid {
		mark, err := market.AMM.MarkPrice()
		if err != nil {
			return tradeOutcome{}, err
		}
		if divergentBefore, err = state.IsMarkOracleDivergent(rails.PriceDivergence, mark, p.oracle.Price); err != nil {
			return tradeOutcome{}, err
		}
	}

	// Step 2: Swap
	slot, err := acct.Positions.GetOrAllocate(p.marketIndex)
	if err != nil {
		return tradeOutcome{}, err
	}
	res, err := state.ApplyTrade(market, &acct.Positions.Positions[slot], p.direction, p.base, t.now)
	if err != nil {
		return tradeOutcome{}, err
	}
	if res.RiskIncreasing && !p.liquidation && res.QuoteAssetAmount.Lt(market.AMM.MinimumQuoteAssetTradeSize) {
		return tradeOutcome{}, errorsmod.Wrapf(state.ErrOrderAmountTooSmall,
			"quote %s, minimum %s", res.QuoteAssetAmount, market.AMM.MinimumQuoteAssetTradeSize)
	}

	// Step 3: TWAPs
	if err := market.AMM.UpdateMarkTWAP(t.now); err != nil {
		return tradeOutcome{}, err
	}
	if oracleValid {
		if err := market.AMM.UpdateOracleTWAP(p.oracle.Price, t.now); err != nil {
			return tradeOutcome{}, err
		}
	}

	// Step 4: Realized pnl
	user := &acct.User
	if user.Collateral, err = chmath.CalculateUpdatedCollateral(user.Collateral, res.RealizedPnL); err != nil {
		return tradeOutcome{}, err
	}

	// Step 5: Fees
	var fee state.FeeBreakdown
	if !p.liquidation {
		if fee, err = t.chargeFee(cfg, acct, market, res.QuoteAssetAmount, p); err != nil {
			return tradeOutcome{}, err
		}
	}

	// Step 6: Margin
	if res.RiskIncreasing && !p.liquidation {
		summary, err := state.CalculateMarginSummary(user, &acct.Positions, &t.markets)
		if err != nil {
			return tradeOutcome{}, err
		}
		if !summary.MeetsInitialMargin() {
			return tradeOutcome{}, errorsmod.Wrapf(state.ErrInsufficientCollateral,
				"total collateral %s below initial requirement %s", summary.TotalCollateral, summary.InitialRequirement)
		}
	}

	// Step 7: A trade may not push the mark away from a valid oracle
	if oracleValid && !p.liquidation && !divergentBefore {
		divergent, err := state.IsMarkOracleDivergent(rails.PriceDivergence, res.MarkPriceAfter, p.oracle.Price)
		if err != nil {
			return tradeOutcome{}, err
		}
		if divergent {
			return tradeOutcome{}, errorsmod.Wrapf(state.ErrOracleMarkDivergence,
				"mark %s, oracle %s", res.MarkPriceAfter, p.oracle.Price)
		}
	}

	id, err := t.recordTrade(history.TradeRecord{
		UserAuthority:    user.Authority,
		User:             state.UserAccount(user.Authority),
		Direction:        res.Direction,
		BaseAssetAmount:  res.BaseAssetAmount,
		QuoteAssetAmount: res.QuoteAssetAmount,
		MarkPriceBefore:  res.MarkPriceBefore,
		MarkPriceAfter:   res.MarkPriceAfter,
		Fee:              fee.UserFee,
		ReferrerReward:   fee.ReferrerReward,
		RefereeDiscount:  fee.RefereeDiscount,
		TokenDiscount:    fee.TokenDiscount,
		Liquidation:      p.liquidation,
		MarketIndex:      p.marketIndex,
		OraclePrice:      p.oracle.Price,
	})
	if err != nil {
		return tradeOutcome{}, err
	}
	return tradeOutcome{result: res, fee: fee, recordID: id}, nil
}

// chargeFee takes the user fee out of collateral, books it to the AMM and pays
// the referrer.
func (t *txn) chargeFee(cfg *state.GlobalConfig, acct *Account, market *state.Market, quote chmath.Uint128, p tradeParams) (state.FeeBreakdown, error) {
	user := &acct.User
	var referrer *Account
	if !p.referrer.IsZero() {
		if p.referrer == user.Authority {
			return state.FeeBreakdown{}, errorsmod.Wrap(state.ErrUnauthorized, "user cannot refer itself")
		}
		r, err := t.account(p.referrer)
		if err != nil {
			return state.FeeBreakdown{}, errorsmod.Wrap(err, "referrer")
		}
		referrer = r
	}

	fee, err := state.CalculateFee(quote, cfg.FeeStructure, p.discountTier, referrer != nil, p.filler, p.orderTS, t.now)
	if err != nil {
		return state.FeeBreakdown{}, err
	}
	if fee.UserFee.Gt(user.Collateral) {
		return state.FeeBreakdown{}, errorsmod.Wrapf(state.ErrInsufficientCollateral,
			"fee %s, collateral %s", fee.UserFee, user.Collateral)
	}
	distributions, err := fee.Distributions()
	if err != nil {
		return state.FeeBreakdown{}, err
	}
	if err := market.AMM.AddFee(fee.UserFee, distributions); err != nil {
		return state.FeeBreakdown{}, err
	}

	if user.Collateral, err = user.Collateral.Sub(fee.UserFee); err != nil {
		return state.FeeBreakdown{}, err
	}
	if user.TotalFeePaid, err = user.TotalFeePaid.Add(fee.UserFee); err != nil {
		return state.FeeBreakdown{}, err
	}
	if user.TotalTokenDiscount, err = user.TotalTokenDiscount.Add(fee.TokenDiscount); err != nil {
		return state.FeeBreakdown{}, err
	}
	if user.TotalRefereeDiscount, err = user.TotalRefereeDiscount.Add(fee.RefereeDiscount); err != nil {
		return state.FeeBreakdown{}, err
	}

	if referrer != nil {
		r := &referrer.User
		if r.Collateral, err = r.Collateral.Add(fee.ReferrerReward); err != nil {
			return state.FeeBreakdown{}, err
		}
		if r.TotalReferralReward, err = r.TotalReferralReward.Add(fee.ReferrerReward); err != nil {
			return state.FeeBreakdown{}, err
		}
	}
	return fee, nil
}

// OpenPosition swaps a quote notional against the AMM for the signer.
func (e *Engine) OpenPosition(c *event.OpenPosition) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireTrading()
	if err != nil {
		return nil, err
	}
	if c.Direction > state.PositionDirectionShort {
		return nil, errorsmod.Wrapf(state.ErrInvalidOrder, "direction %d", c.Direction)
	}
	if c.QuoteAssetAmount.IsZero() {
		return nil, errorsmod.Wrap(state.ErrInvalidAmount, "quote asset amount is zero")
	}
	acct, err := t.account(c.Signer)
	if err != nil {
		return nil, err
	}
	tier, err := state.ResolveDiscountTier(cfg.FeeStructure, cfg.DiscountMint, c.Signer, c.DiscountToken)
	if err != nil {
		return nil, err
	}
	if err := t.settleFunding(acct); err != nil {
		return nil, err
	}

	market, err := t.markets.GetInitialized(c.MarketIndex)
	if err != nil {
		return nil, err
	}
	base, err := market.AMM.BaseAmountForQuote(c.QuoteAssetAmount, c.Direction)
	if err != nil {
		return nil, err
	}

	out, err := t.executeTrade(cfg, acct, tradeParams{
		marketIndex:  c.MarketIndex,
		direction:    c.Direction,
		base:         base,
		oracle:       c.Oracle,
		discountTier: tier,
		referrer:     c.Referrer,
		orderTS:      c.TS,
	})
	if err != nil {
		return nil, err
	}

	if !c.LimitPrice.IsZero() {
		mark := out.result.MarkPriceAfter
		if (c.Direction == state.PositionDirectionLong && mark.Gt(c.LimitPrice)) ||
			(c.Direction == state.PositionDirectionShort && mark.Lt(c.LimitPrice)) {
			return nil, errorsmod.Wrapf(state.ErrSlippageOutsideLimit, "mark %s, limit %s", mark, c.LimitPrice)
		}
	}
	return t.commit()
}

// ClosePosition trades the signer's whole position in a market back to flat.
func (e *Engine) ClosePosition(c *event.ClosePosition) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireTrading()
	if err != nil {
		return nil, err
	}
	acct, err := t.account(c.Signer)
	if err != nil {
		return nil, err
	}
	tier, err := state.ResolveDiscountTier(cfg.FeeStructure, cfg.DiscountMint, c.Signer, c.DiscountToken)
	if err != nil {
		return nil, err
	}
	if err := t.settleFunding(acct); err != nil {
		return nil, err
	}

	slot, ok := acct.Positions.Find(c.MarketIndex)
	if !ok || !acct.Positions.Positions[slot].IsOpenPosition() {
		return nil, errorsmod.Wrapf(state.ErrNoPositionToClose, "market %d", c.MarketIndex)
	}
	position := acct.Positions.Positions[slot]
	direction := state.PositionDirectionShort
	if !position.IsLong() {
		direction = state.PositionDirectionLong
	}

	_, err = t.executeTrade(cfg, acct, tradeParams{
		marketIndex:  c.MarketIndex,
		direction:    direction,
		base:         position.BaseAssetAmount.UnsignedAbs(),
		oracle:       c.Oracle,
		discountTier: tier,
		referrer:     c.Referrer,
		orderTS:      c.TS,
	})
	if err != nil {
		return nil, err
	}
	return t.commit()
}
