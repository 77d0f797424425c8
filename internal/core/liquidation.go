package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

// Liquidate reduces an undercollateralized user's positions. Below the
// partial tier a fraction of every position is closed; below maintenance all
// of it. The penalty is split between the signing liquidator and the
// insurance fund.
func (e *Engine) Liquidate(c *event.Liquidate) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireTrading()
	if err != nil {
		return nil, err
	}
	if c.User == c.Signer {
		return nil, errorsmod.Wrap(state.ErrUnauthorized, "user cannot liquidate itself")
	}
	liquidator, err := t.account(c.Signer)
	if err != nil {
		return nil, errorsmod.Wrap(err, "liquidator")
	}
	acct, err := t.account(c.User)
	if err != nil {
		return nil, err
	}
	if err := t.settleFunding(acct); err != nil {
		return nil, err
	}

	// Step 1: Margin
	summary, err := state.CalculateMarginSummary(&acct.User, &acct.Positions, &t.markets)
	if err != nil {
		return nil, err
	}
	typ := state.DetermineLiquidationType(summary)
	if typ == state.LiquidationTypeNone {
		return nil, errorsmod.Wrapf(state.ErrSufficientCollateral,
			"margin ratio %s, total collateral %s", summary.MarginRatio, summary.TotalCollateral)
	}
	params := cfg.LiquidationParameters(typ)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	// Step 2: Oracle guard rails
	for i := range acct.Positions.Positions {
		pos := &acct.Positions.Positions[i]
		if !pos.IsOpenPosition() {
			continue
		}
		oracle, ok := c.Oracles[pos.MarketIndex]
		if !ok && cfg.OracleGuardRails.UseForLiquidations {
			return nil, errorsmod.Wrapf(state.ErrFailToLoadOracle, "market %d", pos.MarketIndex)
		}
		market, err := t.markets.GetInitialized(pos.MarketIndex)
		if err != nil {
			return nil, err
		}
		mark, err := market.AMM.MarkPrice()
		if err != nil {
			return nil, err
		}
		if err := state.ValidateOracleForLiquidation(cfg.OracleGuardRails, mark, oracle); err != nil {
			return nil, errorsmod.Wrapf(err, "market %d", pos.MarketIndex)
		}
	}

	// Step 3: Close
	var closed chmath.Uint128
	for i := range acct.Positions.Positions {
		pos := acct.Positions.Positions[i]
		if !pos.IsOpenPosition() {
			continue
		}
		base, err := params.CloseAmount(pos.BaseAssetAmount)
		if err != nil {
			return nil, err
		}
		if base.IsZero() {
			continue
		}
		direction := state.PositionDirectionShort
		if !pos.IsLong() {
			direction = state.PositionDirectionLong
		}
		out, err := t.executeTrade(cfg, acct, tradeParams{
			marketIndex: pos.MarketIndex,
			direction:   direction,
			base:        base,
			oracle:      c.Oracles[pos.MarketIndex],
			orderTS:     c.TS,
			liquidation: true,
		})
		if err != nil {
			return nil, err
		}
		if closed, err = closed.Add(out.result.QuoteAssetAmount); err != nil {
			return nil, err
		}
	}

	// Step 4: Penalty
	fee, err := state.CalculateLiquidationFee(summary.TotalCollateral, params)
	if err != nil {
		return nil, err
	}
	user := &acct.User
	charged := fee.Fee.Min(user.Collateral)
	toLiquidator := fee.FeeToLiquidator.Min(charged)
	toInsurance, err := charged.Sub(toLiquidator)
	if err != nil {
		return nil, err
	}
	if user.Collateral, err = user.Collateral.Sub(charged); err != nil {
		return nil, err
	}
	if liquidator.User.Collateral, err = liquidator.User.Collateral.Add(toLiquidator); err != nil {
		return nil, err
	}
	if err := t.insurance.Credit(toInsurance); err != nil {
		return nil, err
	}

	err = t.recordLiquidation(history.LiquidationRecord{
		UserAuthority:        c.User,
		User:                 state.UserAccount(c.User),
		Partial:              typ == state.LiquidationTypePartial,
		BaseAssetValue:       summary.BaseAssetValue,
		BaseAssetValueClosed: closed,
		LiquidationFee:       charged,
		FeeToLiquidator:      toLiquidator,
		FeeToInsuranceFund:   toInsurance,
		Liquidator:           c.Signer,
		TotalCollateral:      summary.TotalCollateral,
		Collateral:           summary.Collateral,
		UnrealizedPnL:        summary.UnrealizedPnL,
		MarginRatio:          summary.MarginRatio,
	})
	if err != nil {
		return nil, err
	}
	return t.commit()
}
