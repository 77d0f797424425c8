package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

// RepegAMMCurve moves a market's peg toward the oracle. The cost to the AMM
// is paid from its fee pool; a peg that moves the mark further from the
// oracle is rejected.
func (e *Engine) RepegAMMCurve(c *event.RepegAMMCurve) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	if _, err := t.requireHistories(); err != nil {
		return nil, err
	}
	market, err := t.markets.GetInitialized(c.MarketIndex)
	if err != nil {
		return nil, err
	}
	if err := state.ValidateOraclePrice(cfg.OracleGuardRails.Validity, c.Oracle); err != nil {
		return nil, err
	}

	amm := &market.AMM
	record := history.CurveRecord{
		MarketIndex:             c.MarketIndex,
		PegMultiplierBefore:     amm.PegMultiplier,
		BaseAssetReserveBefore:  amm.BaseAssetReserve,
		QuoteAssetReserveBefore: amm.QuoteAssetReserve,
		SqrtKBefore:             amm.SqrtK,
		OraclePrice:             c.Oracle.Price,
	}

	markBefore, err := amm.MarkPrice()
	if err != nil {
		return nil, err
	}
	cost, err := amm.Repeg(c.NewPeg, market.BaseAssetAmount)
	if err != nil {
		return nil, err
	}
	markAfter, err := amm.MarkPrice()
	if err != nil {
		return nil, err
	}

	oracle := c.Oracle.Price.UnsignedAbs()
	spreadBefore, err := absDiff(markBefore, oracle)
	if err != nil {
		return nil, err
	}
	spreadAfter, err := absDiff(markAfter, oracle)
	if err != nil {
		return nil, err
	}
	if spreadAfter.Gt(spreadBefore) {
		return nil, errorsmod.Wrapf(state.ErrInvalidRepegAmount,
			"mark moves from %s to %s, away from oracle %s", markBefore, markAfter, oracle)
	}

	record.PegMultiplierAfter = amm.PegMultiplier
	record.BaseAssetReserveAfter = amm.BaseAssetReserve
	record.QuoteAssetReserveAfter = amm.QuoteAssetReserve
	record.SqrtKAfter = amm.SqrtK
	record.BaseAssetAmountLong = market.BaseAssetAmountLong
	record.BaseAssetAmountShort = market.BaseAssetAmountShort
	record.BaseAssetAmount = market.BaseAssetAmount
	record.OpenInterest = market.OpenInterest
	record.TotalFee = amm.TotalFee
	record.TotalFeeMinusDistributions = amm.TotalFeeMinusDistributions
	record.AdjustmentCost = cost

	if err := t.recordCurve(record); err != nil {
		return nil, err
	}
	return t.commit()
}

func absDiff(a, b chmath.Uint128) (chmath.Uint128, error) {
	if a.Gt(b) {
		return a.Sub(b)
	}
	return b.Sub(a)
}
