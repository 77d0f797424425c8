package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	"PerpClearing/internal/state"
)

// settleFunding settles every open slot of acct and records one payment per
// slot that owed or was owed anything.
func (t *txn) settleFunding(acct *Account) error {
	settlements, err := state.SettleFundingPayments(&acct.User, &acct.Positions, &t.markets)
	if err != nil {
		return err
	}
	for _, s := range settlements {
		err := t.recordFundingPayment(history.FundingPaymentRecord{
			UserAuthority:             acct.User.Authority,
			User:                      state.UserAccount(acct.User.Authority),
			MarketIndex:               s.MarketIndex,
			FundingPayment:            s.Payment,
			BaseAssetAmount:           s.BaseAssetAmount,
			UserLastCumulativeFunding: s.UserLastCumulativeFunding,
			UserLastFundingRateTS:     s.UserLastFundingRateTS,
			AMMCumulativeFundingLong:  s.AMMCumulativeFundingLong,
			AMMCumulativeFundingShort: s.AMMCumulativeFundingShort,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SettleFundingPayment settles the target user's funding, or the signer's
// when no user is named. Settling twice in a row is a no-op.
func (e *Engine) SettleFundingPayment(c *event.SettleFundingPayment) ([]history.Entry, error) {
	t := e.begin(c.TS)
	if _, err := t.requireHistories(); err != nil {
		return nil, err
	}
	target := c.User
	if target.IsZero() {
		target = c.Signer
	}
	acct, err := t.account(target)
	if err != nil {
		return nil, err
	}
	if err := t.settleFunding(acct); err != nil {
		return nil, err
	}
	return t.commit()
}

// UpdateFundingRate rolls a market's funding period forward once it has
// elapsed.
func (e *Engine) UpdateFundingRate(c *event.UpdateFundingRate) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireHistories()
	if err != nil {
		return nil, err
	}
	if cfg.FundingPaused {
		return nil, errorsmod.Wrap(state.ErrFundingPaused, "funding updates are paused")
	}
	market, err := t.markets.GetInitialized(c.MarketIndex)
	if err != nil {
		return nil, err
	}
	if err := state.ValidateOraclePrice(cfg.OracleGuardRails.Validity, c.Oracle); err != nil {
		return nil, err
	}

	update, err := market.AMM.UpdateFundingRate(c.Oracle.Price, c.TS)
	if err != nil {
		return nil, err
	}
	err = t.recordFundingRate(history.FundingRateRecord{
		MarketIndex:                c.MarketIndex,
		FundingRate:                update.FundingRate,
		CumulativeFundingRateLong:  update.CumulativeFundingRateLong,
		CumulativeFundingRateShort: update.CumulativeFundingRateShort,
		OraclePriceTWAP:            update.OraclePriceTWAP,
		MarkPriceTWAP:              update.MarkPriceTWAP,
	})
	if err != nil {
		return nil, err
	}
	return t.commit()
}
