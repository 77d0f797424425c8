package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	"PerpClearing/internal/state"
)

func (e *Engine) UpdateAdmin(c *event.UpdateAdmin) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	if c.Admin.IsZero() {
		return nil, errorsmod.Wrap(state.ErrUnauthorized, "new admin is the zero handle")
	}
	cfg.Admin = c.Admin
	return t.commit()
}

// UpdateMarginRatios sets the default tiers, or one market's tiers when a
// market index is given.
func (e *Engine) UpdateMarginRatios(c *event.UpdateMarginRatios) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	if err := state.ValidateMarginRatios(c.MarginRatioInitial, c.MarginRatioPartial, c.MarginRatioMaintenance); err != nil {
		return nil, err
	}

	if c.MarketIndex == nil {
		cfg.MarginRatioInitial = c.MarginRatioInitial
		cfg.MarginRatioPartial = c.MarginRatioPartial
		cfg.MarginRatioMaintenance = c.MarginRatioMaintenance
		return t.commit()
	}

	market, err := t.markets.GetInitialized(*c.MarketIndex)
	if err != nil {
		return nil, err
	}
	market.MarginRatioInitial = c.MarginRatioInitial
	market.MarginRatioPartial = c.MarginRatioPartial
	market.MarginRatioMaintenance = c.MarginRatioMaintenance
	return t.commit()
}

func (e *Engine) UpdateFeeStructure(c *event.UpdateFeeStructure) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	if err := c.FeeStructure.Validate(); err != nil {
		return nil, err
	}
	cfg.FeeStructure = c.FeeStructure
	return t.commit()
}

func (e *Engine) UpdateOracleGuardRails(c *event.UpdateOracleGuardRails) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	if err := c.OracleGuardRails.Validate(); err != nil {
		return nil, err
	}
	cfg.OracleGuardRails = c.OracleGuardRails
	return t.commit()
}

func (e *Engine) UpdateOrderFillerRewardStructure(c *event.UpdateOrderFillerRewardStructure) ([]history.Entry, error) {
	t := e.begin(c.TS)
	if _, err := t.requireAdmin(c.Signer); err != nil {
		return nil, err
	}
	orderState, err := t.requireOrderState()
	if err != nil {
		return nil, err
	}
	rs := c.RewardStructure
	if rs.RewardDenominator == 0 || rs.RewardNumerator > rs.RewardDenominator {
		return nil, errorsmod.Wrapf(state.ErrInvalidAmount, "filler reward %d/%d", rs.RewardNumerator, rs.RewardDenominator)
	}
	orderState.OrderFillerRewardStructure = rs
	return t.commit()
}

func (e *Engine) UpdateWhitelistMint(c *event.UpdateWhitelistMint) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	cfg.WhitelistMint = c.Mint
	return t.commit()
}

func (e *Engine) UpdateDiscountMint(c *event.UpdateDiscountMint) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	cfg.DiscountMint = c.Mint
	return t.commit()
}

// UpdateMaxDeposit caps cumulative deposits per user. Zero removes the cap.
func (e *Engine) UpdateMaxDeposit(c *event.UpdateMaxDeposit) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	cfg.MaxDeposit = c.MaxDeposit
	return t.commit()
}

func (e *Engine) UpdateExchangePaused(c *event.UpdateExchangePaused) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	cfg.ExchangePaused = c.Paused
	return t.commit()
}

func (e *Engine) UpdateFundingPaused(c *event.UpdateFundingPaused) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	cfg.FundingPaused = c.Paused
	return t.commit()
}

func (e *Engine) UpdateMarketMinimumTradeSize(c *event.UpdateMarketMinimumTradeSize) ([]history.Entry, error) {
	t := e.begin(c.TS)
	if _, err := t.requireAdmin(c.Signer); err != nil {
		return nil, err
	}
	market, err := t.markets.GetInitialized(c.MarketIndex)
	if err != nil {
		return nil, err
	}
	market.AMM.MinimumQuoteAssetTradeSize = c.MinimumQuoteAssetTradeSize
	market.AMM.MinimumBaseAssetTradeSize = c.MinimumBaseAssetTradeSize
	return t.commit()
}
