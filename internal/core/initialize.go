package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	"PerpClearing/internal/state"
)

// InitializeGlobalConfig creates the config singleton with the signer as admin.
func (e *Engine) InitializeGlobalConfig(c *event.InitializeGlobalConfig) ([]history.Entry, error) {
	t := e.begin(c.TS)
	if t.config != nil {
		return nil, errorsmod.Wrap(state.ErrGlobalConfigAlreadyInitialized, "config exists")
	}

	params := c.Params
	params.Admin = c.Signer
	cfg, err := state.NewGlobalConfig(params)
	if err != nil {
		return nil, err
	}
	t.config = &cfg
	t.insurance = state.InsuranceFund{Vault: cfg.InsuranceVault}
	return t.commit()
}

// InitializeHistory attaches the six history logs. It may run only once.
func (e *Engine) InitializeHistory(c *event.InitializeHistory) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	if !cfg.DepositHistory.IsZero() {
		return nil, errorsmod.Wrap(state.ErrHistoriesAllInitialized, "history logs already attached")
	}

	cfg.DepositHistory = state.DeriveHandle(cfg.Admin, "deposit_history")
	cfg.TradeHistory = state.DeriveHandle(cfg.Admin, "trade_history")
	cfg.FundingPaymentHistory = state.DeriveHandle(cfg.Admin, "funding_payment_history")
	cfg.FundingRateHistory = state.DeriveHandle(cfg.Admin, "funding_rate_history")
	cfg.LiquidationHistory = state.DeriveHandle(cfg.Admin, "liquidation_history")
	cfg.CurveHistory = state.DeriveHandle(cfg.Admin, "curve_history")
	return t.commit()
}

// InitializeOrderState creates the order configuration and attaches the order log.
func (e *Engine) InitializeOrderState(c *event.InitializeOrderState) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireAdmin(c.Signer)
	if err != nil {
		return nil, err
	}
	if t.orderState != nil {
		return nil, errorsmod.Wrap(state.ErrOrderStateAlreadyInitialized, "order state exists")
	}

	cfg.OrderState = state.DeriveHandle(cfg.Admin, "order_state")
	orderState := state.DefaultOrderState(state.DeriveHandle(cfg.Admin, "order_history"))
	t.orderState = &orderState
	return t.commit()
}

func (e *Engine) InitializeMarket(c *event.InitializeMarket) ([]history.Entry, error) {
	t := e.begin(c.TS)
	if _, err := t.requireAdmin(c.Signer); err != nil {
		return nil, err
	}
	if _, err := t.markets.Initialize(c.Params, c.Oracle, c.TS); err != nil {
		return nil, err
	}
	return t.commit()
}

// InitializeUser creates the signer's account. When a whitelist mint is set
// the command must carry a funded token account of it.
func (e *Engine) InitializeUser(c *event.InitializeUser) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireConfig()
	if err != nil {
		return nil, err
	}

	user, positions, err := state.NewUser(c.Signer, cfg.WhitelistMint, c.WhitelistToken)
	if err != nil {
		return nil, err
	}
	acct := &Account{
		User:      user,
		Positions: positions,
		Orders:    state.UserOrders{User: c.Signer},
	}
	if err := t.createAccount(acct); err != nil {
		return nil, err
	}
	return t.commit()
}
