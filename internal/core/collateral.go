package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

// DepositCollateral credits the signer's collateral after settling funding.
func (e *Engine) DepositCollateral(c *event.DepositCollateral) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireTrading()
	if err != nil {
		return nil, err
	}
	if c.Amount == 0 {
		return nil, errorsmod.Wrap(state.ErrInvalidAmount, "deposit of zero")
	}
	acct, err := t.account(c.Signer)
	if err != nil {
		return nil, err
	}
	if err := t.settleFunding(acct); err != nil {
		return nil, err
	}

	user := &acct.User
	record := history.DepositRecord{
		UserAuthority:            user.Authority,
		User:                     state.UserAccount(user.Authority),
		Direction:                history.DepositDirectionDeposit,
		CollateralBefore:         user.Collateral,
		CumulativeDepositsBefore: user.CumulativeDeposits,
		Amount:                   c.Amount,
	}

	amount := chmath.U64(c.Amount)
	signed, err := chmath.CastToInt128(amount)
	if err != nil {
		return nil, err
	}
	cumulative, err := user.CumulativeDeposits.Add(signed)
	if err != nil {
		return nil, err
	}
	if !cfg.MaxDeposit.IsZero() {
		limit, err := chmath.CastToInt128(cfg.MaxDeposit)
		if err != nil {
			return nil, err
		}
		if cumulative.Cmp(limit) > 0 {
			return nil, errorsmod.Wrapf(state.ErrMaxDepositExceeded, "cumulative %s, max %s", cumulative, cfg.MaxDeposit)
		}
	}
	collateral, err := user.Collateral.Add(amount)
	if err != nil {
		return nil, err
	}
	user.Collateral = collateral
	user.CumulativeDeposits = cumulative

	if err := t.recordDeposit(record); err != nil {
		return nil, err
	}
	return t.commit()
}

// WithdrawCollateral debits the signer's collateral. With positions open the
// account must still meet initial margin afterwards.
func (e *Engine) WithdrawCollateral(c *event.WithdrawCollateral) ([]history.Entry, error) {
	t := e.begin(c.TS)
	if _, err := t.requireTrading(); err != nil {
		return nil, err
	}
	if c.Amount == 0 {
		return nil, errorsmod.Wrap(state.ErrInvalidAmount, "withdrawal of zero")
	}
	acct, err := t.account(c.Signer)
	if err != nil {
		return nil, err
	}
	if err := t.settleFunding(acct); err != nil {
		return nil, err
	}

	user := &acct.User
	amount := chmath.U64(c.Amount)
	if amount.Gt(user.Collateral) {
		return nil, errorsmod.Wrapf(state.ErrInsufficientCollateral, "withdraw %d, collateral %s", c.Amount, user.Collateral)
	}
	record := history.DepositRecord{
		UserAuthority:            user.Authority,
		User:                     state.UserAccount(user.Authority),
		Direction:                history.DepositDirectionWithdraw,
		CollateralBefore:         user.Collateral,
		CumulativeDepositsBefore: user.CumulativeDeposits,
		Amount:                   c.Amount,
	}

	if user.Collateral, err = user.Collateral.Sub(amount); err != nil {
		return nil, err
	}
	signed, err := chmath.CastToInt128(amount)
	if err != nil {
		return nil, err
	}
	if user.CumulativeDeposits, err = user.CumulativeDeposits.Sub(signed); err != nil {
		return nil, err
	}

	summary, err := state.CalculateMarginSummary(user, &acct.Positions, &t.markets)
	if err != nil {
		return nil, err
	}
	if !summary.MeetsInitialMargin() {
		return nil, errorsmod.Wrapf(state.ErrInsufficientCollateral,
			"total collateral %s below initial requirement %s", summary.TotalCollateral, summary.InitialRequirement)
	}

	if err := t.recordDeposit(record); err != nil {
		return nil, err
	}
	return t.commit()
}
