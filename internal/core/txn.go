package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/history"
	"PerpClearing/internal/state"
)

// txn is the working set of one operation. Every record the operation touches
// is copied in, mutated here, and written back by commit. A failed operation
// drops its txn and leaves the engine unchanged.
type txn struct {
	e   *Engine
	now int64

	config     *state.GlobalConfig
	orderState *state.OrderState
	markets    state.Markets
	insurance  state.InsuranceFund
	accounts   map[state.Handle]*Account
	created    map[state.Handle]bool

	deposits        *history.Staged[history.DepositRecord]
	trades          *history.Staged[history.TradeRecord]
	fundingPayments *history.Staged[history.FundingPaymentRecord]
	fundingRates    *history.Staged[history.FundingRateRecord]
	liquidations    *history.Staged[history.LiquidationRecord]
	curves          *history.Staged[history.CurveRecord]
	orders          *history.Staged[history.OrderRecord]
	lastOrderID     uint64
	entries         []history.Entry
}

func (e *Engine) begin(now int64) *txn {
	s := &e.state
	t := &txn{
		e:         e,
		now:       now,
		markets:   s.Markets,
		insurance: s.InsuranceFund,
		accounts:  make(map[state.Handle]*Account),
		created:   make(map[state.Handle]bool),

		deposits:        s.Logs.Deposits.Stage(),
		trades:          s.Logs.Trades.Stage(),
		fundingPayments: s.Logs.FundingPayments.Stage(),
		fundingRates:    s.Logs.FundingRates.Stage(),
		liquidations:    s.Logs.Liquidations.Stage(),
		curves:          s.Logs.Curves.Stage(),
		orders:          s.Logs.Orders.Stage(),
		lastOrderID:     s.Logs.Orders.LastOrderID,
	}
	if s.Config != nil {
		cfg := *s.Config
		t.config = &cfg
	}
	if s.OrderState != nil {
		orderState := *s.OrderState
		t.orderState = &orderState
	}
	return t
}

// commit appends the staged history and publishes the working copies.
func (t *txn) commit() ([]history.Entry, error) {
	commits := []func() ([]history.Entry, error){
		t.deposits.Commit,
		t.trades.Commit,
		t.fundingPayments.Commit,
		t.fundingRates.Commit,
		t.liquidations.Commit,
		t.curves.Commit,
		t.orders.Commit,
	}
	for _, commit := range commits {
		if _, err := commit(); err != nil {
			return nil, err
		}
	}

	s := &t.e.state
	s.Logs.Orders.LastOrderID = t.lastOrderID
	s.Config = t.config
	s.OrderState = t.orderState
	s.Markets = t.markets
	s.InsuranceFund = t.insurance
	for h, acct := range t.accounts {
		s.Accounts[h] = acct
	}
	return t.entries, nil
}

// --- Preconditions ---

func (t *txn) requireConfig() (*state.GlobalConfig, error) {
	if t.config == nil {
		return nil, errorsmod.Wrap(state.ErrGlobalConfigNotInitialized, "initialize the global config first")
	}
	return t.config, nil
}

func (t *txn) requireAdmin(signer state.Handle) (*state.GlobalConfig, error) {
	cfg, err := t.requireConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireAdmin(signer); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (t *txn) requireHistories() (*state.GlobalConfig, error) {
	cfg, err := t.requireConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.HistoriesInitialized() {
		return nil, errorsmod.Wrap(state.ErrHistoriesNotInitialized, "initialize the history logs first")
	}
	return cfg, nil
}

// requireTrading is the gate for every user-facing state change.
func (t *txn) requireTrading() (*state.GlobalConfig, error) {
	cfg, err := t.requireHistories()
	if err != nil {
		return nil, err
	}
	if cfg.ExchangePaused {
		return nil, errorsmod.Wrap(state.ErrExchangePaused, "exchange is paused")
	}
	return cfg, nil
}

func (t *txn) requireOrderState() (*state.OrderState, error) {
	if t.orderState == nil {
		return nil, errorsmod.Wrap(state.ErrOrderStateNotInitialized, "initialize the order state first")
	}
	return t.orderState, nil
}

// account returns the working copy of authority's account.
func (t *txn) account(authority state.Handle) (*Account, error) {
	if acct, ok := t.accounts[authority]; ok {
		return acct, nil
	}
	orig, ok := t.e.state.Accounts[authority]
	if !ok {
		return nil, errorsmod.Wrapf(state.ErrUserNotFound, "authority %s", authority)
	}
	acct := *orig
	t.accounts[authority] = &acct
	return &acct, nil
}

func (t *txn) createAccount(acct *Account) error {
	authority := acct.User.Authority
	if _, ok := t.e.state.Accounts[authority]; ok || t.created[authority] {
		return errorsmod.Wrapf(state.ErrUserAlreadyInitialized, "authority %s", authority)
	}
	t.accounts[authority] = acct
	t.created[authority] = true
	return nil
}

// --- History ---

func (t *txn) nextOrderID() uint64 {
	t.lastOrderID++
	return t.lastOrderID
}

func stage[R history.Record](t *txn, s *history.Staged[R], r R) error {
	if err := s.Add(r); err != nil {
		return err
	}
	t.entries = append(t.entries, history.NewEntry(r))
	return nil
}

func (t *txn) recordDeposit(r history.DepositRecord) error {
	r.TS, r.RecordID = t.now, t.deposits.NextRecordID()
	return stage(t, t.deposits, r)
}

func (t *txn) recordTrade(r history.TradeRecord) (uint64, error) {
	r.TS, r.RecordID = t.now, t.trades.NextRecordID()
	return r.RecordID, stage(t, t.trades, r)
}

func (t *txn) recordFundingPayment(r history.FundingPaymentRecord) error {
	r.TS, r.RecordID = t.now, t.fundingPayments.NextRecordID()
	return stage(t, t.fundingPayments, r)
}

func (t *txn) recordFundingRate(r history.FundingRateRecord) error {
	r.TS, r.RecordID = t.now, t.fundingRates.NextRecordID()
	return stage(t, t.fundingRates, r)
}

func (t *txn) recordLiquidation(r history.LiquidationRecord) error {
	r.TS, r.RecordID = t.now, t.liquidations.NextRecordID()
	return stage(t, t.liquidations, r)
}

func (t *txn) recordCurve(r history.CurveRecord) error {
	r.TS, r.RecordID = t.now, t.curves.NextRecordID()
	return stage(t, t.curves, r)
}

func (t *txn) recordOrder(r history.OrderRecord) error {
	r.TS, r.RecordID = t.now, t.orders.NextRecordID()
	return stage(t, t.orders, r)
}
