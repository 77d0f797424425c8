package core

import (
	"strconv"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/rs/zerolog"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	"PerpClearing/internal/observability"
	"PerpClearing/internal/state"
)

// Account is one user's records: the user, its position slots and its order
// slots. Accounts are keyed by authority.
type Account struct {
	User      state.User          `json:"user"`
	Positions state.UserPositions `json:"positions"`
	Orders    state.UserOrders    `json:"orders"`
}

// State is everything the engine owns. Config and OrderState stay nil until
// their initialize operation runs.
type State struct {
	Config        *state.GlobalConfig       `json:"config"`
	OrderState    *state.OrderState         `json:"order_state"`
	Markets       state.Markets             `json:"markets"`
	InsuranceFund state.InsuranceFund       `json:"insurance_fund"`
	Accounts      map[state.Handle]*Account `json:"accounts"`
	Logs          history.Logs              `json:"logs"`
}

// Engine applies clearing-house operations. It never reads the wall clock
// for state: every timestamp comes from the command. It performs no locking;
// the Processor serializes access.
type Engine struct {
	state   State
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewEngine returns an engine with empty state. metrics may be nil.
func NewEngine(logger zerolog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		state:   State{Accounts: make(map[state.Handle]*Account)},
		logger:  logger,
		metrics: metrics,
	}
}

// State exposes the committed state for reads. Callers must not mutate it.
func (e *Engine) State() *State {
	return &e.state
}

// Restore replaces the engine state, e.g. from a snapshot.
func (e *Engine) Restore(s State) {
	if s.Accounts == nil {
		s.Accounts = make(map[state.Handle]*Account)
	}
	e.state = s
}

// Apply runs one command. On success it returns the history records the
// command appended, in append order. On failure nothing changes.
func (e *Engine) Apply(cmd event.Command) ([]history.Entry, error) {
	start := time.Now()
	op := string(cmd.Operation())

	entries, err := e.dispatch(cmd)
	if err != nil {
		code := state.ErrorCode(err)
		e.logger.Warn().
			Err(err).
			Str("operation", op).
			Uint32("code", code).
			Str("class", string(state.ErrorClass(err))).
			Str("signer", cmd.SignedBy().String()).
			Msg("operation rejected")
		if e.metrics != nil {
			e.metrics.OperationsRejected.WithLabelValues(op, string(state.ErrorClass(err))).Inc()
		}
		return nil, err
	}

	e.logger.Debug().
		Str("operation", op).
		Int64("ts", cmd.Timestamp()).
		Int("records", len(entries)).
		Msg("operation applied")
	if e.metrics != nil {
		e.recordMetrics(op, entries, time.Since(start))
	}
	return entries, nil
}

func (e *Engine) recordMetrics(op string, entries []history.Entry, elapsed time.Duration) {
	e.metrics.OperationsApplied.WithLabelValues(op).Inc()
	e.metrics.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())

	for _, entry := range entries {
		e.metrics.RecordsAppended.WithLabelValues(string(entry.Kind)).Inc()

		switch r := entry.Record.(type) {
		case history.LiquidationRecord:
			typ := state.LiquidationTypeFull
			if r.Partial {
				typ = state.LiquidationTypePartial
			}
			e.metrics.Liquidations.WithLabelValues(typ.String()).Inc()
		case history.FundingPaymentRecord:
			e.metrics.FundingPayments.WithLabelValues(strconv.FormatUint(r.MarketIndex, 10)).Inc()
		case history.TradeRecord:
			market := &e.state.Markets.Markets[r.MarketIndex]
			oi := market.OpenInterest.Big()
			// gauge only; rounding above 2^53 is fine
			f, _ := oi.Float64()
			e.metrics.OpenInterest.WithLabelValues(strconv.FormatUint(r.MarketIndex, 10)).Set(f)
		}
	}
}

func (e *Engine) dispatch(cmd event.Command) ([]history.Entry, error) {
	switch c := cmd.(type) {
	case *event.InitializeGlobalConfig:
		return e.InitializeGlobalConfig(c)
	case *event.InitializeHistory:
		return e.InitializeHistory(c)
	case *event.InitializeOrderState:
		return e.InitializeOrderState(c)
	case *event.InitializeMarket:
		return e.InitializeMarket(c)
	case *event.InitializeUser:
		return e.InitializeUser(c)
	case *event.UpdateAdmin:
		return e.UpdateAdmin(c)
	case *event.UpdateMarginRatios:
		return e.UpdateMarginRatios(c)
	case *event.UpdateFeeStructure:
		return e.UpdateFeeStructure(c)
	case *event.UpdateOracleGuardRails:
		return e.UpdateOracleGuardRails(c)
	case *event.UpdateOrderFillerRewardStructure:
		return e.UpdateOrderFillerRewardStructure(c)
	case *event.UpdateWhitelistMint:
		return e.UpdateWhitelistMint(c)
	case *event.UpdateDiscountMint:
		return e.UpdateDiscountMint(c)
	case *event.UpdateMaxDeposit:
		return e.UpdateMaxDeposit(c)
	case *event.UpdateExchangePaused:
		return e.UpdateExchangePaused(c)
	case *event.UpdateFundingPaused:
		return e.UpdateFundingPaused(c)
	case *event.UpdateMarketMinimumTradeSize:
		return e.UpdateMarketMinimumTradeSize(c)
	case *event.DepositCollateral:
		return e.DepositCollateral(c)
	case *event.WithdrawCollateral:
		return e.WithdrawCollateral(c)
	case *event.OpenPosition:
		return e.OpenPosition(c)
	case *event.ClosePosition:
		return e.ClosePosition(c)
	case *event.PlaceOrder:
		return e.PlaceOrder(c)
	case *event.CancelOrder:
		return e.CancelOrder(c)
	case *event.CancelOrderByUserID:
		return e.CancelOrderByUserID(c)
	case *event.ExpireOrders:
		return e.ExpireOrders(c)
	case *event.FillOrder:
		return e.FillOrder(c)
	case *event.SettleFundingPayment:
		return e.SettleFundingPayment(c)
	case *event.UpdateFundingRate:
		return e.UpdateFundingRate(c)
	case *event.Liquidate:
		return e.Liquidate(c)
	case *event.RepegAMMCurve:
		return e.RepegAMMCurve(c)
	}
	return nil, errorsmod.Wrapf(ErrUnknownOperation, "%T", cmd)
}
