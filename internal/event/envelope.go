package event

import (
	"github.com/google/uuid"

	"PerpClearing/internal/history"
	"PerpClearing/internal/state"
)

// Operation names a clearing-house command. It is also the last token of the
// command subject and the path segment of the HTTP command endpoint.
type Operation string

const (
	OpInitializeGlobalConfig        Operation = "initialize_global_config"
	OpInitializeHistory             Operation = "initialize_history"
	OpInitializeOrderState          Operation = "initialize_order_state"
	OpInitializeMarket              Operation = "initialize_market"
	OpInitializeUser                Operation = "initialize_user"
	OpUpdateAdmin                   Operation = "update_admin"
	OpUpdateMarginRatios            Operation = "update_margin_ratios"
	OpUpdateFeeStructure            Operation = "update_fee_structure"
	OpUpdateOracleGuardRails        Operation = "update_oracle_guard_rails"
	OpUpdateOrderFillerRewardStruct Operation = "update_order_filler_reward_structure"
	OpUpdateWhitelistMint           Operation = "update_whitelist_mint"
	OpUpdateDiscountMint            Operation = "update_discount_mint"
	OpUpdateMaxDeposit              Operation = "update_max_deposit"
	OpUpdateExchangePaused          Operation = "update_exchange_paused"
	OpUpdateFundingPaused           Operation = "update_funding_paused"
	OpUpdateMarketMinimumTradeSize  Operation = "update_market_minimum_trade_size"
	OpDepositCollateral             Operation = "deposit_collateral"
	OpWithdrawCollateral            Operation = "withdraw_collateral"
	OpOpenPosition                  Operation = "open_position"
	OpClosePosition                 Operation = "close_position"
	OpPlaceOrder                    Operation = "place_order"
	OpCancelOrder                   Operation = "cancel_order"
	OpCancelOrderByUserID           Operation = "cancel_order_by_user_id"
	OpExpireOrders                  Operation = "expire_orders"
	OpFillOrder                     Operation = "fill_order"
	OpSettleFundingPayment          Operation = "settle_funding_payment"
	OpUpdateFundingRate             Operation = "update_funding_rate"
	OpLiquidate                     Operation = "liquidate"
	OpRepegAMMCurve                 Operation = "repeg_amm_curve"
)

// Command is implemented by every operation payload.
type Command interface {
	Operation() Operation

	// IdempotencyKey is the stable dedup key assigned upstream.
	IdempotencyKey() string

	// Timestamp is the versioned input time in unix seconds. The engine never
	// reads the wall clock.
	Timestamp() int64

	// SignedBy is the identity that authorized the command.
	SignedBy() state.Handle

	// Origin identifies the producer and its sequence for ordering checks.
	// An empty source opts out.
	Origin() (source string, sequence int64)
}

// Header carries the fields common to every command.
type Header struct {
	CommandID uuid.UUID    `json:"command_id"`
	Signer    state.Handle `json:"signer"`
	Source    string       `json:"source,omitempty"`
	Sequence  int64        `json:"sequence,omitempty"`
	TS        int64        `json:"ts"`
}

func (h Header) IdempotencyKey() string  { return h.CommandID.String() }
func (h Header) Timestamp() int64        { return h.TS }
func (h Header) SignedBy() state.Handle  { return h.Signer }
func (h Header) Origin() (string, int64) { return h.Source, h.Sequence }

// Envelope is one applied command and the history it appended, chained by
// state hash.
type Envelope struct {
	Sequence       int64           `json:"sequence"`
	Operation      Operation       `json:"operation"`
	IdempotencyKey string          `json:"idempotency_key"`
	Timestamp      int64           `json:"timestamp"`
	Payload        []byte          `json:"payload"`
	Entries        []history.Entry `json:"entries"`
	StateHash      [32]byte        `json:"state_hash"`
	PrevHash       [32]byte        `json:"prev_hash"`
}
