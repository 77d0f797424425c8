package event

import (
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

// --- Initialization ---

// InitializeGlobalConfig creates the config singleton. The signer becomes admin.
type InitializeGlobalConfig struct {
	Header
	Params state.GlobalConfigParams `json:"params"`
}

type InitializeHistory struct {
	Header
}

type InitializeOrderState struct {
	Header
}

type InitializeMarket struct {
	Header
	Params state.MarketParams     `json:"params"`
	Oracle state.OraclePriceData `json:"oracle"`
}

// InitializeUser creates the signer's account and empty position set.
type InitializeUser struct {
	Header
	WhitelistToken *state.TokenAccount `json:"whitelist_token,omitempty"`
}

// --- Admin ---

type UpdateAdmin struct {
	Header
	Admin state.Handle `json:"admin"`
}

// UpdateMarginRatios replaces the global margin tiers, or one market's when
// MarketIndex is set.
type UpdateMarginRatios struct {
	Header
	MarketIndex            *uint64 `json:"market_index,omitempty"`
	MarginRatioInitial     uint64  `json:"margin_ratio_initial"`
	MarginRatioPartial     uint64  `json:"margin_ratio_partial"`
	MarginRatioMaintenance uint64  `json:"margin_ratio_maintenance"`
}

type UpdateFeeStructure struct {
	Header
	FeeStructure state.FeeStructure `json:"fee_structure"`
}

type UpdateOracleGuardRails struct {
	Header
	OracleGuardRails state.OracleGuardRails `json:"oracle_guard_rails"`
}

type UpdateOrderFillerRewardStructure struct {
	Header
	RewardStructure state.OrderFillerRewardStructure `json:"reward_structure"`
}

type UpdateWhitelistMint struct {
	Header
	Mint state.Handle `json:"mint"`
}

type UpdateDiscountMint struct {
	Header
	Mint state.Handle `json:"mint"`
}

type UpdateMaxDeposit struct {
	Header
	MaxDeposit chmath.Uint128 `json:"max_deposit"`
}

type UpdateExchangePaused struct {
	Header
	Paused bool `json:"paused"`
}

type UpdateFundingPaused struct {
	Header
	Paused bool `json:"paused"`
}

type UpdateMarketMinimumTradeSize struct {
	Header
	MarketIndex                uint64         `json:"market_index"`
	MinimumQuoteAssetTradeSize chmath.Uint128 `json:"minimum_quote_asset_trade_size"`
	MinimumBaseAssetTradeSize  chmath.Uint128 `json:"minimum_base_asset_trade_size"`
}

// --- Collateral ---

// DepositCollateral credits Amount (QuotePrecision) that the custody layer
// has already moved into the collateral vault.
type DepositCollateral struct {
	Header
	Amount uint64 `json:"amount"`
}

type WithdrawCollateral struct {
	Header
	Amount uint64 `json:"amount"`
}

// --- Trading ---

// OpenPosition swaps QuoteAssetAmount of notional against the AMM. A non-zero
// LimitPrice bounds the mark price after the swap.
type OpenPosition struct {
	Header
	MarketIndex      uint64                  `json:"market_index"`
	Direction        state.PositionDirection `json:"direction"`
	QuoteAssetAmount chmath.Uint128          `json:"quote_asset_amount"`
	LimitPrice       chmath.Uint128          `json:"limit_price"`
	Oracle           state.OraclePriceData   `json:"oracle"`
	DiscountToken    *state.TokenAccount     `json:"discount_token,omitempty"`
	Referrer         state.Handle            `json:"referrer"`
}

type ClosePosition struct {
	Header
	MarketIndex   uint64                `json:"market_index"`
	Oracle        state.OraclePriceData `json:"oracle"`
	DiscountToken *state.TokenAccount   `json:"discount_token,omitempty"`
	Referrer      state.Handle          `json:"referrer"`
}

type PlaceOrder struct {
	Header
	Params        state.OrderParams     `json:"params"`
	Oracle        state.OraclePriceData `json:"oracle"`
	DiscountToken *state.TokenAccount   `json:"discount_token,omitempty"`
}

type CancelOrder struct {
	Header
	OrderID uint64 `json:"order_id"`
}

type CancelOrderByUserID struct {
	Header
	UserOrderID uint8 `json:"user_order_id"`
}

// ExpireOrders cancels every open order of User. Signed by a filler.
type ExpireOrders struct {
	Header
	User state.Handle `json:"user"`
}

// FillOrder executes User's open order against the AMM. Signed by the filler.
type FillOrder struct {
	Header
	User    state.Handle          `json:"user"`
	OrderID uint64                `json:"order_id"`
	Oracle  state.OraclePriceData `json:"oracle"`
}

// --- Funding ---

// SettleFundingPayment settles User's pending funding. Anyone may sign it.
type SettleFundingPayment struct {
	Header
	User state.Handle `json:"user"`
}

type UpdateFundingRate struct {
	Header
	MarketIndex uint64                `json:"market_index"`
	Oracle      state.OraclePriceData `json:"oracle"`
}

// --- Risk ---

// Liquidate is signed by the liquidator. Oracles holds a reading for each
// market User has a position in.
type Liquidate struct {
	Header
	User    state.Handle                     `json:"user"`
	Oracles map[uint64]state.OraclePriceData `json:"oracles"`
}

type RepegAMMCurve struct {
	Header
	MarketIndex uint64                `json:"market_index"`
	NewPeg      chmath.Uint128        `json:"new_peg"`
	Oracle      state.OraclePriceData `json:"oracle"`
}

func (*InitializeGlobalConfig) Operation() Operation { return OpInitializeGlobalConfig }
func (*InitializeHistory) Operation() Operation      { return OpInitializeHistory }
func (*InitializeOrderState) Operation() Operation   { return OpInitializeOrderState }
func (*InitializeMarket) Operation() Operation       { return OpInitializeMarket }
func (*InitializeUser) Operation() Operation         { return OpInitializeUser }
func (*UpdateAdmin) Operation() Operation            { return OpUpdateAdmin }
func (*UpdateMarginRatios) Operation() Operation     { return OpUpdateMarginRatios }
func (*UpdateFeeStructure) Operation() Operation     { return OpUpdateFeeStructure }
func (*UpdateOracleGuardRails) Operation() Operation { return OpUpdateOracleGuardRails }
func (*UpdateOrderFillerRewardStructure) Operation() Operation {
	return OpUpdateOrderFillerRewardStruct
}
func (*UpdateWhitelistMint) Operation() Operation          { return OpUpdateWhitelistMint }
func (*UpdateDiscountMint) Operation() Operation           { return OpUpdateDiscountMint }
func (*UpdateMaxDeposit) Operation() Operation             { return OpUpdateMaxDeposit }
func (*UpdateExchangePaused) Operation() Operation         { return OpUpdateExchangePaused }
func (*UpdateFundingPaused) Operation() Operation          { return OpUpdateFundingPaused }
func (*UpdateMarketMinimumTradeSize) Operation() Operation { return OpUpdateMarketMinimumTradeSize }
func (*DepositCollateral) Operation() Operation            { return OpDepositCollateral }
func (*WithdrawCollateral) Operation() Operation           { return OpWithdrawCollateral }
func (*OpenPosition) Operation() Operation                 { return OpOpenPosition }
func (*ClosePosition) Operation() Operation                { return OpClosePosition }
func (*PlaceOrder) Operation() Operation                   { return OpPlaceOrder }
func (*CancelOrder) Operation() Operation                  { return OpCancelOrder }
func (*CancelOrderByUserID) Operation() Operation          { return OpCancelOrderByUserID }
func (*ExpireOrders) Operation() Operation                 { return OpExpireOrders }
func (*FillOrder) Operation() Operation                    { return OpFillOrder }
func (*SettleFundingPayment) Operation() Operation         { return OpSettleFundingPayment }
func (*UpdateFundingRate) Operation() Operation            { return OpUpdateFundingRate }
func (*Liquidate) Operation() Operation                    { return OpLiquidate }
func (*RepegAMMCurve) Operation() Operation                { return OpRepegAMMCurve }

// New returns an empty command for op, ready to be decoded into.
func New(op Operation) (Command, bool) {
	switch op {
	case OpInitializeGlobalConfig:
		return &InitializeGlobalConfig{}, true
	case OpInitializeHistory:
		return &InitializeHistory{}, true
	case OpInitializeOrderState:
		return &InitializeOrderState{}, true
	case OpInitializeMarket:
		return &InitializeMarket{}, true
	case OpInitializeUser:
		return &InitializeUser{}, true
	case OpUpdateAdmin:
		return &UpdateAdmin{}, true
	case OpUpdateMarginRatios:
		return &UpdateMarginRatios{}, true
	case OpUpdateFeeStructure:
		return &UpdateFeeStructure{}, true
	case OpUpdateOracleGuardRails:
		return &UpdateOracleGuardRails{}, true
	case OpUpdateOrderFillerRewardStruct:
		return &UpdateOrderFillerRewardStructure{}, true
	case OpUpdateWhitelistMint:
		return &UpdateWhitelistMint{}, true
	case OpUpdateDiscountMint:
		return &UpdateDiscountMint{}, true
	case OpUpdateMaxDeposit:
		return &UpdateMaxDeposit{}, true
	case OpUpdateExchangePaused:
		return &UpdateExchangePaused{}, true
	case OpUpdateFundingPaused:
		return &UpdateFundingPaused{}, true
	case OpUpdateMarketMinimumTradeSize:
		return &UpdateMarketMinimumTradeSize{}, true
	case OpDepositCollateral:
		return &DepositCollateral{}, true
	case OpWithdrawCollateral:
		return &WithdrawCollateral{}, true
	case OpOpenPosition:
		return &OpenPosition{}, true
	case OpClosePosition:
		return &ClosePosition{}, true
	case OpPlaceOrder:
		return &PlaceOrder{}, true
	case OpCancelOrder:
		return &CancelOrder{}, true
	case OpCancelOrderByUserID:
		return &CancelOrderByUserID{}, true
	case OpExpireOrders:
		return &ExpireOrders{}, true
	case OpFillOrder:
		return &FillOrder{}, true
	case OpSettleFundingPayment:
		return &SettleFundingPayment{}, true
	case OpUpdateFundingRate:
		return &UpdateFundingRate{}, true
	case OpLiquidate:
		return &Liquidate{}, true
	case OpRepegAMMCurve:
		return &RepegAMMCurve{}, true
	}
	return nil, false
}

// Operations lists every command the engine accepts.
var Operations = []Operation{
	OpInitializeGlobalConfig,
	OpInitializeHistory,
	OpInitializeOrderState,
	OpInitializeMarket,
	OpInitializeUser,
	OpUpdateAdmin,
	OpUpdateMarginRatios,
	OpUpdateFeeStructure,
	OpUpdateOracleGuardRails,
	OpUpdateOrderFillerRewardStruct,
	OpUpdateWhitelistMint,
	OpUpdateDiscountMint,
	OpUpdateMaxDeposit,
	OpUpdateExchangePaused,
	OpUpdateFundingPaused,
	OpUpdateMarketMinimumTradeSize,
	OpDepositCollateral,
	OpWithdrawCollateral,
	OpOpenPosition,
	OpClosePosition,
	OpPlaceOrder,
	OpCancelOrder,
	OpCancelOrderByUserID,
	OpExpireOrders,
	OpFillOrder,
	OpSettleFundingPayment,
	OpUpdateFundingRate,
	OpLiquidate,
	OpRepegAMMCurve,
}
