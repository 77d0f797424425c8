package history

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

// Kind names a log. It is used in published subjects and the mirror table.
type Kind string

const (
	KindDeposit        Kind = "deposit"
	KindTrade          Kind = "trade"
	KindFundingPayment Kind = "funding_payment"
	KindFundingRate    Kind = "funding_rate"
	KindLiquidation    Kind = "liquidation"
	KindCurve          Kind = "curve"
	KindOrder          Kind = "order"
)

// Kinds lists every log in a stable order.
var Kinds = []Kind{
	KindDeposit,
	KindTrade,
	KindFundingPayment,
	KindFundingRate,
	KindLiquidation,
	KindCurve,
	KindOrder,
}

// ParseKind validates a log name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errorsmod.Wrapf(ErrUnknownLog, "%q", s)
}

// Entry is an appended record tagged with its log, as published downstream.
type Entry struct {
	Kind     Kind   `json:"kind"`
	RecordID uint64 `json:"record_id"`
	TS       int64  `json:"ts"`
	Record   Record `json:"record"`
}

func NewEntry(r Record) Entry {
	return Entry{Kind: r.Kind(), RecordID: r.ID(), TS: r.Timestamp(), Record: r}
}

type DepositDirection uint8

const (
	DepositDirectionDeposit DepositDirection = iota
	DepositDirectionWithdraw
)

func (d DepositDirection) String() string {
	if d == DepositDirectionWithdraw {
		return "Withdraw"
	}
	return "Deposit"
}

type DepositRecord struct {
	TS                       int64            `json:"ts"`
	RecordID                 uint64           `json:"record_id"`
	UserAuthority            state.Handle     `json:"user_authority"`
	User                     state.Handle     `json:"user"`
	Direction                DepositDirection `json:"direction"`
	CollateralBefore         chmath.Uint128   `json:"collateral_before"`
	CumulativeDepositsBefore chmath.Int128    `json:"cumulative_deposits_before"`
	Amount                   uint64           `json:"amount"`
}

func (r DepositRecord) ID() uint64       { return r.RecordID }
func (r DepositRecord) Timestamp() int64 { return r.TS }
func (r DepositRecord) Kind() Kind       { return KindDeposit }

type TradeRecord struct {
	TS               int64                   `json:"ts"`
	RecordID         uint64                  `json:"record_id"`
	UserAuthority    state.Handle            `json:"user_authority"`
	User             state.Handle            `json:"user"`
	Direction        state.PositionDirection `json:"direction"`
	BaseAssetAmount  chmath.Uint128          `json:"base_asset_amount"`
	QuoteAssetAmount chmath.Uint128          `json:"quote_asset_amount"`
	MarkPriceBefore  chmath.Uint128          `json:"mark_price_before"`
	MarkPriceAfter   chmath.Uint128          `json:"mark_price_after"`
	Fee              chmath.Uint128          `json:"fee"`
	ReferrerReward   chmath.Uint128          `json:"referrer_reward"`
	RefereeDiscount  chmath.Uint128          `json:"referee_discount"`
	TokenDiscount    chmath.Uint128          `json:"token_discount"`
	Liquidation      bool                    `json:"liquidation"`
	MarketIndex      uint64                  `json:"market_index"`
	OraclePrice      chmath.Int128           `json:"oracle_price"`
}

func (r TradeRecord) ID() uint64       { return r.RecordID }
func (r TradeRecord) Timestamp() int64 { return r.TS }
func (r TradeRecord) Kind() Kind       { return KindTrade }

type FundingPaymentRecord struct {
	TS                        int64         `json:"ts"`
	RecordID                  uint64        `json:"record_id"`
	UserAuthority             state.Handle  `json:"user_authority"`
	User                      state.Handle  `json:"user"`
	MarketIndex               uint64        `json:"market_index"`
	FundingPayment            chmath.Int128 `json:"funding_payment"`
	BaseAssetAmount           chmath.Int128 `json:"base_asset_amount"`
	UserLastCumulativeFunding chmath.Int128 `json:"user_last_cumulative_funding"`
	UserLastFundingRateTS     int64         `json:"user_last_funding_rate_ts"`
	AMMCumulativeFundingLong  chmath.Int128 `json:"amm_cumulative_funding_long"`
	AMMCumulativeFundingShort chmath.Int128 `json:"amm_cumulative_funding_short"`
}

func (r FundingPaymentRecord) ID() uint64       { return r.RecordID }
func (r FundingPaymentRecord) Timestamp() int64 { return r.TS }
func (r FundingPaymentRecord) Kind() Kind       { return KindFundingPayment }

type FundingRateRecord struct {
	TS                         int64          `json:"ts"`
	RecordID                   uint64         `json:"record_id"`
	MarketIndex                uint64         `json:"market_index"`
	FundingRate                chmath.Int128  `json:"funding_rate"`
	CumulativeFundingRateLong  chmath.Int128  `json:"cumulative_funding_rate_long"`
	CumulativeFundingRateShort chmath.Int128  `json:"cumulative_funding_rate_short"`
	OraclePriceTWAP            chmath.Int128  `json:"oracle_price_twap"`
	MarkPriceTWAP              chmath.Uint128 `json:"mark_price_twap"`
}

func (r FundingRateRecord) ID() uint64       { return r.RecordID }
func (r FundingRateRecord) Timestamp() int64 { return r.TS }
func (r FundingRateRecord) Kind() Kind       { return KindFundingRate }

type LiquidationRecord struct {
	TS                   int64          `json:"ts"`
	RecordID             uint64         `json:"record_id"`
	UserAuthority        state.Handle   `json:"user_authority"`
	User                 state.Handle   `json:"user"`
	Partial              bool           `json:"partial"`
	BaseAssetValue       chmath.Uint128 `json:"base_asset_value"`
	BaseAssetValueClosed chmath.Uint128 `json:"base_asset_value_closed"`
	LiquidationFee       chmath.Uint128 `json:"liquidation_fee"`
	FeeToLiquidator      chmath.Uint128 `json:"fee_to_liquidator"`
	FeeToInsuranceFund   chmath.Uint128 `json:"fee_to_insurance_fund"`
	Liquidator           state.Handle   `json:"liquidator"`
	TotalCollateral      chmath.Uint128 `json:"total_collateral"`
	Collateral           chmath.Uint128 `json:"collateral"`
	UnrealizedPnL        chmath.Int128  `json:"unrealized_pnl"`
	MarginRatio          chmath.Uint128 `json:"margin_ratio"`
}

func (r LiquidationRecord) ID() uint64       { return r.RecordID }
func (r LiquidationRecord) Timestamp() int64 { return r.TS }
func (r LiquidationRecord) Kind() Kind       { return KindLiquidation }

type CurveRecord struct {
	TS                         int64          `json:"ts"`
	RecordID                   uint64         `json:"record_id"`
	MarketIndex                uint64         `json:"market_index"`
	PegMultiplierBefore        chmath.Uint128 `json:"peg_multiplier_before"`
	BaseAssetReserveBefore     chmath.Uint128 `json:"base_asset_reserve_before"`
	QuoteAssetReserveBefore    chmath.Uint128 `json:"quote_asset_reserve_before"`
	SqrtKBefore                chmath.Uint128 `json:"sqrt_k_before"`
	PegMultiplierAfter         chmath.Uint128 `json:"peg_multiplier_after"`
	BaseAssetReserveAfter      chmath.Uint128 `json:"base_asset_reserve_after"`
	QuoteAssetReserveAfter     chmath.Uint128 `json:"quote_asset_reserve_after"`
	SqrtKAfter                 chmath.Uint128 `json:"sqrt_k_after"`
	BaseAssetAmountLong        chmath.Int128  `json:"base_asset_amount_long"`
	BaseAssetAmountShort       chmath.Int128  `json:"base_asset_amount_short"`
	BaseAssetAmount            chmath.Int128  `json:"base_asset_amount"`
	OpenInterest               chmath.Uint128 `json:"open_interest"`
	TotalFee                   chmath.Uint128 `json:"total_fee"`
	TotalFeeMinusDistributions chmath.Int128  `json:"total_fee_minus_distributions"`
	AdjustmentCost             chmath.Int128  `json:"adjustment_cost"`
	OraclePrice                chmath.Int128  `json:"oracle_price"`
}

func (r CurveRecord) ID() uint64       { return r.RecordID }
func (r CurveRecord) Timestamp() int64 { return r.TS }
func (r CurveRecord) Kind() Kind       { return KindCurve }

type OrderAction uint8

const (
	OrderActionPlace OrderAction = iota
	OrderActionCancel
	OrderActionFill
	OrderActionExpire
)

func (a OrderAction) String() string {
	switch a {
	case OrderActionPlace:
		return "Place"
	case OrderActionCancel:
		return "Cancel"
	case OrderActionFill:
		return "Fill"
	case OrderActionExpire:
		return "Expire"
	default:
		return "Unknown"
	}
}

type OrderRecord struct {
	TS                     int64          `json:"ts"`
	RecordID               uint64         `json:"record_id"`
	User                   state.Handle   `json:"user"`
	Authority              state.Handle   `json:"authority"`
	Order                  state.Order    `json:"order"`
	Action                 OrderAction    `json:"action"`
	Filler                 state.Handle   `json:"filler"`
	TradeRecordID          uint64         `json:"trade_record_id"`
	BaseAssetAmountFilled  chmath.Uint128 `json:"base_asset_amount_filled"`
	QuoteAssetAmountFilled chmath.Uint128 `json:"quote_asset_amount_filled"`
	Fee                    chmath.Uint128 `json:"fee"`
	FillerReward           chmath.Uint128 `json:"filler_reward"`
}

func (r OrderRecord) ID() uint64       { return r.RecordID }
func (r OrderRecord) Timestamp() int64 { return r.TS }
func (r OrderRecord) Kind() Kind       { return KindOrder }
