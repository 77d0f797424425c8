package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// MaxUserOrders is the number of order slots each user holds.
const MaxUserOrders = 32

type OrderStatus uint8

const (
	OrderStatusInit OrderStatus = iota
	OrderStatusOpen
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusInit:
		return "Init"
	case OrderStatusOpen:
		return "Open"
	default:
		return "Unknown"
	}
}

type OrderType uint8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeTriggerMarket
	OrderTypeTriggerLimit
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "Market"
	case OrderTypeLimit:
		return "Limit"
	case OrderTypeTriggerMarket:
		return "TriggerMarket"
	case OrderTypeTriggerLimit:
		return "TriggerLimit"
	default:
		return "Unknown"
	}
}

func (t OrderType) IsTrigger() bool {
	return t == OrderTypeTriggerMarket || t == OrderTypeTriggerLimit
}

func (t OrderType) HasLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeTriggerLimit
}

type PositionDirection uint8

const (
	PositionDirectionLong PositionDirection = iota
	PositionDirectionShort
)

func (d PositionDirection) String() string {
	if d == PositionDirectionLong {
		return "Long"
	}
	return "Short"
}

// Opposite returns the direction that closes a position of direction d.
func (d PositionDirection) Opposite() PositionDirection {
	if d == PositionDirectionLong {
		return PositionDirectionShort
	}
	return PositionDirectionLong
}

type OrderDiscountTier uint8

const (
	OrderDiscountTierNone OrderDiscountTier = iota
	OrderDiscountTierFirst
	OrderDiscountTierSecond
	OrderDiscountTierThird
	OrderDiscountTierFourth
)

type OrderTriggerCondition uint8

const (
	OrderTriggerConditionAbove OrderTriggerCondition = iota
	OrderTriggerConditionBelow
)

// Order is a resting instruction to trade against the AMM. It is filled by an
// external filler, never matched here.
type Order struct {
	Status                 OrderStatus           `json:"status"`
	OrderType              OrderType             `json:"order_type"`
	TS                     int64                 `json:"ts"`
	OrderID                uint64                `json:"order_id"`
	UserOrderID            uint8                 `json:"user_order_id"`
	MarketIndex            uint64                `json:"market_index"`
	Price                  chmath.Uint128        `json:"price"`
	UserBaseAssetAmount    chmath.Int128         `json:"user_base_asset_amount"`
	QuoteAssetAmount       chmath.Uint128        `json:"quote_asset_amount"`
	BaseAssetAmount        chmath.Uint128        `json:"base_asset_amount"`
	BaseAssetAmountFilled  chmath.Uint128        `json:"base_asset_amount_filled"`
	QuoteAssetAmountFilled chmath.Uint128        `json:"quote_asset_amount_filled"`
	Fee                    chmath.Uint128        `json:"fee"`
	Direction              PositionDirection     `json:"direction"`
	ReduceOnly             bool                  `json:"reduce_only"`
	PostOnly               bool                  `json:"post_only"`
	ImmediateOrCancel      bool                  `json:"immediate_or_cancel"`
	DiscountTier           OrderDiscountTier     `json:"discount_tier"`
	TriggerPrice           chmath.Uint128        `json:"trigger_price"`
	TriggerCondition       OrderTriggerCondition `json:"trigger_condition"`
	Referrer               Handle                `json:"referrer"`
	OraclePriceOffset      chmath.Int128         `json:"oracle_price_offset"`
}

func (o *Order) IsOpen() bool { return o.Status == OrderStatusOpen }

// RemainingBaseAssetAmount is what is left to fill of a base-denominated order.
func (o *Order) RemainingBaseAssetAmount() (chmath.Uint128, error) {
	return o.BaseAssetAmount.Sub(o.BaseAssetAmountFilled)
}

// IsQuoteDenominated reports a market order sized in quote instead of base.
func (o *Order) IsQuoteDenominated() bool {
	return o.BaseAssetAmount.IsZero() && !o.QuoteAssetAmount.IsZero()
}

// LimitPrice returns the order's limit, offset from the oracle when an offset is set.
func (o *Order) LimitPrice(oraclePrice chmath.Int128) (chmath.Uint128, error) {
	if o.OraclePriceOffset.IsZero() {
		return o.Price, nil
	}
	p, err := oraclePrice.Add(o.OraclePriceOffset)
	if err != nil {
		return chmath.Uint128{}, err
	}
	if p.Sign() <= 0 {
		return chmath.Uint128{}, errorsmod.Wrapf(ErrInvalidOrder, "oracle offset price %s", p)
	}
	return p.UnsignedAbs(), nil
}

// TriggerSatisfied reports whether markPrice has crossed the trigger.
func (o *Order) TriggerSatisfied(markPrice chmath.Uint128) bool {
	if o.TriggerCondition == OrderTriggerConditionAbove {
		return markPrice.Gt(o.TriggerPrice)
	}
	return markPrice.Lt(o.TriggerPrice)
}

// UserOrders is a user's fixed set of order slots.
type UserOrders struct {
	User   Handle               `json:"user"`
	Orders [MaxUserOrders]Order `json:"orders"`
}

// FreeSlot returns the first slot not holding an open order.
func (uo *UserOrders) FreeSlot() (int, error) {
	for i := range uo.Orders {
		if !uo.Orders[i].IsOpen() {
			return i, nil
		}
	}
	return -1, errorsmod.Wrapf(ErrMaxNumberOfOrders, "%d open", MaxUserOrders)
}

// Find returns the slot of the open order with the given id.
func (uo *UserOrders) Find(orderID uint64) (int, error) {
	for i := range uo.Orders {
		if uo.Orders[i].IsOpen() && uo.Orders[i].OrderID == orderID {
			return i, nil
		}
	}
	return -1, errorsmod.Wrapf(ErrOrderNotFound, "order %d", orderID)
}

// FindByUserOrderID resolves a caller-chosen id to the open order.
func (uo *UserOrders) FindByUserOrderID(userOrderID uint8) (int, error) {
	for i := range uo.Orders {
		if uo.Orders[i].IsOpen() && uo.Orders[i].UserOrderID == userOrderID {
			return i, nil
		}
	}
	return -1, errorsmod.Wrapf(ErrOrderNotFound, "user order id %d", userOrderID)
}

// OrderState is the global order configuration.
type OrderState struct {
	OrderHistory               Handle                     `json:"order_history"`
	OrderFillerRewardStructure OrderFillerRewardStructure `json:"order_filler_reward_structure"`
	MinOrderQuoteAssetAmount   chmath.Uint128             `json:"min_order_quote_asset_amount"`
}

type OrderFillerRewardStructure struct {
	RewardNumerator           uint64         `json:"reward_numerator"`
	RewardDenominator         uint64         `json:"reward_denominator"`
	TimeBasedRewardLowerBound chmath.Uint128 `json:"time_based_reward_lower_bound"`
}

func DefaultOrderState(orderHistory Handle) OrderState {
	return OrderState{
		OrderHistory: orderHistory,
		OrderFillerRewardStructure: OrderFillerRewardStructure{
			RewardNumerator:           1,
			RewardDenominator:         10,
			TimeBasedRewardLowerBound: chmath.U64(10_000), // 1 cent
		},
		MinOrderQuoteAssetAmount: chmath.U64(500_000), // 50 cents
	}
}

// OrderParams are the caller's inputs to placing an order.
type OrderParams struct {
	OrderType         OrderType             `json:"order_type"`
	Direction         PositionDirection     `json:"direction"`
	UserOrderID       uint8                 `json:"user_order_id"`
	QuoteAssetAmount  chmath.Uint128        `json:"quote_asset_amount"`
	BaseAssetAmount   chmath.Uint128        `json:"base_asset_amount"`
	Price             chmath.Uint128        `json:"price"`
	MarketIndex       uint64                `json:"market_index"`
	ReduceOnly        bool                  `json:"reduce_only"`
	PostOnly          bool                  `json:"post_only"`
	ImmediateOrCancel bool                  `json:"immediate_or_cancel"`
	TriggerPrice      chmath.Uint128        `json:"trigger_price"`
	TriggerCondition  OrderTriggerCondition `json:"trigger_condition"`
	OraclePriceOffset chmath.Int128         `json:"oracle_price_offset"`
	Referrer          Handle                `json:"referrer"`
}

// ValidateOrderParams checks the shape of an order independent of market state.
func ValidateOrderParams(p OrderParams) error {
	if p.OrderType > OrderTypeTriggerLimit {
		return errorsmod.Wrapf(ErrInvalidOrder, "order type %d", p.OrderType)
	}
	if p.Direction > PositionDirectionShort {
		return errorsmod.Wrapf(ErrInvalidOrder, "direction %d", p.Direction)
	}
	if p.TriggerCondition > OrderTriggerConditionBelow {
		return errorsmod.Wrapf(ErrInvalidOrder, "trigger condition %d", p.TriggerCondition)
	}
	if p.BaseAssetAmount.IsZero() && (p.OrderType != OrderTypeMarket || p.QuoteAssetAmount.IsZero()) {
		return errorsmod.Wrapf(ErrInvalidOrder, "%s order needs a base asset amount", p.OrderType)
	}
	if !p.BaseAssetAmount.IsZero() && !p.QuoteAssetAmount.IsZero() {
		return errorsmod.Wrap(ErrInvalidOrder, "order sized in both base and quote")
	}
	if p.OrderType.HasLimitPrice() && p.Price.IsZero() && p.OraclePriceOffset.IsZero() {
		return errorsmod.Wrapf(ErrInvalidOrder, "%s order needs a price", p.OrderType)
	}
	if p.OrderType.IsTrigger() && p.TriggerPrice.IsZero() {
		return errorsmod.Wrapf(ErrInvalidOrder, "%s order needs a trigger price", p.OrderType)
	}
	if p.PostOnly && p.OrderType != OrderTypeLimit {
		return errorsmod.Wrap(ErrInvalidOrder, "post only requires a limit order")
	}
	if p.PostOnly && p.ImmediateOrCancel {
		return errorsmod.Wrap(ErrInvalidOrder, "post only order cannot be immediate or cancel")
	}
	return nil
}
