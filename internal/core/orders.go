package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

// orderLimit returns the order's price bound, if it has one. A market order
// that carries a price is bounded by it too.
func orderLimit(order *state.Order, oraclePrice chmath.Int128) (chmath.Uint128, bool, error) {
	if !order.OrderType.HasLimitPrice() && order.Price.IsZero() {
		return chmath.Uint128{}, false, nil
	}
	limit, err := order.LimitPrice(oraclePrice)
	if err != nil {
		return chmath.Uint128{}, false, err
	}
	return limit, true, nil
}

// PlaceOrder rests an order in one of the signer's order slots. Nothing
// trades until a filler fills it.
func (e *Engine) PlaceOrder(c *event.PlaceOrder) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireTrading()
	if err != nil {
		return nil, err
	}
	orderState, err := t.requireOrderState()
	if err != nil {
		return nil, err
	}
	p := c.Params
	if err := state.ValidateOrderParams(p); err != nil {
		return nil, err
	}
	acct, err := t.account(c.Signer)
	if err != nil {
		return nil, err
	}
	market, err := t.markets.GetInitialized(p.MarketIndex)
	if err != nil {
		return nil, err
	}
	if p.Referrer == c.Signer {
		return nil, errorsmod.Wrap(state.ErrUnauthorized, "user cannot refer itself")
	}
	tier, err := state.ResolveDiscountTier(cfg.FeeStructure, cfg.DiscountMint, c.Signer, c.DiscountToken)
	if err != nil {
		return nil, err
	}
	if p.UserOrderID != 0 {
		if _, err := acct.Orders.FindByUserOrderID(p.UserOrderID); err == nil {
			return nil, errorsmod.Wrapf(state.ErrInvalidOrder, "user order id %d in use", p.UserOrderID)
		}
	}

	order := state.Order{
		Status:            state.OrderStatusOpen,
		OrderType:         p.OrderType,
		TS:                c.TS,
		UserOrderID:       p.UserOrderID,
		MarketIndex:       p.MarketIndex,
		Price:             p.Price,
		QuoteAssetAmount:  p.QuoteAssetAmount,
		BaseAssetAmount:   p.BaseAssetAmount,
		Direction:         p.Direction,
		ReduceOnly:        p.ReduceOnly,
		PostOnly:          p.PostOnly,
		ImmediateOrCancel: p.ImmediateOrCancel,
		DiscountTier:      tier,
		TriggerPrice:      p.TriggerPrice,
		TriggerCondition:  p.TriggerCondition,
		Referrer:          p.Referrer,
		OraclePriceOffset: p.OraclePriceOffset,
	}

	// Size checks
	mark, err := market.AMM.MarkPrice()
	if err != nil {
		return nil, err
	}
	limit, hasLimit, err := orderLimit(&order, c.Oracle.Price)
	if err != nil {
		return nil, err
	}
	notional := order.QuoteAssetAmount
	if !order.IsQuoteDenominated() {
		price := mark
		if hasLimit {
			price = limit
		}
		if notional, err = chmath.CalculateQuoteNotional(order.BaseAssetAmount, price); err != nil {
			return nil, err
		}
		if order.BaseAssetAmount.Lt(market.AMM.MinimumBaseAssetTradeSize) {
			return nil, errorsmod.Wrapf(state.ErrOrderAmountTooSmall,
				"base %s, minimum %s", order.BaseAssetAmount, market.AMM.MinimumBaseAssetTradeSize)
		}
	}
	if notional.Lt(orderState.MinOrderQuoteAssetAmount) {
		return nil, errorsmod.Wrapf(state.ErrOrderAmountTooSmall,
			"notional %s, minimum %s", notional, orderState.MinOrderQuoteAssetAmount)
	}
	if order.PostOnly && hasLimit {
		if (order.Direction == state.PositionDirectionLong && !limit.Lt(mark)) ||
			(order.Direction == state.PositionDirectionShort && !limit.Gt(mark)) {
			return nil, errorsmod.Wrapf(state.ErrPostOnlyOrderWouldCross, "limit %s, mark %s", limit, mark)
		}
	}

	// Reserve the position slot and the order slot
	slot, err := acct.Positions.GetOrAllocate(p.MarketIndex)
	if err != nil {
		return nil, err
	}
	position := &acct.Positions.Positions[slot]
	orderSlot, err := acct.Orders.FreeSlot()
	if err != nil {
		return nil, err
	}
	position.OpenOrders++
	order.UserBaseAssetAmount = position.BaseAssetAmount
	order.OrderID = t.nextOrderID()
	acct.Orders.Orders[orderSlot] = order

	err = t.recordOrder(history.OrderRecord{
		User:      state.UserAccount(c.Signer),
		Authority: c.Signer,
		Order:     order,
		Action:    history.OrderActionPlace,
	})
	if err != nil {
		return nil, err
	}
	return t.commit()
}

// releaseOrder closes an order slot and frees its hold on the position slot.
func releaseOrder(acct *Account, idx int) {
	order := &acct.Orders.Orders[idx]
	if slot, ok := acct.Positions.Find(order.MarketIndex); ok {
		if pos := &acct.Positions.Positions[slot]; pos.OpenOrders > 0 {
			pos.OpenOrders--
		}
	}
	order.Status = state.OrderStatusInit
}

// cancelOrder releases an order and records why.
func (t *txn) cancelOrder(acct *Account, idx int, action history.OrderAction, filler state.Handle) error {
	order := acct.Orders.Orders[idx]
	releaseOrder(acct, idx)
	return t.recordOrder(history.OrderRecord{
		User:      state.UserAccount(acct.User.Authority),
		Authority: acct.User.Authority,
		Order:     order,
		Action:    action,
		Filler:    filler,
	})
}

func (e *Engine) CancelOrder(c *event.CancelOrder) ([]history.Entry, error) {
	t := e.begin(c.TS)
	if _, err := t.requireTrading(); err != nil {
		return nil, err
	}
	if _, err := t.requireOrderState(); err != nil {
		return nil, err
	}
	acct, err := t.account(c.Signer)
	if err != nil {
		return nil, err
	}
	idx, err := acct.Orders.Find(c.OrderID)
	if err != nil {
		return nil, err
	}
	if err := t.cancelOrder(acct, idx, history.OrderActionCancel, state.Handle{}); err != nil {
		return nil, err
	}
	return t.commit()
}

func (e *Engine) CancelOrderByUserID(c *event.CancelOrderByUserID) ([]history.Entry, error) {
	t := e.begin(c.TS)
	if _, err := t.requireTrading(); err != nil {
		return nil, err
	}
	if _, err := t.requireOrderState(); err != nil {
		return nil, err
	}
	acct, err := t.account(c.Signer)
	if err != nil {
		return nil, err
	}
	idx, err := acct.Orders.FindByUserOrderID(c.UserOrderID)
	if err != nil {
		return nil, err
	}
	if err := t.cancelOrder(acct, idx, history.OrderActionCancel, state.Handle{}); err != nil {
		return nil, err
	}
	return t.commit()
}

// ExpireOrders lets a filler clear every open order of a user whose
// collateral is gone.
func (e *Engine) ExpireOrders(c *event.ExpireOrders) ([]history.Entry, error) {
	t := e.begin(c.TS)
	if _, err := t.requireTrading(); err != nil {
		return nil, err
	}
	if _, err := t.requireOrderState(); err != nil {
		return nil, err
	}
	acct, err := t.account(c.User)
	if err != nil {
		return nil, err
	}
	if err := t.settleFunding(acct); err != nil {
		return nil, err
	}
	if !acct.User.Collateral.IsZero() {
		return nil, errorsmod.Wrapf(state.ErrSufficientCollateral, "collateral %s", acct.User.Collateral)
	}
	for i := range acct.Orders.Orders {
		if !acct.Orders.Orders[i].IsOpen() {
			continue
		}
		if err := t.cancelOrder(acct, i, history.OrderActionExpire, c.Signer); err != nil {
			return nil, err
		}
	}
	return t.commit()
}

// FillOrder executes as much of an open order as its limit, trigger and
// reduce-only constraints allow. The signer is the filler and earns the
// filler reward. An immediate-or-cancel order never rests a remainder.
func (e *Engine) FillOrder(c *event.FillOrder) ([]history.Entry, error) {
	t := e.begin(c.TS)
	cfg, err := t.requireTrading()
	if err != nil {
		return nil, err
	}
	orderState, err := t.requireOrderState()
	if err != nil {
		return nil, err
	}
	filler, err := t.account(c.Signer)
	if err != nil {
		return nil, errorsmod.Wrap(err, "filler")
	}
	acct, err := t.account(c.User)
	if err != nil {
		return nil, err
	}
	idx, err := acct.Orders.Find(c.OrderID)
	if err != nil {
		return nil, err
	}
	if err := t.settleFunding(acct); err != nil {
		return nil, err
	}

	order := &acct.Orders.Orders[idx]
	market, err := t.markets.GetInitialized(order.MarketIndex)
	if err != nil {
		return nil, err
	}
	mark, err := market.AMM.MarkPrice()
	if err != nil {
		return nil, err
	}
	if order.OrderType.IsTrigger() && !order.TriggerSatisfied(mark) {
		return nil, errorsmod.Wrapf(state.ErrOrderDidNotSatisfyTriggerCondition,
			"mark %s, trigger %s", mark, order.TriggerPrice)
	}

	base, err := fillableBase(acct, order, market, c.Oracle.Price)
	if err != nil {
		return nil, err
	}
	if base.IsZero() {
		if !order.ImmediateOrCancel {
			return nil, errorsmod.Wrapf(state.ErrCouldNotFillOrder, "order %d", order.OrderID)
		}
		if err := t.cancelOrder(acct, idx, history.OrderActionCancel, c.Signer); err != nil {
			return nil, err
		}
		return t.commit()
	}

	rewards := orderState.OrderFillerRewardStructure
	out, err := t.executeTrade(cfg, acct, tradeParams{
		marketIndex:  order.MarketIndex,
		direction:    order.Direction,
		base:         base,
		oracle:       c.Oracle,
		discountTier: order.DiscountTier,
		referrer:     order.Referrer,
		filler:       &rewards,
		orderTS:      order.TS,
	})
	if err != nil {
		return nil, err
	}
	if order.ReduceOnly && out.result.RiskIncreasing {
		return nil, errorsmod.Wrapf(state.ErrReduceOnlyOrderIncreasedRisk, "order %d", order.OrderID)
	}

	if order.BaseAssetAmountFilled, err = order.BaseAssetAmountFilled.Add(out.result.BaseAssetAmount); err != nil {
		return nil, err
	}
	if order.QuoteAssetAmountFilled, err = order.QuoteAssetAmountFilled.Add(out.result.QuoteAssetAmount); err != nil {
		return nil, err
	}
	if order.Fee, err = order.Fee.Add(out.fee.UserFee); err != nil {
		return nil, err
	}
	if filler.User.Collateral, err = filler.User.Collateral.Add(out.fee.FillerReward); err != nil {
		return nil, err
	}

	err = t.recordOrder(history.OrderRecord{
		User:                   state.UserAccount(c.User),
		Authority:              c.User,
		Order:                  *order,
		Action:                 history.OrderActionFill,
		Filler:                 c.Signer,
		TradeRecordID:          out.recordID,
		BaseAssetAmountFilled:  out.result.BaseAssetAmount,
		QuoteAssetAmountFilled: out.result.QuoteAssetAmount,
		Fee:                    out.fee.UserFee,
		FillerReward:           out.fee.FillerReward,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case order.IsQuoteDenominated() || !order.BaseAssetAmountFilled.Lt(order.BaseAssetAmount):
		releaseOrder(acct, idx)
	case order.ImmediateOrCancel:
		if err := t.cancelOrder(acct, idx, history.OrderActionCancel, c.Signer); err != nil {
			return nil, err
		}
	}
	return t.commit()
}

// fillableBase is the base amount a fill may trade right now.
func fillableBase(acct *Account, order *state.Order, market *state.Market, oraclePrice chmath.Int128) (chmath.Uint128, error) {
	var (
		base chmath.Uint128
		err  error
	)
	if order.IsQuoteDenominated() {
		base, err = market.AMM.BaseAmountForQuote(order.QuoteAssetAmount, order.Direction)
	} else {
		base, err = order.RemainingBaseAssetAmount()
	}
	if err != nil {
		return chmath.Uint128{}, err
	}

	limit, hasLimit, err := orderLimit(order, oraclePrice)
	if err != nil {
		return chmath.Uint128{}, err
	}
	if hasLimit {
		maxBase, err := market.AMM.BaseAmountToPrice(limit, order.Direction)
		if err != nil {
			return chmath.Uint128{}, err
		}
		base = base.Min(maxBase)
	}

	if order.ReduceOnly {
		slot, ok := acct.Positions.Find(order.MarketIndex)
		if !ok {
			return chmath.Uint128{}, nil
		}
		pos := &acct.Positions.Positions[slot]
		opposite := pos.IsOpenPosition() && pos.IsLong() == (order.Direction == state.PositionDirectionShort)
		if !opposite {
			return chmath.Uint128{}, nil
		}
		base = base.Min(pos.BaseAssetAmount.UnsignedAbs())
	}
	return base, nil
}
