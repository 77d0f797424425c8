package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpClearing/internal/core"
	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

// --- Funding ---

func TestFunding_RateAndSettlement(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(10_000), t0+1)
	apply(t, e, openPosition(state.PositionDirectionLong, dollars(1_000), t0+10, alice))

	lowOracle := oracleAt(price(99, 100))
	_, err := e.Apply(&event.UpdateFundingRate{Header: hdr(carol, t0+100), Oracle: lowOracle})
	require.ErrorIs(t, err, state.ErrFundingWasNotUpdated)

	stale := lowOracle
	stale.Delay = 5_000
	_, err = e.Apply(&event.UpdateFundingRate{Header: hdr(carol, t0+chmath.OneHour), Oracle: stale})
	require.ErrorIs(t, err, state.ErrOracleStale)

	entries := apply(t, e, &event.UpdateFundingRate{Header: hdr(carol, t0+chmath.OneHour), Oracle: lowOracle})
	require.Equal(t, []history.Kind{history.KindFundingRate}, kinds(entries))
	rate := entries[0].Record.(history.FundingRateRecord)
	// Mark above oracle: longs pay.
	assert.Equal(t, 1, rate.FundingRate.Sign())
	assert.Equal(t, rate.FundingRate, rate.CumulativeFundingRateLong)

	before := account(t, e, alice).User.Collateral
	entries = apply(t, e, &event.SettleFundingPayment{Header: hdr(bob, t0+chmath.OneHour+1), User: alice})
	require.Equal(t, []history.Kind{history.KindFundingPayment}, kinds(entries))
	payment := entries[0].Record.(history.FundingPaymentRecord)
	assert.Equal(t, alice, payment.UserAuthority)
	assert.True(t, payment.FundingPayment.IsNegative())

	after := account(t, e, alice).User.Collateral
	paid, err := before.Sub(after)
	require.NoError(t, err)
	assert.Equal(t, payment.FundingPayment.UnsignedAbs(), paid)

	entries = apply(t, e, &event.SettleFundingPayment{Header: hdr(alice, t0+chmath.OneHour+2)})
	assert.Empty(t, entries)
}

func TestFunding_SettledBeforeTrading(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(10_000), t0+1)
	apply(t, e, openPosition(state.PositionDirectionLong, dollars(1_000), t0+10, alice))
	apply(t, e, &event.UpdateFundingRate{Header: hdr(carol, t0+chmath.OneHour), Oracle: oracleAt(price(99, 100))})

	entries := apply(t, e, &event.DepositCollateral{Header: hdr(alice, t0+chmath.OneHour+1), Amount: dollars(1)})
	assert.Equal(t, []history.Kind{history.KindFundingPayment, history.KindDeposit}, kinds(entries))
}

func TestFunding_Paused(t *testing.T) {
	e := newExchange(t)
	apply(t, e, &event.UpdateFundingPaused{Header: hdr(admin, t0), Paused: true})

	_, err := e.Apply(&event.UpdateFundingRate{Header: hdr(carol, t0+chmath.OneHour), Oracle: dollarOracle})
	require.ErrorIs(t, err, state.ErrFundingPaused)
}

// --- Liquidation ---

// underwater leaves alice with a $4,000 long and roughly $90 of total
// collateral after bob shorts the mark down to about $0.78. Bob's oracle is
// flagged insufficient so the divergence rail does not stop the move.
func underwater(t *testing.T) *core.Engine {
	t.Helper()
	return shortedBy(t, dollars(121_000))
}

// shortedBy opens alice's $4,000 long and then has bob short quote dollars
// into the curve, with rails off for liquidations.
func shortedBy(t *testing.T, quote uint64) *core.Engine {
	t.Helper()
	e := newExchange(t)
	deposit(t, e, alice, dollars(1_000), t0+1)
	deposit(t, e, bob, dollars(100_000), t0+1)
	apply(t, e, openPosition(state.PositionDirectionLong, dollars(4_000), t0+2, alice))

	short := openPosition(state.PositionDirectionShort, quote, t0+3, bob)
	short.Oracle.HasSufficientData = false
	apply(t, e, short)
	return e
}

func disableLiquidationRails(t *testing.T, e *core.Engine, ts int64) {
	t.Helper()
	rails := state.DefaultOracleGuardRails()
	rails.UseForLiquidations = false
	apply(t, e, &event.UpdateOracleGuardRails{Header: hdr(admin, ts), OracleGuardRails: rails})
}

func TestLiquidate_Full(t *testing.T) {
	e := underwater(t)

	_, err := e.Apply(&event.Liquidate{Header: hdr(carol, t0+4), User: alice})
	require.ErrorIs(t, err, state.ErrFailToLoadOracle)

	disableLiquidationRails(t, e, t0+4)

	_, err = e.Apply(&event.Liquidate{Header: hdr(alice, t0+5), User: alice})
	require.ErrorIs(t, err, state.ErrUnauthorized)

	_, err = e.Apply(&event.Liquidate{Header: hdr(carol, t0+5), User: bob})
	require.ErrorIs(t, err, state.ErrSufficientCollateral)

	entries := apply(t, e, &event.Liquidate{Header: hdr(carol, t0+5), User: alice})
	require.Equal(t, []history.Kind{history.KindTrade, history.KindLiquidation}, kinds(entries))

	trade := entries[0].Record.(history.TradeRecord)
	assert.True(t, trade.Liquidation)
	assert.Equal(t, state.PositionDirectionShort, trade.Direction)
	assert.True(t, trade.Fee.IsZero())

	rec := entries[1].Record.(history.LiquidationRecord)
	assert.False(t, rec.Partial)
	assert.Equal(t, carol, rec.Liquidator)
	assert.Equal(t, trade.QuoteAssetAmount, rec.BaseAssetValueClosed)
	assert.False(t, rec.LiquidationFee.IsZero())
	split, err := rec.FeeToLiquidator.Add(rec.FeeToInsuranceFund)
	require.NoError(t, err)
	assert.Equal(t, rec.LiquidationFee, split)
	assert.True(t, rec.FeeToLiquidator.Lt(rec.FeeToInsuranceFund))

	assert.False(t, position(t, e, alice).IsOpenPosition())
	assert.Equal(t, rec.FeeToLiquidator, account(t, e, carol).User.Collateral)
	assert.Equal(t, rec.FeeToInsuranceFund, e.State().InsuranceFund.Balance)

	// The penalty takes what is left.
	assert.True(t, account(t, e, alice).User.Collateral.Lt(chmath.U64(dollars(1))))
}

func TestLiquidate_Partial(t *testing.T) {
	e := shortedBy(t, dollars(105_750))
	disableLiquidationRails(t, e, t0+4)

	acct := account(t, e, alice)
	summary, err := state.CalculateMarginSummary(&acct.User, &acct.Positions, &e.State().Markets)
	require.NoError(t, err)
	require.Equal(t, state.MarginStatusPartiallyLiquidatable, summary.Status())
	before := position(t, e, alice).BaseAssetAmount

	entries := apply(t, e, &event.Liquidate{Header: hdr(carol, t0+5), User: alice})
	require.Equal(t, []history.Kind{history.KindTrade, history.KindLiquidation}, kinds(entries))

	// A quarter of the position is closed.
	trade := entries[0].Record.(history.TradeRecord)
	assert.True(t, trade.Liquidation)
	assert.Equal(t, state.PositionDirectionShort, trade.Direction)
	quarter, err := chmath.ApplyRatio(before.UnsignedAbs(), 25, 100)
	require.NoError(t, err)
	assert.Equal(t, quarter, trade.BaseAssetAmount)

	after := position(t, e, alice)
	assert.True(t, after.IsOpenPosition())
	remaining, err := before.UnsignedAbs().Sub(quarter)
	require.NoError(t, err)
	assert.Equal(t, remaining, after.BaseAssetAmount.UnsignedAbs())

	// 2.5% of total collateral, split evenly with the odd unit to insurance.
	rec := entries[1].Record.(history.LiquidationRecord)
	assert.True(t, rec.Partial)
	assert.Equal(t, carol, rec.Liquidator)
	assert.Equal(t, summary.TotalCollateral, rec.TotalCollateral)
	penalty, err := chmath.ApplyRatio(summary.TotalCollateral, 25, 1000)
	require.NoError(t, err)
	assert.Equal(t, penalty, rec.LiquidationFee)
	half, err := penalty.Div(chmath.U64(2))
	require.NoError(t, err)
	assert.Equal(t, half, rec.FeeToLiquidator)
	split, err := rec.FeeToLiquidator.Add(rec.FeeToInsuranceFund)
	require.NoError(t, err)
	assert.Equal(t, penalty, split)
	assert.False(t, rec.FeeToInsuranceFund.Lt(rec.FeeToLiquidator))

	assert.Equal(t, rec.FeeToLiquidator, account(t, e, carol).User.Collateral)
	assert.Equal(t, rec.FeeToInsuranceFund, e.State().InsuranceFund.Balance)
}

func TestLiquidate_DivergentOracle(t *testing.T) {
	e := underwater(t)

	// The mark sits about 22% under a $1 oracle.
	_, err := e.Apply(&event.Liquidate{
		Header:  hdr(carol, t0+4),
		User:    alice,
		Oracles: map[uint64]state.OraclePriceData{0: dollarOracle},
	})
	require.ErrorIs(t, err, state.ErrOracleMarkDivergence)
	assert.True(t, position(t, e, alice).IsOpenPosition())
}

func TestLiquidate_Healthy(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(10_000), t0+1)
	apply(t, e, openPosition(state.PositionDirectionLong, dollars(1_000), t0+2, alice))

	_, err := e.Apply(&event.Liquidate{
		Header:  hdr(carol, t0+3),
		User:    alice,
		Oracles: map[uint64]state.OraclePriceData{0: dollarOracle},
	})
	require.ErrorIs(t, err, state.ErrSufficientCollateral)

	_, err = e.Apply(&event.Liquidate{Header: hdr(testHandle(0x0D), t0+3), User: alice})
	require.ErrorIs(t, err, state.ErrUserNotFound)
}

// --- Repeg ---

func TestRepeg(t *testing.T) {
	e := newExchange(t)
	oracle := oracleAt(price(105, 100))

	_, err := e.Apply(&event.RepegAMMCurve{Header: hdr(alice, t0+1), NewPeg: chmath.U64(1_050), Oracle: oracle})
	require.ErrorIs(t, err, state.ErrUnauthorized)

	_, err = e.Apply(&event.RepegAMMCurve{Header: hdr(admin, t0+1), NewPeg: chmath.U64(950), Oracle: oracle})
	require.ErrorIs(t, err, state.ErrInvalidRepegAmount)
	assert.Equal(t, chmath.U64(chmath.PegPrecision), e.State().Markets.Markets[0].AMM.PegMultiplier)

	entries := apply(t, e, &event.RepegAMMCurve{Header: hdr(admin, t0+1), NewPeg: chmath.U64(1_050), Oracle: oracle})
	require.Equal(t, []history.Kind{history.KindCurve}, kinds(entries))
	rec := entries[0].Record.(history.CurveRecord)
	assert.Equal(t, chmath.U64(chmath.PegPrecision), rec.PegMultiplierBefore)
	assert.Equal(t, chmath.U64(1_050), rec.PegMultiplierAfter)
	assert.Equal(t, oracle.Price, rec.OraclePrice)

	mark, err := e.State().Markets.Markets[0].AMM.MarkPrice()
	require.NoError(t, err)
	assert.Equal(t, price(105, 100), mark)
}
