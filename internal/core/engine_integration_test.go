package core_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpClearing/internal/core"
	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/observability"
	"PerpClearing/internal/state"
)

// --- Initialization ---

func TestInitialize_Sequence(t *testing.T) {
	e := newExchange(t)
	s := e.State()

	require.NotNil(t, s.Config)
	assert.Equal(t, admin, s.Config.Admin)
	assert.True(t, s.Config.HistoriesInitialized())
	assert.Equal(t, state.DeriveHandle(admin, "trade_history"), s.Config.TradeHistory)
	assert.Equal(t, state.DeriveHandle(admin, "order_state"), s.Config.OrderState)
	require.NotNil(t, s.OrderState)
	assert.Equal(t, chmath.U64(500_000), s.OrderState.MinOrderQuoteAssetAmount)
	assert.Equal(t, testHandle(0x1F), s.InsuranceFund.Vault)

	market := s.Markets.Markets[0]
	assert.True(t, market.Initialized)
	mark, err := market.AMM.MarkPrice()
	require.NoError(t, err)
	assert.Equal(t, price(1, 1), mark)

	assert.Len(t, s.Accounts, 3)
	assert.Equal(t, alice, account(t, e, alice).Orders.User)
}

func TestInitialize_Twice(t *testing.T) {
	e := newExchange(t)

	_, err := e.Apply(&event.InitializeGlobalConfig{Header: hdr(admin, t0), Params: configParams()})
	require.ErrorIs(t, err, state.ErrGlobalConfigAlreadyInitialized)

	_, err = e.Apply(&event.InitializeHistory{Header: hdr(admin, t0)})
	require.ErrorIs(t, err, state.ErrHistoriesAllInitialized)

	_, err = e.Apply(&event.InitializeOrderState{Header: hdr(admin, t0)})
	require.ErrorIs(t, err, state.ErrOrderStateAlreadyInitialized)

	_, err = e.Apply(&event.InitializeMarket{Header: hdr(admin, t0), Params: marketParams(0), Oracle: dollarOracle})
	require.ErrorIs(t, err, state.ErrMarketIndexAlreadyInitialized)

	_, err = e.Apply(&event.InitializeUser{Header: hdr(alice, t0)})
	require.ErrorIs(t, err, state.ErrUserAlreadyInitialized)
}

func TestInitialize_RequiresAdmin(t *testing.T) {
	e := core.NewEngine(zerolog.Nop(), nil)
	apply(t, e, &event.InitializeGlobalConfig{Header: hdr(admin, t0), Params: configParams()})

	_, err := e.Apply(&event.InitializeHistory{Header: hdr(alice, t0)})
	require.ErrorIs(t, err, state.ErrUnauthorized)

	_, err = e.Apply(&event.InitializeMarket{Header: hdr(alice, t0), Params: marketParams(1), Oracle: dollarOracle})
	require.ErrorIs(t, err, state.ErrUnauthorized)
	assert.False(t, e.State().Markets.Markets[1].Initialized)
}

func TestInitialize_BadVault(t *testing.T) {
	e := core.NewEngine(zerolog.Nop(), nil)
	params := configParams()
	params.CollateralVaultOwner = alice

	_, err := e.Apply(&event.InitializeGlobalConfig{Header: hdr(admin, t0), Params: params})
	require.ErrorIs(t, err, state.ErrInvalidCollateralVaultAuthority)
	assert.Nil(t, e.State().Config)
}

func TestInitializeUser_Whitelist(t *testing.T) {
	e := newExchange(t)
	mint := testHandle(0x77)
	apply(t, e, &event.UpdateWhitelistMint{Header: hdr(admin, t0), Mint: mint})

	dave := testHandle(0x0D)
	_, err := e.Apply(&event.InitializeUser{Header: hdr(dave, t0)})
	require.ErrorIs(t, err, state.ErrFailToFindWhitelistToken)

	_, err = e.Apply(&event.InitializeUser{
		Header:         hdr(dave, t0),
		WhitelistToken: &state.TokenAccount{Owner: dave, Mint: mint},
	})
	require.ErrorIs(t, err, state.ErrWhitelistTokenNoBalance)

	apply(t, e, &event.InitializeUser{
		Header:         hdr(dave, t0),
		WhitelistToken: &state.TokenAccount{Owner: dave, Mint: mint, Amount: 1},
	})
	account(t, e, dave)
}

func TestDeposit_BeforeHistories(t *testing.T) {
	e := core.NewEngine(zerolog.Nop(), nil)
	apply(t, e, &event.InitializeGlobalConfig{Header: hdr(admin, t0), Params: configParams()})

	_, err := e.Apply(&event.DepositCollateral{Header: hdr(alice, t0), Amount: dollars(10)})
	require.ErrorIs(t, err, state.ErrHistoriesNotInitialized)
}

// --- Admin ---

func TestAdmin_UpdateAdmin(t *testing.T) {
	e := newExchange(t)

	_, err := e.Apply(&event.UpdateAdmin{Header: hdr(alice, t0), Admin: alice})
	require.ErrorIs(t, err, state.ErrUnauthorized)

	_, err = e.Apply(&event.UpdateAdmin{Header: hdr(admin, t0)})
	require.ErrorIs(t, err, state.ErrUnauthorized)

	apply(t, e, &event.UpdateAdmin{Header: hdr(admin, t0), Admin: carol})
	assert.Equal(t, carol, e.State().Config.Admin)

	_, err = e.Apply(&event.UpdateExchangePaused{Header: hdr(admin, t0), Paused: true})
	require.ErrorIs(t, err, state.ErrUnauthorized)
	apply(t, e, &event.UpdateExchangePaused{Header: hdr(carol, t0), Paused: true})
	assert.True(t, e.State().Config.ExchangePaused)
}

func TestAdmin_MarginRatios(t *testing.T) {
	e := newExchange(t)

	_, err := e.Apply(&event.UpdateMarginRatios{
		Header:                 hdr(admin, t0),
		MarginRatioInitial:     500,
		MarginRatioPartial:     625,
		MarginRatioMaintenance: 2000,
	})
	require.ErrorIs(t, err, state.ErrInvalidMarginRatio)

	index := uint64(0)
	apply(t, e, &event.UpdateMarginRatios{
		Header:                 hdr(admin, t0),
		MarketIndex:            &index,
		MarginRatioInitial:     1000,
		MarginRatioPartial:     500,
		MarginRatioMaintenance: 300,
	})
	market := e.State().Markets.Markets[0]
	assert.Equal(t, uint64(1000), market.MarginRatioInitial)
	assert.Equal(t, uint64(300), market.MarginRatioMaintenance)

	missing := uint64(3)
	_, err = e.Apply(&event.UpdateMarginRatios{
		Header:                 hdr(admin, t0),
		MarketIndex:            &missing,
		MarginRatioInitial:     1000,
		MarginRatioPartial:     500,
		MarginRatioMaintenance: 300,
	})
	require.ErrorIs(t, err, state.ErrMarketIndexNotInitialized)
}

func TestAdmin_FeeAndRewardStructures(t *testing.T) {
	e := newExchange(t)

	bad := state.DefaultFeeStructure()
	bad.FeeDenominator = 0
	_, err := e.Apply(&event.UpdateFeeStructure{Header: hdr(admin, t0), FeeStructure: bad})
	require.ErrorIs(t, err, state.ErrInvalidFeeStructure)

	fs := state.DefaultFeeStructure()
	fs.FeeNumerator = 20
	apply(t, e, &event.UpdateFeeStructure{Header: hdr(admin, t0), FeeStructure: fs})
	assert.Equal(t, uint64(20), e.State().Config.FeeStructure.FeeNumerator)

	_, err = e.Apply(&event.UpdateOrderFillerRewardStructure{
		Header:          hdr(admin, t0),
		RewardStructure: state.OrderFillerRewardStructure{RewardNumerator: 2, RewardDenominator: 1},
	})
	require.ErrorIs(t, err, state.ErrInvalidAmount)

	apply(t, e, &event.UpdateOrderFillerRewardStructure{
		Header:          hdr(admin, t0),
		RewardStructure: state.OrderFillerRewardStructure{RewardNumerator: 1, RewardDenominator: 5},
	})
	assert.Equal(t, uint64(5), e.State().OrderState.OrderFillerRewardStructure.RewardDenominator)
}

func TestAdmin_OracleGuardRails(t *testing.T) {
	e := newExchange(t)

	rails := state.DefaultOracleGuardRails()
	rails.PriceDivergence.MarkOracleDivergenceDenominator = 0
	_, err := e.Apply(&event.UpdateOracleGuardRails{Header: hdr(admin, t0), OracleGuardRails: rails})
	require.ErrorIs(t, err, state.ErrInvalidOracleGuardRails)

	rails = state.DefaultOracleGuardRails()
	rails.UseForLiquidations = false
	apply(t, e, &event.UpdateOracleGuardRails{Header: hdr(admin, t0), OracleGuardRails: rails})
	assert.False(t, e.State().Config.OracleGuardRails.UseForLiquidations)
}

func TestAdmin_MinimumTradeSize(t *testing.T) {
	e := newExchange(t)
	apply(t, e, &event.UpdateMarketMinimumTradeSize{
		Header:                     hdr(admin, t0),
		MarketIndex:                0,
		MinimumQuoteAssetTradeSize: chmath.U64(dollars(50)),
		MinimumBaseAssetTradeSize:  chmath.U64(1),
	})
	deposit(t, e, alice, dollars(1_000), t0+1)

	_, err := e.Apply(openPosition(state.PositionDirectionLong, dollars(20), t0+2, alice))
	require.ErrorIs(t, err, state.ErrOrderAmountTooSmall)
}

// --- Collateral ---

func TestDeposit_RecordsAndCollateral(t *testing.T) {
	e := newExchange(t)

	entries := apply(t, e, &event.DepositCollateral{Header: hdr(alice, t0+1), Amount: dollars(10_000)})
	require.Equal(t, []history.Kind{history.KindDeposit}, kinds(entries))

	rec := entries[0].Record.(history.DepositRecord)
	assert.Equal(t, uint64(1), rec.RecordID)
	assert.Equal(t, t0+1, rec.TS)
	assert.Equal(t, history.DepositDirectionDeposit, rec.Direction)
	assert.True(t, rec.CollateralBefore.IsZero())
	assert.Equal(t, dollars(10_000), rec.Amount)
	assert.Equal(t, alice, rec.UserAuthority)

	user := account(t, e, alice).User
	assert.Equal(t, chmath.U64(dollars(10_000)), user.Collateral)
	assert.Equal(t, chmath.I64(int64(dollars(10_000))), user.CumulativeDeposits)
}

func TestDeposit_Rejections(t *testing.T) {
	e := newExchange(t)

	_, err := e.Apply(&event.DepositCollateral{Header: hdr(alice, t0)})
	require.ErrorIs(t, err, state.ErrInvalidAmount)

	dave := testHandle(0x0D)
	_, err = e.Apply(&event.DepositCollateral{Header: hdr(dave, t0), Amount: 1})
	require.ErrorIs(t, err, state.ErrUserNotFound)

	apply(t, e, &event.UpdateMaxDeposit{Header: hdr(admin, t0), MaxDeposit: chmath.U64(dollars(500))})
	deposit(t, e, alice, dollars(400), t0+1)
	_, err = e.Apply(&event.DepositCollateral{Header: hdr(alice, t0+2), Amount: dollars(200)})
	require.ErrorIs(t, err, state.ErrMaxDepositExceeded)
	assert.Equal(t, chmath.U64(dollars(400)), account(t, e, alice).User.Collateral)

	apply(t, e, &event.UpdateExchangePaused{Header: hdr(admin, t0), Paused: true})
	_, err = e.Apply(&event.DepositCollateral{Header: hdr(alice, t0+3), Amount: 1})
	require.ErrorIs(t, err, state.ErrExchangePaused)
}

func TestWithdraw(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(1_000), t0+1)

	_, err := e.Apply(&event.WithdrawCollateral{Header: hdr(alice, t0+2), Amount: dollars(1_001)})
	require.ErrorIs(t, err, state.ErrInsufficientCollateral)

	entries := apply(t, e, &event.WithdrawCollateral{Header: hdr(alice, t0+3), Amount: dollars(400)})
	rec := entries[0].Record.(history.DepositRecord)
	assert.Equal(t, history.DepositDirectionWithdraw, rec.Direction)
	assert.Equal(t, chmath.U64(dollars(1_000)), rec.CollateralBefore)
	assert.Equal(t, uint64(2), rec.RecordID)

	user := account(t, e, alice).User
	assert.Equal(t, chmath.U64(dollars(600)), user.Collateral)
	assert.Equal(t, chmath.I64(int64(dollars(600))), user.CumulativeDeposits)
}

func TestWithdraw_KeepsInitialMargin(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(1_000), t0+1)
	apply(t, e, openPosition(state.PositionDirectionLong, dollars(4_000), t0+2, alice))

	// $4,000 of exposure needs $800 at 20% initial margin.
	_, err := e.Apply(&event.WithdrawCollateral{Header: hdr(alice, t0+3), Amount: dollars(300)})
	require.ErrorIs(t, err, state.ErrInsufficientCollateral)

	apply(t, e, &event.WithdrawCollateral{Header: hdr(alice, t0+4), Amount: dollars(100)})
}

// --- Trading ---

func TestOpenPosition_Long(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(10_000), t0+1)

	entries := apply(t, e, openPosition(state.PositionDirectionLong, dollars(1_000), t0+2, alice))
	require.Equal(t, []history.Kind{history.KindTrade}, kinds(entries))

	rec := entries[0].Record.(history.TradeRecord)
	assert.Equal(t, state.PositionDirectionLong, rec.Direction)
	assert.InDelta(t, float64(dollars(1_000)), float64(rec.QuoteAssetAmount.Lo), 2)
	assert.InDelta(t, float64(dollars(1)), float64(rec.Fee.Lo), 1)
	assert.True(t, rec.MarkPriceAfter.Gt(rec.MarkPriceBefore))
	assert.False(t, rec.Liquidation)

	pos := position(t, e, alice)
	assert.True(t, pos.IsLong())
	// About 999 units at an average just above $1.
	assert.True(t, pos.BaseAssetAmount.UnsignedAbs().Gt(units(998)))
	assert.True(t, pos.BaseAssetAmount.UnsignedAbs().Lt(units(1_000)))

	user := account(t, e, alice).User
	sum, err := user.Collateral.Add(user.TotalFeePaid)
	require.NoError(t, err)
	assert.Equal(t, chmath.U64(dollars(10_000)), sum)

	market := e.State().Markets.Markets[0]
	assert.Equal(t, pos.BaseAssetAmount, market.BaseAssetAmountLong)
	assert.Equal(t, pos.BaseAssetAmount, market.BaseAssetAmount)
	assert.Equal(t, rec.Fee, market.AMM.TotalFee)
}

func TestOpenPosition_Rejections(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(100_000), t0+1)
	before := e.State().Markets.Markets[0]

	_, err := e.Apply(openPosition(state.PositionDirectionLong, 0, t0+2, alice))
	require.ErrorIs(t, err, state.ErrInvalidAmount)

	bad := openPosition(state.PositionDirectionLong, dollars(100), t0+2, alice)
	bad.Direction = 7
	_, err = e.Apply(bad)
	require.ErrorIs(t, err, state.ErrInvalidOrder)

	// Below the $10 market minimum.
	_, err = e.Apply(openPosition(state.PositionDirectionLong, dollars(5), t0+2, alice))
	require.ErrorIs(t, err, state.ErrOrderAmountTooSmall)

	// Any long fills above $1.
	limited := openPosition(state.PositionDirectionLong, dollars(1_000), t0+2, alice)
	limited.LimitPrice = price(1, 1)
	_, err = e.Apply(limited)
	require.ErrorIs(t, err, state.ErrSlippageOutsideLimit)

	// Pushing the mark 10% past the oracle.
	_, err = e.Apply(openPosition(state.PositionDirectionLong, dollars(60_000), t0+2, alice))
	require.ErrorIs(t, err, state.ErrOracleMarkDivergence)

	assert.Equal(t, before, e.State().Markets.Markets[0])
	assert.False(t, position(t, e, alice).IsOpenPosition())
	assert.Zero(t, e.State().Logs.Trades.Len())
}

func TestOpenPosition_IsAtomic(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(100), t0+1)
	before := e.State().Markets.Markets[0]

	_, err := e.Apply(openPosition(state.PositionDirectionLong, dollars(1_000), t0+2, alice))
	require.ErrorIs(t, err, state.ErrInsufficientCollateral)

	assert.Equal(t, before, e.State().Markets.Markets[0])
	user := account(t, e, alice).User
	assert.Equal(t, chmath.U64(dollars(100)), user.Collateral)
	assert.True(t, user.TotalFeePaid.IsZero())
	assert.Zero(t, e.State().Logs.Trades.Len())
}

func TestOpenPosition_Referrer(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(10_000), t0+1)

	cmd := openPosition(state.PositionDirectionLong, dollars(1_000), t0+2, alice)
	cmd.Referrer = alice
	_, err := e.Apply(cmd)
	require.ErrorIs(t, err, state.ErrUnauthorized)

	cmd = openPosition(state.PositionDirectionLong, dollars(1_000), t0+2, alice)
	cmd.Referrer = testHandle(0x0D)
	_, err = e.Apply(cmd)
	require.ErrorIs(t, err, state.ErrUserNotFound)

	cmd = openPosition(state.PositionDirectionLong, dollars(1_000), t0+2, alice)
	cmd.Referrer = bob
	entries := apply(t, e, cmd)
	rec := entries[0].Record.(history.TradeRecord)

	// 5% of the fee to the referrer and 5% off for the referee.
	assert.False(t, rec.ReferrerReward.IsZero())
	assert.Equal(t, rec.ReferrerReward, rec.RefereeDiscount)
	assert.InDelta(t, 950_000, float64(rec.Fee.Lo), 1)

	referrer := account(t, e, bob).User
	assert.Equal(t, rec.ReferrerReward, referrer.Collateral)
	assert.Equal(t, rec.ReferrerReward, referrer.TotalReferralReward)
	assert.Equal(t, rec.RefereeDiscount, account(t, e, alice).User.TotalRefereeDiscount)
}

func TestClosePosition(t *testing.T) {
	e := newExchange(t)
	deposit(t, e, alice, dollars(10_000), t0+1)

	_, err := e.Apply(&event.ClosePosition{Header: hdr(alice, t0+2), Oracle: dollarOracle})
	require.ErrorIs(t, err, state.ErrNoPositionToClose)

	apply(t, e, openPosition(state.PositionDirectionShort, dollars(1_000), t0+2, alice))
	require.False(t, position(t, e, alice).IsLong())

	entries := apply(t, e, &event.ClosePosition{Header: hdr(alice, t0+3), Oracle: dollarOracle})
	require.Equal(t, []history.Kind{history.KindTrade}, kinds(entries))
	rec := entries[0].Record.(history.TradeRecord)
	assert.Equal(t, state.PositionDirectionLong, rec.Direction)

	assert.False(t, position(t, e, alice).IsOpenPosition())
	market := e.State().Markets.Markets[0]
	assert.True(t, market.BaseAssetAmount.IsZero())
	assert.True(t, market.OpenInterest.IsZero())

	// Round trip on an untouched curve loses only the two fees.
	user := account(t, e, alice).User
	lost, err := chmath.U64(dollars(10_000)).Sub(user.Collateral)
	require.NoError(t, err)
	assert.InDelta(t, float64(dollars(2)), float64(lost.Lo), 10)
}

func TestApply_UnknownOperation(t *testing.T) {
	e := newExchange(t)
	_, err := e.Apply(unknownCommand{Header: hdr(alice, t0)})
	require.ErrorIs(t, err, core.ErrUnknownOperation)
}

type unknownCommand struct{ event.Header }

func (unknownCommand) Operation() event.Operation { return "unknown" }

func TestApply_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	e := core.NewEngine(zerolog.Nop(), metrics)

	apply(t, e, &event.InitializeGlobalConfig{Header: hdr(admin, t0), Params: configParams()})
	_, err := e.Apply(&event.InitializeGlobalConfig{Header: hdr(admin, t0), Params: configParams()})
	require.Error(t, err)

	op := string(event.OpInitializeGlobalConfig)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsApplied.WithLabelValues(op)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsRejected.WithLabelValues(op, string(state.ErrorClass(err)))))
}
