package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

const expectedHourlyRate = 416_666_666_666

// fundedMarkets opens market 0 with the oracle 10% under mark and rolls one
// funding period.
func fundedMarkets(t *testing.T, open func(m *state.Market)) *state.Markets {
	t.Helper()
	markets := &state.Markets{}
	_, err := markets.Initialize(defaultMarketParams(0), oracleAt(9_000_000_000), 0)
	require.NoError(t, err)
	if open != nil {
		open(&markets.Markets[0])
	}
	return markets
}

func TestUpdateFundingRate(t *testing.T) {
	markets := fundedMarkets(t, nil)
	amm := &markets.Markets[0].AMM
	before := *amm

	_, err := amm.UpdateFundingRate(chmath.I64(9_000_000_000), chmath.OneHour/2)
	require.ErrorIs(t, err, state.ErrFundingWasNotUpdated)
	assert.Equal(t, before, *amm)

	upd, err := amm.UpdateFundingRate(chmath.I64(9_000_000_000), chmath.OneHour)
	require.NoError(t, err)
	assert.Equal(t, chmath.I64(expectedHourlyRate), upd.FundingRate)
	assert.Equal(t, upd.FundingRate, amm.CumulativeFundingRateLong)
	assert.Equal(t, upd.FundingRate, amm.CumulativeFundingRateShort)
	assert.Equal(t, int64(chmath.OneHour), amm.LastFundingRateTS)
	assert.Equal(t, chmath.U64(chmath.MarkPricePrecision), upd.MarkPriceTWAP)
	assert.Equal(t, chmath.I64(9_000_000_000), upd.OraclePriceTWAP)
}

func TestSettleFundingPayments_LongPaysShortReceives(t *testing.T) {
	markets := fundedMarkets(t, nil)
	m := &markets.Markets[0]

	longUser := &state.User{Collateral: chmath.U64(10_000_000)}
	longs := &state.UserPositions{}
	_, err := state.ApplyTrade(m, &longs.Positions[0], state.PositionDirectionLong, unit, 0)
	require.NoError(t, err)

	shortUser := &state.User{Collateral: chmath.U64(10_000_000)}
	shorts := &state.UserPositions{}
	_, err = state.ApplyTrade(m, &shorts.Positions[0], state.PositionDirectionShort, unit, 0)
	require.NoError(t, err)

	_, err = m.AMM.UpdateFundingRate(chmath.I64(9_000_000_000), chmath.OneHour)
	require.NoError(t, err)

	settled, err := state.SettleFundingPayments(longUser, longs, markets)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, chmath.I64(-4_166), settled[0].Payment)
	assert.Equal(t, chmath.U64(9_995_834), longUser.Collateral)
	assert.Equal(t, m.AMM.CumulativeFundingRateLong, longs.Positions[0].LastCumulativeFundingRate)

	settled, err = state.SettleFundingPayments(shortUser, shorts, markets)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, chmath.I64(4_166), settled[0].Payment)
	assert.Equal(t, chmath.U64(10_004_166), shortUser.Collateral)
}

func TestSettleFundingPayments_Idempotent(t *testing.T) {
	markets := fundedMarkets(t, nil)
	m := &markets.Markets[0]
	user := &state.User{Collateral: chmath.U64(10_000_000)}
	positions := &state.UserPositions{}
	_, err := state.ApplyTrade(m, &positions.Positions[0], state.PositionDirectionLong, unit, 0)
	require.NoError(t, err)
	_, err = m.AMM.UpdateFundingRate(chmath.I64(9_000_000_000), chmath.OneHour)
	require.NoError(t, err)

	first, err := state.SettleFundingPayments(user, positions, markets)
	require.NoError(t, err)
	require.Len(t, first, 1)
	collateral := user.Collateral

	second, err := state.SettleFundingPayments(user, positions, markets)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, collateral, user.Collateral)
}

func TestSettleFundingPayments_FloorsCollateral(t *testing.T) {
	markets := fundedMarkets(t, nil)
	m := &markets.Markets[0]
	user := &state.User{Collateral: chmath.U64(1_000)}
	positions := &state.UserPositions{}
	_, err := state.ApplyTrade(m, &positions.Positions[0], state.PositionDirectionLong, unit, 0)
	require.NoError(t, err)
	_, err = m.AMM.UpdateFundingRate(chmath.I64(9_000_000_000), chmath.OneHour)
	require.NoError(t, err)

	_, err = state.SettleFundingPayments(user, positions, markets)
	require.NoError(t, err)
	assert.True(t, user.Collateral.IsZero())
}

func TestSettlePositionFunding_FlatSlot(t *testing.T) {
	markets := fundedMarkets(t, nil)
	pos := &state.MarketPosition{MarketIndex: 0, OpenOrders: 1}

	_, ok, err := state.SettlePositionFunding(&markets.Markets[0], pos)
	require.NoError(t, err)
	assert.False(t, ok)
}
