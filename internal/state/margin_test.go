package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

func TestValidateMarginRatios(t *testing.T) {
	tests := []struct {
		initial, partial, maintenance uint64
		ok                            bool
	}{
		{2000, 625, 500, true},
		{200, 200, 200, true},
		{10_000, 10_000, 10_000, true},
		{199, 199, 199, false},
		{10_001, 625, 500, false},
		{500, 625, 500, false},
		{2000, 625, 700, false},
		{2000, 625, 100, false},
	}
	for _, tc := range tests {
		err := state.ValidateMarginRatios(tc.initial, tc.partial, tc.maintenance)
		if tc.ok {
			assert.NoError(t, err, "%d/%d/%d", tc.initial, tc.partial, tc.maintenance)
		} else {
			assert.ErrorIs(t, err, state.ErrInvalidMarginRatio, "%d/%d/%d", tc.initial, tc.partial, tc.maintenance)
		}
	}
}

func TestCalculateMarginSummary_NoExposure(t *testing.T) {
	markets := newMarkets(t)
	user := &state.User{Collateral: chmath.U64(5_000_000)}

	s, err := state.CalculateMarginSummary(user, &state.UserPositions{}, markets)
	require.NoError(t, err)
	assert.Equal(t, chmath.MaxUint128, s.MarginRatio)
	assert.Equal(t, state.MarginStatusHealthy, s.Status())
	assert.Equal(t, state.LiquidationTypeNone, state.DetermineLiquidationType(s))
}

func TestCalculateMarginSummary_Tiers(t *testing.T) {
	markets := newMarkets(t)
	positions := &state.UserPositions{}
	_, err := state.ApplyTrade(&markets.Markets[0], &positions.Positions[0], state.PositionDirectionLong, unit, 0)
	require.NoError(t, err)

	// one unit is worth 1_001_001 after the buy; tiers are 20%, 6.25% and 5%
	tests := []struct {
		collateral uint64
		status     state.MarginStatus
		liq        state.LiquidationType
	}{
		{10_000_000, state.MarginStatusHealthy, state.LiquidationTypeNone},
		{100_000, state.MarginStatusBelowInitial, state.LiquidationTypeNone},
		{55_000, state.MarginStatusPartiallyLiquidatable, state.LiquidationTypePartial},
		{0, state.MarginStatusFullyLiquidatable, state.LiquidationTypeFull},
	}
	for _, tc := range tests {
		user := &state.User{Collateral: chmath.U64(tc.collateral)}
		s, err := state.CalculateMarginSummary(user, positions, markets)
		require.NoError(t, err)

		assert.Equal(t, chmath.U64(1_001_001), s.BaseAssetValue)
		assert.Equal(t, tc.status, s.Status(), "collateral %d", tc.collateral)
		assert.Equal(t, tc.liq, state.DetermineLiquidationType(s), "collateral %d", tc.collateral)
	}
}

func TestLiquidationParameters(t *testing.T) {
	gc, err := state.NewGlobalConfig(validConfigParams())
	require.NoError(t, err)

	partial := gc.LiquidationParameters(state.LiquidationTypePartial)
	require.NoError(t, partial.Validate())
	fee, err := state.CalculateLiquidationFee(chmath.U64(1_000_000), partial)
	require.NoError(t, err)
	assert.Equal(t, chmath.U64(25_000), fee.Fee)
	assert.Equal(t, chmath.U64(12_500), fee.FeeToLiquidator)
	assert.Equal(t, chmath.U64(12_500), fee.FeeToInsurance)

	closeAmount, err := partial.CloseAmount(chmath.I64(-400))
	require.NoError(t, err)
	assert.Equal(t, chmath.U64(100), closeAmount)

	full := gc.LiquidationParameters(state.LiquidationTypeFull)
	require.NoError(t, full.Validate())
	fee, err = state.CalculateLiquidationFee(chmath.U64(1_000_000), full)
	require.NoError(t, err)
	assert.Equal(t, chmath.U64(1_000_000), fee.Fee)
	assert.Equal(t, chmath.U64(50_000), fee.FeeToLiquidator)
	assert.Equal(t, chmath.U64(950_000), fee.FeeToInsurance)

	closeAmount, err = full.CloseAmount(chmath.I64(-400))
	require.NoError(t, err)
	assert.Equal(t, chmath.U64(400), closeAmount)

	bad := state.LiquidationParameters{CloseNumerator: 2, CloseDenominator: 1, PenaltyDenominator: 1, LiquidatorShareDenominator: 1}
	require.ErrorIs(t, bad.Validate(), state.ErrInvalidAmount)
}
