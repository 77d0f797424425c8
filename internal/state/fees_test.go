package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

func TestResolveDiscountTier(t *testing.T) {
	fs := state.DefaultFeeStructure()
	authority := testHandle(0x05)
	mint := testHandle(0x08)

	tier, err := state.ResolveDiscountTier(fs, mint, authority, nil)
	require.NoError(t, err)
	assert.Equal(t, state.OrderDiscountTierNone, tier)

	tests := []struct {
		amount uint64
		want   state.OrderDiscountTier
	}{
		{1_000_000_000, state.OrderDiscountTierFirst},
		{100_000_000, state.OrderDiscountTierSecond},
		{99_999_999, state.OrderDiscountTierThird},
		{1_000_000, state.OrderDiscountTierFourth},
		{999_999, state.OrderDiscountTierNone},
	}
	for _, tc := range tests {
		tier, err := state.ResolveDiscountTier(fs, mint, authority, &state.TokenAccount{Owner: authority, Mint: mint, Amount: tc.amount})
		require.NoError(t, err)
		assert.Equal(t, tc.want, tier, "amount %d", tc.amount)
	}

	_, err = state.ResolveDiscountTier(fs, mint, authority, &state.TokenAccount{Owner: authority, Mint: testHandle(0x09), Amount: 1})
	require.ErrorIs(t, err, state.ErrInvalidDiscountToken)
}

func TestCalculateFee(t *testing.T) {
	fs := state.DefaultFeeStructure()
	filler := state.DefaultOrderState(state.Handle{}).OrderFillerRewardStructure
	quote := chmath.U64(100 * chmath.QuotePrecision)

	b, err := state.CalculateFee(quote, fs, state.OrderDiscountTierSecond, true, &filler, 10, 11)
	require.NoError(t, err)
	assert.Equal(t, chmath.U64(15_000), b.TokenDiscount)
	assert.Equal(t, chmath.U64(5_000), b.RefereeDiscount)
	assert.Equal(t, chmath.U64(5_000), b.ReferrerReward)
	assert.Equal(t, chmath.U64(80_000), b.UserFee)
	assert.Equal(t, chmath.U64(10_000), b.FillerReward, "rested orders earn the time-based floor")

	dist, err := b.Distributions()
	require.NoError(t, err)
	assert.Equal(t, chmath.U64(15_000), dist)

	b, err = state.CalculateFee(quote, fs, state.OrderDiscountTierNone, false, &filler, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, chmath.U64(100_000), b.UserFee)
	assert.Equal(t, chmath.U64(10_000), b.FillerReward)
	assert.True(t, b.ReferrerReward.IsZero())

	b, err = state.CalculateFee(quote, fs, state.OrderDiscountTierNone, false, nil, 0, 0)
	require.NoError(t, err)
	assert.True(t, b.FillerReward.IsZero())
}
