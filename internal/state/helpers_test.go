package state_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

// unit is one whole base asset in reserve precision.
var unit = chmath.U64(chmath.AMMReservePrecision)

func units(n uint64) chmath.Uint128 {
	return chmath.U64(n * chmath.AMMReservePrecision)
}

func testHandle(b byte) state.Handle {
	var h state.Handle
	h[0] = b
	h[31] = b
	return h
}

func oracleAt(price int64) state.OraclePriceData {
	return state.OraclePriceData{
		Price:             chmath.I64(price),
		Confidence:        chmath.U64(1),
		HasSufficientData: true,
	}
}

func defaultMarketParams(index uint64) state.MarketParams {
	return state.MarketParams{
		MarketIndex:            index,
		BaseAssetReserve:       units(1_000),
		QuoteAssetReserve:      units(1_000),
		FundingPeriod:          chmath.OneHour,
		PegMultiplier:          chmath.U64(chmath.PegPrecision),
		Oracle:                 testHandle(0xAA),
		OracleSource:           state.OracleSourcePyth,
		MarginRatioInitial:     2000,
		MarginRatioPartial:     625,
		MarginRatioMaintenance: 500,
	}
}

// newMarkets returns a registry with market 0 priced at $1.
func newMarkets(t *testing.T) *state.Markets {
	t.Helper()
	markets := &state.Markets{}
	_, err := markets.Initialize(defaultMarketParams(0), oracleAt(int64(chmath.MarkPricePrecision)), 0)
	require.NoError(t, err)
	return markets
}

func requireMarketBalanced(t *testing.T, m *state.Market) {
	t.Helper()
	sum, err := m.BaseAssetAmountLong.Add(m.BaseAssetAmountShort)
	require.NoError(t, err)
	require.Equal(t, sum, m.BaseAssetAmount, "net must equal long + short")
}
