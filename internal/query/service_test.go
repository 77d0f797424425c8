package query_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpClearing/internal/core"
	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/observability"
	"PerpClearing/internal/query"
	"PerpClearing/internal/state"
	"PerpClearing/internal/testutil"
)

func newService(t *testing.T) (*query.QueryService, *core.Processor) {
	t.Helper()
	p := testutil.NewProcessor(t)
	testutil.Run(t, p, testutil.BootstrapCommands(testutil.Alice, testutil.Bob)...)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return query.NewQueryService(p, nil, metrics), p
}

func deposit(who state.Handle, dollars uint64) *event.DepositCollateral {
	return &event.DepositCollateral{
		Header: testutil.Header(who, testutil.T0+1),
		Amount: dollars * chmath.QuotePrecision,
	}
}

func TestQueryService_GetMarket(t *testing.T) {
	qs, p := newService(t)

	resp, err := qs.GetMarket(0)
	require.NoError(t, err)
	assert.True(t, resp.Initialized)
	assert.Equal(t, chmath.U64(chmath.MarkPricePrecision), resp.MarkPrice)
	assert.Equal(t, p.LastSequence(), resp.AsOfSequence)

	_, err = qs.GetMarket(1)
	require.ErrorIs(t, err, state.ErrMarketIndexNotInitialized)

	_, err = qs.GetMarket(state.MaxMarkets)
	require.ErrorIs(t, err, state.ErrMarketIndexOutOfRange)
}

func TestQueryService_GetUser(t *testing.T) {
	qs, p := newService(t)

	testutil.Run(t, p,
		deposit(testutil.Alice, 1_000),
		&event.OpenPosition{
			Header:           testutil.Header(testutil.Alice, testutil.T0+2),
			Direction:        state.PositionDirectionLong,
			QuoteAssetAmount: chmath.U64(1_000 * chmath.QuotePrecision),
			Oracle:           testutil.DollarOracle,
		},
	)

	resp, err := qs.GetUser(testutil.Alice)
	require.NoError(t, err)
	assert.Equal(t, testutil.Alice, resp.User.Authority)
	assert.Equal(t, p.LastSequence(), resp.AsOfSequence)

	require.Len(t, resp.Positions, 1)
	pos := resp.Positions[0]
	assert.Equal(t, uint64(0), pos.MarketIndex)
	assert.Equal(t, 1, pos.BaseAssetAmount.Sign())
	assert.False(t, pos.BaseAssetValue.IsZero())

	assert.Empty(t, resp.Orders)
	assert.Equal(t, "Healthy", resp.Margin.Status)
	assert.False(t, resp.Margin.InitialRequirement.IsZero())

	// Bob has no exposure.
	bob, err := qs.GetUser(testutil.Bob)
	require.NoError(t, err)
	assert.Empty(t, bob.Positions)
	assert.Equal(t, chmath.MaxUint128, bob.Margin.MarginRatio)

	_, err = qs.GetUser(testutil.Handle(0x77))
	require.ErrorIs(t, err, state.ErrUserNotFound)
}

func TestQueryService_GetHistory(t *testing.T) {
	qs, p := newService(t)

	testutil.Run(t, p,
		deposit(testutil.Alice, 10),
		deposit(testutil.Bob, 20),
		deposit(testutil.Alice, 30),
	)

	ctx := context.Background()

	page, err := qs.GetHistory(ctx, history.KindDeposit, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "memory", page.Source)
	require.Len(t, page.Records, 2)

	var first history.DepositRecord
	require.NoError(t, json.Unmarshal(page.Records[0], &first))
	assert.Equal(t, testutil.Alice, first.UserAuthority)

	next, err := qs.GetHistory(ctx, history.KindDeposit, page.NextID, 2)
	require.NoError(t, err)
	require.Len(t, next.Records, 1)

	var last history.DepositRecord
	require.NoError(t, json.Unmarshal(next.Records[0], &last))
	assert.Equal(t, page.NextID, last.RecordID)
	assert.Equal(t, last.RecordID+1, next.NextID)

	empty, err := qs.GetHistory(ctx, history.KindTrade, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Records)

	_, err = qs.GetHistory(ctx, history.Kind("swaps"), 0, 10)
	require.ErrorIs(t, err, history.ErrUnknownLog)
}

func TestQueryService_GetCommandWithoutDB(t *testing.T) {
	qs, _ := newService(t)

	_, err := qs.GetCommand(context.Background(), 1)
	require.ErrorIs(t, err, query.ErrNotFound)
	assert.Equal(t, state.ClassNotFound, state.ErrorClass(err))
}
