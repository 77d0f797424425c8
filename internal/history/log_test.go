package history_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpClearing/internal/history"
)

func appendDeposits(t *testing.T, log *history.Log[history.DepositRecord], n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := log.NextRecordID()
		require.NoError(t, log.Append(history.DepositRecord{RecordID: id, TS: int64(id), Amount: id}))
	}
}

func TestLog_Empty(t *testing.T) {
	var log history.Log[history.DepositRecord]
	assert.Equal(t, uint64(1), log.NextRecordID())
	assert.Equal(t, 0, log.Len())
	_, ok := log.Latest()
	assert.False(t, ok)
	assert.Empty(t, log.Range(0, 10))
}

func TestLog_AppendSequential(t *testing.T) {
	var log history.Log[history.DepositRecord]
	appendDeposits(t, &log, 3)

	assert.Equal(t, uint64(3), log.Head)
	assert.Equal(t, uint64(4), log.NextRecordID())
	latest, ok := log.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(3), latest.RecordID)
}

func TestLog_RejectsWrongID(t *testing.T) {
	var log history.Log[history.DepositRecord]
	appendDeposits(t, &log, 1)

	err := log.Append(history.DepositRecord{RecordID: 5})
	require.ErrorIs(t, err, history.ErrRecordOutOfOrder)
	assert.Equal(t, uint64(1), log.Head)
}

func TestLog_Wraparound(t *testing.T) {
	var log history.Log[history.DepositRecord]
	appendDeposits(t, &log, history.Capacity+1)

	assert.Equal(t, uint64(history.Capacity+1), log.Records[0].RecordID, "slot 0 is overwritten")
	assert.Equal(t, uint64(2), log.Records[1].RecordID, "oldest surviving record")
	assert.Equal(t, uint64(1), log.Head)
	assert.Equal(t, uint64(history.Capacity+2), log.NextRecordID())
	assert.Equal(t, history.Capacity, log.Len())

	got := log.Range(0, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{2, 3, 4}, []uint64{got[0].RecordID, got[1].RecordID, got[2].RecordID})

	tail := log.Range(history.Capacity, 0)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(history.Capacity+1), tail[1].RecordID)
}

func TestStaged_CommitOnlyOnRequest(t *testing.T) {
	var log history.Log[history.TradeRecord]
	staged := log.Stage()

	require.NoError(t, staged.Add(history.TradeRecord{RecordID: staged.NextRecordID()}))
	require.NoError(t, staged.Add(history.TradeRecord{RecordID: staged.NextRecordID()}))
	require.ErrorIs(t, staged.Add(history.TradeRecord{RecordID: 1}), history.ErrRecordOutOfOrder)
	assert.Equal(t, 0, log.Len(), "nothing is written before commit")

	entries, err := staged.Commit()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, history.KindTrade, entries[1].Kind)
	assert.Equal(t, uint64(2), entries[1].RecordID)
	assert.Equal(t, uint64(3), log.NextRecordID())
}

func TestLogs_Range(t *testing.T) {
	var logs history.Logs
	appendDeposits(t, &logs.Deposits, 5)

	recs, err := logs.Range(history.KindDeposit, 4, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(4), recs[0].ID())

	_, err = logs.Range("nope", 0, 1)
	require.ErrorIs(t, err, history.ErrUnknownLog)

	k, err := history.ParseKind("funding_rate")
	require.NoError(t, err)
	assert.Equal(t, history.KindFundingRate, k)
	_, err = history.ParseKind("x")
	require.ErrorIs(t, err, history.ErrUnknownLog)
}

func TestOrderLog_NextOrderID(t *testing.T) {
	var log history.OrderLog
	assert.Equal(t, uint64(1), log.NextOrderID())
	log.LastOrderID = 41
	assert.Equal(t, uint64(42), log.NextOrderID())
}
