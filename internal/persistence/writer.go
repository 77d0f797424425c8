package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"PerpClearing/internal/event"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CommandRow represents a row in history.commands.
type CommandRow struct {
	Sequence       int64
	Operation      string
	IdempotencyKey string
	TS             int64
	Payload        []byte
	StateHash      []byte
	PrevHash       []byte
}

// RecordRow represents a row in history.records.
type RecordRow struct {
	Log      string
	RecordID int64
	Sequence int64
	TS       int64
	Record   []byte // JSON-encoded history record
}

// RowsFromEnvelope converts an applied command into its command row and one
// record row per appended history record.
func RowsFromEnvelope(env *event.Envelope) (CommandRow, []RecordRow, error) {
	cmd := CommandRow{
		Sequence:       env.Sequence,
		Operation:      string(env.Operation),
		IdempotencyKey: env.IdempotencyKey,
		TS:             env.Timestamp,
		Payload:        env.Payload,
		StateHash:      append([]byte(nil), env.StateHash[:]...),
		PrevHash:       append([]byte(nil), env.PrevHash[:]...),
	}

	records := make([]RecordRow, 0, len(env.Entries))
	for _, entry := range env.Entries {
		data, err := json.Marshal(entry.Record)
		if err != nil {
			return cmd, nil, fmt.Errorf("marshal %s record %d: %w", entry.Kind, entry.RecordID, err)
		}
		records = append(records, RecordRow{
			Log:      string(entry.Kind),
			RecordID: int64(entry.RecordID),
			Sequence: env.Sequence,
			TS:       entry.TS,
			Record:   data,
		})
	}
	return cmd, records, nil
}

// HistoryWriter writes commands and history records to Postgres using
// multi-row INSERTs.
type HistoryWriter struct{}

func NewHistoryWriter() *HistoryWriter {
	return &HistoryWriter{}
}

// WriteCommandBatch writes a batch of commands to history.commands.
func (w *HistoryWriter) WriteCommandBatch(ctx context.Context, ex Execer, rows []CommandRow) error {
	if len(rows) == 0 {
		return nil
	}

	args := make([]any, 0, len(rows)*7)
	for _, r := range rows {
		args = append(args,
			r.Sequence, r.Operation, r.IdempotencyKey, r.TS,
			r.Payload, r.StateHash, r.PrevHash,
		)
	}

	query := InsertQuery("history.commands",
		[]string{"sequence", "operation", "idempotency_key", "ts", "payload", "state_hash", "prev_hash"},
		len(rows)) + " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteRecordBatch writes a batch of history records to history.records.
func (w *HistoryWriter) WriteRecordBatch(ctx context.Context, ex Execer, rows []RecordRow) error {
	if len(rows) == 0 {
		return nil
	}

	args := make([]any, 0, len(rows)*5)
	for _, r := range rows {
		args = append(args, r.Log, r.RecordID, r.Sequence, r.TS, r.Record)
	}

	query := InsertQuery("history.records",
		[]string{"log", "record_id", "sequence", "ts", "record"},
		len(rows)) + " ON CONFLICT (log, record_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// InsertQuery builds "INSERT INTO table (cols) VALUES ($1, ...), (...)" for
// n rows.
func InsertQuery(table string, cols []string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	placeholder := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", placeholder)
			placeholder++
		}
		b.WriteByte(')')
	}
	return b.String()
}
