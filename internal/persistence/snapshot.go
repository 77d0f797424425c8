package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"PerpClearing/internal/core"
)

// SnapshotManager stores engine snapshots and reads the command log back
// for recovery.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists an encoded snapshot, as returned by
// core.Processor.Snapshot. It stays unverified until the command it was
// taken at is durable; see VerifySnapshots.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap core.Snapshot, data []byte) error {
	_, err := sm.db.ExecContext(ctx, `
		INSERT INTO history.snapshots
			(sequence, state_hash, state, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (sequence) DO UPDATE SET state = $3, state_hash = $2, size_bytes = $4
	`, snap.Sequence, snap.StateHash[:], data, len(data), snap.TakenAt)
	return err
}

// VerifySnapshots marks every snapshot whose hash matches the logged
// command at its sequence as verified. It returns the number marked.
func (sm *SnapshotManager) VerifySnapshots(ctx context.Context) (int64, error) {
	res, err := sm.db.ExecContext(ctx, `
		UPDATE history.snapshots s
		SET verified = TRUE
		FROM history.commands c
		WHERE c.sequence = s.sequence
		  AND c.state_hash = s.state_hash
		  AND NOT s.verified
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start. The genesis state (sequence 0) needs no snapshot.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.Snapshot, error) {
	if _, err := sm.VerifySnapshots(ctx); err != nil {
		return nil, fmt.Errorf("verify snapshots: %w", err)
	}

	row := sm.db.QueryRowContext(ctx, `
		SELECT state FROM history.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap core.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LoadCommandsFrom loads up to limit logged commands starting at
// fromSequence, in sequence order.
func (sm *SnapshotManager) LoadCommandsFrom(ctx context.Context, fromSequence int64, limit int) ([]CommandRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, operation, idempotency_key, ts, payload, state_hash, prev_hash
		FROM history.commands
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []CommandRow
	for rows.Next() {
		var c CommandRow
		if err := rows.Scan(
			&c.Sequence, &c.Operation, &c.IdempotencyKey, &c.TS,
			&c.Payload, &c.StateHash, &c.PrevHash,
		); err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}
	return commands, rows.Err()
}

// GetLatestSequence returns the highest sequence in the command log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM history.commands
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
