package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"PerpClearing/internal/core"
	"PerpClearing/internal/event"
)

// CommandLog is the read side recovery needs. SnapshotManager implements it.
type CommandLog interface {
	LoadLatestSnapshot(ctx context.Context) (*core.Snapshot, error)
	LoadCommandsFrom(ctx context.Context, fromSequence int64, limit int) ([]CommandRow, error)
}

// Replayer is the processor side of recovery.
type Replayer interface {
	Restore(snap core.Snapshot)
	Replay(cmd event.Command, payload []byte, want [32]byte) (*event.Envelope, error)
}

// RecoveryResult reports what Recover did.
type RecoveryResult struct {
	SnapshotSequence int64 // 0 on a cold start
	Replayed         int64
	LastSequence     int64
}

const replayBatchSize = 1000

// Recover restores the latest verified snapshot and replays every logged
// command after it. Each replayed command must reproduce its logged state
// hash; a mismatch or a gap in the log stops recovery.
func Recover(ctx context.Context, log CommandLog, r Replayer, logger zerolog.Logger) (RecoveryResult, error) {
	var res RecoveryResult

	snap, err := log.LoadLatestSnapshot(ctx)
	if err != nil {
		return res, err
	}
	if snap != nil {
		r.Restore(*snap)
		res.SnapshotSequence = snap.Sequence
		logger.Info().Int64("sequence", snap.Sequence).Msg("loaded snapshot")
	} else {
		logger.Info().Msg("no snapshot found, cold start from sequence 0")
	}
	res.LastSequence = res.SnapshotSequence

	next := res.SnapshotSequence + 1
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rows, err := log.LoadCommandsFrom(ctx, next, replayBatchSize)
		if err != nil {
			return res, fmt.Errorf("load commands from seq %d: %w", next, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if row.Sequence != next {
				return res, fmt.Errorf("command log gap: want sequence %d, got %d", next, row.Sequence)
			}

			cmd, ok := event.New(event.Operation(row.Operation))
			if !ok {
				return res, fmt.Errorf("sequence %d: unknown operation %q", row.Sequence, row.Operation)
			}
			if err := json.Unmarshal(row.Payload, cmd); err != nil {
				return res, fmt.Errorf("sequence %d: decode %s: %w", row.Sequence, row.Operation, err)
			}

			var want [32]byte
			copy(want[:], row.StateHash)
			if _, err := r.Replay(cmd, row.Payload, want); err != nil {
				return res, fmt.Errorf("replay sequence %d: %w", row.Sequence, err)
			}

			res.Replayed++
			res.LastSequence = row.Sequence
			next++
		}
	}

	if res.Replayed > 0 {
		logger.Info().Int64("replayed", res.Replayed).Int64("sequence", res.LastSequence).Msg("command log replayed")
	}
	return res, nil
}
