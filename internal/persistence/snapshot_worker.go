package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"PerpClearing/internal/core"
	"PerpClearing/internal/observability"
)

// Snapshotter is the processor side of snapshotting.
type Snapshotter interface {
	Snapshot(now time.Time) (core.Snapshot, []byte, error)
	LastSequence() int64
}

// SnapshotWorker takes a snapshot every interval commands.
type SnapshotWorker struct {
	source   Snapshotter
	store    *SnapshotManager
	interval int64
	every    time.Duration
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewSnapshotWorker(source Snapshotter, store *SnapshotManager, interval int64, logger zerolog.Logger, metrics *observability.Metrics) *SnapshotWorker {
	if interval <= 0 {
		interval = 100_000
	}
	return &SnapshotWorker{
		source:   source,
		store:    store,
		interval: interval,
		every:    10 * time.Second,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run checks the sequence every 10s and snapshots once interval commands
// have been applied since the last one.
func (sw *SnapshotWorker) Run(ctx context.Context) error {
	last := sw.source.LastSequence()
	ticker := time.NewTicker(sw.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current := sw.source.LastSequence()
			if current-last < sw.interval {
				continue
			}
			seq, err := sw.Take(ctx)
			if err != nil {
				sw.logger.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			last = seq
			sw.logger.Info().Int64("sequence", seq).Msg("periodic snapshot")
		}
	}
}

// Take captures and stores one snapshot, returning its sequence.
func (sw *SnapshotWorker) Take(ctx context.Context) (int64, error) {
	start := time.Now()

	snap, data, err := sw.source.Snapshot(start.UTC())
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := sw.store.SaveSnapshot(ctx, snap, data); err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}

	if sw.metrics != nil {
		sw.metrics.SnapshotTaken.Inc()
		sw.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		sw.metrics.SnapshotSizeBytes.Set(float64(len(data)))
		sw.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	return snap.Sequence, nil
}
