package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the clearing house.
type Metrics struct {
	// --- Engine ---
	OperationsApplied  *prometheus.CounterVec
	OperationsRejected *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	RecordsAppended    *prometheus.CounterVec
	Liquidations       *prometheus.CounterVec
	FundingPayments    *prometheus.CounterVec
	OpenInterest       *prometheus.GaugeVec
	Sequence           prometheus.Gauge

	// --- Channel & Backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	PublishDrops       prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	CommandSequenceGap    *prometheus.CounterVec
	CommandOutOfOrder     *prometheus.CounterVec

	// --- Persistence ---
	PersistCommandsWritten prometheus.Counter
	PersistRecordsWritten  prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. Tests pass a
// fresh prometheus.NewRegistry(); the server passes the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Engine
		OperationsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_operations_applied_total",
			Help: "Operations committed by the engine",
		}, []string{"operation"}),

		OperationsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_operations_rejected_total",
			Help: "Operations rejected (duplicate, ordering, error class)",
		}, []string{"operation", "reason"}),

		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ch_operation_apply_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"operation"}),

		RecordsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_history_records_appended_total",
			Help: "History records appended per log",
		}, []string{"log"}),

		Liquidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_liquidations_total",
			Help: "Liquidations by type",
		}, []string{"type"}),

		FundingPayments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_funding_payments_settled_total",
			Help: "Funding payments settled per market",
		}, []string{"market_index"}),

		OpenInterest: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ch_open_interest",
			Help: "Number of open positions per market",
		}, []string{"market_index"}),

		Sequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "ch_sequence",
			Help: "Current global sequence number",
		}),

		// Channel & Backpressure
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ch_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ch_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ch_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "ch_publish_drops_total",
			Help: "Envelopes dropped due to full publish channel",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"operation", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "ch_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		CommandSequenceGap: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_command_sequence_gap_total",
			Help: "Source sequence gaps",
		}, []string{"source"}),

		CommandOutOfOrder: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_command_out_of_order_total",
			Help: "Out-of-order rejections",
		}, []string{"source"}),

		// Persistence
		PersistCommandsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "ch_persist_commands_written_total",
			Help: "Command envelopes written to Postgres",
		}),

		PersistRecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "ch_persist_records_written_total",
			Help: "History records mirrored to Postgres",
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ch_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "ch_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "ch_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ch_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "ch_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "ch_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		// Query API
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ch_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ch_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
