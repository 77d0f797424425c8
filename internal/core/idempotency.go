package core

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"PerpClearing/internal/event"
	"PerpClearing/internal/observability"
)

// IdempotencyChecker implements two-tier deduplication
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *lru.Cache

	// Tier 2: Postgres (injected via interface)
	dbChecker DBIdempotencyChecker

	logger  zerolog.Logger
	metrics *observability.Metrics
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(op event.Operation, idempotencyKey string) (bool, error)
}

// NewIdempotencyChecker builds a checker whose LRU holds capacity keys.
// dbChecker and metrics may be nil.
func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, logger zerolog.Logger, metrics *observability.Metrics) (*IdempotencyChecker, error) {
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &IdempotencyChecker{
		lru:       cache,
		dbChecker: dbChecker,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

func compositeKey(op event.Operation, idempotencyKey string) string {
	return string(op) + ":" + idempotencyKey
}

// IsDuplicate checks if a command has been processed (two-tier lookup)
func (ic *IdempotencyChecker) IsDuplicate(op event.Operation, idempotencyKey string) bool {
	key := compositeKey(op, idempotencyKey)

	// Tier 1: LRU check (hot path)
	if ic.lru.Contains(key) {
		ic.recordDuplicate(op, "lru")
		return true
	}

	// Tier 2: Postgres check (cold path)
	if ic.dbChecker == nil {
		return false
	}
	isDup, err := ic.dbChecker.IsDuplicate(op, idempotencyKey)
	if err != nil {
		// A DB outage must not block processing: treat as new.
		ic.logger.Warn().Err(err).Str("operation", string(op)).Msg("idempotency lookup failed")
		if ic.metrics != nil {
			ic.metrics.PersistErrors.WithLabelValues("idempotency_lookup").Inc()
		}
		return false
	}
	if isDup {
		ic.recordDuplicate(op, "postgres")
		ic.lru.Add(key, struct{}{})
		return true
	}
	return false
}

// MarkProcessed adds key to the LRU after successful processing
func (ic *IdempotencyChecker) MarkProcessed(op event.Operation, idempotencyKey string) {
	ic.lru.Add(compositeKey(op, idempotencyKey), struct{}{})
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Len()))
	}
}

// Warm loads recently processed keys, e.g. read back from Postgres on restart.
func (ic *IdempotencyChecker) Warm(op event.Operation, keys []string) {
	for _, k := range keys {
		ic.lru.Add(compositeKey(op, k), struct{}{})
	}
}

// Size returns the current number of LRU entries.
func (ic *IdempotencyChecker) Size() int {
	return ic.lru.Len()
}

func (ic *IdempotencyChecker) recordDuplicate(op event.Operation, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(string(op), tier).Inc()
	}
}
