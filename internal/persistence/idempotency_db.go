package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"PerpClearing/internal/event"
)

// PostgresIdempotencyChecker looks commands up in history.commands. It is
// the cold tier behind the processor's LRU.
type PostgresIdempotencyChecker struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db:      db,
		timeout: 500 * time.Millisecond,
	}
}

// IsDuplicate reports whether a command with this operation and key was
// already logged.
func (pic *PostgresIdempotencyChecker) IsDuplicate(op event.Operation, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pic.timeout)
	defer cancel()

	query := `
        SELECT 1
        FROM history.commands
        WHERE operation = $1 AND idempotency_key = $2
        LIMIT 1
    `

	var exists int
	err := pic.db.QueryRowContext(ctx, query, string(op), idempotencyKey).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentKeys returns the idempotency keys of the last limit commands,
// grouped by operation, for warming the LRU on start.
func (pic *PostgresIdempotencyChecker) RecentKeys(ctx context.Context, limit int) (map[event.Operation][]string, error) {
	rows, err := pic.db.QueryContext(ctx, `
        SELECT operation, idempotency_key
        FROM history.commands
        ORDER BY sequence DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[event.Operation][]string)
	for rows.Next() {
		var op, key string
		if err := rows.Scan(&op, &key); err != nil {
			return nil, err
		}
		keys[event.Operation(op)] = append(keys[event.Operation(op)], key)
	}
	return keys, rows.Err()
}
