package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/core"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/observability"
	"PerpClearing/internal/state"
)

var ErrNotFound = errorsmod.Register(chmath.Codespace, 90, "not found")

// MaxPageSize bounds a history page.
const MaxPageSize = 500

// StateReader gives consistent read access to the engine state.
// core.Processor implements it.
type StateReader interface {
	Read(fn func(sequence int64, s *core.State))
}

// QueryService serves reads from the live engine state and, for history
// that has rotated out of the in-memory logs, from the Postgres mirror.
// All responses include as_of_sequence.
type QueryService struct {
	state   StateReader
	db      *sql.DB // may be nil
	metrics *observability.Metrics
}

func NewQueryService(reader StateReader, db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{state: reader, db: db, metrics: metrics}
}

// GetMarket returns an initialized market and its mark price.
func (qs *QueryService) GetMarket(index uint64) (resp *MarketResponse, err error) {
	defer qs.observe("market", time.Now(), &err)

	qs.state.Read(func(seq int64, s *core.State) {
		var market *state.Market
		market, err = s.Markets.GetInitialized(index)
		if err != nil {
			return
		}
		var mark chmath.Uint128
		mark, err = market.AMM.MarkPrice()
		if err != nil {
			return
		}
		resp = &MarketResponse{Market: *market, MarkPrice: mark, AsOfSequence: seq}
	})
	return resp, err
}

// GetUser returns a user's account, open positions with their value, open
// orders and margin summary.
func (qs *QueryService) GetUser(authority state.Handle) (resp *UserResponse, err error) {
	defer qs.observe("user", time.Now(), &err)

	qs.state.Read(func(seq int64, s *core.State) {
		acct, ok := s.Accounts[authority]
		if !ok {
			err = errorsmod.Wrapf(state.ErrUserNotFound, "authority %s", authority)
			return
		}

		out := &UserResponse{
			User:         acct.User,
			Positions:    []PositionResponse{},
			Orders:       []state.Order{},
			AsOfSequence: seq,
		}

		for i := range acct.Positions.Positions {
			pos := &acct.Positions.Positions[i]
			if !pos.IsOpenPosition() {
				continue
			}
			var market *state.Market
			if market, err = s.Markets.GetInitialized(pos.MarketIndex); err != nil {
				return
			}
			value, pnl, perr := state.PositionValue(market, pos)
			if perr != nil {
				err = perr
				return
			}
			out.Positions = append(out.Positions, PositionResponse{
				MarketPosition: *pos,
				BaseAssetValue: value,
				UnrealizedPnL:  pnl,
			})
		}

		for i := range acct.Orders.Orders {
			if o := acct.Orders.Orders[i]; o.IsOpen() {
				out.Orders = append(out.Orders, o)
			}
		}

		summary, serr := state.CalculateMarginSummary(&acct.User, &acct.Positions, &s.Markets)
		if serr != nil {
			err = serr
			return
		}
		out.Margin = MarginResponse{
			TotalCollateral:        summary.TotalCollateral,
			UnrealizedPnL:          summary.UnrealizedPnL,
			BaseAssetValue:         summary.BaseAssetValue,
			InitialRequirement:     summary.InitialRequirement,
			PartialRequirement:     summary.PartialRequirement,
			MaintenanceRequirement: summary.MaintenanceRequirement,
			MarginRatio:            summary.MarginRatio,
			Status:                 summary.Status().String(),
		}
		resp = out
	})
	return resp, err
}

// GetHistory returns up to limit records of one log with id >= fromID.
// Records still held in memory are served from there; older ones come from
// the Postgres mirror when one is configured.
func (qs *QueryService) GetHistory(ctx context.Context, kind history.Kind, fromID uint64, limit int) (resp *HistoryResponse, err error) {
	defer qs.observe("history", time.Now(), &err)

	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	var (
		records []history.Record
		oldest  uint64
		seq     int64
	)
	qs.state.Read(func(sequence int64, s *core.State) {
		seq = sequence
		var head []history.Record
		if head, err = s.Logs.Range(kind, 0, 1); err != nil || len(head) == 0 {
			return
		}
		oldest = head[0].ID()
		records, err = s.Logs.Range(kind, fromID, limit)
	})
	if err != nil {
		return nil, err
	}

	if qs.db != nil && fromID < oldest {
		return qs.historyFromPostgres(ctx, kind, fromID, limit, seq)
	}

	resp = &HistoryResponse{
		Log:          kind,
		Source:       "memory",
		Records:      make([]json.RawMessage, 0, len(records)),
		NextID:       fromID,
		AsOfSequence: seq,
	}
	for _, r := range records {
		data, merr := json.Marshal(r)
		if merr != nil {
			return nil, merr
		}
		resp.Records = append(resp.Records, data)
		resp.NextID = r.ID() + 1
	}
	return resp, nil
}

func (qs *QueryService) historyFromPostgres(ctx context.Context, kind history.Kind, fromID uint64, limit int, seq int64) (*HistoryResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT record_id, record
		FROM history.records
		WHERE log = $1 AND record_id >= $2
		ORDER BY record_id
		LIMIT $3
	`, string(kind), int64(fromID), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	resp := &HistoryResponse{
		Log:          kind,
		Source:       "postgres",
		Records:      []json.RawMessage{},
		NextID:       fromID,
		AsOfSequence: seq,
	}
	for rows.Next() {
		var (
			id     int64
			record []byte
		)
		if err := rows.Scan(&id, &record); err != nil {
			return nil, err
		}
		resp.Records = append(resp.Records, record)
		resp.NextID = uint64(id) + 1
	}
	return resp, rows.Err()
}

// GetCommand returns a logged command by sequence.
func (qs *QueryService) GetCommand(ctx context.Context, sequence int64) (resp *CommandResponse, err error) {
	defer qs.observe("command", time.Now(), &err)

	if qs.db == nil {
		return nil, errorsmod.Wrap(ErrNotFound, "command log not configured")
	}

	var c CommandResponse
	var payload, stateHash, prevHash []byte
	err = qs.db.QueryRowContext(ctx, `
		SELECT sequence, operation, idempotency_key, ts, payload, state_hash, prev_hash
		FROM history.commands
		WHERE sequence = $1
	`, sequence).Scan(&c.Sequence, &c.Operation, &c.IdempotencyKey, &c.TS, &payload, &stateHash, &prevHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errorsmod.Wrapf(ErrNotFound, "command %d", sequence)
	}
	if err != nil {
		return nil, err
	}

	c.Payload = payload
	c.StateHash = hex.EncodeToString(stateHash)
	c.PrevHash = hex.EncodeToString(prevHash)
	return &c, nil
}

func (qs *QueryService) observe(endpoint string, start time.Time, err *error) {
	if qs.metrics == nil {
		return
	}
	status := "ok"
	if *err != nil {
		status = "error"
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
