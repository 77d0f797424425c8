package query

import (
	"encoding/json"

	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

// MarketResponse is a market with its current mark price.
type MarketResponse struct {
	state.Market
	MarkPrice    chmath.Uint128 `json:"mark_price"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

// PositionResponse is one open slot valued at its AMM close-out price.
type PositionResponse struct {
	state.MarketPosition
	BaseAssetValue chmath.Uint128 `json:"base_asset_value"`
	UnrealizedPnL  chmath.Int128  `json:"unrealized_pnl"`
}

// MarginResponse is the account-level margin picture.
type MarginResponse struct {
	TotalCollateral        chmath.Uint128 `json:"total_collateral"`
	UnrealizedPnL          chmath.Int128  `json:"unrealized_pnl"`
	BaseAssetValue         chmath.Uint128 `json:"base_asset_value"`
	InitialRequirement     chmath.Uint128 `json:"initial_requirement"`
	PartialRequirement     chmath.Uint128 `json:"partial_requirement"`
	MaintenanceRequirement chmath.Uint128 `json:"maintenance_requirement"`
	MarginRatio            chmath.Uint128 `json:"margin_ratio"`
	Status                 string         `json:"status"`
}

// UserResponse is a user with its open positions, open orders and margin.
type UserResponse struct {
	User         state.User         `json:"user"`
	Positions    []PositionResponse `json:"positions"`
	Orders       []state.Order      `json:"orders"`
	Margin       MarginResponse     `json:"margin"`
	AsOfSequence int64              `json:"as_of_sequence"`
}

// HistoryResponse is a page of one history log, oldest first.
type HistoryResponse struct {
	Log          history.Kind      `json:"log"`
	Source       string            `json:"source"` // "memory" or "postgres"
	Records      []json.RawMessage `json:"records"`
	NextID       uint64            `json:"next_id"` // pass as from for the next page
	AsOfSequence int64             `json:"as_of_sequence"`
}

// CommandResponse is one logged command.
type CommandResponse struct {
	Sequence       int64           `json:"sequence"`
	Operation      string          `json:"operation"`
	IdempotencyKey string          `json:"idempotency_key"`
	TS             int64           `json:"ts"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
}
