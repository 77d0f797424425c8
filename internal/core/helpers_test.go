package core_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"PerpClearing/internal/core"
	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/state"
)

const t0 int64 = 1_000

var (
	admin = testHandle(0x01)
	alice = testHandle(0x0A)
	bob   = testHandle(0x0B)
	carol = testHandle(0x0C)
)

func testHandle(b byte) state.Handle {
	var h state.Handle
	h[0] = b
	h[31] = b
	return h
}

func hdr(signer state.Handle, ts int64) event.Header {
	return event.Header{CommandID: uuid.New(), Signer: signer, TS: ts}
}

// units is n whole base units in reserve precision.
func units(n uint64) chmath.Uint128 {
	return chmath.U64(n * chmath.AMMReservePrecision)
}

// dollars is n in quote precision.
func dollars(n uint64) uint64 {
	return n * chmath.QuotePrecision
}

// price is num/den dollars in mark precision.
func price(num, den uint64) chmath.Uint128 {
	return chmath.U64(chmath.MarkPricePrecision * num / den)
}

func oracleAt(p chmath.Uint128) state.OraclePriceData {
	return state.OraclePriceData{
		Price:             chmath.I64(int64(p.Lo)),
		Confidence:        chmath.U64(1),
		HasSufficientData: true,
	}
}

var dollarOracle = oracleAt(price(1, 1))

func configParams() state.GlobalConfigParams {
	collateral, insurance := testHandle(0xC0), testHandle(0x1F)
	return state.GlobalConfigParams{
		CollateralMint:       testHandle(0xC1),
		CollateralVault:      collateral,
		CollateralVaultOwner: state.VaultAuthority(collateral),
		InsuranceVault:       insurance,
		InsuranceVaultOwner:  state.VaultAuthority(insurance),
	}
}

// marketParams is a $1 market with one million units on each side.
func marketParams(index uint64) state.MarketParams {
	return state.MarketParams{
		MarketIndex:            index,
		BaseAssetReserve:       units(1_000_000),
		QuoteAssetReserve:      units(1_000_000),
		FundingPeriod:          chmath.OneHour,
		PegMultiplier:          chmath.U64(chmath.PegPrecision),
		Oracle:                 testHandle(0xAA),
		OracleSource:           state.OracleSourcePyth,
		MarginRatioInitial:     2000,
		MarginRatioPartial:     625,
		MarginRatioMaintenance: 500,
	}
}

func apply(t *testing.T, e *core.Engine, cmd event.Command) []history.Entry {
	t.Helper()
	entries, err := e.Apply(cmd)
	require.NoError(t, err, "%s", cmd.Operation())
	return entries
}

func kinds(entries []history.Entry) []history.Kind {
	out := make([]history.Kind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}

// newExchange returns an engine with the config, the history logs, the order
// state and market 0 in place, and accounts for alice, bob and carol.
func newExchange(t *testing.T) *core.Engine {
	t.Helper()
	e := core.NewEngine(zerolog.Nop(), nil)
	apply(t, e, &event.InitializeGlobalConfig{Header: hdr(admin, t0), Params: configParams()})
	apply(t, e, &event.InitializeHistory{Header: hdr(admin, t0)})
	apply(t, e, &event.InitializeOrderState{Header: hdr(admin, t0)})
	apply(t, e, &event.InitializeMarket{Header: hdr(admin, t0), Params: marketParams(0), Oracle: dollarOracle})
	for _, u := range []state.Handle{alice, bob, carol} {
		apply(t, e, &event.InitializeUser{Header: hdr(u, t0)})
	}
	return e
}

func deposit(t *testing.T, e *core.Engine, who state.Handle, amount uint64, ts int64) {
	t.Helper()
	apply(t, e, &event.DepositCollateral{Header: hdr(who, ts), Amount: amount})
}

func openPosition(direction state.PositionDirection, quote uint64, ts int64, who state.Handle) *event.OpenPosition {
	return &event.OpenPosition{
		Header:           hdr(who, ts),
		MarketIndex:      0,
		Direction:        direction,
		QuoteAssetAmount: chmath.U64(quote),
		Oracle:           dollarOracle,
	}
}

func account(t *testing.T, e *core.Engine, who state.Handle) *core.Account {
	t.Helper()
	acct, ok := e.State().Accounts[who]
	require.True(t, ok, "no account for %s", who)
	return acct
}

// position returns a copy of who's market 0 slot, or an empty slot.
func position(t *testing.T, e *core.Engine, who state.Handle) *state.MarketPosition {
	t.Helper()
	acct := account(t, e, who)
	i, ok := acct.Positions.Find(0)
	if !ok {
		return &state.MarketPosition{}
	}
	pos := acct.Positions.Positions[i]
	return &pos
}
