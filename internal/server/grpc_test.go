package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"PerpClearing/internal/core"
	"PerpClearing/internal/history"
	"PerpClearing/internal/ingestion"
	chmath "PerpClearing/internal/math"
	"PerpClearing/internal/observability"
	"PerpClearing/internal/query"
	"PerpClearing/internal/server"
	"PerpClearing/internal/state"
	"PerpClearing/internal/testutil"
)

func newTestServer(t *testing.T) (*httptest.Server, *core.Processor) {
	t.Helper()
	p := testutil.NewProcessor(t)
	testutil.Run(t, p, testutil.BootstrapCommands(testutil.Alice)...)

	hc := observability.NewHealthChecker()
	srv, err := server.NewGRPCServer("127.0.0.1:0", "127.0.0.1:0", &server.ServerDeps{
		Query:         query.NewQueryService(p, nil, nil),
		Commands:      ingestion.NewCommandService(p),
		Engine:        p,
		HealthChecker: hc,
		StartTime:     time.Now(),
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, p
}

func get(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_GetMarket(t *testing.T) {
	ts, p := newTestServer(t)

	var market query.MarketResponse
	require.Equal(t, http.StatusOK, get(t, ts.URL+"/v1/markets/0", &market))
	assert.True(t, market.Initialized)
	assert.Equal(t, chmath.U64(chmath.MarkPricePrecision), market.MarkPrice)
	assert.Equal(t, p.LastSequence(), market.AsOfSequence)

	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/v1/markets/3", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/v1/markets/abc", nil))
}

func TestServer_GetUser(t *testing.T) {
	ts, _ := newTestServer(t)

	var user query.UserResponse
	require.Equal(t, http.StatusOK, get(t, ts.URL+"/v1/users/"+testutil.Alice.String(), &user))
	assert.Equal(t, testutil.Alice, user.User.Authority)
	assert.Equal(t, "Healthy", user.Margin.Status)

	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/v1/users/"+testutil.Bob.String(), nil))
	assert.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/v1/users/not-hex", nil))
}

func TestServer_SubmitCommand(t *testing.T) {
	ts, p := newTestServer(t)

	body := fmt.Sprintf(`{"command_id":%q,"signer":%q,"ts":%d,"amount":%d}`,
		uuid.NewString(), testutil.Alice.String(), testutil.T0+1, 50*chmath.QuotePrecision)
	// entries stay raw: history.Entry holds an interface
	type submitResponse struct {
		Duplicate bool              `json:"duplicate"`
		Sequence  int64             `json:"sequence"`
		Entries   []json.RawMessage `json:"entries"`
	}
	post := func() (*http.Response, submitResponse) {
		resp, err := http.Post(ts.URL+"/v1/commands/deposit_collateral", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var out submitResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp, out
	}

	resp, out := post()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.False(t, out.Duplicate)
	assert.Equal(t, p.LastSequence(), out.Sequence)
	require.Len(t, out.Entries, 1)

	// Resubmitting the same command id is a no-op.
	resp, out = post()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Duplicate)

	var history query.HistoryResponse
	require.Equal(t, http.StatusOK, get(t, ts.URL+"/v1/history/deposit?from=0&limit=10", &history))
	assert.Len(t, history.Records, 1)

	var user query.UserResponse
	require.Equal(t, http.StatusOK, get(t, ts.URL+"/v1/users/"+testutil.Alice.String(), &user))
	assert.Equal(t, chmath.U64(50*chmath.QuotePrecision), user.User.Collateral)
}

func TestServer_SubmitRejections(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := map[string]struct {
		path string
		body string
		want int
	}{
		"unknown operation": {"/v1/commands/teleport", `{}`, http.StatusBadRequest},
		"empty body":        {"/v1/commands/deposit_collateral", ``, http.StatusBadRequest},
		"unknown field":     {"/v1/commands/deposit_collateral", `{"amount":1,"bogus":true}`, http.StatusBadRequest},
		"withdraw too much": {
			"/v1/commands/withdraw_collateral",
			fmt.Sprintf(`{"command_id":%q,"signer":%q,"ts":%d,"amount":1}`,
				uuid.NewString(), testutil.Alice.String(), testutil.T0+1),
			http.StatusBadRequest,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+tt.path, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServer_StatusAndHealth(t *testing.T) {
	ts, p := newTestServer(t)

	var st server.StatusResponse
	require.Equal(t, http.StatusOK, get(t, ts.URL+"/v1/status", &st))
	assert.Equal(t, p.LastSequence(), st.Sequence)
	hash := p.StateHash()
	assert.Equal(t, fmt.Sprintf("%x", hash[:]), st.StateHash)
	assert.False(t, st.Ready)

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, ts.URL+"/readyz", nil))

	// no database configured
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/v1/commands/1", nil))
	resp, err := http.Post(ts.URL+"/v1/admin/snapshot", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusFromError(t *testing.T) {
	assert.Equal(t, "NotFound", server.StatusFromError(state.ErrUserNotFound).Code().String())
	assert.Equal(t, "FailedPrecondition", server.StatusFromError(state.ErrMarketIndexOutOfRange).Code().String())
	assert.Equal(t, "InvalidArgument", server.StatusFromError(state.ErrInsufficientCollateral).Code().String())
	assert.Equal(t, "DataLoss", server.StatusFromError(core.ErrStateHashMismatch).Code().String())
	assert.Equal(t, "Internal", server.StatusFromError(fmt.Errorf("boom")).Code().String())

	// registered errors carry an Unknown grpc status of their own
	wrapped := errorsmod.Wrap(state.ErrInsufficientCollateral, "withdraw")
	assert.Equal(t, codes.InvalidArgument, server.StatusFromError(wrapped).Code())
	assert.Equal(t, codes.NotFound, server.StatusFromError(fmt.Errorf("read: %w", history.ErrUnknownLog)).Code())

	assert.Equal(t, codes.Unavailable, server.StatusFromError(status.Error(codes.Unavailable, "draining")).Code())
	assert.Equal(t, codes.DeadlineExceeded, server.StatusFromError(context.Canceled).Code())
}
