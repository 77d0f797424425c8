package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
	"PerpClearing/internal/ingestion"
	"PerpClearing/internal/observability"
	"PerpClearing/internal/query"
	"PerpClearing/internal/state"
)

// maxCommandBytes bounds a submitted command body.
const maxCommandBytes = 1 << 20

// EngineStatus is the processor side of the status endpoint.
type EngineStatus interface {
	LastSequence() int64
	StateHash() [32]byte
}

// SnapshotTaker takes an on-demand snapshot. persistence.SnapshotWorker
// implements it.
type SnapshotTaker interface {
	Take(ctx context.Context) (int64, error)
}

// ServerDeps holds the services exposed over HTTP. Snapshots may be nil.
type ServerDeps struct {
	Query         *query.QueryService
	Commands      *ingestion.CommandService
	Engine        EngineStatus
	Snapshots     SnapshotTaker
	HealthChecker *observability.HealthChecker
	StartTime     time.Time
	Logger        zerolog.Logger
}

// GRPCServer runs the gRPC server (health and reflection) and the HTTP/JSON
// gateway mux.
type GRPCServer struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	gateway    *runtime.ServeMux
	grpcAddr   string
	httpAddr   string
	deps       *ServerDeps
	logger     zerolog.Logger
}

// NewGRPCServer creates the servers and registers every route.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) (*GRPCServer, error) {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	if deps.HealthChecker != nil {
		deps.HealthChecker.AttachGRPC(healthServer)
	}

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	s := &GRPCServer{
		grpcServer: grpcServer,
		gateway:    runtime.NewServeMux(),
		grpcAddr:   grpcAddr,
		httpAddr:   httpAddr,
		deps:       deps,
		logger:     deps.Logger,
	}
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GRPCServer) registerRoutes() error {
	routes := []struct {
		method, pattern string
		handler         runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/markets/{index}", s.getMarket},
		{http.MethodGet, "/v1/users/{authority}", s.getUser},
		{http.MethodGet, "/v1/history/{log}", s.getHistory},
		{http.MethodGet, "/v1/commands/{sequence}", s.getCommand},
		{http.MethodPost, "/v1/commands/{operation}", s.submitCommand},
		{http.MethodGet, "/v1/status", s.getStatus},
		{http.MethodPost, "/v1/admin/snapshot", s.takeSnapshot},
	}
	for _, rt := range routes {
		if err := s.gateway.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

// Handler returns the HTTP handler: health endpoints plus the gateway mux.
func (s *GRPCServer) Handler() http.Handler {
	httpMux := http.NewServeMux()
	if hc := s.deps.HealthChecker; hc != nil {
		httpMux.HandleFunc("/healthz", hc.LivenessHandler)
		httpMux.HandleFunc("/readyz", hc.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", s.gateway)
	return httpMux
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON server (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// Query routes
// ============================================================================

func (s *GRPCServer) getMarket(w http.ResponseWriter, r *http.Request, params map[string]string) {
	index, err := strconv.ParseUint(params["index"], 10, 64)
	if err != nil {
		s.writeError(w, r, status.Errorf(codes.InvalidArgument, "invalid market index: %v", err))
		return
	}
	resp, err := s.deps.Query.GetMarket(index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GRPCServer) getUser(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var authority state.Handle
	if err := authority.UnmarshalText([]byte(params["authority"])); err != nil {
		s.writeError(w, r, status.Errorf(codes.InvalidArgument, "invalid authority: %v", err))
		return
	}
	resp, err := s.deps.Query.GetUser(authority)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GRPCServer) getHistory(w http.ResponseWriter, r *http.Request, params map[string]string) {
	kind, err := history.ParseKind(params["log"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	var from uint64
	if v := q.Get("from"); v != "" {
		if from, err = strconv.ParseUint(v, 10, 64); err != nil {
			s.writeError(w, r, status.Errorf(codes.InvalidArgument, "invalid from: %v", err))
			return
		}
	}
	limit := query.MaxPageSize
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			s.writeError(w, r, status.Errorf(codes.InvalidArgument, "invalid limit: %v", err))
			return
		}
	}

	resp, err := s.deps.Query.GetHistory(r.Context(), kind, from, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GRPCServer) getCommand(w http.ResponseWriter, r *http.Request, params map[string]string) {
	seq, err := strconv.ParseInt(params["sequence"], 10, 64)
	if err != nil || seq <= 0 {
		s.writeError(w, r, status.Errorf(codes.InvalidArgument, "invalid sequence %q", params["sequence"]))
		return
	}
	resp, err := s.deps.Query.GetCommand(r.Context(), seq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusResponse reports where the engine is.
type StatusResponse struct {
	Sequence  int64  `json:"sequence"`
	StateHash string `json:"state_hash"`
	Uptime    string `json:"uptime"`
	Ready     bool   `json:"ready"`
}

func (s *GRPCServer) getStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	hash := s.deps.Engine.StateHash()
	resp := StatusResponse{
		Sequence:  s.deps.Engine.LastSequence(),
		StateHash: hex.EncodeToString(hash[:]),
		Uptime:    time.Since(s.deps.StartTime).Truncate(time.Second).String(),
	}
	if s.deps.HealthChecker != nil {
		resp.Ready = s.deps.HealthChecker.IsReady()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// Command routes
// ============================================================================

// SubmitResponse is the outcome of a submitted command.
type SubmitResponse struct {
	Duplicate bool            `json:"duplicate"`
	Sequence  int64           `json:"sequence,omitempty"`
	Operation event.Operation `json:"operation"`
	StateHash string          `json:"state_hash,omitempty"`
	Entries   []history.Entry `json:"entries"`
}

func (s *GRPCServer) submitCommand(w http.ResponseWriter, r *http.Request, params map[string]string) {
	op := event.Operation(params["operation"])

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		s.writeError(w, r, status.Errorf(codes.InvalidArgument, "read body: %v", err))
		return
	}

	env, err := s.deps.Commands.Submit(r.Context(), op, payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := SubmitResponse{Operation: op, Entries: []history.Entry{}}
	if env == nil {
		resp.Duplicate = true
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Sequence = env.Sequence
	resp.StateHash = hex.EncodeToString(env.StateHash[:])
	if env.Entries != nil {
		resp.Entries = env.Entries
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *GRPCServer) takeSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.deps.Snapshots == nil {
		s.writeError(w, r, status.Error(codes.Unavailable, "snapshots need a database"))
		return
	}
	seq, err := s.deps.Snapshots.Take(r.Context())
	if err != nil {
		s.writeError(w, r, status.Errorf(codes.Internal, "take snapshot: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"sequence": seq})
}

// ============================================================================
// Errors
// ============================================================================

// StatusFromError maps a clearing-house error to a gRPC status by class.
// Other errors that already carry a status pass through.
func StatusFromError(err error) *status.Status {
	// registered errors implement GRPCStatus as Unknown, so classify them first
	if state.ErrorCode(err) == 1 {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return status.New(codes.DeadlineExceeded, err.Error())
		}
		if st, ok := status.FromError(err); ok {
			return st
		}
	}

	var code codes.Code
	switch state.ErrorClass(err) {
	case state.ClassValidation, state.ClassArithmetic:
		code = codes.InvalidArgument
	case state.ClassState, state.ClassOracle:
		code = codes.FailedPrecondition
	case state.ClassAuthorization:
		code = codes.PermissionDenied
	case state.ClassNotFound:
		code = codes.NotFound
	case state.ClassIntegrity:
		code = codes.DataLoss
	default:
		code = codes.Internal
	}
	// a missing user, market or log reads as not found, not as a failed precondition
	if errors.Is(err, state.ErrUserNotFound) ||
		errors.Is(err, state.ErrMarketIndexNotInitialized) ||
		errors.Is(err, history.ErrUnknownLog) {
		code = codes.NotFound
	}
	return status.New(code, err.Error())
}

func (s *GRPCServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st := StatusFromError(err)
	if st.Code() == codes.Internal {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	runtime.HTTPError(r.Context(), s.gateway, &runtime.JSONPb{}, w, r, st.Err())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
