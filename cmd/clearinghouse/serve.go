package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"PerpClearing/internal/config"
	"PerpClearing/internal/core"
	"PerpClearing/internal/event"
	"PerpClearing/internal/ingestion"
	"PerpClearing/internal/observability"
	"PerpClearing/internal/persistence"
	"PerpClearing/internal/query"
	"PerpClearing/internal/server"
)

func serveCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Runs the clearing house",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.ParseConfig(v)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	flags := c.Flags()
	flags.String("nats-url", "", "NATS server URL; empty disables NATS")
	flags.String("grpc-addr", "", "gRPC listen address")
	flags.String("http-addr", "", "HTTP/JSON listen address")
	flags.String("metrics-addr", "", "Prometheus listen address")
	flags.Int64("snapshot-interval", 0, "commands between snapshots")
	bindFlags(v, flags, "nats-url", "grpc-addr", "http-addr", "metrics-addr", "snapshot-interval")
	return c
}

func serve(cfg config.Config) error {
	level := observability.ParseLogLevel(cfg.LogLevel)
	newLogger := func(component string) zerolog.Logger {
		return observability.NewLoggerTo(os.Stdout, component, level)
	}
	logger := newLogger("main")
	logger.Info().Msg("clearing house starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := openDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Msg("postgres connected")

	if err := persistence.NewMigrator(db, migrationFiles(cfg.MigrationsDir), newLogger("migrator")).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()
	healthChecker.AddCheck("postgres", db.PingContext)

	// --- Processor ---
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	idempotency, err := core.NewIdempotencyChecker(cfg.IdempotencyLRUCapacity, dbChecker, newLogger("idempotency"), metrics)
	if err != nil {
		return fmt.Errorf("idempotency checker: %w", err)
	}
	processor := core.NewProcessor(core.ProcessorConfig{
		Engine:      core.NewEngine(newLogger("engine"), metrics),
		Idempotency: idempotency,
		Logger:      newLogger("processor"),
		Metrics:     metrics,
	})

	// --- Recovery: snapshot + replay, verified by state hash ---
	snapMgr := persistence.NewSnapshotManager(db)
	res, err := persistence.Recover(ctx, snapMgr, processor, newLogger("recovery"))
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}

	// Warm the LRU so recent redeliveries skip the database.
	recent, err := dbChecker.RecentKeys(ctx, cfg.IdempotencyLRUCapacity)
	if err != nil {
		logger.Warn().Err(err).Msg("warm idempotency cache failed")
	}
	for op, keys := range recent {
		idempotency.Warm(op, keys)
	}

	// --- Channels ---
	// The persist channel blocks (backpressure); the publish channel drops.
	persistChan := make(chan *event.Envelope, cfg.PersistChanSize)
	var publishChan chan *event.Envelope

	// --- NATS ---
	var (
		nc         *nats.Conn
		subscriber *ingestion.NATSSubscriber
		publisher  *ingestion.OutboundPublisher
		rawChan    chan ingestion.RawCommand
	)
	if cfg.NATSURL != "" {
		natsLogger := newLogger("nats")
		var js jetstream.JetStream
		nc, js, err = ingestion.ConnectNATS(cfg.NATSURL, natsLogger)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		if err := ingestion.EnsureStreams(ctx, js, natsLogger); err != nil {
			return fmt.Errorf("ensure streams: %w", err)
		}

		rawChan = make(chan ingestion.RawCommand, 4096)
		subscriber = ingestion.NewNATSSubscriber(js, rawChan, natsLogger)
		publishChan = make(chan *event.Envelope, cfg.PublishChanSize)
		publisher = ingestion.NewOutboundPublisher(js, publishChan, newLogger("publisher"))

		healthChecker.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		})
	} else {
		logger.Warn().Msg("nats-url empty, NATS ingestion and publishing disabled")
	}

	processor.Attach(persistChan, publishChan)

	// --- Workers ---
	// Output workers get their own context so they drain after the inputs stop.
	drainCtx, stopDrain := context.WithCancel(context.Background())
	defer stopDrain()

	errChan := make(chan error, 10)

	persistWorker := persistence.NewPersistenceWorker(db, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, newLogger("persistence"), metrics)
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		if err := persistWorker.Run(drainCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("persistence worker: %w", err)
		}
	}()

	publishDone := make(chan struct{})
	if publisher != nil {
		go func() {
			defer close(publishDone)
			publisher.Run(drainCtx)
		}()
	} else {
		close(publishDone)
	}

	snapshotWorker := persistence.NewSnapshotWorker(processor, snapMgr, cfg.SnapshotInterval, newLogger("snapshot"), metrics)
	go func() {
		snapshotWorker.Run(ctx)
	}()

	// --- Ingestion ---
	if subscriber != nil {
		if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		go ingestion.RunDispatchLoop(ctx, rawChan, processor, newLogger("dispatch"))
	}

	// --- Servers ---
	srv, err := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Query:         query.NewQueryService(processor, db, metrics),
		Commands:      ingestion.NewCommandService(processor),
		Engine:        processor,
		Snapshots:     snapshotWorker,
		HealthChecker: healthChecker,
		StartTime:     time.Now(),
		Logger:        newLogger("server"),
	})
	if err != nil {
		return err
	}
	go func() {
		errChan <- srv.StartGRPC(ctx)
	}()
	go func() {
		errChan <- srv.StartHTTPGateway(ctx)
	}()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	logger.Info().
		Int64("sequence", res.LastSequence).
		Int64("replayed", res.Replayed).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("clearing house ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	// Stop the inputs, drain the outputs, then take a final snapshot.
	healthChecker.SetReady(false)
	cancel()
	if subscriber != nil {
		subscriber.Stop()
	}

	processor.Attach(nil, nil)
	close(persistChan)
	if publishChan != nil {
		close(publishChan)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, done := range []chan struct{}{persistDone, publishDone} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Error().Msg("output workers did not drain in time")
		}
	}
	stopDrain()

	if seq, err := snapshotWorker.Take(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Int64("sequence", seq).Msg("final snapshot saved")
	}

	logger.Info().Msg("clearing house shutdown complete")
	return nil
}
