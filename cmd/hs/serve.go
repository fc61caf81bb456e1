package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/hotstore/internal/config"
	"github.com/alfredjeanlab/hotstore/internal/events"
	"github.com/alfredjeanlab/hotstore/internal/eventstore"
	"github.com/alfredjeanlab/hotstore/internal/logging"
	"github.com/alfredjeanlab/hotstore/internal/model"
	"github.com/alfredjeanlab/hotstore/internal/presence"
	"github.com/alfredjeanlab/hotstore/internal/server"
	"github.com/alfredjeanlab/hotstore/internal/store"
	"github.com/alfredjeanlab/hotstore/internal/store/memory"
	"github.com/alfredjeanlab/hotstore/internal/store/postgres"
	redisstore "github.com/alfredjeanlab/hotstore/internal/store/redis"
	eventsync "github.com/alfredjeanlab/hotstore/internal/sync"
	"github.com/alfredjeanlab/hotstore/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the hotstore HTTP and gRPC server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, closeLog, err := newServerLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, version)
		if err != nil {
			return err
		}
		if cfg.OTelEndpoint != "" {
			logger.Info("tracing enabled", "endpoint", cfg.OTelEndpoint)
		}

		backend, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		logger.Info("backend connected", "backend", cfg.Backend, "key", cfg.LogKey)

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				backend.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (HOTSTORE_NATS_URL not set)")
		}

		// The eviction hook needs the server, which needs the store.
		var eventsServer *server.EventsServer
		st := eventstore.New(backend,
			eventstore.WithKey(cfg.LogKey),
			eventstore.WithLimits(cfg.Limits()),
			eventstore.WithLogger(logger),
			eventstore.WithEvictionHook(func(ctx context.Context, reason eventstore.EvictionReason, evicted []*model.Event) {
				eventsServer.OnEvicted(ctx, reason, evicted)
			}),
		)
		eventsServer = server.NewEventsServer(st, publisher, logger)
		eventsServer.Presence.StartReaper(&presence.ReaperConfig{
			IdleThreshold: cfg.BotIdleThreshold,
			OnIdle: func(botID string) {
				logger.Info("bot idle", "bot_id", botID)
			},
		})

		grpcServer := server.NewGRPCServer(eventsServer, logger, cfg.AuthToken)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			backend.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           eventsServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var scheduler *eventsync.Scheduler
		if cfg.RehydrateEnabled() {
			sources := rehydrateSources(ctx, cfg, logger)
			if len(sources) > 0 {
				scheduler = eventsync.NewScheduler(st, sources, cfg.RehydrateInterval, logger)
				scheduler.OnImport = func(ctx context.Context, r eventsync.Result) {
					eventsServer.OnRehydrated(ctx, r.Parsed-r.Duplicates, r.Added)
				}
				scheduler.Start()
				logger.Info("rehydration scheduler started", "interval", cfg.RehydrateInterval, "sources", len(sources))
			}
		}

		logger.Info("hotstore server started",
			"version", version,
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"max_events", cfg.MaxEvents,
			"max_retrievals", cfg.MaxRetrievals,
			"retrieval_max_age", cfg.RetrievalMaxAge,
		)

		<-ctx.Done()
		logger.Info("received signal, shutting down")

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("rehydration scheduler stopped")
		}
		eventsServer.Presence.Stop()

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := backend.Close(); err != nil {
			logger.Error("error closing backend", "err", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("error flushing traces", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// newServerLogger builds the server logger. With HOTSTORE_LOG_FILE set,
// records are also appended to that file as JSON.
func newServerLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.WithFormat(cfg.LogFormat), logging.WithLevel(level))
	if cfg.LogFile == "" {
		return logger, func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	fileLogger := logging.New(
		logging.WithFormat(logging.FormatJSON),
		logging.WithLevel(level),
		logging.WithWriter(f),
	)
	return logging.Multi(logger, fileLogger), func() { f.Close() }, nil
}

// openBackend connects the configured store.Log implementation.
func openBackend(ctx context.Context, cfg *config.Config) (store.Log, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		l, err := redisstore.New(ctx, cfg.RedisURL, cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.BackendPostgres:
		l, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.BackendMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// rehydrateSources builds the configured archive sources. A source that
// cannot be set up is logged and skipped.
func rehydrateSources(ctx context.Context, cfg *config.Config, logger *slog.Logger) []eventsync.Source {
	var sources []eventsync.Source
	if cfg.RehydrateS3Bucket != "" {
		src, err := eventsync.NewS3Source(ctx,
			cfg.RehydrateS3Bucket,
			cfg.RehydrateS3Key,
			cfg.RehydrateS3Region,
			cfg.RehydrateS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 rehydration source", "err", err)
		} else {
			sources = append(sources, src)
			logger.Info("S3 rehydration source enabled", "bucket", cfg.RehydrateS3Bucket, "key", cfg.RehydrateS3Key)
		}
	}
	if cfg.RehydrateFile != "" {
		sources = append(sources, eventsync.NewFileSource(cfg.RehydrateFile))
		logger.Info("file rehydration source enabled", "path", cfg.RehydrateFile)
	}
	return sources
}
