package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/analytics"
	"github.com/homequest/realestate-search/internal/api"
	"github.com/homequest/realestate-search/internal/cache"
	"github.com/homequest/realestate-search/internal/config"
	"github.com/homequest/realestate-search/internal/events"
	"github.com/homequest/realestate-search/internal/index"
	"github.com/homequest/realestate-search/internal/indexing"
	"github.com/homequest/realestate-search/internal/kafka"
	"github.com/homequest/realestate-search/internal/observability"
	"github.com/homequest/realestate-search/internal/registry"
	"github.com/homequest/realestate-search/internal/resolver"
	"github.com/homequest/realestate-search/internal/search"
	"github.com/homequest/realestate-search/internal/zerostate"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize logger
	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting resolve service",
		zap.String("service", cfg.Observability.ServiceName),
	)

	// Initialize tracing
	tracerShutdown, err := observability.InitTracer(cfg.Observability.ServiceName)
	if err != nil {
		logger.Warn("tracing initialization failed, continuing without tracing", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients
	redisCache, err := cache.NewRedisCache(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("initializing redis: %w", err)
	}
	defer redisCache.Close()
	logger.Info("redis cache initialized")

	idxClient, err := index.NewClient(cfg.Elasticsearch, logger)
	if err != nil {
		return fmt.Errorf("initializing entity index: %w", err)
	}
	defer idxClient.Close()
	logger.Info("entity index client initialized")

	var analyticsClient *analytics.Client
	analyticsClient, err = analytics.NewClient(cfg.ClickHouse, logger)
	if err != nil {
		logger.Warn("clickhouse initialization failed, analytics will be unavailable", zap.Error(err))
		analyticsClient = nil
	} else {
		defer analyticsClient.Close()
		if err := analyticsClient.EnsureTables(ctx); err != nil {
			logger.Warn("clickhouse table creation failed", zap.Error(err))
		}
		logger.Info("clickhouse client initialized")
	}

	// Redirect registry: Firestore when a project is configured, otherwise a
	// local YAML file. Neither configured means an empty registry.
	redirects := registry.Empty()
	switch {
	case cfg.Firestore.ProjectID != "":
		source, err := registry.NewFirestoreSource(ctx, cfg.Firestore, logger)
		if err != nil {
			logger.Warn("firestore initialization failed, redirect registry will be empty", zap.Error(err))
			break
		}
		defer source.Close()
		redirects, err = registry.New(source, logger)
		if err != nil {
			return fmt.Errorf("loading redirect registry: %w", err)
		}
	case cfg.Resolver.RedirectsFile != "":
		redirects, err = registry.New(registry.FileSource{Path: cfg.Resolver.RedirectsFile}, logger)
		if err != nil {
			return fmt.Errorf("loading redirect registry: %w", err)
		}
	}

	// Initialize slow resolve detector
	var analyticsWriter observability.AnalyticsWriter
	if analyticsClient != nil {
		analyticsWriter = analyticsClient
	}
	slowDetector := observability.NewSlowResolveDetector(
		cfg.Resolver.SlowWarning,
		cfg.Resolver.SlowCritical,
		logger,
		analyticsWriter,
	)

	// Initialize services
	res := resolver.New(idxClient, redirects, slowDetector, cfg.Resolver, logger)
	searchSvc := search.New(idxClient, redisCache, logger)

	eventStore, err := events.NewStore(cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("initializing event store: %w", err)
	}

	eventProducer := events.NewProducer(cfg.Kafka, logger)
	defer eventProducer.Close()

	changeProducer := kafka.NewProducer(cfg.Kafka, logger)
	defer changeProducer.Close()

	zeroStateSvc := zerostate.New(idxClient, eventStore, redisCache, logger)

	// Initialize indexing pipeline
	streamProcessor := indexing.NewStreamProcessor(idxClient, redisCache, cfg.Elasticsearch, logger)
	defer streamProcessor.Stop()

	consumer := kafka.NewConsumer(cfg.Kafka, streamProcessor.HandleEvent, logger)
	if err := consumer.Start(ctx); err != nil {
		logger.Warn("kafka consumer start failed, indexing pipeline will be unavailable", zap.Error(err))
	} else {
		defer consumer.Stop()
		logger.Info("kafka consumer started")
	}

	// Initialize HTTP server
	handler := api.NewHandler(res, searchSvc, zeroStateSvc, eventStore, logger).
		WithCache(redisCache).
		WithProducer(eventProducer).
		WithIngest(changeProducer).
		WithAdmin(idxClient, redirects)
	if analyticsClient != nil {
		handler = handler.WithAnalytics(analyticsClient)
	}

	healthHandler := api.NewHealthHandler(logger)
	healthHandler.Register("redis", redisCache)
	healthHandler.RegisterIndex(idxClient)
	if analyticsClient != nil {
		healthHandler.RegisterOptional("clickhouse", analyticsClient)
	}
	healthHandler.RegisterOptional("kafka", consumer)

	router := api.NewRouter(handler, healthHandler, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	// Graceful shutdown
	logger.Info("starting graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	// Cancel background operations
	cancel()

	// Shutdown tracing
	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}
