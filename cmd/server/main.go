package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/payment-switch/internal/api"
	"github.com/Priya8975/payment-switch/internal/config"
	"github.com/Priya8975/payment-switch/internal/connector"
	"github.com/Priya8975/payment-switch/internal/debitrouting"
	"github.com/Priya8975/payment-switch/internal/dispatch"
	"github.com/Priya8975/payment-switch/internal/engine"
	"github.com/Priya8975/payment-switch/internal/retry"
	"github.com/Priya8975/payment-switch/internal/store"
	ws "github.com/Priya8975/payment-switch/internal/websocket"
	"github.com/Priya8975/payment-switch/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	configStore := store.NewConfigStore(redisStore.Client())
	telemetry := store.NewTelemetryStore(pgStore, redisStore.Client(), logger)

	// Connector adapters
	adapters := make([]connector.Adapter, 0, len(cfg.Connectors))
	for _, ep := range cfg.Connectors {
		adapters = append(adapters, &connector.RESTAdapter{
			ConnectorName: ep.Name,
			BaseURL:       ep.BaseURL,
			APIKey:        cfg.ConnectorAPIKey,
		})
	}
	registry := connector.NewRegistry(adapters...)
	logger.Info("connector registry built", "connectors", registry.Names())

	// Connector health and throttling
	circuitBreaker := engine.NewCircuitBreaker(redisStore.Client(), logger)
	rateLimiter := engine.NewRateLimiter(redisStore.Client(), configStore, logger)

	// Dispatch pipeline for the authorize flow
	pipeline := dispatch.New(registry, telemetry, rateLimiter, circuitBreaker, "authorize", cfg.ConnectorTimeout, logger)

	// Retry engine
	retryEngine := retry.NewEngine(pipeline, pgStore, pgStore, configStore, circuitBreaker, telemetry, logger)

	// Debit routing optimizer
	oracle := debitrouting.NewHTTPOracle(cfg.OracleURL, cfg.ConnectorTimeout)
	optimizer := debitrouting.NewOptimizer(configStore, oracle, configStore, cfg.AcquirerCountry, logger)

	// Confirmation queue and websocket hub
	confirmQueue := engine.NewConfirmQueue(redisStore, logger)
	hub := ws.NewHub(logger)
	go hub.Run()

	// Worker side: dispatcher polls the queue, pool workers confirm payments
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	confirmer := worker.NewConfirmer(pgStore, configStore, optimizer, pipeline, retryEngine, hub, logger)
	pool := worker.NewPool(cfg.NumWorkers, confirmer, logger)
	pool.Start(workerCtx)

	dispatcher := worker.NewDispatcher(redisStore.Client(), pool, logger)
	go dispatcher.Start(workerCtx)

	// Setup router
	router := api.NewRouter(pgStore, confirmQueue, circuitBreaker, registry, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	stopWorkers()
	pool.Stop()

	logger.Info("server stopped")
}
