// Package main is the entry point for the stockledger API server.
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

	"stockledger/internal/core/idempotency"
	"stockledger/internal/domain/inventory"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/inventory_repo"
	"stockledger/pkg/logger"
	"stockledger/pkg/numerator"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
		Service:     "stockledger-server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting stockledger server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	poolCfg.MaxConns = int32(getEnvInt("DB_MAX_CONNS", int(poolCfg.MaxConns)))
	poolCfg.MinConns = int32(getEnvInt("DB_MIN_CONNS", int(poolCfg.MinConns)))
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Infow("database connection established", "max_conns", poolCfg.MaxConns)

	txOpts := postgres.DefaultTxOptions()
	txOpts.MaxAttempts = getEnvInt("TX_MAX_ATTEMPTS", txOpts.MaxAttempts)
	txOpts.StatementTimeout = getEnvDuration("TX_STATEMENT_TIMEOUT", txOpts.StatementTimeout)
	txManager := postgres.NewTxManager(pool).WithDefaults(txOpts)

	// --- Numbering ---
	strategy, err := numerator.ParseStrategy(getEnv("NUMERATOR_STRATEGY", "strict"))
	if err != nil {
		log.Fatalw("invalid numbering strategy", "error", err)
	}
	numbers := numerator.New(pool.Pool,
		numerator.WithStrategy(strategy),
		numerator.WithTxQuerier(func(ctx context.Context) numerator.Querier {
			return txManager.GetQuerier(ctx)
		}),
	)

	incidents, err := postgres.NewIncidentStore(txManager)
	if err != nil {
		log.Fatalw("failed to create incident store", "error", err)
	}

	// --- Inventory service ---
	service := inventory.NewService(
		inventory_repo.NewItemRepo(txManager),
		inventory_repo.NewBatchRepo(txManager),
		inventory_repo.NewLedgerRepo(txManager),
		txManager,
		inventory.WithNumberGenerator(numbers),
		inventory.WithIncidentRecorder(incidents),
	)

	var idem idempotency.Store
	if getEnv("IDEMPOTENCY_ENABLED", "true") == "true" {
		idem = postgres.NewIdempotencyStore(txManager, getEnvDuration("IDEMPOTENCY_TTL", 10*time.Minute))
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Service:     service,
		Logger:      log,
		DB:          pool,
		Idempotency: idem,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port, "numbering", getEnv("NUMERATOR_STRATEGY", "strict"), "idempotency", idem != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
