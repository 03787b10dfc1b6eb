// Package main is the entry point for the stockledger background worker.
// It reconciles item aggregates against their batches and ledger, and purges
// expired idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/inventory_repo"
	"stockledger/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
		Service:     "stockledger-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting stockledger worker")

	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	poolCfg.ApplicationName = "stockledger-worker"
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	incidents, err := postgres.NewIncidentStore(txManager)
	if err != nil {
		log.Fatalw("failed to create incident store", "error", err)
	}

	service := inventory.NewService(
		inventory_repo.NewItemRepo(txManager),
		inventory_repo.NewBatchRepo(txManager),
		inventory_repo.NewLedgerRepo(txManager),
		txManager,
		inventory.WithIncidentRecorder(incidents),
	)

	worker := &Worker{
		service:        service,
		idempotency:    postgres.NewIdempotencyStore(txManager, 0),
		pool:           pool,
		log:            log.WithComponent("worker"),
		reconcileEvery: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		cleanupEvery:   getEnvDuration("IDEMPOTENCY_CLEANUP_INTERVAL", time.Hour),
		poolStatsEvery: getEnvDuration("POOL_STATS_INTERVAL", 10*time.Minute),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the periodic maintenance jobs.
type Worker struct {
	service     *inventory.Service
	idempotency *postgres.IdempotencyStore
	pool        *postgres.Pool
	log         *logger.Logger

	reconcileEvery time.Duration
	cleanupEvery   time.Duration
	poolStatsEvery time.Duration
}

// Run blocks until ctx is cancelled. The reconcile sweep also runs once at start.
func (w *Worker) Run(ctx context.Context) {
	reconcileTicker := time.NewTicker(w.reconcileEvery)
	defer reconcileTicker.Stop()

	cleanupTicker := time.NewTicker(w.cleanupEvery)
	defer cleanupTicker.Stop()

	statsTicker := time.NewTicker(w.poolStatsEvery)
	defer statsTicker.Stop()

	w.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcileTicker.C:
			w.reconcile(ctx)
		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)
		case <-statsTicker.C:
			w.pool.LogStats(ctx)
		}
	}
}

func (w *Worker) reconcile(ctx context.Context) {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	start := time.Now()

	summary, err := w.service.ReconcileAll(ctx)
	if err != nil {
		w.log.Errorw("reconcile sweep failed", "error", err)
		return
	}

	if len(summary.Inconsistent) > 0 {
		w.log.Errorw("reconcile sweep found inconsistent items",
			"checked", summary.Checked,
			"inconsistent", len(summary.Inconsistent),
			"item_ids", summary.Inconsistent,
		)
		return
	}
	w.log.Infow("reconcile sweep done",
		"checked", summary.Checked,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	n, err := w.idempotency.CleanupExpired(ctx)
	if err != nil {
		w.log.Warnw("idempotency cleanup failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
