// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/idempotency"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Service runs all inventory operations
	Service *inventory.Service

	// Logger for request logging
	Logger *logger.Logger

	// DB is pinged by the readiness probe; nil reports ready
	DB handlers.Pinger

	// Idempotency store for POST endpoints; nil disables the middleware
	Idempotency idempotency.Store

	// Clock stamps transaction dates; defaults to time.Now
	Clock func() time.Time

	// Mode is the gin mode (release, debug, test); defaults to release
	Mode string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	router := gin.New()

	// Recovery sits inside ErrorHandler so a recovered panic is still rendered as JSON.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Actor())
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	h := handlers.NewInventoryHandler(cfg.Service, cfg.Clock)

	items := api.Group("/items")
	{
		items.POST("", h.RegisterItem)
		items.GET("", h.ListItems)
		items.GET("/:itemId", h.GetItem)
		items.GET("/:itemId/batches", h.ListBatches)
		items.GET("/:itemId/fifo", h.ListFIFOCandidates)
		items.GET("/:itemId/history", h.ListItemHistory)
		items.POST("/:itemId/reconcile", h.Reconcile)
	}

	stock := api.Group("/stock")
	{
		stock.POST("/in", h.StockIn)
		stock.POST("/out", h.StockOut)
	}

	api.GET("/transactions/:transactionId", h.GetTransaction)
	api.GET("/batches/expiring", h.ListExpiringBatches)
	api.GET("/incidents", h.ListIncidents)

	return router
}
