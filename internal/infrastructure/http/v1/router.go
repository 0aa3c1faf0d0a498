// Package v1 provides HTTP API version 1.
package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/documents/count"
	"stockledger/internal/domain/itemcache"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	Stock      *stock.Service
	Counts     *count.Service
	ItemCache  *itemcache.Service
	Reports    *reports.Service
	Items      *item.Service
	Warehouses *warehouse.Service

	// HealthChecks are probed by /health/ready
	HealthChecks map[string]handlers.Pinger

	// Metrics serves /metrics when set
	Metrics http.Handler

	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.UserContext())
	{
		base := handlers.NewBaseHandler()

		handlers.NewStockHandler(base, cfg.Stock).RegisterRoutes(v1.Group("/stock"))
		handlers.NewCountHandler(base, cfg.Counts).RegisterRoutes(v1.Group("/counts"))
		handlers.NewItemHandler(base, cfg.ItemCache).RegisterRoutes(v1.Group("/items"))
		handlers.NewReportsHandler(base, cfg.Reports).RegisterRoutes(v1.Group("/reports"))

		registerCatalogRoutes(v1.Group("/catalogs"), base, cfg)
	}

	return router
}

// registerCatalogRoutes registers the item and warehouse setup endpoints.
func registerCatalogRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	// --- ITEMS ---
	{
		handler := handlers.NewCatalogHandler(base, handlers.CatalogHandlerConfig[item.Item, dto.CreateItemRequest]{
			Create:  cfg.Items.Create,
			GetByID: cfg.Items.GetByID,
			List: func(ctx context.Context, q handlers.CatalogQuery) ([]*item.Item, error) {
				return cfg.Items.List(ctx, item.ListFilter{
					Category: q.Category,
					Search:   q.Search,
					Limit:    q.Limit,
					Offset:   q.Offset,
				})
			},
			MapCreateDTO: dto.CreateItemRequest.ToEntity,
		})
		RegisterCatalogRoutes(rg.Group("/items"), handler)
	}

	// --- WAREHOUSES ---
	{
		handler := handlers.NewCatalogHandler(base, handlers.CatalogHandlerConfig[warehouse.Warehouse, dto.CreateWarehouseRequest]{
			Create:  cfg.Warehouses.Create,
			GetByID: cfg.Warehouses.GetByID,
			List: func(ctx context.Context, _ handlers.CatalogQuery) ([]*warehouse.Warehouse, error) {
				return cfg.Warehouses.List(ctx)
			},
			MapCreateDTO: dto.CreateWarehouseRequest.ToEntity,
		})
		RegisterCatalogRoutes(rg.Group("/warehouses"), handler)
	}
}
