// Package app assembles the ledger services from configuration. The API
// server and the background worker share one wiring.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/catalogs/item"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/documents/count"
	"stockledger/internal/domain/itemcache"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/jobs"
	"stockledger/internal/infrastructure/metrics"
	pgnumerator "stockledger/internal/infrastructure/numerator"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/document_repo"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

// Container holds the wired services.
type Container struct {
	Stock      *stock.Service
	Counts     *count.Service
	ItemCache  *itemcache.Service
	Reports    *reports.Service
	Items      *item.Service
	Warehouses *warehouse.Service

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// HealthChecks maps a dependency name to its readiness probe
	HealthChecks map[string]handlers.Pinger

	closers []func()
}

// storage is one backend's set of repositories.
type storage struct {
	txm        tx.Manager
	stock      stock.Repository
	items      item.Repository
	warehouses warehouse.Repository
	counts     count.Repository
	numerator  numerator.Generator
	auditor    count.Auditor
}

// Build connects the configured backends and wires every service.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Container, err error) {
	c := &Container{HealthChecks: make(map[string]handlers.Pinger)}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if c.Metrics, err = metrics.New(c.Registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	var st storage
	switch cfg.Ledger.Storage {
	case config.StorageMemory:
		st = c.memoryStorage()
		log.Warn("using in-memory storage, data is lost on restart")
	default:
		if st, err = c.postgresStorage(ctx, cfg, log); err != nil {
			return nil, err
		}
	}

	summaries := itemcache.SummaryCache(itemcache.NoopCache{})
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func() { _ = client.Close() })
		redisCache := cache.NewSummaryCache(client, cfg.Redis.SummaryTTL)
		c.HealthChecks["redis"] = redisCache
		summaries = redisCache
	}

	c.Items = item.NewService(st.items)
	c.Warehouses = warehouse.NewService(st.warehouses)
	c.ItemCache = itemcache.NewService(st.stock, st.items,
		itemcache.WithCache(summaries),
		itemcache.WithConcurrency(cfg.Ledger.SyncConcurrency),
	)

	var syncer stock.ItemSyncer = c.ItemCache
	if cfg.Ledger.SyncMode == config.SyncQueue {
		client := jobs.NewClient(RedisClientOpt(cfg.Redis), cfg.Jobs.SyncUniqueness)
		c.closers = append(c.closers, func() { _ = client.Close() })
		syncer = client
	}

	c.Stock = stock.NewService(st.stock, st.items, st.warehouses, st.txm,
		stock.WithSyncer(syncer),
		stock.WithObserver(c.Metrics),
		stock.WithConfig(stock.Config{
			RetryAttempts:    cfg.Ledger.RetryAttempts,
			RetryBaseDelay:   cfg.Ledger.RetryBaseDelay,
			MovementPageSize: cfg.Ledger.MovementPageSize,
		}),
	)
	c.Counts = count.NewService(st.counts, c.Stock, st.items, st.warehouses, st.numerator, st.txm,
		count.WithSyncer(syncer),
		count.WithAuditor(st.auditor),
		count.WithObserver(c.Metrics),
	)
	c.Reports = reports.NewService(c.Stock, st.items)

	return c, nil
}

func (c *Container) memoryStorage() storage {
	store := memory.New()
	c.HealthChecks["storage"] = store
	return storage{
		txm:        store,
		stock:      store.Stock(),
		items:      store.Items(),
		warehouses: store.Warehouses(),
		counts:     store.Counts(),
		numerator:  store.Numerator(),
		auditor:    store.Audit(),
	}
}

func (c *Container) postgresStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DB.URL)
	if cfg.DB.MaxConns > 0 {
		poolCfg.MaxConns = cfg.DB.MaxConns
	}
	if cfg.DB.MinConns > 0 {
		poolCfg.MinConns = cfg.DB.MinConns
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return storage{}, fmt.Errorf("connect database: %w", err)
	}
	c.closers = append(c.closers, func() {
		pool.LogPoolStats(context.Background())
		pool.Close()
	})

	txm := postgres.NewTxManager(pool).WithStatementTimeout(cfg.DB.StatementTimeout)
	c.HealthChecks["database"] = txm

	if cfg.DB.AutoMigrate {
		if err := postgres.Migrate(ctx, txm); err != nil {
			return storage{}, fmt.Errorf("migrate: %w", err)
		}
		log.Info("database schema is up to date")
	}

	audit, err := postgres.NewAuditService(txm)
	if err != nil {
		return storage{}, fmt.Errorf("init audit: %w", err)
	}
	c.closers = append(c.closers, audit.Close)

	return storage{
		txm:        txm,
		stock:      register_repo.NewStockRepo(txm),
		items:      catalog_repo.NewItemRepo(txm),
		warehouses: catalog_repo.NewWarehouseRepo(txm),
		counts:     document_repo.NewCountRepo(txm),
		numerator:  pgnumerator.New(pool),
		auditor:    countAudit{audit},
	}, nil
}

// countAudit serves count history from sys_audit.
type countAudit struct {
	*postgres.AuditService
}

func (a countAudit) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]count.AuditEntry, error) {
	entries, err := a.GetEntityHistory(ctx, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]count.AuditEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, count.AuditEntry{
			Action:    e.Action,
			UserID:    e.UserID,
			Changes:   e.Changes,
			CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// RedisClientOpt maps the Redis configuration onto asynq.
func RedisClientOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// WorkerHandlers binds the background task types to the container's services.
func (c *Container) WorkerHandlers() []jobs.TaskHandler {
	h := jobs.NewHandlers(c.ItemCache, c.Reports)
	return []jobs.TaskHandler{
		{Type: jobs.TaskItemSync, Handler: h.HandleItemSync},
		{Type: jobs.TaskResyncAll, Handler: h.HandleResyncAll},
		{Type: jobs.TaskExpiryScan, Handler: h.HandleExpiryScan},
	}
}

// WorkerCron returns the periodic tasks from configuration.
func WorkerCron(cfg config.JobsConfig) ([]jobs.CronRegistration, error) {
	var regs []jobs.CronRegistration
	if cfg.ResyncCron != "" {
		regs = append(regs, jobs.CronRegistration{Spec: cfg.ResyncCron, Task: jobs.NewResyncAllTask()})
	}
	if cfg.ExpiryCron != "" {
		task, err := jobs.NewExpiryScanTask(cfg.ExpiryWindowDays)
		if err != nil {
			return nil, err
		}
		regs = append(regs, jobs.CronRegistration{Spec: cfg.ExpiryCron, Task: task})
	}
	return regs, nil
}
