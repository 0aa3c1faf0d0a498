// Package main is the entry point for the stock ledger background worker.
// It drains the item-cache sync queue and runs the nightly resync and the
// expiry scan.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockledger/internal/app"
	"stockledger/internal/infrastructure/jobs"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDevelopment(),
		Service:     "stockledger-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if !cfg.Redis.Enabled() {
		log.Fatal("REDIS_ADDR is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting stockledger worker")

	// The worker computes summaries itself, so it never re-enqueues.
	cfg.Ledger.SyncMode = config.SyncInline

	container, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize services", "error", err)
	}
	defer container.Close()

	cron, err := app.WorkerCron(cfg.Jobs)
	if err != nil {
		log.Fatalw("invalid periodic task configuration", "error", err)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   app.RedisClientOpt(cfg.Redis),
		Concurrency: cfg.Jobs.Concurrency,
		Logger:      log,
		Tracker:     container.Metrics,
		Handlers:    container.WorkerHandlers(),
		Cron:        cron,
	})
	if err != nil {
		log.Fatalw("failed to create worker", "error", err)
	}

	if err := worker.Run(ctx); err != nil {
		log.Errorw("worker stopped with error", "error", err)
	}
	log.Info("worker stopped")
}
