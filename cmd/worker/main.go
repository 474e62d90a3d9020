// Command worker consumes extraction jobs from Redis and indexes document
// text into PostgreSQL.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/attachvault/internal/backend"
	"github.com/dharsanguruparan/attachvault/internal/config"
	"github.com/dharsanguruparan/attachvault/internal/metrics"
	"github.com/dharsanguruparan/attachvault/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()

	if !cfg.UsesRedis() {
		logger.Error("ATTACHVAULT_REDIS_ADDR is required for the standalone worker")
		closeLog()
		os.Exit(1)
	}
	stores, err := backend.Open(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("open backends", "error", err)
		closeLog()
		os.Exit(1)
	}
	defer stores.Close()

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.ProcessingPool,
	})
	processor := worker.NewProcessor(stores.Index, stores.Blobs, logger, metrics.New())
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker started", "concurrency", cfg.ProcessingPool)
	if err := server.Run(mux); err != nil {
		logger.Error("worker stopped", "error", err)
		stores.Close()
		closeLog()
		os.Exit(1)
	}
}
