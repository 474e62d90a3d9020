// Command server runs the document service: uploads, signed downloads,
// search, and text extraction for indexed documents.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/attachvault/internal/api"
	"github.com/dharsanguruparan/attachvault/internal/backend"
	"github.com/dharsanguruparan/attachvault/internal/config"
	"github.com/dharsanguruparan/attachvault/internal/metrics"
	"github.com/dharsanguruparan/attachvault/internal/processing"
	"github.com/dharsanguruparan/attachvault/internal/queue"
	"github.com/dharsanguruparan/attachvault/internal/signing"
	"github.com/dharsanguruparan/attachvault/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := metrics.New()
	stores, err := backend.Open(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer stores.Close()

	g, ctx := errgroup.WithContext(ctx)

	// Extraction goes through Redis when a worker process is deployed,
	// otherwise it runs in-process against the same stores.
	var enq api.Enqueuer
	if cfg.UsesRedis() {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		enq = queue.NewClient(client)
		logger.Info("extraction queue selected", "queue", "redis", "addr", cfg.RedisAddr)
	} else {
		pool := processing.New(worker.NewProcessor(stores.Index, stores.Blobs, logger, m), cfg.ProcessingPool, logger)
		g.Go(func() error { return pool.Run(ctx) })
		enq = pool
		logger.Info("extraction queue selected", "queue", "in-process", "workers", cfg.ProcessingPool)
	}

	srv := api.New(cfg, stores.Index, stores.Blobs, enq, signing.NewSigner(cfg.SigningSecret), logger, m)
	g.Go(func() error { return srv.Run(ctx) })
	return g.Wait()
}
