package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ueebee/stockura-scheduler/internal/config"
	"github.com/ueebee/stockura-scheduler/internal/queue"
	"github.com/ueebee/stockura-scheduler/internal/ratelimit"
	"github.com/ueebee/stockura-scheduler/internal/tasks"
	"github.com/ueebee/stockura-scheduler/internal/tasks/listedinfo"
	"github.com/ueebee/stockura-scheduler/internal/tokencache"
	"github.com/ueebee/stockura-scheduler/internal/tracing"
	"github.com/ueebee/stockura-scheduler/internal/worker"
)

// workerCmd runs a Worker: a Dispatch Queue consumer that executes
// registered tasks under the lane's bounded concurrency and the
// execution-policy lock service.
func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a worker (consumes the dispatch queue and executes tasks)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("worker: load config: %w", err)
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{Endpoint: cfg.OTLPEndpoint, ServiceName: "stockura-worker"})
	if err != nil {
		return fmt.Errorf("worker: tracing setup: %w", err)
	}
	defer shutdownTracing(context.Background())

	stores, err := openScheduleStores(cfg.ScheduleStoreURL)
	if err != nil {
		return fmt.Errorf("worker: open schedule store: %w", err)
	}
	defer stores.close()

	dispatchQueue, closeQueue, err := openDispatchQueue(cfg.DispatchQueueURL)
	if err != nil {
		return fmt.Errorf("worker: open dispatch queue: %w", err)
	}
	defer closeQueue()
	// Redis-backed queues need a janitor recovering deliveries orphaned
	// by a worker that crashed mid-task; the in-memory queue has no
	// processing list to sweep.
	if redisQueue, ok := dispatchQueue.(*queue.RedisQueue); ok {
		go redisQueue.RunJanitor(ctx, 0)
	}

	locks, closeLocks, err := openLockService(cfg)
	if err != nil {
		return fmt.Errorf("worker: open lock service: %w", err)
	}
	defer closeLocks()

	tokenStore, err := tokencache.OpenStore(cfg.TokenCacheURL, cfg.TokenCacheEncryptionKey)
	if err != nil {
		return fmt.Errorf("worker: open token cache store: %w", err)
	}

	httpClient := newHTTPClient(cfg)
	authenticator := listedinfo.NewAPIAuthenticator(httpClient, cfg.ExternalAPIBaseURL, cfg.ExternalAPICredentials)
	tokens := tokencache.New(tokenStore, authenticator, cfg.TokenCacheEncryptionKey)

	limiter := ratelimit.New(cfg.RateLimitBuckets)

	archiver, err := newArchiver(cfg.ArchiveS3Bucket, cfg.ArchiveS3Region)
	if err != nil {
		return fmt.Errorf("worker: build archiver: %w", err)
	}

	tokenKey, _, _ := strings.Cut(cfg.ExternalAPICredentials, ":")

	registry := tasks.NewRegistry()
	listedInfoTask := listedinfo.New(httpClient, cfg.ExternalAPIBaseURL, tokenKey, tokens, limiter, stores.listed, archiver)
	registry.Register(listedinfo.TaskName, listedInfoTask.Run)

	pool := worker.NewPool(dispatchQueue, stores.logs, registry, locks, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		LockTTL:      cfg.ExecutionLockTTL,
		QueueWait:    cfg.ExecutionQueueWait,
		LockKeyspace: "stockura:exec-lock",
	})

	slog.Info("worker starting", "concurrency", cfg.WorkerConcurrency, "dispatch_queue", cfg.DispatchQueueURL)
	return pool.Run(ctx)
}
