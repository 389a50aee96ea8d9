package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ueebee/stockura-scheduler/internal/config"
	"github.com/ueebee/stockura-scheduler/internal/cronexpr"
	"github.com/ueebee/stockura-scheduler/internal/scheduler"
	"github.com/ueebee/stockura-scheduler/internal/tracing"
)

// beatCmd runs the Beat: the scheduler process that owns the in-memory
// snapshot of enabled schedules and dispatches due firings.
func beatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "beat",
		Short: "Run the scheduler (computes due firings and dispatches them)",
		Long: "Run the scheduler (computes due firings and dispatches them).\n\n" +
			"The beat has no leader election: two beat processes against the same\n" +
			"schedule store and dispatch queue each dispatch every due firing, so\n" +
			"every schedule fires twice.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBeat(cmd.Context())
		},
	}
}

func runBeat(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("beat: load config: %w", err)
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{Endpoint: cfg.OTLPEndpoint, ServiceName: "stockura-beat"})
	if err != nil {
		return fmt.Errorf("beat: tracing setup: %w", err)
	}
	defer shutdownTracing(context.Background())

	stores, err := openScheduleStores(cfg.ScheduleStoreURL)
	if err != nil {
		return fmt.Errorf("beat: open schedule store: %w", err)
	}
	defer stores.close()

	dispatchQueue, closeQueue, err := openDispatchQueue(cfg.DispatchQueueURL)
	if err != nil {
		return fmt.Errorf("beat: open dispatch queue: %w", err)
	}
	defer closeQueue()

	eventBus, closeBus, err := openEventBus(cfg.EventBusURL, cfg.MutationChannel)
	if err != nil {
		return fmt.Errorf("beat: open event bus: %w", err)
	}
	defer closeBus()

	cron, err := cronexpr.New(cfg.CronTimezone)
	if err != nil {
		return fmt.Errorf("beat: cron evaluator: %w", err)
	}

	sched := scheduler.New(stores.schedules, dispatchQueue, eventBus, cron, scheduler.Config{
		DefaultResyncInterval: cfg.DefaultResyncInterval,
		MinSyncInterval:       cfg.MinSyncInterval,
		MaxTickInterval:       cfg.MaxTickInterval,
		MutationSyncEnabled:   cfg.MutationSyncEnabled && eventBus != nil,
	})

	slog.Info("beat starting", "schedule_store", cfg.ScheduleStoreURL, "dispatch_queue", cfg.DispatchQueueURL)
	return sched.Run(ctx)
}
