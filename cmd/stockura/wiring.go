package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/ueebee/stockura-scheduler/internal/bus"
	appconfig "github.com/ueebee/stockura-scheduler/internal/config"
	"github.com/ueebee/stockura-scheduler/internal/queue"
	"github.com/ueebee/stockura-scheduler/internal/store"
	"github.com/ueebee/stockura-scheduler/internal/store/memstore"
	"github.com/ueebee/stockura-scheduler/internal/store/migrations"
	"github.com/ueebee/stockura-scheduler/internal/store/pg"
	"github.com/ueebee/stockura-scheduler/internal/store/sqlite"
	"github.com/ueebee/stockura-scheduler/internal/tasks/listedinfo"
	"github.com/ueebee/stockura-scheduler/internal/worker"
)

// openDB opens the backing SQL database named by dsn's scheme
// ("postgres://..." or "sqlite://<path>") and applies pending schema
// migrations. Postgres is the only migrated backend; sqlite carries its
// own fixed schema created at connection time.
func openDB(dsn string) (*sql.DB, string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := pg.OpenDB(dsn)
		if err != nil {
			return nil, "", err
		}
		if err := migrations.Apply(db); err != nil {
			db.Close()
			return nil, "", err
		}
		return db, "postgres", nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		db, err := sqlite.OpenDB(path)
		if err != nil {
			return nil, "", err
		}
		return db, "sqlite", nil
	default:
		return nil, "", fmt.Errorf("config: unsupported schedule_store_url scheme: %q", dsn)
	}
}

// scheduleStores bundles the three store backends a schedule_store_url
// selects together, since all three live in the same database.
type scheduleStores struct {
	schedules store.ScheduleStore
	logs      store.ExecutionLogStore
	listed    store.ListedInfoStore
	close     func() error
}

func openScheduleStores(dsn string) (*scheduleStores, error) {
	if dsn == "memory://" || dsn == "" {
		return &scheduleStores{
			schedules: memstore.NewScheduleStore(),
			logs:      memstore.NewExecutionLogStore(),
			listed:    memstore.NewListedInfoStore(),
			close:     func() error { return nil },
		}, nil
	}

	db, driver, err := openDB(dsn)
	if err != nil {
		return nil, err
	}

	switch driver {
	case "postgres":
		return &scheduleStores{
			schedules: pg.NewScheduleStore(db),
			logs:      pg.NewExecutionLogStore(db),
			listed:    pg.NewListedInfoStore(db),
			close:     db.Close,
		}, nil
	case "sqlite":
		return &scheduleStores{
			schedules: sqlite.NewScheduleStore(db),
			logs:      sqlite.NewExecutionLogStore(db),
			listed:    sqlite.NewListedInfoStore(db),
			close:     db.Close,
		}, nil
	default:
		db.Close()
		return nil, fmt.Errorf("config: unreachable schedule store driver %q", driver)
	}
}

// openEventBus selects bus.EventBus from event_bus_url's scheme. An
// empty URL disables mutation-event resync; the caller treats a nil bus
// as periodic-resync-only.
func openEventBus(url, channel string) (bus.EventBus, func() error, error) {
	switch {
	case url == "":
		return nil, func() error { return nil }, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, nil, fmt.Errorf("config: parse event_bus_url: %w", err)
		}
		client := redis.NewClient(opts)
		b := bus.NewRedisBus(client, channel)
		return b, func() error { return client.Close() }, nil
	case strings.HasPrefix(url, "memory://"):
		b := bus.NewMemoryBus()
		return b, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("config: unsupported event_bus_url scheme: %q", url)
	}
}

// openDispatchQueue selects queue.DispatchQueue from dispatch_queue_url's
// scheme.
func openDispatchQueue(url string) (queue.DispatchQueue, func() error, error) {
	switch {
	case url == "" || strings.HasPrefix(url, "memory://"):
		q := queue.NewMemoryQueue(1024)
		return q, q.Close, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, nil, fmt.Errorf("config: parse dispatch_queue_url: %w", err)
		}
		client := redis.NewClient(opts)
		q := queue.NewRedisQueue(client, "stockura:dispatch", 5*time.Minute)
		return q, func() error { return client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("config: unsupported dispatch_queue_url scheme: %q", url)
	}
}

// newArchiver builds the listed-info task's optional S3 archiver. A nil
// Archiver (when bucket is unset) disables archival entirely.
func newArchiver(bucket, region string) (listedinfo.Archiver, error) {
	if bucket == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("config: load AWS config: %w", err)
	}
	return listedinfo.NewS3Archiver(s3.NewFromConfig(awsCfg), bucket), nil
}

// openLockService builds the execution-policy LockService from whichever
// configured Redis URL is available (token cache first, then dispatch
// queue). When neither is Redis-backed there is no shared lock store
// across workers; the Pool degrades to PolicyAllow semantics for skip/
// queue policies in that case (see worker.Pool.consultPolicy).
func openLockService(cfg *appconfig.Config) (*worker.LockService, func() error, error) {
	for _, url := range []string{cfg.TokenCacheURL, cfg.DispatchQueueURL} {
		if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
			continue
		}
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, nil, fmt.Errorf("config: parse redis url for lock service: %w", err)
		}
		client := redis.NewClient(opts)
		return worker.NewLockService(client, "stockura:exec-lock"), func() error { return client.Close() }, nil
	}
	return nil, func() error { return nil }, nil
}

func newHTTPClient(cfg *appconfig.Config) *http.Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
