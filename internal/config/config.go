// Package config assembles process-wide settings from the environment,
// the same way internal/config did for the teacher, but trades the
// teacher's file-watching hot reload for the spec's env-only model: every
// field here is read once at process start by Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitBucket is the per-bucket token-bucket configuration loaded from
// RATE_LIMIT_<BUCKET>_REQUESTS / RATE_LIMIT_<BUCKET>_WINDOW_S.
type RateLimitBucket struct {
	Name     string
	Requests int
	Window   time.Duration
}

// Config holds every setting named in spec §6.1.
type Config struct {
	ScheduleStoreURL    string
	DispatchQueueURL    string
	EventBusURL         string
	MutationChannel     string
	MutationSyncEnabled bool

	DefaultResyncInterval time.Duration
	MinSyncInterval       time.Duration
	MaxTickInterval       time.Duration

	CronTimezone string

	TokenCacheURL             string
	TokenCacheEncryptionKey   string

	RateLimitBuckets map[string]RateLimitBucket

	ExternalAPIBaseURL     string
	ExternalAPICredentials string

	HTTPTimeout time.Duration

	ArchiveS3Bucket string
	ArchiveS3Region string

	OTLPEndpoint string

	WorkerConcurrency  int
	ExecutionLockTTL   time.Duration
	ExecutionQueueWait time.Duration
}

// Load reads Config from the environment, applying spec-mandated defaults
// for every field that has one.
func Load() (*Config, error) {
	cfg := &Config{
		ScheduleStoreURL:        os.Getenv("SCHEDULE_STORE_URL"),
		DispatchQueueURL:        os.Getenv("DISPATCH_QUEUE_URL"),
		EventBusURL:             os.Getenv("EVENT_BUS_URL"),
		MutationChannel:         getenvDefault("MUTATION_CHANNEL", "schedule.mutations"),
		MutationSyncEnabled:     getenvBoolDefault("MUTATION_SYNC_ENABLED", true),
		CronTimezone:            getenvDefault("CRON_TIMEZONE", "UTC"),
		TokenCacheURL:           getenvDefault("TOKEN_CACHE_URL", "memory://"),
		TokenCacheEncryptionKey: os.Getenv("TOKEN_CACHE_ENCRYPTION_KEY"),
		ExternalAPIBaseURL:      os.Getenv("EXTERNAL_API_BASE_URL"),
		ExternalAPICredentials:  os.Getenv("EXTERNAL_API_CREDENTIALS"),
		ArchiveS3Bucket:         os.Getenv("ARCHIVE_S3_BUCKET"),
		ArchiveS3Region:         getenvDefault("ARCHIVE_S3_REGION", "ap-northeast-1"),
		OTLPEndpoint:            os.Getenv("OTLP_ENDPOINT"),
	}

	var err error
	if cfg.DefaultResyncInterval, err = getenvDurationSeconds("DEFAULT_RESYNC_INTERVAL_S", 60); err != nil {
		return nil, err
	}
	if cfg.MinSyncInterval, err = getenvDurationSeconds("MIN_SYNC_INTERVAL_S", 5); err != nil {
		return nil, err
	}
	if cfg.MaxTickInterval, err = getenvDurationSeconds("MAX_TICK_INTERVAL_S", 5); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDurationSeconds("EXTERNAL_API_TIMEOUT_S", 30); err != nil {
		return nil, err
	}
	if cfg.ExecutionLockTTL, err = getenvDurationSeconds("EXECUTION_LOCK_TTL_S", 600); err != nil {
		return nil, err
	}
	if cfg.ExecutionQueueWait, err = getenvDurationSeconds("EXECUTION_QUEUE_WAIT_S", 300); err != nil {
		return nil, err
	}
	workerConcurrency, err := strconv.Atoi(getenvDefault("WORKER_CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("config: WORKER_CONCURRENCY: %w", err)
	}
	cfg.WorkerConcurrency = workerConcurrency

	cfg.RateLimitBuckets, err = loadRateLimitBuckets()
	if err != nil {
		return nil, err
	}

	if cfg.ScheduleStoreURL == "" {
		return nil, fmt.Errorf("config: SCHEDULE_STORE_URL is required")
	}
	return cfg, nil
}

// loadRateLimitBuckets scans RATE_LIMIT_<BUCKET>_REQUESTS variables to
// discover configured bucket names, then pairs each with its _WINDOW_S.
func loadRateLimitBuckets() (map[string]RateLimitBucket, error) {
	buckets := make(map[string]RateLimitBucket)
	const prefix = "RATE_LIMIT_"
	const suffix = "_REQUESTS"
	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
			continue
		}
		name := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix))
		reqs, err := strconv.Atoi(os.Getenv(key))
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", key, err)
		}
		windowKey := prefix + strings.ToUpper(name) + "_WINDOW_S"
		windowSecs, err := strconv.Atoi(getenvDefault(windowKey, "60"))
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", windowKey, err)
		}
		buckets[name] = RateLimitBucket{
			Name:     name,
			Requests: reqs,
			Window:   time.Duration(windowSecs) * time.Second,
		}
	}
	return buckets, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationSeconds(key string, defSeconds int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defSeconds) * time.Second, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}
