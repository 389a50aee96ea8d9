package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// RedisQueue implements the reliable-queue pattern: Enqueue LPUSHes onto
// the main list, Consume BRPOPLPUSHes into a per-consumer processing
// list so a crash mid-handling leaves the message recoverable, and Ack
// LREMs it from the processing list. A background janitor requeues
// entries that have sat in a processing list past the visibility
// timeout, covering a worker that died without acking.
type RedisQueue struct {
	client            *redis.Client
	mainKey           string
	processingKeyBase string
	consumerID        string
	visibility        time.Duration
}

// NewRedisQueue builds a RedisQueue. keyPrefix namespaces the Redis keys
// (e.g. "stockura:dispatch"); visibility is how long a delivery may sit
// unacked in the processing list before the janitor requeues it.
func NewRedisQueue(client *redis.Client, keyPrefix string, visibility time.Duration) *RedisQueue {
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &RedisQueue{
		client:            client,
		mainKey:           keyPrefix + ":main",
		processingKeyBase: keyPrefix + ":processing:",
		consumerID:        uuid.NewString(),
		visibility:        visibility,
	}
}

func (q *RedisQueue) processingKey() string {
	return q.processingKeyBase + q.consumerID
}

// processingTimesKey is a sorted set tracking, per entry in the
// processing list, the unix time it was handed to BRPopLPush. sweep
// consults it so only entries actually older than the visibility
// timeout are requeued, instead of every in-flight entry.
func (q *RedisQueue) processingTimesKey() string {
	return q.processingKey() + ":times"
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg model.DispatchMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: marshal dispatch message: %w", err)
	}
	if err := q.client.LPush(ctx, q.mainKey, payload).Err(); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context) (*Delivery, error) {
	raw, err := q.client.BRPopLPush(ctx, q.mainKey, q.processingKey(), 0).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: consume: %w", err)
	}

	var msg model.DispatchMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Malformed payload: remove it so it doesn't poison every
		// consumer forever and report the failure upward.
		q.client.LRem(ctx, q.processingKey(), 1, raw)
		return nil, fmt.Errorf("queue: unmarshal dispatch message: %w", err)
	}

	timesKey := q.processingTimesKey()
	if err := q.client.ZAdd(ctx, timesKey, redis.Z{Score: float64(time.Now().Unix()), Member: raw}).Err(); err != nil {
		slog.Warn("queue: record processing timestamp failed", "error", err)
	}

	processingKey := q.processingKey()
	return &Delivery{
		Message: msg,
		Ack: func(ctx context.Context) error {
			q.client.ZRem(ctx, timesKey, raw)
			return q.client.LRem(ctx, processingKey, 1, raw).Err()
		},
		Nack: func(ctx context.Context) error {
			q.client.ZRem(ctx, timesKey, raw)
			if err := q.client.LRem(ctx, processingKey, 1, raw).Err(); err != nil {
				return err
			}
			return q.client.LPush(ctx, q.mainKey, raw).Err()
		},
	}, nil
}

func (q *RedisQueue) Close() error {
	return nil
}

// RunJanitor periodically sweeps every consumer's processing list under
// the queue's key prefix and requeues anything older than the visibility
// timeout, recovering deliveries orphaned by a worker crash (a restarted
// worker gets a new consumer ID, so the dead one's list is swept by
// whichever janitors are still running). Callers run it in its own
// goroutine, one per consumer.
func (q *RedisQueue) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = q.visibility
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep(ctx)
		}
	}
}

func (q *RedisQueue) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-q.visibility).Unix()
	timesKeys, err := q.client.Keys(ctx, q.processingKeyBase+"*:times").Result()
	if err != nil {
		slog.Warn("queue janitor: list processing lists failed", "error", err)
		return
	}
	for _, timesKey := range timesKeys {
		processingKey := strings.TrimSuffix(timesKey, ":times")
		stale, err := q.client.ZRangeByScore(ctx, timesKey, &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(cutoff, 10),
		}).Result()
		if err != nil {
			slog.Warn("queue janitor: list stale processing entries failed", "error", err)
			continue
		}
		for _, raw := range stale {
			removed, err := q.client.LRem(ctx, processingKey, 1, raw).Result()
			if err != nil {
				slog.Warn("queue janitor: remove stale entry failed", "error", err)
				continue
			}
			q.client.ZRem(ctx, timesKey, raw)
			if removed == 0 {
				continue // already acked, or requeued by another janitor
			}
			if err := q.client.LPush(ctx, q.mainKey, raw).Err(); err != nil {
				slog.Warn("queue janitor: requeue stale entry failed", "error", err)
			}
		}
	}
}
