package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LockService gates overlapping executions of the same (task_name,
// hash(kwargs)) per spec §4.7.1, backed by Redis SET ... NX PX ttl.
type LockService struct {
	client *redis.Client
	prefix string
}

func NewLockService(client *redis.Client, prefix string) *LockService {
	return &LockService{client: client, prefix: prefix}
}

// Key derives the lock key for a task invocation from its name and
// kwargs, so identical (task_name, kwargs) pairs contend for one lock
// regardless of which schedule dispatched them.
func (l *LockService) Key(taskName string, kwargs []byte) string {
	sum := sha256.Sum256(kwargs)
	return fmt.Sprintf("%s:%s:%s", l.prefix, taskName, hex.EncodeToString(sum[:8]))
}

// TryAcquire attempts to acquire the lock for key with the given TTL,
// returning (token, true, nil) on success or ("", false, nil) if already
// held. The caller must Release with the returned token.
func (l *LockService) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock: try acquire: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// AwaitAcquire polls TryAcquire until it succeeds, ctx is cancelled, or
// timeout elapses (spec §4.7.1's bounded wait for the queue policy).
func (l *LockService) AwaitAcquire(ctx context.Context, key string, ttl, timeout time.Duration, pollInterval time.Duration) (string, bool, error) {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		token, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil {
			return "", false, err
		}
		if ok {
			return token, true, nil
		}
		if time.Now().After(deadline) {
			return "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release drops the lock at key if it is still held by token (compare
// and delete via a small Lua script to avoid releasing a lock another
// holder has since acquired after this one expired).
func (l *LockService) Release(ctx context.Context, key, token string) error {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`
	return l.client.Eval(ctx, script, []string{key}, token).Err()
}
