package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLockService(t *testing.T) *LockService {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLockService(client, "test-lock")
}

func TestLockService_TryAcquire_ExclusiveUntilReleased(t *testing.T) {
	locks := newTestLockService(t)
	ctx := context.Background()
	key := locks.Key("listed_info_sync", []byte(`{"market":"prime"}`))

	token, ok, err := locks.TryAcquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("try acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected first try acquire to succeed")
	}

	if _, ok, err := locks.TryAcquire(ctx, key, time.Minute); err != nil {
		t.Fatalf("try acquire: %v", err)
	} else if ok {
		t.Fatal("expected second try acquire to fail while held")
	}

	if err := locks.Release(ctx, key, token); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, ok, err := locks.TryAcquire(ctx, key, time.Minute); err != nil {
		t.Fatalf("try acquire: %v", err)
	} else if !ok {
		t.Fatal("expected try acquire to succeed after release")
	}
}

func TestLockService_Release_IgnoresMismatchedToken(t *testing.T) {
	locks := newTestLockService(t)
	ctx := context.Background()
	key := locks.Key("listed_info_sync", []byte(`{}`))

	_, ok, err := locks.TryAcquire(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("try acquire: ok=%v err=%v", ok, err)
	}

	if err := locks.Release(ctx, key, "not-the-real-token"); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, ok, err := locks.TryAcquire(ctx, key, time.Minute); err != nil {
		t.Fatalf("try acquire: %v", err)
	} else if ok {
		t.Fatal("expected lock to still be held after releasing with the wrong token")
	}
}

func TestLockService_AwaitAcquire_SucceedsOnceReleased(t *testing.T) {
	locks := newTestLockService(t)
	ctx := context.Background()
	key := locks.Key("listed_info_sync", []byte(`{}`))

	token, ok, err := locks.TryAcquire(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("try acquire: ok=%v err=%v", ok, err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		locks.Release(context.Background(), key, token)
	}()

	_, ok, err = locks.AwaitAcquire(ctx, key, time.Minute, time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("await acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected await acquire to succeed once the holder released")
	}
}

func TestLockService_AwaitAcquire_TimesOut(t *testing.T) {
	locks := newTestLockService(t)
	ctx := context.Background()
	key := locks.Key("listed_info_sync", []byte(`{}`))

	if _, ok, err := locks.TryAcquire(ctx, key, time.Minute); err != nil || !ok {
		t.Fatalf("try acquire: ok=%v err=%v", ok, err)
	}

	_, ok, err := locks.AwaitAcquire(ctx, key, time.Minute, 60*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("await acquire: %v", err)
	}
	if ok {
		t.Fatal("expected await acquire to time out while the lock stays held")
	}
}
