package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/ueebee/stockura-scheduler/internal/config"
)

func TestLimiter_TryAcquire_ExhaustsBurst(t *testing.T) {
	l := New(map[string]config.RateLimitBucket{
		"jquants": {Name: "jquants", Requests: 2, Window: time.Minute},
	})

	if !l.TryAcquire("jquants") {
		t.Fatal("expected first acquire to succeed")
	}
	if !l.TryAcquire("jquants") {
		t.Fatal("expected second acquire to succeed (burst = requests)")
	}
	if l.TryAcquire("jquants") {
		t.Fatal("expected third acquire to fail, burst exhausted")
	}
}

func TestLimiter_UnknownBucket_Unbounded(t *testing.T) {
	l := New(map[string]config.RateLimitBucket{})
	for i := 0; i < 10; i++ {
		if !l.TryAcquire("unconfigured") {
			t.Fatalf("acquire %d: expected unconfigured bucket to be unbounded", i)
		}
	}
}

func TestLimiter_Acquire_RespectsCancelledContext(t *testing.T) {
	l := New(map[string]config.RateLimitBucket{
		"jquants": {Name: "jquants", Requests: 1, Window: time.Hour},
	})
	if !l.TryAcquire("jquants") {
		t.Fatal("expected first acquire to succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, "jquants"); err == nil {
		t.Fatal("expected Acquire to time out while the bucket is exhausted")
	}
}
