package ratelimit

import (
	"context"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

const testShop = "demo.myshopify.com"

func TestTracker_DefaultState(t *testing.T) {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())

	state, err := tracker.GetState(context.Background(), testShop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Used != 0 {
		t.Errorf("default used = %d, want 0", state.Used)
	}
	if state.Ceiling != 40 {
		t.Errorf("default ceiling = %d, want 40", state.Ceiling)
	}
	if state.NearlyFull() {
		t.Error("default state must not be nearly full")
	}
}

func TestTracker_UpdateFromHeaders(t *testing.T) {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(CallLimitHeader, "35/40")

	if err := tracker.UpdateFromHeaders(ctx, testShop, headers); err != nil {
		t.Fatalf("update: %v", err)
	}

	state, err := tracker.GetState(ctx, testShop)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Used != 35 || state.Ceiling != 40 {
		t.Errorf("state = %d/%d, want 35/40", state.Used, state.Ceiling)
	}
}

func TestTracker_UpdateMissingHeader(t *testing.T) {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())

	// Missing header is not an error.
	if err := tracker.UpdateFromHeaders(context.Background(), testShop, http.Header{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTracker_UpdateMalformedHeader(t *testing.T) {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())

	headers := http.Header{}
	headers.Set(CallLimitHeader, "garbage")

	if err := tracker.UpdateFromHeaders(context.Background(), testShop, headers); err == nil {
		t.Error("expected error for malformed header")
	}
}

func TestTracker_AllowsHealthyBucket(t *testing.T) {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(CallLimitHeader, "5/40")
	if err := tracker.UpdateFromHeaders(ctx, testShop, headers); err != nil {
		t.Fatalf("update: %v", err)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx, testShop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("healthy bucket must allow requests")
	}
}

func TestTracker_CancelledDuringThrottle(t *testing.T) {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(CallLimitHeader, "40/40")
	if err := tracker.UpdateFromHeaders(ctx, testShop, headers); err != nil {
		t.Fatalf("update: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	allowed, err := tracker.ShouldAllowRequest(cancelled, testShop)
	if allowed {
		t.Error("cancelled context must not allow a throttled request")
	}
	if err == nil {
		t.Error("expected context error")
	}
}
