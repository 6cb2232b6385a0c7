package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
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

func TestStatic_Resolve(t *testing.T) {
	ctx := context.Background()

	token, err := NewStatic("shpat_test").Resolve(ctx, "any-shop.myshopify.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "shpat_test" {
		t.Errorf("token = %q, want %q", token, "shpat_test")
	}

	_, err = NewStatic("").Resolve(ctx, "any-shop.myshopify.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty static token, got: %v", err)
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	redisClient := setupTestRedis(t)
	store := NewRedisStore(redisClient)
	ctx := context.Background()

	const shop = "demo.myshopify.com"

	if _, err := store.Get(ctx, shop); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before set, got: %v", err)
	}

	if err := store.Set(ctx, shop, "shpat_abc123"); err != nil {
		t.Fatalf("set: %v", err)
	}

	entry, err := store.Get(ctx, shop)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Token != "shpat_abc123" {
		t.Errorf("token = %q, want %q", entry.Token, "shpat_abc123")
	}
	if entry.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}

	token, err := store.Resolve(ctx, shop)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if token != "shpat_abc123" {
		t.Errorf("resolved token = %q, want %q", token, "shpat_abc123")
	}

	if err := store.Delete(ctx, shop); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, shop); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}
}

func TestRedisStore_SetEmptyToken(t *testing.T) {
	redisClient := setupTestRedis(t)
	store := NewRedisStore(redisClient)

	if err := store.Set(context.Background(), "demo.myshopify.com", ""); err == nil {
		t.Error("expected error for empty token")
	}
}

// failingResolver simulates an unreachable backing store.
type failingResolver struct{}

func (failingResolver) Resolve(ctx context.Context, shop string) (string, error) {
	return "", errors.New("store unreachable")
}

func TestChain_Fallback(t *testing.T) {
	ctx := context.Background()

	chain := Chain{failingResolver{}, NewStatic("shpat_fallback")}
	token, err := chain.Resolve(ctx, "demo.myshopify.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "shpat_fallback" {
		t.Errorf("token = %q, want %q", token, "shpat_fallback")
	}

	empty := Chain{failingResolver{}, NewStatic("")}
	if _, err := empty.Resolve(ctx, "demo.myshopify.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound when all resolvers fail, got: %v", err)
	}
}
