// Package credentials resolves per-shop admin API access tokens.
//
// The proxy itself is stateless; tokens live either in configuration (Static)
// or in redis (RedisStore), so nothing is lost on restart. Handlers always go
// through the Resolver interface and never see where a token came from.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates no credential is stored for the requested shop.
var ErrNotFound = errors.New("credentials not found")

// Resolver resolves the admin API access token for a shop.
type Resolver interface {
	Resolve(ctx context.Context, shop string) (string, error)
}

// Static resolves every shop to one configured token. This mirrors the
// single-tenant deployment where the proxy fronts exactly one store.
type Static struct {
	token string
}

// NewStatic creates a static resolver for the given token.
func NewStatic(token string) *Static {
	return &Static{token: token}
}

// Resolve returns the configured token, or ErrNotFound when none is set.
func (s *Static) Resolve(ctx context.Context, shop string) (string, error) {
	if s.token == "" {
		return "", ErrNotFound
	}
	return s.token, nil
}

// Entry is a stored credential record.
type Entry struct {
	// Token is the admin API access token.
	Token string `json:"token"`

	// UpdatedAt is when the credential was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisStore persists per-shop credentials in redis as JSON entries.
// Safe for concurrent use from multiple requests and processes.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a credential store with redis backend.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

func storeKey(shop string) string {
	return "shopify:credentials:" + shop
}

// Get retrieves the stored entry for a shop.
// Returns ErrNotFound if no credential exists.
func (s *RedisStore) Get(ctx context.Context, shop string) (*Entry, error) {
	data, err := s.redis.Get(ctx, storeKey(shop)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal credential entry: %w", err)
	}

	return &entry, nil
}

// Set stores a credential for a shop. Entries never expire; rotation happens
// by overwriting.
func (s *RedisStore) Set(ctx context.Context, shop, token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	entry := Entry{
		Token:     token,
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal credential entry: %w", err)
	}

	if err := s.redis.Set(ctx, storeKey(shop), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes the credential for a shop.
func (s *RedisStore) Delete(ctx context.Context, shop string) error {
	if err := s.redis.Del(ctx, storeKey(shop)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Resolve implements Resolver.
func (s *RedisStore) Resolve(ctx context.Context, shop string) (string, error) {
	entry, err := s.Get(ctx, shop)
	if err != nil {
		return "", err
	}
	return entry.Token, nil
}

// Chain tries each resolver in order and returns the first token found.
// Resolver errors (including an unreachable store) fall through to the next
// entry so a redis outage degrades to the configured static token instead of
// failing requests.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, shop string) (string, error) {
	for _, r := range c {
		token, err := r.Resolve(ctx, shop)
		if err == nil {
			return token, nil
		}
	}
	return "", ErrNotFound
}
