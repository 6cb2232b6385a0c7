package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CallLimitHeader is the admin API header reporting bucket usage.
const CallLimitHeader = "X-Shopify-Shop-Api-Call-Limit"

// Prometheus metrics for call-limit tracking.
var (
	callLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "proxy_call_limit_remaining",
		Help: "Free call-limit bucket slots by shop",
	}, []string{"shop"})

	callLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_call_limit_throttles_total",
		Help: "Total requests delayed waiting for the call-limit bucket to drain",
	})
)

// Tracker monitors admin API call-limit headers and gates outgoing requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new call-limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current bucket state for a shop from Redis.
// Returns a default healthy state if no data exists.
func (t *Tracker) GetState(ctx context.Context, shop string) (*BucketState, error) {
	used, err := t.redis.Get(ctx, redisKeyPrefix+shop+redisKeyUsed).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get bucket used: %w", err)
	}

	ceiling, err := t.redis.Get(ctx, redisKeyPrefix+shop+redisKeyCeiling).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get bucket ceiling: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, redisKeyPrefix+shop+redisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	// No state yet: assume an empty standard bucket.
	if err == redis.Nil || ceiling == 0 {
		t.logger.Debug().Str("shop", shop).Msg("No call-limit state in Redis, assuming empty bucket")
		return &BucketState{
			Used:       0,
			Ceiling:    40,
			LastUpdate: time.Now(),
		}, nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return &BucketState{
		Used:       used,
		Ceiling:    ceiling,
		LastUpdate: lastUpdate,
	}, nil
}

// UpdateFromHeaders parses the call-limit header and updates Redis state.
// A missing header is not an error; not every endpoint reports it.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, shop string, headers http.Header) error {
	value := headers.Get(CallLimitHeader)
	if value == "" {
		return nil
	}

	used, ceiling, err := ParseCallLimit(value)
	if err != nil {
		return err
	}

	now := time.Now()
	state := &BucketState{
		Used:       used,
		Ceiling:    ceiling,
		LastUpdate: now,
	}

	lastUpdateJSON, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Store atomically; expire with the state max age so dead shops don't
	// accumulate keys.
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, redisKeyPrefix+shop+redisKeyUsed, used, StateMaxAge)
	pipe.Set(ctx, redisKeyPrefix+shop+redisKeyCeiling, ceiling, StateMaxAge)
	pipe.Set(ctx, redisKeyPrefix+shop+redisKeyLastUpdate, lastUpdateJSON, StateMaxAge)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store call-limit state in redis: %w", err)
	}

	callLimitRemaining.WithLabelValues(shop).Set(float64(state.Remaining()))

	if state.NearlyFull() {
		t.logger.Warn().
			Str("shop", shop).
			Int("used", used).
			Int("ceiling", ceiling).
			Msg("Call-limit bucket nearly full, requests will be throttled")
	} else {
		t.logger.Debug().
			Str("shop", shop).
			Int("used", used).
			Int("ceiling", ceiling).
			Msg("Call-limit state updated")
	}

	return nil
}

// ShouldAllowRequest gates an outgoing request against the bucket state.
// When the bucket is nearly full it sleeps until enough slots have drained.
// Returns false only when the context is cancelled during the wait; the
// bucket always drains, so there is no hard block.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, shop string) (bool, error) {
	state, err := t.GetState(ctx, shop)
	if err != nil {
		return false, fmt.Errorf("get call-limit state: %w", err)
	}

	if state.IsStale() || !state.NearlyFull() {
		return true, nil
	}

	wait := state.DrainWait()
	t.logger.Warn().
		Str("shop", shop).
		Int("remaining", state.Remaining()).
		Dur("wait", wait).
		Msg("Throttling request until call-limit bucket drains")
	callLimitThrottlesTotal.Inc()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(wait):
		return true, nil
	}
}
