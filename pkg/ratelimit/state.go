// Package ratelimit tracks the admin API call-limit bucket and throttles
// outgoing requests before the upstream starts returning 429s.
// It monitors the X-Shopify-Shop-Api-Call-Limit header ("used/ceiling") and
// shares the per-shop bucket state across instances via Redis.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Redis key fragments for bucket state storage, keyed per shop.
const (
	redisKeyPrefix     = "shopify:call_limit:"
	redisKeyUsed       = ":used"
	redisKeyCeiling    = ":ceiling"
	redisKeyLastUpdate = ":last_update"
)

// Thresholds for throttling decisions.
const (
	// SafetyMargin is the number of bucket slots kept in reserve. When fewer
	// slots remain, requests are throttled until the bucket drains.
	SafetyMargin = 4

	// LeakRate is the bucket drain rate in slots per second, per the admin
	// API's documented leaky bucket.
	LeakRate = 2

	// StateMaxAge is how long bucket state stays authoritative. The bucket
	// drains continuously, so stale state is treated as healthy.
	StateMaxAge = 30 * time.Second
)

// BucketState represents the call-limit bucket for one shop.
type BucketState struct {
	// Used is the number of occupied bucket slots, from the call-limit header.
	Used int `json:"used"`

	// Ceiling is the bucket capacity, from the call-limit header.
	Ceiling int `json:"ceiling"`

	// LastUpdate is when this state was last refreshed from a response.
	LastUpdate time.Time `json:"last_update"`
}

// ParseCallLimit parses a "used/ceiling" call-limit header value.
func ParseCallLimit(value string) (used, ceiling int, err error) {
	parts := strings.SplitN(strings.TrimSpace(value), "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed call limit %q", value)
	}

	used, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse call limit used: %w", err)
	}

	ceiling, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse call limit ceiling: %w", err)
	}

	if ceiling <= 0 {
		return 0, 0, fmt.Errorf("call limit ceiling must be positive, got %d", ceiling)
	}

	return used, ceiling, nil
}

// Remaining returns the number of free bucket slots, accounting for drain
// since the last update.
func (s *BucketState) Remaining() int {
	drained := int(time.Since(s.LastUpdate).Seconds()) * LeakRate
	used := s.Used - drained
	if used < 0 {
		used = 0
	}
	return s.Ceiling - used
}

// NearlyFull returns true when fewer than SafetyMargin slots remain.
func (s *BucketState) NearlyFull() bool {
	return s.Remaining() < SafetyMargin
}

// IsStale returns true if the state is older than StateMaxAge.
func (s *BucketState) IsStale() bool {
	return time.Since(s.LastUpdate) > StateMaxAge
}

// DrainWait returns how long to wait for SafetyMargin slots to free up.
func (s *BucketState) DrainWait() time.Duration {
	missing := SafetyMargin - s.Remaining()
	if missing <= 0 {
		return 0
	}
	// Round up to whole drain intervals.
	seconds := (missing + LeakRate - 1) / LeakRate
	return time.Duration(seconds) * time.Second
}
