// admin-proxy serves the dashboard API: login, order tag aggregation, and
// the tag-driven mutation workflow, proxied against the Shopify admin REST
// API of a single shop.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shopdash/admin-proxy/internal/config"
	"github.com/shopdash/admin-proxy/internal/server"
	"github.com/shopdash/admin-proxy/pkg/auth"
	"github.com/shopdash/admin-proxy/pkg/credentials"
	"github.com/shopdash/admin-proxy/pkg/logging"
	"github.com/shopdash/admin-proxy/pkg/orders"
	"github.com/shopdash/admin-proxy/pkg/ratelimit"
	"github.com/shopdash/admin-proxy/pkg/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.Setup(logging.DefaultConfig())
		fallback.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := connectRedis(ctx, cfg.RedisURL, logger)

	resolver := credentials.Resolver(credentials.NewStatic(cfg.ShopifyToken))
	var tracker *ratelimit.Tracker
	if redisClient != nil {
		// Prefer a redis-stored token when one has been provisioned; the
		// env token stays as the fallback.
		resolver = credentials.Chain{
			credentials.NewRedisStore(redisClient),
			credentials.NewStatic(cfg.ShopifyToken),
		}
		tracker = ratelimit.NewTracker(redisClient, logger)
	}

	client, err := upstream.New(upstream.Config{
		ShopDomain:  cfg.ShopDomain,
		APIVersion:  cfg.APIVersion,
		Credentials: resolver,
		RateLimiter: tracker,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create admin API client")
	}

	authn, err := auth.New(auth.Config{
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
		JWTSecret:    cfg.JWTSecret,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create authenticator")
	}

	srv := server.New(orders.NewService(client, cfg.MaxPages), authn, redisClient, server.Config{
		APISecret:       cfg.APISecret,
		AllowedIPs:      cfg.AllowedIPs,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitWindow: cfg.RateLimitWindow,
		RateLimitMax:    cfg.RateLimitMax,
	})

	logger.Info().
		Str("shop", cfg.ShopDomain).
		Str("api_version", cfg.APIVersion).
		Msg("Admin proxy configured")

	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

// connectRedis returns a verified redis client, or nil when redis is
// unreachable. The proxy degrades gracefully: no inbound rate limiting, no
// call-limit tracking, env-only credentials.
func connectRedis(ctx context.Context, addr string, logger zerolog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("Redis unavailable, running without it")
		client.Close()
		return nil
	}

	logger.Info().Str("addr", addr).Msg("Connected to Redis")
	return client
}
