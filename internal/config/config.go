// Package config loads the proxy configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full proxy configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Shopify upstream.
	ShopDomain   string
	ShopifyToken string
	APIVersion   string

	// Dashboard auth.
	APISecret         string // static X-App-Token shared with the frontend
	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string

	// Request gates.
	AllowedIPs     []string
	AllowedOrigins []string

	// Inbound rate limit (fixed window per client IP).
	RateLimitWindow time.Duration
	RateLimitMax    int

	// MaxPages caps aggregation walks (0 = unbounded).
	MaxPages int

	RedisURL string

	LogLevel  string
	LogPretty bool
}

// Load reads configuration from the environment, consulting a local .env
// file when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:              ":" + envDefault("PORT", "8080"),
		ShopDomain:        strings.TrimSpace(os.Getenv("SHOPIFY_SHOP")),
		ShopifyToken:      strings.TrimSpace(os.Getenv("SHOPIFY_TOKEN")),
		APIVersion:        envDefault("SHOPIFY_API_VERSION", "2024-01"),
		APISecret:         strings.TrimSpace(os.Getenv("API_SECRET")),
		JWTSecret:         strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AdminUsername:     strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminPasswordHash: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD_HASH")),
		AllowedIPs:        splitCSV(os.Getenv("ALLOWED_IPS")),
		AllowedOrigins:    splitCSV(envDefault("ALLOWED_ORIGINS", "https://dashboard.example.com")),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", 5*time.Minute),
		RateLimitMax:      envInt("RATE_LIMIT_MAX", 50),
		MaxPages:          envInt("MAX_PAGES", 0),
		RedisURL:          envDefault("REDIS_URL", "localhost:6379"),
		LogLevel:          envDefault("LOG_LEVEL", "info"),
		LogPretty:         envBool("LOG_PRETTY", false),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	req := map[string]string{
		"SHOPIFY_SHOP":        c.ShopDomain,
		"SHOPIFY_TOKEN":       c.ShopifyToken,
		"API_SECRET":          c.APISecret,
		"JWT_SECRET":          c.JWTSecret,
		"ADMIN_USERNAME":      c.AdminUsername,
		"ADMIN_PASSWORD_HASH": c.AdminPasswordHash,
	}
	for k, v := range req {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}

	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("MAX_PAGES must not be negative, got %d", c.MaxPages)
	}
	return nil
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
