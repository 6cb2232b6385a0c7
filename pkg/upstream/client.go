// Package upstream provides the authenticated admin REST API client with
// call-limit awareness, error classification, and metrics.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shopdash/admin-proxy/pkg/credentials"
	"github.com/shopdash/admin-proxy/pkg/ratelimit"
)

// Prometheus metrics for admin API operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_upstream_requests_total",
		Help: "Total admin API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proxy_upstream_request_duration_seconds",
		Help:    "Admin API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_upstream_errors_total",
		Help: "Total admin API errors by class",
	}, []string{"class"})
)

// Client performs authenticated calls against one shop's admin REST API.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	baseURL     string
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// ShopDomain is the myshopify domain, e.g. "demo.myshopify.com".
	ShopDomain string

	// APIVersion is the admin API version segment, e.g. "2024-01".
	APIVersion string

	// Credentials resolves the access token for ShopDomain.
	Credentials credentials.Resolver

	// RateLimiter gates requests against the shop's call-limit bucket.
	// Optional: nil disables outbound throttling.
	RateLimiter *ratelimit.Tracker

	// Timeout is the per-request transport timeout.
	Timeout time.Duration

	// BaseURL overrides the https://<shop> base. Used by tests.
	BaseURL string
}

// New creates a new admin API client.
func New(cfg Config) (*Client, error) {
	if cfg.ShopDomain == "" {
		return nil, fmt.Errorf("shop domain is required")
	}
	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("api version is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential resolver is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + cfg.ShopDomain
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: cfg.RateLimiter,
		config:      cfg,
		baseURL:     baseURL,
		logger:      log.With().Str("component", "upstream-client").Logger(),
	}, nil
}

// Response is a fully buffered admin API response. The header is kept so
// callers can extract pagination metadata.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}

// Do performs one authenticated admin API call. path is the part after the
// version segment, e.g. "/orders.json". A non-nil body is sent as JSON.
// Non-2xx responses and transport faults return an *UpstreamError; there are
// no retries, callers own the abort policy.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Gate against the call-limit bucket. The caller giving up mid
	// throttle wait is fatal; a redis fault is not, the gate fails open.
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx, c.config.ShopDomain)
		switch {
		case err != nil && ctx.Err() != nil:
			upstreamRequestsTotal.WithLabelValues(path, "throttle_cancelled").Inc()
			return nil, fmt.Errorf("request cancelled while throttled: %w", err)
		case err != nil:
			c.logger.Warn().Err(err).Msg("Call-limit check failed, proceeding without gate")
		case !allowed:
			upstreamRequestsTotal.WithLabelValues(path, "throttle_cancelled").Inc()
			return nil, fmt.Errorf("request cancelled while throttled: %w", ctx.Err())
		}
	}

	// Step 2: Resolve the access token
	token, err := c.config.Credentials.Resolve(ctx, c.config.ShopDomain)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials for %s: %w", c.config.ShopDomain, err)
	}

	// Step 3: Build the request
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + "/admin/api/" + c.config.APIVersion + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().
		Str("endpoint", path).
		Str("method", method).
		Msg("Executing admin API request")

	// Step 4: Execute
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", path).Msg("Admin API request failed")
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		upstreamRequestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, &UpstreamError{
			ErrorClass: ErrorClassNetwork,
			Method:     method,
			Path:       path,
			Err:        err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &UpstreamError{
			ErrorClass: ErrorClassNetwork,
			Method:     method,
			Path:       path,
			Err:        fmt.Errorf("read response body: %w", err),
		}
	}

	// Step 5: Feed call-limit state back to the tracker
	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, c.config.ShopDomain, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update call-limit state from headers")
		}
	}

	// Step 6: Classify non-2xx responses
	if resp.StatusCode >= 400 {
		errClass := classifyStatus(resp.StatusCode)
		upstreamErrorsTotal.WithLabelValues(string(errClass)).Inc()
		upstreamRequestsTotal.WithLabelValues(path, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		c.logger.Warn().
			Str("endpoint", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Admin API request error")

		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Method:     method,
			Path:       path,
			Body:       respBody,
		}
	}

	upstreamRequestsTotal.WithLabelValues(path, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// Get performs a GET request against an admin API endpoint.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// ShopDomain returns the shop this client is bound to.
func (c *Client) ShopDomain() string {
	return c.config.ShopDomain
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
