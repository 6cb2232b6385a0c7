package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shopdash/admin-proxy/internal/testutil"
	"github.com/shopdash/admin-proxy/pkg/credentials"
	"github.com/shopdash/admin-proxy/pkg/ratelimit"
)

func newTestClient(t *testing.T, mock *testutil.MockAdmin) *Client {
	t.Helper()

	client, err := New(Config{
		ShopDomain:  "demo.myshopify.com",
		APIVersion:  "2024-01",
		Credentials: credentials.NewStatic("shpat_test"),
		Timeout:     5 * time.Second,
		BaseURL:     mock.URL(),
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			config: Config{
				ShopDomain:  "demo.myshopify.com",
				APIVersion:  "2024-01",
				Credentials: credentials.NewStatic("shpat_test"),
			},
			expectError: false,
		},
		{
			name: "missing shop domain",
			config: Config{
				APIVersion:  "2024-01",
				Credentials: credentials.NewStatic("shpat_test"),
			},
			expectError: true,
			errorMsg:    "shop domain is required",
		},
		{
			name: "missing api version",
			config: Config{
				ShopDomain:  "demo.myshopify.com",
				Credentials: credentials.NewStatic("shpat_test"),
			},
			expectError: true,
			errorMsg:    "api version is required",
		},
		{
			name: "missing credentials",
			config: Config{
				ShopDomain: "demo.myshopify.com",
				APIVersion: "2024-01",
			},
			expectError: true,
			errorMsg:    "credential resolver is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got nil")
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("error = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("expected client")
			}
		})
	}
}

func TestClient_Get(t *testing.T) {
	mock := testutil.NewMockAdmin()
	defer mock.Close()

	mock.SetResponse("/admin/api/2024-01/shop.json", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"shop": {"name": "demo"}}`,
	})

	client := newTestClient(t, mock)

	resp, err := client.Get(context.Background(), "/shop.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var decoded struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	if err := resp.DecodeJSON(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Shop.Name != "demo" {
		t.Errorf("shop name = %q, want %q", decoded.Shop.Name, "demo")
	}

	// The access token must accompany every request.
	if got := mock.LastRequestHeader.Get("X-Shopify-Access-Token"); got != "shpat_test" {
		t.Errorf("access token header = %q, want %q", got, "shpat_test")
	}
}

func TestClient_PostEncodesJSONBody(t *testing.T) {
	mock := testutil.NewMockAdmin()
	defer mock.Close()

	mock.SetResponse("/admin/api/2024-01/orders/1/transactions.json", testutil.MockResponse{
		StatusCode: http.StatusCreated,
		Body:       `{"transaction": {"id": 99}}`,
	})

	client := newTestClient(t, mock)

	body := map[string]any{"transaction": map[string]any{"kind": "capture"}}
	resp, err := client.Post(context.Background(), "/orders/1/transactions.json", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}

	var sent map[string]map[string]any
	if err := json.Unmarshal(reqs[0].Body, &sent); err != nil {
		t.Fatalf("decode recorded body: %v", err)
	}
	if sent["transaction"]["kind"] != "capture" {
		t.Errorf("sent body = %v, want capture transaction", sent)
	}
	if ct := mock.LastRequestHeader.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantClass ErrorClass
	}{
		{"not found", http.StatusNotFound, ErrorClassClient},
		{"unprocessable", http.StatusUnprocessableEntity, ErrorClassClient},
		{"call limit", http.StatusTooManyRequests, ErrorClassThrottle},
		{"server error", http.StatusInternalServerError, ErrorClassServer},
		{"bad gateway", http.StatusBadGateway, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAdmin()
			defer mock.Close()

			mock.SetResponse("/admin/api/2024-01/orders.json", testutil.MockResponse{
				StatusCode: tt.status,
				Body:       `{"errors": "nope"}`,
			})

			client := newTestClient(t, mock)

			_, err := client.Get(context.Background(), "/orders.json")
			if err == nil {
				t.Fatal("expected error")
			}

			var upErr *UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("expected *UpstreamError, got %T: %v", err, err)
			}
			if upErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", upErr.StatusCode, tt.status)
			}
			if upErr.ErrorClass != tt.wantClass {
				t.Errorf("class = %s, want %s", upErr.ErrorClass, tt.wantClass)
			}
			if string(upErr.Body) != `{"errors": "nope"}` {
				t.Errorf("body = %q, want upstream error body preserved", upErr.Body)
			}
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	mock := testutil.NewMockAdmin()
	mock.Close() // Server already down.

	client := newTestClient(t, mock)

	_, err := client.Get(context.Background(), "/orders.json")
	if err == nil {
		t.Fatal("expected error")
	}

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *UpstreamError, got %T", err)
	}
	if upErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("class = %s, want %s", upErr.ErrorClass, ErrorClassNetwork)
	}
}

// setupTestRedis connects to a local redis or skips the test.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at localhost:6379: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush test database: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestClient_CancelledDuringThrottleMakesNoRequest(t *testing.T) {
	rdb := setupTestRedis(t)

	mock := testutil.NewMockAdmin()
	defer mock.Close()

	// Fill the bucket so the next request has to wait for drain.
	tracker := ratelimit.NewTracker(rdb, zerolog.Nop())
	full := http.Header{}
	full.Set(ratelimit.CallLimitHeader, "40/40")
	if err := tracker.UpdateFromHeaders(context.Background(), "demo.myshopify.com", full); err != nil {
		t.Fatalf("seed call-limit state: %v", err)
	}

	client, err := New(Config{
		ShopDomain:  "demo.myshopify.com",
		APIVersion:  "2024-01",
		Credentials: credentials.NewStatic("shpat_test"),
		RateLimiter: tracker,
		BaseURL:     mock.URL(),
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	// The drain wait exceeds this deadline by far.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = client.Get(ctx, "/orders.json")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got: %v", err)
	}

	// The gate must fail closed on cancellation, not fire a doomed request.
	if mock.RequestCount() != 0 {
		t.Errorf("requests = %d, want 0 (cancelled before dispatch)", mock.RequestCount())
	}
}

func TestClient_CredentialResolutionFailure(t *testing.T) {
	mock := testutil.NewMockAdmin()
	defer mock.Close()

	client, err := New(Config{
		ShopDomain:  "demo.myshopify.com",
		APIVersion:  "2024-01",
		Credentials: credentials.NewStatic(""),
		BaseURL:     mock.URL(),
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	_, err = client.Get(context.Background(), "/orders.json")
	if !errors.Is(err, credentials.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("no upstream call may be made without credentials, got %d", mock.RequestCount())
	}
}
