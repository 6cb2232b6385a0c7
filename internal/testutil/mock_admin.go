// Package testutil provides testing utilities for the admin proxy.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock admin API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest captures one request received by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

// MockAdmin is a configurable mock Shopify admin API server for testing.
type MockAdmin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	requests []RecordedRequest

	// LastRequestHeader holds the headers of the most recent request.
	LastRequestHeader http.Header
}

// NewMockAdmin creates a new mock admin API server.
func NewMockAdmin() *MockAdmin {
	mock := &MockAdmin{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   body,
		})
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAdmin) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAdmin) Close() {
	m.server.Close()
}

// Reset clears all recorded requests.
func (m *MockAdmin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAdmin) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockAdmin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		setCallLimit(w.Header())
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPagedOrders serves a cursor-paginated orders collection. Each element of
// pages is one page's response body; pages before the last advertise the next
// cursor ("cursor-1", "cursor-2", ...) via a Link header. An unknown cursor
// yields a 404.
func (m *MockAdmin) SetPagedOrders(apiVersion string, pages []string) {
	path := fmt.Sprintf("/admin/api/%s/orders.json", apiVersion)

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 0
		if cursor := r.URL.Query().Get("page_info"); cursor != "" {
			if _, err := fmt.Sscanf(cursor, "cursor-%d", &page); err != nil {
				http.Error(w, `{"errors": "invalid page_info"}`, http.StatusNotFound)
				return
			}
		}
		if page >= len(pages) {
			http.Error(w, `{"errors": "no such page"}`, http.StatusNotFound)
			return
		}

		setCallLimit(w.Header())
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if page < len(pages)-1 {
			w.Header().Set("Link", fmt.Sprintf(
				`<%s%s?limit=250&page_info=cursor-%d>; rel="next"`,
				m.server.URL, path, page+1))
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(pages[page]))
	})
}

// Requests returns a copy of all recorded requests.
func (m *MockAdmin) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests made to the server.
func (m *MockAdmin) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// RequestsTo returns the recorded requests whose path matches exactly.
func (m *MockAdmin) RequestsTo(path string) []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RecordedRequest
	for _, req := range m.requests {
		if req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

// defaultHandler provides a default admin-API-like 200 response.
func (m *MockAdmin) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setCallLimit(w.Header())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{}`))
}

func setCallLimit(h http.Header) {
	h.Set("X-Shopify-Shop-Api-Call-Limit", "1/40")
}

// NewThrottledResponse creates a 429 call-limit response.
func NewThrottledResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors": "Exceeded 2 calls per second for api client"}`,
		Headers: map[string]string{
			"X-Shopify-Shop-Api-Call-Limit": "40/40",
			"Retry-After":                   "2.0",
			"Content-Type":                  "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
