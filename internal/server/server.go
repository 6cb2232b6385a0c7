// Package server exposes the dashboard-facing HTTP API and its request
// gates: CORS, inbound rate limiting, IP allowlist, app-token check, and
// JWT session verification.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shopdash/admin-proxy/pkg/auth"
	"github.com/shopdash/admin-proxy/pkg/orders"
	"github.com/shopdash/admin-proxy/pkg/upstream"
)

// Config holds the request-gate configuration.
type Config struct {
	// APISecret is the static X-App-Token value shared with the frontend.
	APISecret string

	// AllowedIPs restricts /api access to these client IPs.
	// Empty allows all.
	AllowedIPs []string

	// AllowedOrigins are the CORS origins permitted to call the proxy.
	AllowedOrigins []string

	// RateLimitWindow and RateLimitMax bound requests per client IP.
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// Server is the dashboard-facing HTTP API.
type Server struct {
	orders *orders.Service
	auth   *auth.Authenticator
	redis  *redis.Client
	cfg    Config
	router chi.Router
	logger zerolog.Logger
}

// New creates the server. redisClient backs the inbound rate limiter; nil
// disables rate limiting (used by tests and single-user deployments).
func New(ordersSvc *orders.Service, authn *auth.Authenticator, redisClient *redis.Client, cfg Config) *Server {
	s := &Server{
		orders: ordersSvc,
		auth:   authn,
		redis:  redisClient,
		cfg:    cfg,
		logger: log.With().Str("component", "http-server").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/login", s.handleLogin)

	r.Route("/api", func(r chi.Router) {
		// Gate order mirrors the original deployment: cheap rejections first.
		r.Use(s.rateLimit)
		r.Use(s.ipAllowlist)
		r.Use(s.appToken)
		r.Use(s.sessionAuth)

		r.Get("/orders", s.handleListOrders)
		r.Get("/orders/count", s.handleOrderCount)
		r.Get("/orders/tag-counts", s.handleTagCounts)
		r.Post("/orders/set-tag", s.handleSetTag)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", addr).Msg("Starting admin proxy server")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		// Wrong user and wrong password are deliberately indistinguishable.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleTagCounts(w http.ResponseWriter, r *http.Request) {
	summary, err := s.orders.TagCounts(r.Context())
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := s.orders.ListPage(r.Context(), r.URL.Query().Get("page_info"))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleOrderCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.orders.CountOrders(r.Context(), r.URL.Query().Get("financial_status"))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

type setTagRequest struct {
	OrderID           flexID `json:"orderId"`
	Tag               string `json:"tag"`
	FulfillmentStatus string `json:"fulfillment_status"`
	FinancialStatus   string `json:"financial_status"`
}

// flexID accepts both JSON strings and numbers; the dashboard has sent
// order identifiers both ways.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (s *Server) handleSetTag(w http.ResponseWriter, r *http.Request) {
	var req setTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := s.orders.ApplyTag(r.Context(), orders.ApplyTagInput{
		OrderID:           string(req.OrderID),
		Tag:               req.Tag,
		FulfillmentStatus: req.FulfillmentStatus,
		FinancialStatus:   req.FinancialStatus,
	})
	if err != nil {
		if orders.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeUpstreamError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// writeUpstreamError maps an upstream failure to the flat 502 the dashboard
// expects; the step-level detail stays in the logs.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	logEvent := s.logger.Error().Err(err).Str("path", r.URL.Path)

	var upErr *upstream.UpstreamError
	if errors.As(err, &upErr) {
		logEvent = logEvent.
			Int("upstream_status", upErr.StatusCode).
			Str("error_class", string(upErr.ErrorClass))
	}
	logEvent.Msg("Request failed on upstream call")

	writeError(w, http.StatusBadGateway, "upstream request failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// clientIP returns the requester's IP. chi's RealIP middleware has already
// folded X-Forwarded-For into RemoteAddr, which leaves either host:port (a
// direct connection) or a bare address (a forwarded one, IPv4 or IPv6).
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
