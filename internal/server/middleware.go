package server

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gateRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "proxy_gate_rejections_total",
		Help: "Requests rejected by an inbound gate",
	},
	[]string{"gate"},
)

// cors handles cross-origin requests from the configured dashboard origins
// and answers preflights.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-App-Token, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimit bounds requests per client IP with a fixed redis window. A nil
// redis client disables the gate; redis errors fail open so the proxy stays
// usable when redis is down.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("ratelimit:%s", clientIP(r))
		count, err := s.redis.Incr(r.Context(), key).Result()
		if err != nil {
			s.logger.Warn().Err(err).Msg("Rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			s.redis.Expire(r.Context(), key, s.cfg.RateLimitWindow)
		}

		if count > int64(s.cfg.RateLimitMax) {
			gateRejections.WithLabelValues("rate_limit").Inc()
			s.logger.Warn().
				Str("client_ip", clientIP(r)).
				Int64("count", count).
				Msg("Client exceeded inbound rate limit")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ipAllowlist rejects clients outside the configured IP set. An empty set
// allows everyone.
func (s *Server) ipAllowlist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.AllowedIPs) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if !slices.Contains(s.cfg.AllowedIPs, ip) {
			gateRejections.WithLabelValues("ip_allowlist").Inc()
			s.logger.Warn().Str("client_ip", ip).Msg("Rejected request from unlisted IP")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// appToken checks the static X-App-Token shared with the frontend build.
func (s *Server) appToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-App-Token") != s.cfg.APISecret {
			gateRejections.WithLabelValues("app_token").Inc()
			writeError(w, http.StatusForbidden, "invalid app token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sessionAuth verifies the Authorization bearer token issued by /login.
// A missing token is 401, an invalid one 403.
func (s *Server) sessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			gateRejections.WithLabelValues("session").Inc()
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		if _, err := s.auth.Verify(token); err != nil {
			gateRejections.WithLabelValues("session").Inc()
			writeError(w, http.StatusForbidden, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
