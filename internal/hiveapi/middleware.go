package hiveapi

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/auth"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// Middleware wraps a handler; chained innermost-first in NewRouter,
// matching internal/httpapi's composition.
type Middleware func(http.Handler) http.Handler

// RecoverMiddleware converts a panicking handler into a 500 response.
func RecoverMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered in hive handler", "panic", rec, "path", r.URL.Path)
					writeJSON(w, http.StatusInternalServerError, envelope{
						Success: false,
						Error:   &vkerrors.Envelope{Kind: "internal", Message: "internal error"},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs method/path/status/duration once the handler
// completes.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("hive request",
				"method", r.Method, "path", r.URL.Path, "status", sw.status,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// nodeIDKey is how handlers recover the caller's authenticated node id
// after APIKeyAuthMiddleware has run.
type nodeIDKey struct{}

// APIKeyAuthMiddleware verifies the "Authorization: Bearer <raw key>"
// header against auth.Verifier and stores the authenticated node id on
// the request context (spec §6: nodes authenticate to the hive with a
// prefix-indexed, hashed API key). /health is exempt.
func APIKeyAuthMiddleware(verifier *auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				writeJSON(w, http.StatusUnauthorized, envelope{
					Success: false,
					Error:   &vkerrors.Envelope{Kind: "unauthorized", Message: "missing bearer api key"},
				})
				return
			}
			key, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, envelope{
					Success: false,
					Error:   &vkerrors.Envelope{Kind: "unauthorized", Message: "invalid api key"},
				})
				return
			}
			ctx := contextWithNodeID(r.Context(), key.NodeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	RequestsPerMinute int
}

type bucket struct {
	count      int
	windowFrom time.Time
}

// RateLimitMiddleware mirrors internal/httpapi's fixed-window limiter;
// the hive's clients are a small fixed set of nodes rather than
// arbitrary browsers, but a misbehaving or compromised node shouldn't
// be able to hammer the hive any more than an HTTP client can hammer a
// node.
func RateLimitMiddleware(cfg RateLimitConfig) Middleware {
	if cfg.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	var mu sync.Mutex
	buckets := map[string]*bucket{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			now := time.Now()

			mu.Lock()
			b, ok := buckets[ip]
			if !ok || now.Sub(b.windowFrom) > time.Minute {
				b = &bucket{windowFrom: now}
				buckets[ip] = b
			}
			b.count++
			over := b.count > cfg.RequestsPerMinute
			mu.Unlock()

			if over {
				writeJSON(w, http.StatusTooManyRequests, envelope{
					Success: false,
					Error:   &vkerrors.Envelope{Kind: "unavailable", Message: "rate limit exceeded"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}
