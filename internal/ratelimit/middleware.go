package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"imagegen/internal/models"
)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	trustProxyHeaders bool
}

// WithTrustedProxyHeaders keys clients by X-Forwarded-For or X-Real-IP
// instead of the connection address.
func WithTrustedProxyHeaders() MiddlewareOption {
	return func(c *middlewareConfig) {
		c.trustProxyHeaders = true
	}
}

// Middleware returns HTTP middleware that enforces a per-client limit keyed by
// the caller's IP address. Rate limit headers are set on every response.
func Middleware(limiter Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r, cfg.trustProxyHeaders)

			allowed, info := limiter.Allow(key)
			WriteHeaders(w, info)

			if !allowed {
				retryAfter := int(ceilSeconds(info.RetryAfter).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				errorResp := models.NewErrorResponse("Too many requests", models.ErrorCodeTooManyRequests)
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Client rate limit exceeded",
					"client", key,
					"limit", info.Limit,
					"retry_after", retryAfter,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteHeaders sets the X-RateLimit-* headers from info.
func WriteHeaders(w http.ResponseWriter, info Info) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}

// ClientIP extracts the client IP from the request. Proxy headers are
// consulted only when trustProxy is set, since any client can forge them.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := proxyClientIP(r); ip != "" {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func proxyClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}
