package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dseinapp/dsein-server/internal/http/response"
	"github.com/dseinapp/dsein-server/internal/ratelimit"
)

// RateLimitMiddleware throttles mutating requests per caller: the user id
// when the gateway supplied one, the client IP otherwise. Rejections carry
// Retry-After.
func (s *Server) RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key, err := GetUserID(r.Context())
			if err != nil {
				key = "ip:" + clientIP(r)
			}

			ok, wait := limiter.Take(key)
			if !ok {
				s.logger.Warn("Rate limit exceeded", "key", key, "path", r.URL.Path, "retry_after", wait)
				if wait > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
				}
				response.TooManyRequests(w, "Too many requests. Please try again later.", s.logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
