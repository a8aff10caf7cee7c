/**
 * @description
 * This file contains custom middleware for the HTTP router. The rate-limit
 * middleware guards the gateway's public surface per client address: a loose
 * general limit on the whole API and a strict one on transfer creation, since
 * that is the expensive, funds-relevant path.
 *
 * @dependencies
 * - net, net/http, strconv: Standard Go libraries.
 * - internal/app: The RequestLimiter implementations.
 */

package api

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/shieldswap/gateway-service/internal/app"
)

// clientAddress extracts the per-client key for rate limiting. RealIP
// middleware runs earlier in the chain, so RemoteAddr already reflects
// forwarded headers when present.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit builds a middleware enforcing limit requests per window for the
// given scope, keyed by client address. Limiter backend errors fail open: a
// degraded Redis must not take the whole public surface down with it.
func RateLimit(limiter app.RequestLimiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter, err := limiter.Allow(r.Context(), scope, clientAddress(r), limit, window)
			if err != nil {
				log.Printf("level=warn component=api scope=%s msg=\"rate limiter unavailable; failing open\" err=%v", scope, err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
