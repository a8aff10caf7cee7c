/**
 * @description
 * This file sets up the HTTP router for the gateway-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * inbound rate limits: a loose general limit on the whole surface and a strict
 * one on transfer creation.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shieldswap/gateway-service/internal/app"
)

// RateLimitSettings carries the two inbound limiter configurations.
type RateLimitSettings struct {
	GeneralLimit  int
	GeneralWindow time.Duration
	CreateLimit   int
	CreateWindow  time.Duration
}

// GatewayRoutes creates and returns a new router for the gateway service.
func GatewayRoutes(h *GatewayHandlers, limiter app.RequestLimiter, limits RateLimitSettings) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(limiter, "general", limits.GeneralLimit, limits.GeneralWindow))

		r.Get("/transfers/{reference}/status", h.TransferStatusHandler)

		// Transfer creation carries its own stricter limit on top of the
		// general one.
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(limiter, "create", limits.CreateLimit, limits.CreateWindow))
			r.Post("/transfers", h.CreateTransferHandler)
		})
	})

	return r
}
