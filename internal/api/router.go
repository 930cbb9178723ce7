// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/truthlens/truthlens/internal/config"
	"github.com/truthlens/truthlens/internal/metrics"
)

// NewRouter assembles the full route tree. Health and metrics are
// unauthenticated; everything under /api/v1 requires a bearer token.
func NewRouter(handler *Handler, jwt *JWTManager, sec config.SecurityConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   sec.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", handler.HealthLive)
	r.Get("/readyz", handler.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if !sec.RateLimitDisabled {
			window := sec.RateLimitWindow
			if window <= 0 {
				window = time.Minute
			}
			reqs := sec.RateLimitReqs
			if reqs <= 0 {
				reqs = 100
			}
			r.Use(httprate.LimitByIP(reqs, window))
		}
		r.Use(prometheusMetrics)
		r.Use(jwt.Authenticate)

		r.Post("/analyze", handler.Analyze)
		r.Get("/results", handler.ListResults)
		r.Get("/results/{id}", handler.GetResult)
		r.Get("/registry/{hash}", handler.LookupHash)
		r.Get("/ws", handler.WebSocket)
	})

	return r
}

// prometheusMetrics records per-route request metrics. The chi route
// pattern keeps label cardinality bounded.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		start := time.Now()
		wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(r.Method, route, wrapped.Status(), start)
	})
}
