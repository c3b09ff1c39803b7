// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Roughriver74/bitrix-dash/internal/config"
	"github.com/Roughriver74/bitrix-dash/internal/middleware"
)

// NewRouter assembles the HTTP routing tree.
func NewRouter(handler *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)

	// CORS must be global so OPTIONS preflights reach it.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, cfg.RateWindow))
		}

		r.Get("/dashboard", handler.Dashboard)
		r.Get("/dashboard/stream", handler.DashboardStream)
		r.Get("/dashboard/ws", handler.DashboardWS)
	})

	r.Get("/health", handler.Health)
	r.Get("/health/live", handler.HealthLive)
	r.Get("/health/ready", handler.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
