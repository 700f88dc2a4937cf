// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/highscore/internal/middleware"
)

// Router binds the handler to its routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. mw may be nil for defaults.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()
	h := router.handler

	// Applied to every route, in order
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight works

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, ErrCodeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	r.Route("/api/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/", h.Health)
	})

	r.Route("/api/game", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(h.perfMon.Middleware)

		// device limit is applied after the body is parsed
		r.Post("/submit", h.SubmitScore)
		r.With(h.RateLimitIP(h.config.RateLimit.IPLimit)).Get("/ranking", h.Ranking)
		r.Get("/stats/{deviceId}", h.DeviceStats)
		r.With(h.RateLimitIP(h.config.RateLimit.IPLimit)).Get("/history/{deviceId}", h.History)
	})

	r.With(middleware.Compression).Get("/api/status", h.Status)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
