// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/highscore/internal/cache"
	"github.com/tomtom215/highscore/internal/middleware"
)

// healthCheckTimeout bounds the store ping of a health request.
const healthCheckTimeout = 2 * time.Second

// HealthStatus is the data of GET /api/health.
type HealthStatus struct {
	Status            string  `json:"status"` // healthy, degraded, unhealthy
	DatabaseConnected bool    `json:"database_connected"`
	CacheAvailable    bool    `json:"cache_available"`
	Uptime            float64 `json:"uptime"` // seconds
}

// ServiceStatus is the data of GET /api/status.
type ServiceStatus struct {
	Uptime    float64                    `json:"uptime"`
	Cache     *cache.Stats               `json:"cache,omitempty"`
	RateLimit RateLimitStatus            `json:"rate_limit"`
	Endpoints []middleware.EndpointStats `json:"endpoints"`
}

// RateLimitStatus reports the configured limits.
type RateLimitStatus struct {
	Enabled     bool    `json:"enabled"`
	Window      float64 `json:"window_seconds"`
	DeviceLimit int     `json:"device_limit"`
	IPLimit     int     `json:"ip_limit"`
	StatsLimit  int     `json:"stats_limit"`
}

// Health handles GET /api/health. A store failure is unhealthy (503); a
// cache failure only degrades the service, since reads fall back to the
// store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	dbConnected := h.svc != nil && h.svc.Ping(ctx) == nil
	cacheAvailable := h.cache != nil && h.cache.IsAvailable(ctx)

	status := "healthy"
	code := http.StatusOK
	switch {
	case !dbConnected:
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	case !cacheAvailable:
		status = "degraded"
	}

	NewResponseWriter(w, r).SuccessWithStatus(code, HealthStatus{
		Status:            status,
		DatabaseConnected: dbConnected,
		CacheAvailable:    cacheAvailable,
		Uptime:            time.Since(h.startTime).Seconds(),
	})
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st := ServiceStatus{
		Uptime: time.Since(h.startTime).Seconds(),
		RateLimit: RateLimitStatus{
			Enabled:     h.rateLimitEnabled(),
			Window:      h.config.RateLimit.Window.Seconds(),
			DeviceLimit: h.config.RateLimit.DeviceLimit,
			IPLimit:     h.config.RateLimit.IPLimit,
			StatsLimit:  h.config.RateLimit.StatsLimit,
		},
		Endpoints: h.perfMon.Stats(),
	}
	if h.cache != nil {
		cs := h.cache.Stats()
		st.Cache = &cs
	}
	NewResponseWriter(w, r).Success(st)
}
