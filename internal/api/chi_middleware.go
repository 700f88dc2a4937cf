// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/highscore/internal/ratelimit"
)

// ChiMiddlewareConfig holds configuration for the chi middleware factories.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSExposedHeaders []string
	CORSMaxAge         int // seconds

	// HealthRequests per HealthWindow per IP on the health routes; 0 disables.
	HealthRequests int
	HealthWindow   time.Duration
}

// DefaultChiMiddlewareConfig returns the defaults used when no config is given.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		CORSExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		CORSMaxAge:         86400,
		HealthRequests:     60,
		HealthWindow:       time.Minute,
	}
}

// ChiMiddleware provides chi-compatible middleware factories.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware builds the factories from config (nil means defaults).
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}
	return &ChiMiddleware{
		config: config,
		cors: cors.Handler(cors.Options{
			AllowedOrigins: config.CORSAllowedOrigins,
			AllowedMethods: config.CORSAllowedMethods,
			AllowedHeaders: config.CORSAllowedHeaders,
			ExposedHeaders: config.CORSExposedHeaders,
			MaxAge:         config.CORSMaxAge,
		}),
	}
}

// CORS returns the go-chi/cors handler.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimitHealth limits the health routes per IP with go-chi/httprate.
// This is local to the process and independent of the shared limiter.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	if m.config.HealthRequests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		m.config.HealthRequests,
		m.config.HealthWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).TooManyRequests("Too many health checks, slow down")
		}),
	)
}

// RateLimitIP applies the shared fixed window limiter per client IP.
func (h *Handler) RateLimitIP(limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !h.rateLimitEnabled() {
				next.ServeHTTP(w, r)
				return
			}
			res := h.limiter.CheckIP(r.Context(), clientIP(r), limit)
			if !allowRequest(w, r, res) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkDeviceLimit applies the shared limiter to a device and writes the
// 429 response when denied.
func (h *Handler) checkDeviceLimit(w http.ResponseWriter, r *http.Request, deviceID string, limit int) bool {
	if !h.rateLimitEnabled() {
		return true
	}
	return allowRequest(w, r, h.limiter.CheckDevice(r.Context(), deviceID, limit))
}

// allowRequest sets the X-RateLimit headers and, on denial, writes 429.
func allowRequest(w http.ResponseWriter, r *http.Request, res ratelimit.Result) bool {
	if res.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.ResetAfter > 0 {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.ResetAfter).Unix(), 10))
		}
	}
	if res.Allowed {
		return true
	}
	retry := int(math.Ceil(res.ResetAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	if res.Blocked {
		NewResponseWriter(w, r).Error(http.StatusTooManyRequests, ErrCodeIPBlocked,
			"This address is temporarily blocked after repeated rate limit violations")
		return false
	}
	NewResponseWriter(w, r).TooManyRequests("Too many requests, please try again later")
	return false
}

// clientIP returns the host part of RemoteAddr. chimiddleware.RealIP has
// already replaced it with the forwarded address when one was sent.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
