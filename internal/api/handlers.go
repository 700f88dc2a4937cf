// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package api

import (
	"context"
	"time"

	"github.com/tomtom215/highscore/internal/cache"
	"github.com/tomtom215/highscore/internal/config"
	"github.com/tomtom215/highscore/internal/middleware"
	"github.com/tomtom215/highscore/internal/models"
	"github.com/tomtom215/highscore/internal/ratelimit"
)

// ScoreService is the part of *scores.Service the handlers use.
type ScoreService interface {
	Submit(ctx context.Context, deviceID string, score int64) (models.SubmitResult, error)
	GetRanking(ctx context.Context, tr models.TimeRange, limit int) ([]models.RankingItem, error)
	GetStatsWithRank(ctx context.Context, deviceID string) (models.DeviceStats, error)
	GetHistory(ctx context.Context, deviceID string, limit, offset int) (models.HistoryPage, error)
	Ping(ctx context.Context) error
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct and constructor (this file)
//   - handlers_game.go: submit, ranking, stats and history
//   - handlers_health.go: health and status
type Handler struct {
	svc       ScoreService
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	config    *config.Config
	perfMon   *middleware.PerformanceMonitor
	startTime time.Time
}

// NewHandler creates a handler. c and limiter may be nil; a nil limiter
// disables rate limiting.
func NewHandler(svc ScoreService, c *cache.Cache, limiter *ratelimit.Limiter, cfg *config.Config) *Handler {
	return &Handler{
		svc:       svc,
		cache:     c,
		limiter:   limiter,
		config:    cfg,
		perfMon:   middleware.NewPerformanceMonitor(1000),
		startTime: time.Now(),
	}
}

// PerformanceMonitor returns the request sampler shared with the router.
func (h *Handler) PerformanceMonitor() *middleware.PerformanceMonitor {
	return h.perfMon
}

func (h *Handler) rateLimitEnabled() bool {
	return h.limiter != nil && h.config.RateLimit.Enabled
}
