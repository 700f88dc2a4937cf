// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package scores

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/metrics"
)

// Cache is the part of the tiered cache the invalidator needs.
// *cache.Cache satisfies it.
type Cache interface {
	Delete(ctx context.Context, keys ...string)
	DeletePattern(ctx context.Context, pattern string) int
}

// Invalidator drops every cached view a score write can change. It runs
// synchronously and never fails: cache trouble is logged by the cache and
// the submission goes on.
type Invalidator struct {
	cache Cache
	log   zerolog.Logger
}

// NewInvalidator returns an invalidator over c. A nil c makes it a no-op.
func NewInvalidator(c Cache) *Invalidator {
	return &Invalidator{
		cache: c,
		log:   logging.With().Str("component", "invalidation").Logger(),
	}
}

// OnScoreWritten clears the device's stats, rank and history pages and
// every cached leaderboard size of both ranges.
func (inv *Invalidator) OnScoreWritten(ctx context.Context, deviceID string) {
	if inv == nil || inv.cache == nil {
		return
	}
	inv.cache.Delete(ctx, StatsKey(deviceID), RankKey(deviceID))
	n := inv.cache.DeletePattern(ctx, historyPattern(deviceID))
	n += inv.cache.DeletePattern(ctx, rankingGlobalPrefix+"*")
	n += inv.cache.DeletePattern(ctx, rankingWeeklyPrefix+"*")

	metrics.CacheInvalidations.Inc()
	inv.log.Debug().Str("device_id", deviceID).Int("pattern_keys", n).Msg("cache invalidated after score write")
}
