// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package scores

import (
	"strconv"

	"github.com/tomtom215/highscore/internal/models"
)

// Cache key layout. Every cached view of a device embeds its id so the
// invalidator can find it.
const (
	rankingGlobalPrefix = "ranking:global"
	rankingWeeklyPrefix = "ranking:weekly"
)

// RankingKey is the cache key of a leaderboard of the given size.
func RankingKey(r models.TimeRange, limit int) string {
	p := rankingGlobalPrefix
	if r == models.TimeRangeWeekly {
		p = rankingWeeklyPrefix
	}
	return p + ":" + strconv.Itoa(limit)
}

// StatsKey is the cache key of a device's best score row.
func StatsKey(deviceID string) string { return "stats:" + deviceID }

// RankKey is the cache key of a device's all-time rank.
func RankKey(deviceID string) string { return "rank:" + deviceID }

// HistoryKey is the cache key of one page of a device's records.
func HistoryKey(deviceID string, limit, offset int) string {
	return "history:" + deviceID + ":" + strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
}

func historyPattern(deviceID string) string { return "history:" + deviceID + ":*" }
