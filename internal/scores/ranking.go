// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package scores

import (
	"context"
	"time"

	"github.com/tomtom215/highscore/internal/metrics"
	"github.com/tomtom215/highscore/internal/models"
)

// Leaderboard size bounds.
const (
	DefaultRankingLimit = 10
	MaxRankingLimit     = 100
)

// Ranker computes leaderboards from the store. Ranks are assigned on every
// call and never stored.
type Ranker struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// NewRanker returns a ranker whose weekly window follows loc (nil means
// time.Local).
func NewRanker(store Store, loc *time.Location, clock func() time.Time) *Ranker {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = time.Now
	}
	return &Ranker{store: store, loc: loc, now: clock}
}

// ClampLimit maps 0 to DefaultRankingLimit and bounds the rest to 1..100.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultRankingLimit
	case limit < 1:
		return 1
	case limit > MaxRankingLimit:
		return MaxRankingLimit
	default:
		return limit
	}
}

// WeekStart returns Monday 00:00:00 of the ISO week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	// Sunday is 0; move it to the end of the week
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-daysSinceMonday, 0, 0, 0, 0, loc)
}

// WeekStart returns the start of the current weekly window.
func (r *Ranker) WeekStart() time.Time {
	return WeekStart(r.now(), r.loc)
}

// GetRanking returns the top limit devices for the range.
func (r *Ranker) GetRanking(ctx context.Context, tr models.TimeRange, limit int) ([]models.RankingItem, error) {
	if !tr.Valid() {
		return nil, &ValidationError{Field: "type", Message: "must be all or weekly"}
	}
	limit = ClampLimit(limit)

	start := time.Now()
	defer func() {
		metrics.RankingComputeDuration.WithLabelValues(string(tr)).Observe(time.Since(start).Seconds())
	}()

	if tr == models.TimeRangeWeekly {
		rows, err := r.store.WeeklyBest(ctx, r.WeekStart(), limit)
		if err != nil {
			return nil, storageErr("weekly ranking", err)
		}
		items := make([]models.RankingItem, len(rows))
		for i, row := range rows {
			items[i] = models.RankingItem{
				DeviceID:  row.DeviceID,
				Score:     row.Score,
				Rank:      i + 1,
				Timestamp: row.AchievedAt.UnixMilli(),
			}
		}
		return items, nil
	}

	rows, err := r.store.TopBestScores(ctx, limit)
	if err != nil {
		return nil, storageErr("all-time ranking", err)
	}
	items := make([]models.RankingItem, len(rows))
	for i, row := range rows {
		items[i] = models.RankingItem{
			DeviceID:  row.DeviceID,
			Score:     row.BestScore,
			Rank:      i + 1,
			Timestamp: row.CreatedAt.UnixMilli(),
		}
	}
	return items, nil
}
