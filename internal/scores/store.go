// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package scores holds the score ledger, the ranking engine and the cache
// invalidation that ties them together.
//
// The ledger keeps one best score per device that never decreases, and at
// most one live record per device whose score equals that best. The ranking
// engine reads both: the all-time board from best scores and the weekly
// board from records created since Monday 00:00 in the configured zone.
//
// Persistence is behind Store. internal/database implements it on DuckDB,
// internal/database/mongostore on MongoDB.
package scores

import (
	"context"
	"time"

	"github.com/tomtom215/highscore/internal/models"
)

// Store is the persistent backend of the ledger and the ranking engine.
// Implementations return ErrNotFound for unknown devices.
type Store interface {
	// RaiseBestScore upserts the device row with best = max(best, score) in
	// one conditional statement and returns the row as it was before.
	// existed is false on the first submission for the device.
	RaiseBestScore(ctx context.Context, deviceID string, score int64, now time.Time) (prior models.DeviceBestScore, existed bool, err error)

	// ReplaceRecord deletes every record of rec.DeviceID and inserts rec, in
	// one transaction, only while rec.Score equals the stored best score.
	// inserted is false when a concurrent submission already raised the best.
	ReplaceRecord(ctx context.Context, rec models.ScoreRecord) (inserted bool, err error)

	GetDeviceBest(ctx context.Context, deviceID string) (models.DeviceBestScore, error)

	// TopBestScores orders by best score desc, then created_at asc.
	TopBestScores(ctx context.Context, limit int) ([]models.DeviceBestScore, error)

	// WeeklyBest groups records created at or after since by device, taking
	// max(score) and min(created_at), ordered desc then asc.
	WeeklyBest(ctx context.Context, since time.Time, limit int) ([]models.WeeklyEntry, error)

	// CountAhead counts devices strictly ahead of d in the all-time order.
	CountAhead(ctx context.Context, d models.DeviceBestScore) (int64, error)

	// ListRecords pages a device's records newest first and returns the total.
	ListRecords(ctx context.Context, deviceID string, limit, offset int) ([]models.ScoreRecord, int64, error)

	Ping(ctx context.Context) error
}
