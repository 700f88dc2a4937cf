// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/highscore/internal/models"
	"github.com/tomtom215/highscore/internal/scores"
)

var _ scores.Store = (*DB)(nil)

// The row never decreases: best_score = greatest(stored, submitted), and
// updated_at only moves when the score actually rises.
const raiseBestScoreQuery = `
INSERT INTO device_best_scores (device_id, best_score, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (device_id) DO UPDATE SET
	best_score = greatest(best_score, EXCLUDED.best_score),
	updated_at = CASE WHEN EXCLUDED.best_score > best_score THEN EXCLUDED.updated_at ELSE updated_at END`

// RaiseBestScore implements scores.Store.
func (db *DB) RaiseBestScore(ctx context.Context, deviceID string, score int64, now time.Time) (models.DeviceBestScore, bool, error) {
	start := time.Now()
	now = now.UTC()

	var prior models.DeviceBestScore
	var existed bool
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer rollbackQuietly(tx)

		prior, existed = models.DeviceBestScore{}, false
		err = tx.QueryRowContext(ctx,
			`SELECT device_id, best_score, created_at, updated_at FROM device_best_scores WHERE device_id = ?`,
			deviceID,
		).Scan(&prior.DeviceID, &prior.BestScore, &prior.CreatedAt, &prior.UpdatedAt)
		switch {
		case err == nil:
			existed = true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		if _, err := tx.ExecContext(ctx, raiseBestScoreQuery, deviceID, score, now, now); err != nil {
			return err
		}
		return tx.Commit()
	})
	recordQuery("raise_best_score", start, err)
	if err != nil {
		return models.DeviceBestScore{}, false, fmt.Errorf("raise best score: %w", err)
	}
	return prior, existed, nil
}

// ReplaceRecord implements scores.Store.
func (db *DB) ReplaceRecord(ctx context.Context, rec models.ScoreRecord) (bool, error) {
	start := time.Now()

	var inserted bool
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		inserted = false
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer rollbackQuietly(tx)

		var best int64
		err = tx.QueryRowContext(ctx,
			`SELECT best_score FROM device_best_scores WHERE device_id = ?`, rec.DeviceID,
		).Scan(&best)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if best != rec.Score {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM score_records WHERE device_id = ?`, rec.DeviceID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO score_records (id, device_id, score, created_at) VALUES (?, ?, ?, ?)`,
			rec.ID, rec.DeviceID, rec.Score, rec.CreatedAt.UTC(),
		); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	recordQuery("replace_record", start, err)
	if err != nil {
		return false, fmt.Errorf("replace record: %w", err)
	}
	return inserted, nil
}

// GetDeviceBest implements scores.Store.
func (db *DB) GetDeviceBest(ctx context.Context, deviceID string) (models.DeviceBestScore, error) {
	start := time.Now()
	var d models.DeviceBestScore
	err := db.conn.QueryRowContext(ctx,
		`SELECT device_id, best_score, created_at, updated_at FROM device_best_scores WHERE device_id = ?`,
		deviceID,
	).Scan(&d.DeviceID, &d.BestScore, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		recordQuery("get_device_best", start, nil)
		return models.DeviceBestScore{}, scores.ErrNotFound
	}
	recordQuery("get_device_best", start, err)
	if err != nil {
		return models.DeviceBestScore{}, fmt.Errorf("get device best: %w", err)
	}
	return d, nil
}

// TopBestScores implements scores.Store.
func (db *DB) TopBestScores(ctx context.Context, limit int) ([]models.DeviceBestScore, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT device_id, best_score, created_at, updated_at
		FROM device_best_scores
		ORDER BY best_score DESC, created_at ASC, device_id ASC
		LIMIT ?`, limit)
	if err != nil {
		recordQuery("top_best_scores", start, err)
		return nil, fmt.Errorf("top best scores: %w", err)
	}
	defer closeWithLog(rows, "rows")

	out := make([]models.DeviceBestScore, 0, limit)
	for rows.Next() {
		var d models.DeviceBestScore
		if err := rows.Scan(&d.DeviceID, &d.BestScore, &d.CreatedAt, &d.UpdatedAt); err != nil {
			recordQuery("top_best_scores", start, err)
			return nil, fmt.Errorf("scan best score: %w", err)
		}
		out = append(out, d)
	}
	err = rows.Err()
	recordQuery("top_best_scores", start, err)
	return out, err
}

// WeeklyBest implements scores.Store.
func (db *DB) WeeklyBest(ctx context.Context, since time.Time, limit int) ([]models.WeeklyEntry, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT device_id, max(score) AS score, min(created_at) AS achieved_at
		FROM score_records
		WHERE created_at >= ?
		GROUP BY device_id
		ORDER BY 2 DESC, 3 ASC, 1 ASC
		LIMIT ?`, since.UTC(), limit)
	if err != nil {
		recordQuery("weekly_best", start, err)
		return nil, fmt.Errorf("weekly best: %w", err)
	}
	defer closeWithLog(rows, "rows")

	out := make([]models.WeeklyEntry, 0, limit)
	for rows.Next() {
		var e models.WeeklyEntry
		if err := rows.Scan(&e.DeviceID, &e.Score, &e.AchievedAt); err != nil {
			recordQuery("weekly_best", start, err)
			return nil, fmt.Errorf("scan weekly entry: %w", err)
		}
		out = append(out, e)
	}
	err = rows.Err()
	recordQuery("weekly_best", start, err)
	return out, err
}

// CountAhead implements scores.Store.
func (db *DB) CountAhead(ctx context.Context, d models.DeviceBestScore) (int64, error) {
	start := time.Now()
	var n int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT count(*) FROM device_best_scores
		WHERE best_score > ? OR (best_score = ? AND created_at < ?)`,
		d.BestScore, d.BestScore, d.CreatedAt.UTC(),
	).Scan(&n)
	recordQuery("count_ahead", start, err)
	if err != nil {
		return 0, fmt.Errorf("count ahead: %w", err)
	}
	return n, nil
}

// ListRecords implements scores.Store.
func (db *DB) ListRecords(ctx context.Context, deviceID string, limit, offset int) ([]models.ScoreRecord, int64, error) {
	start := time.Now()

	var total int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM score_records WHERE device_id = ?`, deviceID,
	).Scan(&total); err != nil {
		recordQuery("list_records", start, err)
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, device_id, score, created_at
		FROM score_records
		WHERE device_id = ?
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?`, deviceID, limit, offset)
	if err != nil {
		recordQuery("list_records", start, err)
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.ScoreRecord
	for rows.Next() {
		var r models.ScoreRecord
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Score, &r.CreatedAt); err != nil {
			recordQuery("list_records", start, err)
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	err = rows.Err()
	recordQuery("list_records", start, err)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
