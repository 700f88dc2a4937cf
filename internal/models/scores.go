// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package models holds the data types shared by the store, the scores
// service and the HTTP layer.
package models

import (
	"time"
)

// DeviceBestScore is the single best-score row kept per device.
type DeviceBestScore struct {
	DeviceID  string    `json:"deviceId" msgpack:"device_id"`
	BestScore int64     `json:"bestScore" msgpack:"best_score"`
	CreatedAt time.Time `json:"createdAt" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" msgpack:"updated_at"`
}

// ScoreRecord is the live record backing a device's best score.
// A device has at most one.
type ScoreRecord struct {
	ID        string    `json:"recordId" bson:"_id" msgpack:"id"`
	DeviceID  string    `json:"deviceId" bson:"deviceId" msgpack:"device_id"`
	Score     int64     `json:"score" bson:"score" msgpack:"score"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" msgpack:"created_at"`
}

// WeeklyEntry is one row of the weekly aggregation: a device's highest score
// inside the window and when it was first reached there.
type WeeklyEntry struct {
	DeviceID   string    `bson:"_id"`
	Score      int64     `bson:"score"`
	AchievedAt time.Time `bson:"achievedAt"`
}

// RankingItem is a leaderboard position. Ranks are 1-based and derived on read.
type RankingItem struct {
	DeviceID  string `json:"deviceId" msgpack:"device_id"`
	Score     int64  `json:"score" msgpack:"score"`
	Rank      int    `json:"rank" msgpack:"rank"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"` // unix milliseconds of the achievement
}

// TimeRange selects a leaderboard.
type TimeRange string

const (
	TimeRangeAll    TimeRange = "all"
	TimeRangeWeekly TimeRange = "weekly"
)

// Valid reports whether r is a known range.
func (r TimeRange) Valid() bool {
	return r == TimeRangeAll || r == TimeRangeWeekly
}

// SubmitResult is returned by a score submission.
type SubmitResult struct {
	RecordID    string    `json:"recordId"`
	DeviceID    string    `json:"deviceId"`
	Score       int64     `json:"score"`
	BestScore   int64     `json:"bestScore"`
	IsNewBest   bool      `json:"isNewBest"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// HistoryPage is one page of a device's records, newest first.
type HistoryPage struct {
	Records []ScoreRecord `json:"records" msgpack:"records"`
	Total   int64         `json:"total" msgpack:"total"`
	Limit   int           `json:"limit" msgpack:"limit"`
	Offset  int           `json:"offset" msgpack:"offset"`
	HasMore bool          `json:"hasMore" msgpack:"has_more"`
}

// DeviceStats is the stats view served over HTTP.
type DeviceStats struct {
	DeviceID  string    `json:"deviceId"`
	BestScore int64     `json:"bestScore"`
	Rank      *int64    `json:"rank"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
