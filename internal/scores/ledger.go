// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package scores

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/metrics"
	"github.com/tomtom215/highscore/internal/models"
	"github.com/tomtom215/highscore/internal/validation"
)

// DefaultMaxScore is the highest accepted score when none is configured.
const DefaultMaxScore = 999999

// History paging bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// LedgerOptions configures NewLedger.
type LedgerOptions struct {
	MaxScore int64 // default DefaultMaxScore
	// ReplaceOnTie makes a score equal to the current best replace the live
	// record, moving its achievement time forward.
	ReplaceOnTie bool
	Clock        func() time.Time
	NewID        func() string
}

// Ledger records submissions and serves per-device reads.
type Ledger struct {
	store        Store
	inval        *Invalidator
	maxScore     int64
	replaceOnTie bool
	now          func() time.Time
	newID        func() string
	locks        *deviceLocks
	log          zerolog.Logger
}

// NewLedger returns a ledger over store. inval may be nil.
func NewLedger(store Store, inval *Invalidator, opts LedgerOptions) *Ledger {
	if opts.MaxScore <= 0 {
		opts.MaxScore = DefaultMaxScore
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Ledger{
		store:        store,
		inval:        inval,
		maxScore:     opts.MaxScore,
		replaceOnTie: opts.ReplaceOnTie,
		now:          opts.Clock,
		newID:        opts.NewID,
		locks:        newDeviceLocks(),
		log:          logging.With().Str("component", "ledger").Logger(),
	}
}

// MaxScore returns the highest accepted score.
func (l *Ledger) MaxScore() int64 { return l.maxScore }

// ValidateDeviceID returns a *ValidationError for malformed ids.
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return &ValidationError{Field: "deviceId", Message: "is required"}
	}
	if !validation.IsDeviceID(deviceID) {
		return &ValidationError{Field: "deviceId", Message: "must be 32 lowercase hexadecimal characters"}
	}
	return nil
}

func (l *Ledger) validateScore(score int64) error {
	if score < 0 || score > l.maxScore {
		return &ValidationError{Field: "score", Message: "must be between 0 and " + strconv.FormatInt(l.maxScore, 10)}
	}
	return nil
}

// Submit records score for deviceID. The best score only ever rises; the
// live record is replaced when the score is a new best. Cached views are
// invalidated before Submit returns whenever something was written.
func (l *Ledger) Submit(ctx context.Context, deviceID string, score int64) (models.SubmitResult, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		metrics.RecordSubmission("invalid")
		return models.SubmitResult{}, err
	}
	if err := l.validateScore(score); err != nil {
		metrics.RecordSubmission("invalid")
		return models.SubmitResult{}, err
	}

	release := l.locks.acquire(deviceID)
	defer release()

	now := l.now().UTC()
	prior, existed, err := l.store.RaiseBestScore(ctx, deviceID, score, now)
	if err != nil {
		metrics.RecordSubmission("error")
		return models.SubmitResult{}, storageErr("raise best score", err)
	}

	best := score
	if existed && prior.BestScore > score {
		best = prior.BestScore
	}
	// the best row changed whenever it was created or raised
	wrote := !existed || score > prior.BestScore

	isNewBest := !existed || score > prior.BestScore || (score == prior.BestScore && l.replaceOnTie)
	result := models.SubmitResult{
		DeviceID:    deviceID,
		Score:       score,
		BestScore:   best,
		SubmittedAt: now,
	}

	if isNewBest {
		rec := models.ScoreRecord{
			ID:        l.newID(),
			DeviceID:  deviceID,
			Score:     score,
			CreatedAt: now,
		}
		inserted, err := l.store.ReplaceRecord(ctx, rec)
		if err != nil {
			// the best row is already raised; invalidate so readers see it
			l.inval.OnScoreWritten(ctx, deviceID)
			metrics.RecordSubmission("error")
			return models.SubmitResult{}, storageErr("replace record", err)
		}
		if inserted {
			result.RecordID = rec.ID
			result.IsNewBest = true
			wrote = true
		} else {
			// another process raised the best between the two statements
			l.log.Debug().Str("device_id", deviceID).Int64("score", score).Msg("record replace skipped, best moved on")
			if cur, gerr := l.store.GetDeviceBest(ctx, deviceID); gerr == nil && cur.BestScore > best {
				best = cur.BestScore
				result.BestScore = best
			}
		}
	}

	if wrote {
		l.inval.OnScoreWritten(ctx, deviceID)
	}

	outcome := "kept"
	if result.IsNewBest {
		outcome = "new_best"
	}
	metrics.RecordSubmission(outcome)
	l.log.Debug().
		Str("device_id", deviceID).
		Int64("score", score).
		Int64("best_score", best).
		Bool("new_best", result.IsNewBest).
		Msg("score submitted")
	return result, nil
}

// GetDeviceStats returns the device's best score row or ErrNotFound.
func (l *Ledger) GetDeviceStats(ctx context.Context, deviceID string) (models.DeviceBestScore, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return models.DeviceBestScore{}, err
	}
	d, err := l.store.GetDeviceBest(ctx, deviceID)
	if err != nil {
		return models.DeviceBestScore{}, storageErr("get device stats", err)
	}
	return d, nil
}

// GetDeviceRank returns the device's 1-based all-time position.
func (l *Ledger) GetDeviceRank(ctx context.Context, deviceID string) (int64, error) {
	d, err := l.GetDeviceStats(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	ahead, err := l.store.CountAhead(ctx, d)
	if err != nil {
		return 0, storageErr("count ahead", err)
	}
	return ahead + 1, nil
}

// GetHistory pages the device's records newest first. A zero limit means
// DefaultHistoryLimit.
func (l *Ledger) GetHistory(ctx context.Context, deviceID string, limit, offset int) (models.HistoryPage, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return models.HistoryPage{}, err
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return models.HistoryPage{}, &ValidationError{Field: "limit", Message: "must be between 1 and 100"}
	}
	if offset < 0 {
		return models.HistoryPage{}, &ValidationError{Field: "offset", Message: "must be 0 or greater"}
	}

	recs, total, err := l.store.ListRecords(ctx, deviceID, limit, offset)
	if err != nil {
		return models.HistoryPage{}, storageErr("list records", err)
	}
	if recs == nil {
		recs = []models.ScoreRecord{}
	}
	return models.HistoryPage{
		Records: recs,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(recs)) < total,
	}, nil
}
