// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package scores

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/highscore/internal/models"
)

// memStore is an in-memory Store with the same conditional semantics as the
// database implementations.
type memStore struct {
	mu      sync.Mutex
	best    map[string]models.DeviceBestScore
	records map[string][]models.ScoreRecord

	failRaise   error
	failReplace error
	reads       atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{
		best:    make(map[string]models.DeviceBestScore),
		records: make(map[string][]models.ScoreRecord),
	}
}

func (m *memStore) RaiseBestScore(_ context.Context, id string, score int64, now time.Time) (models.DeviceBestScore, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRaise != nil {
		return models.DeviceBestScore{}, false, m.failRaise
	}
	prior, ok := m.best[id]
	if !ok {
		m.best[id] = models.DeviceBestScore{DeviceID: id, BestScore: score, CreatedAt: now, UpdatedAt: now}
		return models.DeviceBestScore{}, false, nil
	}
	if score > prior.BestScore {
		next := prior
		next.BestScore = score
		next.UpdatedAt = now
		m.best[id] = next
	}
	return prior, true, nil
}

func (m *memStore) ReplaceRecord(_ context.Context, rec models.ScoreRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReplace != nil {
		return false, m.failReplace
	}
	if b, ok := m.best[rec.DeviceID]; !ok || b.BestScore != rec.Score {
		return false, nil
	}
	m.records[rec.DeviceID] = []models.ScoreRecord{rec}
	return true, nil
}

func (m *memStore) GetDeviceBest(_ context.Context, id string) (models.DeviceBestScore, error) {
	m.reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.best[id]
	if !ok {
		return models.DeviceBestScore{}, ErrNotFound
	}
	return b, nil
}

func ahead(a, b models.DeviceBestScore) bool {
	if a.BestScore != b.BestScore {
		return a.BestScore > b.BestScore
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (m *memStore) TopBestScores(_ context.Context, limit int) ([]models.DeviceBestScore, error) {
	m.reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DeviceBestScore, 0, len(m.best))
	for _, b := range m.best {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return ahead(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) WeeklyBest(_ context.Context, since time.Time, limit int) ([]models.WeeklyEntry, error) {
	m.reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	byDevice := make(map[string]models.WeeklyEntry)
	for id, recs := range m.records {
		for _, r := range recs {
			if r.CreatedAt.Before(since) {
				continue
			}
			e, ok := byDevice[id]
			if !ok {
				e = models.WeeklyEntry{DeviceID: id, Score: r.Score, AchievedAt: r.CreatedAt}
			}
			if r.Score > e.Score {
				e.Score = r.Score
			}
			if r.CreatedAt.Before(e.AchievedAt) {
				e.AchievedAt = r.CreatedAt
			}
			byDevice[id] = e
		}
	}
	out := make([]models.WeeklyEntry, 0, len(byDevice))
	for _, e := range byDevice {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].AchievedAt.Before(out[j].AchievedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountAhead(_ context.Context, d models.DeviceBestScore) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.best {
		if ahead(b, d) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListRecords(_ context.Context, id string, limit, offset int) ([]models.ScoreRecord, int64, error) {
	m.reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[id]
	total := int64(len(recs))
	if offset >= len(recs) {
		return nil, total, nil
	}
	recs = recs[offset:]
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return append([]models.ScoreRecord(nil), recs...), total, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

// insertRecord places a record directly, for window boundary tests.
func (m *memStore) insertRecord(rec models.ScoreRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.DeviceID] = append(m.records[rec.DeviceID], rec)
	b, ok := m.best[rec.DeviceID]
	if !ok || rec.Score > b.BestScore {
		if !ok {
			b.CreatedAt = rec.CreatedAt
		}
		b.DeviceID = rec.DeviceID
		b.BestScore = rec.Score
		b.UpdatedAt = rec.CreatedAt
		m.best[rec.DeviceID] = b
	}
}
