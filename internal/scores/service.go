// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package scores

import (
	"context"
	"time"

	"github.com/tomtom215/highscore/internal/cache"
	"github.com/tomtom215/highscore/internal/models"
)

// TTLs of the cached views.
type TTLs struct {
	Ranking time.Duration // default 5m
	Stats   time.Duration // default 1h
	Rank    time.Duration // default 10m
	History time.Duration // default 5m
}

func (t *TTLs) applyDefaults() {
	if t.Ranking <= 0 {
		t.Ranking = 300 * time.Second
	}
	if t.Stats <= 0 {
		t.Stats = 3600 * time.Second
	}
	if t.Rank <= 0 {
		t.Rank = 600 * time.Second
	}
	if t.History <= 0 {
		t.History = 300 * time.Second
	}
}

// ServiceOptions configures NewService.
type ServiceOptions struct {
	Ledger LedgerOptions
	// Location of the weekly window; nil means time.Local.
	Location *time.Location
	TTLs     TTLs
	// Codec names the cache value encoding: json (default) or msgpack.
	Codec string
}

// Service is the facade used by the HTTP layer: writes go through the
// ledger, reads are served read-through from the cache.
type Service struct {
	store  Store
	cache  *cache.Cache
	ledger *Ledger
	ranker *Ranker
	ttl    TTLs

	rankings *cache.Typed[[]models.RankingItem]
	stats    *cache.Typed[models.DeviceBestScore]
	ranks    *cache.Typed[int64]
	history  *cache.Typed[models.HistoryPage]
}

// NewService wires the ledger, ranker and invalidator over store and c.
// A nil c serves every read from the store.
func NewService(store Store, c *cache.Cache, opts ServiceOptions) (*Service, error) {
	opts.TTLs.applyDefaults()

	var inval *Invalidator
	if c != nil {
		inval = NewInvalidator(c)
	}
	s := &Service{
		store:  store,
		cache:  c,
		ledger: NewLedger(store, inval, opts.Ledger),
		ranker: NewRanker(store, opts.Location, opts.Ledger.Clock),
		ttl:    opts.TTLs,
	}
	if c == nil {
		return s, nil
	}

	var err error
	if s.rankings, err = newTyped[[]models.RankingItem](c, opts.Codec); err != nil {
		return nil, err
	}
	if s.stats, err = newTyped[models.DeviceBestScore](c, opts.Codec); err != nil {
		return nil, err
	}
	if s.ranks, err = newTyped[int64](c, opts.Codec); err != nil {
		return nil, err
	}
	if s.history, err = newTyped[models.HistoryPage](c, opts.Codec); err != nil {
		return nil, err
	}
	return s, nil
}

func newTyped[V any](c *cache.Cache, codec string) (*cache.Typed[V], error) {
	cd, err := cache.CodecFor[V](codec)
	if err != nil {
		return nil, err
	}
	return cache.NewTyped(c, cd), nil
}

// Submit records a score and invalidates the affected views.
func (s *Service) Submit(ctx context.Context, deviceID string, score int64) (models.SubmitResult, error) {
	return s.ledger.Submit(ctx, deviceID, score)
}

// GetRanking serves "ranking:{global|weekly}:{limit}".
func (s *Service) GetRanking(ctx context.Context, tr models.TimeRange, limit int) ([]models.RankingItem, error) {
	if !tr.Valid() {
		return nil, &ValidationError{Field: "type", Message: "must be all or weekly"}
	}
	limit = ClampLimit(limit)
	if s.rankings == nil {
		return s.ranker.GetRanking(ctx, tr, limit)
	}
	return s.rankings.GetOrLoad(ctx, RankingKey(tr, limit), s.ttl.Ranking, func(ctx context.Context) ([]models.RankingItem, error) {
		return s.ranker.GetRanking(ctx, tr, limit)
	})
}

// GetDeviceStats serves "stats:{id}".
func (s *Service) GetDeviceStats(ctx context.Context, deviceID string) (models.DeviceBestScore, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return models.DeviceBestScore{}, err
	}
	if s.stats == nil {
		return s.ledger.GetDeviceStats(ctx, deviceID)
	}
	return s.stats.GetOrLoad(ctx, StatsKey(deviceID), s.ttl.Stats, func(ctx context.Context) (models.DeviceBestScore, error) {
		return s.ledger.GetDeviceStats(ctx, deviceID)
	})
}

// GetDeviceRank serves "rank:{id}".
func (s *Service) GetDeviceRank(ctx context.Context, deviceID string) (int64, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return 0, err
	}
	if s.ranks == nil {
		return s.ledger.GetDeviceRank(ctx, deviceID)
	}
	return s.ranks.GetOrLoad(ctx, RankKey(deviceID), s.ttl.Rank, func(ctx context.Context) (int64, error) {
		return s.ledger.GetDeviceRank(ctx, deviceID)
	})
}

// GetStatsWithRank combines stats and rank for the stats endpoint.
func (s *Service) GetStatsWithRank(ctx context.Context, deviceID string) (models.DeviceStats, error) {
	d, err := s.GetDeviceStats(ctx, deviceID)
	if err != nil {
		return models.DeviceStats{}, err
	}
	rank, err := s.GetDeviceRank(ctx, deviceID)
	if err != nil {
		return models.DeviceStats{}, err
	}
	return models.DeviceStats{
		DeviceID:  d.DeviceID,
		BestScore: d.BestScore,
		Rank:      &rank,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// GetHistory serves "history:{id}:{limit}:{offset}".
func (s *Service) GetHistory(ctx context.Context, deviceID string, limit, offset int) (models.HistoryPage, error) {
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if s.history == nil {
		return s.ledger.GetHistory(ctx, deviceID, limit, offset)
	}
	// validate before building a cache key from the input
	if err := ValidateDeviceID(deviceID); err != nil {
		return models.HistoryPage{}, err
	}
	if limit < 1 || limit > MaxHistoryLimit || offset < 0 {
		return s.ledger.GetHistory(ctx, deviceID, limit, offset)
	}
	return s.history.GetOrLoad(ctx, HistoryKey(deviceID, limit, offset), s.ttl.History, func(ctx context.Context) (models.HistoryPage, error) {
		return s.ledger.GetHistory(ctx, deviceID, limit, offset)
	})
}

// Ping checks the persistent store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Cache returns the tiered cache, or nil.
func (s *Service) Cache() *cache.Cache { return s.cache }
