// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/highscore/internal/cache"
	"github.com/tomtom215/highscore/internal/config"
	"github.com/tomtom215/highscore/internal/database"
	"github.com/tomtom215/highscore/internal/database/mongostore"
	"github.com/tomtom215/highscore/internal/kv"
	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/ratelimit"
	"github.com/tomtom215/highscore/internal/scores"
	"github.com/tomtom215/highscore/internal/supervisor"
	"github.com/tomtom215/highscore/internal/supervisor/services"
)

const (
	checkpointInterval = 5 * time.Minute
	badgerGCInterval   = 10 * time.Minute
)

// storeHandle is the opened persistent store. duck is set for DuckDB only.
type storeHandle struct {
	scores.Store
	duck  *database.DB
	close func() error
}

func (h *storeHandle) Close() error { return h.close() }

// openStore opens the store selected by database.driver.
func openStore(ctx context.Context, cfg *config.Config) (*storeHandle, error) {
	switch cfg.Database.Driver {
	case "mongo":
		s, err := mongostore.Open(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return &storeHandle{Store: s, close: s.Close}, nil
	default:
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open duckdb store: %w", err)
		}
		return &storeHandle{Store: db, duck: db, close: db.Close}, nil
	}
}

func seedStore(ctx context.Context, store scores.Store, devices int) error {
	logging.Info().Msg("Mock data seeding enabled (SEED_MOCK_DATA=true)")
	if err := database.SeedMockData(ctx, store, devices); err != nil {
		return fmt.Errorf("seed mock data: %w", err)
	}
	return nil
}

// openRemote opens the remote cache tier. A nil Store means none is
// configured; the cache then runs memory only and the limiter fails open.
func openRemote(cfg *config.Config) (kv.Store, error) {
	remote, err := kv.Open(cfg.KV)
	if err != nil {
		return nil, fmt.Errorf("open kv backend %s: %w", cfg.KV.Backend, err)
	}
	if remote == nil {
		logging.Warn().Bool("memory_only", cfg.Cache.MemoryOnly).Msg("No remote cache tier configured")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := remote.Ping(ctx); err != nil {
		// degrade instead of failing startup; the breaker and the health
		// probe pick it up when it comes back
		logging.Warn().Err(err).Str("backend", kv.NameOf(remote)).Msg("Remote cache tier unreachable at startup")
	} else {
		logging.Info().Str("backend", kv.NameOf(remote)).Msg("Remote cache tier connected")
	}
	return remote, nil
}

func newCache(cfg *config.Config, remote kv.Store) *cache.Cache {
	return cache.New(cache.Options{
		Remote:               remote,
		MemoryOnly:           cfg.Cache.MemoryOnly,
		MaxEntries:           cfg.Cache.MaxEntries,
		DefaultTTL:           cfg.Cache.DefaultTTL,
		HotTTL:               cfg.Cache.HotTTL,
		SweepInterval:        cfg.Cache.SweepInterval,
		CompressionThreshold: cfg.Cache.CompressionThreshold,
		RemoteTimeout:        cfg.Cache.RemoteTimeout,
	})
}

func limiterEscalation(cfg *config.Config) ratelimit.Option {
	return ratelimit.WithEscalation(ratelimit.Escalation{
		BurstLimit:    cfg.RateLimit.BurstLimit,
		BurstWindow:   cfg.RateLimit.BurstWindow,
		BlockDuration: cfg.RateLimit.BlockDuration,
		Allowlist:     cfg.RateLimit.IPAllowlist,
	})
}

// addMaintenance registers the periodic store and cache tasks that apply
// to the configured backends.
func addMaintenance(tree *supervisor.SupervisorTree, cfg *config.Config, store *storeHandle, remote kv.Store, c *cache.Cache) {
	if store.duck != nil && cfg.Database.Path != ":memory:" {
		tree.AddStoreService(services.NewPeriodicService("duckdb-checkpoint", checkpointInterval, time.Minute, store.duck.Checkpoint))
	}

	if b := badgerOf(remote); b != nil {
		tree.AddStoreService(services.NewPeriodicService("badger-gc", badgerGCInterval, 0, func(context.Context) error {
			err := b.RunGC()
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				return nil
			}
			return err
		}))
	}

	if remote != nil {
		tree.AddCacheService(services.NewPeriodicService("kv-health", cfg.KV.HealthInterval, cfg.Cache.RemoteTimeout, func(ctx context.Context) error {
			// IsAvailable updates the remote-up gauge and logs transitions
			c.IsAvailable(ctx)
			return nil
		}))
	}
}

// badgerOf returns the Badger backend behind the breaker, if that is the
// configured tier.
func badgerOf(s kv.Store) *kv.BadgerStore {
	for s != nil {
		switch v := s.(type) {
		case *kv.BadgerStore:
			return v
		case interface{ Unwrap() kv.Store }:
			s = v.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
