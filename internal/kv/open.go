// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package kv

import (
	"fmt"

	"github.com/tomtom215/highscore/internal/config"
)

// Open builds the backend selected by cfg.Backend and wraps it in a Breaker.
// The "none" backend returns a nil Store and a nil error.
func Open(cfg config.KVConfig) (Store, error) {
	var s Store
	switch cfg.Backend {
	case "none", "":
		return nil, nil
	case "badger":
		b, err := OpenBadger(cfg.BadgerPath, cfg.BadgerInMemory)
		if err != nil {
			return nil, err
		}
		s = b
	case "redis":
		s = NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "upstash":
		s = NewUpstashStore(UpstashOptions{
			URL:   cfg.UpstashURL,
			Token: cfg.UpstashToken,
			RPS:   cfg.UpstashRPS,
		})
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}

	return NewBreaker(s, BreakerSettings{
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerTimeout,
	}), nil
}
