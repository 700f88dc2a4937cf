// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks configuration ranges and cross-field requirements.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateCache,
		c.validateKV,
		c.validateRateLimit,
		c.validateScores,
		c.validateRanking,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "duckdb":
		if c.Database.Path == "" {
			return fmt.Errorf("DUCKDB_PATH is required when DB_DRIVER=duckdb")
		}
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("MONGODB_URI and MONGODB_DATABASE are required when DB_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be duckdb or mongo, got %q", c.Database.Driver)
	}
	if c.Database.SeedMockData && c.Database.SeedDevices < 1 {
		return fmt.Errorf("SEED_DEVICES must be positive when SEED_MOCK_DATA is set")
	}
	return nil
}

func (c *Config) validateCache() error {
	cc := c.Cache
	if cc.MaxEntries < 1 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", cc.MaxEntries)
	}
	if cc.DefaultTTL <= 0 || cc.HotTTL <= 0 || cc.SweepInterval <= 0 {
		return fmt.Errorf("cache TTLs and sweep interval must be positive")
	}
	if cc.CompressionThreshold < 0 {
		return fmt.Errorf("CACHE_COMPRESSION_THRESHOLD must not be negative")
	}
	if cc.RemoteTimeout <= 0 {
		return fmt.Errorf("CACHE_REMOTE_TIMEOUT must be positive")
	}
	switch cc.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("CACHE_CODEC must be json or msgpack, got %q", cc.Codec)
	}
	return nil
}

func (c *Config) validateKV() error {
	switch c.KV.Backend {
	case "none":
		return nil
	case "badger":
		if c.KV.BadgerPath == "" && !c.KV.BadgerInMemory {
			return fmt.Errorf("BADGER_PATH is required unless BADGER_IN_MEMORY is set")
		}
	case "redis":
		if c.KV.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when KV_BACKEND=redis")
		}
	case "upstash":
		if c.KV.UpstashToken == "" {
			return fmt.Errorf("UPSTASH_REDIS_REST_TOKEN is required when KV_BACKEND=upstash")
		}
		u, err := url.Parse(c.KV.UpstashURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("UPSTASH_REDIS_REST_URL must be an http(s) URL, got %q", c.KV.UpstashURL)
		}
	default:
		return fmt.Errorf("KV_BACKEND must be none, badger, redis or upstash, got %q", c.KV.Backend)
	}
	if c.KV.BreakerFailures == 0 {
		return fmt.Errorf("KV_BREAKER_FAILURES must be positive")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	rl := c.RateLimit
	if !rl.Enabled {
		return nil
	}
	if rl.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if rl.DeviceLimit < 1 || rl.IPLimit < 1 || rl.StatsLimit < 1 {
		return fmt.Errorf("rate limits must be at least 1")
	}
	if rl.BurstLimit < 0 {
		return fmt.Errorf("IP_BURST_LIMIT must not be negative, got %d", rl.BurstLimit)
	}
	if rl.BurstLimit > 0 && (rl.BurstWindow <= 0 || rl.BlockDuration <= 0) {
		return fmt.Errorf("IP_BURST_WINDOW and IP_BLOCK_DURATION must be positive when IP_BURST_LIMIT is set")
	}
	for _, ip := range rl.IPAllowlist {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("IP_ALLOWLIST entry %q is not an IP address", ip)
		}
	}
	return nil
}

func (c *Config) validateScores() error {
	if c.Scores.MaxScore < 1 {
		return fmt.Errorf("MAX_SCORE must be positive, got %d", c.Scores.MaxScore)
	}
	return nil
}

func (c *Config) validateRanking() error {
	r := c.Ranking
	if r.MaxLimit < 1 || r.APILimit < 1 {
		return fmt.Errorf("ranking limits must be at least 1")
	}
	if r.MaxLimit > 100 {
		return fmt.Errorf("RANKING_MAX_LIMIT must be at most 100, got %d", r.MaxLimit)
	}
	if r.APILimit > r.MaxLimit {
		return fmt.Errorf("RANKING_API_LIMIT must not exceed RANKING_MAX_LIMIT (%d)", r.MaxLimit)
	}
	if _, err := r.Location(); err != nil {
		return fmt.Errorf("RANKING_TIMEZONE %q: %w", r.Timezone, err)
	}
	return nil
}

// ShouldWarnAboutCORS reports a wildcard origin outside development.
func (c *Config) ShouldWarnAboutCORS() bool {
	if strings.EqualFold(c.Server.Environment, "development") {
		return false
	}
	for _, o := range c.Security.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
