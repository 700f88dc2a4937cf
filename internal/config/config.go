// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Mongo     MongoConfig     `koanf:"mongo"`
	Cache     CacheConfig     `koanf:"cache"`
	KV        KVConfig        `koanf:"kv"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Scores    ScoresConfig    `koanf:"scores"`
	Ranking   RankingConfig   `koanf:"ranking"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// DatabaseConfig selects and configures the persistent store.
type DatabaseConfig struct {
	Driver       string `koanf:"driver"` // duckdb or mongo
	Path         string `koanf:"path"`   // DuckDB file, ":memory:" for an in-memory database
	MaxMemory    string `koanf:"max_memory"`
	Threads      int    `koanf:"threads"` // 0 = DuckDB default
	SeedMockData bool   `koanf:"seed_mock_data"`
	SeedDevices  int    `koanf:"seed_devices"`
}

// MongoConfig is used when database.driver is mongo.
type MongoConfig struct {
	URI            string        `koanf:"uri"`
	Database       string        `koanf:"database"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	MaxPoolSize    uint64        `koanf:"max_pool_size"`
}

// CacheConfig configures the tiered cache and the TTLs of cached views.
type CacheConfig struct {
	// MemoryOnly runs without a remote tier and still reports the cache as available.
	MemoryOnly           bool          `koanf:"memory_only"`
	MaxEntries           int           `koanf:"max_entries"`
	DefaultTTL           time.Duration `koanf:"default_ttl"`
	HotTTL               time.Duration `koanf:"hot_ttl"`
	SweepInterval        time.Duration `koanf:"sweep_interval"`
	CompressionThreshold int           `koanf:"compression_threshold"`
	RemoteTimeout        time.Duration `koanf:"remote_timeout"`
	Codec                string        `koanf:"codec"` // json or msgpack

	RankingTTL time.Duration `koanf:"ranking_ttl"`
	StatsTTL   time.Duration `koanf:"stats_ttl"`
	RankTTL    time.Duration `koanf:"rank_ttl"`
	HistoryTTL time.Duration `koanf:"history_ttl"`
}

// KVConfig selects the remote key-value tier.
type KVConfig struct {
	Backend string `koanf:"backend"` // none, badger, redis, upstash

	BadgerPath     string `koanf:"badger_path"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	UpstashURL   string  `koanf:"upstash_url"`
	UpstashToken string  `koanf:"upstash_token"`
	UpstashRPS   float64 `koanf:"upstash_rps"` // 0 = unthrottled

	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
	HealthInterval  time.Duration `koanf:"health_interval"`
}

// RateLimitConfig holds fixed-window limits per scope.
type RateLimitConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Window      time.Duration `koanf:"window"`
	DeviceLimit int           `koanf:"device_limit"`
	IPLimit     int           `koanf:"ip_limit"`
	StatsLimit  int           `koanf:"stats_limit"`
	Timeout     time.Duration `koanf:"timeout"`

	// BurstLimit IP limit denials within BurstWindow are tolerated; the
	// next one blocks the address for BlockDuration. 0 disables blocking.
	BurstLimit    int           `koanf:"burst_limit"`
	BurstWindow   time.Duration `koanf:"burst_window"`
	BlockDuration time.Duration `koanf:"block_duration"`
	IPAllowlist   []string      `koanf:"ip_allowlist"`
}

// ScoresConfig holds submission rules.
type ScoresConfig struct {
	MaxScore     int64 `koanf:"max_score"`
	ReplaceOnTie bool  `koanf:"replace_on_tie"`
}

// RankingConfig holds leaderboard settings.
type RankingConfig struct {
	// Timezone is an IANA name for the weekly window; "Local" uses the server zone.
	Timezone string `koanf:"timezone"`
	APILimit int    `koanf:"api_limit"` // default limit of GET /api/game/ranking
	MaxLimit int    `koanf:"max_limit"`
}

// SecurityConfig holds HTTP edge settings.
type SecurityConfig struct {
	CORSOrigins     []string `koanf:"cors_origins"`
	HealthRateLimit int      `koanf:"health_rate_limit"` // requests per minute per IP on /api/health
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Location resolves the ranking timezone.
func (r RankingConfig) Location() (*time.Location, error) {
	if r.Timezone == "" || r.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(r.Timezone)
}

// Load is the entry point used by main.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
