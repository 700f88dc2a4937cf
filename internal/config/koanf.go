// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/highscore/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Driver:      "duckdb",
			Path:        "/data/highscore.duckdb",
			MaxMemory:   "512MB",
			SeedDevices: 50,
		},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "highscore",
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    10,
		},
		Cache: CacheConfig{
			MaxEntries:           1000,
			DefaultTTL:           time.Hour,
			HotTTL:               5 * time.Minute,
			SweepInterval:        time.Minute,
			CompressionThreshold: 1024,
			RemoteTimeout:        250 * time.Millisecond,
			Codec:                "json",
			RankingTTL:           5 * time.Minute,
			StatsTTL:             time.Hour,
			RankTTL:              10 * time.Minute,
			HistoryTTL:           5 * time.Minute,
		},
		KV: KVConfig{
			Backend:         "badger",
			BadgerPath:      "/data/kv",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
			HealthInterval:  15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Window:        time.Minute,
			DeviceLimit:   60,
			IPLimit:       100,
			StatsLimit:    100,
			Timeout:       200 * time.Millisecond,
			BurstLimit:    10,
			BurstWindow:   5 * time.Minute,
			BlockDuration: 15 * time.Minute,
		},
		Scores: ScoresConfig{
			MaxScore:     999999,
			ReplaceOnTie: true,
		},
		Ranking: RankingConfig{
			Timezone: "Local",
			APILimit: 50,
			MaxLimit: 100,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			HealthRateLimit: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf layers struct defaults, the config file (if any) and the
// environment, then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths accept comma separated strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"ratelimit.ip_allowlist",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := make([]string, 0, 4)
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps flat environment variable names to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"port":             "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	"db_driver":         "database.driver",
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",
	"seed_mock_data":    "database.seed_mock_data",
	"seed_devices":      "database.seed_devices",

	"mongodb_uri":             "mongo.uri",
	"mongodb_database":        "mongo.database",
	"mongodb_connect_timeout": "mongo.connect_timeout",
	"mongodb_max_pool_size":   "mongo.max_pool_size",

	"cache_memory_only":           "cache.memory_only",
	"cache_max_entries":           "cache.max_entries",
	"cache_default_ttl":           "cache.default_ttl",
	"cache_hot_ttl":               "cache.hot_ttl",
	"cache_sweep_interval":        "cache.sweep_interval",
	"cache_compression_threshold": "cache.compression_threshold",
	"cache_remote_timeout":        "cache.remote_timeout",
	"cache_codec":                 "cache.codec",
	"cache_ranking_ttl":           "cache.ranking_ttl",
	"cache_stats_ttl":             "cache.stats_ttl",
	"cache_rank_ttl":              "cache.rank_ttl",
	"cache_history_ttl":           "cache.history_ttl",

	"kv_backend":               "kv.backend",
	"badger_path":              "kv.badger_path",
	"badger_in_memory":         "kv.badger_in_memory",
	"redis_addr":               "kv.redis_addr",
	"redis_password":           "kv.redis_password",
	"redis_db":                 "kv.redis_db",
	"upstash_redis_rest_url":   "kv.upstash_url",
	"upstash_redis_rest_token": "kv.upstash_token",
	"upstash_rps":              "kv.upstash_rps",
	"kv_breaker_failures":      "kv.breaker_failures",
	"kv_breaker_timeout":       "kv.breaker_timeout",
	"kv_health_interval":       "kv.health_interval",

	"rate_limit_enabled": "ratelimit.enabled",
	"rate_limit_window":  "ratelimit.window",
	"device_rate_limit":  "ratelimit.device_limit",
	"ip_rate_limit":      "ratelimit.ip_limit",
	"stats_rate_limit":   "ratelimit.stats_limit",
	"rate_limit_timeout": "ratelimit.timeout",
	"ip_burst_limit":     "ratelimit.burst_limit",
	"ip_burst_window":    "ratelimit.burst_window",
	"ip_block_duration":  "ratelimit.block_duration",
	"ip_allowlist":       "ratelimit.ip_allowlist",
	"ip_whitelist":       "ratelimit.ip_allowlist",

	"max_score":      "scores.max_score",
	"replace_on_tie": "scores.replace_on_tie",

	"ranking_timezone":  "ranking.timezone",
	"ranking_api_limit": "ranking.api_limit",
	"ranking_max_limit": "ranking.max_limit",

	"cors_origins":      "security.cors_origins",
	"health_rate_limit": "security.health_rate_limit",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc returns "" for unknown variables so koanf skips them.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
