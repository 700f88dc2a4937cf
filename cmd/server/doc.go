// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

/*
Package main is the entry point of the highscore server.

The server accepts score submissions, keeps one best score per device and
serves all-time and weekly leaderboards through a two tier cache.

Initialization order:

 1. Configuration: koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog, JSON or console
 3. Store: DuckDB (default) or MongoDB, optional mock data
 4. Remote cache tier: Badger (default), Redis, Upstash REST or none,
    behind a circuit breaker
 5. Tiered cache, rate limiter and the scores service
 6. Supervisor tree: HTTP server plus periodic maintenance
 7. Signal handling: SIGINT/SIGTERM cancel the tree, then resources close
    in reverse order

Common environment variables:

	PORT=3000
	DB_DRIVER=duckdb            # or mongo
	DUCKDB_PATH=/data/highscore.duckdb
	MONGODB_URI=mongodb://localhost:27017
	KV_BACKEND=badger           # badger, redis, upstash, none
	REDIS_ADDR=localhost:6379
	UPSTASH_REDIS_REST_URL=https://...
	UPSTASH_REDIS_REST_TOKEN=...
	CACHE_MEMORY_ONLY=false
	REPLACE_ON_TIE=true
	RANKING_TIMEZONE=Local
	LOG_LEVEL=info
	LOG_FORMAT=json

Example:

	KV_BACKEND=none CACHE_MEMORY_ONLY=true DUCKDB_PATH=:memory: SEED_MOCK_DATA=true ./highscore
*/
package main
