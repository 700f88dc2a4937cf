// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

/*
Package api serves the game HTTP API on a chi router.

Routes:

	POST /api/game/submit                  submit a score, per-device limit
	GET  /api/game/ranking?type=&limit=    all-time or weekly leaderboard, per-IP limit
	GET  /api/game/stats/{deviceId}        best score and all-time rank
	GET  /api/game/history/{deviceId}      paged live records
	GET  /api/health                       store and cache health
	GET  /api/status                       cache statistics and limits
	GET  /metrics                          Prometheus exposition

Every JSON response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"timestamp": 1700000000000, "request_id": "...", "query_time_ms": 3}}
	{"success": false, "error": {"code": "DEVICE_NOT_FOUND", "message": "..."}, "meta": {...}}

Handlers never talk to the store directly. Writes and reads go through a
ScoreService (implemented by *scores.Service), which owns the cache and its
invalidation. Rate limiting uses the fixed window limiter from
internal/ratelimit, which shares the remote cache tier and fails open.
*/
package api
