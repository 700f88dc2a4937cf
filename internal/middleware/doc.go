// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package middleware provides the HTTP middleware shared by the API router.
//
// All middleware has the chi signature func(http.Handler) http.Handler.
//
//   - RequestID: X-Request-ID propagation into the logging context
//   - PrometheusMetrics: request count, latency and in-flight gauge, labelled
//     by chi route pattern so path parameters do not explode cardinality
//   - Compression: gzip for responses, using klauspost/compress
//   - PerformanceMonitor: sliding window of request latencies, served by
//     /api/status
//
// Typical order:
//
//	r.Use(middleware.RequestID)
//	r.Use(middleware.PrometheusMetrics)
//	r.Use(perf.Middleware)
//	r.Use(middleware.Compression)
package middleware
