// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "highscore_db_query_duration_seconds",
			Help:    "Duration of persistent store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highscore_db_query_errors_total",
			Help: "Total number of failed persistent store operations",
		},
		[]string{"driver", "operation"},
	)

	// Tiered cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highscore_cache_hits_total",
			Help: "Cache hits by tier (memory, remote)",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "highscore_cache_misses_total",
			Help: "Lookups that missed both cache tiers",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highscore_cache_errors_total",
			Help: "Remote tier failures and corrupt payloads by operation",
		},
		[]string{"op"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highscore_cache_evictions_total",
			Help: "Memory tier removals by reason (expired, capacity)",
		},
		[]string{"reason"},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "highscore_cache_entries",
			Help: "Current number of memory tier entries",
		},
	)

	RemoteTierUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "highscore_cache_remote_up",
			Help: "1 when the last remote tier ping succeeded",
		},
	)

	// Circuit breaker around the remote tier
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "highscore_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highscore_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Rate limiting
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highscore_ratelimit_decisions_total",
			Help: "Rate limit decisions by scope and outcome (allowed, denied, failopen)",
		},
		[]string{"scope", "outcome"},
	)

	// Scores
	ScoreSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highscore_submissions_total",
			Help: "Score submissions by outcome (new_best, not_best, invalid, error)",
		},
		[]string{"outcome"},
	)

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "highscore_cache_invalidations_total",
			Help: "Invalidation broadcasts issued after score writes",
		},
	)

	RankingComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "highscore_ranking_compute_duration_seconds",
			Help:    "Time to compute a ranking from the store",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"range"},
	)

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highscore_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "highscore_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "highscore_http_active_requests",
			Help: "In-flight HTTP requests",
		},
	)
)

// RecordDBQuery observes one store operation.
func RecordDBQuery(driver, operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(driver, operation).Inc()
	}
}

// RecordAPIRequest observes one HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRateLimit counts one limiter decision.
func RecordRateLimit(scope, outcome string) {
	RateLimitDecisions.WithLabelValues(scope, outcome).Inc()
}

// RecordSubmission counts one submission outcome.
func RecordSubmission(outcome string) {
	ScoreSubmissions.WithLabelValues(outcome).Inc()
}
