// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package database is the DuckDB implementation of scores.Store.
//
// # Tables
//
//   - device_best_scores: one row per device holding its best score. The row
//     is only ever raised, by a single INSERT ... ON CONFLICT DO UPDATE using
//     greatest(), so concurrent submissions cannot lower it.
//   - score_records: the live record behind each best score. A record is
//     replaced inside one transaction that first checks the best score still
//     equals the record's score.
//
// # Concurrency
//
// DuckDB uses optimistic concurrency control. Two transactions writing the
// same row make the second fail with a transaction conflict; writes retry
// those a few times with a short backoff (see withConflictRetry). The scores
// ledger also serializes submissions per device in-process.
//
// # Files
//
//   - database.go: connection lifecycle
//   - database_schema.go: tables, indexes and schema versioning
//   - database_connection.go: pool settings and error classification
//   - scores.go: the scores.Store methods
//   - seed.go: demo data
package database
