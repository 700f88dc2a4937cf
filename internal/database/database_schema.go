// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaVersion is bumped whenever the statements below change shape.
const schemaVersion = 1

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// Timestamps are stored as UTC TIMESTAMP so no ICU extension is needed.
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS device_best_scores (
			device_id VARCHAR PRIMARY KEY,
			best_score BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS score_records (
			id VARCHAR PRIMARY KEY,
			device_id VARCHAR NOT NULL,
			score BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}
}

func indexCreationQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_best_scores_order ON device_best_scores(best_score, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_records_device ON score_records(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_created ON score_records(created_at)`,
	}
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// createIndexes creates the indexes used by the ranking queries
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range indexCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (db *DB) recordSchemaVersion() error {
	ctx, cancel := schemaContext()
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`,
		schemaVersion, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// SchemaVersion returns the highest applied schema version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(max(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}
