// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package mongostore is the MongoDB implementation of scores.Store.
//
// Best scores live in device_stats keyed by device id; live records in
// game_records. Raising the best score is one FindOneAndUpdate with an
// update pipeline, so it is atomic per document. Replacing a record runs in
// a multi-document transaction on replica sets and falls back to ordered
// single-document writes on a standalone server.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tomtom215/highscore/internal/config"
	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/metrics"
	"github.com/tomtom215/highscore/internal/scores"
)

const (
	driverName = "mongo"

	statsCollection   = "device_stats"
	recordsCollection = "game_records"
)

var _ scores.Store = (*Store)(nil)

// Store implements scores.Store on MongoDB.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	stats   *mongo.Collection
	records *mongo.Collection

	// set once a standalone server rejects transactions
	noTxn atomic.Bool
}

// Open connects with cfg, pings the primary and ensures indexes.
func Open(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = "highscore"
	}
	s := newStore(client, dbName)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logging.Info().Str("database", dbName).Msg("MongoDB store ready")
	return s, nil
}

func newStore(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client:  client,
		db:      db,
		stats:   db.Collection(statsCollection),
		records: db.Collection(recordsCollection),
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.stats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "bestScore", Value: -1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create %s indexes: %w", statsCollection, err)
	}
	_, err = s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create %s indexes: %w", recordsCollection, err)
	}
	return nil
}

// Ping checks the primary.
func (s *Store) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.client.Ping(ctx, readpref.Primary())
	recordQuery("ping", start, err)
	return err
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes both collections. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return errors.Join(s.stats.Drop(ctx), s.records.Drop(ctx))
}

func recordQuery(op string, start time.Time, err error) {
	metrics.RecordDBQuery(driverName, op, time.Since(start), err)
}
