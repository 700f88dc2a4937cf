// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/models"
	"github.com/tomtom215/highscore/internal/scores"
)

// bestDoc is a device_stats document; the device id is the _id.
type bestDoc struct {
	DeviceID  string    `bson:"_id"`
	BestScore int64     `bson:"bestScore"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d bestDoc) model() models.DeviceBestScore {
	return models.DeviceBestScore{
		DeviceID:  d.DeviceID,
		BestScore: d.BestScore,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// raisePipeline keeps bestScore at max(stored, score) and moves updatedAt
// only when the score rises. Expressions in one $set stage all see the
// document as it was before the update.
func raisePipeline(score int64, now time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "bestScore", Value: bson.D{{Key: "$max", Value: bson.A{"$bestScore", score}}}},
			{Key: "updatedAt", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gt", Value: bson.A{score, bson.D{{Key: "$ifNull", Value: bson.A{"$bestScore", int64(-1)}}}}}},
				now,
				"$updatedAt",
			}}}},
			{Key: "createdAt", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$createdAt", now}}}},
		}}},
	}
}

// RaiseBestScore implements scores.Store.
func (s *Store) RaiseBestScore(ctx context.Context, deviceID string, score int64, now time.Time) (models.DeviceBestScore, bool, error) {
	start := time.Now()
	now = now.UTC().Truncate(time.Millisecond)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)

	var prior bestDoc
	var err error
	// two concurrent upserts of a new device can race on _id; the loser retries as an update
	for attempt := 0; attempt < 2; attempt++ {
		err = s.stats.FindOneAndUpdate(ctx, bson.M{"_id": deviceID}, raisePipeline(score, now), opts).Decode(&prior)
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		recordQuery("raise_best_score", start, nil)
		return models.DeviceBestScore{}, false, nil
	}
	recordQuery("raise_best_score", start, err)
	if err != nil {
		return models.DeviceBestScore{}, false, fmt.Errorf("raise best score: %w", err)
	}
	return prior.model(), true, nil
}

// ReplaceRecord implements scores.Store.
func (s *Store) ReplaceRecord(ctx context.Context, rec models.ScoreRecord) (bool, error) {
	start := time.Now()
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)

	inserted, err := s.replaceInTransaction(ctx, rec)
	if err != nil && isTransactionUnsupported(err) {
		if !s.noTxn.Swap(true) {
			logging.Warn().Msg("MongoDB server does not support transactions, replacing records without one")
		}
		inserted, err = s.replace(ctx, rec)
	}
	recordQuery("replace_record", start, err)
	if err != nil {
		return false, fmt.Errorf("replace record: %w", err)
	}
	return inserted, nil
}

func (s *Store) replaceInTransaction(ctx context.Context, rec models.ScoreRecord) (bool, error) {
	if s.noTxn.Load() {
		return s.replace(ctx, rec)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return false, err
	}
	defer session.EndSession(ctx)

	res, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.replace(sc, rec)
	})
	if err != nil {
		return false, err
	}
	inserted, _ := res.(bool)
	return inserted, nil
}

// replace checks the guard, deletes the device's records and inserts rec.
func (s *Store) replace(ctx context.Context, rec models.ScoreRecord) (bool, error) {
	var best bestDoc
	err := s.stats.FindOne(ctx, bson.M{"_id": rec.DeviceID}).Decode(&best)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if best.BestScore != rec.Score {
		return false, nil
	}

	if _, err := s.records.DeleteMany(ctx, bson.M{"deviceId": rec.DeviceID}); err != nil {
		return false, err
	}
	if _, err := s.records.InsertOne(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// isTransactionUnsupported reports the IllegalOperation error a standalone
// mongod returns for transactions.
func isTransactionUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 20 {
		return true
	}
	return strings.Contains(err.Error(), "Transaction numbers are only allowed")
}

// GetDeviceBest implements scores.Store.
func (s *Store) GetDeviceBest(ctx context.Context, deviceID string) (models.DeviceBestScore, error) {
	start := time.Now()
	var d bestDoc
	err := s.stats.FindOne(ctx, bson.M{"_id": deviceID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		recordQuery("get_device_best", start, nil)
		return models.DeviceBestScore{}, scores.ErrNotFound
	}
	recordQuery("get_device_best", start, err)
	if err != nil {
		return models.DeviceBestScore{}, fmt.Errorf("get device best: %w", err)
	}
	return d.model(), nil
}

// TopBestScores implements scores.Store.
func (s *Store) TopBestScores(ctx context.Context, limit int) ([]models.DeviceBestScore, error) {
	start := time.Now()
	opts := options.Find().
		SetSort(bson.D{{Key: "bestScore", Value: -1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	var docs []bestDoc
	err := findAll(ctx, s.stats, bson.D{}, opts, &docs)
	recordQuery("top_best_scores", start, err)
	if err != nil {
		return nil, fmt.Errorf("top best scores: %w", err)
	}
	out := make([]models.DeviceBestScore, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// WeeklyBest implements scores.Store.
func (s *Store) WeeklyBest(ctx context.Context, since time.Time, limit int) ([]models.WeeklyEntry, error) {
	start := time.Now()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "createdAt", Value: bson.D{{Key: "$gte", Value: since.UTC()}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$deviceId"},
			{Key: "score", Value: bson.D{{Key: "$max", Value: "$score"}}},
			{Key: "achievedAt", Value: bson.D{{Key: "$min", Value: "$createdAt"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "score", Value: -1}, {Key: "achievedAt", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: int64(limit)}},
	}

	cur, err := s.records.Aggregate(ctx, pipeline)
	if err != nil {
		recordQuery("weekly_best", start, err)
		return nil, fmt.Errorf("weekly best: %w", err)
	}
	out := make([]models.WeeklyEntry, 0, limit)
	err = cur.All(ctx, &out)
	recordQuery("weekly_best", start, err)
	if err != nil {
		return nil, fmt.Errorf("decode weekly best: %w", err)
	}
	for i := range out {
		out[i].AchievedAt = out[i].AchievedAt.UTC()
	}
	return out, nil
}

// CountAhead implements scores.Store.
func (s *Store) CountAhead(ctx context.Context, d models.DeviceBestScore) (int64, error) {
	start := time.Now()
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "bestScore", Value: bson.D{{Key: "$gt", Value: d.BestScore}}}},
		bson.D{
			{Key: "bestScore", Value: d.BestScore},
			{Key: "createdAt", Value: bson.D{{Key: "$lt", Value: d.CreatedAt.UTC()}}},
		},
	}}}
	n, err := s.stats.CountDocuments(ctx, filter)
	recordQuery("count_ahead", start, err)
	if err != nil {
		return 0, fmt.Errorf("count ahead: %w", err)
	}
	return n, nil
}

// ListRecords implements scores.Store.
func (s *Store) ListRecords(ctx context.Context, deviceID string, limit, offset int) ([]models.ScoreRecord, int64, error) {
	start := time.Now()
	filter := bson.M{"deviceId": deviceID}

	total, err := s.records.CountDocuments(ctx, filter)
	if err != nil {
		recordQuery("list_records", start, err)
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	var out []models.ScoreRecord
	err = findAll(ctx, s.records, filter, opts, &out)
	recordQuery("list_records", start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out, total, nil
}

func findAll(ctx context.Context, coll *mongo.Collection, filter interface{}, opts *options.FindOptions, out interface{}) error {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}
