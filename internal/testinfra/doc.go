// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

//go:build integration

// Package testinfra starts real backing services in Docker for integration
// tests, using testcontainers-go. Everything here is behind the integration
// build tag:
//
//	go test -tags integration ./...
//
// # Containers
//
//   - NewMongoContainer: single-node replica set for the MongoDB store
//   - NewRedisContainer: Redis for the remote cache tier and rate limiter
//
// Example:
//
//	func TestSomething(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    mongo, err := testinfra.NewMongoContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    testinfra.CleanupContainer(t, mongo)
//	    // connect to mongo.URI
//	}
package testinfra
