// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package services adapts process components to suture.Service.
//
// HTTPServerService turns ListenAndServe/Shutdown into Serve(ctx).
// PeriodicService runs maintenance on a ticker: the DuckDB checkpoint, the
// Badger value log GC and the remote cache tier health probe.
package services
