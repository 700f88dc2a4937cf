// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package database

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
	"time"

	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/scores"
)

const (
	defaultSeedDevices = 50
	seedDaysOfHistory  = 14
	seedMaxAttempts    = 5
)

// SeedMockData submits random scores for devices random devices through
// the ledger, so the seeded rows obey the same rules as real submissions.
// It works against any scores.Store. It is for demos and screenshots.
func SeedMockData(ctx context.Context, store scores.Store, devices int) error {
	if devices <= 0 {
		devices = defaultSeedDevices
	}
	logging.Info().Int("devices", devices).Msg("Seeding database with mock scores...")

	now := time.Now()
	var at time.Time
	ledger := scores.NewLedger(store, nil, scores.LedgerOptions{
		ReplaceOnTie: true,
		Clock:        func() time.Time { return at },
	})

	submitted := 0
	for i := 0; i < devices; i++ {
		id, err := randomDeviceID()
		if err != nil {
			return err
		}
		// attempts in chronological order so the history looks plausible
		at = now.Add(-time.Duration(mrand.IntN(seedDaysOfHistory*24)) * time.Hour)
		for n := mrand.IntN(seedMaxAttempts) + 1; n > 0; n-- {
			at = at.Add(time.Duration(mrand.IntN(90)+1) * time.Minute)
			if at.After(now) {
				at = now
			}
			if _, err := ledger.Submit(ctx, id, mrand.Int64N(scores.DefaultMaxScore+1)); err != nil {
				return fmt.Errorf("seed device %s: %w", id, err)
			}
			submitted++
		}
	}

	logging.Info().Int("devices", devices).Int("submissions", submitted).Msg("Mock data seeded")
	return nil
}

func randomDeviceID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
