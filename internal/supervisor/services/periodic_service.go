// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/highscore/internal/logging"
)

// ErrTaskFatal marks a task error that should restart the service instead of
// being logged and retried on the next tick.
var ErrTaskFatal = errors.New("periodic task failed fatally")

// PeriodicService runs a task on a fixed interval until its context is
// canceled. Task errors are logged and the loop continues; errors wrapping
// ErrTaskFatal are returned so the supervisor applies its backoff.
type PeriodicService struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	task     func(ctx context.Context) error
}

// NewPeriodicService builds a periodic task. Each run gets a context bounded
// by timeout (the interval when timeout <= 0).
func NewPeriodicService(name string, interval, timeout time.Duration, task func(ctx context.Context) error) *PeriodicService {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = interval
	}
	return &PeriodicService{name: name, interval: interval, timeout: timeout, task: task}
}

// Serve implements suture.Service.
func (p *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.run(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *PeriodicService) run(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.task(runCtx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTaskFatal):
		return fmt.Errorf("%s: %w", p.name, err)
	default:
		logging.Warn().Err(err).Str("service", p.name).Msg("Periodic task failed, retrying next tick")
		return nil
	}
}

// String names the service in supervisor logs.
func (p *PeriodicService) String() string {
	return p.name
}
