// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/metrics"
)

// BreakerSettings configures NewBreaker.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// Breaker guards a Store with a circuit breaker. While open, every call
// fails immediately with ErrUnavailable. Misses and caller cancellations are
// not counted as failures.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreaker wraps next.
func NewBreaker(next Store, st BreakerSettings) *Breaker {
	if st.ConsecutiveFailures == 0 {
		st.ConsecutiveFailures = 5
	}
	if st.OpenTimeout <= 0 {
		st.OpenTimeout = 30 * time.Second
	}
	name := "kv-" + NameOf(next)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= st.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrNotCounter) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", stateString(from)).
				Str("to", stateString(to)).Msg("remote tier circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateString(from), stateString(to)).Inc()
		},
	})
	return &Breaker{next: next, cb: cb, name: name}
}

// Name implements Named.
func (b *Breaker) Name() string { return NameOf(b.next) }

// Open reports whether calls are currently being rejected.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return v, err
}

// Get implements Store.
func (b *Breaker) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.execute(func() (any, error) { return b.next.Get(ctx, key) })
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Set implements Store.
func (b *Breaker) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.execute(func() (any, error) { return nil, b.next.Set(ctx, key, value, ttl) })
	return err
}

// Delete implements Store.
func (b *Breaker) Delete(ctx context.Context, keys ...string) error {
	_, err := b.execute(func() (any, error) { return nil, b.next.Delete(ctx, keys...) })
	return err
}

// Incr implements Store.
func (b *Breaker) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	v, err := b.execute(func() (any, error) { return b.next.Incr(ctx, key, ttl) })
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Ping goes through the breaker too, so a health probe can close a
// half-open circuit.
func (b *Breaker) Ping(ctx context.Context) error {
	_, err := b.execute(func() (any, error) { return nil, b.next.Ping(ctx) })
	return err
}

// Keys forwards to the wrapped store when it can scan.
func (b *Breaker) Keys(ctx context.Context, prefix string) ([]string, error) {
	sc, ok := b.next.(Scanner)
	if !ok {
		return nil, fmt.Errorf("kv: %s cannot enumerate keys", NameOf(b.next))
	}
	v, err := b.execute(func() (any, error) { return sc.Keys(ctx, prefix) })
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// CanScan reports whether Keys is supported by the wrapped store.
func (b *Breaker) CanScan() bool {
	_, ok := b.next.(Scanner)
	return ok
}

// Unwrap returns the guarded store.
func (b *Breaker) Unwrap() Store { return b.next }

// Close implements Store.
func (b *Breaker) Close() error { return b.next.Close() }

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
