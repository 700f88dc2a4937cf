// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package kv provides the remote key-value tier used under the in-process
// cache and by the rate limiter.
//
// Three backends implement Store: an embedded Badger database, a Redis
// server, and the Upstash REST API. Any of them can be wrapped in a Breaker
// so that a dead backend fails fast instead of eating every request's
// timeout budget.
package kv

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Get for missing or expired keys.
	ErrNotFound = errors.New("kv: key not found")

	// ErrUnavailable wraps failures caused by the backend being unreachable,
	// including an open circuit breaker.
	ErrUnavailable = errors.New("kv: backend unavailable")

	// ErrNotCounter is returned by Incr when the key holds a non-integer value.
	ErrNotCounter = errors.New("kv: value is not an integer counter")
)

// Store is the contract every remote tier backend satisfies.
//
// A ttl of zero means no expiry. Incr applies ttl only when it creates the
// key, so a fixed window is never extended by later increments.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Scanner is implemented by backends that can enumerate keys natively.
type Scanner interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Named is implemented by backends to label logs and metrics.
type Named interface {
	Name() string
}

// NameOf returns the backend name of s, or "kv".
func NameOf(s Store) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "kv"
}

// escapeGlob escapes Redis glob metacharacters so a literal prefix can be
// used in a MATCH pattern.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// incrScript increments KEYS[1] and attaches the ARGV[1] millisecond expiry
// whenever the key has none, in one atomic step. A counter therefore never
// outlives its window, even if an earlier expiry was lost.
const incrScript = `
local v = redis.call('GET', KEYS[1])
if v and not tonumber(v) then
  return redis.error_reply('ERR value is not an integer or out of range')
end
local n = redis.call('INCR', KEYS[1])
local ttl = tonumber(ARGV[1])
if ttl > 0 and redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return n
`

// isNotIntegerMsg matches the Redis reply for INCR on a non-integer value.
func isNotIntegerMsg(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "not an integer")
}

// AsScanner returns s as a Scanner when it can actually enumerate keys,
// looking through a Breaker to the store it guards.
func AsScanner(s Store) (Scanner, bool) {
	if b, ok := s.(*Breaker); ok {
		if !b.CanScan() {
			return nil, false
		}
		return b, true
	}
	sc, ok := s.(Scanner)
	return sc, ok
}
