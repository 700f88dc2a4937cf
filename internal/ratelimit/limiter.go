// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package ratelimit implements fixed window request counting on a kv.Store.
//
// The limiter fails open: when the store is missing, slow or broken the
// request is allowed and the failure is logged and counted.
package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/highscore/internal/kv"
	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/metrics"
)

const (
	outcomeAllowed     = "allowed"
	outcomeDenied      = "denied"
	outcomeFailOpen    = "failopen"
	outcomeBlocked     = "blocked"
	outcomeAllowlisted = "allowlisted"
)

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	// ResetAfter is an upper bound on the time until the window resets.
	ResetAfter time.Duration
	// FailedOpen is set when the decision was made without the store.
	FailedOpen bool
	// Blocked is set when the address is serving a temporary block.
	Blocked bool
}

// Escalation turns repeated IP denials into a temporary block. Every denied
// CheckIP counts against "burst:{ip}" for BurstWindow; the denial after
// BurstLimit of them sets "blocked:ip:{ip}" for BlockDuration, and every
// CheckIP is refused while that key exists.
type Escalation struct {
	BurstLimit    int           // 0 disables blocking
	BurstWindow   time.Duration // default 5m
	BlockDuration time.Duration // default 15m
	// Allowlist addresses skip the IP limit entirely.
	Allowlist []string
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithEscalation enables IP blocking and the allowlist.
func WithEscalation(e Escalation) Option {
	return func(l *Limiter) {
		if e.BurstWindow <= 0 {
			e.BurstWindow = 5 * time.Minute
		}
		if e.BlockDuration <= 0 {
			e.BlockDuration = 15 * time.Minute
		}
		l.esc = e
		l.allow = make(map[string]struct{}, len(e.Allowlist))
		for _, ip := range e.Allowlist {
			if ip = strings.TrimSpace(ip); ip != "" {
				l.allow[ip] = struct{}{}
			}
		}
	}
}

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	store   kv.Store
	window  time.Duration
	timeout time.Duration
	log     zerolog.Logger

	esc   Escalation
	allow map[string]struct{}
	now   func() time.Time
}

// New returns a limiter over store. A nil store allows every request.
// Zero window and timeout default to one minute and 200ms.
func New(store kv.Store, window, timeout time.Duration, opts ...Option) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	l := &Limiter{
		store:   store,
		window:  window,
		timeout: timeout,
		log:     logging.With().Str("component", "ratelimit").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request against key. Requests over limit are denied
// without incrementing the counter. A limit <= 0 disables the check.
func (l *Limiter) Check(ctx context.Context, key string, limit int) Result {
	return l.check(ctx, scopeOf(key), key, limit)
}

// CheckDevice checks the per-device key "limit:device:{id}".
func (l *Limiter) CheckDevice(ctx context.Context, deviceID string, limit int) Result {
	return l.check(ctx, "device", DeviceKey(deviceID), limit)
}

// CheckIP checks the per-address key "limit:ip:{ip}". Allowlisted
// addresses always pass; with escalation enabled a blocked address is
// refused and repeated denials block it.
func (l *Limiter) CheckIP(ctx context.Context, ip string, limit int) Result {
	if _, ok := l.allow[ip]; ok {
		metrics.RecordRateLimit("ip", outcomeAllowlisted)
		return Result{Allowed: true, Remaining: limit, Limit: limit}
	}
	if limit <= 0 || l.store == nil || l.esc.BurstLimit <= 0 {
		return l.check(ctx, "ip", IPKey(ip), limit)
	}

	if until, ok := l.blockedUntil(ctx, ip); ok {
		metrics.RecordRateLimit("ip", outcomeBlocked)
		return l.blocked(limit, until)
	}
	res := l.check(ctx, "ip", IPKey(ip), limit)
	if res.Allowed {
		return res
	}
	if until, ok := l.escalate(ctx, ip); ok {
		return l.blocked(limit, until)
	}
	return res
}

// blockedUntil reports whether ip is blocked and when the block ends.
func (l *Limiter) blockedUntil(ctx context.Context, ip string) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	b, err := l.store.Get(ctx, BlockKey(ip))
	if errors.Is(err, kv.ErrNotFound) {
		return time.Time{}, false
	}
	if err != nil {
		l.log.Warn().Err(err).Str("ip", ip).Msg("block lookup failed, not enforcing")
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		// unreadable marker; the key's TTL still bounds the block
		return l.now().Add(l.esc.BlockDuration), true
	}
	return time.UnixMilli(ms), true
}

// escalate counts a denial for ip and blocks it once the burst limit is
// exceeded.
func (l *Limiter) escalate(ctx context.Context, ip string) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	n, err := l.store.Incr(ctx, BurstKey(ip), l.esc.BurstWindow)
	if err != nil {
		l.log.Warn().Err(err).Str("ip", ip).Msg("burst counter failed")
		return time.Time{}, false
	}
	if n <= int64(l.esc.BurstLimit) {
		return time.Time{}, false
	}

	until := l.now().Add(l.esc.BlockDuration)
	marker := []byte(strconv.FormatInt(until.UnixMilli(), 10))
	if err := l.store.Set(ctx, BlockKey(ip), marker, l.esc.BlockDuration); err != nil {
		l.log.Warn().Err(err).Str("ip", ip).Msg("setting ip block failed")
		return time.Time{}, false
	}
	if err := l.store.Delete(ctx, BurstKey(ip)); err != nil {
		l.log.Debug().Err(err).Str("ip", ip).Msg("clearing burst counter failed")
	}
	l.log.Warn().Str("ip", ip).Int64("violations", n).Time("until", until).Msg("ip blocked after repeated rate limit violations")
	return until, true
}

func (l *Limiter) blocked(limit int, until time.Time) Result {
	return Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      limit,
		ResetAfter: max(until.Sub(l.now()), 0),
		Blocked:    true,
	}
}

func (l *Limiter) check(ctx context.Context, scope, key string, limit int) Result {
	if limit <= 0 {
		return Result{Allowed: true, Remaining: 0, Limit: limit}
	}
	if l.store == nil {
		metrics.RecordRateLimit(scope, outcomeFailOpen)
		return l.failOpen(limit)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.current(ctx, key)
	if err != nil {
		return l.storeFailed(scope, key, limit, err)
	}
	if count >= int64(limit) {
		metrics.RecordRateLimit(scope, outcomeDenied)
		l.log.Debug().Str("key", key).Int64("count", count).Int("limit", limit).Msg("rate limit exceeded")
		return Result{Allowed: false, Remaining: 0, Limit: limit, ResetAfter: l.window}
	}

	n, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return l.storeFailed(scope, key, limit, err)
	}
	metrics.RecordRateLimit(scope, outcomeAllowed)
	return Result{
		Allowed:    true,
		Remaining:  max(limit-int(n), 0),
		Limit:      limit,
		ResetAfter: l.window,
	}
}

// current reads the counter; a missing key is zero.
func (l *Limiter) current(ctx context.Context, key string) (int64, error) {
	b, err := l.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, kv.ErrNotCounter
	}
	return n, nil
}

func (l *Limiter) storeFailed(scope, key string, limit int, err error) Result {
	metrics.RecordRateLimit(scope, outcomeFailOpen)
	l.log.Warn().Err(err).Str("key", key).Msg("rate limit store failed, allowing request")
	return l.failOpen(limit)
}

func (l *Limiter) failOpen(limit int) Result {
	return Result{Allowed: true, Remaining: limit, Limit: limit, FailedOpen: true}
}

// DeviceKey is the counter key for a device.
func DeviceKey(deviceID string) string { return "limit:device:" + deviceID }

// IPKey is the counter key for a client address.
func IPKey(ip string) string { return "limit:ip:" + ip }

// BurstKey counts the IP limit denials of a client address.
func BurstKey(ip string) string { return "burst:" + ip }

// BlockKey marks a client address as blocked; the value is the block end
// in unix milliseconds.
func BlockKey(ip string) string { return "blocked:ip:" + ip }

func scopeOf(key string) string {
	switch {
	case strings.HasPrefix(key, "limit:device:"):
		return "device"
	case strings.HasPrefix(key, "limit:ip:"):
		return "ip"
	default:
		return "other"
	}
}
