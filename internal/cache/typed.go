// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package cache

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// Typed is a view of a Cache holding values of one type.
type Typed[V any] struct {
	c     *Cache
	codec Codec[V]
	group singleflight.Group
}

// NewTyped wraps c. A nil codec means JSON.
func NewTyped[V any](c *Cache, codec Codec[V]) *Typed[V] {
	if codec == nil {
		codec = JSONCodec[V]{}
	}
	return &Typed[V]{c: c, codec: codec}
}

// Get returns the cached value. Values that fail to decode are dropped and
// reported as misses.
func (t *Typed[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	b, ok := t.c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	v, err := t.codec.Unmarshal(b)
	if err != nil {
		t.c.recordError("unmarshal", key, err)
		t.c.Delete(ctx, key)
		return zero, false
	}
	return v, true
}

// Set encodes v and stores it. Encoding errors are logged and skipped.
func (t *Typed[V]) Set(ctx context.Context, key string, v V, ttl time.Duration) {
	b, err := t.codec.Marshal(v)
	if err != nil {
		t.c.recordError("marshal", key, err)
		return
	}
	t.c.Set(ctx, key, b, ttl)
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Concurrent callers for the same key share one load. A load that overlaps
// an invalidation returns its result but does not cache it, and callers
// arriving after an invalidation never join a load that started before it.
func (t *Typed[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) (V, error)) (V, error) {
	if v, ok := t.Get(ctx, key); ok {
		return v, nil
	}

	epoch := t.c.Epoch()
	flight := key + "#" + strconv.FormatUint(epoch, 10)
	res, err, _ := t.group.Do(flight, func() (any, error) {
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		b, merr := t.codec.Marshal(v)
		if merr != nil {
			t.c.recordError("marshal", key, merr)
			return v, nil
		}
		t.c.setIfEpoch(ctx, key, b, ttl, epoch)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}
