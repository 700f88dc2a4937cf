// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type rankRow struct {
	DeviceID string `json:"deviceId" msgpack:"deviceId"`
	Score    int64  `json:"score" msgpack:"score"`
	Rank     int    `json:"rank" msgpack:"rank"`
}

func TestTyped_Codecs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rows := []rankRow{{"a", 300, 1}, {"b", 200, 2}}

	for _, name := range []string{"json", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			codec, err := CodecFor[[]rankRow](name)
			if err != nil {
				t.Fatalf("CodecFor(%q) error = %v", name, err)
			}
			if codec.Name() != name {
				t.Errorf("Name() = %q, want %q", codec.Name(), name)
			}

			remote := newMapStore()
			typed := NewTyped(newTestCache(t, Options{Remote: remote}), codec)
			typed.Set(ctx, "ranking:global:2", rows, time.Minute)

			// read through a fresh cache to exercise the remote payload
			other := NewTyped(newTestCache(t, Options{Remote: remote}), codec)
			got, ok := other.Get(ctx, "ranking:global:2")
			if !ok {
				t.Fatal("Get() missed")
			}
			if len(got) != 2 || got[0] != rows[0] || got[1] != rows[1] {
				t.Errorf("Get() = %+v, want %+v", got, rows)
			}
		})
	}
}

func TestCodecFor_Unknown(t *testing.T) {
	t.Parallel()

	if _, err := CodecFor[int]("xml"); err == nil {
		t.Error("CodecFor(\"xml\") should fail")
	}
}

func TestTyped_UndecodableIsMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, Options{MemoryOnly: true})
	c.Set(ctx, "stats:a", []byte("not json"), time.Minute)

	typed := NewTyped[rankRow](c, nil)
	if _, ok := typed.Get(ctx, "stats:a"); ok {
		t.Error("Get() of an undecodable value should miss")
	}
	if _, ok := c.Get(ctx, "stats:a"); ok {
		t.Error("undecodable value should be dropped")
	}
}

func TestTyped_GetOrLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	typed := NewTyped[int](newTestCache(t, Options{MemoryOnly: true}), nil)

	var calls int
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		v, err := typed.GetOrLoad(ctx, "rank:a", time.Minute, load)
		if err != nil || v != 42 {
			t.Fatalf("GetOrLoad() = %d, %v, want 42, nil", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
}

func TestTyped_GetOrLoadErrorNotCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	typed := NewTyped[int](newTestCache(t, Options{MemoryOnly: true}), nil)
	errDB := errors.New("database is locked")

	if _, err := typed.GetOrLoad(ctx, "k", time.Minute, func(context.Context) (int, error) {
		return 0, errDB
	}); !errors.Is(err, errDB) {
		t.Fatalf("GetOrLoad() error = %v, want %v", err, errDB)
	}
	v, err := typed.GetOrLoad(ctx, "k", time.Minute, func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("GetOrLoad() after error = %d, %v, want 7, nil", v, err)
	}
}

func TestTyped_GetOrLoadCoalesces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	typed := NewTyped[string](newTestCache(t, Options{MemoryOnly: true}), nil)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "ranking", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := typed.GetOrLoad(ctx, "ranking:global:10", time.Minute, load); err != nil || v != "ranking" {
				t.Errorf("GetOrLoad() = %q, %v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
}

func TestTyped_InvalidationDuringLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, Options{MemoryOnly: true})
	typed := NewTyped[string](c, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)
	go func() {
		v, _ := typed.GetOrLoad(ctx, "ranking:global:10", time.Minute, func(context.Context) (string, error) {
			close(started)
			<-release
			return "stale", nil
		})
		done <- v
	}()
	<-started

	// a write lands and invalidates while the first load is in flight
	c.DeletePattern(ctx, "ranking:global*")

	fresh, err := typed.GetOrLoad(ctx, "ranking:global:10", time.Minute, func(context.Context) (string, error) {
		return "fresh", nil
	})
	if err != nil || fresh != "fresh" {
		t.Fatalf("GetOrLoad() after invalidation = %q, %v, want fresh", fresh, err)
	}

	close(release)
	if v := <-done; v != "stale" {
		t.Errorf("in-flight load returned %q, want stale", v)
	}
	if v, _ := typed.Get(ctx, "ranking:global:10"); v != "fresh" {
		t.Errorf("cached value = %q, want fresh", v)
	}
}
