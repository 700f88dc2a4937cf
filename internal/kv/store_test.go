// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package kv

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

// testStoreContract runs the behavior every backend must share.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		if _, err := s.Get(ctx, "contract:missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("binary round trip", func(t *testing.T) {
		val := []byte{0x00, 0xff, 'r', ':', 0x7f, 0x80}
		if err := s.Set(ctx, "contract:bin", val, time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := s.Get(ctx, "contract:bin")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !bytes.Equal(got, val) {
			t.Errorf("Get() = %v, want %v", got, val)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		_ = s.Set(ctx, "contract:ow", []byte("one"), 0)
		_ = s.Set(ctx, "contract:ow", []byte("two"), 0)
		got, err := s.Get(ctx, "contract:ow")
		if err != nil || string(got) != "two" {
			t.Errorf("Get() = %q, %v, want two", got, err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		_ = s.Set(ctx, "contract:d1", []byte("x"), 0)
		_ = s.Set(ctx, "contract:d2", []byte("y"), 0)
		if err := s.Delete(ctx, "contract:d1", "contract:d2", "contract:never"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		for _, k := range []string{"contract:d1", "contract:d2"} {
			if _, err := s.Get(ctx, k); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(%s) after Delete error = %v, want ErrNotFound", k, err)
			}
		}
		if err := s.Delete(ctx); err != nil {
			t.Errorf("Delete() with no keys error = %v", err)
		}
	})

	t.Run("incr", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			n, err := s.Incr(ctx, "contract:ctr", time.Minute)
			if err != nil {
				t.Fatalf("Incr() error = %v", err)
			}
			if n != want {
				t.Errorf("Incr() = %d, want %d", n, want)
			}
		}
		raw, err := s.Get(ctx, "contract:ctr")
		if err != nil || string(raw) != "3" {
			t.Errorf("Get(counter) = %q, %v, want \"3\"", raw, err)
		}
	})

	t.Run("incr non integer", func(t *testing.T) {
		_ = s.Set(ctx, "contract:text", []byte("hello"), 0)
		if _, err := s.Incr(ctx, "contract:text", 0); !errors.Is(err, ErrNotCounter) {
			t.Errorf("Incr(text) error = %v, want ErrNotCounter", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})

	if sc, ok := AsScanner(s); ok {
		t.Run("keys by prefix", func(t *testing.T) {
			_ = s.Set(ctx, "scan:a:1", []byte("1"), 0)
			_ = s.Set(ctx, "scan:a:2", []byte("2"), 0)
			_ = s.Set(ctx, "scan:b:1", []byte("3"), 0)
			keys, err := sc.Keys(ctx, "scan:a:")
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 2 || keys[0] != "scan:a:1" || keys[1] != "scan:a:2" {
				t.Errorf("Keys(scan:a:) = %v, want [scan:a:1 scan:a:2]", keys)
			}
		})
	}
}

func TestEscapeGlob(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"ranking:":   "ranking:",
		"a*b":        `a\*b`,
		"q?[x]":      `q\?\[x\]`,
		`back\slash`: `back\\slash`,
	}
	for in, want := range tests {
		if got := escapeGlob(in); got != want {
			t.Errorf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}
