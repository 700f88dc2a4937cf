// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package scores

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/highscore/internal/models"
)

func devID(n int) string { return fmt.Sprintf("%032x", n) }

// recordingCache captures invalidation calls.
type recordingCache struct {
	mu       sync.Mutex
	keys     []string
	patterns []string
}

func (r *recordingCache) Delete(_ context.Context, keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, keys...)
}

func (r *recordingCache) DeletePattern(_ context.Context, pattern string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
	return 0
}

func (r *recordingCache) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys) + len(r.patterns)
}

func (r *recordingCache) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys, r.patterns = nil, nil
}

// stepClock returns a time one second later on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestLedger(replaceOnTie bool) (*Ledger, *memStore, *recordingCache) {
	store := newMemStore()
	rc := &recordingCache{}
	l := NewLedger(store, NewInvalidator(rc), LedgerOptions{
		ReplaceOnTie: replaceOnTie,
		Clock:        stepClock(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)),
	})
	return l, store, rc
}

func TestLedger_FirstSubmission(t *testing.T) {
	t.Parallel()

	l, store, rc := newTestLedger(true)
	ctx := context.Background()

	res, err := l.Submit(ctx, devID(1), 500)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.IsNewBest || res.BestScore != 500 || res.RecordID == "" {
		t.Errorf("Submit() = %+v, want new best 500 with a record id", res)
	}
	if recs := store.records[devID(1)]; len(recs) != 1 || recs[0].ID != res.RecordID {
		t.Errorf("records = %+v, want the one new record", recs)
	}
	if rc.calls() == 0 {
		t.Error("first submission should invalidate")
	}
}

func TestLedger_BestScoreInvariant(t *testing.T) {
	t.Parallel()

	l, store, _ := newTestLedger(true)
	ctx := context.Background()
	id := devID(2)

	seq := []int64{100, 50, 300, 300, 200, 0, 299}
	var want int64
	for _, s := range seq {
		res, err := l.Submit(ctx, id, s)
		if err != nil {
			t.Fatalf("Submit(%d) error = %v", s, err)
		}
		want = max(want, s)
		if res.BestScore != want {
			t.Errorf("Submit(%d) BestScore = %d, want %d", s, res.BestScore, want)
		}
		recs := store.records[id]
		if len(recs) != 1 || recs[0].Score != want {
			t.Errorf("after Submit(%d) records = %+v, want one record at %d", s, recs, want)
		}
	}
}

func TestLedger_LowerScoreKeepsRecord(t *testing.T) {
	t.Parallel()

	l, store, rc := newTestLedger(true)
	ctx := context.Background()
	id := devID(3)

	first, _ := l.Submit(ctx, id, 500)
	rc.reset()

	res, err := l.Submit(ctx, id, 300)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsNewBest || res.RecordID != "" || res.BestScore != 500 {
		t.Errorf("Submit(300) = %+v, want not new best, best 500, no record id", res)
	}
	if recs := store.records[id]; len(recs) != 1 || recs[0].ID != first.RecordID {
		t.Error("a lower score must not replace the record")
	}
	if rc.calls() != 0 {
		t.Error("a submission that writes nothing should not invalidate")
	}
}

func TestLedger_TiePolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("replace on tie", func(t *testing.T) {
		t.Parallel()
		l, store, rc := newTestLedger(true)
		id := devID(4)
		first, _ := l.Submit(ctx, id, 400)
		rc.reset()

		res, err := l.Submit(ctx, id, 400)
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsNewBest || res.RecordID == first.RecordID {
			t.Errorf("tie = %+v, want a new record", res)
		}
		recs := store.records[id]
		if len(recs) != 1 || !recs[0].CreatedAt.After(first.SubmittedAt) {
			t.Errorf("records = %+v, want one record with a later timestamp", recs)
		}
		if rc.calls() == 0 {
			t.Error("replacing the record should invalidate")
		}
	})

	t.Run("keep on tie", func(t *testing.T) {
		t.Parallel()
		l, store, rc := newTestLedger(false)
		id := devID(5)
		first, _ := l.Submit(ctx, id, 400)
		rc.reset()

		res, err := l.Submit(ctx, id, 400)
		if err != nil {
			t.Fatal(err)
		}
		if res.IsNewBest || res.BestScore != 400 {
			t.Errorf("tie = %+v, want not new best", res)
		}
		if recs := store.records[id]; len(recs) != 1 || recs[0].ID != first.RecordID {
			t.Error("the original record should be kept")
		}
		if rc.calls() != 0 {
			t.Error("a kept tie writes nothing and should not invalidate")
		}
	})
}

func TestLedger_Validation(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLedger(true)
	ctx := context.Background()

	tests := []struct {
		name  string
		id    string
		score int64
		field string
	}{
		{"empty id", "", 1, "deviceId"},
		{"short id", "abc", 1, "deviceId"},
		{"upper case id", "0123456789ABCDEF0123456789ABCDEF", 1, "deviceId"},
		{"negative score", devID(1), -1, "score"},
		{"score above max", devID(1), DefaultMaxScore + 1, "score"},
	}
	for _, tt := range tests {
		_, err := l.Submit(ctx, tt.id, tt.score)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: Submit() error = %v, want *ValidationError", tt.name, err)
			continue
		}
		if ve.Field != tt.field {
			t.Errorf("%s: Field = %q, want %q", tt.name, ve.Field, tt.field)
		}
	}

	if _, err := l.Submit(ctx, devID(1), DefaultMaxScore); err != nil {
		t.Errorf("Submit(max) error = %v", err)
	}
	if _, err := l.Submit(ctx, devID(1), 0); err != nil {
		t.Errorf("Submit(0) error = %v", err)
	}
}

func TestLedger_CustomMaxScore(t *testing.T) {
	t.Parallel()

	l := NewLedger(newMemStore(), nil, LedgerOptions{MaxScore: 100})
	if _, err := l.Submit(context.Background(), devID(1), 101); !IsValidation(err) {
		t.Errorf("Submit(101) error = %v, want validation error", err)
	}
	if l.MaxScore() != 100 {
		t.Errorf("MaxScore() = %d, want 100", l.MaxScore())
	}
}

func TestLedger_RaiseFailure(t *testing.T) {
	t.Parallel()

	l, store, rc := newTestLedger(true)
	cause := errors.New("connection refused")
	store.failRaise = cause

	_, err := l.Submit(context.Background(), devID(6), 10)
	var se *StorageError
	if !errors.As(err, &se) || !errors.Is(err, cause) {
		t.Fatalf("Submit() error = %v, want StorageError wrapping the cause", err)
	}
	if len(store.records) != 0 {
		t.Error("no record may be written when the best score update failed")
	}
	if rc.calls() != 0 {
		t.Error("nothing was written, nothing should be invalidated")
	}
}

func TestLedger_ReplaceFailure(t *testing.T) {
	t.Parallel()

	l, store, rc := newTestLedger(true)
	store.failReplace = errors.New("disk full")

	if _, err := l.Submit(context.Background(), devID(7), 10); err == nil {
		t.Fatal("Submit() error = nil, want replace failure")
	}
	if b := store.best[devID(7)]; b.BestScore != 10 {
		t.Errorf("best = %d, want 10 (raise already committed)", b.BestScore)
	}
	if rc.calls() == 0 {
		t.Error("the raised best should still be invalidated")
	}
}

func TestLedger_ConcurrentSameDevice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		l, store, _ := newTestLedger(true)
		id := devID(1000 + i)

		var wg sync.WaitGroup
		for _, s := range []int64{100, 200} {
			wg.Add(1)
			go func(s int64) {
				defer wg.Done()
				if _, err := l.Submit(ctx, id, s); err != nil {
					t.Errorf("Submit(%d) error = %v", s, err)
				}
			}(s)
		}
		wg.Wait()

		if b := store.best[id].BestScore; b != 200 {
			t.Fatalf("run %d: best = %d, want 200", i, b)
		}
		if recs := store.records[id]; len(recs) != 1 || recs[0].Score != 200 {
			t.Fatalf("run %d: records = %+v, want one record at 200", i, recs)
		}
		if n := l.locks.len(); n != 0 {
			t.Fatalf("run %d: idle lock entries = %d, want 0", i, n)
		}
	}
}

func TestLedger_ReplaceSkippedWhenBestMovedOn(t *testing.T) {
	t.Parallel()

	// a store where another process raises the best between the two statements
	store := &racingStore{memStore: newMemStore()}
	rc := &recordingCache{}
	l := NewLedger(store, NewInvalidator(rc), LedgerOptions{ReplaceOnTie: true})
	ctx := context.Background()

	res, err := l.Submit(ctx, devID(8), 100)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsNewBest || res.RecordID != "" {
		t.Errorf("Submit() = %+v, want the stale record skipped", res)
	}
	if res.BestScore != 101 {
		t.Errorf("BestScore = %d, want 101 from the concurrent writer", res.BestScore)
	}
	if len(store.records[devID(8)]) != 0 {
		t.Error("a stale record must not be inserted")
	}
	if rc.calls() == 0 {
		t.Error("the created best row should still be invalidated")
	}
}

type racingStore struct{ *memStore }

func (r *racingStore) ReplaceRecord(ctx context.Context, rec models.ScoreRecord) (bool, error) {
	_, _, _ = r.memStore.RaiseBestScore(ctx, rec.DeviceID, rec.Score+1, time.Now())
	return r.memStore.ReplaceRecord(ctx, rec)
}

func TestLedger_DeviceReads(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLedger(true)
	ctx := context.Background()

	if _, err := l.GetDeviceStats(ctx, devID(9)); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDeviceStats() unknown error = %v, want ErrNotFound", err)
	}
	if _, err := l.GetDeviceRank(ctx, devID(9)); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDeviceRank() unknown error = %v, want ErrNotFound", err)
	}

	_, _ = l.Submit(ctx, devID(10), 300)
	_, _ = l.Submit(ctx, devID(11), 500)
	_, _ = l.Submit(ctx, devID(12), 300)

	tests := []struct {
		id   string
		want int64
	}{
		{devID(11), 1},
		{devID(10), 2}, // same score as 12, achieved earlier
		{devID(12), 3},
	}
	for _, tt := range tests {
		got, err := l.GetDeviceRank(ctx, tt.id)
		if err != nil || got != tt.want {
			t.Errorf("GetDeviceRank(%s) = %d, %v, want %d", tt.id, got, err, tt.want)
		}
	}

	stats, err := l.GetDeviceStats(ctx, devID(11))
	if err != nil || stats.BestScore != 500 {
		t.Errorf("GetDeviceStats() = %+v, %v", stats, err)
	}
}

func TestLedger_GetHistory(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLedger(true)
	ctx := context.Background()
	id := devID(13)
	_, _ = l.Submit(ctx, id, 10)

	page, err := l.GetHistory(ctx, id, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Limit != DefaultHistoryLimit || page.Total != 1 || len(page.Records) != 1 || page.HasMore {
		t.Errorf("GetHistory() = %+v", page)
	}

	empty, err := l.GetHistory(ctx, devID(14), 5, 0)
	if err != nil || empty.Records == nil || len(empty.Records) != 0 {
		t.Errorf("GetHistory() for unknown device = %+v, %v, want empty page", empty, err)
	}

	for _, c := range []struct{ limit, offset int }{{101, 0}, {-1, 0}, {10, -1}} {
		if _, err := l.GetHistory(ctx, id, c.limit, c.offset); !IsValidation(err) {
			t.Errorf("GetHistory(%d, %d) error = %v, want validation error", c.limit, c.offset, err)
		}
	}
}

func TestInvalidator_Keys(t *testing.T) {
	t.Parallel()

	rc := &recordingCache{}
	NewInvalidator(rc).OnScoreWritten(context.Background(), devID(1))

	wantKeys := []string{StatsKey(devID(1)), RankKey(devID(1))}
	if !slices.Equal(rc.keys, wantKeys) {
		t.Errorf("deleted keys = %v, want %v", rc.keys, wantKeys)
	}
	wantPatterns := []string{"history:" + devID(1) + ":*", "ranking:global*", "ranking:weekly*"}
	if !slices.Equal(rc.patterns, wantPatterns) {
		t.Errorf("deleted patterns = %v, want %v", rc.patterns, wantPatterns)
	}

	// nil cache and nil invalidator are no-ops
	NewInvalidator(nil).OnScoreWritten(context.Background(), devID(1))
	var inv *Invalidator
	inv.OnScoreWritten(context.Background(), devID(1))
}

func TestDeviceLocks(t *testing.T) {
	t.Parallel()

	d := newDeviceLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := d.acquire("same")
			mu.Lock()
			inside++
			if inside > 1 {
				overlap = true
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if overlap {
		t.Error("two holders of the same device lock overlapped")
	}
	if d.len() != 0 {
		t.Errorf("len() = %d after all releases, want 0", d.len())
	}
}
