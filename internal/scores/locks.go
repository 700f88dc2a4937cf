// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package scores

import "sync"

// deviceLocks hands out one mutex per device. Entries are reference counted
// and dropped when the last holder releases, so idle devices cost nothing.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[string]*deviceLock
}

type deviceLock struct {
	sync.Mutex
	refs int
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{locks: make(map[string]*deviceLock)}
}

// acquire locks id and returns the matching release func.
func (d *deviceLocks) acquire(id string) func() {
	d.mu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &deviceLock{}
		d.locks[id] = l
	}
	l.refs++
	d.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, id)
		}
		d.mu.Unlock()
	}
}

func (d *deviceLocks) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}
