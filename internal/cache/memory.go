// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package cache

import (
	"sync"
	"time"
)

// memEntry is a tier 1 entry. Entries sharing a hit count form a doubly
// linked bucket so the least frequently used entry is found in O(1).
type memEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	hits      int

	prev, next *memEntry
}

func (e *memEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// bucket holds entries with the same hit count, newest at the front.
type bucket struct {
	head, tail memEntry
	size       int
}

func newBucket() *bucket {
	b := &bucket{}
	b.head.next = &b.tail
	b.tail.prev = &b.head
	return b
}

func (b *bucket) pushFront(e *memEntry) {
	e.prev = &b.head
	e.next = b.head.next
	b.head.next.prev = e
	b.head.next = e
	b.size++
}

func (b *bucket) unlink(e *memEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
	b.size--
}

func (b *bucket) back() *memEntry {
	if b.size == 0 {
		return nil
	}
	return b.tail.prev
}

// memoryTier is the bounded in-process map. All methods take the clock
// reading from the caller so tests can drive time.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*memEntry
	buckets  map[int]*bucket
	minHits  int
}

func newMemoryTier(capacity int) *memoryTier {
	if capacity <= 0 {
		capacity = 1000
	}
	return &memoryTier{
		capacity: capacity,
		entries:  make(map[string]*memEntry, capacity),
		buckets:  make(map[int]*bucket),
	}
}

// get returns a copy-free view of the stored bytes. Callers must not mutate it.
// expired is true when the key existed but had passed its deadline.
func (m *memoryTier) get(key string, now time.Time) (value []byte, ok, expired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, found := m.entries[key]
	if !found {
		return nil, false, false
	}
	if e.expired(now) {
		m.remove(e)
		return nil, false, true
	}
	m.touch(e)
	return e.value, true, false
}

// set inserts or replaces key. Replacing keeps the hit count. It returns
// the number of entries evicted to make room.
func (m *memoryTier) set(key string, value []byte, expiresAt time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, found := m.entries[key]; found {
		e.value = value
		e.expiresAt = expiresAt
		return 0
	}

	evicted := 0
	for len(m.entries) >= m.capacity {
		if !m.evictOne() {
			break
		}
		evicted++
	}

	e := &memEntry{key: key, value: value, expiresAt: expiresAt}
	m.bucketFor(0).pushFront(e)
	m.entries[key] = e
	m.minHits = 0
	return evicted
}

func (m *memoryTier) delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, found := m.entries[key]
	if !found {
		return false
	}
	m.remove(e)
	return true
}

// deleteMatching removes every key for which match returns true.
func (m *memoryTier) deleteMatching(match func(string) bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for k, e := range m.entries {
		if match(k) {
			m.remove(e)
			removed = append(removed, k)
		}
	}
	return removed
}

// sweep drops expired entries, then evicts lowest hit counts until the tier
// is back within capacity.
func (m *memoryTier) sweep(now time.Time) (expired, evicted int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.expired(now) {
			m.remove(e)
			expired++
		}
	}
	for len(m.entries) > m.capacity {
		if !m.evictOne() {
			break
		}
		evicted++
	}
	return expired, evicted
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// The helpers below require m.mu.

func (m *memoryTier) bucketFor(hits int) *bucket {
	b := m.buckets[hits]
	if b == nil {
		b = newBucket()
		m.buckets[hits] = b
	}
	return b
}

func (m *memoryTier) touch(e *memEntry) {
	old := m.buckets[e.hits]
	old.unlink(e)
	if old.size == 0 {
		delete(m.buckets, e.hits)
		if m.minHits == e.hits {
			m.minHits = e.hits + 1
		}
	}
	e.hits++
	m.bucketFor(e.hits).pushFront(e)
}

func (m *memoryTier) remove(e *memEntry) {
	if b := m.buckets[e.hits]; b != nil {
		b.unlink(e)
		if b.size == 0 {
			delete(m.buckets, e.hits)
		}
	}
	delete(m.entries, e.key)
}

// evictOne removes the oldest entry among those with the fewest hits.
func (m *memoryTier) evictOne() bool {
	if len(m.entries) == 0 {
		return false
	}
	b := m.buckets[m.minHits]
	if b == nil || b.size == 0 {
		// minHits goes stale after removals; rescan the few live buckets.
		first := true
		for h := range m.buckets {
			if first || h < m.minHits {
				m.minHits = h
				first = false
			}
		}
		b = m.buckets[m.minHits]
		if b == nil {
			return false
		}
	}
	victim := b.back()
	if victim == nil {
		return false
	}
	m.remove(victim)
	return true
}
