// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package cache

import (
	"sort"
	"sync"
	"time"
)

// keyIndex remembers which keys this process wrote to tier 2 so pattern
// deletes work against backends that cannot enumerate keys. It is a byte
// trie: a prefix lookup walks len(prefix) nodes and then collects the
// subtree.
//
// The index is per process and best effort. Keys written by other
// processes are only removed when they expire.
type keyIndex struct {
	mu   sync.Mutex
	root *indexNode
	size int
}

type indexNode struct {
	children map[byte]*indexNode
	terminal bool
	// expiresAt is the tier 2 deadline of the key ending here; zero means none.
	expiresAt time.Time
}

func newIndexNode() *indexNode {
	return &indexNode{children: make(map[byte]*indexNode)}
}

func newKeyIndex() *keyIndex {
	return &keyIndex{root: newIndexNode()}
}

func (x *keyIndex) add(key string, expiresAt time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := x.root
	for i := 0; i < len(key); i++ {
		c, ok := n.children[key[i]]
		if !ok {
			c = newIndexNode()
			n.children[key[i]] = c
		}
		n = c
	}
	if !n.terminal {
		x.size++
	}
	n.terminal = true
	n.expiresAt = expiresAt
}

func (x *keyIndex) remove(key string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.removeLocked(x.root, key, 0) {
		x.size--
	}
}

// removeLocked clears key below n and prunes empty nodes on the way back up.
func (x *keyIndex) removeLocked(n *indexNode, key string, depth int) bool {
	if depth == len(key) {
		if !n.terminal {
			return false
		}
		n.terminal = false
		n.expiresAt = time.Time{}
		return true
	}
	c, ok := n.children[key[depth]]
	if !ok {
		return false
	}
	removed := x.removeLocked(c, key, depth+1)
	if removed && !c.terminal && len(c.children) == 0 {
		delete(n.children, key[depth])
	}
	return removed
}

// withPrefix returns the indexed keys starting with prefix, sorted.
func (x *keyIndex) withPrefix(prefix string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := x.root
	for i := 0; i < len(prefix); i++ {
		c, ok := n.children[prefix[i]]
		if !ok {
			return nil
		}
		n = c
	}

	var out []string
	buf := []byte(prefix)
	var walk func(n *indexNode)
	walk = func(n *indexNode) {
		if n.terminal {
			out = append(out, string(buf))
		}
		for b, c := range n.children {
			buf = append(buf, b)
			walk(c)
			buf = buf[:len(buf)-1]
		}
	}
	walk(n)
	sort.Strings(out)
	return out
}

// prune drops keys whose tier 2 deadline has passed.
func (x *keyIndex) prune(now time.Time) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	var dead []string
	buf := make([]byte, 0, 64)
	var walk func(n *indexNode)
	walk = func(n *indexNode) {
		if n.terminal && !n.expiresAt.IsZero() && !now.Before(n.expiresAt) {
			dead = append(dead, string(buf))
		}
		for b, c := range n.children {
			buf = append(buf, b)
			walk(c)
			buf = buf[:len(buf)-1]
		}
	}
	walk(x.root)

	for _, k := range dead {
		if x.removeLocked(x.root, k, 0) {
			x.size--
		}
	}
	return len(dead)
}

func (x *keyIndex) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.size
}
