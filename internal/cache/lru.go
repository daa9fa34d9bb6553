// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package cache

import (
	"sync"
	"time"
)

type lruEntry struct {
	key       string
	seenAt    time.Time
	expiresAt time.Time
	prev      *lruEntry
	next      *lruEntry
}

// LRUCache remembers recently seen keys with a capacity bound and TTL.
// The bus uses it to drop redelivered messages.
//
// head.next is the most recently used entry, tail.prev the least.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*lruEntry
	head     *lruEntry
	tail     *lruEntry
	hits     int64
	misses   int64
}

// NewLRUCache creates an LRU with the given capacity and TTL.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns when key was first recorded.
func (c *LRUCache) Get(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return time.Time{}, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e)
		c.misses++
		return time.Time{}, false
	}
	c.moveToFront(e)
	c.hits++
	return e.seenAt, true
}

// Add records key, evicting the least recently used entry when full.
func (c *LRUCache) Add(key string, seenAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(key, seenAt)
}

// IsDuplicate reports whether key was seen within the TTL and records it
// if not. The check and the insert are atomic.
func (c *LRUCache) IsDuplicate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.items[key]; ok {
		if now.Before(e.expiresAt) {
			c.moveToFront(e)
			c.hits++
			return true
		}
		c.remove(e)
	}
	c.misses++
	c.addLocked(key, now)
	return false
}

// Remove deletes key.
func (c *LRUCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(e)
		return true
	}
	return false
}

// Len returns the number of entries, expired ones included.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanupExpired removes expired entries and returns how many were removed.
func (c *LRUCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for e := c.tail.prev; e != c.head; {
		prev := e.prev
		if now.After(e.expiresAt) {
			c.remove(e)
			removed++
		}
		e = prev
	}
	return removed
}

// Stats returns hit, miss and size counters.
func (c *LRUCache) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.items)
}

func (c *LRUCache) addLocked(key string, seenAt time.Time) {
	if e, ok := c.items[key]; ok {
		e.seenAt = seenAt
		e.expiresAt = time.Now().Add(c.ttl)
		c.moveToFront(e)
		return
	}
	if len(c.items) >= c.capacity {
		if oldest := c.tail.prev; oldest != c.head {
			c.remove(oldest)
		}
	}
	e := &lruEntry{key: key, seenAt: seenAt, expiresAt: time.Now().Add(c.ttl)}
	c.items[key] = e
	c.pushFront(e)
}

func (c *LRUCache) pushFront(e *lruEntry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRUCache) moveToFront(e *lruEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.pushFront(e)
}

func (c *LRUCache) remove(e *lruEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.items, e.key)
}
