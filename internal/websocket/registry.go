// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package websocket

import (
	"sort"
	"sync"

	"github.com/EVE-KILL/Thessia-sub001/internal/routing"
)

// Registry maps connection IDs to their subscribed topics. It is safe for
// concurrent use.
type Registry struct {
	mu   sync.RWMutex
	subs map[uint64]routing.Set
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[uint64]routing.Set)}
}

// Set replaces the subscription for id.
func (r *Registry) Set(id uint64, topics []string) {
	set := make(routing.Set, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	r.mu.Lock()
	r.subs[id] = set
	r.mu.Unlock()
}

// Remove forgets id.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Topics returns the sorted subscription for id, or nil.
func (r *Registry) Topics(id uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.subs[id]
	if !ok {
		return nil
	}
	return set.Sorted()
}

// Match returns the IDs, in ascending order, whose subscription intersects
// topics.
func (r *Registry) Match(topics []string) []uint64 {
	r.mu.RLock()
	var ids []uint64
	for id, set := range r.subs {
		if set.Intersects(topics) {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of subscribed connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
