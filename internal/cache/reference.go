// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches a value from the backing store. found=false means the
// row does not exist, which is cached as a negative entry.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (value V, found bool, err error)

type lookup[V any] struct {
	value V
	found bool
}

// ReadThrough is a read-mostly cache in front of a LoadFunc. Concurrent
// misses for the same key share one load.
type ReadThrough[K comparable, V any] struct {
	name        string
	load        LoadFunc[K, V]
	cache       *Cache[K, lookup[V]]
	negativeTTL time.Duration
	group       singleflight.Group
}

// NewReadThrough creates a read-through cache. Misses are remembered for
// negativeTTL so a missing reference row is not queried on every killmail.
func NewReadThrough[K comparable, V any](name string, ttl, negativeTTL time.Duration, load LoadFunc[K, V]) *ReadThrough[K, V] {
	return &ReadThrough[K, V]{
		name:        name,
		load:        load,
		cache:       New[K, lookup[V]](ttl),
		negativeTTL: negativeTTL,
	}
}

// Get returns the cached value, loading it on a miss.
func (r *ReadThrough[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	if l, ok := r.cache.Get(key); ok {
		return l.value, l.found, nil
	}

	res, err, _ := r.group.Do(fmt.Sprint(key), func() (interface{}, error) {
		value, found, err := r.load(ctx, key)
		if err != nil {
			return nil, err
		}
		l := lookup[V]{value: value, found: found}
		if found {
			r.cache.Set(key, l)
		} else {
			r.cache.SetWithTTL(key, l, r.negativeTTL)
		}
		return l, nil
	})
	if err != nil {
		var zero V
		return zero, false, fmt.Errorf("%s lookup %v: %w", r.name, key, err)
	}

	l := res.(lookup[V])
	return l.value, l.found, nil
}

// Invalidate drops key so the next Get reloads it.
func (r *ReadThrough[K, V]) Invalidate(key K) {
	r.cache.Delete(key)
}

// Stats returns the underlying cache statistics.
func (r *ReadThrough[K, V]) Stats() Stats {
	return r.cache.GetStats()
}

// Run starts periodic cleanup until ctx is done.
func (r *ReadThrough[K, V]) Run(ctx context.Context, interval time.Duration) {
	r.cache.Run(ctx, interval)
}
