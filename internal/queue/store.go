// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package queue implements a durable priority job queue on BadgerDB.
//
// Jobs are served highest priority first and FIFO within a priority.
// Delivery is at-least-once: a claimed job carries a lease, and a lapsed
// lease (worker crash) counts as a failed attempt. Failed jobs are
// retried after a fixed backoff until their attempt cap is reached, then
// dropped.
//
// Key layout per queue name:
//
//	q/<name>/job/<id>                 job record (JSON)
//	q/<name>/ready/<^prio><seq>       claimable, ordered
//	q/<name>/delayed/<runAt><seq>     waiting for backoff
//	q/<name>/active/<id>              claimed, lease in the job record
//	q/<name>/dedupe/<key>             job ID for enqueue-time deduplication
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("queue store is closed")

	// ErrEmpty is returned by Claim when no job is ready.
	ErrEmpty = errors.New("no job ready")

	// ErrJobNotFound is returned when acknowledging an unknown job.
	ErrJobNotFound = errors.New("job not found")

	// ErrLeaseExpired is the failure recorded for a job whose worker held
	// it past its lease.
	ErrLeaseExpired = errors.New("lease expired")
)

// Config holds store settings.
type Config struct {
	Path          string
	InMemory      bool
	SyncWrites    bool
	LeaseDuration time.Duration
	GCInterval    time.Duration
	// MaxAttempts and Backoff apply to requests that leave them unset.
	MaxAttempts int
	Backoff     time.Duration
}

// Store owns the badger database shared by every named queue.
type Store struct {
	db     *badger.DB
	config Config

	mu     sync.Mutex
	queues map[string]*Queue
	closed bool
}

// Open opens (or creates) the store.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("queue path is required for a persistent store")
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = models.DefaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = models.DefaultBackoff
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Compression = options.Snappy
	opts.NumCompactors = 2
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Job queue store opened")

	return &Store{db: db, config: cfg, queues: make(map[string]*Queue)}, nil
}

// OpenInMemory opens a non-persistent store, for tests and one-shot tools.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true, LeaseDuration: time.Minute})
}

// Queue returns the named queue, creating its handle on first use.
func (s *Store) Queue(name string) (*Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if q, ok := s.queues[name]; ok {
		return q, nil
	}

	seq, err := s.db.GetSequence([]byte("q/"+name+"/seq"), 1000)
	if err != nil {
		return nil, fmt.Errorf("allocate sequence for %s: %w", name, err)
	}

	q := newQueue(s.db, name, seq, s.config)
	s.queues[name] = q
	return q, nil
}

// RunGC runs value log garbage collection every GCInterval until ctx is done.
func (s *Store) RunGC(ctx context.Context) error {
	interval := s.config.GCInterval
	if interval <= 0 || s.config.InMemory {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						logging.Warn().Err(err).Msg("Queue value log GC failed")
					}
					break
				}
			}
		}
	}
}

// Close releases sequences and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for name, q := range s.queues {
		if err := q.seq.Release(); err != nil {
			logging.Warn().Err(err).Str("queue", name).Msg("Failed to release queue sequence")
		}
	}
	return s.db.Close()
}
