// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/EVE-KILL/Thessia-sub001/internal/cache"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
)

// subscriptionBuffer is the per-subscriber channel capacity.
const subscriptionBuffer = 64

// InMemoryDeduplicator implements middleware.ExpiringKeyRepository on an
// LRU cache.
type InMemoryDeduplicator struct {
	cache *cache.LRUCache
}

// NewInMemoryDeduplicator creates a deduplicator holding at most capacity
// keys for ttl each.
func NewInMemoryDeduplicator(capacity int, ttl time.Duration) *InMemoryDeduplicator {
	return &InMemoryDeduplicator{cache: cache.NewLRUCache(capacity, ttl)}
}

// IsDuplicate reports whether key was seen within the TTL and records it.
func (d *InMemoryDeduplicator) IsDuplicate(_ context.Context, key string) (bool, error) {
	dup := d.cache.IsDuplicate(key)
	if dup {
		metrics.BusDeduplicated.Inc()
	}
	return dup, nil
}

// SubscriberFactory opens a subscriber for one router run. The router
// closes its subscriber when it stops, so every run needs a fresh one.
type SubscriberFactory func() (message.Subscriber, error)

// Bus consumes the killmail subject and fans each delivery out to every
// in-process subscriber.
type Bus struct {
	newSub  SubscriberFactory
	subject string
	logger  watermill.LoggerAdapter
	dedup   *InMemoryDeduplicator

	runMu   sync.Mutex
	running chan struct{}

	mu   sync.RWMutex
	subs map[uint64]*subscription
	next uint64
}

type subscription struct {
	ch  chan Delivery
	ctx context.Context
}

// NewBus creates the bus. Subscribers from newSub must deliver every
// message on the subject to this process. The dedupe window outlives
// router restarts.
func NewBus(newSub SubscriberFactory, subject string, dedupeCapacity int, dedupeTTL time.Duration, logger watermill.LoggerAdapter) (*Bus, error) {
	if newSub == nil {
		return nil, fmt.Errorf("bus subscriber factory is required")
	}
	if logger == nil {
		logger = logging.NewWatermillLogger("bus")
	}
	return &Bus{
		newSub:  newSub,
		subject: subject,
		logger:  logger,
		dedup:   NewInMemoryDeduplicator(dedupeCapacity, dedupeTTL),
		running: make(chan struct{}),
		subs:    make(map[uint64]*subscription),
	}, nil
}

// newRouter builds the router for one run.
func (b *Bus) newRouter(sub message.Subscriber) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	dedup := middleware.Deduplicator{
		KeyFactory: func(msg *message.Message) (string, error) {
			if key := msg.Metadata.Get(MetadataDedupeKey); key != "" {
				return key, nil
			}
			return msg.UUID, nil
		},
		Repository: b.dedup,
		Timeout:    time.Second,
	}
	router.AddMiddleware(dedup.Middleware)

	router.AddConsumerHandler("killmail_fanout", b.subject, sub, b.handle)
	return router, nil
}

func (b *Bus) handle(msg *message.Message) error {
	metrics.BusReceived.Inc()

	d, err := DeserializeDelivery(msg.Payload)
	if err != nil {
		// Redelivery cannot fix a bad payload; ack and move on.
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable bus message")
		return nil
	}
	b.fanOut(msg.Context(), d)
	return nil
}

func (b *Bus) fanOut(ctx context.Context, d *Delivery) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		select {
		case s.ch <- *d:
		case <-s.ctx.Done():
		case <-ctx.Done():
			return
		}
	}
}

// Subscribe returns a channel of deliveries that is closed when ctx ends.
func (b *Bus) Subscribe(ctx context.Context) <-chan Delivery {
	s := &subscription{ch: make(chan Delivery, subscriptionBuffer), ctx: ctx}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = s
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Running is closed once the current run's router is consuming. After a
// run ends it returns a new channel for the next run.
func (b *Bus) Running() <-chan struct{} {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.running
}

// Serve runs one router until ctx is canceled. Each call opens a fresh
// subscriber, so the supervisor can restart the bus after a failure. Calls
// must not overlap.
func (b *Bus) Serve(ctx context.Context) error {
	b.runMu.Lock()
	running := b.running
	b.runMu.Unlock()
	defer func() {
		b.runMu.Lock()
		b.running = make(chan struct{})
		b.runMu.Unlock()
	}()

	sub, err := b.newSub()
	if err != nil {
		return fmt.Errorf("open bus subscriber: %w", err)
	}
	defer func() { _ = sub.Close() }()

	router, err := b.newRouter(sub)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-router.Running():
			close(running)
		case <-done:
		}
	}()

	if err := router.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("bus router: %w", err)
	}
	if ctx.Err() == nil {
		return errors.New("bus router stopped")
	}
	return nil
}

// String implements fmt.Stringer for supervisor logging.
func (b *Bus) String() string {
	return "bus:" + b.subject
}
