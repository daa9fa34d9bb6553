// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

//go:build integration

package testinfra

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/eventprocessor"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// TestNATSBus_Integration publishes through a real NATS server and checks
// that two bus instances, standing in for two gateway processes, both
// receive the killmail exactly once.
func TestNATSBus_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	nats, err := NewNATSContainer(ctx, WithContainerLogger(NewContainerLogger(t)))
	if err != nil {
		t.Fatalf("Failed to create NATS container: %v", err)
	}
	CleanupContainer(t, nats.Container)

	cfg := &config.NATSConfig{
		Subject:        "killmails.test",
		MaxReconnects:  5,
		ReconnectWait:  time.Second,
		DedupeCapacity: 100,
		DedupeTTL:      time.Minute,
	}
	logger := logging.NewWatermillLogger("integration")

	deliveries := make([]<-chan eventprocessor.Delivery, 0, 2)
	for i := 0; i < 2; i++ {
		newSub := func() (message.Subscriber, error) {
			return eventprocessor.NewNATSSubscriber(cfg, nats.URL, logger)
		}
		bus, err := eventprocessor.NewBus(newSub, cfg.Subject, cfg.DedupeCapacity, cfg.DedupeTTL, logger)
		if err != nil {
			t.Fatalf("NewBus: %v", err)
		}
		deliveries = append(deliveries, bus.Subscribe(ctx))
		go func() { _ = bus.Serve(ctx) }()
		select {
		case <-bus.Running():
		case <-ctx.Done():
			t.Fatal("bus did not start")
		}
	}

	rawPub, err := eventprocessor.NewNATSPublisher(cfg, nats.URL, logger)
	if err != nil {
		t.Fatalf("NewNATSPublisher: %v", err)
	}
	pub := eventprocessor.NewPublisher(rawPub, cfg.Subject, eventprocessor.NewCircuitBreaker("nats-integration", 5, 10*time.Second))
	t.Cleanup(func() { _ = pub.Close() })

	km := &models.EnrichedKillmail{KillmailID: 123456789, KillmailHash: "deadbeef", TotalValue: 6e8}
	// The second publish is a redelivery and must be deduplicated.
	for i := 0; i < 2; i++ {
		if err := pub.Publish(ctx, km, []string{"5b", "all"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	for i, ch := range deliveries {
		select {
		case d := <-ch:
			if d.Killmail.KillmailID != km.KillmailID || len(d.Topics) != 2 {
				t.Errorf("bus %d received %+v", i, d)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("bus %d received nothing", i)
		}
		select {
		case d := <-ch:
			t.Errorf("bus %d received duplicate %d", i, d.Killmail.KillmailID)
		case <-time.After(500 * time.Millisecond):
		}
	}
}
