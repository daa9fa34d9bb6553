// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/eventprocessor"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/supervisor"
	"github.com/EVE-KILL/Thessia-sub001/internal/supervisor/services"
)

// busComponents holds the distribution bus for lifecycle management.
type busComponents struct {
	server    *eventprocessor.EmbeddedServer
	publisher *eventprocessor.Publisher
	bus       *eventprocessor.Bus
}

// initBus starts the embedded NATS server when configured, then connects
// the publisher and the bus subscriber to it.
func initBus(cfg *config.Config) (*busComponents, error) {
	components := &busComponents{}
	natsURL := cfg.NATS.URL

	if cfg.NATS.EmbeddedServer {
		server, err := eventprocessor.NewEmbeddedServer(&cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS: %w", err)
		}
		components.server = server
		natsURL = server.ClientURL()
	} else {
		logging.Info().Str("url", natsURL).Msg("Using external NATS server")
	}

	pub, err := eventprocessor.NewNATSPublisher(&cfg.NATS, natsURL, logging.NewWatermillLogger("publisher"))
	if err != nil {
		components.shutdownServer()
		return nil, err
	}
	breaker := eventprocessor.NewCircuitBreaker("nats-publisher", 5, 30*time.Second)
	components.publisher = eventprocessor.NewPublisher(pub, cfg.NATS.Subject, breaker)

	subLogger := logging.NewWatermillLogger("subscriber")
	newSub := func() (message.Subscriber, error) {
		return eventprocessor.NewNATSSubscriber(&cfg.NATS, natsURL, subLogger)
	}
	bus, err := eventprocessor.NewBus(newSub, cfg.NATS.Subject, cfg.NATS.DedupeCapacity, cfg.NATS.DedupeTTL, nil)
	if err != nil {
		_ = components.publisher.Close()
		components.shutdownServer()
		return nil, err
	}
	components.bus = bus

	logging.Info().Str("url", natsURL).Str("subject", cfg.NATS.Subject).Msg("Distribution bus initialized")
	return components, nil
}

func (c *busComponents) shutdownServer() {
	if c.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = c.server.Shutdown(ctx)
}

// addTo registers the bus with the messaging layer. The publisher and the
// embedded server are closed when the tree stops.
func (c *busComponents) addTo(tree *supervisor.SupervisorTree) {
	if c.server != nil {
		tree.AddMessagingService(services.NewShutdownService("nats-embedded", c.server.Shutdown, 10*time.Second))
	}
	tree.AddMessagingService(services.NewShutdownService("killmail-publisher", func(context.Context) error {
		return c.publisher.Close()
	}, 10*time.Second))
	tree.AddMessagingService(c.bus)
	logging.Info().Bool("embedded", c.server != nil).Msg("Distribution bus added to supervisor tree")
}
