// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package eventprocessor

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// natsOptions returns connection options with reconnect logging.
func natsOptions(cfg *config.NATSConfig, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// NewNATSPublisher creates a Watermill publisher on core NATS.
func NewNATSPublisher(cfg *config.NATSConfig, url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOptions(cfg, logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// Publisher publishes enriched killmails to the bus subject.
type Publisher struct {
	publisher message.Publisher
	subject   string
	breaker   *gobreaker.CircuitBreaker[interface{}]

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps pub. breaker may be nil.
func NewPublisher(pub message.Publisher, subject string, breaker *gobreaker.CircuitBreaker[interface{}]) *Publisher {
	return &Publisher{publisher: pub, subject: subject, breaker: breaker}
}

// Publish sends one killmail with its routing topics.
func (p *Publisher) Publish(ctx context.Context, km *models.EnrichedKillmail, topics []string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	d := &Delivery{Killmail: km, Topics: topics}
	data, err := SerializeDelivery(d)
	if err != nil {
		return err
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataKillmailID, strconv.FormatInt(km.KillmailID, 10))
	msg.Metadata.Set(MetadataDedupeKey, d.DedupeKey())

	if p.breaker != nil {
		_, err = p.breaker.Execute(func() (interface{}, error) {
			return nil, p.publisher.Publish(p.subject, msg)
		})
	} else {
		err = p.publisher.Publish(p.subject, msg)
	}
	if err != nil {
		return fmt.Errorf("publish killmail %d: %w", km.KillmailID, err)
	}

	metrics.BusPublished.Inc()
	return nil
}

// Close shuts down the underlying publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
