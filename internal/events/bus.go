// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/models"
)

// Backend names accepted in events.backend.
const (
	BackendGoChannel = "gochannel"
	BackendNATS      = "nats"
)

// Metadata keys set on every outcome message.
const (
	MetadataReference = "reference"
	MetadataStatus    = "status"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus is closed")

// Bus publishes sync outcomes and hands them to subscribers.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	embedded   *server.Server
	shared     bool // publisher and subscriber are one gochannel
	logger     watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// New opens the bus described by cfg.
func New(cfg *config.EventsConfig) (*Bus, error) {
	logger := logging.NewWatermillAdapter()
	b := &Bus{topic: cfg.Topic, logger: logger}

	switch cfg.Backend {
	case BackendNATS:
		url := cfg.NATSURL
		if url == "" {
			ns, err := startEmbeddedServer()
			if err != nil {
				return nil, err
			}
			b.embedded = ns
			url = ns.ClientURL()
			logging.Info().Str("url", url).Msg("Started embedded NATS server")
		}
		if err := b.openNATS(url); err != nil {
			b.shutdownEmbedded()
			return nil, err
		}
	case BackendGoChannel, "":
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		b.publisher, b.subscriber, b.shared = ch, ch, true
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
	return b, nil
}

func (b *Bus) openNATS(url string) error {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				b.logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			b.logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, b.logger)
	if err != nil {
		return fmt.Errorf("create watermill publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, b.logger)
	if err != nil {
		_ = pub.Close()
		return fmt.Errorf("create watermill subscriber: %w", err)
	}

	b.publisher, b.subscriber = pub, sub
	return nil
}

// Topic returns the topic outcomes are published on.
func (b *Bus) Topic() string { return b.topic }

// PublishOutcome publishes one sync outcome.
func (b *Bus) PublishOutcome(ctx context.Context, outcome *models.SyncOutcome) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("serialize outcome: %w", err)
	}

	id := outcome.RunID
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set(MetadataReference, outcome.Reference)
	msg.Metadata.Set(MetadataStatus, string(outcome.Status))
	msg.SetContext(ctx)

	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("publish outcome %s: %w", id, err)
	}
	return nil
}

// Subscribe streams decoded outcomes until ctx is canceled or the bus is
// closed. Undecodable messages are acked and dropped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *models.SyncOutcome, error) {
	messages, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", b.topic, err)
	}

	out := make(chan *models.SyncOutcome)
	go func() {
		defer close(out)
		for msg := range messages {
			var outcome models.SyncOutcome
			if err := json.Unmarshal(msg.Payload, &outcome); err != nil {
				logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("Dropping undecodable outcome message")
				msg.Ack()
				continue
			}
			select {
			case out <- &outcome:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the publisher, the subscriber and any embedded server down.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if !b.shared {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	b.shutdownEmbedded()
	return errors.Join(errs...)
}

func (b *Bus) shutdownEmbedded() {
	if b.embedded == nil {
		return
	}
	b.embedded.Shutdown()
	b.embedded.WaitForShutdown()
	b.embedded = nil
}

// startEmbeddedServer runs a core NATS server on a random loopback port.
func startEmbeddedServer() (*server.Server, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "meterline-events",
		Host:       "127.0.0.1",
		Port:       server.RANDOM_PORT,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	return ns, nil
}
