package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/mcdev12/dailies/go/internal/race/outbox"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	SubjectFilter string // e.g., "race.events.>"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "RACE_EVENTS",
		SubjectFilter: "race.events.>",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer reads race events from JetStream and broadcasts them to
// observers. Each gateway instance uses its own ordered consumer because
// every instance needs every event.
type EventConsumer struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	js                jetstream.JetStream
	config            JetStreamConsumerConfig
}

// NewEventConsumer creates a new JetStream event consumer
func NewEventConsumer(cm *ConnectionManager, config JetStreamConsumerConfig) (*EventConsumer, error) {
	nc, err := outbox.Connect(config.URL, config.MaxReconnects, config.ReconnectWait)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &EventConsumer{
		connectionManager: cm,
		nc:                nc,
		js:                js,
		config:            config,
	}, nil
}

// Start consumes new events until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	consumer, err := ec.js.OrderedConsumer(ctx, ec.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ec.config.SubjectFilter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	log.Info().
		Str("stream", ec.config.StreamName).
		Str("filter", ec.config.SubjectFilter).
		Msg("starting JetStream event consumer")

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := ec.processMessage(msg.Data()); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject()).
				Msg("failed to process message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	log.Info().Msg("event consumer shutting down")
	return nil
}

// processMessage decodes an event envelope and broadcasts it.
func (ec *EventConsumer) processMessage(data []byte) error {
	msg, err := decodeEvent(data)
	if err != nil {
		return err
	}
	ec.connectionManager.Broadcast(msg)
	return nil
}

// Stop closes the NATS connection.
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}

func decodeEvent(data []byte) (*Message, error) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	log.Debug().
		Str("event_id", env.ID.String()).
		Str("race_id", env.RaceID.String()).
		Str("event_type", string(env.Type)).
		Msg("received race event")
	return EventMessage(env)
}
