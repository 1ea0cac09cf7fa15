package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

// LogPublisher only logs events. Useful in development.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event events.Envelope) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("race_id", event.RaceID.String()).
		Int64("version", event.Version).
		Msg("publishing event")
	return nil
}

// RedisChannelPrefix prefixes the per-race pub/sub channel.
const RedisChannelPrefix = "race:"

// redisPublishClient is the subset of the go-redis client used for publishing.
type redisPublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes the JSON envelope on the race's Redis channel.
type RedisPublisher struct {
	client redisPublishClient
	prefix string
}

func NewRedisPublisher(client redisPublishClient, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = RedisChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, event events.Envelope) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	channel := events.Channel(p.prefix, event.RaceID)
	receivers, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish to redis channel %s: %w", channel, err)
	}
	log.Debug().Str("channel", channel).Int64("receivers", receivers).Str("event_id", event.ID.String()).Msg("published to redis")
	return nil
}

// RabbitMQExchange is the topic exchange race events are published to.
const RabbitMQExchange = "race.events"

// amqpChannel is the subset of *amqp.Channel used for publishing.
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes events to a durable topic exchange with routing
// key race.<raceID>.<eventType> for downstream consumers.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	channel  amqpChannel
	exchange string
}

// NewRabbitMQPublisher connects to RabbitMQ and declares the exchange.
func NewRabbitMQPublisher(amqpURL, exchange string) (*RabbitMQPublisher, error) {
	if exchange == "" {
		exchange = RabbitMQExchange
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, event events.Envelope) error {
	msg, err := amqpPublishing(event)
	if err != nil {
		return err
	}
	key := RoutingKey(event)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Publish(p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish to rabbitmq %s/%s: %w", p.exchange, key, err)
	}
	return nil
}

// Close closes the RabbitMQ channel and connection.
func (p *RabbitMQPublisher) Close() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// RoutingKey is the RabbitMQ routing key for an event.
func RoutingKey(event events.Envelope) string {
	return fmt.Sprintf("race.%s.%s", event.RaceID, event.Type)
}

func amqpPublishing(event events.Envelope) (amqp.Publishing, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Type:         string(event.Type),
		Timestamp:    event.Timestamp,
		Body:         data,
	}, nil
}

// MultiPublisher fans an event out to every sink. It fails if any sink
// fails; sinks that already succeeded receive the event again on retry.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event events.Envelope) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
