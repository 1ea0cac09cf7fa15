package gateway

import (
	"context"
	"fmt"

	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConsumer subscribes to every race channel and broadcasts the events
// published there.
type RedisConsumer struct {
	connectionManager *ConnectionManager
	client            *redis.Client
	prefix            string
}

func NewRedisConsumer(cm *ConnectionManager, client *redis.Client, prefix string) *RedisConsumer {
	return &RedisConsumer{connectionManager: cm, client: client, prefix: prefix}
}

// Start consumes until ctx is cancelled.
func (rc *RedisConsumer) Start(ctx context.Context) error {
	pubsub := rc.client.PSubscribe(ctx, rc.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s*: %w", rc.prefix, err)
	}
	log.Info().Str("pattern", rc.prefix+"*").Msg("starting redis event consumer")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("redis consumer shutting down")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			if err := rc.processMessage(msg.Channel, []byte(msg.Payload)); err != nil {
				log.Error().Err(err).Str("channel", msg.Channel).Msg("failed to process message")
			}
		}
	}
}

// processMessage checks that the event belongs to the channel it arrived on
// before broadcasting it.
func (rc *RedisConsumer) processMessage(channel string, payload []byte) error {
	raceID, err := events.RaceIDFromChannel(rc.prefix, channel)
	if err != nil {
		return err
	}
	msg, err := decodeEvent(payload)
	if err != nil {
		return err
	}
	if msg.RaceID != raceID.String() {
		return fmt.Errorf("event for race %s arrived on channel %s", msg.RaceID, channel)
	}
	rc.connectionManager.Broadcast(msg)
	return nil
}

// Stop is a no-op; the redis client belongs to the caller.
func (rc *RedisConsumer) Stop() error {
	return nil
}
