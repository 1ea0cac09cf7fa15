package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/dailies/go/internal/config"
	"github.com/rs/zerolog/log"
)

// Sinks holds the publishers selected by outbox.sinks.
type Sinks struct {
	Publisher MultiPublisher
	jetStream *JetStreamPublisher
	closers   []func() error
}

// OpenSinks connects every configured sink. local receives events for the
// "local" sink and may be nil in processes without a gateway.
func OpenSinks(ctx context.Context, cfg *config.Config, local Publisher) (*Sinks, error) {
	s := &Sinks{}
	for _, name := range cfg.Outbox.Sinks {
		if err := s.open(ctx, cfg, name, local); err != nil {
			s.Close()
			return nil, fmt.Errorf("open %s sink: %w", name, err)
		}
		log.Info().Str("sink", name).Msg("event sink ready")
	}
	if len(s.Publisher) == 0 {
		s.Publisher = append(s.Publisher, LogPublisher{})
	}
	return s, nil
}

func (s *Sinks) open(ctx context.Context, cfg *config.Config, name string, local Publisher) error {
	switch name {
	case config.SinkLog:
		s.Publisher = append(s.Publisher, LogPublisher{})
	case config.SinkLocal:
		if local == nil {
			return errors.New("no in-process gateway to publish to")
		}
		s.Publisher = append(s.Publisher, local)
	case config.SinkJetStream:
		jsCfg := DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.StreamName
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		p, err := NewJetStreamPublisher(jsCfg)
		if err != nil {
			return err
		}
		s.jetStream = p
		s.Publisher = append(s.Publisher, p)
		s.closers = append(s.closers, p.Close)
	case config.SinkRedis:
		client, err := cfg.Redis.Connect(ctx)
		if err != nil {
			return err
		}
		s.Publisher = append(s.Publisher, NewRedisPublisher(client, cfg.Redis.ChannelPrefix))
		s.closers = append(s.closers, client.Close)
	case config.SinkRabbitMQ:
		p, err := NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		s.Publisher = append(s.Publisher, p)
		s.closers = append(s.closers, p.Close)
	default:
		return fmt.Errorf("unknown sink %q", name)
	}
	return nil
}

// Connectivity returns the JetStream connection state, or nil when events are
// not published to JetStream.
func (s *Sinks) Connectivity() Connectivity {
	if s.jetStream == nil {
		return nil
	}
	return s.jetStream
}

// Close closes every sink connection.
func (s *Sinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
