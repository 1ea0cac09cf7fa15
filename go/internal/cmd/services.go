package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/dailies/go/clients"
	"github.com/mcdev12/dailies/go/internal/auth"
	"github.com/mcdev12/dailies/go/internal/config"
	"github.com/mcdev12/dailies/go/internal/dbconfig"
	"github.com/mcdev12/dailies/go/internal/race"
	"github.com/mcdev12/dailies/go/internal/race/gateway"
	"github.com/mcdev12/dailies/go/internal/race/outbox"
)

type Services struct {
	Race     *race.Service
	Gateway  *gateway.Service
	Verifier *auth.TokenVerifier
	// Listener and RelayHealth are set when this process relays the outbox.
	Listener    *outbox.Listener
	RelayHealth http.Handler

	closers []func() error
}

// setupServices wires the dependency chain:
// store -> app -> connect service, with events flowing to the gateway either
// in process or through a broker.
func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{Verifier: auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)}

	s.Gateway = gateway.NewService(connectionConfig(cfg))
	if err := s.setupGatewayConsumer(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}

	sinks, err := outbox.OpenSinks(ctx, cfg, s.Gateway)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, sinks.Close)

	store, err := s.setupStore(ctx, cfg, sinks)
	if err != nil {
		s.Close()
		return nil, err
	}

	app := race.NewApp(store, auth.NewGuestTokens(cfg.Race.GuestTokenCost), clockwork.NewRealClock(), cfg.Race.Config)
	if cfg.Catalog.URL != "" {
		catalog := clients.NewCatalogClient(cfg.Catalog.URL, cfg.Catalog.APIKey)
		catalog.SetTimeout(cfg.Catalog.Timeout)
		app.SetCatalog(catalog)
		log.Info().Str("url", cfg.Catalog.URL).Msg("validating games against catalog")
	}
	s.Race = race.NewService(app)
	return s, nil
}

func (s *Services) setupGatewayConsumer(ctx context.Context, cfg *config.Config) error {
	cm := s.Gateway.ConnectionManager()
	switch cfg.Gateway.Source {
	case config.SinkJetStream:
		consumer, err := gateway.NewEventConsumer(cm, jetStreamConsumerConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.Gateway.SetConsumer(consumer)
	case config.SinkRedis:
		client, err := cfg.Redis.Connect(ctx)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, client.Close)
		s.Gateway.SetConsumer(gateway.NewRedisConsumer(cm, client, cfg.Redis.ChannelPrefix))
	}
	log.Info().Str("source", cfg.Gateway.Source).Msg("gateway event source configured")
	return nil
}

func (s *Services) setupStore(ctx context.Context, cfg *config.Config, sinks *outbox.Sinks) (race.Store, error) {
	if cfg.Store.Driver == config.StoreMemory {
		log.Warn().Msg("using in-memory race store; races are lost on restart")
		dispatcher := outbox.NewDispatcher(sinks.Publisher, 0)
		s.closers = append(s.closers, dispatcher.Close)
		return race.NewMemoryRepository(dispatcher), nil
	}

	dbConfig := dbconfig.NewConfigFromEnv()
	pool, err := setupPool(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { pool.Close(); return nil })

	repo := race.NewPostgresRepository(pool, cfg.Outbox.NotifyChannel, cfg.Store.MaxAttempts)
	if cfg.Store.Migrate {
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	if !cfg.Outbox.Relay {
		return repo, nil
	}

	db, err := setupRelayDB(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db.Close)

	outboxRepo := outbox.NewRepository(db)
	relay := outbox.NewRelay(outboxRepo, sinks.Publisher, relayConfig(cfg))
	s.Listener, err = outbox.NewListener(relay, listenerConfig(cfg, dbConfig.DSN()))
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox listener: %w", err)
	}
	s.RelayHealth = outbox.NewHealthChecker(relay, s.Listener, outboxRepo, sinks.Connectivity(), 2*cfg.Outbox.FallbackInterval)
	return repo, nil
}

// Close releases connections in reverse order of creation.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}
