package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/rs/zerolog/log"
)

// Consumer feeds events from a broker into the gateway.
type Consumer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Service is the race gateway: websocket fan-out plus the snapshot endpoint.
type Service struct {
	connectionManager *ConnectionManager
	consumer          Consumer
}

// NewService creates the gateway. Without a consumer, events arrive in
// process through Publish.
func NewService(config ConnectionConfig) *Service {
	return &Service{connectionManager: NewConnectionManager(config)}
}

// ConnectionManager exposes the manager so broker consumers can be built
// against it before the service starts.
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// SetConsumer attaches the broker consumer. Call before Start.
func (s *Service) SetConsumer(consumer Consumer) {
	s.consumer = consumer
}

// Start runs the gateway until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting race gateway service")

	go s.connectionManager.Start(ctx)

	if s.consumer != nil {
		go func() {
			if err := s.consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("race gateway service shutting down")
	return s.Stop()
}

// Stop shuts down the consumer.
func (s *Service) Stop() error {
	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	log.Info().Msg("race gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux, provider StateProvider) {
	NewWebSocketHandler(s.connectionManager, provider).RegisterRoutes(mux)
	NewStateHandler(provider).RegisterStateRoutes(mux)
	log.Info().Msg("race gateway routes registered")
}

// Publish broadcasts an event to local observers. It satisfies the outbox
// publisher interface so a single process can run without a broker.
func (s *Service) Publish(ctx context.Context, event events.Envelope) error {
	msg, err := EventMessage(event)
	if err != nil {
		return err
	}
	s.connectionManager.Broadcast(msg)
	return nil
}
