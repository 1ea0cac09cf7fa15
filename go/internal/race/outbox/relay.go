package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventStore is what the relay needs from the outbox table.
type EventStore interface {
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}

// RelayConfig controls publishing retries and batch size.
type RelayConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	BatchSize  int32
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxRetries: 5,
		RetryDelay: 200 * time.Millisecond,
		BatchSize:  100,
	}
}

// Relay moves committed outbox rows to a publisher and marks them sent.
// Delivery is at least once: a crash between publish and mark resends the
// event, and consumers dedupe by event id or race version.
type Relay struct {
	store     EventStore
	publisher Publisher
	cfg       RelayConfig

	mu        sync.Mutex
	processed uint64
	failed    uint64
	lastSent  time.Time
}

func NewRelay(store EventStore, publisher Publisher, cfg RelayConfig) *Relay {
	return &Relay{store: store, publisher: publisher, cfg: cfg}
}

// RelayByID publishes the event a notification pointed at. Events that were
// already sent by the fallback poll are skipped.
func (r *Relay) RelayByID(ctx context.Context, id uuid.UUID) error {
	event, err := r.store.FetchByID(ctx, id)
	if err != nil {
		return err
	}
	if event.SentAt != nil {
		log.Debug().Str("event_id", id.String()).Msg("outbox event already sent")
		return nil
	}
	return r.publishWithRetry(ctx, *event)
}

// RelayUnsent publishes one batch of unsent events and returns how many were
// delivered. Events of a race after a failed one are held back so observers
// never see versions out of order.
func (r *Relay) RelayUnsent(ctx context.Context) (int, error) {
	unsent, err := r.store.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	blocked := make(map[uuid.UUID]bool)
	sent := 0
	for _, event := range unsent {
		if blocked[event.RaceID] {
			continue
		}
		if err := r.publishWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			log.Error().Err(err).Str("event_id", event.ID.String()).Str("race_id", event.RaceID.String()).Msg("failed to relay event")
			blocked[event.RaceID] = true
			continue
		}
		sent++
	}
	return sent, nil
}

// Stats returns how many events were published, how many exhausted their
// retries, and when the last one went out.
func (r *Relay) Stats() (processed, failed uint64, lastSent time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed, r.failed, r.lastSent
}

// publishWithRetry publishes with a linear backoff and marks the event sent.
func (r *Relay) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	env := event.Envelope()
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := r.publisher.Publish(ctx, env); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("failed to publish, retrying")
			continue
		}

		if err := r.store.MarkSent(ctx, event.ID); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark outbox event as sent")
			return err
		}

		r.mu.Lock()
		r.processed++
		r.lastSent = time.Now()
		r.mu.Unlock()

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		log.Debug().
			Str("event_id", event.ID.String()).
			Str("race_id", event.RaceID.String()).
			Int64("version", event.Version).
			Msg("published and marked event as sent")
		return nil
	}

	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
