package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/rs/zerolog/log"
)

const dispatchQueueSize = 1024

type dispatchBatch struct {
	ctx    context.Context
	events []events.Envelope
}

// Dispatcher publishes events straight after commit, for stores without an
// outbox table. Dispatch only queues; a single worker publishes batches in the
// order they were queued, so per-race version order is preserved. Delivery is
// best effort: failures and overflow are logged and dropped, and observers
// recover by fetching the race.
type Dispatcher struct {
	publisher Publisher
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan dispatchBatch
	done   chan struct{}
}

// NewDispatcher starts the publishing worker. Call Close to drain and stop it.
func NewDispatcher(publisher Publisher, timeout time.Duration) *Dispatcher {
	return newDispatcher(publisher, timeout, dispatchQueueSize)
}

func newDispatcher(publisher Publisher, timeout time.Duration, size int) *Dispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := &Dispatcher{
		publisher: publisher,
		timeout:   timeout,
		queue:     make(chan dispatchBatch, size),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues evs without waiting for the publisher. The caller's
// cancellation does not abort delivery of an already committed mutation.
func (d *Dispatcher) Dispatch(ctx context.Context, evs []events.Envelope) {
	if len(evs) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Warn().Int("events", len(evs)).Msg("dispatcher closed, dropping events")
		return
	}
	select {
	case d.queue <- dispatchBatch{ctx: context.WithoutCancel(ctx), events: evs}:
	default:
		log.Error().
			Int("events", len(evs)).
			Str("race_id", evs[0].RaceID.String()).
			Msg("dispatch queue full, dropping events")
	}
}

// Close stops accepting events and waits until queued ones are published.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for batch := range d.queue {
		d.publish(batch)
	}
}

func (d *Dispatcher) publish(batch dispatchBatch) {
	ctx, cancel := context.WithTimeout(batch.ctx, d.timeout)
	defer cancel()

	for _, ev := range batch.events {
		if err := d.publisher.Publish(ctx, ev); err != nil {
			log.Error().
				Err(err).
				Str("event_id", ev.ID.String()).
				Str("event_type", string(ev.Type)).
				Str("race_id", ev.RaceID.String()).
				Msg("failed to dispatch event")
		}
	}
}
