package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	events  []OutboxEvent
	marked  []uuid.UUID
	markErr error
}

func (s *fakeStore) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			ev := ev
			return &ev, nil
		}
	}
	return nil, ErrEventNotFound
}

func (s *fakeStore) FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEvent
	for _, ev := range s.events {
		if ev.SentAt == nil && int32(len(out)) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	now := time.Now()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].SentAt = &now
		}
	}
	s.marked = append(s.marked, id)
	return nil
}

// flakyPublisher fails the first failures publishes of every event it sees
// and fails forever for events of the races in broken.
type flakyPublisher struct {
	mu        sync.Mutex
	failures  int
	broken    map[uuid.UUID]bool
	attempts  map[uuid.UUID]int
	published []events.Envelope
}

func newFlakyPublisher(failures int) *flakyPublisher {
	return &flakyPublisher{failures: failures, broken: map[uuid.UUID]bool{}, attempts: map[uuid.UUID]int{}}
}

func (p *flakyPublisher) Publish(ctx context.Context, event events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[event.ID]++
	if p.broken[event.RaceID] || p.attempts[event.ID] <= p.failures {
		return errors.New("sink unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func testRelayConfig() RelayConfig {
	return RelayConfig{MaxRetries: 2, RetryDelay: time.Millisecond, BatchSize: 10}
}

func outboxRow(raceID uuid.UUID, version int64, t events.Type) OutboxEvent {
	return OutboxEvent{
		ID:        uuid.New(),
		RaceID:    raceID,
		EventType: string(t),
		Version:   version,
		Payload:   json.RawMessage(`{}`),
		CreatedAt: time.Date(2026, 3, 14, 9, 0, int(version), 0, time.UTC),
	}
}

func TestOutboxEvent_Envelope(t *testing.T) {
	row := outboxRow(uuid.New(), 3, events.TypeRaceStarted)
	env := row.Envelope()
	assert.Equal(t, row.ID, env.ID)
	assert.Equal(t, row.RaceID, env.RaceID)
	assert.Equal(t, events.TypeRaceStarted, env.Type)
	assert.Equal(t, int64(3), env.Version)
	assert.Equal(t, row.CreatedAt, env.Timestamp)
	assert.Nil(t, env.Metadata)

	row.Metadata = pqtype.NullRawMessage{RawMessage: json.RawMessage(`{"user_id":"alice"}`), Valid: true}
	assert.JSONEq(t, `{"user_id":"alice"}`, string(row.Envelope().Metadata))
}

func TestRelay_RelayUnsentPublishesInOrder(t *testing.T) {
	raceID := uuid.New()
	store := &fakeStore{events: []OutboxEvent{
		outboxRow(raceID, 2, events.TypeParticipantJoined),
		outboxRow(raceID, 3, events.TypeRaceStarted),
	}}
	pub := newFlakyPublisher(0)
	relay := NewRelay(store, pub, testRelayConfig())

	sent, err := relay.RelayUnsent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, pub.published, 2)
	assert.Equal(t, int64(2), pub.published[0].Version)
	assert.Equal(t, int64(3), pub.published[1].Version)
	assert.Len(t, store.marked, 2)

	processed, failed, last := relay.Stats()
	assert.Equal(t, uint64(2), processed)
	assert.Zero(t, failed)
	assert.False(t, last.IsZero())

	sent, err = relay.RelayUnsent(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "sent events are not published again")
}

func TestRelay_RetriesUntilPublished(t *testing.T) {
	store := &fakeStore{events: []OutboxEvent{outboxRow(uuid.New(), 2, events.TypeGameCompleted)}}
	pub := newFlakyPublisher(2)
	relay := NewRelay(store, pub, testRelayConfig())

	require.NoError(t, relay.RelayByID(context.Background(), store.events[0].ID))
	assert.Equal(t, 3, pub.attempts[store.events[0].ID])
	assert.Len(t, store.marked, 1)
}

func TestRelay_FailedRaceIsHeldBack(t *testing.T) {
	broken, healthy := uuid.New(), uuid.New()
	store := &fakeStore{events: []OutboxEvent{
		outboxRow(broken, 2, events.TypeParticipantJoined),
		outboxRow(healthy, 2, events.TypeParticipantJoined),
		outboxRow(broken, 3, events.TypeRaceStarted),
	}}
	pub := newFlakyPublisher(0)
	pub.broken[broken] = true
	relay := NewRelay(store, pub, testRelayConfig())

	sent, err := relay.RelayUnsent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 3, pub.attempts[store.events[0].ID], "initial attempt plus two retries")
	assert.Zero(t, pub.attempts[store.events[2].ID], "later version of a failed race waits")
	assert.Equal(t, []uuid.UUID{store.events[1].ID}, store.marked)

	_, failed, _ := relay.Stats()
	assert.Equal(t, uint64(1), failed)
}

func TestRelay_RelayByID(t *testing.T) {
	store := &fakeStore{events: []OutboxEvent{outboxRow(uuid.New(), 2, events.TypeRaceCancelled)}}
	pub := newFlakyPublisher(0)
	relay := NewRelay(store, pub, testRelayConfig())
	id := store.events[0].ID

	require.NoError(t, relay.RelayByID(context.Background(), id))
	require.NoError(t, relay.RelayByID(context.Background(), id))
	assert.Len(t, pub.published, 1, "already sent events are skipped")

	err := relay.RelayByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestRelay_MarkFailureIsReturned(t *testing.T) {
	store := &fakeStore{
		events:  []OutboxEvent{outboxRow(uuid.New(), 2, events.TypeRaceStarted)},
		markErr: errors.New("connection reset"),
	}
	relay := NewRelay(store, newFlakyPublisher(0), testRelayConfig())

	err := relay.RelayByID(context.Background(), store.events[0].ID)
	assert.EqualError(t, err, "connection reset")
}

func TestRelay_StopsOnCancel(t *testing.T) {
	store := &fakeStore{events: []OutboxEvent{outboxRow(uuid.New(), 2, events.TypeRaceStarted)}}
	pub := newFlakyPublisher(100)
	relay := NewRelay(store, pub, RelayConfig{MaxRetries: 5, RetryDelay: time.Hour, BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := relay.RelayUnsent(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
