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
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope(t *testing.T) events.Envelope {
	t.Helper()
	env, err := events.New(uuid.New(), events.TypeGameCompleted, 7, time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC),
		map[string]int{"time_to_complete": 42}, &events.Metadata{UserID: "alice"})
	require.NoError(t, err)
	return env
}

type fakeRedis struct {
	channel string
	message []byte
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisPublisher(t *testing.T) {
	env := testEnvelope(t)
	client := &fakeRedis{}
	pub := NewRedisPublisher(client, "")

	require.NoError(t, pub.Publish(context.Background(), env))
	assert.Equal(t, "race:"+env.RaceID.String(), client.channel)

	var got events.Envelope
	require.NoError(t, json.Unmarshal(client.message, &got))
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, int64(7), got.Version)

	client.err = errors.New("redis down")
	assert.ErrorContains(t, pub.Publish(context.Background(), env), "redis down")
}

type fakeAMQPChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	closed   bool
}

func (f *fakeAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func (f *fakeAMQPChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQPublisher(t *testing.T) {
	env := testEnvelope(t)
	ch := &fakeAMQPChannel{}
	pub := &RabbitMQPublisher{channel: ch, exchange: RabbitMQExchange}

	require.NoError(t, pub.Publish(context.Background(), env))
	assert.Equal(t, "race.events", ch.exchange)
	assert.Equal(t, "race."+env.RaceID.String()+".game-completed", ch.key)
	assert.Equal(t, env.ID.String(), ch.msg.MessageId)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, env.Timestamp, ch.msg.Timestamp)

	require.NoError(t, pub.Close())
	assert.True(t, ch.closed)
}

func TestJetStreamMsg(t *testing.T) {
	env := testEnvelope(t)
	msg, err := jetStreamMsg("race.events", env)
	require.NoError(t, err)

	assert.Equal(t, "race.events."+env.RaceID.String()+".game-completed", msg.Subject)
	assert.Equal(t, "game-completed", msg.Header.Get("Event-Type"))
	assert.Equal(t, env.RaceID.String(), msg.Header.Get("Race-ID"))
	assert.Equal(t, env.ID.String(), msg.Header.Get("Event-ID"))
	assert.Equal(t, "7", msg.Header.Get("Race-Version"))

	var got events.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.JSONEq(t, `{"time_to_complete":42}`, string(got.Payload))
}

type recordingPublisher struct {
	events []events.Envelope
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Envelope) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestMultiPublisher(t *testing.T) {
	env := testEnvelope(t)
	a, b := &recordingPublisher{}, &recordingPublisher{err: errors.New("b failed")}
	c := &recordingPublisher{}

	err := MultiPublisher{a, b, c}.Publish(context.Background(), env)
	assert.ErrorContains(t, err, "b failed")
	assert.Len(t, a.events, 1)
	assert.Len(t, c.events, 1, "a failing sink does not stop the others")

	assert.NoError(t, MultiPublisher{a, c}.Publish(context.Background(), env))
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), env))
}

func TestDispatcher(t *testing.T) {
	env := testEnvelope(t)
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, []events.Envelope{env, env})
	require.NoError(t, d.Close())
	assert.Len(t, pub.events, 2, "caller cancellation does not drop committed events")

	d.Dispatch(context.Background(), []events.Envelope{env})
	assert.Len(t, pub.events, 2, "closed dispatcher drops events")
	assert.NoError(t, d.Close(), "close is idempotent")

	failing := NewDispatcher(&recordingPublisher{err: errors.New("down")}, time.Second)
	assert.NotPanics(t, func() { failing.Dispatch(context.Background(), []events.Envelope{env}) })
	require.NoError(t, failing.Close())
}

// gatedPublisher blocks every publish until release is closed.
type gatedPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	events  []events.Envelope
}

func (p *gatedPublisher) Publish(ctx context.Context, event events.Envelope) error {
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func TestDispatcher_DoesNotWaitForPublisher(t *testing.T) {
	env := testEnvelope(t)
	pub := &gatedPublisher{release: make(chan struct{})}
	d := newDispatcher(pub, time.Minute, 2)

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Dispatch(context.Background(), []events.Envelope{env})
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Dispatch waited for a blocked publisher")
	}

	close(pub.release)
	require.NoError(t, d.Close())
	assert.GreaterOrEqual(t, len(pub.events), 2, "queued events are published on close")
	assert.Less(t, len(pub.events), 5, "overflow beyond the queue is dropped")
}
