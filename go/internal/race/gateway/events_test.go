package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelopeJSON(t *testing.T, raceID uuid.UUID, typ events.Type) []byte {
	t.Helper()
	env, err := events.New(raceID, typ, 4, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), map[string]string{}, nil)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestDecodeEvent(t *testing.T) {
	raceID := uuid.New()
	msg, err := decodeEvent(envelopeJSON(t, raceID, events.TypeGameCompleted))
	require.NoError(t, err)
	assert.Equal(t, MessageEvent, msg.Type)
	assert.Equal(t, raceID.String(), msg.RaceID)
	assert.Equal(t, int64(4), msg.Version)

	_, err = decodeEvent(envelopeJSON(t, raceID, events.Type("lobby-opened")))
	assert.ErrorContains(t, err, "unknown event type")

	_, err = decodeEvent([]byte("{"))
	assert.ErrorContains(t, err, "unmarshal event envelope")
}

func TestRedisConsumer_ProcessMessage(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	rc := NewRedisConsumer(cm, nil, "race:")
	raceID := uuid.New()

	require.NoError(t, rc.processMessage("race:"+raceID.String(), envelopeJSON(t, raceID, events.TypeRaceStarted)))
	queued := <-cm.broadcastCh
	assert.Equal(t, raceID.String(), queued.RaceID)

	err := rc.processMessage("race:"+uuid.NewString(), envelopeJSON(t, raceID, events.TypeRaceStarted))
	assert.ErrorContains(t, err, "arrived on channel")

	err = rc.processMessage("other:"+raceID.String(), envelopeJSON(t, raceID, events.TypeRaceStarted))
	assert.Error(t, err)
}

func TestEventConsumer_ProcessMessage(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	ec := &EventConsumer{connectionManager: cm}
	raceID := uuid.New()

	require.NoError(t, ec.processMessage(envelopeJSON(t, raceID, events.TypeParticipantLeft)))
	queued := <-cm.broadcastCh
	assert.Equal(t, events.TypeParticipantLeft, queued.Event.Type)
}
