package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dailies/go/internal/auth"
	"github.com/mcdev12/dailies/go/internal/race"
	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/mcdev12/dailies/go/internal/race/outbox"
	"github.com/mcdev12/dailies/go/internal/race/racev1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type gatewayFixture struct {
	gw     *Service
	app    *race.App
	server *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	gw := NewService(DefaultConnectionConfig())
	go gw.Start(ctx)

	dispatcher := outbox.NewDispatcher(gw, time.Second)
	t.Cleanup(func() { _ = dispatcher.Close() })
	store := race.NewMemoryRepository(dispatcher)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	app := race.NewApp(store, auth.NewGuestTokens(bcrypt.MinCost), clock, race.DefaultConfig())

	mux := http.NewServeMux()
	gw.RegisterRoutes(mux, race.NewService(app))
	srv := httptest.NewServer(auth.Middleware(auth.NewTokenVerifier("test-secret", "dailies"))(mux))
	t.Cleanup(srv.Close)

	return &gatewayFixture{gw: gw, app: app, server: srv}
}

func (f *gatewayFixture) createRace(t *testing.T) uuid.UUID {
	t.Helper()
	created, err := f.app.CreateRace(context.Background(), race.Caller{UserID: "alice"}, race.CreateRaceRequest{
		Name:    "Morning race",
		GameIDs: []string{"wordle", "mini"},
	})
	require.NoError(t, err)
	return created.Race.ID
}

func (f *gatewayFixture) dial(t *testing.T, raceID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/race?race_id=" + raceID.String()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestGateway_SnapshotThenEvents(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	raceID := f.createRace(t)

	conn := f.dial(t, raceID)
	snap := readMessage(t, conn)
	assert.Equal(t, MessageSnapshot, snap.Type)
	assert.Equal(t, raceID.String(), snap.RaceID)
	assert.Equal(t, int64(1), snap.Version)
	require.NotNil(t, snap.Snapshot)
	assert.Equal(t, "WAITING", snap.Snapshot.Race.Status)
	require.NotNil(t, snap.Snapshot.Standings)

	_, err := f.app.JoinRace(ctx, race.Caller{UserID: "bob"}, race.JoinRaceRequest{RaceID: raceID})
	require.NoError(t, err)
	_, err = f.app.StartRace(ctx, race.Caller{UserID: "bob"}, raceID)
	require.NoError(t, err)

	joined := readMessage(t, conn)
	assert.Equal(t, MessageEvent, joined.Type)
	assert.Equal(t, int64(2), joined.Version)
	require.NotNil(t, joined.Event)
	assert.Equal(t, events.TypeParticipantJoined, joined.Event.Type)

	started := readMessage(t, conn)
	assert.Equal(t, events.TypeRaceStarted, started.Event.Type)
	assert.Equal(t, int64(3), started.Version)
}

func TestGateway_EventsAreScopedToRace(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	watched, other := f.createRace(t), f.createRace(t)

	conn := f.dial(t, watched)
	readMessage(t, conn)

	_, err := f.app.JoinRace(ctx, race.Caller{UserID: "bob"}, race.JoinRaceRequest{RaceID: other})
	require.NoError(t, err)
	_, err = f.app.CancelRace(ctx, race.Caller{UserID: "alice"}, watched)
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, watched.String(), msg.RaceID)
	assert.Equal(t, events.TypeRaceCancelled, msg.Event.Type)
}

func TestGateway_SkipsEventsAlreadySeen(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	raceID := f.createRace(t)

	conn := f.dial(t, raceID)
	require.Equal(t, int64(1), readMessage(t, conn).Version)

	redelivered, err := events.New(raceID, events.TypeParticipantJoined, 1, time.Now(), events.ParticipantJoinedPayload{}, nil)
	require.NoError(t, err)
	require.NoError(t, f.gw.Publish(ctx, redelivered))

	joined, err := f.app.JoinRace(ctx, race.Caller{UserID: "bob"}, race.JoinRaceRequest{RaceID: raceID})
	require.NoError(t, err)
	msg := readMessage(t, conn)
	assert.Equal(t, int64(2), msg.Version, "the snapshot already covers version 1")

	replay, err := events.New(raceID, events.TypeParticipantJoined, 2, time.Now(), events.ParticipantJoinedPayload{
		Participant: joined.Participant,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, f.gw.Publish(ctx, replay))
	_, err = f.app.CancelRace(ctx, race.Caller{UserID: "alice"}, raceID)
	require.NoError(t, err)

	msg = readMessage(t, conn)
	assert.Equal(t, int64(3), msg.Version, "duplicates are delivered once")
	assert.Equal(t, events.TypeRaceCancelled, msg.Event.Type)
}

func TestGateway_RejectsUnknownRace(t *testing.T) {
	f := newGatewayFixture(t)
	base := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/race"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?race_id="+uuid.NewString(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?race_id=nope", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStateHandler(t *testing.T) {
	f := newGatewayFixture(t)
	raceID := f.createRace(t)

	resp, err := http.Get(f.server.URL + "/api/races/" + raceID.String() + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state racev1.GetRaceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, raceID.String(), state.Race.Id)
	assert.Len(t, state.Race.Slots, 2)

	for path, want := range map[string]int{
		"/api/races/" + uuid.NewString() + "/state": http.StatusNotFound,
		"/api/races/not-a-uuid/state":               http.StatusBadRequest,
	} {
		resp, err := http.Get(f.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestConnectionStats(t *testing.T) {
	f := newGatewayFixture(t)
	raceID := f.createRace(t)
	conn := f.dial(t, raceID)
	readMessage(t, conn)

	stats := f.gw.ConnectionManager().Stats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.RaceConnections[raceID.String()])

	resp, err := http.Get(f.server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.ActiveRaces)
}
