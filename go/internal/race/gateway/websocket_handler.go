package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/auth"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades observer connections for a race.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stateProvider     StateProvider
}

func NewWebSocketHandler(cm *ConnectionManager, provider StateProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stateProvider:     provider,
	}
}

// HandleRaceConnection handles GET /ws/race?race_id=<id>. The race must exist.
// The observer is registered before the snapshot is read, so no event
// committed after the snapshot can be missed. Events the observer already
// holds through a snapshot are not sent again.
func (h *WebSocketHandler) HandleRaceConnection(w http.ResponseWriter, r *http.Request) {
	raceIDStr := r.URL.Query().Get("race_id")
	if raceIDStr == "" {
		writeError(w, http.StatusBadRequest, "race_id is required")
		return
	}
	raceID, err := uuid.Parse(raceIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid race_id format")
		return
	}

	ctx := r.Context()
	current, err := h.stateProvider.Snapshot(ctx, raceID)
	if err != nil {
		status := httpStatus(err)
		writeError(w, status, http.StatusText(status))
		return
	}

	viewer := viewerName(auth.IdentityFromContext(ctx))
	conn, err := h.connectionManager.UpgradeConnection(w, r, viewer, raceID, current.Race.Version)
	if err != nil {
		// the upgrader already wrote the HTTP error
		log.Error().
			Err(err).
			Str("race_id", raceID.String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	snapshot, err := h.stateProvider.Snapshot(ctx, raceID)
	if err != nil {
		log.Error().Err(err).Str("race_id", raceID.String()).Msg("failed to load snapshot for new observer")
		h.connectionManager.unregisterConnection(conn)
		conn.Conn.Close()
		return
	}
	conn.advance(snapshot.Race.Version)
	if err := h.connectionManager.SendTo(conn, SnapshotMessage(snapshot)); err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to queue snapshot")
	}
	conn.Serve()
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/race", h.HandleRaceConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

func viewerName(id auth.Identity) string {
	switch {
	case id.UserID != "":
		return id.UserID
	case id.GuestToken != "":
		return "guest"
	default:
		return "anonymous"
	}
}
