package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/race"
	"github.com/mcdev12/dailies/go/internal/race/racev1"
	"github.com/rs/zerolog/log"
)

// StateProvider returns the authoritative race snapshot as seen by the
// caller identity in ctx.
type StateProvider interface {
	Snapshot(ctx context.Context, raceID uuid.UUID) (*racev1.GetRaceResponse, error)
}

// StateHandler serves race snapshots over plain HTTP for clients that
// reconnect or detect a version gap.
type StateHandler struct {
	stateProvider StateProvider
}

func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{stateProvider: provider}
}

// HandleGetRaceState handles GET /api/races/{id}/state
func (h *StateHandler) HandleGetRaceState(w http.ResponseWriter, r *http.Request) {
	raceID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid race id")
		return
	}

	state, err := h.stateProvider.Snapshot(r.Context(), raceID)
	if err != nil {
		status := httpStatus(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("race_id", raceID.String()).Msg("failed to get race state")
		}
		writeError(w, status, http.StatusText(status))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode race state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/races/{id}/state", h.HandleGetRaceState)
}

func httpStatus(err error) int {
	switch race.ErrorKind(err) {
	case "NotFound":
		return http.StatusNotFound
	case "InvalidArgument":
		return http.StatusBadRequest
	case "Unauthenticated":
		return http.StatusUnauthorized
	case "Forbidden":
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
