package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/models"
)

// Event payload types shared between the race, outbox and gateway packages.

// Type is the kind of a race event.
type Type string

const (
	TypeParticipantJoined Type = "participant-joined"
	TypeParticipantLeft   Type = "participant-left"
	TypeGamesReordered    Type = "games-reordered"
	TypeRaceStarted       Type = "race-started"
	TypeGameCompleted     Type = "game-completed"
	TypeRaceCancelled     Type = "race-cancelled"
)

// Known reports whether t is an event kind emitted by the race core.
func Known(t Type) bool {
	switch t {
	case TypeParticipantJoined, TypeParticipantLeft, TypeGamesReordered,
		TypeRaceStarted, TypeGameCompleted, TypeRaceCancelled:
		return true
	default:
		return false
	}
}

// Envelope wraps a payload with the routing data every transport needs.
// Version is the race version after the mutation that produced the event.
type Envelope struct {
	ID        uuid.UUID       `json:"eventId"`
	RaceID    uuid.UUID       `json:"raceId"`
	Type      Type            `json:"eventType"`
	Version   int64           `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Metadata records who caused an event.
type Metadata struct {
	ParticipantID *uuid.UUID `json:"participant_id,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
}

// New builds an envelope around payload.
func New(raceID uuid.UUID, t Type, version int64, at time.Time, payload any, meta *Metadata) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	env := Envelope{
		ID:        uuid.New(),
		RaceID:    raceID,
		Type:      t,
		Version:   version,
		Timestamp: at,
		Payload:   data,
	}
	if meta != nil {
		if env.Metadata, err = json.Marshal(meta); err != nil {
			return Envelope{}, fmt.Errorf("failed to marshal %s metadata: %w", t, err)
		}
	}
	return env, nil
}

// ParticipantJoinedPayload is the payload for a participant-joined event
type ParticipantJoinedPayload struct {
	Participant      models.Participant `json:"participant"`
	Status           models.RaceStatus  `json:"status"`
	ParticipantCount int                `json:"participant_count"`
}

// ParticipantLeftPayload is the payload for a participant-left event
type ParticipantLeftPayload struct {
	ParticipantID    uuid.UUID         `json:"participant_id"`
	Status           models.RaceStatus `json:"status"`
	ParticipantCount int               `json:"participant_count"`
}

// GamesReorderedPayload is the payload for a games-reordered event
type GamesReorderedPayload struct {
	Slots []models.RaceGameSlot `json:"slots"`
}

// RaceStartedPayload is the payload for a race-started event
type RaceStartedPayload struct {
	Status    models.RaceStatus `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	Forced    bool              `json:"forced,omitempty"`
}

// GameCompletedPayload is the payload for a game-completed event
type GameCompletedPayload struct {
	ParticipantID       uuid.UUID         `json:"participant_id"`
	SlotID              uuid.UUID         `json:"slot_id"`
	ElapsedSeconds      int               `json:"elapsed_seconds"`
	Skipped             bool              `json:"skipped"`
	ParticipantFinished bool              `json:"participant_finished"`
	Status              models.RaceStatus `json:"status"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"` // set when the race completed
}

// RaceCancelledPayload is the payload for a race-cancelled event
type RaceCancelledPayload struct {
	Status      models.RaceStatus `json:"status"`
	CancelledAt time.Time         `json:"cancelled_at"`
}

// Decode parses the envelope payload into its typed struct.
func Decode(env Envelope) (any, error) {
	var target any
	switch env.Type {
	case TypeParticipantJoined:
		target = &ParticipantJoinedPayload{}
	case TypeParticipantLeft:
		target = &ParticipantLeftPayload{}
	case TypeGamesReordered:
		target = &GamesReorderedPayload{}
	case TypeRaceStarted:
		target = &RaceStartedPayload{}
	case TypeGameCompleted:
		target = &GameCompletedPayload{}
	case TypeRaceCancelled:
		target = &RaceCancelledPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", env.Type, err)
	}
	return target, nil
}
