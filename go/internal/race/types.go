package race

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/models"
	"github.com/mcdev12/dailies/go/internal/race/events"
)

// Caller identifies who is invoking an operation. UserID wins over GuestToken
// when both are present.
type Caller struct {
	UserID     string
	GuestToken string
}

// Anonymous reports whether the caller presented no identity at all.
func (c Caller) Anonymous() bool {
	return c.UserID == "" && c.GuestToken == ""
}

// Config holds race rules that are deployment specific.
type Config struct {
	MaxGames         int           `yaml:"max_games"`
	MaxNameLength    int           `yaml:"max_name_length"`
	ElapsedTolerance time.Duration `yaml:"elapsed_tolerance"` // slack allowed over server-measured elapsed time
}

// DefaultConfig returns the default race rules.
func DefaultConfig() Config {
	return Config{
		MaxGames:         20,
		MaxNameLength:    100,
		ElapsedTolerance: 5 * time.Second,
	}
}

// CreateRaceRequest represents a request to create a race
type CreateRaceRequest struct {
	Name      string   `json:"name"`
	GameIDs   []string `json:"game_ids"`
	GuestName string   `json:"guest_name,omitempty"` // required when the caller is not signed in
}

// JoinRaceRequest represents a request to take a seat in a race
type JoinRaceRequest struct {
	RaceID    uuid.UUID `json:"race_id"`
	GuestName string    `json:"guest_name,omitempty"`
}

// ReorderGamesRequest represents a request to rewrite the slot order
type ReorderGamesRequest struct {
	RaceID  uuid.UUID   `json:"race_id"`
	SlotIDs []uuid.UUID `json:"slot_ids"`
}

// RecordCompletionRequest represents a participant finishing or skipping their current game
type RecordCompletionRequest struct {
	RaceID         uuid.UUID `json:"race_id"`
	SlotID         uuid.UUID `json:"slot_id"`
	Skipped        bool      `json:"skipped"`
	ElapsedSeconds int       `json:"elapsed_seconds"` // cumulative since race start
}

// SeatResult is returned by operations that seat a participant.
// GuestToken is only set when a guest seat was issued.
type SeatResult struct {
	Race        *models.RaceSession
	Participant models.Participant
	GuestToken  string
}

// CompletionResult is returned by RecordCompletion.
type CompletionResult struct {
	Race                *models.RaceSession
	Completion          models.Completion
	ParticipantFinished bool
}

// RaceView is a race snapshot with its derived standings, as seen by one viewer.
type RaceView struct {
	Race      *models.RaceSession
	Standings Standings
	Viewer    *uuid.UUID // participant id of the viewer, nil for observers
	Victory   bool
}

// Changeset lists what a mutation changed besides the race row itself
// (status, timestamps and version are always written from the mutated race).
type Changeset struct {
	AddedParticipants    []models.Participant
	RemovedParticipants  []uuid.UUID
	FinishedParticipants []models.Participant
	AddedCompletions     []models.Completion
	ReorderedSlots       bool
	Events               []events.Envelope
}
