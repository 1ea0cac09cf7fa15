package models

import (
	"time"

	"github.com/google/uuid"
)

// RaceStatus defines the lifecycle status of a race.
type RaceStatus string

const (
	RaceStatusWaiting   RaceStatus = "WAITING"
	RaceStatusReady     RaceStatus = "READY"
	RaceStatusActive    RaceStatus = "ACTIVE"
	RaceStatusCompleted RaceStatus = "COMPLETED"
	RaceStatusCancelled RaceStatus = "CANCELLED"
)

// MaxParticipants is the number of seats in a race.
const MaxParticipants = 2

// RaceSession is one head-to-head race from creation to completion.
type RaceSession struct {
	ID            uuid.UUID      `json:"id"`
	Name          string         `json:"name"`
	CreatorUserID *string        `json:"creator_user_id,omitempty"` // nil for guest-created races
	Status        RaceStatus     `json:"status"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Slots         []RaceGameSlot `json:"slots"`
	Participants  []Participant  `json:"participants"`
	Completions   []Completion   `json:"completions"`
}

// RaceGameSlot is one game position in a race's ordered sequence.
type RaceGameSlot struct {
	ID     uuid.UUID `json:"id"`
	RaceID uuid.UUID `json:"race_id"`
	GameID string    `json:"game_id"` // catalog reference
	Order  int       `json:"order"`   // 0-based, contiguous
}

// Completion resolves one slot for one participant.
type Completion struct {
	ID             uuid.UUID `json:"id"`
	RaceID         uuid.UUID `json:"race_id"`
	SlotID         uuid.UUID `json:"slot_id"`
	ParticipantID  uuid.UUID `json:"participant_id"`
	CompletedAt    time.Time `json:"completed_at"`
	TimeToComplete int       `json:"time_to_complete"` // cumulative seconds since race start
	Skipped        bool      `json:"skipped"`
}

// Clone returns a deep copy of the race.
func (r *RaceSession) Clone() *RaceSession {
	if r == nil {
		return nil
	}
	c := *r
	c.CreatorUserID = cloneString(r.CreatorUserID)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.Slots = append([]RaceGameSlot(nil), r.Slots...)
	c.Completions = append([]Completion(nil), r.Completions...)
	c.Participants = make([]Participant, len(r.Participants))
	for i, p := range r.Participants {
		c.Participants[i] = p.clone()
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
