package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParticipantIdentity is who occupies a seat. It is either a Member or a Guest.
type ParticipantIdentity interface {
	isParticipantIdentity()
}

// Member is an authenticated user.
type Member struct {
	UserID string
}

// Guest is an unauthenticated participant. Only a hash of the guest token is kept.
type Guest struct {
	DisplayName string
	TokenHash   string
}

func (Member) isParticipantIdentity() {}
func (Guest) isParticipantIdentity()  {}

// Participant is one seat in a race.
type Participant struct {
	ID         uuid.UUID
	RaceID     uuid.UUID
	Identity   ParticipantIdentity
	JoinedAt   time.Time
	FinishedAt *time.Time
	TotalTime  *int // seconds, set together with FinishedAt
}

// UserID returns the member user id, or "" for guests.
func (p Participant) UserID() string {
	if m, ok := p.Identity.(Member); ok {
		return m.UserID
	}
	return ""
}

// IsGuest reports whether the seat is held by a guest.
func (p Participant) IsGuest() bool {
	_, ok := p.Identity.(Guest)
	return ok
}

// Finished reports whether the participant has resolved every slot.
func (p Participant) Finished() bool {
	return p.FinishedAt != nil
}

func (p Participant) clone() Participant {
	c := p
	c.FinishedAt = cloneTime(p.FinishedAt)
	c.TotalTime = cloneInt(p.TotalTime)
	return c
}

type participantJSON struct {
	ID         uuid.UUID  `json:"id"`
	RaceID     uuid.UUID  `json:"race_id"`
	UserID     string     `json:"user_id,omitempty"`
	GuestName  string     `json:"guest_name,omitempty"`
	JoinedAt   time.Time  `json:"joined_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	TotalTime  *int       `json:"total_time,omitempty"`
}

// MarshalJSON flattens the identity and never exposes the guest token hash.
func (p Participant) MarshalJSON() ([]byte, error) {
	out := participantJSON{
		ID:         p.ID,
		RaceID:     p.RaceID,
		JoinedAt:   p.JoinedAt,
		FinishedAt: p.FinishedAt,
		TotalTime:  p.TotalTime,
	}
	switch id := p.Identity.(type) {
	case Member:
		out.UserID = id.UserID
	case Guest:
		out.GuestName = id.DisplayName
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a participant snapshot. Guests come back without a token hash.
func (p *Participant) UnmarshalJSON(data []byte) error {
	var in participantJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Participant{
		ID:         in.ID,
		RaceID:     in.RaceID,
		JoinedAt:   in.JoinedAt,
		FinishedAt: in.FinishedAt,
		TotalTime:  in.TotalTime,
	}
	if in.UserID != "" {
		p.Identity = Member{UserID: in.UserID}
	} else {
		p.Identity = Guest{DisplayName: in.GuestName}
	}
	return nil
}
