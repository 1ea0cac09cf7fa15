package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/sqlc-dev/pqtype"
)

// OutboxEvent is a row of the race_outbox table.
type OutboxEvent struct {
	ID        uuid.UUID             `json:"id"`
	RaceID    uuid.UUID             `json:"race_id"`
	EventType string                `json:"event_type"`
	Version   int64                 `json:"version"`
	Payload   json.RawMessage       `json:"payload"`
	Metadata  pqtype.NullRawMessage `json:"metadata"`
	CreatedAt time.Time             `json:"created_at"`
	SentAt    *time.Time            `json:"sent_at,omitempty"`
}

// Envelope converts the row back into the event the race core produced.
func (e OutboxEvent) Envelope() events.Envelope {
	env := events.Envelope{
		ID:        e.ID,
		RaceID:    e.RaceID,
		Type:      events.Type(e.EventType),
		Version:   e.Version,
		Timestamp: e.CreatedAt,
		Payload:   e.Payload,
	}
	if e.Metadata.Valid {
		env.Metadata = e.Metadata.RawMessage
	}
	return env
}

// Publisher delivers an event to one sink.
type Publisher interface {
	Publish(ctx context.Context, event events.Envelope) error
}
