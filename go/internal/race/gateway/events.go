package gateway

import (
	"fmt"

	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/mcdev12/dailies/go/internal/race/racev1"
)

// MessageType is the kind of message sent to observers.
type MessageType string

const (
	// MessageSnapshot carries the full race state. Sent first on every connection.
	MessageSnapshot MessageType = "snapshot"
	// MessageEvent carries one race event. Observers that see a version gap
	// should fetch a new snapshot.
	MessageEvent MessageType = "event"
)

// Message is the websocket wire format.
type Message struct {
	Type     MessageType             `json:"type"`
	RaceID   string                  `json:"race_id"`
	Version  int64                   `json:"version"`
	Event    *events.Envelope        `json:"event,omitempty"`
	Snapshot *racev1.GetRaceResponse `json:"snapshot,omitempty"`
}

// EventMessage wraps a race event for observers.
func EventMessage(env events.Envelope) (*Message, error) {
	if !events.Known(env.Type) {
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
	return &Message{
		Type:    MessageEvent,
		RaceID:  env.RaceID.String(),
		Version: env.Version,
		Event:   &env,
	}, nil
}

// SnapshotMessage wraps a race snapshot for observers.
func SnapshotMessage(snapshot *racev1.GetRaceResponse) *Message {
	return &Message{
		Type:     MessageSnapshot,
		RaceID:   snapshot.Race.Id,
		Version:  snapshot.Race.Version,
		Snapshot: snapshot,
	}
}
