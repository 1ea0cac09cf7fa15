package events

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Topic is the broadcast topic observers of a race subscribe to.
func Topic(raceID uuid.UUID) string {
	return "race." + raceID.String()
}

// Subject is the NATS subject for one event of a race, e.g. race.events.<id>.game-completed.
func Subject(prefix string, raceID uuid.UUID, t Type) string {
	return fmt.Sprintf("%s.%s.%s", prefix, raceID, t)
}

// Channel is the Redis pub/sub channel for a race, e.g. race:<id>.
func Channel(prefix string, raceID uuid.UUID) string {
	return prefix + raceID.String()
}

// RaceIDFromChannel extracts the race id from a Redis channel name.
func RaceIDFromChannel(prefix, channel string) (uuid.UUID, error) {
	if !strings.HasPrefix(channel, prefix) {
		return uuid.Nil, fmt.Errorf("channel %q does not have prefix %q", channel, prefix)
	}
	return uuid.Parse(strings.TrimPrefix(channel, prefix))
}
