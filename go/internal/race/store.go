package race

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/models"
	"github.com/mcdev12/dailies/go/internal/race/events"
)

// MutateFunc edits a race in place and describes what it changed. It may be
// invoked more than once when the store retries a conflicting transaction.
// Returning a nil Changeset and nil error commits nothing.
type MutateFunc func(race *models.RaceSession) (*Changeset, error)

// Store persists races.
//
// MutateRace runs fn against the latest committed state of the race and
// commits the race, its changeset and its events atomically. Mutations of the
// same race are serialized, and when fn returns an error nothing is written.
type Store interface {
	CreateRace(ctx context.Context, race *models.RaceSession, evs []events.Envelope) error
	GetRace(ctx context.Context, id uuid.UUID) (*models.RaceSession, error)
	MutateRace(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.RaceSession, error)
}

// Dispatcher receives events after a store without an outbox commits them.
// Dispatch is called with the race locked and should hand events off rather
// than wait for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, evs []events.Envelope)
}
