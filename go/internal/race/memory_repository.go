package race

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/models"
	"github.com/mcdev12/dailies/go/internal/race/events"
)

// MemoryRepository keeps races in process. Every mutation works on a copy that
// replaces the stored race only when the mutation succeeds. Each race has its
// own lock, so a slow mutation or dispatch never holds up other races.
type MemoryRepository struct {
	mu         sync.RWMutex
	races      map[uuid.UUID]*memoryRace
	dispatcher Dispatcher
}

type memoryRace struct {
	mu   sync.Mutex
	race *models.RaceSession
}

// NewMemoryRepository creates an in-memory store. dispatcher may be nil.
func NewMemoryRepository(dispatcher Dispatcher) *MemoryRepository {
	return &MemoryRepository{
		races:      make(map[uuid.UUID]*memoryRace),
		dispatcher: dispatcher,
	}
}

// CreateRace stores a new race.
func (r *MemoryRepository) CreateRace(ctx context.Context, race *models.RaceSession, evs []events.Envelope) error {
	entry := &memoryRace{race: race.Clone()}
	// Locked before it is visible, so its creation events go out before
	// events of any later mutation.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	r.mu.Lock()
	if _, exists := r.races[race.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("race %s already exists", race.ID)
	}
	r.races[race.ID] = entry
	r.mu.Unlock()

	r.dispatch(ctx, evs)
	return nil
}

// GetRace returns a copy of a race.
func (r *MemoryRepository) GetRace(ctx context.Context, id uuid.UUID) (*models.RaceSession, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.race.Clone(), nil
}

// MutateRace applies fn under the race's lock.
func (r *MemoryRepository) MutateRace(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.RaceSession, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	working := entry.race.Clone()
	changes, err := fn(working)
	if err != nil {
		return nil, err
	}
	if changes == nil {
		return entry.race.Clone(), nil
	}

	entry.race = working
	// Dispatching under the race lock keeps its events in version order.
	r.dispatch(ctx, changes.Events)
	return working.Clone(), nil
}

func (r *MemoryRepository) lookup(id uuid.UUID) (*memoryRace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.races[id]
	if !ok {
		return nil, fmt.Errorf("race %s: %w", id, ErrNotFound)
	}
	return entry, nil
}

func (r *MemoryRepository) dispatch(ctx context.Context, evs []events.Envelope) {
	if r.dispatcher == nil || len(evs) == 0 {
		return
	}
	r.dispatcher.Dispatch(ctx, evs)
}
