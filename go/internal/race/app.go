package race

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dailies/go/internal/models"
	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/rs/zerolog/log"
)

// GuestTokenIssuer issues the opaque tokens guests use to prove their seat.
type GuestTokenIssuer interface {
	Issue() (token, hash string, err error)
	Matches(hash, token string) bool
}

// GameCatalog reports which catalog game ids can be raced.
type GameCatalog interface {
	KnownGames(ctx context.Context, ids []string) (map[string]bool, error)
}

// App handles race business logic
type App struct {
	store   Store
	tokens  GuestTokenIssuer
	clock   clockwork.Clock
	cfg     Config
	catalog GameCatalog
}

// NewApp creates a new race App
func NewApp(store Store, tokens GuestTokenIssuer, clock clockwork.Clock, cfg Config) *App {
	return &App{
		store:  store,
		tokens: tokens,
		clock:  clock,
		cfg:    cfg,
	}
}

// SetCatalog makes CreateRace reject games the catalog does not know.
// Without a catalog any non-empty game id is accepted.
func (a *App) SetCatalog(catalog GameCatalog) {
	a.catalog = catalog
}

// CreateRace creates a race and seats the caller as its host.
func (a *App) CreateRace(ctx context.Context, caller Caller, req CreateRaceRequest) (*SeatResult, error) {
	name, gameIDs, err := a.validateCreateRaceRequest(req)
	if err != nil {
		return nil, err
	}
	if err := a.checkCatalog(ctx, gameIDs); err != nil {
		return nil, err
	}

	identity, token, err := a.newIdentity(caller, req.GuestName)
	if err != nil {
		return nil, err
	}

	now := a.now()
	race := &models.RaceSession{
		ID:        uuid.New(),
		Name:      name,
		Status:    models.RaceStatusWaiting,
		Version:   1,
		CreatedAt: now,
	}
	if caller.UserID != "" {
		creator := caller.UserID
		race.CreatorUserID = &creator
	}
	for i, gameID := range gameIDs {
		race.Slots = append(race.Slots, models.RaceGameSlot{
			ID:     uuid.New(),
			RaceID: race.ID,
			GameID: gameID,
			Order:  i,
		})
	}

	participant := newParticipant(race.ID, identity, now)
	race.Participants = []models.Participant{participant}

	ev, err := events.New(race.ID, events.TypeParticipantJoined, race.Version, now, events.ParticipantJoinedPayload{
		Participant:      participant,
		Status:           race.Status,
		ParticipantCount: len(race.Participants),
	}, actor(participant))
	if err != nil {
		return nil, err
	}

	if err := checkInvariants(race); err != nil {
		return nil, fmt.Errorf("refusing to create race: %w", err)
	}
	if err := a.store.CreateRace(ctx, race, []events.Envelope{ev}); err != nil {
		return nil, fmt.Errorf("failed to create race: %w", err)
	}

	log.Info().
		Str("race_id", race.ID.String()).
		Str("participant_id", participant.ID.String()).
		Int("games", len(race.Slots)).
		Msg("created race")
	return &SeatResult{Race: race, Participant: participant, GuestToken: token}, nil
}

// JoinRace seats the caller in a waiting race.
func (a *App) JoinRace(ctx context.Context, caller Caller, req JoinRaceRequest) (*SeatResult, error) {
	// A guest identity is minted on the first attempt and reused if the store retries.
	var (
		identity models.ParticipantIdentity
		token    string
	)
	if caller.UserID != "" {
		identity = models.Member{UserID: caller.UserID}
	}

	var seated models.Participant
	race, err := a.mutate(ctx, req.RaceID, func(race *models.RaceSession) (*Changeset, error) {
		if _, ok := a.resolveParticipant(race, caller); ok {
			return nil, fmt.Errorf("caller already holds a seat: %w", ErrAlreadyJoined)
		}
		if len(race.Participants) >= models.MaxParticipants {
			return nil, fmt.Errorf("race has %d participants: %w", len(race.Participants), ErrSessionFull)
		}
		if race.Status != models.RaceStatusWaiting {
			return nil, fmt.Errorf("cannot join a %s race: %w", race.Status, ErrForbidden)
		}

		if identity == nil {
			var err error
			if identity, token, err = a.newIdentity(caller, req.GuestName); err != nil {
				return nil, err
			}
		}

		now := a.now()
		seated = newParticipant(race.ID, identity, now)
		race.Participants = append(race.Participants, seated)
		if err := settleSeats(race, now); err != nil {
			return nil, err
		}
		race.Version++

		ev, err := events.New(race.ID, events.TypeParticipantJoined, race.Version, now, events.ParticipantJoinedPayload{
			Participant:      seated,
			Status:           race.Status,
			ParticipantCount: len(race.Participants),
		}, actor(seated))
		if err != nil {
			return nil, err
		}
		return &Changeset{
			AddedParticipants: []models.Participant{seated},
			Events:            []events.Envelope{ev},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("race_id", race.ID.String()).
		Str("participant_id", seated.ID.String()).
		Str("status", string(race.Status)).
		Msg("participant joined race")
	return &SeatResult{Race: race, Participant: seated, GuestToken: token}, nil
}

// LeaveRace gives up the caller's seat before the race starts. The host cannot leave.
func (a *App) LeaveRace(ctx context.Context, caller Caller, raceID uuid.UUID) (*models.RaceSession, error) {
	var left uuid.UUID
	race, err := a.mutate(ctx, raceID, func(race *models.RaceSession) (*Changeset, error) {
		p, ok := a.resolveParticipant(race, caller)
		if !ok {
			return nil, fmt.Errorf("caller holds no seat: %w", ErrForbidden)
		}
		if race.Status != models.RaceStatusWaiting && race.Status != models.RaceStatusReady {
			return nil, fmt.Errorf("cannot leave a %s race: %w", race.Status, ErrForbidden)
		}
		if a.isHost(race, p) {
			return nil, fmt.Errorf("host cannot leave, cancel the race instead: %w", ErrForbidden)
		}

		now := a.now()
		left = p.ID
		race.Participants = slices.DeleteFunc(race.Participants, func(q models.Participant) bool { return q.ID == p.ID })
		if err := settleSeats(race, now); err != nil {
			return nil, err
		}
		race.Version++

		ev, err := events.New(race.ID, events.TypeParticipantLeft, race.Version, now, events.ParticipantLeftPayload{
			ParticipantID:    p.ID,
			Status:           race.Status,
			ParticipantCount: len(race.Participants),
		}, actor(p))
		if err != nil {
			return nil, err
		}
		return &Changeset{
			RemovedParticipants: []uuid.UUID{p.ID},
			Events:              []events.Envelope{ev},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("race_id", race.ID.String()).
		Str("participant_id", left.String()).
		Str("status", string(race.Status)).
		Msg("participant left race")
	return race, nil
}

// ReorderGames rewrites the slot order. Only the host may reorder, and only before the race starts.
func (a *App) ReorderGames(ctx context.Context, caller Caller, req ReorderGamesRequest) (*models.RaceSession, error) {
	race, err := a.mutate(ctx, req.RaceID, func(race *models.RaceSession) (*Changeset, error) {
		if race.Status != models.RaceStatusWaiting && race.Status != models.RaceStatusReady {
			return nil, fmt.Errorf("cannot reorder a %s race: %w", race.Status, ErrForbidden)
		}
		p, ok := a.resolveParticipant(race, caller)
		if !ok || !a.isHost(race, p) {
			return nil, fmt.Errorf("only the host may reorder games: %w", ErrForbidden)
		}

		reordered, err := applyOrder(race.Slots, req.SlotIDs)
		if err != nil {
			return nil, err
		}
		if slices.Equal(reordered, race.Slots) {
			return nil, nil
		}

		now := a.now()
		race.Slots = reordered
		race.Version++

		ev, err := events.New(race.ID, events.TypeGamesReordered, race.Version, now, events.GamesReorderedPayload{
			Slots: reordered,
		}, actor(p))
		if err != nil {
			return nil, err
		}
		return &Changeset{
			ReorderedSlots: true,
			Events:         []events.Envelope{ev},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("race_id", race.ID.String()).Msg("reordered race games")
	return race, nil
}

// applyOrder returns the slots renumbered to follow ids, which must name every slot exactly once.
func applyOrder(slots []models.RaceGameSlot, ids []uuid.UUID) ([]models.RaceGameSlot, error) {
	if len(ids) != len(slots) {
		return nil, fmt.Errorf("got %d slot ids, race has %d slots: %w", len(ids), len(slots), ErrInvalidSequence)
	}
	byID := make(map[uuid.UUID]models.RaceGameSlot, len(slots))
	for _, s := range slots {
		byID[s.ID] = s
	}

	out := make([]models.RaceGameSlot, 0, len(ids))
	for i, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("slot %s is unknown or repeated: %w", id, ErrInvalidSequence)
		}
		delete(byID, id)
		s.Order = i
		out = append(out, s)
	}
	return out, nil
}

// StartRace moves a ready race to active. Any seated participant may start it.
// Starting a race that is already active succeeds without changes.
func (a *App) StartRace(ctx context.Context, caller Caller, raceID uuid.UUID) (*models.RaceSession, error) {
	var starter models.Participant
	race, err := a.mutate(ctx, raceID, func(race *models.RaceSession) (*Changeset, error) {
		p, ok := a.resolveParticipant(race, caller)
		if !ok {
			return nil, fmt.Errorf("caller holds no seat: %w", ErrForbidden)
		}
		starter = p
		if race.Status == models.RaceStatusActive {
			return nil, nil
		}
		if race.Status != models.RaceStatusReady || len(race.Participants) != models.MaxParticipants {
			return nil, fmt.Errorf("race is %s with %d participants: %w", race.Status, len(race.Participants), ErrNotReady)
		}
		return a.start(race, false, actor(p))
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("race_id", race.ID.String()).
		Str("participant_id", starter.ID.String()).
		Msg("started race")
	return race, nil
}

// ForceStartRace starts a waiting or ready race with at least one participant.
// Callers must authorize this before invoking it.
func (a *App) ForceStartRace(ctx context.Context, raceID uuid.UUID) (*models.RaceSession, error) {
	race, err := a.mutate(ctx, raceID, func(race *models.RaceSession) (*Changeset, error) {
		if race.Status != models.RaceStatusWaiting && race.Status != models.RaceStatusReady {
			return nil, fmt.Errorf("cannot force start a %s race: %w", race.Status, ErrNotReady)
		}
		if len(race.Participants) == 0 {
			return nil, fmt.Errorf("race has no participants: %w", ErrNotReady)
		}
		return a.start(race, true, nil)
	})
	if err != nil {
		return nil, err
	}

	log.Warn().
		Str("race_id", race.ID.String()).
		Int("participants", len(race.Participants)).
		Msg("force started race")
	return race, nil
}

func (a *App) start(race *models.RaceSession, forced bool, meta *events.Metadata) (*Changeset, error) {
	now := a.now()
	if err := transition(race, models.RaceStatusActive, now); err != nil {
		return nil, err
	}
	race.Version++

	ev, err := events.New(race.ID, events.TypeRaceStarted, race.Version, now, events.RaceStartedPayload{
		Status:    race.Status,
		StartedAt: *race.StartedAt,
		Forced:    forced,
	}, meta)
	if err != nil {
		return nil, err
	}
	return &Changeset{Events: []events.Envelope{ev}}, nil
}

// CancelRace cancels a race that has not completed. Only the host may cancel.
// Cancelling a cancelled race succeeds without changes.
func (a *App) CancelRace(ctx context.Context, caller Caller, raceID uuid.UUID) (*models.RaceSession, error) {
	race, err := a.mutate(ctx, raceID, func(race *models.RaceSession) (*Changeset, error) {
		p, ok := a.resolveParticipant(race, caller)
		if !ok || !a.isHost(race, p) {
			return nil, fmt.Errorf("only the host may cancel: %w", ErrForbidden)
		}
		if race.Status == models.RaceStatusCancelled {
			return nil, nil
		}
		if race.Status == models.RaceStatusCompleted {
			return nil, fmt.Errorf("race already completed: %w", ErrForbidden)
		}

		now := a.now()
		if err := transition(race, models.RaceStatusCancelled, now); err != nil {
			return nil, err
		}
		race.Version++

		ev, err := events.New(race.ID, events.TypeRaceCancelled, race.Version, now, events.RaceCancelledPayload{
			Status:      race.Status,
			CancelledAt: now,
		}, actor(p))
		if err != nil {
			return nil, err
		}
		return &Changeset{Events: []events.Envelope{ev}}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("race_id", race.ID.String()).Msg("cancelled race")
	return race, nil
}

// RecordCompletion resolves the caller's current slot as completed or skipped.
func (a *App) RecordCompletion(ctx context.Context, caller Caller, req RecordCompletionRequest) (*CompletionResult, error) {
	if caller.Anonymous() {
		return nil, fmt.Errorf("recording a completion requires a caller: %w", ErrUnauthenticated)
	}
	if req.ElapsedSeconds < 0 {
		return nil, fmt.Errorf("elapsed seconds cannot be negative: %w", ErrInvalidArgument)
	}

	var result CompletionResult
	race, err := a.mutate(ctx, req.RaceID, func(race *models.RaceSession) (*Changeset, error) {
		p, ok := a.resolveParticipant(race, caller)
		if !ok {
			return nil, fmt.Errorf("caller holds no seat: %w", ErrForbidden)
		}
		// A finished participant retrying is OutOfOrder whatever the race status.
		if p.Finished() {
			return nil, fmt.Errorf("participant %s already finished: %w", p.ID, ErrOutOfOrder)
		}
		if race.Status != models.RaceStatusActive {
			return nil, fmt.Errorf("cannot record a completion in a %s race: %w", race.Status, ErrNotReady)
		}
		if !slices.ContainsFunc(race.Slots, func(s models.RaceGameSlot) bool { return s.ID == req.SlotID }) {
			return nil, fmt.Errorf("slot %s: %w", req.SlotID, ErrNotFound)
		}

		current, prev, remaining := progress(race, p.ID)
		if current == nil || current.ID != req.SlotID {
			return nil, fmt.Errorf("slot %s is not the current slot: %w", req.SlotID, ErrOutOfOrder)
		}

		now := a.now()
		elapsed, err := a.checkElapsed(race, p, req.ElapsedSeconds, prev, now)
		if err != nil {
			return nil, err
		}

		completion := models.Completion{
			ID:             uuid.New(),
			RaceID:         race.ID,
			SlotID:         current.ID,
			ParticipantID:  p.ID,
			CompletedAt:    now,
			TimeToComplete: elapsed,
			Skipped:        req.Skipped,
		}
		race.Completions = append(race.Completions, completion)
		changes := &Changeset{AddedCompletions: []models.Completion{completion}}

		finished := remaining == 1
		if finished {
			total := elapsed
			for i := range race.Participants {
				if race.Participants[i].ID == p.ID {
					race.Participants[i].FinishedAt = &now
					race.Participants[i].TotalTime = &total
					changes.FinishedParticipants = append(changes.FinishedParticipants, race.Participants[i])
				}
			}
		}
		if err := settleCompletion(race, now); err != nil {
			return nil, err
		}
		race.Version++

		ev, err := events.New(race.ID, events.TypeGameCompleted, race.Version, now, events.GameCompletedPayload{
			ParticipantID:       p.ID,
			SlotID:              current.ID,
			ElapsedSeconds:      elapsed,
			Skipped:             req.Skipped,
			ParticipantFinished: finished,
			Status:              race.Status,
			CompletedAt:         race.CompletedAt,
		}, actor(p))
		if err != nil {
			return nil, err
		}
		changes.Events = []events.Envelope{ev}

		result = CompletionResult{Completion: completion, ParticipantFinished: finished}
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	result.Race = race

	log.Info().
		Str("race_id", race.ID.String()).
		Str("participant_id", result.Completion.ParticipantID.String()).
		Str("slot_id", result.Completion.SlotID.String()).
		Int("elapsed", result.Completion.TimeToComplete).
		Bool("skipped", result.Completion.Skipped).
		Str("status", string(race.Status)).
		Msg("recorded completion")
	return &result, nil
}

// checkElapsed validates a reported cumulative time and clamps it to what the
// server clock allows since the race started.
func (a *App) checkElapsed(race *models.RaceSession, p models.Participant, reported, prev int, now time.Time) (int, error) {
	if reported < prev {
		return 0, fmt.Errorf("elapsed %ds is before the previous completion at %ds: %w", reported, prev, ErrInvalidArgument)
	}
	bound := int(now.Sub(*race.StartedAt)/time.Second) + int(a.cfg.ElapsedTolerance/time.Second)
	if bound < prev {
		bound = prev
	}
	if reported > bound {
		log.Warn().
			Str("race_id", race.ID.String()).
			Str("participant_id", p.ID.String()).
			Int("reported", reported).
			Int("clamped", bound).
			Msg("clamped reported elapsed time")
		return bound, nil
	}
	return reported, nil
}

// progress returns the participant's current slot (nil when every slot is
// resolved), the elapsed time of their last completion and the number of
// unresolved slots.
func progress(race *models.RaceSession, participantID uuid.UUID) (*models.RaceGameSlot, int, int) {
	done := make(map[uuid.UUID]int)
	for _, c := range race.Completions {
		if c.ParticipantID == participantID {
			done[c.SlotID] = c.TimeToComplete
		}
	}

	var current *models.RaceGameSlot
	prev, remaining := 0, 0
	for i := range race.Slots {
		s := &race.Slots[i]
		if elapsed, ok := done[s.ID]; ok {
			if elapsed > prev {
				prev = elapsed
			}
			continue
		}
		remaining++
		if current == nil || s.Order < current.Order {
			current = s
		}
	}
	return current, prev, remaining
}

// GetRace returns the latest snapshot of a race.
func (a *App) GetRace(ctx context.Context, id uuid.UUID) (*models.RaceSession, error) {
	race, err := a.store.GetRace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	return race, nil
}

// GetRaceView returns a race with its standings as seen by caller.
func (a *App) GetRaceView(ctx context.Context, caller Caller, id uuid.UUID) (*RaceView, error) {
	race, err := a.GetRace(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &RaceView{Race: race, Standings: StandingsFor(race)}
	if p, ok := a.resolveParticipant(race, caller); ok {
		viewer := p.ID
		view.Viewer = &viewer
		view.Victory = view.Standings.IsVictory(viewer)
	}
	return view, nil
}

// IsHost reports whether the participant is the host of the race.
func (a *App) IsHost(race *models.RaceSession, participantID uuid.UUID) bool {
	for _, p := range race.Participants {
		if p.ID == participantID {
			return a.isHost(race, p)
		}
	}
	return false
}

// mutate wraps Store.MutateRace and refuses to commit a race that breaks its invariants.
func (a *App) mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.RaceSession, error) {
	race, err := a.store.MutateRace(ctx, id, func(race *models.RaceSession) (*Changeset, error) {
		changes, err := fn(race)
		if err != nil || changes == nil {
			return changes, err
		}
		if err := checkInvariants(race); err != nil {
			return nil, fmt.Errorf("refusing to commit race %s: %w", id, err)
		}
		return changes, nil
	})
	if err != nil {
		if kind := ErrorKind(err); kind != "" {
			log.Debug().Str("race_id", id.String()).Str("kind", kind).Err(err).Msg("rejected race operation")
		}
		return nil, err
	}
	return race, nil
}

// resolveParticipant finds the caller's seat. A user id match wins over a guest token match.
func (a *App) resolveParticipant(race *models.RaceSession, caller Caller) (models.Participant, bool) {
	if caller.UserID != "" {
		for _, p := range race.Participants {
			if p.UserID() == caller.UserID {
				return p, true
			}
		}
	}
	if caller.GuestToken != "" {
		for _, p := range race.Participants {
			if g, ok := p.Identity.(models.Guest); ok && a.tokens.Matches(g.TokenHash, caller.GuestToken) {
				return p, true
			}
		}
	}
	return models.Participant{}, false
}

// isHost reports whether p is the creator of the race, or for guest-created
// races the earliest seated guest.
func (a *App) isHost(race *models.RaceSession, p models.Participant) bool {
	if race.CreatorUserID != nil {
		return p.UserID() == *race.CreatorUserID
	}
	for _, q := range race.Participants {
		if q.IsGuest() {
			return q.ID == p.ID
		}
	}
	return false
}

func (a *App) newIdentity(caller Caller, guestName string) (models.ParticipantIdentity, string, error) {
	if caller.UserID != "" {
		return models.Member{UserID: caller.UserID}, "", nil
	}
	name := strings.TrimSpace(guestName)
	if name == "" {
		return nil, "", fmt.Errorf("guest_name is required when not signed in: %w", ErrInvalidArgument)
	}
	if len(name) > a.cfg.MaxNameLength {
		return nil, "", fmt.Errorf("guest_name exceeds %d characters: %w", a.cfg.MaxNameLength, ErrInvalidArgument)
	}
	token, hash, err := a.tokens.Issue()
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue guest token: %w", err)
	}
	return models.Guest{DisplayName: name, TokenHash: hash}, token, nil
}

func (a *App) validateCreateRaceRequest(req CreateRaceRequest) (string, []string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", nil, fmt.Errorf("name is required: %w", ErrInvalidArgument)
	}
	if len(name) > a.cfg.MaxNameLength {
		return "", nil, fmt.Errorf("name exceeds %d characters: %w", a.cfg.MaxNameLength, ErrInvalidArgument)
	}
	if len(req.GameIDs) == 0 {
		return "", nil, fmt.Errorf("at least one game is required: %w", ErrInvalidArgument)
	}
	if len(req.GameIDs) > a.cfg.MaxGames {
		return "", nil, fmt.Errorf("at most %d games are allowed: %w", a.cfg.MaxGames, ErrInvalidArgument)
	}
	gameIDs := make([]string, len(req.GameIDs))
	for i, g := range req.GameIDs {
		gameIDs[i] = strings.TrimSpace(g)
		if gameIDs[i] == "" {
			return "", nil, fmt.Errorf("game %d has an empty id: %w", i, ErrInvalidArgument)
		}
	}
	return name, gameIDs, nil
}

func (a *App) checkCatalog(ctx context.Context, gameIDs []string) error {
	if a.catalog == nil {
		return nil
	}
	known, err := a.catalog.KnownGames(ctx, gameIDs)
	if err != nil {
		return fmt.Errorf("failed to look up games: %w", err)
	}
	for _, id := range gameIDs {
		if !known[id] {
			return fmt.Errorf("game %q is not in the catalog: %w", id, ErrInvalidArgument)
		}
	}
	return nil
}

func (a *App) now() time.Time {
	return a.clock.Now().UTC()
}

// newParticipant seats identity. Participant ids are UUIDv7, so they sort by join time.
func newParticipant(raceID uuid.UUID, identity models.ParticipantIdentity, now time.Time) models.Participant {
	return models.Participant{
		ID:       uuid.Must(uuid.NewV7()),
		RaceID:   raceID,
		Identity: identity,
		JoinedAt: now,
	}
}

func actor(p models.Participant) *events.Metadata {
	id := p.ID
	return &events.Metadata{ParticipantID: &id, UserID: p.UserID()}
}
