package race

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/auth"
	"github.com/mcdev12/dailies/go/internal/models"
	"github.com/mcdev12/dailies/go/internal/race/racev1"
	"github.com/rs/zerolog/log"
)

// ErrorKindHeader names the rejection kind on error responses.
const ErrorKindHeader = "Race-Error"

// RaceApp defines what the service layer needs from the race application
type RaceApp interface {
	CreateRace(ctx context.Context, caller Caller, req CreateRaceRequest) (*SeatResult, error)
	JoinRace(ctx context.Context, caller Caller, req JoinRaceRequest) (*SeatResult, error)
	LeaveRace(ctx context.Context, caller Caller, raceID uuid.UUID) (*models.RaceSession, error)
	ReorderGames(ctx context.Context, caller Caller, req ReorderGamesRequest) (*models.RaceSession, error)
	StartRace(ctx context.Context, caller Caller, raceID uuid.UUID) (*models.RaceSession, error)
	ForceStartRace(ctx context.Context, raceID uuid.UUID) (*models.RaceSession, error)
	CancelRace(ctx context.Context, caller Caller, raceID uuid.UUID) (*models.RaceSession, error)
	RecordCompletion(ctx context.Context, caller Caller, req RecordCompletionRequest) (*CompletionResult, error)
	GetRaceView(ctx context.Context, caller Caller, id uuid.UUID) (*RaceView, error)
	IsHost(race *models.RaceSession, participantID uuid.UUID) bool
}

// Service implements the RaceService connect interface
type Service struct {
	app RaceApp
}

// NewService creates a new race connect service
func NewService(app RaceApp) *Service {
	return &Service{app: app}
}

// Verify that Service implements the RaceServiceHandler interface
var _ racev1.RaceServiceHandler = (*Service)(nil)

// CreateRace creates a race and seats the caller
func (s *Service) CreateRace(ctx context.Context, req *connect.Request[racev1.CreateRaceRequest]) (*connect.Response[racev1.CreateRaceResponse], error) {
	result, err := s.app.CreateRace(ctx, callerFromContext(ctx), CreateRaceRequest{
		Name:      req.Msg.Name,
		GameIDs:   req.Msg.GameIds,
		GuestName: req.Msg.GuestName,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&racev1.CreateRaceResponse{
		Race:          s.raceToProto(result.Race),
		ParticipantId: result.Participant.ID.String(),
		GuestToken:    result.GuestToken,
	}), nil
}

// JoinRace seats the caller in a race
func (s *Service) JoinRace(ctx context.Context, req *connect.Request[racev1.JoinRaceRequest]) (*connect.Response[racev1.JoinRaceResponse], error) {
	raceID, err := parseID("race_id", req.Msg.RaceId)
	if err != nil {
		return nil, toConnectError(err)
	}
	result, err := s.app.JoinRace(ctx, callerFromContext(ctx), JoinRaceRequest{
		RaceID:    raceID,
		GuestName: req.Msg.GuestName,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&racev1.JoinRaceResponse{
		Race:          s.raceToProto(result.Race),
		ParticipantId: result.Participant.ID.String(),
		GuestToken:    result.GuestToken,
	}), nil
}

// LeaveRace gives up the caller's seat
func (s *Service) LeaveRace(ctx context.Context, req *connect.Request[racev1.LeaveRaceRequest]) (*connect.Response[racev1.LeaveRaceResponse], error) {
	raceID, err := parseID("race_id", req.Msg.RaceId)
	if err != nil {
		return nil, toConnectError(err)
	}
	race, err := s.app.LeaveRace(ctx, callerFromContext(ctx), raceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&racev1.LeaveRaceResponse{Race: s.raceToProto(race)}), nil
}

// ReorderGames rewrites the game order of a race
func (s *Service) ReorderGames(ctx context.Context, req *connect.Request[racev1.ReorderGamesRequest]) (*connect.Response[racev1.ReorderGamesResponse], error) {
	raceID, err := parseID("race_id", req.Msg.RaceId)
	if err != nil {
		return nil, toConnectError(err)
	}
	slotIDs := make([]uuid.UUID, 0, len(req.Msg.SlotIds))
	for _, raw := range req.Msg.SlotIds {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, toConnectError(fmt.Errorf("slot id %q is not a uuid: %w", raw, ErrInvalidSequence))
		}
		slotIDs = append(slotIDs, id)
	}

	race, err := s.app.ReorderGames(ctx, callerFromContext(ctx), ReorderGamesRequest{RaceID: raceID, SlotIDs: slotIDs})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&racev1.ReorderGamesResponse{Race: s.raceToProto(race)}), nil
}

// StartRace starts a ready race
func (s *Service) StartRace(ctx context.Context, req *connect.Request[racev1.StartRaceRequest]) (*connect.Response[racev1.StartRaceResponse], error) {
	raceID, err := parseID("race_id", req.Msg.RaceId)
	if err != nil {
		return nil, toConnectError(err)
	}
	race, err := s.app.StartRace(ctx, callerFromContext(ctx), raceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&racev1.StartRaceResponse{Race: s.raceToProto(race)}), nil
}

// ForceStartRace starts a race before it is full. Admin only.
func (s *Service) ForceStartRace(ctx context.Context, req *connect.Request[racev1.ForceStartRaceRequest]) (*connect.Response[racev1.ForceStartRaceResponse], error) {
	id := auth.IdentityFromContext(ctx)
	if id.UserID == "" {
		return nil, toConnectError(fmt.Errorf("force start requires a signed in admin: %w", ErrUnauthenticated))
	}
	if !id.IsAdmin() {
		return nil, toConnectError(fmt.Errorf("user %s is not an admin: %w", id.UserID, ErrForbidden))
	}

	raceID, err := parseID("race_id", req.Msg.RaceId)
	if err != nil {
		return nil, toConnectError(err)
	}
	race, err := s.app.ForceStartRace(ctx, raceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	log.Info().Str("race_id", raceID.String()).Str("user_id", id.UserID).Msg("admin force started race")
	return connect.NewResponse(&racev1.ForceStartRaceResponse{Race: s.raceToProto(race)}), nil
}

// CancelRace cancels a race
func (s *Service) CancelRace(ctx context.Context, req *connect.Request[racev1.CancelRaceRequest]) (*connect.Response[racev1.CancelRaceResponse], error) {
	raceID, err := parseID("race_id", req.Msg.RaceId)
	if err != nil {
		return nil, toConnectError(err)
	}
	race, err := s.app.CancelRace(ctx, callerFromContext(ctx), raceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&racev1.CancelRaceResponse{Race: s.raceToProto(race)}), nil
}

// RecordCompletion records the caller finishing or skipping their current game
func (s *Service) RecordCompletion(ctx context.Context, req *connect.Request[racev1.RecordCompletionRequest]) (*connect.Response[racev1.RecordCompletionResponse], error) {
	raceID, err := parseID("race_id", req.Msg.RaceId)
	if err != nil {
		return nil, toConnectError(err)
	}
	slotID, err := parseID("slot_id", req.Msg.SlotId)
	if err != nil {
		return nil, toConnectError(err)
	}

	result, err := s.app.RecordCompletion(ctx, callerFromContext(ctx), RecordCompletionRequest{
		RaceID:         raceID,
		SlotID:         slotID,
		Skipped:        req.Msg.Skipped,
		ElapsedSeconds: int(req.Msg.ElapsedSeconds),
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&racev1.RecordCompletionResponse{
		Race:                s.raceToProto(result.Race),
		Completion:          completionToProto(result.Completion),
		ParticipantFinished: result.ParticipantFinished,
	}), nil
}

// GetRace returns the full race snapshot with standings
func (s *Service) GetRace(ctx context.Context, req *connect.Request[racev1.GetRaceRequest]) (*connect.Response[racev1.GetRaceResponse], error) {
	raceID, err := parseID("race_id", req.Msg.RaceId)
	if err != nil {
		return nil, toConnectError(err)
	}
	resp, err := s.Snapshot(ctx, raceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

// Snapshot returns the race and standings as seen by the caller stored in ctx.
func (s *Service) Snapshot(ctx context.Context, raceID uuid.UUID) (*racev1.GetRaceResponse, error) {
	view, err := s.app.GetRaceView(ctx, callerFromContext(ctx), raceID)
	if err != nil {
		return nil, err
	}
	return &racev1.GetRaceResponse{
		Race:      s.raceToProto(view.Race),
		Standings: standingsToProto(view),
	}, nil
}

func callerFromContext(ctx context.Context) Caller {
	id := auth.IdentityFromContext(ctx)
	return Caller{UserID: id.UserID, GuestToken: id.GuestToken}
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s %q is not a uuid: %w", field, raw, ErrInvalidArgument)
	}
	return id, nil
}

// toConnectError maps rejections onto connect codes and names the kind in the
// Race-Error header. Anything else is an internal error.
func toConnectError(err error) error {
	kind := ErrorKind(err)
	code := connect.CodeInternal
	switch kind {
	case "SessionFull":
		code = connect.CodeResourceExhausted
	case "AlreadyJoined":
		code = connect.CodeAlreadyExists
	case "Forbidden":
		code = connect.CodePermissionDenied
	case "InvalidSequence", "InvalidArgument":
		code = connect.CodeInvalidArgument
	case "NotReady":
		code = connect.CodeFailedPrecondition
	case "OutOfOrder":
		code = connect.CodeOutOfRange
	case "NotFound":
		code = connect.CodeNotFound
	case "Unauthenticated":
		code = connect.CodeUnauthenticated
	default:
		log.Error().Err(err).Msg("race operation failed")
	}

	connectErr := connect.NewError(code, err)
	if kind != "" {
		connectErr.Meta().Set(ErrorKindHeader, kind)
	}
	return connectErr
}

func (s *Service) raceToProto(race *models.RaceSession) *racev1.Race {
	out := &racev1.Race{
		Id:           race.ID.String(),
		Name:         race.Name,
		Status:       string(race.Status),
		Version:      race.Version,
		CreatedAt:    race.CreatedAt,
		StartedAt:    race.StartedAt,
		CompletedAt:  race.CompletedAt,
		Slots:        make([]*racev1.Slot, 0, len(race.Slots)),
		Participants: make([]*racev1.Participant, 0, len(race.Participants)),
		Completions:  make([]*racev1.Completion, 0, len(race.Completions)),
	}
	if race.CreatorUserID != nil {
		out.CreatorUserId = *race.CreatorUserID
	}
	for _, slot := range race.Slots {
		out.Slots = append(out.Slots, &racev1.Slot{
			Id:     slot.ID.String(),
			GameId: slot.GameID,
			Order:  int32(slot.Order),
		})
	}
	for _, p := range race.Participants {
		pp := &racev1.Participant{
			Id:         p.ID.String(),
			IsHost:     s.app.IsHost(race, p.ID),
			JoinedAt:   p.JoinedAt,
			FinishedAt: p.FinishedAt,
			TotalTime:  int32Ptr(p.TotalTime),
		}
		switch id := p.Identity.(type) {
		case models.Member:
			pp.UserId = id.UserID
		case models.Guest:
			pp.GuestName = id.DisplayName
		}
		out.Participants = append(out.Participants, pp)
	}
	for _, c := range race.Completions {
		out.Completions = append(out.Completions, completionToProto(c))
	}
	return out
}

func completionToProto(c models.Completion) *racev1.Completion {
	return &racev1.Completion{
		Id:             c.ID.String(),
		SlotId:         c.SlotID.String(),
		ParticipantId:  c.ParticipantID.String(),
		CompletedAt:    c.CompletedAt,
		TimeToComplete: int32(c.TimeToComplete),
		Skipped:        c.Skipped,
	}
}

func standingsToProto(view *RaceView) *racev1.Standings {
	out := &racev1.Standings{
		Rankings: make([]*racev1.Ranking, 0, len(view.Standings.Rankings)),
		Victory:  view.Victory,
	}
	if view.Standings.Winner != nil {
		out.WinnerParticipantId = view.Standings.Winner.String()
	}
	if view.Viewer != nil {
		out.ViewerParticipantId = view.Viewer.String()
	}
	for _, st := range view.Standings.Rankings {
		r := &racev1.Ranking{
			ParticipantId: st.ParticipantID.String(),
			Rank:          int32(st.Rank),
			Solved:        int32(st.Solved),
			Skipped:       int32(st.Skipped),
			TotalTime:     int32Ptr(st.TotalTime),
			Finished:      st.Finished,
			Splits:        make([]*racev1.Split, 0, len(st.Splits)),
		}
		for _, sp := range st.Splits {
			r.Splits = append(r.Splits, &racev1.Split{
				SlotId:   sp.SlotID.String(),
				Order:    int32(sp.Order),
				Elapsed:  int32Ptr(sp.Elapsed),
				Duration: int32Ptr(sp.Duration),
				Skipped:  sp.Skipped,
				Fastest:  sp.Fastest,
			})
		}
		out.Rankings = append(out.Rankings, r)
	}
	return out
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	i := int32(*v)
	return &i
}
