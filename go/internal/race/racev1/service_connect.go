package racev1

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// RaceServiceName is the fully-qualified name of the RaceService service.
const RaceServiceName = "dailies.race.v1.RaceService"

// Procedure paths of the RaceService methods.
const (
	RaceServiceCreateRaceProcedure       = "/dailies.race.v1.RaceService/CreateRace"
	RaceServiceJoinRaceProcedure         = "/dailies.race.v1.RaceService/JoinRace"
	RaceServiceLeaveRaceProcedure        = "/dailies.race.v1.RaceService/LeaveRace"
	RaceServiceReorderGamesProcedure     = "/dailies.race.v1.RaceService/ReorderGames"
	RaceServiceStartRaceProcedure        = "/dailies.race.v1.RaceService/StartRace"
	RaceServiceForceStartRaceProcedure   = "/dailies.race.v1.RaceService/ForceStartRace"
	RaceServiceCancelRaceProcedure       = "/dailies.race.v1.RaceService/CancelRace"
	RaceServiceRecordCompletionProcedure = "/dailies.race.v1.RaceService/RecordCompletion"
	RaceServiceGetRaceProcedure          = "/dailies.race.v1.RaceService/GetRace"
)

// RaceServiceHandler is implemented by the server side of the API.
type RaceServiceHandler interface {
	CreateRace(context.Context, *connect.Request[CreateRaceRequest]) (*connect.Response[CreateRaceResponse], error)
	JoinRace(context.Context, *connect.Request[JoinRaceRequest]) (*connect.Response[JoinRaceResponse], error)
	LeaveRace(context.Context, *connect.Request[LeaveRaceRequest]) (*connect.Response[LeaveRaceResponse], error)
	ReorderGames(context.Context, *connect.Request[ReorderGamesRequest]) (*connect.Response[ReorderGamesResponse], error)
	StartRace(context.Context, *connect.Request[StartRaceRequest]) (*connect.Response[StartRaceResponse], error)
	ForceStartRace(context.Context, *connect.Request[ForceStartRaceRequest]) (*connect.Response[ForceStartRaceResponse], error)
	CancelRace(context.Context, *connect.Request[CancelRaceRequest]) (*connect.Response[CancelRaceResponse], error)
	RecordCompletion(context.Context, *connect.Request[RecordCompletionRequest]) (*connect.Response[RecordCompletionResponse], error)
	GetRace(context.Context, *connect.Request[GetRaceRequest]) (*connect.Response[GetRaceResponse], error)
}

// NewRaceServiceHandler builds an HTTP handler for svc and returns the path to mount it on.
func NewRaceServiceHandler(svc RaceServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	handlers := map[string]http.Handler{
		RaceServiceCreateRaceProcedure:       connect.NewUnaryHandler(RaceServiceCreateRaceProcedure, svc.CreateRace, opts...),
		RaceServiceJoinRaceProcedure:         connect.NewUnaryHandler(RaceServiceJoinRaceProcedure, svc.JoinRace, opts...),
		RaceServiceLeaveRaceProcedure:        connect.NewUnaryHandler(RaceServiceLeaveRaceProcedure, svc.LeaveRace, opts...),
		RaceServiceReorderGamesProcedure:     connect.NewUnaryHandler(RaceServiceReorderGamesProcedure, svc.ReorderGames, opts...),
		RaceServiceStartRaceProcedure:        connect.NewUnaryHandler(RaceServiceStartRaceProcedure, svc.StartRace, opts...),
		RaceServiceForceStartRaceProcedure:   connect.NewUnaryHandler(RaceServiceForceStartRaceProcedure, svc.ForceStartRace, opts...),
		RaceServiceCancelRaceProcedure:       connect.NewUnaryHandler(RaceServiceCancelRaceProcedure, svc.CancelRace, opts...),
		RaceServiceRecordCompletionProcedure: connect.NewUnaryHandler(RaceServiceRecordCompletionProcedure, svc.RecordCompletion, opts...),
		RaceServiceGetRaceProcedure:          connect.NewUnaryHandler(RaceServiceGetRaceProcedure, svc.GetRace, opts...),
	}

	return "/" + RaceServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// RaceServiceClient is a client for the RaceService API.
type RaceServiceClient interface {
	CreateRace(context.Context, *connect.Request[CreateRaceRequest]) (*connect.Response[CreateRaceResponse], error)
	JoinRace(context.Context, *connect.Request[JoinRaceRequest]) (*connect.Response[JoinRaceResponse], error)
	LeaveRace(context.Context, *connect.Request[LeaveRaceRequest]) (*connect.Response[LeaveRaceResponse], error)
	ReorderGames(context.Context, *connect.Request[ReorderGamesRequest]) (*connect.Response[ReorderGamesResponse], error)
	StartRace(context.Context, *connect.Request[StartRaceRequest]) (*connect.Response[StartRaceResponse], error)
	ForceStartRace(context.Context, *connect.Request[ForceStartRaceRequest]) (*connect.Response[ForceStartRaceResponse], error)
	CancelRace(context.Context, *connect.Request[CancelRaceRequest]) (*connect.Response[CancelRaceResponse], error)
	RecordCompletion(context.Context, *connect.Request[RecordCompletionRequest]) (*connect.Response[RecordCompletionResponse], error)
	GetRace(context.Context, *connect.Request[GetRaceRequest]) (*connect.Response[GetRaceResponse], error)
}

// NewRaceServiceClient constructs a client for the RaceService served at baseURL.
func NewRaceServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) RaceServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &raceServiceClient{
		createRace:       connect.NewClient[CreateRaceRequest, CreateRaceResponse](httpClient, baseURL+RaceServiceCreateRaceProcedure, opts...),
		joinRace:         connect.NewClient[JoinRaceRequest, JoinRaceResponse](httpClient, baseURL+RaceServiceJoinRaceProcedure, opts...),
		leaveRace:        connect.NewClient[LeaveRaceRequest, LeaveRaceResponse](httpClient, baseURL+RaceServiceLeaveRaceProcedure, opts...),
		reorderGames:     connect.NewClient[ReorderGamesRequest, ReorderGamesResponse](httpClient, baseURL+RaceServiceReorderGamesProcedure, opts...),
		startRace:        connect.NewClient[StartRaceRequest, StartRaceResponse](httpClient, baseURL+RaceServiceStartRaceProcedure, opts...),
		forceStartRace:   connect.NewClient[ForceStartRaceRequest, ForceStartRaceResponse](httpClient, baseURL+RaceServiceForceStartRaceProcedure, opts...),
		cancelRace:       connect.NewClient[CancelRaceRequest, CancelRaceResponse](httpClient, baseURL+RaceServiceCancelRaceProcedure, opts...),
		recordCompletion: connect.NewClient[RecordCompletionRequest, RecordCompletionResponse](httpClient, baseURL+RaceServiceRecordCompletionProcedure, opts...),
		getRace:          connect.NewClient[GetRaceRequest, GetRaceResponse](httpClient, baseURL+RaceServiceGetRaceProcedure, opts...),
	}
}

type raceServiceClient struct {
	createRace       *connect.Client[CreateRaceRequest, CreateRaceResponse]
	joinRace         *connect.Client[JoinRaceRequest, JoinRaceResponse]
	leaveRace        *connect.Client[LeaveRaceRequest, LeaveRaceResponse]
	reorderGames     *connect.Client[ReorderGamesRequest, ReorderGamesResponse]
	startRace        *connect.Client[StartRaceRequest, StartRaceResponse]
	forceStartRace   *connect.Client[ForceStartRaceRequest, ForceStartRaceResponse]
	cancelRace       *connect.Client[CancelRaceRequest, CancelRaceResponse]
	recordCompletion *connect.Client[RecordCompletionRequest, RecordCompletionResponse]
	getRace          *connect.Client[GetRaceRequest, GetRaceResponse]
}

func (c *raceServiceClient) CreateRace(ctx context.Context, req *connect.Request[CreateRaceRequest]) (*connect.Response[CreateRaceResponse], error) {
	return c.createRace.CallUnary(ctx, req)
}

func (c *raceServiceClient) JoinRace(ctx context.Context, req *connect.Request[JoinRaceRequest]) (*connect.Response[JoinRaceResponse], error) {
	return c.joinRace.CallUnary(ctx, req)
}

func (c *raceServiceClient) LeaveRace(ctx context.Context, req *connect.Request[LeaveRaceRequest]) (*connect.Response[LeaveRaceResponse], error) {
	return c.leaveRace.CallUnary(ctx, req)
}

func (c *raceServiceClient) ReorderGames(ctx context.Context, req *connect.Request[ReorderGamesRequest]) (*connect.Response[ReorderGamesResponse], error) {
	return c.reorderGames.CallUnary(ctx, req)
}

func (c *raceServiceClient) StartRace(ctx context.Context, req *connect.Request[StartRaceRequest]) (*connect.Response[StartRaceResponse], error) {
	return c.startRace.CallUnary(ctx, req)
}

func (c *raceServiceClient) ForceStartRace(ctx context.Context, req *connect.Request[ForceStartRaceRequest]) (*connect.Response[ForceStartRaceResponse], error) {
	return c.forceStartRace.CallUnary(ctx, req)
}

func (c *raceServiceClient) CancelRace(ctx context.Context, req *connect.Request[CancelRaceRequest]) (*connect.Response[CancelRaceResponse], error) {
	return c.cancelRace.CallUnary(ctx, req)
}

func (c *raceServiceClient) RecordCompletion(ctx context.Context, req *connect.Request[RecordCompletionRequest]) (*connect.Response[RecordCompletionResponse], error) {
	return c.recordCompletion.CallUnary(ctx, req)
}

func (c *raceServiceClient) GetRace(ctx context.Context, req *connect.Request[GetRaceRequest]) (*connect.Response[GetRaceResponse], error) {
	return c.getRace.CallUnary(ctx, req)
}
