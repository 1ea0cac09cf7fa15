// Package racev1 holds the wire messages of the dailies.race.v1.RaceService
// connect API. Messages are JSON encoded with camelCase field names.
//
// race.proto is the contract; keep these types and the procedure paths in
// service_connect.go in step with it.
package racev1

import "time"

type Race struct {
	Id            string         `json:"id"`
	Name          string         `json:"name"`
	CreatorUserId string         `json:"creatorUserId,omitempty"`
	Status        string         `json:"status"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"createdAt"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	Slots         []*Slot        `json:"slots"`
	Participants  []*Participant `json:"participants"`
	Completions   []*Completion  `json:"completions"`
}

type Slot struct {
	Id     string `json:"id"`
	GameId string `json:"gameId"`
	Order  int32  `json:"order"`
}

type Participant struct {
	Id         string     `json:"id"`
	UserId     string     `json:"userId,omitempty"`
	GuestName  string     `json:"guestName,omitempty"`
	IsHost     bool       `json:"isHost"`
	JoinedAt   time.Time  `json:"joinedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	TotalTime  *int32     `json:"totalTime,omitempty"`
}

type Completion struct {
	Id             string    `json:"id"`
	SlotId         string    `json:"slotId"`
	ParticipantId  string    `json:"participantId"`
	CompletedAt    time.Time `json:"completedAt"`
	TimeToComplete int32     `json:"timeToComplete"`
	Skipped        bool      `json:"skipped"`
}

type Split struct {
	SlotId   string `json:"slotId"`
	Order    int32  `json:"order"`
	Elapsed  *int32 `json:"elapsed,omitempty"`
	Duration *int32 `json:"duration,omitempty"`
	Skipped  bool   `json:"skipped"`
	Fastest  bool   `json:"fastest"`
}

type Ranking struct {
	ParticipantId string   `json:"participantId"`
	Rank          int32    `json:"rank"`
	Solved        int32    `json:"solved"`
	Skipped       int32    `json:"skipped"`
	TotalTime     *int32   `json:"totalTime,omitempty"`
	Finished      bool     `json:"finished"`
	Splits        []*Split `json:"splits"`
}

type Standings struct {
	Rankings            []*Ranking `json:"rankings"`
	WinnerParticipantId string     `json:"winnerParticipantId,omitempty"`
	ViewerParticipantId string     `json:"viewerParticipantId,omitempty"`
	Victory             bool       `json:"victory"`
}

type CreateRaceRequest struct {
	Name      string   `json:"name"`
	GameIds   []string `json:"gameIds"`
	GuestName string   `json:"guestName,omitempty"`
}

type CreateRaceResponse struct {
	Race          *Race  `json:"race"`
	ParticipantId string `json:"participantId"`
	GuestToken    string `json:"guestToken,omitempty"`
}

type JoinRaceRequest struct {
	RaceId    string `json:"raceId"`
	GuestName string `json:"guestName,omitempty"`
}

type JoinRaceResponse struct {
	Race          *Race  `json:"race"`
	ParticipantId string `json:"participantId"`
	GuestToken    string `json:"guestToken,omitempty"`
}

type LeaveRaceRequest struct {
	RaceId string `json:"raceId"`
}

type LeaveRaceResponse struct {
	Race *Race `json:"race"`
}

type ReorderGamesRequest struct {
	RaceId  string   `json:"raceId"`
	SlotIds []string `json:"slotIds"`
}

type ReorderGamesResponse struct {
	Race *Race `json:"race"`
}

type StartRaceRequest struct {
	RaceId string `json:"raceId"`
}

type StartRaceResponse struct {
	Race *Race `json:"race"`
}

type ForceStartRaceRequest struct {
	RaceId string `json:"raceId"`
}

type ForceStartRaceResponse struct {
	Race *Race `json:"race"`
}

type CancelRaceRequest struct {
	RaceId string `json:"raceId"`
}

type CancelRaceResponse struct {
	Race *Race `json:"race"`
}

type RecordCompletionRequest struct {
	RaceId         string `json:"raceId"`
	SlotId         string `json:"slotId"`
	Skipped        bool   `json:"skipped"`
	ElapsedSeconds int32  `json:"elapsedSeconds"`
}

type RecordCompletionResponse struct {
	Race                *Race       `json:"race"`
	Completion          *Completion `json:"completion"`
	ParticipantFinished bool        `json:"participantFinished"`
}

type GetRaceRequest struct {
	RaceId string `json:"raceId"`
}

type GetRaceResponse struct {
	Race      *Race      `json:"race"`
	Standings *Standings `json:"standings"`
}
