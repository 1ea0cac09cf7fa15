package race

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStatusTransition(t *testing.T) {
	tests := []struct {
		from, to models.RaceStatus
		ok       bool
	}{
		{models.RaceStatusWaiting, models.RaceStatusReady, true},
		{models.RaceStatusReady, models.RaceStatusWaiting, true},
		{models.RaceStatusReady, models.RaceStatusActive, true},
		{models.RaceStatusWaiting, models.RaceStatusActive, true},
		{models.RaceStatusActive, models.RaceStatusCompleted, true},
		{models.RaceStatusActive, models.RaceStatusCancelled, true},
		{models.RaceStatusReady, models.RaceStatusCancelled, true},
		{models.RaceStatusActive, models.RaceStatusReady, false},
		{models.RaceStatusActive, models.RaceStatusWaiting, false},
		{models.RaceStatusWaiting, models.RaceStatusCompleted, false},
		{models.RaceStatusCompleted, models.RaceStatusCancelled, false},
		{models.RaceStatusCancelled, models.RaceStatusWaiting, false},
		{models.RaceStatus("BOGUS"), models.RaceStatusReady, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := validateStatusTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTransition_StampsTimes(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &models.RaceSession{Status: models.RaceStatusReady}

	require.NoError(t, transition(r, models.RaceStatusActive, now))
	require.NotNil(t, r.StartedAt)
	assert.Equal(t, now, *r.StartedAt)
	assert.Nil(t, r.CompletedAt)

	later := now.Add(time.Minute)
	require.NoError(t, transition(r, models.RaceStatusCompleted, later))
	assert.Equal(t, later, *r.CompletedAt)
	assert.Equal(t, now, *r.StartedAt)

	assert.Error(t, transition(r, models.RaceStatusActive, later))
	assert.Equal(t, models.RaceStatusCompleted, r.Status)
}

func TestSettleSeats(t *testing.T) {
	now := time.Now()
	r := &models.RaceSession{Status: models.RaceStatusWaiting, Participants: make([]models.Participant, 1)}

	require.NoError(t, settleSeats(r, now))
	assert.Equal(t, models.RaceStatusWaiting, r.Status)

	r.Participants = make([]models.Participant, 2)
	require.NoError(t, settleSeats(r, now))
	assert.Equal(t, models.RaceStatusReady, r.Status)

	r.Participants = r.Participants[:1]
	require.NoError(t, settleSeats(r, now))
	assert.Equal(t, models.RaceStatusWaiting, r.Status)
}

func TestCheckInvariants(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	slot0 := models.RaceGameSlot{ID: uuid.New(), Order: 0}
	slot1 := models.RaceGameSlot{ID: uuid.New(), Order: 1}
	pid := uuid.New()

	valid := func() *models.RaceSession {
		started := start
		return &models.RaceSession{
			Status:    models.RaceStatusActive,
			StartedAt: &started,
			Slots:     []models.RaceGameSlot{slot0, slot1},
			Participants: []models.Participant{
				{ID: pid, Identity: models.Member{UserID: "a"}},
				{ID: uuid.New(), Identity: models.Member{UserID: "b"}},
			},
			Completions: []models.Completion{
				{ID: uuid.New(), SlotID: slot0.ID, ParticipantID: pid, TimeToComplete: 30},
			},
		}
	}
	require.NoError(t, checkInvariants(valid()))

	tests := map[string]func(r *models.RaceSession){
		"skips a slot": func(r *models.RaceSession) {
			r.Completions[0].SlotID = slot1.ID
		},
		"duplicate completion": func(r *models.RaceSession) {
			r.Completions = append(r.Completions, r.Completions[0])
		},
		"elapsed decreases": func(r *models.RaceSession) {
			r.Completions = append(r.Completions, models.Completion{SlotID: slot1.ID, ParticipantID: pid, TimeToComplete: 10})
			total := 10
			r.Participants[0].FinishedAt = &start
			r.Participants[0].TotalTime = &total
		},
		"finished without resolving every slot": func(r *models.RaceSession) {
			total := 30
			r.Participants[0].FinishedAt = &start
			r.Participants[0].TotalTime = &total
		},
		"completed with unfinished participants": func(r *models.RaceSession) {
			r.Status = models.RaceStatusCompleted
			end := start.Add(time.Hour)
			r.CompletedAt = &end
		},
		"active without start time": func(r *models.RaceSession) {
			r.StartedAt = nil
		},
		"ready with one participant": func(r *models.RaceSession) {
			r.Status = models.RaceStatusReady
			r.StartedAt = nil
			r.Completions = nil
			r.Participants = r.Participants[:1]
		},
		"three participants": func(r *models.RaceSession) {
			r.Participants = append(r.Participants, models.Participant{ID: uuid.New()})
		},
		"gap in slot order": func(r *models.RaceSession) {
			r.Slots[1].Order = 2
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := valid()
			mutate(r)
			assert.Error(t, checkInvariants(r))
		})
	}
}
