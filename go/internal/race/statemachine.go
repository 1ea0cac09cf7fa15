package race

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/models"
)

var allowedTransitions = map[models.RaceStatus][]models.RaceStatus{
	models.RaceStatusWaiting:   {models.RaceStatusReady, models.RaceStatusActive, models.RaceStatusCancelled},
	models.RaceStatusReady:     {models.RaceStatusWaiting, models.RaceStatusActive, models.RaceStatusCancelled},
	models.RaceStatusActive:    {models.RaceStatusCompleted, models.RaceStatusCancelled},
	models.RaceStatusCompleted: {}, // terminal
	models.RaceStatusCancelled: {}, // terminal
}

// validateStatusTransition validates if a status transition is allowed.
// WAITING -> ACTIVE is only reachable through a forced start.
func validateStatusTransition(currentStatus, newStatus models.RaceStatus) error {
	allowedNext, exists := allowedTransitions[currentStatus]
	if !exists {
		return fmt.Errorf("unknown current status: %s", currentStatus)
	}
	if slices.Contains(allowedNext, newStatus) {
		return nil
	}
	return fmt.Errorf("transition from %s to %s is not allowed", currentStatus, newStatus)
}

// transition moves the race to next and stamps the matching timestamp.
func transition(r *models.RaceSession, next models.RaceStatus, now time.Time) error {
	if err := validateStatusTransition(r.Status, next); err != nil {
		return err
	}
	r.Status = next
	switch next {
	case models.RaceStatusActive:
		r.StartedAt = &now
	case models.RaceStatusCompleted:
		r.CompletedAt = &now
	}
	return nil
}

// settleSeats applies the seat-driven transitions between WAITING and READY.
func settleSeats(r *models.RaceSession, now time.Time) error {
	switch {
	case r.Status == models.RaceStatusWaiting && len(r.Participants) == models.MaxParticipants:
		return transition(r, models.RaceStatusReady, now)
	case r.Status == models.RaceStatusReady && len(r.Participants) < models.MaxParticipants:
		return transition(r, models.RaceStatusWaiting, now)
	}
	return nil
}

// settleCompletion completes an active race once every seated participant has finished.
func settleCompletion(r *models.RaceSession, now time.Time) error {
	if r.Status != models.RaceStatusActive || !allFinished(r) {
		return nil
	}
	return transition(r, models.RaceStatusCompleted, now)
}

func allFinished(r *models.RaceSession) bool {
	if len(r.Participants) == 0 {
		return false
	}
	for _, p := range r.Participants {
		if !p.Finished() {
			return false
		}
	}
	return true
}

// checkInvariants verifies the structural rules of a race snapshot.
func checkInvariants(r *models.RaceSession) error {
	if len(r.Participants) > models.MaxParticipants {
		return fmt.Errorf("race has %d participants, max is %d", len(r.Participants), models.MaxParticipants)
	}

	switch r.Status {
	case models.RaceStatusWaiting, models.RaceStatusReady:
		if r.StartedAt != nil || r.CompletedAt != nil {
			return fmt.Errorf("%s race must not have start or completion time", r.Status)
		}
		if len(r.Completions) > 0 {
			return fmt.Errorf("%s race must not have completions", r.Status)
		}
		full := len(r.Participants) == models.MaxParticipants
		if full != (r.Status == models.RaceStatusReady) {
			return fmt.Errorf("%s race has %d participants", r.Status, len(r.Participants))
		}
	case models.RaceStatusActive:
		if r.StartedAt == nil || r.CompletedAt != nil {
			return fmt.Errorf("active race must have a start time and no completion time")
		}
		if allFinished(r) {
			return fmt.Errorf("active race has every participant finished")
		}
	case models.RaceStatusCompleted:
		if r.StartedAt == nil || r.CompletedAt == nil {
			return fmt.Errorf("completed race must have start and completion time")
		}
		if r.CompletedAt.Before(*r.StartedAt) {
			return fmt.Errorf("race completed before it started")
		}
		if !allFinished(r) {
			return fmt.Errorf("completed race has unfinished participants")
		}
	case models.RaceStatusCancelled:
		if r.CompletedAt != nil {
			return fmt.Errorf("cancelled race must not have a completion time")
		}
	default:
		return fmt.Errorf("unknown status: %s", r.Status)
	}

	for i, s := range r.Slots {
		if s.Order != i {
			return fmt.Errorf("slot %s has order %d at position %d", s.ID, s.Order, i)
		}
	}

	for _, p := range r.Participants {
		if err := checkParticipantProgress(r, p); err != nil {
			return err
		}
	}
	return nil
}

// checkParticipantProgress verifies a participant's completions cover a prefix
// of the slot order with non-decreasing elapsed times.
func checkParticipantProgress(r *models.RaceSession, p models.Participant) error {
	bySlot := make(map[uuid.UUID]models.Completion)
	for _, c := range r.Completions {
		if c.ParticipantID != p.ID {
			continue
		}
		if _, dup := bySlot[c.SlotID]; dup {
			return fmt.Errorf("participant %s completed slot %s twice", p.ID, c.SlotID)
		}
		bySlot[c.SlotID] = c
	}

	prev := 0
	resolved := 0
	for _, s := range r.Slots {
		c, ok := bySlot[s.ID]
		if !ok {
			break
		}
		if c.TimeToComplete < prev {
			return fmt.Errorf("participant %s elapsed time decreased at slot %d", p.ID, s.Order)
		}
		prev = c.TimeToComplete
		resolved++
	}
	if resolved != len(bySlot) {
		return fmt.Errorf("participant %s completions are not a prefix of the slot order", p.ID)
	}

	finished := resolved == len(r.Slots)
	if finished != p.Finished() {
		return fmt.Errorf("participant %s resolved %d of %d slots but finished=%t", p.ID, resolved, len(r.Slots), p.Finished())
	}
	if p.Finished() && (p.TotalTime == nil || *p.TotalTime != prev) {
		return fmt.Errorf("participant %s total time does not match last completion", p.ID)
	}
	return nil
}
