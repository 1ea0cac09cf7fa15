package race

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/models"
)

// Split is one participant's result for one slot.
type Split struct {
	SlotID   uuid.UUID `json:"slot_id"`
	Order    int       `json:"order"`
	Elapsed  *int      `json:"elapsed,omitempty"`  // cumulative seconds, nil until resolved
	Duration *int      `json:"duration,omitempty"` // seconds spent on this slot, nil until resolved
	Skipped  bool      `json:"skipped"`
	Fastest  bool      `json:"fastest"`
}

// Resolved reports whether the participant has completed or skipped the slot.
func (s Split) Resolved() bool {
	return s.Elapsed != nil
}

// Standing is one participant's position in a race.
type Standing struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Rank          int       `json:"rank"` // 0 is the leader
	Solved        int       `json:"solved"`
	Skipped       int       `json:"skipped"`
	TotalTime     *int      `json:"total_time,omitempty"`
	Finished      bool      `json:"finished"`
	Splits        []Split   `json:"splits"`
}

// Standings ranks every participant in a race.
type Standings struct {
	Rankings []Standing `json:"rankings"`
	Winner   *uuid.UUID `json:"winner,omitempty"`
}

// IsVictory reports whether participantID holds the top rank.
func (s Standings) IsVictory(participantID uuid.UUID) bool {
	return s.Winner != nil && *s.Winner == participantID
}

// Lookup returns the standing of a participant.
func (s Standings) Lookup(participantID uuid.UUID) (Standing, bool) {
	for _, st := range s.Rankings {
		if st.ParticipantID == participantID {
			return st, true
		}
	}
	return Standing{}, false
}

// ComputeSplits derives per-slot durations for one participant. The duration of
// the first slot is its elapsed time; later slots subtract the previous slot's
// elapsed time. Skipped slots still carry a duration.
func ComputeSplits(slots []models.RaceGameSlot, completions []models.Completion, participantID uuid.UUID) []Split {
	bySlot := make(map[uuid.UUID]models.Completion)
	for _, c := range completions {
		if c.ParticipantID == participantID {
			bySlot[c.SlotID] = c
		}
	}

	ordered := slices.Clone(slots)
	slices.SortFunc(ordered, func(a, b models.RaceGameSlot) int { return cmp.Compare(a.Order, b.Order) })

	splits := make([]Split, 0, len(ordered))
	prev := 0
	for _, slot := range ordered {
		split := Split{SlotID: slot.ID, Order: slot.Order}
		if c, ok := bySlot[slot.ID]; ok {
			elapsed := c.TimeToComplete
			duration := elapsed - prev
			split.Elapsed = &elapsed
			split.Duration = &duration
			split.Skipped = c.Skipped
			prev = elapsed
		}
		splits = append(splits, split)
	}
	return splits
}

// ComputeStandings ranks participants by solved count (desc), total time (asc,
// unfinished last) and participant id (asc). Participant ids are time ordered,
// so the final tie-break favors whoever joined first. Per slot, every
// participant tied at the shortest non-skipped duration is marked fastest.
func ComputeStandings(slots []models.RaceGameSlot, participants []models.Participant, completions []models.Completion) Standings {
	rankings := make([]Standing, 0, len(participants))
	for _, p := range participants {
		st := Standing{
			ParticipantID: p.ID,
			Splits:        ComputeSplits(slots, completions, p.ID),
		}
		for _, sp := range st.Splits {
			switch {
			case !sp.Resolved():
			case sp.Skipped:
				st.Skipped++
			default:
				st.Solved++
			}
		}
		if p.Finished() && p.TotalTime != nil {
			total := *p.TotalTime
			st.TotalTime = &total
			st.Finished = true
		}
		rankings = append(rankings, st)
	}

	markFastest(rankings)

	slices.SortFunc(rankings, compareStandings)
	for i := range rankings {
		rankings[i].Rank = i
	}

	out := Standings{Rankings: rankings}
	if len(rankings) > 0 {
		winner := rankings[0].ParticipantID
		out.Winner = &winner
	}
	return out
}

// StandingsFor ranks the participants of a race snapshot.
func StandingsFor(r *models.RaceSession) Standings {
	return ComputeStandings(r.Slots, r.Participants, r.Completions)
}

func compareStandings(a, b Standing) int {
	if c := cmp.Compare(b.Solved, a.Solved); c != 0 {
		return c
	}
	switch {
	case a.TotalTime != nil && b.TotalTime != nil:
		if c := cmp.Compare(*a.TotalTime, *b.TotalTime); c != 0 {
			return c
		}
	case a.TotalTime != nil:
		return -1
	case b.TotalTime != nil:
		return 1
	}
	return bytes.Compare(a.ParticipantID[:], b.ParticipantID[:])
}

func markFastest(rankings []Standing) {
	best := make(map[uuid.UUID]int)
	for _, st := range rankings {
		for _, sp := range st.Splits {
			if !sp.Resolved() || sp.Skipped {
				continue
			}
			if cur, ok := best[sp.SlotID]; !ok || *sp.Duration < cur {
				best[sp.SlotID] = *sp.Duration
			}
		}
	}
	for i := range rankings {
		for j, sp := range rankings[i].Splits {
			if !sp.Resolved() || sp.Skipped {
				continue
			}
			if *sp.Duration == best[sp.SlotID] {
				rankings[i].Splits[j].Fastest = true
			}
		}
	}
}
