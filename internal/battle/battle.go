package battle

import (
	"errors"
	"time"

	"github.com/codeclash/battle-backend/internal/challenge"
)

var ErrInvalidState = errors.New("operation not legal in current room state")
var ErrRoomFull = errors.New("room is at capacity")
var ErrDuplicateParticipant = errors.New("candidate is already a participant")
var ErrNotParticipant = errors.New("candidate is not a participant")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusFinishing Status = "finishing"
	StatusCompleted Status = "completed"
)

// Participant is one contestant inside a room.
type Participant struct {
	ID          string
	Name        string
	Code        string
	Language    string
	TestsPassed int
	Completed   bool
	CompletedAt time.Time
	Forfeited   bool
}

// State is the full, value-semantics room state. Apply never mutates its
// input; it returns a fresh State so snapshots can be shared freely.
type State struct {
	ID           string
	InviteCode   string
	BattleType   string
	Capacity     int
	Participants []Participant
	Challenge    *challenge.Challenge
	Status       Status
	CreatedAt    time.Time
	TimeLimitSec int
	GraceSec     int
	Winner       string // participant id, empty until fixed
	EndedAt      time.Time
}

type CommandType string

const (
	CmdAddParticipant  CommandType = "AddParticipant"
	CmdAttachChallenge CommandType = "AttachChallenge"
	CmdRecordResult    CommandType = "RecordResult"
	CmdTimerExpired    CommandType = "TimerExpired"
	CmdGraceExpired    CommandType = "GraceExpired"
	CmdForfeit         CommandType = "Forfeit"
)

type Command struct {
	Type          CommandType
	ParticipantID string
	Name          string
	Code          string
	Language      string
	Results       []challenge.TestResult
	Challenge     *challenge.Challenge
	At            time.Time
}

type EventType string

const (
	EvtParticipantJoined    EventType = "ParticipantJoined"
	EvtParticipantLeft      EventType = "ParticipantLeft"
	EvtBattleStarted        EventType = "BattleStarted"
	EvtParticipantCompleted EventType = "ParticipantCompleted"
	EvtBattleEnded          EventType = "BattleEnded"
)

type Event struct {
	Type          EventType
	ParticipantID string
	Winner        string
}

// Apply runs one command against the room state machine and returns the
// emitted events plus the successor state. On error the returned state is
// the input unchanged; transitions are all-or-nothing.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdAddParticipant:
		return applyAddParticipant(s, cmd)
	case CmdAttachChallenge:
		return applyAttachChallenge(s, cmd)
	case CmdRecordResult:
		return applyRecordResult(s, cmd)
	case CmdTimerExpired:
		return applyDeadline(s, cmd, StatusActive, StatusFinishing)
	case CmdGraceExpired:
		return applyDeadline(s, cmd, StatusFinishing)
	case CmdForfeit:
		return applyForfeit(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyAddParticipant(s State, cmd Command) ([]Event, State, error) {
	if s.Status != StatusWaiting {
		return nil, s, ErrInvalidState
	}
	if len(s.Participants) >= s.Capacity {
		return nil, s, ErrRoomFull
	}
	if _, ok := findParticipant(s, cmd.ParticipantID); ok {
		return nil, s, ErrDuplicateParticipant
	}

	next := cloneState(s)
	next.Participants = append(next.Participants, Participant{ID: cmd.ParticipantID, Name: cmd.Name})
	events := []Event{{Type: EvtParticipantJoined, ParticipantID: cmd.ParticipantID}}

	if roomReady(next) {
		next.Status = StatusActive
		events = append(events, Event{Type: EvtBattleStarted})
	}
	return events, next, nil
}

func applyAttachChallenge(s State, cmd Command) ([]Event, State, error) {
	if s.Status != StatusWaiting {
		return nil, s, ErrInvalidState
	}
	if cmd.Challenge == nil {
		return nil, s, ErrUnsupportedCommand
	}

	next := cloneState(s)
	next.Challenge = cmd.Challenge
	if next.TimeLimitSec == 0 {
		next.TimeLimitSec = cmd.Challenge.TimeLimitSec
	}

	var events []Event
	if roomReady(next) {
		next.Status = StatusActive
		events = append(events, Event{Type: EvtBattleStarted})
	}
	return events, next, nil
}

func applyRecordResult(s State, cmd Command) ([]Event, State, error) {
	if s.Status != StatusActive && s.Status != StatusFinishing {
		return nil, s, ErrInvalidState
	}
	idx, ok := findParticipant(s, cmd.ParticipantID)
	if !ok {
		return nil, s, ErrNotParticipant
	}
	if s.Participants[idx].Completed {
		// Resubmission after a recorded completion is a no-op, never a
		// second win.
		return nil, s, nil
	}

	next := cloneState(s)
	p := &next.Participants[idx]
	p.Code = cmd.Code
	p.Language = cmd.Language
	p.TestsPassed = passedCount(cmd.Results)

	if !challenge.AllPassed(cmd.Results) {
		return nil, next, nil
	}

	p.Completed = true
	p.CompletedAt = cmd.At
	events := []Event{{Type: EvtParticipantCompleted, ParticipantID: p.ID}}

	switch {
	case allDone(next):
		events = append(events, endBattle(&next, cmd.At))
	case next.Status == StatusActive && next.GraceSec == 0:
		// Strict first-to-finish: pass through finishing straight to the end.
		next.Status = StatusFinishing
		events = append(events, endBattle(&next, cmd.At))
	case next.Status == StatusActive:
		next.Status = StatusFinishing
	}
	return events, next, nil
}

// applyDeadline closes the room from any of the allowed source states.
// A fire against an already-completed room is stale and a no-op.
func applyDeadline(s State, cmd Command, from ...Status) ([]Event, State, error) {
	if s.Status == StatusCompleted {
		return nil, s, nil
	}
	allowed := false
	for _, st := range from {
		if s.Status == st {
			allowed = true
		}
	}
	if !allowed {
		return nil, s, nil
	}

	next := cloneState(s)
	return []Event{endBattle(&next, cmd.At)}, next, nil
}

func applyForfeit(s State, cmd Command) ([]Event, State, error) {
	idx, ok := findParticipant(s, cmd.ParticipantID)
	if !ok {
		return nil, s, ErrNotParticipant
	}

	next := cloneState(s)
	if next.Status == StatusWaiting {
		next.Participants = append(next.Participants[:idx:idx], next.Participants[idx+1:]...)
		return []Event{{Type: EvtParticipantLeft, ParticipantID: cmd.ParticipantID}}, next, nil
	}
	if next.Status == StatusCompleted {
		return nil, s, ErrInvalidState
	}

	next.Participants[idx].Forfeited = true
	events := []Event{{Type: EvtParticipantLeft, ParticipantID: cmd.ParticipantID}}
	if standing(next) <= 1 {
		events = append(events, endBattle(&next, cmd.At))
	}
	return events, next, nil
}

// endBattle transitions next to completed, fixes the winner (earliest full
// pass, or the last contestant standing, or nobody) and returns the event.
func endBattle(next *State, at time.Time) Event {
	next.Status = StatusCompleted
	next.EndedAt = at
	next.Winner = ""

	var best time.Time
	for _, p := range next.Participants {
		if p.Completed && !p.Forfeited && (best.IsZero() || p.CompletedAt.Before(best)) {
			best = p.CompletedAt
			next.Winner = p.ID
		}
	}
	if next.Winner == "" && standing(*next) == 1 && forfeitCount(*next) > 0 {
		for _, p := range next.Participants {
			if !p.Forfeited {
				next.Winner = p.ID
			}
		}
	}
	return Event{Type: EvtBattleEnded, Winner: next.Winner}
}

func roomReady(s State) bool {
	return s.Challenge != nil && len(s.Participants) >= s.Capacity
}

func findParticipant(s State, id string) (int, bool) {
	for i, p := range s.Participants {
		if p.ID == id {
			return i, true
		}
	}
	return 0, false
}

func passedCount(results []challenge.TestResult) int {
	n := 0
	for _, r := range results {
		if r.Passed {
			n++
		}
	}
	return n
}

func allDone(s State) bool {
	for _, p := range s.Participants {
		if !p.Completed && !p.Forfeited {
			return false
		}
	}
	return len(s.Participants) > 0
}

func standing(s State) int {
	n := 0
	for _, p := range s.Participants {
		if !p.Forfeited {
			n++
		}
	}
	return n
}

func forfeitCount(s State) int {
	return len(s.Participants) - standing(s)
}

func cloneState(s State) State {
	next := s
	next.Participants = make([]Participant, len(s.Participants))
	copy(next.Participants, s.Participants)
	return next
}
