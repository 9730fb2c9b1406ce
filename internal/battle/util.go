package battle

import (
	"strings"
	"time"
)

const defaultTimeLimitSec = 300

// NewState builds a fresh waiting room. The invite code is derived from the
// id: its first eight characters, uppercased.
func NewState(id, battleType string, capacity int, createdAt time.Time) State {
	return State{
		ID:           id,
		InviteCode:   InviteCode(id),
		BattleType:   battleType,
		Capacity:     capacity,
		Participants: []Participant{},
		Status:       StatusWaiting,
		CreatedAt:    createdAt,
		TimeLimitSec: 0, // fixed by the attached challenge
	}
}

func InviteCode(battleID string) string {
	if len(battleID) < 8 {
		return strings.ToUpper(battleID)
	}
	return strings.ToUpper(battleID[:8])
}

// Remaining derives the authoritative countdown. While the clock runs it is
// recomputed from created-at + time-limit, never from a local decrement;
// once the room has ended it is frozen at its final value.
func Remaining(s State, now time.Time) time.Duration {
	limit := time.Duration(s.TimeLimitSec) * time.Second
	if limit == 0 {
		limit = defaultTimeLimitSec * time.Second
	}
	switch s.Status {
	case StatusWaiting:
		return limit
	case StatusCompleted:
		if s.EndedAt.IsZero() {
			return 0
		}
		now = s.EndedAt
	}
	rem := limit - now.Sub(s.CreatedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// ContainsEvent reports whether events holds one of the given type.
func ContainsEvent(events []Event, t EventType) bool {
	for _, e := range events {
		if e.Type == t {
			return true
		}
	}
	return false
}
