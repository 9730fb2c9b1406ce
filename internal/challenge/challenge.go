package challenge

import (
	"context"
	"errors"
)

var ErrNoChallenge = errors.New("no challenge available")

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TestCase is one graded input/output pair. Hidden cases are used for
// grading but never sent to a client.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Hidden   bool   `json:"hidden"`
}

// Challenge is immutable once attached to a battle.
type Challenge struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Difficulty   Difficulty        `json:"difficulty"`
	Cases        []TestCase        `json:"cases"`
	StarterCode  map[string]string `json:"starter_code"` // keyed by language
	TimeLimitSec int               `json:"time_limit_sec"`
}

// VisibleCases returns the cases a client may see, in order.
func (c Challenge) VisibleCases() []TestCase {
	out := make([]TestCase, 0, len(c.Cases))
	for _, tc := range c.Cases {
		if !tc.Hidden {
			out = append(out, tc)
		}
	}
	return out
}

// Request describes the room asking for a problem: skill-weighted by the
// average of its participants, optionally pinned to a difficulty or language.
type Request struct {
	AvgLevel   int
	AvgRating  int
	BattleType string
	Difficulty Difficulty // optional override
	Language   string     // optional override
}

// Provisioner hands out a Challenge appropriate to a skill level. How
// challenges are generated or stored is not this package's business.
type Provisioner interface {
	Provision(ctx context.Context, req Request) (Challenge, error)
}
