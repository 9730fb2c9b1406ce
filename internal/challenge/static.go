package challenge

import (
	"context"
	"math/rand"
)

// Rating bands for deriving difficulty when the request doesn't pin one.
const (
	mediumRating = 1100
	hardRating   = 1500
)

// Static serves challenges from a fixed in-memory pool bucketed by
// difficulty. It exists so the system runs end to end without a content
// service behind it.
type Static struct {
	pool map[Difficulty][]Challenge
}

func NewStatic() *Static {
	s := &Static{pool: make(map[Difficulty][]Challenge)}
	for _, c := range builtins {
		s.pool[c.Difficulty] = append(s.pool[c.Difficulty], c)
	}
	return s
}

func (s *Static) Provision(_ context.Context, req Request) (Challenge, error) {
	d := req.Difficulty
	if d == "" {
		d = difficultyFor(req.AvgRating)
	}
	bucket := s.pool[d]
	if len(bucket) == 0 {
		// Fall back across buckets rather than failing a match.
		for _, alt := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
			if len(s.pool[alt]) > 0 {
				bucket = s.pool[alt]
				break
			}
		}
	}
	if len(bucket) == 0 {
		return Challenge{}, ErrNoChallenge
	}
	return bucket[rand.Intn(len(bucket))], nil
}

func difficultyFor(rating int) Difficulty {
	switch {
	case rating < mediumRating:
		return DifficultyEasy
	case rating < hardRating:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}

var builtins = []Challenge{
	{
		ID:          "sum-two",
		Title:       "Sum of Two Numbers",
		Description: "Read two integers separated by a space and print their sum.",
		Difficulty:  DifficultyEasy,
		Cases: []TestCase{
			{Input: "1 2", Expected: "3"},
			{Input: "10 -4", Expected: "6"},
			{Input: "0 0", Expected: "0"},
			{Input: "250000 250000", Expected: "500000", Hidden: true},
			{Input: "-7 -13", Expected: "-20", Hidden: true},
		},
		StarterCode: map[string]string{
			"javascript": "function solve(input) {\n  // input: \"a b\"\n}\n",
			"python":     "def solve(input):\n    # input: \"a b\"\n    pass\n",
			"go":         "func solve(input string) string {\n\treturn \"\"\n}\n",
		},
		TimeLimitSec: 300,
	},
	{
		ID:          "reverse-words",
		Title:       "Reverse the Words",
		Description: "Print the words of the input line in reverse order.",
		Difficulty:  DifficultyMedium,
		Cases: []TestCase{
			{Input: "hello world", Expected: "world hello"},
			{Input: "a b c", Expected: "c b a"},
			{Input: "single", Expected: "single"},
			{Input: "x y z w v u", Expected: "u v w z y x", Hidden: true},
			{Input: "keep  spacing", Expected: "spacing keep", Hidden: true},
		},
		StarterCode: map[string]string{
			"javascript": "function solve(input) {\n}\n",
			"python":     "def solve(input):\n    pass\n",
			"go":         "func solve(input string) string {\n\treturn \"\"\n}\n",
		},
		TimeLimitSec: 420,
	},
	{
		ID:          "balanced-brackets",
		Title:       "Balanced Brackets",
		Description: "Print \"true\" if the bracket sequence is balanced, otherwise \"false\".",
		Difficulty:  DifficultyHard,
		Cases: []TestCase{
			{Input: "([]{})", Expected: "true"},
			{Input: "([)]", Expected: "false"},
			{Input: "", Expected: "true"},
			{Input: "(()", Expected: "false", Hidden: true},
			{Input: "{[()()]}[]", Expected: "true", Hidden: true},
		},
		StarterCode: map[string]string{
			"javascript": "function solve(input) {\n}\n",
			"python":     "def solve(input):\n    pass\n",
			"go":         "func solve(input string) string {\n\treturn \"\"\n}\n",
		},
		TimeLimitSec: 600,
	},
}
