package battle

import (
	"time"

	"github.com/codeclash/battle-backend/internal/challenge"
	"github.com/codeclash/battle-backend/pkg/types"
)

// Wire converts room state to the client snapshot. Hidden test cases are
// stripped here, so no transport can leak them.
func Wire(s State, version int, now time.Time) types.BattleSnapshot {
	snap := types.BattleSnapshot{
		BattleID:     s.ID,
		InviteCode:   s.InviteCode,
		BattleType:   s.BattleType,
		Status:       string(s.Status),
		Participants: make([]types.ParticipantView, len(s.Participants)),
		CreatedAt:    s.CreatedAt,
		TimeLimitSec: s.TimeLimitSec,
		RemainingMs:  Remaining(s, now).Milliseconds(),
		Winner:       s.Winner,
		Version:      version,
	}
	for i, p := range s.Participants {
		pv := types.ParticipantView{
			ID:          p.ID,
			Name:        p.Name,
			TestsPassed: p.TestsPassed,
			Completed:   p.Completed,
			Forfeited:   p.Forfeited,
		}
		if p.Completed {
			at := p.CompletedAt
			pv.CompletedAt = &at
		}
		snap.Participants[i] = pv
	}
	if s.Challenge != nil {
		snap.Challenge = WireChallenge(*s.Challenge)
	}
	return snap
}

func WireChallenge(c challenge.Challenge) *types.ChallengeView {
	visible := c.VisibleCases()
	cv := &types.ChallengeView{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		Difficulty:   string(c.Difficulty),
		VisibleCases: make([]types.TestCaseView, len(visible)),
		StarterCode:  c.StarterCode,
		TimeLimitSec: c.TimeLimitSec,
	}
	for i, tc := range visible {
		cv.VisibleCases[i] = types.TestCaseView{Input: tc.Input, Expected: tc.Expected}
	}
	return cv
}

// WireResults converts graded results for a client, masking hidden cases.
func WireResults(results []challenge.TestResult) []types.TestResultView {
	masked := challenge.MaskHidden(results)
	out := make([]types.TestResultView, len(masked))
	for i, r := range masked {
		out[i] = types.TestResultView{
			Passed:          r.Passed,
			Input:           r.Input,
			Expected:        r.Expected,
			Actual:          r.Actual,
			ExecutionTimeMs: r.ExecutionTimeMs,
		}
	}
	return out
}
