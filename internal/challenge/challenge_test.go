package challenge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_DifficultyFollowsRating(t *testing.T) {
	p := NewStatic()
	ctx := context.Background()

	cases := []struct {
		name   string
		rating int
		want   Difficulty
	}{
		{"low rating gets easy", 900, DifficultyEasy},
		{"mid rating gets medium", 1300, DifficultyMedium},
		{"high rating gets hard", 1800, DifficultyHard},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch, err := p.Provision(ctx, Request{AvgRating: tc.rating, AvgLevel: 5})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ch.Difficulty)
		})
	}
}

func TestStatic_ExplicitDifficultyWins(t *testing.T) {
	p := NewStatic()
	ch, err := p.Provision(context.Background(), Request{AvgRating: 2000, Difficulty: DifficultyEasy})
	require.NoError(t, err)
	assert.Equal(t, DifficultyEasy, ch.Difficulty)
}

func TestChallenge_VisibleAndHiddenCases(t *testing.T) {
	p := NewStatic()
	ch, err := p.Provision(context.Background(), Request{AvgRating: 1000})
	require.NoError(t, err)

	visible := ch.VisibleCases()
	assert.NotEmpty(t, visible)
	assert.LessOrEqual(t, len(visible), 3, "at most three cases may be shown")
	assert.Greater(t, len(ch.Cases), len(visible), "hidden cases must exist")
	for _, tc := range visible {
		assert.False(t, tc.Hidden)
	}
}

func TestEchoRunner_GradesAllCases(t *testing.T) {
	cases := []TestCase{
		{Input: "1 2", Expected: "3"},
		{Input: "5 5", Expected: "10", Hidden: true},
	}

	results, err := EchoRunner{}.Run(context.Background(), "3 10", "javascript", cases)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, AllPassed(results))

	results, err = EchoRunner{}.Run(context.Background(), "3 only", "javascript", cases)
	require.NoError(t, err)
	assert.False(t, AllPassed(results))
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
}

func TestMaskHidden_StripsHiddenPayload(t *testing.T) {
	results := []TestResult{
		{Passed: true, Input: "1 2", Expected: "3", Actual: "3"},
		{Passed: false, Input: "secret", Expected: "s", Actual: "x", Hidden: true},
	}

	masked := MaskHidden(results)
	assert.Equal(t, "1 2", masked[0].Input)
	assert.Empty(t, masked[1].Input)
	assert.Empty(t, masked[1].Expected)
	assert.Empty(t, masked[1].Actual)
	assert.False(t, masked[1].Passed, "verdict survives masking")

	// Originals untouched.
	assert.Equal(t, "secret", results[1].Input)
}
