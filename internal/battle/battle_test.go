package battle

import (
	"errors"
	"testing"
	"time"

	"github.com/codeclash/battle-backend/internal/challenge"
)

var testChallenge = challenge.Challenge{
	ID:    "sum-two",
	Title: "Sum of Two Numbers",
	Cases: []challenge.TestCase{
		{Input: "1 2", Expected: "3"},
		{Input: "5 5", Expected: "10", Hidden: true},
	},
	TimeLimitSec: 300,
}

func passing() []challenge.TestResult {
	return []challenge.TestResult{
		{Passed: true, Input: "1 2", Expected: "3", Actual: "3"},
		{Passed: true, Hidden: true},
	}
}

func failing() []challenge.TestResult {
	return []challenge.TestResult{
		{Passed: true, Input: "1 2", Expected: "3", Actual: "3"},
		{Passed: false, Hidden: true},
	}
}

func activeRoom(t *testing.T, createdAt time.Time) State {
	t.Helper()
	s := NewState("b1a2c3d4-5678", "quick", 2, createdAt)
	var err error
	_, s, err = Apply(s, Command{Type: CmdAddParticipant, ParticipantID: "alice", Name: "Alice"})
	if err != nil {
		t.Fatalf("add alice: %v", err)
	}
	_, s, err = Apply(s, Command{Type: CmdAddParticipant, ParticipantID: "bob", Name: "Bob"})
	if err != nil {
		t.Fatalf("add bob: %v", err)
	}
	events, s, err := Apply(s, Command{Type: CmdAttachChallenge, Challenge: &testChallenge})
	if err != nil {
		t.Fatalf("attach challenge: %v", err)
	}
	if !ContainsEvent(events, EvtBattleStarted) {
		t.Fatalf("expected BattleStarted once full and provisioned")
	}
	if s.Status != StatusActive {
		t.Fatalf("want active, got %v", s.Status)
	}
	return s
}

func TestNewState_InviteCodeDerivedFromID(t *testing.T) {
	s := NewState("b1a2c3d4-5678", "quick", 2, time.Now())
	if s.InviteCode != "B1A2C3D4" {
		t.Fatalf("want invite code B1A2C3D4, got %q", s.InviteCode)
	}
	if s.Status != StatusWaiting {
		t.Fatalf("new room must start waiting, got %v", s.Status)
	}
}

func TestAddParticipant_Rules(t *testing.T) {
	base := NewState("room-1", "quick", 2, time.Now())
	_, one, _ := Apply(base, Command{Type: CmdAddParticipant, ParticipantID: "alice"})
	_, two, _ := Apply(one, Command{Type: CmdAddParticipant, ParticipantID: "bob"})

	cases := []struct {
		name    string
		state   State
		cmd     Command
		wantErr error
	}{
		{
			name:    "duplicate participant rejected",
			state:   one,
			cmd:     Command{Type: CmdAddParticipant, ParticipantID: "alice"},
			wantErr: ErrDuplicateParticipant,
		},
		{
			name:    "room at capacity rejected",
			state:   two,
			cmd:     Command{Type: CmdAddParticipant, ParticipantID: "carol"},
			wantErr: ErrRoomFull,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, after, err := Apply(tc.state, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if len(after.Participants) != len(tc.state.Participants) {
				t.Fatalf("failed command must not mutate state")
			}
		})
	}
}

func TestStart_RequiresCapacityAndChallenge(t *testing.T) {
	s := NewState("room-1", "quick", 2, time.Now())

	// Challenge alone isn't enough.
	events, s, err := Apply(s, Command{Type: CmdAttachChallenge, Challenge: &testChallenge})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if ContainsEvent(events, EvtBattleStarted) || s.Status != StatusWaiting {
		t.Fatalf("room with no participants must stay waiting")
	}

	_, s, _ = Apply(s, Command{Type: CmdAddParticipant, ParticipantID: "alice"})
	events, s, _ = Apply(s, Command{Type: CmdAddParticipant, ParticipantID: "bob"})
	if !ContainsEvent(events, EvtBattleStarted) || s.Status != StatusActive {
		t.Fatalf("second join of a provisioned room must start it, got %v", s.Status)
	}
	if s.TimeLimitSec != 300 {
		t.Fatalf("time limit must come from the challenge, got %d", s.TimeLimitSec)
	}
}

func TestSubmit_FirstFullPassWinsImmediatelyWithZeroGrace(t *testing.T) {
	now := time.Now()
	s := activeRoom(t, now)

	events, s, err := Apply(s, Command{Type: CmdRecordResult, ParticipantID: "alice", Code: "3 10", Results: passing(), At: now.Add(20 * time.Second)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtParticipantCompleted) || !ContainsEvent(events, EvtBattleEnded) {
		t.Fatalf("want completion and end events, got %+v", events)
	}
	if s.Status != StatusCompleted || s.Winner != "alice" {
		t.Fatalf("want completed with alice winning, got %v winner=%q", s.Status, s.Winner)
	}
}

func TestSubmit_ResubmitAfterWinIsNoOp(t *testing.T) {
	now := time.Now()
	s := activeRoom(t, now)
	s.GraceSec = 30

	_, s, _ = Apply(s, Command{Type: CmdRecordResult, ParticipantID: "alice", Results: passing(), At: now.Add(time.Second)})
	if s.Status != StatusFinishing {
		t.Fatalf("want finishing under a positive grace window, got %v", s.Status)
	}

	events, after, err := Apply(s, Command{Type: CmdRecordResult, ParticipantID: "alice", Results: passing(), At: now.Add(5 * time.Second)})
	if err != nil || len(events) != 0 {
		t.Fatalf("resubmit must be a silent no-op, err=%v events=%+v", err, events)
	}
	if !after.Participants[0].CompletedAt.Equal(s.Participants[0].CompletedAt) {
		t.Fatalf("resubmit must not move the recorded completion time")
	}
}

func TestSubmit_FailingResultsKeepRoomActive(t *testing.T) {
	now := time.Now()
	s := activeRoom(t, now)

	events, s, err := Apply(s, Command{Type: CmdRecordResult, ParticipantID: "bob", Code: "wrong", Results: failing(), At: now})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(events) != 0 || s.Status != StatusActive {
		t.Fatalf("failed submission must not transition, got %v %+v", s.Status, events)
	}
	if s.Participants[1].TestsPassed != 1 {
		t.Fatalf("pass count should be recorded, got %d", s.Participants[1].TestsPassed)
	}
}

func TestSubmit_GraceWindowLetsBothFinish(t *testing.T) {
	now := time.Now()
	s := activeRoom(t, now)
	s.GraceSec = 30

	_, s, _ = Apply(s, Command{Type: CmdRecordResult, ParticipantID: "bob", Results: passing(), At: now.Add(10 * time.Second)})
	events, s, err := Apply(s, Command{Type: CmdRecordResult, ParticipantID: "alice", Results: passing(), At: now.Add(15 * time.Second)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtBattleEnded) || s.Status != StatusCompleted {
		t.Fatalf("last completion must close the room, got %v", s.Status)
	}
	if s.Winner != "bob" {
		t.Fatalf("earliest completion wins, got %q", s.Winner)
	}
}

func TestGraceExpired_FixesEarliestWinner(t *testing.T) {
	now := time.Now()
	s := activeRoom(t, now)
	s.GraceSec = 30

	_, s, _ = Apply(s, Command{Type: CmdRecordResult, ParticipantID: "bob", Results: passing(), At: now.Add(10 * time.Second)})
	events, s, err := Apply(s, Command{Type: CmdGraceExpired, At: now.Add(40 * time.Second)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtBattleEnded) || s.Winner != "bob" {
		t.Fatalf("grace expiry must close with bob winning, got %v %q", s.Status, s.Winner)
	}
}

func TestTimerExpired_DrawWithNoWinner(t *testing.T) {
	now := time.Now()
	s := activeRoom(t, now)

	events, s, err := Apply(s, Command{Type: CmdTimerExpired, At: now.Add(300 * time.Second)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Status != StatusCompleted || s.Winner != "" {
		t.Fatalf("expiry with no completions is a draw, got %v winner=%q", s.Status, s.Winner)
	}
	if !ContainsEvent(events, EvtBattleEnded) {
		t.Fatalf("expected BattleEnded")
	}
}

func TestTimerExpired_StaleFireIsNoOp(t *testing.T) {
	now := time.Now()
	s := activeRoom(t, now)
	_, s, _ = Apply(s, Command{Type: CmdRecordResult, ParticipantID: "alice", Results: passing(), At: now.Add(time.Second)})

	events, after, err := Apply(s, Command{Type: CmdTimerExpired, At: now.Add(300 * time.Second)})
	if err != nil || len(events) != 0 {
		t.Fatalf("stale fire must be silent, err=%v events=%+v", err, events)
	}
	if after.Winner != "alice" {
		t.Fatalf("stale fire must not change the winner, got %q", after.Winner)
	}
}

func TestSubmit_RejectedOutsideActive(t *testing.T) {
	now := time.Now()
	waiting := NewState("room-1", "quick", 2, now)
	_, waiting, _ = Apply(waiting, Command{Type: CmdAddParticipant, ParticipantID: "alice"})

	done := activeRoom(t, now)
	_, done, _ = Apply(done, Command{Type: CmdRecordResult, ParticipantID: "bob", Results: passing(), At: now})

	for _, s := range []State{waiting, done} {
		_, _, err := Apply(s, Command{Type: CmdRecordResult, ParticipantID: "alice", Results: passing(), At: now})
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("submit in %v: want ErrInvalidState, got %v", s.Status, err)
		}
	}
}

func TestForfeit_LastStandingWins(t *testing.T) {
	now := time.Now()
	s := activeRoom(t, now)

	events, s, err := Apply(s, Command{Type: CmdForfeit, ParticipantID: "bob", At: now.Add(time.Second)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtBattleEnded) || s.Winner != "alice" {
		t.Fatalf("forfeit must hand the win to the remaining contestant, got %q", s.Winner)
	}
}

func TestForfeit_WhileWaitingJustRemoves(t *testing.T) {
	s := NewState("room-1", "quick", 2, time.Now())
	_, s, _ = Apply(s, Command{Type: CmdAddParticipant, ParticipantID: "alice"})

	events, s, err := Apply(s, Command{Type: CmdForfeit, ParticipantID: "alice"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ContainsEvent(events, EvtBattleEnded) || len(s.Participants) != 0 {
		t.Fatalf("waiting-room leave must only remove the participant")
	}
}

func TestRemaining_FrozenAfterCompletion(t *testing.T) {
	created := time.Now()
	s := activeRoom(t, created)

	t0 := created.Add(10 * time.Second)
	t1 := t0.Add(5 * time.Second)
	if d := Remaining(s, t0) - Remaining(s, t1); d != 5*time.Second {
		t.Fatalf("active countdown must drop exactly 5s, dropped %v", d)
	}

	_, s, _ = Apply(s, Command{Type: CmdRecordResult, ParticipantID: "alice", Results: passing(), At: t1})
	if Remaining(s, t1) != Remaining(s, t1.Add(time.Minute)) {
		t.Fatalf("completed countdown must be frozen")
	}
}

func TestWire_StripsHiddenCases(t *testing.T) {
	s := activeRoom(t, time.Now())
	snap := Wire(s, 3, time.Now())

	if snap.Challenge == nil {
		t.Fatalf("expected challenge in snapshot")
	}
	if len(snap.Challenge.VisibleCases) != 1 {
		t.Fatalf("hidden cases leaked: %+v", snap.Challenge.VisibleCases)
	}
	if snap.Version != 3 || snap.Status != "active" {
		t.Fatalf("snapshot metadata wrong: %+v", snap)
	}
}
