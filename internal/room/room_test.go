package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/battle"
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

type fixedProvisioner struct {
	ch    challenge.Challenge
	err   error
	delay time.Duration
}

func (p fixedProvisioner) Provision(ctx context.Context, _ challenge.Request) (challenge.Challenge, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return challenge.Challenge{}, ctx.Err()
		}
	}
	return p.ch, p.err
}

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			return // closed is fine; no further snapshots possible
		}
		t.Fatalf("expected no snapshot within %v, but got: %+v", within, s)
	case <-time.After(within):
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func matchedState(graceSec int) battle.State {
	s := battle.NewState("aabbccdd-test-battle", "quick", 2, time.Now())
	s.GraceSec = graceSec
	s.Participants = []battle.Participant{
		{ID: "alice", Name: "Alice"},
		{ID: "bob", Name: "Bob"},
	}
	return s
}

func newTestRoom(t *testing.T, s battle.State, opts Options) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if opts.Provisioner == nil {
		opts.Provisioner = fixedProvisioner{ch: testChallenge}
	}
	if opts.Runner == nil {
		opts.Runner = challenge.EchoRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return New(ctx, s, opts)
}

func submit(t *testing.T, r *Room, participantID, code string, within time.Duration) SubmitResult {
	t.Helper()
	reply := make(chan SubmitResult, 1)
	r.Inbox() <- Submit{ParticipantID: participantID, Code: code, Language: "javascript", Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(within):
		t.Fatalf("timed out waiting for submit result")
		return SubmitResult{} // unreachable
	}
}

func TestRoom_ProvisionStartsBattleAndBroadcasts(t *testing.T) {
	r := newTestRoom(t, matchedState(0), Options{})

	out := make(chan Snapshot, 4)
	r.Inbox() <- Attach{ClientID: "c1", Outbox: out}

	// Provisioning can beat the attach, so the initial snapshot may already
	// be active; wait until the room reports it either way.
	snap := recvSnapshot(t, out, 100*time.Millisecond)
	deadline := time.After(time.Second)
	for snap.State.Status != battle.StatusActive {
		select {
		case snap = <-out:
		case <-deadline:
			t.Fatalf("room never became active, last %+v", snap)
		}
	}
	if snap.State.Challenge == nil {
		t.Fatalf("active room must carry its challenge")
	}
	if snap.State.TimeLimitSec != 300 {
		t.Fatalf("time limit must come from the challenge, got %d", snap.State.TimeLimitSec)
	}
}

func TestRoom_WinningSubmissionEndsBattle(t *testing.T) {
	r := newTestRoom(t, matchedState(0), Options{})

	out := make(chan Snapshot, 8)
	r.Inbox() <- Attach{ClientID: "c1", Outbox: out}
	waitForStatus(t, out, battle.StatusActive)

	res := submit(t, r, "alice", "3 10", time.Second)
	if res.Err != nil {
		t.Fatalf("unexpected err: %v", res.Err)
	}
	if !res.AllPassed || res.Winner != "alice" {
		t.Fatalf("want alice to win, got %+v", res)
	}

	snap := waitForStatus(t, out, battle.StatusCompleted)
	if snap.State.Winner != "alice" {
		t.Fatalf("broadcast winner mismatch: %q", snap.State.Winner)
	}
}

func TestRoom_ResubmitAfterWinIsAcknowledgedNoOp(t *testing.T) {
	r := newTestRoom(t, matchedState(30), Options{})

	out := make(chan Snapshot, 8)
	r.Inbox() <- Attach{ClientID: "c1", Outbox: out}
	waitForStatus(t, out, battle.StatusActive)

	first := submit(t, r, "alice", "3 10", time.Second)
	if first.Err != nil || !first.AllPassed {
		t.Fatalf("first submit should pass: %+v", first)
	}

	again := submit(t, r, "alice", "3 10", time.Second)
	if again.Err != nil || !again.AllPassed {
		t.Fatalf("resubmit must be acknowledged: %+v", again)
	}

	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	v := recvView(t, reply, 100*time.Millisecond)
	if v.State.Status != battle.StatusFinishing {
		t.Fatalf("resubmit must not re-transition, status=%v", v.State.Status)
	}
}

func TestRoom_FailingSubmissionReportsResults(t *testing.T) {
	r := newTestRoom(t, matchedState(0), Options{})

	out := make(chan Snapshot, 8)
	r.Inbox() <- Attach{ClientID: "c1", Outbox: out}
	waitForStatus(t, out, battle.StatusActive)

	res := submit(t, r, "bob", "3 but not the hidden answer", time.Second)
	if res.Err != nil {
		t.Fatalf("unexpected err: %v", res.Err)
	}
	if res.AllPassed || res.Winner != "" {
		t.Fatalf("failing code must not win: %+v", res)
	}
	if len(res.Results) != 2 || !res.Results[0].Passed || res.Results[1].Passed {
		t.Fatalf("unexpected results: %+v", res.Results)
	}
}

func TestRoom_SubmitBeforeActiveIsInvalidState(t *testing.T) {
	// Provisioner that never answers within the test window.
	r := newTestRoom(t, matchedState(0), Options{
		Provisioner:      fixedProvisioner{ch: testChallenge, delay: time.Minute},
		ProvisionTimeout: 2 * time.Minute,
	})

	res := submit(t, r, "alice", "3 10", time.Second)
	if !errors.Is(res.Err, battle.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState while waiting, got %v", res.Err)
	}
}

func TestRoom_ProvisioningFailureDissolves(t *testing.T) {
	dissolved := make(chan string, 1)
	r := newTestRoom(t, matchedState(0), Options{
		Provisioner: fixedProvisioner{err: errors.New("content service down")},
		OnDissolved: func(id string) { dissolved <- id },
	})

	out := make(chan Snapshot, 4)
	r.Inbox() <- Attach{ClientID: "c1", Outbox: out}

	deadline := time.After(time.Second)
	for {
		select {
		case snap, ok := <-out:
			if !ok {
				t.Fatalf("outbox closed before the dissolved snapshot")
			}
			if snap.Dissolved {
				if snap.Err == "" {
					t.Fatalf("dissolved snapshot must carry the retryable error")
				}
				select {
				case id := <-dissolved:
					if id != "aabbccdd-test-battle" {
						t.Fatalf("wrong battle id: %s", id)
					}
				case <-time.After(time.Second):
					t.Fatalf("OnDissolved never fired")
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for dissolution")
		}
	}
}

func TestRoom_ProvisioningTimeoutDissolves(t *testing.T) {
	dissolved := make(chan string, 1)
	newTestRoom(t, matchedState(0), Options{
		Provisioner:      fixedProvisioner{ch: testChallenge, delay: time.Minute},
		ProvisionTimeout: 50 * time.Millisecond,
		OnDissolved:      func(id string) { dissolved <- id },
	})

	select {
	case <-dissolved:
	case <-time.After(time.Second):
		t.Fatalf("provisioning timeout must dissolve the room")
	}
}

func TestRoom_TimerExpiryEndsBattleAsDraw(t *testing.T) {
	ch := testChallenge
	ch.TimeLimitSec = 1
	ended := make(chan battle.State, 1)
	newTestRoom(t, matchedState(0), Options{
		Provisioner: fixedProvisioner{ch: ch},
		OnEnded:     func(s battle.State) { ended <- s },
	})

	select {
	case final := <-ended:
		if final.Status != battle.StatusCompleted || final.Winner != "" {
			t.Fatalf("expiry must end as a draw, got %+v", final)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("countdown never fired")
	}
}

func TestRoom_GraceWindowClosesRoom(t *testing.T) {
	ended := make(chan battle.State, 1)
	r := newTestRoom(t, matchedState(1), Options{
		OnEnded: func(s battle.State) { ended <- s },
	})

	out := make(chan Snapshot, 8)
	r.Inbox() <- Attach{ClientID: "c1", Outbox: out}
	waitForStatus(t, out, battle.StatusActive)

	res := submit(t, r, "alice", "3 10", time.Second)
	if res.Err != nil || !res.AllPassed {
		t.Fatalf("submit failed: %+v", res)
	}
	if res.Winner != "" {
		t.Fatalf("winner must not be fixed while the grace window is open")
	}

	select {
	case final := <-ended:
		if final.Winner != "alice" {
			t.Fatalf("grace expiry must fix alice as winner, got %q", final.Winner)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("grace window never closed")
	}
}

func TestRoom_GraceWindowCappedByCountdown(t *testing.T) {
	// One second on the clock, thirty of grace: the countdown wins.
	ch := testChallenge
	ch.TimeLimitSec = 1
	ended := make(chan battle.State, 1)
	r := newTestRoom(t, matchedState(30), Options{
		Provisioner: fixedProvisioner{ch: ch},
		OnEnded:     func(s battle.State) { ended <- s },
	})

	out := make(chan Snapshot, 8)
	r.Inbox() <- Attach{ClientID: "c1", Outbox: out}
	waitForStatus(t, out, battle.StatusActive)

	res := submit(t, r, "alice", "3 10", time.Second)
	if res.Err != nil || !res.AllPassed {
		t.Fatalf("submit failed: %+v", res)
	}

	select {
	case final := <-ended:
		if final.Status != battle.StatusCompleted || final.Winner != "alice" {
			t.Fatalf("time-limit close must fix alice as winner, got %+v", final)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("room outlived its time limit inside the grace window")
	}
}

func TestRoom_DropSlowClient(t *testing.T) {
	r := newTestRoom(t, matchedState(0), Options{})

	// Unbuffered outbox that nobody reads: first broadcast drops it.
	out := make(chan Snapshot)
	r.Inbox() <- Attach{ClientID: "slow", Outbox: out}

	deadline := time.After(time.Second)
	for {
		reply := make(chan View, 1)
		r.Inbox() <- GetState{Reply: reply}
		v := recvView(t, reply, 100*time.Millisecond)
		if v.NumClients == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("slow client was never dropped; NumClients=%d", v.NumClients)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRoom_PrivateJoinGrowsThenStarts(t *testing.T) {
	s := battle.NewState("aabbccdd-private", "private", 2, time.Now())
	s.Participants = []battle.Participant{{ID: "alice", Name: "Alice"}}
	r := newTestRoom(t, s, Options{})

	out := make(chan Snapshot, 8)
	r.Inbox() <- Attach{ClientID: "c1", Outbox: out}

	reply := make(chan error, 1)
	r.Inbox() <- AddParticipant{ID: "bob", Name: "Bob", Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("second join must succeed: %v", err)
	}

	snap := waitForStatus(t, out, battle.StatusActive)
	if len(snap.State.Participants) != 2 {
		t.Fatalf("want 2 participants, got %d", len(snap.State.Participants))
	}

	// Third seat and duplicate are both conflicts.
	r.Inbox() <- AddParticipant{ID: "carol", Name: "Carol", Reply: reply}
	if err := <-reply; !errors.Is(err, battle.ErrInvalidState) && !errors.Is(err, battle.ErrRoomFull) {
		t.Fatalf("third join must fail, got %v", err)
	}
}

func TestRoom_ShutdownClosesOutboxes(t *testing.T) {
	r := newTestRoom(t, matchedState(0), Options{})

	out := make(chan Snapshot, 8)
	r.Inbox() <- Attach{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	r.Inbox() <- Shutdown{}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return // closed, as expected
			}
		case <-deadline:
			t.Fatalf("outbox never closed after shutdown")
		}
	}
}

func waitForStatus(t *testing.T, out <-chan Snapshot, want battle.Status) Snapshot {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case snap, ok := <-out:
			if !ok {
				t.Fatalf("outbox closed before reaching %v", want)
			}
			if snap.State.Status == want {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %v", want)
			return Snapshot{} // unreachable
		}
	}
}
