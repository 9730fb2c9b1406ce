package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/battle"
	"github.com/codeclash/battle-backend/internal/challenge"
)

var ErrProvisioning = errors.New("challenge provisioning failed, retry later")
var ErrNoChallengeYet = errors.New("room has no challenge attached")
var ErrGrading = errors.New("grading failed")

type Msg interface{ isRoomMsg() }

// Attach registers a client outbox for snapshot broadcasts.
type Attach struct {
	ClientID string
	Outbox   chan Snapshot
}

func (Attach) isRoomMsg() {}

type Detach struct{ ClientID string }

func (Detach) isRoomMsg() {}

// AddParticipant seats a second player in a private room.
type AddParticipant struct {
	ID    string
	Name  string
	Reply chan error
}

func (AddParticipant) isRoomMsg() {}

type Submit struct {
	ParticipantID string
	Code          string
	Language      string
	Reply         chan SubmitResult
}

func (Submit) isRoomMsg() {}

type Forfeit struct{ ParticipantID string }

func (Forfeit) isRoomMsg() {}

// GetState is test-only: reflect internal state without data races.
type GetState struct{ Reply chan View }

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// internal messages

type challengeReady struct {
	ch  challenge.Challenge
	err error
}

func (challengeReady) isRoomMsg() {}

type timerFired struct {
	gen int
	cmd battle.CommandType
}

func (timerFired) isRoomMsg() {}

type gradeDone struct {
	participantID string
	code          string
	language      string
	results       []challenge.TestResult
	err           error
	reply         chan SubmitResult
}

func (gradeDone) isRoomMsg() {}

type Snapshot struct {
	Version   int
	State     battle.State
	Dissolved bool
	Err       string
}

type SubmitResult struct {
	Results   []challenge.TestResult
	AllPassed bool
	Winner    string
	Err       error
}

type View struct {
	Version    int
	NumClients int
	State      battle.State
}

// Options wires a room's collaborators and timing knobs.
type Options struct {
	Provisioner challenge.Provisioner
	Runner      challenge.Runner
	Logger      *zap.Logger
	// Request is the skill-weighted provisioning request, averaged over
	// the founding participants by the registry.
	Request          challenge.Request
	ProvisionTimeout time.Duration
	// OnEnded fires once when the battle reaches completed.
	OnEnded func(final battle.State)
	// OnDissolved fires when provisioning fails and the room is torn down.
	OnDissolved func(battleID string)
}

// Room owns one battle's state behind a message loop. All transitions are
// applied in loop order, so a room's history is totally ordered.
type Room struct {
	inbox    chan Msg
	state    battle.State
	version  int
	clients  map[string]chan Snapshot
	opts     Options
	log      *zap.Logger
	timerGen int
	ended    bool
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, initial battle.State, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.ProvisionTimeout == 0 {
		opts.ProvisionTimeout = 10 * time.Second
	}
	r := &Room{
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan Snapshot),
		opts:    opts,
		log:     opts.Logger.With(zap.String("battle_id", initial.ID)),
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.provision()
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) ID() string { return r.state.ID }

// Done closes when the room's loop has stopped. A message sent to a done
// room is never answered; callers waiting on a reply select on this too.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// provision asks the provisioner for a challenge sized to the room's
// current participants and posts the outcome back into the loop.
func (r *Room) provision() {
	ctx, cancel := context.WithTimeout(r.ctx, r.opts.ProvisionTimeout)
	defer cancel()

	ch, err := r.opts.Provisioner.Provision(ctx, r.opts.Request)
	select {
	case r.inbox <- challengeReady{ch: ch, err: err}:
	case <-r.ctx.Done():
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Attach:
				// Register and hand over the current snapshot immediately.
				// A client that can't even take the first snapshot is
				// dropped on the spot, same rule as broadcast.
				select {
				case msg.Outbox <- Snapshot{Version: r.version, State: r.state}:
					r.clients[msg.ClientID] = msg.Outbox
				default:
					close(msg.Outbox)
				}

			case Detach:
				delete(r.clients, msg.ClientID)

			case AddParticipant:
				msg.Reply <- r.addParticipant(msg)

			case Submit:
				r.submit(msg)

			case Forfeit:
				r.apply(battle.Command{Type: battle.CmdForfeit, ParticipantID: msg.ParticipantID, At: time.Now()})

			case gradeDone:
				r.finishGrading(msg)

			case challengeReady:
				if msg.err != nil {
					r.dissolve(msg.err)
					return
				}
				ch := msg.ch
				r.apply(battle.Command{Type: battle.CmdAttachChallenge, Challenge: &ch})

			case timerFired:
				if msg.gen != r.timerGen {
					break // stale fire from a superseded timer
				}
				r.apply(battle.Command{Type: msg.cmd, At: time.Now()})

			case GetState:
				msg.Reply <- View{Version: r.version, NumClients: len(r.clients), State: r.state}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) addParticipant(msg AddParticipant) error {
	events, next, err := battle.Apply(r.state, battle.Command{
		Type:          battle.CmdAddParticipant,
		ParticipantID: msg.ID,
		Name:          msg.Name,
	})
	if err != nil {
		return err
	}
	r.commit(events, next)
	return nil
}

func (r *Room) submit(msg Submit) {
	p, seated := participant(r.state, msg.ParticipantID)
	if seated && p.Completed {
		// Resubmission after a recorded result: acknowledge, change
		// nothing. Holds even once the battle has closed.
		msg.Reply <- SubmitResult{AllPassed: true, Winner: r.state.Winner}
		return
	}
	if r.state.Status != battle.StatusActive && r.state.Status != battle.StatusFinishing {
		msg.Reply <- SubmitResult{Err: battle.ErrInvalidState}
		return
	}
	if r.state.Challenge == nil {
		msg.Reply <- SubmitResult{Err: ErrNoChallengeYet}
		return
	}
	if !seated {
		msg.Reply <- SubmitResult{Err: battle.ErrNotParticipant}
		return
	}

	// Grade off-loop so a slow runner never blocks broadcasts; the verdict
	// comes back through the inbox and lands in room order like any other
	// transition.
	cases := r.state.Challenge.Cases
	go func() {
		results, err := r.opts.Runner.Run(r.ctx, msg.Code, msg.Language, cases)
		select {
		case r.inbox <- gradeDone{
			participantID: msg.ParticipantID,
			code:          msg.Code,
			language:      msg.Language,
			results:       results,
			err:           err,
			reply:         msg.Reply,
		}:
		case <-r.ctx.Done():
			msg.Reply <- SubmitResult{Err: ErrGrading}
		}
	}()
}

func (r *Room) finishGrading(msg gradeDone) {
	if msg.err != nil {
		r.log.Warn("grading failed", zap.Error(msg.err))
		msg.reply <- SubmitResult{Err: ErrGrading}
		return
	}
	events, next, err := battle.Apply(r.state, battle.Command{
		Type:          battle.CmdRecordResult,
		ParticipantID: msg.participantID,
		Code:          msg.code,
		Language:      msg.language,
		Results:       msg.results,
		At:            time.Now(),
	})
	if err != nil {
		msg.reply <- SubmitResult{Err: err}
		return
	}
	r.commit(events, next)
	msg.reply <- SubmitResult{
		Results:   msg.results,
		AllPassed: challenge.AllPassed(msg.results),
		Winner:    r.state.Winner,
	}
}

func (r *Room) apply(cmd battle.Command) {
	events, next, err := battle.Apply(r.state, cmd)
	if err != nil {
		r.log.Debug("command rejected", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return
	}
	r.commit(events, next)
}

// commit installs the successor state, bumps the version, broadcasts, and
// reacts to lifecycle events (arming timers, reporting the end).
func (r *Room) commit(events []battle.Event, next battle.State) {
	// Eventless commands can still mutate (a failed submission updates the
	// pass count); only a truly unchanged state skips the broadcast.
	if len(events) == 0 && statesEqual(r.state, next) {
		return
	}
	r.state = next
	r.version++
	r.broadcast()

	if battle.ContainsEvent(events, battle.EvtBattleStarted) {
		r.armTimer(battle.Remaining(r.state, time.Now()), battle.CmdTimerExpired)
	}
	if r.state.Status == battle.StatusFinishing && battle.ContainsEvent(events, battle.EvtParticipantCompleted) {
		// Arming supersedes the countdown, so the grace window is capped at
		// the remaining time; the room never outlives its time limit.
		grace := time.Duration(r.state.GraceSec) * time.Second
		if rem := battle.Remaining(r.state, time.Now()); rem < grace {
			grace = rem
		}
		r.armTimer(grace, battle.CmdGraceExpired)
	}
	if r.state.Status == battle.StatusCompleted && !r.ended {
		r.ended = true
		r.timerGen++ // disarm any pending countdown
		r.log.Info("battle ended", zap.String("winner", r.state.Winner))
		if r.opts.OnEnded != nil {
			r.opts.OnEnded(r.state)
		}
	}
}

func (r *Room) armTimer(d time.Duration, cmd battle.CommandType) {
	r.timerGen++
	gen := r.timerGen
	time.AfterFunc(d, func() {
		select {
		case r.inbox <- timerFired{gen: gen, cmd: cmd}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) broadcast() {
	snap := Snapshot{Version: r.version, State: r.state}
	for id, ch := range r.clients {
		select {
		case ch <- snap:
		default:
			// Slow or stuck client: drop it.
			close(ch)
			delete(r.clients, id)
		}
	}
}

// dissolve tears the room down after a provisioning failure. Every attached
// client gets one final dissolved snapshot; the failure is retryable.
func (r *Room) dissolve(cause error) {
	r.log.Warn("dissolving room", zap.Error(cause))
	snap := Snapshot{Version: r.version, State: r.state, Dissolved: true, Err: ErrProvisioning.Error()}
	for id, ch := range r.clients {
		select {
		case ch <- snap:
		default:
		}
		close(ch)
		delete(r.clients, id)
	}
	if r.opts.OnDissolved != nil {
		r.opts.OnDissolved(r.state.ID)
	}
	r.cancel()
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}

func participant(s battle.State, id string) (battle.Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return battle.Participant{}, false
}

func statesEqual(a, b battle.State) bool {
	if a.Status != b.Status || a.Winner != b.Winner || len(a.Participants) != len(b.Participants) {
		return false
	}
	for i := range a.Participants {
		if a.Participants[i] != b.Participants[i] {
			return false
		}
	}
	return a.Challenge == b.Challenge
}
