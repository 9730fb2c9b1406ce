// Package client is the session-side counterpart of the server transports:
// it keeps one battle's view synchronized over a push channel when it can,
// and degrades to polling when it can't, without losing session state.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/pkg/types"
)

var ErrDisconnected = errors.New("disconnected: both transports unavailable, retry")

type Mode string

const (
	ModePush         Mode = "push"
	ModePoll         Mode = "poll"
	ModeDisconnected Mode = "disconnected"
)

// ConnectionState is the client-local transport view.
type ConnectionState struct {
	Mode              Mode
	Snapshot          *types.BattleSnapshot
	ReconnectAttempts int
}

type Options struct {
	PushConnectTimeout time.Duration
	PollInterval       time.Duration
	Logger             *zap.Logger
	// OnSnapshot observes every reconciled snapshot, whichever transport
	// delivered it.
	OnSnapshot func(types.BattleSnapshot)
	// OnEvent observes raw push events. Poll mode produces none.
	OnEvent func(types.ServerEvent)
}

// Orchestrator drives exactly one transport at a time. All transitions stop
// the old transport completely before starting the next one, so no event is
// ever applied twice.
type Orchestrator struct {
	baseURL string
	opts    Options
	log     *zap.Logger

	mu            sync.Mutex
	state         ConnectionState
	battleID      string
	participantID string
	push          *pushTransport
	poll          *pollTransport
	pendingResult chan types.ServerEvent
}

func New(baseURL string, opts Options) *Orchestrator {
	if opts.PushConnectTimeout == 0 {
		opts.PushConnectTimeout = 5 * time.Second
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		baseURL: baseURL,
		opts:    opts,
		log:     opts.Logger.Named("client"),
		state:   ConnectionState{Mode: ModeDisconnected},
	}
}

// Connect attaches to the battle. It attempts the push channel under the
// connect timeout and falls back to polling on any failure; the transport
// error is recovered here, never surfaced.
func (o *Orchestrator) Connect(ctx context.Context, battleID, participantID string) error {
	o.mu.Lock()
	o.battleID = battleID
	o.participantID = participantID
	o.mu.Unlock()

	p, err := dialPush(ctx, o, battleID, participantID)
	if err == nil {
		o.mu.Lock()
		o.push = p
		o.state.Mode = ModePush
		o.mu.Unlock()
		return nil
	}

	o.log.Info("push transport unavailable, degrading to poll", zap.Error(err))
	return o.startPoll(ctx)
}

// fallback is invoked by the push transport when the channel drops
// mid-battle. The push side has fully stopped by the time this runs.
func (o *Orchestrator) fallback(ctx context.Context) {
	o.mu.Lock()
	o.push = nil
	o.state.ReconnectAttempts++
	o.mu.Unlock()

	if ctx.Err() != nil {
		o.setMode(ModeDisconnected)
		return
	}
	o.log.Warn("push channel dropped, degrading to poll")
	if err := o.startPoll(ctx); err != nil {
		o.setMode(ModeDisconnected)
	}
}

func (o *Orchestrator) startPoll(ctx context.Context) error {
	p := startPoll(ctx, o)
	o.mu.Lock()
	o.poll = p
	o.state.Mode = ModePoll
	o.mu.Unlock()
	return nil
}

// Close stops whichever transport is active.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	push, poll := o.push, o.poll
	o.push, o.poll = nil, nil
	o.state.Mode = ModeDisconnected
	o.mu.Unlock()

	if push != nil {
		push.stop()
	}
	if poll != nil {
		poll.stop()
	}
}

func (o *Orchestrator) State() ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.state
	if o.state.Snapshot != nil {
		snap := *o.state.Snapshot
		st.Snapshot = &snap
	}
	return st
}

// Remaining derives the countdown from the last synchronized snapshot.
// Never decremented locally; always recomputed from createdAt + timeLimit,
// so a transport fallback cannot introduce drift.
func (o *Orchestrator) Remaining(now time.Time) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Snapshot == nil {
		return 0
	}
	return SnapshotRemaining(*o.state.Snapshot, now)
}

// SubmitCode is transport-agnostic: a channel message in push mode, a
// request body in poll mode. The server treats resubmission after a
// recorded result as a no-op either way.
func (o *Orchestrator) SubmitCode(ctx context.Context, code, language string) (types.SubmitCodeResponse, error) {
	o.mu.Lock()
	mode := o.state.Mode
	push := o.push
	battleID, participantID := o.battleID, o.participantID
	o.mu.Unlock()

	switch mode {
	case ModePush:
		res, err := push.submit(ctx, code, language)
		if err == nil {
			return res, nil
		}
		// A failed push submission is a transport problem, not a user
		// one: degrade and retry over HTTP.
		o.log.Warn("push submission failed, retrying over http", zap.Error(err))
		return httpSubmit(ctx, o.baseURL, battleID, participantID, code, language)
	case ModePoll:
		return httpSubmit(ctx, o.baseURL, battleID, participantID, code, language)
	default:
		return types.SubmitCodeResponse{}, ErrDisconnected
	}
}

// reconcile installs an authoritative snapshot. Poll mode calls this every
// interval with the fetched room; push mode calls it for every snapshot
// event. Replacement is total: the client never merges deltas.
func (o *Orchestrator) reconcile(snap types.BattleSnapshot) {
	o.mu.Lock()
	o.state.Snapshot = &snap
	o.mu.Unlock()
	if o.opts.OnSnapshot != nil {
		o.opts.OnSnapshot(snap)
	}
}

func (o *Orchestrator) observe(ev types.ServerEvent) {
	if o.opts.OnEvent != nil {
		o.opts.OnEvent(ev)
	}
}

func (o *Orchestrator) setMode(m Mode) {
	o.mu.Lock()
	o.state.Mode = m
	o.mu.Unlock()
}
