package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/archive"
	"github.com/codeclash/battle-backend/internal/battle"
	"github.com/codeclash/battle-backend/internal/challenge"
	"github.com/codeclash/battle-backend/internal/match"
	"github.com/codeclash/battle-backend/internal/room"
)

var ErrNotFound = errors.New("battle not found")

const matchedCapacity = 2

type Msg interface{ isRegistryMsg() }

type CreateMatched struct {
	BattleType string
	A, B       match.Candidate
	Reply      chan CreateResult
}

func (CreateMatched) isRegistryMsg() {}

type CreatePrivate struct {
	BattleType string
	Owner      match.Candidate
	Reply      chan CreateResult
}

func (CreatePrivate) isRegistryMsg() {}

type Get struct {
	BattleID string
	Reply    chan *room.Room
}

func (Get) isRegistryMsg() {}

type Remove struct{ BattleID string }

func (Remove) isRegistryMsg() {}

type ShutdownRegistry struct{}

func (ShutdownRegistry) isRegistryMsg() {}

type CreateResult struct {
	BattleID   string
	InviteCode string
	Room       *room.Room
	Err        error
}

// Config carries the room timing knobs the registry stamps onto every room
// it opens.
type Config struct {
	GraceSec         int
	ProvisionTimeout time.Duration
	Retention        time.Duration
}

func DefaultConfig() Config {
	return Config{
		GraceSec:         0,
		ProvisionTimeout: 10 * time.Second,
		Retention:        5 * time.Minute,
	}
}

// Registry tracks every live room. Like the queue pools, all map mutation
// happens inside one loop goroutine.
type Registry struct {
	inbox   chan Msg
	rooms   map[string]*room.Room
	cfg     Config
	prov    challenge.Provisioner
	runner  challenge.Runner
	store   *archive.Store
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, cfg Config, prov challenge.Provisioner, runner challenge.Runner, store *archive.Store, log *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	reg := &Registry{
		inbox:  make(chan Msg, 64),
		rooms:  make(map[string]*room.Room),
		cfg:    cfg,
		prov:   prov,
		runner: runner,
		store:  store,
		log:    log.Named("registry"),
		ctx:    ctx,
		cancel: cancel,
	}
	go reg.loop()
	return reg
}

func (reg *Registry) Inbox() chan<- Msg { return reg.inbox }

func (reg *Registry) loop() {
	for {
		select {
		case <-reg.ctx.Done():
			return
		case m := <-reg.inbox:
			switch msg := m.(type) {
			case CreateMatched:
				msg.Reply <- reg.create(msg.BattleType, []match.Candidate{msg.A, msg.B})
			case CreatePrivate:
				msg.Reply <- reg.create(msg.BattleType, []match.Candidate{msg.Owner})
			case Get:
				msg.Reply <- reg.rooms[msg.BattleID] // may be nil
			case Remove:
				if rm := reg.rooms[msg.BattleID]; rm != nil {
					rm.Inbox() <- room.Shutdown{}
					delete(reg.rooms, msg.BattleID)
				}
			case ShutdownRegistry:
				for _, rm := range reg.rooms {
					rm.Inbox() <- room.Shutdown{}
				}
				clear(reg.rooms)
				reg.cancel()
				return
			}
		}
	}
}

func (reg *Registry) create(battleType string, founders []match.Candidate) CreateResult {
	id := uuid.New().String()
	state := battle.NewState(id, battleType, matchedCapacity, time.Now())
	state.GraceSec = reg.cfg.GraceSec
	for _, c := range founders {
		state.Participants = append(state.Participants, battle.Participant{ID: c.ID, Name: c.Name})
	}

	rm := room.New(reg.ctx, state, room.Options{
		Provisioner:      reg.prov,
		Runner:           reg.runner,
		Logger:           reg.log,
		Request:          provisionRequest(battleType, founders),
		ProvisionTimeout: reg.cfg.ProvisionTimeout,
		OnEnded:          func(final battle.State) { reg.retire(final) },
		OnDissolved:      func(battleID string) { reg.inbox <- Remove{BattleID: battleID} },
	})
	reg.rooms[id] = rm
	reg.log.Info("room opened",
		zap.String("battle_id", id),
		zap.String("battle_type", battleType),
		zap.Int("founders", len(founders)))
	return CreateResult{BattleID: id, InviteCode: state.InviteCode, Room: rm}
}

// retire archives the finished battle and schedules the room for removal
// after the retention window, leaving it pollable in the meantime.
func (reg *Registry) retire(final battle.State) {
	if reg.store != nil {
		go func() {
			if err := reg.store.SaveCompleted(reg.ctx, final); err != nil {
				reg.log.Warn("archive write failed", zap.String("battle_id", final.ID), zap.Error(err))
			}
		}()
	}
	id := final.ID
	time.AfterFunc(reg.cfg.Retention, func() {
		select {
		case reg.inbox <- Remove{BattleID: id}:
		case <-reg.ctx.Done():
		}
	})
}

func provisionRequest(battleType string, founders []match.Candidate) challenge.Request {
	req := challenge.Request{BattleType: battleType}
	if len(founders) == 0 {
		return req
	}
	for _, c := range founders {
		req.AvgRating += c.Rating
		req.AvgLevel += c.Level
	}
	req.AvgRating /= len(founders)
	req.AvgLevel /= len(founders)
	return req
}

// ---- call-style wrappers ------------------------------------------------

// CreateMatched implements queue.Matcher.
func (reg *Registry) CreateMatched(_ context.Context, battleType string, a, b match.Candidate) (string, error) {
	reply := make(chan CreateResult, 1)
	reg.inbox <- CreateMatched{BattleType: battleType, A: a, B: b, Reply: reply}
	res := <-reply
	return res.BattleID, res.Err
}

func (reg *Registry) OpenPrivate(battleType string, owner match.Candidate) CreateResult {
	reply := make(chan CreateResult, 1)
	reg.inbox <- CreatePrivate{BattleType: battleType, Owner: owner, Reply: reply}
	return <-reply
}

func (reg *Registry) Lookup(battleID string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	reg.inbox <- Get{BattleID: battleID, Reply: reply}
	rm := <-reply
	if rm == nil {
		return nil, ErrNotFound
	}
	return rm, nil
}

// JoinPrivate seats a candidate in an existing private room.
func (reg *Registry) JoinPrivate(battleID string, c match.Candidate) error {
	rm, err := reg.Lookup(battleID)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	rm.Inbox() <- room.AddParticipant{ID: c.ID, Name: c.Name, Reply: reply}
	select {
	case err := <-reply:
		return err
	case <-rm.Done():
		select {
		case err := <-reply:
			return err
		default:
			return ErrNotFound
		}
	}
}

func (reg *Registry) Shutdown() {
	reg.inbox <- ShutdownRegistry{}
}
