package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/battle"
	"github.com/codeclash/battle-backend/internal/match"
	"github.com/codeclash/battle-backend/internal/queue"
	"github.com/codeclash/battle-backend/internal/registry"
	"github.com/codeclash/battle-backend/internal/room"
	"github.com/codeclash/battle-backend/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 60 * time.Second
)

// Handler is the push transport. One connection serves the whole session:
// queueing, the match notification, room snapshots, and submissions.
func Handler(qm *queue.Manager, reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s := &session{
			conn: conn,
			out:  make(chan types.ServerEvent, 32),
			qm:   qm,
			reg:  reg,
			log:  log.Named("ws"),
			ctx:  ctx,
		}

		// Writer goroutine: the only place that touches conn for writes.
		go s.writeLoop()
		defer s.detach()

		s.readLoop()
	}
}

type session struct {
	conn *websocket.Conn
	out  chan types.ServerEvent
	qm   *queue.Manager
	reg  *registry.Registry
	log  *zap.Logger
	ctx  context.Context

	mu          sync.Mutex
	candidateID string
	battleID    string
	snapIn      chan room.Snapshot
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.out:
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := s.conn.Write(ctx, websocket.MessageText, ev.Encode())
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *session) readLoop() {
	for {
		ctx, cancel := context.WithTimeout(s.ctx, readTimeout)
		_, data, err := s.conn.Read(ctx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.send(types.ServerEvent{Type: types.EventError, Error: "bad json"})
			continue
		}
		s.handle(cm)
	}
}

func (s *session) handle(cm types.ClientMessage) {
	switch cm.Type {
	case types.MsgJoinQueue:
		s.joinQueue(cm)
	case types.MsgLeaveQueue:
		if cm.CandidateID == "" || cm.BattleType == "" {
			s.send(types.ServerEvent{Type: types.EventError, Error: "candidateId and battleType required"})
			return
		}
		s.qm.Leave(cm.BattleType, cm.CandidateID)
	case types.MsgAttach:
		if cm.BattleID == "" {
			s.send(types.ServerEvent{Type: types.EventError, Error: "battleId required"})
			return
		}
		s.setCandidate(cm.CandidateID)
		if err := s.attach(cm.BattleID, nil); err != nil {
			s.send(types.ServerEvent{Type: types.EventError, Error: err.Error()})
		}
	case types.MsgSubmit:
		s.submit(cm)
	default:
		s.send(types.ServerEvent{Type: types.EventError, Error: "unknown type"})
	}
}

func (s *session) joinQueue(cm types.ClientMessage) {
	if cm.CandidateID == "" || cm.BattleType == "" {
		s.send(types.ServerEvent{Type: types.EventError, Error: "candidateId and battleType required"})
		return
	}
	s.setCandidate(cm.CandidateID)

	notify := make(chan queue.MatchNotice, 1)
	res := s.qm.Join(cm.BattleType, match.Candidate{
		ID:        cm.CandidateID,
		Name:      cm.Name,
		Rating:    cm.Rating,
		Level:     cm.Level,
		Languages: cm.Languages,
		JoinedAt:  time.Now(),
	}, notify)
	if res.Err != nil {
		s.send(types.ServerEvent{Type: types.EventError, Error: res.Err.Error()})
		return
	}

	if res.Matched {
		s.matched(res.BattleID, *res.Opponent)
		return
	}

	s.send(types.ServerEvent{Type: types.EventQueueJoined, Position: res.Position})
	go func() {
		select {
		case <-s.ctx.Done():
		case n := <-notify:
			s.matched(n.BattleID, n.Opponent)
		}
	}()
}

// matched attaches to the fresh room and defers the battle-matched event to
// the first snapshot carrying the provisioned challenge, so the client gets
// the full {challenge, opponent, timeLimitMs} payload in one piece.
func (s *session) matched(battleID string, opponent match.Candidate) {
	opp := &types.OpponentSummary{
		ID:     opponent.ID,
		Name:   opponent.Name,
		Rating: opponent.Rating,
		Level:  opponent.Level,
	}
	if err := s.attach(battleID, opp); err != nil {
		s.send(types.ServerEvent{Type: types.EventError, Error: err.Error()})
	}
}

func (s *session) attach(battleID string, opp *types.OpponentSummary) error {
	rm, err := s.reg.Lookup(battleID)
	if err != nil {
		return err
	}

	snapIn := make(chan room.Snapshot, 8)

	s.mu.Lock()
	s.detachLocked()
	s.battleID = battleID
	s.snapIn = snapIn
	clientID := s.clientIDLocked()
	s.mu.Unlock()

	rm.Inbox() <- room.Attach{ClientID: clientID, Outbox: snapIn}
	go s.relay(battleID, snapIn, opp)
	return nil
}

// relay turns room snapshots into push events. The battle-matched event is
// emitted once the challenge exists; battle-ended is emitted exactly once
// when the room completes.
func (s *session) relay(battleID string, snapIn <-chan room.Snapshot, opp *types.OpponentSummary) {
	announced := opp == nil
	ended := false
	for {
		select {
		case <-s.ctx.Done():
			return
		case snap, ok := <-snapIn:
			if !ok {
				return
			}
			if snap.Dissolved {
				s.send(types.ServerEvent{Type: types.EventError, BattleID: battleID, Error: snap.Err})
				return
			}
			if !announced && snap.State.Challenge != nil {
				announced = true
				s.send(types.ServerEvent{
					Type:        types.EventBattleMatched,
					BattleID:    battleID,
					Challenge:   battle.WireChallenge(*snap.State.Challenge),
					Opponent:    opp,
					TimeLimitMs: int64(snap.State.TimeLimitSec) * 1000,
				})
			}
			wire := battle.Wire(snap.State, snap.Version, time.Now())
			s.send(types.ServerEvent{Type: types.EventSnapshot, Snapshot: &wire})
			if snap.State.Status == battle.StatusCompleted && !ended {
				ended = true
				s.send(types.ServerEvent{Type: types.EventBattleEnded, Winner: snap.State.Winner})
			}
		}
	}
}

func (s *session) submit(cm types.ClientMessage) {
	s.mu.Lock()
	battleID := s.battleID
	candidateID := s.candidateID
	s.mu.Unlock()

	if battleID == "" {
		s.send(types.ServerEvent{Type: types.EventError, Error: "not attached to a battle"})
		return
	}
	if cm.CandidateID != "" {
		candidateID = cm.CandidateID
	}
	rm, err := s.reg.Lookup(battleID)
	if err != nil {
		s.send(types.ServerEvent{Type: types.EventError, Error: err.Error()})
		return
	}

	reply := make(chan room.SubmitResult, 1)
	rm.Inbox() <- room.Submit{
		ParticipantID: candidateID,
		Code:          cm.Code,
		Language:      cm.Language,
		Reply:         reply,
	}
	go func() {
		var res room.SubmitResult
		select {
		case <-s.ctx.Done():
			return
		case <-rm.Done():
			select {
			case res = <-reply:
			default:
				s.send(types.ServerEvent{Type: types.EventError, Error: registry.ErrNotFound.Error()})
				return
			}
		case res = <-reply:
		}
		if res.Err != nil {
			s.send(types.ServerEvent{Type: types.EventError, Error: res.Err.Error()})
			return
		}
		s.send(types.ServerEvent{
			Type:        types.EventCodeResult,
			TestResults: battle.WireResults(res.Results),
			AllPassed:   res.AllPassed,
			Winner:      res.Winner,
		})
	}()
}

func (s *session) send(ev types.ServerEvent) {
	select {
	case s.out <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) setCandidate(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.candidateID = id
	s.mu.Unlock()
}

func (s *session) clientIDLocked() string {
	if s.candidateID != "" {
		return s.candidateID
	}
	return "anon"
}

func (s *session) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()
}

func (s *session) detachLocked() {
	if s.battleID == "" {
		return
	}
	if rm, err := s.reg.Lookup(s.battleID); err == nil {
		rm.Inbox() <- room.Detach{ClientID: s.clientIDLocked()}
	}
	s.battleID = ""
	s.snapIn = nil
}
