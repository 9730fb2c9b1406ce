package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/match"
)

var ErrAlreadyQueued = errors.New("candidate already queued for this battle type")

// Estimated wait per queue position. A deliberately naive heuristic.
const waitPerPosition = 30 * time.Second

// Matcher is what a pool calls once it has paired two candidates. The
// registry implements it by opening a room.
type Matcher interface {
	CreateMatched(ctx context.Context, battleType string, a, b match.Candidate) (battleID string, err error)
}

// MatchNotice tells a waiting candidate their match arrived.
type MatchNotice struct {
	BattleID string
	Opponent match.Candidate
}

type Msg interface{ isPoolMsg() }

type Join struct {
	Entry match.Candidate
	// Notify, if non-nil, receives the MatchNotice when a later join pairs
	// with this entry. Poll clients pass nil and discover the match via
	// Status instead.
	Notify chan<- MatchNotice
	Reply  chan JoinResult
}

func (Join) isPoolMsg() {}

type Leave struct {
	CandidateID string
	Reply       chan bool
}

func (Leave) isPoolMsg() {}

type Status struct {
	CandidateID string
	Reply       chan StatusResult
}

func (Status) isPoolMsg() {}

// GetState is test-only: reflect internal state without data races.
type GetState struct{ Reply chan View }

func (GetState) isPoolMsg() {}

type Shutdown struct{}

func (Shutdown) isPoolMsg() {}

type JoinResult struct {
	Matched       bool
	BattleID      string
	Opponent      *match.Candidate
	Position      int
	EstimatedWait time.Duration
	Err           error
}

type StatusResult struct {
	InQueue       bool
	BattleType    string
	Position      int
	EstimatedWait time.Duration
	Matched       bool
	BattleID      string
}

type View struct {
	BattleType string
	Size       int
	IDs        []string
}

type waiter struct {
	c      match.Candidate
	notify chan<- MatchNotice
}

// notice is a MatchNotice awaiting collection by a poll client. Uncollected
// notices expire after the TTL so the map cannot grow without bound.
type notice struct {
	MatchNotice
	at time.Time
}

// pool is the waiting list for one battle type. All mutation happens inside
// its loop goroutine, so join/leave/match on the same battle type never
// interleave while different battle types stay independent.
type pool struct {
	battleType string
	inbox      chan Msg
	entries    []waiter // FIFO, index 0 waited longest
	matched    map[string]notice
	cfg        Config
	matcher    Matcher
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func newPool(parent context.Context, battleType string, cfg Config, m Matcher, log *zap.Logger) *pool {
	ctx, cancel := context.WithCancel(parent)
	if cfg.NoticeTTL == 0 {
		cfg.NoticeTTL = 5 * time.Minute
	}
	p := &pool{
		battleType: battleType,
		inbox:      make(chan Msg, 64),
		matched:    make(map[string]notice),
		cfg:        cfg,
		matcher:    m,
		log:        log.With(zap.String("battle_type", battleType)),
		ctx:        ctx,
		cancel:     cancel,
	}
	go p.loop()
	return p
}

func (p *pool) Inbox() chan<- Msg { return p.inbox }

func (p *pool) loop() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case m := <-p.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- p.join(msg)
			case Leave:
				msg.Reply <- p.leave(msg.CandidateID)
			case Status:
				msg.Reply <- p.status(msg.CandidateID)
			case GetState:
				ids := make([]string, len(p.entries))
				for i, e := range p.entries {
					ids[i] = e.c.ID
				}
				msg.Reply <- View{BattleType: p.battleType, Size: len(p.entries), IDs: ids}
			case Shutdown:
				p.cancel()
				return
			}
		}
	}
}

func (p *pool) join(msg Join) JoinResult {
	// Joins are the only way the notice map grows, so sweeping here bounds
	// it even when abandoned poll clients never collect.
	p.sweepNotices(time.Now())

	for _, e := range p.entries {
		if e.c.ID == msg.Entry.ID {
			return JoinResult{Err: ErrAlreadyQueued}
		}
	}

	if partner, ok := p.findMatch(msg.Entry); ok {
		battleID, err := p.matcher.CreateMatched(p.ctx, p.battleType, msg.Entry, partner.c)
		if err != nil {
			p.log.Warn("room creation failed, keeping queue intact", zap.Error(err))
			return JoinResult{Err: err}
		}
		// Partner leaves the queue in the same loop iteration the match is
		// accepted; no other operation can observe the half-consumed pair.
		p.remove(partner.c.ID)
		p.matched[partner.c.ID] = notice{MatchNotice{BattleID: battleID, Opponent: msg.Entry}, time.Now()}
		if partner.notify != nil {
			select {
			case partner.notify <- MatchNotice{BattleID: battleID, Opponent: msg.Entry}:
			default:
			}
		}
		p.log.Info("matched",
			zap.String("battle_id", battleID),
			zap.String("a", msg.Entry.ID),
			zap.String("b", partner.c.ID))
		opp := partner.c
		return JoinResult{Matched: true, BattleID: battleID, Opponent: &opp}
	}

	p.entries = append(p.entries, waiter{c: msg.Entry, notify: msg.Notify})
	pos := len(p.entries)
	return JoinResult{
		Position:      pos,
		EstimatedWait: time.Duration(pos) * waitPerPosition,
	}
}

// findMatch ranks every waiting entry with the scorer and takes the best
// one above the acceptance threshold. When nobody clears it but the queue
// is deep enough, the longest-waiting entry is taken anyway so nobody
// starves on a bad score.
func (p *pool) findMatch(entry match.Candidate) (waiter, bool) {
	if len(p.entries) == 0 {
		return waiter{}, false
	}
	now := time.Now()
	best := -1
	bestScore := 0.0
	for i, e := range p.entries {
		if s := match.Score(entry, e.c, now); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best >= 0 && bestScore > p.cfg.MatchThreshold {
		return p.entries[best], true
	}
	if len(p.entries) >= p.cfg.StarvationMin {
		return p.entries[0], true
	}
	return waiter{}, false
}

func (p *pool) leave(candidateID string) bool {
	// Removing an absent entry is still success.
	p.remove(candidateID)
	return true
}

func (p *pool) status(candidateID string) StatusResult {
	if n, ok := p.matched[candidateID]; ok {
		delete(p.matched, candidateID)
		if time.Since(n.at) <= p.cfg.NoticeTTL {
			return StatusResult{Matched: true, BattleID: n.BattleID, BattleType: p.battleType}
		}
		return StatusResult{}
	}
	for i, e := range p.entries {
		if e.c.ID == candidateID {
			pos := i + 1
			return StatusResult{
				InQueue:       true,
				BattleType:    p.battleType,
				Position:      pos,
				EstimatedWait: time.Duration(pos) * waitPerPosition,
			}
		}
	}
	return StatusResult{}
}

func (p *pool) sweepNotices(now time.Time) {
	for id, n := range p.matched {
		if now.Sub(n.at) > p.cfg.NoticeTTL {
			delete(p.matched, id)
		}
	}
}

func (p *pool) remove(candidateID string) {
	for i, e := range p.entries {
		if e.c.ID == candidateID {
			p.entries = append(p.entries[:i:i], p.entries[i+1:]...)
			return
		}
	}
}
