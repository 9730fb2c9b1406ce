package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/match"
)

// Config tunes matchmaking. The starvation minimum is a heuristic with no
// deep rationale behind its default, so it stays configurable.
type Config struct {
	MatchThreshold float64       // accept a scored match above this
	StarvationMin  int           // take the longest waiter once this many wait
	NoticeTTL      time.Duration // how long an uncollected match notice is kept
}

func DefaultConfig() Config {
	return Config{MatchThreshold: 0.3, StarvationMin: 3, NoticeTTL: 5 * time.Minute}
}

type mgrMsg interface{ isMgrMsg() }

type ensurePool struct {
	battleType string
	reply      chan *pool
}

type getPool struct {
	battleType string
	reply      chan *pool
}

type listPools struct{ reply chan []*pool }

type shutdownMgr struct{}

func (ensurePool) isMgrMsg()  {}
func (getPool) isMgrMsg()     {}
func (listPools) isMgrMsg()   {}
func (shutdownMgr) isMgrMsg() {}

// Manager owns one pool per battle type. It is the only writer of the pool
// map; the pools themselves serialize their own queues, so traffic for
// different battle types never contends.
type Manager struct {
	inbox   chan mgrMsg
	pools   map[string]*pool
	cfg     Config
	matcher Matcher
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewManager(parent context.Context, cfg Config, m Matcher, log *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)
	mgr := &Manager{
		inbox:   make(chan mgrMsg, 64),
		pools:   make(map[string]*pool),
		cfg:     cfg,
		matcher: m,
		log:     log.Named("queue"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go mgr.loop()
	return mgr
}

func (m *Manager) loop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case ensurePool:
				p := m.pools[msg.battleType]
				if p == nil {
					p = newPool(m.ctx, msg.battleType, m.cfg, m.matcher, m.log)
					m.pools[msg.battleType] = p
				}
				msg.reply <- p
			case getPool:
				msg.reply <- m.pools[msg.battleType] // may be nil
			case listPools:
				out := make([]*pool, 0, len(m.pools))
				for _, p := range m.pools {
					out = append(out, p)
				}
				msg.reply <- out
			case shutdownMgr:
				for _, p := range m.pools {
					p.Inbox() <- Shutdown{}
				}
				clear(m.pools)
				m.cancel()
				return
			}
		}
	}
}

// Join enqueues the candidate in the battle type's pool, matching
// immediately when a compatible partner is waiting. notify may be nil.
func (m *Manager) Join(battleType string, entry match.Candidate, notify chan<- MatchNotice) JoinResult {
	entry.BattleType = battleType
	p := m.ensure(battleType)
	reply := make(chan JoinResult, 1)
	p.Inbox() <- Join{Entry: entry, Notify: notify, Reply: reply}
	return <-reply
}

// Leave is idempotent: leaving a queue the candidate isn't in succeeds.
func (m *Manager) Leave(battleType, candidateID string) bool {
	p := m.get(battleType)
	if p == nil {
		return true
	}
	reply := make(chan bool, 1)
	p.Inbox() <- Leave{CandidateID: candidateID, Reply: reply}
	return <-reply
}

// Status scans every pool and reports the first one holding the candidate,
// or a fresh match the candidate hasn't collected yet.
func (m *Manager) Status(candidateID string) StatusResult {
	reply := make(chan []*pool, 1)
	m.inbox <- listPools{reply: reply}
	for _, p := range <-reply {
		r := make(chan StatusResult, 1)
		p.Inbox() <- Status{CandidateID: candidateID, Reply: r}
		if res := <-r; res.InQueue || res.Matched {
			return res
		}
	}
	return StatusResult{}
}

// PoolView is test-only.
func (m *Manager) PoolView(battleType string) View {
	p := m.get(battleType)
	if p == nil {
		return View{BattleType: battleType}
	}
	reply := make(chan View, 1)
	p.Inbox() <- GetState{Reply: reply}
	return <-reply
}

func (m *Manager) Shutdown() {
	m.inbox <- shutdownMgr{}
}

func (m *Manager) ensure(battleType string) *pool {
	reply := make(chan *pool, 1)
	m.inbox <- ensurePool{battleType: battleType, reply: reply}
	return <-reply
}

func (m *Manager) get(battleType string) *pool {
	reply := make(chan *pool, 1)
	m.inbox <- getPool{battleType: battleType, reply: reply}
	return <-reply
}
