package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/codeclash/battle-backend/pkg/types"
)

var errSubmitTimeout = errors.New("no result event for submission")

// pushTransport owns one websocket connection. Its reader goroutine is the
// only consumer; stopping the transport cancels the reader before anything
// else runs, so a poll takeover can't see duplicate events.
type pushTransport struct {
	conn   *websocket.Conn
	o      *Orchestrator
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex
	mu      sync.Mutex
	pending chan types.ServerEvent
}

// dialPush connects and attaches within the orchestrator's connect timeout.
func dialPush(ctx context.Context, o *Orchestrator, battleID, participantID string) (*pushTransport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, o.opts.PushConnectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL(o.baseURL), nil)
	if err != nil {
		return nil, err
	}

	runCtx, stop := context.WithCancel(ctx)
	p := &pushTransport{
		conn:   conn,
		o:      o,
		cancel: stop,
		done:   make(chan struct{}),
	}

	attach := types.ClientMessage{Type: types.MsgAttach, BattleID: battleID, CandidateID: participantID}
	if err := p.write(dialCtx, attach); err != nil {
		stop()
		_ = conn.Close(websocket.StatusProtocolError, "attach failed")
		return nil, err
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return p.readLoop(gctx) })
	go func() {
		err := g.Wait()
		close(p.done)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		if err != nil && runCtx.Err() == nil {
			// The channel dropped on its own; hand control to polling.
			o.fallback(ctx)
		}
	}()
	return p, nil
}

func (p *pushTransport) readLoop(ctx context.Context) error {
	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			return err
		}
		var ev types.ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		p.apply(ev)
	}
}

// apply handles one push event incrementally.
func (p *pushTransport) apply(ev types.ServerEvent) {
	p.o.observe(ev)
	switch ev.Type {
	case types.EventSnapshot:
		if ev.Snapshot != nil {
			p.o.reconcile(*ev.Snapshot)
		}
	case types.EventCodeResult, types.EventError:
		p.mu.Lock()
		pending := p.pending
		p.pending = nil
		p.mu.Unlock()
		if pending != nil {
			pending <- ev
		}
	}
}

func (p *pushTransport) submit(ctx context.Context, code, language string) (types.SubmitCodeResponse, error) {
	result := make(chan types.ServerEvent, 1)
	p.mu.Lock()
	p.pending = result
	p.mu.Unlock()

	msg := types.ClientMessage{Type: types.MsgSubmit, Code: code, Language: language}
	if err := p.write(ctx, msg); err != nil {
		return types.SubmitCodeResponse{}, err
	}

	select {
	case <-ctx.Done():
		return types.SubmitCodeResponse{}, ctx.Err()
	case <-p.done:
		return types.SubmitCodeResponse{}, errSubmitTimeout
	case ev := <-result:
		if ev.Type == types.EventError {
			return types.SubmitCodeResponse{}, errors.New(ev.Error)
		}
		return types.SubmitCodeResponse{
			TestResults: ev.TestResults,
			AllPassed:   ev.AllPassed,
			Winner:      ev.Winner,
		}, nil
	}
}

func (p *pushTransport) write(ctx context.Context, msg types.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.Write(ctx, websocket.MessageText, payload)
}

// stop fully halts the reader before returning.
func (p *pushTransport) stop() {
	p.cancel()
	<-p.done
}
