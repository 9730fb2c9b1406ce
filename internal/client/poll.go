package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/pkg/types"
)

// Consecutive poll failures before the user-visible state degrades to
// disconnected. Polling keeps trying regardless; the status is retryable.
const pollFailureTolerance = 3

// pollTransport fetches the authoritative room snapshot on a fixed
// interval. Stopping it is one cancellation, nothing to untrack.
type pollTransport struct {
	o      *Orchestrator
	cancel context.CancelFunc
	done   chan struct{}
}

func startPoll(ctx context.Context, o *Orchestrator) *pollTransport {
	runCtx, cancel := context.WithCancel(ctx)
	p := &pollTransport{o: o, cancel: cancel, done: make(chan struct{})}
	go p.loop(runCtx)
	return p
}

func (p *pollTransport) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.o.opts.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		// Fetch immediately, then on every tick.
		if snap, err := p.fetch(ctx); err == nil {
			failures = 0
			p.o.setMode(ModePoll)
			p.o.reconcile(snap)
			if snap.Status == "completed" {
				return
			}
		} else if ctx.Err() != nil {
			return
		} else {
			failures++
			p.o.log.Warn("poll failed", zap.Int("consecutive", failures), zap.Error(err))
			if failures >= pollFailureTolerance {
				p.o.setMode(ModeDisconnected)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *pollTransport) fetch(ctx context.Context) (types.BattleSnapshot, error) {
	p.o.mu.Lock()
	battleID := p.o.battleID
	p.o.mu.Unlock()

	url := fmt.Sprintf("%s/battles/%s", strings.TrimRight(p.o.baseURL, "/"), battleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.BattleSnapshot{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.BattleSnapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.BattleSnapshot{}, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
	}
	var snap types.BattleSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return types.BattleSnapshot{}, err
	}
	return snap, nil
}

func (p *pollTransport) stop() {
	p.cancel()
	<-p.done
}

// httpSubmit is the poll-mode expression of submit_code, also used as the
// push path's recovery route.
func httpSubmit(ctx context.Context, baseURL, battleID, participantID, code, language string) (types.SubmitCodeResponse, error) {
	body := types.SubmitCodeRequest{ParticipantID: participantID, Code: code, Language: language}
	payload, err := json.Marshal(body)
	if err != nil {
		return types.SubmitCodeResponse{}, err
	}
	url := fmt.Sprintf("%s/battles/%s/submit", strings.TrimRight(baseURL, "/"), battleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return types.SubmitCodeResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.SubmitCodeResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e types.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return types.SubmitCodeResponse{}, fmt.Errorf("submit: %s (status %d)", e.Error, resp.StatusCode)
	}
	var out types.SubmitCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.SubmitCodeResponse{}, err
	}
	return out, nil
}

// wsURL rewrites an http(s) base URL to its websocket endpoint.
func wsURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
