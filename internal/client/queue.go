package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codeclash/battle-backend/pkg/types"
)

// ErrQueueTimeout reports that the soft wait cap elapsed with no match. The
// candidate has already left the queue when this comes back.
var ErrQueueTimeout = errors.New("no match within the queue wait cap")

const (
	defaultQueueSoftCap   = 2 * time.Minute
	defaultStatusInterval = time.Second
)

// QueueWaiter is the poll-mode queue flow: join, watch status, give up
// after the soft cap. The cap is client policy — the server keeps an entry
// queued until told otherwise, so a timed-out waiter leaves explicitly
// before reporting failure.
type QueueWaiter struct {
	BaseURL      string
	SoftCap      time.Duration
	PollInterval time.Duration
}

// Wait joins the queue and blocks until a match arrives, the soft cap
// elapses, or ctx is canceled. On success it returns the battle id to hand
// to an Orchestrator.
func (q QueueWaiter) Wait(ctx context.Context, req types.JoinQueueRequest) (string, error) {
	softCap := q.SoftCap
	if softCap == 0 {
		softCap = defaultQueueSoftCap
	}
	interval := q.PollInterval
	if interval == 0 {
		interval = defaultStatusInterval
	}

	join, err := q.join(ctx, req)
	if err != nil {
		return "", err
	}
	if join.Matched {
		return join.BattleID, nil
	}

	deadline := time.NewTimer(softCap)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.leave(req)
			return "", ctx.Err()
		case <-deadline.C:
			q.leave(req)
			return "", ErrQueueTimeout
		case <-ticker.C:
			st, err := q.status(ctx, req.CandidateID)
			if err != nil {
				continue // transient; the deadline still bounds the wait
			}
			if st.Matched {
				return st.BattleID, nil
			}
		}
	}
}

func (q QueueWaiter) join(ctx context.Context, req types.JoinQueueRequest) (types.JoinQueueResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return types.JoinQueueResponse{}, err
	}
	url := fmt.Sprintf("%s/queue/join", strings.TrimRight(q.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return types.JoinQueueResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return types.JoinQueueResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e types.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return types.JoinQueueResponse{}, fmt.Errorf("join queue: %s (status %d)", e.Error, resp.StatusCode)
	}
	var out types.JoinQueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.JoinQueueResponse{}, err
	}
	return out, nil
}

func (q QueueWaiter) status(ctx context.Context, candidateID string) (types.QueueStatusResponse, error) {
	url := fmt.Sprintf("%s/queue/status?candidate=%s", strings.TrimRight(q.BaseURL, "/"), candidateID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.QueueStatusResponse{}, err
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return types.QueueStatusResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.QueueStatusResponse{}, fmt.Errorf("queue status: unexpected status %d", resp.StatusCode)
	}
	var out types.QueueStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.QueueStatusResponse{}, err
	}
	return out, nil
}

// leave is best effort with its own deadline; the caller's ctx may already
// be canceled.
func (q QueueWaiter) leave(req types.JoinQueueRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	payload, err := json.Marshal(types.LeaveQueueRequest{CandidateID: req.CandidateID, BattleType: req.BattleType})
	if err != nil {
		return
	}
	url := fmt.Sprintf("%s/queue/leave", strings.TrimRight(q.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if resp, err := http.DefaultClient.Do(httpReq); err == nil {
		resp.Body.Close()
	}
}
