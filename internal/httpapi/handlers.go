package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/battle"
	"github.com/codeclash/battle-backend/internal/match"
	"github.com/codeclash/battle-backend/internal/queue"
	"github.com/codeclash/battle-backend/internal/registry"
	"github.com/codeclash/battle-backend/internal/room"
	"github.com/codeclash/battle-backend/pkg/types"
)

var errValidation = errors.New("missing or malformed request field")

// API bundles the injected services every handler needs.
type API struct {
	Queue    *queue.Manager
	Registry *registry.Registry
	Log      *zap.Logger
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errValidation):
		status = http.StatusBadRequest
	case errors.Is(err, queue.ErrAlreadyQueued),
		errors.Is(err, battle.ErrDuplicateParticipant),
		errors.Is(err, battle.ErrRoomFull),
		errors.Is(err, battle.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, battle.ErrNotParticipant):
		status = http.StatusNotFound
	case errors.Is(err, room.ErrProvisioning), errors.Is(err, room.ErrGrading):
		status = http.StatusServiceUnavailable
	}
	respond(w, status, types.ErrorResponse{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errValidation
	}
	return nil
}

func (a *API) JoinQueue(w http.ResponseWriter, r *http.Request) {
	var req types.JoinQueueRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.CandidateID == "" || req.BattleType == "" {
		respondErr(w, errValidation)
		return
	}

	res := a.Queue.Join(req.BattleType, match.Candidate{
		ID:        req.CandidateID,
		Name:      req.Name,
		Rating:    req.Rating,
		Level:     req.Level,
		Languages: req.Languages,
		JoinedAt:  time.Now(),
	}, nil)
	if res.Err != nil {
		respondErr(w, res.Err)
		return
	}

	out := types.JoinQueueResponse{Matched: res.Matched}
	if res.Matched {
		out.BattleID = res.BattleID
		out.Opponent = &types.OpponentSummary{
			ID:     res.Opponent.ID,
			Name:   res.Opponent.Name,
			Rating: res.Opponent.Rating,
			Level:  res.Opponent.Level,
		}
	} else {
		out.Position = res.Position
		out.EstimatedWaitSeconds = int(res.EstimatedWait.Seconds())
	}
	respond(w, http.StatusOK, out)
}

func (a *API) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	var req types.LeaveQueueRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.CandidateID == "" || req.BattleType == "" {
		respondErr(w, errValidation)
		return
	}
	respond(w, http.StatusOK, types.SuccessResponse{Success: a.Queue.Leave(req.BattleType, req.CandidateID)})
}

func (a *API) QueueStatus(w http.ResponseWriter, r *http.Request) {
	candidateID := r.URL.Query().Get("candidate")
	if candidateID == "" {
		respondErr(w, errValidation)
		return
	}
	st := a.Queue.Status(candidateID)
	respond(w, http.StatusOK, types.QueueStatusResponse{
		InQueue:              st.InQueue,
		BattleType:           st.BattleType,
		Position:             st.Position,
		EstimatedWaitSeconds: int(st.EstimatedWait.Seconds()),
		Matched:              st.Matched,
		BattleID:             st.BattleID,
	})
}

func (a *API) CreateBattle(w http.ResponseWriter, r *http.Request) {
	var req types.CreateBattleRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.CandidateID == "" {
		respondErr(w, errValidation)
		return
	}
	battleType := req.BattleType
	if battleType == "" {
		battleType = "private"
	}

	res := a.Registry.OpenPrivate(battleType, match.Candidate{
		ID:        req.CandidateID,
		Name:      req.Name,
		Rating:    req.Rating,
		Level:     req.Level,
		Languages: req.Languages,
		JoinedAt:  time.Now(),
	})
	if res.Err != nil {
		respondErr(w, res.Err)
		return
	}
	respond(w, http.StatusCreated, types.CreateBattleResponse{
		BattleID:   res.BattleID,
		InviteCode: res.InviteCode,
	})
}

func (a *API) JoinBattle(w http.ResponseWriter, r *http.Request) {
	battleID := pathBattleID(r)
	var req types.JoinBattleRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if battleID == "" || req.CandidateID == "" {
		respondErr(w, errValidation)
		return
	}
	if err := a.Registry.JoinPrivate(battleID, match.Candidate{ID: req.CandidateID, Name: req.Name}); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, types.SuccessResponse{Success: true})
}

func (a *API) SubmitCode(w http.ResponseWriter, r *http.Request) {
	battleID := pathBattleID(r)
	var req types.SubmitCodeRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if battleID == "" || req.ParticipantID == "" || req.Code == "" || req.Language == "" {
		respondErr(w, errValidation)
		return
	}

	rm, err := a.Registry.Lookup(battleID)
	if err != nil {
		respondErr(w, err)
		return
	}

	reply := make(chan room.SubmitResult, 1)
	rm.Inbox() <- room.Submit{
		ParticipantID: req.ParticipantID,
		Code:          req.Code,
		Language:      req.Language,
		Reply:         reply,
	}

	var res room.SubmitResult
	select {
	case res = <-reply:
	case <-rm.Done():
		// Retired between lookup and reply; a buffered answer may still
		// have landed.
		select {
		case res = <-reply:
		default:
			respondErr(w, registry.ErrNotFound)
			return
		}
	case <-r.Context().Done():
		return
	}
	if res.Err != nil {
		respondErr(w, res.Err)
		return
	}
	respond(w, http.StatusOK, types.SubmitCodeResponse{
		TestResults: battle.WireResults(res.Results),
		AllPassed:   res.AllPassed,
		Winner:      res.Winner,
	})
}

// GetBattle is the poll transport: one full authoritative room snapshot the
// client reconciles by replacement.
func (a *API) GetBattle(w http.ResponseWriter, r *http.Request) {
	rm, err := a.Registry.Lookup(pathBattleID(r))
	if err != nil {
		respondErr(w, err)
		return
	}

	reply := make(chan room.View, 1)
	rm.Inbox() <- room.GetState{Reply: reply}
	var v room.View
	select {
	case v = <-reply:
	case <-rm.Done():
		select {
		case v = <-reply:
		default:
			respondErr(w, registry.ErrNotFound)
			return
		}
	case <-r.Context().Done():
		return
	}
	respond(w, http.StatusOK, battle.Wire(v.State, v.Version, time.Now()))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
