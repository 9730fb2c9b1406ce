// Package types holds the JSON wire shapes shared by the server and any
// client of it. Nothing here imports server internals, so external tooling
// can depend on this package alone.
package types

import "time"

// TestCaseView is a visible test case as shown to a client. Hidden cases
// never appear here.
type TestCaseView struct {
	Input    string `json:"input"`
	Expected string `json:"expectedOutput"`
}

type ChallengeView struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Difficulty   string            `json:"difficulty"`
	VisibleCases []TestCaseView    `json:"visibleCases"`
	StarterCode  map[string]string `json:"starterCode"`
	TimeLimitSec int               `json:"timeLimitSec"`
}

type ParticipantView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	TestsPassed int        `json:"testsPassed"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Forfeited   bool       `json:"forfeited,omitempty"`
}

// BattleSnapshot is the full client view of one room. A room is entirely
// reconstructible from it, which is what makes poll mode a full-replacement
// reconcile rather than a delta merge.
type BattleSnapshot struct {
	BattleID     string            `json:"battleId"`
	InviteCode   string            `json:"inviteCode"`
	BattleType   string            `json:"battleType"`
	Status       string            `json:"status"`
	Participants []ParticipantView `json:"participants"`
	Challenge    *ChallengeView    `json:"challenge,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	TimeLimitSec int               `json:"timeLimitSec"`
	RemainingMs  int64             `json:"remainingMs"`
	Winner       string            `json:"winner,omitempty"`
	Version      int               `json:"version"`
}

type TestResultView struct {
	Passed          bool   `json:"passed"`
	Input           string `json:"input"`
	Expected        string `json:"expectedOutput"`
	Actual          string `json:"actualOutput"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
}

// ---- request/response bodies -------------------------------------------

type JoinQueueRequest struct {
	CandidateID string   `json:"candidateId"`
	Name        string   `json:"name"`
	Rating      int      `json:"rating"`
	Level       int      `json:"level"`
	Languages   []string `json:"languages"`
	BattleType  string   `json:"battleType"`
}

type OpponentSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
	Level  int    `json:"level"`
}

type JoinQueueResponse struct {
	Matched              bool             `json:"matched"`
	BattleID             string           `json:"battleId,omitempty"`
	Opponent             *OpponentSummary `json:"opponent,omitempty"`
	Position             int              `json:"position,omitempty"`
	EstimatedWaitSeconds int              `json:"estimatedWaitSeconds,omitempty"`
}

type LeaveQueueRequest struct {
	CandidateID string `json:"candidateId"`
	BattleType  string `json:"battleType"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type QueueStatusResponse struct {
	InQueue              bool   `json:"inQueue"`
	BattleType           string `json:"battleType,omitempty"`
	Position             int    `json:"position,omitempty"`
	EstimatedWaitSeconds int    `json:"estimatedWaitSeconds,omitempty"`
	Matched              bool   `json:"matched,omitempty"`
	BattleID             string `json:"battleId,omitempty"`
}

type CreateBattleRequest struct {
	CandidateID string   `json:"candidateId"`
	Name        string   `json:"name"`
	Rating      int      `json:"rating"`
	Level       int      `json:"level"`
	Languages   []string `json:"languages"`
	BattleType  string   `json:"battleType"`
}

type CreateBattleResponse struct {
	BattleID   string `json:"battleId"`
	InviteCode string `json:"inviteCode"`
}

type JoinBattleRequest struct {
	CandidateID string `json:"candidateId"`
	Name        string `json:"name"`
}

type SubmitCodeRequest struct {
	ParticipantID string `json:"participantId"`
	Code          string `json:"code"`
	Language      string `json:"language"`
}

type SubmitCodeResponse struct {
	TestResults []TestResultView `json:"testResults"`
	AllPassed   bool             `json:"allPassed"`
	Winner      string           `json:"winner,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
