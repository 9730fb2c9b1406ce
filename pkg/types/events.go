package types

import "encoding/json"

// Push-channel event names. The poll path has no events; a poll client only
// ever sees BattleSnapshot.
const (
	EventQueueJoined   = "queue-joined"
	EventBattleMatched = "battle-matched"
	EventCodeResult    = "code-result"
	EventBattleEnded   = "battle-ended"
	EventSnapshot      = "snapshot"
	EventError         = "error"
)

// ServerEvent is the envelope for everything the push channel sends.
type ServerEvent struct {
	Type        string           `json:"type"`
	Position    int              `json:"position,omitempty"`
	BattleID    string           `json:"battleId,omitempty"`
	Challenge   *ChallengeView   `json:"challenge,omitempty"`
	Opponent    *OpponentSummary `json:"opponent,omitempty"`
	TimeLimitMs int64            `json:"timeLimitMs,omitempty"`
	TestResults []TestResultView `json:"testResults,omitempty"`
	AllPassed   bool             `json:"allPassed,omitempty"`
	Winner      string           `json:"winner,omitempty"`
	Snapshot    *BattleSnapshot  `json:"snapshot,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Client -> server message types on the push channel.
const (
	MsgJoinQueue  = "join-queue"
	MsgLeaveQueue = "leave-queue"
	MsgAttach     = "attach"
	MsgSubmit     = "submit"
)

type ClientMessage struct {
	Type        string   `json:"type"`
	CandidateID string   `json:"candidateId,omitempty"`
	Name        string   `json:"name,omitempty"`
	Rating      int      `json:"rating,omitempty"`
	Level       int      `json:"level,omitempty"`
	Languages   []string `json:"languages,omitempty"`
	BattleType  string   `json:"battleType,omitempty"`
	BattleID    string   `json:"battleId,omitempty"`
	Code        string   `json:"code,omitempty"`
	Language    string   `json:"language,omitempty"`
}

func (e ServerEvent) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}
