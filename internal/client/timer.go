package client

import (
	"time"

	"github.com/codeclash/battle-backend/pkg/types"
)

// SnapshotRemaining derives the countdown from a room snapshot: the time
// limit minus elapsed wall time since the room was created, clamped at
// zero. Completed rooms report the server-frozen value. Both transports use
// this; nothing ever decrements a local counter.
func SnapshotRemaining(snap types.BattleSnapshot, now time.Time) time.Duration {
	if snap.Status == "completed" || snap.Status == "waiting" {
		return time.Duration(snap.RemainingMs) * time.Millisecond
	}
	limit := time.Duration(snap.TimeLimitSec) * time.Second
	rem := limit - now.Sub(snap.CreatedAt)
	if rem < 0 {
		return 0
	}
	return rem
}
