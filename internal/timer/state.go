package timer

import (
	"time"
)

// PlayerState is a point-in-time snapshot of one player's clock, shaped for
// transmission and persistence. Time quantities are in seconds.
type PlayerState struct {
	UserID          string        `json:"userId"`
	RemainingTime   float64       `json:"remainingTime"`
	IsActive        bool          `json:"isActive"`
	IsPaused        bool          `json:"isPaused"`
	PausedAt        *time.Time    `json:"pausedAt,omitempty"`
	TotalPausedTime float64       `json:"totalPausedTime"`
	LastUpdateTime  time.Time     `json:"lastUpdateTime"`
	TotalMoveTime   float64       `json:"totalMoveTime"`
	MoveCount       int           `json:"moveCount"`
	TimeWarnings    []WarningKind `json:"timeWarnings"`
}

// GameState is the authoritative game-scoped timer record: the source of
// truth for a full client resync or a process restart.
type GameState struct {
	GameID        string                 `json:"gameId"`
	Config        Config                 `json:"config"`
	PlayerTimers  map[string]PlayerState `json:"playerTimers"`
	IsGamePaused  bool                   `json:"isGamePaused"`
	GameStartTime time.Time              `json:"gameStartTime"`
	TotalGameTime float64                `json:"totalGameTime"`
}

// Seconds converts a duration to the fractional-seconds representation used
// in snapshots and sync payloads.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}
