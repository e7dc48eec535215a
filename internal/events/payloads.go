// Package events holds the timer event payload structs shared between the
// orchestrator and the gateway, plus the JetStream publisher that carries
// them between the two.
package events

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/flipside/internal/timer"
)

// EventType identifies a timer synchronization event.
type EventType string

const (
	EventTypeTimerTick        EventType = "TimerTick"
	EventTypeTimerWarning     EventType = "TimerWarning"
	EventTypeTimerExpired     EventType = "TimerExpired"
	EventTypeIncrementApplied EventType = "IncrementApplied"
	EventTypeTimerPaused      EventType = "TimerPaused"
	EventTypeTimerResumed     EventType = "TimerResumed"
	EventTypeFullSync         EventType = "FullSync"
	EventTypeGameFinished     EventType = "GameFinished"
)

// GameTimerEvent is the envelope for every event on a game's timer channel.
type GameTimerEvent struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// TimerTickPayload is the per-tick countdown update for the active player.
type TimerTickPayload struct {
	UserID        string    `json:"userId"`
	RemainingTime float64   `json:"remainingTime"`
	Timestamp     time.Time `json:"timestamp"`
}

// TimerWarningPayload announces a low/critical threshold crossing.
type TimerWarningPayload struct {
	UserID        string            `json:"userId"`
	WarningType   timer.WarningKind `json:"warningType"`
	RemainingTime float64           `json:"remainingTime"`
	Timestamp     time.Time         `json:"timestamp"`
}

// TimerExpiredPayload announces that a player's clock reached zero.
type TimerExpiredPayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// IncrementAppliedPayload announces post-move time credit.
type IncrementAppliedPayload struct {
	UserID          string    `json:"userId"`
	NewTime         float64   `json:"newTime"`
	IncrementAmount float64   `json:"incrementAmount"`
	Timestamp       time.Time `json:"timestamp"`
}

// TimerPausedPayload announces a paused player clock.
type TimerPausedPayload struct {
	UserID        string    `json:"userId"`
	RemainingTime float64   `json:"remainingTime"`
	Timestamp     time.Time `json:"timestamp"`
}

// TimerResumedPayload announces a resumed player clock.
type TimerResumedPayload struct {
	UserID        string    `json:"userId"`
	RemainingTime float64   `json:"remainingTime"`
	Timestamp     time.Time `json:"timestamp"`
}

// FullSyncPayload carries the complete authoritative timer state for a game,
// used on reconnect or explicit resync.
type FullSyncPayload struct {
	TimerStates    map[string]timer.PlayerState `json:"timerStates"`
	GameTimerState timer.GameState              `json:"gameTimerState"`
	Timestamp      time.Time                    `json:"timestamp"`
}

// GameFinishedPayload announces the game's final outcome.
type GameFinishedPayload struct {
	WinnerID  string    `json:"winnerId,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ParsePayload decodes an event's data into its payload struct. Unknown
// event types return nil without error so consumers can skip them.
func ParsePayload(event *GameTimerEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeTimerTick:
		var p TimerTickPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeTimerWarning:
		var p TimerWarningPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeTimerExpired:
		var p TimerExpiredPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeIncrementApplied:
		var p IncrementAppliedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeTimerPaused:
		var p TimerPausedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeTimerResumed:
		var p TimerResumedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeFullSync:
		var p FullSyncPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeGameFinished:
		var p GameFinishedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, nil
	}
}
