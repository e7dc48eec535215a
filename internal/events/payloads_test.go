package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flipside/internal/timer"
)

func envelope(t *testing.T, typ EventType, payload interface{}) *GameTimerEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &GameTimerEvent{
		ID:        "evt-1",
		GameID:    "game-1",
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func TestParsePayloadDispatchesByType(t *testing.T) {
	got, err := ParsePayload(envelope(t, EventTypeTimerTick, TimerTickPayload{
		UserID:        "u1",
		RemainingTime: 42.5,
	}))
	require.NoError(t, err)
	tick, ok := got.(TimerTickPayload)
	require.True(t, ok)
	assert.Equal(t, "u1", tick.UserID)
	assert.InDelta(t, 42.5, tick.RemainingTime, 0.001)

	got, err = ParsePayload(envelope(t, EventTypeTimerWarning, TimerWarningPayload{
		UserID:      "u1",
		WarningType: timer.WarningCritical,
	}))
	require.NoError(t, err)
	warning, ok := got.(TimerWarningPayload)
	require.True(t, ok)
	assert.Equal(t, timer.WarningCritical, warning.WarningType)

	got, err = ParsePayload(envelope(t, EventTypeTimerExpired, TimerExpiredPayload{UserID: "u2"}))
	require.NoError(t, err)
	expired, ok := got.(TimerExpiredPayload)
	require.True(t, ok)
	assert.Equal(t, "u2", expired.UserID)

	got, err = ParsePayload(envelope(t, EventTypeFullSync, FullSyncPayload{
		TimerStates: map[string]timer.PlayerState{"u1": {UserID: "u1", RemainingTime: 9}},
	}))
	require.NoError(t, err)
	sync, ok := got.(FullSyncPayload)
	require.True(t, ok)
	assert.InDelta(t, 9, sync.TimerStates["u1"].RemainingTime, 0.001)
}

func TestParsePayloadUnknownTypeIsSkipped(t *testing.T) {
	got, err := ParsePayload(&GameTimerEvent{Type: "SomethingElse", Data: []byte(`{}`)})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParsePayloadMalformedData(t *testing.T) {
	_, err := ParsePayload(&GameTimerEvent{Type: EventTypeTimerTick, Data: []byte(`{"remainingTime":`)})
	assert.Error(t, err)
}
