package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flipside/internal/events"
	"github.com/mcdev12/flipside/internal/timer"
)

// fixedCompensator subtracts a constant from every remaining-time value.
type fixedCompensator struct {
	delta time.Duration
}

func (f fixedCompensator) CompensateRemaining(userID uuid.UUID, raw time.Duration) time.Duration {
	out := raw - f.delta
	if out < 0 {
		out = 0
	}
	return out
}

func presetConfig() timer.Config {
	return timer.Config{
		Type:                timer.TypeIncrement,
		InitialTime:         300,
		Increment:           5,
		MaxTime:             600,
		LowTimeWarning:      60,
		CriticalTimeWarning: 10,
		AutoFlagOnTimeout:   true,
		TimeoutAction:       timer.ActionForfeit,
	}
}

func newGamesMux(games *stubGames, timers *stubTimers) *http.ServeMux {
	state := NewStateHandler(timers, fixedCompensator{delta: time.Second})
	gh := NewGamesHandler(games, state, map[string]timer.Config{"blitz": presetConfig()}, presetConfig())
	mux := http.NewServeMux()
	gh.RegisterGameRoutes(mux)
	return mux
}

func TestExtractGameIDFromPath(t *testing.T) {
	assert.Equal(t, "abc", extractGameIDFromPath("/api/games/abc/timers"))
	assert.Empty(t, extractGameIDFromPath("/api/games/abc"))
	assert.Empty(t, extractGameIDFromPath("/api/games/a/b/timers"))
	assert.Empty(t, extractGameIDFromPath("/other/abc/timers"))
}

func TestCreateGameEndpoint(t *testing.T) {
	mux := newGamesMux(&stubGames{}, &stubTimers{})

	body, err := json.Marshal(CreateGameRequest{
		BlackID: uuid.New().String(),
		WhiteID: uuid.New().String(),
		Preset:  "blitz",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateGameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err = uuid.Parse(resp.GameID)
	require.NoError(t, err)
	assert.Equal(t, presetConfig(), resp.TimerConfig)
}

func TestCreateGameRejectsBadInput(t *testing.T) {
	mux := newGamesMux(&stubGames{}, &stubTimers{})

	cases := []struct {
		name string
		body CreateGameRequest
	}{
		{"bad black id", CreateGameRequest{BlackID: "nope", WhiteID: uuid.New().String()}},
		{"bad white id", CreateGameRequest{BlackID: uuid.New().String(), WhiteID: "nope"}},
		{"unknown preset", CreateGameRequest{BlackID: uuid.New().String(), WhiteID: uuid.New().String(), Preset: "bullet"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, err := json.Marshal(tc.body)
			require.NoError(t, err)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games", bytes.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCreateGameInlineConfigWins(t *testing.T) {
	mux := newGamesMux(&stubGames{}, &stubTimers{})

	inline := presetConfig()
	inline.InitialTime = 60
	inline.MaxTime = 120
	body, err := json.Marshal(CreateGameRequest{
		BlackID:     uuid.New().String(),
		WhiteID:     uuid.New().String(),
		Preset:      "blitz",
		TimerConfig: &inline,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateGameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 60, resp.TimerConfig.InitialTime)
}

func TestCreateGameInvalidConfigRejected(t *testing.T) {
	mux := newGamesMux(&stubGames{}, &stubTimers{})

	bad := presetConfig()
	bad.Type = "hourglass"
	body, err := json.Marshal(CreateGameRequest{
		BlackID:     uuid.New().String(),
		WhiteID:     uuid.New().String(),
		TimerConfig: &bad,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown timer type")
}

func TestStartGameEndpoint(t *testing.T) {
	games := &stubGames{}
	mux := newGamesMux(games, &stubTimers{})
	gameID := uuid.New()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/"+gameID.String()+"/start", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uuid.UUID{gameID}, games.started)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/not-a-uuid/start", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimerStateEndpoint(t *testing.T) {
	gameID := uuid.New()
	userID := uuid.New()
	timers := &stubTimers{state: &timer.GameState{
		GameID: gameID.String(),
		PlayerTimers: map[string]timer.PlayerState{
			userID.String(): {UserID: userID.String(), RemainingTime: 30},
		},
	}}
	mux := newGamesMux(&stubGames{}, timers)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games/"+gameID.String()+"/timers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state timer.GameState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.InDelta(t, 30.0, state.PlayerTimers[userID.String()].RemainingTime, 0.001,
		"no viewer given, raw values served")

	// With a viewer the fixed one-second compensation applies.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/games/"+gameID.String()+"/timers?user_id="+uuid.New().String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.InDelta(t, 29.0, state.PlayerTimers[userID.String()].RemainingTime, 0.001)
}

func TestTimerStateEndpointUnknownGame(t *testing.T) {
	mux := newGamesMux(&stubGames{}, &stubTimers{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games/"+uuid.New().String()+"/timers", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games/not-a-uuid/timers", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEncodeForCompensatesPerUser(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), fixedCompensator{delta: time.Second})
	conn := testConnection()

	payload, err := json.Marshal(events.TimerTickPayload{UserID: "u1", RemainingTime: 10})
	require.NoError(t, err)
	event := &events.GameTimerEvent{
		ID:     uuid.New().String(),
		GameID: conn.GameID.String(),
		Type:   events.EventTypeTimerTick,
		Data:   payload,
	}

	data, err := cm.encodeFor(conn, event)
	require.NoError(t, err)

	var decoded events.GameTimerEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	var tick events.TimerTickPayload
	require.NoError(t, json.Unmarshal(decoded.Data, &tick))
	assert.InDelta(t, 9.0, tick.RemainingTime, 0.001)
}

func TestEncodeForLeavesOtherEventsUntouched(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), fixedCompensator{delta: time.Second})
	conn := testConnection()

	payload, err := json.Marshal(events.TimerExpiredPayload{UserID: "u1"})
	require.NoError(t, err)
	event := &events.GameTimerEvent{
		ID:     uuid.New().String(),
		GameID: conn.GameID.String(),
		Type:   events.EventTypeTimerExpired,
		Data:   payload,
	}

	data, err := cm.encodeFor(conn, event)
	require.NoError(t, err)

	expected, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), string(data))
}
