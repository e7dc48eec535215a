package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/board"
	"github.com/mcdev12/flipside/internal/events"
	"github.com/mcdev12/flipside/internal/latency"
	"github.com/mcdev12/flipside/internal/timer"
)

// Inbound message types consumed from players.
const (
	MsgGetTimerState   = "get_timer_state"
	MsgRequestFullSync = "request_full_sync"
	MsgRequestPause    = "request_pause"
	MsgRequestResume   = "request_resume"
	MsgLatencyPing     = "latency_ping"
	MsgLatencySync     = "latency_sync"
	MsgPlaceDisc       = "place_disc"
)

// Outbound direct-response types.
const (
	MsgTimerState  = "timer_state"
	MsgFullSync    = "full_sync"
	MsgLatencyPong = "latency_pong"
	MsgError       = "error"
)

// ClientMessage is the envelope for everything a client sends over the
// socket.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServerMessage is the envelope for direct (non-broadcast) responses.
type ServerMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// LatencyPingRequest carries the client's send timestamp for a ping.
type LatencyPingRequest struct {
	ClientSendTime time.Time `json:"clientSendTime"`
	PingID         string    `json:"pingId"`
}

// LatencyPongResponse answers a ping with server timing and the derived
// measurement.
type LatencyPongResponse struct {
	PingID      string              `json:"pingId"`
	ServerTime  time.Time           `json:"serverTime"`
	ClientTime  time.Time           `json:"clientTime"`
	Measurement latency.Measurement `json:"measurement"`
}

// LatencySyncRequest asks for the server's current latency view of the user.
type LatencySyncRequest struct {
	RequestTime time.Time `json:"requestTime"`
}

// LatencySyncResponse reports the smoothed latency and quality class.
type LatencySyncResponse struct {
	ServerTime     time.Time       `json:"serverTime"`
	Latency        float64         `json:"latency"`
	NetworkQuality latency.Quality `json:"networkQuality"`
	RequestTime    time.Time       `json:"requestTime"`
	ResponseTime   time.Time       `json:"responseTime"`
}

// PlaceDiscRequest is a placement attempt from the seated player.
type PlaceDiscRequest struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// TimerControl is what the gateway needs from the timer orchestrator.
type TimerControl interface {
	PausePlayerTimer(ctx context.Context, gameID, userID uuid.UUID)
	ResumePlayerTimer(ctx context.Context, gameID, userID uuid.UUID)
	HandleDisconnect(ctx context.Context, gameID, userID uuid.UUID)
	HandleReconnect(ctx context.Context, gameID, userID uuid.UUID)
	FullState(gameID uuid.UUID) (*timer.GameState, bool)
}

// GameControl is what the gateway needs from the game service.
type GameControl interface {
	GameAdmin
	HandleMove(ctx context.Context, gameID, userID uuid.UUID, pos board.Position) error
}

// InboundHandler consumes client messages and connection lifecycle events.
type InboundHandler interface {
	HandleClientMessage(conn *Connection, message []byte)
	Disconnected(conn *Connection)
}

// ClientHandler routes inbound player requests to the timer orchestrator,
// game service, and latency estimator.
type ClientHandler struct {
	timers    TimerControl
	games     GameControl
	estimator *latency.Estimator
}

// NewClientHandler creates the inbound request router.
func NewClientHandler(timers TimerControl, games GameControl, estimator *latency.Estimator) *ClientHandler {
	return &ClientHandler{timers: timers, games: games, estimator: estimator}
}

// HandleClientMessage dispatches one inbound message. Malformed messages
// are answered with an error response; they never tear down the connection.
func (h *ClientHandler) HandleClientMessage(conn *Connection, message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("malformed client message")
		h.respondError(conn, "malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case MsgGetTimerState, MsgRequestFullSync:
		h.respondFullSync(conn, msg.Type)

	case MsgRequestPause:
		h.timers.PausePlayerTimer(ctx, conn.GameID, conn.UserID)

	case MsgRequestResume:
		h.timers.ResumePlayerTimer(ctx, conn.GameID, conn.UserID)

	case MsgLatencyPing:
		h.handleLatencyPing(conn, msg.Data)

	case MsgLatencySync:
		h.handleLatencySync(conn, msg.Data)

	case MsgPlaceDisc:
		var req PlaceDiscRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.respondError(conn, "malformed placement")
			return
		}
		if err := h.games.HandleMove(ctx, conn.GameID, conn.UserID, board.Position{Row: req.Row, Col: req.Col}); err != nil {
			h.respondError(conn, err.Error())
		}

	default:
		log.Debug().
			Str("connection_id", conn.ID).
			Str("type", msg.Type).
			Msg("unknown client message type - ignoring")
	}
}

// Disconnected discards the user's latency history so reconnection starts
// at unknown quality, then lets the orchestrator apply the game's
// disconnect policy.
func (h *ClientHandler) Disconnected(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h.estimator.ClearUser(conn.UserID)
	h.timers.HandleDisconnect(ctx, conn.GameID, conn.UserID)
}

// Connected runs the reconnect path: a paused clock resumes (or times out
// if the pause budget is spent) and the client gets a full sync.
func (h *ClientHandler) Connected(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h.timers.HandleReconnect(ctx, conn.GameID, conn.UserID)
	h.respondFullSync(conn, MsgFullSync)
}

// respondFullSync sends the complete, per-user compensated timer state
// directly on this connection.
func (h *ClientHandler) respondFullSync(conn *Connection, msgType string) {
	state, ok := h.timers.FullState(conn.GameID)
	if !ok {
		h.respondError(conn, "no timers for game")
		return
	}
	payload := events.FullSyncPayload{
		TimerStates:    state.PlayerTimers,
		GameTimerState: *state,
		Timestamp:      time.Now().UTC(),
	}
	CompensateFullSync(&payload, conn.UserID, h.estimator)

	respType := MsgFullSync
	if msgType == MsgGetTimerState {
		respType = MsgTimerState
	}
	h.respond(conn, ServerMessage{Type: respType, Data: payload})
}

// handleLatencyPing records a one-way measurement and answers with a pong.
// A failed measurement degrades the user to unknown quality; the pong still
// goes out so the client's ping loop keeps running.
func (h *ClientHandler) handleLatencyPing(conn *Connection, data json.RawMessage) {
	received := time.Now().UTC()

	var req LatencyPingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.respondError(conn, "malformed latency ping")
		return
	}

	m, err := h.estimator.Record(conn.UserID, conn.GameID, req.ClientSendTime, received, time.Now().UTC())
	if err != nil {
		log.Debug().
			Err(err).
			Str("user_id", conn.UserID.String()).
			Msg("latency measurement rejected")
	}
	h.respond(conn, ServerMessage{Type: MsgLatencyPong, Data: LatencyPongResponse{
		PingID:      req.PingID,
		ServerTime:  received,
		ClientTime:  req.ClientSendTime,
		Measurement: m,
	}})
}

func (h *ClientHandler) handleLatencySync(conn *Connection, data json.RawMessage) {
	var req LatencySyncRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.respondError(conn, "malformed latency sync")
		return
	}

	oneWay, _ := h.estimator.OneWay(conn.UserID)
	h.respond(conn, ServerMessage{Type: MsgLatencySync, Data: LatencySyncResponse{
		ServerTime:     time.Now().UTC(),
		Latency:        oneWay.Seconds(),
		NetworkQuality: h.estimator.NetworkQuality(conn.UserID),
		RequestTime:    req.RequestTime,
		ResponseTime:   time.Now().UTC(),
	}})
}

func (h *ClientHandler) respond(conn *Connection, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to marshal response")
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("send buffer full, dropping response")
	}
}

func (h *ClientHandler) respondError(conn *Connection, reason string) {
	h.respond(conn, ServerMessage{Type: MsgError, Data: map[string]string{"reason": reason}})
}
