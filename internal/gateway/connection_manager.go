package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/events"
	"github.com/mcdev12/flipside/internal/timer"
)

// ConnectionManager manages WebSocket connections for game timer events,
// pooled by game ID.
type ConnectionManager struct {
	gameConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// Per-user countdown compensation applied at send time, where the
	// receiving user is known.
	compensator Compensator

	broadcastCh chan BroadcastMessage
}

// Compensator biases a remaining-time value for a specific receiving user.
// Satisfied by latency.Estimator.
type Compensator interface {
	CompensateRemaining(userID uuid.UUID, raw time.Duration) time.Duration
}

// Connection represents one client's WebSocket connection to a game.
type Connection struct {
	ID      string
	UserID  uuid.UUID
	GameID  uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents an event to fan out to a game's connections.
type BroadcastMessage struct {
	GameID uuid.UUID
	Event  *events.GameTimerEvent
	UserID uuid.UUID // optional: if set, only send to this user
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  2048,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, compensator Compensator) *ConnectionManager {
	return &ConnectionManager{
		gameConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		compensator: compensator,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers
// it with the game's pool. The returned connection is already pumping.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, gameID uuid.UUID, inbound InboundHandler) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		GameID:      gameID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump(inbound)

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID.String()).
		Str("game_id", gameID.String()).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.gameConnections[conn.GameID] == nil {
		cm.gameConnections[conn.GameID] = make(map[*Connection]bool)
	}
	cm.gameConnections[conn.GameID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("game_id", conn.GameID.String()).
		Int("total_connections", len(cm.gameConnections[conn.GameID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.gameConnections[conn.GameID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.gameConnections, conn.GameID)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID.String()).
				Str("game_id", conn.GameID.String()).
				Msg("connection unregistered")
		}
	}
}

// BroadcastToGame sends an event to all connections watching a game.
func (cm *ConnectionManager) BroadcastToGame(gameID uuid.UUID, event *events.GameTimerEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{GameID: gameID, Event: event}:
	default:
		log.Warn().Str("game_id", gameID.String()).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToUser sends an event to one user's connections in a game.
func (cm *ConnectionManager) BroadcastToUser(gameID, userID uuid.UUID, event *events.GameTimerEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{GameID: gameID, Event: event, UserID: userID}:
	default:
		log.Warn().
			Str("game_id", gameID.String()).
			Str("user_id", userID.String()).
			Msg("broadcast channel full, dropping user message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.gameConnections[message.GameID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	var targets []*Connection
	for conn := range connections {
		if message.UserID != uuid.Nil && conn.UserID != message.UserID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		data, err := cm.encodeFor(conn, message.Event)
		if err != nil {
			log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to encode event for connection")
			continue
		}
		select {
		case conn.Send <- data:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID.String()).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("game_id", message.GameID.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// encodeFor marshals the event for one connection, rewriting remaining-time
// fields through the per-user compensator so the receiver's countdown is
// pessimistic relative to server truth.
func (cm *ConnectionManager) encodeFor(conn *Connection, event *events.GameTimerEvent) ([]byte, error) {
	if cm.compensator == nil {
		return json.Marshal(event)
	}

	adjusted := *event
	switch event.Type {
	case events.EventTypeTimerTick:
		var p events.TimerTickPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		p.RemainingTime = cm.compensateSeconds(conn.UserID, p.RemainingTime)
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		adjusted.Data = data

	case events.EventTypeTimerWarning:
		var p events.TimerWarningPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		p.RemainingTime = cm.compensateSeconds(conn.UserID, p.RemainingTime)
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		adjusted.Data = data

	case events.EventTypeFullSync:
		var p events.FullSyncPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		CompensateFullSync(&p, conn.UserID, cm.compensator)
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		adjusted.Data = data

	default:
		return json.Marshal(event)
	}
	return json.Marshal(&adjusted)
}

func (cm *ConnectionManager) compensateSeconds(userID uuid.UUID, rawSeconds float64) float64 {
	raw := time.Duration(rawSeconds * float64(time.Second))
	return cm.compensator.CompensateRemaining(userID, raw).Seconds()
}

// CompensateFullSync rewrites every remaining-time value in a full-sync
// payload for the receiving user. The payload's two state maps may alias one
// underlying map, so fresh maps are built rather than mutating in place.
func CompensateFullSync(p *events.FullSyncPayload, userID uuid.UUID, comp Compensator) {
	compensate := func(states map[string]timer.PlayerState) map[string]timer.PlayerState {
		out := make(map[string]timer.PlayerState, len(states))
		for id, ps := range states {
			raw := time.Duration(ps.RemainingTime * float64(time.Second))
			ps.RemainingTime = comp.CompensateRemaining(userID, raw).Seconds()
			out[id] = ps
		}
		return out
	}
	p.TimerStates = compensate(p.TimerStates)
	p.GameTimerState.PlayerTimers = compensate(p.GameTimerState.PlayerTimers)
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() (totalConnections, activeGames int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, connections := range cm.gameConnections {
		totalConnections += len(connections)
	}
	return totalConnections, len(cm.gameConnections)
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection. The
// inbound handler's Disconnected hook runs when the pump exits.
func (c *Connection) readPump(inbound InboundHandler) {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if inbound != nil {
			inbound.Disconnected(c)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		if inbound != nil {
			inbound.HandleClientMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
