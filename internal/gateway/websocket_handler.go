package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for game connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	clientHandler     *ClientHandler
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, ch *ClientHandler) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm, clientHandler: ch}
}

// HandleGameConnection handles WebSocket connections for a specific game.
// game_id and user_id come from query parameters; in production user
// identity would come from a session or JWT.
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	gameIDStr := r.URL.Query().Get("game_id")
	if gameIDStr == "" {
		http.Error(w, "game_id is required", http.StatusBadRequest)
		return
	}
	gameID, err := uuid.Parse(gameIDStr)
	if err != nil {
		http.Error(w, "invalid game_id format", http.StatusBadRequest)
		return
	}

	userIDStr := r.URL.Query().Get("user_id")
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "valid user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, userID, gameID, h.clientHandler)
	if err != nil {
		log.Error().
			Err(err).
			Str("game_id", gameID.String()).
			Str("user_id", userID.String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	// Reconnect path: resume a disconnect-paused clock and push a full
	// sync so the client rebuilds its countdown from server truth.
	h.clientHandler.Connected(conn)
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, games := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{
		"total_connections": total,
		"active_games":      games,
	}); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/game", h.HandleGameConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
