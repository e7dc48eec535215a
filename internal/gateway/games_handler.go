package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/game"
	"github.com/mcdev12/flipside/internal/timer"
)

// CreateGameRequest seats two players with a timer configuration. The
// config comes from a named server preset or inline; inline wins when both
// are present.
type CreateGameRequest struct {
	BlackID     string        `json:"blackId"`
	WhiteID     string        `json:"whiteId"`
	Preset      string        `json:"preset,omitempty"`
	TimerConfig *timer.Config `json:"timerConfig,omitempty"`
}

// CreateGameResponse returns the new game's identity and effective config.
type CreateGameResponse struct {
	GameID      string       `json:"gameId"`
	TimerConfig timer.Config `json:"timerConfig"`
}

// GamesHandler serves game lifecycle management over REST: creation, start,
// and the per-game timer state read.
type GamesHandler struct {
	games         GameControl
	stateHandler  *StateHandler
	presets       map[string]timer.Config
	defaultPreset timer.Config
}

// NewGamesHandler creates the game management handler.
func NewGamesHandler(games GameControl, stateHandler *StateHandler, presets map[string]timer.Config, defaultPreset timer.Config) *GamesHandler {
	return &GamesHandler{
		games:         games,
		stateHandler:  stateHandler,
		presets:       presets,
		defaultPreset: defaultPreset,
	}
}

// RegisterGameRoutes registers /api/games routes with an HTTP mux.
func (h *GamesHandler) RegisterGameRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/games", h.handleCreateGame)
	mux.HandleFunc("/api/games/", h.dispatch)
}

// dispatch routes /api/games/{id}/... to the right sub-handler.
func (h *GamesHandler) dispatch(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/timers"):
		h.stateHandler.HandleGetTimerState(w, r)
	case strings.HasSuffix(r.URL.Path, "/start"):
		h.handleStartGame(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *GamesHandler) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	black, err := uuid.Parse(req.BlackID)
	if err != nil {
		http.Error(w, "Invalid blackId", http.StatusBadRequest)
		return
	}
	white, err := uuid.Parse(req.WhiteID)
	if err != nil {
		http.Error(w, "Invalid whiteId", http.StatusBadRequest)
		return
	}

	cfg := h.defaultPreset
	if req.Preset != "" {
		preset, ok := h.presets[req.Preset]
		if !ok {
			http.Error(w, "Unknown timer preset", http.StatusBadRequest)
			return
		}
		cfg = preset
	}
	if req.TimerConfig != nil {
		cfg = *req.TimerConfig
	}

	g, err := h.games.CreateGame(r.Context(), cfg, black, white)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(CreateGameResponse{
		GameID:      g.ID.String(),
		TimerConfig: g.TimerConfig,
	}); err != nil {
		log.Error().Err(err).Msg("failed to encode create game response")
	}
}

func (h *GamesHandler) handleStartGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/games/"), "/start")
	gameID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "Invalid game ID format", http.StatusBadRequest)
		return
	}

	if err := h.games.StartGame(r.Context(), gameID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GameAdmin is the lifecycle surface GamesHandler needs; GameControl embeds
// it so one game service value satisfies the whole gateway.
type GameAdmin interface {
	CreateGame(ctx context.Context, cfg timer.Config, black, white uuid.UUID) (*game.Game, error)
	StartGame(ctx context.Context, gameID uuid.UUID) error
}
