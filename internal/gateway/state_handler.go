package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StateHandler serves full timer state over plain HTTP for clients that
// want a snapshot without holding a socket open.
type StateHandler struct {
	timers TimerControl
	comp   Compensator
}

// NewStateHandler creates a new state handler.
func NewStateHandler(timers TimerControl, comp Compensator) *StateHandler {
	return &StateHandler{timers: timers, comp: comp}
}

// HandleGetTimerState handles GET /api/games/{id}/timers. An optional
// user_id query parameter compensates remaining times for that viewer.
func (h *StateHandler) HandleGetTimerState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	gameIDStr := extractGameIDFromPath(r.URL.Path)
	if gameIDStr == "" {
		http.Error(w, "Game ID is required", http.StatusBadRequest)
		return
	}
	gameID, err := uuid.Parse(gameIDStr)
	if err != nil {
		http.Error(w, "Invalid game ID format", http.StatusBadRequest)
		return
	}

	state, ok := h.timers.FullState(gameID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if viewer := r.URL.Query().Get("user_id"); viewer != "" && h.comp != nil {
		if viewerID, err := uuid.Parse(viewer); err == nil {
			for id, ps := range state.PlayerTimers {
				raw := time.Duration(ps.RemainingTime * float64(time.Second))
				ps.RemainingTime = h.comp.CompensateRemaining(viewerID, raw).Seconds()
				state.PlayerTimers[id] = ps
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode timer state response")
	}
}

// extractGameIDFromPath extracts the game ID from /api/games/{id}/timers.
func extractGameIDFromPath(path string) string {
	const prefix = "/api/games/"
	const suffix = "/timers"

	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
