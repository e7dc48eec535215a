// Package store persists authoritative game timer state so a restarted
// process or a resyncing client can recover the source-of-truth snapshot.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/flipside/internal/timer"
)

// ErrNotFound is returned when no snapshot exists for a game.
var ErrNotFound = errors.New("timer snapshot not found")

// Store saves and loads per-game timer snapshots.
type Store interface {
	SaveSnapshot(ctx context.Context, gameID uuid.UUID, state *timer.GameState) error
	LoadSnapshot(ctx context.Context, gameID uuid.UUID) (*timer.GameState, error)
	DeleteSnapshot(ctx context.Context, gameID uuid.UUID) error
}
