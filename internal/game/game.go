package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/flipside/internal/board"
	"github.com/mcdev12/flipside/internal/timer"
)

// Status is the lifecycle state of a game.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// Finish reasons recorded on a game's outcome.
const (
	ReasonScore          = "score"
	ReasonTimeoutForfeit = "timeout_forfeit"
	ReasonAbandoned      = "abandoned"
)

// Game is one two-player match. Black always moves first.
type Game struct {
	ID          uuid.UUID
	Black       uuid.UUID
	White       uuid.UUID
	Board       *board.Board
	Turn        board.Disc
	Status      Status
	TimerConfig timer.Config

	// Outcome, set when Status becomes finished. Winner is the zero UUID
	// for a draw.
	Winner uuid.UUID
	Reason string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// DiscOf returns which color the user plays, or Empty for a non-player.
func (g *Game) DiscOf(userID uuid.UUID) board.Disc {
	switch userID {
	case g.Black:
		return board.Black
	case g.White:
		return board.White
	default:
		return board.Empty
	}
}

// PlayerFor returns the user seated on the given side.
func (g *Game) PlayerFor(d board.Disc) uuid.UUID {
	switch d {
	case board.Black:
		return g.Black
	case board.White:
		return g.White
	default:
		return uuid.Nil
	}
}

// Opponent returns the other seated player.
func (g *Game) Opponent(userID uuid.UUID) uuid.UUID {
	switch userID {
	case g.Black:
		return g.White
	case g.White:
		return g.Black
	default:
		return uuid.Nil
	}
}
