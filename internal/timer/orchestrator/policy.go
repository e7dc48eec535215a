package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/board"
	"github.com/mcdev12/flipside/internal/timer"
)

// MoveProvider is the external move-legality collaborator. The resolver
// never mutates the board directly; chosen placements go through ApplyMove,
// the normal move-application path.
type MoveProvider interface {
	HasLegalMove(ctx context.Context, gameID, userID uuid.UUID) (bool, error)
	LegalMoves(ctx context.Context, gameID, userID uuid.UUID) ([]board.Position, error)
	BoardSize(ctx context.Context, gameID uuid.UUID) (int, error)
	ApplyMove(ctx context.Context, gameID, userID uuid.UUID, pos board.Position) error
	PassTurn(ctx context.Context, gameID, userID uuid.UUID) error
}

// GameLifecycle is the external game-lifecycle collaborator.
type GameLifecycle interface {
	IsFinished(ctx context.Context, gameID uuid.UUID) (bool, error)
	ForfeitOnTimeout(ctx context.Context, gameID, loserID uuid.UUID) error
}

// Resolver decides and executes what happens to a game whose current
// mover's clock expired.
type Resolver struct {
	moves     MoveProvider
	lifecycle GameLifecycle

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewResolver constructs a resolver with its own random source.
func NewResolver(moves MoveProvider, lifecycle GameLifecycle) *Resolver {
	return &Resolver{
		moves:     moves,
		lifecycle: lifecycle,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Resolve executes the configured timeout action for the timed-out player.
// Any failure in a non-forfeit branch falls back to forfeit, the safest
// terminal outcome, rather than leaving the game in an inconsistent timer
// state.
func (r *Resolver) Resolve(ctx context.Context, gameID, userID uuid.UUID, cfg timer.Config) error {
	if finished, err := r.lifecycle.IsFinished(ctx, gameID); err == nil && finished {
		log.Debug().Str("game_id", gameID.String()).Msg("timeout on already-finished game; nothing to resolve")
		return nil
	}

	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Str("action", string(cfg.TimeoutAction)).
		Msg("resolving timeout")

	switch cfg.TimeoutAction {
	case timer.ActionAutoPass:
		return r.autoPass(ctx, gameID, userID)
	case timer.ActionAutoMove:
		return r.autoMove(ctx, gameID, userID, cfg.AutoMoveStrategy)
	default:
		return r.forfeit(ctx, gameID, userID)
	}
}

func (r *Resolver) forfeit(ctx context.Context, gameID, userID uuid.UUID) error {
	if err := r.lifecycle.ForfeitOnTimeout(ctx, gameID, userID); err != nil {
		return fmt.Errorf("forfeit game %s: %w", gameID, err)
	}
	return nil
}

// autoPass elapses the turn whether or not legal placements exist: the
// player's time ran out, not their options. A pass with no legal moves
// mirrors a normal no-legal-move pass.
func (r *Resolver) autoPass(ctx context.Context, gameID, userID uuid.UUID) error {
	hasMove, err := r.moves.HasLegalMove(ctx, gameID, userID)
	if err != nil {
		return r.fallbackForfeit(ctx, gameID, userID, fmt.Errorf("query legal moves: %w", err))
	}
	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Bool("had_legal_move", hasMove).
		Msg("auto-pass on timeout")

	if err := r.moves.PassTurn(ctx, gameID, userID); err != nil {
		return r.fallbackForfeit(ctx, gameID, userID, fmt.Errorf("pass turn: %w", err))
	}
	return nil
}

func (r *Resolver) autoMove(ctx context.Context, gameID, userID uuid.UUID, strategy timer.AutoMoveStrategy) error {
	legal, err := r.moves.LegalMoves(ctx, gameID, userID)
	if err != nil {
		return r.fallbackForfeit(ctx, gameID, userID, fmt.Errorf("list legal moves: %w", err))
	}
	if len(legal) == 0 {
		if err := r.moves.PassTurn(ctx, gameID, userID); err != nil {
			return r.fallbackForfeit(ctx, gameID, userID, fmt.Errorf("pass turn: %w", err))
		}
		return nil
	}

	size, err := r.moves.BoardSize(ctx, gameID)
	if err != nil {
		return r.fallbackForfeit(ctx, gameID, userID, fmt.Errorf("board size: %w", err))
	}

	choice := r.chooseMove(strategy, legal, size)
	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Str("strategy", string(strategy)).
		Int("row", choice.Row).
		Int("col", choice.Col).
		Msg("auto-move on timeout")

	if err := r.moves.ApplyMove(ctx, gameID, userID, choice); err != nil {
		return r.fallbackForfeit(ctx, gameID, userID, fmt.Errorf("apply auto-move: %w", err))
	}
	return nil
}

// chooseMove picks a placement by strategy. best_corner prefers a corner
// square and falls back to random; best_edge prefers any outer-ring square
// (corners included in the edge test) and falls back to any legal move.
func (r *Resolver) chooseMove(strategy timer.AutoMoveStrategy, legal []board.Position, size int) board.Position {
	switch strategy {
	case timer.StrategyBestCorner:
		for _, p := range legal {
			if board.IsCorner(p, size) {
				return p
			}
		}
	case timer.StrategyBestEdge:
		for _, p := range legal {
			if board.IsEdge(p, size) {
				return p
			}
		}
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return legal[r.rng.Intn(len(legal))]
}

// fallbackForfeit logs the original failure and fails toward forfeit.
func (r *Resolver) fallbackForfeit(ctx context.Context, gameID, userID uuid.UUID, cause error) error {
	log.Warn().
		Err(cause).
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Msg("timeout action failed; falling back to forfeit")
	if err := r.forfeit(ctx, gameID, userID); err != nil {
		return fmt.Errorf("fallback forfeit after %v: %w", cause, err)
	}
	return nil
}
