// Package game owns the registry of live games and the move flow that
// drives the timer subsystem: every successful placement triggers the
// stop/increment/start-next sequence on the game's clocks.
package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/board"
	"github.com/mcdev12/flipside/internal/events"
	"github.com/mcdev12/flipside/internal/timer"
)

// Timers is what the game service needs from the timer orchestrator.
type Timers interface {
	CreateGameTimers(ctx context.Context, gameID uuid.UUID, cfg timer.Config, players []uuid.UUID) error
	StartPlayerTimer(ctx context.Context, gameID, userID uuid.UUID)
	HandleMoveCompleted(ctx context.Context, gameID, mover, next uuid.UUID, gameOver bool)
	DestroyGameTimers(ctx context.Context, gameID uuid.UUID)
}

// Service is the explicitly constructed game registry: games are created
// and removed through it, never on first access.
type Service struct {
	clk       clockwork.Clock
	publisher events.Publisher

	mu     sync.RWMutex
	games  map[uuid.UUID]*Game
	timers Timers
}

// NewService creates an empty game registry.
func NewService(clk clockwork.Clock, publisher events.Publisher) *Service {
	return &Service{
		clk:       clk,
		publisher: publisher,
		games:     make(map[uuid.UUID]*Game),
	}
}

// BindTimers wires the timer orchestrator. The orchestrator's policy
// resolver points back at this service, so the two are bound after both
// exist.
func (s *Service) BindTimers(t Timers) {
	s.timers = t
}

// CreateGame validates the timer config and seats two players. An invalid
// config rejects the creation with every violation reported.
func (s *Service) CreateGame(ctx context.Context, cfg timer.Config, black, white uuid.UUID) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rejecting game creation: %w", err)
	}
	if black == white || black == uuid.Nil || white == uuid.Nil {
		return nil, fmt.Errorf("game requires two distinct players")
	}
	b, err := board.New(board.DefaultSize)
	if err != nil {
		return nil, err
	}

	g := &Game{
		ID:          uuid.New(),
		Black:       black,
		White:       white,
		Board:       b,
		Turn:        board.Black,
		Status:      StatusWaiting,
		TimerConfig: cfg,
		CreatedAt:   s.clk.Now(),
	}

	s.mu.Lock()
	s.games[g.ID] = g
	s.mu.Unlock()

	log.Info().
		Str("game_id", g.ID.String()).
		Str("black", black.String()).
		Str("white", white.String()).
		Str("timer_type", string(cfg.Type)).
		Msg("game created")
	return g, nil
}

// StartGame moves a waiting game to in-progress, creates its timers, and
// starts black's clock.
func (s *Service) StartGame(ctx context.Context, gameID uuid.UUID) error {
	s.mu.Lock()
	g, ok := s.games[gameID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown game %s", gameID)
	}
	if g.Status != StatusWaiting {
		s.mu.Unlock()
		return fmt.Errorf("game %s already %s", gameID, g.Status)
	}
	g.Status = StatusInProgress
	g.StartedAt = s.clk.Now()
	cfg := g.TimerConfig
	black, white := g.Black, g.White
	s.mu.Unlock()

	if err := s.timers.CreateGameTimers(ctx, gameID, cfg, []uuid.UUID{black, white}); err != nil {
		return fmt.Errorf("start game %s: %w", gameID, err)
	}
	s.timers.StartPlayerTimer(ctx, gameID, black)

	log.Info().Str("game_id", gameID.String()).Msg("game started")
	return nil
}

// Get returns the game, if registered.
func (s *Service) Get(gameID uuid.UUID) (*Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	return g, ok
}

// HandleMove validates and applies a placement for the player, then runs the
// timer move-completion sequence. Clocks are updated before any game-state
// synchronization message goes out.
func (s *Service) HandleMove(ctx context.Context, gameID, userID uuid.UUID, pos board.Position) error {
	s.mu.Lock()
	g, ok := s.games[gameID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown game %s", gameID)
	}
	if g.Status != StatusInProgress {
		s.mu.Unlock()
		return fmt.Errorf("game %s is not in progress", gameID)
	}
	d := g.DiscOf(userID)
	if d == board.Empty {
		s.mu.Unlock()
		return fmt.Errorf("user %s is not seated in game %s", userID, gameID)
	}
	if d != g.Turn {
		s.mu.Unlock()
		return fmt.Errorf("not %s's turn in game %s", d, gameID)
	}

	flipped, err := g.Board.Apply(d, pos)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	next, gameOver := s.advanceTurnLocked(g, d)
	s.mu.Unlock()

	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Int("row", pos.Row).
		Int("col", pos.Col).
		Int("flipped", flipped).
		Bool("game_over", gameOver).
		Msg("move applied")

	s.timers.HandleMoveCompleted(ctx, gameID, userID, next, gameOver)
	if gameOver {
		s.finishByScore(ctx, gameID)
	}
	return nil
}

// advanceTurnLocked decides who moves after side d acted. The opponent
// moves if they can; otherwise the turn bounces back to d (a forced pass);
// if neither side can place, the game is over.
func (s *Service) advanceTurnLocked(g *Game, d board.Disc) (next uuid.UUID, gameOver bool) {
	opp := d.Opponent()
	switch {
	case g.Board.HasLegalMove(opp):
		g.Turn = opp
		return g.PlayerFor(opp), false
	case g.Board.HasLegalMove(d):
		g.Turn = d
		return g.PlayerFor(d), false
	default:
		return uuid.Nil, true
	}
}

// finishByScore settles a game whose board has no legal placements left.
func (s *Service) finishByScore(ctx context.Context, gameID uuid.UUID) {
	s.mu.Lock()
	g, ok := s.games[gameID]
	if !ok || g.Status == StatusFinished {
		s.mu.Unlock()
		return
	}
	black, white := g.Board.Counts()
	var winner uuid.UUID
	switch {
	case black > white:
		winner = g.Black
	case white > black:
		winner = g.White
	}
	s.finishLocked(g, winner, ReasonScore)
	s.mu.Unlock()

	s.afterFinish(ctx, gameID, winner, ReasonScore)
	log.Info().
		Str("game_id", gameID.String()).
		Int("black", black).
		Int("white", white).
		Msg("game finished on score")
}

func (s *Service) finishLocked(g *Game, winner uuid.UUID, reason string) {
	g.Status = StatusFinished
	g.Winner = winner
	g.Reason = reason
	g.FinishedAt = s.clk.Now()
}

// afterFinish releases the game's timers and announces the outcome. The
// timer teardown happens before the outcome broadcast.
func (s *Service) afterFinish(ctx context.Context, gameID, winner uuid.UUID, reason string) {
	s.timers.DestroyGameTimers(ctx, gameID)

	winnerStr := ""
	if winner != uuid.Nil {
		winnerStr = winner.String()
	}
	if err := s.publisher.Publish(ctx, gameID, events.EventTypeGameFinished, events.GameFinishedPayload{
		WinnerID:  winnerStr,
		Reason:    reason,
		Timestamp: s.clk.Now(),
	}); err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to publish game finished event")
	}
}

// RemoveGame drops a finished or abandoned game from the registry, tearing
// down its timers if they still exist.
func (s *Service) RemoveGame(ctx context.Context, gameID uuid.UUID) {
	s.mu.Lock()
	_, ok := s.games[gameID]
	if ok {
		delete(s.games, gameID)
	}
	s.mu.Unlock()
	if ok {
		s.timers.DestroyGameTimers(ctx, gameID)
	}
}

// HasLegalMove implements the move-legality provider for the timeout policy
// resolver.
func (s *Service) HasLegalMove(ctx context.Context, gameID, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return false, fmt.Errorf("unknown game %s", gameID)
	}
	d := g.DiscOf(userID)
	if d == board.Empty {
		return false, fmt.Errorf("user %s is not seated in game %s", userID, gameID)
	}
	return g.Board.HasLegalMove(d), nil
}

// LegalMoves lists the player's current legal placements.
func (s *Service) LegalMoves(ctx context.Context, gameID, userID uuid.UUID) ([]board.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, fmt.Errorf("unknown game %s", gameID)
	}
	d := g.DiscOf(userID)
	if d == board.Empty {
		return nil, fmt.Errorf("user %s is not seated in game %s", userID, gameID)
	}
	return g.Board.LegalMoves(d), nil
}

// BoardSize returns the game's board width.
func (s *Service) BoardSize(ctx context.Context, gameID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return 0, fmt.Errorf("unknown game %s", gameID)
	}
	return g.Board.Size(), nil
}

// ApplyMove is the resolver's entry into the normal move-application path.
func (s *Service) ApplyMove(ctx context.Context, gameID, userID uuid.UUID, pos board.Position) error {
	return s.HandleMove(ctx, gameID, userID, pos)
}

// PassTurn advances the turn without placing a piece. Used when a timed-out
// player is auto-passed. If neither side can move afterwards the game ends
// on score.
func (s *Service) PassTurn(ctx context.Context, gameID, userID uuid.UUID) error {
	s.mu.Lock()
	g, ok := s.games[gameID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown game %s", gameID)
	}
	if g.Status != StatusInProgress {
		s.mu.Unlock()
		return fmt.Errorf("game %s is not in progress", gameID)
	}
	d := g.DiscOf(userID)
	if d == board.Empty {
		s.mu.Unlock()
		return fmt.Errorf("user %s is not seated in game %s", userID, gameID)
	}
	if d != g.Turn {
		s.mu.Unlock()
		return fmt.Errorf("not %s's turn in game %s", d, gameID)
	}

	next, gameOver := s.advanceTurnLocked(g, d)
	s.mu.Unlock()

	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Bool("game_over", gameOver).
		Msg("turn passed")

	s.timers.HandleMoveCompleted(ctx, gameID, userID, next, gameOver)
	if gameOver {
		s.finishByScore(ctx, gameID)
	}
	return nil
}

// IsFinished implements the lifecycle provider for the policy resolver.
func (s *Service) IsFinished(ctx context.Context, gameID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return false, fmt.Errorf("unknown game %s", gameID)
	}
	return g.Status == StatusFinished, nil
}

// ForfeitOnTimeout finishes the game with the opposing player declared
// winner. The board is left untouched.
func (s *Service) ForfeitOnTimeout(ctx context.Context, gameID, loserID uuid.UUID) error {
	s.mu.Lock()
	g, ok := s.games[gameID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown game %s", gameID)
	}
	if g.Status == StatusFinished {
		s.mu.Unlock()
		return nil
	}
	winner := g.Opponent(loserID)
	if winner == uuid.Nil {
		s.mu.Unlock()
		return fmt.Errorf("user %s is not seated in game %s", loserID, gameID)
	}
	s.finishLocked(g, winner, ReasonTimeoutForfeit)
	s.mu.Unlock()

	s.afterFinish(ctx, gameID, winner, ReasonTimeoutForfeit)
	log.Info().
		Str("game_id", gameID.String()).
		Str("loser", loserID.String()).
		Str("winner", winner.String()).
		Msg("game forfeited on timeout")
	return nil
}

// ActiveGameIDs lists in-progress games.
func (s *Service) ActiveGameIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for id, g := range s.games {
		if g.Status == StatusInProgress {
			ids = append(ids, id)
		}
	}
	return ids
}
