package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flipside/internal/board"
	"github.com/mcdev12/flipside/internal/timer"
)

// stubMoves scripts the move-provider side of a timeout resolution.
type stubMoves struct {
	mu        sync.Mutex
	legal     []board.Position
	size      int
	applyErr  error
	passErr   error
	legalErr  error
	applied   []board.Position
	passed    []uuid.UUID
}

func (s *stubMoves) HasLegalMove(ctx context.Context, gameID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.legalErr != nil {
		return false, s.legalErr
	}
	return len(s.legal) > 0, nil
}

func (s *stubMoves) LegalMoves(ctx context.Context, gameID, userID uuid.UUID) ([]board.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.legalErr != nil {
		return nil, s.legalErr
	}
	return s.legal, nil
}

func (s *stubMoves) BoardSize(ctx context.Context, gameID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == 0 {
		return board.DefaultSize, nil
	}
	return s.size, nil
}

func (s *stubMoves) ApplyMove(ctx context.Context, gameID, userID uuid.UUID, pos board.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, pos)
	return nil
}

func (s *stubMoves) PassTurn(ctx context.Context, gameID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.passErr != nil {
		return s.passErr
	}
	s.passed = append(s.passed, userID)
	return nil
}

// stubLifecycle records forfeits and scripts the finished check.
type stubLifecycle struct {
	mu        sync.Mutex
	finished  bool
	forfeited []uuid.UUID
}

func (s *stubLifecycle) IsFinished(ctx context.Context, gameID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished, nil
}

func (s *stubLifecycle) ForfeitOnTimeout(ctx context.Context, gameID, loserID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forfeited = append(s.forfeited, loserID)
	return nil
}

func (s *stubLifecycle) forfeitedIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, len(s.forfeited))
	copy(out, s.forfeited)
	return out
}

func resolverConfig(action timer.TimeoutAction, strategy timer.AutoMoveStrategy) timer.Config {
	cfg := testConfig()
	cfg.TimeoutAction = action
	cfg.AutoMoveStrategy = strategy
	return cfg
}

func TestResolveForfeit(t *testing.T) {
	moves := &stubMoves{}
	lifecycle := &stubLifecycle{}
	r := NewResolver(moves, lifecycle)
	userID := uuid.New()

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), userID, resolverConfig(timer.ActionForfeit, "")))
	assert.Equal(t, []uuid.UUID{userID}, lifecycle.forfeitedIDs())
}

func TestResolveFinishedGameIsNoOp(t *testing.T) {
	moves := &stubMoves{}
	lifecycle := &stubLifecycle{finished: true}
	r := NewResolver(moves, lifecycle)

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), uuid.New(), resolverConfig(timer.ActionForfeit, "")))
	assert.Empty(t, lifecycle.forfeitedIDs())
}

func TestResolveAutoPassAlwaysPasses(t *testing.T) {
	// The turn elapses even when the player had legal placements.
	moves := &stubMoves{legal: []board.Position{{Row: 2, Col: 3}}}
	lifecycle := &stubLifecycle{}
	r := NewResolver(moves, lifecycle)
	userID := uuid.New()

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), userID, resolverConfig(timer.ActionAutoPass, "")))
	assert.Equal(t, []uuid.UUID{userID}, moves.passed)
	assert.Empty(t, lifecycle.forfeitedIDs())
}

func TestResolveAutoPassWithNoLegalMoves(t *testing.T) {
	moves := &stubMoves{}
	lifecycle := &stubLifecycle{}
	r := NewResolver(moves, lifecycle)
	userID := uuid.New()

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), userID, resolverConfig(timer.ActionAutoPass, "")))
	assert.Equal(t, []uuid.UUID{userID}, moves.passed)
}

func TestResolveAutoMoveBestCornerPrefersCorner(t *testing.T) {
	corner := board.Position{Row: 0, Col: 7}
	moves := &stubMoves{legal: []board.Position{{Row: 3, Col: 4}, {Row: 5, Col: 5}, corner}}
	lifecycle := &stubLifecycle{}
	r := NewResolver(moves, lifecycle)

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), uuid.New(), resolverConfig(timer.ActionAutoMove, timer.StrategyBestCorner)))
	require.Len(t, moves.applied, 1)
	assert.Equal(t, corner, moves.applied[0])
}

func TestResolveAutoMoveBestCornerFallsBackToAnyLegal(t *testing.T) {
	legal := []board.Position{{Row: 3, Col: 4}, {Row: 5, Col: 5}}
	moves := &stubMoves{legal: legal}
	r := NewResolver(moves, &stubLifecycle{})

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), uuid.New(), resolverConfig(timer.ActionAutoMove, timer.StrategyBestCorner)))
	require.Len(t, moves.applied, 1)
	assert.Contains(t, legal, moves.applied[0])
}

func TestResolveAutoMoveBestEdgePrefersOuterRing(t *testing.T) {
	edge := board.Position{Row: 0, Col: 3}
	moves := &stubMoves{legal: []board.Position{{Row: 4, Col: 4}, edge}}
	r := NewResolver(moves, &stubLifecycle{})

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), uuid.New(), resolverConfig(timer.ActionAutoMove, timer.StrategyBestEdge)))
	require.Len(t, moves.applied, 1)
	assert.Equal(t, edge, moves.applied[0])
}

func TestResolveAutoMoveWithNoLegalMovesPasses(t *testing.T) {
	moves := &stubMoves{}
	r := NewResolver(moves, &stubLifecycle{})
	userID := uuid.New()

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), userID, resolverConfig(timer.ActionAutoMove, timer.StrategyRandom)))
	assert.Equal(t, []uuid.UUID{userID}, moves.passed)
	assert.Empty(t, moves.applied)
}

func TestResolveAutoMoveFailureFallsBackToForfeit(t *testing.T) {
	moves := &stubMoves{
		legal:    []board.Position{{Row: 2, Col: 3}},
		applyErr: errors.New("board rejected placement"),
	}
	lifecycle := &stubLifecycle{}
	r := NewResolver(moves, lifecycle)
	userID := uuid.New()

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), userID, resolverConfig(timer.ActionAutoMove, timer.StrategyRandom)))
	assert.Equal(t, []uuid.UUID{userID}, lifecycle.forfeitedIDs())
}

func TestResolveAutoPassFailureFallsBackToForfeit(t *testing.T) {
	moves := &stubMoves{passErr: errors.New("game gone")}
	lifecycle := &stubLifecycle{}
	r := NewResolver(moves, lifecycle)
	userID := uuid.New()

	require.NoError(t, r.Resolve(context.Background(), uuid.New(), userID, resolverConfig(timer.ActionAutoPass, "")))
	assert.Equal(t, []uuid.UUID{userID}, lifecycle.forfeitedIDs())
}
