package game

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flipside/internal/board"
	"github.com/mcdev12/flipside/internal/events"
	"github.com/mcdev12/flipside/internal/timer"
)

// fakeTimers records the timer orchestration calls the game service makes.
type fakeTimers struct {
	mu        sync.Mutex
	created   []uuid.UUID
	started   []uuid.UUID
	moves     []moveCall
	destroyed []uuid.UUID
}

type moveCall struct {
	mover    uuid.UUID
	next     uuid.UUID
	gameOver bool
}

func (f *fakeTimers) CreateGameTimers(ctx context.Context, gameID uuid.UUID, cfg timer.Config, players []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, gameID)
	return nil
}

func (f *fakeTimers) StartPlayerTimer(ctx context.Context, gameID, userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, userID)
}

func (f *fakeTimers) HandleMoveCompleted(ctx context.Context, gameID, mover, next uuid.UUID, gameOver bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, moveCall{mover: mover, next: next, gameOver: gameOver})
}

func (f *fakeTimers) DestroyGameTimers(ctx context.Context, gameID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, gameID)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.EventType
}

func (p *recordingPublisher) Publish(ctx context.Context, gameID uuid.UUID, eventType events.EventType, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) has(typ events.EventType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == typ {
			return true
		}
	}
	return false
}

func gameConfig() timer.Config {
	return timer.Config{
		Type:                timer.TypeIncrement,
		InitialTime:         300,
		Increment:           5,
		MaxTime:             600,
		LowTimeWarning:      60,
		CriticalTimeWarning: 10,
		AutoFlagOnTimeout:   true,
		TimeoutAction:       timer.ActionForfeit,
	}
}

type env struct {
	svc    *Service
	timers *fakeTimers
	pub    *recordingPublisher
	black  uuid.UUID
	white  uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		timers: &fakeTimers{},
		pub:    &recordingPublisher{},
		black:  uuid.New(),
		white:  uuid.New(),
	}
	e.svc = NewService(clockwork.NewFakeClock(), e.pub)
	e.svc.BindTimers(e.timers)
	return e
}

func (e *env) startedGame(t *testing.T) *Game {
	t.Helper()
	g, err := e.svc.CreateGame(context.Background(), gameConfig(), e.black, e.white)
	require.NoError(t, err)
	require.NoError(t, e.svc.StartGame(context.Background(), g.ID))
	return g
}

func TestCreateGameRejectsInvalidTimerConfig(t *testing.T) {
	e := newEnv(t)
	cfg := gameConfig()
	cfg.Type = "hourglass"
	cfg.InitialTime = -1

	_, err := e.svc.CreateGame(context.Background(), cfg, e.black, e.white)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejecting game creation")
	assert.Contains(t, err.Error(), "unknown timer type")
	assert.Contains(t, err.Error(), "initialTime")
}

func TestCreateGameRequiresDistinctPlayers(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.CreateGame(context.Background(), gameConfig(), e.black, e.black)
	require.Error(t, err)

	_, err = e.svc.CreateGame(context.Background(), gameConfig(), uuid.Nil, e.white)
	require.Error(t, err)
}

func TestStartGameCreatesTimersAndStartsBlack(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)

	assert.Equal(t, StatusInProgress, g.Status)
	assert.Equal(t, []uuid.UUID{g.ID}, e.timers.created)
	assert.Equal(t, []uuid.UUID{e.black}, e.timers.started, "black moves first")

	// A second start is rejected.
	require.Error(t, e.svc.StartGame(context.Background(), g.ID))
}

func TestHandleMoveEnforcesTurnAndSeat(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)
	ctx := context.Background()

	// White cannot move first.
	err := e.svc.HandleMove(ctx, g.ID, e.white, board.Position{Row: 2, Col: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turn")

	// Outsiders cannot move at all.
	err = e.svc.HandleMove(ctx, g.ID, uuid.New(), board.Position{Row: 2, Col: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not seated")

	// Illegal placements leave the turn untouched.
	err = e.svc.HandleMove(ctx, g.ID, e.black, board.Position{Row: 0, Col: 0})
	require.Error(t, err)
	assert.Empty(t, e.timers.moves)
}

func TestHandleMoveRunsTimerSequence(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)

	require.NoError(t, e.svc.HandleMove(context.Background(), g.ID, e.black, board.Position{Row: 2, Col: 3}))

	require.Len(t, e.timers.moves, 1)
	assert.Equal(t, moveCall{mover: e.black, next: e.white, gameOver: false}, e.timers.moves[0])
	assert.Equal(t, board.White, g.Turn)
}

func TestHandleMoveRejectsUnstartedGame(t *testing.T) {
	e := newEnv(t)
	g, err := e.svc.CreateGame(context.Background(), gameConfig(), e.black, e.white)
	require.NoError(t, err)

	err = e.svc.HandleMove(context.Background(), g.ID, e.black, board.Position{Row: 2, Col: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in progress")
}

func TestForfeitOnTimeoutFinishesGame(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)

	require.NoError(t, e.svc.ForfeitOnTimeout(context.Background(), g.ID, e.black))

	assert.Equal(t, StatusFinished, g.Status)
	assert.Equal(t, e.white, g.Winner)
	assert.Equal(t, ReasonTimeoutForfeit, g.Reason)
	assert.Equal(t, []uuid.UUID{g.ID}, e.timers.destroyed, "timers torn down before the outcome broadcast")
	assert.True(t, e.pub.has(events.EventTypeGameFinished))

	// Forfeiting a finished game is a no-op.
	require.NoError(t, e.svc.ForfeitOnTimeout(context.Background(), g.ID, e.white))
	assert.Equal(t, e.white, g.Winner)
}

func TestForfeitRejectsOutsider(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)
	require.Error(t, e.svc.ForfeitOnTimeout(context.Background(), g.ID, uuid.New()))
}

func TestPassTurnAdvancesWithoutPlacement(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)

	black, white := g.Board.Counts()
	require.NoError(t, e.svc.PassTurn(context.Background(), g.ID, e.black))

	newBlack, newWhite := g.Board.Counts()
	assert.Equal(t, black, newBlack)
	assert.Equal(t, white, newWhite)
	assert.Equal(t, board.White, g.Turn)
	require.Len(t, e.timers.moves, 1)
	assert.Equal(t, e.white, e.timers.moves[0].next)
}

func TestPassTurnEnforcesTurn(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)
	require.Error(t, e.svc.PassTurn(context.Background(), g.ID, e.white))
}

func TestMoveProviderSurface(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)
	ctx := context.Background()

	has, err := e.svc.HasLegalMove(ctx, g.ID, e.black)
	require.NoError(t, err)
	assert.True(t, has)

	moves, err := e.svc.LegalMoves(ctx, g.ID, e.black)
	require.NoError(t, err)
	assert.Len(t, moves, 4)

	size, err := e.svc.BoardSize(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, board.DefaultSize, size)

	finished, err := e.svc.IsFinished(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, finished)

	_, err = e.svc.HasLegalMove(ctx, g.ID, uuid.New())
	require.Error(t, err)
	_, err = e.svc.LegalMoves(ctx, uuid.New(), e.black)
	require.Error(t, err)
}

func TestRemoveGameTearsDownTimers(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)

	e.svc.RemoveGame(context.Background(), g.ID)
	_, ok := e.svc.Get(g.ID)
	assert.False(t, ok)
	assert.Equal(t, []uuid.UUID{g.ID}, e.timers.destroyed)

	// Removing twice does not destroy twice.
	e.svc.RemoveGame(context.Background(), g.ID)
	assert.Len(t, e.timers.destroyed, 1)
}

func TestActiveGameIDs(t *testing.T) {
	e := newEnv(t)
	g := e.startedGame(t)

	waiting, err := e.svc.CreateGame(context.Background(), gameConfig(), uuid.New(), uuid.New())
	require.NoError(t, err)

	ids := e.svc.ActiveGameIDs()
	assert.Contains(t, ids, g.ID)
	assert.NotContains(t, ids, waiting.ID)
}
