// Package orchestrator owns the set of player clocks for each active game.
// It enforces the single-active-clock invariant, wires clock events to
// outbound synchronization messages, and resolves timeouts into a game
// outcome.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/events"
	"github.com/mcdev12/flipside/internal/store"
	"github.com/mcdev12/flipside/internal/timer"
)

// snapshotInterval throttles tick-driven persistence; state transitions
// always persist immediately.
const snapshotInterval = 5 * time.Second

// fanoutTimeout bounds the work done on behalf of a single clock event.
const fanoutTimeout = 10 * time.Second

// gameTimers bundles one game's clocks and bookkeeping. Created and
// destroyed explicitly, never on first access. All mutation goes through
// its mutex, so there is at most one in-flight mutation per game.
type gameTimers struct {
	gameID uuid.UUID
	cfg    timer.Config

	mu          sync.Mutex
	clocks      map[uuid.UUID]*timer.Clock
	gameStart   time.Time
	destroyed   bool
	lastPersist time.Time
}

// Orchestrator manages the arena of per-game timer sets.
type Orchestrator struct {
	clk       clockwork.Clock
	publisher events.Publisher
	store     store.Store
	resolver  *Resolver

	mu    sync.RWMutex
	games map[uuid.UUID]*gameTimers
}

// New creates an orchestrator. The resolver may be bound later via
// SetResolver when the game service and orchestrator reference each other.
func New(clk clockwork.Clock, publisher events.Publisher, st store.Store) *Orchestrator {
	return &Orchestrator{
		clk:       clk,
		publisher: publisher,
		store:     st,
		games:     make(map[uuid.UUID]*gameTimers),
	}
}

// SetResolver binds the timeout policy resolver.
func (o *Orchestrator) SetResolver(r *Resolver) {
	o.resolver = r
}

// clockBinding routes one game's clock events back into the orchestrator.
type clockBinding struct {
	o      *Orchestrator
	gameID uuid.UUID
}

func (b clockBinding) ClockTicked(userID uuid.UUID, remaining time.Duration) {
	b.o.handleTick(b.gameID, userID, remaining)
}

func (b clockBinding) ClockWarning(userID uuid.UUID, kind timer.WarningKind, remaining time.Duration) {
	b.o.handleWarning(b.gameID, userID, kind, remaining)
}

func (b clockBinding) ClockExpired(userID uuid.UUID) {
	b.o.handleExpired(b.gameID, userID)
}

// CreateGameTimers instantiates one clock per seated player, all idle,
// sharing the game's config. Config violations are aggregated into the
// returned error; creating timers for an existing game is an error.
func (o *Orchestrator) CreateGameTimers(ctx context.Context, gameID uuid.UUID, cfg timer.Config, players []uuid.UUID) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("create timers for game %s: %w", gameID, err)
	}

	gt := &gameTimers{
		gameID:    gameID,
		cfg:       cfg,
		clocks:    make(map[uuid.UUID]*timer.Clock, len(players)),
		gameStart: o.clk.Now(),
	}
	binding := clockBinding{o: o, gameID: gameID}
	for _, userID := range players {
		c, err := timer.NewClock(userID, cfg, o.clk, binding)
		if err != nil {
			return fmt.Errorf("create clock for player %s: %w", userID, err)
		}
		gt.clocks[userID] = c
	}

	o.mu.Lock()
	if _, exists := o.games[gameID]; exists {
		o.mu.Unlock()
		return fmt.Errorf("timers already exist for game %s", gameID)
	}
	o.games[gameID] = gt
	o.mu.Unlock()

	log.Info().
		Str("game_id", gameID.String()).
		Str("timer_type", string(cfg.Type)).
		Int("players", len(players)).
		Msg("game timers created")

	o.persist(ctx, gt, true)
	return nil
}

// RestoreGameTimers rebuilds a game's timer set from the persisted
// snapshot, leaving every clock idle at its saved remaining time. The
// caller restarts the active player afterwards.
func (o *Orchestrator) RestoreGameTimers(ctx context.Context, gameID uuid.UUID) error {
	state, err := o.store.LoadSnapshot(ctx, gameID)
	if err != nil {
		return fmt.Errorf("restore timers for game %s: %w", gameID, err)
	}

	gt := &gameTimers{
		gameID:    gameID,
		cfg:       state.Config,
		clocks:    make(map[uuid.UUID]*timer.Clock, len(state.PlayerTimers)),
		gameStart: state.GameStartTime,
	}
	binding := clockBinding{o: o, gameID: gameID}
	for id, ps := range state.PlayerTimers {
		userID, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("restore timers for game %s: bad user id %q: %w", gameID, id, err)
		}
		c, err := timer.NewClock(userID, state.Config, o.clk, binding)
		if err != nil {
			return fmt.Errorf("restore clock for player %s: %w", userID, err)
		}
		remaining := time.Duration(ps.RemainingTime * float64(time.Second))
		c.Reset(&remaining)
		gt.clocks[userID] = c
	}

	o.mu.Lock()
	if _, exists := o.games[gameID]; exists {
		o.mu.Unlock()
		return fmt.Errorf("timers already exist for game %s", gameID)
	}
	o.games[gameID] = gt
	o.mu.Unlock()

	log.Info().Str("game_id", gameID.String()).Msg("game timers restored from snapshot")
	return nil
}

// lookup returns the timer set for a game, or nil when unknown. Unknown
// games and users are benign races with game teardown, so callers treat nil
// as a silent no-op.
func (o *Orchestrator) lookup(gameID uuid.UUID) *gameTimers {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.games[gameID]
}

// StartPlayerTimer stops every other clock in the game, then starts the
// target clock. Stopping first avoids any window with two active clocks.
func (o *Orchestrator) StartPlayerTimer(ctx context.Context, gameID, userID uuid.UUID) {
	gt := o.lookup(gameID)
	if gt == nil {
		return
	}
	gt.mu.Lock()
	target, ok := gt.clocks[userID]
	if !ok || gt.destroyed {
		gt.mu.Unlock()
		return
	}
	for id, c := range gt.clocks {
		if id != userID {
			c.Stop()
		}
	}
	target.Start()
	gt.mu.Unlock()

	o.persist(ctx, gt, true)
}

// StopPlayerTimer freezes the player's clock. Unknown game/user is a no-op.
func (o *Orchestrator) StopPlayerTimer(ctx context.Context, gameID, userID uuid.UUID) {
	gt := o.lookup(gameID)
	if gt == nil {
		return
	}
	gt.mu.Lock()
	c, ok := gt.clocks[userID]
	if ok {
		c.Stop()
	}
	gt.mu.Unlock()
	if ok {
		o.persist(ctx, gt, true)
	}
}

// PausePlayerTimer pauses the player's clock and announces it. Used on
// disconnect and explicit pause requests.
func (o *Orchestrator) PausePlayerTimer(ctx context.Context, gameID, userID uuid.UUID) {
	gt := o.lookup(gameID)
	if gt == nil {
		return
	}
	gt.mu.Lock()
	c, ok := gt.clocks[userID]
	if !ok || gt.destroyed {
		gt.mu.Unlock()
		return
	}
	wasRunning := c.IsActive()
	c.Pause()
	remaining := c.Remaining()
	gt.mu.Unlock()

	if !wasRunning {
		return
	}
	o.publish(ctx, gameID, events.EventTypeTimerPaused, events.TimerPausedPayload{
		UserID:        userID.String(),
		RemainingTime: timer.Seconds(remaining),
		Timestamp:     o.clk.Now(),
	})
	o.persist(ctx, gt, true)
}

// ResumePlayerTimer resumes a paused clock, unless the cumulative pause time
// including the closing episode has exceeded the pause budget, in which case
// the resume converts into a timeout resolution instead.
func (o *Orchestrator) ResumePlayerTimer(ctx context.Context, gameID, userID uuid.UUID) {
	gt := o.lookup(gameID)
	if gt == nil {
		return
	}
	gt.mu.Lock()
	c, ok := gt.clocks[userID]
	if !ok || gt.destroyed {
		gt.mu.Unlock()
		return
	}
	if c.State() != timer.StatePaused {
		gt.mu.Unlock()
		return
	}

	if budget := gt.cfg.MaxPause(); gt.cfg.MaxPauseTime > 0 && c.PendingPausedTotal() > budget {
		expired := c.Expire()
		gt.mu.Unlock()
		if !expired {
			return
		}
		log.Info().
			Str("game_id", gameID.String()).
			Str("user_id", userID.String()).
			Dur("budget", budget).
			Msg("pause budget exceeded on resume; converting to timeout")
		o.finishExpiry(ctx, gt, userID)
		return
	}

	c.Resume()
	remaining := c.Remaining()
	gt.mu.Unlock()

	o.publish(ctx, gameID, events.EventTypeTimerResumed, events.TimerResumedPayload{
		UserID:        userID.String(),
		RemainingTime: timer.Seconds(remaining),
		Timestamp:     o.clk.Now(),
	})
	o.persist(ctx, gt, true)
}

// AddTimeIncrement applies the discipline's post-move credit and announces
// it when any time was actually added.
func (o *Orchestrator) AddTimeIncrement(ctx context.Context, gameID, userID uuid.UUID) {
	gt := o.lookup(gameID)
	if gt == nil {
		return
	}
	gt.mu.Lock()
	c, ok := gt.clocks[userID]
	if !ok {
		gt.mu.Unlock()
		return
	}
	applied, newRemaining := c.AddIncrement()
	gt.mu.Unlock()

	if applied > 0 {
		o.publish(ctx, gameID, events.EventTypeIncrementApplied, events.IncrementAppliedPayload{
			UserID:          userID.String(),
			NewTime:         timer.Seconds(newRemaining),
			IncrementAmount: timer.Seconds(applied),
			Timestamp:       o.clk.Now(),
		})
	}
	o.persist(ctx, gt, true)
}

// HandleMoveCompleted runs the move-completion sequence after the game
// engine reports a successful placement: stop the mover, credit the
// increment, and, unless the game is over, start the next mover. The whole
// sequence holds the game's timer lock, so concurrent ticks or pause/resume
// requests observe it atomically. A handoff to an already-expired clock
// cannot start a countdown; it re-runs the timeout policy instead.
func (o *Orchestrator) HandleMoveCompleted(ctx context.Context, gameID, mover, next uuid.UUID, gameOver bool) {
	gt := o.lookup(gameID)
	if gt == nil {
		return
	}
	gt.mu.Lock()
	moverClock, ok := gt.clocks[mover]
	if !ok || gt.destroyed {
		gt.mu.Unlock()
		return
	}
	moverClock.Stop()
	applied, newRemaining := moverClock.AddIncrement()

	var nextExpired bool
	if !gameOver && next != uuid.Nil {
		if nextClock, ok := gt.clocks[next]; ok {
			for id, c := range gt.clocks {
				if id != next {
					c.Stop()
				}
			}
			if nextClock.State() == timer.StateExpired {
				nextExpired = true
			} else {
				nextClock.Start()
			}
		}
	}
	stalled := nextExpired && (next == mover || moverClock.State() == timer.StateExpired)
	gt.mu.Unlock()

	if applied > 0 {
		o.publish(ctx, gameID, events.EventTypeIncrementApplied, events.IncrementAppliedPayload{
			UserID:          mover.String(),
			NewTime:         timer.Seconds(newRemaining),
			IncrementAmount: timer.Seconds(applied),
			Timestamp:       o.clk.Now(),
		})
	}
	o.persist(ctx, gt, true)

	if nextExpired {
		o.resolveExpiredTurn(ctx, gt, next, stalled)
	}
}

// resolveExpiredTurn re-runs the timeout policy when the turn lands on a
// clock that already expired: no tick loop exists there to fire another
// timeout, so the handoff itself drives the resolution. When no progress is
// possible (the pass bounced straight back to the expired player, or both
// clocks are down) the action is forced to forfeit.
func (o *Orchestrator) resolveExpiredTurn(ctx context.Context, gt *gameTimers, userID uuid.UUID, stalled bool) {
	if !gt.cfg.AutoFlagOnTimeout || o.resolver == nil {
		return
	}
	cfg := gt.cfg
	if stalled {
		cfg.TimeoutAction = timer.ActionForfeit
	}
	log.Info().
		Str("game_id", gt.gameID.String()).
		Str("user_id", userID.String()).
		Str("action", string(cfg.TimeoutAction)).
		Bool("stalled", stalled).
		Msg("turn handed to expired clock; re-running timeout policy")
	if err := o.resolver.Resolve(ctx, gt.gameID, userID, cfg); err != nil {
		log.Error().
			Err(err).
			Str("game_id", gt.gameID.String()).
			Str("user_id", userID.String()).
			Msg("timeout policy resolution failed")
	}
}

// HandleDisconnect pauses the player's clock when the game is configured to
// pause on disconnect. Otherwise the clock keeps running.
func (o *Orchestrator) HandleDisconnect(ctx context.Context, gameID, userID uuid.UUID) {
	gt := o.lookup(gameID)
	if gt == nil || !gt.cfg.PauseOnDisconnect {
		return
	}
	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Msg("pausing clock on disconnect")
	o.PausePlayerTimer(ctx, gameID, userID)
}

// HandleReconnect resumes a clock paused by a disconnect. The resume is
// budget-checked, so an over-budget pause converts into a timeout here —
// this lazy check is the only place the pause budget is enforced.
func (o *Orchestrator) HandleReconnect(ctx context.Context, gameID, userID uuid.UUID) {
	gt := o.lookup(gameID)
	if gt == nil || !gt.cfg.PauseOnDisconnect {
		return
	}
	o.ResumePlayerTimer(ctx, gameID, userID)
}

// DestroyGameTimers stops and releases every clock for the game along with
// any scheduled tick work. Calling it twice is a safe no-op.
func (o *Orchestrator) DestroyGameTimers(ctx context.Context, gameID uuid.UUID) {
	o.mu.Lock()
	gt, ok := o.games[gameID]
	if ok {
		delete(o.games, gameID)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	gt.mu.Lock()
	gt.destroyed = true
	for _, c := range gt.clocks {
		c.Destroy()
	}
	gt.mu.Unlock()

	if err := o.store.DeleteSnapshot(ctx, gameID); err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to delete timer snapshot")
	}
	log.Info().Str("game_id", gameID.String()).Msg("game timers destroyed")
}

// FullState assembles the authoritative GameState snapshot for a game.
func (o *Orchestrator) FullState(gameID uuid.UUID) (*timer.GameState, bool) {
	gt := o.lookup(gameID)
	if gt == nil {
		return nil, false
	}
	gt.mu.Lock()
	defer gt.mu.Unlock()
	return gt.stateLocked(o.clk.Now()), true
}

// RawRemaining reports the player's live remaining time before any latency
// compensation.
func (o *Orchestrator) RawRemaining(gameID, userID uuid.UUID) (time.Duration, bool) {
	gt := o.lookup(gameID)
	if gt == nil {
		return 0, false
	}
	gt.mu.Lock()
	defer gt.mu.Unlock()
	c, ok := gt.clocks[userID]
	if !ok {
		return 0, false
	}
	return c.Remaining(), true
}

func (gt *gameTimers) stateLocked(now time.Time) *timer.GameState {
	state := &timer.GameState{
		GameID:        gt.gameID.String(),
		Config:        gt.cfg,
		PlayerTimers:  make(map[string]timer.PlayerState, len(gt.clocks)),
		GameStartTime: gt.gameStart,
		TotalGameTime: timer.Seconds(now.Sub(gt.gameStart)),
	}
	for id, c := range gt.clocks {
		snap := c.Snapshot()
		state.PlayerTimers[id.String()] = snap
		if snap.IsPaused {
			state.IsGamePaused = true
		}
	}
	return state
}

// handleTick refreshes persisted state (throttled) and emits the
// latency-uncompensated tick; per-user compensation happens at the gateway
// edge where the receiving user is known.
func (o *Orchestrator) handleTick(gameID, userID uuid.UUID, remaining time.Duration) {
	gt := o.lookup(gameID)
	if gt == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), fanoutTimeout)
	defer cancel()

	o.publish(ctx, gameID, events.EventTypeTimerTick, events.TimerTickPayload{
		UserID:        userID.String(),
		RemainingTime: timer.Seconds(remaining),
		Timestamp:     o.clk.Now(),
	})
	o.persist(ctx, gt, false)
}

func (o *Orchestrator) handleWarning(gameID, userID uuid.UUID, kind timer.WarningKind, remaining time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), fanoutTimeout)
	defer cancel()

	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Str("warning", string(kind)).
		Dur("remaining", remaining).
		Msg("time warning")
	o.publish(ctx, gameID, events.EventTypeTimerWarning, events.TimerWarningPayload{
		UserID:        userID.String(),
		WarningType:   kind,
		RemainingTime: timer.Seconds(remaining),
		Timestamp:     o.clk.Now(),
	})
}

// handleExpired reacts to a clock's own timeout emission.
func (o *Orchestrator) handleExpired(gameID, userID uuid.UUID) {
	gt := o.lookup(gameID)
	if gt == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), fanoutTimeout)
	defer cancel()
	o.finishExpiry(ctx, gt, userID)
}

// finishExpiry persists the expired state, notifies observers, and, when the
// game is configured to auto-flag, hands the game to the policy resolver.
// Without auto-flag the continuation is an external decision.
func (o *Orchestrator) finishExpiry(ctx context.Context, gt *gameTimers, userID uuid.UUID) {
	o.persist(ctx, gt, true)
	o.publish(ctx, gt.gameID, events.EventTypeTimerExpired, events.TimerExpiredPayload{
		UserID:    userID.String(),
		Timestamp: o.clk.Now(),
	})

	if !gt.cfg.AutoFlagOnTimeout {
		log.Info().
			Str("game_id", gt.gameID.String()).
			Str("user_id", userID.String()).
			Msg("clock expired; auto-flag disabled, awaiting external decision")
		return
	}
	if o.resolver == nil {
		log.Error().Str("game_id", gt.gameID.String()).Msg("clock expired but no policy resolver bound")
		return
	}
	if err := o.resolver.Resolve(ctx, gt.gameID, userID, gt.cfg); err != nil {
		log.Error().
			Err(err).
			Str("game_id", gt.gameID.String()).
			Str("user_id", userID.String()).
			Msg("timeout policy resolution failed")
	}
}

func (o *Orchestrator) publish(ctx context.Context, gameID uuid.UUID, eventType events.EventType, payload interface{}) {
	if err := o.publisher.Publish(ctx, gameID, eventType, payload); err != nil {
		log.Error().
			Err(err).
			Str("game_id", gameID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to publish timer event")
	}
}

// persist writes the current snapshot. Transitions force a write; ticks are
// throttled to snapshotInterval.
func (o *Orchestrator) persist(ctx context.Context, gt *gameTimers, force bool) {
	now := o.clk.Now()

	gt.mu.Lock()
	if gt.destroyed {
		gt.mu.Unlock()
		return
	}
	if !force && now.Sub(gt.lastPersist) < snapshotInterval {
		gt.mu.Unlock()
		return
	}
	gt.lastPersist = now
	state := gt.stateLocked(now)
	gt.mu.Unlock()

	if err := o.store.SaveSnapshot(ctx, gt.gameID, state); err != nil {
		log.Error().Err(err).Str("game_id", gt.gameID.String()).Msg("failed to persist timer snapshot")
	}
}
