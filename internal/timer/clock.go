package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ClockState is the lifecycle state of a player clock.
type ClockState string

const (
	StateIdle    ClockState = "idle"
	StateRunning ClockState = "running"
	StatePaused  ClockState = "paused"
	StateStopped ClockState = "stopped"
	StateExpired ClockState = "expired"
)

// TickResolution is how often a running clock recomputes remaining time.
// Coarser values degrade warning/timeout precision but save overhead.
const TickResolution = 100 * time.Millisecond

// Listener receives clock lifecycle events. Calls are made outside the
// clock's internal lock, from the clock's tick goroutine.
type Listener interface {
	ClockTicked(userID uuid.UUID, remaining time.Duration)
	ClockWarning(userID uuid.UUID, kind WarningKind, remaining time.Duration)
	ClockExpired(userID uuid.UUID)
}

// Clock is one player's countdown state machine. All time reads go through
// the injected clockwork.Clock so tests can drive it deterministically.
type Clock struct {
	userID   uuid.UUID
	cfg      Config
	clk      clockwork.Clock
	listener Listener

	mu           sync.Mutex
	state        ClockState
	remaining    time.Duration
	episodeStart time.Time     // when the current running episode began
	episodeBase  time.Duration // remaining time at episode start
	lastUpdate   time.Time
	pausedAt     time.Time
	totalPaused  time.Duration
	totalMove    time.Duration
	moveCount    int
	warnings     map[WarningKind]bool
	cancelTick   chan struct{}
	destroyed    bool
}

// NewClock validates cfg and constructs an idle clock for one player. This
// is the only place the config is checked.
func NewClock(userID uuid.UUID, cfg Config, clk clockwork.Clock, listener Listener) (*Clock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timer config: %w", err)
	}
	return &Clock{
		userID:    userID,
		cfg:       cfg,
		clk:       clk,
		listener:  listener,
		state:     StateIdle,
		remaining: cfg.Initial(),
		warnings:  make(map[WarningKind]bool),
	}, nil
}

// UserID returns the player this clock belongs to.
func (c *Clock) UserID() uuid.UUID {
	return c.userID
}

// Config returns the immutable config the clock was built with.
func (c *Clock) Config() Config {
	return c.cfg
}

// Start begins the countdown. It is a no-op if the clock is already running,
// expired, destroyed, or the discipline is unlimited. Starting clears the
// warning set.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed || c.state == StateRunning || c.state == StateExpired || c.cfg.Type == TypeUnlimited {
		return
	}
	now := c.clk.Now()
	c.warnings = make(map[WarningKind]bool)
	c.state = StateRunning
	c.episodeStart = now
	c.episodeBase = c.remaining
	c.lastUpdate = now
	c.startTickLoopLocked()
}

// Stop freezes remaining time and moves to Stopped. No-op unless running.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}
	c.freezeLocked()
	c.state = StateStopped
}

// Pause freezes remaining time and records the pause start. No-op unless
// running; a second Pause has no further effect.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}
	c.freezeLocked()
	c.state = StatePaused
	c.pausedAt = c.clk.Now()
}

// Resume restarts the countdown after a pause, closing the pause episode and
// accumulating its length into total paused time. The warning set is
// preserved across pause/resume. No-op unless paused.
//
// Resume does not check the pause budget; the orchestrator compares
// PendingPausedTotal against the config before deciding to resume or expire.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed || c.state != StatePaused {
		return
	}
	now := c.clk.Now()
	c.totalPaused += now.Sub(c.pausedAt)
	c.pausedAt = time.Time{}
	c.state = StateRunning
	c.episodeStart = now
	c.episodeBase = c.remaining
	c.lastUpdate = now
	c.startTickLoopLocked()
}

// PendingPausedTotal returns what total paused time would be if the open
// pause episode were closed right now. Equal to the accumulated total when
// the clock is not paused.
func (c *Clock) PendingPausedTotal() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.totalPaused
	if c.state == StatePaused {
		total += c.clk.Now().Sub(c.pausedAt)
	}
	return total
}

// AddIncrement credits post-move time according to the discipline: the
// configured increment for increment clocks, the delay amount for delay
// clocks (Fischer delay modeled as equivalent post-move credit), nothing for
// other types. The move count advances in every case. It returns the amount
// credited (zero on an expired clock) and the new remaining time.
func (c *Clock) AddIncrement() (applied time.Duration, remaining time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.moveCount++
	now := c.clk.Now()
	if c.state == StateRunning {
		// Settle the open episode first so the credit lands on the live
		// value; elapsed time stays spent.
		c.remaining = c.liveRemainingLocked(now)
		c.totalMove += now.Sub(c.episodeStart)
		c.episodeStart = now
		c.lastUpdate = now
	}

	switch c.cfg.Type {
	case TypeIncrement:
		applied = c.cfg.IncrementDuration()
	case TypeDelay:
		applied = c.cfg.DelayDuration()
	}
	if c.state == StateExpired {
		applied = 0
	}
	if applied > 0 {
		c.remaining += applied
		if max := c.cfg.Max(); c.remaining > max {
			c.remaining = max
		}
	}
	c.episodeBase = c.remaining
	return applied, c.remaining
}

// Expire forces the clock into the terminal Expired state with zero time
// remaining, regardless of current state. It reports whether a transition
// happened, so callers can resolve the timeout exactly once. No listener
// event is emitted; the caller owns the fan-out.
func (c *Clock) Expire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateExpired {
		return false
	}
	if c.state == StateRunning {
		c.freezeLocked()
	}
	c.remaining = 0
	c.state = StateExpired
	c.lastUpdate = c.clk.Now()
	return true
}

// Reset returns the clock to Idle. When newTime is nil the configured
// initial time is restored. All counters and warnings are cleared.
func (c *Clock) Reset(newTime *time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTickLoopLocked()
	if newTime != nil {
		c.remaining = *newTime
	} else {
		c.remaining = c.cfg.Initial()
	}
	c.state = StateIdle
	c.pausedAt = time.Time{}
	c.totalPaused = 0
	c.totalMove = 0
	c.moveCount = 0
	c.warnings = make(map[WarningKind]bool)
	c.lastUpdate = c.clk.Now()
}

// Destroy cancels any scheduled tick work and permanently disables the
// clock. Further Start/Resume calls are ignored. Safe to call twice.
func (c *Clock) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTickLoopLocked()
	c.destroyed = true
}

// State returns the current lifecycle state.
func (c *Clock) State() ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsActive reports whether the clock is currently counting down.
func (c *Clock) IsActive() bool {
	return c.State() == StateRunning
}

// Remaining returns the live remaining time, recomputed from the episode
// start when the clock is running. Never negative.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveRemainingLocked(c.clk.Now())
}

// MoveCount returns the number of completed moves since the last reset.
func (c *Clock) MoveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveCount
}

// Snapshot captures the player-state view of this clock.
func (c *Clock) Snapshot() PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := PlayerState{
		UserID:          c.userID.String(),
		RemainingTime:   Seconds(c.liveRemainingLocked(c.clk.Now())),
		IsActive:        c.state == StateRunning,
		IsPaused:        c.state == StatePaused,
		TotalPausedTime: Seconds(c.totalPaused),
		LastUpdateTime:  c.lastUpdate,
		TotalMoveTime:   Seconds(c.totalMove),
		MoveCount:       c.moveCount,
		TimeWarnings:    []WarningKind{},
	}
	if c.state == StatePaused {
		t := c.pausedAt
		s.PausedAt = &t
	}
	for _, kind := range []WarningKind{WarningLow, WarningCritical} {
		if c.warnings[kind] {
			s.TimeWarnings = append(s.TimeWarnings, kind)
		}
	}
	return s
}

// effectiveElapsed applies the discipline's elapsed-time rule: for delay
// clocks the first Delay seconds of an episode are free.
func (c *Clock) effectiveElapsed(now time.Time) time.Duration {
	elapsed := now.Sub(c.episodeStart)
	if c.cfg.Type == TypeDelay {
		elapsed -= c.cfg.DelayDuration()
		if elapsed < 0 {
			elapsed = 0
		}
	}
	return elapsed
}

func (c *Clock) liveRemainingLocked(now time.Time) time.Duration {
	if c.state != StateRunning {
		return c.remaining
	}
	remaining := c.episodeBase - c.effectiveElapsed(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// freezeLocked settles remaining time from the running episode and
// accumulates the episode's wall time into total move time.
func (c *Clock) freezeLocked() {
	now := c.clk.Now()
	c.remaining = c.liveRemainingLocked(now)
	c.totalMove += now.Sub(c.episodeStart)
	c.lastUpdate = now
	c.stopTickLoopLocked()
}

// startTickLoopLocked arms the ticker before returning, so a Start or
// Resume caller can rely on the tick source being registered.
func (c *Clock) startTickLoopLocked() {
	cancel := make(chan struct{})
	c.cancelTick = cancel
	ticker := c.clk.NewTicker(TickResolution)
	go c.tickLoop(ticker, cancel)
}

func (c *Clock) stopTickLoopLocked() {
	if c.cancelTick != nil {
		close(c.cancelTick)
		c.cancelTick = nil
	}
}

func (c *Clock) tickLoop(ticker clockwork.Ticker, cancel chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.Chan():
			if !c.tick() {
				return
			}
		}
	}
}

// tick recomputes remaining time and emits warning/timeout/tick events. It
// returns false once the clock has left the running state, which ends the
// loop. Listener calls happen after the lock is released so handlers may
// call back into the clock.
func (c *Clock) tick() bool {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return false
	}

	now := c.clk.Now()
	remaining := c.liveRemainingLocked(now)
	c.lastUpdate = now

	var fired []WarningKind
	expired := remaining <= 0
	if expired {
		// Terminal: the tick loop is cancelled in the same step, so a
		// second timeout emission is impossible.
		c.remaining = 0
		c.totalMove += now.Sub(c.episodeStart)
		c.state = StateExpired
		c.stopTickLoopLocked()
	} else {
		// Low is evaluated before critical; both may fire in one tick.
		for _, w := range []struct {
			kind      WarningKind
			threshold time.Duration
		}{
			{WarningLow, c.cfg.LowThreshold()},
			{WarningCritical, c.cfg.CriticalThreshold()},
		} {
			if remaining <= w.threshold && !c.warnings[w.kind] {
				c.warnings[w.kind] = true
				fired = append(fired, w.kind)
			}
		}
	}
	listener := c.listener
	userID := c.userID
	c.mu.Unlock()

	if listener == nil {
		return !expired
	}
	if expired {
		log.Debug().Str("user_id", userID.String()).Msg("clock expired")
		listener.ClockExpired(userID)
		return false
	}
	for _, kind := range fired {
		listener.ClockWarning(userID, kind, remaining)
	}
	listener.ClockTicked(userID, remaining)
	return true
}
