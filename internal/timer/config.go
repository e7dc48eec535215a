package timer

import (
	"errors"
	"fmt"
	"time"
)

// Type is the clock discipline a game is played under.
type Type string

const (
	TypeFixed          Type = "fixed"
	TypeIncrement      Type = "increment"
	TypeDelay          Type = "delay"
	TypeCorrespondence Type = "correspondence"
	TypeUnlimited      Type = "unlimited"
)

// TimeoutAction is what happens to the game when a player's clock expires.
type TimeoutAction string

const (
	ActionForfeit  TimeoutAction = "forfeit"
	ActionAutoPass TimeoutAction = "auto_pass"
	ActionAutoMove TimeoutAction = "auto_move"
)

// AutoMoveStrategy selects the placement used when TimeoutAction is auto_move.
type AutoMoveStrategy string

const (
	StrategyRandom     AutoMoveStrategy = "random"
	StrategyBestCorner AutoMoveStrategy = "best_corner"
	StrategyBestEdge   AutoMoveStrategy = "best_edge"
)

// WarningKind identifies a remaining-time warning threshold.
type WarningKind string

const (
	WarningLow      WarningKind = "low"
	WarningCritical WarningKind = "critical"
)

// Config is the immutable per-game timer configuration. All time fields are
// in seconds.
type Config struct {
	Type                Type             `json:"type" yaml:"type"`
	InitialTime         int              `json:"initialTime" yaml:"initial_time"`
	Increment           int              `json:"increment" yaml:"increment"`
	Delay               int              `json:"delay" yaml:"delay"`
	MaxTime             int              `json:"maxTime" yaml:"max_time"`
	LowTimeWarning      int              `json:"lowTimeWarning" yaml:"low_time_warning"`
	CriticalTimeWarning int              `json:"criticalTimeWarning" yaml:"critical_time_warning"`
	AutoFlagOnTimeout   bool             `json:"autoFlagOnTimeout" yaml:"auto_flag_on_timeout"`
	PauseOnDisconnect   bool             `json:"pauseOnDisconnect" yaml:"pause_on_disconnect"`
	// MaxPauseTime caps cumulative pause time across episodes; 0 disables
	// the cap (unlimited pausing).
	MaxPauseTime     int              `json:"maxPauseTime" yaml:"max_pause_time"`
	TimeoutAction    TimeoutAction    `json:"timeoutAction" yaml:"timeout_action"`
	AutoMoveStrategy AutoMoveStrategy `json:"autoMoveStrategy,omitempty" yaml:"auto_move_strategy"`
}

// Validate checks every config invariant and returns all violations joined
// into a single error. A nil return means the config is usable.
func (c Config) Validate() error {
	var errs []error

	switch c.Type {
	case TypeFixed, TypeIncrement, TypeDelay, TypeCorrespondence, TypeUnlimited:
	default:
		errs = append(errs, fmt.Errorf("unknown timer type %q", c.Type))
	}
	if c.InitialTime < 0 {
		errs = append(errs, fmt.Errorf("initialTime must be >= 0, got %d", c.InitialTime))
	}
	if c.Increment < 0 {
		errs = append(errs, fmt.Errorf("increment must be >= 0, got %d", c.Increment))
	}
	if c.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must be >= 0, got %d", c.Delay))
	}
	if c.MaxTime < c.InitialTime {
		errs = append(errs, fmt.Errorf("maxTime %d must be >= initialTime %d", c.MaxTime, c.InitialTime))
	}
	if c.CriticalTimeWarning >= c.LowTimeWarning {
		errs = append(errs, fmt.Errorf("criticalTimeWarning %d must be < lowTimeWarning %d", c.CriticalTimeWarning, c.LowTimeWarning))
	}
	if c.MaxPauseTime < 0 {
		errs = append(errs, fmt.Errorf("maxPauseTime must be >= 0, got %d", c.MaxPauseTime))
	}

	switch c.TimeoutAction {
	case ActionForfeit, ActionAutoPass:
	case ActionAutoMove:
		switch c.AutoMoveStrategy {
		case StrategyRandom, StrategyBestCorner, StrategyBestEdge:
		default:
			errs = append(errs, fmt.Errorf("auto_move requires a valid autoMoveStrategy, got %q", c.AutoMoveStrategy))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown timeoutAction %q", c.TimeoutAction))
	}

	return errors.Join(errs...)
}

// Initial returns the starting time as a duration.
func (c Config) Initial() time.Duration {
	return time.Duration(c.InitialTime) * time.Second
}

// IncrementDuration returns the per-move increment as a duration.
func (c Config) IncrementDuration() time.Duration {
	return time.Duration(c.Increment) * time.Second
}

// DelayDuration returns the per-move grace period as a duration.
func (c Config) DelayDuration() time.Duration {
	return time.Duration(c.Delay) * time.Second
}

// Max returns the remaining-time cap as a duration.
func (c Config) Max() time.Duration {
	return time.Duration(c.MaxTime) * time.Second
}

// MaxPause returns the cumulative pause budget as a duration.
func (c Config) MaxPause() time.Duration {
	return time.Duration(c.MaxPauseTime) * time.Second
}

// LowThreshold returns the low-warning boundary as a duration.
func (c Config) LowThreshold() time.Duration {
	return time.Duration(c.LowTimeWarning) * time.Second
}

// CriticalThreshold returns the critical-warning boundary as a duration.
func (c Config) CriticalThreshold() time.Duration {
	return time.Duration(c.CriticalTimeWarning) * time.Second
}
