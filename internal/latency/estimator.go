// Package latency maintains rolling round-trip measurements per connected
// user and produces the smoothed one-way estimates used to bias the
// client-visible countdown so it never outlives the server's own expiry
// decision.
package latency

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Quality is a coarse classification of a user's recent latency samples.
type Quality string

const (
	QualityGood    Quality = "good"
	QualityFair    Quality = "fair"
	QualityPoor    Quality = "poor"
	QualityUnknown Quality = "unknown"
)

// Classification boundaries on the smoothed one-way estimate.
const (
	goodThreshold = 100 * time.Millisecond
	fairThreshold = 250 * time.Millisecond
)

// DefaultWindowSize is how many samples are kept per user before the oldest
// is evicted.
const DefaultWindowSize = 10

// Measurement is one latency observation for a user.
type Measurement struct {
	UserID            uuid.UUID     `json:"userId"`
	GameID            uuid.UUID     `json:"gameId"`
	ClientSendTime    time.Time     `json:"clientSendTime"`
	ServerReceiveTime time.Time     `json:"serverReceiveTime"`
	ServerSendTime    time.Time     `json:"serverSendTime"`
	DerivedLatency    time.Duration `json:"derivedLatency"`
	Timestamp         time.Time     `json:"timestamp"`
}

type window struct {
	samples []Measurement // bounded ring, oldest first
}

// Estimator owns the per-user rolling windows. Reads are safe from any
// goroutine; writes for a given user are serialized by the estimator lock.
type Estimator struct {
	clk        clockwork.Clock
	windowSize int

	mu      sync.RWMutex
	windows map[uuid.UUID]*window
}

// NewEstimator creates an estimator with the given window size per user.
// Sizes below 1 fall back to DefaultWindowSize.
func NewEstimator(clk clockwork.Clock, windowSize int) *Estimator {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	return &Estimator{
		clk:        clk,
		windowSize: windowSize,
		windows:    make(map[uuid.UUID]*window),
	}
}

// Record derives a one-way latency estimate from the ping timestamps and
// appends it to the user's window. The simple model is serverReceive minus
// clientSend; when a round-trip duration is known the caller should prefer
// RecordRoundTrip. Malformed timestamps are rejected so the surrounding
// game-state update can proceed with the user simply staying at unknown
// quality.
func (e *Estimator) Record(userID, gameID uuid.UUID, clientSend, serverReceive, serverSend time.Time) (Measurement, error) {
	if clientSend.IsZero() || serverReceive.IsZero() {
		return Measurement{}, fmt.Errorf("latency measurement for %s missing timestamps", userID)
	}
	derived := serverReceive.Sub(clientSend)
	if derived < 0 {
		// Client clock ahead of ours; the one-way estimate is unusable.
		return Measurement{}, fmt.Errorf("latency measurement for %s is negative (%s): client clock skew", userID, derived)
	}

	m := Measurement{
		UserID:            userID,
		GameID:            gameID,
		ClientSendTime:    clientSend,
		ServerReceiveTime: serverReceive,
		ServerSendTime:    serverSend,
		DerivedLatency:    derived,
		Timestamp:         e.clk.Now(),
	}
	e.append(userID, m)
	return m, nil
}

// RecordRoundTrip refines the estimate with a half-split of an observed
// round trip, which is immune to client clock skew.
func (e *Estimator) RecordRoundTrip(userID, gameID uuid.UUID, rtt time.Duration) (Measurement, error) {
	if rtt < 0 {
		return Measurement{}, fmt.Errorf("negative round trip %s for %s", rtt, userID)
	}
	now := e.clk.Now()
	m := Measurement{
		UserID:         userID,
		GameID:         gameID,
		DerivedLatency: rtt / 2,
		Timestamp:      now,
	}
	e.append(userID, m)
	return m, nil
}

func (e *Estimator) append(userID uuid.UUID, m Measurement) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := e.windows[userID]
	if w == nil {
		w = &window{}
		e.windows[userID] = w
	}
	w.samples = append(w.samples, m)
	if len(w.samples) > e.windowSize {
		w.samples = w.samples[len(w.samples)-e.windowSize:]
	}
}

// OneWay returns the smoothed one-way latency estimate for the user and
// whether any samples exist.
func (e *Estimator) OneWay(userID uuid.UUID) (time.Duration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	w := e.windows[userID]
	if w == nil || len(w.samples) == 0 {
		return 0, false
	}
	var sum time.Duration
	for _, m := range w.samples {
		sum += m.DerivedLatency
	}
	return sum / time.Duration(len(w.samples)), true
}

// NetworkQuality classifies the user's recent samples. Users with no samples
// are unknown. High jitter relative to the average degrades the class by one
// step.
func (e *Estimator) NetworkQuality(userID uuid.UUID) Quality {
	e.mu.RLock()
	w := e.windows[userID]
	if w == nil || len(w.samples) == 0 {
		e.mu.RUnlock()
		return QualityUnknown
	}
	var sum, min, max time.Duration
	min = w.samples[0].DerivedLatency
	for _, m := range w.samples {
		sum += m.DerivedLatency
		if m.DerivedLatency < min {
			min = m.DerivedLatency
		}
		if m.DerivedLatency > max {
			max = m.DerivedLatency
		}
	}
	n := len(w.samples)
	e.mu.RUnlock()

	avg := sum / time.Duration(n)
	jitter := max - min

	q := QualityPoor
	switch {
	case avg < goodThreshold:
		q = QualityGood
	case avg < fairThreshold:
		q = QualityFair
	}
	if jitter > fairThreshold {
		q = degrade(q)
	}
	return q
}

func degrade(q Quality) Quality {
	switch q {
	case QualityGood:
		return QualityFair
	case QualityFair:
		return QualityPoor
	default:
		return QualityPoor
	}
}

// CompensateRemaining biases a raw remaining-time value for transmission to
// the given user: the one-way estimate is subtracted so the client's locally
// rendered countdown cannot reach zero meaningfully later than the server's
// expiry decision. Users at unknown quality get the raw value unchanged. The
// result never goes below zero.
func (e *Estimator) CompensateRemaining(userID uuid.UUID, raw time.Duration) time.Duration {
	if e.NetworkQuality(userID) == QualityUnknown {
		return raw
	}
	oneWay, ok := e.OneWay(userID)
	if !ok {
		return raw
	}
	compensated := raw - oneWay
	if compensated < 0 {
		compensated = 0
	}
	return compensated
}

// ClearUser discards the user's latency history. Called on disconnect so a
// reconnection starts back at unknown quality instead of stale numbers.
func (e *Estimator) ClearUser(userID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.windows[userID]; ok {
		delete(e.windows, userID)
		log.Debug().Str("user_id", userID.String()).Msg("cleared latency measurements")
	}
}

// SampleCount returns how many measurements are held for the user.
func (e *Estimator) SampleCount(userID uuid.UUID) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if w := e.windows[userID]; w != nil {
		return len(w.samples)
	}
	return 0
}
