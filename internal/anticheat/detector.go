package anticheat

import (
	"sync"
	"time"

	"quizroom/internal/constants"
	"quizroom/internal/models"
)

const DefaultFocusLossThreshold = 2500 * time.Millisecond

// Detector tracks one participant's window focus during an active quiz. A
// focus-loss episode that lasts beyond the threshold yields exactly one
// CheatEvent, emitted when focus returns (or when the episode is flushed at
// session end) with the full episode duration.
type Detector struct {
	mu        sync.Mutex
	sessionID string
	userID    string
	threshold time.Duration

	gameActive bool
	lostAt     time.Time
	unfocused  bool
}

func NewDetector(sessionID, userID string, threshold time.Duration) *Detector {
	if threshold <= 0 {
		threshold = DefaultFocusLossThreshold
	}
	return &Detector{
		sessionID: sessionID,
		userID:    userID,
		threshold: threshold,
	}
}

// SetGameActive gates detection. Focus changes outside an active quiz are
// ignored, and deactivating mid-episode discards the episode.
func (d *Detector) SetGameActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gameActive = active
	if !active {
		d.unfocused = false
	}
}

func (d *Detector) FocusLost(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.gameActive || d.unfocused {
		return
	}
	d.unfocused = true
	d.lostAt = at
}

// FocusRegained closes the current episode. Returns the violation event when
// the episode exceeded the threshold, nil otherwise.
func (d *Detector) FocusRegained(at time.Time) *models.CheatEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.unfocused {
		return nil
	}
	d.unfocused = false

	elapsed := at.Sub(d.lostAt)
	if elapsed < d.threshold {
		return nil
	}
	return d.event(elapsed, at)
}

// Away reports whether the participant is currently past the threshold in
// an open focus-loss episode.
func (d *Detector) Away(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.unfocused && now.Sub(d.lostAt) >= d.threshold
}

// Flush closes an open episode without a focus-regain signal, e.g. when the
// session ends or the client disconnects while unfocused.
func (d *Detector) Flush(now time.Time) *models.CheatEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.unfocused {
		return nil
	}
	d.unfocused = false

	elapsed := now.Sub(d.lostAt)
	if elapsed < d.threshold {
		return nil
	}
	return d.event(elapsed, now)
}

func (d *Detector) event(elapsed time.Duration, at time.Time) *models.CheatEvent {
	return &models.CheatEvent{
		SessionID:  d.sessionID,
		UserID:     d.userID,
		Violation:  constants.ViolationFocusLoss,
		DurationMs: elapsed.Milliseconds(),
		OccurredAt: at,
	}
}
