// Package study implements the host-controlled pre-quiz review window. The
// countdown itself is a pure state machine; each client drives its own copy
// from a local tick source, and only start/stop/edit transitions are shared.
package study

type Countdown struct {
	Active           bool
	DurationMinutes  int
	RemainingSeconds int
}

func Start(durationMinutes int) Countdown {
	return Countdown{
		Active:           true,
		DurationMinutes:  durationMinutes,
		RemainingSeconds: durationMinutes * 60,
	}
}

// Tick advances one second. Reaching zero deactivates the countdown and
// reports expiry exactly once.
func (c Countdown) Tick() (Countdown, bool) {
	if !c.Active || c.RemainingSeconds <= 0 {
		return c, false
	}
	c.RemainingSeconds--
	if c.RemainingSeconds == 0 {
		c.Active = false
		return c, true
	}
	return c, false
}

// Reseed re-bases the remaining time to a new duration. Editing during an
// active countdown takes effect immediately.
func (c Countdown) Reseed(durationMinutes int) Countdown {
	c.DurationMinutes = durationMinutes
	c.RemainingSeconds = durationMinutes * 60
	return c
}

func (c Countdown) Stopped() Countdown {
	c.Active = false
	return c
}
