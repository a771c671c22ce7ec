package study

import (
	"sync"
	"time"
)

// Runner drives one active countdown from an injected tick source. The
// scheduling primitive (a real time.Ticker in production) stays outside so
// the transitions remain pure and testable.
type Runner struct {
	mu       sync.Mutex
	state    Countdown
	onTick   func(remainingSeconds int)
	onExpire func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewRunner(durationMinutes int, onTick func(remainingSeconds int), onExpire func()) *Runner {
	return &Runner{
		state:    Start(durationMinutes),
		onTick:   onTick,
		onExpire: onExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run consumes ticks until expiry or Stop. Callbacks run on this goroutine.
func (r *Runner) Run(ticks <-chan time.Time) {
	defer close(r.done)

	for {
		select {
		case <-r.stop:
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			r.mu.Lock()
			next, expired := r.state.Tick()
			r.state = next
			remaining := next.RemainingSeconds
			r.mu.Unlock()

			if r.onTick != nil {
				r.onTick(remaining)
			}
			if expired {
				if r.onExpire != nil {
					r.onExpire()
				}
				return
			}
		}
	}
}

// Reseed re-bases the running countdown to a new duration.
func (r *Runner) Reseed(durationMinutes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = r.state.Reseed(durationMinutes)
}

func (r *Runner) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.RemainingSeconds
}

// Stop halts the countdown at the next tick boundary. Safe to call more
// than once and after expiry.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

// Done is closed once the run loop has exited.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
