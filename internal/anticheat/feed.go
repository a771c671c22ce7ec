package anticheat

import (
	"encoding/json"
	"sync"
)

const defaultFeedCapacity = 32

// Feed is one participant's local alert queue. It parses incoming session
// event payloads defensively, suppresses alerts about the participant's own
// violations, de-duplicates by event id, and supports per-alert dismissal
// (dismissal is purely local state, never shared).
type Feed struct {
	mu       sync.Mutex
	selfID   string
	capacity int
	alerts   []Alert
	seen     map[string]bool
}

func NewFeed(selfID string) *Feed {
	return &Feed{
		selfID:   selfID,
		capacity: defaultFeedCapacity,
		seen:     make(map[string]bool),
	}
}

// Offer parses an arbitrary payload and enqueues it if it is a valid alert for
// someone else. The payload may arrive as a JSON object, a JSON-encoded
// string wrapping an object, or a non-JSON diagnostic string; anything that
// does not decode to an alert is discarded. Returns whether an alert was
// enqueued.
func (f *Feed) Offer(payload []byte) bool {
	alert, ok := decodeAlert(payload)
	if !ok {
		return false
	}
	if alert.UserID == "" || alert.UserID == f.selfID {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if alert.EventID != "" && f.seen[alert.EventID] {
		return false
	}
	if alert.EventID != "" {
		f.seen[alert.EventID] = true
	}

	f.alerts = append(f.alerts, alert)
	if len(f.alerts) > f.capacity {
		f.alerts = f.alerts[len(f.alerts)-f.capacity:]
	}
	return true
}

func decodeAlert(payload []byte) (Alert, bool) {
	var alert Alert
	if err := json.Unmarshal(payload, &alert); err == nil && alert.UserID != "" {
		return alert, true
	}

	// Some producers double-encode the record as a JSON string.
	var wrapped string
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return Alert{}, false
	}
	if err := json.Unmarshal([]byte(wrapped), &alert); err != nil || alert.UserID == "" {
		return Alert{}, false
	}
	return alert, true
}

// Alerts returns the currently visible alerts, oldest first.
func (f *Feed) Alerts() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Alert, len(f.alerts))
	copy(out, f.alerts)
	return out
}

// Dismiss removes one alert from the local view.
func (f *Feed) Dismiss(eventID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, a := range f.alerts {
		if a.EventID == eventID {
			f.alerts = append(f.alerts[:i], f.alerts[i+1:]...)
			return
		}
	}
}
