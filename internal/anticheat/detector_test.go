package anticheat

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func activeDetector() *Detector {
	d := NewDetector("session-1", "memberB", 2500*time.Millisecond)
	d.SetGameActive(true)
	return d
}

func TestFocusLossBeyondThresholdFiresOnce(t *testing.T) {
	d := activeDetector()

	d.FocusLost(t0)
	ev := d.FocusRegained(t0.Add(3000 * time.Millisecond))
	if ev == nil {
		t.Fatal("3000ms blur against a 2500ms threshold should fire")
	}
	if ev.DurationMs != 3000 {
		t.Fatalf("expected duration 3000ms, got %d", ev.DurationMs)
	}
	if ev.UserID != "memberB" || ev.SessionID != "session-1" {
		t.Fatalf("event misattributed: %+v", ev)
	}

	// The episode is closed; a second regain cannot fire again.
	if ev := d.FocusRegained(t0.Add(4 * time.Second)); ev != nil {
		t.Fatal("closed episode should not fire a second event")
	}
}

func TestFocusLossUnderThresholdIsIgnored(t *testing.T) {
	d := activeDetector()

	d.FocusLost(t0)
	if ev := d.FocusRegained(t0.Add(2 * time.Second)); ev != nil {
		t.Fatalf("2000ms blur should be under threshold, got %+v", ev)
	}
}

func TestDetectorInactiveGame(t *testing.T) {
	d := NewDetector("session-1", "memberB", 2500*time.Millisecond)

	d.FocusLost(t0)
	if ev := d.FocusRegained(t0.Add(10 * time.Second)); ev != nil {
		t.Fatal("focus changes outside an active quiz should be ignored")
	}
}

func TestDeactivatingDiscardsOpenEpisode(t *testing.T) {
	d := activeDetector()

	d.FocusLost(t0)
	d.SetGameActive(false)
	if ev := d.FocusRegained(t0.Add(10 * time.Second)); ev != nil {
		t.Fatal("episode spanning session end should be discarded")
	}
}

func TestAwayFlag(t *testing.T) {
	d := activeDetector()

	d.FocusLost(t0)
	if d.Away(t0.Add(time.Second)) {
		t.Fatal("not away before threshold")
	}
	if !d.Away(t0.Add(3 * time.Second)) {
		t.Fatal("away once past threshold")
	}

	d.FocusRegained(t0.Add(3 * time.Second))
	if d.Away(t0.Add(4 * time.Second)) {
		t.Fatal("away should clear when focus returns")
	}
}

func TestRepeatedFocusLostKeepsOriginalEpisode(t *testing.T) {
	d := activeDetector()

	d.FocusLost(t0)
	d.FocusLost(t0.Add(2 * time.Second))

	ev := d.FocusRegained(t0.Add(3 * time.Second))
	if ev == nil {
		t.Fatal("episode should fire")
	}
	if ev.DurationMs != 3000 {
		t.Fatalf("duration should be measured from the first loss, got %d", ev.DurationMs)
	}
}

func TestFlushOpenEpisode(t *testing.T) {
	d := activeDetector()

	d.FocusLost(t0)
	ev := d.Flush(t0.Add(5 * time.Second))
	if ev == nil {
		t.Fatal("flush past threshold should fire")
	}
	if ev.DurationMs != 5000 {
		t.Fatalf("expected 5000ms, got %d", ev.DurationMs)
	}

	if ev := d.Flush(t0.Add(6 * time.Second)); ev != nil {
		t.Fatal("second flush should be a no-op")
	}
}
