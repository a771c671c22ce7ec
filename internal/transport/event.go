package transport

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const (
	TableRooms         = "rooms"
	TableRoomMembers   = "room_members"
	TableQuizSessions  = "quiz_sessions"
	TableSessionEvents = "session_events"
	TableStudySessions = "study_sessions"
)

// Event is the tagged variant delivered on a channel. It is decoded once at
// the transport boundary; consumers switch on Table/Type instead of
// duck-typing row shapes. New and Old carry the changed row's images and are
// advisory: delivery is at-least-once and ordered only within a single row's
// stream, so consumers refetch or merge rather than trusting an event as the
// sole source of truth.
type Event struct {
	Table string          `json:"table"`
	Type  EventType       `json:"type"`
	Key   string          `json:"key,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Filter selects a subset of a channel's events. Zero values match anything:
// an empty Types slice matches all event types, an empty Key matches any row.
type Filter struct {
	Table string
	Types []EventType
	Key   string
}

func (f Filter) Matches(ev Event) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if f.Key != "" && f.Key != ev.Key {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == ev.Type {
			return true
		}
	}
	return false
}

func matchesAny(filters []Filter, ev Event) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

// DecodeEvent parses a wire payload. Payloads can be malformed in rare error
// paths; callers drop the event on error instead of crashing the consumer.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("malformed event payload: %w", err)
	}
	if ev.Table == "" || ev.Type == "" {
		return Event{}, fmt.Errorf("event payload missing table or type")
	}
	return ev, nil
}

func RoomChannel(roomID string) string {
	return "room:" + roomID
}

func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}
