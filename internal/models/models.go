package models

import (
	"database/sql"
	"time"
)

type Room struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	JoinCode       string       `json:"join_code"`
	HostID         string       `json:"host_id"`
	MaxPlayers     int          `json:"max_players"`
	CurrentPlayers int          `json:"current_players"`
	Difficulty     string       `json:"difficulty"`
	Topic          string       `json:"topic"`
	IsPrivate      bool         `json:"is_private"`
	TimePerQuestion int         `json:"time_per_question"`
	TotalQuestions int          `json:"total_questions"`
	Status         string       `json:"status"` // "waiting", "active", "completed", "cancelled"
	StudyNotes     string       `json:"study_notes,omitempty"` // JSON payload shared to all members
	CreatedAt      time.Time    `json:"created_at"`
	StartedAt      sql.NullTime `json:"started_at"`
	EndedAt        sql.NullTime `json:"ended_at"`
}

type Member struct {
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Ready       bool      `json:"ready"`
	JoinedAt    time.Time `json:"joined_at"`
}

type QuizSession struct {
	ID              string       `json:"id"`
	RoomID          string       `json:"room_id"`
	TotalQuestions  int          `json:"total_questions"`
	CurrentQuestion int          `json:"current_question"`
	TimePerQuestion int          `json:"time_per_question"`
	Status          string       `json:"status"` // "pending", "generating", "active", "complete"
	StartedAt       time.Time    `json:"started_at"`
	EndedAt         sql.NullTime `json:"ended_at"`
}

// PlayerProgress is a client-held projection, not independently persisted.
// Seeded at session start and updated via progress events.
type PlayerProgress struct {
	UserID          string `json:"user_id"`
	CurrentQuestion int    `json:"current_question"`
	Score           int    `json:"score"`
	Streak          int    `json:"streak"`
	Active          bool   `json:"active"`
}

// StudySession is room-shared, host-controlled state for the pre-quiz
// review window. Only start/stop/edit transitions are shared; each client
// runs its own countdown.
type StudySession struct {
	RoomID           string `json:"room_id"`
	Active           bool   `json:"active"`
	DurationMinutes  int    `json:"duration_minutes"`
	RemainingSeconds int    `json:"remaining_seconds"`
	MaterialsRef     string `json:"materials_ref,omitempty"`
}

// CheatEvent is append-only; one row per detected violation episode.
type CheatEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Violation  string    `json:"violation"` // "focus_loss"
	DurationMs int64     `json:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SessionEvent is a generic broadcast row carrying an arbitrary typed
// payload. Used today for cheat alerts; extensible to other notices.
type SessionEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	Payload   string    `json:"payload"` // JSON
	CreatedAt time.Time `json:"created_at"`
}

type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	OrderIndex   int      `json:"order_index"`
}
