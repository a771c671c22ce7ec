package repository

import (
	"context"
	"database/sql"
	"time"

	"quizroom/internal/models"

	"github.com/google/uuid"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// InsertCheatEvent appends a violation record. Rows are never mutated.
func (r *EventRepository) InsertCheatEvent(ctx context.Context, event *models.CheatEvent) error {
	event.ID = uuid.New().String()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	query := `
		INSERT INTO cheat_events (id, session_id, user_id, violation, duration_ms, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.UserID,
		event.Violation,
		event.DurationMs,
		event.OccurredAt,
	)
	return err
}

func (r *EventRepository) GetCheatEventsBySession(ctx context.Context, sessionID string) ([]*models.CheatEvent, error) {
	query := `
		SELECT id, session_id, user_id, violation, duration_ms, occurred_at
		FROM cheat_events
		WHERE session_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.CheatEvent
	for rows.Next() {
		event := &models.CheatEvent{}
		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.UserID,
			&event.Violation,
			&event.DurationMs,
			&event.OccurredAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *EventRepository) InsertSessionEvent(ctx context.Context, event *models.SessionEvent) error {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now()

	query := `
		INSERT INTO session_events (id, session_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.EventType,
		event.Payload,
		event.CreatedAt,
	)
	return err
}

func (r *EventRepository) GetSessionEvents(ctx context.Context, sessionID string) ([]*models.SessionEvent, error) {
	query := `
		SELECT id, session_id, event_type, payload, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.SessionEvent
	for rows.Next() {
		event := &models.SessionEvent{}
		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.EventType,
			&event.Payload,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
