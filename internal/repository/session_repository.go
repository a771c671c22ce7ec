package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quizroom/internal/apperr"
	"quizroom/internal/constants"
	"quizroom/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession inserts a new quiz session. A partial unique index allows at
// most one non-complete session per room; losing a concurrent start race
// surfaces as ErrSessionAlreadyActive.
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.QuizSession) error {
	session.ID = uuid.New().String()
	session.StartedAt = time.Now()

	query := `
		INSERT INTO quiz_sessions (id, room_id, total_questions, current_question, time_per_question, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.RoomID,
		session.TotalQuestions,
		session.CurrentQuestion,
		session.TimePerQuestion,
		session.Status,
		session.StartedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return apperr.ErrSessionAlreadyActive
		}
		return err
	}
	return nil
}

func (r *SessionRepository) GetSessionByID(ctx context.Context, sessionID string) (*models.QuizSession, error) {
	return r.getSession(ctx, `WHERE id = $1`, sessionID)
}

// GetActiveSessionByRoom returns the room's current non-complete session, or
// nil when the room has none.
func (r *SessionRepository) GetActiveSessionByRoom(ctx context.Context, roomID string) (*models.QuizSession, error) {
	session, err := r.getSession(ctx, `WHERE room_id = $1 AND status != 'complete'`, roomID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) getSession(ctx context.Context, where string, arg any) (*models.QuizSession, error) {
	query := `
		SELECT id, room_id, total_questions, current_question, time_per_question, status, started_at, ended_at
		FROM quiz_sessions ` + where

	session := &models.QuizSession{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&session.ID,
		&session.RoomID,
		&session.TotalQuestions,
		&session.CurrentQuestion,
		&session.TimePerQuestion,
		&session.Status,
		&session.StartedAt,
		&session.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) UpdateSessionStatus(ctx context.Context, sessionID, fromStatus, toStatus string) (bool, error) {
	query := `UPDATE quiz_sessions SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, toStatus, sessionID, fromStatus)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// AdvanceQuestion moves the session's question index forward. GREATEST keeps
// the index monotonic under duplicate or out-of-order delivery.
func (r *SessionRepository) AdvanceQuestion(ctx context.Context, sessionID string, questionIndex int) error {
	query := `UPDATE quiz_sessions SET current_question = GREATEST(current_question, $1) WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, questionIndex, sessionID)
	return err
}

func (r *SessionRepository) CompleteSession(ctx context.Context, sessionID string) (bool, error) {
	query := `
		UPDATE quiz_sessions SET status = $1, ended_at = $2
		WHERE id = $3 AND status != $1
	`
	result, err := r.db.ExecContext(ctx, query, constants.SessionStatusComplete, time.Now(), sessionID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// DeleteSession is the compensation for a failed start; a session that never
// produced content is removed so the host can retry cleanly.
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	query := `DELETE FROM quiz_sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
